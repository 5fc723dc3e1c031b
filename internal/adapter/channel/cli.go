// Package channel contains the user-facing I/O adapters. Every channel
// feeds inbound messages into the same orchestrator handler and renders
// the merged cycle response back to its surface.
package channel

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"adjutant/internal/domain"
)

// CLISessionID is the session every terminal conversation runs under.
const CLISessionID = "cli"

// CLIOption configures the CLI channel.
type CLIOption func(*CLIChannel)

// WithCLIInput overrides stdin. Used by tests.
func WithCLIInput(r io.Reader) CLIOption {
	return func(c *CLIChannel) { c.in = r }
}

// WithCLIOutput overrides stdout. Used by tests.
func WithCLIOutput(w io.Writer) CLIOption {
	return func(c *CLIChannel) { c.out = w }
}

// WithCLISession sets the session ID for the terminal conversation.
func WithCLISession(id string) CLIOption {
	return func(c *CLIChannel) { c.sessionID = id }
}

// CLIChannel implements domain.Channel over stdin/stdout. One terminal,
// one session.
type CLIChannel struct {
	in        io.Reader
	out       io.Writer
	sessionID string
	logger    *slog.Logger

	handler domain.MessageHandler
	cancel  context.CancelFunc
	done    chan struct{}

	writeMu sync.Mutex
}

// NewCLIChannel creates a terminal channel.
func NewCLIChannel(logger *slog.Logger, opts ...CLIOption) *CLIChannel {
	c := &CLIChannel{
		in:        os.Stdin,
		out:       os.Stdout,
		sessionID: CLISessionID,
		logger:    logger,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *CLIChannel) Name() string { return "cli" }

// Start begins the read loop in a goroutine and returns immediately.
// The loop ends on EOF, a quit command, or context cancellation.
func (c *CLIChannel) Start(ctx context.Context, handler domain.MessageHandler) error {
	loopCtx, cancel := context.WithCancel(ctx)
	c.handler = handler
	c.cancel = cancel
	c.done = make(chan struct{})

	go c.readLoop(loopCtx)
	return nil
}

func (c *CLIChannel) Stop(_ context.Context) error {
	if c.cancel != nil {
		c.cancel()
	}
	if c.done != nil {
		<-c.done
	}
	return nil
}

func (c *CLIChannel) Send(_ context.Context, msg domain.OutboundMessage) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if msg.IsError {
		_, err := fmt.Fprintf(c.out, "error: %s\n", msg.Content)
		return err
	}
	_, err := fmt.Fprintf(c.out, "%s\n", msg.Content)
	return err
}

func (c *CLIChannel) readLoop(ctx context.Context) {
	defer close(c.done)

	scanner := bufio.NewScanner(c.in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	c.prompt()
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			c.prompt()
			continue
		}

		switch line {
		case "/quit", "/exit":
			return
		case "/help":
			fmt.Fprintln(c.out, helpText)
			c.prompt()
			continue
		}

		msg := domain.InboundMessage{
			SessionID:   c.sessionID,
			Content:     line,
			ChannelName: "cli",
			SenderID:    "local",
			SenderName:  "operator",
		}
		if err := c.handler(ctx, msg); err != nil {
			c.logger.Error("cli handler error", "error", err)
			fmt.Fprintf(c.out, "error: %v\n", err)
		}
		c.prompt()
	}

	if err := scanner.Err(); err != nil {
		c.logger.Error("cli read error", "error", err)
	}
}

func (c *CLIChannel) prompt() {
	c.writeMu.Lock()
	fmt.Fprint(c.out, "> ")
	c.writeMu.Unlock()
}
