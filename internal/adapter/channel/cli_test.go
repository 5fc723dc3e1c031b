package channel

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"adjutant/internal/domain"
)

func newChannelTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// syncBuffer guards writes; the read loop and the test goroutine both touch it.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func startCLI(t *testing.T, input string, handler domain.MessageHandler) (*CLIChannel, *syncBuffer) {
	t.Helper()
	out := &syncBuffer{}
	ch := NewCLIChannel(newChannelTestLogger(),
		WithCLIInput(strings.NewReader(input)),
		WithCLIOutput(out),
	)
	if err := ch.Start(context.Background(), handler); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { ch.Stop(context.Background()) })
	return ch, out
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestCLIChannelName(t *testing.T) {
	ch := NewCLIChannel(newChannelTestLogger())
	if ch.Name() != "cli" {
		t.Errorf("Name = %q", ch.Name())
	}
	if ch.sessionID != CLISessionID {
		t.Errorf("sessionID = %q", ch.sessionID)
	}
}

func TestCLIChannelForwardsInput(t *testing.T) {
	var (
		mu   sync.Mutex
		msgs []domain.InboundMessage
	)
	handler := func(_ context.Context, msg domain.InboundMessage) error {
		mu.Lock()
		msgs = append(msgs, msg)
		mu.Unlock()
		return nil
	}

	startCLI(t, "triage the sso outage\nwhat is on the plan\n", handler)

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(msgs) == 2
	})

	mu.Lock()
	defer mu.Unlock()
	if msgs[0].Content != "triage the sso outage" || msgs[0].ChannelName != "cli" {
		t.Errorf("first = %+v", msgs[0])
	}
	if msgs[0].SessionID != CLISessionID {
		t.Errorf("SessionID = %q", msgs[0].SessionID)
	}
}

func TestCLIChannelSkipsBlankLines(t *testing.T) {
	var count int
	var mu sync.Mutex
	handler := func(_ context.Context, _ domain.InboundMessage) error {
		mu.Lock()
		count++
		mu.Unlock()
		return nil
	}

	ch, _ := startCLI(t, "\n   \nreal message\n", handler)
	<-ch.done

	mu.Lock()
	defer mu.Unlock()
	if count != 1 {
		t.Errorf("handler calls = %d, want 1", count)
	}
}

func TestCLIChannelQuitStopsLoop(t *testing.T) {
	handler := func(_ context.Context, _ domain.InboundMessage) error {
		t.Error("handler should not run after /quit")
		return nil
	}

	ch, _ := startCLI(t, "/quit\nignored\n", handler)

	select {
	case <-ch.done:
	case <-time.After(2 * time.Second):
		t.Fatal("read loop did not stop on /quit")
	}
}

func TestCLIChannelHelp(t *testing.T) {
	handler := func(_ context.Context, _ domain.InboundMessage) error {
		t.Error("/help should not reach the handler")
		return nil
	}

	ch, out := startCLI(t, "/help\n", handler)
	<-ch.done

	if !strings.Contains(out.String(), "/quit") {
		t.Errorf("help output missing, got %q", out.String())
	}
}

func TestCLIChannelReportsHandlerError(t *testing.T) {
	handler := func(_ context.Context, _ domain.InboundMessage) error {
		return errors.New("cycle failed")
	}

	ch, out := startCLI(t, "break it\n", handler)
	<-ch.done

	if !strings.Contains(out.String(), "cycle failed") {
		t.Errorf("output = %q, want handler error surfaced", out.String())
	}
}

func TestCLIChannelSend(t *testing.T) {
	out := &syncBuffer{}
	ch := NewCLIChannel(newChannelTestLogger(), WithCLIOutput(out))

	if err := ch.Send(context.Background(), domain.OutboundMessage{Content: "plan ready"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := ch.Send(context.Background(), domain.OutboundMessage{Content: "boom", IsError: true}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	got := out.String()
	if !strings.Contains(got, "plan ready\n") {
		t.Errorf("output = %q", got)
	}
	if !strings.Contains(got, "error: boom") {
		t.Errorf("error output = %q", got)
	}
}

func TestCLIChannelStopBeforeStart(t *testing.T) {
	ch := NewCLIChannel(newChannelTestLogger())
	if err := ch.Stop(context.Background()); err != nil {
		t.Errorf("Stop: %v", err)
	}
}

func TestSplitMessageShort(t *testing.T) {
	chunks := splitMessage("hello", 2000)
	if len(chunks) != 1 || chunks[0] != "hello" {
		t.Errorf("chunks = %v", chunks)
	}
}

func TestSplitMessagePrefersNewlines(t *testing.T) {
	content := strings.Repeat("line one\n", 10)
	chunks := splitMessage(content, 30)

	for i, c := range chunks {
		if len(c) > 30 {
			t.Errorf("chunk %d too long: %d", i, len(c))
		}
		if strings.Contains(c, "line one\nline one\nline one\nline") {
			t.Errorf("chunk %d not split on newline: %q", i, c)
		}
	}
	if strings.Count(strings.Join(chunks, "\n"), "line one") != 10 {
		t.Errorf("content lost across chunks: %v", chunks)
	}
}

func TestSplitMessageHardBreak(t *testing.T) {
	content := strings.Repeat("x", 4500)
	chunks := splitMessage(content, 2000)
	if len(chunks) != 3 {
		t.Fatalf("chunks = %d, want 3", len(chunks))
	}
	total := 0
	for _, c := range chunks {
		if len(c) > 2000 {
			t.Errorf("chunk too long: %d", len(c))
		}
		total += len(c)
	}
	if total != 4500 {
		t.Errorf("total = %d, want 4500", total)
	}
}
