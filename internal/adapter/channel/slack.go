//go:build slack

package channel

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"adjutant/internal/domain"
)

// SlackOption configures the Slack channel.
type SlackOption func(*SlackChannel)

// WithSlackChannels limits the bot to specific channel IDs.
func WithSlackChannels(ids []string) SlackOption {
	return func(s *SlackChannel) {
		s.channelIDs = make(map[string]bool, len(ids))
		for _, id := range ids {
			s.channelIDs[id] = true
		}
	}
}

// SlackChannel implements domain.Channel for Slack via Socket Mode. Each
// Slack channel maps to one engine session.
type SlackChannel struct {
	botToken  string
	appToken  string
	api       *slack.Client
	socketCli *socketmode.Client
	handler   domain.MessageHandler
	logger    *slog.Logger

	channelIDs map[string]bool
	botUserID  string
	userNames  sync.Map // userID -> display name

	ctx    context.Context
	cancel context.CancelFunc
}

// NewSlackChannel creates a Slack channel.
func NewSlackChannel(botToken, appToken string, logger *slog.Logger, opts ...SlackOption) *SlackChannel {
	s := &SlackChannel{
		botToken: botToken,
		appToken: appToken,
		logger:   logger,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *SlackChannel) Name() string { return "slack" }

func (s *SlackChannel) Start(ctx context.Context, handler domain.MessageHandler) error {
	s.handler = handler
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.api = slack.New(s.botToken, slack.OptionAppLevelToken(s.appToken))
	s.socketCli = socketmode.New(s.api)

	authResp, err := s.api.AuthTest()
	if err != nil {
		return fmt.Errorf("slack auth: %w", err)
	}
	s.botUserID = authResp.UserID
	s.logger.Info("slack channel started", "bot_user_id", s.botUserID)

	go s.eventLoop()
	go func() {
		if err := s.socketCli.Run(); err != nil {
			s.logger.Error("slack socket mode error", "error", err)
		}
	}()
	return nil
}

func (s *SlackChannel) Stop(_ context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}
	return nil
}

func (s *SlackChannel) Send(_ context.Context, msg domain.OutboundMessage) error {
	content := msg.Content
	if msg.IsError {
		content = ":warning: " + content
	}
	_, _, err := s.api.PostMessage(msg.SessionID, slack.MsgOptionText(content, false))
	if err != nil {
		return fmt.Errorf("slack send: %w", err)
	}
	return nil
}

func (s *SlackChannel) eventLoop() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case evt := <-s.socketCli.Events:
			if evt.Type != socketmode.EventTypeEventsAPI {
				continue
			}
			apiEvent, ok := evt.Data.(slackevents.EventsAPIEvent)
			if !ok {
				continue
			}
			s.socketCli.Ack(*evt.Request)

			if ev, ok := apiEvent.InnerEvent.Data.(*slackevents.MessageEvent); ok {
				s.handleMessage(ev)
			}
		}
	}
}

// resolveUserName caches display-name lookups to avoid hammering the API.
func (s *SlackChannel) resolveUserName(userID string) string {
	if v, ok := s.userNames.Load(userID); ok {
		return v.(string)
	}
	info, err := s.api.GetUserInfo(userID)
	if err != nil {
		s.logger.Warn("slack: user lookup failed", "user_id", userID, "error", err)
		return userID
	}
	name := info.RealName
	if name == "" {
		name = info.Name
	}
	s.userNames.Store(userID, name)
	return name
}

func (s *SlackChannel) handleMessage(ev *slackevents.MessageEvent) {
	// Ignore our own and other bots' messages.
	if ev.User == "" || ev.User == s.botUserID || ev.BotID != "" {
		return
	}
	if len(s.channelIDs) > 0 && !s.channelIDs[ev.Channel] {
		return
	}

	mention := "<@" + s.botUserID + ">"
	content := ev.Text
	if strings.Contains(content, mention) {
		content = strings.TrimSpace(strings.ReplaceAll(content, mention, ""))
	}
	if content == "" {
		return
	}

	if content == "/help" {
		_, _, _ = s.api.PostMessage(ev.Channel, slack.MsgOptionText(helpText, false))
		return
	}

	msg := domain.InboundMessage{
		SessionID:   ev.Channel,
		Content:     content,
		ChannelName: "slack",
		SenderID:    ev.User,
		SenderName:  s.resolveUserName(ev.User),
	}
	if err := s.handler(s.ctx, msg); err != nil {
		s.logger.Error("slack handler error", "error", err, "channel", ev.Channel)
	}
}
