//go:build discord

package channel

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bwmarrin/discordgo"

	"adjutant/internal/domain"
)

// DiscordOption configures the Discord channel.
type DiscordOption func(*DiscordChannel)

// WithDiscordChannel restricts the bot to a single channel ID.
func WithDiscordChannel(id string) DiscordOption {
	return func(d *DiscordChannel) { d.channelID = id }
}

// DiscordChannel implements domain.Channel via the Discord gateway. Each
// Discord channel maps to one engine session. In guild channels the bot
// only reacts when mentioned; direct messages always go through.
type DiscordChannel struct {
	token     string
	channelID string
	session   *discordgo.Session
	handler   domain.MessageHandler
	logger    *slog.Logger
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewDiscordChannel creates a Discord channel.
func NewDiscordChannel(token string, logger *slog.Logger, opts ...DiscordOption) *DiscordChannel {
	d := &DiscordChannel{
		token:  token,
		logger: logger,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

func (d *DiscordChannel) Name() string { return "discord" }

func (d *DiscordChannel) Start(ctx context.Context, handler domain.MessageHandler) error {
	d.handler = handler
	d.ctx, d.cancel = context.WithCancel(ctx)

	session, err := discordgo.New("Bot " + d.token)
	if err != nil {
		return fmt.Errorf("discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentMessageContent

	session.AddHandler(d.onMessageCreate)

	if err := session.Open(); err != nil {
		return fmt.Errorf("discord open: %w", err)
	}
	d.session = session
	d.logger.Info("discord channel started", "bot_user", session.State.User.Username)
	return nil
}

func (d *DiscordChannel) Stop(_ context.Context) error {
	if d.cancel != nil {
		d.cancel()
	}
	if d.session != nil {
		return d.session.Close()
	}
	return nil
}

func (d *DiscordChannel) Send(_ context.Context, msg domain.OutboundMessage) error {
	content := msg.Content
	if msg.IsError {
		content = ":warning: " + content
	}
	// Discord caps messages at 2000 characters.
	for _, chunk := range splitMessage(content, 2000) {
		if _, err := d.session.ChannelMessageSend(msg.SessionID, chunk); err != nil {
			return fmt.Errorf("discord send: %w", err)
		}
	}
	return nil
}

func (d *DiscordChannel) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.ID == s.State.User.ID || m.Author.Bot {
		return
	}
	if d.channelID != "" && m.ChannelID != d.channelID {
		return
	}

	mention := "<@" + s.State.User.ID + ">"
	isMention := strings.Contains(m.Content, mention)

	// Guild channels require a mention; DMs do not.
	if m.GuildID != "" && !isMention {
		return
	}

	content := m.Content
	if isMention {
		content = strings.TrimSpace(strings.ReplaceAll(content, mention, ""))
	}
	if content == "" {
		return
	}

	if content == "/help" {
		_, _ = s.ChannelMessageSend(m.ChannelID, helpText)
		return
	}

	sender := m.Author.Username
	if m.Member != nil && m.Member.Nick != "" {
		sender = m.Member.Nick
	}

	msg := domain.InboundMessage{
		SessionID:   m.ChannelID,
		Content:     content,
		ChannelName: "discord",
		SenderID:    m.Author.ID,
		SenderName:  sender,
	}
	if err := d.handler(d.ctx, msg); err != nil {
		d.logger.Error("discord handler error", "error", err, "channel", m.ChannelID)
	}
}
