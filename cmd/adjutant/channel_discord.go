//go:build discord

package main

import (
	"fmt"
	"log/slog"

	"adjutant/internal/adapter/channel"
	"adjutant/internal/domain"
	"adjutant/internal/infra/config"
)

func buildDiscordChannel(cc config.ChannelConfig, log *slog.Logger) (domain.Channel, error) {
	if cc.Discord == nil || cc.Discord.Token == "" {
		return nil, fmt.Errorf("discord channel requires a bot token")
	}
	var opts []channel.DiscordOption
	if cc.Discord.ChannelID != "" {
		opts = append(opts, channel.WithDiscordChannel(cc.Discord.ChannelID))
	}
	return channel.NewDiscordChannel(cc.Discord.Token, log, opts...), nil
}
