//go:build slack

package main

import (
	"fmt"
	"log/slog"

	"adjutant/internal/adapter/channel"
	"adjutant/internal/domain"
	"adjutant/internal/infra/config"
)

func buildSlackChannel(cc config.ChannelConfig, log *slog.Logger) (domain.Channel, error) {
	if cc.Slack == nil || cc.Slack.BotToken == "" || cc.Slack.AppToken == "" {
		return nil, fmt.Errorf("slack channel requires bot and app tokens")
	}
	return channel.NewSlackChannel(cc.Slack.BotToken, cc.Slack.AppToken, log), nil
}
