//go:build !discord

package main

import (
	"fmt"
	"log/slog"

	"adjutant/internal/domain"
	"adjutant/internal/infra/config"
)

func buildDiscordChannel(config.ChannelConfig, *slog.Logger) (domain.Channel, error) {
	return nil, fmt.Errorf("discord channel requires building with -tags discord")
}
