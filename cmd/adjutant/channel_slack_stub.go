//go:build !slack

package main

import (
	"fmt"
	"log/slog"

	"adjutant/internal/domain"
	"adjutant/internal/infra/config"
)

func buildSlackChannel(config.ChannelConfig, *slog.Logger) (domain.Channel, error) {
	return nil, fmt.Errorf("slack channel requires building with -tags slack")
}
