package main

import (
	"fmt"
	"log/slog"

	"adjutant/internal/adapter/channel"
	"adjutant/internal/domain"
	"adjutant/internal/infra/config"
	"adjutant/internal/usecase/records"
)

// buildChannels constructs the channels the config enables. Discord and
// Slack are behind build tags; without them the builders return an error
// naming the tag to build with.
func buildChannels(cfg *config.Config, log *slog.Logger) ([]domain.Channel, error) {
	var channels []domain.Channel
	for _, cc := range cfg.Channels {
		switch cc.Type {
		case "cli":
			channels = append(channels, channel.NewCLIChannel(log))
		case "discord":
			ch, err := buildDiscordChannel(cc, log)
			if err != nil {
				return nil, err
			}
			channels = append(channels, ch)
		case "slack":
			ch, err := buildSlackChannel(cc, log)
			if err != nil {
				return nil, err
			}
			channels = append(channels, ch)
		default:
			return nil, fmt.Errorf("unknown channel type %q", cc.Type)
		}
	}
	return channels, nil
}

// newSnapshotStore opens the record store read-style for the snapshot
// command: no event bus, no engine around it.
func newSnapshotStore(cfg *config.Config, log *slog.Logger) (*records.Store, error) {
	return records.NewStore(cfg.Records.DataDir, log, nil)
}
