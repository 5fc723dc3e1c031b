//go:build !browser

package tool

import (
	"log/slog"

	"adjutant/internal/infra/config"
)

// RegisterBrowserTools is a no-op in builds without the browser tag. A config
// that enables the browser gets a warning instead of a missing tool at runtime.
func RegisterBrowserTools(_ *Registry, cfg config.BrowserConfig, logger *slog.Logger) error {
	if cfg.Enabled {
		logger.Warn("browser tool enabled in config but binary built without browser support")
	}
	return nil
}
