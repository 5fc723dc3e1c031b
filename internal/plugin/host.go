package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"adjutant/internal/domain"
	"adjutant/internal/infra/config"
)

// Host compiles and runs Wasm tool plugins. One runtime is shared by all
// plugins; each invocation instantiates a fresh module so plugins keep no
// state between calls.
type Host struct {
	runtime wazero.Runtime
	cfg     config.PluginsConfig
	bus     domain.EventBus // optional
	logger  *slog.Logger
	tools   []domain.Tool
}

// NewHost creates the plugin runtime and loads every plugin found in
// cfg.Dir. A missing or empty dir yields a host with no tools. The bus may
// be nil.
func NewHost(ctx context.Context, cfg config.PluginsConfig, bus domain.EventBus, logger *slog.Logger) (*Host, error) {
	rtCfg := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)
	if cfg.MemoryPages > 0 {
		rtCfg = rtCfg.WithMemoryLimitPages(uint32(cfg.MemoryPages))
	}
	rt := wazero.NewRuntimeWithConfig(ctx, rtCfg)
	wasi_snapshot_preview1.MustInstantiate(ctx, rt)

	h := &Host{
		runtime: rt,
		cfg:     cfg,
		bus:     bus,
		logger:  logger,
	}
	if err := h.load(ctx); err != nil {
		rt.Close(ctx)
		return nil, err
	}
	return h, nil
}

// load discovers and compiles every *.wasm in the plugins dir. A plugin
// that fails to load is skipped with a warning; it must not take the
// engine down.
func (h *Host) load(ctx context.Context) error {
	if h.cfg.Dir == "" {
		return nil
	}
	entries, err := os.ReadDir(h.cfg.Dir)
	if os.IsNotExist(err) {
		h.logger.Debug("plugins dir does not exist", "dir", h.cfg.Dir)
		return nil
	}
	if err != nil {
		return fmt.Errorf("read plugins dir %s: %w", h.cfg.Dir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".wasm") {
			continue
		}
		wasmPath := filepath.Join(h.cfg.Dir, entry.Name())
		tool, err := h.loadOne(ctx, wasmPath)
		if err != nil {
			h.logger.Warn("skipping plugin", "path", wasmPath, "error", err)
			continue
		}
		h.tools = append(h.tools, tool)
		h.publishLoaded(tool.Name())
		h.logger.Info("plugin loaded", "tool", tool.Name(), "path", wasmPath)
	}
	return nil
}

func (h *Host) loadOne(ctx context.Context, wasmPath string) (domain.Tool, error) {
	base := strings.TrimSuffix(wasmPath, ".wasm")
	manifest, err := LoadManifest(base + ".manifest.json")
	if err != nil {
		return nil, err
	}

	wasmBytes, err := os.ReadFile(wasmPath)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", domain.ErrInvalidInput, wasmPath, err)
	}
	compiled, err := h.runtime.CompileModule(ctx, wasmBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: compile %s: %v", domain.ErrInvalidInput, wasmPath, err)
	}

	return &pluginTool{
		host:     h,
		manifest: manifest,
		compiled: compiled,
		logger:   h.logger.With("plugin", manifest.Name),
	}, nil
}

// Tools returns the loaded plugin tools, ready for registry registration.
func (h *Host) Tools() []domain.Tool {
	return h.tools
}

// Close releases the runtime and all compiled modules.
func (h *Host) Close(ctx context.Context) error {
	for _, t := range h.tools {
		h.publishUnloaded(t.Name())
	}
	return h.runtime.Close(ctx)
}

func (h *Host) publishLoaded(name string) {
	if h.bus == nil {
		return
	}
	h.bus.Publish(domain.NewEvent(domain.EventPluginLoaded, "", map[string]string{"plugin": name}))
}

func (h *Host) publishUnloaded(name string) {
	if h.bus == nil {
		return
	}
	h.bus.Publish(domain.NewEvent(domain.EventPluginUnloaded, "", map[string]string{"plugin": name}))
}
