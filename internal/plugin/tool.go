package plugin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/sys"

	"adjutant/internal/domain"
)

const defaultExecTimeout = 10 * time.Second

// pluginTool exposes one compiled Wasm plugin as a domain.Tool. Every
// Execute instantiates a fresh module: params arrive on stdin, the result
// leaves on stdout, stderr goes to the log.
type pluginTool struct {
	host     *Host
	manifest *Manifest
	compiled wazero.CompiledModule
	logger   *slog.Logger
}

var _ domain.Tool = (*pluginTool)(nil)

func (t *pluginTool) Name() string        { return t.manifest.Name }
func (t *pluginTool) Description() string { return t.manifest.Description }

func (t *pluginTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.manifest.Name,
		Description: t.manifest.Description,
		Parameters:  t.manifest.ParamSchema(),
	}
}

func (t *pluginTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	timeout := t.host.cfg.ExecTimeout
	if timeout <= 0 {
		timeout = defaultExecTimeout
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if len(params) == 0 {
		params = json.RawMessage(`{}`)
	}

	var stdout, stderr bytes.Buffer
	modCfg := wazero.NewModuleConfig().
		WithName(""). // anonymous so repeat instantiation never collides
		WithStdin(bytes.NewReader(params)).
		WithStdout(&stdout).
		WithStderr(&stderr).
		WithArgs(t.manifest.Name)

	mod, err := t.host.runtime.InstantiateModule(execCtx, t.compiled, modCfg)
	if mod != nil {
		defer mod.Close(context.Background())
	}
	if stderr.Len() > 0 {
		t.logger.Debug("plugin stderr", "output", stderr.String())
	}
	if err != nil {
		if execCtx.Err() != nil {
			return nil, fmt.Errorf("%w: plugin %s", domain.ErrTimeout, t.manifest.Name)
		}
		if exitErr, ok := err.(*sys.ExitError); ok {
			// Exit 0 is a normal wasip1 main return; anything else is a
			// plugin-reported failure, not a host error.
			if exitErr.ExitCode() == 0 {
				return parseResult(stdout.Bytes()), nil
			}
			return &domain.ToolResult{
				Content: fmt.Sprintf("plugin %s exited with code %d: %s",
					t.manifest.Name, exitErr.ExitCode(), strings.TrimSpace(stderr.String())),
				IsError: true,
			}, nil
		}
		return nil, fmt.Errorf("%w: plugin %s: %v", domain.ErrToolFailure, t.manifest.Name, err)
	}

	return parseResult(stdout.Bytes()), nil
}

// parseResult interprets the plugin's stdout. Plugins built with the SDK
// emit {"content": ..., "is_error": ...}; anything else is taken verbatim.
func parseResult(out []byte) *domain.ToolResult {
	var r struct {
		Content string `json:"content"`
		IsError bool   `json:"is_error"`
	}
	if err := json.Unmarshal(out, &r); err == nil && r.Content != "" {
		return &domain.ToolResult{Content: r.Content, IsError: r.IsError}
	}
	content := strings.TrimSpace(string(out))
	if content == "" {
		content = "ok"
	}
	return &domain.ToolResult{Content: content}
}
