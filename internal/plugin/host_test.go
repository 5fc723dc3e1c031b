package plugin

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"adjutant/internal/domain"
	"adjutant/internal/infra/config"
)

// emptyModule is the smallest valid Wasm binary: magic plus version. It
// compiles but exports nothing, which is enough for discovery tests.
var emptyModule = []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

func newPluginTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writePlugin(t *testing.T, dir, name string, manifest string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name+".wasm"), emptyModule, 0o644); err != nil {
		t.Fatal(err)
	}
	if manifest != "" {
		writeManifest(t, dir, name+".manifest.json", manifest)
	}
}

func newTestHost(t *testing.T, dir string) *Host {
	t.Helper()
	h, err := NewHost(context.Background(), config.PluginsConfig{
		Enabled:     true,
		Dir:         dir,
		ExecTimeout: time.Second,
		MemoryPages: 64,
	}, nil, newPluginTestLogger())
	if err != nil {
		t.Fatalf("NewHost: %v", err)
	}
	t.Cleanup(func() { h.Close(context.Background()) })
	return h
}

func TestHostLoadsPlugins(t *testing.T) {
	dir := t.TempDir()
	writePlugin(t, dir, "word_count", `{"name": "word_count", "description": "Counts words."}`)

	h := newTestHost(t, dir)

	tools := h.Tools()
	if len(tools) != 1 {
		t.Fatalf("tools = %d, want 1", len(tools))
	}
	if tools[0].Name() != "word_count" {
		t.Errorf("name = %q", tools[0].Name())
	}
	schema := tools[0].Schema()
	if string(schema.Parameters) != `{"type": "object"}` {
		t.Errorf("schema = %s", schema.Parameters)
	}
}

func TestHostSkipsPluginWithoutManifest(t *testing.T) {
	dir := t.TempDir()
	writePlugin(t, dir, "orphan", "")
	writePlugin(t, dir, "good", `{"name": "good", "description": "Has a manifest."}`)

	h := newTestHost(t, dir)
	if len(h.Tools()) != 1 {
		t.Errorf("tools = %d, want 1 (orphan skipped)", len(h.Tools()))
	}
}

func TestHostSkipsInvalidBinary(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "junk.wasm"), []byte("not wasm"), 0o644); err != nil {
		t.Fatal(err)
	}
	writeManifest(t, dir, "junk.manifest.json", `{"name": "junk", "description": "Broken binary."}`)

	h := newTestHost(t, dir)
	if len(h.Tools()) != 0 {
		t.Errorf("tools = %d, want 0", len(h.Tools()))
	}
}

func TestHostMissingDir(t *testing.T) {
	h := newTestHost(t, filepath.Join(t.TempDir(), "absent"))
	if len(h.Tools()) != 0 {
		t.Errorf("tools = %d, want 0", len(h.Tools()))
	}
}

func TestHostEmptyDirConfig(t *testing.T) {
	h := newTestHost(t, "")
	if len(h.Tools()) != 0 {
		t.Errorf("tools = %d, want 0", len(h.Tools()))
	}
}

func TestPluginExecuteNoOutput(t *testing.T) {
	// The empty module exports nothing and writes nothing; Execute must
	// still return a usable result instead of hanging or erroring.
	dir := t.TempDir()
	writePlugin(t, dir, "inert", `{"name": "inert", "description": "Does nothing."}`)

	h := newTestHost(t, dir)
	tools := h.Tools()
	if len(tools) != 1 {
		t.Fatalf("tools = %d", len(tools))
	}

	res, err := tools[0].Execute(context.Background(), json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Content != "ok" || res.IsError {
		t.Errorf("result = %+v", res)
	}
}

func TestParseResult(t *testing.T) {
	r := parseResult([]byte(`{"content": "42 words", "is_error": false}` + "\n"))
	if r.Content != "42 words" || r.IsError {
		t.Errorf("result = %+v", r)
	}

	r = parseResult([]byte(`{"content": "bad input", "is_error": true}`))
	if !r.IsError {
		t.Errorf("result = %+v", r)
	}

	r = parseResult([]byte("plain text output\n"))
	if r.Content != "plain text output" || r.IsError {
		t.Errorf("result = %+v", r)
	}

	r = parseResult(nil)
	if r.Content != "ok" {
		t.Errorf("result = %+v", r)
	}
}

func TestHostPublishesLoadEvents(t *testing.T) {
	dir := t.TempDir()
	writePlugin(t, dir, "word_count", `{"name": "word_count", "description": "Counts words."}`)

	bus := &captureBus{}
	h, err := NewHost(context.Background(), config.PluginsConfig{Dir: dir}, bus, newPluginTestLogger())
	if err != nil {
		t.Fatalf("NewHost: %v", err)
	}
	if got := bus.count(domain.EventPluginLoaded); got != 1 {
		t.Errorf("loaded events = %d, want 1", got)
	}

	h.Close(context.Background())
	if got := bus.count(domain.EventPluginUnloaded); got != 1 {
		t.Errorf("unloaded events = %d, want 1", got)
	}
}

type captureBus struct {
	events []domain.Event
}

func (b *captureBus) Publish(evt domain.Event) { b.events = append(b.events, evt) }
func (b *captureBus) Subscribe(domain.EventType, domain.EventHandler) func() {
	return func() {}
}
func (b *captureBus) SubscribeAll(domain.EventHandler) func() { return func() {} }
func (b *captureBus) Close()                                  {}

func (b *captureBus) count(t domain.EventType) int {
	n := 0
	for _, e := range b.events {
		if e.Type == t {
			n++
		}
	}
	return n
}
