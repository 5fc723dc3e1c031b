package tool

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"adjutant/internal/domain"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeTool is a configurable domain.Tool for registry and middleware tests.
type fakeTool struct {
	name    string
	params  string
	execute func(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error)
	calls   int
}

func (f *fakeTool) Name() string        { return f.name }
func (f *fakeTool) Description() string { return "test tool " + f.name }

func (f *fakeTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        f.name,
		Description: f.Description(),
		Parameters:  json.RawMessage(f.params),
	}
}

func (f *fakeTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	f.calls++
	if f.execute != nil {
		return f.execute(ctx, params)
	}
	return &domain.ToolResult{Content: "ok"}, nil
}

func TestRegistryRegisterAndGet(t *testing.T) {
	reg := NewRegistry(nil)

	ft := &fakeTool{name: "echo"}
	if err := reg.Register(ft); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := reg.Register(&fakeTool{name: "echo"}); err == nil {
		t.Error("expected duplicate registration to fail")
	}

	got, err := reg.Get("echo")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Name() != "echo" {
		t.Errorf("Get returned %q", got.Name())
	}

	_, err = reg.Get("missing")
	if !errors.Is(err, domain.ErrToolNotFound) {
		t.Errorf("Get missing = %v, want ErrToolNotFound", err)
	}
}

func TestRegistryListAndSchemas(t *testing.T) {
	reg := NewRegistry(nil)
	for _, name := range []string{"a", "b", "c"} {
		if err := reg.Register(&fakeTool{name: name}); err != nil {
			t.Fatal(err)
		}
	}

	if got := len(reg.List()); got != 3 {
		t.Errorf("List = %d tools, want 3", got)
	}
	schemas := reg.Schemas()
	if len(schemas) != 3 {
		t.Errorf("Schemas = %d, want 3", len(schemas))
	}
	seen := map[string]bool{}
	for _, s := range schemas {
		seen[s.Name] = true
	}
	for _, name := range []string{"a", "b", "c"} {
		if !seen[name] {
			t.Errorf("schema for %q missing", name)
		}
	}
}

func TestRegistryWrapsWithSchemaValidation(t *testing.T) {
	reg := NewRegistry(newTestLogger())

	ft := &fakeTool{
		name:   "strict",
		params: `{"type": "object", "properties": {"n": {"type": "integer"}}, "required": ["n"]}`,
	}
	if err := reg.Register(ft); err != nil {
		t.Fatal(err)
	}

	got, err := reg.Get("strict")
	if err != nil {
		t.Fatal(err)
	}

	res, err := got.Execute(context.Background(), json.RawMessage(`{"n": "not a number"}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !res.IsError {
		t.Error("expected schema violation to produce an error result")
	}
	if ft.calls != 0 {
		t.Errorf("inner tool called %d times despite invalid params", ft.calls)
	}

	res, err = got.Execute(context.Background(), json.RawMessage(`{"n": 3}`))
	if err != nil || res.IsError {
		t.Errorf("valid params rejected: %+v, %v", res, err)
	}
	if ft.calls != 1 {
		t.Errorf("inner tool calls = %d, want 1", ft.calls)
	}
}

func TestRegistryRegistersUncompilableSchemaUnwrapped(t *testing.T) {
	reg := NewRegistry(newTestLogger())

	ft := &fakeTool{name: "broken", params: `{"type": [42]}`}
	if err := reg.Register(ft); err != nil {
		t.Fatalf("Register should fall back to unwrapped, got %v", err)
	}

	got, err := reg.Get("broken")
	if err != nil {
		t.Fatal(err)
	}
	res, err := got.Execute(context.Background(), json.RawMessage(`{"anything": true}`))
	if err != nil || res.IsError {
		t.Errorf("unwrapped tool should execute: %+v, %v", res, err)
	}
}
