package tool

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestWithSchemaValidationPassesValidParams(t *testing.T) {
	ft := &fakeTool{
		name:   "sum",
		params: `{"type": "object", "properties": {"a": {"type": "number"}, "b": {"type": "number"}}, "required": ["a", "b"]}`,
	}

	wrapped, err := WithSchemaValidation(ft)
	if err != nil {
		t.Fatalf("WithSchemaValidation: %v", err)
	}

	res, err := wrapped.Execute(context.Background(), json.RawMessage(`{"a": 1, "b": 2}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.IsError {
		t.Errorf("valid params rejected: %s", res.Content)
	}
	if ft.calls != 1 {
		t.Errorf("inner calls = %d, want 1", ft.calls)
	}
}

func TestWithSchemaValidationRejectsInvalidParams(t *testing.T) {
	ft := &fakeTool{
		name:   "sum",
		params: `{"type": "object", "properties": {"a": {"type": "number"}}, "required": ["a"]}`,
	}

	wrapped, err := WithSchemaValidation(ft)
	if err != nil {
		t.Fatal(err)
	}

	res, err := wrapped.Execute(context.Background(), json.RawMessage(`{"a": "oops"}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !res.IsError {
		t.Fatal("expected error result for type mismatch")
	}
	if !strings.Contains(res.Content, "schema validation failed") {
		t.Errorf("Content = %q, want schema validation failure", res.Content)
	}
	if ft.calls != 0 {
		t.Errorf("inner tool ran %d times on invalid params", ft.calls)
	}
}

func TestWithSchemaValidationRejectsMalformedJSON(t *testing.T) {
	ft := &fakeTool{
		name:   "sum",
		params: `{"type": "object"}`,
	}
	wrapped, err := WithSchemaValidation(ft)
	if err != nil {
		t.Fatal(err)
	}

	res, err := wrapped.Execute(context.Background(), json.RawMessage(`{not json`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !res.IsError || !strings.Contains(res.Content, "invalid JSON") {
		t.Errorf("result = %+v, want invalid JSON error", res)
	}
}

func TestWithSchemaValidationSkipsEmptySchema(t *testing.T) {
	ft := &fakeTool{name: "free", params: ""}

	wrapped, err := WithSchemaValidation(ft)
	if err != nil {
		t.Fatal(err)
	}
	if wrapped != ft {
		t.Error("tool without schema should be returned unwrapped")
	}
}

func TestWithSchemaValidationCompileError(t *testing.T) {
	ft := &fakeTool{name: "broken", params: `{"type": [42]}`}

	if _, err := WithSchemaValidation(ft); err == nil {
		t.Error("expected compile error for invalid schema")
	}
}
