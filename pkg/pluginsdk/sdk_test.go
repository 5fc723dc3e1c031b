package pluginsdk

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestRunRoundtrip(t *testing.T) {
	in := strings.NewReader(`{"name": "world"}`)
	var out bytes.Buffer

	err := run(in, &out, func(params json.RawMessage) (Result, error) {
		p, err := Params[struct {
			Name string `json:"name"`
		}](params)
		if err != nil {
			return Result{}, err
		}
		return Result{Content: "hello " + p.Name}, nil
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	var r Result
	if err := json.Unmarshal(out.Bytes(), &r); err != nil {
		t.Fatal(err)
	}
	if r.Content != "hello world" || r.IsError {
		t.Errorf("result = %+v", r)
	}
}

func TestRunHandlerError(t *testing.T) {
	var out bytes.Buffer
	err := run(strings.NewReader(`{}`), &out, func(json.RawMessage) (Result, error) {
		return Result{}, errors.New("upstream unreachable")
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	var r Result
	if err := json.Unmarshal(out.Bytes(), &r); err != nil {
		t.Fatal(err)
	}
	if !r.IsError || r.Content != "upstream unreachable" {
		t.Errorf("result = %+v", r)
	}
}

func TestRunEmptyParamsDefaultToObject(t *testing.T) {
	var out bytes.Buffer
	var got string
	err := run(strings.NewReader(""), &out, func(params json.RawMessage) (Result, error) {
		got = string(params)
		return Result{Content: "ok"}, nil
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if got != "{}" {
		t.Errorf("params = %q", got)
	}
}

func TestRunRejectsMalformedParams(t *testing.T) {
	var out bytes.Buffer
	err := run(strings.NewReader(`{broken`), &out, func(json.RawMessage) (Result, error) {
		t.Error("handler should not run")
		return Result{}, nil
	})
	if err == nil {
		t.Error("expected error for malformed params")
	}
}

func TestParamsDecodeError(t *testing.T) {
	_, err := Params[struct {
		N int `json:"n"`
	}](json.RawMessage(`{"n": "not a number"}`))
	if err == nil {
		t.Error("expected decode error")
	}
}
