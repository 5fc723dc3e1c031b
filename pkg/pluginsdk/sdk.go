// Package pluginsdk helps authors write Wasm tool plugins. Build the plugin
// with GOOS=wasip1 GOARCH=wasm, drop the binary plus its manifest into the
// plugins dir, and the host exposes it as a tool.
//
// The protocol is JSON over stdio: the host writes the tool parameters to
// stdin, the plugin writes a Result to stdout and exits.
package pluginsdk

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// Result is what a plugin returns to the host.
type Result struct {
	Content string `json:"content"`
	IsError bool   `json:"is_error,omitempty"`
}

// Handler processes one invocation. params is the raw JSON the model
// supplied for the tool call.
type Handler func(params json.RawMessage) (Result, error)

// Run reads the invocation from stdin, calls the handler, and writes the
// result to stdout. Intended as the body of the plugin's main.
func Run(h Handler) {
	if err := run(os.Stdin, os.Stdout, h); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(in io.Reader, out io.Writer, h Handler) error {
	params, err := io.ReadAll(in)
	if err != nil {
		return fmt.Errorf("read params: %w", err)
	}
	if len(params) == 0 {
		params = []byte(`{}`)
	}
	if !json.Valid(params) {
		return fmt.Errorf("params are not valid JSON")
	}

	result, err := h(params)
	if err != nil {
		result = Result{Content: err.Error(), IsError: true}
	}

	enc := json.NewEncoder(out)
	if err := enc.Encode(result); err != nil {
		return fmt.Errorf("write result: %w", err)
	}
	return nil
}

// Params decodes the invocation parameters into a typed struct.
func Params[T any](raw json.RawMessage) (T, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, fmt.Errorf("decode params: %w", err)
	}
	return v, nil
}
