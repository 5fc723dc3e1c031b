// Package plugin hosts Wasm tool plugins. Each plugin is a wasip1 binary
// dropped into the plugins dir with a sidecar manifest; it joins the tool
// registry like any built-in tool. Invocation is JSON over stdio: params in,
// result out, one module instance per call.
package plugin

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/kaptinlin/jsonschema"

	"adjutant/internal/domain"
)

// nameRe matches valid plugin tool names. Same alphabet the provider APIs
// accept for tool names.
var nameRe = regexp.MustCompile(`^[a-z][a-z0-9_]{0,63}$`)

// Manifest describes one Wasm plugin. It lives next to the binary as
// <name>.manifest.json.
type Manifest struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Version     string          `json:"version,omitempty"`
	// Schema is the JSON Schema for the tool parameters. Defaults to an
	// unconstrained object.
	Schema json.RawMessage `json:"schema,omitempty"`
}

// LoadManifest reads and validates a manifest file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read manifest %s: %v", domain.ErrInvalidInput, path, err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: parse manifest %s: %v", domain.ErrInvalidInput, path, err)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("manifest %s: %w", path, err)
	}
	return &m, nil
}

// Validate checks the manifest fields, including that the parameter schema
// actually compiles.
func (m *Manifest) Validate() error {
	if !nameRe.MatchString(m.Name) {
		return fmt.Errorf("%w: plugin name %q must match %s", domain.ErrInvalidInput, m.Name, nameRe)
	}
	if strings.TrimSpace(m.Description) == "" {
		return fmt.Errorf("%w: plugin %s: description required", domain.ErrInvalidInput, m.Name)
	}
	if len(m.Schema) > 0 {
		if _, err := jsonschema.NewCompiler().Compile(m.Schema); err != nil {
			return fmt.Errorf("%w: plugin %s: schema does not compile: %v", domain.ErrInvalidInput, m.Name, err)
		}
	}
	return nil
}

// ParamSchema returns the declared schema or the unconstrained default.
func (m *Manifest) ParamSchema() json.RawMessage {
	if len(m.Schema) > 0 {
		return m.Schema
	}
	return json.RawMessage(`{"type": "object"}`)
}
