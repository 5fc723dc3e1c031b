package plugin

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"adjutant/internal/domain"
)

func writeManifest(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadManifest(t *testing.T) {
	path := writeManifest(t, t.TempDir(), "word_count.manifest.json", `{
		"name": "word_count",
		"description": "Counts words in the given text.",
		"version": "1.0.0",
		"schema": {"type": "object", "properties": {"text": {"type": "string"}}, "required": ["text"]}
	}`)

	m, err := LoadManifest(path)
	if err != nil {
		t.Fatalf("LoadManifest: %v", err)
	}
	if m.Name != "word_count" || m.Version != "1.0.0" {
		t.Errorf("manifest = %+v", m)
	}
	if len(m.ParamSchema()) == 0 {
		t.Error("ParamSchema empty")
	}
}

func TestLoadManifestMissingFile(t *testing.T) {
	if _, err := LoadManifest(filepath.Join(t.TempDir(), "nope.json")); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("err = %v, want ErrInvalidInput", err)
	}
}

func TestManifestValidate(t *testing.T) {
	tests := []struct {
		name     string
		manifest Manifest
		wantErr  bool
	}{
		{"valid", Manifest{Name: "echo", Description: "Echoes input."}, false},
		{"empty name", Manifest{Description: "x"}, true},
		{"uppercase name", Manifest{Name: "Echo", Description: "x"}, true},
		{"leading digit", Manifest{Name: "1echo", Description: "x"}, true},
		{"blank description", Manifest{Name: "echo", Description: "  "}, true},
		{"bad schema", Manifest{Name: "echo", Description: "x", Schema: json.RawMessage(`{"type": [42]}`)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.manifest.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, domain.ErrInvalidInput) {
				t.Errorf("err = %v, want ErrInvalidInput", err)
			}
		})
	}
}

func TestManifestDefaultSchema(t *testing.T) {
	m := Manifest{Name: "echo", Description: "Echoes input."}
	if string(m.ParamSchema()) != `{"type": "object"}` {
		t.Errorf("default schema = %s", m.ParamSchema())
	}
}
