package rules

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultTables []byte

// Default returns the rule tables compiled into the binary. Each call decodes
// a fresh copy, so callers never share maps.
func Default() Tables {
	t, err := Parse(defaultTables)
	if err != nil {
		panic(fmt.Sprintf("embedded rule tables are invalid: %v", err))
	}
	return t
}

// DefaultYAML returns the embedded source document.
func DefaultYAML() []byte {
	return append([]byte(nil), defaultTables...)
}

// Parse decodes and validates a YAML rule document. Unknown fields are rejected.
func Parse(data []byte) (Tables, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var t Tables
	if err := dec.Decode(&t); err != nil {
		return Tables{}, fmt.Errorf("decode rule tables: %w", err)
	}
	if err := t.Validate(); err != nil {
		return Tables{}, fmt.Errorf("invalid rule tables: %w", err)
	}
	return t, nil
}

// Load reads a rule document from path.
func Load(path string) (Tables, error) {
	if path == "" {
		return Tables{}, errors.New("rules path cannot be empty")
	}
	clean := filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(clean))
	if ext != ".yaml" && ext != ".yml" {
		return Tables{}, errors.New("rules file must have .yaml or .yml extension")
	}
	data, err := os.ReadFile(clean) // #nosec G304 - extension checked above
	if err != nil {
		return Tables{}, fmt.Errorf("failed to read rules file %s: %w", clean, err)
	}
	t, err := Parse(data)
	if err != nil {
		return Tables{}, fmt.Errorf("rules file %s: %w", clean, err)
	}
	return t, nil
}

// LoadOrDefault loads path when set and falls back to the embedded tables otherwise.
func LoadOrDefault(path string) (Tables, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	return Load(path)
}

// Marshal encodes tables back to YAML.
func Marshal(t Tables) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(t); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
