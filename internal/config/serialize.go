package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ToMap flattens cfg into a key-value map with every field present and the
// model_type tag added.
func ToMap(cfg Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s config: %w", cfg.ModelType(), err)
	}
	m := make(map[string]any)
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("failed to flatten %s config: %w", cfg.ModelType(), err)
	}
	for k, v := range m {
		m[k] = normalizeNumber(v)
	}
	m[ModelTypeKey] = cfg.ModelType()
	return m, nil
}

// normalizeNumber turns json.Number into int when integral, else float64.
func normalizeNumber(v any) any {
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return int(i)
		}
		f, _ := n.Float64()
		return f
	case []any:
		for i := range n {
			n[i] = normalizeNumber(n[i])
		}
		return n
	default:
		return v
	}
}

// FromMap overwrites the fields of cfg (a pointer pre-filled with defaults)
// with the entries of m, then validates it.
//
// Unknown keys and a model_type that does not match cfg fail with
// ErrInvalidConfig. Keys missing from m keep their default value.
func FromMap(m map[string]any, cfg Config) error {
	fields := maps.Clone(m)
	if tag, ok := fields[ModelTypeKey]; ok {
		if s, _ := tag.(string); s != cfg.ModelType() {
			return &FieldError{Field: ModelTypeKey, Value: tag, Reason: fmt.Sprintf("expected %q", cfg.ModelType())}
		}
		delete(fields, ModelTypeKey)
	}

	data, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, cfg.ModelType(), err)
	}
	return cfg.Validate()
}

// Format is a configuration file encoding.
type Format string

// Supported file formats.
const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatOf picks the encoding from a file extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unsupported config file extension %q", filepath.Ext(path))
	}
}

// Marshal encodes cfg as a flat document in the given format.
func Marshal(cfg Config, format Format) ([]byte, error) {
	m, err := ToMap(cfg)
	if err != nil {
		return nil, err
	}
	switch format {
	case FormatJSON:
		return json.MarshalIndent(m, "", "  ")
	case FormatYAML:
		return yaml.Marshal(m)
	default:
		return nil, fmt.Errorf("unsupported config format %q", format)
	}
}

// Unmarshal decodes a flat document into a key-value map.
func Unmarshal(data []byte, format Format) (map[string]any, error) {
	m := make(map[string]any)
	switch format {
	case FormatJSON:
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	case FormatYAML:
		if err := yaml.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format %q", format)
	}
	return m, nil
}

// Save writes cfg to path, choosing JSON or YAML from the extension.
func Save(path string, cfg Config) error {
	format, err := FormatOf(path)
	if err != nil {
		return err
	}
	data, err := Marshal(cfg, format)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// ReadMap reads a config file into a key-value map without decoding it into
// a specific architecture. Callers use the model_type entry to pick one.
func ReadMap(path string) (map[string]any, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Unmarshal(data, format)
}

// Load reads path into cfg, which must already hold the defaults.
func Load(path string, cfg Config) error {
	m, err := ReadMap(path)
	if err != nil {
		return err
	}
	if err := FromMap(m, cfg); err != nil {
		return fmt.Errorf("invalid config %s: %w", path, err)
	}
	return nil
}
