package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// EnvPrefix marks environment variables that override file settings, e.g.
// LIVEGRAPH_HTTP_ADDR overrides http_addr.
const EnvPrefix = "LIVEGRAPH_"

// FromFile reads a .yaml, .yml or .json file.
func FromFile(path string) (Config, error) {
	var decode func([]byte) (Config, error)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		decode = FromYAML
	case ".json":
		decode = FromJSON
	default:
		return Config{}, fmt.Errorf("config %s: unsupported extension %q", path, ext)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	c, err := decode(data)
	if err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return c, nil
}

// FromYAML decodes a YAML document. An empty document is an empty Config.
func FromYAML(data []byte) (Config, error) {
	var m map[string]any
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Config{}, fmt.Errorf("parse yaml: %w", err)
	}
	return New(m), nil
}

// FromJSON decodes a JSON object.
func FromJSON(data []byte) (Config, error) {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return Config{}, fmt.Errorf("parse json: %w", err)
	}
	return New(m), nil
}

// FromEnv collects the KEY=value entries of environ that start with prefix.
// Keys lose the prefix and are lower-cased. Values are read as YAML scalars,
// so "8" is an int and "true" a bool; anything unparsable stays a string.
func FromEnv(prefix string, environ []string) Config {
	m := make(map[string]any)
	for _, kv := range environ {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(k, prefix) || len(k) == len(prefix) {
			continue
		}
		key := strings.ToLower(strings.TrimPrefix(k, prefix))

		var scalar any
		if err := yaml.Unmarshal([]byte(v), &scalar); err != nil || scalar == nil {
			scalar = v
		}
		if _, isMap := scalar.(map[string]any); isMap {
			scalar = v
		}
		if _, isList := scalar.([]any); isList {
			scalar = v
		}
		m[key] = scalar
	}
	return New(m)
}
