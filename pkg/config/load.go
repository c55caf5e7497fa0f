package config

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
)

// Load reads, schema-validates, and defaults the configuration
// document at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse schema-validates and defaults a configuration document already
// held in memory, the way Load does for a file on disk.
func Parse(data []byte) (*Config, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("config: parse\n%s", yaml.FormatError(err, true, true))
	}

	if doc != nil {
		if err := validateStructure(doc); err != nil {
			return nil, err
		}
	}

	cfg := Config{Features: Default().Features}
	if err := yaml.UnmarshalWithOptions(data, &cfg, yaml.Strict()); err != nil {
		return nil, fmt.Errorf("config: decode\n%s", yaml.FormatError(err, true, true))
	}

	applyDefaults(&cfg)
	return &cfg, nil
}
