package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// TomlSource represents a source entry inside a pack
type TomlSource struct {
	Name   string         `toml:"name"`
	Type   string         `toml:"type"`
	Config map[string]any `toml:"config"`
}

// TomlPack represents a starter pack configuration
type TomlPack struct {
	Slug        string       `toml:"slug"`
	Name        string       `toml:"name"`
	Description string       `toml:"description,omitempty"`
	Public      bool         `toml:"public"`
	Sources     []TomlSource `toml:"sources"`
}

// TomlConfig represents the top-level seed configuration
type TomlConfig struct {
	Packs []TomlPack `toml:"packs"`
}

func LoadConfig(path string) (*TomlConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config TomlConfig
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return &config, nil
}
