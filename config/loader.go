package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"
)

const appName = "crawl-url"

// ErrConfigNotFound is returned when the configuration file does not exist.
var ErrConfigNotFound = errors.New("configuration file not found")

// fileNames are tried in the working directory and the XDG config dir.
var fileNames = []string{"crawl-url.toml", "crawl-url.yaml", "crawl-url.yml"}

// LoadFile reads a .toml, .yaml or .yml file over the defaults.
func LoadFile(path string) (*Config, error) {
	cfg := NewConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigNotFound
		}
		return nil, err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file %s: use .toml or .yaml", path)
	}
	return cfg, nil
}

// FindFile returns the configuration file to use, or "" when there is none:
// the explicit path if it exists, else crawl-url.{toml,yaml,yml} in the
// working directory, else the same names under $XDG_CONFIG_HOME/crawl-url.
func FindFile(explicit string) string {
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return explicit
		}
		return ""
	}

	for _, name := range fileNames {
		if _, err := os.Stat(name); err == nil {
			return name
		}
	}
	for _, name := range fileNames {
		if p, err := xdg.SearchConfigFile(filepath.Join(appName, name)); err == nil {
			return p
		}
	}
	return ""
}
