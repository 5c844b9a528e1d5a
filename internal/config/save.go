package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// SaveTo writes the configuration to the given path as YAML.
// The file mode is 0600 because the config may contain API keys.
func SaveTo(cfg *Config, path string) error {
	expandedPath, err := ExpandPath(path)
	if err != nil {
		return err
	}

	dir := filepath.Dir(expandedPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	return os.WriteFile(expandedPath, data, 0600)
}
