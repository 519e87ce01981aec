package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is used by the CLI when CONFIG_FILE and --config are unset.
// A missing file at this path is not an error.
const DefaultConfigPath = "licverify.yml"

// loadFile overlays the YAML file at path onto cfg. Keys absent from the file
// keep their current values. A missing file leaves cfg unchanged.
func loadFile(path string, cfg *ServerConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}

	return nil
}
