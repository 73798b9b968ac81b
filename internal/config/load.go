package config

import (
	"fmt"
	"os"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is where the image build places the configuration.
const DefaultConfigPath = "/etc/k3sinit/config.yaml"

// LoadFile reads and parses the configuration from a YAML file, applies
// environment overrides and defaults, and validates the result.
func LoadFile(path string) (*Config, error) {
	// #nosec G304 - path comes from the --config flag or the default
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var rawConfig map[string]interface{}
	if err := yaml.Unmarshal(data, &rawConfig); err != nil {
		return nil, fmt.Errorf("failed to unmarshal yaml: %w", err)
	}

	var cfg Config
	if err := mapstructure.Decode(rawConfig, &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	applyEnvOverrides(&cfg)
	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// applyEnvOverrides lets deploy tooling override the templated identity
// values without rewriting the config file.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("K3SINIT_CLUSTER_ID"); v != "" {
		cfg.ClusterID = v
	}
	if v := os.Getenv("K3SINIT_BUCKET"); v != "" {
		cfg.Bucket = v
	}
	if v := os.Getenv("K3SINIT_REGION"); v != "" {
		cfg.Region = v
	}
}
