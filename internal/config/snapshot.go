package config

import (
	"crypto/sha256"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Snapshot returns a stable hash of the effective configuration, recorded in
// the run manifest so two runs can be compared.
func (c *Config) Snapshot() (string, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("marshal config: %w", err)
	}
	sum := sha256.Sum256(data)
	return fmt.Sprintf("%x", sum), nil
}
