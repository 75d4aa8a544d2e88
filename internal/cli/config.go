package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/TimurManjosov/gotreasury/internal/authz"
)

// Config represents the CLI configuration
type Config struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	// KeyFile points at a hex-encoded ed25519 seed used to sign mutations.
	KeyFile string       `yaml:"key_file"`
	Domain  DomainConfig `yaml:"domain"`
}

// DomainConfig pins signatures to one deployment. It must match the server's
// domain settings or every mutation will be rejected.
type DomainConfig struct {
	Name     string `yaml:"name"`
	Version  string `yaml:"version"`
	ChainID  uint64 `yaml:"chain_id"`
	Contract string `yaml:"contract"`
}

// ToDomain converts the yaml form into the signing domain.
func (d DomainConfig) ToDomain() authz.Domain {
	return authz.Domain{Name: d.Name, Version: d.Version, ChainID: d.ChainID, Contract: d.Contract}
}

// GetConfigPath returns the path to the config file
func GetConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".treasuryctl", "config.yaml"), nil
}

// LoadConfig loads the configuration from file
func LoadConfig() (*Config, error) {
	configPath, err := GetConfigPath()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// Return defaults if file doesn't exist
			return &Config{
				BaseURL: "http://localhost:8080",
				Domain:  DomainConfig{Name: "gotreasury", Version: "1", ChainID: 31337},
			}, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return &cfg, nil
}

// SaveConfig saves the configuration to file
func SaveConfig(cfg *Config) error {
	configPath, err := GetConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(configPath), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
