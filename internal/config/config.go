package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"keywarden/pkg/logging"
	"keywarden/pkg/oauth"
)

const (
	userConfigDir  = ".config/keywarden"
	configFileName = "config.yaml"
)

// Storage backend names accepted in the config file.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendRedis  = "redis"
)

// Config is the top-level keywarden configuration.
type Config struct {
	OAuth   oauth.OAuthConfig `yaml:"oauth"`
	Storage StorageConfig     `yaml:"storage"`

	// CallbackPort is the port for the local login callback server.
	// 0 picks a random free port.
	CallbackPort int `yaml:"callbackPort,omitempty"`
}

// StorageConfig selects and configures the storage backend.
type StorageConfig struct {
	// Backend is one of "memory", "file", "redis". Defaults to "file".
	Backend string `yaml:"backend"`

	// Dir is the record directory for the file backend.
	Dir string `yaml:"dir,omitempty"`

	// Redis configures the redis backend.
	Redis RedisConfig `yaml:"redis,omitempty"`
}

// RedisConfig holds connection settings for the redis backend.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
	Prefix   string `yaml:"prefix,omitempty"`
}

// DefaultConfig returns the configuration used when no config file exists.
func DefaultConfig() Config {
	return Config{
		Storage: StorageConfig{
			Backend: BackendFile,
		},
	}
}

// DefaultConfigPath returns the default config directory path.
func DefaultConfigPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine user config directory: %w", err)
	}
	return filepath.Join(homeDir, userConfigDir), nil
}

// Load loads the configuration from configPath/config.yaml, falling back to
// defaults when the file does not exist.
func Load(configPath string) (Config, error) {
	configFilePath := filepath.Join(configPath, configFileName)
	config := DefaultConfig()

	data, err := os.ReadFile(configFilePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logging.Info("Config", "No config.yaml found at %s, using defaults", configFilePath)
			return config, nil
		}
		return Config{}, fmt.Errorf("error reading config from %s: %w", configFilePath, err)
	}

	if err := yaml.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("error parsing config from %s: %w", configFilePath, err)
	}

	if config.Storage.Backend == "" {
		config.Storage.Backend = BackendFile
	}

	logging.Debug("Config", "Loaded configuration from %s", configFilePath)
	return config, nil
}
