// Package config provides configuration management for nmvpn.
// It handles loading, saving, and managing application settings.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/mbeltran/nmvpn/common"
)

// Config represents the application configuration.
// All settings are persisted to a YAML file in the user's config directory.
type Config struct {
	// APIURL is the base URL of the provider API.
	APIURL string `yaml:"api_url"`
	// DefaultProtocol is the transport used for generated profiles when
	// none is given on the command line: "udp" or "tcp".
	DefaultProtocol string `yaml:"default_protocol"`
	// CAFile is the path to the provider CA certificate referenced by
	// generated profiles.
	CAFile string `yaml:"ca_file"`
	// LogLevel is the minimum log level: debug, info, warn or error.
	LogLevel string `yaml:"log_level"`
	// ShowNotifications enables connection event messages on the terminal.
	ShowNotifications bool `yaml:"show_notifications"`
}

// DefaultAPIURL is the provider endpoint used when none is configured.
const DefaultAPIURL = "https://api.protonmail.ch"

// DefaultConfig returns the default configuration.
// These are sensible defaults for most users.
func DefaultConfig() *Config {
	caFile := ""
	if dir, err := common.GetConfigDir(); err == nil {
		caFile = filepath.Join(dir, "ca.crt")
	}
	return &Config{
		APIURL:            DefaultAPIURL,
		DefaultProtocol:   common.ProtocolUDP,
		CAFile:            caFile,
		LogLevel:          "info",
		ShowNotifications: true,
	}
}

// Load loads the configuration from the config file.
// If the file doesn't exist, it creates one with default values.
func Load() (*Config, error) {
	configPath, err := getConfigPath()
	if err != nil {
		return nil, err
	}

	// If it doesn't exist, return default configuration
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		if err := cfg.Save(); err != nil {
			return cfg, err
		}
		return cfg, nil
	}

	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrConfigLoad, err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true) // Strict validation: reject unknown fields

	var config Config
	if err := decoder.Decode(&config); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrConfigLoad, err)
	}

	// Validate values
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrConfigLoad, err)
	}

	return &config, nil
}

// validate verifies that configuration values are valid
func (c *Config) validate() error {
	if c.APIURL == "" {
		c.APIURL = DefaultAPIURL
	}

	if c.DefaultProtocol != common.ProtocolUDP && c.DefaultProtocol != common.ProtocolTCP {
		c.DefaultProtocol = common.ProtocolUDP // Fallback to default
	}

	validLevels := []string{"debug", "info", "warn", "error"}
	if !common.StringInSlice(c.LogLevel, validLevels) {
		c.LogLevel = "info" // Fallback to default
	}
	return nil
}

// Save saves the configuration to the file
func (c *Config) Save() error {
	configPath, err := getConfigPath()
	if err != nil {
		return err
	}

	// Create directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(configPath), 0700); err != nil {
		return fmt.Errorf("%w: %v", common.ErrConfigSave, err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrConfigSave, err)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("%w: %v", common.ErrConfigSave, err)
	}

	return nil
}

func getConfigPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("error getting home directory: %w", err)
	}

	return filepath.Join(homeDir, ".config", common.ConfigDirName, common.ConfigFileName), nil
}
