package web

import (
	"encoding/json"
	"os"

	"github.com/emu-entities/internal/config"
)

// Config represents the web server configuration
type Config struct {
	Server ServerConfig `json:"server"`
	Auth   AuthConfig   `json:"auth"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port int    `json:"port"`
	Host string `json:"host"`
}

// AuthConfig contains authentication settings. An empty APIKey disables the check.
type AuthConfig struct {
	APIKey string `json:"api_key"`
}

// LoadConfig loads configuration from a JSON file
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// DefaultConfig returns a configuration built from WEB_* environment variables
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: config.GetEnvInt("WEB_PORT", 8080),
			Host: config.GetEnv("WEB_HOST", "0.0.0.0"),
		},
		Auth: AuthConfig{
			APIKey: config.GetEnv("WEB_API_KEY", ""),
		},
	}
}
