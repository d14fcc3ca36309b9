package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config represents runtime configuration for the service.
type Config struct {
	BasicConfig BasicConfig               `json:"basic_config"`
	Databases   map[string]DatabaseConfig `json:"databases"`
	Redis       RedisConfig               `json:"redis"`
	Providers   map[string]ProviderConfig `json:"providers"`
}

type BasicConfig struct {
	ServerAddress   string `json:"server_address"`
	Provider        string `json:"provider"`
	SessionTTLHours int    `json:"session_ttl_hours"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DBName   string `json:"db_name"`
	Params   string `json:"params"`
}

type RedisConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

type ProviderConfig struct {
	BaseURL string `json:"base_url"`
	Model   string `json:"model"`
	APIKey  string `json:"api_key"`
}

// DefaultProvider is used when basic_config.provider is not set.
const DefaultProvider = "openrouter"

// Load reads configuration from the provided path (defaults to config.json).
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.json"
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	file, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("open config %s: %w", absPath, err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if cfg.BasicConfig.Provider == "" {
		cfg.BasicConfig.Provider = DefaultProvider
	}
	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides lets deployment secrets take precedence over the file.
func applyEnvOverrides(cfg *Config) {
	if key := os.Getenv("OPENROUTER_API_KEY"); key != "" {
		if cfg.Providers == nil {
			cfg.Providers = make(map[string]ProviderConfig)
		}
		prov := cfg.Providers[DefaultProvider]
		prov.APIKey = key
		if prov.BaseURL == "" {
			prov.BaseURL = "https://openrouter.ai/api/v1"
		}
		cfg.Providers[DefaultProvider] = prov
	}
}

// ActiveProvider returns the configured provider name and its settings.
func (c *Config) ActiveProvider() (string, ProviderConfig, error) {
	name := c.BasicConfig.Provider
	if name == "" {
		name = DefaultProvider
	}
	prov, ok := c.Providers[name]
	if !ok {
		return "", ProviderConfig{}, fmt.Errorf("provider %s not configured", name)
	}
	return name, prov, nil
}
