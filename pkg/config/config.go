package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Provider   ProviderConfig   `json:"provider"`
	Generation GenerationConfig `json:"generation"`
	Storage    StorageConfig    `json:"storage"`
	Refresh    RefreshConfig    `json:"refresh"`
	mu         sync.RWMutex
}

type ProviderConfig struct {
	APIKey  string `json:"api_key" env:"PERSONAGEN_PROVIDER_API_KEY"`
	APIBase string `json:"api_base" env:"PERSONAGEN_PROVIDER_API_BASE"`
	Model   string `json:"model" env:"PERSONAGEN_PROVIDER_MODEL"`
	Proxy   string `json:"proxy,omitempty" env:"PERSONAGEN_PROVIDER_PROXY"`
}

type GenerationConfig struct {
	MaxRetries  int     `json:"max_retries" env:"PERSONAGEN_GENERATION_MAX_RETRIES"`
	Temperature float64 `json:"temperature" env:"PERSONAGEN_GENERATION_TEMPERATURE"`
}

type StorageConfig struct {
	// Backend is "sqlite" or "memory".
	Backend string `json:"backend" env:"PERSONAGEN_STORAGE_BACKEND"`
	Path    string `json:"path" env:"PERSONAGEN_STORAGE_PATH"`
}

type RefreshConfig struct {
	Enabled bool `json:"enabled" env:"PERSONAGEN_REFRESH_ENABLED"`
	// Schedule is a cron expression evaluated once a minute.
	Schedule string `json:"schedule" env:"PERSONAGEN_REFRESH_SCHEDULE"`
	// Concurrency bounds parallel re-synthesis during a refresh sweep.
	Concurrency int `json:"concurrency" env:"PERSONAGEN_REFRESH_CONCURRENCY"`
}

func DefaultConfig() *Config {
	return &Config{
		Provider: ProviderConfig{
			APIBase: "https://openrouter.ai/api/v1",
			Model:   "openai/gpt-5.2",
		},
		Generation: GenerationConfig{
			MaxRetries:  3,
			Temperature: 0.2,
		},
		Storage: StorageConfig{
			Backend: "sqlite",
			Path:    "~/.personagen/personas.db",
		},
		Refresh: RefreshConfig{
			Enabled:     false,
			Schedule:    "0 4 * * *",
			Concurrency: 4,
		},
	}
}

func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if err := env.Parse(cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, err
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func SaveConfig(path string, cfg *Config) error {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

func (c *Config) StoragePath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return expandHome(c.Storage.Path)
}

func (c *Config) GetAPIKey() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Provider.APIKey
}

func (c *Config) GetAPIBase() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.Provider.APIBase != "" {
		return c.Provider.APIBase
	}
	return "https://openrouter.ai/api/v1"
}

func expandHome(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		home, _ := os.UserHomeDir()
		if len(path) > 1 && path[1] == '/' {
			return home + path[1:]
		}
		return home
	}
	return path
}
