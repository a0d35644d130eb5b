// Package config loads margin's configuration from the platform-native
// backend, environment variables, and the platform secret store.
package config

import (
	"strings"
)

type Config struct {
	Server   ServerConfig
	Storage  StorageConfig
	Provider ProviderConfig
	Prompt   PromptConfig
	Log      LogConfig
}

type ServerConfig struct {
	Port int
}

type StorageConfig struct {
	DataDir string
}

type ProviderConfig struct {
	APIKey string
	Model  string
}

type PromptConfig struct {
	MaxContextTokens int
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4100,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Provider: ProviderConfig{
			Model: "anthropic/claude-sonnet-4",
		},
		Prompt: PromptConfig{
			MaxContextTokens: 4000,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the platform-native backend, environment
// variables, and the platform secret store.
//
// On macOS the backend is UserDefaults (domain: com.margin.app) and the API
// key falls back to macOS Keychain. On Linux the backend is a JSON file at
// $XDG_CONFIG_HOME/margin/config.json and the key falls back to the secrets
// file in the data directory.
//
// Environment variables (MARGIN_*) override backend values on all platforms.
// A missing API key is not an error: the server starts and the chat endpoint
// refuses turns until one is configured.
func Load() (Config, error) {
	return loadWith(newPlatformBackend(), keychainReader{})
}

// keychain abstracts secret store access for testing.
type keychain interface {
	Get(service, account string) (string, error)
}

func loadWith(b ConfigBackend, kc keychain) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if cfg.Provider.APIKey == "" {
		if key, err := kc.Get("margin", "openrouter_api_key"); err == nil && key != "" {
			cfg.Provider.APIKey = key
		}
	}

	return cfg, nil
}

// keychainReader reads from the platform secret store.
type keychainReader struct{}

func (keychainReader) Get(service, account string) (string, error) {
	out, err := keychainGet(service, account)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
