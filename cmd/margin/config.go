package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const (
	storeJSON   = "json"
	storeSQLite = "sqlite"
)

// Config is the resolved CLI configuration.
type Config struct {
	Provider       string `yaml:"provider"`
	APIKey         string `yaml:"api_key"`
	BaseURL        string `yaml:"base_url"`
	Model          string `yaml:"model"`
	ChatModel      string `yaml:"chat_model"`
	SummaryModel   string `yaml:"summary_model"`
	TokenThreshold int    `yaml:"token_threshold"`
	TailSize       int    `yaml:"tail_size"`
	Store          string `yaml:"store"`
	DataDir        string `yaml:"data_dir"`
	LogFile        string `yaml:"log_file"`
	LogLevel       string `yaml:"log_level"`
	OllamaHost     string `yaml:"ollama_host"`

	// keys holds provider-specific credentials from the environment, keyed
	// by provider name. APIKey wins over them.
	keys map[string]string
}

// lookupFunc reads one environment variable. main passes os.LookupEnv.
type lookupFunc func(key string) (string, bool)

// defaultConfigPath returns $XDG_CONFIG_HOME/margin/config.yaml, falling
// back to ~/.config.
func defaultConfigPath(lookup lookupFunc) string {
	return filepath.Join(xdgDir(lookup, "XDG_CONFIG_HOME", ".config"), "margin", "config.yaml")
}

// defaultDataDir returns $XDG_DATA_HOME/margin, falling back to
// ~/.local/share.
func defaultDataDir(lookup lookupFunc) string {
	return filepath.Join(xdgDir(lookup, "XDG_DATA_HOME", filepath.Join(".local", "share")), "margin")
}

func xdgDir(lookup lookupFunc, env, fallback string) string {
	if dir, ok := lookup(env); ok && dir != "" {
		return dir
	}
	home, _ := lookup("HOME")
	if home == "" {
		home = "."
	}
	return filepath.Join(home, fallback)
}

// loadConfig reads the YAML file at path and applies environment
// overrides. A missing file is tolerated only when path is the default
// location.
func loadConfig(path string, lookup lookupFunc) (Config, error) {
	def := defaultConfigPath(lookup)
	if path == "" {
		path = def
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
	case errors.Is(err, os.ErrNotExist) && path == def:
		data = nil
	default:
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return parseConfig(data, lookup)
}

// parseConfig decodes data, applies environment overrides and fills
// defaults. It does no I/O.
func parseConfig(data []byte, lookup lookupFunc) (Config, error) {
	var cfg Config
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}

	override := func(dst *string, env string) {
		if v, ok := lookup(env); ok && v != "" {
			*dst = v
		}
	}
	override(&cfg.Provider, "MARGIN_PROVIDER")
	override(&cfg.APIKey, "MARGIN_API_KEY")
	override(&cfg.Model, "MARGIN_MODEL")
	override(&cfg.ChatModel, "MARGIN_CHAT_MODEL")
	override(&cfg.DataDir, "MARGIN_DATA_DIR")
	override(&cfg.LogLevel, "MARGIN_LOG_LEVEL")
	override(&cfg.OllamaHost, "OLLAMA_HOST")

	cfg.keys = make(map[string]string)
	for name, env := range providerKeyEnv {
		if v, ok := lookup(env); ok && v != "" {
			cfg.keys[name] = v
		}
	}

	if cfg.Store == "" {
		cfg.Store = storeJSON
	}
	if cfg.Store != storeJSON && cfg.Store != storeSQLite {
		return Config{}, fmt.Errorf("unknown store %q: must be %q or %q", cfg.Store, storeJSON, storeSQLite)
	}
	if cfg.TokenThreshold < 0 {
		return Config{}, fmt.Errorf("token_threshold must not be negative: %d", cfg.TokenThreshold)
	}
	if cfg.TailSize < 0 {
		return Config{}, fmt.Errorf("tail_size must not be negative: %d", cfg.TailSize)
	}
	if cfg.DataDir == "" {
		cfg.DataDir = defaultDataDir(lookup)
	}
	if cfg.LogFile == "" {
		cfg.LogFile = filepath.Join(cfg.DataDir, "margin.log")
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "INFO"
	}
	if _, err := parseLevel(cfg.LogLevel); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
