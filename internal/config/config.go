// Package config resolves guard settings from an optional YAML file with
// environment-variable overrides. Env always wins, so ad-hoc overrides like
// GUARD_LOG_LEVEL=all keep working with a config file in place.
package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds the guard's settings.
type Config struct {
	// DBPath is where the audit database lives.
	DBPath string `yaml:"db_path"`
	// LogLevel is off, actions, or all.
	LogLevel string `yaml:"log_level"`
	// CommandRules and URLRules name JSON files with extra rules.
	CommandRules string `yaml:"command_rules"`
	URLRules     string `yaml:"url_rules"`
	// Debug enables the zap diagnostic log.
	Debug bool `yaml:"debug"`

	Escalation Escalation `yaml:"escalation"`
}

// Escalation configures the optional LLM escalation daemon.
type Escalation struct {
	Enabled    bool   `yaml:"enabled"`
	Model      string `yaml:"model"`
	SocketPath string `yaml:"socket_path"`
	PIDPath    string `yaml:"pid_path"`
}

// Default returns the built-in settings.
func Default() Config {
	home, _ := os.UserHomeDir()
	return Config{
		DBPath:   filepath.Join(home, ".claude", "logs", "toolguard.db"),
		LogLevel: "actions",
		Escalation: Escalation{
			SocketPath: filepath.Join(home, ".claude", "toolguard-escalate.sock"),
			PIDPath:    filepath.Join(home, ".claude", "toolguard-escalate.pid"),
		},
	}
}

// Load resolves the effective config: defaults, then the YAML file named by
// GUARD_CONFIG (or ~/.config/toolguard/config.yaml when present), then env
// vars. A broken config file is ignored; the guard must still run.
func Load() Config {
	cfg := Default()

	path := os.Getenv("GUARD_CONFIG")
	if path == "" {
		if home, err := os.UserHomeDir(); err == nil {
			candidate := filepath.Join(home, ".config", "toolguard", "config.yaml")
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
			}
		}
	}
	if path != "" {
		if data, err := os.ReadFile(path); err == nil {
			yaml.Unmarshal(data, &cfg)
		}
	}

	applyEnv(&cfg)
	return cfg
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("GUARD_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("GUARD_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("COMMAND_GUARD_EXTRA_RULES"); v != "" {
		cfg.CommandRules = v
	}
	if v := os.Getenv("URL_GUARD_EXTRA_RULES"); v != "" {
		cfg.URLRules = v
	}
	if v := os.Getenv("GUARD_DEBUG"); v == "1" {
		cfg.Debug = true
	}
	if v := os.Getenv("GUARD_ESCALATION"); v == "1" {
		cfg.Escalation.Enabled = true
	}
	if v := os.Getenv("GUARD_ESCALATION_MODEL"); v != "" {
		cfg.Escalation.Model = v
	}
}
