package persistence

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/tribelands/server/internal/world"
)

// fallbackAdminPassword is used when no admin seed is configured. It is
// deliberately useless for production; initialization warns about it.
const fallbackAdminPassword = "tribelands-admin"

// tuningFile optionally overrides map-generation defaults.
const tuningFile = "mapgen.yaml"

// Config is the environment-provided configuration consumed at
// initialization.
type Config struct {
	DataDir       string `env:"TRIBELANDS_DATA_DIR" envDefault:"data"`
	DSN           string `env:"TRIBELANDS_DB"`
	AdminPassword string `env:"TRIBELANDS_ADMIN_PASSWORD"`
	Port          int    `env:"TRIBELANDS_PORT" envDefault:"8080"`
	AdminKey      string `env:"TRIBELANDS_ADMIN_KEY"`
}

// LoadConfig reads configuration from the environment and applies the
// documented fallbacks.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.DSN == "" {
		cfg.DSN = filepath.Join(cfg.DataDir, "tribelands.db")
	}
	if cfg.AdminPassword == "" {
		slog.Warn("TRIBELANDS_ADMIN_PASSWORD not set, using fixed fallback")
		cfg.AdminPassword = fallbackAdminPassword
	}
	return cfg, nil
}

// GenSettings returns the map-generation configuration: the defaults,
// overridden by a mapgen.yaml tuning file in the data directory when
// one exists.
func (c Config) GenSettings() world.GenConfig {
	gen := world.DefaultGenConfig()

	data, err := os.ReadFile(filepath.Join(c.DataDir, tuningFile))
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("map tuning file unreadable, using defaults", "error", err)
		}
		return gen
	}
	if err := yaml.Unmarshal(data, &gen); err != nil {
		slog.Warn("map tuning file malformed, using defaults", "error", err)
		return world.DefaultGenConfig()
	}
	slog.Info("map tuning loaded", "file", tuningFile)
	return gen
}
