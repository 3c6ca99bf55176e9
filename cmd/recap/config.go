package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/recapforge/recap/internal/config"
)

// loadConfig resolves the config file (--config flag, then
// ./config.yaml, then {home}/config.yaml) and loads it, writing a
// default file on first run. Shared by every subcommand that needs a
// running Config.
func loadConfig(logger *slog.Logger) (*config.Manager, error) {
	home, err := homePath()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(home, 0o755); err != nil {
		return nil, fmt.Errorf("create home dir: %w", err)
	}

	configFile := cfgFile
	if configFile == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			configFile = "config.yaml"
		} else {
			configFile = filepath.Join(home, "config.yaml")
		}
	}

	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		logger.Info("creating default config", "path", configFile)
		if err := config.WriteDefault(configFile); err != nil {
			logger.Warn("failed to write default config", "error", err)
		}
	}

	cfgMgr, err := config.NewManager(configFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfgMgr.WatchConfig()
	logger.Info("configuration loaded", "file", configFile)
	return cfgMgr, nil
}

// homePath returns --home if set, else ~/.recap.
func homePath() (string, error) {
	if homeDir != "" {
		return homeDir, nil
	}
	dir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(dir, ".recap"), nil
}
