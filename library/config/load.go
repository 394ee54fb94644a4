// Package config loads gateway configuration from file, dotenv and environment.
package config

import (
	"os"
	"path/filepath"

	gconfig "github.com/Laisky/go-config/v2"
	"github.com/Laisky/zap"
	"github.com/joho/godotenv"

	"github.com/Laisky/laisky-mcp-gateway/library/log"
)

// LoadFromFile loads the YAML configuration at cfgPath into the shared config.
// A missing file is tolerated so the gateway can run purely from the environment.
func LoadFromFile(cfgPath string) {
	if cfgPath == "" {
		log.Logger.Info("no configuration file given, using environment only")
		return
	}
	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		log.Logger.Info("configuration file not found, using environment only",
			zap.String("config", cfgPath))
		return
	}

	gconfig.Shared.Set("cfg_dir", filepath.Dir(cfgPath))
	if err := gconfig.Shared.LoadFromFile(cfgPath); err != nil {
		log.Logger.Panic("load configuration",
			zap.Error(err),
			zap.String("config", cfgPath))
	}

	log.Logger.Info("load configuration",
		zap.String("config", cfgPath))
}

// LoadDotEnv loads KEY=VALUE pairs from the given dotenv files into the process
// environment without overriding variables that are already set.
func LoadDotEnv(paths ...string) {
	if len(paths) == 0 {
		paths = []string{".env"}
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			log.Logger.Warn("load dotenv", zap.Error(err), zap.String("path", path))
			continue
		}
		log.Logger.Debug("load dotenv", zap.String("path", path))
	}
}
