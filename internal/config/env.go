package config

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"git.home.luguber.info/inful/dita2docbook/internal/logfields"
)

// loadEnvFiles loads environment variables from .env/.env.local files found in
// the working directory and next to the root map. godotenv.Load never overrides
// variables that are already set in the process environment.
func loadEnvFiles(mapDir string, logger *slog.Logger) {
	dirs := []string{"."}
	if mapDir != "" && mapDir != "." {
		dirs = append(dirs, mapDir)
	}
	for _, dir := range dirs {
		for _, name := range []string{".env", ".env.local"} {
			path := filepath.Join(dir, name)
			if _, err := os.Stat(path); err != nil {
				continue
			}
			if err := godotenv.Load(path); err != nil {
				logger.Warn("Failed to load environment file", logfields.Path(path), logfields.Error(err))
				continue
			}
			logger.Debug("Loaded environment variables", logfields.Path(path))
		}
	}
}
