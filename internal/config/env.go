package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

// LoadEnvFiles loads KEY=VALUE files into the process environment before the
// configuration is parsed. Missing files are skipped and variables that are
// already set keep their value. It returns the files that were applied.
func LoadEnvFiles(paths ...string) ([]string, error) {
	var loaded []string
	for _, path := range paths {
		path = strings.TrimSpace(path)
		if path == "" {
			continue
		}
		expanded, err := expandPath(path)
		if err != nil {
			return loaded, err
		}
		info, err := os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return loaded, fmt.Errorf("stat env file: %w", err)
		}
		if info.IsDir() {
			continue
		}
		if err := godotenv.Load(expanded); err != nil {
			return loaded, fmt.Errorf("load env file %s: %w", expanded, err)
		}
		loaded = append(loaded, expanded)
	}
	return loaded, nil
}

// DefaultEnvFiles returns the env files consulted for a given config path: a
// .env beside the config file and one in the working directory.
func DefaultEnvFiles(configPath string) []string {
	files := []string{".env"}
	if configPath != "" {
		files = append(files, filepath.Join(filepath.Dir(configPath), ".env"))
	}
	return files
}
