package utils

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

const (
	envFileFlag   = "--env-file"
	envFileEnvVar = "ENV_FILE"
)

// LoadEnvFile loads environment variables from a file.
// Priority: --env-file flag > ENV_FILE environment variable > .env in working directory
func LoadEnvFile() error {
	if path := envFilePath(); path != "" {
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("loading env file %s: %w", path, err)
		}
		return nil
	}

	err := godotenv.Load()
	if err == nil || errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("loading .env file: %w", err)
}

// envFilePath resolves the env file path from the flag or environment
// variable, made absolute when relative.
func envFilePath() string {
	path := parseEnvFileFlag()
	if path == "" {
		path = os.Getenv(envFileEnvVar)
	}
	if path == "" || filepath.IsAbs(path) {
		return path
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return absPath
}

// parseEnvFileFlag checks command-line arguments for the --env-file flag. It
// runs before cobra parses flags, so it scans os.Args directly.
func parseEnvFileFlag() string {
	for i, arg := range os.Args {
		if arg == envFileFlag && i+1 < len(os.Args) {
			return os.Args[i+1]
		}
		if strings.HasPrefix(arg, envFileFlag+"=") {
			return strings.TrimPrefix(arg, envFileFlag+"=")
		}
	}
	return ""
}
