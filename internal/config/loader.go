package config

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	// envPrefix namespaces discoveryd environment variables:
	// DISCOVERYD_REASONING_API_KEY -> reasoning.api_key.
	envPrefix = "DISCOVERYD_"

	maxConfigFileSize = 1024 * 1024 // 1MB
)

// DefaultPath returns the default config file location,
// ~/.config/discoveryd/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".config", "discoveryd", "config.yaml"), nil
}

// Load reads configuration with the precedence (highest to lowest):
//
//  1. Environment variables (DISCOVERYD_SERVER_ADDR, ...)
//  2. YAML config file
//  3. Defaults
//
// An empty configPath uses DefaultPath; a missing file is not an error.
// An existing file must be owner-only (0600) and at most 1MB.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath == "" {
		var err error
		configPath, err = DefaultPath()
		if err != nil {
			return nil, err
		}
	}

	if _, err := os.Stat(configPath); err == nil {
		content, err := readConfigFile(configPath)
		if err != nil {
			return nil, err
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
		}
	}

	// Environment variables: strip the prefix, then split section from
	// field on the first underscore. Underscores inside field names are
	// preserved (DISCOVERYD_REASONING_REQUESTS_PER_SECOND ->
	// reasoning.requests_per_second).
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		lower := strings.ToLower(strings.TrimPrefix(s, envPrefix))
		parts := strings.SplitN(lower, "_", 2)
		if len(parts) == 1 {
			return lower
		}
		return parts[0] + "." + parts[1]
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// readConfigFile opens, validates and reads the config file through one
// file descriptor to avoid a TOCTOU race between validation and read.
func readConfigFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if err := validateConfigFile(info); err != nil {
		return nil, fmt.Errorf("config file validation failed: %w", err)
	}

	content, err := io.ReadAll(io.LimitReader(f, maxConfigFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if len(content) > maxConfigFileSize {
		return nil, fmt.Errorf("config file exceeds %d bytes", maxConfigFileSize)
	}
	return content, nil
}

// validateConfigFile rejects group/world-accessible config files; the file
// may hold the reasoning API key.
func validateConfigFile(info fs.FileInfo) error {
	if !info.Mode().IsRegular() {
		return fmt.Errorf("config must be a regular file")
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		return fmt.Errorf("config file permissions %04o are too open; use 0600", perm)
	}
	if info.Size() > maxConfigFileSize {
		return fmt.Errorf("config file exceeds %d bytes", maxConfigFileSize)
	}
	return nil
}

// EnsureConfigDir creates the discoveryd config directory with owner-only
// permissions if it does not exist.
func EnsureConfigDir() error {
	path, err := DefaultPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return nil
}
