package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const maxConfigFileSize = 1024 * 1024

// Load loads configuration from a YAML file, then overrides with
// ADMIND_-prefixed environment variables.
//
// Precedence (highest to lowest):
//  1. Environment variables (ADMIND_SERVER_PORT, ADMIND_LOGGING_LEVEL, ...)
//  2. YAML config file
//  3. Hardcoded defaults
//
// configPath may be empty, in which case ~/.config/admind/config.yaml is
// used when it exists. A missing file is not an error.
//
// Environment variables map section-first:
//
//	ADMIND_SERVER_PORT              -> server.port
//	ADMIND_ORCHESTRATOR_DEFAULT_DOMAIN -> orchestrator.default_domain
//	ADMIND_MEMORY_PATH              -> memory.path
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configPath = filepath.Join(home, ".config", "admind", "config.yaml")
	}

	if _, err := os.Stat(configPath); err == nil {
		f, err := os.Open(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
		if info.Size() > maxConfigFileSize {
			return nil, fmt.Errorf("config file %s exceeds %d bytes", configPath, maxConfigFileSize)
		}

		content, err := io.ReadAll(f)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		// rawbytes avoids re-opening the file after the stat checks.
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// ADMIND_SECTION_FIELD_NAME -> section.field_name: split on the
	// first underscore after the prefix is stripped; the rest keeps its
	// underscores as one field name.
	if err := k.Load(env.Provider("ADMIND_", ".", func(s string) string {
		lower := strings.ToLower(strings.TrimPrefix(s, "ADMIND_"))
		parts := strings.SplitN(lower, "_", 2)
		if len(parts) == 1 {
			return lower
		}
		return parts[0] + "." + parts[1]
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}
