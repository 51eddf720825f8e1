package config

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	maxConfigFileSize = 1024 * 1024 // 1MB

	// envPrefix scopes environment overrides, e.g. IMAGEPIPE_FALLBACK_MAX_RETRIES.
	envPrefix = "IMAGEPIPE_"
)

// Load reads configuration from a YAML file, then overrides with environment
// variables.
//
// Precedence (highest to lowest):
//  1. Environment variables (IMAGEPIPE_AGGRESSIVE_MAX_WIDTH, ...)
//  2. YAML config file
//  3. Built-in defaults
//
// A missing file is not an error; defaults plus environment apply. Files
// larger than 1MB are rejected.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			f, err := os.Open(configPath)
			if err != nil {
				return nil, fmt.Errorf("failed to open config file: %w", err)
			}
			defer f.Close()

			// Stat through the open descriptor to avoid a TOCTOU race.
			info, err := f.Stat()
			if err != nil {
				return nil, fmt.Errorf("failed to stat config file: %w", err)
			}
			if info.Size() > maxConfigFileSize {
				return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
			}

			content, err := io.ReadAll(f)
			if err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}

			if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
			}
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKeyToPath), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	// Unmarshal over the defaults so keys absent from file and environment
	// keep their built-in values, booleans included.
	cfg := *Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// envKeyToPath maps an environment variable onto its config key. Single-word
// sections split on the first underscore; the content_aware section and the
// per-format quality bounds nest deeper and are mapped explicitly.
//
//	IMAGEPIPE_AGGRESSIVE_MAX_WIDTH         -> aggressive.max_width
//	IMAGEPIPE_FALLBACK_TIMEOUT_MS          -> fallback.timeout_ms
//	IMAGEPIPE_QUALITY_JPEG_MIN             -> quality.jpeg.min
//	IMAGEPIPE_CONTENT_AWARE_ENABLED        -> content_aware.enabled
//	IMAGEPIPE_CONTENT_AWARE_PHOTO_QUALITY  -> content_aware.photo.quality
func envKeyToPath(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, envPrefix))

	if rest, ok := strings.CutPrefix(key, "content_aware_"); ok {
		for _, ct := range []string{"text", "logo", "graphics", "photo"} {
			if rest == ct+"_quality" {
				return "content_aware." + ct + ".quality"
			}
		}
		return "content_aware." + rest
	}

	for _, format := range []string{"jpeg", "png", "webp"} {
		if rest, ok := strings.CutPrefix(key, "quality_"+format+"_"); ok {
			return "quality." + format + "." + rest
		}
	}

	parts := strings.SplitN(key, "_", 2)
	if len(parts) == 1 {
		return key
	}
	return parts[0] + "." + parts[1]
}
