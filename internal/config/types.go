// Package config provides configuration loading for imagepipe.
package config

import (
	"fmt"
)

// Config is the process-wide pipeline configuration. A loaded Config is an
// immutable snapshot; hot reload swaps whole snapshots atomically via Store
// so readers never observe a partially-updated structure.
type Config struct {
	Aggressive   AggressiveConfig   `koanf:"aggressive"`
	Compression  CompressionConfig  `koanf:"compression"`
	Quality      QualityConfig      `koanf:"quality"`
	ContentAware ContentAwareConfig `koanf:"content_aware"`
	Fallback     FallbackConfig     `koanf:"fallback"`
	Cache        CacheConfig        `koanf:"cache"`
	Loader       LoaderConfig       `koanf:"loader"`
	Logging      LoggingConfig      `koanf:"logging"`
}

// AggressiveConfig controls dimension bounds and the aggressive profile.
type AggressiveConfig struct {
	Enabled           bool `koanf:"enabled"`
	MaxWidth          int  `koanf:"max_width"`
	MaxHeight         int  `koanf:"max_height"`
	MinWidth          int  `koanf:"min_width"`
	MinHeight         int  `koanf:"min_height"`
	ForceOptimization bool `koanf:"force_optimization"`
}

// CompressionConfig controls format conversion.
type CompressionConfig struct {
	EnableFormatConversion bool   `koanf:"enable_format_conversion"`
	PreferredFormat        string `koanf:"preferred_format"`
}

// QualityBounds holds per-format quality limits. All values are clamped to
// [0,100] on load.
type QualityBounds struct {
	Min     int `koanf:"min"`
	Max     int `koanf:"max"`
	Default int `koanf:"default"`
}

// QualityConfig holds quality bounds per target format.
type QualityConfig struct {
	JPEG QualityBounds `koanf:"jpeg"`
	PNG  QualityBounds `koanf:"png"`
	WebP QualityBounds `koanf:"webp"`
}

// ContentQuality holds per-content-type quality preferences. Zero means
// "use the format default".
type ContentQuality struct {
	Quality int `koanf:"quality"`
}

// ContentAwareConfig controls content-type quality tuning.
type ContentAwareConfig struct {
	Enabled  bool           `koanf:"enabled"`
	Text     ContentQuality `koanf:"text"`
	Logo     ContentQuality `koanf:"logo"`
	Graphics ContentQuality `koanf:"graphics"`
	Photo    ContentQuality `koanf:"photo"`
}

// FallbackConfig controls the degrading fallback chain.
type FallbackConfig struct {
	Enabled    bool `koanf:"enabled"`
	MaxRetries int  `koanf:"max_retries"`
	TimeoutMs  int  `koanf:"timeout_ms"`
}

// CacheConfig controls the reuse cache.
type CacheConfig struct {
	Enabled bool   `koanf:"enabled"`
	Path    string `koanf:"path"`
}

// LoaderConfig controls image reference resolution and fetching.
type LoaderConfig struct {
	UploadRoot    string `koanf:"upload_root"`
	UploadPrefix  string `koanf:"upload_prefix"`
	HTTPTimeoutMs int    `koanf:"http_timeout_ms"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Aggressive: AggressiveConfig{
			Enabled:           true,
			MaxWidth:          300,
			MaxHeight:         300,
			MinWidth:          50,
			MinHeight:         50,
			ForceOptimization: true,
		},
		Compression: CompressionConfig{
			EnableFormatConversion: true,
			PreferredFormat:        "png",
		},
		Quality: QualityConfig{
			JPEG: QualityBounds{Min: 30, Max: 85, Default: 60},
			PNG:  QualityBounds{Min: 40, Max: 90, Default: 70},
			WebP: QualityBounds{Min: 25, Max: 80, Default: 50},
		},
		ContentAware: ContentAwareConfig{
			Enabled:  true,
			Text:     ContentQuality{Quality: 75},
			Logo:     ContentQuality{Quality: 70},
			Graphics: ContentQuality{Quality: 60},
			Photo:    ContentQuality{Quality: 45},
		},
		Fallback: FallbackConfig{
			Enabled:    true,
			MaxRetries: 3,
			TimeoutMs:  30000,
		},
		Cache: CacheConfig{
			Enabled: true,
			Path:    "imagepipe-cache.db",
		},
		Loader: LoaderConfig{
			UploadPrefix:  "/uploads",
			HTTPTimeoutMs: 15000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// applyDefaults fills unset fields from Default and clamps quality values
// to [0,100].
func applyDefaults(cfg *Config) {
	def := Default()

	if cfg.Aggressive.MaxWidth == 0 {
		cfg.Aggressive.MaxWidth = def.Aggressive.MaxWidth
	}
	if cfg.Aggressive.MaxHeight == 0 {
		cfg.Aggressive.MaxHeight = def.Aggressive.MaxHeight
	}
	if cfg.Aggressive.MinWidth == 0 {
		cfg.Aggressive.MinWidth = def.Aggressive.MinWidth
	}
	if cfg.Aggressive.MinHeight == 0 {
		cfg.Aggressive.MinHeight = def.Aggressive.MinHeight
	}

	if cfg.Compression.PreferredFormat == "" {
		cfg.Compression.PreferredFormat = def.Compression.PreferredFormat
	}

	applyQualityDefaults(&cfg.Quality.JPEG, def.Quality.JPEG)
	applyQualityDefaults(&cfg.Quality.PNG, def.Quality.PNG)
	applyQualityDefaults(&cfg.Quality.WebP, def.Quality.WebP)

	if cfg.Fallback.MaxRetries == 0 {
		cfg.Fallback.MaxRetries = def.Fallback.MaxRetries
	}
	if cfg.Fallback.TimeoutMs == 0 {
		cfg.Fallback.TimeoutMs = def.Fallback.TimeoutMs
	}

	if cfg.Cache.Path == "" {
		cfg.Cache.Path = def.Cache.Path
	}

	if cfg.Loader.UploadPrefix == "" {
		cfg.Loader.UploadPrefix = def.Loader.UploadPrefix
	}
	if cfg.Loader.HTTPTimeoutMs == 0 {
		cfg.Loader.HTTPTimeoutMs = def.Loader.HTTPTimeoutMs
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = def.Logging.Level
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = def.Logging.Format
	}
}

func applyQualityDefaults(qb *QualityBounds, def QualityBounds) {
	if qb.Min == 0 && qb.Max == 0 && qb.Default == 0 {
		*qb = def
	}
	qb.Min = clampQuality(qb.Min)
	qb.Max = clampQuality(qb.Max)
	qb.Default = clampQuality(qb.Default)
}

func clampQuality(q int) int {
	if q < 0 {
		return 0
	}
	if q > 100 {
		return 100
	}
	return q
}

// Validate checks invariants that cannot be repaired by clamping.
func (c *Config) Validate() error {
	if c.Aggressive.MinWidth > c.Aggressive.MaxWidth {
		return fmt.Errorf("min width %d exceeds max width %d", c.Aggressive.MinWidth, c.Aggressive.MaxWidth)
	}
	if c.Aggressive.MinHeight > c.Aggressive.MaxHeight {
		return fmt.Errorf("min height %d exceeds max height %d", c.Aggressive.MinHeight, c.Aggressive.MaxHeight)
	}
	for _, qb := range []struct {
		name   string
		bounds QualityBounds
	}{
		{"jpeg", c.Quality.JPEG},
		{"png", c.Quality.PNG},
		{"webp", c.Quality.WebP},
	} {
		if qb.bounds.Min > qb.bounds.Max {
			return fmt.Errorf("%s quality min %d exceeds max %d", qb.name, qb.bounds.Min, qb.bounds.Max)
		}
	}
	switch c.Compression.PreferredFormat {
	case "jpeg", "png", "webp":
	default:
		return fmt.Errorf("unknown preferred format %q", c.Compression.PreferredFormat)
	}
	if c.Fallback.MaxRetries < 0 {
		return fmt.Errorf("fallback max retries must be >= 0, got %d", c.Fallback.MaxRetries)
	}
	if c.Fallback.TimeoutMs <= 0 {
		return fmt.Errorf("fallback timeout must be > 0, got %dms", c.Fallback.TimeoutMs)
	}
	return nil
}

// ContentQualityFor returns the configured quality for a content type, or 0
// when content-aware tuning is disabled or unset.
func (c *Config) ContentQualityFor(contentType string) int {
	if !c.ContentAware.Enabled {
		return 0
	}
	switch contentType {
	case "text":
		return c.ContentAware.Text.Quality
	case "logo":
		return c.ContentAware.Logo.Quality
	case "graphics":
		return c.ContentAware.Graphics.Quality
	case "photo":
		return c.ContentAware.Photo.Quality
	default:
		return 0
	}
}

// QualityFor returns the bounds for a target format name.
func (c *Config) QualityFor(format string) QualityBounds {
	switch format {
	case "png":
		return c.Quality.PNG
	case "webp":
		return c.Quality.WebP
	default:
		return c.Quality.JPEG
	}
}
