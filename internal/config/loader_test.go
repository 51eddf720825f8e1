package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "imagepipe.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Run("empty path", func(t *testing.T) {
		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, Default(), cfg)
	})

	t.Run("missing file is not an error", func(t *testing.T) {
		cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		require.NoError(t, err)
		assert.Equal(t, Default(), cfg)
	})

	t.Run("defaults keep booleans on", func(t *testing.T) {
		cfg, err := Load("")
		require.NoError(t, err)
		assert.True(t, cfg.Fallback.Enabled)
		assert.True(t, cfg.Cache.Enabled)
		assert.True(t, cfg.ContentAware.Enabled)
		assert.True(t, cfg.Compression.EnableFormatConversion)
	})
}

func TestLoad_YAMLFile(t *testing.T) {
	path := writeConfig(t, `
aggressive:
  max_width: 400
  max_height: 350
quality:
  jpeg:
    min: 20
    max: 90
    default: 55
fallback:
  enabled: false
  max_retries: 5
compression:
  preferred_format: webp
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 400, cfg.Aggressive.MaxWidth)
	assert.Equal(t, 350, cfg.Aggressive.MaxHeight)
	assert.Equal(t, QualityBounds{Min: 20, Max: 90, Default: 55}, cfg.Quality.JPEG)
	assert.False(t, cfg.Fallback.Enabled)
	assert.Equal(t, 5, cfg.Fallback.MaxRetries)
	assert.Equal(t, "webp", cfg.Compression.PreferredFormat)

	// Untouched sections keep their defaults.
	assert.Equal(t, Default().Quality.PNG, cfg.Quality.PNG)
	assert.Equal(t, 50, cfg.Aggressive.MinWidth)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
aggressive:
  max_width: 400
`)
	t.Setenv("IMAGEPIPE_AGGRESSIVE_MAX_WIDTH", "500")
	t.Setenv("IMAGEPIPE_FALLBACK_TIMEOUT_MS", "10000")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 500, cfg.Aggressive.MaxWidth)
	assert.Equal(t, 10000, cfg.Fallback.TimeoutMs)
}

func TestLoad_EnvNestedSections(t *testing.T) {
	t.Setenv("IMAGEPIPE_CONTENT_AWARE_ENABLED", "false")
	t.Setenv("IMAGEPIPE_CONTENT_AWARE_PHOTO_QUALITY", "35")
	t.Setenv("IMAGEPIPE_QUALITY_JPEG_MIN", "10")
	t.Setenv("IMAGEPIPE_QUALITY_WEBP_DEFAULT", "65")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.False(t, cfg.ContentAware.Enabled)
	assert.Equal(t, 35, cfg.ContentAware.Photo.Quality)
	assert.Equal(t, 10, cfg.Quality.JPEG.Min)
	assert.Equal(t, 65, cfg.Quality.WebP.Default)
}

func TestEnvKeyToPath(t *testing.T) {
	tests := []struct {
		env  string
		want string
	}{
		{"IMAGEPIPE_AGGRESSIVE_MAX_WIDTH", "aggressive.max_width"},
		{"IMAGEPIPE_FALLBACK_TIMEOUT_MS", "fallback.timeout_ms"},
		{"IMAGEPIPE_CACHE_ENABLED", "cache.enabled"},
		{"IMAGEPIPE_COMPRESSION_PREFERRED_FORMAT", "compression.preferred_format"},
		{"IMAGEPIPE_LOADER_HTTP_TIMEOUT_MS", "loader.http_timeout_ms"},
		{"IMAGEPIPE_QUALITY_JPEG_MIN", "quality.jpeg.min"},
		{"IMAGEPIPE_QUALITY_PNG_MAX", "quality.png.max"},
		{"IMAGEPIPE_QUALITY_WEBP_DEFAULT", "quality.webp.default"},
		{"IMAGEPIPE_CONTENT_AWARE_ENABLED", "content_aware.enabled"},
		{"IMAGEPIPE_CONTENT_AWARE_TEXT_QUALITY", "content_aware.text.quality"},
		{"IMAGEPIPE_CONTENT_AWARE_PHOTO_QUALITY", "content_aware.photo.quality"},
	}

	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			assert.Equal(t, tt.want, envKeyToPath(tt.env))
		})
	}
}

func TestLoad_QualityClamping(t *testing.T) {
	path := writeConfig(t, `
quality:
  jpeg:
    min: -10
    max: 150
    default: 60
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.Quality.JPEG.Min)
	assert.Equal(t, 100, cfg.Quality.JPEG.Max)
}

func TestLoad_Errors(t *testing.T) {
	t.Run("min width above max width", func(t *testing.T) {
		path := writeConfig(t, `
aggressive:
  min_width: 500
  max_width: 300
`)
		_, err := Load(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "min width")
	})

	t.Run("quality min above max", func(t *testing.T) {
		path := writeConfig(t, `
quality:
  webp:
    min: 90
    max: 40
    default: 50
`)
		_, err := Load(path)
		require.Error(t, err)
	})

	t.Run("unknown preferred format", func(t *testing.T) {
		path := writeConfig(t, `
compression:
  preferred_format: tiff
`)
		_, err := Load(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "preferred format")
	})

	t.Run("malformed yaml", func(t *testing.T) {
		path := writeConfig(t, "aggressive: [not a map")
		_, err := Load(path)
		require.Error(t, err)
	})

	t.Run("oversized file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "big.yaml")
		require.NoError(t, os.WriteFile(path, bytes.Repeat([]byte("# pad\n"), 1<<18), 0o644))
		_, err := Load(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "too large")
	})
}
