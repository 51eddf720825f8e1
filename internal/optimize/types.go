package optimize

import (
	"context"
	"image"
	"time"
)

// ContentType classifies the visual nature of an image. It drives the
// scaling factor, target format and quality floor used downstream.
type ContentType string

const (
	// ContentTypeText is rendered text or documents (sharp edges, high DPI).
	ContentTypeText ContentType = "text"
	// ContentTypeLogo is a small graphic with transparency, typically a brand mark.
	ContentTypeLogo ContentType = "logo"
	// ContentTypeGraphics is line art, charts or QR codes.
	ContentTypeGraphics ContentType = "graphics"
	// ContentTypePhoto is a photographic image.
	ContentTypePhoto ContentType = "photo"
)

// TargetFormat is the encoding chosen for an optimized image.
type TargetFormat string

const (
	// FormatJPEG is the photographic lossy target.
	FormatJPEG TargetFormat = "jpeg"
	// FormatPNG is the lossless indexed target.
	FormatPNG TargetFormat = "png"
	// FormatWebP is the next-gen target.
	FormatWebP TargetFormat = "webp"
)

// Technique tags how a result was produced.
type Technique string

const (
	// TechniqueComprehensive is the standard primary optimization path.
	TechniqueComprehensive Technique = "comprehensive"
	// TechniqueAggressive is the primary path with aggressive mode and
	// forced optimization both enabled.
	TechniqueAggressive Technique = "aggressive"
	// TechniqueFallback marks results produced by the fallback orchestrator,
	// including terminal placeholder results.
	TechniqueFallback Technique = "fallback"
	// TechniqueStorage marks results served from the reuse cache.
	TechniqueStorage Technique = "storage"
	// TechniqueCriticalRecovery marks original bytes returned after a primary
	// failure with fallback disabled.
	TechniqueCriticalRecovery Technique = "critical-recovery"
)

// ImageMetadata describes a decoded source image. Density defaults to 72
// when the codec does not expose it.
type ImageMetadata struct {
	Width    int     `json:"width"`
	Height   int     `json:"height"`
	Channels int     `json:"channels"`
	HasAlpha bool    `json:"has_alpha"`
	Density  float64 `json:"density"`
	Format   string  `json:"format"`
}

// PixelCount returns the total number of pixels.
func (m ImageMetadata) PixelCount() int {
	return m.Width * m.Height
}

// AspectRatio returns width/height, or 0 for degenerate dimensions.
func (m ImageMetadata) AspectRatio() float64 {
	if m.Height == 0 {
		return 0
	}
	return float64(m.Width) / float64(m.Height)
}

// SourceImage is a loaded source image. Image is nil when the bytes could
// not be decoded; Data is retained so the original-image fallback tier can
// still return something usable.
type SourceImage struct {
	Ref   string
	Data  []byte
	Image image.Image
	Meta  ImageMetadata
}

// OptimizedImageResult is the outcome of optimizing a single image.
// Error is set exactly when the pipeline could not produce usable bytes;
// Buffer may then be empty. CompressionRatio is (original-optimized)/original
// when the optimized size is known, 0 otherwise.
type OptimizedImageResult struct {
	Buffer           []byte        `json:"-"`
	OriginalSize     int64         `json:"original_size"`
	OptimizedSize    int64         `json:"optimized_size"`
	CompressionRatio float64       `json:"compression_ratio"`
	OriginalWidth    int           `json:"original_width"`
	OriginalHeight   int           `json:"original_height"`
	Width            int           `json:"width"`
	Height           int           `json:"height"`
	Format           TargetFormat  `json:"format,omitempty"`
	ContentType      ContentType   `json:"content_type,omitempty"`
	Technique        Technique     `json:"technique"`
	ProcessingTime   time.Duration `json:"processing_time"`
	Error            string        `json:"error,omitempty"`
	ErrorCategory    string        `json:"error_category,omitempty"`
}

// Succeeded reports whether the result carries usable optimized bytes.
func (r *OptimizedImageResult) Succeeded() bool {
	return r.Error == "" && len(r.Buffer) > 0
}

// ValidationResult is the outcome of checking an optimized image against
// the configured bounds. IsValid is true when no errors were recorded;
// warnings never fail validation.
type ValidationResult struct {
	AspectRatioPreserved   bool     `json:"aspect_ratio_preserved"`
	DimensionsWithinBounds bool     `json:"dimensions_within_bounds"`
	QualityAcceptable      bool     `json:"quality_acceptable"`
	IsValid                bool     `json:"is_valid"`
	Errors                 []string `json:"errors,omitempty"`
	Warnings               []string `json:"warnings,omitempty"`

	OriginalRatio    float64 `json:"original_ratio"`
	OptimizedRatio   float64 `json:"optimized_ratio"`
	SizeReductionPct float64 `json:"size_reduction_pct"`
}

// BatchItem is one entry in a batch optimization request.
type BatchItem struct {
	Ref  string      `json:"ref"`
	Hint ContentType `json:"hint,omitempty"`
}

// BatchResult aggregates per-image results plus running totals. Exactly one
// result is produced per input item, in input order.
type BatchResult struct {
	ID                  string                  `json:"id"`
	Results             []*OptimizedImageResult `json:"results"`
	TotalOriginalBytes  int64                   `json:"total_original_bytes"`
	TotalOptimizedBytes int64                   `json:"total_optimized_bytes"`
	Succeeded           int                     `json:"succeeded"`
	Failed              int                     `json:"failed"`
	OverallRatio        float64                 `json:"overall_ratio"`
	ByFormat            map[string]int          `json:"by_format"`
	ByContentType       map[string]int          `json:"by_content_type"`
	ByErrorCategory     map[string]int          `json:"by_error_category"`
	Elapsed             time.Duration           `json:"elapsed"`
}

// Loader resolves and loads image references (HTTP(S) URLs or paths).
type Loader interface {
	// Load fetches and decodes the referenced image. On a decode failure the
	// returned SourceImage still carries the raw bytes alongside the error.
	Load(ctx context.Context, ref string) (*SourceImage, error)

	// Normalize maps a reference to its canonical identity, used as the
	// reuse-cache key.
	Normalize(ref string) string
}

// ResultCache is a best-effort store of previous successful results.
// Implementations must never propagate storage failures: Get treats any
// error as a miss and Put failures are absorbed.
type ResultCache interface {
	Get(ctx context.Context, key string) (*OptimizedImageResult, bool)
	Put(ctx context.Context, key string, result *OptimizedImageResult)
}

// compressionRatio computes (original-optimized)/original, guarding zero.
func compressionRatio(original, optimized int64) float64 {
	if original <= 0 || optimized <= 0 {
		return 0
	}
	return float64(original-optimized) / float64(original)
}
