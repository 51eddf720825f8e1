package optimize

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/commercekit/imagepipe/internal/config"
	"github.com/commercekit/imagepipe/internal/logging"
)

// fallbackTier identifies one state of the degrading fallback chain. Tiers
// run in declaration order; the first validator-accepted result wins.
type fallbackTier int

const (
	tierReducedQuality fallbackTier = iota
	tierFormatConversion
	tierDimensionReduction
	tierBasicCompression
	tierOriginalImage
)

var fallbackTiers = []fallbackTier{
	tierReducedQuality,
	tierFormatConversion,
	tierDimensionReduction,
	tierBasicCompression,
	tierOriginalImage,
}

func (t fallbackTier) String() string {
	switch t {
	case tierReducedQuality:
		return "reduced_quality"
	case tierFormatConversion:
		return "format_conversion"
	case tierDimensionReduction:
		return "dimension_reduction"
	case tierBasicCompression:
		return "basic_compression"
	case tierOriginalImage:
		return "original_image"
	default:
		return "unknown"
	}
}

// Orchestrator sequences the fallback tiers with per-tier retries and
// timeouts. It is entered when primary optimization fails or its result is
// rejected by validation, and it never returns an error: the terminal path
// is a result annotated with every accumulated failure.
type Orchestrator struct {
	cfg *config.Config
	log *logging.Logger
}

// NewOrchestrator creates an orchestrator bound to one config snapshot.
func NewOrchestrator(cfg *config.Config, log *logging.Logger) *Orchestrator {
	return &Orchestrator{cfg: cfg, log: log}
}

// Run walks the tiers until one produces a validator-accepted result. The
// original-image tier is always accepted when source bytes exist, so the
// annotated-failure terminal is reached only when there is nothing to
// return at all.
func (o *Orchestrator) Run(ctx context.Context, src *SourceImage, ct ContentType) *OptimizedImageResult {
	timeout := time.Duration(o.cfg.Fallback.TimeoutMs) * time.Millisecond
	maxAttempts := o.cfg.Fallback.MaxRetries + 1

	var failures []string
	for _, tier := range fallbackTiers {
		if tier == tierOriginalImage {
			if res := o.originalResult(src, ct); res != nil {
				o.log.Info(ctx, "fallback succeeded", zap.String("tier", tier.String()))
				return res
			}
			failures = append(failures, fmt.Sprintf("%s: no source bytes", tier))
			continue
		}

		t := tier
		enc, err := retryAttempts(ctx, maxAttempts, timeout, progressiveDelay,
			func(c context.Context, attempt int) (*encoded, error) {
				return o.attemptTier(c, t, src, ct, attempt)
			})
		if err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", tier, err))
			o.log.Warn(ctx, "fallback tier exhausted",
				zap.String("tier", tier.String()),
				zap.Int("attempts", maxAttempts),
				zap.Error(err),
			)
			continue
		}

		o.log.Info(ctx, "fallback succeeded",
			zap.String("tier", tier.String()),
			zap.String("format", string(enc.format)),
			zap.Int("quality", enc.quality),
		)
		return o.encodedResult(src, ct, enc)
	}

	err := fmt.Errorf("all fallback tiers failed: %s", strings.Join(failures, "; "))
	return &OptimizedImageResult{
		Buffer:         src.Data,
		OriginalSize:   int64(len(src.Data)),
		OriginalWidth:  src.Meta.Width,
		OriginalHeight: src.Meta.Height,
		ContentType:    ct,
		Technique:      TechniqueFallback,
		Error:          err.Error(),
		ErrorCategory:  ErrorCategory(fmt.Errorf("%w: %v", ErrEncode, err)),
	}
}

// attemptTier produces and validates one candidate for a tier/attempt pair.
func (o *Orchestrator) attemptTier(ctx context.Context, tier fallbackTier, src *SourceImage, ct ContentType, attempt int) (*encoded, error) {
	if src.Image == nil {
		return nil, fmt.Errorf("%w: no decoded image for tier %s", ErrDecode, tier)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var params EncodeParams
	cfg := o.cfg

	switch tier {
	case tierReducedQuality:
		format := SelectFormat(ct, src.Meta.Format, cfg)
		bounds := cfg.QualityFor(string(format))
		base := QualityFor(ct, format, cfg)
		reduction := 15 + 10*attempt
		quality := maxInt(base*(100-reduction)/100, bounds.Min)
		w, h := PlanDimensions(src.Meta.Width, src.Meta.Height, ct, cfg)
		params = EncodeParams{Width: w, Height: h, Format: format, ContentType: ct, Quality: quality, ContentAware: true}

	case tierFormatConversion:
		formats := []TargetFormat{FormatJPEG, FormatPNG, FormatWebP}
		format := formats[attempt%len(formats)]
		bounds := cfg.QualityFor(string(format))
		quality := maxInt(QualityFor(ct, format, cfg)*90/100, bounds.Min)
		w, h := PlanDimensions(src.Meta.Width, src.Meta.Height, ct, cfg)
		params = EncodeParams{Width: w, Height: h, Format: format, ContentType: ct, Quality: quality, ContentAware: true}

	case tierDimensionReduction:
		factor := 0.8 - 0.1*float64(attempt)
		if factor < 0.1 {
			factor = 0.1
		}
		shrunk := *cfg
		shrunk.Aggressive.MaxWidth = maxInt(int(float64(cfg.Aggressive.MaxWidth)*factor), cfg.Aggressive.MinWidth)
		shrunk.Aggressive.MaxHeight = maxInt(int(float64(cfg.Aggressive.MaxHeight)*factor), cfg.Aggressive.MinHeight)
		format := SelectFormat(ct, src.Meta.Format, &shrunk)
		quality := QualityFor(ct, format, &shrunk)
		w, h := PlanDimensions(src.Meta.Width, src.Meta.Height, ct, &shrunk)
		params = EncodeParams{Width: w, Height: h, Format: format, ContentType: ct, Quality: quality, ContentAware: true}

	case tierBasicCompression:
		// Always plain jpeg, even for text and logo content. Last-resort
		// universality; do not make this content-aware.
		quality := maxInt(70-10*attempt, 40)
		w, h := PlanDimensions(src.Meta.Width, src.Meta.Height, ct, cfg)
		params = EncodeParams{Width: w, Height: h, Format: FormatJPEG, ContentType: ct, Quality: quality, ContentAware: false}

	default:
		return nil, fmt.Errorf("%w: unhandled tier %s", ErrEncode, tier)
	}

	data, err := EncodeImage(src.Image, params)
	if err != nil {
		return nil, err
	}

	v := ValidateResult(src.Meta.Width, src.Meta.Height, params.Width, params.Height,
		int64(len(src.Data)), int64(len(data)), cfg)
	if !v.IsValid {
		return nil, validationError(v.Errors)
	}

	return &encoded{
		data:    data,
		width:   params.Width,
		height:  params.Height,
		format:  params.Format,
		quality: params.Quality,
	}, nil
}

// encodedResult wraps a tier-accepted encode as the final result.
func (o *Orchestrator) encodedResult(src *SourceImage, ct ContentType, enc *encoded) *OptimizedImageResult {
	origSize := int64(len(src.Data))
	optSize := int64(len(enc.data))
	return &OptimizedImageResult{
		Buffer:           enc.data,
		OriginalSize:     origSize,
		OptimizedSize:    optSize,
		CompressionRatio: compressionRatio(origSize, optSize),
		OriginalWidth:    src.Meta.Width,
		OriginalHeight:   src.Meta.Height,
		Width:            enc.width,
		Height:           enc.height,
		Format:           enc.format,
		ContentType:      ct,
		Technique:        TechniqueFallback,
	}
}

// originalResult returns the source bytes unmodified. The tier is always
// accepted when bytes exist; zero compression by definition.
func (o *Orchestrator) originalResult(src *SourceImage, ct ContentType) *OptimizedImageResult {
	if len(src.Data) == 0 {
		return nil
	}
	return &OptimizedImageResult{
		Buffer:         src.Data,
		OriginalSize:   int64(len(src.Data)),
		OptimizedSize:  int64(len(src.Data)),
		OriginalWidth:  src.Meta.Width,
		OriginalHeight: src.Meta.Height,
		Width:          src.Meta.Width,
		Height:         src.Meta.Height,
		Format:         sourceTargetFormat(src.Meta.Format),
		ContentType:    ct,
		Technique:      TechniqueFallback,
	}
}

// sourceTargetFormat maps a detected source format name onto the target
// enum, or "" when unrecognized.
func sourceTargetFormat(format string) TargetFormat {
	switch format {
	case "jpeg", "jpg":
		return FormatJPEG
	case "png":
		return FormatPNG
	case "webp":
		return FormatWebP
	default:
		return ""
	}
}
