package optimize

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/commercekit/imagepipe/internal/config"
	"github.com/commercekit/imagepipe/internal/logging"
)

const tracerName = "github.com/commercekit/imagepipe/internal/optimize"
const meterName = "imagepipe"

// Service is the per-image optimization entry point: cache check, fresh
// optimization, fallback as needed. Its public contract is that it never
// returns an error: every failure mode degrades to a result carrying an
// error string, so PDF generation proceeds with degraded imagery rather
// than failing the document.
type Service struct {
	store  *config.Store
	loader Loader
	cache  ResultCache
	log    *logging.Logger

	tracer trace.Tracer
	meter  metric.Meter

	// Metrics
	optimizeCounter metric.Int64Counter
	optimizeErrors  metric.Int64Counter
	optimizeTime    metric.Float64Histogram
	ratioHist       metric.Float64Histogram
	fallbackCounter metric.Int64Counter
	cacheHits       metric.Int64Counter
	cacheMisses     metric.Int64Counter
}

// NewService creates an optimization service. cache may be nil when the
// reuse cache is disabled.
func NewService(store *config.Store, loader Loader, cache ResultCache, log *logging.Logger) (*Service, error) {
	s := &Service{
		store:  store,
		loader: loader,
		cache:  cache,
		log:    log,
		tracer: otel.Tracer(tracerName),
		meter:  otel.Meter(meterName),
	}

	if err := s.initMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	return s, nil
}

// OptimizeImage optimizes one image reference. hint may be "" to let the
// classifier decide alone. The returned result always has either usable
// bytes or a populated Error, never neither; even an unexpected panic is
// converted into an error-carrying result.
func (s *Service) OptimizeImage(ctx context.Context, ref string, hint ContentType) (out *OptimizedImageResult) {
	start := time.Now()
	ctx = logging.WithImageRef(ctx, ref)
	defer func() {
		if r := recover(); r != nil {
			s.log.Error(ctx, "panic during image optimization",
				zap.String("ref", ref),
				zap.Any("panic", r),
			)
			out = &OptimizedImageResult{
				ContentType:    hint,
				Technique:      TechniqueFallback,
				ProcessingTime: time.Since(start),
				Error:          fmt.Sprintf("unexpected failure: %v", r),
				ErrorCategory:  "unknown",
			}
		}
	}()
	ctx, span := s.tracer.Start(ctx, "optimize.image",
		trace.WithAttributes(
			attribute.String("image.ref", ref),
			attribute.String("content_hint", string(hint)),
		),
	)
	defer span.End()

	cfg := s.store.Snapshot()

	finish := func(res *OptimizedImageResult) *OptimizedImageResult {
		res.ProcessingTime = time.Since(start)
		s.record(ctx, span, res)
		return res
	}

	key := s.loader.Normalize(ref)
	if cfg.Cache.Enabled && s.cache != nil {
		if cached, ok := s.cache.Get(ctx, key); ok {
			s.cacheHits.Add(ctx, 1)
			s.log.Debug(ctx, "serving optimized image from cache", zap.String("key", key))
			hit := *cached
			hit.Technique = TechniqueStorage
			return finish(&hit)
		}
		s.cacheMisses.Add(ctx, 1)
	}

	src, err := s.loader.Load(ctx, ref)
	if src == nil {
		src = &SourceImage{Ref: ref}
	}

	ct, confidence := Classify(src.Meta, hint)
	span.SetAttributes(
		attribute.String("content_type", string(ct)),
		attribute.Float64("classification_confidence", confidence),
	)

	var res *OptimizedImageResult
	if err != nil {
		s.log.Warn(ctx, "image load failed, entering recovery", zap.Error(err))
		res = s.recover(ctx, cfg, src, ct, err)
	} else {
		res, err = s.primary(ctx, cfg, src, ct)
		if err != nil {
			s.log.Warn(ctx, "primary optimization rejected, entering recovery", zap.Error(err))
			res = s.recover(ctx, cfg, src, ct, err)
		}
	}

	if res.Succeeded() && cfg.Cache.Enabled && s.cache != nil {
		s.cache.Put(ctx, key, res)
	}

	return finish(res)
}

// primary runs the comprehensive optimization path: plan, select, encode
// under the attempt timeout, then validate.
func (s *Service) primary(ctx context.Context, cfg *config.Config, src *SourceImage, ct ContentType) (*OptimizedImageResult, error) {
	if src.Image == nil {
		return nil, fmt.Errorf("%w: no decoded image", ErrDecode)
	}

	width, height := PlanDimensions(src.Meta.Width, src.Meta.Height, ct, cfg)
	format := SelectFormat(ct, src.Meta.Format, cfg)
	quality := QualityFor(ct, format, cfg)
	timeout := time.Duration(cfg.Fallback.TimeoutMs) * time.Millisecond

	enc, err := runWithTimeout(ctx, timeout, func(c context.Context) (*encoded, error) {
		data, encErr := EncodeImage(src.Image, EncodeParams{
			Width:        width,
			Height:       height,
			Format:       format,
			ContentType:  ct,
			Quality:      quality,
			ContentAware: true,
		})
		if encErr != nil {
			return nil, encErr
		}
		return &encoded{data: data, width: width, height: height, format: format, quality: quality}, nil
	})
	if err != nil {
		return nil, err
	}

	v := ValidateResult(src.Meta.Width, src.Meta.Height, enc.width, enc.height,
		int64(len(src.Data)), int64(len(enc.data)), cfg)
	if !v.IsValid {
		return nil, validationError(v.Errors)
	}

	technique := TechniqueComprehensive
	if cfg.Aggressive.Enabled && cfg.Aggressive.ForceOptimization {
		technique = TechniqueAggressive
	}

	return &OptimizedImageResult{
		Buffer:           enc.data,
		OriginalSize:     int64(len(src.Data)),
		OptimizedSize:    int64(len(enc.data)),
		CompressionRatio: compressionRatio(int64(len(src.Data)), int64(len(enc.data))),
		OriginalWidth:    src.Meta.Width,
		OriginalHeight:   src.Meta.Height,
		Width:            enc.width,
		Height:           enc.height,
		Format:           enc.format,
		ContentType:      ct,
		Technique:        technique,
	}, nil
}

// recover handles a failed or rejected primary path. With fallback enabled
// the orchestrator takes over; otherwise a critical-recovery attempt
// returns the original bytes unmodified, and when even that is impossible
// a safe placeholder result carries the error.
func (s *Service) recover(ctx context.Context, cfg *config.Config, src *SourceImage, ct ContentType, cause error) *OptimizedImageResult {
	if cfg.Fallback.Enabled {
		s.fallbackCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("cause", ErrorCategory(cause)),
		))
		return NewOrchestrator(cfg, s.log).Run(ctx, src, ct)
	}

	data := src.Data
	if len(data) == 0 {
		if reloaded, err := s.loader.Load(ctx, src.Ref); reloaded != nil && err == nil {
			data = reloaded.Data
		}
	}
	if len(data) > 0 {
		return &OptimizedImageResult{
			Buffer:         data,
			OriginalSize:   int64(len(data)),
			OptimizedSize:  int64(len(data)),
			OriginalWidth:  src.Meta.Width,
			OriginalHeight: src.Meta.Height,
			Width:          src.Meta.Width,
			Height:         src.Meta.Height,
			Format:         sourceTargetFormat(src.Meta.Format),
			ContentType:    ct,
			Technique:      TechniqueCriticalRecovery,
		}
	}

	return &OptimizedImageResult{
		ContentType:   ct,
		Technique:     TechniqueFallback,
		Error:         cause.Error(),
		ErrorCategory: ErrorCategory(cause),
	}
}

// record emits metrics and span attributes for a finished result.
func (s *Service) record(ctx context.Context, span trace.Span, res *OptimizedImageResult) {
	attrs := metric.WithAttributes(
		attribute.String("technique", string(res.Technique)),
		attribute.String("format", string(res.Format)),
		attribute.String("content_type", string(res.ContentType)),
	)

	s.optimizeCounter.Add(ctx, 1, attrs)
	s.optimizeTime.Record(ctx, res.ProcessingTime.Seconds(), attrs)
	if res.CompressionRatio > 0 {
		s.ratioHist.Record(ctx, res.CompressionRatio, attrs)
	}
	if res.Error != "" {
		s.optimizeErrors.Add(ctx, 1, metric.WithAttributes(
			attribute.String("error_category", res.ErrorCategory),
		))
		span.SetAttributes(attribute.String("error", res.Error))
	}

	span.SetAttributes(
		attribute.String("technique", string(res.Technique)),
		attribute.Int64("original_size", res.OriginalSize),
		attribute.Int64("optimized_size", res.OptimizedSize),
		attribute.Float64("compression_ratio", res.CompressionRatio),
	)
}

// initMetrics initializes OpenTelemetry metrics.
func (s *Service) initMetrics() error {
	var err error

	s.optimizeCounter, err = s.meter.Int64Counter(
		"imagepipe.optimizations_total",
		metric.WithDescription("Total number of image optimization operations"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create optimization counter: %w", err)
	}

	s.optimizeErrors, err = s.meter.Int64Counter(
		"imagepipe.errors_total",
		metric.WithDescription("Total number of optimization errors by category"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create error counter: %w", err)
	}

	s.optimizeTime, err = s.meter.Float64Histogram(
		"imagepipe.duration_seconds",
		metric.WithDescription("Time spent optimizing images"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 30.0),
	)
	if err != nil {
		return fmt.Errorf("failed to create duration histogram: %w", err)
	}

	s.ratioHist, err = s.meter.Float64Histogram(
		"imagepipe.compression_ratio",
		metric.WithDescription("Compression ratios achieved"),
		metric.WithUnit("1"),
		metric.WithExplicitBucketBoundaries(0.1, 0.3, 0.5, 0.7, 0.9),
	)
	if err != nil {
		return fmt.Errorf("failed to create ratio histogram: %w", err)
	}

	s.fallbackCounter, err = s.meter.Int64Counter(
		"imagepipe.fallback_entries_total",
		metric.WithDescription("Times the fallback orchestrator was entered"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create fallback counter: %w", err)
	}

	s.cacheHits, err = s.meter.Int64Counter(
		"imagepipe.cache_hits_total",
		metric.WithDescription("Reuse cache hits"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create cache hit counter: %w", err)
	}

	s.cacheMisses, err = s.meter.Int64Counter(
		"imagepipe.cache_misses_total",
		metric.WithDescription("Reuse cache misses"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create cache miss counter: %w", err)
	}

	return nil
}
