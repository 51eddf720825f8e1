package optimize

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/commercekit/imagepipe/internal/logging"
)

// interItemDelay bounds resource pressure between batch items.
const interItemDelay = 100 * time.Millisecond

// OptimizeBatch processes image references strictly in order, one result
// per input, never aborting early: an unexpected panic in one item is
// substituted with a placeholder result carrying the error. A fixed 100ms
// delay separates items.
func (s *Service) OptimizeBatch(ctx context.Context, items []BatchItem) *BatchResult {
	start := time.Now()
	batch := &BatchResult{
		ID:              uuid.NewString(),
		Results:         make([]*OptimizedImageResult, 0, len(items)),
		ByFormat:        make(map[string]int),
		ByContentType:   make(map[string]int),
		ByErrorCategory: make(map[string]int),
	}

	ctx = logging.WithBatchID(ctx, batch.ID)
	s.log.Info(ctx, "starting batch optimization", zap.Int("items", len(items)))

	for i, item := range items {
		res := s.OptimizeImage(ctx, item.Ref, item.Hint)
		batch.Results = append(batch.Results, res)
		s.tally(batch, res)

		if i < len(items)-1 {
			select {
			case <-ctx.Done():
				// Remaining items still get exactly one result each.
				for _, rest := range items[i+1:] {
					placeholder := s.placeholderResult(rest, ctx.Err())
					batch.Results = append(batch.Results, placeholder)
					s.tally(batch, placeholder)
				}
				batch.Elapsed = time.Since(start)
				return batch
			case <-time.After(interItemDelay):
			}
		}
	}

	batch.Elapsed = time.Since(start)
	s.log.Info(ctx, "batch optimization complete",
		zap.Int("succeeded", batch.Succeeded),
		zap.Int("failed", batch.Failed),
		zap.Int64("original_bytes", batch.TotalOriginalBytes),
		zap.Int64("optimized_bytes", batch.TotalOptimizedBytes),
		zap.Float64("overall_ratio", batch.OverallRatio),
	)
	return batch
}

// placeholderResult substitutes for items that never ran, keeping the batch
// contract of one result per input.
func (s *Service) placeholderResult(item BatchItem, err error) *OptimizedImageResult {
	category := ErrorCategory(err)
	if category == "" {
		category = "unknown"
	}
	return &OptimizedImageResult{
		ContentType:   item.Hint,
		Technique:     TechniqueFallback,
		Error:         err.Error(),
		ErrorCategory: category,
	}
}

// tally folds one result into the batch totals and breakdowns.
func (s *Service) tally(batch *BatchResult, res *OptimizedImageResult) {
	batch.TotalOriginalBytes += res.OriginalSize
	batch.TotalOptimizedBytes += res.OptimizedSize

	if res.Succeeded() {
		batch.Succeeded++
	} else {
		batch.Failed++
	}

	if res.Format != "" {
		batch.ByFormat[string(res.Format)]++
	}
	if res.ContentType != "" {
		batch.ByContentType[string(res.ContentType)]++
	}
	if res.ErrorCategory != "" {
		batch.ByErrorCategory[res.ErrorCategory]++
	}

	batch.OverallRatio = compressionRatio(batch.TotalOriginalBytes, batch.TotalOptimizedBytes)
}
