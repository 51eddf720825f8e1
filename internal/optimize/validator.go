package optimize

import (
	"fmt"
	"math"

	"github.com/commercekit/imagepipe/internal/config"
)

const (
	// aspectTolerance is the maximum relative aspect-ratio drift accepted.
	aspectTolerance = 0.05
	// aspectWarnThreshold flags borderline drift without failing validation.
	aspectWarnThreshold = 0.02
	// lowGainThreshold flags reductions too small to be worth the re-encode.
	lowGainThreshold = 10.0
)

// ValidateResult checks an optimized image against the original and the
// configured bounds: non-empty output, aspect ratio within 5% relative
// tolerance, dimensions inside [min,max], and a positive size reduction.
// IsValid is true when no errors were recorded; warnings never fail.
func ValidateResult(origWidth, origHeight, optWidth, optHeight int, origSize, optSize int64, cfg *config.Config) *ValidationResult {
	v := &ValidationResult{
		AspectRatioPreserved:   true,
		DimensionsWithinBounds: true,
		QualityAcceptable:      true,
	}

	if optSize <= 0 {
		v.addError("optimized buffer is empty")
		v.QualityAcceptable = false
	}

	checkAspect(v, origWidth, origHeight, optWidth, optHeight)
	checkBounds(v, optWidth, optHeight, cfg)
	checkReduction(v, origSize, optSize)

	v.IsValid = len(v.Errors) == 0
	return v
}

func checkAspect(v *ValidationResult, origWidth, origHeight, optWidth, optHeight int) {
	if origHeight <= 0 || optHeight <= 0 {
		// Degenerate dimensions make the ratio meaningless; skip the check.
		v.addWarning("aspect ratio check skipped: zero dimension")
		return
	}

	v.OriginalRatio = float64(origWidth) / float64(origHeight)
	v.OptimizedRatio = float64(optWidth) / float64(optHeight)

	drift := math.Abs(v.OptimizedRatio-v.OriginalRatio) / v.OriginalRatio
	switch {
	case drift > aspectTolerance:
		v.AspectRatioPreserved = false
		v.addError(fmt.Sprintf("aspect ratio drift %.1f%% exceeds %.0f%% tolerance",
			drift*100, aspectTolerance*100))
	case drift > aspectWarnThreshold:
		v.addWarning(fmt.Sprintf("aspect ratio drift %.1f%% is near tolerance", drift*100))
	}
}

func checkBounds(v *ValidationResult, optWidth, optHeight int, cfg *config.Config) {
	b := cfg.Aggressive
	if optWidth < b.MinWidth || optWidth > b.MaxWidth {
		v.DimensionsWithinBounds = false
		v.addError(fmt.Sprintf("width %d outside bounds [%d,%d]", optWidth, b.MinWidth, b.MaxWidth))
	}
	if optHeight < b.MinHeight || optHeight > b.MaxHeight {
		v.DimensionsWithinBounds = false
		v.addError(fmt.Sprintf("height %d outside bounds [%d,%d]", optHeight, b.MinHeight, b.MaxHeight))
	}
}

func checkReduction(v *ValidationResult, origSize, optSize int64) {
	if origSize <= 0 || optSize <= 0 {
		return
	}

	v.SizeReductionPct = float64(origSize-optSize) / float64(origSize) * 100

	switch {
	case v.SizeReductionPct <= 0:
		v.QualityAcceptable = false
		v.addError(fmt.Sprintf("no size reduction: %d -> %d bytes", origSize, optSize))
	case v.SizeReductionPct < lowGainThreshold:
		v.addWarning(fmt.Sprintf("low size reduction: %.1f%%", v.SizeReductionPct))
	}
}

func (v *ValidationResult) addError(msg string) {
	v.Errors = append(v.Errors, msg)
}

func (v *ValidationResult) addWarning(msg string) {
	v.Warnings = append(v.Warnings, msg)
}
