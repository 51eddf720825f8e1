package optimize

import (
	"math"

	"github.com/commercekit/imagepipe/internal/config"
)

// scalingFactor returns the content-type multiplier applied to the
// configured max dimensions. Text tolerates larger targets to stay legible;
// photos shrink hardest.
func scalingFactor(ct ContentType) float64 {
	switch ct {
	case ContentTypeText:
		return 1.3
	case ContentTypeLogo:
		return 1.2
	case ContentTypeGraphics:
		return 1.0
	case ContentTypePhoto:
		return 0.9
	default:
		return 1.0
	}
}

// PlanDimensions computes the target width and height for an image. The
// clamp order matters: scale, aspect fix, minimum floor, maximum ceiling,
// then minimum floor again, so the aspect-correcting step can never push a
// dimension back out of bounds unnoticed.
func PlanDimensions(origWidth, origHeight int, ct ContentType, cfg *config.Config) (int, int) {
	bounds := cfg.Aggressive
	if origWidth <= 0 || origHeight <= 0 {
		return bounds.MinWidth, bounds.MinHeight
	}

	factor := scalingFactor(ct)
	targetW := int(math.Round(float64(bounds.MaxWidth) * factor))
	targetH := int(math.Round(float64(bounds.MaxHeight) * factor))

	targetW = clampInt(targetW, bounds.MinWidth, bounds.MaxWidth)
	targetH = clampInt(targetH, bounds.MinHeight, bounds.MaxHeight)

	// Preserve the original aspect ratio by recomputing one dimension from
	// the other: landscape derives height from width, portrait the reverse.
	aspect := float64(origWidth) / float64(origHeight)
	if origWidth >= origHeight {
		targetH = int(math.Round(float64(targetW) / aspect))
	} else {
		targetW = int(math.Round(float64(targetH) * aspect))
	}

	// Already-small images still shrink 10% under forced optimization.
	if bounds.ForceOptimization && origWidth <= targetW && origHeight <= targetH {
		targetW = int(math.Round(float64(origWidth) * 0.9))
		targetH = int(math.Round(float64(origHeight) * 0.9))
	}

	targetW = maxInt(targetW, bounds.MinWidth)
	targetH = maxInt(targetH, bounds.MinHeight)
	targetW = minInt(targetW, bounds.MaxWidth)
	targetH = minInt(targetH, bounds.MaxHeight)
	targetW = maxInt(targetW, bounds.MinWidth)
	targetH = maxInt(targetH, bounds.MinHeight)

	return targetW, targetH
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
