package optimize

// Content classification thresholds. Heuristics run in order; the first
// match wins.
const (
	logoMaxPixels     = 100_000
	graphicsMaxPixels = 500_000
	photoMinPixels    = 500_000
	textMinDensity    = 150.0

	compactRatioLow  = 0.5
	compactRatioHigh = 2.0

	// hintOverrideConfidence is the bar a detected type must clear before it
	// overrides a caller-supplied hint.
	hintOverrideConfidence = 0.7
)

// Classify infers the content type of an image from its decoded metadata.
// It returns the detected type and a confidence in [0,1]. A caller-supplied
// hint wins unless detection confidence exceeds 0.7. Unreadable metadata
// falls back silently to photo at 0.5; classification never fails.
func Classify(meta ImageMetadata, hint ContentType) (ContentType, float64) {
	detected, confidence := detect(meta)

	if hint != "" && confidence <= hintOverrideConfidence {
		return hint, 1.0
	}
	return detected, confidence
}

func detect(meta ImageMetadata) (ContentType, float64) {
	if meta.Width <= 0 || meta.Height <= 0 {
		return ContentTypePhoto, 0.5
	}

	pixels := meta.PixelCount()
	ratio := meta.AspectRatio()
	compact := ratio >= compactRatioLow && ratio <= compactRatioHigh

	switch {
	case meta.HasAlpha && pixels < logoMaxPixels && compact:
		return ContentTypeLogo, 0.8
	case meta.Density > textMinDensity && !compact:
		return ContentTypeText, 0.7
	case pixels < graphicsMaxPixels && (meta.HasAlpha || meta.Channels < 3):
		return ContentTypeGraphics, 0.6
	case pixels > photoMinPixels && meta.Channels >= 3:
		return ContentTypePhoto, 0.8
	default:
		return ContentTypePhoto, 0.5
	}
}
