package optimize

import (
	"github.com/commercekit/imagepipe/internal/config"
)

// SelectFormat decides the target encoding from content type, the detected
// source format and configuration.
//
// Rules: text and logo take the lossless indexed format (sharp edges,
// possible transparency); graphics take webp only when it is the configured
// preference, png otherwise; photo takes jpeg. A configured webp preference
// wins for every content type, while a png preference for photo is
// ignored. Downstream layout depends on that asymmetry, so it is kept.
//
// With format conversion disabled the detected source format is preserved
// verbatim, falling back to a content-appropriate default when the source
// format is unrecognized.
func SelectFormat(ct ContentType, sourceFormat string, cfg *config.Config) TargetFormat {
	if !cfg.Compression.EnableFormatConversion {
		switch sourceFormat {
		case "jpeg", "jpg":
			return FormatJPEG
		case "png":
			return FormatPNG
		case "webp":
			return FormatWebP
		default:
			return defaultFormatFor(ct)
		}
	}

	if cfg.Compression.PreferredFormat == string(FormatWebP) {
		return FormatWebP
	}

	return defaultFormatFor(ct)
}

func defaultFormatFor(ct ContentType) TargetFormat {
	switch ct {
	case ContentTypeText, ContentTypeLogo, ContentTypeGraphics:
		return FormatPNG
	case ContentTypePhoto:
		return FormatJPEG
	default:
		return FormatJPEG
	}
}

// QualityFor derives the encode quality for a content type and format:
// the content-type preference when content-aware tuning supplies one, the
// format default otherwise, clamped to the format's bounds.
func QualityFor(ct ContentType, format TargetFormat, cfg *config.Config) int {
	bounds := cfg.QualityFor(string(format))

	quality := cfg.ContentQualityFor(string(ct))
	if quality == 0 {
		quality = bounds.Default
	}

	return clampInt(quality, bounds.Min, bounds.Max)
}
