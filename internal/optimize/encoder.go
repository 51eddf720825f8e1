package optimize

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/color/palette"
	"image/draw"
	"image/jpeg"
	"image/png"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
)

// EncodeParams carries everything the encoder needs for one attempt.
type EncodeParams struct {
	Width       int
	Height      int
	Format      TargetFormat
	ContentType ContentType
	Quality     int

	// ContentAware disables per-content tuning when false; the
	// basic-compression fallback tier encodes plain jpeg regardless of
	// content type.
	ContentAware bool
}

// EncodeImage resizes img to the exact target dimensions and encodes it in
// the target format. Resize uses Lanczos and always fills the exact target
// box. Downstream PDF layout requires the planned dimensions verbatim, so
// "fit inside" is not an option. Encoder failures propagate to the caller.
func EncodeImage(img image.Image, p EncodeParams) ([]byte, error) {
	if img == nil {
		return nil, encodeError(errors.New("no decoded image"))
	}
	if p.Width <= 0 || p.Height <= 0 {
		return nil, encodeError(errors.New("non-positive target dimensions"))
	}

	resized := imaging.Resize(img, p.Width, p.Height, imaging.Lanczos)

	var buf bytes.Buffer
	var err error
	switch p.Format {
	case FormatJPEG:
		err = encodeJPEG(&buf, resized, p)
	case FormatPNG:
		err = encodePNG(&buf, resized, p)
	case FormatWebP:
		err = encodeWebP(&buf, resized, p)
	default:
		err = errors.New("unsupported target format " + string(p.Format))
	}
	if err != nil {
		return nil, encodeError(err)
	}
	return buf.Bytes(), nil
}

// encodeJPEG applies content-aware quantization aggressiveness by shifting
// the effective quality: text content is treated least aggressively, photo
// content most. The stdlib encoder exposes quality only, so the tuning
// folds into it.
func encodeJPEG(buf *bytes.Buffer, img image.Image, p EncodeParams) error {
	quality := p.Quality
	if p.ContentAware {
		switch p.ContentType {
		case ContentTypeText:
			quality += 5
		case ContentTypeLogo:
			quality += 3
		case ContentTypePhoto:
			quality -= 5
		}
	}
	quality = clampInt(quality, 1, 100)
	return jpeg.Encode(buf, img, &jpeg.Options{Quality: quality})
}

// encodePNG encodes at maximum compression. Palette reduction applies to
// every content type except text, where quantization would hurt legibility.
func encodePNG(buf *bytes.Buffer, img image.Image, p EncodeParams) error {
	if p.ContentAware && p.ContentType != ContentTypeText {
		img = palettize(img)
	}
	enc := png.Encoder{CompressionLevel: png.BestCompression}
	return enc.Encode(buf, img)
}

// encodeWebP maps content types onto webp variants: text gets the lossless
// variant, logo near-lossless (quality pushed toward the top of the range),
// photo and graphics standard lossy at the computed quality.
func encodeWebP(buf *bytes.Buffer, img image.Image, p EncodeParams) error {
	opts := &webp.Options{Quality: float32(p.Quality)}
	if p.ContentAware {
		switch p.ContentType {
		case ContentTypeText:
			opts.Lossless = true
			opts.Exact = true
		case ContentTypeLogo:
			opts.Quality = float32(minInt(p.Quality+20, 95))
		}
	}
	return webp.Encode(buf, img, opts)
}

// palettize reduces an image to a 256-color palette with dithering. The
// first palette slot is transparent so logo alpha survives.
func palettize(img image.Image) image.Image {
	pal := make(color.Palette, 0, 256)
	pal = append(pal, color.Transparent)
	pal = append(pal, palette.Plan9[:255]...)

	bounds := img.Bounds()
	out := image.NewPaletted(bounds, pal)
	draw.FloydSteinberg.Draw(out, bounds, img, bounds.Min)
	return out
}
