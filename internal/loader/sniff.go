package loader

import "bytes"

var (
	jpegMagic = []byte{0xFF, 0xD8, 0xFF}
	pngMagic  = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}
	riffMagic = []byte("RIFF")
	webpMagic = []byte("WEBP")
	gif87     = []byte("GIF87a")
	gif89     = []byte("GIF89a")
)

// DetectFormat sniffs the image format from magic bytes. Returns "" when
// the format is unrecognized; callers fall back to decoder metadata.
func DetectFormat(data []byte) string {
	switch {
	case bytes.HasPrefix(data, jpegMagic):
		return "jpeg"
	case bytes.HasPrefix(data, pngMagic):
		return "png"
	case len(data) >= 12 && bytes.HasPrefix(data, riffMagic) && bytes.Equal(data[8:12], webpMagic):
		return "webp"
	case bytes.HasPrefix(data, gif87) || bytes.HasPrefix(data, gif89):
		return "gif"
	default:
		return ""
	}
}
