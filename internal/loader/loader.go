// Package loader resolves image references (HTTP(S) URLs or local paths)
// and decodes them into the metadata the pipeline classifies on.
package loader

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "golang.org/x/image/webp"

	"go.uber.org/zap"

	"github.com/commercekit/imagepipe/internal/config"
	"github.com/commercekit/imagepipe/internal/logging"
	"github.com/commercekit/imagepipe/internal/optimize"
)

// maxImageBytes caps how much is read from any source.
const maxImageBytes = 32 << 20 // 32MB

// defaultDensity applies when the codec exposes no density information.
const defaultDensity = 72.0

// ImageLoader implements optimize.Loader for URLs and filesystem paths.
// Absolute paths under the upload prefix resolve against the configured
// upload root; other absolute paths are used as-is; relative paths resolve
// against the working directory.
type ImageLoader struct {
	client       *http.Client
	uploadRoot   string
	uploadPrefix string
	log          *logging.Logger
}

// New creates an ImageLoader from loader configuration.
func New(cfg config.LoaderConfig, log *logging.Logger) *ImageLoader {
	return &ImageLoader{
		client: &http.Client{
			Timeout: time.Duration(cfg.HTTPTimeoutMs) * time.Millisecond,
		},
		uploadRoot:   cfg.UploadRoot,
		uploadPrefix: cfg.UploadPrefix,
		log:          log,
	}
}

// Load fetches and decodes an image reference. When the bytes are fetched
// but cannot be decoded, the returned SourceImage still carries them so the
// original-image fallback tier has something to return.
func (l *ImageLoader) Load(ctx context.Context, ref string) (*optimize.SourceImage, error) {
	var data []byte
	var err error

	if isURL(ref) {
		data, err = l.fetch(ctx, ref)
	} else {
		data, err = l.readFile(ref)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", optimize.ErrLoad, err)
	}

	src := &optimize.SourceImage{Ref: ref, Data: data}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		l.log.Debug(ctx, "image decode failed", zap.String("ref", ref), zap.Error(err))
		return src, fmt.Errorf("%w: %v", optimize.ErrDecode, err)
	}

	src.Image = img
	src.Meta = describe(img, format, data)
	return src, nil
}

// Normalize maps a reference onto its canonical cache key.
func (l *ImageLoader) Normalize(ref string) string {
	if isURL(ref) {
		u, err := url.Parse(ref)
		if err != nil {
			return ref
		}
		u.Scheme = strings.ToLower(u.Scheme)
		u.Host = strings.ToLower(u.Host)
		u.Path = strings.TrimSuffix(u.Path, "/")
		u.Fragment = ""
		return u.String()
	}

	resolved := l.resolvePath(ref)
	if abs, err := filepath.Abs(resolved); err == nil {
		return abs
	}
	return filepath.Clean(resolved)
}

func isURL(ref string) bool {
	lower := strings.ToLower(ref)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// resolvePath maps upload-prefixed absolute paths into the upload root.
func (l *ImageLoader) resolvePath(ref string) string {
	if filepath.IsAbs(ref) && l.uploadRoot != "" && strings.HasPrefix(ref, l.uploadPrefix) {
		return filepath.Join(l.uploadRoot, strings.TrimPrefix(ref, l.uploadPrefix))
	}
	return ref
}

func (l *ImageLoader) readFile(ref string) ([]byte, error) {
	path := l.resolvePath(ref)
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxImageBytes))
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty file %s", path)
	}
	return data, nil
}

func (l *ImageLoader) fetch(ctx context.Context, ref string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return nil, err
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d fetching %s", resp.StatusCode, ref)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty response from %s", ref)
	}
	return data, nil
}

// describe extracts the metadata the classifier operates on. The sniffed
// format wins over the decoder's report when both are available.
func describe(img image.Image, decodedFormat string, data []byte) optimize.ImageMetadata {
	bounds := img.Bounds()
	meta := optimize.ImageMetadata{
		Width:    bounds.Dx(),
		Height:   bounds.Dy(),
		Channels: 3,
		Density:  defaultDensity,
		Format:   decodedFormat,
	}

	if sniffed := DetectFormat(data); sniffed != "" {
		meta.Format = sniffed
	}

	switch img.(type) {
	case *image.Gray, *image.Gray16, *image.Paletted:
		meta.Channels = 1
	case *image.NRGBA, *image.NRGBA64, *image.RGBA, *image.RGBA64:
		meta.Channels = 4
	case *image.CMYK:
		meta.Channels = 4
	case *image.YCbCr:
		meta.Channels = 3
	}

	if op, ok := img.(interface{ Opaque() bool }); ok {
		meta.HasAlpha = !op.Opaque()
	}

	if meta.Format == "jpeg" {
		if dpi := jfifDensity(data); dpi > 0 {
			meta.Density = dpi
		}
	}

	return meta
}

// jfifDensity reads the pixel density from a JFIF APP0 header when present.
// Returns 0 when the header is absent or carries no density unit.
func jfifDensity(data []byte) float64 {
	// SOI + APP0 marker + length + "JFIF\0" + version + unit + Xdensity.
	if len(data) < 18 {
		return 0
	}
	if data[0] != 0xFF || data[1] != 0xD8 || data[2] != 0xFF || data[3] != 0xE0 {
		return 0
	}
	if string(data[6:11]) != "JFIF\x00" {
		return 0
	}

	unit := data[13]
	xDensity := float64(int(data[14])<<8 | int(data[15]))
	switch unit {
	case 1: // dots per inch
		return xDensity
	case 2: // dots per cm
		return xDensity * 2.54
	default:
		return 0
	}
}
