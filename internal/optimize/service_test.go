package optimize

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/commercekit/imagepipe/internal/config"
	"github.com/commercekit/imagepipe/internal/logging"
)

type fakeLoader struct {
	images map[string]*SourceImage
	loads  int
}

func (f *fakeLoader) Load(_ context.Context, ref string) (*SourceImage, error) {
	f.loads++
	if src, ok := f.images[ref]; ok {
		return src, nil
	}
	return nil, loadError(errors.New("not found: " + ref))
}

func (f *fakeLoader) Normalize(ref string) string { return "key:" + ref }

type fakeCache struct {
	entries map[string]*OptimizedImageResult
	puts    int
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: map[string]*OptimizedImageResult{}}
}

func (f *fakeCache) Get(_ context.Context, key string) (*OptimizedImageResult, bool) {
	res, ok := f.entries[key]
	return res, ok
}

func (f *fakeCache) Put(_ context.Context, key string, res *OptimizedImageResult) {
	f.puts++
	f.entries[key] = res
}

func serviceFixture(t *testing.T, cfg *config.Config) (*Service, *fakeLoader, *fakeCache) {
	t.Helper()
	loader := &fakeLoader{images: map[string]*SourceImage{
		"photos/shirt.jpg": {
			Ref:   "photos/shirt.jpg",
			Data:  bytes.Repeat([]byte{0x42}, 400_000),
			Image: testImage(800, 600),
			Meta:  ImageMetadata{Width: 800, Height: 600, Channels: 3, Format: "jpeg"},
		},
		"assets/broken.png": {
			Ref:  "assets/broken.png",
			Data: []byte("corrupt png bytes"),
			Meta: ImageMetadata{Format: "png"},
		},
	}}
	cache := newFakeCache()
	store := config.NewStore(cfg, "", nil)
	svc, err := NewService(store, loader, cache, logging.NewTestLogger().Logger)
	require.NoError(t, err)
	return svc, loader, cache
}

func TestService_OptimizeImage(t *testing.T) {
	svc, _, cache := serviceFixture(t, config.Default())

	res := svc.OptimizeImage(context.Background(), "photos/shirt.jpg", "")
	require.NotNil(t, res)
	require.True(t, res.Succeeded())
	assert.Equal(t, TechniqueAggressive, res.Technique)
	assert.Equal(t, ContentTypePhoto, res.ContentType)
	assert.Equal(t, FormatJPEG, res.Format)
	assert.Equal(t, 270, res.Width)
	assert.Equal(t, 203, res.Height)
	assert.Less(t, res.OptimizedSize, res.OriginalSize)
	assert.Positive(t, res.ProcessingTime)

	// A successful result lands in the cache under the normalized key.
	assert.Equal(t, 1, cache.puts)
	_, ok := cache.entries["key:photos/shirt.jpg"]
	assert.True(t, ok)
}

func TestService_CacheHit(t *testing.T) {
	svc, loader, cache := serviceFixture(t, config.Default())
	cache.entries["key:photos/shirt.jpg"] = &OptimizedImageResult{
		Buffer:        []byte("cached bytes"),
		OptimizedSize: 12,
		Format:        FormatJPEG,
		ContentType:   ContentTypePhoto,
		Technique:     TechniqueComprehensive,
	}

	res := svc.OptimizeImage(context.Background(), "photos/shirt.jpg", "")
	require.NotNil(t, res)
	assert.Equal(t, TechniqueStorage, res.Technique)
	assert.Equal(t, []byte("cached bytes"), res.Buffer)
	assert.Equal(t, 0, loader.loads)

	// The stored entry keeps its original technique.
	assert.Equal(t, TechniqueComprehensive, cache.entries["key:photos/shirt.jpg"].Technique)
}

func TestService_CacheDisabled(t *testing.T) {
	cfg := config.Default()
	cfg.Cache.Enabled = false
	svc, loader, cache := serviceFixture(t, cfg)
	cache.entries["key:photos/shirt.jpg"] = &OptimizedImageResult{Buffer: []byte("stale")}

	res := svc.OptimizeImage(context.Background(), "photos/shirt.jpg", "")
	require.True(t, res.Succeeded())
	assert.NotEqual(t, TechniqueStorage, res.Technique)
	assert.Equal(t, 1, loader.loads)
	assert.Equal(t, 0, cache.puts)
}

func TestService_HintOverride(t *testing.T) {
	svc, _, _ := serviceFixture(t, config.Default())

	res := svc.OptimizeImage(context.Background(), "photos/shirt.jpg", ContentTypeGraphics)
	require.True(t, res.Succeeded())
	assert.Equal(t, ContentTypeGraphics, res.ContentType)
	assert.Equal(t, FormatPNG, res.Format)
}

func TestService_NeverReturnsNil(t *testing.T) {
	refs := []string{
		"photos/shirt.jpg", // healthy
		"assets/broken.png", // undecodable
		"missing.jpg",       // load failure
	}

	for _, fallbackEnabled := range []bool{true, false} {
		cfg := config.Default()
		cfg.Fallback.Enabled = fallbackEnabled
		svc, _, _ := serviceFixture(t, cfg)

		for _, ref := range refs {
			res := svc.OptimizeImage(context.Background(), ref, "")
			require.NotNil(t, res, "ref %s fallback=%v", ref, fallbackEnabled)
			assert.True(t, res.Succeeded() || res.Error != "",
				"ref %s must have bytes or an error", ref)
		}
	}
}

func TestService_FallbackOnUndecodableSource(t *testing.T) {
	svc, _, _ := serviceFixture(t, config.Default())

	// No decoded image, so every encoding tier fails and the original
	// bytes come back from the original-image tier.
	res := svc.OptimizeImage(context.Background(), "assets/broken.png", "")
	require.NotNil(t, res)
	require.True(t, res.Succeeded())
	assert.Equal(t, TechniqueFallback, res.Technique)
	assert.Equal(t, []byte("corrupt png bytes"), res.Buffer)
}

func TestService_CriticalRecovery(t *testing.T) {
	cfg := config.Default()
	cfg.Fallback.Enabled = false
	svc, _, cache := serviceFixture(t, cfg)

	res := svc.OptimizeImage(context.Background(), "assets/broken.png", "")
	require.NotNil(t, res)
	require.True(t, res.Succeeded())
	assert.Equal(t, TechniqueCriticalRecovery, res.Technique)
	assert.Equal(t, []byte("corrupt png bytes"), res.Buffer)
	assert.Equal(t, res.OriginalSize, res.OptimizedSize)

	// Recovered results still count as usable bytes for the reuse cache.
	assert.Equal(t, 1, cache.puts)
}

func TestService_PlaceholderOnTotalFailure(t *testing.T) {
	cfg := config.Default()
	cfg.Fallback.Enabled = false
	svc, _, cache := serviceFixture(t, cfg)

	res := svc.OptimizeImage(context.Background(), "missing.jpg", "")
	require.NotNil(t, res)
	assert.False(t, res.Succeeded())
	assert.Empty(t, res.Buffer)
	assert.NotEmpty(t, res.Error)
	assert.Equal(t, "load", res.ErrorCategory)
	assert.Equal(t, TechniqueFallback, res.Technique)

	// Failures never pollute the cache.
	assert.Equal(t, 0, cache.puts)
}

func TestService_LargePhotoRatioAndStability(t *testing.T) {
	cfg := config.Default()
	cfg.Cache.Enabled = false
	ldr := &fakeLoader{images: map[string]*SourceImage{
		"photos/hero.jpg": {
			Ref:   "photos/hero.jpg",
			Data:  bytes.Repeat([]byte{0x51}, 600_000),
			Image: testImage(2000, 1500),
			Meta:  ImageMetadata{Width: 2000, Height: 1500, Channels: 3, Format: "jpeg"},
		},
	}}
	svc, err := NewService(config.NewStore(cfg, "", nil), ldr, newFakeCache(), logging.NewTestLogger().Logger)
	require.NoError(t, err)

	first := svc.OptimizeImage(context.Background(), "photos/hero.jpg", "")
	require.True(t, first.Succeeded())
	assert.Equal(t, ContentTypePhoto, first.ContentType)
	assert.Equal(t, FormatJPEG, first.Format)
	assert.Equal(t, 270, first.Width)
	assert.Equal(t, 203, first.Height)
	assert.Greater(t, first.CompressionRatio, 0.3)

	// Identical source and config re-optimized without the cache land
	// within one percent of the first size.
	second := svc.OptimizeImage(context.Background(), "photos/hero.jpg", "")
	require.True(t, second.Succeeded())
	assert.InDelta(t, float64(first.OptimizedSize), float64(second.OptimizedSize),
		0.01*float64(first.OptimizedSize))
}

type panickyLoader struct{}

func (panickyLoader) Load(context.Context, string) (*SourceImage, error) {
	panic("loader blew up")
}

func (panickyLoader) Normalize(ref string) string { return ref }

func TestService_PanicBecomesErrorResult(t *testing.T) {
	svc, err := NewService(config.NewStore(config.Default(), "", nil),
		panickyLoader{}, newFakeCache(), logging.NewTestLogger().Logger)
	require.NoError(t, err)

	var res *OptimizedImageResult
	require.NotPanics(t, func() {
		res = svc.OptimizeImage(context.Background(), "photos/a.jpg", ContentTypeLogo)
	})
	require.NotNil(t, res)
	assert.False(t, res.Succeeded())
	assert.Contains(t, res.Error, "unexpected failure")
	assert.Equal(t, "unknown", res.ErrorCategory)
	assert.Equal(t, ContentTypeLogo, res.ContentType)
	assert.Equal(t, TechniqueFallback, res.Technique)
}

func TestService_ComprehensiveWithoutForce(t *testing.T) {
	cfg := config.Default()
	cfg.Aggressive.ForceOptimization = false
	svc, _, _ := serviceFixture(t, cfg)

	res := svc.OptimizeImage(context.Background(), "photos/shirt.jpg", "")
	require.True(t, res.Succeeded())
	assert.Equal(t, TechniqueComprehensive, res.Technique)
}
