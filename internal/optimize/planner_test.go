package optimize

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/commercekit/imagepipe/internal/config"
)

func plannerConfig() *config.Config {
	cfg := config.Default()
	cfg.Aggressive.MaxWidth = 300
	cfg.Aggressive.MaxHeight = 300
	cfg.Aggressive.MinWidth = 50
	cfg.Aggressive.MinHeight = 50
	cfg.Aggressive.ForceOptimization = false
	return cfg
}

func TestPlanDimensions(t *testing.T) {
	cfg := plannerConfig()

	tests := []struct {
		name       string
		origW      int
		origH      int
		ct         ContentType
		wantW      int
		wantH      int
	}{
		{
			name:  "landscape photo derives height from width",
			origW: 2000, origH: 1500,
			ct: ContentTypePhoto,
			// photo factor 0.9: 300*0.9=270, height 270/(4/3)=203
			wantW: 270, wantH: 203,
		},
		{
			name:  "portrait photo derives width from height",
			origW: 1500, origH: 2000,
			ct:    ContentTypePhoto,
			wantW: 203, wantH: 270,
		},
		{
			name:  "text scaling factor exceeds max and is clamped",
			origW: 4000, origH: 4000,
			ct: ContentTypeText,
			// 300*1.3=390 clamps to 300; square aspect keeps both at 300
			wantW: 300, wantH: 300,
		},
		{
			name:  "graphics factor is neutral",
			origW: 1000, origH: 1000,
			ct:    ContentTypeGraphics,
			wantW: 300, wantH: 300,
		},
		{
			name:  "extreme panorama floors height at the minimum",
			origW: 6000, origH: 500,
			ct: ContentTypePhoto,
			// 270 wide at 12:1 gives height 23, floored to 50
			wantW: 270, wantH: 50,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, h := PlanDimensions(tt.origW, tt.origH, tt.ct, cfg)
			assert.Equal(t, tt.wantW, w)
			assert.Equal(t, tt.wantH, h)
		})
	}
}

// TestPlanDimensions_Bounds is the planner's core property: results always
// land inside the configured bounds for sane configs.
func TestPlanDimensions_Bounds(t *testing.T) {
	cfg := plannerConfig()
	cfg.Aggressive.ForceOptimization = true

	dims := []struct{ w, h int }{
		{1, 1}, {10, 10}, {50, 50}, {100, 2000}, {2000, 100},
		{640, 480}, {10000, 10000}, {1, 5000}, {5000, 1},
	}
	types := []ContentType{ContentTypeText, ContentTypeLogo, ContentTypeGraphics, ContentTypePhoto}

	for _, d := range dims {
		for _, ct := range types {
			w, h := PlanDimensions(d.w, d.h, ct, cfg)
			assert.GreaterOrEqual(t, w, cfg.Aggressive.MinWidth, "width floor for %dx%d %s", d.w, d.h, ct)
			assert.LessOrEqual(t, w, cfg.Aggressive.MaxWidth, "width ceiling for %dx%d %s", d.w, d.h, ct)
			assert.GreaterOrEqual(t, h, cfg.Aggressive.MinHeight, "height floor for %dx%d %s", d.w, d.h, ct)
			assert.LessOrEqual(t, h, cfg.Aggressive.MaxHeight, "height ceiling for %dx%d %s", d.w, d.h, ct)
		}
	}
}

func TestPlanDimensions_ForceOptimization(t *testing.T) {
	cfg := plannerConfig()
	cfg.Aggressive.ForceOptimization = true

	t.Run("already-small image still shrinks ten percent", func(t *testing.T) {
		w, h := PlanDimensions(200, 200, ContentTypeGraphics, cfg)
		assert.Equal(t, 180, w)
		assert.Equal(t, 180, h)
	})

	t.Run("shrink never crosses the minimum floor", func(t *testing.T) {
		w, h := PlanDimensions(50, 50, ContentTypeLogo, cfg)
		assert.Equal(t, 50, w)
		assert.Equal(t, 50, h)
	})

	t.Run("disabled force keeps small images at their computed target", func(t *testing.T) {
		cfg := plannerConfig()
		w, h := PlanDimensions(200, 200, ContentTypeGraphics, cfg)
		// target 300x300 exceeds the source; without force the plan stands
		assert.Equal(t, 300, w)
		assert.Equal(t, 300, h)
	})
}
