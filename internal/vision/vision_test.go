package vision

import (
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError, // Reduce noise in tests
	}))
}

// solidBGR creates a solid-color BGR frame.
func solidBGR(rows, cols int, b, g, r float64) gocv.Mat {
	return gocv.NewMatWithSizeFromScalar(gocv.NewScalar(b, g, r, 0), rows, cols, gocv.MatTypeCV8UC3)
}

func newTestPreprocessor(t *testing.T, config Config) *Preprocessor {
	t.Helper()
	p, err := NewPreprocessor(config, testLogger())
	require.NoError(t, err)
	return p
}

func TestCropClampsToFrameBounds(t *testing.T) {
	config := DefaultConfig()
	config.Region = ROI{X0: 10, Y0: 10, X1: 5000, Y1: 5000}
	p := newTestPreprocessor(t, config)

	frame := solidBGR(100, 200, 0, 0, 0)
	defer frame.Close()

	cropped := p.Crop(frame)
	defer cropped.Close()

	assert.Equal(t, 90, cropped.Rows())
	assert.Equal(t, 190, cropped.Cols())
}

func TestCropFallsBackToFullFrameWhenRegionCollapses(t *testing.T) {
	config := DefaultConfig()
	// Entirely outside a small frame: clamping collapses it to empty.
	config.Region = ROI{X0: 500, Y0: 500, X1: 600, Y1: 600}
	p := newTestPreprocessor(t, config)

	frame := solidBGR(50, 50, 0, 0, 0)
	defer frame.Close()

	cropped := p.Crop(frame)
	defer cropped.Close()

	assert.Equal(t, 50, cropped.Rows())
	assert.Equal(t, 50, cropped.Cols())
}

func TestPrepareProducesNoForegroundWithoutTargetHue(t *testing.T) {
	config := DefaultConfig()
	config.Region = ROI{X0: 0, Y0: 0, X1: 64, Y1: 64}
	p := newTestPreprocessor(t, config)

	// Pure red is far outside the green hue band.
	frame := solidBGR(64, 64, 0, 0, 255)
	defer frame.Close()

	bw := p.Prepare(frame)
	defer bw.Close()

	assert.Equal(t, 0, gocv.CountNonZero(bw))
}

func TestPrepareKeepsForegroundForBrightGreen(t *testing.T) {
	config := DefaultConfig()
	config.Region = ROI{X0: 0, Y0: 0, X1: 64, Y1: 64}
	p := newTestPreprocessor(t, config)

	// Bright green lands inside the default hue band (H around 60 in
	// OpenCV's 0-180 scale).
	frame := solidBGR(64, 64, 0, 255, 0)
	defer frame.Close()

	bw := p.Prepare(frame)
	defer bw.Close()

	assert.Greater(t, gocv.CountNonZero(bw), 0)
}

func TestPrepareRejectsWashedOutGreen(t *testing.T) {
	config := DefaultConfig()
	config.Region = ROI{X0: 0, Y0: 0, X1: 32, Y1: 32}
	p := newTestPreprocessor(t, config)

	// Pale green: correct hue but saturation below the floor.
	frame := solidBGR(32, 32, 220, 255, 220)
	defer frame.Close()

	bw := p.Prepare(frame)
	defer bw.Close()

	assert.Equal(t, 0, gocv.CountNonZero(bw))
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"inverted hue band", func(c *Config) { c.HueLow = 100; c.HueHigh = 50 }},
		{"hue above opencv range", func(c *Config) { c.HueHigh = 200 }},
		{"negative saturation floor", func(c *Config) { c.SatFloor = -1 }},
		{"zero kernel", func(c *Config) { c.KernelSize = 0 }},
		{"zero clahe clip limit", func(c *Config) { c.ClaheClipLimit = 0 }},
		{"empty region", func(c *Config) { c.Region = ROI{X0: 10, Y0: 10, X1: 10, Y1: 20} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.mutate(&config)
			_, err := NewPreprocessor(config, testLogger())
			assert.Error(t, err)
		})
	}
}
