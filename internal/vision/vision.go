package vision

import (
	"fmt"
	"image"
	"log/slog"
	"path/filepath"

	"gocv.io/x/gocv"
)

// ROI is a rectangular region of interest in frame pixel coordinates.
// Coordinates are tuned to a known UI layout and clamped to the actual
// frame dimensions before use.
type ROI struct {
	X0 int `toml:"x0"`
	Y0 int `toml:"y0"`
	X1 int `toml:"x1"`
	Y1 int `toml:"y1"`
}

// Config defines the color isolation and binarization parameters.
//
// The hue band defaults are tuned to the bright green the chat surface uses
// for whisper echoes. Any other color scheme falls through the mask and
// produces an empty binarized image, which downstream parsing reports as
// "no match" rather than an error. That is a deliberate tradeoff, not a
// generality claim.
type Config struct {
	Region ROI `toml:"region"`

	// Inclusive HSV hue band plus saturation/value floors that reject
	// washed-out or dark pixels.
	HueLow   float64 `toml:"hue_low"`
	HueHigh  float64 `toml:"hue_high"`
	SatFloor float64 `toml:"sat_floor"`
	ValFloor float64 `toml:"val_floor"`

	// Morphological kernel edge length in pixels.
	KernelSize int `toml:"kernel_size"`

	// CLAHE local contrast enhancement parameters.
	ClaheClipLimit float64 `toml:"clahe_clip_limit"`
	ClaheTileSize  int     `toml:"clahe_tile_size"`

	// When DebugDir is non-empty, intermediate pipeline images are written
	// there on request (see Preprocessor.DumpDebug).
	DebugDir string `toml:"debug_dir"`
}

// DefaultConfig returns preprocessing defaults matching the known chat layout.
func DefaultConfig() Config {
	return Config{
		Region:         ROI{X0: 291, Y0: 219, X1: 890, Y1: 260},
		HueLow:         50,
		HueHigh:        75,
		SatFloor:       100,
		ValFloor:       100,
		KernelSize:     2,
		ClaheClipLimit: 2.0,
		ClaheTileSize:  8,
	}
}

// Validate checks preprocessing configuration.
func (c Config) Validate() error {
	if c.HueLow < 0 || c.HueHigh > 180 || c.HueLow > c.HueHigh {
		return fmt.Errorf("hue band [%v, %v] must satisfy 0 <= low <= high <= 180", c.HueLow, c.HueHigh)
	}
	if c.SatFloor < 0 || c.SatFloor > 255 || c.ValFloor < 0 || c.ValFloor > 255 {
		return fmt.Errorf("saturation/value floors must be within [0, 255]")
	}
	if c.KernelSize <= 0 {
		return fmt.Errorf("kernel_size must be positive, got %d", c.KernelSize)
	}
	if c.ClaheClipLimit <= 0 {
		return fmt.Errorf("clahe_clip_limit must be positive, got %v", c.ClaheClipLimit)
	}
	if c.ClaheTileSize <= 0 {
		return fmt.Errorf("clahe_tile_size must be positive, got %d", c.ClaheTileSize)
	}
	if c.Region.X1 <= c.Region.X0 || c.Region.Y1 <= c.Region.Y0 {
		return fmt.Errorf("region %+v must have positive width and height", c.Region)
	}
	return nil
}

// Preprocessor converts a captured BGR frame into a binarized single-channel
// image suitable for text recognition.
type Preprocessor struct {
	config Config
	logger *slog.Logger
}

// NewPreprocessor creates a preprocessor with validated configuration.
func NewPreprocessor(config Config, logger *slog.Logger) (*Preprocessor, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid vision config: %w", err)
	}

	return &Preprocessor{
		config: config,
		logger: logger,
	}, nil
}

// Crop extracts the configured region of interest from a frame, clamping all
// four bounds to the frame's actual dimensions. If the clamped region
// collapses to empty, the full frame is returned instead.
//
// The returned Mat is always an independent copy the caller must Close.
func (p *Preprocessor) Crop(frame gocv.Mat) gocv.Mat {
	rows, cols := frame.Rows(), frame.Cols()

	x0 := clamp(p.config.Region.X0, 0, cols-1)
	y0 := clamp(p.config.Region.Y0, 0, rows-1)
	x1 := clamp(p.config.Region.X1, 0, cols)
	y1 := clamp(p.config.Region.Y1, 0, rows)

	if x1 <= x0 || y1 <= y0 {
		p.logger.Warn("region of interest collapsed, using full frame",
			"frame_rows", rows,
			"frame_cols", cols)
		return frame.Clone()
	}

	region := frame.Region(image.Rect(x0, y0, x1, y1))
	defer region.Close()
	return region.Clone()
}

// Isolate masks the configured hue band out of a BGR image and returns a
// contrast-enhanced grayscale image: in-band pixels keep their intensity,
// everything else is near-black.
func (p *Preprocessor) Isolate(bgr gocv.Mat) gocv.Mat {
	hsv := gocv.NewMat()
	defer hsv.Close()
	gocv.CvtColor(bgr, &hsv, gocv.ColorBGRToHSV)

	lower := gocv.NewScalar(p.config.HueLow, p.config.SatFloor, p.config.ValFloor, 0)
	upper := gocv.NewScalar(p.config.HueHigh, 255, 255, 0)

	mask := gocv.NewMat()
	defer mask.Close()
	gocv.InRangeWithScalar(hsv, lower, upper, &mask)

	// Small-kernel opening removes speckle noise, closing bridges small
	// gaps in strokes.
	kernel := gocv.GetStructuringElement(gocv.MorphRect, image.Pt(p.config.KernelSize, p.config.KernelSize))
	defer kernel.Close()
	gocv.MorphologyEx(mask, &mask, gocv.MorphOpen, kernel)
	gocv.MorphologyEx(mask, &mask, gocv.MorphClose, kernel)

	colored := gocv.NewMat()
	defer colored.Close()
	gocv.BitwiseAndWithMask(bgr, bgr, &colored, mask)

	gray := gocv.NewMat()
	gocv.CvtColor(colored, &gray, gocv.ColorBGRToGray)

	clahe := gocv.NewCLAHEWithParams(p.config.ClaheClipLimit, image.Pt(p.config.ClaheTileSize, p.config.ClaheTileSize))
	defer clahe.Close()
	clahe.Apply(gray, &gray)

	return gray
}

// Binarize applies Otsu global thresholding to a grayscale image, producing
// a two-level image optimized for text recognition.
func (p *Preprocessor) Binarize(gray gocv.Mat) gocv.Mat {
	bw := gocv.NewMat()
	gocv.Threshold(gray, &bw, 0, 255, gocv.ThresholdBinary|gocv.ThresholdOtsu)
	return bw
}

// Prepare runs the full pipeline on a captured frame: crop, hue isolation,
// binarization. The caller owns the returned Mat and must Close it.
func (p *Preprocessor) Prepare(frame gocv.Mat) gocv.Mat {
	cropped := p.Crop(frame)
	defer cropped.Close()

	gray := p.Isolate(cropped)
	defer gray.Close()

	return p.Binarize(gray)
}

// PrepareStages runs the pipeline and returns the cropped and isolated
// intermediates alongside the binarized result, for debug dumps. The caller
// must Close all three Mats.
func (p *Preprocessor) PrepareStages(frame gocv.Mat) (cropped, gray, bw gocv.Mat) {
	cropped = p.Crop(frame)
	gray = p.Isolate(cropped)
	bw = p.Binarize(gray)
	return cropped, gray, bw
}

// DumpDebug writes an intermediate image to the configured debug directory.
// A no-op when no debug directory is configured.
func (p *Preprocessor) DumpDebug(stage string, img gocv.Mat) {
	if p.config.DebugDir == "" {
		return
	}

	path := filepath.Join(p.config.DebugDir, fmt.Sprintf("debug_%s.png", stage))
	if ok := gocv.IMWrite(path, img); !ok {
		p.logger.Warn("failed to write debug image", "path", path)
		return
	}
	p.logger.Debug("wrote debug image", "path", path)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
