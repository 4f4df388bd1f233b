package device

import (
	"context"
	"fmt"
	"strings"

	"gocv.io/x/gocv"
)

// CaptureFrame grabs the current screen as a BGR image via
// `adb exec-out screencap -p`.
//
// When adb reports multiple devices, the controller rebinds to the first
// ready device and retries once. Any other failure is returned as-is; the
// verifier treats it as a broken device link.
func (c *Controller) CaptureFrame(ctx context.Context) (gocv.Mat, error) {
	png, err := c.run(ctx, c.config.CaptureTimeout, "exec-out", "screencap", "-p")
	if err != nil && strings.Contains(strings.ToLower(err.Error()), "more than one") {
		serial, devErr := c.FirstDevice(ctx)
		if devErr != nil {
			return gocv.Mat{}, fmt.Errorf("screencap failed with multiple devices present: %w", err)
		}

		c.logger.Info("multiple devices present, rebinding to first device", "serial", serial)
		c.serial = serial
		png, err = c.run(ctx, c.config.CaptureTimeout, "exec-out", "screencap", "-p")
	}
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("screencap failed: %w", err)
	}
	if len(png) == 0 {
		return gocv.Mat{}, fmt.Errorf("screencap produced no output")
	}

	frame, err := gocv.IMDecode(png, gocv.IMReadColor)
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("failed to decode captured frame: %w", err)
	}
	if frame.Empty() {
		frame.Close()
		return gocv.Mat{}, fmt.Errorf("captured frame decoded empty")
	}

	return frame, nil
}
