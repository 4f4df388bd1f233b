package ocr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gocv.io/x/gocv"
)

// ErrCaptureFailed indicates the device link could not produce a frame.
// Capture failure is not retried: it signals a broken device link, not a
// transient recognition miss.
var ErrCaptureFailed = errors.New("ocr: frame capture failed")

// FrameCapturer produces raw screen frames on demand. The returned Mat is
// owned by the caller.
type FrameCapturer interface {
	CaptureFrame(ctx context.Context) (gocv.Mat, error)
}

// Preprocessor converts a captured frame into a binarized image and exposes
// the pipeline intermediates for debug dumps.
type Preprocessor interface {
	Prepare(frame gocv.Mat) gocv.Mat
	PrepareStages(frame gocv.Mat) (cropped, gray, bw gocv.Mat)
	DumpDebug(stage string, img gocv.Mat)
}

// VerifierConfig bounds the verification retry loop.
type VerifierConfig struct {
	// Maximum recognition attempts per verification.
	Retries int `toml:"retries"`

	// Delay between attempts. The confirmation text renders asynchronously
	// after the send completes, so an immediate capture frequently races
	// the render.
	RetryDelay time.Duration `toml:"retry_delay"`

	// Dump pipeline intermediates on the first attempt of each
	// verification.
	DebugImages bool `toml:"debug_images"`
}

// DefaultVerifierConfig returns verifier defaults.
func DefaultVerifierConfig() VerifierConfig {
	return VerifierConfig{
		Retries:    3,
		RetryDelay: 1 * time.Second,
	}
}

// validateVerifierConfig validates verifier configuration.
func validateVerifierConfig(config VerifierConfig) error {
	if config.Retries <= 0 {
		return fmt.Errorf("retries must be positive, got %d", config.Retries)
	}
	if config.RetryDelay < 0 {
		return fmt.Errorf("retry_delay must not be negative, got %v", config.RetryDelay)
	}
	return nil
}

// Verdict is the outcome of one verification.
type Verdict struct {
	Verified bool
	Channel  string

	// RawText holds the last raw recognized text, for diagnostics when
	// verification fails.
	RawText string
}

// Verifier orchestrates capture, preprocessing, recognition and parsing
// into a pass/fail verdict with the extracted channel.
type Verifier struct {
	config     VerifierConfig
	capturer   FrameCapturer
	prep       Preprocessor
	recognizer Recognizer
	logger     *slog.Logger
}

// NewVerifier creates a verifier over the given capture, preprocessing and
// recognition collaborators.
func NewVerifier(config VerifierConfig, capturer FrameCapturer, prep Preprocessor, recognizer Recognizer, logger *slog.Logger) (*Verifier, error) {
	if err := validateVerifierConfig(config); err != nil {
		return nil, fmt.Errorf("invalid verifier config: %w", err)
	}

	return &Verifier{
		config:     config,
		capturer:   capturer,
		prep:       prep,
		recognizer: recognizer,
		logger:     logger,
	}, nil
}

// Verify attempts to confirm that a dispatch with the expected code and
// timestamp rendered on screen, retrying up to the configured attempt count.
//
// A capture failure aborts immediately with ErrCaptureFailed. Exhausting
// all attempts is not an error: the verdict carries Verified=false and the
// last raw recognized text.
func (v *Verifier) Verify(ctx context.Context, expectedCode, expectedTS string) (Verdict, error) {
	lastRaw := ""

	for attempt := 1; attempt <= v.config.Retries; attempt++ {
		frame, err := v.capturer.CaptureFrame(ctx)
		if err != nil {
			v.logger.Error("frame capture failed, aborting verification",
				"attempt", attempt,
				"error", err)
			return Verdict{}, fmt.Errorf("%w: %w", ErrCaptureFailed, err)
		}

		raw, err := v.recognizeAttempt(frame, attempt)
		frame.Close()
		if err != nil {
			v.logger.Warn("recognition attempt failed",
				"attempt", attempt,
				"error", err)
		} else {
			lastRaw = raw

			result := ParseConfirmation(raw, expectedCode, expectedTS)
			if result.Matched {
				v.logger.Info("delivery verified",
					"code", expectedCode,
					"channel", result.Channel,
					"attempt", attempt)
				return Verdict{Verified: true, Channel: result.Channel, RawText: raw}, nil
			}

			v.logger.Debug("confirmation not found in recognized text",
				"attempt", attempt,
				"channel", result.Channel,
				"timestamp", result.Timestamp)
		}

		if attempt < v.config.Retries {
			if err := sleepContext(ctx, v.config.RetryDelay); err != nil {
				return Verdict{RawText: lastRaw}, err
			}
		}
	}

	v.logger.Warn("verification retries exhausted",
		"code", expectedCode,
		"retries", v.config.Retries)
	return Verdict{RawText: lastRaw}, nil
}

// recognizeAttempt runs preprocessing and recognition on a single frame.
func (v *Verifier) recognizeAttempt(frame gocv.Mat, attempt int) (string, error) {
	if v.config.DebugImages && attempt == 1 {
		cropped, gray, bw := v.prep.PrepareStages(frame)
		defer cropped.Close()
		defer gray.Close()
		defer bw.Close()

		v.prep.DumpDebug("cropped", cropped)
		v.prep.DumpDebug("gray_iso", gray)
		v.prep.DumpDebug("bw", bw)

		return v.recognizer.Text(bw)
	}

	bw := v.prep.Prepare(frame)
	defer bw.Close()

	return v.recognizer.Text(bw)
}

// sleepContext sleeps for the given duration or until the context ends.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
