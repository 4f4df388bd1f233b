package ocr

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

// ==============================================================================
// Test Helpers
// ==============================================================================

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError, // Reduce noise in tests
	}))
}

// stubCapturer returns fresh frames until failAfter captures, then errors.
type stubCapturer struct {
	err      error
	captures int
}

func (c *stubCapturer) CaptureFrame(ctx context.Context) (gocv.Mat, error) {
	if c.err != nil {
		return gocv.Mat{}, c.err
	}
	c.captures++
	return gocv.NewMatWithSize(10, 10, gocv.MatTypeCV8UC3), nil
}

// stubPrep passes frames through untouched.
type stubPrep struct {
	dumps []string
}

func (p *stubPrep) Prepare(frame gocv.Mat) gocv.Mat {
	return frame.Clone()
}

func (p *stubPrep) PrepareStages(frame gocv.Mat) (gocv.Mat, gocv.Mat, gocv.Mat) {
	return frame.Clone(), frame.Clone(), frame.Clone()
}

func (p *stubPrep) DumpDebug(stage string, img gocv.Mat) {
	p.dumps = append(p.dumps, stage)
}

// stubRecognizer replays a queue of recognition results.
type stubRecognizer struct {
	texts []string
	errs  []error
	calls int
}

func (r *stubRecognizer) Text(img gocv.Mat) (string, error) {
	i := r.calls
	r.calls++

	var err error
	if i < len(r.errs) {
		err = r.errs[i]
	}
	text := ""
	if i < len(r.texts) {
		text = r.texts[i]
	}
	return text, err
}

func newTestVerifier(t *testing.T, config VerifierConfig, capturer FrameCapturer, recognizer Recognizer) *Verifier {
	t.Helper()
	v, err := NewVerifier(config, capturer, &stubPrep{}, recognizer, testLogger())
	require.NoError(t, err)
	return v
}

// ==============================================================================
// Tests
// ==============================================================================

func TestVerifyCaptureFailureAbortsWithoutRetry(t *testing.T) {
	capturer := &stubCapturer{err: errors.New("device unreachable")}
	recognizer := &stubRecognizer{}
	v := newTestVerifier(t, VerifierConfig{Retries: 5, RetryDelay: 0}, capturer, recognizer)

	verdict, err := v.Verify(context.Background(), "#ABCDE", "20240101")

	require.ErrorIs(t, err, ErrCaptureFailed)
	assert.False(t, verdict.Verified)
	assert.Empty(t, verdict.Channel)
	assert.Empty(t, verdict.RawText)
	assert.Equal(t, 0, recognizer.calls, "capture failure must not reach recognition")
}

func TestVerifyShortCircuitsOnFirstMatch(t *testing.T) {
	capturer := &stubCapturer{}
	recognizer := &stubRecognizer{texts: []string{
		"garbage",
		"#ABCDEfiller42.<<20240101",
		"should never be reached",
	}}
	v := newTestVerifier(t, VerifierConfig{Retries: 5, RetryDelay: 0}, capturer, recognizer)

	verdict, err := v.Verify(context.Background(), "#ABCDE", "20240101")

	require.NoError(t, err)
	assert.True(t, verdict.Verified)
	assert.Equal(t, "42", verdict.Channel)
	assert.Equal(t, 2, recognizer.calls)
	assert.Equal(t, 2, capturer.captures)
}

func TestVerifyExhaustionReturnsLastRawText(t *testing.T) {
	capturer := &stubCapturer{}
	recognizer := &stubRecognizer{texts: []string{"first", "second", "third"}}
	v := newTestVerifier(t, VerifierConfig{Retries: 3, RetryDelay: 0}, capturer, recognizer)

	verdict, err := v.Verify(context.Background(), "#ABCDE", "20240101")

	require.NoError(t, err)
	assert.False(t, verdict.Verified)
	assert.Empty(t, verdict.Channel)
	assert.Equal(t, "third", verdict.RawText)
	assert.Equal(t, 3, recognizer.calls)
}

func TestVerifyRecognitionErrorCountsAsAttempt(t *testing.T) {
	capturer := &stubCapturer{}
	recognizer := &stubRecognizer{
		texts: []string{"", "#ABCDEx42.<<20240101"},
		errs:  []error{errors.New("tesseract crashed"), nil},
	}
	v := newTestVerifier(t, VerifierConfig{Retries: 2, RetryDelay: 0}, capturer, recognizer)

	verdict, err := v.Verify(context.Background(), "#ABCDE", "20240101")

	require.NoError(t, err)
	assert.True(t, verdict.Verified)
	assert.Equal(t, "42", verdict.Channel)
}

func TestVerifyDebugImagesDumpOnlyFirstAttempt(t *testing.T) {
	capturer := &stubCapturer{}
	recognizer := &stubRecognizer{texts: []string{"noise", "noise"}}
	prep := &stubPrep{}
	v, err := NewVerifier(VerifierConfig{Retries: 2, RetryDelay: 0, DebugImages: true}, capturer, prep, recognizer, testLogger())
	require.NoError(t, err)

	_, err = v.Verify(context.Background(), "#ABCDE", "20240101")

	require.NoError(t, err)
	assert.Equal(t, []string{"cropped", "gray_iso", "bw"}, prep.dumps)
}

func TestVerifyHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	capturer := &stubCapturer{}
	recognizer := &stubRecognizer{texts: []string{"noise", "noise"}}
	v := newTestVerifier(t, DefaultVerifierConfig(), capturer, recognizer)

	_, err := v.Verify(ctx, "#ABCDE", "20240101")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestVerifierConfigValidation(t *testing.T) {
	_, err := NewVerifier(VerifierConfig{Retries: 0}, &stubCapturer{}, &stubPrep{}, &stubRecognizer{}, testLogger())
	assert.Error(t, err)

	_, err = NewVerifier(VerifierConfig{Retries: 1, RetryDelay: -1}, &stubCapturer{}, &stubPrep{}, &stubRecognizer{}, testLogger())
	assert.Error(t, err)
}
