package ocr

import (
	"fmt"

	"github.com/otiai10/gosseract/v2"
	"gocv.io/x/gocv"
)

// Recognizer extracts text from a binarized image. Implementations are
// opaque to the verifier; recognition quality is not a property of this
// package.
type Recognizer interface {
	Text(img gocv.Mat) (string, error)
}

// RecognizerConfig configures the Tesseract-backed recognizer.
type RecognizerConfig struct {
	// Languages passed to Tesseract. The chat surface mixes traditional
	// Chinese display names with ASCII codes and digits.
	Languages []string `toml:"languages"`
}

// DefaultRecognizerConfig returns recognizer defaults.
func DefaultRecognizerConfig() RecognizerConfig {
	return RecognizerConfig{
		Languages: []string{"chi_tra", "eng"},
	}
}

// TesseractRecognizer runs a local Tesseract engine via gosseract. Not safe
// for concurrent use; the verifier invokes it strictly sequentially.
type TesseractRecognizer struct {
	client *gosseract.Client
}

// NewTesseractRecognizer creates a recognizer with the configured languages
// and single-block page segmentation.
func NewTesseractRecognizer(config RecognizerConfig) (*TesseractRecognizer, error) {
	client := gosseract.NewClient()

	if err := client.SetLanguage(config.Languages...); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to set tesseract languages: %w", err)
	}

	// PSM 6: assume a single uniform block of text, which matches the
	// cropped chat region.
	if err := client.SetPageSegMode(gosseract.PSM_SINGLE_BLOCK); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to set tesseract page segmentation mode: %w", err)
	}

	return &TesseractRecognizer{client: client}, nil
}

// Text runs recognition on a binarized image.
func (r *TesseractRecognizer) Text(img gocv.Mat) (string, error) {
	buf, err := gocv.IMEncode(gocv.PNGFileExt, img)
	if err != nil {
		return "", fmt.Errorf("failed to encode image for recognition: %w", err)
	}
	defer buf.Close()

	if err := r.client.SetImageFromBytes(buf.GetBytes()); err != nil {
		return "", fmt.Errorf("failed to load image into tesseract: %w", err)
	}

	text, err := r.client.Text()
	if err != nil {
		return "", fmt.Errorf("tesseract recognition failed: %w", err)
	}
	return text, nil
}

// Close releases the underlying Tesseract client.
func (r *TesseractRecognizer) Close() error {
	return r.client.Close()
}
