package ocr

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseConfirmationHappyPath(t *testing.T) {
	result := ParseConfirmation("#ABCDEfiller42.<<20240101", "#ABCDE", "20240101")

	assert.True(t, result.Matched)
	assert.Equal(t, "#ABCDE", result.Code)
	assert.Equal(t, "42", result.Channel)
	assert.Equal(t, "20240101", result.Timestamp)
}

func TestParseConfirmationTimestampMismatchSurfacesDiagnostics(t *testing.T) {
	result := ParseConfirmation("#ABCDEfiller42.<<20240101", "#ABCDE", "20240102")

	assert.False(t, result.Matched)
	assert.Equal(t, "42", result.Channel)
	assert.Equal(t, "20240101", result.Timestamp)
}

func TestParseConfirmationCodeMismatchSurfacesDiagnostics(t *testing.T) {
	result := ParseConfirmation("#ABCDEfiller42.<<20240101", "#ZZZZZ", "20240101")

	assert.False(t, result.Matched)
	assert.Equal(t, "#ABCDE", result.Code)
	assert.Equal(t, "42", result.Channel)
	assert.Equal(t, "20240101", result.Timestamp)
}

func TestParseConfirmationNoChannelDigitsBeforeAnchor(t *testing.T) {
	result := ParseConfirmation("#ABCDEnoise.<<20240101", "#ABCDE", "20240101")

	assert.False(t, result.Matched)
	assert.Empty(t, result.Channel)
	assert.Empty(t, result.Timestamp)
}

func TestParseConfirmationEmptyText(t *testing.T) {
	result := ParseConfirmation("", "#ABCDE", "20240101")
	assert.Equal(t, Confirmation{}, result)
}

func TestParseConfirmationWhitespaceAndFullWidthNoise(t *testing.T) {
	// Recognized text with interleaved whitespace and full-width brackets
	// and angle quotes, as the engine typically emits them.
	raw := " #aHe5L 頻道． 7 ］＜＜ 01021504 "

	result := ParseConfirmation(raw, "#aHe5L", "01021504")

	assert.True(t, result.Matched)
	assert.Equal(t, "7", result.Channel)
	assert.Equal(t, "01021504", result.Timestamp)
}

func TestParseConfirmationIdeographicSpace(t *testing.T) {
	// U+3000 is outside \s for Go regexps, and NFKC folds it into an
	// ASCII space that would split the timestamp digits if any whitespace
	// survived normalization.
	raw := "#aHe5L頻道.7]＜＜　0102　1504"

	result := ParseConfirmation(raw, "#aHe5L", "01021504")

	assert.True(t, result.Matched)
	assert.Equal(t, "7", result.Channel)
	assert.Equal(t, "01021504", result.Timestamp)
}

func TestParseConfirmationSkipsExpectedChecksWhenEmpty(t *testing.T) {
	result := ParseConfirmation("#ABCDEx9.<<00000000", "", "")

	assert.True(t, result.Matched)
	assert.Equal(t, "9", result.Channel)
	assert.Equal(t, "00000000", result.Timestamp)
}

func TestParseConfirmationNoisyGlyphGrid(t *testing.T) {
	// Synthetic noisy echoes exercising the single-glyph gap between the
	// channel digits and the << anchor. Multi-glyph gaps are a known
	// fragility of the pattern and must fail rather than mis-parse.
	tests := []struct {
		name        string
		text        string
		wantMatched bool
		wantChannel string
	}{
		{"bracket read as dot", "#aHe5L頻道.12.<<01021504", true, "12"},
		{"bracket read as letter", "#aHe5L頻道.12j<<01021504", true, "12"},
		{"bracket read as cjk", "#aHe5L頻道.12】<<01021504", true, "12"},
		// When the bracket glyph is dropped outright, the gap consumes the
		// trailing channel digit instead. Inherited fragility of the
		// single-character gap; pinned here so a pattern change is noticed.
		{"gap glyph dropped truncates the channel", "#aHe5L頻道.12<<01021504", true, "1"},
		{"two glyph gap breaks the anchor", "#aHe5Lx3]}<<01021504", false, ""},
		{"seven digit timestamp", "#aHe5Lx3.<<0102150", false, ""},
		{"anchor missing", "#aHe5Lx3.0102150411", false, ""},
		{"code shorter than five", "#aHe", false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ParseConfirmation(tt.text, "#aHe5L", "01021504")
			assert.Equal(t, tt.wantMatched, result.Matched)
			if tt.wantMatched {
				assert.Equal(t, tt.wantChannel, result.Channel)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "ab<<12", Normalize(" a b ＜＜ 1 2 \n"))
	assert.Equal(t, "[7]", Normalize("［ 7 ］"))
	assert.Equal(t, "<<01021504", Normalize("＜＜　0102　1504"))
}
