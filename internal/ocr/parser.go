package ocr

import (
	"regexp"

	"golang.org/x/text/unicode/norm"
)

// Confirmation is the structured result of parsing a whisper echo out of
// recognized text. Channel and Timestamp may be populated even when Matched
// is false: a code or timestamp mismatch still surfaces what was read, to
// aid diagnostics.
type Confirmation struct {
	Matched   bool
	Code      string
	Channel   string
	Timestamp string
}

// whisperEcho matches the rendered confirmation line after normalization.
//
//	#(?P<code>.{5})     the identity marker plus exactly five code characters
//	.*?                 recognition garbage between code and channel
//	(?P<channel>\d+)    the channel number
//	.                   exactly one character: the bracket glyph the engine
//	                    routinely misreads
//	<<                  the absolute anchor
//	(?P<ts>\d{8})       exactly eight timestamp digits
//
// The anchor-based shape tolerates misread bracket and separator glyphs
// while keeping strict digit counts on the two validated fields.
var whisperEcho = regexp.MustCompile(`#(?P<code>.{5}).*?(?P<channel>\d+).<<(?P<ts>\d{8})`)

// whitespace matches runs of whitespace. \s alone is ASCII-only in Go
// regexps; \p{Z} picks up the Unicode space separators (U+3000 ideographic
// space above all) that CJK recognition output is full of.
var whitespace = regexp.MustCompile(`[\s\p{Z}]+`)

// Normalize strips all whitespace from recognized text and folds
// compatibility characters (full-width punctuation and friends) to their
// half-width forms, reducing recognition-induced formatting drift.
func Normalize(text string) string {
	stripped := whitespace.ReplaceAllString(text, "")
	folded := norm.NFKC.String(stripped)
	// NFKC can fold compatibility characters into sequences that contain
	// ASCII spaces, so strip once more after folding.
	return whitespace.ReplaceAllString(folded, "")
}

// ParseConfirmation extracts a (code, channel, timestamp) triple from raw
// recognized text and validates it against the expected values. Either
// expectation may be empty to skip that check.
//
// No regex match yields a zero Confirmation. A match that fails validation
// yields Matched=false with Channel and Timestamp still populated.
func ParseConfirmation(text, expectedCode, expectedTS string) Confirmation {
	if text == "" {
		return Confirmation{}
	}

	match := whisperEcho.FindStringSubmatch(Normalize(text))
	if match == nil {
		return Confirmation{}
	}

	// Reconstruct the full code by re-prefixing the identity marker.
	result := Confirmation{
		Code:      "#" + match[whisperEcho.SubexpIndex("code")],
		Channel:   match[whisperEcho.SubexpIndex("channel")],
		Timestamp: match[whisperEcho.SubexpIndex("ts")],
	}

	if expectedCode != "" && result.Code != expectedCode {
		return result
	}
	if expectedTS != "" && result.Timestamp != expectedTS {
		return result
	}

	result.Matched = true
	return result
}
