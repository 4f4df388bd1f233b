package watcher

import (
	"fmt"
	"time"
)

// StampLayout renders the eight-digit dispatch stamp (month, day, hour,
// minute). Eight digits exactly: the confirmation parser validates the
// echoed stamp with a strict \d{8}.
const StampLayout = "01021504"

// Stamp formats a dispatch timestamp.
func Stamp(t time.Time) string {
	return t.Format(StampLayout)
}

// BuildWhispers formats the two-part dispatch message for an account: a
// header whisper carrying the display name and code, and a marker whisper
// carrying the stamp behind the << anchor the echo renders back.
func BuildWhispers(displayName, code, greeting, stamp string) (header, marker string) {
	to := displayName + code
	header = fmt.Sprintf("/w %s %s", to, greeting)
	marker = fmt.Sprintf("/w %s <<%s", to, stamp)
	return header, marker
}
