package extraction

import (
	"unicode/utf8"

	"github.com/campersurfer/Autopicker/internal/utils/sanitize"
)

// NormalizeText applies the canonical text policies: valid NFC UTF-8,
// U+FFFD for invalid sequences, control characters stripped except tab
// and newline, and a byte cap with a truncation flag.
func NormalizeText(text string, capBytes int) (string, bool) {
	text = sanitize.Text(text)
	if capBytes <= 0 || len(text) <= capBytes {
		return text, false
	}

	cut := capBytes
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut], true
}
