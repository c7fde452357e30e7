// Package sanitize normalizes untrusted text before it reaches storage,
// prompts, or logs.
package sanitize

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

const maxFilenameLength = 255

// Text returns s as valid NFC-normalized UTF-8. Invalid byte sequences
// become U+FFFD and control characters other than tab and newline are
// dropped.
func Text(s string) string {
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, string(utf8.RuneError))
	}
	s = norm.NFC.String(s)

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if isDroppedControl(r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// HasNUL reports whether s contains a NUL byte. Request fields carrying
// NUL are rejected rather than repaired.
func HasNUL(s string) bool {
	return strings.ContainsRune(s, 0)
}

// Filename reduces a client-supplied name to a safe basename: path
// separators and traversal sequences are removed, control characters are
// dropped, and the result is capped at 255 bytes. An empty result
// becomes "unnamed".
func Filename(name string) string {
	name = Text(name)
	name = strings.ReplaceAll(name, "\t", "")
	name = strings.ReplaceAll(name, "\n", "")

	// Keep only the final path element regardless of separator style.
	if idx := strings.LastIndexAny(name, "/\\"); idx >= 0 {
		name = name[idx+1:]
	}
	name = strings.TrimSpace(name)
	for strings.HasPrefix(name, "..") {
		name = strings.TrimPrefix(name, "..")
	}
	name = strings.TrimLeft(name, ". ")

	if len(name) > maxFilenameLength {
		name = truncateToValidUTF8(name, maxFilenameLength)
	}
	if name == "" {
		return "unnamed"
	}
	return name
}

// IsTraversal reports whether a client-supplied name attempts to escape
// the target directory.
func IsTraversal(name string) bool {
	return strings.Contains(name, "..") || strings.ContainsAny(name, "/\\")
}

func truncateToValidUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	s = s[:n]
	for len(s) > 0 && !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s
}

func isDroppedControl(r rune) bool {
	if r == '\t' || r == '\n' {
		return false
	}
	return r < 0x20 || r == 0x7f
}
