package shared

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NormalizeName canonicalises a human-entered name: Unicode NFC, surrounding
// blanks trimmed and inner whitespace collapsed. "  Confecção   Silva " and
// the decomposed spelling of the same name compare equal afterwards.
func NormalizeName(s string) string {
	return norm.NFC.String(strings.Join(strings.Fields(s), " "))
}
