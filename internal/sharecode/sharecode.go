package sharecode

import (
	"math/rand/v2"
	"strings"
	"unicode/utf8"
)

const (
	Length   = 6
	Alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789" // no confusing I/O/1/0
)

// Generate returns a new canonical share code. Codes are join keys, not
// secrets, so the shared math/rand source is enough. Callers persisting the
// code must retry on a uniqueness conflict.
func Generate() string {
	out := make([]byte, Length)
	for i := range out {
		out[i] = Alphabet[rand.IntN(len(Alphabet))]
	}
	return string(out)
}

// IsValid reports whether code looks like a share code: six characters, each
// an uppercase ASCII letter or digit. It accepts I, O, 0 and 1 even though
// Generate never emits them.
func IsValid(code string) bool {
	if len(code) != Length {
		return false
	}
	for i := 0; i < len(code); i++ {
		c := code[i]
		if (c < 'A' || c > 'Z') && (c < '0' || c > '9') {
			return false
		}
	}
	return true
}

// Normalize trims whitespace, uppercases and drops hyphens. It does not
// validate.
func Normalize(code string) string {
	// hyphens go first so "- AB" can't leave leading whitespace behind
	code = strings.ReplaceAll(strings.ToUpper(code), "-", "")
	return strings.TrimSpace(code)
}

// Format renders a code as XXX-XXX for display. Anything that is not six
// characters long is returned as is. Length is counted in runes so non-ASCII
// input is never split inside a character.
func Format(code string) string {
	if utf8.RuneCountInString(code) != Length {
		return code
	}
	r := []rune(code)
	return string(r[:3]) + "-" + string(r[3:])
}

// Parse normalizes raw user input and reports whether the result is a valid
// code.
func Parse(raw string) (string, bool) {
	code := Normalize(raw)
	return code, IsValid(code)
}
