package pulse

import (
	"errors"
	"unicode/utf16"
)

// The rich-text editor stores every field with a fixed wrapper: a 3-character
// prefix and a 4-character suffix. Offsets must stay exactly as they are.
// Lengths and offsets are UTF-16 code units, the way the host counts them.
const (
	wrapperPrefixLen = 3
	wrapperSuffixLen = 4

	// minMeaningfulChars is the unwrapped length a field must exceed to count.
	minMeaningfulChars = 2
)

// ErrFieldAbsent is returned when a record does not carry the field at all.
var ErrFieldAbsent = errors.New("pulse field absent")

// Unwrap strips the editor wrapper from a raw field value.
// It reports false when the value is too short to carry the wrapper.
func Unwrap(raw string) (string, bool) {
	units, ok := unwrapUnits(raw)
	if !ok {
		return "", false
	}
	return string(utf16.Decode(units)), true
}

func unwrapUnits(raw string) ([]uint16, bool) {
	units := utf16.Encode([]rune(raw))
	if len(units) < wrapperPrefixLen+wrapperSuffixLen {
		return nil, false
	}
	return units[wrapperPrefixLen : len(units)-wrapperSuffixLen], true
}

// Meaningful reports whether a raw field has more than two characters of content
// once unwrapped. A nil field returns ErrFieldAbsent.
func Meaningful(raw *string) (bool, error) {
	if raw == nil {
		return false, ErrFieldAbsent
	}
	content, ok := unwrapUnits(*raw)
	if !ok {
		return false, nil
	}
	return len(content) > minMeaningfulChars, nil
}
