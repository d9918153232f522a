package scanner

import (
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
)

// Decode turns raw file bytes into text. Valid UTF-8 is returned as is;
// otherwise every invalid byte is replaced with U+FFFD and degraded is true.
func Decode(data []byte) (text string, degraded bool) {
	if utf8.Valid(data) {
		return string(data), false
	}
	out, _ := unicode.UTF8.NewDecoder().Bytes(data)
	return string(out), true
}
