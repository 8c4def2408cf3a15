package dbxsdk

import (
	"fmt"
	"strings"
	"unicode/utf16"
)

// encodeArg marshals v for the Dropbox-API-Arg header.
// Header values must be ASCII, so everything from 0x7f up is written as a \uXXXX escape.
func encodeArg(v any) (string, error) {
	raw, err := jsonMarshal(v)
	if err != nil {
		return "", fmt.Errorf("encode api arg: %w", err)
	}

	s := string(raw)
	ascii := true
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x7f {
			ascii = false
			break
		}
	}
	if ascii {
		return s, nil
	}

	var b strings.Builder
	b.Grow(len(s) + 16)
	for _, r := range s {
		switch {
		case r < 0x7f:
			b.WriteRune(r)
		case r > 0xffff:
			hi, lo := utf16.EncodeRune(r)
			fmt.Fprintf(&b, `\u%04x\u%04x`, hi, lo)
		default:
			fmt.Fprintf(&b, `\u%04x`, r)
		}
	}
	return b.String(), nil
}
