// Package escape decodes keystroke strings typed at the console into the
// raw bytes forwarded to a running command.
package escape

import (
	"fmt"
	"strconv"
	"unicode/utf8"
)

// Keys decodes s into raw keystrokes.
//
//	\x00-\xFF  hex byte (e.g. \x04 for Ctrl+D)
//	\n \r \t   newline, carriage return, tab
//	\e         escape (ASCII 27)
//	\0         NUL
//	\\         literal backslash
//	^A-^Z      control letter (^C is 0x03); ^@ ^[ ^\ ^] ^^ ^_ likewise
//	^?         DEL
//
// Any other escaped character passes through without its backslash, so
// \^ is a literal caret. A caret not followed by a control letter is
// literal too.
func Keys(s string) ([]byte, error) {
	out := make([]byte, 0, len(s))

	i := 0
	for i < len(s) {
		switch s[i] {
		case '^':
			if i+1 < len(s) {
				if c, ok := caret(s[i+1]); ok {
					out = append(out, c)
					i += 2
					continue
				}
			}
			out = append(out, '^')
			i++
			continue
		case '\\':
		default:
			out = append(out, s[i])
			i++
			continue
		}

		if i+1 >= len(s) {
			return nil, fmt.Errorf("incomplete escape sequence at end of input")
		}

		switch s[i+1] {
		case 'x':
			if i+3 >= len(s) {
				return nil, fmt.Errorf("incomplete hex escape sequence at position %d", i)
			}
			hex := s[i+2 : i+4]
			val, err := strconv.ParseUint(hex, 16, 8)
			if err != nil {
				return nil, fmt.Errorf("invalid hex escape \\x%s at position %d", hex, i)
			}
			out = append(out, byte(val))
			i += 4
		case 'n':
			out = append(out, '\n')
			i += 2
		case 'r':
			out = append(out, '\r')
			i += 2
		case 't':
			out = append(out, '\t')
			i += 2
		case 'e':
			out = append(out, 0x1b)
			i += 2
		case '0':
			out = append(out, 0x00)
			i += 2
		case '\\':
			out = append(out, '\\')
			i += 2
		default:
			r, size := utf8.DecodeRuneInString(s[i+1:])
			out = utf8.AppendRune(out, r)
			i += 1 + size
		}
	}

	return out, nil
}

func caret(c byte) (byte, bool) {
	switch {
	case c >= 'a' && c <= 'z':
		return c - 'a' + 1, true
	case c >= '@' && c <= '_':
		return c - '@', true
	case c == '?':
		return 0x7f, true
	}
	return 0, false
}
