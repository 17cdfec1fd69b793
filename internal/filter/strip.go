package filter

import (
	"bytes"

	"github.com/charmbracelet/x/ansi"
)

// StripANSI removes ANSI escape sequences from b. Sequences are discarded,
// never interpreted. Run it before Control: Control drops ESC on its own
// and would leave the sequence parameters behind as visible text.
func StripANSI(b []byte) []byte {
	if bytes.IndexByte(b, 0x1B) < 0 {
		return append([]byte{}, b...)
	}
	return []byte(ansi.Strip(string(b)))
}
