package filter

// dropped marks the C0 control bytes a node console does not render.
// Backspace, line feed and carriage return are kept.
var dropped = func() (t [256]bool) {
	for b := 0x00; b <= 0x1F; b++ {
		t[b] = true
	}
	t['\b'] = false
	t['\n'] = false
	t['\r'] = false
	return t
}()

// Control returns a copy of b without the disallowed control bytes
// (0x00-0x07, 0x09, 0x0B-0x0C, 0x0E-0x1F).
func Control(b []byte) []byte {
	out := make([]byte, 0, len(b))
	for _, c := range b {
		if !dropped[c] {
			out = append(out, c)
		}
	}
	return out
}

// Allowed reports whether c survives Control.
func Allowed(c byte) bool {
	return !dropped[c]
}
