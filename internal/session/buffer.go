package session

import "strings"

// Buffer is a session's display text. It only grows, except through
// Clear. With a non-zero max size the oldest bytes are dropped once the
// limit is exceeded.
type Buffer struct {
	data    []byte
	maxSize int
}

func NewBuffer(maxSize int) *Buffer {
	return &Buffer{maxSize: maxSize}
}

func (b *Buffer) Append(p []byte) {
	b.data = append(b.data, p...)

	if b.maxSize > 0 && len(b.data) > b.maxSize {
		excess := len(b.data) - b.maxSize
		b.data = append(b.data[:0], b.data[excess:]...)
	}
}

// Bytes returns a copy of the buffer contents.
func (b *Buffer) Bytes() []byte {
	return append([]byte{}, b.data...)
}

func (b *Buffer) String() string {
	return string(b.data)
}

func (b *Buffer) Len() int {
	return len(b.data)
}

func (b *Buffer) Clear() {
	b.data = b.data[:0]
}

// Tail returns the last n lines of the buffer (all of it when n <= 0).
func (b *Buffer) Tail(n int) string {
	return LimitLines(string(b.data), 0, n)
}

// LimitLines keeps the first head or the last tail lines of output.
func LimitLines(output string, head, tail int) string {
	if output == "" {
		return ""
	}

	lines := strings.Split(output, "\n")

	if head > 0 {
		if head >= len(lines) {
			return output
		}
		return strings.Join(lines[:head], "\n")
	}

	if tail > 0 {
		if tail >= len(lines) {
			return output
		}
		return strings.Join(lines[len(lines)-tail:], "\n")
	}

	return output
}
