package filter

import "bytes"

// Detector finds a completion marker (a shell prompt or sentinel) in a
// stream of output chunks. A marker only counts when it terminates the
// scanned data: a shell prints its prompt last and then blocks on input.
// Handles cross-chunk markers via a pending buffer.
type Detector struct {
	marker  []byte
	pending []byte
}

// NewDetector creates a detector for marker. An empty marker never matches.
func NewDetector(marker string) *Detector {
	return &Detector{marker: []byte(marker)}
}

// Marker returns the marker being detected.
func (d *Detector) Marker() string {
	return string(d.marker)
}

// Scan analyzes a chunk and returns the data to display and whether the
// marker terminated it. The marker itself is removed from out. Trailing
// bytes that could start the marker are held back until the next chunk.
func (d *Detector) Scan(chunk []byte) (out []byte, found bool) {
	data := chunk
	if len(d.pending) > 0 {
		data = make([]byte, len(d.pending)+len(chunk))
		copy(data, d.pending)
		copy(data[len(d.pending):], chunk)
		d.pending = nil
	}

	if len(d.marker) == 0 {
		return data, false
	}

	if bytes.HasSuffix(data, d.marker) {
		return data[:len(data)-len(d.marker)], true
	}

	// Keep the longest suffix that is a proper prefix of the marker.
	for n := min(len(d.marker)-1, len(data)); n > 0; n-- {
		if bytes.Equal(data[len(data)-n:], d.marker[:n]) {
			d.pending = append([]byte{}, data[len(data)-n:]...)
			return data[:len(data)-n], false
		}
	}
	return data, false
}

// Holding reports whether bytes are held back as a possible marker start.
func (d *Detector) Holding() bool {
	return len(d.pending) > 0
}

// Flush returns any pending bytes (call when the stream ends).
func (d *Detector) Flush() []byte {
	pending := d.pending
	d.pending = nil
	return pending
}

// Reset drops pending bytes.
func (d *Detector) Reset() {
	d.pending = nil
}
