package protocol

import "bytes"

// Accumulator holds bytes read from the connection that have not yet been
// consumed as a segment. It is not safe for concurrent use; the receive loop
// owns it.
type Accumulator struct {
	buf []byte
}

// Feed appends p and returns every segment completed by it, in arrival order,
// without the trailing newline (and a single carriage return before it).
// Bytes after the last newline stay buffered for the next call.
func (a *Accumulator) Feed(p []byte) [][]byte {
	a.buf = append(a.buf, p...)

	var segments [][]byte
	for {
		i := bytes.IndexByte(a.buf, SegmentDelimiter)
		if i < 0 {
			break
		}
		seg := a.buf[:i]
		if n := len(seg); n > 0 && seg[n-1] == '\r' {
			seg = seg[:n-1]
		}
		// Copy out, the backing array is reused below
		segments = append(segments, append([]byte(nil), seg...))
		a.buf = a.buf[i+1:]
	}

	if len(a.buf) == 0 {
		a.buf = a.buf[:0:0]
	} else if cap(a.buf) > 2*len(a.buf)+4096 {
		a.buf = append([]byte(nil), a.buf...)
	}
	return segments
}

// Pending returns a copy of the unconsumed bytes
func (a *Accumulator) Pending() []byte {
	return append([]byte(nil), a.buf...)
}

// Len is the number of unconsumed bytes
func (a *Accumulator) Len() int {
	return len(a.buf)
}
