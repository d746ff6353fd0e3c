package protocol

import "bytes"

// Decoder reassembles newline-delimited lines from arbitrary stdout chunks.
// It is not safe for concurrent use.
type Decoder struct {
	pending []byte
	closed  bool
}

// NewDecoder returns an empty decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Feed appends a chunk and returns every line it completed, in order.
// Blank lines are skipped. A trailing partial line is kept for the next call.
func (d *Decoder) Feed(chunk []byte) []Line {
	if d.closed || len(chunk) == 0 {
		return nil
	}
	d.pending = append(d.pending, chunk...)

	var lines []Line
	for {
		idx := bytes.IndexByte(d.pending, '\n')
		if idx < 0 {
			break
		}
		raw := bytes.TrimSpace(d.pending[:idx])
		d.pending = d.pending[idx+1:]
		if len(raw) == 0 {
			continue
		}
		lines = append(lines, ParseLine(string(raw)))
	}

	if len(d.pending) == 0 {
		d.pending = nil
	}
	return lines
}

// Pending reports how many bytes of an unterminated line are buffered.
func (d *Decoder) Pending() int {
	return len(d.pending)
}

// Close discards any unterminated tail and stops further decoding. The tail
// is returned only so callers can log it.
func (d *Decoder) Close() []byte {
	tail := d.pending
	d.pending = nil
	d.closed = true
	return tail
}
