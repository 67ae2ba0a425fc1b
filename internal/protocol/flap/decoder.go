package flap

// Decoder reassembles frames from arbitrarily sized transport chunks. A chunk
// may hold part of a header, part of a payload, or several frames.
type Decoder struct {
	buf []byte
	off int
}

// Feed appends a chunk to the reassembly buffer. The chunk is copied.
// Consumed bytes are dropped first, so the buffer never holds more than one
// partial frame plus the new chunk.
func (d *Decoder) Feed(chunk []byte) {
	if d.off > 0 {
		n := copy(d.buf, d.buf[d.off:])
		d.buf = d.buf[:n]
		d.off = 0
	}
	d.buf = append(d.buf, chunk...)
}

// Next extracts one complete frame if enough bytes are buffered. It returns
// ok=false when more input is required. A non-nil error means the stream is
// malformed and cannot be resynchronized.
func (d *Decoder) Next() (Frame, bool, error) {
	pending := d.buf[d.off:]
	if len(pending) < HeaderLen {
		return Frame{}, false, nil
	}
	t, seq, n, err := DecodeHeader(pending)
	if err != nil {
		return Frame{}, false, err
	}
	if len(pending) < HeaderLen+n {
		return Frame{}, false, nil
	}
	payload := make([]byte, n)
	copy(payload, pending[HeaderLen:HeaderLen+n])
	d.off += HeaderLen + n
	if d.off == len(d.buf) {
		d.buf = d.buf[:0]
		d.off = 0
	}
	return Frame{Type: t, Sequence: seq, Payload: payload}, true, nil
}

// Buffered reports how many bytes are waiting for the rest of a frame.
func (d *Decoder) Buffered() int {
	return len(d.buf) - d.off
}

// Sequencer assigns outgoing sequence numbers for one connection. Numbers
// increase by one per frame and wrap at 16 bits.
type Sequencer struct {
	next uint16
}

// NewSequencer starts numbering at start.
func NewSequencer(start uint16) *Sequencer {
	return &Sequencer{next: start}
}

// Next returns the sequence number for the next outgoing frame.
func (s *Sequencer) Next() uint16 {
	seq := s.next
	s.next++
	return seq
}
