// Package transport delivers text payloads to the refresh loop and carries
// acknowledgements back to whoever sent them.
package transport

// Chunk is one received payload.
type Chunk struct {
	Data []byte
	// Redraw asks for the last displayed payload to be drawn again. Data is
	// empty and the chunk is not acknowledged.
	Redraw bool
}

// Source is polled by the refresh loop.
type Source interface {
	// Poll returns the next chunk, or false when nothing arrived. It never
	// blocks longer than a short read timeout.
	Poll() (Chunk, bool)
	// Acknowledge sends msg back to the producer of the last polled chunk.
	// It is best effort.
	Acknowledge(msg []byte) error
}

// Truncate drops the bytes of b past limit. A non-positive limit keeps b
// whole.
func Truncate(b []byte, limit int) []byte {
	if limit > 0 && len(b) > limit {
		return b[:limit]
	}
	return b
}

// Static delivers one fixed payload, then nothing.
type Static struct {
	data []byte
	done bool
}

// NewStatic returns a Static source for text.
func NewStatic(text string) *Static {
	return &Static{data: []byte(text)}
}

func (s *Static) Poll() (Chunk, bool) {
	if s.done {
		return Chunk{}, false
	}
	s.done = true
	return Chunk{Data: s.data}, true
}

// Acknowledge is a no-op: nobody is listening.
func (s *Static) Acknowledge([]byte) error {
	return nil
}

// Merged polls several sources in turn.
type Merged struct {
	srcs []Source
	next int
	last Source
}

// Merge returns a source polling srcs round-robin, so a busy source cannot
// starve the others.
func Merge(srcs ...Source) *Merged {
	return &Merged{srcs: srcs}
}

func (m *Merged) Poll() (Chunk, bool) {
	n := len(m.srcs)
	for i := 0; i < n; i++ {
		idx := (m.next + i) % n
		if c, ok := m.srcs[idx].Poll(); ok {
			m.next = (idx + 1) % n
			m.last = m.srcs[idx]
			return c, true
		}
	}
	return Chunk{}, false
}

// Acknowledge is routed to the source of the last polled chunk.
func (m *Merged) Acknowledge(msg []byte) error {
	if m.last == nil {
		return nil
	}
	return m.last.Acknowledge(msg)
}
