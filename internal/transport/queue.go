package transport

import "errors"

// ErrQueueFull is returned by Push when the queue has no room.
var ErrQueueFull = errors.New("transport: queue full")

// ErrReplyDropped is returned by Acknowledge when the producer is not
// receiving its reply.
var ErrReplyDropped = errors.New("transport: reply dropped")

type pending struct {
	chunk Chunk
	reply chan<- []byte
}

// Queue is a bounded source fed by other goroutines. Push may be called
// concurrently; Poll and Acknowledge belong to the refresh loop.
type Queue struct {
	ch    chan pending
	limit int
	reply chan<- []byte
}

// NewQueue returns a Queue holding up to size chunks, each truncated to
// maxChunk bytes.
func NewQueue(size, maxChunk int) *Queue {
	return &Queue{ch: make(chan pending, size), limit: maxChunk}
}

// Push enqueues c without blocking. When reply is not nil the acknowledgement
// for c is sent on it; it should have room for one message.
func (q *Queue) Push(c Chunk, reply chan<- []byte) error {
	c.Data = Truncate(c.Data, q.limit)
	select {
	case q.ch <- pending{chunk: c, reply: reply}:
		return nil
	default:
		return ErrQueueFull
	}
}

func (q *Queue) Poll() (Chunk, bool) {
	select {
	case p := <-q.ch:
		q.reply = p.reply
		return p.chunk, true
	default:
		return Chunk{}, false
	}
}

// Acknowledge hands msg to the producer of the last polled chunk.
func (q *Queue) Acknowledge(msg []byte) error {
	r := q.reply
	q.reply = nil
	if r == nil {
		return nil
	}
	select {
	case r <- append([]byte(nil), msg...):
		return nil
	default:
		return ErrReplyDropped
	}
}

// Len returns the number of waiting chunks.
func (q *Queue) Len() int {
	return len(q.ch)
}
