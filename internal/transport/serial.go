package transport

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"

	"go.bug.st/serial"

	"epdtext/internal/config"
	appLog "epdtext/internal/log"
)

// Serial reads chunks from a byte stream such as a USB serial gadget.
type Serial struct {
	rw      io.ReadWriter
	buf     []byte
	scratch [256]byte
}

// NewSerial returns a Serial source delivering at most maxChunk bytes per
// poll. rw must return promptly when no data is pending, as a serial port
// with a read timeout does.
func NewSerial(rw io.ReadWriter, maxChunk int) *Serial {
	// One spare byte tells an exactly full payload from an oversized one.
	return &Serial{rw: rw, buf: make([]byte, maxChunk+1)}
}

// OpenSerial opens the configured tty.
func OpenSerial(cfg config.SerialConfig) (serial.Port, error) {
	p, err := serial.Open(cfg.Port, &serial.Mode{BaudRate: cfg.Baud})
	if err != nil {
		return nil, fmt.Errorf("transport: open %s: %w", cfg.Port, err)
	}
	if err := p.SetReadTimeout(time.Duration(cfg.ReadTimeoutMs) * time.Millisecond); err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("transport: set read timeout on %s: %w", cfg.Port, err)
	}
	return p, nil
}

// Poll performs one read. A read longer than maxChunk is truncated and the
// rest of that burst is discarded.
func (s *Serial) Poll() (Chunk, bool) {
	n, err := s.rw.Read(s.buf)
	if err != nil && !errors.Is(err, io.EOF) {
		appLog.Debug("serial read failed", "err", err)
	}
	if n == 0 {
		return Chunk{}, false
	}
	limit := len(s.buf) - 1
	if n > limit {
		dropped := n - limit + s.discard()
		appLog.Info("payload truncated", "max", limit, "dropped", dropped)
		n = limit
	}
	return Chunk{Data: bytes.Clone(s.buf[:n])}, true
}

func (s *Serial) discard() int {
	total := 0
	for {
		n, err := s.rw.Read(s.scratch[:])
		total += n
		if err != nil || n < len(s.scratch) {
			return total
		}
	}
}

// Acknowledge writes msg back on the stream.
func (s *Serial) Acknowledge(msg []byte) error {
	_, err := s.rw.Write(msg)
	return err
}
