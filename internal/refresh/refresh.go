// Package refresh runs the control loop: it polls a source, acknowledges and
// validates each payload, lays it out into the framebuffer and pushes the
// frame through one full panel session.
package refresh

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"epdtext/internal/framebuffer"
	"epdtext/internal/layout"
	appLog "epdtext/internal/log"
	"epdtext/internal/transport"
)

// ErrInvalidPayload marks a payload that is not valid UTF-8.
var ErrInvalidPayload = errors.New("refresh: payload is not valid UTF-8")

// Panel is the display the loop drives. Calls are made in session order:
// Wake, ClearFrame, UpdateFrame, DisplayFrame, Sleep.
type Panel interface {
	Initialize() error
	Wake() error
	ClearFrame() error
	UpdateFrame(buf *framebuffer.Buffer) error
	DisplayFrame() error
	Sleep() error
}

// Options tune the loop.
type Options struct {
	// Ack is sent back for every received chunk, before it is decoded.
	Ack []byte
	// PollInterval is the wait after a poll that returned nothing.
	PollInterval time.Duration
	Metrics      layout.Metrics
	// Once makes Run return after the first chunk is handled.
	Once bool
	// OnFrame is called with the framebuffer after each displayed frame.
	OnFrame func(buf *framebuffer.Buffer)
}

// Status is a snapshot of the loop for reporting.
type Status struct {
	Refreshes   int       `json:"refreshes"`
	Dropped     int       `json:"dropped"`
	LastText    string    `json:"last_text"`
	LastRefresh time.Time `json:"last_refresh"`
	LastError   string    `json:"last_error,omitempty"`
}

// Refresher owns the framebuffer and the panel. It must only be driven from
// one goroutine; Status may be read from any.
type Refresher struct {
	panel    Panel
	src      transport.Source
	buf      *framebuffer.Buffer
	renderer *layout.Renderer
	opts     Options

	last []byte

	mu     sync.Mutex
	status Status
}

// New returns a Refresher drawing into buf.
func New(panel Panel, src transport.Source, buf *framebuffer.Buffer, r *layout.Renderer, opts Options) *Refresher {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 10 * time.Millisecond
	}
	return &Refresher{
		panel:    panel,
		src:      src,
		buf:      buf,
		renderer: r,
		opts:     opts,
	}
}

// Run initializes the panel and loops until ctx is done. It returns nil on
// cancellation and the first panel error otherwise.
func (r *Refresher) Run(ctx context.Context) error {
	if err := r.panel.Initialize(); err != nil {
		r.setError(err)
		return fmt.Errorf("refresh: %w", err)
	}
	appLog.Info("panel initialized")

	for {
		if ctx.Err() != nil {
			return nil
		}

		c, ok := r.src.Poll()
		if !ok {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(r.opts.PollInterval):
			}
			continue
		}

		err := r.handle(c)
		switch {
		case errors.Is(err, ErrInvalidPayload):
			appLog.Info("payload dropped", "reason", err.Error(), "bytes", len(c.Data))
			if r.opts.Once {
				return err
			}
		case err != nil:
			r.setError(err)
			return err
		}
		if r.opts.Once {
			return nil
		}
	}
}

func (r *Refresher) handle(c transport.Chunk) error {
	if c.Redraw {
		if r.last == nil {
			appLog.Debug("redraw skipped, nothing displayed yet")
			return nil
		}
		return r.refresh(r.last)
	}

	if err := r.src.Acknowledge(r.opts.Ack); err != nil {
		appLog.Debug("ack failed", "err", err)
	}
	if !utf8.Valid(c.Data) {
		r.mu.Lock()
		r.status.Dropped++
		r.mu.Unlock()
		return ErrInvalidPayload
	}
	return r.refresh(c.Data)
}

// refresh runs one full panel session for payload.
func (r *Refresher) refresh(payload []byte) error {
	start := time.Now()
	lines := layout.Layout(string(payload), r.opts.Metrics)

	if err := r.panel.Wake(); err != nil {
		return fmt.Errorf("refresh: %w", err)
	}
	if err := r.panel.ClearFrame(); err != nil {
		return fmt.Errorf("refresh: %w", err)
	}

	r.buf.Reset()
	r.renderer.Draw(r.buf, lines)

	if err := r.panel.UpdateFrame(r.buf); err != nil {
		return fmt.Errorf("refresh: %w", err)
	}
	if err := r.panel.DisplayFrame(); err != nil {
		return fmt.Errorf("refresh: %w", err)
	}
	if err := r.panel.Sleep(); err != nil {
		return fmt.Errorf("refresh: %w", err)
	}

	if r.last == nil || !bytes.Equal(r.last, payload) {
		// Non-nil even for an empty payload so a redraw can repeat it.
		r.last = append([]byte{}, payload...)
	}
	r.mu.Lock()
	r.status.Refreshes++
	r.status.LastText = string(payload)
	r.status.LastRefresh = time.Now()
	r.status.LastError = ""
	r.mu.Unlock()

	appLog.Info("display refreshed", "lines", len(lines), "took", time.Since(start).Round(time.Millisecond))

	if r.opts.OnFrame != nil {
		r.opts.OnFrame(r.buf)
	}
	return nil
}

func (r *Refresher) setError(err error) {
	r.mu.Lock()
	r.status.LastError = err.Error()
	r.mu.Unlock()
}

// Status returns a snapshot of the loop counters.
func (r *Refresher) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}
