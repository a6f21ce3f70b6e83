// Package epd drives the Waveshare 2.9" V2 e-paper panel (SSD1680, 128x296)
// over SPI with periph.io.
//
// The driver is a small state machine:
//
//	Uninitialized -> Ready -> Awake -> FrameLoaded -> Displaying -> Ready
//
// Any bus failure or busy timeout moves it to Failed. A failed driver
// refuses every call except Initialize.
package epd

import (
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"

	"epdtext/internal/convert"
	"epdtext/internal/framebuffer"
)

var (
	// ErrBusyTimeout is returned when the busy line stays high past the
	// configured timeout.
	ErrBusyTimeout = errors.New("epd: busy timeout")
	// ErrState is returned for a call that is not valid in the current state.
	ErrState = errors.New("epd: invalid state")
	// ErrFailed is returned by every call after a failure, until Initialize
	// succeeds again.
	ErrFailed = errors.New("epd: driver failed")
	// ErrController is returned when the controller does not answer after
	// reset.
	ErrController = errors.New("epd: controller not responding")
)

// State is the driver state.
type State int

const (
	Uninitialized State = iota
	// Ready means initialized and asleep.
	Ready
	Awake
	FrameLoaded
	Displaying
	Failed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Ready:
		return "ready"
	case Awake:
		return "awake"
	case FrameLoaded:
		return "frame-loaded"
	case Displaying:
		return "displaying"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Opts describes the panel geometry and timings.
type Opts struct {
	// Width and Height are the native panel dimensions.
	Width  int
	Height int

	BusyTimeout time.Duration
	BusyPoll    time.Duration
	ResetDelay  time.Duration
	ResetPulse  time.Duration
}

// EPD2in9v2 is the Waveshare 2.9" V2 module.
var EPD2in9v2 = Opts{
	Width:       128,
	Height:      296,
	BusyTimeout: 5 * time.Second,
	BusyPoll:    10 * time.Millisecond,
	ResetDelay:  20 * time.Millisecond,
	ResetPulse:  2 * time.Millisecond,
}

// Dev is a handle to the panel.
type Dev struct {
	c         conn.Conn
	maxTxSize int

	dc   gpio.PinOut
	cs   gpio.PinOut
	rst  gpio.PinOut
	busy gpio.PinIn

	opts  Opts
	frame []byte

	mu    sync.Mutex
	state State
}

// New opens a handle to the panel on p. cs may be nil when the SPI
// controller drives chip select itself.
func New(p spi.Port, hz physic.Frequency, dc, cs, rst gpio.PinOut, busy gpio.PinIn, opts *Opts) (*Dev, error) {
	if opts.Width <= 0 || opts.Height <= 0 {
		return nil, fmt.Errorf("epd: invalid panel size %dx%d", opts.Width, opts.Height)
	}
	c, err := p.Connect(hz, spi.Mode0, 8)
	if err != nil {
		return nil, fmt.Errorf("epd: spi connect: %w", err)
	}

	// Writes are split to the transaction limit when the port reports one.
	maxTxSize := 0
	if limits, ok := c.(conn.Limits); ok {
		maxTxSize = limits.MaxTxSize()
	}
	if maxTxSize <= 0 {
		maxTxSize = 4096
	}

	o := *opts
	if o.BusyPoll <= 0 {
		o.BusyPoll = EPD2in9v2.BusyPoll
	}
	return &Dev{
		c:         c,
		maxTxSize: maxTxSize,
		dc:        dc,
		cs:        cs,
		rst:       rst,
		busy:      busy,
		opts:      o,
		frame:     make([]byte, convert.PlaneSize(o.Width, o.Height)),
	}, nil
}

func (d *Dev) String() string {
	return fmt.Sprintf("epd.Dev{%s, %dx%d}", d.c, d.opts.Width, d.opts.Height)
}

// Bounds returns the native panel area.
func (d *Dev) Bounds() image.Rectangle {
	return image.Rect(0, 0, d.opts.Width, d.opts.Height)
}

// NewBuffer returns a framebuffer matching the panel, rotated by rot.
func (d *Dev) NewBuffer(rot framebuffer.Rotation) *framebuffer.Buffer {
	return framebuffer.New(d.opts.Width, d.opts.Height, rot)
}

// State returns the current driver state.
func (d *Dev) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

func (d *Dev) setState(s State) {
	d.mu.Lock()
	d.state = s
	d.mu.Unlock()
}

// check verifies the driver is in one of the allowed states.
func (d *Dev) check(op string, allowed ...State) error {
	s := d.State()
	if s == Failed {
		return fmt.Errorf("epd: %s: %w", op, ErrFailed)
	}
	for _, a := range allowed {
		if s == a {
			return nil
		}
	}
	return fmt.Errorf("epd: %s in state %s: %w", op, s, ErrState)
}

// finish records the outcome of a bus sequence.
func (d *Dev) finish(op string, eh *errorHandler, next State) error {
	if eh.err != nil {
		d.setState(Failed)
		return fmt.Errorf("epd: %s: %w", op, eh.err)
	}
	d.setState(next)
	return nil
}

// Initialize resets the panel and checks that the controller comes back
// within the busy timeout. It is the only call accepted in the Failed state.
func (d *Dev) Initialize() error {
	eh := &errorHandler{d: d}
	eh.reset()
	softReset(eh)
	if eh.err != nil {
		d.setState(Failed)
		return fmt.Errorf("epd: initialize: %w: %w", ErrController, eh.err)
	}
	d.setState(Ready)
	return nil
}

// Wake brings the panel out of deep sleep and programs a full refresh.
func (d *Dev) Wake() error {
	if err := d.check("wake", Ready); err != nil {
		return err
	}
	eh := &errorHandler{d: d}
	eh.reset()
	initDisplay(eh, d.opts.Width, d.opts.Height)
	return d.finish("wake", eh, Awake)
}

// ClearFrame fills the panel RAM with background.
func (d *Dev) ClearFrame() error {
	if err := d.check("clear frame", Awake); err != nil {
		return err
	}
	eh := &errorHandler{d: d}
	clearRAM(eh, len(d.frame))
	return d.finish("clear frame", eh, Awake)
}

// UpdateFrame packs buf and writes it to the panel RAM as a single logical
// write. buf must have the panel's native size.
func (d *Dev) UpdateFrame(buf *framebuffer.Buffer) error {
	if err := d.check("update frame", Awake); err != nil {
		return err
	}
	if got := buf.NativeSize(); got != d.Bounds().Max {
		return fmt.Errorf("epd: update frame: buffer is %dx%d, panel is %dx%d", got.X, got.Y, d.opts.Width, d.opts.Height)
	}
	convert.PackInto(d.frame, buf)
	eh := &errorHandler{d: d}
	writeFrame(eh, d.frame)
	return d.finish("update frame", eh, FrameLoaded)
}

// DisplayFrame starts a full refresh and blocks until the panel is idle.
func (d *Dev) DisplayFrame() error {
	if err := d.check("display frame", FrameLoaded); err != nil {
		return err
	}
	eh := &errorHandler{d: d}
	turnOnDisplay(eh)
	return d.finish("display frame", eh, Displaying)
}

// Sleep puts the panel into deep sleep. Calling it on a sleeping panel is a
// no-op.
func (d *Dev) Sleep() error {
	if d.State() == Ready {
		return nil
	}
	if err := d.check("sleep", Awake, FrameLoaded, Displaying); err != nil {
		return err
	}
	eh := &errorHandler{d: d}
	deepSleep(eh)
	return d.finish("sleep", eh, Ready)
}
