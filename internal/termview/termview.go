// Package termview is a stand-in panel that prints each displayed frame to
// a terminal. It follows the same session order as the e-paper driver so the
// refresh loop can run without hardware.
package termview

import (
	"bytes"
	"fmt"
	"image/color"
	"io"
	"os"

	"github.com/maruel/ansi256"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"periph.io/x/devices/v3/ssd1306/image1bit"

	"epdtext/internal/epd"
	"epdtext/internal/framebuffer"
)

// Opts configures the terminal output.
type Opts struct {
	// W receives the frames. Nil selects stdout, with colour when stdout is
	// a terminal.
	W io.Writer
	// Color enables ANSI blocks when W is set.
	Color bool
	// Scale is the number of pixels per character cell side.
	Scale   int
	Palette *ansi256.Palette
}

var (
	ink   = color.NRGBA{A: 255}
	paper = color.NRGBA{R: 255, G: 255, B: 255, A: 255}
)

// Dev renders frames as text.
type Dev struct {
	w       io.Writer
	color   bool
	scale   int
	palette ansi256.Palette

	state epd.State
	frame *framebuffer.Buffer
	buf   bytes.Buffer
}

// New returns a terminal panel.
func New(opts *Opts) *Dev {
	p := opts.Palette
	if p == nil {
		p = ansi256.Default
	}
	d := &Dev{
		w:       opts.W,
		color:   opts.Color,
		scale:   opts.Scale,
		palette: *p,
	}
	if d.w == nil {
		fd := os.Stdout.Fd()
		d.w = colorable.NewColorableStdout()
		d.color = isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
	}
	if d.scale <= 0 {
		d.scale = 2
	}
	return d
}

func (d *Dev) String() string {
	return "TermView"
}

// State returns the session state.
func (d *Dev) State() epd.State {
	return d.state
}

func (d *Dev) expect(op string, allowed ...epd.State) error {
	for _, s := range allowed {
		if d.state == s {
			return nil
		}
	}
	return fmt.Errorf("termview: %s in state %s: %w", op, d.state, epd.ErrState)
}

func (d *Dev) Initialize() error {
	d.state = epd.Ready
	return nil
}

func (d *Dev) Wake() error {
	if err := d.expect("wake", epd.Ready); err != nil {
		return err
	}
	d.state = epd.Awake
	return nil
}

func (d *Dev) ClearFrame() error {
	return d.expect("clear frame", epd.Awake)
}

// UpdateFrame keeps a copy of buf for DisplayFrame.
func (d *Dev) UpdateFrame(buf *framebuffer.Buffer) error {
	if err := d.expect("update frame", epd.Awake); err != nil {
		return err
	}
	n := buf.NativeSize()
	if d.frame == nil || d.frame.NativeSize() != n || d.frame.Rotation() != buf.Rotation() {
		d.frame = framebuffer.New(n.X, n.Y, buf.Rotation())
	}
	r := buf.Bounds()
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			d.frame.SetBit(x, y, buf.BitAt(x, y))
		}
	}
	d.state = epd.FrameLoaded
	return nil
}

// DisplayFrame prints the loaded frame, one character per scale x scale
// block. A block with any ink is drawn as ink.
func (d *Dev) DisplayFrame() error {
	if err := d.expect("display frame", epd.FrameLoaded); err != nil {
		return err
	}
	d.buf.Reset()
	_, _ = d.buf.WriteString("\033[0m\n")
	r := d.frame.Bounds()
	for y := r.Min.Y; y < r.Max.Y; y += d.scale {
		for x := r.Min.X; x < r.Max.X; x += d.scale {
			d.writeCell(d.blockHasInk(x, y))
		}
		if d.color {
			_, _ = d.buf.WriteString("\033[0m")
		}
		_ = d.buf.WriteByte('\n')
	}
	if _, err := d.buf.WriteTo(d.w); err != nil {
		return fmt.Errorf("termview: %w", err)
	}
	d.state = epd.Displaying
	return nil
}

func (d *Dev) blockHasInk(x0, y0 int) bool {
	for y := y0; y < y0+d.scale; y++ {
		for x := x0; x < x0+d.scale; x++ {
			if d.frame.BitAt(x, y) == image1bit.On {
				return true
			}
		}
	}
	return false
}

func (d *Dev) writeCell(on bool) {
	switch {
	case d.color && on:
		_, _ = io.WriteString(&d.buf, d.palette.Block(ink))
	case d.color:
		_, _ = io.WriteString(&d.buf, d.palette.Block(paper))
	case on:
		_ = d.buf.WriteByte('#')
	default:
		_ = d.buf.WriteByte('.')
	}
}

// Sleep ends the session. Like the e-paper panel, the last frame stays.
func (d *Dev) Sleep() error {
	if d.state == epd.Ready {
		return nil
	}
	if err := d.expect("sleep", epd.Awake, epd.FrameLoaded, epd.Displaying); err != nil {
		return err
	}
	d.state = epd.Ready
	return nil
}
