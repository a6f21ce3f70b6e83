// Package framebuffer holds the in-memory 1-bit bitmap that mirrors the
// e-paper panel.
//
// The buffer is kept in logical orientation: callers draw in rotated
// coordinates and the panel driver reads pixels back in the panel's native
// orientation through NativeBitAt.
//
// Off is background (paper) and On is ink. image1bit renders On as a lit
// (white) pixel, so code turning a Buffer into a picture must map the bits
// explicitly instead of relying on At.
package framebuffer

import (
	"fmt"
	"image"
	"image/color"

	"periph.io/x/devices/v3/ssd1306/image1bit"
)

// Rotation is the clockwise rotation of the logical canvas relative to the
// panel's native orientation.
type Rotation uint8

const (
	Rotate0 Rotation = iota
	Rotate90
	Rotate180
	Rotate270
)

// ParseRotation converts degrees into a Rotation.
func ParseRotation(deg int) (Rotation, error) {
	switch deg {
	case 0:
		return Rotate0, nil
	case 90:
		return Rotate90, nil
	case 180:
		return Rotate180, nil
	case 270:
		return Rotate270, nil
	}
	return 0, fmt.Errorf("framebuffer: unsupported rotation %d", deg)
}

func (r Rotation) String() string {
	switch r {
	case Rotate0:
		return "0"
	case Rotate90:
		return "90"
	case Rotate180:
		return "180"
	case Rotate270:
		return "270"
	}
	return fmt.Sprintf("Rotation(%d)", uint8(r))
}

// Buffer is a fixed-size bitmap sized from the panel resolution and rotation.
// It implements draw.Image.
type Buffer struct {
	img    *image1bit.VerticalLSB
	native image.Point
	rot    Rotation
}

// New returns a cleared buffer for a panel of nativeW x nativeH pixels.
func New(nativeW, nativeH int, rot Rotation) *Buffer {
	size := image.Pt(nativeW, nativeH)
	if rot == Rotate90 || rot == Rotate270 {
		size = image.Pt(nativeH, nativeW)
	}
	return &Buffer{
		img:    image1bit.NewVerticalLSB(image.Rectangle{Max: size}),
		native: image.Pt(nativeW, nativeH),
		rot:    rot,
	}
}

// Bounds returns the logical bounds.
func (b *Buffer) Bounds() image.Rectangle {
	return b.img.Bounds()
}

// ColorModel returns the 1-bit model.
func (b *Buffer) ColorModel() color.Model {
	return image1bit.BitModel
}

// At implements image.Image.
func (b *Buffer) At(x, y int) color.Color {
	return b.BitAt(x, y)
}

// Set implements draw.Image.
func (b *Buffer) Set(x, y int, c color.Color) {
	b.SetBit(x, y, image1bit.BitModel.Convert(c).(image1bit.Bit))
}

// BitAt returns the bit at logical coordinates; outside pixels read as Off.
func (b *Buffer) BitAt(x, y int) image1bit.Bit {
	if !(image.Point{X: x, Y: y}).In(b.img.Rect) {
		return image1bit.Off
	}
	return b.img.BitAt(x, y)
}

// SetBit sets the bit at logical coordinates. Writes outside the buffer are
// clipped.
func (b *Buffer) SetBit(x, y int, v image1bit.Bit) {
	if !(image.Point{X: x, Y: y}).In(b.img.Rect) {
		return
	}
	b.img.SetBit(x, y, v)
}

// Fill sets every pixel to v.
func (b *Buffer) Fill(v image1bit.Bit) {
	fill := byte(0x00)
	if v == image1bit.On {
		fill = 0xFF
	}
	for i := range b.img.Pix {
		b.img.Pix[i] = fill
	}
}

// Reset clears the buffer to background.
func (b *Buffer) Reset() {
	b.Fill(image1bit.Off)
}

// NativeSize returns the panel resolution.
func (b *Buffer) NativeSize() image.Point {
	return b.native
}

// Rotation returns the configured rotation.
func (b *Buffer) Rotation() Rotation {
	return b.rot
}

// NativeBitAt returns the pixel at panel coordinates (nx, ny).
func (b *Buffer) NativeBitAt(nx, ny int) image1bit.Bit {
	w, h := b.native.X, b.native.Y
	switch b.rot {
	case Rotate90:
		return b.BitAt(ny, w-1-nx)
	case Rotate180:
		return b.BitAt(w-1-nx, h-1-ny)
	case Rotate270:
		return b.BitAt(h-1-ny, nx)
	default:
		return b.BitAt(nx, ny)
	}
}

// Equal reports whether both buffers have the same geometry and pixels.
func (b *Buffer) Equal(o *Buffer) bool {
	if b.native != o.native || b.rot != o.rot {
		return false
	}
	r := b.Bounds()
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			if b.BitAt(x, y) != o.BitAt(x, y) {
				return false
			}
		}
	}
	return true
}

// Gray renders the buffer as a grayscale picture with ink in black.
func (b *Buffer) Gray() *image.Gray {
	r := b.Bounds()
	g := image.NewGray(r)
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			if b.BitAt(x, y) == image1bit.On {
				g.SetGray(x, y, color.Gray{Y: 0x00})
			} else {
				g.SetGray(x, y, color.Gray{Y: 0xFF})
			}
		}
	}
	return g
}
