package convert

import (
	"fmt"

	"periph.io/x/devices/v3/ssd1306/image1bit"

	"epdtext/internal/framebuffer"
)

// Stride returns the number of bytes per native panel row.
func Stride(nativeWidth int) int {
	return (nativeWidth + 7) / 8
}

// PlaneSize returns the size in bytes of one packed panel plane.
func PlaneSize(nativeWidth, nativeHeight int) int {
	return Stride(nativeWidth) * nativeHeight
}

// Pack converts the framebuffer into one packed 1bpp plane in the panel's
// native orientation.
//
// Packing rules:
//
//   - the plane is y-major, MSB-first:
//     byteIndex = y*stride + (x >> 3)
//     mask      = 0x80 >> (x & 7)
//   - every bit starts as 1 (white); ink pixels clear their bit.
//   - padding bits past the native width stay white.
func Pack(buf *framebuffer.Buffer) []byte {
	size := buf.NativeSize()
	out := make([]byte, PlaneSize(size.X, size.Y))
	PackInto(out, buf)
	return out
}

// PackInto packs buf into dst, which must be exactly one plane long.
func PackInto(dst []byte, buf *framebuffer.Buffer) {
	size := buf.NativeSize()
	stride := Stride(size.X)
	if len(dst) != stride*size.Y {
		panic(fmt.Sprintf("convert: plane is %d bytes, want %d", len(dst), stride*size.Y))
	}

	for i := range dst {
		dst[i] = 0xFF
	}

	for y := 0; y < size.Y; y++ {
		row := y * stride
		for x := 0; x < size.X; x++ {
			if buf.NativeBitAt(x, y) != image1bit.On {
				continue
			}
			dst[row+(x>>3)] &^= 0x80 >> (x & 7)
		}
	}
}
