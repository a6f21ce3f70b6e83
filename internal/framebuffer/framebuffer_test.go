package framebuffer

import (
	"image"
	"testing"

	"github.com/google/go-cmp/cmp"
	"periph.io/x/devices/v3/ssd1306/image1bit"
)

func TestNewBounds(t *testing.T) {
	for _, tc := range []struct {
		rot  Rotation
		want image.Rectangle
	}{
		{Rotate0, image.Rect(0, 0, 128, 296)},
		{Rotate90, image.Rect(0, 0, 296, 128)},
		{Rotate180, image.Rect(0, 0, 128, 296)},
		{Rotate270, image.Rect(0, 0, 296, 128)},
	} {
		t.Run(tc.rot.String(), func(t *testing.T) {
			b := New(128, 296, tc.rot)
			if diff := cmp.Diff(b.Bounds(), tc.want); diff != "" {
				t.Errorf("Bounds() difference (-got +want):\n%s", diff)
			}
			if got := b.BitAt(0, 0); got != image1bit.Off {
				t.Errorf("fresh buffer pixel = %v, want Off", got)
			}
		})
	}
}

func TestParseRotation(t *testing.T) {
	for deg, want := range map[int]Rotation{0: Rotate0, 90: Rotate90, 180: Rotate180, 270: Rotate270} {
		got, err := ParseRotation(deg)
		if err != nil || got != want {
			t.Errorf("ParseRotation(%d) = %v, %v; want %v", deg, got, err, want)
		}
	}
	if _, err := ParseRotation(45); err == nil {
		t.Error("ParseRotation(45) succeeded, want error")
	}
}

func TestNativeBitAt(t *testing.T) {
	const w, h = 16, 8

	for _, tc := range []struct {
		rot     Rotation
		logical image.Point
		native  image.Point
	}{
		{Rotate0, image.Pt(3, 1), image.Pt(3, 1)},
		{Rotate90, image.Pt(0, 0), image.Pt(w-1, 0)},
		{Rotate90, image.Pt(2, 5), image.Pt(w-1-5, 2)},
		{Rotate180, image.Pt(0, 0), image.Pt(w-1, h-1)},
		{Rotate270, image.Pt(0, 0), image.Pt(0, h-1)},
		{Rotate270, image.Pt(2, 5), image.Pt(5, h-1-2)},
	} {
		b := New(w, h, tc.rot)
		b.SetBit(tc.logical.X, tc.logical.Y, image1bit.On)

		var set []image.Point
		for ny := 0; ny < h; ny++ {
			for nx := 0; nx < w; nx++ {
				if b.NativeBitAt(nx, ny) == image1bit.On {
					set = append(set, image.Pt(nx, ny))
				}
			}
		}
		if diff := cmp.Diff(set, []image.Point{tc.native}); diff != "" {
			t.Errorf("rotation %v, logical %v: native pixels difference (-got +want):\n%s", tc.rot, tc.logical, diff)
		}
	}
}

func TestClipping(t *testing.T) {
	b := New(8, 8, Rotate0)
	b.SetBit(-1, 0, image1bit.On)
	b.SetBit(8, 8, image1bit.On)
	if !b.Equal(New(8, 8, Rotate0)) {
		t.Error("out of bounds writes modified the buffer")
	}
	if got := b.BitAt(100, 100); got != image1bit.Off {
		t.Errorf("BitAt outside bounds = %v, want Off", got)
	}
}

func TestFillResetEqual(t *testing.T) {
	a := New(10, 20, Rotate90)
	b := New(10, 20, Rotate90)

	a.Fill(image1bit.On)
	if a.Equal(b) {
		t.Error("filled buffer equals cleared buffer")
	}
	a.Reset()
	if !a.Equal(b) {
		t.Error("reset buffer differs from fresh buffer")
	}
	if a.Equal(New(10, 20, Rotate0)) {
		t.Error("buffers with different rotation compare equal")
	}
}

func TestGray(t *testing.T) {
	b := New(4, 4, Rotate0)
	b.SetBit(1, 2, image1bit.On)

	g := b.Gray()
	if got := g.GrayAt(1, 2).Y; got != 0 {
		t.Errorf("ink pixel gray = %d, want 0", got)
	}
	if got := g.GrayAt(0, 0).Y; got != 0xFF {
		t.Errorf("background pixel gray = %d, want 255", got)
	}
}
