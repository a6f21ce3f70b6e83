package preview

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"periph.io/x/devices/v3/ssd1306/image1bit"

	"epdtext/internal/framebuffer"
)

func decode(t *testing.T, b []byte) image.Image {
	t.Helper()
	img, err := png.Decode(bytes.NewReader(b))
	if err != nil {
		t.Fatalf("png.Decode failed: %v", err)
	}
	return img
}

func gray(c color.Color) uint8 {
	return color.GrayModel.Convert(c).(color.Gray).Y
}

func TestEncode(t *testing.T) {
	buf := framebuffer.New(16, 8, framebuffer.Rotate90)
	buf.SetBit(2, 3, image1bit.On)

	var out bytes.Buffer
	if err := Encode(&out, buf); err != nil {
		t.Fatal(err)
	}
	img := decode(t, out.Bytes())

	if got := img.Bounds().Size(); got != (image.Point{X: 8, Y: 16}) {
		t.Errorf("size = %v, want 8x16", got)
	}
	if got := gray(img.At(2, 3)); got != 0 {
		t.Errorf("ink pixel = %d, want 0", got)
	}
	if got := gray(img.At(0, 0)); got != 255 {
		t.Errorf("paper pixel = %d, want 255", got)
	}
}

func TestWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "preview.png")
	w := NewWriter(path)

	if _, _, ok := w.PNG(); ok {
		t.Error("PNG() before first frame reported ok")
	}

	buf := framebuffer.New(16, 8, framebuffer.Rotate0)
	buf.SetBit(0, 0, image1bit.On)
	w.Frame(buf)

	b, at, ok := w.PNG()
	if !ok || at.IsZero() {
		t.Fatal("PNG() after frame not ok")
	}
	if got := gray(decode(t, b).At(0, 0)); got != 0 {
		t.Errorf("in-memory ink pixel = %d", got)
	}

	onDisk, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("preview file not written: %v", err)
	}
	if got := gray(decode(t, onDisk).At(0, 0)); got != 0 {
		t.Errorf("on-disk ink pixel = %d", got)
	}
}

func TestWriterMemoryOnly(t *testing.T) {
	w := NewWriter("")
	w.Frame(framebuffer.New(8, 8, framebuffer.Rotate0))
	if _, _, ok := w.PNG(); !ok {
		t.Error("PNG() not ok")
	}
}
