// Package preview keeps a PNG snapshot of the last displayed frame, in
// memory for the HTTP API and optionally on disk.
package preview

import (
	"bytes"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/fogleman/gg"

	"epdtext/internal/framebuffer"
	appLog "epdtext/internal/log"
)

// Encode writes buf as a grayscale PNG, ink black on white.
func Encode(w io.Writer, buf *framebuffer.Buffer) error {
	dc := gg.NewContextForImage(buf.Gray())
	if err := dc.EncodePNG(w); err != nil {
		return fmt.Errorf("preview: encode: %w", err)
	}
	return nil
}

// Writer records frames. It is safe for concurrent use.
type Writer struct {
	path string

	mu  sync.RWMutex
	png []byte
	at  time.Time
}

// NewWriter returns a Writer. A non-empty path also receives every frame as a
// PNG file.
func NewWriter(path string) *Writer {
	return &Writer{path: path}
}

// Frame stores a snapshot of buf. Errors are logged, never returned, so a
// failing disk cannot stop the display loop.
func (w *Writer) Frame(buf *framebuffer.Buffer) {
	var b bytes.Buffer
	if err := Encode(&b, buf); err != nil {
		appLog.Error("preview encode failed", err)
		return
	}

	w.mu.Lock()
	w.png = b.Bytes()
	w.at = time.Now()
	w.mu.Unlock()

	if w.path == "" {
		return
	}
	if err := gg.SavePNG(w.path, buf.Gray()); err != nil {
		appLog.Error("preview save failed", err, "path", w.path)
		return
	}
	appLog.Debug("preview saved", "path", w.path)
}

// PNG returns the last snapshot and when it was taken. ok is false before
// the first frame.
func (w *Writer) PNG() (png []byte, at time.Time, ok bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.png, w.at, w.png != nil
}
