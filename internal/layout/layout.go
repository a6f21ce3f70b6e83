// Package layout turns a text payload into positioned lines and draws them
// into a 1-bit framebuffer with two fixed monospace styles.
package layout

import (
	"strings"

	"epdtext/internal/model"
)

// Metrics is the fixed line geometry, in pixels.
type Metrics struct {
	// X0 is the left margin shared by every line.
	X0 int
	// Y0 is the top of the Primary line.
	Y0 int
	// Line0Gap separates the top of the Primary line from the first
	// Secondary line.
	Line0Gap int
	// Pitch is the distance between consecutive Secondary lines.
	Pitch int
}

// DefaultMetrics matches the 2.9" panel layout: title at (5,5), body lines
// from y=25 every 20 pixels.
var DefaultMetrics = Metrics{X0: 5, Y0: 5, Line0Gap: 20, Pitch: 20}

// Split breaks a payload into display lines.
//
// Lines end at "\n" or "\r\n". A final line terminator does not start an
// extra empty line. An empty payload yields a single empty line so the title
// area is always drawn.
func Split(payload string) []string {
	if payload == "" {
		return []string{""}
	}

	lines := strings.Split(payload, "\n")
	tail := lines[len(lines)-1]
	lines = lines[:len(lines)-1]
	for i := range lines {
		lines[i] = strings.TrimSuffix(lines[i], "\r")
	}
	// An unterminated tail is kept as is, lone "\r" included.
	if tail != "" {
		lines = append(lines, tail)
	}
	return lines
}

// Layout splits payload and assigns style and position to every line. The
// result is never empty and its first element is always Primary.
func Layout(payload string, m Metrics) []model.Line {
	texts := Split(payload)
	lines := make([]model.Line, len(texts))

	lines[0] = model.Line{Text: texts[0], Style: model.Primary, X: m.X0, Y: m.Y0}
	for i, text := range texts[1:] {
		lines[i+1] = model.Line{
			Text:  text,
			Style: model.Secondary,
			X:     m.X0,
			Y:     m.Y0 + m.Line0Gap + i*m.Pitch,
		}
	}
	return lines
}
