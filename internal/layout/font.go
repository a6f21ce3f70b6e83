package layout

import (
	"fmt"
	"image"

	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/math/fixed"
)

// Face names accepted by LoadFont.
const (
	FaceGoMono = "gomono"
	FaceBasic  = "basic"
)

// Fallback is drawn in place of runes a font does not cover.
const Fallback = '?'

// Font is a monospace face with a fixed glyph cell.
type Font struct {
	face   font.Face
	covers func(rune) bool

	// Advance, Ascent and Height describe the glyph cell in pixels.
	Advance int
	Ascent  int
	Height  int
}

// LoadFont returns the named face. size is the pixel size for scalable
// faces and is ignored for the fixed 7x13 basic face.
func LoadFont(name string, size float64) (*Font, error) {
	switch name {
	case FaceGoMono:
		return goMono(size)
	case FaceBasic:
		return basic(), nil
	}
	return nil, fmt.Errorf("layout: unknown font face %q", name)
}

func goMono(size float64) (*Font, error) {
	if size <= 0 {
		return nil, fmt.Errorf("layout: invalid font size %v", size)
	}
	ttf, err := truetype.Parse(gomono.TTF)
	if err != nil {
		return nil, fmt.Errorf("layout: parse gomono: %w", err)
	}
	face := truetype.NewFace(ttf, &truetype.Options{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	return newFont(face, func(r rune) bool {
		return ttf.Index(r) != 0
	}), nil
}

func basic() *Font {
	face := basicfont.Face7x13
	return newFont(face, func(r rune) bool {
		for _, rr := range face.Ranges {
			if rr.Low <= r && r < rr.High {
				return true
			}
		}
		return false
	})
}

func newFont(face font.Face, covers func(rune) bool) *Font {
	m := face.Metrics()
	adv, _ := face.GlyphAdvance('0')
	return &Font{
		face:    face,
		covers:  covers,
		Advance: adv.Round(),
		Ascent:  m.Ascent.Ceil(),
		Height:  (m.Ascent + m.Descent).Ceil(),
	}
}

// Covers reports whether r has its own glyph.
func (f *Font) Covers(r rune) bool {
	return f.covers(r)
}

// glyph returns the coverage mask for r with the top-left corner of the
// glyph cell at (x, y). Uncovered runes use Fallback.
func (f *Font) glyph(x, y int, r rune) (glyphMask, bool) {
	if !f.covers(r) {
		r = Fallback
	}
	dr, mask, mp, _, ok := f.face.Glyph(fixed.P(x, y+f.Ascent), r)
	if !ok {
		return glyphMask{}, false
	}
	return glyphMask{rect: dr, mask: mask, mp: mp}, true
}

type glyphMask struct {
	rect image.Rectangle
	mask image.Image
	mp   image.Point
}
