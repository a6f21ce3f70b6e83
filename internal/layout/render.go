package layout

import (
	"fmt"
	"image"
	"image/draw"

	"periph.io/x/devices/v3/ssd1306/image1bit"

	"epdtext/internal/model"
)

// Renderer draws line records with one font per style.
type Renderer struct {
	primary   *Font
	secondary *Font
}

// NewRenderer returns a Renderer. Both fonts are required.
func NewRenderer(primary, secondary *Font) (*Renderer, error) {
	if primary == nil || secondary == nil {
		return nil, fmt.Errorf("layout: renderer needs both fonts")
	}
	return &Renderer{primary: primary, secondary: secondary}, nil
}

// Font returns the font used for style s.
func (r *Renderer) Font(s model.Style) *Font {
	if s == model.Primary {
		return r.primary
	}
	return r.secondary
}

// Draw renders every line into dst. Glyph cells are cleared to image1bit.Off
// before their glyph is set to image1bit.On; pixels outside glyph cells are
// left untouched. Text past the edges of dst is clipped.
func (r *Renderer) Draw(dst draw.Image, lines []model.Line) {
	for _, l := range lines {
		r.DrawLine(dst, l)
	}
}

// DrawLine renders a single line into dst.
func (r *Renderer) DrawLine(dst draw.Image, l model.Line) {
	b := dst.Bounds()
	f := r.Font(l.Style)

	if l.Y >= b.Max.Y || l.Y+f.Height <= b.Min.Y {
		return
	}

	x := l.X
	for _, c := range l.Text {
		if x >= b.Max.X {
			return
		}
		cell := image.Rect(x, l.Y, x+f.Advance, l.Y+f.Height).Intersect(b)
		draw.Draw(dst, cell, &image.Uniform{C: image1bit.Off}, image.Point{}, draw.Src)

		if g, ok := f.glyph(x, l.Y, c); ok {
			setMask(dst, g)
		}
		x += f.Advance
	}
}

// setMask turns on every pixel whose coverage is at least one half. The
// output is strictly two-level.
func setMask(dst draw.Image, g glyphMask) {
	r := g.rect.Intersect(dst.Bounds())
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			mx := g.mp.X + x - g.rect.Min.X
			my := g.mp.Y + y - g.rect.Min.Y
			if _, _, _, a := g.mask.At(mx, my).RGBA(); a >= 0x8000 {
				dst.Set(x, y, image1bit.On)
			}
		}
	}
}
