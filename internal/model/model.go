package model

// Style tags a line with the font it is drawn in.
type Style int

const (
	// Primary is the larger title style used for the first line.
	Primary Style = iota
	// Secondary is the smaller style used for every following line.
	Secondary
)

func (s Style) String() string {
	switch s {
	case Primary:
		return "primary"
	case Secondary:
		return "secondary"
	default:
		return "unknown"
	}
}

// Line is one laid-out line of a text payload.
//
// X and Y locate the top-left corner of the line's first glyph cell in
// logical (rotated) framebuffer coordinates.
type Line struct {
	Text  string
	Style Style
	X     int
	Y     int
}
