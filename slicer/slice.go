package slicer

import (
	"image"
	"image/color"
	"math"

	"golang.org/x/image/draw"
)

// outlineWidth is the thickness of the light edge drawn around each piece.
const outlineWidth = 2

var outlineColor = color.NRGBA{R: 255, G: 255, B: 255, A: 200}

// Set holds the cut pieces of one picture, indexed row-major.
type Set struct {
	Grid

	// Preview is the resized, uncut picture.
	Preview *image.RGBA

	fills    []*image.RGBA
	outlines []*image.RGBA
}

// Len returns the number of pieces.
func (s *Set) Len() int {
	return len(s.fills)
}

// Piece returns the filled and the outline bitmap for a piece index, or nils
// when the index is out of range.
func (s *Set) Piece(index int) (image.Image, image.Image) {
	if index < 0 || index >= len(s.fills) {
		return nil, nil
	}
	return s.fills[index], s.outlines[index]
}

// Slice resizes src onto the grid chosen for difficulty and cuts one sprite
// per cell. Sprites are 1.5 times the piece size with the body centered and
// room for a semicircular tab on each side.
func Slice(src image.Image, d Difficulty) (*Set, error) {
	b := src.Bounds()

	g, err := GridFor(b.Dx(), b.Dy(), d)
	if err != nil {
		return nil, err
	}

	preview := image.NewRGBA(image.Rect(0, 0, g.Width(), g.Height()))
	draw.CatmullRom.Scale(preview, preview.Bounds(), src, b, draw.Src, nil)

	set := &Set{
		Grid:     g,
		Preview:  preview,
		fills:    make([]*image.RGBA, 0, g.Cols*g.Rows),
		outlines: make([]*image.RGBA, 0, g.Cols*g.Rows),
	}

	for row := range g.Rows {
		for col := range g.Cols {
			m := newMask(g, col, row)
			set.fills = append(set.fills, m.fill(preview))
			set.outlines = append(set.outlines, m.outline())
		}
	}

	return set, nil
}

type edge int

const (
	flat edge = iota
	tab
	blank
)

// mask is the shape of one piece in sprite space. The body spans s..5s on
// both axes, where s is a quarter of the piece size.
type mask struct {
	col, row int
	s        float64
	side     int

	top, right, bottom, left edge
}

// Tabs alternate by the parity of row+col so that every shared edge has a
// tab on one side and the matching blank on the other.
func newMask(g Grid, col, row int) mask {
	s := g.PieceSize / 4
	even := (row+col)%2 == 0

	m := mask{col: col, row: row, s: s, side: int(math.Round(6 * s))}

	if row > 0 {
		m.top = pick(even)
	}
	if col < g.Cols-1 {
		m.right = pick(!even)
	}
	if row < g.Rows-1 {
		m.bottom = pick(even)
	}
	if col > 0 {
		m.left = pick(!even)
	}

	return m
}

func pick(outward bool) edge {
	if outward {
		return tab
	}
	return blank
}

func (m mask) contains(x, y float64) bool {
	s := m.s

	type knob struct {
		e      edge
		cx, cy float64
	}
	knobs := [4]knob{
		{m.top, 3 * s, s},
		{m.right, 5 * s, 3 * s},
		{m.bottom, 3 * s, 5 * s},
		{m.left, s, 3 * s},
	}

	for _, k := range knobs {
		if k.e == flat {
			continue
		}
		if math.Hypot(x-k.cx, y-k.cy) < s {
			return k.e == tab
		}
	}

	return x >= s && x < 5*s && y >= s && y < 5*s
}

func (m mask) containsPixel(x, y int) bool {
	return m.contains(float64(x)+0.5, float64(y)+0.5)
}

// fill copies the picture under the piece shape. The sprite origin sits one
// quarter piece above and left of the home cell.
func (m mask) fill(picture *image.RGBA) *image.RGBA {
	out := image.NewRGBA(image.Rect(0, 0, m.side, m.side))
	size := 4 * m.s
	ox := int(math.Round(float64(m.col)*size - m.s))
	oy := int(math.Round(float64(m.row)*size - m.s))
	pb := picture.Bounds()

	for y := range m.side {
		for x := range m.side {
			if !m.containsPixel(x, y) {
				continue
			}

			pt := image.Point{X: ox + x, Y: oy + y}
			if !pt.In(pb) {
				continue
			}

			out.SetRGBA(x, y, picture.RGBAAt(pt.X, pt.Y))
		}
	}

	return out
}

// outline marks shape pixels that lie within outlineWidth of the edge.
func (m mask) outline() *image.RGBA {
	out := image.NewRGBA(image.Rect(0, 0, m.side, m.side))

	for y := range m.side {
		for x := range m.side {
			if !m.containsPixel(x, y) {
				continue
			}
			if m.nearEdge(x, y) {
				out.Set(x, y, outlineColor)
			}
		}
	}

	return out
}

func (m mask) nearEdge(x, y int) bool {
	for dy := -outlineWidth; dy <= outlineWidth; dy++ {
		for dx := -outlineWidth; dx <= outlineWidth; dx++ {
			if !m.containsPixel(x+dx, y+dy) {
				return true
			}
		}
	}
	return false
}
