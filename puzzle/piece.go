/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package puzzle

import "math"

// hitRadius is the grab radius around a piece's visual center, as a
// fraction of the piece size.
const hitRadius = 0.8

// Point is a position in board or screen space.
type Point struct {
	X float64
	Y float64
}

// Piece is one jigsaw piece. Index is its row-major identity on the wire
// and in saved sessions; Col and Row are its home cell.
type Piece struct {
	Index int
	Col   int
	Row   int

	X        float64
	Y        float64
	Rotation int // quarter turns clockwise, 0..3

	Locked      bool // snapped to its home cell, immovable
	HeldByOther bool // another participant is dragging it

	// Group is the id of the piece's entry in the board's group table.
	Group int

	// Presentation only. Never sent or saved.
	VisualRotation float64
	DrawX          float64
	DrawY          float64
	Scale          float64
	Shadow         bool

	size float64
}

func newPiece(index, col, row int, size float64) *Piece {
	p := &Piece{
		Index: index,
		Col:   col,
		Row:   row,
		X:     float64(col) * size,
		Y:     float64(row) * size,
		Group: index,
		Scale: 1,
		size:  size,
	}
	p.SyncDraw()

	return p
}

// Home returns the board position the piece occupies when solved.
func (p *Piece) Home() Point {
	return Point{X: float64(p.Col) * p.size, Y: float64(p.Row) * p.size}
}

// Pos returns the logical position.
func (p *Piece) Pos() Point {
	return Point{X: p.X, Y: p.Y}
}

// IsHit reports whether pt falls inside the forgiving circular grab area
// around the piece's drawn center.
func (p *Piece) IsHit(pt Point) bool {
	cx := p.DrawX + p.size/2
	cy := p.DrawY + p.size/2

	return math.Hypot(pt.X-cx, pt.Y-cy) < p.size*hitRadius
}

// IsInHomePosition reports whether the piece's rounded grid cell is its home
// cell and it is unrotated.
func (p *Piece) IsInHomePosition() bool {
	col := int(math.Round(p.X / p.size))
	row := int(math.Round(p.Y / p.size))

	return col == p.Col && row == p.Row && p.Rotation == 0
}

// SyncDraw makes the drawn pose match the logical pose immediately.
func (p *Piece) SyncDraw() {
	p.DrawX = p.X
	p.DrawY = p.Y
	p.VisualRotation = float64(p.Rotation)
}

func (p *Piece) syncDrawPos() {
	p.DrawX = p.X
	p.DrawY = p.Y
}

func (p *Piece) lockHome() {
	home := p.Home()
	p.X = home.X
	p.Y = home.Y
	p.Locked = true
}

func (p *Piece) translate(dx, dy float64) {
	p.X += dx
	p.Y += dy
}

func adjacent(a, b *Piece) bool {
	return absInt(a.Col-b.Col)+absInt(a.Row-b.Row) == 1
}

// NormalizeRotation maps any quarter-turn count into 0..3.
func NormalizeRotation(r int) int {
	return ((r % 4) + 4) % 4
}

// rotateOffset turns (x, y) clockwise by quarter turns in Y-down space.
func rotateOffset(x, y float64, quarters int) (float64, float64) {
	for range NormalizeRotation(quarters) {
		x, y = -y, x
	}

	return x, y
}

func absInt(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
