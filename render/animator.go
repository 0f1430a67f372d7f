// Package render eases the drawn pose of pieces toward their logical pose
// and paints boards into images.
package render

import (
	"math"

	"github.com/Seednode/partypuzzle/puzzle"
)

// Easing factors per frame and the distances below which a value jumps to
// its target.
const (
	rotationEase = 0.2
	rotationSnap = 0.01
	positionEase = 0.3
	positionSnap = 0.5
)

// Animator moves the visual-only fields of each piece a fraction of the way
// toward the logical pose once per frame. It never touches logical state.
type Animator struct{}

// Step advances every piece by one frame and reports whether anything is
// still in motion.
func (Animator) Step(b *puzzle.Board) bool {
	moving := false

	for _, p := range b.Pieces() {
		if stepRotation(p) {
			moving = true
		}
		if stepPosition(p) {
			moving = true
		}
	}

	return moving
}

func stepRotation(p *puzzle.Piece) bool {
	target := float64(p.Rotation)

	diff := target - p.VisualRotation
	// 3 -> 0 is a quarter turn forward, not three back.
	if diff < -2 {
		diff += 4
	}
	if diff > 2 {
		diff -= 4
	}

	if math.Abs(diff) <= rotationSnap {
		p.VisualRotation = target
		return false
	}

	p.VisualRotation += diff * rotationEase

	return true
}

func stepPosition(p *puzzle.Piece) bool {
	dx := p.X - p.DrawX
	dy := p.Y - p.DrawY

	if math.Abs(dx) < positionSnap && math.Abs(dy) < positionSnap {
		p.DrawX = p.X
		p.DrawY = p.Y
		return false
	}

	p.DrawX += dx * positionEase
	p.DrawY += dy * positionEase

	return true
}
