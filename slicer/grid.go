// Package slicer cuts a picture into jigsaw piece bitmaps.
package slicer

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// MaxDrawSize bounds the longer side of the solved picture on the table.
const MaxDrawSize = 480

var (
	ErrUnknownDifficulty = errors.New("unknown difficulty")
	ErrEmptyImage        = errors.New("image has no pixels")
)

type Difficulty string

const (
	Easy   Difficulty = "easy"
	Normal Difficulty = "normal"
	Hard   Difficulty = "hard"
)

// ParseDifficulty accepts easy, normal or hard in any case. An empty string
// is Normal.
func ParseDifficulty(s string) (Difficulty, error) {
	switch d := Difficulty(strings.ToLower(strings.TrimSpace(s))); d {
	case "":
		return Normal, nil
	case Easy, Normal, Hard:
		return d, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownDifficulty, s)
	}
}

// Pieces is the number of pieces along the picture's shorter side.
func (d Difficulty) Pieces() int {
	switch d {
	case Easy:
		return 4
	case Hard:
		return 8
	default:
		return 6
	}
}

// Grid is the cut of a picture into square cells.
type Grid struct {
	Cols      int
	Rows      int
	PieceSize float64
}

// Width and Height are the size of the solved picture on the table.
func (g Grid) Width() int  { return g.Cols * int(g.PieceSize) }
func (g Grid) Height() int { return g.Rows * int(g.PieceSize) }

// GridFor picks the grid for a width x height picture. The shorter side gets
// the difficulty's piece count, the longer side as many as keep the cells
// square, and the picture is fitted into MaxDrawSize.
func GridFor(width, height int, d Difficulty) (Grid, error) {
	if width <= 0 || height <= 0 {
		return Grid{}, fmt.Errorf("%w: %dx%d", ErrEmptyImage, width, height)
	}

	aspect := float64(width) / float64(height)
	base := d.Pieces()

	var g Grid
	var drawWidth float64

	if aspect >= 1 {
		drawWidth = MaxDrawSize
		g.Rows = base
		g.Cols = int(math.Round(float64(base) * aspect))
	} else {
		drawWidth = MaxDrawSize * aspect
		g.Cols = base
		g.Rows = int(math.Round(float64(base) / aspect))
	}

	g.Cols = max(g.Cols, 1)
	g.Rows = max(g.Rows, 1)
	g.PieceSize = math.Floor(drawWidth / float64(g.Cols))

	if g.PieceSize < 1 {
		return Grid{}, fmt.Errorf("%w: %dx%d is too narrow to cut", ErrEmptyImage, width, height)
	}

	return g, nil
}
