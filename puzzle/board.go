/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package puzzle holds the piece model, grouping engine, snap and
// completion detector, and local interaction controller of a jigsaw board.
//
// A Board is the session object for one puzzle load: it owns the pieces,
// the group table, the draw order, the completion flag and the timer.
// Nothing in this package is safe for concurrent use; a single goroutine
// owns each board.
package puzzle

import (
	"fmt"
	"log"
)

// Table area relative to the solved picture; the scatter area sits to the
// right of the picture.
const (
	tableWidthFactor  = 2.5
	tableHeightFactor = 2
)

// Options tune board behavior.
type Options struct {
	// MergeEnabled allows dropped groups to join neighboring groups. When
	// false, only board snapping happens.
	MergeEnabled bool

	// MaxGroupSize bounds group sizes as a corruption guard. Zero means the
	// number of pieces on the board.
	MaxGroupSize int

	Logger *log.Logger
}

func DefaultOptions() Options {
	return Options{MergeEnabled: true}
}

type Board struct {
	Cols      int
	Rows      int
	PieceSize float64
	Width     float64
	Height    float64

	Timer *Timer

	pieces    []*Piece
	order     []*Piece
	groups    map[int][]*Piece
	listeners []Listener
	completed bool
	opts      Options
	logger    *log.Logger
}

// NewBoard creates a solved board of cols x rows pieces, each piece in its
// own group at its home cell.
func NewBoard(cols, rows int, pieceSize float64, opts Options) (*Board, error) {
	if cols < 1 || rows < 1 || pieceSize <= 0 {
		return nil, fmt.Errorf("%w: %dx%d pieces of size %v", ErrInvalidGrid, cols, rows, pieceSize)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	b := &Board{
		Cols:      cols,
		Rows:      rows,
		PieceSize: pieceSize,
		Width:     float64(cols) * pieceSize * tableWidthFactor,
		Height:    float64(rows) * pieceSize * tableHeightFactor,
		Timer:     NewTimer(),
		pieces:    make([]*Piece, 0, cols*rows),
		groups:    make(map[int][]*Piece, cols*rows),
		opts:      opts,
		logger:    logger,
	}

	idx := 0
	for row := range rows {
		for col := range cols {
			p := newPiece(idx, col, row, pieceSize)
			b.pieces = append(b.pieces, p)
			b.groups[idx] = []*Piece{p}
			idx++
		}
	}

	b.order = append([]*Piece(nil), b.pieces...)

	return b, nil
}

// Subscribe registers a listener for local mutations and completion.
func (b *Board) Subscribe(l Listener) {
	b.listeners = append(b.listeners, l)
}

func (b *Board) Options() Options {
	return b.opts
}

// Len returns the number of pieces.
func (b *Board) Len() int {
	return len(b.pieces)
}

// Piece looks up a piece by its original index.
func (b *Board) Piece(index int) (*Piece, bool) {
	if index < 0 || index >= len(b.pieces) {
		return nil, false
	}
	return b.pieces[index], true
}

// Pieces returns every piece in index order.
func (b *Board) Pieces() []*Piece {
	return b.pieces
}

// DrawOrder returns pieces bottom to top.
func (b *Board) DrawOrder() []*Piece {
	return b.order
}

// Tolerance is the maximum deviation on each axis for a merge or snap.
func (b *Board) Tolerance() float64 {
	return b.PieceSize / 3
}

// Completed reports whether completion has already fired for this board.
func (b *Board) Completed() bool {
	return b.completed
}

// PieceAt returns the topmost piece whose grab area contains pt.
func (b *Board) PieceAt(pt Point) *Piece {
	for i := len(b.order) - 1; i >= 0; i-- {
		if b.order[i].IsHit(pt) {
			return b.order[i]
		}
	}
	return nil
}

// raise moves every member of p's group to the top of the draw order,
// keeping their relative order.
func (b *Board) raise(p *Piece) {
	rest := make([]*Piece, 0, len(b.order))
	var top []*Piece

	for _, q := range b.order {
		if q.Group == p.Group {
			top = append(top, q)
			continue
		}
		rest = append(rest, q)
	}

	b.order = append(rest, top...)
}

func (b *Board) emitGrab(p *Piece) {
	for _, l := range b.listeners {
		l.OnGrab(p)
	}
}

func (b *Board) emitMove(p *Piece) {
	for _, l := range b.listeners {
		l.OnMove(p)
	}
}

func (b *Board) emitRelease(p *Piece) {
	for _, l := range b.listeners {
		l.OnRelease(p)
	}
}

func (b *Board) emitMerge(dragged, stationary *Piece) {
	for _, l := range b.listeners {
		l.OnMerge(dragged, stationary)
	}
}
