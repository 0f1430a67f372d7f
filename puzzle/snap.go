/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package puzzle

import "math"

// Outcome describes what Settle did with a dropped group.
type Outcome struct {
	Merged     bool
	Dragged    *Piece // member of the dropped group that matched
	Stationary *Piece // piece it was merged onto
	Locked     bool   // group snapped onto the board
	Completed  bool   // this drop solved the puzzle
}

// Settle runs the drop rules for pivot's group, first match wins: merge
// with a home-adjacent neighbor of the same orientation, otherwise snap
// onto the board when unrotated and close to home, otherwise leave it.
// Completion is checked afterwards either way.
func (b *Board) Settle(pivot *Piece) Outcome {
	var out Outcome

	if b.opts.MergeEnabled {
		out.Dragged, out.Stationary = b.findMerge(pivot)
		out.Merged = out.Dragged != nil
	}

	if !out.Merged {
		out.Locked = b.SnapToBoard(pivot)
	}

	out.Completed = b.CheckCompletion()

	return out
}

func (b *Board) findMerge(pivot *Piece) (*Piece, *Piece) {
	tol := b.Tolerance()

	for _, other := range b.pieces {
		if other.Group == pivot.Group || other.Rotation != pivot.Rotation {
			continue
		}
		// Someone else is moving that group.
		if b.GroupHeldByOther(other) {
			continue
		}

		for _, m := range b.groups[pivot.Group] {
			if !adjacent(m, other) {
				continue
			}

			ix, iy := idealOffset(m, other)
			cx := m.X - other.X
			cy := m.Y - other.Y

			if math.Abs(cx-ix) >= tol || math.Abs(cy-iy) >= tol {
				continue
			}

			if err := b.Merge(m, other); err != nil {
				b.logger.Printf("puzzle: merge of %d onto %d aborted: %v", m.Index, other.Index, err)
				continue
			}

			return m, other
		}
	}

	return nil, nil
}

// SnapToBoard locks pivot's group onto the grid when pivot is unrotated and
// within tolerance of its home cell. It reports whether it did.
func (b *Board) SnapToBoard(pivot *Piece) bool {
	if pivot.Rotation != 0 {
		return false
	}

	home := pivot.Home()
	tol := b.Tolerance()
	if math.Abs(pivot.X-home.X) >= tol || math.Abs(pivot.Y-home.Y) >= tol {
		return false
	}

	b.lockGroup(pivot)

	return true
}

// lockGroup moves p's group onto the grid and locks every member. An
// unrotated rigid group lands each member exactly on its own home cell,
// which is the same as translating by p's residual.
func (b *Board) lockGroup(p *Piece) {
	for _, m := range b.groups[p.Group] {
		m.lockHome()
	}
}

// Solved reports whether every piece is locked.
func (b *Board) Solved() bool {
	if len(b.pieces) == 0 {
		return false
	}

	for _, p := range b.pieces {
		if !p.Locked {
			return false
		}
	}

	return true
}

// CheckCompletion fires completion on the rising edge only: the timer
// stops and listeners get OnComplete once per board until Reset. It
// reports whether it fired.
func (b *Board) CheckCompletion() bool {
	if b.completed || !b.Solved() {
		return false
	}

	b.completed = true
	b.Timer.Stop()

	elapsed := b.Timer.Elapsed()
	for _, l := range b.listeners {
		l.OnComplete(elapsed)
	}

	return true
}
