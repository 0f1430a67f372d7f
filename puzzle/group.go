/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package puzzle

import "fmt"

// The group table maps a group id to its ordered member list. A group's id
// is always the Index of its first member, and every member's Group field
// holds that id, so "same group" is an integer comparison.

// Members returns the pieces in p's group, in group order.
func (b *Board) Members(p *Piece) []*Piece {
	return b.groups[p.Group]
}

// SameGroup reports whether a and c belong to one group.
func (b *Board) SameGroup(a, c *Piece) bool {
	return a.Group == c.Group
}

// GroupLocked reports whether p's group is snapped to the board.
func (b *Board) GroupLocked(p *Piece) bool {
	for _, m := range b.groups[p.Group] {
		if m.Locked {
			return true
		}
	}
	return false
}

// GroupHeldByOther reports whether any member of p's group is being
// dragged by another participant.
func (b *Board) GroupHeldByOther(p *Piece) bool {
	for _, m := range b.groups[p.Group] {
		if m.HeldByOther {
			return true
		}
	}
	return false
}

// SetHeldByOther flags or clears every member of p's group.
func (b *Board) SetHeldByOther(p *Piece, held bool) {
	for _, m := range b.groups[p.Group] {
		m.HeldByOther = held
	}
}

// TranslateGroup moves every member of p's group by (dx, dy).
func (b *Board) TranslateGroup(p *Piece, dx, dy float64) {
	for _, m := range b.groups[p.Group] {
		m.translate(dx, dy)
	}
}

func (b *Board) maxGroupSize() int {
	if b.opts.MaxGroupSize > 0 {
		return b.opts.MaxGroupSize
	}
	return len(b.pieces)
}

// group returns p's member list after checking it is structurally sound.
func (b *Board) group(p *Piece) ([]*Piece, error) {
	members, ok := b.groups[p.Group]
	if !ok || len(members) == 0 || members[0].Index != p.Group {
		return nil, fmt.Errorf("%w: piece %d points at group %d", ErrCorruptGroup, p.Index, p.Group)
	}

	for _, m := range members {
		if m == p {
			return members, nil
		}
	}

	return nil, fmt.Errorf("%w: piece %d missing from group %d", ErrCorruptGroup, p.Index, p.Group)
}

// idealOffset is where a sits relative to c in a solved picture, turned to
// the orientation the two share.
func idealOffset(a, c *Piece) (float64, float64) {
	dx := float64(a.Col-c.Col) * a.size
	dy := float64(a.Row-c.Row) * a.size

	return rotateOffset(dx, dy, c.Rotation)
}

// Merge joins a's group onto c's group. a's group is translated so that a
// sits at its ideal offset from c; c's group does not move. If only a's
// group is locked the roles swap, so locked pieces never move. Lock state
// spreads to the joined members. Merging pieces already in one group is a
// no-op. On error both groups are left untouched.
func (b *Board) Merge(a, c *Piece) error {
	if a == nil || c == nil {
		return ErrUnknownPiece
	}
	if a == c || a.Group == c.Group {
		return nil
	}

	ga, err := b.group(a)
	if err != nil {
		return err
	}
	gc, err := b.group(c)
	if err != nil {
		return err
	}

	limit := b.maxGroupSize()
	if len(ga) > limit || len(gc) > limit {
		return fmt.Errorf("%w: %d and %d pieces, limit %d", ErrGroupTooLarge, len(ga), len(gc), limit)
	}

	if a.Rotation != c.Rotation {
		return fmt.Errorf("%w: piece %d at %d, piece %d at %d", ErrRotationMismatch, a.Index, a.Rotation, c.Index, c.Rotation)
	}

	if b.GroupLocked(a) && !b.GroupLocked(c) {
		a, c = c, a
		ga, gc = gc, ga
	}

	ox, oy := idealOffset(a, c)
	dx := c.X + ox - a.X
	dy := c.Y + oy - a.Y

	locked := b.GroupLocked(c)

	merged := make([]*Piece, 0, len(ga)+len(gc))
	merged = append(merged, gc...)
	merged = append(merged, ga...)

	delete(b.groups, a.Group)
	delete(b.groups, c.Group)

	id := merged[0].Index
	b.groups[id] = merged

	for _, m := range ga {
		switch {
		case locked:
			m.lockHome()
		case m == a:
			m.X = c.X + ox
			m.Y = c.Y + oy
		default:
			m.translate(dx, dy)
		}
	}

	for _, m := range merged {
		m.Group = id
	}

	return nil
}

// RotateGroup turns p's group a quarter turn around p: clockwise when dir
// is positive, counter-clockwise otherwise. p keeps its position.
func (b *Board) RotateGroup(pivot *Piece, dir int) {
	step := 1
	if dir < 0 {
		step = -1
	}

	for _, m := range b.groups[pivot.Group] {
		m.Rotation = NormalizeRotation(m.Rotation + step)

		if m == pivot {
			continue
		}

		rx := m.X - pivot.X
		ry := m.Y - pivot.Y

		if step > 0 {
			m.X = pivot.X - ry
			m.Y = pivot.Y + rx
		} else {
			m.X = pivot.X + ry
			m.Y = pivot.Y - rx
		}
	}
}

// resetGroups puts every piece back into a group of its own.
func (b *Board) resetGroups() {
	clear(b.groups)
	for _, p := range b.pieces {
		p.Group = p.Index
		b.groups[p.Index] = []*Piece{p}
	}
}
