/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package puzzle

import (
	"math"
	"math/rand/v2"
	"slices"
)

// homeEpsilon is how close an unrotated group must be to its home cell,
// when a layout is applied, to count as already snapped.
const homeEpsilon = 0.5

// Placement is the saved or transmitted pose of one piece. GroupID, when
// set, is the Index of a representative member of the piece's group.
type Placement struct {
	Index    int
	X        float64
	Y        float64
	Rotation int
	Locked   bool
	GroupID  *int
}

// Shuffle scatters every piece with a random rotation over the table area
// to the right of the picture, breaks up all groups, and clears completion
// and the timer.
func (b *Board) Shuffle(rng *rand.Rand) {
	size := b.PieceSize
	startX := float64(b.Cols)*size + size/2
	startY := size / 2
	spanX := max(b.Width-startX-size-size, 0)
	spanY := max(b.Height-startY-size-size, 0)

	b.resetGroups()

	for _, p := range b.pieces {
		p.X = startX + rng.Float64()*spanX
		p.Y = startY + rng.Float64()*spanY
		p.Rotation = rng.IntN(4)
		p.Locked = false
		p.HeldByOther = false
		p.Scale = 1
		p.Shadow = false
		p.SyncDraw()
	}

	b.completed = false
	b.Timer.Reset()
}

// ApplyLayout replaces every listed piece's pose wholesale and rebuilds the
// groups from the GroupID values. Pieces absent from the list keep their
// pose. Groups containing a locked member, or sitting unrotated on their
// home cells, end up locked on the grid. Completion is recorded without
// firing, since a restored board was finished elsewhere.
func (b *Board) ApplyLayout(placements []Placement) {
	parent := make(map[int]int, len(placements))

	var find func(int) int
	find = func(i int) int {
		p, ok := parent[i]
		if !ok || p == i {
			parent[i] = i
			return i
		}
		root := find(p)
		parent[i] = root
		return root
	}

	leaders := make(map[int]bool)

	for _, pl := range placements {
		p, ok := b.Piece(pl.Index)
		if !ok {
			continue
		}

		p.X = pl.X
		p.Y = pl.Y
		p.Rotation = NormalizeRotation(pl.Rotation)
		p.Locked = pl.Locked
		p.HeldByOther = false
		p.Scale = 1
		p.Shadow = false
		p.SyncDraw()

		if pl.GroupID == nil {
			continue
		}
		if _, ok := b.Piece(*pl.GroupID); !ok || *pl.GroupID == pl.Index {
			leaders[pl.Index] = true
			continue
		}

		leaders[*pl.GroupID] = true
		ra, rb := find(*pl.GroupID), find(pl.Index)
		if ra != rb {
			parent[rb] = ra
		}
	}

	buckets := make(map[int][]*Piece)
	for _, p := range b.pieces {
		root := find(p.Index)
		buckets[root] = append(buckets[root], p)
	}

	clear(b.groups)
	for _, members := range buckets {
		// Leader first, the rest in index order.
		slices.SortStableFunc(members, func(x, y *Piece) int {
			switch {
			case leaders[x.Index] && !leaders[y.Index]:
				return -1
			case leaders[y.Index] && !leaders[x.Index]:
				return 1
			default:
				return x.Index - y.Index
			}
		})

		id := members[0].Index
		b.groups[id] = members
		for _, m := range members {
			m.Group = id
		}

		b.settleRestored(members)
	}

	b.completed = b.Solved()
}

func (b *Board) settleRestored(members []*Piece) {
	lead := members[0]

	locked := false
	for _, m := range members {
		if m.Locked {
			locked = true
			break
		}
	}

	if !locked && lead.Rotation == 0 {
		home := lead.Home()
		locked = math.Abs(lead.X-home.X) < homeEpsilon && math.Abs(lead.Y-home.Y) < homeEpsilon
	}

	if locked {
		for _, m := range members {
			m.Rotation = 0
			m.lockHome()
			m.SyncDraw()
		}
	}
}

// Placements captures the board for saving or for a START_GAME layout.
// GroupID is always set to the Index of the group's first member.
func (b *Board) Placements() []Placement {
	out := make([]Placement, 0, len(b.pieces))

	for _, p := range b.pieces {
		id := p.Group
		out = append(out, Placement{
			Index:    p.Index,
			X:        p.X,
			Y:        p.Y,
			Rotation: p.Rotation,
			Locked:   p.Locked,
			GroupID:  &id,
		})
	}

	return out
}
