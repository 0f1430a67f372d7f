/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package puzzle

// liftScale is applied to a grabbed group while it is dragged.
const liftScale = 1.05

// State is the local interaction state.
type State int

const (
	Idle State = iota
	Dragging
	Panning
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Dragging:
		return "dragging"
	case Panning:
		return "panning"
	default:
		return "unknown"
	}
}

// Controller turns pointer and keyboard input into piece mutations for one
// local user. Input arrives in screen space and is mapped through the
// viewport.
type Controller struct {
	board *Board
	view  *Viewport

	state  State
	pivot  *Piece
	grab   Point // board-space pointer at grab time
	shift  Point // current drag displacement
	starts map[*Piece]Point
	origin map[*Piece]pose // poses at grab time, for Cancel
	last   Point           // screen-space pointer while panning
	gate   Gate
}

type pose struct {
	pos      Point
	rotation int
}

func NewController(b *Board, v *Viewport) *Controller {
	if v == nil {
		v = NewViewport()
	}

	return &Controller{board: b, view: v}
}

func (c *Controller) Board() *Board {
	return c.board
}

func (c *Controller) Viewport() *Viewport {
	return c.view
}

func (c *Controller) State() State {
	return c.state
}

// Dragging returns the grabbed pivot, or nil.
func (c *Controller) Dragging() *Piece {
	if c.state != Dragging {
		return nil
	}
	return c.pivot
}

// Holds reports whether p belongs to the group being dragged locally.
func (c *Controller) Holds(p *Piece) bool {
	return c.state == Dragging && p != nil && p.Group == c.pivot.Group
}

// PointerDown grabs the piece under the pointer, or starts panning when
// there is none. Locked pieces and pieces held by someone else are
// ignored. It reports whether a piece was grabbed.
func (c *Controller) PointerDown(s Point) bool {
	if c.state != Idle {
		return false
	}

	pt := c.view.ToBoard(s)

	p := c.board.PieceAt(pt)
	if p == nil {
		c.state = Panning
		c.last = s

		return false
	}

	if c.board.GroupLocked(p) || c.board.GroupHeldByOther(p) {
		return false
	}

	c.state = Dragging
	c.pivot = p
	c.grab = pt
	c.shift = Point{}
	c.starts = make(map[*Piece]Point)
	c.origin = make(map[*Piece]pose)

	for _, m := range c.board.Members(p) {
		c.starts[m] = m.Pos()
		c.origin[m] = pose{pos: m.Pos(), rotation: m.Rotation}
		m.Scale = liftScale
		m.Shadow = true
	}

	c.board.raise(p)
	c.board.emitGrab(p)

	return true
}

// PointerMove drags the held group or pans the viewport.
func (c *Controller) PointerMove(s Point) {
	switch c.state {
	case Panning:
		c.view.Pan(s.X-c.last.X, s.Y-c.last.Y)
		c.last = s

	case Dragging:
		pt := c.view.ToBoard(s)
		c.shift = c.clamp(Point{X: pt.X - c.grab.X, Y: pt.Y - c.grab.Y})

		for m, start := range c.starts {
			m.X = start.X + c.shift.X
			m.Y = start.Y + c.shift.Y
			m.syncDrawPos()
		}

		c.board.emitMove(c.pivot)
	}
}

// clamp limits a drag displacement so the pivot stays on the table.
func (c *Controller) clamp(d Point) Point {
	if c.board.Width <= 0 || c.board.Height <= 0 {
		return d
	}

	start := c.starts[c.pivot]
	margin := c.board.PieceSize * 1.5

	x := min(max(start.X+d.X, 0), c.board.Width-margin)
	y := min(max(start.Y+d.Y, 0), c.board.Height-margin)

	return Point{X: x - start.X, Y: y - start.Y}
}

// PointerUp drops the held group, running the merge and snap rules, or
// ends a pan.
func (c *Controller) PointerUp() Outcome {
	switch c.state {
	case Panning:
		c.state = Idle

	case Dragging:
		p := c.pivot
		for m := range c.starts {
			m.Scale = 1
			m.Shadow = false
		}
		c.reset()

		return c.settle(p)
	}

	return Outcome{}
}

func (c *Controller) settle(p *Piece) Outcome {
	out := c.board.Settle(p)
	if out.Merged {
		c.board.emitMerge(out.Dragged, out.Stationary)
	}
	c.board.emitRelease(p)

	return out
}

// DoubleClick rotates the clicked piece's group clockwise.
func (c *Controller) DoubleClick(s Point) bool {
	return c.Rotate(c.board.PieceAt(c.view.ToBoard(s)), 1)
}

// RotateKey rotates the dragged group around its pivot. It does nothing
// when no group is held.
func (c *Controller) RotateKey(dir int) bool {
	if c.state != Dragging {
		return false
	}
	return c.Rotate(c.pivot, dir)
}

// Gate holds back a turn made outside a drag until the group has been
// granted, calling then once it is. A gate may never call then.
type Gate interface {
	Await(p *Piece, then func())
}

// SetGate routes turns made outside a drag through g. With no gate they
// apply at once.
func (c *Controller) SetGate(g Gate) {
	c.gate = g
}

// Rotate turns p's group a quarter turn around p. While dragging only the
// held group may turn. Outside a drag the rotation is announced as a
// complete grab, move, release cycle and the drop rules run, since a turn
// can complete a piece.
func (c *Controller) Rotate(p *Piece, dir int) bool {
	if p == nil {
		return false
	}
	if c.state == Dragging && !c.Holds(p) {
		return false
	}
	if c.board.GroupLocked(p) || c.board.GroupHeldByOther(p) {
		return false
	}

	if c.state == Dragging {
		c.rotateHeld(p, dir)
		return true
	}

	c.board.raise(p)
	c.board.emitGrab(p)

	if c.gate == nil {
		c.turn(p, dir)
	} else {
		c.gate.Await(p, func() { c.turn(p, dir) })
	}

	return true
}

func (c *Controller) rotateHeld(p *Piece, dir int) {
	c.board.RotateGroup(p, dir)
	for _, m := range c.board.Members(p) {
		c.starts[m] = Point{X: m.X - c.shift.X, Y: m.Y - c.shift.Y}
		m.syncDrawPos()
	}
	for _, m := range c.board.Members(p) {
		c.board.emitMove(m)
	}
}

// turn finishes a rotation granted after the fact. The group may have
// been picked up or locked in the meantime.
func (c *Controller) turn(p *Piece, dir int) {
	switch {
	case c.Holds(p):
		c.rotateHeld(p, dir)
	case c.board.GroupLocked(p):
		c.board.emitRelease(p)
	default:
		c.board.RotateGroup(p, dir)
		for _, m := range c.board.Members(p) {
			c.board.emitMove(m)
		}
		c.settle(p)
	}
}

// Zoom scales the viewport around a screen point.
func (c *Controller) Zoom(s Point, factor float64) {
	c.view.ZoomAt(s, factor)
}

// Cancel abandons a drag, returning the group to where it was grabbed.
// Nothing is announced; it is used when the grab went to someone else.
func (c *Controller) Cancel() {
	if c.state != Dragging {
		return
	}

	for m, o := range c.origin {
		m.X = o.pos.X
		m.Y = o.pos.Y
		m.Rotation = o.rotation
		m.Scale = 1
		m.Shadow = false
		m.SyncDraw()
	}

	c.reset()
}

// Drop ends a drag where the group is, skipping the merge and snap rules,
// and announces the release.
func (c *Controller) Drop() bool {
	if c.state != Dragging {
		return false
	}

	p := c.pivot
	for m := range c.starts {
		m.Scale = 1
		m.Shadow = false
	}
	c.reset()
	c.board.emitRelease(p)

	return true
}

func (c *Controller) reset() {
	c.state = Idle
	c.pivot = nil
	c.starts = nil
	c.origin = nil
	c.shift = Point{}
}
