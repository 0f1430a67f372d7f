package puzzle

const (
	minZoom = 0.25
	maxZoom = 4
)

// Viewport maps screen coordinates onto the board: screen = board*Zoom + Pan.
type Viewport struct {
	Zoom float64
	PanX float64
	PanY float64
}

func NewViewport() *Viewport {
	return &Viewport{Zoom: 1}
}

// ToBoard converts a screen point into board space.
func (v *Viewport) ToBoard(s Point) Point {
	return Point{
		X: (s.X - v.PanX) / v.Zoom,
		Y: (s.Y - v.PanY) / v.Zoom,
	}
}

// ToScreen converts a board point into screen space.
func (v *Viewport) ToScreen(p Point) Point {
	return Point{
		X: p.X*v.Zoom + v.PanX,
		Y: p.Y*v.Zoom + v.PanY,
	}
}

func (v *Viewport) Pan(dx, dy float64) {
	v.PanX += dx
	v.PanY += dy
}

// ZoomAt scales by factor while keeping the board point under s fixed.
func (v *Viewport) ZoomAt(s Point, factor float64) {
	anchor := v.ToBoard(s)

	v.Zoom = min(max(v.Zoom*factor, minZoom), maxZoom)
	v.PanX = s.X - anchor.X*v.Zoom
	v.PanY = s.Y - anchor.Y*v.Zoom
}
