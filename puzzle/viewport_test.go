package puzzle

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestViewportRoundTrip(t *testing.T) {
	v := &Viewport{Zoom: 2, PanX: 30, PanY: -10}

	s := v.ToScreen(Point{X: 100, Y: 50})
	assert.Equal(t, Point{X: 230, Y: 90}, s)
	assert.Equal(t, Point{X: 100, Y: 50}, v.ToBoard(s))
}

func TestZoomAtKeepsAnchorAndClamps(t *testing.T) {
	v := NewViewport()
	anchor := Point{X: 200, Y: 120}

	v.ZoomAt(anchor, 2)
	assert.Equal(t, 2.0, v.Zoom)
	assert.Equal(t, anchor, v.ToBoard(anchor))

	v.ZoomAt(anchor, 100)
	assert.Equal(t, maxZoom*1.0, v.Zoom)

	v.ZoomAt(anchor, 0.0001)
	assert.Equal(t, minZoom, v.Zoom)
}
