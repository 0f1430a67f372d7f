package render

import (
	"bytes"
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Seednode/partypuzzle/puzzle"
)

func newBoard(t *testing.T, cols, rows int) *puzzle.Board {
	t.Helper()

	b, err := puzzle.NewBoard(cols, rows, 80, puzzle.DefaultOptions())
	require.NoError(t, err)

	return b
}

func TestStepEasesPositionAndSnaps(t *testing.T) {
	b := newBoard(t, 1, 1)
	p, _ := b.Piece(0)
	p.X = 100

	var a Animator
	require.True(t, a.Step(b))
	assert.InDelta(t, 30, p.DrawX, 1e-9)

	for range 100 {
		if !a.Step(b) {
			break
		}
	}

	assert.Equal(t, 100.0, p.DrawX)
	assert.False(t, a.Step(b))
}

func TestStepTakesShortestWayAround(t *testing.T) {
	b := newBoard(t, 1, 1)
	p, _ := b.Piece(0)
	p.VisualRotation = 3
	p.Rotation = 0

	var a Animator
	a.Step(b)
	assert.InDelta(t, 3.2, p.VisualRotation, 1e-9)

	for range 200 {
		if !a.Step(b) {
			break
		}
	}
	assert.Equal(t, 0.0, p.VisualRotation)
}

func TestStepLeavesLogicalPoseAlone(t *testing.T) {
	b := newBoard(t, 2, 1)
	p, _ := b.Piece(1)
	p.X, p.Y, p.Rotation = 300, 20, 2

	var a Animator
	for range 50 {
		a.Step(b)
	}

	assert.Equal(t, puzzle.Point{X: 300, Y: 20}, p.Pos())
	assert.Equal(t, 2, p.Rotation)
}

type solidSprites struct {
	fill image.Image
}

func (s solidSprites) Piece(int) (image.Image, image.Image) {
	return s.fill, nil
}

var red = color.RGBA{R: 255, A: 255}

func reddish(c color.RGBA) bool {
	return c.R > 250 && c.G < 5 && c.B < 5 && c.A > 250
}

func TestRenderPlacesSpriteCenteredOnPiece(t *testing.T) {
	b := newBoard(t, 1, 1)
	p, _ := b.Piece(0)
	p.X, p.Y = 100, 40
	p.SyncDraw()

	sprite := image.NewUniform(red)
	r := NewRaster(solidSprites{fill: &boundedUniform{Uniform: sprite, rect: image.Rect(0, 0, 120, 120)}})

	img := r.Render(b)

	assert.Equal(t, image.Rect(0, 0, 200, 160), img.Bounds())
	assert.True(t, reddish(img.RGBAAt(140, 80)))
	assert.Equal(t, color.RGBA{R: 255, G: 255, B: 255, A: 255}, img.RGBAAt(150, 10))
	assert.Equal(t, color.RGBA{A: 255}, img.RGBAAt(0, 40), "picture outline")
}

func TestRenderRotatesAboutCenter(t *testing.T) {
	b := newBoard(t, 1, 1)
	p, _ := b.Piece(0)
	p.X, p.Y, p.Rotation = 100, 40, 1
	p.SyncDraw()

	// Left half red, right half transparent: a quarter turn clockwise puts
	// the red half on top.
	half := image.NewRGBA(image.Rect(0, 0, 120, 120))
	for y := range 120 {
		for x := range 60 {
			half.SetRGBA(x, y, red)
		}
	}

	img := NewRaster(solidSprites{fill: half}).Render(b)

	assert.True(t, reddish(img.RGBAAt(140, 50)))
	assert.False(t, reddish(img.RGBAAt(140, 110)))
}

type boundedUniform struct {
	*image.Uniform
	rect image.Rectangle
}

func (u *boundedUniform) Bounds() image.Rectangle {
	return u.rect
}

func TestFormatElapsed(t *testing.T) {
	assert.Equal(t, "0:00", FormatElapsed(0))
	assert.Equal(t, "1:05", FormatElapsed(65))
	assert.Equal(t, "1:01:01", FormatElapsed(3661))
	assert.Equal(t, "0:00", FormatElapsed(-4))
}

func TestWriteCertificate(t *testing.T) {
	preview := image.NewRGBA(image.Rect(0, 0, 48, 32))

	var buf bytes.Buffer
	err := WriteCertificate(&buf, Certificate{
		Title:     "Harbor at dusk",
		Player:    "sam",
		Elapsed:   754,
		Pieces:    54,
		Completed: true,
		Finished:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Preview:   preview,
		Link:      "https://example.com/room/abc",
	})
	require.NoError(t, err)

	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")))
	assert.Greater(t, buf.Len(), 500)
}

func TestWriteCertificateRequiresCompletion(t *testing.T) {
	var buf bytes.Buffer
	assert.ErrorIs(t, WriteCertificate(&buf, Certificate{Pieces: 4}), ErrNotCompleted)
	assert.Zero(t, buf.Len())
}
