package render

import (
	"image"
	"image/color"
	"math"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"

	"github.com/Seednode/partypuzzle/puzzle"
)

const (
	outlineWidth = 4
	shadowOffset = 2
)

// Sprites supplies the bitmaps for each piece, keyed by piece index. Both
// images are square, 1.5 times the piece size, with the piece body centered.
// Missing sprites are returned as nil.
type Sprites interface {
	Piece(index int) (fill, outline image.Image)
}

// Raster paints a board in draw order using its eased pose, rotating each
// sprite about the piece center and applying the lift scale.
type Raster struct {
	Sprites    Sprites
	Background color.Color

	shadows map[int]image.Image
}

func NewRaster(s Sprites) *Raster {
	return &Raster{
		Sprites:    s,
		Background: color.White,
		shadows:    make(map[int]image.Image),
	}
}

// Render paints b into a new image covering the whole table.
func (r *Raster) Render(b *puzzle.Board) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, int(math.Ceil(b.Width)), int(math.Ceil(b.Height))))
	r.Paint(dst, b)

	return dst
}

// Paint draws the background, the picture outline and every piece onto dst.
func (r *Raster) Paint(dst draw.Image, b *puzzle.Board) {
	if r.Background != nil {
		draw.Draw(dst, dst.Bounds(), image.NewUniform(r.Background), image.Point{}, draw.Src)
	}

	r.paintOutline(dst, b)

	for _, p := range b.DrawOrder() {
		r.paintPiece(dst, b, p)
	}
}

func (r *Raster) paintOutline(dst draw.Image, b *puzzle.Board) {
	w := int(math.Round(float64(b.Cols) * b.PieceSize))
	h := int(math.Round(float64(b.Rows) * b.PieceSize))
	ink := image.NewUniform(color.Black)
	half := outlineWidth / 2

	for _, edge := range []image.Rectangle{
		image.Rect(-half, -half, w+half, half),
		image.Rect(-half, h-half, w+half, h+half),
		image.Rect(-half, -half, half, h+half),
		image.Rect(w-half, -half, w+half, h+half),
	} {
		draw.Draw(dst, edge.Intersect(dst.Bounds()), ink, image.Point{}, draw.Over)
	}
}

func (r *Raster) paintPiece(dst draw.Image, b *puzzle.Board, p *puzzle.Piece) {
	if r.Sprites == nil {
		return
	}

	fill, outline := r.Sprites.Piece(p.Index)
	if fill == nil {
		return
	}

	m := spriteTransform(p, b.PieceSize, fill.Bounds())

	if p.Shadow {
		s := m
		s[2] += shadowOffset
		s[5] += shadowOffset
		draw.BiLinear.Transform(dst, s, r.shadow(p.Index, fill), fill.Bounds(), draw.Over, nil)
	}

	draw.BiLinear.Transform(dst, m, fill, fill.Bounds(), draw.Over, nil)

	if outline != nil {
		draw.BiLinear.Transform(dst, m, outline, outline.Bounds(), draw.Over, nil)
	}
}

// spriteTransform maps sprite space onto the table: the sprite center lands
// on the piece center, turned by the eased rotation and scaled by the lift.
func spriteTransform(p *puzzle.Piece, size float64, sr image.Rectangle) f64.Aff3 {
	half := size / 2
	cx := p.DrawX + half
	cy := p.DrawY + half

	k := float64(sr.Dx()) / 2
	kx := float64(sr.Min.X) + k
	ky := float64(sr.Min.Y) + float64(sr.Dy())/2

	sc := p.Scale
	if sc == 0 {
		sc = 1
	}

	theta := p.VisualRotation * math.Pi / 2
	cos := sc * math.Cos(theta)
	sin := sc * math.Sin(theta)

	return f64.Aff3{
		cos, -sin, cx - cos*kx + sin*ky,
		sin, cos, cy - sin*kx - cos*ky,
	}
}

// shadow returns a translucent black copy of a sprite's shape.
func (r *Raster) shadow(index int, fill image.Image) image.Image {
	if s, ok := r.shadows[index]; ok {
		return s
	}

	bounds := fill.Bounds()
	s := image.NewNRGBA(bounds)

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			_, _, _, a := fill.At(x, y).RGBA()
			s.SetNRGBA(x, y, color.NRGBA{A: uint8(a >> 9)})
		}
	}

	if r.shadows == nil {
		r.shadows = make(map[int]image.Image)
	}
	r.shadows[index] = s

	return s
}
