package overlay

import (
	"image"
	"image/color"
	"math"
	"sync"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
	"golang.org/x/image/vector"
)

const (
	labelFontSize = 16
	circleSteps   = 96
)

var (
	boldOnce sync.Once
	boldFont *opentype.Font
	boldErr  error
)

func labelFont() (*opentype.Font, error) {
	boldOnce.Do(func() {
		boldFont, boldErr = opentype.Parse(gobold.TTF)
	})
	return boldFont, boldErr
}

// RasterCanvas is a Canvas backed by an RGBA image.
type RasterCanvas struct {
	img  *image.RGBA
	z    *vector.Rasterizer
	face font.Face
}

var _ Canvas = (*RasterCanvas)(nil)

// NewRasterCanvas returns a transparent canvas of the given size.
func NewRasterCanvas(width, height int) *RasterCanvas {
	return newRasterCanvasOn(image.NewRGBA(image.Rect(0, 0, max(width, 0), max(height, 0))))
}

func newRasterCanvasOn(img *image.RGBA) *RasterCanvas {
	c := &RasterCanvas{img: img}
	b := img.Bounds()
	c.z = vector.NewRasterizer(b.Dx(), b.Dy())
	if f, err := labelFont(); err == nil {
		c.face, _ = opentype.NewFace(f, &opentype.FaceOptions{
			Size:    labelFontSize,
			DPI:     72,
			Hinting: font.HintingFull,
		})
	}
	return c
}

// Image returns the backing image.
func (c *RasterCanvas) Image() *image.RGBA {
	return c.img
}

// Size implements Canvas.
func (c *RasterCanvas) Size() (int, int) {
	b := c.img.Bounds()
	return b.Dx(), b.Dy()
}

// Resize replaces the backing image. Contents are discarded, as with an
// HTML canvas.
func (c *RasterCanvas) Resize(width, height int) {
	c.img = image.NewRGBA(image.Rect(0, 0, max(width, 0), max(height, 0)))
}

// Clear makes every pixel transparent.
func (c *RasterCanvas) Clear() {
	draw.Draw(c.img, c.img.Bounds(), image.Transparent, image.Point{}, draw.Src)
}

// StrokeRect implements Canvas.
func (c *RasterCanvas) StrokeRect(x, y, w, h float64, col color.Color, lw float64) {
	pts := []Point{{x, y}, {x + w, y}, {x + w, y + h}, {x, y + h}}
	c.begin()
	c.strokePath(pts, true, lw)
	c.paint(col)
}

// FillRect implements Canvas.
func (c *RasterCanvas) FillRect(x, y, w, h float64, col color.Color) {
	c.begin()
	c.polygon([]Point{{x, y}, {x, y + h}, {x + w, y + h}, {x + w, y}})
	c.paint(col)
}

// StrokeCircle implements Canvas.
func (c *RasterCanvas) StrokeCircle(cx, cy, r float64, col color.Color, lw float64) {
	c.begin()
	outer := circlePoints(cx, cy, r+lw/2)
	c.polygon(outer)
	if inner := r - lw/2; inner > 0 {
		pts := circlePoints(cx, cy, inner)
		for i, j := 0, len(pts)-1; i < j; i, j = i+1, j-1 {
			pts[i], pts[j] = pts[j], pts[i]
		}
		c.polygon(pts)
	}
	c.paint(col)
}

// FillCircle implements Canvas.
func (c *RasterCanvas) FillCircle(cx, cy, r float64, col color.Color) {
	c.begin()
	c.polygon(circlePoints(cx, cy, r))
	c.paint(col)
}

// StrokePolyline implements Canvas with butt caps and round joins.
func (c *RasterCanvas) StrokePolyline(pts []Point, col color.Color, lw float64) {
	c.begin()
	c.strokePath(pts, false, lw)
	c.paint(col)
}

// MeasureText implements Canvas.
func (c *RasterCanvas) MeasureText(s string) float64 {
	if c.face == nil {
		return float64(len(s)) * labelFontSize * 0.6
	}
	return fixedToFloat(font.MeasureString(c.face, s))
}

// FillText implements Canvas.
func (c *RasterCanvas) FillText(s string, x, y float64, col color.Color) {
	if c.face == nil || s == "" {
		return
	}
	d := font.Drawer{
		Dst:  c.img,
		Src:  image.NewUniform(col),
		Face: c.face,
		Dot:  fixed.Point26_6{X: floatToFixed(x), Y: floatToFixed(y)},
	}
	d.DrawString(s)
}

func (c *RasterCanvas) begin() {
	w, h := c.Size()
	c.z.Reset(w, h)
	c.z.DrawOp = draw.Over
}

func (c *RasterCanvas) paint(col color.Color) {
	c.z.Draw(c.img, c.img.Bounds(), image.NewUniform(col), image.Point{})
}

// polygon adds a closed subpath. Subpaths with the same winding union;
// opposite windings cut holes.
func (c *RasterCanvas) polygon(pts []Point) {
	if len(pts) < 3 {
		return
	}
	c.z.MoveTo(float32(pts[0].X), float32(pts[0].Y))
	for _, p := range pts[1:] {
		c.z.LineTo(float32(p.X), float32(p.Y))
	}
	c.z.ClosePath()
}

// strokePath outlines each segment as a quad and rounds the joins.
func (c *RasterCanvas) strokePath(pts []Point, closed bool, lw float64) {
	if len(pts) < 2 || lw <= 0 {
		return
	}
	half := lw / 2
	n := len(pts)
	segments := n - 1
	if closed {
		segments = n
	}
	for i := 0; i < segments; i++ {
		p, q := pts[i], pts[(i+1)%n]
		dx, dy := q.X-p.X, q.Y-p.Y
		length := math.Hypot(dx, dy)
		if length == 0 {
			continue
		}
		nx, ny := -dy/length*half, dx/length*half
		c.polygon([]Point{
			{p.X - nx, p.Y - ny},
			{q.X - nx, q.Y - ny},
			{q.X + nx, q.Y + ny},
			{p.X + nx, p.Y + ny},
		})
	}
	for i, p := range pts {
		if !closed && (i == 0 || i == n-1) {
			continue
		}
		c.polygon(circlePoints(p.X, p.Y, half))
	}
}

func circlePoints(cx, cy, r float64) []Point {
	pts := make([]Point, circleSteps)
	for i := range pts {
		t := 2 * math.Pi * float64(i) / circleSteps
		pts[i] = Point{cx + r*math.Cos(t), cy + r*math.Sin(t)}
	}
	return pts
}

func fixedToFloat(v fixed.Int26_6) float64 {
	return float64(v) / 64
}

func floatToFixed(v float64) fixed.Int26_6 {
	return fixed.Int26_6(math.Round(v * 64))
}
