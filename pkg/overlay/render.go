package overlay

import (
	"image/color"
	"math"

	"github.com/Zenieverse/OmniGuide-AI/pkg/core/types"
)

const (
	lineWidth   = 3
	fillAlpha   = 0x22
	arrowHead   = 15
	arrowAngle  = math.Pi / 6
	labelHeight = 25
	labelPadX   = 10
	labelTextX  = 5
	labelTextY  = 7
)

var labelTextColor = color.NRGBA{A: 0xff}

// Box is an instruction projected to pixels.
type Box struct {
	X, Y, W, H float64
}

// Project maps a resolved instruction onto a width x height surface:
// x and width scale with width, y and height scale with height.
func Project(o types.ResolvedOverlay, width, height int) Box {
	sx := float64(width) / 100
	sy := float64(height) / 100
	return Box{X: o.X * sx, Y: o.Y * sy, W: o.Width * sx, H: o.Height * sy}
}

// Render draws instructions onto c. An empty set makes no calls at all.
func Render(c Canvas, instructions []types.OverlayInstruction) {
	if len(instructions) == 0 {
		return
	}
	width, height := c.Size()
	for _, inst := range instructions {
		renderOne(c, inst.Resolved(), width, height)
	}
}

func renderOne(c Canvas, o types.ResolvedOverlay, width, height int) {
	b := Project(o, width, height)
	stroke := colorOr(o.Color)
	fill := stroke
	fill.A = fillAlpha

	switch o.Type {
	case types.OverlayHighlight:
		c.StrokeRect(b.X, b.Y, b.W, b.H, stroke, lineWidth)
		c.FillRect(b.X, b.Y, b.W, b.H, fill)
	case types.OverlayCircle:
		cx, cy := b.X+b.W/2, b.Y+b.H/2
		r := math.Max(b.W, b.H) / 2
		c.StrokeCircle(cx, cy, r, stroke, lineWidth)
		c.FillCircle(cx, cy, r, fill)
	case types.OverlayArrow:
		from := Point{b.X, b.Y}
		to := Point{b.X + b.W, b.Y + b.H}
		left, right := arrowHeadPoints(from, to)
		c.StrokePolyline([]Point{from, to, left}, stroke, lineWidth)
		c.StrokePolyline([]Point{to, right}, stroke, lineWidth)
	case types.OverlayLabel:
		tw := c.MeasureText(o.Label)
		c.FillRect(b.X, b.Y-labelHeight, tw+labelPadX, labelHeight, stroke)
		c.FillText(o.Label, b.X+labelTextX, b.Y-labelTextY, labelTextColor)
	}
}

// arrowHeadPoints returns the two barb endpoints, each arrowHead pixels back
// from the tip at +-30 degrees to the shaft.
func arrowHeadPoints(from, to Point) (Point, Point) {
	angle := math.Atan2(to.Y-from.Y, to.X-from.X)
	left := Point{
		X: to.X - arrowHead*math.Cos(angle-arrowAngle),
		Y: to.Y - arrowHead*math.Sin(angle-arrowAngle),
	}
	right := Point{
		X: to.X - arrowHead*math.Cos(angle+arrowAngle),
		Y: to.Y - arrowHead*math.Sin(angle+arrowAngle),
	}
	return left, right
}
