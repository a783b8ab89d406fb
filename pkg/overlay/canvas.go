// Package overlay renders normalized overlay instructions onto a drawing
// surface that tracks the displayed size of a live video.
package overlay

import "image/color"

// Point is a pixel position on a canvas.
type Point struct {
	X, Y float64
}

// Canvas is a 2D drawing surface with pixel coordinates. Origin is top-left.
type Canvas interface {
	Size() (width, height int)
	Resize(width, height int)
	Clear()

	StrokeRect(x, y, w, h float64, c color.Color, lineWidth float64)
	FillRect(x, y, w, h float64, c color.Color)
	StrokeCircle(cx, cy, r float64, c color.Color, lineWidth float64)
	FillCircle(cx, cy, r float64, c color.Color)
	StrokePolyline(points []Point, c color.Color, lineWidth float64)

	// MeasureText returns the advance width of s in the label font.
	MeasureText(s string) float64
	// FillText draws s with its baseline starting at (x, y).
	FillText(s string, x, y float64, c color.Color)
}
