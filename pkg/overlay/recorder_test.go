package overlay

import (
	"fmt"
	"image/color"
)

type call struct {
	op   string
	args []float64
	text string
	col  color.Color
}

// recordingCanvas logs every call so tests can assert on the draw sequence.
type recordingCanvas struct {
	w, h  int
	calls []call
}

func newRecordingCanvas(w, h int) *recordingCanvas {
	return &recordingCanvas{w: w, h: h}
}

func (r *recordingCanvas) log(op string, col color.Color, args ...float64) {
	r.calls = append(r.calls, call{op: op, args: args, col: col})
}

func (r *recordingCanvas) Size() (int, int) { return r.w, r.h }

func (r *recordingCanvas) Resize(w, h int) {
	r.w, r.h = w, h
	r.log("Resize", nil, float64(w), float64(h))
}

func (r *recordingCanvas) Clear() { r.log("Clear", nil) }

func (r *recordingCanvas) StrokeRect(x, y, w, h float64, c color.Color, lw float64) {
	r.log("StrokeRect", c, x, y, w, h, lw)
}

func (r *recordingCanvas) FillRect(x, y, w, h float64, c color.Color) {
	r.log("FillRect", c, x, y, w, h)
}

func (r *recordingCanvas) StrokeCircle(cx, cy, rad float64, c color.Color, lw float64) {
	r.log("StrokeCircle", c, cx, cy, rad, lw)
}

func (r *recordingCanvas) FillCircle(cx, cy, rad float64, c color.Color) {
	r.log("FillCircle", c, cx, cy, rad)
}

func (r *recordingCanvas) StrokePolyline(pts []Point, c color.Color, lw float64) {
	args := make([]float64, 0, 2*len(pts)+1)
	for _, p := range pts {
		args = append(args, p.X, p.Y)
	}
	r.log("StrokePolyline", c, append(args, lw)...)
}

func (r *recordingCanvas) MeasureText(s string) float64 {
	r.calls = append(r.calls, call{op: "MeasureText", text: s})
	return float64(len(s)) * 8
}

func (r *recordingCanvas) FillText(s string, x, y float64, c color.Color) {
	r.calls = append(r.calls, call{op: "FillText", text: s, args: []float64{x, y}, col: c})
}

func (r *recordingCanvas) ops() []string {
	out := make([]string, len(r.calls))
	for i, c := range r.calls {
		out[i] = c.op
	}
	return out
}

func (c call) String() string {
	return fmt.Sprintf("%s%v", c.op, c.args)
}
