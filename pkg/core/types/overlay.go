package types

import (
	"fmt"
	"strings"
)

// OverlayType is the kind of drawing directive.
type OverlayType string

const (
	OverlayHighlight OverlayType = "highlight"
	OverlayCircle    OverlayType = "circle"
	OverlayArrow     OverlayType = "arrow"
	OverlayLabel     OverlayType = "label"
)

const (
	// DefaultOverlayColor is the accent used when an instruction has no color.
	DefaultOverlayColor = "#00f2ff"

	defaultOverlayPosition = 0
	defaultOverlaySize     = 10
)

// OverlayInstruction is a renderer-agnostic drawing directive. Coordinates
// are percentages (0-100) of the video's displayed size. Numeric fields are
// pointers so that an absent value can take its default.
type OverlayInstruction struct {
	Type   OverlayType `json:"type"`
	Target string      `json:"target,omitempty"`
	X      *float64    `json:"x,omitempty"`
	Y      *float64    `json:"y,omitempty"`
	Width  *float64    `json:"width,omitempty"`
	Height *float64    `json:"height,omitempty"`
	Label  string      `json:"label,omitempty"`
	Color  string      `json:"color,omitempty"`
}

// ResolvedOverlay is an instruction with defaults applied and values clamped.
type ResolvedOverlay struct {
	Type   OverlayType
	X      float64
	Y      float64
	Width  float64
	Height float64
	Label  string
	Color  string
}

// Resolved applies defaults: 0 for position, 10 for size, the accent color.
func (o OverlayInstruction) Resolved() ResolvedOverlay {
	color := strings.TrimSpace(o.Color)
	if color == "" {
		color = DefaultOverlayColor
	}
	return ResolvedOverlay{
		Type:   o.Type,
		X:      percentOr(o.X, defaultOverlayPosition),
		Y:      percentOr(o.Y, defaultOverlayPosition),
		Width:  percentOr(o.Width, defaultOverlaySize),
		Height: percentOr(o.Height, defaultOverlaySize),
		Label:  o.Label,
		Color:  color,
	}
}

// Validate checks the instruction type.
func (o OverlayInstruction) Validate() error {
	switch o.Type {
	case OverlayHighlight, OverlayCircle, OverlayArrow, OverlayLabel:
		return nil
	default:
		return fmt.Errorf("unsupported overlay type %q", o.Type)
	}
}

// Percent is a convenience for building instructions in code.
func Percent(v float64) *float64 { return &v }

func percentOr(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	switch {
	case *v < 0:
		return 0
	case *v > 100:
		return 100
	default:
		return *v
	}
}
