package overlay

import (
	"image/color"
	"strconv"
	"strings"

	"github.com/Zenieverse/OmniGuide-AI/pkg/core/types"
)

var namedColors = map[string]color.NRGBA{
	"black":   {0x00, 0x00, 0x00, 0xff},
	"white":   {0xff, 0xff, 0xff, 0xff},
	"red":     {0xff, 0x00, 0x00, 0xff},
	"green":   {0x00, 0x80, 0x00, 0xff},
	"lime":    {0x00, 0xff, 0x00, 0xff},
	"blue":    {0x00, 0x00, 0xff, 0xff},
	"yellow":  {0xff, 0xff, 0x00, 0xff},
	"orange":  {0xff, 0xa5, 0x00, 0xff},
	"cyan":    {0x00, 0xff, 0xff, 0xff},
	"magenta": {0xff, 0x00, 0xff, 0xff},
	"purple":  {0x80, 0x00, 0x80, 0xff},
	"pink":    {0xff, 0xc0, 0xcb, 0xff},
}

var accent = mustParseColor(types.DefaultOverlayColor)

// ParseColor accepts #rgb, #rgba, #rrggbb, #rrggbbaa and a few CSS names.
func ParseColor(s string) (color.NRGBA, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if c, ok := namedColors[s]; ok {
		return c, true
	}
	hex, ok := strings.CutPrefix(s, "#")
	if !ok {
		return color.NRGBA{}, false
	}
	switch len(hex) {
	case 3, 4:
		var expanded strings.Builder
		for _, r := range hex {
			expanded.WriteRune(r)
			expanded.WriteRune(r)
		}
		hex = expanded.String()
	case 6, 8:
	default:
		return color.NRGBA{}, false
	}
	if len(hex) == 6 {
		hex += "ff"
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.NRGBA{}, false
	}
	return color.NRGBA{R: uint8(v >> 24), G: uint8(v >> 16), B: uint8(v >> 8), A: uint8(v)}, true
}

// colorOr parses s, falling back to the accent color.
func colorOr(s string) color.NRGBA {
	if c, ok := ParseColor(s); ok {
		return c
	}
	return accent
}

func mustParseColor(s string) color.NRGBA {
	c, ok := ParseColor(s)
	if !ok {
		panic("overlay: bad color " + s)
	}
	return c
}
