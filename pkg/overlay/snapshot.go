package overlay

import (
	"bytes"
	"fmt"
	"image"
	"image/png"

	"golang.org/x/image/draw"

	_ "image/jpeg" // Register JPEG decoder for captured frames

	_ "golang.org/x/image/webp" // Register WebP decoder

	"github.com/Zenieverse/OmniGuide-AI/pkg/core/types"
)

// Snapshot scales frame to the displayed size and burns the overlay into it.
// A non-positive width or height keeps the frame's native size.
func Snapshot(frame image.Image, width, height int, instructions []types.OverlayInstruction) *image.RGBA {
	src := frame.Bounds()
	if width <= 0 || height <= 0 {
		width, height = src.Dx(), src.Dy()
	}
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	if width == src.Dx() && height == src.Dy() {
		draw.Draw(dst, dst.Bounds(), frame, src.Min, draw.Src)
	} else {
		draw.CatmullRom.Scale(dst, dst.Bounds(), frame, src, draw.Src, nil)
	}
	Render(newRasterCanvasOn(dst), instructions)
	return dst
}

// SnapshotPNG decodes an encoded frame, applies Snapshot and encodes PNG.
func SnapshotPNG(frame []byte, width, height int, instructions []types.OverlayInstruction) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(frame))
	if err != nil {
		return nil, fmt.Errorf("failed to decode frame: %w", err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, Snapshot(img, width, height, instructions)); err != nil {
		return nil, fmt.Errorf("failed to encode png: %w", err)
	}
	return buf.Bytes(), nil
}
