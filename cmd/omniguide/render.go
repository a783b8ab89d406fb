package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Zenieverse/OmniGuide-AI/pkg/core/types"
	"github.com/Zenieverse/OmniGuide-AI/pkg/overlay"
)

type renderOptions struct {
	imagePath   string
	overlayPath string
	outPath     string
	width       int
	height      int
}

func newRenderCmd() *cobra.Command {
	opts := renderOptions{}
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Burn overlay instructions into a frame offline",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := runRender(opts); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", opts.outPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.imagePath, "image", "", "frame to draw on (JPEG, PNG or WebP)")
	cmd.Flags().StringVar(&opts.overlayPath, "overlay", "", "JSON file: an instruction array or a response with an \"overlay\" field")
	cmd.Flags().StringVar(&opts.outPath, "out", "overlay.png", "output PNG path")
	cmd.Flags().IntVar(&opts.width, "width", 0, "displayed width (default: frame width)")
	cmd.Flags().IntVar(&opts.height, "height", 0, "displayed height (default: frame height)")
	_ = cmd.MarkFlagRequired("image")
	_ = cmd.MarkFlagRequired("overlay")
	return cmd
}

func runRender(opts renderOptions) error {
	if opts.width < 0 || opts.height < 0 {
		return fmt.Errorf("width and height must not be negative")
	}
	frame, err := os.ReadFile(opts.imagePath)
	if err != nil {
		return fmt.Errorf("read image: %w", err)
	}
	raw, err := os.ReadFile(opts.overlayPath)
	if err != nil {
		return fmt.Errorf("read overlay: %w", err)
	}
	instructions, err := parseOverlayFile(raw)
	if err != nil {
		return err
	}
	png, err := overlay.SnapshotPNG(frame, opts.width, opts.height, instructions)
	if err != nil {
		return err
	}
	if err := os.WriteFile(opts.outPath, png, 0o644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}

func parseOverlayFile(raw []byte) ([]types.OverlayInstruction, error) {
	raw = bytes.TrimSpace(raw)
	var instructions []types.OverlayInstruction
	if len(raw) > 0 && raw[0] == '[' {
		if err := json.Unmarshal(raw, &instructions); err != nil {
			return nil, fmt.Errorf("parse overlay: %w", err)
		}
	} else {
		var wrapped struct {
			Overlay []types.OverlayInstruction `json:"overlay"`
		}
		if err := json.Unmarshal(raw, &wrapped); err != nil {
			return nil, fmt.Errorf("parse overlay: %w", err)
		}
		instructions = wrapped.Overlay
	}
	for i, o := range instructions {
		if err := o.Validate(); err != nil {
			return nil, fmt.Errorf("overlay[%d]: %w", i, err)
		}
	}
	return instructions, nil
}
