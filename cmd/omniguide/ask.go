package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/Zenieverse/OmniGuide-AI/pkg/core/types"
	"github.com/Zenieverse/OmniGuide-AI/pkg/overlay"
	omniguide "github.com/Zenieverse/OmniGuide-AI/sdk"
)

type askOptions struct {
	url       string
	sessionID string
	mode      string
	imagePath string
	outPath   string
	timeout   time.Duration
}

func newAskCmd() *cobra.Command {
	opts := askOptions{}
	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Send one frame and question to a running gateway",
		Example: `  omniguide ask --image frame.jpg "What is this part called?"
  omniguide ask --mode cooking_assistant --image pan.jpg --out overlay.png "Is this done?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAsk(cmd.Context(), cmd, opts, strings.Join(args, " "))
		},
	}
	cmd.Flags().StringVar(&opts.url, "url", envDefault("OMNIGUIDE_URL", "http://localhost:3000"), "gateway base URL")
	cmd.Flags().StringVar(&opts.sessionID, "session", "", "session id (default: a new random id)")
	cmd.Flags().StringVar(&opts.mode, "mode", string(types.ModeGeneral), "assistant mode")
	cmd.Flags().StringVar(&opts.imagePath, "image", "", "captured frame (JPEG, PNG or WebP)")
	cmd.Flags().StringVar(&opts.outPath, "out", "", "write the frame with the overlay burned in to this PNG path")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 90*time.Second, "overall timeout")
	return cmd
}

func runAsk(ctx context.Context, cmd *cobra.Command, opts askOptions, question string) error {
	mode, err := types.ParseMode(opts.mode)
	if err != nil {
		return err
	}
	var frame []byte
	if opts.imagePath != "" {
		frame, err = os.ReadFile(opts.imagePath)
		if err != nil {
			return fmt.Errorf("read image: %w", err)
		}
	}
	dataURI := ""
	if len(frame) > 0 {
		dataURI = types.EncodeDataURI(http.DetectContentType(frame), frame)
	}
	sessionID := opts.sessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	ctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	client, err := omniguide.Dial(ctx, opts.url)
	if err != nil {
		return err
	}
	defer client.Close()

	resp, err := client.Analyze(ctx, sessionID, dataURI, question, mode)
	if err != nil {
		return err
	}
	if resp == nil {
		return fmt.Errorf("question is empty")
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "session: %s\n", sessionID)
	fmt.Fprintf(out, "speech: %s\n", resp.Speech)
	fmt.Fprintf(out, "analysis: %s\n", resp.Analysis)
	for _, o := range resp.Overlay {
		r := o.Resolved()
		fmt.Fprintf(out, "overlay: %s %q at (%.0f%%, %.0f%%) size %.0f%%x%.0f%%\n", r.Type, r.Label, r.X, r.Y, r.Width, r.Height)
	}

	if opts.outPath != "" {
		png, err := overlay.SnapshotPNG(frame, 0, 0, resp.Overlay)
		if err != nil {
			return err
		}
		if err := os.WriteFile(opts.outPath, png, 0o644); err != nil {
			return fmt.Errorf("write overlay: %w", err)
		}
		fmt.Fprintf(out, "wrote %s\n", opts.outPath)
	}
	return nil
}

func envDefault(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}
