package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func newRootCmd(stdout, stderr io.Writer, deps serveDeps) *cobra.Command {
	root := &cobra.Command{
		Use:           "omniguide",
		Short:         "OmniGuide real-time visual assistant gateway",
		SilenceUsage:  true,
		SilenceErrors: true,
		Long: `OmniGuide pairs a live camera frame with a spoken question, asks a
multimodal model about it and returns an answer plus overlay instructions
that point at things in the frame.`,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.AddCommand(
		newServeCmd(deps),
		newAskCmd(),
		newRenderCmd(),
	)
	return root
}

// loadDotEnv reads .env when present. Variables already set win.
func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func runMain(ctx context.Context, args []string, stdout, stderr io.Writer, deps serveDeps) int {
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	if err := loadDotEnv(".env"); err != nil {
		fmt.Fprintf(stderr, "omniguide: %v\n", err)
		return 1
	}

	root := newRootCmd(stdout, stderr, deps)
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(stderr, "omniguide: %v\n", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(runMain(context.Background(), os.Args[1:], os.Stdout, os.Stderr, defaultServeDeps()))
}
