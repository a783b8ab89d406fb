package core

import (
	"context"

	"github.com/Zenieverse/OmniGuide-AI/pkg/core/types"
)

// Analyzer is the interface every analysis gateway must implement.
type Analyzer interface {
	// Name returns the gateway identifier (e.g., "gemini").
	Name() string

	// Analyze sends one frame, utterance, mode, and history window and
	// returns the structured result. Unparseable replies are reported as
	// an *Error of type ErrMalformed.
	Analyze(ctx context.Context, req types.AnalysisRequest) (*types.AnalysisResult, error)
}

// AnalyzerFunc adapts a function to the Analyzer interface.
type AnalyzerFunc func(ctx context.Context, req types.AnalysisRequest) (*types.AnalysisResult, error)

// Name implements Analyzer.
func (f AnalyzerFunc) Name() string { return "func" }

// Analyze implements Analyzer.
func (f AnalyzerFunc) Analyze(ctx context.Context, req types.AnalysisRequest) (*types.AnalysisResult, error) {
	return f(ctx, req)
}
