// Package gemini implements the analysis gateway on top of the Google Gemini
// API. It turns a frame, an utterance, and a history window into a single
// structured generateContent call and decodes the JSON reply.
package gemini

import (
	"context"
	"fmt"
	"log/slog"

	"google.golang.org/genai"

	"github.com/Zenieverse/OmniGuide-AI/pkg/core"
	"github.com/Zenieverse/OmniGuide-AI/pkg/core/types"
)

const (
	// DefaultModel is the multimodal model used when none is configured.
	DefaultModel = "gemini-2.5-flash"
)

// contentGenerator is the slice of *genai.Models the provider uses.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Provider implements core.Analyzer against Gemini.
type Provider struct {
	apiKey       string
	model        string
	googleSearch bool
	clientConfig genai.ClientConfig
	models       contentGenerator
	logger       *slog.Logger
}

var _ core.Analyzer = (*Provider)(nil)

// New creates a new Gemini provider.
func New(ctx context.Context, apiKey string, opts ...Option) (*Provider, error) {
	p := &Provider{
		apiKey:       apiKey,
		model:        DefaultModel,
		clientConfig: genai.ClientConfig{
			APIKey:  apiKey,
			Backend: genai.BackendGeminiAPI,
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	if p.models != nil {
		return p, nil
	}
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: api key is required")
	}
	client, err := genai.NewClient(ctx, &p.clientConfig)
	if err != nil {
		return nil, fmt.Errorf("gemini: new client: %w", err)
	}
	p.models = client.Models
	return p, nil
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return "gemini"
}

// Model returns the configured model name.
func (p *Provider) Model() string {
	return p.model
}

// Analyze sends one analysis request to Gemini.
func (p *Provider) Analyze(ctx context.Context, req types.AnalysisRequest) (*types.AnalysisResult, error) {
	contents, err := buildContents(req)
	if err != nil {
		return nil, err
	}
	resp, err := p.models.GenerateContent(ctx, p.model, contents, p.buildConfig(req.Mode))
	if err != nil {
		return nil, mapError(err)
	}

	result, err := parseResult(resp)
	if err != nil {
		p.logger.Warn("gemini reply could not be parsed",
			"model", p.model,
			"mode", string(req.Mode),
			"error", err,
		)
		return nil, core.NewMalformedResultError(err)
	}
	return result, nil
}
