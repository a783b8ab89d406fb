package gemini

import (
	"log/slog"
	"net/http"
	"strings"
)

// Option configures the Provider.
type Option func(*Provider)

// WithBaseURL sets the base URL for API requests.
// Default: https://generativelanguage.googleapis.com/
func WithBaseURL(url string) Option {
	return func(p *Provider) {
		p.clientConfig.HTTPOptions.BaseURL = url
	}
}

// WithHTTPClient sets the HTTP client for API requests.
func WithHTTPClient(client *http.Client) Option {
	return func(p *Provider) {
		p.clientConfig.HTTPClient = client
	}
}

// WithModel overrides DefaultModel. A "gemini/" prefix is accepted.
func WithModel(model string) Option {
	return func(p *Provider) {
		model = strings.TrimSpace(strings.TrimPrefix(model, "gemini/"))
		if model != "" {
			p.model = model
		}
	}
}

// WithGoogleSearch toggles the Google Search grounding tool. Off by default;
// when on, the reply format is requested in the prompt instead of a schema.
func WithGoogleSearch(enabled bool) Option {
	return func(p *Provider) {
		p.googleSearch = enabled
	}
}

// WithLogger sets the provider logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Provider) {
		p.logger = logger
	}
}

func withGenerator(g contentGenerator) Option {
	return func(p *Provider) {
		p.models = g
	}
}
