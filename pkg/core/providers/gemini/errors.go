package gemini

import (
	"context"
	"errors"
	"net/http"

	"google.golang.org/genai"

	"github.com/Zenieverse/OmniGuide-AI/pkg/core"
)

// mapError converts a genai failure into a gateway error. The upstream status
// is kept in Code so callers can distinguish throttling from outages.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return core.NewGatewayError(err)
	}

	gwErr := core.NewGatewayError(err)
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		gwErr.Code = apiErr.Status
		if apiErr.Code == http.StatusTooManyRequests {
			retry := 1
			gwErr.RetryAfter = &retry
		}
	}
	return gwErr
}
