package apierror

import (
	"context"
	"errors"
	"net/http"

	"github.com/Zenieverse/OmniGuide-AI/pkg/core"
	"github.com/Zenieverse/OmniGuide-AI/pkg/session"
	"github.com/Zenieverse/OmniGuide-AI/pkg/store"
)

type Envelope struct {
	Error *core.Error `json:"error"`
}

func FromError(err error, requestID string) (*core.Error, int) {
	if err == nil {
		return nil, http.StatusOK
	}

	// Context timeouts/cancellation.
	if errors.Is(err, context.DeadlineExceeded) {
		return &core.Error{
			Type:      core.ErrGateway,
			Message:   "request timeout",
			Code:      "timeout",
			RequestID: requestID,
		}, http.StatusGatewayTimeout
	}
	if errors.Is(err, context.Canceled) {
		return &core.Error{
			Type:      core.ErrAPI,
			Message:   "request cancelled",
			Code:      "cancelled",
			RequestID: requestID,
		}, http.StatusRequestTimeout
	}

	// Already canonical.
	if coreErr, ok := core.AsError(err); ok {
		out := *coreErr
		out.RequestID = requestID
		return &out, statusFromType(coreErr.Type)
	}

	// Session preconditions.
	switch {
	case errors.Is(err, session.ErrEmptySpeech):
		return invalid(err, "speech", requestID)
	case errors.Is(err, session.ErrImageMissing):
		return invalid(err, "image", requestID)
	case errors.Is(err, session.ErrInvalidSessionID), errors.Is(err, store.ErrInvalidID):
		return invalid(err, "session_id", requestID)
	case errors.Is(err, store.ErrNotFound):
		return &core.Error{
			Type:      core.ErrNotFound,
			Message:   "session not found",
			RequestID: requestID,
		}, http.StatusNotFound
	}

	// Unknown errors: treat as internal API error (do not leak details by default).
	return &core.Error{
		Type:      core.ErrAPI,
		Message:   "internal error",
		RequestID: requestID,
	}, http.StatusInternalServerError
}

func invalid(err error, param, requestID string) (*core.Error, int) {
	return &core.Error{
		Type:      core.ErrInvalidRequest,
		Message:   err.Error(),
		Param:     param,
		RequestID: requestID,
	}, http.StatusBadRequest
}

func statusFromType(t core.ErrorType) int {
	switch t {
	case core.ErrInvalidRequest:
		return http.StatusBadRequest
	case core.ErrNotFound:
		return http.StatusNotFound
	case core.ErrRateLimit:
		return http.StatusTooManyRequests
	case core.ErrOverloaded:
		return http.StatusServiceUnavailable
	case core.ErrGateway, core.ErrMalformed:
		return http.StatusBadGateway
	case core.ErrStorage:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
