package omniguide

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/Zenieverse/OmniGuide-AI/pkg/core"
)

var (
	// ErrNoFrame is returned by Analyze when no frame was captured. Nothing
	// is sent to the server.
	ErrNoFrame = errors.New("omniguide: no frame captured")
	// ErrClosed is returned for calls on a closed client.
	ErrClosed = errors.New("omniguide: client is closed")
)

// ServerError is an error frame sent by the server in reply to a request.
type ServerError struct {
	RequestID  string
	Code       string
	Message    string
	Param      string
	RetryAfter *int
	// Fallback is set for malformed gateway results and carries text a UI
	// can show or speak instead.
	Fallback *core.Fallback
}

func (e *ServerError) Error() string {
	if e == nil {
		return ""
	}
	if e.Param != "" {
		return fmt.Sprintf("omniguide: %s: %s (%s)", e.Code, e.Message, e.Param)
	}
	return fmt.Sprintf("omniguide: %s: %s", e.Code, e.Message)
}

// TransportError wraps dial and socket failures while talking to the server.
// Use errors.As to tell them apart from *ServerError.
type TransportError struct {
	Op  string
	URL string
	Err error
}

func (e *TransportError) Error() string {
	switch {
	case e == nil:
		return ""
	case e.Op != "" && e.URL != "":
		return fmt.Sprintf("transport error during %s %s: %v", e.Op, redactURLUserInfo(e.URL), e.Err)
	case e.Op != "":
		return fmt.Sprintf("transport error during %s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("transport error: %v", e.Err)
	}
}

func (e *TransportError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func redactURLUserInfo(raw string) string {
	if raw == "" {
		return raw
	}
	parsed, err := url.Parse(raw)
	if err != nil || parsed == nil {
		return raw
	}
	parsed.User = nil
	return parsed.String()
}
