package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/Zenieverse/OmniGuide-AI/pkg/core"
	"github.com/Zenieverse/OmniGuide-AI/pkg/core/types"
	"github.com/Zenieverse/OmniGuide-AI/pkg/session"
	"github.com/Zenieverse/OmniGuide-AI/pkg/store"
)

// Message kinds carried in the "type" discriminator.
const (
	TypeAnalyze      = "analyze"
	TypeGetHistory   = "get_history"
	TypeClearHistory = "clear_history"

	TypeResponse = "response"
	TypeHistory  = "history"
	TypeError    = "error"
	TypeWarning  = "warning"
)

// Error codes sent in ServerError.Code.
const (
	CodeBadRequest      = "bad_request"
	CodeUnsupported     = "unsupported"
	CodeEmptySpeech     = "empty_speech"
	CodeImageMissing    = "image_missing"
	CodeInvalidImage    = "invalid_image"
	CodeInvalidRequest  = "invalid_request"
	CodeGateway         = "gateway_error"
	CodeMalformedResult = "malformed_result"
	CodeStorage         = "storage_error"
	CodeTimeout         = "timeout"
	CodeBusy            = "busy"
	CodeRateLimited     = "rate_limited"
	CodeInternal        = "internal"
)

const maxSessionIDLen = 256

type DecodeError struct {
	Code      string
	Message   string
	Param     string
	RequestID string
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	if strings.TrimSpace(e.Param) == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Param)
}

func badRequest(message, param string) *DecodeError {
	return &DecodeError{Code: CodeBadRequest, Message: message, Param: param}
}

func unsupported(message, param string) *DecodeError {
	return &DecodeError{Code: CodeUnsupported, Message: message, Param: param}
}

// ClientAnalyze asks the server to analyze one captured frame.
type ClientAnalyze struct {
	Type      string     `json:"type"`
	RequestID string     `json:"request_id,omitempty"`
	SessionID string     `json:"session_id"`
	Image     string     `json:"image"`
	Speech    string     `json:"speech"`
	Mode      types.Mode `json:"mode"`

	// IncludeImages asks for the stored frames in the returned history.
	IncludeImages bool `json:"include_images,omitempty"`
}

type ClientGetHistory struct {
	Type          string `json:"type"`
	RequestID     string `json:"request_id,omitempty"`
	SessionID     string `json:"session_id"`
	IncludeImages bool   `json:"include_images,omitempty"`
}

type ClientClearHistory struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id,omitempty"`
	SessionID string `json:"session_id"`
}

// envelope carries every field any client message may use. sessionId is
// accepted as an alias for browser clients.
type envelope struct {
	Type          string          `json:"type"`
	RequestID     string          `json:"request_id"`
	SessionID     string          `json:"session_id"`
	SessionIDJS   string          `json:"sessionId"`
	Image         json.RawMessage `json:"image"`
	Speech        json.RawMessage `json:"speech"`
	Mode          json.RawMessage `json:"mode"`
	IncludeImages json.RawMessage `json:"include_images"`
}

// DecodeClientMessage validates one text frame and returns ClientAnalyze,
// ClientGetHistory or ClientClearHistory. Malformed frames produce a
// *DecodeError and never reach the session manager.
func DecodeClientMessage(data []byte) (any, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, badRequest("invalid json frame", "")
	}
	typ := strings.TrimSpace(env.Type)
	if typ == "" {
		return nil, badRequest("missing type", "type")
	}
	reqID := strings.TrimSpace(env.RequestID)
	withID := func(err *DecodeError) error {
		err.RequestID = reqID
		return err
	}

	sessionID := strings.TrimSpace(env.SessionID)
	if sessionID == "" {
		sessionID = strings.TrimSpace(env.SessionIDJS)
	}

	switch typ {
	case TypeAnalyze, TypeGetHistory, TypeClearHistory:
	default:
		return nil, withID(badRequest("unsupported message type", "type"))
	}
	if sessionID == "" {
		return nil, withID(badRequest(typ+".session_id is required", "session_id"))
	}
	if len(sessionID) > maxSessionIDLen {
		return nil, withID(badRequest(typ+".session_id is too long", "session_id"))
	}

	includeImages, err := optionalBool(env.IncludeImages)
	if err != nil {
		return nil, withID(badRequest(typ+".include_images must be a boolean", "include_images"))
	}

	switch typ {
	case TypeGetHistory:
		return ClientGetHistory{Type: typ, RequestID: reqID, SessionID: sessionID, IncludeImages: includeImages}, nil
	case TypeClearHistory:
		return ClientClearHistory{Type: typ, RequestID: reqID, SessionID: sessionID}, nil
	}

	image, err := optionalString(env.Image)
	if err != nil {
		return nil, withID(badRequest("analyze.image must be a string", "image"))
	}
	speech, err := optionalString(env.Speech)
	if err != nil {
		return nil, withID(badRequest("analyze.speech must be a string", "speech"))
	}
	rawMode, err := optionalString(env.Mode)
	if err != nil {
		return nil, withID(badRequest("analyze.mode must be a string", "mode"))
	}
	mode := types.ModeGeneral
	if strings.TrimSpace(rawMode) != "" {
		mode, err = types.ParseMode(rawMode)
		if err != nil {
			return nil, withID(unsupported("unsupported mode", "mode"))
		}
	}
	return ClientAnalyze{
		Type:      typ,
		RequestID: reqID,
		SessionID: sessionID,
		Image:     image,
		Speech:    speech,
		Mode:      mode,

		IncludeImages: includeImages,
	}, nil
}

func optionalString(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", err
	}
	return s, nil
}

func optionalBool(raw json.RawMessage) (bool, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return false, nil
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err != nil {
		return false, err
	}
	return b, nil
}

// RequestIDOf returns the correlation id of a decoded client message.
func RequestIDOf(msg any) string {
	switch m := msg.(type) {
	case ClientAnalyze:
		return m.RequestID
	case ClientGetHistory:
		return m.RequestID
	case ClientClearHistory:
		return m.RequestID
	default:
		return ""
	}
}

// ServerResponse is the successful reply to analyze.
type ServerResponse struct {
	Type      string                     `json:"type"`
	RequestID string                     `json:"request_id,omitempty"`
	SessionID string                     `json:"session_id"`
	Analysis  string                     `json:"analysis"`
	Speech    string                     `json:"speech"`
	Overlay   []types.OverlayInstruction `json:"overlay"`
	History   []types.Turn               `json:"history"`
}

// ServerHistory is the reply to get_history and clear_history.
type ServerHistory struct {
	Type      string       `json:"type"`
	RequestID string       `json:"request_id,omitempty"`
	SessionID string       `json:"session_id"`
	History   []types.Turn `json:"history"`
}

type ServerError struct {
	Type       string         `json:"type"`
	RequestID  string         `json:"request_id,omitempty"`
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	Param      string         `json:"param,omitempty"`
	RetryAfter *int           `json:"retry_after,omitempty"`
	Fallback   *core.Fallback `json:"fallback,omitempty"`
}

// ServerWarning is an unsolicited notice, e.g. the server is draining.
type ServerWarning struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewResponse builds the analyze reply. History turns lose their stored
// frames unless includeImages is set.
func NewResponse(requestID, sessionID string, ex *session.Exchange, includeImages bool) ServerResponse {
	out := ServerResponse{
		Type:      TypeResponse,
		RequestID: requestID,
		SessionID: sessionID,
		Overlay:   []types.OverlayInstruction{},
		History:   []types.Turn{},
	}
	if ex == nil {
		return out
	}
	out.Analysis = ex.Analysis
	out.Speech = ex.Speech
	if ex.Overlay != nil {
		out.Overlay = ex.Overlay
	}
	if ex.History != nil {
		out.History = wireHistory(ex.History, includeImages)
	}
	return out
}

func NewHistory(requestID, sessionID string, history []types.Turn, includeImages bool) ServerHistory {
	if history == nil {
		history = []types.Turn{}
	}
	return ServerHistory{Type: TypeHistory, RequestID: requestID, SessionID: sessionID, History: wireHistory(history, includeImages)}
}

// wireHistory copies history without image data URIs unless includeImages
// is set. The caller's slice is never modified.
func wireHistory(history []types.Turn, includeImages bool) []types.Turn {
	if includeImages {
		return history
	}
	out := make([]types.Turn, len(history))
	for i, turn := range history {
		turn.Image = ""
		out[i] = turn
	}
	return out
}

// NewError maps any handling failure to a wire error. Gateway and storage
// failures keep their fixed messages so upstream details never leak.
func NewError(requestID string, err error) ServerError {
	out := ServerError{Type: TypeError, RequestID: requestID, Code: CodeInternal, Message: "internal error"}

	var decodeErr *DecodeError
	if errors.As(err, &decodeErr) && decodeErr != nil {
		out.Code = decodeErr.Code
		out.Message = decodeErr.Message
		out.Param = decodeErr.Param
		return out
	}

	switch {
	case errors.Is(err, session.ErrEmptySpeech):
		out.Code, out.Message, out.Param = CodeEmptySpeech, err.Error(), "speech"
		return out
	case errors.Is(err, session.ErrImageMissing):
		out.Code, out.Message, out.Param = CodeImageMissing, err.Error(), "image"
		return out
	case errors.Is(err, session.ErrInvalidSessionID), errors.Is(err, store.ErrInvalidID):
		out.Code, out.Message, out.Param = CodeBadRequest, err.Error(), "session_id"
		return out
	}

	coreErr, ok := core.AsError(err)
	if !ok {
		return out
	}
	out.Message = coreErr.Message
	out.Param = coreErr.Param
	out.RetryAfter = coreErr.RetryAfter
	switch coreErr.Type {
	case core.ErrInvalidRequest:
		out.Code = CodeInvalidRequest
		if coreErr.Param == "image" {
			out.Code = CodeInvalidImage
		}
	case core.ErrGateway:
		out.Code = CodeGateway
		if coreErr.Code == CodeTimeout {
			out.Code = CodeTimeout
		}
	case core.ErrMalformed:
		out.Code = CodeMalformedResult
		out.Fallback = coreErr.Fallback
	case core.ErrStorage:
		out.Code = CodeStorage
	case core.ErrRateLimit:
		out.Code = CodeRateLimited
	case core.ErrOverloaded:
		out.Code = CodeBusy
	default:
		out.Code = CodeInternal
		out.Message = "internal error"
	}
	return out
}
