package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/Zenieverse/OmniGuide-AI/pkg/core"
	"github.com/Zenieverse/OmniGuide-AI/pkg/core/types"
)

// HistoryStore is the part of the session manager the REST history
// endpoints use.
type HistoryStore interface {
	History(ctx context.Context, sessionID string) ([]types.Turn, error)
	ClearHistory(ctx context.Context, sessionID string) ([]types.Turn, error)
}

// HistoryHandler serves GET and DELETE /v1/sessions/{id}/history. Stored
// frames are left out unless the query has include_images=true.
type HistoryHandler struct {
	Sessions HistoryStore
	Logger   *slog.Logger
}

type historyResponse struct {
	SessionID string       `json:"session_id"`
	History   []types.Turn `json:"history"`
}

func (h HistoryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID := requestIDFromContext(r.Context())
	sessionID := r.PathValue("id")
	includeImages := false
	if raw := r.URL.Query().Get("include_images"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			writeErrorJSON(w, reqID, core.NewInvalidRequestErrorWithParam("include_images must be a boolean", "include_images"))
			return
		}
		includeImages = v
	}

	var (
		history []types.Turn
		err     error
	)
	switch r.Method {
	case http.MethodGet:
		history, err = h.Sessions.History(r.Context(), sessionID)
	case http.MethodDelete:
		history, err = h.Sessions.ClearHistory(r.Context(), sessionID)
	default:
		methodNotAllowed(w, r, "GET, DELETE")
		return
	}
	if err != nil {
		if h.Logger != nil {
			h.Logger.Warn("history request failed", "request_id", reqID, "session_id", sessionID, "method", r.Method, "error", err)
		}
		writeErrorJSON(w, reqID, err)
		return
	}
	if history == nil {
		history = []types.Turn{}
	}
	if !includeImages {
		history = withoutImages(history)
	}
	writeJSON(w, http.StatusOK, historyResponse{SessionID: sessionID, History: history})
}

func withoutImages(history []types.Turn) []types.Turn {
	out := make([]types.Turn, len(history))
	for i, turn := range history {
		turn.Image = ""
		out[i] = turn
	}
	return out
}
