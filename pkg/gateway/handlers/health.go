package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/Zenieverse/OmniGuide-AI/pkg/gateway/config"
	"github.com/Zenieverse/OmniGuide-AI/pkg/gateway/lifecycle"
)

// HealthHandler answers liveness probes. It never touches dependencies.
type HealthHandler struct{}

func (h HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type ReadyHandler struct {
	Config    config.Config
	Lifecycle *lifecycle.Lifecycle
	// CheckTimeout bounds the dependency checks. Defaults to 2s.
	CheckTimeout time.Duration
}

func (h ReadyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	type readyResp struct {
		OK       bool     `json:"ok"`
		Store    string   `json:"store"`
		Draining bool     `json:"draining"`
		Issues   []string `json:"issues,omitempty"`
	}

	issues := h.Config.ReadinessIssues()
	draining := h.Lifecycle != nil && h.Lifecycle.IsDraining()
	if draining {
		issues = append(issues, "draining")
	}

	timeout := h.CheckTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()
	for _, res := range h.Lifecycle.Check(ctx) {
		if res.Err != nil {
			issues = append(issues, res.Name+": unavailable")
		}
	}

	ok := len(issues) == 0
	status := http.StatusOK
	if !ok {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, readyResp{
		OK:       ok,
		Store:    string(h.Config.Store),
		Draining: draining,
		Issues:   issues,
	})
}
