package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Zenieverse/OmniGuide-AI/pkg/core"
	"github.com/Zenieverse/OmniGuide-AI/pkg/core/types"
	"github.com/Zenieverse/OmniGuide-AI/pkg/gateway/config"
	"github.com/Zenieverse/OmniGuide-AI/pkg/metrics"
	"github.com/Zenieverse/OmniGuide-AI/pkg/session"
	"github.com/Zenieverse/OmniGuide-AI/pkg/store"
)

func testConfig() config.Config {
	return config.Config{
		Store:              config.StoreMemory,
		GeminiAPIKey:       "test-key",
		CORSAllowedOrigins: map[string]struct{}{},
		MaxMessageBytes:    1 << 20,
		MetricsEnabled:     true,
	}
}

func newTestServer(t *testing.T, cfg config.Config) *Server {
	t.Helper()
	rec := metrics.New()
	mgr, err := session.New(session.Options{
		Store:   store.NewMemoryStore(),
		Metrics: rec,
		Analyzer: core.AnalyzerFunc(func(ctx context.Context, req types.AnalysisRequest) (*types.AnalysisResult, error) {
			return &types.AnalysisResult{Analysis: "A chair.", Speech: "I see a chair."}, nil
		}),
	})
	if err != nil {
		t.Fatalf("session.New() err=%v", err)
	}
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	return New(cfg, Dependencies{Sessions: mgr, Logger: logger, Metrics: rec})
}

func TestServer_UnknownRoute_ReturnsJSON404(t *testing.T) {
	s := newTestServer(t, testConfig())

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/does-not-exist", nil)
	s.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); !strings.Contains(ct, "application/json") {
		t.Fatalf("content-type=%q", ct)
	}
	if !strings.Contains(rr.Body.String(), `"type":"not_found_error"`) {
		t.Fatalf("unexpected body: %q", rr.Body.String())
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Fatalf("missing X-Request-ID")
	}
}

func TestServer_HealthRoutes(t *testing.T) {
	s := newTestServer(t, testConfig())
	for _, path := range []string{"/healthz", "/api/health", "/readyz"} {
		rr := httptest.NewRecorder()
		s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("%s status=%d body=%q", path, rr.Code, rr.Body.String())
		}
	}
}

func TestServer_ReadyzDrainingReturns503(t *testing.T) {
	s := newTestServer(t, testConfig())
	s.Lifecycle().SetDraining(true)

	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d", rr.Code)
	}
}

func TestServer_HistoryRoute(t *testing.T) {
	s := newTestServer(t, testConfig())

	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/sessions/abc/history", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), `"history":[]`) {
		t.Fatalf("body=%q", rr.Body.String())
	}
}

func TestServer_MetricsRouteToggle(t *testing.T) {
	s := newTestServer(t, testConfig())
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("metrics status=%d", rr.Code)
	}

	cfg := testConfig()
	cfg.MetricsEnabled = false
	s = newTestServer(t, cfg)
	rr = httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("disabled metrics status=%d", rr.Code)
	}
}

func TestServer_LiveRouteThroughMiddleware(t *testing.T) {
	s := newTestServer(t, testConfig())
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/v1/live", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(map[string]any{
		"type":       "analyze",
		"session_id": "abc123",
		"image":      types.EncodeDataURI("image/jpeg", []byte("frame")),
		"speech":     "What do you see?",
		"mode":       "GENERAL",
	}); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg map[string]any
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	if msg["type"] != "response" {
		t.Fatalf("msg=%v", msg)
	}
	if s.Channels().Len() != 1 {
		t.Fatalf("channels=%d", s.Channels().Len())
	}

	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rr.Body.String(), "omniguide_analyze_total") {
		t.Fatalf("analyze metric missing")
	}
}
