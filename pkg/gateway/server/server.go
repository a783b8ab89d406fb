package server

import (
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel/trace"

	"github.com/Zenieverse/OmniGuide-AI/pkg/gateway/channel/conn"
	"github.com/Zenieverse/OmniGuide-AI/pkg/gateway/channel/registry"
	"github.com/Zenieverse/OmniGuide-AI/pkg/gateway/config"
	"github.com/Zenieverse/OmniGuide-AI/pkg/gateway/handlers"
	"github.com/Zenieverse/OmniGuide-AI/pkg/gateway/lifecycle"
	"github.com/Zenieverse/OmniGuide-AI/pkg/gateway/mw"
	"github.com/Zenieverse/OmniGuide-AI/pkg/gateway/ratelimit"
	"github.com/Zenieverse/OmniGuide-AI/pkg/metrics"
)

// Dependencies are the collaborators the HTTP surface is built from.
// Sessions is required; everything else may be nil.
type Dependencies struct {
	Sessions       conn.Sessions
	Logger         *slog.Logger
	Metrics        *metrics.Recorder
	TracerProvider trace.TracerProvider
	Lifecycle      *lifecycle.Lifecycle
	Channels       *registry.Registry
}

type Server struct {
	cfg  config.Config
	deps Dependencies
	mux  *http.ServeMux

	limiter *ratelimit.Limiter
}

func New(cfg config.Config, deps Dependencies) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Lifecycle == nil {
		deps.Lifecycle = &lifecycle.Lifecycle{}
	}
	if deps.Channels == nil {
		deps.Channels = registry.New()
	}

	s := &Server{
		cfg:  cfg,
		deps: deps,
		mux:  http.NewServeMux(),
		limiter: ratelimit.New(ratelimit.Config{
			RPS:                   cfg.RateLimitRPS,
			Burst:                 cfg.RateLimitBurst,
			MaxConcurrentChannels: cfg.MaxChannelsPerClient,
		}),
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.Handle("/", handlers.NotFoundHandler{})
	s.mux.Handle("/healthz", handlers.HealthHandler{})
	s.mux.Handle("/api/health", handlers.HealthHandler{})
	s.mux.Handle("/readyz", handlers.ReadyHandler{Config: s.cfg, Lifecycle: s.deps.Lifecycle})

	s.mux.Handle("/v1/live", handlers.LiveHandler{
		Config:    s.cfg,
		Sessions:  s.deps.Sessions,
		Logger:    s.deps.Logger,
		Metrics:   s.deps.Metrics,
		Limiter:   s.limiter,
		Lifecycle: s.deps.Lifecycle,
		Channels:  s.deps.Channels,
	})
	s.mux.Handle("/v1/sessions/{id}/history", handlers.HistoryHandler{
		Sessions: s.deps.Sessions,
		Logger:   s.deps.Logger,
	})
	s.mux.Handle("/v1/overlay/render", handlers.RenderHandler{
		MaxBodyBytes:  s.cfg.MaxMessageBytes,
		MaxImageBytes: s.cfg.MaxImageBytes,
	})

	if s.cfg.MetricsEnabled && s.deps.Metrics != nil {
		s.mux.Handle("/metrics", s.deps.Metrics.Handler())
	}
}

// Channels returns the registry of open interaction channels.
func (s *Server) Channels() *registry.Registry { return s.deps.Channels }

// Lifecycle returns the shared draining flag and readiness checks.
func (s *Server) Lifecycle() *lifecycle.Lifecycle { return s.deps.Lifecycle }

func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = mw.RateLimit(s.cfg, s.limiter, h)
	h = mw.APIVersion(h)
	h = mw.CORS(s.cfg, h)
	h = mw.Recover(s.deps.Logger, h)
	h = mw.AccessLog(s.deps.Logger, h)
	h = mw.Trace(s.deps.TracerProvider, h)
	h = mw.RequestID(h)
	return h
}
