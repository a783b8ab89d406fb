package handlers

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Zenieverse/OmniGuide-AI/pkg/core"
	"github.com/Zenieverse/OmniGuide-AI/pkg/gateway/channel/conn"
	"github.com/Zenieverse/OmniGuide-AI/pkg/gateway/channel/protocol"
	"github.com/Zenieverse/OmniGuide-AI/pkg/gateway/channel/registry"
	"github.com/Zenieverse/OmniGuide-AI/pkg/gateway/config"
	"github.com/Zenieverse/OmniGuide-AI/pkg/gateway/lifecycle"
	"github.com/Zenieverse/OmniGuide-AI/pkg/gateway/principal"
	"github.com/Zenieverse/OmniGuide-AI/pkg/gateway/ratelimit"
	"github.com/Zenieverse/OmniGuide-AI/pkg/metrics"
)

// LiveHandler upgrades /v1/live to an interaction channel.
type LiveHandler struct {
	Config    config.Config
	Sessions  conn.Sessions
	Logger    *slog.Logger
	Metrics   *metrics.Recorder
	Limiter   *ratelimit.Limiter
	Lifecycle *lifecycle.Lifecycle
	Channels  *registry.Registry
}

func (h LiveHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID := requestIDFromContext(r.Context())
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, "GET")
		return
	}
	if h.Lifecycle.IsDraining() {
		writeCoreErrorJSON(w, reqID, &core.Error{Type: core.ErrOverloaded, Message: "gateway is draining", Code: "draining"}, http.StatusServiceUnavailable)
		return
	}
	if !h.originAllowed(r) {
		writeCoreErrorJSON(w, reqID, &core.Error{Type: core.ErrInvalidRequest, Message: "origin is not allowed", Param: "Origin", Code: "forbidden_origin"}, http.StatusForbidden)
		return
	}

	client := principal.Resolve(r, h.Config.TrustProxyHeaders)
	dec := h.Limiter.AcquireChannel(client.Key)
	if !dec.Allowed {
		w.Header().Set("Retry-After", "1")
		writeCoreErrorJSON(w, reqID, core.NewRateLimitError("too many open channels", dec.RetryAfter), http.StatusTooManyRequests)
		return
	}
	defer dec.Permit.Release()

	handshakeTimeout := h.Config.WSHandshakeTimeout
	if handshakeTimeout <= 0 {
		handshakeTimeout = 5 * time.Second
	}
	upgrader := websocket.Upgrader{
		HandshakeTimeout: handshakeTimeout,
		// Origin was checked above against the allowlist.
		CheckOrigin: func(*http.Request) bool { return true },
	}
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer ws.Close()

	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}
	c, err := conn.New(conn.Dependencies{
		Conn:      ws,
		Sessions:  h.Sessions,
		Logger:    logger,
		Metrics:   h.Metrics,
		RequestID: reqID,
		Config: conn.Config{
			MaxMessageBytes: h.Config.MaxMessageBytes,
			PingInterval:    h.Config.WSPingInterval,
			WriteTimeout:    h.Config.WSWriteTimeout,
			ReadTimeout:     h.Config.WSReadTimeout,
			QueueSize:       h.Config.ChannelQueueSize,
			RPS:             h.Config.ChannelRPS,
			Burst:           h.Config.ChannelBurst,
		},
	})
	if err != nil {
		logger.Error("channel setup failed", "request_id", reqID, "error", err)
		h.writeWSError(ws, protocol.CodeInternal, "internal error")
		return
	}

	remove := h.Channels.Add(c)
	defer remove()

	logger.Info("channel opened", "request_id", reqID, "conn_id", c.ID())
	start := time.Now()
	_ = c.Run()
	logger.Info("channel closed", "request_id", reqID, "conn_id", c.ID(), "duration", time.Since(start))
}

func (h LiveHandler) originAllowed(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	if u, err := url.Parse(origin); err == nil && strings.EqualFold(u.Host, r.Host) {
		return true
	}
	_, ok := h.Config.CORSAllowedOrigins[origin]
	return ok
}

func (h LiveHandler) writeWSError(ws *websocket.Conn, code, message string) {
	_ = ws.WriteJSON(protocol.ServerError{Type: protocol.TypeError, Code: code, Message: message})
	_ = ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseInternalServerErr, message), time.Now().Add(2*time.Second))
}
