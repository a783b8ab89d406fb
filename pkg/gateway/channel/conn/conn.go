package conn

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/Zenieverse/OmniGuide-AI/pkg/core/types"
	"github.com/Zenieverse/OmniGuide-AI/pkg/gateway/channel/protocol"
	"github.com/Zenieverse/OmniGuide-AI/pkg/metrics"
	"github.com/Zenieverse/OmniGuide-AI/pkg/session"
)

const outboundPriorityQueueSize = 8

var errBackpressure = errors.New("channel outbound backpressure")

// Sessions is the slice of the session manager a channel drives.
type Sessions interface {
	Analyze(ctx context.Context, sessionID, image, speech string, mode types.Mode) (*session.Exchange, error)
	History(ctx context.Context, sessionID string) ([]types.Turn, error)
	ClearHistory(ctx context.Context, sessionID string) ([]types.Turn, error)
}

type Config struct {
	MaxMessageBytes int64
	PingInterval    time.Duration
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	// QueueSize bounds commands accepted but not yet handled.
	QueueSize int
	// RPS and Burst limit commands per connection. RPS 0 disables.
	RPS   float64
	Burst int
}

type Dependencies struct {
	Conn      *websocket.Conn
	Sessions  Sessions
	Logger    *slog.Logger
	Metrics   *metrics.Recorder
	ID        string
	RequestID string
	Config    Config
}

// Conn serves one client over one websocket. Commands are handled strictly
// in arrival order by a single worker; replies leave through a single writer.
type Conn struct {
	ws        *websocket.Conn
	sessions  Sessions
	logger    *slog.Logger
	metrics   *metrics.Recorder
	id        string
	requestID string
	cfg       Config
	limiter   *rate.Limiter

	ctx    context.Context
	cancel context.CancelFunc

	jobs             chan any
	outboundPriority chan []byte
	outboundNormal   chan []byte
}

func New(deps Dependencies) (*Conn, error) {
	if deps.Conn == nil {
		return nil, fmt.Errorf("connection is required")
	}
	if deps.Sessions == nil {
		return nil, fmt.Errorf("sessions are required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.ID == "" {
		deps.ID = "c_" + uuid.NewString()
	}
	if deps.Config.QueueSize <= 0 {
		deps.Config.QueueSize = 16
	}

	var limiter *rate.Limiter
	if deps.Config.RPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(deps.Config.RPS), max(1, deps.Config.Burst))
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Conn{
		ws:               deps.Conn,
		sessions:         deps.Sessions,
		logger:           deps.Logger.With("conn_id", deps.ID),
		metrics:          deps.Metrics,
		id:               deps.ID,
		requestID:        deps.RequestID,
		cfg:              deps.Config,
		limiter:          limiter,
		ctx:              ctx,
		cancel:           cancel,
		jobs:             make(chan any, deps.Config.QueueSize),
		outboundPriority: make(chan []byte, outboundPriorityQueueSize),
		// Every accepted job yields one reply; the extra room absorbs
		// rejections written by the reader.
		outboundNormal: make(chan []byte, deps.Config.QueueSize*2+outboundPriorityQueueSize),
	}, nil
}

func (c *Conn) ID() string { return c.id }

// Run blocks until the client goes away or Cancel is called, then until
// every accepted command has been handled. Commands still queued when the
// socket closes run to completion and persist; their replies are dropped.
func (c *Conn) Run() error {
	defer c.cancel()

	c.metrics.ConnOpened()
	defer c.metrics.ConnClosed()

	if c.cfg.MaxMessageBytes > 0 {
		c.ws.SetReadLimit(c.cfg.MaxMessageBytes)
	}
	if c.cfg.ReadTimeout > 0 {
		_ = c.ws.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
		c.ws.SetPongHandler(func(string) error {
			return c.ws.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
		})
	} else {
		_ = c.ws.SetReadDeadline(time.Time{})
	}

	var g errgroup.Group
	g.Go(func() error {
		defer close(c.jobs)
		defer c.cancel()
		return c.readLoop()
	})
	g.Go(func() error {
		w := outboundWriter{
			ws:           c.ws,
			ctx:          c.ctx,
			pingInterval: c.cfg.PingInterval,
			writeTimeout: c.cfg.WriteTimeout,
			priority:     c.outboundPriority,
			normal:       c.outboundNormal,
		}
		err := w.Run()
		if err != nil {
			c.cancel()
			// Unblock the reader.
			_ = c.ws.Close()
		}
		return err
	})
	g.Go(c.workLoop)

	err := g.Wait()
	if err != nil {
		c.logger.Warn("channel ended with error", "request_id", c.requestID, "error", err)
	}
	return err
}

// Cancel stops the connection. Safe to call more than once.
func (c *Conn) Cancel() {
	c.cancel()
}

// SendWarning queues an unsolicited notice ahead of pending replies.
func (c *Conn) SendWarning(code, message string) error {
	return c.sendPriority(protocol.ServerWarning{Type: protocol.TypeWarning, Code: code, Message: message})
}

func (c *Conn) readLoop() error {
	for {
		messageType, data, err := c.ws.ReadMessage()
		if err != nil {
			var closeErr *websocket.CloseError
			if c.ctx.Err() == nil && !errors.As(err, &closeErr) {
				c.logger.Debug("channel read ended", "error", err)
			}
			return nil
		}
		if c.cfg.ReadTimeout > 0 {
			_ = c.ws.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
		}

		if messageType != websocket.TextMessage {
			c.metrics.ObserveMessage("invalid")
			c.sendError("", &protocol.DecodeError{Code: protocol.CodeBadRequest, Message: "binary frames are not supported"})
			continue
		}

		msg, err := protocol.DecodeClientMessage(data)
		if err != nil {
			c.metrics.ObserveMessage("invalid")
			var decodeErr *protocol.DecodeError
			reqID := ""
			if errors.As(err, &decodeErr) {
				reqID = decodeErr.RequestID
			}
			c.sendError(reqID, err)
			continue
		}
		c.metrics.ObserveMessage(messageTypeOf(msg))
		reqID := protocol.RequestIDOf(msg)

		if c.limiter != nil && !c.limiter.Allow() {
			retryAfter := 1
			c.reject(protocol.ServerError{
				Type:       protocol.TypeError,
				RequestID:  reqID,
				Code:       protocol.CodeRateLimited,
				Message:    "too many requests on this connection",
				RetryAfter: &retryAfter,
			})
			continue
		}

		select {
		case c.jobs <- msg:
		default:
			c.reject(protocol.ServerError{
				Type:      protocol.TypeError,
				RequestID: reqID,
				Code:      protocol.CodeBusy,
				Message:   "too many pending requests",
			})
		}
	}
}

// workLoop handles commands until the reader closes jobs. It does not stop
// on cancel: an issued analyze cannot be retracted.
func (c *Conn) workLoop() error {
	for msg := range c.jobs {
		c.handle(msg)
	}
	return nil
}

// handle runs one command. A panic is reported to this client only.
func (c *Conn) handle(msg any) {
	reqID := protocol.RequestIDOf(msg)
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("channel handler panic", "request_id", reqID, "panic", r)
			c.send(protocol.ServerError{
				Type:      protocol.TypeError,
				RequestID: reqID,
				Code:      protocol.CodeInternal,
				Message:   "internal error",
			})
		}
	}()

	ctx := context.WithoutCancel(c.ctx)
	switch m := msg.(type) {
	case protocol.ClientAnalyze:
		ex, err := c.sessions.Analyze(ctx, m.SessionID, m.Image, m.Speech, m.Mode)
		if err != nil {
			c.logger.Info("analyze failed", "session_id", m.SessionID, "request_id", reqID, "error", err)
			c.sendError(reqID, err)
			return
		}
		c.send(protocol.NewResponse(reqID, m.SessionID, ex, m.IncludeImages))
	case protocol.ClientGetHistory:
		history, err := c.sessions.History(ctx, m.SessionID)
		if err != nil {
			c.sendError(reqID, err)
			return
		}
		c.send(protocol.NewHistory(reqID, m.SessionID, history, m.IncludeImages))
	case protocol.ClientClearHistory:
		history, err := c.sessions.ClearHistory(ctx, m.SessionID)
		if err != nil {
			c.sendError(reqID, err)
			return
		}
		c.send(protocol.NewHistory(reqID, m.SessionID, history, false))
	default:
		c.sendError(reqID, &protocol.DecodeError{Code: protocol.CodeBadRequest, Message: "unsupported message type", Param: "type"})
	}
}

func (c *Conn) sendError(requestID string, err error) {
	c.send(protocol.NewError(requestID, err))
}

// send queues a reply, waiting for room unless the connection is gone.
func (c *Conn) send(v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		c.logger.Error("encode reply", "error", err)
		return
	}
	select {
	case c.outboundNormal <- payload:
	case <-c.ctx.Done():
	}
}

// reject answers a command the reader refused. It prefers the priority lane
// and waits on the normal lane when that is full, so every command gets a reply.
func (c *Conn) reject(v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		c.logger.Error("encode reply", "error", err)
		return
	}
	select {
	case c.outboundPriority <- payload:
		return
	default:
	}
	select {
	case c.outboundNormal <- payload:
	case <-c.ctx.Done():
	}
}

func (c *Conn) sendPriority(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	select {
	case c.outboundPriority <- payload:
		return nil
	default:
		return errBackpressure
	}
}

func messageTypeOf(msg any) string {
	switch msg.(type) {
	case protocol.ClientAnalyze:
		return protocol.TypeAnalyze
	case protocol.ClientGetHistory:
		return protocol.TypeGetHistory
	case protocol.ClientClearHistory:
		return protocol.TypeClearHistory
	default:
		return "unknown"
	}
}
