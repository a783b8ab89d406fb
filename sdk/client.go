// Package omniguide is the Go client for the OmniGuide interaction channel.
//
// A Client holds one websocket to /v1/live. Requests carry generated ids and
// replies are matched back to the waiting call, so a Client is safe for
// concurrent use; the server still handles one connection's requests in
// arrival order.
package omniguide

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Zenieverse/OmniGuide-AI/pkg/core/types"
	"github.com/Zenieverse/OmniGuide-AI/pkg/gateway/channel/protocol"
	"github.com/Zenieverse/OmniGuide-AI/pkg/overlay"
)

// Response is the result of one analyze exchange.
type Response struct {
	RequestID string
	SessionID string
	// Analysis is the durable answer recorded in history.
	Analysis string
	// Speech is meant for synthesis only.
	Speech  string
	Overlay []types.OverlayInstruction
	History []types.Turn
}

type reply struct {
	response *protocol.ServerResponse
	history  *protocol.ServerHistory
	err      *ServerError
}

type Client struct {
	conn *websocket.Conn
	opts options

	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[string]chan reply

	historyMu sync.RWMutex
	history   map[string][]types.Turn

	followMu sync.RWMutex
	follow   []*overlay.Loop

	done      chan struct{}
	closeOnce sync.Once
	closed    atomic.Bool

	errMu sync.Mutex
	err   error
}

// Dial opens the interaction channel. rawURL may be the server base
// (http://host:3000) or the full websocket URL.
func Dial(ctx context.Context, rawURL string, opts ...Option) (*Client, error) {
	o := options{dialer: websocket.DefaultDialer, header: make(http.Header), connectTimeout: defaultConnectTimeout}
	for _, opt := range opts {
		opt(&o)
	}
	if o.header.Get(versionHeader) == "" {
		o.header.Set(versionHeader, versionValue)
	}

	wsURL, err := liveEndpoint(rawURL)
	if err != nil {
		return nil, err
	}

	dialCtx := ctx
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, o.connectTimeout)
		defer cancel()
	}
	conn, resp, err := o.dialer.DialContext(dialCtx, wsURL, o.header)
	if err != nil {
		if resp != nil {
			return nil, &TransportError{Op: "GET", URL: wsURL, Err: fmt.Errorf("websocket dial failed (status %d): %w", resp.StatusCode, err)}
		}
		return nil, &TransportError{Op: "GET", URL: wsURL, Err: err}
	}

	c := &Client{
		conn:    conn,
		opts:    o,
		pending: make(map[string]chan reply),
		history: make(map[string][]types.Turn),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

func liveEndpoint(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("omniguide: invalid server url %q", raw)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("omniguide: unsupported url scheme %q", u.Scheme)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/v1/live"
	}
	return u.String(), nil
}

// Analyze sends one frame with the user's utterance. Blank speech is a no-op
// and returns (nil, nil). An empty frame returns ErrNoFrame without sending.
// A gateway failure is a *ServerError; for malformed results its Fallback
// holds substitute text.
func (c *Client) Analyze(ctx context.Context, sessionID, frame, speech string, mode types.Mode) (*Response, error) {
	if strings.TrimSpace(speech) == "" {
		return nil, nil
	}
	if strings.TrimSpace(frame) == "" {
		return nil, ErrNoFrame
	}
	if mode == "" {
		mode = types.ModeGeneral
	}
	reqID := newRequestID()
	r, err := c.roundTrip(ctx, reqID, protocol.ClientAnalyze{
		Type:      protocol.TypeAnalyze,
		RequestID: reqID,
		SessionID: sessionID,
		Image:     frame,
		Speech:    speech,
		Mode:      mode,

		IncludeImages: c.opts.includeImages,
	})
	if err != nil {
		return nil, err
	}
	if r.response == nil {
		return nil, fmt.Errorf("omniguide: unexpected reply to analyze")
	}
	return &Response{
		RequestID: r.response.RequestID,
		SessionID: r.response.SessionID,
		Analysis:  r.response.Analysis,
		Speech:    r.response.Speech,
		Overlay:   r.response.Overlay,
		History:   r.response.History,
	}, nil
}

// GetHistory fetches a session's turns. Unknown sessions have none.
func (c *Client) GetHistory(ctx context.Context, sessionID string) ([]types.Turn, error) {
	reqID := newRequestID()
	return c.historyCall(ctx, reqID, protocol.ClientGetHistory{
		Type:          protocol.TypeGetHistory,
		RequestID:     reqID,
		SessionID:     sessionID,
		IncludeImages: c.opts.includeImages,
	})
}

// ClearHistory empties a session's history on the server.
func (c *Client) ClearHistory(ctx context.Context, sessionID string) ([]types.Turn, error) {
	reqID := newRequestID()
	return c.historyCall(ctx, reqID, protocol.ClientClearHistory{Type: protocol.TypeClearHistory, RequestID: reqID, SessionID: sessionID})
}

func (c *Client) historyCall(ctx context.Context, reqID string, msg any) ([]types.Turn, error) {
	r, err := c.roundTrip(ctx, reqID, msg)
	if err != nil {
		return nil, err
	}
	if r.history == nil {
		return nil, fmt.Errorf("omniguide: unexpected reply to history request")
	}
	return r.history.History, nil
}

// History returns the latest history received for sessionID, or an empty
// slice if none has arrived. It is a read-only projection refreshed by every
// response and history reply for that session.
func (c *Client) History(sessionID string) []types.Turn {
	c.historyMu.RLock()
	defer c.historyMu.RUnlock()
	if h, ok := c.history[sessionID]; ok {
		return types.CloneTurns(h)
	}
	return []types.Turn{}
}

// FollowOverlay feeds the overlay of every later response into loop.
func (c *Client) FollowOverlay(loop *overlay.Loop) {
	if loop == nil {
		return
	}
	c.followMu.Lock()
	c.follow = append(c.follow, loop)
	c.followMu.Unlock()
}

func (c *Client) roundTrip(ctx context.Context, reqID string, msg any) (reply, error) {
	if c.closed.Load() {
		return reply{}, ErrClosed
	}
	ch := make(chan reply, 1)
	c.pendingMu.Lock()
	c.pending[reqID] = ch
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, reqID)
		c.pendingMu.Unlock()
	}()

	if err := c.writeJSON(msg); err != nil {
		return reply{}, err
	}

	select {
	case r := <-ch:
		if r.err != nil {
			return reply{}, r.err
		}
		return r, nil
	case <-ctx.Done():
		return reply{}, ctx.Err()
	case <-c.done:
		if err := c.Err(); err != nil {
			return reply{}, err
		}
		return reply{}, ErrClosed
	}
}

func (c *Client) writeJSON(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.closed.Load() {
		return ErrClosed
	}
	if err := c.conn.WriteJSON(v); err != nil {
		return &TransportError{Op: "write", Err: err}
	}
	return nil
}

// Close ends the connection. Pending calls return ErrClosed.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(2*time.Second))
		c.writeMu.Unlock()
		_ = c.conn.Close()
	})
	<-c.done
	return nil
}

// Done is closed once the connection has ended.
func (c *Client) Done() <-chan struct{} { return c.done }

// Err returns the error that ended the connection, if any.
func (c *Client) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

func (c *Client) setErr(err error) {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	if c.err == nil {
		c.err = err
	}
}

func (c *Client) readLoop() {
	defer close(c.done)
	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if !c.closed.Load() && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.setErr(&TransportError{Op: "read", Err: err})
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		if err := c.dispatch(data); err != nil {
			c.setErr(err)
			_ = c.conn.Close()
			return
		}
	}
}

func (c *Client) dispatch(data []byte) error {
	var env struct {
		Type      string `json:"type"`
		RequestID string `json:"request_id"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("omniguide: decode frame: %w", err)
	}

	var r reply
	switch env.Type {
	case protocol.TypeResponse:
		var msg protocol.ServerResponse
		if err := json.Unmarshal(data, &msg); err != nil {
			return fmt.Errorf("omniguide: decode response: %w", err)
		}
		c.setHistory(msg.SessionID, msg.History)
		c.followMu.RLock()
		for _, loop := range c.follow {
			loop.Update(msg.Overlay)
		}
		c.followMu.RUnlock()
		r.response = &msg
	case protocol.TypeHistory:
		var msg protocol.ServerHistory
		if err := json.Unmarshal(data, &msg); err != nil {
			return fmt.Errorf("omniguide: decode history: %w", err)
		}
		c.setHistory(msg.SessionID, msg.History)
		r.history = &msg
	case protocol.TypeError:
		var msg protocol.ServerError
		if err := json.Unmarshal(data, &msg); err != nil {
			return fmt.Errorf("omniguide: decode error: %w", err)
		}
		r.err = &ServerError{
			RequestID:  msg.RequestID,
			Code:       msg.Code,
			Message:    msg.Message,
			Param:      msg.Param,
			RetryAfter: msg.RetryAfter,
			Fallback:   msg.Fallback,
		}
	case protocol.TypeWarning:
		var msg protocol.ServerWarning
		if err := json.Unmarshal(data, &msg); err != nil {
			return fmt.Errorf("omniguide: decode warning: %w", err)
		}
		if c.opts.onWarning != nil {
			c.opts.onWarning(msg.Code, msg.Message)
		}
		return nil
	default:
		return nil
	}

	c.pendingMu.Lock()
	ch, ok := c.pending[env.RequestID]
	c.pendingMu.Unlock()
	if ok {
		select {
		case ch <- r:
		default:
		}
	}
	return nil
}

func (c *Client) setHistory(sessionID string, history []types.Turn) {
	if history == nil {
		history = []types.Turn{}
	}
	c.historyMu.Lock()
	c.history[sessionID] = history
	c.historyMu.Unlock()
}

func newRequestID() string {
	return "r_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}
