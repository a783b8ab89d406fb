package omniguide

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	defaultConnectTimeout = 15 * time.Second
	versionHeader         = "X-OmniGuide-Version"
	versionValue          = "1"
)

// Option configures a Client.
type Option func(*options)

type options struct {
	dialer         *websocket.Dialer
	header         http.Header
	connectTimeout time.Duration
	onWarning      func(code, message string)
	includeImages  bool
}

// WithDialer replaces websocket.DefaultDialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(o *options) {
		if d != nil {
			o.dialer = d
		}
	}
}

// WithHeader adds a header to the websocket handshake.
func WithHeader(key, value string) Option {
	return func(o *options) {
		o.header.Add(key, value)
	}
}

// WithConnectTimeout bounds Dial when ctx has no deadline.
func WithConnectTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.connectTimeout = d
		}
	}
}

// WithWarningHandler is called from the read loop for every warning frame,
// for example when the server starts draining. It must not block.
func WithWarningHandler(fn func(code, message string)) Option {
	return func(o *options) {
		o.onWarning = fn
	}
}

// WithHistoryImages asks the server to keep the stored frames in the history
// returned by Analyze and GetHistory. Without it user turns carry no Image.
func WithHistoryImages() Option {
	return func(o *options) {
		o.includeImages = true
	}
}
