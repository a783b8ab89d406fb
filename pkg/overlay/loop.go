package overlay

import (
	"context"
	"sync"
	"time"

	"github.com/Zenieverse/OmniGuide-AI/pkg/core/types"
)

// DefaultRefreshInterval approximates a 60Hz display.
const DefaultRefreshInterval = time.Second / 60

// State is the renderer state.
type State int

const (
	StateIdle State = iota
	StateDrawing
)

func (s State) String() string {
	if s == StateDrawing {
		return "drawing"
	}
	return "idle"
}

// Surface reports the video's current displayed size. ok is false while no
// video is attached.
type Surface interface {
	DisplaySize() (width, height int, ok bool)
}

// SurfaceFunc adapts a function to Surface.
type SurfaceFunc func() (int, int, bool)

// DisplaySize implements Surface.
func (f SurfaceFunc) DisplaySize() (int, int, bool) { return f() }

// Loop redraws the current instruction set once per refresh, resizing the
// canvas to the surface's displayed size on every frame.
type Loop struct {
	mu           sync.Mutex
	surface      Surface
	canvas       Canvas
	instructions []types.OverlayInstruction
	state        State
	needsClear   bool
	interval     time.Duration
}

// LoopOption configures a Loop.
type LoopOption func(*Loop)

// WithRefreshInterval overrides DefaultRefreshInterval.
func WithRefreshInterval(d time.Duration) LoopOption {
	return func(l *Loop) {
		if d > 0 {
			l.interval = d
		}
	}
}

// NewLoop returns an idle loop drawing onto canvas.
func NewLoop(surface Surface, canvas Canvas, opts ...LoopOption) *Loop {
	l := &Loop{surface: surface, canvas: canvas, interval: DefaultRefreshInterval}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Update replaces the instruction set. A non-empty set moves the loop to
// drawing, an empty one back to idle.
func (l *Loop) Update(instructions []types.OverlayInstruction) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(instructions) == 0 {
		if l.state == StateDrawing {
			l.needsClear = true
		}
		l.instructions = nil
		l.state = StateIdle
		return
	}
	l.instructions = append([]types.OverlayInstruction(nil), instructions...)
	l.state = StateDrawing
}

// State returns the current state.
func (l *Loop) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Frame performs one refresh and reports whether anything was drawn. An
// unavailable surface makes the frame a no-op.
func (l *Loop) Frame() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.surface == nil || l.canvas == nil {
		return false
	}
	width, height, ok := l.surface.DisplaySize()
	if !ok || width <= 0 || height <= 0 {
		return false
	}
	if cw, ch := l.canvas.Size(); cw != width || ch != height {
		l.canvas.Resize(width, height)
	}

	if l.state == StateIdle {
		if l.needsClear {
			l.canvas.Clear()
			l.needsClear = false
		}
		return false
	}
	l.canvas.Clear()
	Render(l.canvas, l.instructions)
	return true
}

// Run calls Frame once per refresh interval until ctx ends.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			l.Frame()
		}
	}
}
