// Package session owns per-session conversation history. The Manager
// mediates every read and write to the session store and runs the analysis
// gateway for each exchange.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Zenieverse/OmniGuide-AI/pkg/core"
	"github.com/Zenieverse/OmniGuide-AI/pkg/core/types"
	"github.com/Zenieverse/OmniGuide-AI/pkg/metrics"
	"github.com/Zenieverse/OmniGuide-AI/pkg/store"
	"github.com/Zenieverse/OmniGuide-AI/pkg/telemetry"
)

const defaultHistoryWindow = 5

var (
	// ErrEmptySpeech is returned when the utterance is blank after trimming.
	// Callers treat it as a no-op.
	ErrEmptySpeech = errors.New("speech is empty")
	// ErrImageMissing is returned when no frame accompanies an analyze call.
	ErrImageMissing = errors.New("image is missing")
	// ErrInvalidSessionID is returned for a blank session id.
	ErrInvalidSessionID = errors.New("session id is required")
)

// Options configures a Manager.
type Options struct {
	Store    store.Store
	Analyzer core.Analyzer

	Logger         *slog.Logger
	Metrics        *metrics.Recorder
	TracerProvider trace.TracerProvider

	// HistoryWindow is how many prior turns are sent to the gateway.
	HistoryWindow int
	// AnalyzeTimeout bounds each gateway call. Zero means no bound.
	AnalyzeTimeout time.Duration
	// MaxImageBytes caps the decoded frame size. Zero means no cap.
	MaxImageBytes int

	Now func() time.Time
}

// Manager runs analyze exchanges and history commands against a store.
type Manager struct {
	store          store.Store
	analyzer       core.Analyzer
	logger         *slog.Logger
	metrics        *metrics.Recorder
	tracer         trace.Tracer
	historyWindow  int
	analyzeTimeout time.Duration
	maxImageBytes  int
	now            func() time.Time
	locks          *keyedMutex
}

// Exchange is the result of one completed analyze call.
type Exchange struct {
	Analysis string                     `json:"analysis"`
	Speech   string                     `json:"speech"`
	Overlay  []types.OverlayInstruction `json:"overlay"`
	History  []types.Turn               `json:"history"`
}

// New returns a Manager. Store and Analyzer are required.
func New(opts Options) (*Manager, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("session: store is required")
	}
	if opts.Analyzer == nil {
		return nil, fmt.Errorf("session: analyzer is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	window := opts.HistoryWindow
	if window <= 0 {
		window = defaultHistoryWindow
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Manager{
		store:          opts.Store,
		analyzer:       opts.Analyzer,
		logger:         logger,
		metrics:        opts.Metrics,
		tracer:         telemetry.Tracer(opts.TracerProvider),
		historyWindow:  window,
		analyzeTimeout: opts.AnalyzeTimeout,
		maxImageBytes:  opts.MaxImageBytes,
		now:            now,
		locks:          newKeyedMutex(),
	}, nil
}

// Analyze runs one exchange: gateway call, two appended turns, one Put.
// The exchange is detached from ctx cancellation so a caller that goes away
// mid-call still leaves a persisted result. On any failure the stored session
// is left untouched.
func (m *Manager) Analyze(ctx context.Context, sessionID, image, speech string, mode types.Mode) (*Exchange, error) {
	speech = strings.TrimSpace(speech)
	if speech == "" {
		return nil, ErrEmptySpeech
	}
	if strings.TrimSpace(image) == "" {
		return nil, ErrImageMissing
	}
	if sessionID == "" {
		return nil, ErrInvalidSessionID
	}
	if mode == "" {
		mode = types.ModeGeneral
	}
	if !mode.Valid() {
		return nil, core.NewInvalidRequestErrorWithParam(fmt.Sprintf("unsupported mode %q", mode), "mode")
	}
	if err := m.checkImage(image); err != nil {
		return nil, err
	}

	ctx = context.WithoutCancel(ctx)
	ctx, span := m.tracer.Start(ctx, "session.analyze", trace.WithAttributes(
		attribute.String("omniguide.session_id", sessionID),
		attribute.String("omniguide.mode", string(mode)),
	))
	defer span.End()

	start := m.now()
	unlock := m.locks.Lock(sessionID)
	defer unlock()

	ex, outcome, err := m.analyzeLocked(ctx, sessionID, image, speech, mode)
	elapsed := m.now().Sub(start)
	m.metrics.ObserveAnalyze(string(mode), outcome, elapsed)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		m.logger.Warn("analyze failed",
			"session_id", sessionID,
			"mode", string(mode),
			"outcome", outcome,
			"duration", elapsed,
			"error", err,
		)
		return nil, err
	}
	span.SetAttributes(attribute.Int("omniguide.overlay_count", len(ex.Overlay)))
	m.logger.Info("analyze completed",
		"session_id", sessionID,
		"mode", string(mode),
		"turns", len(ex.History),
		"overlay", len(ex.Overlay),
		"duration", elapsed,
	)
	return ex, nil
}

func (m *Manager) analyzeLocked(ctx context.Context, sessionID, image, speech string, mode types.Mode) (*Exchange, string, error) {
	sess, err := m.load(ctx, sessionID, mode)
	if err != nil {
		return nil, metrics.OutcomeStorage, err
	}

	req := types.AnalysisRequest{
		ImageDataURI: image,
		Speech:       speech,
		Mode:         mode,
		History:      types.Window(sess.History, m.historyWindow),
	}
	result, err := m.callGateway(ctx, req)
	if err != nil {
		if coreErr, ok := core.AsError(err); ok && coreErr.Type == core.ErrMalformed {
			return nil, metrics.OutcomeMalformed, err
		}
		return nil, metrics.OutcomeGateway, err
	}

	now := m.now().UTC()
	sess.Mode = mode
	sess.History = append(sess.History,
		types.Turn{Role: types.RoleUser, Content: speech, Timestamp: now, Mode: mode, Image: image},
		types.Turn{Role: types.RoleModel, Content: result.Analysis, Timestamp: now, Mode: mode},
	)
	if labels := result.Labels(); len(labels) > 0 {
		sess.LastDetectedObjects = labels
	}
	sess.UpdatedAt = now

	if err := m.store.Put(ctx, sess); err != nil {
		m.metrics.ObserveStoreError("put")
		return nil, metrics.OutcomeStorage, core.NewStorageError("put", err)
	}

	overlay := result.Overlay
	if overlay == nil {
		overlay = []types.OverlayInstruction{}
	}
	return &Exchange{
		Analysis: result.Analysis,
		Speech:   result.Speech,
		Overlay:  overlay,
		History:  types.CloneTurns(sess.History),
	}, metrics.OutcomeOK, nil
}

func (m *Manager) callGateway(ctx context.Context, req types.AnalysisRequest) (result *types.AnalysisResult, err error) {
	if m.analyzeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.analyzeTimeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = core.NewGatewayError(fmt.Errorf("analyzer panic: %v", r))
		}
	}()

	result, err = m.analyzer.Analyze(ctx, req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			timeoutErr := core.NewGatewayError(err)
			timeoutErr.Code = "timeout"
			return nil, timeoutErr
		}
		if _, ok := core.AsError(err); ok {
			return nil, err
		}
		return nil, core.NewGatewayError(err)
	}
	if result == nil {
		return nil, core.NewMalformedResultError(errors.New("gateway returned no result"))
	}
	// The model turn is the analysis text; a blank one would persist an empty turn.
	if strings.TrimSpace(result.Analysis) == "" {
		return nil, core.NewMalformedResultError(errors.New("gateway result is missing analysis"))
	}
	if strings.TrimSpace(result.Speech) == "" {
		return nil, core.NewMalformedResultError(errors.New("gateway result is missing speech"))
	}
	for i, o := range result.Overlay {
		if vErr := o.Validate(); vErr != nil {
			return nil, core.NewMalformedResultError(fmt.Errorf("overlay[%d]: %w", i, vErr))
		}
	}
	return result, nil
}

// History returns the session's turns, or an empty slice for an unknown id.
func (m *Manager) History(ctx context.Context, sessionID string) ([]types.Turn, error) {
	if sessionID == "" {
		return nil, ErrInvalidSessionID
	}
	unlock := m.locks.Lock(sessionID)
	defer unlock()

	sess, err := m.load(ctx, sessionID, types.ModeGeneral)
	if err != nil {
		return nil, err
	}
	return types.CloneTurns(sess.History), nil
}

// ClearHistory truncates the session's history and persists it.
func (m *Manager) ClearHistory(ctx context.Context, sessionID string) ([]types.Turn, error) {
	if sessionID == "" {
		return nil, ErrInvalidSessionID
	}
	ctx = context.WithoutCancel(ctx)
	unlock := m.locks.Lock(sessionID)
	defer unlock()

	sess, err := m.load(ctx, sessionID, types.ModeGeneral)
	if err != nil {
		return nil, err
	}
	sess.History = []types.Turn{}
	sess.LastDetectedObjects = nil
	sess.UpdatedAt = m.now().UTC()
	if err := m.store.Put(ctx, sess); err != nil {
		m.metrics.ObserveStoreError("put")
		return nil, core.NewStorageError("put", err)
	}
	m.logger.Info("history cleared", "session_id", sessionID)
	return []types.Turn{}, nil
}

// load returns the stored session or a fresh one in mode.
func (m *Manager) load(ctx context.Context, sessionID string, mode types.Mode) (*types.Session, error) {
	sess, err := m.store.Get(ctx, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		return types.NewSession(sessionID, mode), nil
	}
	if err != nil {
		m.metrics.ObserveStoreError("get")
		return nil, core.NewStorageError("get", err)
	}
	if sess.History == nil {
		sess.History = []types.Turn{}
	}
	return sess, nil
}

func (m *Manager) checkImage(image string) error {
	if m.maxImageBytes > 0 && types.DecodedLen(image) > m.maxImageBytes {
		return core.NewInvalidRequestErrorWithParam(
			fmt.Sprintf("image exceeds %d bytes", m.maxImageBytes), "image")
	}
	if _, err := types.ParseDataURI(image); err != nil {
		return core.NewInvalidRequestErrorWithParam(err.Error(), "image")
	}
	return nil
}
