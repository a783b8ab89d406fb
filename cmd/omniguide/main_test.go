package main

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Zenieverse/OmniGuide-AI/pkg/core"
	"github.com/Zenieverse/OmniGuide-AI/pkg/core/types"
	"github.com/Zenieverse/OmniGuide-AI/pkg/gateway/config"
	gatewayserver "github.com/Zenieverse/OmniGuide-AI/pkg/gateway/server"
	"github.com/Zenieverse/OmniGuide-AI/pkg/session"
	"github.com/Zenieverse/OmniGuide-AI/pkg/store"
)

func noSignals() (func(chan<- os.Signal, ...os.Signal), func(chan<- os.Signal)) {
	return func(chan<- os.Signal, ...os.Signal) {}, func(chan<- os.Signal) {}
}

func TestRunMain_ReturnsNonZeroWhenConfigLoadFails(t *testing.T) {
	t.Parallel()

	notify, stop := noSignals()
	var stdout, stderr bytes.Buffer
	exitCode := runMain(context.Background(), []string{"serve"}, &stdout, &stderr, serveDeps{
		loadConfig: func() (config.Config, error) {
			return config.Config{}, errors.New("boom")
		},
		openStore: func(context.Context, config.Config) (store.Store, error) {
			t.Fatalf("openStore should not be called when config load fails")
			return nil, nil
		},
		newAnalyzer:  newAnalyzer,
		listen:       net.Listen,
		signalNotify: notify,
		signalStop:   stop,
	})

	if exitCode != 1 {
		t.Fatalf("exitCode=%d, want 1", exitCode)
	}
	if got := stderr.String(); !strings.Contains(got, "boom") {
		t.Fatalf("stderr=%q, want config error", got)
	}
}

func TestRunMain_UnknownCommand(t *testing.T) {
	t.Parallel()

	var stdout, stderr bytes.Buffer
	if code := runMain(context.Background(), []string{"nope"}, &stdout, &stderr, defaultServeDeps()); code != 1 {
		t.Fatalf("exitCode=%d, want 1", code)
	}
}

func TestBuildHTTPServer_UsesConfiguredAddress(t *testing.T) {
	t.Parallel()

	cfg := config.Config{
		Addr:              "127.0.0.1:9999",
		ReadHeaderTimeout: 2 * time.Second,
		ReadTimeout:       3 * time.Second,
	}

	srv := buildHTTPServer(cfg, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	if srv.Addr != cfg.Addr {
		t.Fatalf("Addr=%q, want %q", srv.Addr, cfg.Addr)
	}
	if srv.ReadHeaderTimeout != cfg.ReadHeaderTimeout {
		t.Fatalf("ReadHeaderTimeout=%v, want %v", srv.ReadHeaderTimeout, cfg.ReadHeaderTimeout)
	}
	if srv.ReadTimeout != cfg.ReadTimeout {
		t.Fatalf("ReadTimeout=%v, want %v", srv.ReadTimeout, cfg.ReadTimeout)
	}
}

func TestNewLogger_Levels(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := newLogger(config.Config{LogLevel: "warn", LogFormat: "json"}, &buf)
	logger.Info("hidden")
	logger.Warn("shown", "k", "v")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info record leaked at warn level: %q", out)
	}
	if !strings.Contains(out, `"msg":"shown"`) || !strings.Contains(out, `"k":"v"`) {
		t.Fatalf("json output=%q", out)
	}
}

func TestNewAnalyzer_WithoutKeyFailsAsGatewayError(t *testing.T) {
	t.Parallel()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	a, err := newAnalyzer(context.Background(), config.Config{}, logger)
	if err != nil {
		t.Fatalf("newAnalyzer() err=%v", err)
	}
	_, err = a.Analyze(context.Background(), types.AnalysisRequest{})
	var apiErr *core.Error
	if !errors.As(err, &apiErr) || apiErr.Type != core.ErrGateway {
		t.Fatalf("err=%T %v, want gateway error", err, err)
	}
}

func TestOpenStore_DefaultsToMemory(t *testing.T) {
	t.Parallel()

	st, err := openStore(context.Background(), config.Config{Store: config.StoreMemory, MemoryMaxSessions: 10})
	if err != nil {
		t.Fatalf("openStore() err=%v", err)
	}
	defer st.Close()
	if _, ok := st.(*store.MemoryStore); !ok {
		t.Fatalf("store=%T, want *store.MemoryStore", st)
	}
}

// Not parallel: runServe installs the default slog logger.
func TestRunServe_ServesUntilContextCanceled(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	listeners := make(chan net.Listener, 1)
	notify, stop := noSignals()
	deps := serveDeps{
		loadConfig: func() (config.Config, error) {
			return config.Config{
				Addr:                "127.0.0.1:0",
				Store:               config.StoreMemory,
				MemoryMaxSessions:   10,
				MetricsEnabled:      true,
				ShutdownGracePeriod: time.Second,
				ReadHeaderTimeout:   time.Second,
			}, nil
		},
		openStore: openStore,
		newAnalyzer: func(context.Context, config.Config, *slog.Logger) (core.Analyzer, error) {
			return core.AnalyzerFunc(chairAnalyzer), nil
		},
		listen: func(network, addr string) (net.Listener, error) {
			ln, err := net.Listen(network, addr)
			if err == nil {
				listeners <- ln
			}
			return ln, err
		},
		signalNotify: notify,
		signalStop:   stop,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var stderr bytes.Buffer
	errCh := make(chan error, 1)
	go func() { errCh <- runServe(ctx, &stderr, deps) }()

	var ln net.Listener
	select {
	case ln = <-listeners:
	case err := <-errCh:
		t.Fatalf("runServe exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for listener")
	}

	base := "http://" + ln.Addr().String()
	for _, path := range []string{"/healthz", "/metrics"} {
		resp, err := http.Get(base + path)
		if err != nil {
			t.Fatalf("GET %s error: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("GET %s status=%d, want 200", path, resp.StatusCode)
		}
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("runServe() err=%v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("runServe did not stop after cancel")
	}
	if !strings.Contains(stderr.String(), "gateway stopped") {
		t.Fatalf("missing shutdown log: %q", stderr.String())
	}
}

func chairAnalyzer(ctx context.Context, req types.AnalysisRequest) (*types.AnalysisResult, error) {
	return &types.AnalysisResult{
		Analysis: "A chair near the window.",
		Speech:   "That's a chair.",
		Overlay: []types.OverlayInstruction{{
			Type: types.OverlayHighlight, X: types.Percent(25), Y: types.Percent(25),
			Width: types.Percent(50), Height: types.Percent(50), Label: "chair",
		}},
	}, nil
}

func newTestGateway(t *testing.T) *httptest.Server {
	t.Helper()
	mgr, err := session.New(session.Options{
		Store:    store.NewMemoryStore(),
		Analyzer: core.AnalyzerFunc(chairAnalyzer),
	})
	if err != nil {
		t.Fatalf("session.New() err=%v", err)
	}
	gw := gatewayserver.New(config.Config{Store: config.StoreMemory, MaxMessageBytes: 1 << 20}, gatewayserver.Dependencies{
		Sessions: mgr,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	ts := httptest.NewServer(gw.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func writeTestPNG(t *testing.T, dir string, w, h int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 40, G: 40, B: 40, A: 255})
		}
	}
	path := filepath.Join(dir, "frame.png")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create frame: %v", err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("encode frame: %v", err)
	}
	return path
}

func decodePNGFile(t *testing.T, path string) image.Image {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode %s: %v", path, err)
	}
	return img
}

func TestAskCommand_PrintsAnswerAndWritesOverlay(t *testing.T) {
	t.Parallel()

	ts := newTestGateway(t)
	dir := t.TempDir()
	framePath := writeTestPNG(t, dir, 64, 48)
	outPath := filepath.Join(dir, "out.png")

	var stdout, stderr bytes.Buffer
	code := runMain(context.Background(), []string{
		"ask", "--url", ts.URL, "--session", "abc123", "--image", framePath, "--out", outPath,
		"what", "is", "this?",
	}, &stdout, &stderr, defaultServeDeps())
	if code != 0 {
		t.Fatalf("exitCode=%d stderr=%q", code, stderr.String())
	}

	out := stdout.String()
	for _, want := range []string{"session: abc123", "speech: That's a chair.", "analysis: A chair near the window.", `highlight "chair"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("stdout missing %q: %q", want, out)
		}
	}
	img := decodePNGFile(t, outPath)
	if b := img.Bounds(); b.Dx() != 64 || b.Dy() != 48 {
		t.Fatalf("bounds=%v, want 64x48", b)
	}
}

func TestAskCommand_RejectsUnknownMode(t *testing.T) {
	t.Parallel()

	var stdout, stderr bytes.Buffer
	code := runMain(context.Background(), []string{"ask", "--mode", "gardening", "hello"}, &stdout, &stderr, defaultServeDeps())
	if code != 1 {
		t.Fatalf("exitCode=%d, want 1", code)
	}
	if !strings.Contains(stderr.String(), "unsupported mode") {
		t.Fatalf("stderr=%q", stderr.String())
	}
}

func TestRenderCommand(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	framePath := writeTestPNG(t, dir, 40, 30)

	tests := []struct {
		name    string
		overlay string
		args    []string
		wantW   int
		wantH   int
		wantErr string
	}{
		{
			name:    "bare array at native size",
			overlay: `[{"type":"circle","x":10,"y":10,"width":20,"height":20}]`,
			wantW:   40, wantH: 30,
		},
		{
			name:    "wrapped response scaled",
			overlay: `{"speech":"hi","overlay":[{"type":"label","label":"knob"}]}`,
			args:    []string{"--width", "80", "--height", "60"},
			wantW:   80, wantH: 60,
		},
		{
			name:    "unknown overlay type",
			overlay: `[{"type":"sparkle"}]`,
			wantErr: "unsupported overlay type",
		},
		{
			name:    "not json",
			overlay: `overlay please`,
			wantErr: "parse overlay",
		},
	}

	for i, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			overlayPath := filepath.Join(dir, "overlay"+string(rune('a'+i))+".json")
			outPath := filepath.Join(dir, "out"+string(rune('a'+i))+".png")
			if err := os.WriteFile(overlayPath, []byte(tc.overlay), 0o644); err != nil {
				t.Fatalf("write overlay: %v", err)
			}
			args := append([]string{"render", "--image", framePath, "--overlay", overlayPath, "--out", outPath}, tc.args...)

			var stdout, stderr bytes.Buffer
			code := runMain(context.Background(), args, &stdout, &stderr, defaultServeDeps())
			if tc.wantErr != "" {
				if code != 1 || !strings.Contains(stderr.String(), tc.wantErr) {
					t.Fatalf("code=%d stderr=%q, want error containing %q", code, stderr.String(), tc.wantErr)
				}
				return
			}
			if code != 0 {
				t.Fatalf("exitCode=%d stderr=%q", code, stderr.String())
			}
			img := decodePNGFile(t, outPath)
			if b := img.Bounds(); b.Dx() != tc.wantW || b.Dy() != tc.wantH {
				t.Fatalf("bounds=%v, want %dx%d", b, tc.wantW, tc.wantH)
			}
		})
	}
}
