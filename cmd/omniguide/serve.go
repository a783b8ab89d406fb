package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Zenieverse/OmniGuide-AI/pkg/core"
	"github.com/Zenieverse/OmniGuide-AI/pkg/core/providers/gemini"
	"github.com/Zenieverse/OmniGuide-AI/pkg/core/types"
	"github.com/Zenieverse/OmniGuide-AI/pkg/gateway/config"
	"github.com/Zenieverse/OmniGuide-AI/pkg/gateway/lifecycle"
	gatewayserver "github.com/Zenieverse/OmniGuide-AI/pkg/gateway/server"
	"github.com/Zenieverse/OmniGuide-AI/pkg/metrics"
	"github.com/Zenieverse/OmniGuide-AI/pkg/session"
	"github.com/Zenieverse/OmniGuide-AI/pkg/store"
	"github.com/Zenieverse/OmniGuide-AI/pkg/telemetry"
)

type serveDeps struct {
	loadConfig   func() (config.Config, error)
	openStore    func(context.Context, config.Config) (store.Store, error)
	newAnalyzer  func(context.Context, config.Config, *slog.Logger) (core.Analyzer, error)
	listen       func(network, addr string) (net.Listener, error)
	signalNotify func(chan<- os.Signal, ...os.Signal)
	signalStop   func(chan<- os.Signal)
}

func defaultServeDeps() serveDeps {
	return serveDeps{
		loadConfig:  config.LoadFromEnv,
		openStore:   openStore,
		newAnalyzer: newAnalyzer,
		listen:      net.Listen,
		signalNotify: func(c chan<- os.Signal, sig ...os.Signal) {
			signal.Notify(c, sig...)
		},
		signalStop: signal.Stop,
	}
}

func newServeCmd(deps serveDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway (interaction channel, history and render endpoints)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), cmd.ErrOrStderr(), deps)
		},
	}
}

func buildHTTPServer(cfg config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
	}
}

func openStore(ctx context.Context, cfg config.Config) (store.Store, error) {
	switch cfg.Store {
	case config.StoreRedis:
		return store.OpenRedis(ctx, cfg.RedisURL, store.WithRedisPrefix(cfg.RedisPrefix), store.WithRedisTTL(cfg.SessionTTL))
	case config.StorePostgres:
		return store.OpenPostgres(ctx, cfg.PostgresDSN)
	case config.StoreMongo:
		return store.OpenMongo(ctx, cfg.MongoURI, cfg.MongoDatabase)
	default:
		return store.NewMemoryStore(store.WithMemorySize(cfg.MemoryMaxSessions), store.WithMemoryTTL(cfg.SessionTTL)), nil
	}
}

func newAnalyzer(ctx context.Context, cfg config.Config, logger *slog.Logger) (core.Analyzer, error) {
	if cfg.GeminiAPIKey == "" {
		// Keep serving health and history; /readyz reports the missing key
		// and every analyze fails as a gateway error.
		logger.Warn("GEMINI_API_KEY is not set; analyze requests will fail")
		return core.AnalyzerFunc(func(context.Context, types.AnalysisRequest) (*types.AnalysisResult, error) {
			return nil, core.NewGatewayError(errors.New("gemini api key is not configured"))
		}), nil
	}
	opts := []gemini.Option{
		gemini.WithModel(cfg.GeminiModel),
		gemini.WithGoogleSearch(cfg.GeminiGoogleSearch),
		gemini.WithLogger(logger),
	}
	if cfg.GeminiBaseURL != "" {
		opts = append(opts, gemini.WithBaseURL(cfg.GeminiBaseURL))
	}
	return gemini.New(ctx, cfg.GeminiAPIKey, opts...)
}

func runServe(ctx context.Context, stderr io.Writer, deps serveDeps) error {
	if deps.loadConfig == nil || deps.openStore == nil || deps.newAnalyzer == nil || deps.listen == nil {
		return errors.New("missing serve dependency")
	}
	if deps.signalNotify == nil || deps.signalStop == nil {
		return errors.New("missing signal dependency")
	}

	cfg, err := deps.loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(cfg, stderr)
	slog.SetDefault(logger)

	if cfg.OTLPEndpoint != "" {
		tp, err := telemetry.NewTracerProvider(ctx, cfg.OTLPEndpoint, "omniguide")
		if err != nil {
			return fmt.Errorf("init tracing: %w", err)
		}
		telemetry.Setup(tp)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tp.Shutdown(shutdownCtx); err != nil {
				logger.Warn("tracer shutdown failed", "error", err)
			}
		}()
	} else {
		telemetry.Setup(nil)
	}

	var rec *metrics.Recorder
	if cfg.MetricsEnabled {
		rec = metrics.New()
	}

	st, err := deps.openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.Store, err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Warn("store close failed", "error", err)
		}
	}()

	analyzer, err := deps.newAnalyzer(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("init analyzer: %w", err)
	}

	mgr, err := session.New(session.Options{
		Store:          st,
		Analyzer:       analyzer,
		Logger:         logger,
		Metrics:        rec,
		HistoryWindow:  cfg.HistoryWindow,
		AnalyzeTimeout: cfg.AnalyzeTimeout,
		MaxImageBytes:  cfg.MaxImageBytes,
	})
	if err != nil {
		return fmt.Errorf("init session manager: %w", err)
	}

	lc := &lifecycle.Lifecycle{}
	if p, ok := st.(store.Pinger); ok {
		lc.AddCheck("store", p.Ping)
	}

	gw := gatewayserver.New(cfg, gatewayserver.Dependencies{
		Sessions:  mgr,
		Logger:    logger,
		Metrics:   rec,
		Lifecycle: lc,
	})
	httpSrv := buildHTTPServer(cfg, gw.Handler())

	ln, err := deps.listen("tcp", cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	logger.Info("starting gateway", "addr", ln.Addr().String(), "store", string(cfg.Store), "model", cfg.GeminiModel)

	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()
	var bg errgroup.Group
	if p, ok := st.(store.Pruner); ok && cfg.SessionTTL > 0 {
		bg.Go(func() error {
			return store.RunJanitor(bgCtx, p, cfg.SessionTTL, cfg.PruneInterval, logger)
		})
	}

	listenErrCh := make(chan error, 1)
	go func() {
		err := httpSrv.Serve(ln)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErrCh <- err
			return
		}
		listenErrCh <- nil
	}()

	sigCh := make(chan os.Signal, 1)
	deps.signalNotify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer deps.signalStop(sigCh)

	select {
	case err := <-listenErrCh:
		bgCancel()
		_ = bg.Wait()
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	}

	lc.SetDraining(true)
	warned := gw.Channels().WarnAll("draining", "server is shutting down")
	logger.Info("draining", "channels", gw.Channels().Len(), "warned", warned)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}

	// Hijacked websockets are not tracked by http.Server.
	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer waitCancel()
	if !gw.Channels().Wait(waitCtx) {
		closed := gw.Channels().CloseAll()
		logger.Warn("grace period elapsed; closing channels", "channels", closed)
		finalCtx, finalCancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer finalCancel()
		gw.Channels().Wait(finalCtx)
	}

	bgCancel()
	_ = bg.Wait()
	if err := <-listenErrCh; err != nil {
		return fmt.Errorf("serve: %w", err)
	}

	logger.Info("gateway stopped")
	return nil
}
