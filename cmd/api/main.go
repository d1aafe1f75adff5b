package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/zhouzirui/voiceturn/backend/internal/config"
	"github.com/zhouzirui/voiceturn/backend/internal/handler"
	"github.com/zhouzirui/voiceturn/backend/internal/logging"
	"github.com/zhouzirui/voiceturn/backend/internal/metrics"
	"github.com/zhouzirui/voiceturn/backend/internal/service/provider"
	"github.com/zhouzirui/voiceturn/backend/internal/service/session"
	"github.com/zhouzirui/voiceturn/backend/internal/service/voice"
)

const (
	metricsNamespace = "voiceturn"
	shutdownTimeout  = 10 * time.Second
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 加载 .env 文件
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("failed to load configuration", zap.Error(err))
	}

	logger := logging.New(cfg.Log.Level, cfg.Log.Format)
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	if envErr != nil {
		logger.Info("no .env file loaded, using process environment", zap.Error(envErr))
	}

	collector := metrics.NewCollector(metricsNamespace, logger)

	store := session.NewStore(
		session.WithMaxSessions(cfg.Session.MaxSessions),
		session.WithIdleTimeout(cfg.Session.IdleTimeout),
		session.WithLogger(logger),
	)
	collector.RegisterSessionGauge(metricsNamespace, func() float64 { return float64(store.Len()) })

	providers, err := provider.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize providers", zap.Error(err))
	}

	orchestrator := voice.NewOrchestrator(store,
		providers.Transcriber,
		providers.Extractor,
		providers.Synthesizer,
		voice.WithHistoryLimit(cfg.Session.HistoryLimit),
		voice.WithOrchestratorMetrics(collector),
		voice.WithOrchestratorLogger(logger),
	)

	router := handler.NewRouter(handler.Dependencies{
		Sessions:     store,
		Orchestrator: orchestrator,
		Providers:    providers.Names,
		Metrics:      collector,
		Logger:       logger,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
		// websocket 连接被 hijack 后不受 Shutdown 管理，靠这个 ctx 通知它们退出
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	logger.Info("voiceturn backend listening",
		zap.String("addr", cfg.Server.Addr),
		zap.Int("max_sessions", cfg.Session.MaxSessions),
		zap.Duration("session_timeout", cfg.Session.IdleTimeout),
	)
	if err := runServer(ctx, srv, logger); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
	logger.Info("server stopped")
}

func runServer(ctx context.Context, srv *http.Server, logger *zap.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down", zap.Duration("timeout", shutdownTimeout))
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("graceful shutdown incomplete", zap.Error(err))
		}
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
