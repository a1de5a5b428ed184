// cmd/membership/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"memberhub/internal/config"
	"memberhub/internal/journal"
	"memberhub/internal/logging"
	"memberhub/internal/membership"
	"memberhub/internal/notify"
	"memberhub/internal/server"
	"memberhub/internal/telemetry"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogDev)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("membership service stopped", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tel, err := telemetry.Setup(ctx, telemetry.Config{
		ServiceName:    cfg.ServiceName,
		ServiceVersion: cfg.ServiceVersion,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		MetricsEnabled: cfg.MetricsEnabled,
	})
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}()

	transport, err := newTransport(cfg, logger)
	if err != nil {
		return err
	}

	svc := membership.NewService(membership.Config{
		Store:       membership.NewMemoryStore(),
		Notifier:    notify.NewMailer(transport, notify.WithLogger(logger), notify.WithBaseURL(cfg.PublicBaseURL)),
		Journal:     journal.New(),
		Logger:      logger,
		SendLimiter: newSendLimiter(cfg),
	})

	router := server.NewRouter(server.Options{
		Members: membership.NewHandler(svc, membership.HandlerOptions{
			Development:         cfg.Development(),
			ConflictOnDuplicate: cfg.ConflictOnDuplicate,
			Logger:              logger,
		}),
		Logger:      logger,
		Metrics:     tel.MetricsHandler(),
		Development: cfg.Development(),
	})

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	logger.Info("membership service listening",
		zap.String("addr", srv.Addr),
		zap.String("env", cfg.Env),
		zap.String("notifier", cfg.Notifier),
		zap.Strings("endpoints", server.Endpoints(router)),
	)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	logger.Info("goodbye")
	return nil
}

func newTransport(cfg config.Config, logger *zap.Logger) (notify.Transport, error) {
	switch cfg.Notifier {
	case config.NotifierPostmark:
		t := notify.NewPostmarkTransport(cfg.PostmarkServerToken, cfg.EmailFrom,
			notify.WithPostmarkLogger(logger))
		if !t.Configured() {
			return nil, errors.New("postmark transport is not configured")
		}
		return t, nil
	default:
		return notify.NewLogTransport(logger, cfg.EmailLatency), nil
	}
}

// newSendLimiter returns nil, meaning unlimited, when the rate is zero.
func newSendLimiter(cfg config.Config) *rate.Limiter {
	if cfg.SendEmailRatePerMinute == 0 {
		return nil
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.SendEmailRatePerMinute)), max(cfg.SendEmailBurst, 1))
}
