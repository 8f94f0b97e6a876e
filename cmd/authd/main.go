// Command authd serves the authentication API for the learning platform:
// login, registration with email confirmation, two-factor step-up, token
// refresh, and password recovery, backed by MongoDB accounts and Redis
// session state.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/lumenlms/authcore"
	"github.com/lumenlms/authcore/httpapi"
	"github.com/lumenlms/authcore/mailer"
	"github.com/lumenlms/authcore/mongostore"
	"github.com/lumenlms/authcore/promexport"
)

func main() {
	if err := run(); err != nil {
		slog.Error("authd exited", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Redis carries sessions, one-time codes, and lockout counters.
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return err
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return errors.Join(errors.New("redis unreachable"), err)
	}

	// Mongo holds the account records.
	mongoClient, err := mongostore.Connect(ctx, cfg.Mongo)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		_ = mongoClient.Disconnect(shutdownCtx)
	}()

	accounts := mongostore.NewAccountStore(mongoClient.Database(cfg.Mongo.Database))
	if err := accounts.EnsureIndexes(ctx); err != nil {
		return err
	}

	sender, err := buildSender(cfg, logger)
	if err != nil {
		return err
	}

	engine, err := authcore.New().
		WithRedis(redisClient).
		WithAccountStore(accounts).
		WithMailer(mailer.NewCodeMailer(sender, cfg.AppName)).
		WithSigningSecret([]byte(cfg.SigningSecret)).
		WithAuditSink(authcore.NewSlogSink(logger)).
		Build()
	if err != nil {
		return err
	}
	defer engine.Close()

	server := httpapi.NewServer(engine, logger,
		mongostore.Healthcheck(mongoClient),
		func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
	)
	apiHandler := httpapi.NewRouter(server, engine, redisClient, httpapi.RouterConfig{})

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		promexport.NewCollector(engine),
	)

	apiServer := &http.Server{
		Addr:         cfg.Addr,
		Handler:      apiHandler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	metricsServer := &http.Server{
		Addr:        cfg.MetricsAddr,
		Handler:     metricsMux,
		ReadTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("authd listening", slog.String("addr", cfg.Addr))
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	go func() {
		logger.Info("metrics listening", slog.String("addr", cfg.MetricsAddr))
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	err = apiServer.Shutdown(shutdownCtx)
	if mErr := metricsServer.Shutdown(shutdownCtx); err == nil {
		err = mErr
	}
	return err
}

func buildSender(cfg appConfig, logger *slog.Logger) (mailer.EmailSender, error) {
	if cfg.DevMail {
		logger.Warn("dev mail sender active, codes are logged instead of delivered")
		return mailer.NewDevSender(logger), nil
	}
	return mailer.NewPostmarkSender(mailer.PostmarkConfig{
		ServerToken:  cfg.PostmarkToken,
		AccountToken: cfg.PostmarkAccount,
		SenderEmail:  cfg.SenderEmail,
		SupportEmail: cfg.SupportEmail,
	})
}

func newLogger(cfg appConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.EqualFold(cfg.LogFormat, "text") {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}
