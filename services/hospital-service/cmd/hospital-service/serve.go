package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/knocktern/hospital-booking/libs/auth"
	"github.com/knocktern/hospital-booking/libs/config"
	"github.com/knocktern/hospital-booking/libs/db"
	"github.com/knocktern/hospital-booking/libs/events"
	"github.com/knocktern/hospital-booking/libs/grpcx"
	"github.com/knocktern/hospital-booking/libs/httpx"
	"github.com/knocktern/hospital-booking/libs/kafkax"
	otelx "github.com/knocktern/hospital-booking/libs/otel"
	"github.com/knocktern/hospital-booking/libs/runtime"
	"github.com/knocktern/hospital-booking/services/hospital-service/internal/booking"
	"github.com/knocktern/hospital-booking/services/hospital-service/internal/handlers"
	"github.com/knocktern/hospital-booking/services/hospital-service/internal/outbox"
	"github.com/knocktern/hospital-booking/services/hospital-service/internal/payments"
	"github.com/knocktern/hospital-booking/services/hospital-service/internal/storage"
	"github.com/knocktern/hospital-booking/services/hospital-service/migrations"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func serve(ctx context.Context) error {
	service := config.String("SERVICE_NAME", serviceName)
	logger := runtime.NewLogger(service)

	port, err := config.Port("PORT", "8080")
	if err != nil {
		return err
	}
	grpcPort, err := config.Port("GRPC_PORT", "9090")
	if err != nil {
		return err
	}

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		return err
	}
	maxConns, err := config.Int("DB_MAX_CONNS", 10)
	if err != nil {
		return err
	}
	pool, err := db.Open(ctx, dbURL, db.Options{MaxConns: int32(maxConns)})
	if err != nil {
		logger.Error("db connection failed", "err", err)
		return err
	}
	defer pool.Close()

	if config.Bool("AUTO_MIGRATE", true) {
		n, err := db.NewMigrator(pool, migrations.FS).Up(ctx)
		if err != nil {
			return err
		}
		logger.Info("migrations applied", "count", n)
	}

	jwtSecret, err := config.RequiredString("JWT_SECRET")
	if err != nil {
		return err
	}
	jwtTTL, err := config.Duration("JWT_TTL", 12*time.Hour)
	if err != nil {
		return err
	}
	signer, err := auth.NewSigner(jwtSecret, config.String("JWT_ISSUER", service), jwtTTL)
	if err != nil {
		return err
	}

	store := storage.New(pool)
	bookingSvc := booking.NewService(booking.Postgres{S: store}, logger)

	brokers := config.List("KAFKA_BROKERS")
	pollEvery, err := config.Duration("OUTBOX_POLL_INTERVAL", 2*time.Second)
	if err != nil {
		return err
	}
	publisher := outbox.NewPublisher(pool, logger, outbox.PublisherConfig{
		Brokers:   brokers,
		Topic:     config.String("KAFKA_TOPIC", events.Topic),
		PollEvery: pollEvery,
		BatchSize: 50,
	})
	go publisher.Run(ctx)

	expiryEvery, err := config.Duration("REQUEST_EXPIRY_INTERVAL", time.Minute)
	if err != nil {
		return err
	}
	go booking.NewExpiryWorker(bookingSvc, logger, booking.ExpiryConfig{Interval: expiryEvery, BatchSize: 100}).Run(ctx)

	webhookTolerance, err := config.Duration("STRIPE_WEBHOOK_TOLERANCE", 5*time.Minute)
	if err != nil {
		return err
	}
	stripe := payments.NewStripe(payments.Config{
		SecretKey:        config.String("STRIPE_SECRET_KEY", ""),
		WebhookSecret:    config.String("STRIPE_WEBHOOK_SECRET", ""),
		WebhookTolerance: webhookTolerance,
		Currency:         config.String("STRIPE_CURRENCY", "inr"),
		SuccessURL:       config.String("CHECKOUT_SUCCESS_URL", "http://localhost:8080/payments/success"),
		CancelURL:        config.String("CHECKOUT_CANCEL_URL", "http://localhost:8080/payments/cancel"),
	})

	checks := []runtime.ReadyCheck{{Name: "db", Check: db.ReadyCheck(pool)}}
	if len(brokers) > 0 {
		checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
	}

	limiter, rdb, err := rateLimiter(logger)
	if err != nil {
		return err
	}
	if rdb != nil {
		defer rdb.Close()
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: httpx.RedisReadyCheck(rdb)})
	}

	mux := runtime.NewBaseMuxWithReady(checks...)
	handlers.New(handlers.Deps{
		Store:    store,
		Slots:    store,
		Bookings: bookingSvc,
		Payments: stripe,
		Signer:   signer,
		Logger:   logger,
	}).Register(mux)

	timeout, err := config.Duration("HTTP_REQUEST_TIMEOUT", 15*time.Second)
	if err != nil {
		return err
	}
	maxBody, err := config.Int("HTTP_MAX_BODY_BYTES", 1<<20)
	if err != nil {
		return err
	}
	chain := []httpx.Middleware{
		httpx.WithRequestID,
		httpx.WithRecover(logger),
		httpx.WithAccessLog(logger),
	}
	if origins := config.List("CORS_ALLOWED_ORIGINS"); len(origins) > 0 {
		chain = append(chain, httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: origins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Authorization", "Content-Type", "Idempotency-Key", httpx.RequestIDHeader},
			MaxAge:         10 * time.Minute,
		}))
	}
	chain = append(chain, limiter, httpx.WithBodyLimit(int64(maxBody)), httpx.WithTimeout(timeout))
	handler := otelhttp.NewHandler(httpx.Chain(mux, chain...), "hospital")

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	grpcSrv := grpcx.NewServer(logger)
	grpcSrv.SetServing(serviceName, true)
	grpcErr := make(chan error, 1)
	go func() { grpcErr <- grpcSrv.Run(ctx, ":"+grpcPort) }()

	httpErr := make(chan error, 1)
	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			httpErr <- err
		}
		close(httpErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-httpErr:
		if err != nil {
			logger.Error("http server error", "err", err)
			return err
		}
	case err := <-grpcErr:
		if err != nil {
			logger.Error("grpc server error", "err", err)
			return err
		}
	}

	grpcSrv.SetServing(serviceName, false)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
	return nil
}

// rateLimiter prefers Redis so limits hold across replicas, falling back to
// a per-process limiter when REDIS_ADDR is unset.
func rateLimiter(logger *slog.Logger) (httpx.Middleware, *redis.Client, error) {
	limit, err := config.Int("RATE_LIMIT_PER_MINUTE", 120)
	if err != nil {
		return nil, nil, err
	}
	addr := config.String("REDIS_ADDR", "")
	if addr == "" {
		logger.Info("rate limiting in-process", "limit_per_minute", limit)
		return httpx.NewRateLimiter(limit, time.Minute).Middleware(), nil, nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: config.String("REDIS_PASSWORD", ""),
	})
	logger.Info("rate limiting via redis", "addr", addr, "limit_per_minute", limit)
	rl := httpx.NewRedisRateLimiter(rdb, limit, time.Minute, "hospital:rl")
	return rl.Middleware(logger, config.Bool("RATE_LIMIT_FAIL_OPEN", true)), rdb, nil
}
