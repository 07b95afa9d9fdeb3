package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/knocktern/hospital-booking/libs/config"
	"github.com/knocktern/hospital-booking/libs/db"
	"github.com/knocktern/hospital-booking/libs/events"
	"github.com/knocktern/hospital-booking/libs/httpx"
	"github.com/knocktern/hospital-booking/libs/kafkax"
	otelx "github.com/knocktern/hospital-booking/libs/otel"
	"github.com/knocktern/hospital-booking/libs/runtime"
	"github.com/knocktern/hospital-booking/services/notification-service/internal/consumer"
	"github.com/knocktern/hospital-booking/services/notification-service/internal/email"
	"github.com/knocktern/hospital-booking/services/notification-service/internal/notify"
	"github.com/knocktern/hospital-booking/services/notification-service/internal/sms"
	"github.com/knocktern/hospital-booking/services/notification-service/internal/storage"
	"github.com/knocktern/hospital-booking/services/notification-service/migrations"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const serviceName = "notification-service"

func main() {
	var configFile string
	root := &cobra.Command{
		Use:           serviceName,
		Short:         "Emails and texts patients about appointment events",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if configFile == "" {
				configFile = config.String("CONFIG_FILE", "")
			}
			return config.Load(configFile)
		},
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "config file (json or yaml); env vars still win")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Consume appointment events and deliver notifications",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := runtime.SignalContext(cmd.Context())
			defer stop()
			return serve(ctx)
		},
	}, &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			dbURL, err := config.RequiredString("DATABASE_URL")
			if err != nil {
				return err
			}
			pool, err := db.Open(ctx, dbURL, db.Options{MaxConns: 2})
			if err != nil {
				return fmt.Errorf("db connection failed: %w", err)
			}
			defer pool.Close()
			n, err := db.NewMigrator(pool, migrations.FS).Up(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "applied %d migration(s)\n", n)
			return nil
		},
	})

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serve(ctx context.Context) error {
	service := config.String("SERVICE_NAME", serviceName)
	logger := runtime.NewLogger(service)

	port, err := config.Port("PORT", "8085")
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
	pool, err := db.Open(ctx, dbURL, db.Options{MaxConns: 5})
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

	smtpPort, err := config.Int("SMTP_PORT", 1025)
	if err != nil {
		return err
	}
	mail := email.NewSMTPSender(email.SMTPConfig{
		Host:     config.String("SMTP_HOST", "mailpit"),
		Port:     smtpPort,
		Username: config.String("SMTP_USERNAME", ""),
		Password: config.String("SMTP_PASSWORD", ""),
		From:     config.String("SMTP_FROM", ""),
		SSL:      config.Bool("SMTP_SSL", false),
	})

	var text sms.Sender
	switch provider := strings.ToLower(config.String("SMS_PROVIDER", "none")); provider {
	case "webhook":
		text = sms.NewWebhookSender(sms.WebhookConfig{
			URL:   config.String("SMS_WEBHOOK_URL", ""),
			Token: config.String("SMS_WEBHOOK_TOKEN", ""),
		})
	case "none", "noop", "":
	default:
		return fmt.Errorf("SMS_PROVIDER must be webhook or none (got %q)", provider)
	}

	notifier := notify.New(storage.NewRepository(pool), mail, text, logger)

	brokers := config.List("KAFKA_BROKERS")
	maxAttempts, err := config.Int("KAFKA_MAX_ATTEMPTS", 5)
	if err != nil {
		return err
	}
	backoff, err := config.Duration("KAFKA_RETRY_BACKOFF", 2*time.Second)
	if err != nil {
		return err
	}
	if len(brokers) == 0 {
		logger.Warn("event consumer disabled (no kafka brokers configured)")
	} else {
		c := consumer.New(logger, consumer.Config{
			Brokers:      brokers,
			GroupID:      config.String("KAFKA_GROUP_ID", serviceName),
			Topic:        config.String("KAFKA_TOPIC", events.Topic),
			MaxAttempts:  maxAttempts,
			RetryBackoff: backoff,
		}, notifier.Handle)
		go c.Run(ctx)
	}

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
	)
	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithRecover(logger),
		httpx.WithAccessLog(logger),
	)
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           otelhttp.NewHandler(handler, "notification"),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
	return nil
}
