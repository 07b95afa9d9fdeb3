package booking

import (
	"context"
	"log/slog"
	"time"
)

type ExpiryConfig struct {
	Interval  time.Duration
	BatchSize int
}

// ExpiryWorker periodically expires requests nobody answered in time.
type ExpiryWorker struct {
	svc    *Service
	logger *slog.Logger
	cfg    ExpiryConfig
}

func NewExpiryWorker(svc *Service, logger *slog.Logger, cfg ExpiryConfig) *ExpiryWorker {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &ExpiryWorker{svc: svc, logger: logger, cfg: cfg}
}

func (w *ExpiryWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.drain(ctx)
		}
	}
}

func (w *ExpiryWorker) drain(ctx context.Context) {
	for ctx.Err() == nil {
		n, err := w.svc.ExpireStale(ctx, w.cfg.BatchSize)
		if err != nil {
			w.logger.Error("expire requests failed", "error", err)
			return
		}
		if n > 0 {
			w.logger.Info("appointment requests expired", "count", n)
		}
		if n < w.cfg.BatchSize {
			return
		}
	}
}
