package submission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/requestping/requestping/internal/metrics"
	"github.com/requestping/requestping/internal/model"
)

const (
	// DefaultBatchSize is the number of requests resubmitted per sweep.
	DefaultBatchSize = 20
	// DefaultPollInterval is the time between sweeps.
	DefaultPollInterval = 30 * time.Second
	// DefaultLease hides a claimed request from other sweepers while it is
	// being submitted.
	DefaultLease = 5 * time.Minute
)

// Queue hands out requests due for another submission attempt.
type Queue interface {
	// ClaimResubmittable returns pending or failed requests whose
	// next_attempt_at has passed and pushes it forward by lease.
	ClaimResubmittable(ctx context.Context, limit, maxAttempts int, lease time.Duration) ([]*model.Request, error)
}

// Submitter runs one submission attempt.
type Submitter interface {
	Submit(ctx context.Context, req *model.Request) (Result, error)
}

// Worker periodically resubmits requests whose earlier attempt failed.
type Worker struct {
	queue        Queue
	submitter    Submitter
	logger       *slog.Logger
	metrics      metrics.Recorder
	batchSize    int
	maxAttempts  int
	pollInterval time.Duration
	lease        time.Duration
	started      bool
}

// NewWorker creates a resubmission worker.
func NewWorker(queue Queue, submitter Submitter, logger *slog.Logger, recorder metrics.Recorder) *Worker {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Worker{
		queue:        queue,
		submitter:    submitter,
		logger:       logger.With("component", "submission.worker"),
		metrics:      recorder,
		batchSize:    DefaultBatchSize,
		maxAttempts:  DefaultMaxAttempts,
		pollInterval: DefaultPollInterval,
		lease:        DefaultLease,
	}
}

// Run starts the worker loop. Blocks until context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	if w.started {
		return errors.New("worker already started")
	}
	w.started = true

	w.logger.Info("resubmission worker started",
		"interval", w.pollInterval.String(),
		"batch_size", w.batchSize,
	)

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("resubmission worker stopping")
			return nil
		case <-ticker.C:
			if _, err := w.ProcessOnce(ctx); err != nil {
				if errors.Is(err, context.Canceled) {
					return nil
				}
				w.logger.Error("resubmission sweep failed", "error", err)
			}
		}
	}
}

// SweepStats summarizes one sweep.
type SweepStats struct {
	Claimed   int
	Submitted int
	Failed    int
	Skipped   int
}

// ProcessOnce claims one batch and attempts each request once.
func (w *Worker) ProcessOnce(ctx context.Context) (SweepStats, error) {
	var stats SweepStats

	requests, err := w.queue.ClaimResubmittable(ctx, w.batchSize, w.maxAttempts, w.lease)
	if err != nil {
		return stats, fmt.Errorf("claim resubmittable: %w", err)
	}
	stats.Claimed = len(requests)
	w.metrics.SetResubmitBacklog(len(requests))

	for _, req := range requests {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}

		result, err := w.submitter.Submit(ctx, req)
		if errors.Is(err, ErrAlreadySubmitted) || errors.Is(err, ErrSubmitInProgress) {
			w.logger.Debug("resubmission skipped", "request_id", req.ID, "reason", err)
			stats.Skipped++
			continue
		}
		if err != nil {
			w.logger.Warn("resubmission not recorded",
				"request_id", req.ID,
				"error", err,
			)
		}
		if result.OK() {
			stats.Submitted++
		} else {
			stats.Failed++
		}
	}

	if stats.Claimed > 0 {
		w.logger.Info("resubmission sweep finished",
			"claimed", stats.Claimed,
			"submitted", stats.Submitted,
			"failed", stats.Failed,
			"skipped", stats.Skipped,
		)
	}
	return stats, nil
}

// SetBatchSize overrides the default batch size.
func (w *Worker) SetBatchSize(size int) {
	if size > 0 {
		w.batchSize = size
	}
}

// SetPollInterval overrides the default poll interval.
func (w *Worker) SetPollInterval(interval time.Duration) {
	if interval > 0 {
		w.pollInterval = interval
	}
}

// SetMaxAttempts overrides how many attempts a request gets.
func (w *Worker) SetMaxAttempts(n int) {
	if n > 0 {
		w.maxAttempts = n
	}
}
