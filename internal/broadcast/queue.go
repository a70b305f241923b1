package broadcast

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"golang.org/x/time/rate"

	"adcaster/internal/config"
	"adcaster/internal/database"
)

// initialRetryDelay is the first backoff step when the platform gave no
// retry-after hint; subsequent steps double.
const initialRetryDelay = time.Second

// Job is one delivery unit: a destination and a snapshot of the
// advertisement taken when the cycle was dispatched.
type Job struct {
	Destination database.Destination
	Ad          database.Advertisement
}

// Queue is a bounded FIFO of delivery jobs drained by a fixed worker pool.
// Enqueue never blocks: once the buffer is full it fails with ErrQueueFull
// and the scheduler defers the remaining destinations to the next cycle.
// A global rate limiter caps outbound sends independently of worker count.
type Queue struct {
	logger  *slog.Logger
	store   database.Store
	gw      Gateway
	limiter *rate.Limiter
	jobs    chan Job

	workers       int
	retryAttempts int
	sendTimeout   time.Duration

	wg sync.WaitGroup
}

// NewQueue creates a delivery queue from the broadcast configuration.
func NewQueue(logger *slog.Logger, store database.Store, gw Gateway, cfg *config.BroadcastConfig) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		logger:        logger.With("component", "delivery_queue"),
		store:         store,
		gw:            gw,
		limiter:       rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
		jobs:          make(chan Job, cfg.QueueSize),
		workers:       cfg.Workers,
		retryAttempts: cfg.RetryAttempts,
		sendTimeout:   cfg.SendTimeout,
	}
}

// Run starts the worker pool and blocks until ctx is cancelled and all
// workers have drained their current job.
func (q *Queue) Run(ctx context.Context) error {
	q.logger.Info("Delivery queue starting", "workers", q.workers, "capacity", cap(q.jobs))

	q.wg.Add(q.workers)
	for i := 0; i < q.workers; i++ {
		idx := i
		go func() {
			defer q.wg.Done()
			defer func() {
				if r := recover(); r != nil {
					q.logger.Error("Panic in delivery worker",
						"worker", idx, "panic", r, "stack", string(debug.Stack()))
				}
			}()
			q.worker(ctx, idx)
		}()
	}

	<-ctx.Done()
	q.wg.Wait()
	q.logger.Info("Delivery queue stopped")
	return nil
}

// Enqueue adds a job without blocking. It returns ErrQueueFull once the
// buffer is at capacity.
func (q *Queue) Enqueue(job Job) error {
	select {
	case q.jobs <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// Depth returns the number of jobs currently buffered.
func (q *Queue) Depth() int {
	return len(q.jobs)
}

func (q *Queue) worker(ctx context.Context, idx int) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-q.jobs:
			q.process(ctx, idx, job)
		}
	}
}

// process delivers one job and reports the single net outcome to the
// destination store. A failure here is isolated to this job; sibling jobs
// in the same cycle are unaffected.
func (q *Queue) process(ctx context.Context, idx int, job Job) {
	chatID := job.Destination.ChatID

	err := q.deliver(ctx, job)
	if err == nil {
		if repErr := q.store.ReportDeliverySuccess(ctx, chatID); repErr != nil {
			q.logger.ErrorContext(ctx, "Failed to record delivery success",
				"worker", idx, "chat_id", chatID, "error", repErr)
		}
		q.logger.DebugContext(ctx, "Delivered advertisement",
			"worker", idx, "chat_id", chatID, "ad_id", job.Ad.ID)
		return
	}

	if errors.Is(err, context.Canceled) {
		// Shutdown, not a destination fault.
		return
	}

	suspended, repErr := q.store.ReportDeliveryFailure(ctx, chatID, err.Error())
	if repErr != nil {
		q.logger.ErrorContext(ctx, "Failed to record delivery failure",
			"worker", idx, "chat_id", chatID, "error", repErr)
		return
	}

	q.logger.WarnContext(ctx, "Delivery failed",
		"worker", idx, "chat_id", chatID, "ad_id", job.Ad.ID,
		"suspended", suspended, "error", err)
}

// deliver sends the job with bounded retry. Transient failures back off
// exponentially from initialRetryDelay, honoring an explicit retry-after
// hint when present; permanent failures abort immediately.
func (q *Queue) deliver(ctx context.Context, job Job) error {
	return retry.Do(
		func() error {
			if err := q.limiter.Wait(ctx); err != nil {
				return retry.Unrecoverable(err)
			}
			sctx, cancel := context.WithTimeout(ctx, q.sendTimeout)
			defer cancel()
			return q.gw.Send(sctx, job.Destination.ChatID, job.Ad)
		},
		retry.Context(ctx),
		retry.Attempts(uint(q.retryAttempts)),
		retry.Delay(initialRetryDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			_, transient := IsTransient(err)
			return transient
		}),
		retry.DelayType(func(n uint, err error, cfg *retry.Config) time.Duration {
			if after, ok := IsTransient(err); ok && after > 0 {
				return after
			}
			return retry.BackOffDelay(n, err, cfg)
		}),
	)
}
