package broadcast

import (
	"context"
	"log/slog"
	"time"

	"adcaster/internal/config"
	"adcaster/internal/database"
)

// state is the broadcast loop's position in its cycle.
type state int

const (
	stateIdle state = iota
	stateDispatching
	stateWaiting
)

func (s state) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateDispatching:
		return "dispatching"
	case stateWaiting:
		return "waiting"
	}
	return "unknown"
}

// Broadcaster runs the dispatch loop: on each cycle it reads the durable
// schedule, fetches the active advertisement and healthy destinations,
// enqueues one delivery job per destination, and advances the per-cycle
// counter. The loop never terminates on its own errors; only context
// cancellation ends it. Start/stop take effect through the schedule row's
// running flag, which also survives restarts (resume semantics).
type Broadcaster struct {
	logger    *slog.Logger
	store     database.Store
	queue     *Queue
	admission *AdmissionCache
	cfg       *config.BroadcastConfig

	// wake is poked by Service.StartBroadcast/StopBroadcast so the loop
	// re-reads the schedule promptly instead of finishing its sleep.
	wake chan struct{}

	state state
}

// NewBroadcaster creates the dispatch loop.
func NewBroadcaster(logger *slog.Logger, store database.Store, queue *Queue, admission *AdmissionCache, cfg *config.BroadcastConfig) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		logger:    logger.With("component", "broadcaster"),
		store:     store,
		queue:     queue,
		admission: admission,
		cfg:       cfg,
		wake:      make(chan struct{}, 1),
		state:     stateIdle,
	}
}

// Wake nudges the loop out of its current sleep so operator commands take
// effect without waiting out the interval.
func (b *Broadcaster) Wake() {
	select {
	case b.wake <- struct{}{}:
	default:
	}
}

// Run executes the loop until ctx is cancelled.
func (b *Broadcaster) Run(ctx context.Context) error {
	b.logger.Info("Broadcast loop starting",
		"idle_poll", b.cfg.IdlePoll, "empty_wait", b.cfg.EmptyWait, "error_cooldown", b.cfg.ErrorCooldown)

	for {
		if err := ctx.Err(); err != nil {
			b.logger.Info("Broadcast loop stopped")
			return err
		}

		delay := b.step(ctx)
		if !b.sleep(ctx, delay) {
			b.logger.Info("Broadcast loop stopped")
			return ctx.Err()
		}
	}
}

// step runs one iteration and returns how long to sleep before the next.
// Any panic or error inside the iteration is contained here so the loop
// itself survives everything short of cancellation.
func (b *Broadcaster) step(ctx context.Context) (delay time.Duration) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Panic in broadcast cycle, backing off", "panic", r)
			delay = b.cfg.ErrorCooldown
		}
	}()

	sched, err := b.store.GetSchedule(ctx)
	if err != nil {
		b.logger.ErrorContext(ctx, "Failed to read schedule, backing off", "error", err)
		return b.cfg.ErrorCooldown
	}

	if !sched.Running {
		b.transition(stateIdle)
		return b.cfg.IdlePoll
	}

	if sched.Exhausted() {
		if err := b.store.SetScheduleRunning(ctx, false); err != nil {
			b.logger.ErrorContext(ctx, "Failed to clear running flag on auto-stop", "error", err)
			return b.cfg.ErrorCooldown
		}
		b.logger.InfoContext(ctx, "Send ceiling reached, broadcast auto-stopped",
			"sent_count", sched.SentCount, "max_sends", sched.MaxSends)
		b.transition(stateIdle)
		return 0
	}

	ad, err := b.store.GetActiveAdvertisement(ctx)
	if err != nil {
		b.logger.ErrorContext(ctx, "Failed to read active advertisement, backing off", "error", err)
		return b.cfg.ErrorCooldown
	}
	if ad == nil {
		b.logger.WarnContext(ctx, "Broadcast running but no advertisement registered")
		return b.cfg.EmptyWait
	}

	dests, err := b.store.ListActiveDestinations(ctx)
	if err != nil {
		b.logger.ErrorContext(ctx, "Failed to list destinations, backing off", "error", err)
		return b.cfg.ErrorCooldown
	}
	if len(dests) == 0 {
		b.logger.WarnContext(ctx, "Broadcast running but no active destinations")
		return b.cfg.EmptyWait
	}

	b.transition(stateDispatching)
	enqueued, skipped, deferred := b.dispatch(ctx, ad, dests)

	// One broadcast round equals one count unit regardless of how many
	// destinations it covered.
	if err := b.store.MarkCycleDispatched(ctx); err != nil {
		b.logger.ErrorContext(ctx, "Failed to advance cycle counter, backing off", "error", err)
		return b.cfg.ErrorCooldown
	}

	b.logger.InfoContext(ctx, "Broadcast cycle dispatched",
		"ad_id", ad.ID, "destinations", len(dests),
		"enqueued", enqueued, "skipped_not_admin", skipped, "deferred_queue_full", deferred,
		"cycle", sched.SentCount+1, "max_sends", sched.MaxSends)

	b.transition(stateWaiting)
	return sched.Interval()
}

// dispatch enqueues one job per destination, skipping destinations the bot
// no longer administers and deferring the rest of the list when the queue
// fills up.
func (b *Broadcaster) dispatch(ctx context.Context, ad *database.Advertisement, dests []database.Destination) (enqueued, skipped, deferred int) {
	for _, dest := range dests {
		admin, err := b.admission.IsAdmin(ctx, dest.ChatID)
		if err != nil {
			// Transient lookup failure: neither a send attempt nor a
			// failure report, just try again next cycle.
			b.logger.WarnContext(ctx, "Admission check failed, skipping destination this cycle",
				"chat_id", dest.ChatID, "error", err)
			continue
		}
		if !admin {
			if _, repErr := b.store.ReportDeliveryFailure(ctx, dest.ChatID, "not admin"); repErr != nil {
				b.logger.ErrorContext(ctx, "Failed to report admission failure",
					"chat_id", dest.ChatID, "error", repErr)
			}
			skipped++
			continue
		}

		if err := b.queue.Enqueue(Job{Destination: dest, Ad: *ad}); err != nil {
			b.logger.WarnContext(ctx, "Delivery queue full, deferring destination to next cycle",
				"chat_id", dest.ChatID, "queue_depth", b.queue.Depth())
			deferred++
			continue
		}
		enqueued++
	}
	return enqueued, skipped, deferred
}

// sleep waits for d, returning early (true) on a wake poke and false once
// ctx is cancelled. A non-positive d yields immediately.
func (b *Broadcaster) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-b.wake:
		return true
	case <-timer.C:
		return true
	}
}

func (b *Broadcaster) transition(next state) {
	if b.state == next {
		return
	}
	b.logger.Debug("Broadcast loop state change", "from", b.state.String(), "to", next.String())
	b.state = next
}
