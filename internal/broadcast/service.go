package broadcast

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"adcaster/internal/database"
)

// minInterval is the smallest dispatch interval an operator may configure.
const minInterval = time.Minute

// Status is the operator-facing snapshot of the broadcast engine.
type Status struct {
	ActiveDestinations int
	AdPresent          bool
	AdKind             database.Kind
	Interval           time.Duration
	SentCount          int
	MaxSends           int
	Running            bool
	QueueDepth         int
}

// Service is the command boundary consumed by the UI layer. All operations
// return promptly; broadcast progress is observable only via Status.
type Service struct {
	logger      *slog.Logger
	store       database.Store
	gw          Gateway
	queue       *Queue
	admission   *AdmissionCache
	broadcaster *Broadcaster
}

// NewService wires the command facade over the engine's components.
func NewService(logger *slog.Logger, store database.Store, gw Gateway, queue *Queue, admission *AdmissionCache, broadcaster *Broadcaster) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		logger:      logger.With("component", "broadcast_service"),
		store:       store,
		gw:          gw,
		queue:       queue,
		admission:   admission,
		broadcaster: broadcaster,
	}
}

// RegisterDestination resolves a public @handle, verifies the bot holds
// elevated privileges there, and registers (or refreshes) the destination.
// The privilege check happens here, once, so the store's upsert never has
// to re-query the gateway.
func (s *Service) RegisterDestination(ctx context.Context, handle string) (*database.Destination, error) {
	handle = strings.TrimPrefix(strings.TrimSpace(handle), "@")
	if handle == "" {
		return nil, fmt.Errorf("%w: empty group handle", ErrInvalidValue)
	}

	info, err := s.gw.ResolveChat(ctx, handle)
	if err != nil {
		var perm *PermanentError
		if errors.As(err, &perm) {
			return nil, fmt.Errorf("%w: @%s", ErrChatNotFound, handle)
		}
		return nil, fmt.Errorf("failed to resolve @%s: %w", handle, err)
	}

	status, err := s.gw.MembershipStatus(ctx, info.ID)
	if err != nil {
		var perm *PermanentError
		if errors.As(err, &perm) {
			return nil, fmt.Errorf("%w: @%s", ErrNotAuthorized, handle)
		}
		return nil, fmt.Errorf("failed to check membership in @%s: %w", handle, err)
	}
	if status != StatusAdministrator && status != StatusCreator {
		return nil, fmt.Errorf("%w: status is %q in @%s", ErrNotAuthorized, status, handle)
	}

	dest, err := s.store.UpsertDestination(ctx, info.ID, info.Title, info.Username)
	if err != nil {
		return nil, err
	}

	s.admission.Seed(info.ID, true)
	if err := s.store.TouchAdminCheck(ctx, info.ID); err != nil {
		s.logger.DebugContext(ctx, "Failed to stamp admin check", "chat_id", info.ID, "error", err)
	}

	s.logger.InfoContext(ctx, "Destination registered",
		"chat_id", dest.ChatID, "title", dest.Title, "username", dest.Username)
	return dest, nil
}

// RemoveDestination suspends a destination explicitly and forgets its
// cached admission status.
func (s *Service) RemoveDestination(ctx context.Context, chatID int64) error {
	if err := s.store.DeactivateDestination(ctx, chatID); err != nil {
		return err
	}
	s.admission.Invalidate(chatID)
	return nil
}

// SetAdvertisement registers a new creative, atomically replacing the
// previous active one.
func (s *Service) SetAdvertisement(ctx context.Context, kind database.Kind, body, fileID string) (int64, error) {
	if !kind.Valid() {
		return 0, fmt.Errorf("%w: unknown advertisement kind %q", ErrInvalidValue, kind)
	}
	if kind.NeedsMedia() && fileID == "" {
		return 0, fmt.Errorf("%w: %s advertisement requires media", ErrInvalidValue, kind)
	}
	if kind == database.KindText && strings.TrimSpace(body) == "" {
		return 0, fmt.Errorf("%w: text advertisement requires a body", ErrInvalidValue)
	}

	return s.store.SetActiveAdvertisement(ctx, kind, body, fileID)
}

// StartBroadcast validates preconditions and flips the durable running
// flag. It returns immediately; the loop picks the flag up on its next
// poll, which Wake makes prompt.
func (s *Service) StartBroadcast(ctx context.Context) error {
	sched, err := s.store.GetSchedule(ctx)
	if err != nil {
		return err
	}
	if sched.Running {
		return ErrAlreadyRunning
	}

	ad, err := s.store.GetActiveAdvertisement(ctx)
	if err != nil {
		return err
	}
	if ad == nil {
		return ErrNoActiveAd
	}

	dests, err := s.store.ListActiveDestinations(ctx)
	if err != nil {
		return err
	}
	if len(dests) == 0 {
		return ErrNoDestinations
	}

	if err := s.store.SetScheduleRunning(ctx, true); err != nil {
		return err
	}
	s.broadcaster.Wake()

	s.logger.InfoContext(ctx, "Broadcast started",
		"interval", sched.Interval(), "max_sends", sched.MaxSends, "destinations", len(dests))
	return nil
}

// StopBroadcast clears the running flag. Stopping an already-stopped
// broadcast is a no-op, not an error.
func (s *Service) StopBroadcast(ctx context.Context) error {
	if err := s.store.SetScheduleRunning(ctx, false); err != nil {
		return err
	}
	s.broadcaster.Wake()
	s.logger.InfoContext(ctx, "Broadcast stopped")
	return nil
}

// Configure updates the dispatch interval and/or the send ceiling. Invalid
// values are rejected without touching the stored settings; changing the
// ceiling resets the current count.
func (s *Service) Configure(ctx context.Context, interval *time.Duration, maxSends *int) error {
	if interval != nil && *interval < minInterval {
		return fmt.Errorf("%w: interval %s is below the %s minimum", ErrInvalidValue, *interval, minInterval)
	}
	if maxSends != nil && *maxSends < 0 {
		return fmt.Errorf("%w: max sends cannot be negative", ErrInvalidValue)
	}

	if interval != nil {
		if err := s.store.SetScheduleInterval(ctx, *interval); err != nil {
			return err
		}
	}
	if maxSends != nil {
		if err := s.store.SetScheduleMaxSends(ctx, *maxSends); err != nil {
			return err
		}
	}
	// A running loop may be sleeping out the old interval.
	s.broadcaster.Wake()
	return nil
}

// Status reports the engine's last-known-good state.
func (s *Service) Status(ctx context.Context) (*Status, error) {
	sched, err := s.store.GetSchedule(ctx)
	if err != nil {
		return nil, err
	}

	ad, err := s.store.GetActiveAdvertisement(ctx)
	if err != nil {
		return nil, err
	}

	dests, err := s.store.ListActiveDestinations(ctx)
	if err != nil {
		return nil, err
	}

	st := &Status{
		ActiveDestinations: len(dests),
		AdPresent:          ad != nil,
		Interval:           sched.Interval(),
		SentCount:          sched.SentCount,
		MaxSends:           sched.MaxSends,
		Running:            sched.Running,
		QueueDepth:         s.queue.Depth(),
	}
	if ad != nil {
		st.AdKind = ad.Kind
	}
	return st, nil
}

// ListDestinations returns the active destinations for display.
func (s *Service) ListDestinations(ctx context.Context) ([]database.Destination, error) {
	return s.store.ListActiveDestinations(ctx)
}
