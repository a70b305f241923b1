package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
)

// FailureThreshold is the number of consecutive delivery failures after
// which a destination is suspended.
const FailureThreshold = 5

// maxLastErrorLen bounds the stored last_error text.
const maxLastErrorLen = 256

// Store defines the data access operations for destinations,
// advertisements, and the schedule singleton. Methods accept a
// context.Context for cancellation and timeouts.
type Store interface {
	// Ping checks the database connection.
	Ping(ctx context.Context) error

	// UpsertDestination registers or refreshes a destination keyed by chat
	// ID. Re-registering an existing destination updates its title and
	// username, reactivates it, and resets its error bookkeeping.
	UpsertDestination(ctx context.Context, chatID int64, title, username string) (*Destination, error)

	// ListActiveDestinations returns all non-suspended destinations in
	// registration order.
	ListActiveDestinations(ctx context.Context) ([]Destination, error)

	// ReportDeliverySuccess resets a destination's consecutive error count
	// and clears its last error.
	ReportDeliverySuccess(ctx context.Context, chatID int64) error

	// ReportDeliveryFailure increments a destination's consecutive error
	// count and records the reason. Crossing FailureThreshold suspends the
	// destination; the return value reports whether this call did so.
	ReportDeliveryFailure(ctx context.Context, chatID int64, reason string) (suspended bool, err error)

	// DeactivateDestination suspends a destination explicitly.
	DeactivateDestination(ctx context.Context, chatID int64) error

	// TouchAdminCheck stamps the time of the latest admin-status lookup.
	TouchAdminCheck(ctx context.Context, chatID int64) error

	// SetActiveAdvertisement deactivates all advertisements and inserts the
	// new one in a single transaction, returning the new id.
	SetActiveAdvertisement(ctx context.Context, kind Kind, body, fileID string) (int64, error)

	// GetActiveAdvertisement returns the active advertisement, or nil (not
	// an error) when none has ever been submitted.
	GetActiveAdvertisement(ctx context.Context) (*Advertisement, error)

	// GetSchedule returns the schedule singleton.
	GetSchedule(ctx context.Context) (*Schedule, error)

	// SetScheduleInterval updates the dispatch interval.
	SetScheduleInterval(ctx context.Context, interval time.Duration) error

	// SetScheduleMaxSends updates the send ceiling (0 = unbounded) and
	// resets the current count, starting a fresh run.
	SetScheduleMaxSends(ctx context.Context, maxSends int) error

	// SetScheduleRunning flips the durable running flag.
	SetScheduleRunning(ctx context.Context, running bool) error

	// MarkCycleDispatched increments the per-cycle send counter and stamps
	// the dispatch time. Only the broadcast loop calls this.
	MarkCycleDispatched(ctx context.Context) error

	// RunSQLMaintenance performs database maintenance (VACUUM).
	RunSQLMaintenance(ctx context.Context) error
}

// sqlxStore implements Store using sqlx.
type sqlxStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStore creates a Store implementation backed by sqlx.
func NewStore(db *sqlx.DB, logger *slog.Logger) Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &sqlxStore{
		db:     db,
		logger: logger.With("component", "store"),
	}
}

func (s *sqlxStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *sqlxStore) UpsertDestination(ctx context.Context, chatID int64, title, username string) (*Destination, error) {
	if chatID == 0 {
		return nil, fmt.Errorf("chat_id cannot be zero")
	}

	now := time.Now().UTC()
	query := `
        INSERT INTO destinations (chat_id, title, username, active, error_count, last_error, created_at, updated_at)
        VALUES (?, ?, ?, 1, 0, '', ?, ?)
        ON CONFLICT (chat_id) DO UPDATE SET
            title = excluded.title,
            username = excluded.username,
            active = 1,
            error_count = 0,
            last_error = '',
            updated_at = excluded.updated_at;
    `
	if _, err := s.db.ExecContext(ctx, query, chatID, title, username, now, now); err != nil {
		s.logger.ErrorContext(ctx, "Error upserting destination", "chat_id", chatID, "error", err)
		return nil, fmt.Errorf("failed to upsert destination %d: %w", chatID, err)
	}

	var dest Destination
	if err := s.db.GetContext(ctx, &dest, `SELECT * FROM destinations WHERE chat_id = ?`, chatID); err != nil {
		return nil, fmt.Errorf("failed to read back destination %d: %w", chatID, err)
	}

	s.logger.DebugContext(ctx, "Destination upserted", "chat_id", chatID, "title", title)
	return &dest, nil
}

func (s *sqlxStore) ListActiveDestinations(ctx context.Context) ([]Destination, error) {
	var dests []Destination
	query := `SELECT * FROM destinations WHERE active = 1 ORDER BY id ASC`

	if err := s.db.SelectContext(ctx, &dests, query); err != nil {
		s.logger.ErrorContext(ctx, "Error listing active destinations", "error", err)
		return nil, fmt.Errorf("failed to list active destinations: %w", err)
	}

	return dests, nil
}

func (s *sqlxStore) ReportDeliverySuccess(ctx context.Context, chatID int64) error {
	query := `
        UPDATE destinations
        SET error_count = 0, last_error = '', updated_at = ?
        WHERE chat_id = ?;
    `
	if _, err := s.db.ExecContext(ctx, query, time.Now().UTC(), chatID); err != nil {
		s.logger.ErrorContext(ctx, "Error recording delivery success", "chat_id", chatID, "error", err)
		return fmt.Errorf("failed to record delivery success for %d: %w", chatID, err)
	}
	return nil
}

func (s *sqlxStore) ReportDeliveryFailure(ctx context.Context, chatID int64, reason string) (bool, error) {
	if len(reason) > maxLastErrorLen {
		reason = reason[:maxLastErrorLen]
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if tx != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
				s.logger.WarnContext(ctx, "Error rolling back transaction", "error", rollbackErr)
			}
		}
	}()

	query := `
        UPDATE destinations
        SET error_count = error_count + 1,
            last_error = ?,
            active = CASE WHEN error_count + 1 >= ? THEN 0 ELSE active END,
            updated_at = ?
        WHERE chat_id = ?;
    `
	if _, err := tx.ExecContext(ctx, query, reason, FailureThreshold, time.Now().UTC(), chatID); err != nil {
		s.logger.ErrorContext(ctx, "Error recording delivery failure", "chat_id", chatID, "error", err)
		return false, fmt.Errorf("failed to record delivery failure for %d: %w", chatID, err)
	}

	var dest Destination
	if err := tx.GetContext(ctx, &dest, `SELECT * FROM destinations WHERE chat_id = ?`, chatID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Unknown destination; nothing to suspend.
			return false, tx.Commit()
		}
		return false, fmt.Errorf("failed to read back destination %d: %w", chatID, err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}
	tx = nil

	suspended := !dest.Active && dest.ErrorCount == FailureThreshold
	if suspended {
		s.logger.WarnContext(ctx, "Destination suspended after repeated failures",
			"chat_id", chatID, "error_count", dest.ErrorCount, "last_error", reason)
	}
	return suspended, nil
}

func (s *sqlxStore) DeactivateDestination(ctx context.Context, chatID int64) error {
	query := `UPDATE destinations SET active = 0, updated_at = ? WHERE chat_id = ?`
	if _, err := s.db.ExecContext(ctx, query, time.Now().UTC(), chatID); err != nil {
		s.logger.ErrorContext(ctx, "Error deactivating destination", "chat_id", chatID, "error", err)
		return fmt.Errorf("failed to deactivate destination %d: %w", chatID, err)
	}
	s.logger.InfoContext(ctx, "Destination deactivated", "chat_id", chatID)
	return nil
}

func (s *sqlxStore) TouchAdminCheck(ctx context.Context, chatID int64) error {
	query := `UPDATE destinations SET last_admin_check = ? WHERE chat_id = ?`
	if _, err := s.db.ExecContext(ctx, query, time.Now().UTC(), chatID); err != nil {
		return fmt.Errorf("failed to stamp admin check for %d: %w", chatID, err)
	}
	return nil
}

func (s *sqlxStore) SetActiveAdvertisement(ctx context.Context, kind Kind, body, fileID string) (int64, error) {
	if !kind.Valid() {
		return 0, fmt.Errorf("unknown advertisement kind %q", kind)
	}
	if kind.NeedsMedia() && fileID == "" {
		return 0, fmt.Errorf("advertisement kind %q requires a media reference", kind)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if tx != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
				s.logger.WarnContext(ctx, "Error rolling back transaction", "error", rollbackErr)
			}
		}
	}()

	if _, err := tx.ExecContext(ctx, `UPDATE advertisements SET active = 0 WHERE active = 1`); err != nil {
		return 0, fmt.Errorf("failed to deactivate previous advertisements: %w", err)
	}

	result, err := tx.ExecContext(ctx,
		`INSERT INTO advertisements (kind, body, file_id, active, created_at) VALUES (?, ?, ?, 1, ?)`,
		kind, body, fileID, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to insert advertisement: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get advertisement id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	tx = nil

	s.logger.InfoContext(ctx, "Advertisement registered", "id", id, "kind", kind)
	return id, nil
}

func (s *sqlxStore) GetActiveAdvertisement(ctx context.Context) (*Advertisement, error) {
	var ad Advertisement
	query := `SELECT * FROM advertisements WHERE active = 1 ORDER BY id DESC LIMIT 1`

	err := s.db.GetContext(ctx, &ad, query)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// No advertisement yet; broadcast is simply not possible.
		return nil, nil
	case err != nil:
		s.logger.ErrorContext(ctx, "Error getting active advertisement", "error", err)
		return nil, fmt.Errorf("failed to get active advertisement: %w", err)
	}

	return &ad, nil
}

func (s *sqlxStore) GetSchedule(ctx context.Context) (*Schedule, error) {
	var sched Schedule
	if err := s.db.GetContext(ctx, &sched, `SELECT * FROM schedule WHERE id = 1`); err != nil {
		s.logger.ErrorContext(ctx, "Error getting schedule", "error", err)
		return nil, fmt.Errorf("failed to get schedule: %w", err)
	}
	return &sched, nil
}

func (s *sqlxStore) SetScheduleInterval(ctx context.Context, interval time.Duration) error {
	if interval < time.Second {
		return fmt.Errorf("interval must be at least one second, got %s", interval)
	}
	query := `UPDATE schedule SET interval_seconds = ?, updated_at = ? WHERE id = 1`
	if _, err := s.db.ExecContext(ctx, query, int64(interval/time.Second), time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to set schedule interval: %w", err)
	}
	s.logger.InfoContext(ctx, "Schedule interval updated", "interval", interval)
	return nil
}

func (s *sqlxStore) SetScheduleMaxSends(ctx context.Context, maxSends int) error {
	if maxSends < 0 {
		return fmt.Errorf("max sends cannot be negative, got %d", maxSends)
	}
	query := `UPDATE schedule SET max_sends = ?, sent_count = 0, updated_at = ? WHERE id = 1`
	if _, err := s.db.ExecContext(ctx, query, maxSends, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to set schedule max sends: %w", err)
	}
	s.logger.InfoContext(ctx, "Schedule send ceiling updated", "max_sends", maxSends)
	return nil
}

func (s *sqlxStore) SetScheduleRunning(ctx context.Context, running bool) error {
	query := `UPDATE schedule SET running = ?, updated_at = ? WHERE id = 1`
	if _, err := s.db.ExecContext(ctx, query, running, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to set schedule running flag: %w", err)
	}
	return nil
}

func (s *sqlxStore) MarkCycleDispatched(ctx context.Context) error {
	now := time.Now().UTC()
	query := `UPDATE schedule SET sent_count = sent_count + 1, last_send_at = ?, updated_at = ? WHERE id = 1`
	if _, err := s.db.ExecContext(ctx, query, now, now); err != nil {
		return fmt.Errorf("failed to mark cycle dispatched: %w", err)
	}
	return nil
}

// RunSQLMaintenance executes VACUUM; SQLite requires it outside a transaction.
func (s *sqlxStore) RunSQLMaintenance(ctx context.Context) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	s.logger.InfoContext(ctx, "Starting database maintenance (VACUUM)")
	if _, err := s.db.ExecContext(ctx, "VACUUM;"); err != nil {
		s.logger.ErrorContext(ctx, "Database maintenance failed", "error", err)
		return fmt.Errorf("failed to execute VACUUM: %w", err)
	}
	s.logger.InfoContext(ctx, "Database maintenance completed")
	return nil
}
