// Package broadcast implements the advertisement broadcast engine: the
// dispatch loop, the bounded delivery queue, the admission cache, and the
// command facade exposed to the UI layer.
package broadcast

import (
	"context"
	"errors"
	"fmt"
	"time"

	"adcaster/internal/database"
)

// Membership statuses reported by the gateway. Only the elevated ones
// matter to the broadcast engine.
const (
	StatusAdministrator = "administrator"
	StatusCreator       = "creator"
)

// ChatInfo describes a chat resolved from a public handle.
type ChatInfo struct {
	ID       int64
	Title    string
	Username string
}

// Gateway is the capability interface to the messaging platform. Send and
// lookup errors must be classified as *TransientError or *PermanentError so
// the delivery queue can decide between retry and failure report.
type Gateway interface {
	// Send delivers the advertisement to the chat according to its kind.
	Send(ctx context.Context, chatID int64, ad database.Advertisement) error

	// MembershipStatus returns the bot's own membership status in the chat
	// (administrator, creator, member, left, ...).
	MembershipStatus(ctx context.Context, chatID int64) (string, error)

	// ResolveChat resolves a public @handle to chat identity.
	ResolveChat(ctx context.Context, handle string) (*ChatInfo, error)

	// SelfID returns the bot's own user ID.
	SelfID() int64
}

// Sentinel errors returned at the command boundary.
var (
	ErrQueueFull      = errors.New("delivery queue is full")
	ErrNoActiveAd     = errors.New("no active advertisement")
	ErrNoDestinations = errors.New("no active destinations")
	ErrAlreadyRunning = errors.New("broadcast already running")
	ErrInvalidValue   = errors.New("invalid value")
	ErrChatNotFound   = errors.New("chat not found")
	ErrNotAuthorized  = errors.New("bot is not an administrator of the chat")
)

// TransientError marks a delivery failure worth retrying: rate limiting,
// timeouts, network faults. RetryAfter carries the platform's hint when it
// supplied one, zero otherwise.
type TransientError struct {
	RetryAfter time.Duration
	Err        error
}

func (e *TransientError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("transient delivery failure (retry after %s): %v", e.RetryAfter, e.Err)
	}
	return fmt.Sprintf("transient delivery failure: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError marks a delivery failure that must not be retried: the bot
// was removed, lacks rights, or the request itself is invalid.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("permanent delivery failure: %v", e.Err)
}

func (e *PermanentError) Unwrap() error { return e.Err }

// IsTransient reports whether err is retryable and returns any retry-after
// hint carried with it.
func IsTransient(err error) (time.Duration, bool) {
	var t *TransientError
	if errors.As(err, &t) {
		return t.RetryAfter, true
	}
	return 0, false
}
