package database

import (
	"database/sql"
	"time"
)

// Kind identifies the payload type of an advertisement. It is a closed set;
// code switching on it must handle every constant.
type Kind string

const (
	KindText     Kind = "text"
	KindPhoto    Kind = "photo"
	KindVideo    Kind = "video"
	KindDocument Kind = "document"
)

// Valid reports whether k is one of the known advertisement kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindText, KindPhoto, KindVideo, KindDocument:
		return true
	}
	return false
}

// NeedsMedia reports whether the kind requires a media file reference.
func (k Kind) NeedsMedia() bool {
	return k != KindText
}

// Destination represents a Telegram group the broadcast targets, together
// with its delivery health state. Destinations are never hard-deleted; they
// are suspended (active=false) once consecutive failures cross
// FailureThreshold, preserving history.
type Destination struct {
	ID        uint      `db:"id"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`

	ChatID   int64  `db:"chat_id"`
	Title    string `db:"title"`
	Username string `db:"username"`

	Active         bool         `db:"active"`
	ErrorCount     int          `db:"error_count"`
	LastError      string       `db:"last_error"`
	LastAdminCheck sql.NullTime `db:"last_admin_check"`
}

// Advertisement is one creative payload. At most one row has Active=true;
// submitting a new advertisement deactivates all previous ones.
type Advertisement struct {
	ID        int64     `db:"id"`
	CreatedAt time.Time `db:"created_at"`

	Kind   Kind   `db:"kind"`
	Body   string `db:"body"`
	FileID string `db:"file_id"`
	Active bool   `db:"active"`
}

// Schedule is the singleton broadcast schedule row. It survives restarts so
// a process that comes back up with Running=true resumes dispatching.
type Schedule struct {
	ID              int          `db:"id"`
	IntervalSeconds int64        `db:"interval_seconds"`
	MaxSends        int          `db:"max_sends"`
	SentCount       int          `db:"sent_count"`
	Running         bool         `db:"running"`
	LastSendAt      sql.NullTime `db:"last_send_at"`
	UpdatedAt       time.Time    `db:"updated_at"`
}

// Interval returns the dispatch interval as a duration.
func (s *Schedule) Interval() time.Duration {
	return time.Duration(s.IntervalSeconds) * time.Second
}

// Exhausted reports whether the configured send ceiling has been reached.
func (s *Schedule) Exhausted() bool {
	return s.MaxSends > 0 && s.SentCount >= s.MaxSends
}
