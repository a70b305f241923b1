package handlers

import (
	"testing"

	"adcaster/internal/database"
)

func TestSessionsRoundTrip(t *testing.T) {
	t.Parallel()

	s := NewSessions()

	if got := s.Get(1); got.Step != stepNone {
		t.Fatalf("expected idle session, got %+v", got)
	}

	s.Set(1, session{Step: stepAdContent, AdKind: database.KindPhoto})
	got := s.Get(1)
	if got.Step != stepAdContent || got.AdKind != database.KindPhoto {
		t.Fatalf("unexpected session %+v", got)
	}

	// Other chats are unaffected.
	if other := s.Get(2); other.Step != stepNone {
		t.Fatalf("expected idle session for other chat, got %+v", other)
	}

	s.Clear(1)
	if got := s.Get(1); got.Step != stepNone {
		t.Fatalf("expected cleared session, got %+v", got)
	}
}
