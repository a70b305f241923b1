package handlers

import (
	"strconv"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"adcaster/internal/database"
)

// step identifies where the operator is in a multi-message conversation.
type step int

const (
	stepNone step = iota
	stepAdKind
	stepAdContent
	stepGroupHandle
	stepScheduleMenu
	stepInterval
	stepMaxSends
)

// session carries the in-flight conversation state for one chat.
type session struct {
	Step   step
	AdKind database.Kind
}

const (
	sessionTTL     = 10 * time.Minute
	sessionCleanup = 5 * time.Minute
)

// Sessions tracks per-chat conversation state. Entries expire on their own
// so an abandoned flow silently resets to the main menu.
type Sessions struct {
	cache *gocache.Cache
}

// NewSessions creates the conversation state store.
func NewSessions() *Sessions {
	return &Sessions{cache: gocache.New(sessionTTL, sessionCleanup)}
}

// Get returns the chat's session, defaulting to an idle one.
func (s *Sessions) Get(chatID int64) session {
	if v, ok := s.cache.Get(key(chatID)); ok {
		return v.(session)
	}
	return session{Step: stepNone}
}

// Set stores the chat's session, refreshing its expiry.
func (s *Sessions) Set(chatID int64, sess session) {
	s.cache.Set(key(chatID), sess, gocache.DefaultExpiration)
}

// Clear resets the chat back to the main menu.
func (s *Sessions) Clear(chatID int64) {
	s.cache.Delete(key(chatID))
}

func key(chatID int64) string {
	return "chat:" + strconv.FormatInt(chatID, 10)
}
