package broadcast

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"adcaster/internal/database"
)

// membershipTimeout bounds a single admin-status lookup at the gateway.
const membershipTimeout = 10 * time.Second

// AdmissionCache answers "is the bot still an admin of destination X"
// from a TTL-bounded, LRU-evicted cache, falling back to a gateway lookup
// on a miss. Membership lookups are rate-limited by the platform, so the
// cache keeps per-cycle admission checks from dominating cost; staleness is
// acceptable because delivery-failure accumulation is the safety net.
type AdmissionCache struct {
	logger *slog.Logger
	gw     Gateway
	store  database.Store
	lru    *expirable.LRU[int64, bool]
}

// NewAdmissionCache creates an admission cache holding at most size entries
// for at most ttl each.
func NewAdmissionCache(logger *slog.Logger, gw Gateway, store database.Store, size int, ttl time.Duration) *AdmissionCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &AdmissionCache{
		logger: logger.With("component", "admission_cache"),
		gw:     gw,
		store:  store,
		lru:    expirable.NewLRU[int64, bool](size, nil, ttl),
	}
}

// IsAdmin returns the cached admin status for the chat, querying the
// gateway on a miss. A permanent lookup failure (bot removed, chat gone) is
// cached as "not admin"; a transient failure is returned as an error and
// not cached, so the caller can skip the destination for this cycle only.
func (c *AdmissionCache) IsAdmin(ctx context.Context, chatID int64) (bool, error) {
	if admin, ok := c.lru.Get(chatID); ok {
		return admin, nil
	}

	lctx, cancel := context.WithTimeout(ctx, membershipTimeout)
	defer cancel()

	status, err := c.gw.MembershipStatus(lctx, chatID)
	if err != nil {
		var perm *PermanentError
		if errors.As(err, &perm) {
			c.logger.DebugContext(ctx, "Membership lookup failed permanently, caching as not admin",
				"chat_id", chatID, "error", err)
			c.lru.Add(chatID, false)
			return false, nil
		}
		return false, err
	}

	admin := status == StatusAdministrator || status == StatusCreator
	c.lru.Add(chatID, admin)

	// Best-effort bookkeeping; a failed stamp never blocks admission.
	if touchErr := c.store.TouchAdminCheck(ctx, chatID); touchErr != nil {
		c.logger.DebugContext(ctx, "Failed to stamp admin check", "chat_id", chatID, "error", touchErr)
	}

	return admin, nil
}

// Seed records a freshly verified admin status, used right after an
// operator registers a destination so the first cycle skips the lookup.
func (c *AdmissionCache) Seed(chatID int64, admin bool) {
	c.lru.Add(chatID, admin)
}

// Invalidate drops the cached status for the chat.
func (c *AdmissionCache) Invalidate(chatID int64) {
	c.lru.Remove(chatID)
}

// Len returns the number of cached entries.
func (c *AdmissionCache) Len() int {
	return c.lru.Len()
}
