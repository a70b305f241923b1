package broadcast

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func newTestAdmission(store *fakeStore, gw *fakeGateway) *AdmissionCache {
	return NewAdmissionCache(nil, gw, store, 16, time.Hour)
}

func TestIsAdminCachesLookups(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	gw := &fakeGateway{}
	c := newTestAdmission(store, gw)

	for i := 0; i < 3; i++ {
		admin, err := c.IsAdmin(context.Background(), 1)
		if err != nil {
			t.Fatalf("IsAdmin failed: %v", err)
		}
		if !admin {
			t.Fatal("expected admin status")
		}
	}

	if got := gw.membershipLookups(); got != 1 {
		t.Fatalf("expected a single gateway lookup, got %d", got)
	}
}

func TestIsAdminCachesPermanentFailureAsNotAdmin(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	gw := &fakeGateway{
		membershipFn: func(int64) (string, error) {
			return "", &PermanentError{Err: fmt.Errorf("chat not found")}
		},
	}
	c := newTestAdmission(store, gw)

	admin, err := c.IsAdmin(context.Background(), 1)
	if err != nil {
		t.Fatalf("permanent lookup failure must not surface as an error: %v", err)
	}
	if admin {
		t.Fatal("expected not-admin on permanent failure")
	}

	// Second call must come from the cache.
	if _, err := c.IsAdmin(context.Background(), 1); err != nil {
		t.Fatalf("IsAdmin failed: %v", err)
	}
	if got := gw.membershipLookups(); got != 1 {
		t.Fatalf("expected a single gateway lookup, got %d", got)
	}
}

func TestIsAdminDoesNotCacheTransientFailure(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	gw := &fakeGateway{
		membershipFn: func(int64) (string, error) {
			return "", &TransientError{Err: fmt.Errorf("timeout")}
		},
	}
	c := newTestAdmission(store, gw)

	if _, err := c.IsAdmin(context.Background(), 1); err == nil {
		t.Fatal("expected an error on transient failure")
	}
	if _, err := c.IsAdmin(context.Background(), 1); err == nil {
		t.Fatal("expected an error on transient failure")
	}

	if got := gw.membershipLookups(); got != 2 {
		t.Fatalf("transient failures must not be cached, got %d lookups", got)
	}
	if c.Len() != 0 {
		t.Fatalf("cache should be empty, holds %d entries", c.Len())
	}
}

func TestSeedSkipsFirstLookup(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	gw := &fakeGateway{}
	c := newTestAdmission(store, gw)

	c.Seed(1, true)

	admin, err := c.IsAdmin(context.Background(), 1)
	if err != nil {
		t.Fatalf("IsAdmin failed: %v", err)
	}
	if !admin {
		t.Fatal("expected seeded admin status")
	}
	if got := gw.membershipLookups(); got != 0 {
		t.Fatalf("seeded entry must not hit the gateway, got %d lookups", got)
	}
}

func TestInvalidateForcesFreshLookup(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	gw := &fakeGateway{}
	c := newTestAdmission(store, gw)

	if _, err := c.IsAdmin(context.Background(), 1); err != nil {
		t.Fatalf("IsAdmin failed: %v", err)
	}
	c.Invalidate(1)
	if _, err := c.IsAdmin(context.Background(), 1); err != nil {
		t.Fatalf("IsAdmin failed: %v", err)
	}

	if got := gw.membershipLookups(); got != 2 {
		t.Fatalf("expected 2 lookups after invalidation, got %d", got)
	}
}

func TestCacheEvictsBeyondCapacity(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	gw := &fakeGateway{}
	c := NewAdmissionCache(nil, gw, store, 4, time.Hour)

	for i := int64(1); i <= 10; i++ {
		if _, err := c.IsAdmin(context.Background(), i); err != nil {
			t.Fatalf("IsAdmin failed: %v", err)
		}
	}

	if got := c.Len(); got > 4 {
		t.Fatalf("cache exceeded its bound: %d entries", got)
	}
}
