package broadcast

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"adcaster/internal/database"
)

func newTestService(store *fakeStore, gw *fakeGateway) *Service {
	b, queue, admission := newTestBroadcaster(store, gw)
	return NewService(nil, store, gw, queue, admission, b)
}

func TestStartBroadcastPreconditions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		prepare func(*fakeStore)
		wantErr error
	}{
		{
			name:    "no advertisement",
			prepare: func(s *fakeStore) { s.addDestination(1, "g") },
			wantErr: ErrNoActiveAd,
		},
		{
			name:    "no destinations",
			prepare: func(s *fakeStore) { s.setAd(database.KindText, "hi", "") },
			wantErr: ErrNoDestinations,
		},
		{
			name: "already running",
			prepare: func(s *fakeStore) {
				s.setAd(database.KindText, "hi", "")
				s.addDestination(1, "g")
				s.sched.Running = true
			},
			wantErr: ErrAlreadyRunning,
		},
		{
			name: "ready",
			prepare: func(s *fakeStore) {
				s.setAd(database.KindText, "hi", "")
				s.addDestination(1, "g")
			},
			wantErr: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			store := newFakeStore()
			tt.prepare(store)
			svc := newTestService(store, &fakeGateway{})

			err := svc.StartBroadcast(context.Background())
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			if tt.wantErr == nil && !store.schedule().Running {
				t.Fatal("running flag must be set after a successful start")
			}
		})
	}
}

func TestStopBroadcastIsIdempotent(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	svc := newTestService(store, &fakeGateway{})

	if err := svc.StopBroadcast(context.Background()); err != nil {
		t.Fatalf("stopping a stopped broadcast must succeed: %v", err)
	}

	store.sched.Running = true
	if err := svc.StopBroadcast(context.Background()); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if store.schedule().Running {
		t.Fatal("running flag must be cleared")
	}
	if err := svc.StopBroadcast(context.Background()); err != nil {
		t.Fatalf("second stop must succeed: %v", err)
	}
}

func TestConfigureValidation(t *testing.T) {
	t.Parallel()

	short := 30 * time.Second
	ok := 5 * time.Minute
	negative := -1
	limit := 10

	tests := []struct {
		name     string
		interval *time.Duration
		maxSends *int
		wantErr  bool
	}{
		{name: "interval below a minute", interval: &short, wantErr: true},
		{name: "negative max sends", maxSends: &negative, wantErr: true},
		{name: "valid interval", interval: &ok},
		{name: "valid max sends", maxSends: &limit},
		{name: "both valid", interval: &ok, maxSends: &limit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			store := newFakeStore()
			store.sched.SentCount = 7
			svc := newTestService(store, &fakeGateway{})

			err := svc.Configure(context.Background(), tt.interval, tt.maxSends)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidValue) {
					t.Fatalf("expected ErrInvalidValue, got %v", err)
				}
				if store.schedule().IntervalSeconds != 300 {
					t.Fatal("rejected configure must not touch stored settings")
				}
				return
			}
			if err != nil {
				t.Fatalf("configure failed: %v", err)
			}
			sched := store.schedule()
			if tt.interval != nil && sched.Interval() != *tt.interval {
				t.Fatalf("interval not stored, got %s", sched.Interval())
			}
			if tt.maxSends != nil {
				if sched.MaxSends != *tt.maxSends {
					t.Fatalf("max sends not stored, got %d", sched.MaxSends)
				}
				if sched.SentCount != 0 {
					t.Fatal("changing the ceiling must reset the counter")
				}
			}
		})
	}
}

func TestConfigureWakesSleepingLoop(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	gw := &fakeGateway{}
	b, queue, admission := newTestBroadcaster(store, gw)
	svc := NewService(nil, store, gw, queue, admission, b)

	done := make(chan bool, 1)
	go func() {
		done <- b.sleep(context.Background(), time.Minute)
	}()
	time.Sleep(10 * time.Millisecond)

	interval := 2 * time.Minute
	if err := svc.Configure(context.Background(), &interval, nil); err != nil {
		t.Fatalf("configure failed: %v", err)
	}

	select {
	case ok := <-done:
		if !ok {
			t.Fatal("wake should end the sleep without reporting cancellation")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("configure must wake the loop so the new interval takes effect")
	}
}

func TestRegisterDestination(t *testing.T) {
	t.Parallel()

	t.Run("success seeds admission and stores destination", func(t *testing.T) {
		t.Parallel()

		store := newFakeStore()
		gw := &fakeGateway{}
		svc := newTestService(store, gw)

		dest, err := svc.RegisterDestination(context.Background(), "@mygroup")
		if err != nil {
			t.Fatalf("register failed: %v", err)
		}
		if dest.ChatID != 100 {
			t.Fatalf("unexpected chat id %d", dest.ChatID)
		}
		if !dest.Active {
			t.Fatal("registered destination must be active")
		}
		if len(store.touched) != 1 {
			t.Fatal("registration must stamp the admin check")
		}
	})

	t.Run("unknown handle", func(t *testing.T) {
		t.Parallel()

		store := newFakeStore()
		gw := &fakeGateway{
			resolveFn: func(string) (*ChatInfo, error) {
				return nil, &PermanentError{Err: fmt.Errorf("not found")}
			},
		}
		svc := newTestService(store, gw)

		_, err := svc.RegisterDestination(context.Background(), "@nosuch")
		if !errors.Is(err, ErrChatNotFound) {
			t.Fatalf("expected ErrChatNotFound, got %v", err)
		}
	})

	t.Run("bot not admin", func(t *testing.T) {
		t.Parallel()

		store := newFakeStore()
		gw := &fakeGateway{
			membershipFn: func(int64) (string, error) { return "member", nil },
		}
		svc := newTestService(store, gw)

		_, err := svc.RegisterDestination(context.Background(), "@mygroup")
		if !errors.Is(err, ErrNotAuthorized) {
			t.Fatalf("expected ErrNotAuthorized, got %v", err)
		}
		if len(store.dests) != 0 {
			t.Fatal("unauthorized group must not be stored")
		}
	})

	t.Run("empty handle", func(t *testing.T) {
		t.Parallel()

		svc := newTestService(newFakeStore(), &fakeGateway{})

		_, err := svc.RegisterDestination(context.Background(), "  @ ")
		if !errors.Is(err, ErrInvalidValue) {
			t.Fatalf("expected ErrInvalidValue, got %v", err)
		}
	})
}

func TestSetAdvertisementValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		kind    database.Kind
		body    string
		fileID  string
		wantErr bool
	}{
		{name: "text", kind: database.KindText, body: "hello"},
		{name: "photo with file", kind: database.KindPhoto, body: "caption", fileID: "file123"},
		{name: "video without caption", kind: database.KindVideo, fileID: "file456"},
		{name: "unknown kind", kind: database.Kind("sticker"), body: "x", wantErr: true},
		{name: "photo without file", kind: database.KindPhoto, body: "caption", wantErr: true},
		{name: "empty text", kind: database.KindText, body: "   ", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			store := newFakeStore()
			svc := newTestService(store, &fakeGateway{})

			id, err := svc.SetAdvertisement(context.Background(), tt.kind, tt.body, tt.fileID)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidValue) {
					t.Fatalf("expected ErrInvalidValue, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("set advertisement failed: %v", err)
			}
			if id == 0 {
				t.Fatal("expected a non-zero advertisement id")
			}
		})
	}
}

func TestSetAdvertisementReplacesPrevious(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	svc := newTestService(store, &fakeGateway{})

	first, err := svc.SetAdvertisement(context.Background(), database.KindText, "first", "")
	if err != nil {
		t.Fatalf("set advertisement failed: %v", err)
	}
	second, err := svc.SetAdvertisement(context.Background(), database.KindPhoto, "second", "file1")
	if err != nil {
		t.Fatalf("set advertisement failed: %v", err)
	}
	if second == first {
		t.Fatal("expected a fresh advertisement id")
	}

	ad, err := store.GetActiveAdvertisement(context.Background())
	if err != nil {
		t.Fatalf("get active failed: %v", err)
	}
	if ad.Kind != database.KindPhoto || ad.Body != "second" {
		t.Fatalf("active advertisement not replaced: %+v", ad)
	}
}

func TestStatusSnapshot(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.setAd(database.KindPhoto, "caption", "file1")
	store.addDestination(1, "a")
	store.addDestination(2, "b")
	store.sched.Running = true
	store.sched.MaxSends = 10
	store.sched.SentCount = 4

	svc := newTestService(store, &fakeGateway{})

	st, err := svc.Status(context.Background())
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if st.ActiveDestinations != 2 {
		t.Fatalf("expected 2 destinations, got %d", st.ActiveDestinations)
	}
	if !st.AdPresent || st.AdKind != database.KindPhoto {
		t.Fatalf("unexpected ad fields: %+v", st)
	}
	if !st.Running || st.SentCount != 4 || st.MaxSends != 10 {
		t.Fatalf("unexpected schedule fields: %+v", st)
	}
	if st.Interval != 5*time.Minute {
		t.Fatalf("unexpected interval %s", st.Interval)
	}
}
