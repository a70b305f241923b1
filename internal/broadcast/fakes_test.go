package broadcast

import (
	"context"
	"sync"
	"time"

	"adcaster/internal/config"
	"adcaster/internal/database"
)

// fakeStore is an in-memory database.Store for engine tests.
type fakeStore struct {
	mu sync.Mutex

	dests map[int64]*database.Destination
	ad    *database.Advertisement
	sched database.Schedule

	successes []int64
	failures  []failureReport
	touched   []int64
	cycles    int
}

type failureReport struct {
	chatID int64
	reason string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		dests: make(map[int64]*database.Destination),
		sched: database.Schedule{ID: 1, IntervalSeconds: 300},
	}
}

func (f *fakeStore) addDestination(chatID int64, title string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dests[chatID] = &database.Destination{
		ChatID: chatID,
		Title:  title,
		Active: true,
	}
}

func (f *fakeStore) setAd(kind database.Kind, body, fileID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ad = &database.Advertisement{ID: 1, Kind: kind, Body: body, FileID: fileID, Active: true}
}

func (f *fakeStore) Ping(context.Context) error { return nil }

func (f *fakeStore) UpsertDestination(_ context.Context, chatID int64, title, username string) (*database.Destination, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dests[chatID] = &database.Destination{
		ChatID:   chatID,
		Title:    title,
		Username: username,
		Active:   true,
	}
	return f.dests[chatID], nil
}

func (f *fakeStore) ListActiveDestinations(context.Context) ([]database.Destination, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []database.Destination
	for _, d := range f.dests {
		if d.Active {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (f *fakeStore) ReportDeliverySuccess(_ context.Context, chatID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.successes = append(f.successes, chatID)
	if d, ok := f.dests[chatID]; ok {
		d.ErrorCount = 0
		d.LastError = ""
	}
	return nil
}

func (f *fakeStore) ReportDeliveryFailure(_ context.Context, chatID int64, reason string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = append(f.failures, failureReport{chatID: chatID, reason: reason})
	d, ok := f.dests[chatID]
	if !ok {
		return false, nil
	}
	d.ErrorCount++
	d.LastError = reason
	if d.ErrorCount >= database.FailureThreshold && d.Active {
		d.Active = false
		return true, nil
	}
	return false, nil
}

func (f *fakeStore) DeactivateDestination(_ context.Context, chatID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if d, ok := f.dests[chatID]; ok {
		d.Active = false
	}
	return nil
}

func (f *fakeStore) TouchAdminCheck(_ context.Context, chatID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.touched = append(f.touched, chatID)
	return nil
}

func (f *fakeStore) SetActiveAdvertisement(_ context.Context, kind database.Kind, body, fileID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := int64(1)
	if f.ad != nil {
		id = f.ad.ID + 1
	}
	f.ad = &database.Advertisement{ID: id, Kind: kind, Body: body, FileID: fileID, Active: true}
	return id, nil
}

func (f *fakeStore) GetActiveAdvertisement(context.Context) (*database.Advertisement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ad == nil {
		return nil, nil
	}
	ad := *f.ad
	return &ad, nil
}

func (f *fakeStore) GetSchedule(context.Context) (*database.Schedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sched := f.sched
	return &sched, nil
}

func (f *fakeStore) SetScheduleInterval(_ context.Context, interval time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sched.IntervalSeconds = int64(interval / time.Second)
	return nil
}

func (f *fakeStore) SetScheduleMaxSends(_ context.Context, maxSends int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sched.MaxSends = maxSends
	f.sched.SentCount = 0
	return nil
}

func (f *fakeStore) SetScheduleRunning(_ context.Context, running bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sched.Running = running
	return nil
}

func (f *fakeStore) MarkCycleDispatched(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cycles++
	f.sched.SentCount++
	return nil
}

func (f *fakeStore) RunSQLMaintenance(context.Context) error { return nil }

func (f *fakeStore) schedule() database.Schedule {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sched
}

func (f *fakeStore) cycleCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cycles
}

func (f *fakeStore) failureCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.failures)
}

func (f *fakeStore) successCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.successes)
}

// fakeGateway is a scriptable Gateway for engine tests. Unset function
// fields default to success.
type fakeGateway struct {
	mu sync.Mutex

	sendFn       func(chatID int64, ad database.Advertisement) error
	membershipFn func(chatID int64) (string, error)
	resolveFn    func(handle string) (*ChatInfo, error)

	sendCalls       int
	membershipCalls int
}

func (g *fakeGateway) Send(_ context.Context, chatID int64, ad database.Advertisement) error {
	g.mu.Lock()
	g.sendCalls++
	fn := g.sendFn
	g.mu.Unlock()
	if fn == nil {
		return nil
	}
	return fn(chatID, ad)
}

func (g *fakeGateway) MembershipStatus(_ context.Context, chatID int64) (string, error) {
	g.mu.Lock()
	g.membershipCalls++
	fn := g.membershipFn
	g.mu.Unlock()
	if fn == nil {
		return StatusAdministrator, nil
	}
	return fn(chatID)
}

func (g *fakeGateway) ResolveChat(_ context.Context, handle string) (*ChatInfo, error) {
	g.mu.Lock()
	fn := g.resolveFn
	g.mu.Unlock()
	if fn == nil {
		return &ChatInfo{ID: 100, Title: "Test Group", Username: handle}, nil
	}
	return fn(handle)
}

func (g *fakeGateway) SelfID() int64 { return 42 }

func (g *fakeGateway) sends() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.sendCalls
}

func (g *fakeGateway) membershipLookups() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.membershipCalls
}

// testBroadcastConfig returns a configuration tuned for fast tests.
func testBroadcastConfig() *config.BroadcastConfig {
	return &config.BroadcastConfig{
		Workers:            2,
		QueueSize:          8,
		RatePerSec:         1000,
		RetryAttempts:      3,
		SendTimeout:        time.Second,
		AdmissionTTL:       time.Hour,
		AdmissionCacheSize: 16,
		IdlePoll:           5 * time.Second,
		EmptyWait:          30 * time.Second,
		ErrorCooldown:      time.Minute,
	}
}
