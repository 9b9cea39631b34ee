package binding

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/slotline/internal/provider"
)

// fakeConnection is a scriptable provider connection.
type fakeConnection struct {
	mu        sync.Mutex
	created   []provider.FeaturePair
	removed   []provider.FeaturePair
	observers map[provider.FeaturePair]provider.StatusObserver
	deathFns  []func()
	fsetFns   []func(provider.FeatureSet)
	enabled   map[int]bool
	closed    bool
	createErr error
	seq       int
}

func newFakeConnection() *fakeConnection {
	return &fakeConnection{
		observers: make(map[provider.FeaturePair]provider.StatusObserver),
		enabled:   make(map[int]bool),
	}
}

func (f *fakeConnection) CreateFeature(slot int, feature provider.Feature, observer provider.StatusObserver) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return "", f.createErr
	}
	pair := provider.FeaturePair{Slot: slot, Feature: feature}
	f.created = append(f.created, pair)
	f.observers[pair] = observer
	f.seq++
	return fmt.Sprintf("remote-%d", f.seq), nil
}

func (f *fakeConnection) RemoveFeature(slot int, feature provider.Feature) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	pair := provider.FeaturePair{Slot: slot, Feature: feature}
	f.removed = append(f.removed, pair)
	delete(f.observers, pair)
	return nil
}

func (f *fakeConnection) SetSlotEnabled(slot int, enabled bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enabled[slot] = enabled
	return nil
}

func (f *fakeConnection) SubscribeFeatureSetChanged(fn func(provider.FeatureSet)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fsetFns = append(f.fsetFns, fn)
	return func() {}
}

func (f *fakeConnection) SubscribeDeath(fn func()) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deathFns = append(f.deathFns, fn)
	return func() {}
}

func (f *fakeConnection) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConnection) die() {
	f.mu.Lock()
	fns := append([]func(){}, f.deathFns...)
	f.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (f *fakeConnection) pushStatus(pair provider.FeaturePair, status provider.FeatureStatus) {
	f.mu.Lock()
	observer := f.observers[pair]
	f.mu.Unlock()
	if observer != nil {
		observer(status)
	}
}

func (f *fakeConnection) createdPairs() []provider.FeaturePair {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]provider.FeaturePair{}, f.created...)
}

func (f *fakeConnection) removedPairs() []provider.FeaturePair {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]provider.FeaturePair{}, f.removed...)
}

func (f *fakeConnection) slotEnabled(slot int) (enabled, seen bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	enabled, seen = f.enabled[slot]
	return enabled, seen
}

func (f *fakeConnection) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// fakeStrategy records connect attempts; tests deliver outcomes manually.
type fakeStrategy struct {
	mu        sync.Mutex
	events    []provider.ConnectionEvents
	rejectErr error
}

func (s *fakeStrategy) InterfaceName() string { return "test" }

func (s *fakeStrategy) Connect(pkg string, events provider.ConnectionEvents) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rejectErr != nil {
		return nil, s.rejectErr
	}
	s.events = append(s.events, events)
	return func() {}, nil
}

func (s *fakeStrategy) QueryFeatures(_ context.Context, _ string) (provider.FeatureSet, error) {
	return provider.NewFeatureSet(), nil
}

// accept delivers a live connection for the most recent connect attempt.
func (s *fakeStrategy) accept() *fakeConnection {
	s.mu.Lock()
	events := s.events[len(s.events)-1]
	s.mu.Unlock()
	conn := newFakeConnection()
	events.OnConnected(conn)
	return conn
}

func (s *fakeStrategy) attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

// fail reports the most recent connect attempt as dead without ever
// delivering a connection, as a transport does when establishment
// fails asynchronously.
func (s *fakeStrategy) fail() {
	s.mu.Lock()
	events := s.events[len(s.events)-1]
	s.mu.Unlock()
	events.OnDied()
}

// recorder captures notifier callbacks.
type recorder struct {
	mu       sync.Mutex
	created  []*RemoteFeature
	removed  []provider.FeaturePair
	statuses []provider.FeatureStatus
	states   []State
	fsets    []provider.FeatureSet
}

func (r *recorder) FeatureCreated(f *RemoteFeature) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.created = append(r.created, f)
}

func (r *recorder) FeatureRemoved(_ string, pair provider.FeaturePair) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removed = append(r.removed, pair)
}

func (r *recorder) FeatureStatusChanged(_ *RemoteFeature, status provider.FeatureStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, status)
}

func (r *recorder) StateChanged(_ string, _, to State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, to)
}

func (r *recorder) ProviderFeatureSetChanged(_ string, features provider.FeatureSet) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fsets = append(r.fsets, features)
}

func (r *recorder) createdCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.created)
}

func (r *recorder) removedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.removed)
}

func pairs(specs ...string) provider.FeatureSet {
	fs := provider.NewFeatureSet()
	for _, s := range specs {
		pair, err := provider.ParseFeaturePair(s)
		if err != nil {
			panic(err)
		}
		fs.Add(pair)
	}
	return fs
}

func newTestController(t *testing.T, strategy provider.Strategy, notifier Notifier) *Controller {
	t.Helper()
	c, err := NewController(Options{
		Package:      "com.example.provider",
		Strategy:     strategy,
		Notifier:     notifier,
		InitialDelay: 5 * time.Millisecond,
		Multiplier:   2,
		MaxDelay:     20 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	return c
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestNewControllerValidation(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		wantErr error
	}{
		{
			name:    "missing package",
			opts:    Options{Strategy: &fakeStrategy{}, Notifier: &recorder{}},
			wantErr: ErrNoPackage,
		},
		{
			name:    "missing strategy",
			opts:    Options{Package: "com.example.provider", Notifier: &recorder{}},
			wantErr: ErrNoStrategy,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewController(tt.opts)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("NewController() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestBindCreatesFeatures(t *testing.T) {
	strategy := &fakeStrategy{}
	rec := &recorder{}
	c := newTestController(t, strategy, rec)

	if err := c.Bind(pairs("0/mmtel", "0/rcs", "0/emergency")); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if got := c.State(); got != StateBinding {
		t.Fatalf("state = %v, want binding", got)
	}

	conn := strategy.accept()

	if got := c.State(); got != StateBound {
		t.Fatalf("state = %v, want bound", got)
	}
	created := conn.createdPairs()
	if len(created) != 2 {
		t.Fatalf("created %d features, want 2: %v", len(created), created)
	}
	for _, pair := range created {
		if pair.Feature == provider.FeatureEmergency {
			t.Error("emergency must not be created on the connection")
		}
	}
	if rec.createdCount() != 2 {
		t.Errorf("notifier saw %d creations, want 2", rec.createdCount())
	}
	if c.LiveCount() != 2 {
		t.Errorf("LiveCount() = %d, want 2", c.LiveCount())
	}
}

func TestBindWithoutBindableFeaturesDefers(t *testing.T) {
	strategy := &fakeStrategy{}
	c := newTestController(t, strategy, &recorder{})

	if err := c.Bind(pairs("0/emergency")); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if got := c.State(); got != StateUnbound {
		t.Fatalf("state = %v, want unbound", got)
	}
	if strategy.attempts() != 0 {
		t.Errorf("connect attempts = %d, want 0", strategy.attempts())
	}

	// A later update with a bindable feature triggers the connect.
	c.Update(pairs("0/emergency", "0/mmtel"))
	if strategy.attempts() != 1 {
		t.Errorf("connect attempts = %d, want 1", strategy.attempts())
	}
}

func TestBindTwiceFails(t *testing.T) {
	strategy := &fakeStrategy{}
	c := newTestController(t, strategy, &recorder{})

	if err := c.Bind(pairs("0/mmtel")); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if err := c.Bind(pairs("0/mmtel")); !errors.Is(err, ErrAlreadyBound) {
		t.Errorf("second Bind error = %v, want ErrAlreadyBound", err)
	}
}

func TestUpdateAppliesOnlyDifference(t *testing.T) {
	strategy := &fakeStrategy{}
	rec := &recorder{}
	c := newTestController(t, strategy, rec)

	if err := c.Bind(pairs("0/mmtel", "1/mmtel")); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	conn := strategy.accept()

	before := c.Handle(provider.FeaturePair{Slot: 0, Feature: provider.FeatureMMTel})
	if before == nil {
		t.Fatal("expected live handle for 0/mmtel")
	}

	// Drop slot 1, add rcs on slot 0. Slot 0 mmtel must be untouched.
	c.Update(pairs("0/mmtel", "0/rcs"))

	after := c.Handle(provider.FeaturePair{Slot: 0, Feature: provider.FeatureMMTel})
	if after == nil || after.ID != before.ID {
		t.Error("unchanged feature was recreated by an unrelated update")
	}
	removed := conn.removedPairs()
	if len(removed) != 1 || removed[0].Slot != 1 {
		t.Errorf("removed = %v, want only 1/mmtel", removed)
	}
	if c.LiveCount() != 2 {
		t.Errorf("LiveCount() = %d, want 2", c.LiveCount())
	}
}

func TestUpdateToEmptyKeepsConnection(t *testing.T) {
	strategy := &fakeStrategy{}
	c := newTestController(t, strategy, &recorder{})

	if err := c.Bind(pairs("0/mmtel")); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	conn := strategy.accept()

	c.Update(pairs("0/emergency"))

	if got := c.State(); got != StateBound {
		t.Fatalf("state = %v, want bound", got)
	}
	if conn.isClosed() {
		t.Error("connection closed on empty bindable update")
	}
	if c.LiveCount() != 0 {
		t.Errorf("LiveCount() = %d, want 0", c.LiveCount())
	}
}

func TestCrashClearsHandlesAndRebinds(t *testing.T) {
	strategy := &fakeStrategy{}
	rec := &recorder{}
	c := newTestController(t, strategy, rec)

	if err := c.Bind(pairs("0/mmtel", "0/rcs")); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	conn := strategy.accept()

	conn.die()

	if got := c.State(); got != StateUnbound {
		t.Fatalf("state after crash = %v, want unbound", got)
	}
	if c.LiveCount() != 0 {
		t.Errorf("LiveCount() after crash = %d, want 0", c.LiveCount())
	}
	if rec.removedCount() != 2 {
		t.Errorf("notifier saw %d removals, want 2", rec.removedCount())
	}

	// The retry timer issues a fresh connect with the same desired set.
	waitFor(t, func() bool { return strategy.attempts() == 2 },
		"expected a reconnect attempt")
	conn2 := strategy.accept()
	waitFor(t, func() bool { return c.LiveCount() == 2 },
		"expected features recreated after rebind")

	// Handles are fresh instances, not resurrected.
	pair := provider.FeaturePair{Slot: 0, Feature: provider.FeatureMMTel}
	if len(conn2.createdPairs()) != 2 {
		t.Errorf("recreated %d features, want 2", len(conn2.createdPairs()))
	}
	if h := c.Handle(pair); h == nil {
		t.Error("expected live handle after rebind")
	}
}

func TestDeathDuringBindingSchedulesRetry(t *testing.T) {
	strategy := &fakeStrategy{}
	c := newTestController(t, strategy, &recorder{})

	if err := c.Bind(pairs("0/mmtel")); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if got := c.State(); got != StateBinding {
		t.Fatalf("state = %v, want binding", got)
	}

	strategy.fail()

	if got := c.State(); got != StateUnbound {
		t.Fatalf("state after failed establishment = %v, want unbound", got)
	}
	if !c.Stats().RetryPending {
		t.Fatal("expected a retry after death during binding")
	}

	// The retry issues a fresh attempt and this time the provider
	// accepts.
	waitFor(t, func() bool { return strategy.attempts() == 2 },
		"expected a reconnect attempt")
	strategy.accept()
	waitFor(t, func() bool { return c.State() == StateBound },
		"expected bound after retry")
}

func TestSlotStateReplayedOnConnect(t *testing.T) {
	strategy := &fakeStrategy{}
	c := newTestController(t, strategy, &recorder{})

	// Recorded before any connection exists.
	if err := c.SetSlotEnabled(0, false); err != nil {
		t.Fatalf("SetSlotEnabled: %v", err)
	}

	if err := c.Bind(pairs("0/mmtel")); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	conn := strategy.accept()

	enabled, seen := conn.slotEnabled(0)
	if !seen || enabled {
		t.Fatalf("slot 0 state = %v, %v; want disabled and seen", enabled, seen)
	}

	// A crash and rebind replays the state to the replacement too.
	conn.die()
	waitFor(t, func() bool { return strategy.attempts() == 2 },
		"expected a reconnect attempt")
	conn2 := strategy.accept()
	enabled, seen = conn2.slotEnabled(0)
	if !seen || enabled {
		t.Errorf("slot 0 state after rebind = %v, %v; want disabled and seen", enabled, seen)
	}
}

func TestRetryDelayDoublesUntilCap(t *testing.T) {
	strategy := &fakeStrategy{rejectErr: errors.New("refused")}
	c, err := NewController(Options{
		Package:      "com.example.provider",
		Strategy:     strategy,
		Notifier:     &recorder{},
		InitialDelay: 30 * time.Millisecond,
		Multiplier:   2,
		MaxDelay:     120 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}

	if err := c.Bind(pairs("0/mmtel")); err != nil {
		t.Fatalf("Bind: %v", err)
	}

	want := []string{"30ms", "60ms", "120ms", "120ms"}
	for i, delay := range want {
		waitFor(t, func() bool {
			s := c.Stats()
			return s.RetryPending && s.NextDelay == delay
		}, fmt.Sprintf("attempt %d: expected next delay %s, got %s", i, delay, c.Stats().NextDelay))
	}
}

func TestBackoffResetsAfterSuccessfulBind(t *testing.T) {
	strategy := &fakeStrategy{}
	c := newTestController(t, strategy, &recorder{})

	if err := c.Bind(pairs("0/mmtel")); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	conn := strategy.accept()
	conn.die()

	if got := c.Stats().NextDelay; got != "5ms" {
		t.Fatalf("first retry delay = %s, want 5ms", got)
	}
	waitFor(t, func() bool { return strategy.attempts() == 2 }, "expected reconnect")
	conn2 := strategy.accept()
	waitFor(t, func() bool { return c.State() == StateBound }, "expected bound")

	conn2.die()
	if got := c.Stats().NextDelay; got != "5ms" {
		t.Errorf("retry delay after reset = %s, want 5ms", got)
	}
}

func TestUnbindCancelsRetry(t *testing.T) {
	strategy := &fakeStrategy{}
	c := newTestController(t, strategy, &recorder{})

	if err := c.Bind(pairs("0/mmtel")); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	conn := strategy.accept()
	conn.die()

	c.Unbind()

	time.Sleep(30 * time.Millisecond)
	if strategy.attempts() != 1 {
		t.Errorf("connect attempts = %d, want 1 (retry must be cancelled)", strategy.attempts())
	}
	if got := c.State(); got != StateUnbound {
		t.Errorf("state = %v, want unbound", got)
	}
}

func TestStaleConnectionDiscardedAfterUnbind(t *testing.T) {
	strategy := &fakeStrategy{}
	c := newTestController(t, strategy, &recorder{})

	if err := c.Bind(pairs("0/mmtel")); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	c.Unbind()

	// The connect answer arrives after the unbind; it must be closed
	// and must not change state.
	conn := strategy.accept()
	if !conn.isClosed() {
		t.Error("stale connection was not closed")
	}
	if got := c.State(); got != StateUnbound {
		t.Errorf("state = %v, want unbound", got)
	}
	if c.LiveCount() != 0 {
		t.Errorf("LiveCount() = %d, want 0", c.LiveCount())
	}
}

func TestStatusObserverForwardsWhileLive(t *testing.T) {
	strategy := &fakeStrategy{}
	rec := &recorder{}
	c := newTestController(t, strategy, rec)

	if err := c.Bind(pairs("0/mmtel")); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	conn := strategy.accept()

	pair := provider.FeaturePair{Slot: 0, Feature: provider.FeatureMMTel}
	conn.pushStatus(pair, provider.StatusReady)

	handle := c.Handle(pair)
	if handle == nil {
		t.Fatal("expected live handle")
	}
	if got := handle.Status(); got != provider.StatusReady {
		t.Errorf("handle status = %v, want ready", got)
	}

	// After a crash the old observer is stale and must be ignored.
	conn.die()
	rec.mu.Lock()
	seen := len(rec.statuses)
	rec.mu.Unlock()
	conn.pushStatus(pair, provider.StatusUnavailable)
	rec.mu.Lock()
	after := len(rec.statuses)
	rec.mu.Unlock()
	if after != seen {
		t.Error("stale status observer was not discarded")
	}
}

func TestSetSlotEnabledOnlyWhileBound(t *testing.T) {
	strategy := &fakeStrategy{}
	c := newTestController(t, strategy, &recorder{})

	// Unbound: request dropped without error.
	if err := c.SetSlotEnabled(0, false); err != nil {
		t.Fatalf("SetSlotEnabled while unbound: %v", err)
	}

	if err := c.Bind(pairs("0/mmtel")); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	conn := strategy.accept()

	if err := c.SetSlotEnabled(0, false); err != nil {
		t.Fatalf("SetSlotEnabled: %v", err)
	}
	conn.mu.Lock()
	enabled, seen := conn.enabled[0]
	conn.mu.Unlock()
	if !seen || enabled {
		t.Error("expected slot 0 disabled on the connection")
	}

	// A slot this controller does not serve is skipped.
	if err := c.SetSlotEnabled(3, false); err != nil {
		t.Fatalf("SetSlotEnabled unserved slot: %v", err)
	}
	conn.mu.Lock()
	_, seen = conn.enabled[3]
	conn.mu.Unlock()
	if seen {
		t.Error("request for unserved slot must not reach the connection")
	}
}

func TestProviderFeatureSetChangeForwarded(t *testing.T) {
	strategy := &fakeStrategy{}
	rec := &recorder{}
	c := newTestController(t, strategy, rec)

	if err := c.Bind(pairs("0/mmtel")); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	conn := strategy.accept()

	conn.mu.Lock()
	fns := append([]func(provider.FeatureSet){}, conn.fsetFns...)
	conn.mu.Unlock()
	if len(fns) != 1 {
		t.Fatalf("feature set subscriptions = %d, want 1", len(fns))
	}
	fns[0](pairs("0/mmtel", "0/rcs"))

	rec.mu.Lock()
	got := len(rec.fsets)
	rec.mu.Unlock()
	if got != 1 {
		t.Errorf("forwarded feature set changes = %d, want 1", got)
	}
}
