package binding

import (
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"

	"github.com/nerrad567/slotline/internal/provider"
)

// State describes where a controller is in its connection lifecycle.
type State int

const (
	// StateUnbound means no connection exists and none is in flight.
	StateUnbound State = iota

	// StateBinding means a connection attempt has been issued and the
	// controller is waiting for the provider to accept it.
	StateBinding

	// StateBound means a live connection exists and features may be
	// created on it.
	StateBound
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateUnbound:
		return "unbound"
	case StateBinding:
		return "binding"
	case StateBound:
		return "bound"
	default:
		return "unknown"
	}
}

// Logger abstracts structured logging so the controller does not depend
// on a concrete implementation.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Notifier receives lifecycle notifications from a controller. The
// resolver implements this to fan events out to feature observers and
// metrics. Implementations must not call back into the controller.
type Notifier interface {
	// FeatureCreated fires when a live feature handle comes into existence.
	FeatureCreated(f *RemoteFeature)

	// FeatureRemoved fires when a live feature handle is torn down,
	// whether by an explicit removal or a connection loss.
	FeatureRemoved(pkg string, pair provider.FeaturePair)

	// FeatureStatusChanged fires when the provider pushes a new status
	// for a live feature.
	FeatureStatusChanged(f *RemoteFeature, status provider.FeatureStatus)

	// StateChanged fires on every controller state transition.
	StateChanged(pkg string, from, to State)

	// ProviderFeatureSetChanged fires when the bound provider announces
	// that its supported feature set has changed. The resolver reacts
	// by refreshing the provider's catalog entry and recomputing.
	ProviderFeatureSetChanged(pkg string, features provider.FeatureSet)
}

// Options configures a Controller.
type Options struct {
	// Package is the provider identity this controller manages.
	Package string

	// Strategy establishes connections to the provider.
	Strategy provider.Strategy

	// Notifier receives lifecycle notifications. Required.
	Notifier Notifier

	// Logger receives structured log output. Optional.
	Logger Logger

	// InitialDelay is the first reconnection delay after a crash.
	// Defaults to 2 seconds.
	InitialDelay time.Duration

	// Multiplier grows the reconnection delay after each consecutive
	// failure. Defaults to 2.
	Multiplier float64

	// MaxDelay caps the reconnection delay. Defaults to 60 seconds.
	MaxDelay time.Duration
}

// Controller drives the connection lifecycle for a single provider.
//
// All state machine mutation happens under mu. The live handle table has
// its own lock so that reads of live handles never contend with a bind
// or teardown in progress.
type Controller struct {
	pkg      string
	strategy provider.Strategy
	notifier Notifier
	logger   Logger

	mu            sync.Mutex
	state         State
	desired       provider.FeatureSet
	conn          provider.Connection
	connectCancel func()
	deathCancel   func()
	fsetCancel    func()
	generation    uint64
	retryTimer    *time.Timer
	retryPending  bool
	nextDelay     time.Duration
	crashes       uint64
	rebinds       uint64
	slotState     map[int]bool

	backoff *backoff.ExponentialBackOff

	handlesMu sync.RWMutex
	live      map[provider.FeaturePair]*RemoteFeature
}

// NewController creates a controller for one provider package. The
// controller starts unbound; call Bind to issue the first connection.
func NewController(opts Options) (*Controller, error) {
	if opts.Package == "" {
		return nil, ErrNoPackage
	}
	if opts.Strategy == nil {
		return nil, ErrNoStrategy
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}
	if opts.InitialDelay <= 0 {
		opts.InitialDelay = 2 * time.Second
	}
	if opts.Multiplier <= 1 {
		opts.Multiplier = 2
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = 60 * time.Second
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = opts.InitialDelay
	bo.Multiplier = opts.Multiplier
	bo.MaxInterval = opts.MaxDelay
	bo.RandomizationFactor = 0
	bo.Reset()

	return &Controller{
		pkg:       opts.Package,
		strategy:  opts.Strategy,
		notifier:  opts.Notifier,
		logger:    opts.Logger,
		state:     StateUnbound,
		desired:   provider.NewFeatureSet(),
		backoff:   bo,
		slotState: make(map[int]bool),
		live:      make(map[provider.FeaturePair]*RemoteFeature),
	}, nil
}

// Package returns the provider identity this controller manages.
func (c *Controller) Package() string {
	return c.pkg
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Desired returns a copy of the feature set the controller is
// reconciling towards.
func (c *Controller) Desired() provider.FeatureSet {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.desired.Clone()
}

// Handle returns the live handle for a slot/feature pair, or nil when
// no such feature is currently bound.
func (c *Controller) Handle(pair provider.FeaturePair) *RemoteFeature {
	c.handlesMu.RLock()
	defer c.handlesMu.RUnlock()
	return c.live[pair]
}

// LiveCount returns the number of live feature handles.
func (c *Controller) LiveCount() int {
	c.handlesMu.RLock()
	defer c.handlesMu.RUnlock()
	return len(c.live)
}

// Stats is a read-only snapshot of controller state for diagnostics.
type Stats struct {
	Package      string `json:"package"`
	State        string `json:"state"`
	RetryPending bool   `json:"retry_pending"`
	NextDelay    string `json:"next_delay,omitempty"`
	Crashes      uint64 `json:"crashes"`
	Rebinds      uint64 `json:"rebinds"`
	LiveFeatures int    `json:"live_features"`
}

// Stats returns a diagnostic snapshot.
func (c *Controller) Stats() Stats {
	c.mu.Lock()
	s := Stats{
		Package:      c.pkg,
		State:        c.state.String(),
		RetryPending: c.retryPending,
		Crashes:      c.crashes,
		Rebinds:      c.rebinds,
	}
	if c.retryPending {
		s.NextDelay = c.nextDelay.String()
	}
	c.mu.Unlock()
	s.LiveFeatures = c.LiveCount()
	return s
}

// Bind issues the initial connection attempt with the given desired
// feature set. It is only valid from the unbound state with no retry
// pending; later changes go through Update.
func (c *Controller) Bind(desired provider.FeatureSet) error {
	c.mu.Lock()
	if c.state != StateUnbound || c.retryPending {
		c.mu.Unlock()
		return ErrAlreadyBound
	}
	c.desired = desired.Clone()
	if !c.desired.Bindable() {
		c.mu.Unlock()
		c.logger.Debug("bind deferred, no bindable features", "package", c.pkg)
		return nil
	}
	started := c.startConnectLocked()
	c.mu.Unlock()

	if started {
		c.notifier.StateChanged(c.pkg, StateUnbound, StateBinding)
	}
	return nil
}

// Update replaces the desired feature set and reconciles the live
// connection against it. While bound, only the difference is applied;
// features present in both the old and new sets are untouched. An
// update that empties the bindable set keeps the connection open, since
// a follow-up update may restore features cheaply.
func (c *Controller) Update(next provider.FeatureSet) {
	var notes []func()

	c.mu.Lock()
	prev := c.desired
	c.desired = next.Clone()

	switch c.state {
	case StateUnbound:
		if !c.retryPending && c.desired.Bindable() {
			if c.startConnectLocked() {
				notes = append(notes, func() {
					c.notifier.StateChanged(c.pkg, StateUnbound, StateBinding)
				})
			}
		}
	case StateBinding:
		// Connection in flight; the new desired set is picked up when
		// the provider accepts.
	case StateBound:
		added, removed := prev.Diff(c.desired)
		for _, pair := range removed {
			if pair.Feature == provider.FeatureEmergency {
				continue
			}
			notes = append(notes, c.removeFeatureLocked(pair)...)
		}
		for _, pair := range added {
			if pair.Feature == provider.FeatureEmergency {
				continue
			}
			notes = append(notes, c.createFeatureLocked(pair)...)
		}
	}
	c.mu.Unlock()

	for _, fn := range notes {
		fn()
	}
}

// Unbind tears down the connection and cancels any pending retry. The
// controller returns to a clean unbound state and can be bound again.
func (c *Controller) Unbind() {
	var notes []func()

	c.mu.Lock()
	c.generation++
	c.stopRetryLocked()

	from := c.state
	if c.conn != nil {
		for pair := range c.snapshotLive() {
			if pair.Feature == provider.FeatureEmergency {
				continue
			}
			if err := c.conn.RemoveFeature(pair.Slot, pair.Feature); err != nil {
				c.logger.Warn("feature removal failed during unbind",
					"package", c.pkg, "pair", pair.String(), "error", err)
			}
		}
	}
	c.teardownConnLocked()
	notes = c.clearLiveLocked()
	c.desired = provider.NewFeatureSet()
	c.slotState = make(map[int]bool)
	c.state = StateUnbound
	c.mu.Unlock()

	if from != StateUnbound {
		c.notifier.StateChanged(c.pkg, from, StateUnbound)
	}
	for _, fn := range notes {
		fn()
	}
	c.logger.Info("controller unbound", "package", c.pkg)
}

// SetSlotEnabled forwards a slot enable or disable request to the bound
// provider. The state is remembered either way and replayed on the next
// successful connect, so a provider bound after a disable still learns
// the slot state.
func (c *Controller) SetSlotEnabled(slot int, enabled bool) error {
	c.mu.Lock()
	c.slotState[slot] = enabled
	conn := c.conn
	serves := c.desired.ForSlot(slot).Len() > 0
	c.mu.Unlock()

	if conn == nil || !serves {
		return nil
	}
	if err := conn.SetSlotEnabled(slot, enabled); err != nil {
		c.logger.Warn("slot enable change failed",
			"package", c.pkg, "slot", slot, "enabled", enabled, "error", err)
		return err
	}
	return nil
}

// startConnectLocked issues a connection attempt and reports whether it
// is in flight. A synchronous rejection reverts to unbound and arms the
// retry timer. Caller holds mu.
func (c *Controller) startConnectLocked() bool {
	c.state = StateBinding
	gen := c.generation
	events := &connectionEvents{c: c, gen: gen}

	c.logger.Info("connecting to provider", "package", c.pkg,
		"interface", c.strategy.InterfaceName())

	cancel, err := c.strategy.Connect(c.pkg, events)
	if err != nil {
		c.logger.Warn("connection rejected", "package", c.pkg, "error", err)
		c.state = StateUnbound
		c.scheduleRetryLocked()
		return false
	}
	c.connectCancel = cancel
	return true
}

// connectionEvents forwards strategy callbacks into the controller,
// carrying the generation the attempt belongs to so callbacks that
// arrive after an unbind or crash are discarded.
type connectionEvents struct {
	c   *Controller
	gen uint64
}

func (e *connectionEvents) OnConnected(conn provider.Connection) { e.c.onConnected(e.gen, conn) }
func (e *connectionEvents) OnDisconnected()                      { e.c.onLost(e.gen, "disconnected") }
func (e *connectionEvents) OnDied()                              { e.c.onLost(e.gen, "died") }

func (c *Controller) onConnected(gen uint64, conn provider.Connection) {
	var notes []func()

	c.mu.Lock()
	if gen != c.generation || c.state != StateBinding {
		c.mu.Unlock()
		c.logger.Debug("discarding stale connection", "package", c.pkg)
		if err := conn.Close(); err != nil {
			c.logger.Warn("stale connection close failed", "package", c.pkg, "error", err)
		}
		return
	}

	c.conn = conn
	c.connectCancel = nil
	c.deathCancel = conn.SubscribeDeath(func() { c.onLost(gen, "died") })
	c.fsetCancel = conn.SubscribeFeatureSetChanged(func(fs provider.FeatureSet) {
		c.onFeatureSetChanged(gen, fs)
	})
	c.state = StateBound
	c.retryPending = false
	c.backoff.Reset()
	c.rebinds++

	for _, pair := range c.desired.Pairs() {
		if pair.Feature == provider.FeatureEmergency {
			continue
		}
		notes = append(notes, c.createFeatureLocked(pair)...)
	}
	for slot, enabled := range c.slotState {
		if c.desired.ForSlot(slot).Len() == 0 {
			continue
		}
		if err := conn.SetSlotEnabled(slot, enabled); err != nil {
			c.logger.Warn("slot state replay failed",
				"package", c.pkg, "slot", slot, "enabled", enabled, "error", err)
		}
	}
	c.mu.Unlock()

	c.notifier.StateChanged(c.pkg, StateBinding, StateBound)
	for _, fn := range notes {
		fn()
	}
	c.logger.Info("provider bound", "package", c.pkg)
}

// onLost handles graceful disconnects, crashes and failed
// establishments. A death delivered while still BINDING means the
// connect attempt itself failed; it follows the same
// teardown-and-retry path as a bound-connection loss.
func (c *Controller) onLost(gen uint64, reason string) {
	var notes []func()

	c.mu.Lock()
	if gen != c.generation || (c.conn == nil && c.state != StateBinding) {
		c.mu.Unlock()
		return
	}
	from := c.state
	c.generation++
	c.teardownConnLocked()
	notes = c.clearLiveLocked()
	c.state = StateUnbound
	c.crashes++
	c.scheduleRetryLocked()
	delay := c.nextDelay
	c.mu.Unlock()

	c.notifier.StateChanged(c.pkg, from, StateUnbound)
	for _, fn := range notes {
		fn()
	}
	c.logger.Warn("provider connection lost", "package", c.pkg,
		"reason", reason, "retry_in", delay.String())
}

// onFeatureSetChanged reacts to the provider announcing a new supported
// feature set. Ownership is not decided here; the notifier hands the
// set to the resolver, which refreshes the catalog and recomputes.
func (c *Controller) onFeatureSetChanged(gen uint64, fs provider.FeatureSet) {
	c.mu.Lock()
	stale := gen != c.generation
	c.mu.Unlock()
	if stale {
		return
	}
	c.logger.Info("provider feature set changed", "package", c.pkg,
		"features", fs.Strings())
	c.notifier.ProviderFeatureSetChanged(c.pkg, fs.Clone())
}

// scheduleRetryLocked arms the reconnect timer with the next backoff
// delay. Caller holds mu.
func (c *Controller) scheduleRetryLocked() {
	delay := c.backoff.NextBackOff()
	c.nextDelay = delay
	c.retryPending = true
	gen := c.generation
	c.retryTimer = time.AfterFunc(delay, func() { c.retry(gen) })
}

func (c *Controller) retry(gen uint64) {
	c.mu.Lock()
	if gen != c.generation || c.state != StateUnbound || !c.retryPending {
		c.mu.Unlock()
		return
	}
	c.retryPending = false
	if !c.desired.Bindable() {
		c.mu.Unlock()
		c.logger.Debug("retry skipped, no bindable features", "package", c.pkg)
		return
	}
	started := c.startConnectLocked()
	c.mu.Unlock()

	if started {
		c.notifier.StateChanged(c.pkg, StateUnbound, StateBinding)
	}
}

func (c *Controller) stopRetryLocked() {
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
	c.retryPending = false
	c.backoff.Reset()
}

// teardownConnLocked cancels subscriptions and closes the connection.
// Caller holds mu.
func (c *Controller) teardownConnLocked() {
	if c.connectCancel != nil {
		c.connectCancel()
		c.connectCancel = nil
	}
	if c.deathCancel != nil {
		c.deathCancel()
		c.deathCancel = nil
	}
	if c.fsetCancel != nil {
		c.fsetCancel()
		c.fsetCancel = nil
	}
	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			c.logger.Warn("connection close failed", "package", c.pkg, "error", err)
		}
		c.conn = nil
	}
}

// createFeatureLocked creates one feature on the live connection and
// publishes its handle. Caller holds mu. Returned closures fire
// notifications after mu is released.
func (c *Controller) createFeatureLocked(pair provider.FeaturePair) []func() {
	if c.conn == nil {
		return nil
	}
	gen := c.generation
	handle := &RemoteFeature{
		ID:      uuid.New().String(),
		Package: c.pkg,
		Slot:    pair.Slot,
		Feature: pair.Feature,
	}
	observer := func(status provider.FeatureStatus) {
		c.onFeatureStatus(gen, pair, handle, status)
	}
	remoteID, err := c.conn.CreateFeature(pair.Slot, pair.Feature, observer)
	if err != nil {
		c.logger.Error("feature creation failed",
			"package", c.pkg, "pair", pair.String(), "error", err)
		return nil
	}
	handle.RemoteID = remoteID

	c.handlesMu.Lock()
	c.live[pair] = handle
	c.handlesMu.Unlock()

	c.logger.Debug("feature created", "package", c.pkg,
		"pair", pair.String(), "id", handle.ID)
	return []func(){func() { c.notifier.FeatureCreated(handle) }}
}

// removeFeatureLocked removes one feature from the live connection and
// retires its handle. Caller holds mu.
func (c *Controller) removeFeatureLocked(pair provider.FeaturePair) []func() {
	c.handlesMu.Lock()
	handle, ok := c.live[pair]
	if ok {
		delete(c.live, pair)
	}
	c.handlesMu.Unlock()
	if !ok || handle == nil {
		return nil
	}

	if c.conn != nil {
		if err := c.conn.RemoveFeature(pair.Slot, pair.Feature); err != nil {
			c.logger.Warn("feature removal failed",
				"package", c.pkg, "pair", pair.String(), "error", err)
		}
	}
	return []func(){func() { c.notifier.FeatureRemoved(c.pkg, pair) }}
}

// clearLiveLocked retires every live handle without touching the
// connection, used on crash and unbind paths. Caller holds mu.
func (c *Controller) clearLiveLocked() []func() {
	c.handlesMu.Lock()
	pairs := make([]provider.FeaturePair, 0, len(c.live))
	for pair := range c.live {
		pairs = append(pairs, pair)
	}
	c.live = make(map[provider.FeaturePair]*RemoteFeature)
	c.handlesMu.Unlock()

	notes := make([]func(), 0, len(pairs))
	for _, pair := range pairs {
		p := pair
		notes = append(notes, func() { c.notifier.FeatureRemoved(c.pkg, p) })
	}
	return notes
}

// snapshotLive copies the live table for iteration under mu.
func (c *Controller) snapshotLive() map[provider.FeaturePair]*RemoteFeature {
	c.handlesMu.RLock()
	defer c.handlesMu.RUnlock()
	out := make(map[provider.FeaturePair]*RemoteFeature, len(c.live))
	for k, v := range c.live {
		out[k] = v
	}
	return out
}

func (c *Controller) onFeatureStatus(gen uint64, pair provider.FeaturePair, handle *RemoteFeature, status provider.FeatureStatus) {
	c.mu.Lock()
	stale := gen != c.generation
	c.mu.Unlock()
	if stale {
		return
	}

	c.handlesMu.RLock()
	current := c.live[pair] == handle
	c.handlesMu.RUnlock()
	if !current {
		return
	}

	handle.setStatus(status)
	c.notifier.FeatureStatusChanged(handle, status)
}
