package resolver

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/slotline/internal/binding"
	"github.com/nerrad567/slotline/internal/provider"
	"github.com/nerrad567/slotline/internal/query"
)

const eventQueueSize = 64

// Logger abstracts structured logging.
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

// MetricsSink records state transitions and feature events for
// observability backends. Implementations must not block.
type MetricsSink interface {
	RecordStateChange(pkg, from, to string)
	RecordFeatureEvent(pkg string, slot int, feature, status string)
}

// Broadcaster pushes resolver events to connected clients.
// Implementations must not block.
type Broadcaster interface {
	Broadcast(eventType string, payload any)
}

// FeatureObserver receives availability transitions for one
// slot/feature pair. Registrations survive provider crashes and
// rebinds; the observer sees unavailable on teardown and ready again
// once the replacement feature comes up.
type FeatureObserver func(status provider.FeatureStatus)

// Options configures an Orchestrator.
type Options struct {
	// Catalog holds admitted provider candidates. Required.
	Catalog *provider.Catalog

	// Strategies maps connection flavors to their transports. Required.
	Strategies provider.StrategySet

	// Store persists overrides and queried feature sets. Optional;
	// without it state is in-memory only.
	Store *provider.Store

	// DeviceDefault is the package that serves slots with no override.
	DeviceDefault string

	// SlotCount is the number of slots on this device.
	SlotCount int

	// BackoffInitialDelay, BackoffMultiplier and BackoffMaxDelay shape
	// controller reconnection. Zero values fall back to controller
	// defaults.
	BackoffInitialDelay time.Duration
	BackoffMultiplier   float64
	BackoffMaxDelay     time.Duration

	// QueryTimeout and QueryRetryDelay shape capability queries. Zero
	// values fall back to coordinator defaults.
	QueryTimeout    time.Duration
	QueryRetryDelay time.Duration

	// Logger receives structured log output. Optional.
	Logger Logger

	// Metrics records transitions. Optional.
	Metrics MetricsSink

	// Broadcaster pushes events to clients. Optional.
	Broadcaster Broadcaster
}

// Orchestrator owns the candidate catalog, the override table and one
// binding controller per active provider. A single goroutine drains the
// event queue; every mutation happens there.
type Orchestrator struct {
	catalog    *provider.Catalog
	strategies provider.StrategySet
	store      *provider.Store
	logger     Logger
	metrics    MetricsSink
	broadcast  Broadcaster

	deviceDefault string
	slotCount     int

	backoffInitial    time.Duration
	backoffMultiplier float64
	backoffMax        time.Duration

	events  chan event
	done    chan struct{}
	stopped atomic.Bool
	wg      sync.WaitGroup
	pending atomic.Int64

	queries *query.Coordinator

	mu          sync.Mutex
	controllers map[string]*binding.Controller
	overrides   map[int]string
	slotEnabled map[int]bool

	obsMu     sync.RWMutex
	observers map[provider.FeaturePair]map[uint64]FeatureObserver
	obsSeq    uint64
}

// New creates an orchestrator. Call Start to load state and begin
// processing events.
func New(opts Options) (*Orchestrator, error) {
	if opts.Catalog == nil {
		return nil, ErrNoCatalog
	}
	if len(opts.Strategies) == 0 {
		return nil, ErrNoStrategies
	}
	if opts.SlotCount <= 0 {
		opts.SlotCount = 1
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}

	o := &Orchestrator{
		catalog:           opts.Catalog,
		strategies:        opts.Strategies,
		store:             opts.Store,
		logger:            opts.Logger,
		metrics:           opts.Metrics,
		broadcast:         opts.Broadcaster,
		deviceDefault:     opts.DeviceDefault,
		slotCount:         opts.SlotCount,
		backoffInitial:    opts.BackoffInitialDelay,
		backoffMultiplier: opts.BackoffMultiplier,
		backoffMax:        opts.BackoffMaxDelay,
		events:            make(chan event, eventQueueSize),
		done:              make(chan struct{}),
		controllers:       make(map[string]*binding.Controller),
		overrides:         make(map[int]string),
		slotEnabled:       make(map[int]bool),
		observers:         make(map[provider.FeaturePair]map[uint64]FeatureObserver),
	}

	queries, err := query.NewCoordinator(query.Options{
		Query:      o.runQuery,
		OnResult:   o.onQueryResult,
		Timeout:    opts.QueryTimeout,
		RetryDelay: opts.QueryRetryDelay,
		Logger:     opts.Logger,
	})
	if err != nil {
		return nil, err
	}
	o.queries = queries
	return o, nil
}

// Start loads persisted state, discovers the initial candidate set and
// begins draining the event queue.
func (o *Orchestrator) Start(ctx context.Context) error {
	if o.store != nil {
		overrides, err := o.store.ListOverrides(ctx)
		if err != nil {
			return err
		}
		o.mu.Lock()
		for slot, pkg := range overrides {
			if slot >= 0 && slot < o.slotCount {
				o.overrides[slot] = pkg
			} else {
				o.logger.Warn("discarding persisted override for out-of-range slot",
					"slot", slot, "package", pkg)
			}
		}
		o.mu.Unlock()
	}

	admitted, err := o.catalog.Discover(ctx, "")
	if err != nil {
		return err
	}
	for _, cand := range admitted {
		o.restoreOrRequestQuery(ctx, cand)
	}

	o.wg.Add(1)
	go o.loop()

	o.post(event{kind: eventRecomputeAll})
	o.logger.Info("resolver started",
		"candidates", len(admitted),
		"device_default", o.deviceDefault,
		"slots", o.slotCount)
	return nil
}

// restoreOrRequestQuery fills a pending candidate's feature set from
// the store when a previous run already queried it, and schedules a
// fresh query otherwise. Queries are only issued for candidates the
// assignment can use; an unclaimed candidate stays pending until some
// slot selects it, at which point recompute requests the query.
func (o *Orchestrator) restoreOrRequestQuery(ctx context.Context, cand *provider.Candidate) {
	if !cand.PendingQuery {
		return
	}
	if o.store != nil {
		fs, found, err := o.store.GetQueriedFeatures(ctx, cand.Package)
		if err != nil {
			o.logger.Warn("reading cached feature set failed",
				"package", cand.Package, "error", err)
		} else if found {
			if err := o.catalog.SetDeclared(cand.Package, fs); err == nil {
				o.logger.Debug("restored cached feature set",
					"package", cand.Package, "features", fs.Strings())
			}
			// Stale cache is acceptable; a fresh query reconciles it.
		}
	}
	if o.isClaimed(cand.Package) {
		o.queries.Request(cand.Package)
	}
}

// isClaimed reports whether the assignment can currently use a
// candidate: it is the device default or some slot's override target.
func (o *Orchestrator) isClaimed(pkg string) bool {
	if pkg == o.deviceDefault {
		return true
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, target := range o.overrides {
		if target == pkg {
			return true
		}
	}
	return false
}

// Stop drains nothing further: outstanding queries are cancelled, the
// event loop exits and every controller is unbound.
func (o *Orchestrator) Stop() {
	if o.stopped.Swap(true) {
		return
	}
	close(o.done)
	o.wg.Wait()
	o.queries.Stop()

	o.mu.Lock()
	controllers := make([]*binding.Controller, 0, len(o.controllers))
	for _, ctrl := range o.controllers {
		controllers = append(controllers, ctrl)
	}
	o.controllers = make(map[string]*binding.Controller)
	o.mu.Unlock()

	for _, ctrl := range controllers {
		ctrl.Unbind()
	}
	o.logger.Info("resolver stopped")
}

// IsResolving reports whether any work that can still change the
// assignment is outstanding: queued events, in-flight capability
// queries or pending query retries.
func (o *Orchestrator) IsResolving() bool {
	return o.pending.Load() > 0 || o.queries.Active() > 0
}

// NotifyPackageAdded enqueues handling for a newly installed package.
func (o *Orchestrator) NotifyPackageAdded(pkg string) {
	o.post(event{kind: eventPackageAdded, pkg: pkg})
}

// NotifyPackageChanged enqueues handling for a replaced package.
func (o *Orchestrator) NotifyPackageChanged(pkg string) {
	o.post(event{kind: eventPackageChanged, pkg: pkg})
}

// NotifyPackageRemoved enqueues handling for an uninstalled package.
func (o *Orchestrator) NotifyPackageRemoved(pkg string) {
	o.post(event{kind: eventPackageRemoved, pkg: pkg})
}

// SetOverride routes the ownership of a slot to a package. Setting the
// override a slot already has is a no-op. The call returns once the
// event has been applied.
func (o *Orchestrator) SetOverride(slot int, pkg string) error {
	if slot < 0 || slot >= o.slotCount {
		return ErrInvalidSlot
	}
	done := make(chan error, 1)
	if !o.post(event{kind: eventOverrideSet, slot: slot, pkg: pkg, done: done}) {
		return ErrStopped
	}
	return <-done
}

// ClearOverride removes a slot's override, returning the slot to the
// device default.
func (o *Orchestrator) ClearOverride(slot int) error {
	if slot < 0 || slot >= o.slotCount {
		return ErrInvalidSlot
	}
	done := make(chan error, 1)
	if !o.post(event{kind: eventOverrideCleared, slot: slot, done: done}) {
		return ErrStopped
	}
	return <-done
}

// SetSlotEnabled forwards a slot enable or disable request to every
// bound controller serving the slot.
func (o *Orchestrator) SetSlotEnabled(slot int, enabled bool) error {
	if slot < 0 || slot >= o.slotCount {
		return ErrInvalidSlot
	}
	if !o.post(event{kind: eventSlotEnabled, slot: slot, enabled: enabled}) {
		return ErrStopped
	}
	return nil
}

// GetFeatureHandle returns the live handle for a slot/feature pair, or
// ErrFeatureNotAvailable when nothing currently serves it.
func (o *Orchestrator) GetFeatureHandle(slot int, feature provider.Feature) (*binding.RemoteFeature, error) {
	if slot < 0 || slot >= o.slotCount {
		return nil, ErrInvalidSlot
	}
	pair := provider.FeaturePair{Slot: slot, Feature: feature}

	o.mu.Lock()
	defer o.mu.Unlock()
	for _, ctrl := range o.controllers {
		if handle := ctrl.Handle(pair); handle != nil {
			return handle, nil
		}
	}
	return nil, ErrFeatureNotAvailable
}

// GetRegistrationHandle returns the registration facet for a live
// slot/feature pair, or ErrFeatureNotAvailable when nothing serves it.
func (o *Orchestrator) GetRegistrationHandle(slot int, feature provider.Feature) (*binding.RegistrationHandle, error) {
	handle, err := o.GetFeatureHandle(slot, feature)
	if err != nil {
		return nil, err
	}
	return handle.Registration(), nil
}

// GetConfigHandle returns the config facet for a live slot/feature
// pair, or ErrFeatureNotAvailable when nothing serves it.
func (o *Orchestrator) GetConfigHandle(slot int, feature provider.Feature) (*binding.ConfigHandle, error) {
	handle, err := o.GetFeatureHandle(slot, feature)
	if err != nil {
		return nil, err
	}
	return handle.Config(), nil
}

// ListenForFeature registers an observer for a slot/feature pair. The
// registration survives crashes and rebinds of the serving provider.
// If the feature is live right now the observer immediately receives
// its current status. The returned cancel func removes the
// registration.
func (o *Orchestrator) ListenForFeature(slot int, feature provider.Feature, observer FeatureObserver) (func(), error) {
	if slot < 0 || slot >= o.slotCount {
		return nil, ErrInvalidSlot
	}
	pair := provider.FeaturePair{Slot: slot, Feature: feature}

	o.obsMu.Lock()
	id := o.obsSeq
	o.obsSeq++
	if o.observers[pair] == nil {
		o.observers[pair] = make(map[uint64]FeatureObserver)
	}
	o.observers[pair][id] = observer
	o.obsMu.Unlock()

	if handle, err := o.GetFeatureHandle(slot, feature); err == nil {
		observer(handle.Status())
	}

	cancel := func() {
		o.obsMu.Lock()
		if m := o.observers[pair]; m != nil {
			delete(m, id)
			if len(m) == 0 {
				delete(o.observers, pair)
			}
		}
		o.obsMu.Unlock()
	}
	return cancel, nil
}

// Overrides returns a copy of the current override table.
func (o *Orchestrator) Overrides() map[int]string {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make(map[int]string, len(o.overrides))
	for slot, pkg := range o.overrides {
		out[slot] = pkg
	}
	return out
}

// Candidates returns the admitted candidate set.
func (o *Orchestrator) Candidates() []*provider.Candidate {
	return o.catalog.List()
}

// ControllerStats returns a diagnostic snapshot of every controller.
func (o *Orchestrator) ControllerStats() []binding.Stats {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]binding.Stats, 0, len(o.controllers))
	for _, ctrl := range o.controllers {
		out = append(out, ctrl.Stats())
	}
	return out
}

// DeviceDefault returns the configured device default package.
func (o *Orchestrator) DeviceDefault() string {
	return o.deviceDefault
}

// SlotCount returns the configured slot count.
func (o *Orchestrator) SlotCount() int {
	return o.slotCount
}

// post enqueues an event, reporting false when the orchestrator has
// stopped.
func (o *Orchestrator) post(ev event) bool {
	o.pending.Add(1)
	select {
	case o.events <- ev:
		return true
	case <-o.done:
		o.pending.Add(-1)
		if ev.done != nil {
			ev.done <- ErrStopped
		}
		return false
	}
}

func (o *Orchestrator) loop() {
	defer o.wg.Done()
	for {
		select {
		case <-o.done:
			// Answer queued callers so nobody blocks across shutdown.
			for {
				select {
				case ev := <-o.events:
					if ev.done != nil {
						ev.done <- ErrStopped
					}
					o.pending.Add(-1)
				default:
					return
				}
			}
		case ev := <-o.events:
			o.handle(ev)
			o.pending.Add(-1)
		}
	}
}

func (o *Orchestrator) handle(ev event) {
	o.logger.Debug("handling event", "kind", ev.kind.String(),
		"package", ev.pkg, "slot", ev.slot)

	var err error
	switch ev.kind {
	case eventPackageAdded, eventPackageChanged:
		o.handlePackageUpserted(ev.pkg)
	case eventPackageRemoved:
		o.handlePackageRemoved(ev.pkg)
	case eventOverrideSet:
		err = o.handleOverrideSet(ev.slot, ev.pkg)
	case eventOverrideCleared:
		err = o.handleOverrideCleared(ev.slot)
	case eventQueryCompleted, eventProviderFeatures:
		o.handleFeaturesResolved(ev.pkg, ev.features)
	case eventSlotEnabled:
		o.handleSlotEnabled(ev.slot, ev.enabled)
	case eventRecomputeAll:
		o.recompute()
	}

	if ev.done != nil {
		ev.done <- err
	}
}

func (o *Orchestrator) handlePackageUpserted(pkg string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	admitted, err := o.catalog.Discover(ctx, pkg)
	if err != nil {
		o.logger.Error("candidate discovery failed", "package", pkg, "error", err)
		return
	}
	if len(admitted) == 0 {
		// The package no longer advertises a usable provider; treat it
		// as removed.
		if o.catalog.Remove(pkg) {
			o.logger.Info("candidate withdrawn", "package", pkg)
			o.handlePackageRemoved(pkg)
		}
		return
	}
	for _, cand := range admitted {
		o.restoreOrRequestQuery(ctx, cand)
	}
	o.recompute()
	o.emit("candidate_updated", map[string]any{"package": pkg})
}

func (o *Orchestrator) handlePackageRemoved(pkg string) {
	o.queries.Cancel(pkg)
	o.catalog.Remove(pkg)

	if o.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := o.store.DeleteQueriedFeatures(ctx, pkg); err != nil {
			o.logger.Warn("clearing cached feature set failed",
				"package", pkg, "error", err)
		}
		cancel()
	}

	o.mu.Lock()
	ctrl, ok := o.controllers[pkg]
	if ok {
		delete(o.controllers, pkg)
	}
	o.mu.Unlock()
	if ok {
		ctrl.Unbind()
	}

	o.recompute()
	o.emit("candidate_removed", map[string]any{"package": pkg})
}

func (o *Orchestrator) handleOverrideSet(slot int, pkg string) error {
	o.mu.Lock()
	current, exists := o.overrides[slot]
	o.mu.Unlock()
	if exists && current == pkg {
		o.logger.Debug("override unchanged", "slot", slot, "package", pkg)
		return nil
	}

	if _, err := o.catalog.Get(pkg); err != nil {
		// Overrides may name packages that are not installed yet; the
		// default keeps the slot until the candidate appears.
		o.logger.Warn("override names unknown package", "slot", slot, "package", pkg)
	}

	if o.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := o.store.SaveOverride(ctx, slot, pkg)
		cancel()
		if err != nil {
			o.logger.Error("persisting override failed",
				"slot", slot, "package", pkg, "error", err)
			return err
		}
	}

	o.mu.Lock()
	o.overrides[slot] = pkg
	o.mu.Unlock()

	o.logger.Info("override set", "slot", slot, "package", pkg)
	o.recompute()
	o.emit("override_changed", map[string]any{"slot": slot, "package": pkg})
	return nil
}

func (o *Orchestrator) handleOverrideCleared(slot int) error {
	o.mu.Lock()
	_, exists := o.overrides[slot]
	o.mu.Unlock()
	if !exists {
		return nil
	}

	if o.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := o.store.ClearOverride(ctx, slot)
		cancel()
		if err != nil {
			o.logger.Error("clearing override failed", "slot", slot, "error", err)
			return err
		}
	}

	o.mu.Lock()
	delete(o.overrides, slot)
	o.mu.Unlock()

	o.logger.Info("override cleared", "slot", slot)
	o.recompute()
	o.emit("override_changed", map[string]any{"slot": slot, "package": ""})
	return nil
}

func (o *Orchestrator) handleFeaturesResolved(pkg string, fs provider.FeatureSet) {
	if err := o.catalog.SetDeclared(pkg, fs); err != nil {
		// The package disappeared while its query was in flight.
		o.logger.Debug("discarding feature set for unknown candidate", "package", pkg)
		return
	}
	if o.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := o.store.SaveQueriedFeatures(ctx, pkg, fs); err != nil {
			o.logger.Warn("caching feature set failed", "package", pkg, "error", err)
		}
		cancel()
	}
	o.recompute()
}

func (o *Orchestrator) handleSlotEnabled(slot int, enabled bool) {
	o.mu.Lock()
	o.slotEnabled[slot] = enabled
	controllers := make([]*binding.Controller, 0, len(o.controllers))
	for _, ctrl := range o.controllers {
		controllers = append(controllers, ctrl)
	}
	o.mu.Unlock()

	for _, ctrl := range controllers {
		if err := ctrl.SetSlotEnabled(slot, enabled); err != nil {
			o.logger.Warn("slot enable delivery failed",
				"package", ctrl.Package(), "slot", slot, "error", err)
		}
	}
	o.emit("slot_enabled", map[string]any{"slot": slot, "enabled": enabled})
}

// recompute applies the ownership policy to every admitted candidate
// and reconciles controllers with the result.
func (o *Orchestrator) recompute() {
	candidates := o.catalog.List()

	in := assignmentInput{
		declared:      make(map[string]provider.FeatureSet, len(candidates)),
		deviceDefault: o.deviceDefault,
		slotCount:     o.slotCount,
	}
	byPkg := make(map[string]*provider.Candidate, len(candidates))
	for _, cand := range candidates {
		in.declared[cand.Package] = cand.Declared
		byPkg[cand.Package] = cand
	}
	in.overrides = o.Overrides()

	overriding := make(map[string]bool)
	for _, pkg := range in.overrides {
		overriding[pkg] = true
	}

	for _, cand := range candidates {
		if cand.PendingQuery && (cand.Package == o.deviceDefault || overriding[cand.Package]) {
			// A claimed candidate still has no feature set; fetch one.
			// The coordinator absorbs repeats while one is outstanding.
			o.queries.Request(cand.Package)
		}
		desired := computeAssignment(in, cand.Package)
		o.reconcile(cand, desired, overriding[cand.Package])
	}
}

// reconcile drives one candidate's controller towards its desired set.
func (o *Orchestrator) reconcile(cand *provider.Candidate, desired provider.FeatureSet, isOverride bool) {
	pkg := cand.Package

	o.mu.Lock()
	ctrl, exists := o.controllers[pkg]
	o.mu.Unlock()

	if desired.Len() == 0 {
		// A candidate that neither overrides a slot nor is the device
		// default holds no claim; tear its controller down.
		if exists && !isOverride && pkg != o.deviceDefault {
			o.mu.Lock()
			delete(o.controllers, pkg)
			o.mu.Unlock()
			ctrl.Unbind()
			o.logger.Info("controller retired", "package", pkg)
			return
		}
		if exists {
			ctrl.Update(desired)
		}
		return
	}

	if !exists {
		strategy, err := o.strategies.For(cand)
		if err != nil {
			o.logger.Error("no strategy for candidate",
				"package", pkg, "flavor", string(cand.Strategy), "error", err)
			return
		}
		ctrl, err = binding.NewController(binding.Options{
			Package:      pkg,
			Strategy:     strategy,
			Notifier:     (*controllerNotifier)(o),
			Logger:       o.logger,
			InitialDelay: o.backoffInitial,
			Multiplier:   o.backoffMultiplier,
			MaxDelay:     o.backoffMax,
		})
		if err != nil {
			o.logger.Error("controller creation failed", "package", pkg, "error", err)
			return
		}
		o.mu.Lock()
		o.controllers[pkg] = ctrl
		slotStates := make(map[int]bool, len(o.slotEnabled))
		for slot, enabled := range o.slotEnabled {
			slotStates[slot] = enabled
		}
		o.mu.Unlock()

		// Seed the device's slot state before binding so a provider
		// bound after a disable still learns it on connect.
		for slot, enabled := range slotStates {
			if err := ctrl.SetSlotEnabled(slot, enabled); err != nil {
				o.logger.Warn("seeding slot state failed",
					"package", pkg, "slot", slot, "error", err)
			}
		}

		if err := ctrl.Bind(desired); err != nil {
			o.logger.Error("initial bind failed", "package", pkg, "error", err)
		}
		return
	}

	ctrl.Update(desired)
}

// runQuery resolves the candidate's strategy and performs one transient
// capability query.
func (o *Orchestrator) runQuery(ctx context.Context, pkg string) (provider.FeatureSet, error) {
	cand, err := o.catalog.Get(pkg)
	if err != nil {
		return nil, err
	}
	strategy, err := o.strategies.For(cand)
	if err != nil {
		return nil, err
	}
	return strategy.QueryFeatures(ctx, pkg)
}

func (o *Orchestrator) onQueryResult(pkg string, fs provider.FeatureSet) {
	o.post(event{kind: eventQueryCompleted, pkg: pkg, features: fs})
}

// emit pushes an event to the broadcaster when one is wired.
func (o *Orchestrator) emit(eventType string, payload any) {
	if o.broadcast != nil {
		o.broadcast.Broadcast(eventType, payload)
	}
}

// notifyObservers fans a status transition out to every observer
// registered for the pair.
func (o *Orchestrator) notifyObservers(pair provider.FeaturePair, status provider.FeatureStatus) {
	o.obsMu.RLock()
	fns := make([]FeatureObserver, 0, len(o.observers[pair]))
	for _, fn := range o.observers[pair] {
		fns = append(fns, fn)
	}
	o.obsMu.RUnlock()
	for _, fn := range fns {
		fn(status)
	}
}

// controllerNotifier adapts the orchestrator to the binding.Notifier
// interface without widening the orchestrator's public surface.
type controllerNotifier Orchestrator

func (n *controllerNotifier) orch() *Orchestrator { return (*Orchestrator)(n) }

func (n *controllerNotifier) FeatureCreated(f *binding.RemoteFeature) {
	o := n.orch()
	o.notifyObservers(f.Pair(), f.Status())
	if o.metrics != nil {
		o.metrics.RecordFeatureEvent(f.Package, f.Slot, f.Feature.String(), "created")
	}
	o.emit("feature_created", map[string]any{
		"package": f.Package, "slot": f.Slot, "feature": f.Feature.String(),
	})
}

func (n *controllerNotifier) FeatureRemoved(pkg string, pair provider.FeaturePair) {
	o := n.orch()
	o.notifyObservers(pair, provider.StatusUnavailable)
	if o.metrics != nil {
		o.metrics.RecordFeatureEvent(pkg, pair.Slot, pair.Feature.String(), "removed")
	}
	o.emit("feature_removed", map[string]any{
		"package": pkg, "slot": pair.Slot, "feature": pair.Feature.String(),
	})
}

func (n *controllerNotifier) FeatureStatusChanged(f *binding.RemoteFeature, status provider.FeatureStatus) {
	o := n.orch()
	o.notifyObservers(f.Pair(), status)
	if o.metrics != nil {
		o.metrics.RecordFeatureEvent(f.Package, f.Slot, f.Feature.String(), status.String())
	}
	o.emit("feature_status", map[string]any{
		"package": f.Package, "slot": f.Slot,
		"feature": f.Feature.String(), "status": status.String(),
	})
}

func (n *controllerNotifier) StateChanged(pkg string, from, to binding.State) {
	o := n.orch()
	if o.metrics != nil {
		o.metrics.RecordStateChange(pkg, from.String(), to.String())
	}
	o.emit("binding_state", map[string]any{
		"package": pkg, "from": from.String(), "to": to.String(),
	})
}

func (n *controllerNotifier) ProviderFeatureSetChanged(pkg string, features provider.FeatureSet) {
	n.orch().post(event{kind: eventProviderFeatures, pkg: pkg, features: features})
}
