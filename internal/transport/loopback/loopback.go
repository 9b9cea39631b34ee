// Package loopback provides an in-process connection strategy. It hosts
// feature providers inside the service itself, which keeps single-box
// deployments and development setups free of an external transport.
package loopback

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/nerrad567/slotline/internal/provider"
)

var (
	// ErrUnknownProvider is returned when a connect or query names a
	// package that is not hosted here.
	ErrUnknownProvider = errors.New("loopback: unknown provider")

	// ErrProviderDown is returned when the hosted provider has been
	// taken down.
	ErrProviderDown = errors.New("loopback: provider is down")
)

// Strategy hosts in-process providers and satisfies the connection
// strategy contract against them.
type Strategy struct {
	mu        sync.RWMutex
	providers map[string]*Provider
}

// NewStrategy creates an empty loopback strategy.
func NewStrategy() *Strategy {
	return &Strategy{providers: make(map[string]*Provider)}
}

// InterfaceName identifies the loopback transport.
func (s *Strategy) InterfaceName() string { return "loopback" }

// Register hosts a provider under the given package name, replacing any
// previous registration. The returned Provider drives the simulated
// remote side: feature statuses, feature set changes and crashes.
func (s *Strategy) Register(pkg string, features provider.FeatureSet) *Provider {
	p := &Provider{
		pkg:      pkg,
		features: features.Clone(),
		statuses: make(map[provider.FeaturePair]provider.FeatureStatus),
	}
	s.mu.Lock()
	s.providers[pkg] = p
	s.mu.Unlock()
	return p
}

// Unregister removes a hosted provider. Live connections to it die.
func (s *Strategy) Unregister(pkg string) {
	s.mu.Lock()
	p := s.providers[pkg]
	delete(s.providers, pkg)
	s.mu.Unlock()
	if p != nil {
		p.Crash()
	}
}

// Connect delivers a live connection on a fresh goroutine. Delivering
// asynchronously matches real transports and keeps callers free to hold
// their own locks while connecting.
func (s *Strategy) Connect(pkg string, events provider.ConnectionEvents) (func(), error) {
	s.mu.RLock()
	p := s.providers[pkg]
	s.mu.RUnlock()
	if p == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, pkg)
	}

	var cancelled sync.Once
	abandoned := make(chan struct{})
	go func() {
		conn, err := p.attach()
		if err != nil {
			events.OnDied()
			return
		}
		select {
		case <-abandoned:
			_ = conn.Close()
		default:
			events.OnConnected(conn)
		}
	}()

	cancel := func() {
		cancelled.Do(func() { close(abandoned) })
	}
	return cancel, nil
}

// QueryFeatures reports the hosted provider's current feature set.
func (s *Strategy) QueryFeatures(_ context.Context, pkg string) (provider.FeatureSet, error) {
	s.mu.RLock()
	p := s.providers[pkg]
	s.mu.RUnlock()
	if p == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, pkg)
	}
	return p.Features(), nil
}

// Provider is one hosted in-process provider.
type Provider struct {
	pkg string

	mu       sync.Mutex
	features provider.FeatureSet
	statuses map[provider.FeaturePair]provider.FeatureStatus
	conns    []*conn
	down     bool
}

// Features returns the provider's current feature set.
func (p *Provider) Features() provider.FeatureSet {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.features.Clone()
}

// SetFeatures replaces the provider's feature set and announces the
// change on every live connection.
func (p *Provider) SetFeatures(features provider.FeatureSet) {
	p.mu.Lock()
	p.features = features.Clone()
	conns := append([]*conn{}, p.conns...)
	p.mu.Unlock()
	for _, c := range conns {
		c.announceFeatureSet(features.Clone())
	}
}

// SetFeatureStatus pushes a status transition for one feature on every
// connection that has it created.
func (p *Provider) SetFeatureStatus(pair provider.FeaturePair, status provider.FeatureStatus) {
	p.mu.Lock()
	p.statuses[pair] = status
	conns := append([]*conn{}, p.conns...)
	p.mu.Unlock()
	for _, c := range conns {
		c.pushStatus(pair, status)
	}
}

// TakeDown kills every live connection and makes further attach
// attempts fail with ErrProviderDown, simulating a provider that is
// installed but refusing service. Restore reverses it.
func (p *Provider) TakeDown() {
	p.mu.Lock()
	p.down = true
	conns := p.conns
	p.conns = nil
	p.mu.Unlock()
	for _, c := range conns {
		c.die()
	}
}

// Restore lets a taken-down provider accept connections again.
func (p *Provider) Restore() {
	p.mu.Lock()
	p.down = false
	p.mu.Unlock()
}

// Crash kills every live connection, simulating a provider process
// death. The provider can be attached again afterwards.
func (p *Provider) Crash() {
	p.mu.Lock()
	conns := p.conns
	p.conns = nil
	p.mu.Unlock()
	for _, c := range conns {
		c.die()
	}
}

func (p *Provider) attach() (*conn, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.down {
		return nil, ErrProviderDown
	}
	c := &conn{
		provider:  p,
		observers: make(map[provider.FeaturePair]provider.StatusObserver),
	}
	p.conns = append(p.conns, c)
	return c, nil
}

func (p *Provider) detach(target *conn) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, c := range p.conns {
		if c == target {
			p.conns = append(p.conns[:i], p.conns[i+1:]...)
			return
		}
	}
}

func (p *Provider) statusFor(pair provider.FeaturePair) provider.FeatureStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.statuses[pair]
}

// conn is one live loopback connection.
type conn struct {
	provider *Provider

	mu        sync.Mutex
	observers map[provider.FeaturePair]provider.StatusObserver
	deathFns  map[uint64]func()
	fsetFns   map[uint64]func(provider.FeatureSet)
	seq       uint64
	closed    bool
}

func (c *conn) CreateFeature(slot int, feature provider.Feature, observer provider.StatusObserver) (string, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return "", ErrProviderDown
	}
	pair := provider.FeaturePair{Slot: slot, Feature: feature}
	c.observers[pair] = observer
	c.mu.Unlock()

	// Replay the provider's current status so a feature created after a
	// status transition does not miss it.
	if status := c.provider.statusFor(pair); observer != nil {
		go observer(status)
	}
	return uuid.New().String(), nil
}

func (c *conn) RemoveFeature(slot int, feature provider.Feature) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrProviderDown
	}
	delete(c.observers, provider.FeaturePair{Slot: slot, Feature: feature})
	return nil
}

func (c *conn) SetSlotEnabled(int, bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrProviderDown
	}
	return nil
}

func (c *conn) SubscribeFeatureSetChanged(fn func(provider.FeatureSet)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fsetFns == nil {
		c.fsetFns = make(map[uint64]func(provider.FeatureSet))
	}
	c.seq++
	id := c.seq
	c.fsetFns[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.fsetFns, id)
	}
}

func (c *conn) SubscribeDeath(fn func()) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.deathFns == nil {
		c.deathFns = make(map[uint64]func())
	}
	c.seq++
	id := c.seq
	c.deathFns[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.deathFns, id)
	}
}

func (c *conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()
	c.provider.detach(c)
	return nil
}

func (c *conn) die() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	fns := make([]func(), 0, len(c.deathFns))
	for _, fn := range c.deathFns {
		fns = append(fns, fn)
	}
	c.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (c *conn) pushStatus(pair provider.FeaturePair, status provider.FeatureStatus) {
	c.mu.Lock()
	observer := c.observers[pair]
	c.mu.Unlock()
	if observer != nil {
		observer(status)
	}
}

func (c *conn) announceFeatureSet(features provider.FeatureSet) {
	c.mu.Lock()
	fns := make([]func(provider.FeatureSet), 0, len(c.fsetFns))
	for _, fn := range c.fsetFns {
		fns = append(fns, fn)
	}
	c.mu.Unlock()
	for _, fn := range fns {
		fn(features)
	}
}
