package query

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/nerrad567/slotline/internal/provider"
)

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

// QueryFunc performs one transient capability query for a package.
type QueryFunc func(ctx context.Context, pkg string) (provider.FeatureSet, error)

// ResultFunc receives the outcome of a successful query.
type ResultFunc func(pkg string, features provider.FeatureSet)

var (
	// ErrNoQueryFunc is returned when a coordinator is constructed
	// without a query function.
	ErrNoQueryFunc = errors.New("query: query function is required")

	// ErrNoResultFunc is returned when a coordinator is constructed
	// without a result callback.
	ErrNoResultFunc = errors.New("query: result callback is required")
)

// Options configures a Coordinator.
type Options struct {
	// Query performs one capability query. Required.
	Query QueryFunc

	// OnResult receives successful query results. Required.
	OnResult ResultFunc

	// Timeout bounds a single query attempt. Defaults to 5 seconds.
	Timeout time.Duration

	// RetryDelay is the fixed delay before a failed query is retried.
	// Defaults to 10 seconds.
	RetryDelay time.Duration

	// Logger receives structured log output. Optional.
	Logger Logger
}

// Coordinator runs capability queries with per-package deduplication.
// A package has at most one query in flight or one retry pending at
// any time; further requests for it are absorbed.
type Coordinator struct {
	query      QueryFunc
	onResult   ResultFunc
	timeout    time.Duration
	retryDelay time.Duration
	logger     Logger

	mu       sync.Mutex
	inflight map[string]context.CancelFunc
	retries  map[string]*time.Timer
	stopped  bool

	wg sync.WaitGroup
}

// NewCoordinator creates a query coordinator.
func NewCoordinator(opts Options) (*Coordinator, error) {
	if opts.Query == nil {
		return nil, ErrNoQueryFunc
	}
	if opts.OnResult == nil {
		return nil, ErrNoResultFunc
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 10 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}
	return &Coordinator{
		query:      opts.Query,
		onResult:   opts.OnResult,
		timeout:    opts.Timeout,
		retryDelay: opts.RetryDelay,
		logger:     opts.Logger,
		inflight:   make(map[string]context.CancelFunc),
		retries:    make(map[string]*time.Timer),
	}, nil
}

// Request schedules a capability query for a package. Requests for a
// package that already has a query in flight or a retry pending are
// absorbed without starting a second query.
func (c *Coordinator) Request(pkg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	if _, ok := c.inflight[pkg]; ok {
		c.logger.Debug("query already in flight", "package", pkg)
		return
	}
	if _, ok := c.retries[pkg]; ok {
		c.logger.Debug("query retry already pending", "package", pkg)
		return
	}
	c.startLocked(pkg)
}

// Cancel abandons any in-flight query or pending retry for a package,
// used when the package disappears before its query completes.
func (c *Coordinator) Cancel(pkg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cancel, ok := c.inflight[pkg]; ok {
		cancel()
		delete(c.inflight, pkg)
	}
	if timer, ok := c.retries[pkg]; ok {
		timer.Stop()
		delete(c.retries, pkg)
	}
}

// Active returns the number of packages with a query in flight or a
// retry pending. The resolver reports itself as resolving while this
// is non-zero.
func (c *Coordinator) Active() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.inflight) + len(c.retries)
}

// Stop cancels all outstanding queries and waits for their goroutines
// to finish. The coordinator cannot be reused afterwards.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	c.stopped = true
	for pkg, cancel := range c.inflight {
		cancel()
		delete(c.inflight, pkg)
	}
	for pkg, timer := range c.retries {
		timer.Stop()
		delete(c.retries, pkg)
	}
	c.mu.Unlock()
	c.wg.Wait()
}

// startLocked launches the query goroutine. Caller holds mu.
func (c *Coordinator) startLocked(pkg string) {
	ctx, cancel := context.WithCancel(context.Background())
	c.inflight[pkg] = cancel
	c.wg.Add(1)

	go func() {
		defer c.wg.Done()
		defer cancel()

		qctx, qcancel := context.WithTimeout(ctx, c.timeout)
		features, err := c.query(qctx, pkg)
		qcancel()

		c.mu.Lock()
		_, ok := c.inflight[pkg]
		cancelled := !ok || ctx.Err() != nil
		if ok {
			delete(c.inflight, pkg)
		}
		if cancelled || c.stopped {
			c.mu.Unlock()
			c.logger.Debug("query abandoned", "package", pkg)
			return
		}
		if err != nil {
			c.scheduleRetryLocked(pkg)
			c.mu.Unlock()
			c.logger.Warn("capability query failed", "package", pkg,
				"retry_in", c.retryDelay.String(), "error", err)
			return
		}
		c.mu.Unlock()

		c.logger.Info("capability query completed", "package", pkg,
			"features", features.Strings())
		c.onResult(pkg, features)
	}()
}

// scheduleRetryLocked arms a fixed-delay retry. Caller holds mu.
func (c *Coordinator) scheduleRetryLocked(pkg string) {
	c.retries[pkg] = time.AfterFunc(c.retryDelay, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if _, ok := c.retries[pkg]; !ok {
			return
		}
		delete(c.retries, pkg)
		if c.stopped {
			return
		}
		c.startLocked(pkg)
	})
}
