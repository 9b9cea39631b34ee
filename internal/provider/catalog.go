package provider

import (
	"context"
	"fmt"
	"sync"
)

// Logger defines the logging interface used by the Catalog.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Catalog caches discovered provider candidates.
//
// Candidates enter through Discover or Upsert and persist until explicit
// removal. A candidate whose declared protection marker does not match the
// expected value is dropped during discovery unless the marker-mismatch
// override is set.
//
// All public methods are thread-safe. Returned candidates are deep copies;
// callers can safely modify them.
type Catalog struct {
	directory      Directory
	expectedMarker string

	mu            sync.RWMutex
	entries       map[string]*Candidate
	allowMismatch bool

	logger Logger
}

// NewCatalog creates a catalog that discovers candidates through directory
// and admits only candidates declaring expectedMarker.
func NewCatalog(directory Directory, expectedMarker string) *Catalog {
	return &Catalog{
		directory:      directory,
		expectedMarker: expectedMarker,
		entries:        make(map[string]*Candidate),
		logger:         noopLogger{},
	}
}

// SetLogger sets the logger for the catalog.
func (c *Catalog) SetLogger(logger Logger) {
	c.logger = logger
}

// SetAllowMarkerMismatch toggles the test-only override that admits
// candidates with a mismatched protection marker.
func (c *Catalog) SetAllowMarkerMismatch(allow bool) {
	c.mu.Lock()
	c.allowMismatch = allow
	c.mu.Unlock()
}

// Discover queries the provider directory and merges the result into the
// cache. A non-empty filterPackage restricts the query to one package.
// Returns copies of the candidates that were admitted by this call.
func (c *Catalog) Discover(ctx context.Context, filterPackage string) ([]*Candidate, error) {
	descriptors, err := c.directory.Query(ctx, filterPackage)
	if err != nil {
		return nil, fmt.Errorf("discovering providers: %w", err)
	}

	var admitted []*Candidate
	for _, desc := range descriptors {
		cand, err := c.candidateFromDescriptor(desc)
		if err != nil {
			c.logger.Warn("dropping provider candidate",
				"package", desc.Package,
				"reason", err.Error(),
			)
			continue
		}

		c.Upsert(cand)
		admitted = append(admitted, cand.DeepCopy())
	}

	c.logger.Debug("discovery complete",
		"filter", filterPackage,
		"reported", len(descriptors),
		"admitted", len(admitted),
	)
	return admitted, nil
}

// candidateFromDescriptor validates a descriptor and builds a candidate.
func (c *Catalog) candidateFromDescriptor(desc Descriptor) (*Candidate, error) {
	if desc.Package == "" {
		return nil, fmt.Errorf("empty package name")
	}

	if desc.Marker != c.expectedMarker {
		c.mu.RLock()
		allow := c.allowMismatch
		c.mu.RUnlock()
		if !allow {
			return nil, fmt.Errorf("%w: got %q", ErrMarkerMismatch, desc.Marker)
		}
	}

	declared := make(FeatureSet)
	if !desc.DynamicQuery {
		for _, df := range desc.Features {
			feat, err := ParseFeature(df.Feature)
			if err != nil {
				return nil, err
			}
			if df.Slot < 0 {
				return nil, fmt.Errorf("%w: negative slot %d", ErrInvalidPair, df.Slot)
			}
			declared.Add(FeaturePair{Slot: df.Slot, Feature: feat})
		}
	}

	return &Candidate{
		Package:      desc.Package,
		Declared:     declared,
		PendingQuery: desc.DynamicQuery || declared.Len() == 0,
		Strategy:     ParseStrategyKind(desc.Flavor),
		Marker:       desc.Marker,
	}, nil
}

// Upsert merges or replaces a cached entry by package identity.
func (c *Catalog) Upsert(cand *Candidate) {
	c.mu.Lock()
	c.entries[cand.Package] = cand.DeepCopy()
	c.mu.Unlock()
}

// Get retrieves a candidate by package identity.
// Returns ErrCandidateNotFound if the package is not cached.
func (c *Catalog) Get(pkg string) (*Candidate, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if cand, ok := c.entries[pkg]; ok {
		return cand.DeepCopy(), nil
	}
	return nil, ErrCandidateNotFound
}

// SetDeclared replaces a cached candidate's feature set, typically after a
// capability query completes. Clears the pending-query flag.
func (c *Catalog) SetDeclared(pkg string, fs FeatureSet) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	cand, ok := c.entries[pkg]
	if !ok {
		return ErrCandidateNotFound
	}
	cand.Declared = fs.Clone()
	cand.PendingQuery = false
	return nil
}

// Remove drops a candidate from the cache.
// Returns true if an entry was removed.
func (c *Catalog) Remove(pkg string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[pkg]; !ok {
		return false
	}
	delete(c.entries, pkg)
	return true
}

// List returns copies of all cached candidates.
func (c *Catalog) List() []*Candidate {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]*Candidate, 0, len(c.entries))
	for _, cand := range c.entries {
		out = append(out, cand.DeepCopy())
	}
	return out
}

// Count returns the number of cached candidates.
func (c *Catalog) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
