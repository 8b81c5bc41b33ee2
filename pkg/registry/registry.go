package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"apiorch/pkg/models"

	"github.com/rs/zerolog"
)

// Store is the external source of endpoint records.
type Store interface {
	// LoadActiveEndpoints returns every endpoint with status=active.
	LoadActiveEndpoints(ctx context.Context) ([]models.Endpoint, error)
}

// Entry owns one endpoint record and the lock guarding it.
type Entry struct {
	name string

	mu sync.RWMutex
	ep models.Endpoint
}

func newEntry(ep models.Endpoint) *Entry {
	if ep.HealthStatus == "" {
		ep.HealthStatus = models.HealthUnknown
	}
	if ep.TotalRequests == 0 && ep.SuccessRate == 0 {
		ep.SuccessRate = 1
	}
	return &Entry{name: ep.Name, ep: ep.Clone()}
}

// Name is immutable for the lifetime of the entry.
func (e *Entry) Name() string {
	return e.name
}

// Snapshot returns a copy of the record.
func (e *Entry) Snapshot() models.Endpoint {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ep.Clone()
}

// Update mutates the record under the entry's write lock. fn must not block.
func (e *Entry) Update(fn func(ep *models.Endpoint)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(&e.ep)
	e.ep.Name = e.name
}

func (e *Entry) priority() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ep.FailoverPriority
}

// applyStatic copies configuration fields from a freshly loaded record, keeping runtime state.
func (e *Entry) applyStatic(src models.Endpoint) {
	e.Update(func(ep *models.Endpoint) {
		fresh := src.Clone()
		ep.ID = fresh.ID
		ep.BaseURL = fresh.BaseURL
		ep.AuthType = fresh.AuthType
		ep.RateLimitPerMinute = fresh.RateLimitPerMinute
		ep.RateLimitPerHour = fresh.RateLimitPerHour
		ep.Status = fresh.Status
		ep.AllowAutomaticFailover = fresh.AllowAutomaticFailover
		ep.FailoverPriority = fresh.FailoverPriority
		ep.Configuration = fresh.Configuration
	})
}

type table struct {
	byName  map[string]*Entry
	ordered []*Entry
}

// Registry is the authoritative in-memory set of endpoints.
type Registry struct {
	store  Store
	logger zerolog.Logger

	table    atomic.Pointer[table]
	reloadMu sync.Mutex
}

// New creates an empty registry backed by store. A nil store allows only Register.
func New(store Store, logger zerolog.Logger) *Registry {
	r := &Registry{
		store:  store,
		logger: logger.With().Str("component", "registry").Logger(),
	}
	r.table.Store(&table{byName: map[string]*Entry{}})
	return r
}

// Load reads active endpoints from the store and publishes them.
func (r *Registry) Load(ctx context.Context) error {
	return r.Reload(ctx)
}

// Reload re-reads the store and atomically swaps the whole table.
// Existing entries keep their runtime state; missing names drop out.
func (r *Registry) Reload(ctx context.Context) error {
	if r.store == nil {
		return fmt.Errorf("%w: no store configured", ErrStoreUnavailable)
	}

	records, err := r.store.LoadActiveEndpoints(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	seen := make(map[string]bool, len(records))
	for _, rec := range records {
		if err := Validate(rec); err != nil {
			return err
		}
		if seen[rec.Name] {
			return &ConfigurationError{Endpoint: rec.Name, Field: "name", Reason: "is duplicated"}
		}
		seen[rec.Name] = true
	}

	r.reloadMu.Lock()
	defer r.reloadMu.Unlock()

	current := r.table.Load()
	next := &table{byName: make(map[string]*Entry, len(records))}
	for _, rec := range records {
		if rec.Status != models.StatusActive {
			continue
		}
		entry, ok := current.byName[rec.Name]
		if ok {
			entry.applyStatic(rec)
		} else {
			entry = newEntry(rec)
		}
		next.byName[rec.Name] = entry
		next.ordered = append(next.ordered, entry)
	}
	sortByPriority(next.ordered)

	dropped := 0
	for name := range current.byName {
		if _, ok := next.byName[name]; !ok {
			dropped++
		}
	}

	r.table.Store(next)

	r.logger.Info().
		Int("endpoints", len(next.ordered)).
		Int("dropped", dropped).
		Msg("endpoint registry loaded")

	return nil
}

// Register adds or replaces a single endpoint without consulting the store.
func (r *Registry) Register(ep models.Endpoint) error {
	if err := Validate(ep); err != nil {
		return err
	}

	r.reloadMu.Lock()
	defer r.reloadMu.Unlock()

	current := r.table.Load()
	next := &table{byName: make(map[string]*Entry, len(current.byName)+1)}
	for _, entry := range current.ordered {
		if entry.Name() == ep.Name {
			continue
		}
		next.byName[entry.Name()] = entry
		next.ordered = append(next.ordered, entry)
	}

	if ep.Status == models.StatusActive {
		entry := newEntry(ep)
		if existing, ok := current.byName[ep.Name]; ok {
			existing.applyStatic(ep)
			entry = existing
		}
		next.byName[ep.Name] = entry
		next.ordered = append(next.ordered, entry)
	}
	sortByPriority(next.ordered)

	r.table.Store(next)
	return nil
}

// Get returns the entry registered under name.
func (r *Registry) Get(name string) (*Entry, bool) {
	entry, ok := r.table.Load().byName[name]
	return entry, ok
}

// All returns every entry ordered by failover priority.
func (r *Registry) All() []*Entry {
	ordered := r.table.Load().ordered
	out := make([]*Entry, len(ordered))
	copy(out, ordered)
	return out
}

// Snapshots returns copies of all records in priority order.
func (r *Registry) Snapshots() []models.Endpoint {
	entries := r.All()
	out := make([]models.Endpoint, len(entries))
	for i, entry := range entries {
		out[i] = entry.Snapshot()
	}
	return out
}

// Update mutates the named record under its own lock.
func (r *Registry) Update(name string, fn func(ep *models.Endpoint)) error {
	entry, ok := r.Get(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrEndpointNotFound, name)
	}
	entry.Update(fn)
	return nil
}

// Len returns the number of registered endpoints.
func (r *Registry) Len() int {
	return len(r.table.Load().ordered)
}

func sortByPriority(entries []*Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].priority() < entries[j].priority()
	})
}
