package schema

import (
	"slices"
	"sync"
	"sync/atomic"

	"github.com/insersa/iscore"
)

// Registry holds the metadata of all entities, addressed by name. Entities
// reference each other by name only, so they may be registered in any order.
//
// Registration and name mapping happen during initialization. Freeze ends
// that phase; afterwards lookups take no lock and the registry is safe for
// unrestricted concurrent use.
type Registry struct {
	mu       sync.RWMutex
	entities []*VOInfo
	index    map[string]int
	frozen   atomic.Bool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{index: make(map[string]int)}
}

// Register adds the metadata of one entity.
func (r *Registry) Register(vo *VOInfo) error {
	if vo == nil {
		return iscore.NewConfigError("", "", "register", "nil metadata")
	}
	if r.frozen.Load() {
		return iscore.NewConfigError(vo.name, "", "register", "registry is frozen")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.index[vo.name]; ok {
		return iscore.NewConfigError(vo.name, "", "register", "entity already registered")
	}
	r.index[vo.name] = len(r.entities)
	r.entities = append(r.entities, vo)
	return nil
}

// MustRegister is like Register but panics on error.
func (r *Registry) MustRegister(vo *VOInfo) {
	if err := r.Register(vo); err != nil {
		panic(err)
	}
}

// RegisterAll builds and registers every builder. A builder that fails
// does not prevent the others from registering; all failures are returned
// together.
func (r *Registry) RegisterAll(builders ...*Builder) error {
	var errs []error
	for _, b := range builders {
		vo, err := b.Build()
		if err == nil {
			err = r.Register(vo)
		}
		errs = append(errs, err)
	}
	return iscore.NewAggregateError(errs...)
}

// Lookup returns the metadata of the named entity.
func (r *Registry) Lookup(name string) (*VOInfo, bool) {
	if !r.frozen.Load() {
		r.mu.RLock()
		defer r.mu.RUnlock()
	}
	i, ok := r.index[name]
	if !ok {
		return nil, false
	}
	return r.entities[i], true
}

// Names returns the registered entity names in registration order.
func (r *Registry) Names() []string {
	if !r.frozen.Load() {
		r.mu.RLock()
		defer r.mu.RUnlock()
	}
	names := make([]string, len(r.entities))
	for i, vo := range r.entities {
		names[i] = vo.name
	}
	return names
}

// ApplyMapping rewrites the physical columns of all entities. Every call
// starts over from the unmapped metadata, so applying the same mapping
// twice yields the same result and entities absent from m revert to their
// logical columns. It fails once the registry is frozen.
func (r *Registry) ApplyMapping(m Mapping) error {
	if r.frozen.Load() {
		return iscore.NewConfigError("", "", "mapping", "registry is frozen")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, vo := range r.entities {
		origin := vo.Origin()
		if cols := m.Columns(origin.name); len(cols) > 0 {
			r.entities[i] = origin.withMapping(cols)
		} else {
			r.entities[i] = origin
		}
	}
	return nil
}

// Freeze ends initialization. It is idempotent.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen.Store(true)
}

// Frozen reports if Freeze was called.
func (r *Registry) Frozen() bool { return r.frozen.Load() }

// Validate checks the links between registered entities.
func (r *Registry) Validate() *ValidationResult {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return validateLinks(slices.Clone(r.entities), func(name string) (*VOInfo, bool) {
		i, ok := r.index[name]
		if !ok {
			return nil, false
		}
		return r.entities[i], true
	})
}
