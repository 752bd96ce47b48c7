package dao

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/insersa/iscore"
	"github.com/insersa/iscore/dialect"
	"github.com/insersa/iscore/schema"
	"github.com/insersa/iscore/schema/edge"
)

// Factory constructs the DAO of an entity. Entities whose statements need
// custom behavior register their own factory; the others use NewWithConfig.
// A factory must not call Registry.DAO.
type Factory func(vo *schema.VOInfo, cfg *Config) (*DAO, error)

// Registry hands out one DAO per entity of a schema registry and resolves
// the entities they link to by name.
type Registry struct {
	schemas *schema.Registry
	cfg     *Config

	mu        sync.Mutex
	factories map[string]Factory
	daos      map[string]*DAO
}

// NewRegistry returns the DAO registry of schemas. DAOs are handed out once
// the schema registry, name mapping included, is frozen.
func NewRegistry(schemas *schema.Registry, opts ...Option) (*Registry, error) {
	cfg, err := NewConfig(opts...)
	if err != nil {
		return nil, err
	}
	return &Registry{
		schemas:   schemas,
		cfg:       cfg,
		factories: make(map[string]Factory),
		daos:      make(map[string]*DAO),
	}, nil
}

// Config returns the configuration shared by the DAOs of the registry.
func (r *Registry) Config() *Config { return r.cfg }

// Register sets the factory of an entity. It fails once the entity's DAO
// was handed out.
func (r *Registry) Register(entity string, f Factory) error {
	if f == nil {
		return iscore.NewConfigError(entity, "", "factory", "nil factory")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.daos[entity]; ok {
		return iscore.NewConfigError(entity, "", "factory", "DAO already in use")
	}
	r.factories[entity] = f
	return nil
}

// DAO returns the DAO of the named entity, constructing it on first use.
func (r *Registry) DAO(entity string) (*DAO, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.daos[entity]; ok {
		return d, nil
	}
	if !r.schemas.Frozen() {
		return nil, iscore.NewConfigError(entity, "", "dao", "schema registry is not frozen")
	}
	vo, ok := r.schemas.Lookup(entity)
	if !ok {
		return nil, iscore.NewConfigError(entity, "", "dao", "entity is not registered")
	}
	f, ok := r.factories[entity]
	if !ok {
		f = func(vo *schema.VOInfo, cfg *Config) (*DAO, error) { return NewWithConfig(vo, cfg), nil }
	}
	d, err := f(vo, r.cfg)
	if err != nil {
		return nil, &iscore.ConfigError{Entity: entity, Op: "dao", Cause: err}
	}
	if d == nil {
		return nil, iscore.NewConfigError(entity, "", "dao", "factory returned no DAO")
	}
	d.related = r
	r.daos[entity] = d
	return d, nil
}

// Readers returns the entities whose selects read table through their
// primary table, a join or a multiselect link table.
func (r *Registry) Readers(table string) []string {
	var out []string
	for _, name := range r.schemas.Names() {
		vo, ok := r.schemas.Lookup(name)
		if !ok {
			continue
		}
		if slices.Contains(vo.AllTables(), table) ||
			slices.ContainsFunc(vo.Multiselects(), func(m edge.Multiselect) bool { return m.LinkTable == table }) {
			out = append(out, name)
		}
	}
	return out
}

// MustDAO is like DAO but panics on error.
func (r *Registry) MustDAO(entity string) *DAO {
	d, err := r.DAO(entity)
	if err != nil {
		panic(err)
	}
	return d
}

// NextID allocates the next value of the named sequence in the configured
// sequence table.
func (r *Registry) NextID(ctx context.Context, drv dialect.Driver, name string) (int64, error) {
	if name == "" {
		return 0, errors.New("dao: sequence name is required")
	}
	return nextID(ctx, drv, r.cfg.SequenceTable, name)
}
