package dao

import (
	"context"
	"fmt"
	"slices"

	"github.com/insersa/iscore"
	"github.com/insersa/iscore/dialect/sql"
	"github.com/insersa/iscore/privacy"
	"github.com/insersa/iscore/schema"
)

// Resolver returns the statement builder of a related entity.
type Resolver interface {
	DAO(entity string) (*DAO, error)
	// Readers returns the entities whose selects read table.
	Readers(table string) []string
}

// DAO builds the statements of one entity. Building is pure: it performs no
// I/O and a DAO is safe for concurrent use.
type DAO struct {
	vo      *schema.VOInfo
	cfg     *Config
	related Resolver
}

// New returns the statement builder of vo. Without a Resolver, requests
// naming child or parent links fail to build.
func New(vo *schema.VOInfo, opts ...Option) (*DAO, error) {
	cfg, err := NewConfig(opts...)
	if err != nil {
		return nil, err
	}
	return NewWithConfig(vo, cfg), nil
}

// NewWithConfig returns the statement builder of vo using cfg.
func NewWithConfig(vo *schema.VOInfo, cfg *Config) *DAO {
	return &DAO{vo: vo, cfg: cfg}
}

// Entity returns the entity name.
func (d *DAO) Entity() string { return d.vo.Name() }

// Info returns the entity metadata.
func (d *DAO) Info() *schema.VOInfo { return d.vo }

// Config returns the builder configuration.
func (d *DAO) Config() *Config { return d.cfg }

func (d *DAO) resolve(entity string) (*DAO, error) {
	if d.related == nil {
		return nil, fmt.Errorf("no resolver for related entity %s", entity)
	}
	return d.related.DAO(entity)
}

// security returns the security clause of the entity for viewer and mode.
func (d *DAO) security(ctx context.Context, viewer privacy.Viewer, mode privacy.Mode) (string, error) {
	if d.cfg.Authorizer == nil {
		return "", nil
	}
	clause, err := d.cfg.Authorizer.SecurityClause(ctx, d.vo.Name(), viewer, mode)
	if err != nil {
		if iscore.IsPrivacyError(err) {
			return "", err
		}
		return "", iscore.NewPrivacyError(d.vo.Name(), mode.String(), err)
	}
	return privacy.Paren(clause), nil
}

// readers returns the entities whose cached results a write to tables
// makes stale, the entity itself included.
func (d *DAO) readers(tables []string) []string {
	out := []string{d.vo.Name()}
	if d.related != nil {
		for _, t := range tables {
			out = append(out, d.related.Readers(t)...)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// session attaches the configured session variables of viewer, or of the
// context's viewer when nil, to ctx. It returns their values too.
func (d *DAO) session(ctx context.Context, viewer privacy.Viewer) (context.Context, []any) {
	if d.cfg.SessionUser == "" && d.cfg.SessionTenant == "" {
		return ctx, nil
	}
	if viewer == nil {
		viewer = privacy.ViewerFromContext(ctx)
	}
	var user, tenant string
	if viewer != nil {
		user, tenant = viewer.GetID(), viewer.GetTenantID()
	}
	var (
		vars   []sql.SessionVar
		values []any
	)
	if d.cfg.SessionUser != "" {
		vars = append(vars, sql.SessionVar{Name: d.cfg.SessionUser, Value: user})
		values = append(values, user)
	}
	if d.cfg.SessionTenant != "" {
		vars = append(vars, sql.SessionVar{Name: d.cfg.SessionTenant, Value: tenant})
		values = append(values, tenant)
	}
	return sql.WithSession(ctx, vars...), values
}

func (d *DAO) buildErr(attr, op string, err error) error {
	return iscore.NewBuildError(d.vo.Name(), attr, op, err)
}

func (d *DAO) debug(ctx context.Context, msg string, args ...any) {
	d.cfg.Logger.DebugContext(ctx, msg, append([]any{"entity", d.vo.Name()}, args...)...)
}
