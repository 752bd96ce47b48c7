package schema

import (
	"fmt"
	"slices"
	"strings"

	"github.com/insersa/iscore"
	"github.com/insersa/iscore/schema/edge"
	"github.com/insersa/iscore/schema/field"
)

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithEqualByDefault makes string attributes without a declared predicate
// kind search by equality instead of by case-insensitive substring.
func WithEqualByDefault(equal bool) BuilderOption {
	return func(b *Builder) {
		b.vo.equalByDefault = equal
	}
}

// Builder builds the metadata of one entity. Errors are collected and
// reported together by Build.
type Builder struct {
	vo   *VOInfo
	errs []error
}

// NewBuilder returns a builder for the entity name stored in table.
func NewBuilder(name, table string, opts ...BuilderOption) *Builder {
	b := &Builder{
		vo: &VOInfo{
			name:  name,
			table: table,
			attrs: make(map[string]*AttributeInfo),
			omit:  make(map[string]struct{}),
		},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Builder) fail(attr, op, format string, args ...any) *Builder {
	b.errs = append(b.errs, iscore.NewConfigError(b.vo.name, attr, op, fmt.Sprintf(format, args...)))
	return b
}

// Attribute adds an attribute. A zero Position places the attribute after
// all attributes added so far.
func (b *Builder) Attribute(a AttributeInfo) *Builder {
	if a.Name == "" {
		return b.fail("", "attribute", "attribute name is required")
	}
	if _, ok := b.vo.attrs[a.Name]; ok {
		return b.fail(a.Name, "attribute", "duplicate attribute")
	}
	if !a.Type.Valid() {
		return b.fail(a.Name, "attribute", "invalid type %s", a.Type)
	}
	if a.Position == 0 {
		for _, o := range b.vo.ordered {
			a.Position = max(a.Position, o.Position)
		}
		a.Position++
	}
	a.Entity = b.vo.name
	b.vo.attrs[a.Name] = &a
	b.vo.ordered = append(b.vo.ordered, &a)
	return b
}

// ID adds the id attribute.
func (b *Builder) ID(name string, t field.Type) *Builder {
	b.vo.idField = name
	return b.Attribute(AttributeInfo{Name: name, Type: t})
}

// Timestamp adds the attribute guarding updates and deletes against stale
// writes. Its type is TypeTime for database timestamps or TypeInt64 for
// epoch milliseconds.
func (b *Builder) Timestamp(name string, t field.Type) *Builder {
	b.vo.timestampField = name
	return b.Attribute(AttributeInfo{Name: name, Type: t})
}

// AuditUser adds the attribute recording the user of the last write.
func (b *Builder) AuditUser(name string) *Builder {
	b.vo.auditUserField = name
	return b.Attribute(AttributeInfo{Name: name, Type: field.TypeString, Predicate: field.PredicateEqual})
}

// Roles designates attributes added with Attribute as the id, timestamp and
// audit-user attributes. Empty names leave a role unchanged.
func (b *Builder) Roles(id, timestamp, auditUser string) *Builder {
	if id != "" {
		b.vo.idField = id
	}
	if timestamp != "" {
		b.vo.timestampField = timestamp
	}
	if auditUser != "" {
		b.vo.auditUserField = auditUser
	}
	return b
}

// Sequence sets the sequence allocating ids.
func (b *Builder) Sequence(name string) *Builder {
	b.vo.sequence = name
	return b
}

// ReadOnly marks attributes of the primary table that inserts and updates
// never write, e.g. columns filled by triggers.
func (b *Builder) ReadOnly(names ...string) *Builder {
	for _, n := range names {
		b.vo.omit[n] = struct{}{}
	}
	return b
}

// Join joins table to the primary table.
func (b *Builder) Join(table, on string) *Builder {
	switch {
	case table == "" || strings.TrimSpace(on) == "":
		return b.fail("", "join", "join %q needs a table and an ON clause", table)
	case table == b.vo.table:
		return b.fail("", "join", "cannot join the primary table %q", table)
	case slices.ContainsFunc(b.vo.joins, func(j JoinInfo) bool { return j.Table == table }):
		return b.fail("", "join", "duplicate join of table %q", table)
	}
	b.vo.joins = append(b.vo.joins, JoinInfo{Table: table, On: on})
	return b
}

// Sort appends a sort definition. The first definition is the default.
func (b *Builder) Sort(id string, items ...SortItem) *Builder {
	if len(items) == 0 {
		return b.fail("", "sort", "sort %q has no items", id)
	}
	for _, it := range items {
		if strings.TrimSpace(it.Field) == "" {
			return b.fail("", "sort", "sort %q has an empty field", id)
		}
	}
	if id != "" && slices.ContainsFunc(b.vo.sorts, func(s SortInfo) bool { return s.ID == id }) {
		return b.fail("", "sort", "duplicate sort key %q", id)
	}
	b.vo.sorts = append(b.vo.sorts, SortInfo{ID: id, Items: slices.Clone(items)})
	return b
}

// Children adds a child link.
func (b *Builder) Children(c edge.Children) *Builder {
	if err := c.Validate(); err != nil {
		return b.fail(c.MasterLinkField, "children", "%s: %v", c.Name, err)
	}
	b.vo.children = append(b.vo.children, c)
	return b
}

// Parent adds a parent link.
func (b *Builder) Parent(p edge.Parent) *Builder {
	if err := p.Validate(); err != nil {
		return b.fail(p.ChildLinkField, "parent", "%s: %v", p.Name, err)
	}
	b.vo.parents = append(b.vo.parents, p)
	return b
}

// Multiselect adds a multiselect link.
func (b *Builder) Multiselect(m edge.Multiselect) *Builder {
	if err := m.Validate(); err != nil {
		return b.fail("", "multiselect", "%s: %v", m.Name, err)
	}
	b.vo.multiselects = append(b.vo.multiselects, m)
	return b
}

// DelCascade adds a table whose rows referencing a record are deleted with it.
func (b *Builder) DelCascade(d edge.DelCascade) *Builder {
	if err := d.Validate(); err != nil {
		return b.fail("", "cascade", "%v", err)
	}
	b.vo.cascades = append(b.vo.cascades, d)
	return b
}

// Build validates the metadata and computes the derived sets. All problems
// found are returned as ConfigErrors, aggregated when there are several.
func (b *Builder) Build() (*VOInfo, error) {
	vo := b.vo
	errs := slices.Clone(b.errs)
	add := func(attr, op, format string, args ...any) {
		errs = append(errs, iscore.NewConfigError(vo.name, attr, op, fmt.Sprintf(format, args...)))
	}
	if vo.name == "" {
		add("", "build", "entity name is required")
	}
	if vo.table == "" {
		add("", "build", "primary table is required")
	}
	if vo.idField == "" {
		add("", "build", "id attribute is required")
	} else if _, ok := vo.attrs[vo.idField]; !ok {
		add(vo.idField, "build", "id attribute is not declared")
	}
	if ts := vo.timestampField; ts != "" {
		switch a, ok := vo.attrs[ts]; {
		case !ok:
			add(ts, "build", "timestamp attribute is not declared")
		case a.Type != field.TypeTime && a.Type != field.TypeInt64 && a.Type != field.TypeDate:
			add(ts, "build", "timestamp must be a time or int64 attribute, got %s", a.Type)
		case a.TableName(vo.table) != vo.table:
			add(ts, "build", "timestamp must be stored in the primary table")
		}
	}
	if au := vo.auditUserField; au != "" {
		if _, ok := vo.attrs[au]; !ok {
			add(au, "build", "audit-user attribute is not declared")
		}
	}
	tables := map[string]bool{vo.table: true}
	for _, j := range vo.joins {
		tables[j.Table] = true
	}
	positions := make(map[int]string, len(vo.ordered))
	for _, a := range vo.ordered {
		if other, ok := positions[a.Position]; ok {
			add(a.Name, "build", "position %d already used by %s", a.Position, other)
		}
		positions[a.Position] = a.Name
		if tbl := a.TableName(vo.table); !tables[tbl] {
			add(a.Name, "build", "table %q is neither the primary table nor joined", tbl)
		}
		a.Predicate = field.Resolve(a.Type, a.Predicate, vo.equalByDefault)
	}
	for name := range vo.omit {
		if _, ok := vo.attrs[name]; !ok {
			add(name, "build", "read-only attribute is not declared")
		}
	}
	for _, c := range vo.children {
		if _, ok := vo.attrs[c.MasterLinkField]; !ok {
			add(c.MasterLinkField, "build", "master link field of children %q is not declared", c.Name)
		}
	}
	for _, p := range vo.parents {
		if _, ok := vo.attrs[p.ChildLinkField]; !ok {
			add(p.ChildLinkField, "build", "link field of parent %q is not declared", p.Name)
		}
	}
	if err := iscore.NewAggregateError(errs...); err != nil {
		return nil, err
	}
	slices.SortStableFunc(vo.ordered, func(x, y *AttributeInfo) int { return x.Position - y.Position })
	if len(vo.sorts) == 0 {
		vo.sorts = []SortInfo{{Items: []SortItem{Asc(vo.idField, true)}}}
	}
	vo.derive()
	return vo, nil
}

// MustBuild is like Build but panics on error. Intended for tests and
// metadata declared in code.
func (b *Builder) MustBuild() *VOInfo {
	vo, err := b.Build()
	if err != nil {
		panic(err)
	}
	return vo
}
