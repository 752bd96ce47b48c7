package schema

import (
	"maps"
	"slices"

	"github.com/insersa/iscore/schema/edge"
	"github.com/insersa/iscore/schema/field"
)

// VOInfo is the metadata of one value-object entity. It is built by a
// Builder and read-only afterwards; all methods are safe for concurrent use.
type VOInfo struct {
	name           string
	table          string
	idField        string
	timestampField string
	auditUserField string
	sequence       string
	equalByDefault bool

	attrs   map[string]*AttributeInfo
	ordered []*AttributeInfo // by position
	joins   []JoinInfo
	sorts   []SortInfo
	// omit lists attributes never written by inserts or updates.
	omit map[string]struct{}

	children     []edge.Children
	parents      []edge.Parent
	multiselects []edge.Multiselect
	cascades     []edge.DelCascade

	// Derived at build time.
	sortKeys       map[string]int
	joinIndex      map[string]int
	allTables      []string
	allJoinClauses []string
	noCreateUpdate map[string]struct{}
	selectAttrs    []string
	searchable     map[string]struct{}
	listAttrs      []string
	hiddenAttrs    []string
	requiredAttrs  []string
	types          map[string]field.Type

	// origin is the unmapped metadata a name mapping was applied to.
	origin *VOInfo
}

// Name returns the entity name.
func (v *VOInfo) Name() string { return v.name }

// Table returns the primary table.
func (v *VOInfo) Table() string { return v.table }

// IDField returns the id attribute name.
func (v *VOInfo) IDField() string { return v.idField }

// TimestampField returns the timestamp attribute name, if any.
func (v *VOInfo) TimestampField() string { return v.timestampField }

// AuditUserField returns the audit-user attribute name, if any.
func (v *VOInfo) AuditUserField() string { return v.auditUserField }

// Sequence returns the name of the sequence allocating ids, if any.
func (v *VOInfo) Sequence() string { return v.sequence }

// EqualByDefault reports if string attributes without a declared predicate
// kind are searched by equality.
func (v *VOInfo) EqualByDefault() bool { return v.equalByDefault }

// IDColumn returns the physical id column.
func (v *VOInfo) IDColumn() string { return v.attrs[v.idField].Column() }

// TimestampColumn returns the physical timestamp column, or "".
func (v *VOInfo) TimestampColumn() string {
	if v.timestampField == "" {
		return ""
	}
	return v.attrs[v.timestampField].Column()
}

// AuditUserColumn returns the physical audit-user column, or "".
func (v *VOInfo) AuditUserColumn() string {
	if v.auditUserField == "" {
		return ""
	}
	return v.attrs[v.auditUserField].Column()
}

// Attribute returns the attribute with the given name. Unknown names are
// reported as absent, never as an error.
func (v *VOInfo) Attribute(name string) (AttributeInfo, bool) {
	a, ok := v.attrs[name]
	if !ok {
		return AttributeInfo{}, false
	}
	return *a, true
}

// Attributes returns all attributes ordered by position.
func (v *VOInfo) Attributes() []AttributeInfo {
	attrs := make([]AttributeInfo, len(v.ordered))
	for i, a := range v.ordered {
		attrs[i] = *a
	}
	return attrs
}

// NamesInTable returns the names of attributes stored in table, by position.
func (v *VOInfo) NamesInTable(table string) []string {
	var names []string
	for _, a := range v.ordered {
		if a.TableName(v.table) == table {
			names = append(names, a.Name)
		}
	}
	return names
}

// Types returns the type of each attribute by name.
func (v *VOInfo) Types() map[string]field.Type {
	return maps.Clone(v.types)
}

// ColumnTypes returns the type of each attribute by physical column.
func (v *VOInfo) ColumnTypes() map[string]field.Type {
	types := make(map[string]field.Type, len(v.ordered))
	for _, a := range v.ordered {
		types[a.Column()] = a.Type
	}
	return types
}

// SelectFields returns the attributes stored in the primary or a joined
// table, by position. These are the searchable attributes.
func (v *VOInfo) SelectFields() []string {
	return slices.Clone(v.selectAttrs)
}

// Searchable reports if name is a searchable attribute.
func (v *VOInfo) Searchable(name string) bool {
	_, ok := v.searchable[name]
	return ok
}

// ListAttributes returns the attributes selected by list queries, by position.
func (v *VOInfo) ListAttributes() []string { return slices.Clone(v.listAttrs) }

// HiddenAttributes returns the attributes not shown to users, by position.
func (v *VOInfo) HiddenAttributes() []string { return slices.Clone(v.hiddenAttrs) }

// RequiredAttributes returns the attributes inserts must provide, by position.
func (v *VOInfo) RequiredAttributes() []string { return slices.Clone(v.requiredAttrs) }

// NoCreateUpdate reports if the attribute is never written from caller
// values: it lives outside the primary table, is the timestamp or audit
// attribute, or was declared read-only.
func (v *VOInfo) NoCreateUpdate(name string) bool {
	_, ok := v.noCreateUpdate[name]
	return ok
}

// NoCreateUpdateAttributes returns the NoCreateUpdate attributes, sorted.
func (v *VOInfo) NoCreateUpdateAttributes() []string {
	return slices.Sorted(maps.Keys(v.noCreateUpdate))
}

// AllTables returns the primary table followed by the joined tables.
func (v *VOInfo) AllTables() []string { return slices.Clone(v.allTables) }

// Joins returns the joined tables in declaration order.
func (v *VOInfo) Joins() []JoinInfo { return slices.Clone(v.joins) }

// Join returns the join of the given table.
func (v *VOInfo) Join(table string) (JoinInfo, bool) {
	i, ok := v.joinIndex[table]
	if !ok {
		return JoinInfo{}, false
	}
	return v.joins[i], true
}

// AllJoinClauses returns the ON clauses of all joins in declaration order.
func (v *VOInfo) AllJoinClauses() []string { return slices.Clone(v.allJoinClauses) }

// Children returns the child links.
func (v *VOInfo) Children() []edge.Children { return slices.Clone(v.children) }

// ChildrenByName returns the child link with the given name.
func (v *VOInfo) ChildrenByName(name string) (edge.Children, bool) {
	for _, c := range v.children {
		if c.Name == name {
			return c, true
		}
	}
	return edge.Children{}, false
}

// Parents returns the parent links.
func (v *VOInfo) Parents() []edge.Parent { return slices.Clone(v.parents) }

// ParentByName returns the parent link with the given name.
func (v *VOInfo) ParentByName(name string) (edge.Parent, bool) {
	for _, p := range v.parents {
		if p.Name == name {
			return p, true
		}
	}
	return edge.Parent{}, false
}

// Multiselects returns the multiselect links.
func (v *VOInfo) Multiselects() []edge.Multiselect { return slices.Clone(v.multiselects) }

// MultiselectByName returns the multiselect link with the given name.
func (v *VOInfo) MultiselectByName(name string) (edge.Multiselect, bool) {
	for _, m := range v.multiselects {
		if m.Name == name {
			return m, true
		}
	}
	return edge.Multiselect{}, false
}

// DelCascades returns the declared delete cascades. Children marked
// CascadeDelete are resolved by the statement builder.
func (v *VOInfo) DelCascades() []edge.DelCascade { return slices.Clone(v.cascades) }

// derive computes the memoized sets. It runs once, at build time or after
// a name mapping was applied.
func (v *VOInfo) derive() {
	v.sortKeys = make(map[string]int, len(v.sorts))
	for i, s := range v.sorts {
		if s.ID != "" {
			v.sortKeys[s.ID] = i + 1
		}
	}
	v.joinIndex = make(map[string]int, len(v.joins))
	v.allTables = []string{v.table}
	v.allJoinClauses = make([]string, 0, len(v.joins))
	for i, j := range v.joins {
		v.joinIndex[j.Table] = i
		v.allTables = append(v.allTables, j.Table)
		v.allJoinClauses = append(v.allJoinClauses, j.On)
	}
	v.noCreateUpdate = make(map[string]struct{})
	v.searchable = make(map[string]struct{})
	v.types = make(map[string]field.Type, len(v.ordered))
	v.selectAttrs, v.listAttrs, v.hiddenAttrs, v.requiredAttrs = nil, nil, nil, nil
	for _, a := range v.ordered {
		v.types[a.Name] = a.Type
		tbl := a.TableName(v.table)
		if tbl != v.table {
			v.noCreateUpdate[a.Name] = struct{}{}
		}
		if tbl == v.table || v.isJoined(tbl) {
			v.selectAttrs = append(v.selectAttrs, a.Name)
			v.searchable[a.Name] = struct{}{}
		}
		if a.List {
			v.listAttrs = append(v.listAttrs, a.Name)
		}
		if a.Hidden {
			v.hiddenAttrs = append(v.hiddenAttrs, a.Name)
		}
		if a.Required {
			v.requiredAttrs = append(v.requiredAttrs, a.Name)
		}
	}
	for name := range v.omit {
		v.noCreateUpdate[name] = struct{}{}
	}
	if v.timestampField != "" {
		v.noCreateUpdate[v.timestampField] = struct{}{}
	}
	if v.auditUserField != "" {
		v.noCreateUpdate[v.auditUserField] = struct{}{}
	}
	// The id is always searchable and always compared strictly.
	if _, ok := v.searchable[v.idField]; !ok {
		v.searchable[v.idField] = struct{}{}
		v.selectAttrs = append([]string{v.idField}, v.selectAttrs...)
	}
	v.attrs[v.idField].Predicate = field.PredicateEqual
}

func (v *VOInfo) isJoined(table string) bool {
	_, ok := v.joinIndex[table]
	return ok
}

// clone returns a deep copy sharing nothing mutable with v.
func (v *VOInfo) clone() *VOInfo {
	c := *v
	c.attrs = make(map[string]*AttributeInfo, len(v.attrs))
	c.ordered = make([]*AttributeInfo, len(v.ordered))
	for i, a := range v.ordered {
		cp := *a
		c.ordered[i] = &cp
		c.attrs[cp.Name] = &cp
	}
	c.joins = slices.Clone(v.joins)
	c.sorts = make([]SortInfo, len(v.sorts))
	for i, s := range v.sorts {
		c.sorts[i] = SortInfo{ID: s.ID, Items: slices.Clone(s.Items)}
	}
	c.omit = maps.Clone(v.omit)
	c.children = slices.Clone(v.children)
	c.parents = slices.Clone(v.parents)
	c.multiselects = slices.Clone(v.multiselects)
	c.cascades = slices.Clone(v.cascades)
	return &c
}
