package schema

import (
	"regexp"
	"strings"
)

// Mapping translates logical attribute names to physical column names,
// keyed by entity then attribute name.
type Mapping map[string]map[string]string

// Columns returns the overrides of the entity, or nil.
func (m Mapping) Columns(entity string) map[string]string {
	if m == nil {
		return nil
	}
	return m[entity]
}

// identRef matches an optionally qualified identifier in an SQL fragment.
var identRef = regexp.MustCompile(`\b(?:([A-Za-z_][A-Za-z0-9_]*)\.)?([A-Za-z_][A-Za-z0-9_]*)\b`)

// rewriteIdents replaces column references in an SQL fragment. renames
// holds every declared column, renamed or not. A qualified reference
// follows its table. An unqualified one follows the primary table, or else
// the only table declaring that column.
func rewriteIdents(sql, primary string, renames columnRenames) string {
	if sql == "" {
		return sql
	}
	return identRef.ReplaceAllStringFunc(sql, func(ref string) string {
		m := identRef.FindStringSubmatch(ref)
		qual, col := m[1], m[2]
		if qual != "" {
			if to, ok := renames[qual][col]; ok {
				return qual + "." + to
			}
			return ref
		}
		if to, ok := renames[primary][col]; ok {
			return to
		}
		var (
			to    string
			found int
		)
		for _, cols := range renames {
			if c, ok := cols[col]; ok {
				to = c
				found++
			}
		}
		if found == 1 {
			return to
		}
		return ref
	})
}

// columnRenames maps table, then old column name, to the new column name.
type columnRenames map[string]map[string]string

func (r columnRenames) add(table, from, to string) {
	if r[table] == nil {
		r[table] = make(map[string]string)
	}
	r[table][from] = to
}

// withMapping returns a copy of v with the column overrides applied. Names
// not declared by v are ignored.
func (v *VOInfo) withMapping(cols map[string]string) *VOInfo {
	m := v.clone()
	m.origin = v
	renames := make(columnRenames)
	for _, a := range m.attrs {
		renames.add(a.TableName(v.table), a.Column(), a.Column())
	}
	for name, col := range cols {
		a, ok := m.attrs[name]
		col = strings.TrimSpace(col)
		if !ok || col == "" || col == a.Column() {
			continue
		}
		renames.add(a.TableName(v.table), a.Column(), col)
		a.column = col
	}
	for i := range m.joins {
		m.joins[i].On = rewriteIdents(m.joins[i].On, v.table, renames)
	}
	for i := range m.sorts {
		for j, it := range m.sorts[i].Items {
			if it.Custom() {
				m.sorts[i].Items[j].Field = rewriteIdents(it.Field, v.table, renames)
			}
		}
	}
	m.derive()
	return m
}

// Origin returns the metadata before any name mapping was applied.
func (v *VOInfo) Origin() *VOInfo {
	if v.origin != nil {
		return v.origin
	}
	return v
}
