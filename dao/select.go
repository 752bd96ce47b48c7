package dao

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"reflect"
	"slices"
	"strconv"
	"strings"

	"github.com/insersa/iscore/dialect/sql"
	"github.com/insersa/iscore/privacy"
	"github.com/insersa/iscore/schema"
	"github.com/insersa/iscore/schema/field"
)

// plan holds the parts of a select that depend on how it is used: as a
// top-level statement, a count or a sub-query.
type plan struct {
	op string
	// projection replaces the attribute projection when set.
	projection string
	// projTables are the tables the projection reads.
	projTables []string
	// exclude is a table left out of the joins.
	exclude string
	// link is a link table joined in front of the entity's own joins.
	link  *schema.JoinInfo
	order bool
	page  bool
	depth int
}

// cond is one rendered predicate.
type cond struct {
	sql  string
	args []any
}

// Select builds the search statement of q:
//
//	SELECT p FROM t [WHERE w] [ORDER BY s] [LIMIT n [OFFSET m]]
//
// The same query always renders the same text and arguments.
func (d *DAO) Select(ctx context.Context, q *Query) (Statement, error) {
	return d.build(ctx, q, plan{op: "select", order: true, page: true})
}

// SelectByID builds the statement reading one record.
func (d *DAO) SelectByID(ctx context.Context, id any, viewer privacy.Viewer) (Statement, error) {
	if empty(id) {
		return Statement{}, d.buildErr(d.vo.IDField(), "select", errors.New("id is required"))
	}
	q := &Query{Values: map[string]any{d.vo.IDField(): Eq(id)}, Viewer: viewer}
	return d.build(ctx, q, plan{op: "select"})
}

// Count builds the statement counting the records matching q.
func (d *DAO) Count(ctx context.Context, q *Query) (Statement, error) {
	return d.build(ctx, q, plan{op: "count", projection: "COUNT(*)"})
}

// aggregates are the functions accepted by Aggregate.
var aggregates = map[string]bool{"COUNT": true, "SUM": true, "AVG": true, "MIN": true, "MAX": true}

// Aggregate builds SELECT fn(attr) over the records matching q. COUNT
// also accepts "*" as attribute.
func (d *DAO) Aggregate(ctx context.Context, fn, attr string, q *Query) (Statement, error) {
	fn = strings.ToUpper(strings.TrimSpace(fn))
	if !aggregates[fn] {
		return Statement{}, d.buildErr(attr, "aggregate", fmt.Errorf("unsupported function %q", fn))
	}
	p := plan{op: "aggregate"}
	switch a, ok := d.vo.Attribute(attr); {
	case ok:
		p.projection = fn + "(" + a.Ref() + ")"
		p.projTables = []string{a.TableName(d.vo.Table())}
	case attr == "*" && fn == "COUNT":
		p.projection = "COUNT(*)"
	default:
		return Statement{}, d.buildErr(attr, "aggregate", errors.New("unknown attribute"))
	}
	return d.build(ctx, q, p)
}

func (d *DAO) build(ctx context.Context, q *Query, p plan) (Statement, error) {
	if q == nil {
		q = &Query{}
	}
	if p.depth > d.cfg.MaxDepth {
		return Statement{}, d.buildErr("", p.op, fmt.Errorf("sub-queries nested deeper than %d", d.cfg.MaxDepth))
	}
	conds, used, err := d.predicates(ctx, q, p)
	if err != nil {
		return Statement{}, err
	}
	if extra := strings.TrimSpace(q.Extra); extra != "" {
		conds = append(conds, cond{sql: privacy.Paren(extra), args: q.ExtraArgs})
	}
	clause, err := d.security(ctx, q.Viewer, privacy.ModeSelect)
	if err != nil {
		return Statement{}, err
	}
	if clause != "" {
		conds = append(conds, cond{sql: clause})
	}
	projection, projTables := p.projection, p.projTables
	if projection == "" {
		projection, projTables = d.projection(ctx, q)
	}
	sortIndex := d.vo.ResolveSort(q.SortKey, q.SortIndex)

	needed := map[string]bool{d.vo.Table(): true}
	for _, name := range used {
		a, _ := d.vo.Attribute(name)
		needed[a.TableName(d.vo.Table())] = true
	}
	for _, t := range projTables {
		needed[t] = true
	}
	if p.order {
		for _, t := range d.sortTables(sortIndex) {
			needed[t] = true
		}
	}

	b := &builder{}
	b.WriteString("SELECT ").WriteString(projection).WriteString(" FROM ").WriteString(d.from(needed, p))
	for i, c := range conds {
		if i == 0 {
			b.WriteString(" WHERE ")
		} else {
			b.WriteString(" AND ")
		}
		b.WriteString(c.sql).Arg(c.args...)
	}
	if p.order {
		b.WriteString(" ORDER BY ").WriteString(d.vo.OrderBy(sortIndex, q.Reverse))
	}
	if p.page {
		switch {
		case q.Limit > 0:
			b.WriteString(" LIMIT ").WriteString(strconv.Itoa(q.Limit))
			if q.Offset > 0 {
				b.WriteString(" OFFSET ").WriteString(strconv.Itoa(q.Offset))
			}
		case q.Offset > 0:
			return Statement{}, d.buildErr("", p.op, errors.New("offset requires a limit"))
		}
	}
	return b.Statement(), nil
}

// from renders the table list. Without join optimization every join is
// rendered; otherwise only the joins of needed tables.
func (d *DAO) from(needed map[string]bool, p plan) string {
	var sb strings.Builder
	sb.WriteString(d.vo.Table())
	join := func(j schema.JoinInfo) {
		if d.cfg.comma() {
			sb.WriteString(" , ")
		} else {
			sb.WriteString(" JOIN ")
		}
		sb.WriteString(j.Table)
		sb.WriteString(" ON ")
		sb.WriteString(j.On)
	}
	if p.link != nil {
		join(*p.link)
	}
	for _, j := range d.vo.Joins() {
		switch {
		case j.Table == p.exclude:
		case d.cfg.JoinOptimization && !needed[j.Table]:
		default:
			join(j)
		}
	}
	return sb.String()
}

// projection renders the selected attributes and the tables they read.
// Attributes are qualified by their table and aliased to their name when
// the column differs.
func (d *DAO) projection(ctx context.Context, q *Query) (string, []string) {
	primary := d.vo.Table()
	if len(q.Select) == 0 {
		var tables []string
		if d.cfg.JoinOptimization {
			for _, name := range d.vo.ListAttributes() {
				a, _ := d.vo.Attribute(name)
				tables = append(tables, a.TableName(primary))
			}
		}
		return "*", tables
	}
	var (
		cols   []string
		tables []string
	)
	for _, name := range q.Select {
		a, ok := d.vo.Attribute(name)
		if !ok {
			d.debug(ctx, "ignoring unknown projected attribute", "attribute", name)
			continue
		}
		col := a.Qualified(primary)
		if a.Column() != a.Name {
			col += " AS " + a.Name
		}
		cols = append(cols, col)
		tables = append(tables, a.TableName(primary))
	}
	if len(cols) == 0 {
		return "*", nil
	}
	return strings.Join(cols, ", "), tables
}

// sortTables returns the tables read by the sort at index.
func (d *DAO) sortTables(index int) []string {
	var tables []string
	for _, it := range d.vo.SortArray()[index-1].Items {
		if a, ok := d.vo.Attribute(it.Field); ok && !it.Custom() {
			tables = append(tables, a.TableName(d.vo.Table()))
		}
	}
	return tables
}

// predicates renders the criteria of q in attribute position order,
// followed by multiselect filters. It returns the attributes it used.
func (d *DAO) predicates(ctx context.Context, q *Query, p plan) ([]cond, []string, error) {
	links, err := d.linkFilters(ctx, q, p)
	if err != nil {
		return nil, nil, err
	}
	var (
		conds []cond
		used  []string
	)
	for _, a := range d.vo.Attributes() {
		if v, ok := q.Values[a.Name]; ok && !empty(v) {
			if !d.vo.Searchable(a.Name) {
				d.debug(ctx, "ignoring attribute outside the joined tables", "attribute", a.Name)
			} else {
				c, err := d.predicate(a, v, p.op)
				if err != nil {
					return nil, nil, err
				}
				conds = append(conds, c)
				used = append(used, a.Name)
			}
		}
		for _, sub := range links[a.Name] {
			s, args, err := sql.Render(a.Ref(), field.PredicateIn, sub)
			if err != nil {
				return nil, nil, d.buildErr(a.Name, p.op, err)
			}
			conds = append(conds, cond{sql: s, args: args})
			used = append(used, a.Name)
		}
	}
	for _, m := range d.vo.Multiselects() {
		v, ok := q.Values[m.Name]
		if !ok || empty(v) {
			continue
		}
		kind, operand := operandOf(field.PredicateEqual, v)
		inner, args, err := sql.Render(m.ValueField, kind, operand)
		if err != nil {
			return nil, nil, d.buildErr(m.Name, p.op, err)
		}
		id, _ := d.vo.Attribute(d.vo.IDField())
		conds = append(conds, cond{
			sql:  id.Ref() + " IN (SELECT " + m.MasterLinkField + " FROM " + m.LinkTable + " WHERE " + inner + ")",
			args: args,
		})
		used = append(used, id.Name)
	}
	for _, name := range slices.Sorted(maps.Keys(q.Values)) {
		if _, ok := d.vo.Attribute(name); ok {
			continue
		}
		if _, ok := d.vo.MultiselectByName(name); ok {
			continue
		}
		d.debug(ctx, "ignoring unknown attribute", "attribute", name)
	}
	return conds, used, nil
}

// predicate renders the criterion v on attribute a.
func (d *DAO) predicate(a schema.AttributeInfo, v any, op string) (cond, error) {
	kind, operand := operandOf(a.Predicate, v)
	s, args, err := sql.Render(a.Ref(), kind, operand)
	if err != nil {
		return cond{}, d.buildErr(a.Name, op, err)
	}
	return cond{sql: s, args: args}, nil
}

// operandOf returns the predicate kind and operand of a criterion. Op values
// carry their kind, sub-queries and lists imply IN, scalars use kind.
func operandOf(kind field.Predicate, v any) (field.Predicate, any) {
	switch v := v.(type) {
	case Op:
		if v.Kind == field.PredicateUnset {
			return kind, v.Operand
		}
		return v.Kind, v.Operand
	case *Op:
		if v == nil {
			return kind, nil
		}
		return operandOf(kind, *v)
	case Statement:
		return field.PredicateIn, v.SubQuery()
	case sql.SubQuery, *sql.SubQuery:
		return field.PredicateIn, v
	case []byte:
		return kind, v
	}
	if k := reflect.TypeOf(v).Kind(); k == reflect.Slice || k == reflect.Array {
		return field.PredicateIn, v
	}
	return kind, v
}
