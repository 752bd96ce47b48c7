package dao

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/insersa/iscore"
	"github.com/insersa/iscore/privacy"
	"github.com/insersa/iscore/schema"
	"github.com/insersa/iscore/schema/field"
)

// Record is the input of insert, update and delete statements.
type Record struct {
	// Values holds the attribute values by name. Insert reads the id from
	// Values; update and delete use ID.
	Values map[string]any
	// Omit lists attributes that are not written even when present.
	Omit []string
	ID   any
	// Timestamp is the timestamp read before the edit. Updates and deletes
	// only apply while the stored timestamp still equals it; nil expects
	// a NULL timestamp.
	Timestamp any
	AuditUser string
	Viewer    privacy.Viewer
}

// Insert builds the statement creating r:
//
//	INSERT INTO t (c...[, audit][, ts]) VALUES (?...[, ?][, NOW()])
//
// Columns follow attribute position order. Attributes outside the primary
// table, read-only attributes and r.Omit are left out.
func (d *DAO) Insert(ctx context.Context, r *Record) (Statement, error) {
	cols, args, err := d.writable(ctx, r, "insert", true)
	if err != nil {
		return Statement{}, err
	}
	var vals []string
	for range cols {
		vals = append(vals, "?")
	}
	if col := d.vo.AuditUserColumn(); col != "" {
		cols = append(cols, col)
		vals = append(vals, "?")
		args = append(args, d.auditValue(r))
	}
	if col := d.vo.TimestampColumn(); col != "" {
		cols = append(cols, col)
		vals = append(vals, d.timestampLiteral())
	}
	if len(cols) == 0 {
		return Statement{}, d.buildErr("", "insert", errors.New("no values to insert"))
	}
	b := &builder{}
	b.WriteString("INSERT INTO ").WriteString(d.vo.Table()).
		WriteString(" (").WriteString(strings.Join(cols, ", ")).
		WriteString(") VALUES (").WriteString(strings.Join(vals, ", ")).WriteString(")").
		Arg(args...)
	return b.Statement(), nil
}

// Update builds the statement changing the values of r:
//
//	UPDATE t SET [ts=NOW()], [audit=?], c=?... WHERE id=? [AND ts=?|ts IS NULL]
//
// The audit column is set only when r names an audit user. The timestamp condition makes the update affect no row when another
// writer changed the record since r.Timestamp was read.
func (d *DAO) Update(ctx context.Context, r *Record) (Statement, error) {
	if r == nil || empty(r.ID) {
		return Statement{}, d.buildErr(d.vo.IDField(), "update", errors.New("id is required"))
	}
	cols, args, err := d.writable(ctx, r, "update", false)
	if err != nil {
		return Statement{}, err
	}
	b := &builder{}
	b.WriteString("UPDATE ").WriteString(d.vo.Table()).WriteString(" SET ")
	touched := d.touch(b, r)
	if len(cols) == 0 && !touched {
		return Statement{}, d.buildErr("", "update", errors.New("nothing to update"))
	}
	for i, col := range cols {
		if i > 0 || touched {
			b.WriteString(", ")
		}
		b.WriteString(col).WriteString("=?").Arg(args[i])
	}
	if err := d.guard(ctx, b, r, privacy.ModeUpdate, true); err != nil {
		return Statement{}, err
	}
	return b.Statement(), nil
}

// UpdateField builds the statement changing one attribute of the record
// with the given id, regardless of its timestamp. The timestamp and audit
// columns are maintained.
func (d *DAO) UpdateField(ctx context.Context, id any, name string, value any, auditUser string) (Statement, error) {
	if empty(id) {
		return Statement{}, d.buildErr(d.vo.IDField(), "update", errors.New("id is required"))
	}
	a, ok := d.vo.Attribute(name)
	switch {
	case !ok:
		return Statement{}, d.buildErr(name, "update", errors.New("unknown attribute"))
	case name == d.vo.IDField() || d.vo.NoCreateUpdate(name):
		return Statement{}, d.buildErr(name, "update", errors.New("attribute is not writable"))
	}
	if err := d.check(a, value); err != nil {
		return Statement{}, err
	}
	r := &Record{ID: id, AuditUser: auditUser, Viewer: privacy.ViewerFromContext(ctx)}
	b := &builder{}
	b.WriteString("UPDATE ").WriteString(d.vo.Table()).WriteString(" SET ")
	if d.touch(b, r) {
		b.WriteString(", ")
	}
	b.WriteString(a.Column()).WriteString("=?").Arg(value)
	if err := d.guard(ctx, b, r, privacy.ModeUpdate, false); err != nil {
		return Statement{}, err
	}
	return b.Statement(), nil
}

// Delete builds the statements deleting r. The statements removing the
// rows that depend on the record come first and the guarded delete of the
// record itself last. Every statement carries the id, timestamp and
// security conditions of the record, so a stale or denied delete removes
// nothing. Callers run them in one transaction to make the delete atomic.
func (d *DAO) Delete(ctx context.Context, r *Record) ([]Statement, error) {
	if r == nil || empty(r.ID) {
		return nil, d.buildErr(d.vo.IDField(), "delete", errors.New("id is required"))
	}
	where := &builder{}
	if err := d.guard(ctx, where, r, privacy.ModeDelete, true); err != nil {
		return nil, err
	}
	cond := where.Statement()
	stmts, err := d.cascades(cond)
	if err != nil {
		return nil, err
	}
	main := Statement{SQL: "DELETE FROM " + d.vo.Table() + cond.SQL, Args: cond.Args}
	return append(stmts, main), nil
}

// cascades returns the deletes of the rows referencing the record selected
// by cond: declared cascades, multiselect values and children marked
// CascadeDelete.
//
//	DELETE FROM dep WHERE link IN (SELECT master FROM t WHERE id=? [AND ts=?])
func (d *DAO) cascades(cond Statement) ([]Statement, error) {
	var (
		stmts []Statement
		seen  = make(map[string]bool)
	)
	add := func(table, column, master string) {
		key := table + "." + column
		if seen[key] {
			return
		}
		seen[key] = true
		col := d.vo.IDColumn()
		if master != "" && master != d.vo.IDField() {
			a, _ := d.vo.Attribute(master)
			col = a.Column()
		}
		b := &builder{}
		b.WriteString("DELETE FROM ").WriteString(table).WriteString(" WHERE ").WriteString(column).
			WriteString(" IN (SELECT ").WriteString(col).WriteString(" FROM ").WriteString(d.vo.Table()).
			WriteString(cond.SQL).WriteString(")").
			Arg(slices.Clone(cond.Args)...)
		stmts = append(stmts, b.Statement())
	}
	for _, c := range d.vo.DelCascades() {
		add(c.Table, c.LinkField, "")
	}
	for _, m := range d.vo.Multiselects() {
		add(m.LinkTable, m.MasterLinkField, "")
	}
	for _, c := range d.vo.Children() {
		if !c.CascadeDelete {
			continue
		}
		if c.LinkTable != "" {
			add(c.LinkTable, c.ChildLinkField, c.MasterLinkField)
			continue
		}
		child, err := d.resolve(c.Entity)
		if err != nil {
			return nil, d.buildErr(c.Name, "delete", err)
		}
		a, ok := child.vo.Attribute(c.ChildLinkField)
		if !ok {
			return nil, d.buildErr(c.Name, "delete", fmt.Errorf("child entity %s has no attribute %s", c.Entity, c.ChildLinkField))
		}
		add(child.vo.Table(), a.Column(), c.MasterLinkField)
	}
	return stmts, nil
}

// deleteTables returns the tables written by Delete: the cascade targets
// and the primary table.
func (d *DAO) deleteTables() []string {
	tables := []string{d.vo.Table()}
	for _, c := range d.vo.DelCascades() {
		tables = append(tables, c.Table)
	}
	for _, m := range d.vo.Multiselects() {
		tables = append(tables, m.LinkTable)
	}
	for _, c := range d.vo.Children() {
		switch {
		case !c.CascadeDelete:
		case c.LinkTable != "":
			tables = append(tables, c.LinkTable)
		default:
			if child, err := d.resolve(c.Entity); err == nil {
				tables = append(tables, child.vo.Table())
			}
		}
	}
	slices.Sort(tables)
	return slices.Compact(tables)
}

// writable returns the columns and values of r written by an insert or
// update, in position order.
func (d *DAO) writable(ctx context.Context, r *Record, op string, insert bool) ([]string, []any, error) {
	if r == nil {
		return nil, nil, d.buildErr("", op, errors.New("nil record"))
	}
	var (
		cols []string
		args []any
		errs []error
	)
	for _, a := range d.vo.Attributes() {
		switch {
		case d.vo.NoCreateUpdate(a.Name), slices.Contains(r.Omit, a.Name):
			continue
		case !insert && a.Name == d.vo.IDField():
			continue
		}
		v, ok := r.Values[a.Name]
		if !ok {
			if insert && a.Required {
				errs = append(errs, iscore.NewValidationError(d.vo.Name(), a.Name, errors.New("value is required")))
			}
			continue
		}
		if err := d.check(a, v); err != nil {
			errs = append(errs, err)
			continue
		}
		cols = append(cols, a.Column())
		args = append(args, v)
	}
	if err := iscore.NewAggregateError(errs...); err != nil {
		return nil, nil, err
	}
	for _, name := range slices.Sorted(maps.Keys(r.Values)) {
		if _, ok := d.vo.Attribute(name); !ok {
			d.debug(ctx, "ignoring unknown attribute", "attribute", name, "op", op)
		}
	}
	return cols, args, nil
}

// check validates a value written to a.
func (d *DAO) check(a schema.AttributeInfo, v any) error {
	if a.Required && empty(v) {
		return iscore.NewValidationError(d.vo.Name(), a.Name, errors.New("value is required"))
	}
	if s, ok := v.(string); ok && a.Length > 0 && a.Type.IsString() {
		if n := utf8.RuneCountInString(s); n > a.Length {
			return iscore.NewValidationError(d.vo.Name(), a.Name, fmt.Errorf("length %d exceeds %d", n, a.Length))
		}
	}
	return nil
}

// touch writes the timestamp and audit assignments of an update. It
// reports if it wrote any.
func (d *DAO) touch(b *builder, r *Record) bool {
	var wrote bool
	if col := d.vo.TimestampColumn(); col != "" {
		b.WriteString(col).WriteString("=")
		if d.epoch() {
			b.WriteString("?").Arg(d.cfg.Clock().UnixMilli())
		} else {
			b.WriteString(d.cfg.now())
		}
		wrote = true
	}
	if col := d.vo.AuditUserColumn(); col != "" {
		// An update without audit user keeps the previous one.
		if v := d.auditValue(r); v != nil {
			if wrote {
				b.WriteString(", ")
			}
			b.WriteString(col).WriteString("=?").Arg(v)
			wrote = true
		}
	}
	return wrote
}

// guard writes the WHERE clause of an update or delete: the id, the
// expected timestamp when stamped is set, and the security clause.
func (d *DAO) guard(ctx context.Context, b *builder, r *Record, mode privacy.Mode, stamped bool) error {
	clause, err := d.security(ctx, r.Viewer, mode)
	if err != nil {
		return err
	}
	b.WriteString(" WHERE ").WriteString(d.vo.IDColumn()).WriteString("=?").Arg(r.ID)
	if col := d.vo.TimestampColumn(); stamped && col != "" {
		if r.Timestamp == nil {
			b.WriteString(" AND ").WriteString(col).WriteString(" IS NULL")
		} else {
			b.WriteString(" AND ").WriteString(col).WriteString("=?").Arg(r.Timestamp)
		}
	}
	if clause != "" {
		b.WriteString(" AND ").WriteString(clause)
	}
	return nil
}

// epoch reports if the timestamp is stored as epoch milliseconds.
func (d *DAO) epoch() bool {
	a, ok := d.vo.Attribute(d.vo.TimestampField())
	return ok && a.Type == field.TypeInt64
}

func (d *DAO) timestampLiteral() string {
	if d.epoch() {
		return strconv.FormatInt(d.cfg.Clock().UnixMilli(), 10)
	}
	return d.cfg.now()
}

func (d *DAO) auditValue(r *Record) any {
	if r.AuditUser != "" {
		return r.AuditUser
	}
	if v, ok := r.Values[d.vo.AuditUserField()]; ok {
		return v
	}
	return nil
}
