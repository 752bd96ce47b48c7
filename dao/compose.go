package dao

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/insersa/iscore/dialect/sql"
	"github.com/insersa/iscore/schema"
)

// linkFilters builds the sub-queries of the child and parent criteria of q,
// keyed by the attribute they restrict. Children sharing a master link
// attribute are merged into one UNION; every parent criterion is a filter
// of its own.
func (d *DAO) linkFilters(ctx context.Context, q *Query, p plan) (map[string][]sql.SubQuery, error) {
	if len(q.Children) == 0 && len(q.Parents) == 0 {
		return nil, nil
	}
	var (
		filters  = make(map[string][]sql.SubQuery)
		children = make(map[string][]sql.SubQuery)
	)
	for _, name := range slices.Sorted(maps.Keys(q.Children)) {
		cq := q.Children[name]
		if cq == nil {
			continue
		}
		c, ok := d.vo.ChildrenByName(name)
		if !ok {
			return nil, d.buildErr(name, p.op, errors.New("unknown child link"))
		}
		child, err := d.resolve(c.Entity)
		if err != nil {
			return nil, d.buildErr(name, p.op, err)
		}
		sub := plan{op: p.op, exclude: d.vo.Table(), depth: p.depth + 1}
		if c.LinkTable != "" {
			sub.link = &schema.JoinInfo{Table: c.LinkTable, On: c.LinkOn}
			sub.projection = c.LinkTable + "." + c.ChildLinkField
		} else {
			a, ok := child.vo.Attribute(c.ChildLinkField)
			if !ok {
				return nil, d.buildErr(name, p.op, fmt.Errorf("child entity %s has no attribute %s", c.Entity, c.ChildLinkField))
			}
			sub.projection = a.Qualified(child.vo.Table())
			sub.projTables = []string{a.TableName(child.vo.Table())}
		}
		s, err := child.build(ctx, inherit(cq, q), sub)
		if err != nil {
			return nil, err
		}
		children[c.MasterLinkField] = append(children[c.MasterLinkField], s.SubQuery())
	}
	for attr, subs := range children {
		filters[attr] = append(filters[attr], sql.Union(subs...))
	}
	for _, name := range slices.Sorted(maps.Keys(q.Parents)) {
		pq := q.Parents[name]
		if pq == nil {
			continue
		}
		rel, ok := d.vo.ParentByName(name)
		if !ok {
			return nil, d.buildErr(name, p.op, errors.New("unknown parent link"))
		}
		parent, err := d.resolve(rel.Entity)
		if err != nil {
			return nil, d.buildErr(name, p.op, err)
		}
		a, ok := parent.vo.Attribute(rel.MasterLinkField)
		if !ok {
			return nil, d.buildErr(name, p.op, fmt.Errorf("parent entity %s has no attribute %s", rel.Entity, rel.MasterLinkField))
		}
		s, err := parent.build(ctx, inherit(pq, q), plan{
			op:         p.op,
			projection: a.Qualified(parent.vo.Table()),
			projTables: []string{a.TableName(parent.vo.Table())},
			exclude:    d.vo.Table(),
			depth:      p.depth + 1,
		})
		if err != nil {
			return nil, err
		}
		filters[rel.ChildLinkField] = append(filters[rel.ChildLinkField], s.SubQuery())
	}
	return filters, nil
}

// inherit returns sub with the viewer of q when sub names none.
func inherit(sub, q *Query) *Query {
	if sub.Viewer != nil || q.Viewer == nil {
		return sub
	}
	c := *sub
	c.Viewer = q.Viewer
	return &c
}
