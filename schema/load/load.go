// Package load reads entity definitions and name mappings from YAML files
// into a schema.Registry.
//
// An entity file lists entities:
//
//	settings:
//	  equal_by_default: false
//	entities:
//	  - name: Order
//	    table: orders
//	    id: ord_id
//	    timestamp: ord_ts
//	    attributes:
//	      - {name: ord_id, type: BIGINT}
//	      - {name: ord_ts, type: TIMESTAMP}
//	      - {name: status, type: VARCHAR(20), list: true, predicate: equal}
//	    joins:
//	      - {table: customers, on: orders.cust_id = customers.id}
//
// A mapping file maps entity attributes to physical columns:
//
//	Order:
//	  ord_id: ID_ORDER
package load

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/insersa/iscore"
	"github.com/insersa/iscore/schema"
	"github.com/insersa/iscore/schema/edge"
	"github.com/insersa/iscore/schema/field"
)

// File is the content of one entity file.
type File struct {
	Settings Settings  `yaml:"settings"`
	Entities []*Entity `yaml:"entities"`
}

// Settings apply to every entity of a file.
type Settings struct {
	EqualByDefault bool `yaml:"equal_by_default"`
}

// Entity is the serialized form of schema.VOInfo.
type Entity struct {
	Name         string         `yaml:"name"`
	Table        string         `yaml:"table"`
	ID           string         `yaml:"id"`
	Timestamp    string         `yaml:"timestamp,omitempty"`
	AuditUser    string         `yaml:"audit_user,omitempty"`
	Sequence     string         `yaml:"sequence,omitempty"`
	ReadOnly     []string       `yaml:"read_only,omitempty"`
	Attributes   []*Attribute   `yaml:"attributes"`
	Joins        []*Join        `yaml:"joins,omitempty"`
	Sorts        []*Sort        `yaml:"sorts,omitempty"`
	Children     []*Children    `yaml:"children,omitempty"`
	Parents      []*Parent      `yaml:"parents,omitempty"`
	Multiselects []*Multiselect `yaml:"multiselects,omitempty"`
	DelCascades  []*DelCascade  `yaml:"del_cascades,omitempty"`
	// EqualByDefault overrides the file setting when set.
	EqualByDefault *bool `yaml:"equal_by_default,omitempty"`
}

// Attribute is the serialized form of schema.AttributeInfo.
type Attribute struct {
	Name      string `yaml:"name"`
	Table     string `yaml:"table,omitempty"`
	Type      string `yaml:"type"`
	Position  int    `yaml:"position,omitempty"`
	Required  bool   `yaml:"required,omitempty"`
	Hidden    bool   `yaml:"hidden,omitempty"`
	List      bool   `yaml:"list,omitempty"`
	Length    int    `yaml:"length,omitempty"`
	Predicate string `yaml:"predicate,omitempty"`
	DBName    string `yaml:"db_name,omitempty"`
}

// Join is a joined table.
type Join struct {
	Table string `yaml:"table"`
	On    string `yaml:"on"`
}

// Sort is a sort definition.
type Sort struct {
	ID    string      `yaml:"id,omitempty"`
	Items []*SortItem `yaml:"items"`
}

// SortItem is one field of a sort definition.
type SortItem struct {
	Field  string `yaml:"field"`
	Desc   bool   `yaml:"desc,omitempty"`
	Toggle bool   `yaml:"toggle,omitempty"`
}

// Children is the serialized form of edge.Children.
type Children struct {
	Name          string `yaml:"name"`
	Entity        string `yaml:"entity"`
	MasterLink    string `yaml:"master_link"`
	ChildLink     string `yaml:"child_link"`
	LinkTable     string `yaml:"link_table,omitempty"`
	LinkOn        string `yaml:"link_on,omitempty"`
	CascadeDelete bool   `yaml:"cascade_delete,omitempty"`
}

// Parent is the serialized form of edge.Parent.
type Parent struct {
	Name       string `yaml:"name"`
	Entity     string `yaml:"entity"`
	MasterLink string `yaml:"master_link"`
	ChildLink  string `yaml:"child_link"`
}

// Multiselect is the serialized form of edge.Multiselect.
type Multiselect struct {
	Name       string `yaml:"name"`
	LinkTable  string `yaml:"link_table"`
	MasterLink string `yaml:"master_link"`
	Value      string `yaml:"value"`
}

// DelCascade is the serialized form of edge.DelCascade.
type DelCascade struct {
	Table string `yaml:"table"`
	Link  string `yaml:"link"`
}

// Parse decodes an entity file.
func Parse(r io.Reader) (*File, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	f := &File{}
	if err := dec.Decode(f); err != nil && err != io.EOF {
		return nil, fmt.Errorf("load: decode entities: %w", err)
	}
	return f, nil
}

// Builders converts the entities of the file. Entities whose attributes
// cannot be parsed are reported and skipped.
func (f *File) Builders() ([]*schema.Builder, error) {
	var (
		builders []*schema.Builder
		errs     []error
	)
	for _, e := range f.Entities {
		equal := f.Settings.EqualByDefault
		if e.EqualByDefault != nil {
			equal = *e.EqualByDefault
		}
		b, err := e.Builder(equal)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		builders = append(builders, b)
	}
	return builders, iscore.NewAggregateError(errs...)
}

// Builder converts the entity to a schema.Builder.
func (e *Entity) Builder(equalByDefault bool) (*schema.Builder, error) {
	b := schema.NewBuilder(e.Name, e.Table, schema.WithEqualByDefault(equalByDefault))
	var errs []error
	for _, a := range e.Attributes {
		t, err := field.ParseType(a.Type)
		if err != nil {
			errs = append(errs, &iscore.ConfigError{Entity: e.Name, Attribute: a.Name, Op: "load", Cause: err})
			continue
		}
		p, err := field.ParsePredicate(a.Predicate)
		if err != nil {
			errs = append(errs, &iscore.ConfigError{Entity: e.Name, Attribute: a.Name, Op: "load", Cause: err})
			continue
		}
		b.Attribute(schema.AttributeInfo{
			Name:      a.Name,
			Table:     a.Table,
			Type:      t,
			Position:  a.Position,
			Required:  a.Required,
			Hidden:    a.Hidden,
			List:      a.List,
			Length:    a.Length,
			Predicate: p,
			DBName:    a.DBName,
		})
	}
	if err := iscore.NewAggregateError(errs...); err != nil {
		return nil, err
	}
	b.Roles(e.ID, e.Timestamp, e.AuditUser).
		Sequence(e.Sequence).
		ReadOnly(e.ReadOnly...)
	for _, j := range e.Joins {
		b.Join(j.Table, j.On)
	}
	for _, s := range e.Sorts {
		items := make([]schema.SortItem, len(s.Items))
		for i, it := range s.Items {
			items[i] = schema.SortItem{Field: it.Field, Desc: it.Desc, Toggle: it.Toggle}
		}
		b.Sort(s.ID, items...)
	}
	for _, c := range e.Children {
		b.Children(edge.Children{
			Name:            c.Name,
			Entity:          c.Entity,
			MasterLinkField: c.MasterLink,
			ChildLinkField:  c.ChildLink,
			LinkTable:       c.LinkTable,
			LinkOn:          c.LinkOn,
			CascadeDelete:   c.CascadeDelete,
		})
	}
	for _, p := range e.Parents {
		b.Parent(edge.Parent{Name: p.Name, Entity: p.Entity, MasterLinkField: p.MasterLink, ChildLinkField: p.ChildLink})
	}
	for _, m := range e.Multiselects {
		b.Multiselect(edge.Multiselect{Name: m.Name, LinkTable: m.LinkTable, MasterLinkField: m.MasterLink, ValueField: m.Value})
	}
	for _, d := range e.DelCascades {
		b.DelCascade(edge.DelCascade{Table: d.Table, LinkField: d.Link})
	}
	return b, nil
}

// ParseMapping decodes a mapping file.
func ParseMapping(r io.Reader) (schema.Mapping, error) {
	m := schema.Mapping{}
	if err := yaml.NewDecoder(r).Decode(&m); err != nil && err != io.EOF {
		return nil, fmt.Errorf("load: decode mapping: %w", err)
	}
	return m, nil
}

// Into registers the entities of r in reg. Entities that fail to build are
// reported in the returned error; the others are registered.
func Into(reg *schema.Registry, r io.Reader) error {
	f, err := Parse(r)
	if err != nil {
		return err
	}
	builders, err := f.Builders()
	return iscore.NewAggregateError(err, reg.RegisterAll(builders...))
}

// Options configure directory loading.
type Options struct {
	// Workers limits concurrent file reads. Zero means 4.
	Workers int
	// MappingFile is applied after all entities are registered, if set.
	MappingFile string
}

// Dir loads every *.yaml and *.yml file of dir into reg. Files are read and
// decoded concurrently; entities are registered in file name order so the
// result does not depend on scheduling.
func Dir(ctx context.Context, reg *schema.Registry, dir string, opts Options) error {
	paths, err := filepath.Glob(filepath.Join(dir, "*.y*ml"))
	if err != nil {
		return fmt.Errorf("load: %w", err)
	}
	paths = slices.DeleteFunc(paths, func(p string) bool {
		ext := strings.ToLower(filepath.Ext(p))
		return ext != ".yaml" && ext != ".yml" || filepath.Clean(p) == filepath.Clean(opts.MappingFile)
	})
	slices.Sort(paths)

	workers := opts.Workers
	if workers <= 0 {
		workers = 4
	}
	files := make([]*File, len(paths))
	var (
		mu   sync.Mutex
		errs []error
	)
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(workers)
	for i, p := range paths {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			data, err := os.ReadFile(p)
			if err != nil {
				return fmt.Errorf("load: %w", err)
			}
			f, err := Parse(bytes.NewReader(data))
			if err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", filepath.Base(p), err))
				mu.Unlock()
				return nil
			}
			files[i] = f
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}
	for _, f := range files {
		if f == nil {
			continue
		}
		builders, err := f.Builders()
		errs = append(errs, err, reg.RegisterAll(builders...))
	}
	if opts.MappingFile != "" {
		fh, err := os.Open(opts.MappingFile)
		if err != nil {
			return fmt.Errorf("load: %w", err)
		}
		defer fh.Close()
		m, err := ParseMapping(fh)
		if err != nil {
			return err
		}
		errs = append(errs, reg.ApplyMapping(m))
	}
	return iscore.NewAggregateError(errs...)
}
