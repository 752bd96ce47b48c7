// Package iscore is a metadata-driven data-access layer.
//
// Business entities ("value objects") are described once, declaratively, and a
// generic engine translates runtime query and update requests into
// parameterized SQL without per-entity data-access code.
//
// # Packages
//
//   - [schema]: entity metadata (attributes, joins, sorts, relations) and the registry
//   - [schema/field]: SQL types and predicate kinds
//   - [schema/edge]: parent/child, multiselect and delete-cascade link descriptors
//   - [schema/load]: YAML loader for entity definitions and name mappings
//   - [privacy]: viewers and policies producing security clauses
//   - [dao]: the generic statement builder and thin execution helpers
//   - [dialect/sql]: database/sql driver wrapper and predicate rendering
//
// # Usage
//
//	reg := schema.NewRegistry()
//	err := reg.RegisterAll(
//	    schema.NewBuilder("Order", "orders").
//	        ID("ord_id", field.TypeInt64).
//	        Timestamp("ord_ts", field.TypeTime).
//	        Attribute(schema.AttributeInfo{Name: "status", Type: field.TypeString}).
//	        Join("customers", "orders.cust_id = customers.id"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	reg.Freeze()
//
//	daos, err := dao.NewRegistry(reg, dao.WithDialect(dialect.Postgres))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	stmt, err := daos.MustDAO("Order").Select(ctx, &dao.Query{Values: map[string]any{"status": "open"}})
//
// Statement building never performs I/O. Errors follow the taxonomy of this
// package: [ConfigError] for bad metadata, [BuildError] for requests that
// cannot be rendered, [ConflictError] for stale writes.
package iscore
