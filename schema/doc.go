// Package schema holds the metadata of value-object entities: attributes,
// joined tables, sort definitions and links to related entities.
//
// Metadata is built once per entity with a [Builder], registered in a
// [Registry] and never mutated afterwards:
//
//	vo, err := schema.NewBuilder("Order", "orders").
//	    ID("ord_id", field.TypeInt64).
//	    Timestamp("ord_ts", field.TypeTime).
//	    AuditUser("ord_user").
//	    Attribute(schema.AttributeInfo{Name: "status", Type: field.TypeString, List: true}).
//	    Attribute(schema.AttributeInfo{Name: "cust_name", Table: "customers", Type: field.TypeString}).
//	    Join("customers", "orders.cust_id = customers.id").
//	    Sort("by_status", schema.Asc("status", true), schema.Desc("ord_id", false)).
//	    Build()
//
// An optional name mapping translates logical attribute names to physical
// column names per deployment. It is applied once with
// [Registry.ApplyMapping], before [Registry.Freeze] opens the registry to
// concurrent readers.
//
// # Attribute names
//
// A double underscore in an attribute name separates a table from a column:
// the attribute "customers__name" is the column "name" of table "customers"
// and always renders as customers.name.
package schema
