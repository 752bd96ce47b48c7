// Package field describes the storage type of entity attributes and the
// predicate kinds used to match search values against them.
//
// # Types
//
// Attribute types are parsed from the SQL type names found in entity
// definitions:
//
//	field.ParseType("VARCHAR")   // TypeString
//	field.ParseType("BIGINT")    // TypeInt64
//	field.ParseType("TIMESTAMP") // TypeTime
//
// # Predicate Kinds
//
// A predicate kind decides how a search value is compared with a column.
// [Resolve] applies the defaulting rules:
//
//	field.Resolve(field.TypeString, field.PredicateUnset, false) // PredicateContains
//	field.Resolve(field.TypeString, field.PredicateUnset, true)  // PredicateEqual
//	field.Resolve(field.TypeDate, field.PredicateEqual, false)   // PredicateDateEqual
//
// Date and timestamp attributes always compare by day; this is an override,
// not a default.
package field
