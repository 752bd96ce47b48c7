// Package edge describes links between entities: children (one-to-many or,
// through a link table, many-to-many), parents, multiselect value tables and
// delete cascades.
//
// Links name the related entity instead of pointing to its metadata. Entities
// are registered independently and in any order, so the related entity is
// resolved through the registry when a statement needs it:
//
//	edge.Children{
//	    Name:            "lines",
//	    Entity:          "OrderLine",
//	    MasterLinkField: "ord_id",  // attribute of the master
//	    ChildLinkField:  "line_ord", // attribute of the child
//	}
package edge
