package dao_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/insersa/iscore/dao"
	"github.com/insersa/iscore/privacy"
	"github.com/insersa/iscore/schema"
	"github.com/insersa/iscore/schema/edge"
	"github.com/insersa/iscore/schema/field"
)

var epoch = time.UnixMilli(1700000000000)

// schemas registers Order, Line, Tag and Event.
func schemas(t *testing.T) *schema.Registry {
	t.Helper()
	reg := schema.NewRegistry()
	require.NoError(t, reg.RegisterAll(
		schema.NewBuilder("Order", "orders", schema.WithEqualByDefault(true)).
			ID("ord_id", field.TypeInt64).
			Timestamp("ord_ts", field.TypeTime).
			AuditUser("ord_user").
			Sequence("SEQ_ORDER").
			Attribute(schema.AttributeInfo{Name: "status", Type: field.TypeString, List: true, Required: true, Length: 10}).
			Attribute(schema.AttributeInfo{Name: "cust_id", Type: field.TypeInt64}).
			Attribute(schema.AttributeInfo{Name: "ord_date", Type: field.TypeDate}).
			Attribute(schema.AttributeInfo{Name: "note", Type: field.TypeString, Predicate: field.PredicateContains}).
			Attribute(schema.AttributeInfo{Name: "region", Table: "customers", Type: field.TypeString}).
			Attribute(schema.AttributeInfo{Name: "customers__name", Type: field.TypeString}).
			Join("customers", "orders.cust_id = customers.id").
			Children(edge.Children{Name: "lines", Entity: "Line", MasterLinkField: "ord_id", ChildLinkField: "line_ord", CascadeDelete: true}).
			Children(edge.Children{
				Name:            "tags",
				Entity:          "Tag",
				MasterLinkField: "ord_id",
				ChildLinkField:  "ot_ord",
				LinkTable:       "order_tags",
				LinkOn:          "order_tags.ot_tag = tags.tag_id",
			}).
			Multiselect(edge.Multiselect{Name: "colors", LinkTable: "order_colors", MasterLinkField: "oc_ord", ValueField: "oc_color"}).
			DelCascade(edge.DelCascade{Table: "order_notes", LinkField: "on_ord"}),
		schema.NewBuilder("Line", "lines").
			ID("line_id", field.TypeInt64).
			Attribute(schema.AttributeInfo{Name: "line_ord", Type: field.TypeInt64}).
			Attribute(schema.AttributeInfo{Name: "product", Type: field.TypeString}).
			Attribute(schema.AttributeInfo{Name: "orders__status", Type: field.TypeString}).
			Join("orders", "lines.line_ord = orders.ord_id").
			Parent(edge.Parent{Name: "order", Entity: "Order", MasterLinkField: "ord_id", ChildLinkField: "line_ord"}),
		schema.NewBuilder("Tag", "tags").
			ID("tag_id", field.TypeInt64).
			Attribute(schema.AttributeInfo{Name: "label", Type: field.TypeString}),
		schema.NewBuilder("Event", "events").
			ID("ev_id", field.TypeInt64).
			Timestamp("ev_ts", field.TypeInt64).
			Attribute(schema.AttributeInfo{Name: "name", Type: field.TypeString}),
	))
	reg.Freeze()
	return reg
}

func registry(t *testing.T, opts ...dao.Option) *dao.Registry {
	t.Helper()
	opts = append([]dao.Option{dao.WithClock(func() time.Time { return epoch })}, opts...)
	daos, err := dao.NewRegistry(schemas(t), opts...)
	require.NoError(t, err)
	return daos
}

// clause returns an authorizer answering with a fixed clause per mode.
func clause(byMode map[privacy.Mode]string) privacy.Authorizer {
	return privacy.AuthorizerFunc(func(_ context.Context, _ string, _ privacy.Viewer, mode privacy.Mode) (string, error) {
		return byMode[mode], nil
	})
}
