package schema_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insersa/iscore"
	"github.com/insersa/iscore/schema"
	"github.com/insersa/iscore/schema/edge"
	"github.com/insersa/iscore/schema/field"
)

func orderBuilder(opts ...schema.BuilderOption) *schema.Builder {
	return schema.NewBuilder("Order", "orders", opts...).
		ID("ord_id", field.TypeInt64).
		Timestamp("ord_ts", field.TypeTime).
		AuditUser("ord_user").
		Sequence("SEQ_ORDER").
		Attribute(schema.AttributeInfo{Name: "status", Type: field.TypeString, List: true, Required: true}).
		Attribute(schema.AttributeInfo{Name: "cust_id", Type: field.TypeInt64, Hidden: true}).
		Attribute(schema.AttributeInfo{Name: "ord_date", Type: field.TypeDate, List: true}).
		Attribute(schema.AttributeInfo{Name: "region", Table: "customers", Type: field.TypeString}).
		Attribute(schema.AttributeInfo{Name: "customers__name", Type: field.TypeString, List: true}).
		Join("customers", "orders.cust_id = customers.id").
		Sort("by_status", schema.Asc("status", true), schema.Desc("ord_id", false)).
		Sort("recent", schema.SortItem{Field: "ord_date DESC NULLS LAST"})
}

func TestBuild(t *testing.T) {
	vo, err := orderBuilder().Build()
	require.NoError(t, err)

	assert.Equal(t, "Order", vo.Name())
	assert.Equal(t, "orders", vo.Table())
	assert.Equal(t, "ord_id", vo.IDColumn())
	assert.Equal(t, "ord_ts", vo.TimestampColumn())
	assert.Equal(t, "ord_user", vo.AuditUserColumn())
	assert.Equal(t, "SEQ_ORDER", vo.Sequence())
	assert.Equal(t, []string{"orders", "customers"}, vo.AllTables())
	assert.Equal(t, []string{"orders.cust_id = customers.id"}, vo.AllJoinClauses())

	attrs := vo.Attributes()
	require.Len(t, attrs, 8)
	for i, a := range attrs {
		assert.Equal(t, i+1, a.Position)
		assert.Equal(t, "Order", a.Entity)
	}

	assert.Equal(t, []string{"status", "ord_date", "customers__name"}, vo.ListAttributes())
	assert.Equal(t, []string{"cust_id"}, vo.HiddenAttributes())
	assert.Equal(t, []string{"status"}, vo.RequiredAttributes())
	assert.Equal(t, []string{"ord_id", "ord_ts", "ord_user", "status", "cust_id", "ord_date"}, vo.NamesInTable("orders"))
	assert.Equal(t, []string{"region", "customers__name"}, vo.NamesInTable("customers"))
	assert.Equal(t, []string{"customers__name", "ord_ts", "ord_user", "region"}, vo.NoCreateUpdateAttributes())
	assert.Equal(t, field.TypeDate, vo.Types()["ord_date"])
	assert.Equal(t, field.TypeString, vo.ColumnTypes()["name"])
	assert.Len(t, vo.SelectFields(), 8)

	_, ok := vo.Attribute("missing")
	assert.False(t, ok, "unknown attributes are absent")
}

func TestBuildPredicates(t *testing.T) {
	tests := []struct {
		name  string
		equal bool
		attr  string
		want  field.Predicate
	}{
		{name: "string contains", attr: "status", want: field.PredicateContains},
		{name: "string equal by default", equal: true, attr: "status", want: field.PredicateEqual},
		{name: "date", attr: "ord_date", want: field.PredicateDateEqual},
		{name: "int", attr: "cust_id", want: field.PredicateEqual},
		{name: "id", attr: "ord_id", want: field.PredicateEqual},
		{name: "audit user", attr: "ord_user", want: field.PredicateEqual},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vo := orderBuilder(schema.WithEqualByDefault(tt.equal)).MustBuild()
			a, ok := vo.Attribute(tt.attr)
			require.True(t, ok)
			assert.Equal(t, tt.want, a.Predicate)
		})
	}
}

func TestTemporalIDComparesStrictly(t *testing.T) {
	vo := schema.NewBuilder("Day", "days").ID("day", field.TypeDate).MustBuild()
	a, _ := vo.Attribute("day")
	assert.Equal(t, field.PredicateEqual, a.Predicate)
	assert.True(t, vo.Searchable("day"))
}

func TestBuildErrors(t *testing.T) {
	tests := []struct {
		name    string
		b       *schema.Builder
		wantMsg string
	}{
		{name: "no id", b: schema.NewBuilder("X", "x"), wantMsg: "id attribute is required"},
		{name: "no table", b: schema.NewBuilder("X", "").ID("id", field.TypeInt), wantMsg: "primary table"},
		{
			name: "duplicate position",
			b: schema.NewBuilder("X", "x").ID("id", field.TypeInt).
				Attribute(schema.AttributeInfo{Name: "a", Type: field.TypeInt, Position: 1}),
			wantMsg: "position 1",
		},
		{
			name: "table not joined",
			b: schema.NewBuilder("X", "x").ID("id", field.TypeInt).
				Attribute(schema.AttributeInfo{Name: "other__a", Type: field.TypeInt}),
			wantMsg: `table "other"`,
		},
		{
			name:    "duplicate attribute",
			b:       schema.NewBuilder("X", "x").ID("id", field.TypeInt).ID("id", field.TypeInt),
			wantMsg: "duplicate attribute",
		},
		{
			name:    "bad timestamp type",
			b:       schema.NewBuilder("X", "x").ID("id", field.TypeInt).Timestamp("ts", field.TypeString),
			wantMsg: "timestamp must be",
		},
		{
			name:    "join without on",
			b:       schema.NewBuilder("X", "x").ID("id", field.TypeInt).Join("y", " "),
			wantMsg: "ON clause",
		},
		{
			name:    "empty sort",
			b:       schema.NewBuilder("X", "x").ID("id", field.TypeInt).Sort("s"),
			wantMsg: "no items",
		},
		{
			name: "children link not declared",
			b: schema.NewBuilder("X", "x").ID("id", field.TypeInt).
				Children(edge.Children{Name: "c", Entity: "Y", MasterLinkField: "nope", ChildLinkField: "x_id"}),
			wantMsg: "master link field",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.b.Build()
			require.Error(t, err)
			assert.True(t, errors.Is(err, iscore.ErrInvalidConfig))
			assert.ErrorContains(t, err, tt.wantMsg)
			assert.ErrorContains(t, err, "X", "errors name the entity")
		})
	}
}

func TestBuildCollectsAllErrors(t *testing.T) {
	_, err := schema.NewBuilder("X", "").Join("y", "").Build()
	var agg *iscore.AggregateError
	require.ErrorAs(t, err, &agg)
	assert.GreaterOrEqual(t, len(agg.Errors), 3)
}

func TestSort(t *testing.T) {
	vo := orderBuilder().MustBuild()

	sorts := vo.SortArray()
	require.Len(t, sorts, 2)
	assert.Equal(t, []string{"status", "ord_id"}, sorts[0].Fields())
	assert.Equal(t, "by_status", vo.DefaultOrderKey())
	assert.Equal(t, "status ASC, ord_id DESC", vo.DefaultSortOrder())
	assert.Equal(t, "status DESC, ord_id DESC", vo.OrderBy(1, true))
	assert.Equal(t, "ord_date DESC NULLS LAST", vo.OrderBy(2, false))

	i, ok := vo.SortIndex("recent")
	assert.True(t, ok)
	assert.Equal(t, 2, i)

	tests := []struct {
		key   string
		index int
		want  int
	}{
		{want: 1},
		{key: "recent", want: 2},
		{key: "recent", index: 1, want: 2},
		{key: "unknown", index: 2, want: 2},
		{index: 3, want: 1},
		{index: -1, want: 1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, vo.ResolveSort(tt.key, tt.index), "key=%q index=%d", tt.key, tt.index)
	}
}

func TestDefaultSortFallsBackToID(t *testing.T) {
	vo := schema.NewBuilder("Tag", "tags").ID("tag_id", field.TypeInt).MustBuild()
	assert.Equal(t, "tag_id", vo.DefaultOrderKey())
	assert.Equal(t, "tag_id ASC", vo.DefaultSortOrder())
	assert.Equal(t, "tag_id ASC", vo.OrderBy(5, false))
}

func TestSeparatorRendering(t *testing.T) {
	vo := orderBuilder().MustBuild()
	a, ok := vo.Attribute("customers__name")
	require.True(t, ok)
	assert.Equal(t, "customers", a.TableName(vo.Table()))
	assert.Equal(t, "customers.name", a.Ref())
	assert.Equal(t, "customers.name", a.Qualified(vo.Table()))

	s, _ := vo.Attribute("status")
	assert.Equal(t, "status", s.Ref())
	assert.Equal(t, "orders.status", s.Qualified(vo.Table()))

	assert.Equal(t, "x.y", schema.QualifyName("x__y"))
	assert.Equal(t, "plain", schema.QualifyName("plain"))
}

func TestRegistry(t *testing.T) {
	reg := schema.NewRegistry()
	require.NoError(t, reg.Register(orderBuilder().MustBuild()))
	err := reg.Register(orderBuilder().MustBuild())
	assert.True(t, iscore.IsConfigError(err))

	err = reg.RegisterAll(
		schema.NewBuilder("Line", "lines").ID("line_id", field.TypeInt64),
		schema.NewBuilder("Broken", ""),
	)
	require.Error(t, err)
	assert.ErrorContains(t, err, "Broken")
	assert.Equal(t, []string{"Order", "Line"}, reg.Names())

	vo, ok := reg.Lookup("Line")
	require.True(t, ok)
	assert.Equal(t, "lines", vo.Table())
	_, ok = reg.Lookup("Broken")
	assert.False(t, ok)

	reg.Freeze()
	assert.True(t, reg.Frozen())
	assert.Error(t, reg.Register(schema.NewBuilder("Late", "late").ID("id", field.TypeInt).MustBuild()))
	assert.Error(t, reg.ApplyMapping(schema.Mapping{}))

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			vo, ok := reg.Lookup("Order")
			assert.True(t, ok)
			assert.Equal(t, "status ASC, ord_id DESC", vo.DefaultSortOrder())
		}()
	}
	wg.Wait()
}

func TestApplyMapping(t *testing.T) {
	reg := schema.NewRegistry()
	reg.MustRegister(orderBuilder().
		Sort("custom", schema.SortItem{Field: "orders.cust_id DESC"}).
		MustBuild())
	reg.MustRegister(schema.NewBuilder("Tag", "tags").ID("tag_id", field.TypeInt).MustBuild())

	m := schema.Mapping{
		"Order": {"ord_id": "ID_ORDER", "cust_id": "ID_CUST", "status": "ORD_STATUS", "unknown": "X"},
	}
	apply := func() *schema.VOInfo {
		require.NoError(t, reg.ApplyMapping(m))
		vo, _ := reg.Lookup("Order")
		return vo
	}
	vo := apply()

	assert.Equal(t, "ID_ORDER", vo.IDColumn())
	assert.Equal(t, []string{"orders.ID_CUST = customers.id"}, vo.AllJoinClauses())
	assert.Equal(t, "ORD_STATUS ASC, ID_ORDER DESC", vo.DefaultSortOrder())
	assert.Equal(t, "orders.ID_CUST DESC", vo.OrderBy(3, false))
	assert.Equal(t, field.TypeString, vo.ColumnTypes()["ORD_STATUS"])
	a, _ := vo.Attribute("status")
	assert.Equal(t, "status", a.Name, "logical names are kept")
	assert.Equal(t, "ORD_STATUS", a.Column())

	again := apply()
	assert.Equal(t, vo.AllJoinClauses(), again.AllJoinClauses(), "mapping is idempotent")
	assert.Equal(t, vo.DefaultSortOrder(), again.DefaultSortOrder())
	assert.Same(t, vo.Origin(), again.Origin())

	tag, _ := reg.Lookup("Tag")
	assert.Equal(t, "tag_id", tag.IDColumn(), "entities without overrides are untouched")

	require.NoError(t, reg.ApplyMapping(nil))
	vo, _ = reg.Lookup("Order")
	assert.Equal(t, "ord_id", vo.IDColumn())
	assert.Equal(t, []string{"orders.cust_id = customers.id"}, vo.AllJoinClauses())
}

func TestApplyMappingSameColumnInJoinedTable(t *testing.T) {
	reg := schema.NewRegistry()
	reg.MustRegister(schema.NewBuilder("Account", "accounts").
		ID("id", field.TypeInt64).
		Attribute(schema.AttributeInfo{Name: "cust", Type: field.TypeInt64}).
		Attribute(schema.AttributeInfo{Name: "customers__id", Type: field.TypeInt64}).
		Join("customers", "accounts.cust = customers.id").
		Sort("custom", schema.SortItem{Field: "id DESC, customers.id"}).
		MustBuild())

	require.NoError(t, reg.ApplyMapping(schema.Mapping{
		"Account": {"id": "ACC_ID", "cust": "ACC_CUST", "customers__id": "CUS_ID"},
	}))
	vo, _ := reg.Lookup("Account")
	assert.Equal(t, "ACC_ID", vo.IDColumn())
	a, _ := vo.Attribute("customers__id")
	assert.Equal(t, "CUS_ID", a.Column())
	assert.Equal(t, []string{"accounts.ACC_CUST = customers.CUS_ID"}, vo.AllJoinClauses())
	assert.Equal(t, "ACC_ID DESC, customers.CUS_ID", vo.OrderBy(vo.ResolveSort("custom", 0), false))

	require.NoError(t, reg.ApplyMapping(schema.Mapping{"Account": {"customers__id": "CUS_ID"}}))
	vo, _ = reg.Lookup("Account")
	assert.Equal(t, "id", vo.IDColumn())
	assert.Equal(t, []string{"accounts.cust = customers.CUS_ID"}, vo.AllJoinClauses())
	assert.Equal(t, "id DESC, customers.CUS_ID", vo.OrderBy(vo.ResolveSort("custom", 0), false),
		"unqualified columns resolve to the primary table first")
}

func TestValidate(t *testing.T) {
	reg := schema.NewRegistry()
	reg.MustRegister(orderBuilder().
		Children(edge.Children{Name: "lines", Entity: "Line", MasterLinkField: "ord_id", ChildLinkField: "line_ord"}).
		Children(edge.Children{Name: "notes", Entity: "Note", MasterLinkField: "ord_id", ChildLinkField: "note_ord"}).
		MustBuild())
	reg.MustRegister(schema.NewBuilder("Line", "lines").
		ID("line_id", field.TypeInt64).
		Sequence("SEQ_LINE").
		Attribute(schema.AttributeInfo{Name: "line_ord", Type: field.TypeInt64}).
		Parent(edge.Parent{Name: "order", Entity: "Order", MasterLinkField: "ord_id", ChildLinkField: "line_ord"}).
		MustBuild())

	res := reg.Validate()
	require.True(t, res.HasErrors())
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "notes", res.Errors[0].Link)
	assert.Contains(t, res.String(), `child entity "Note" is not registered`)
	assert.True(t, iscore.IsConfigError(res.Err()))
}

func TestRolesAndReadOnly(t *testing.T) {
	vo, err := schema.NewBuilder("Invoice", "invoices").
		Attribute(schema.AttributeInfo{Name: "inv_id", Type: field.TypeInt64}).
		Attribute(schema.AttributeInfo{Name: "inv_ts", Type: field.TypeInt64}).
		Attribute(schema.AttributeInfo{Name: "inv_user", Type: field.TypeString}).
		Attribute(schema.AttributeInfo{Name: "total", Type: field.TypeFloat}).
		Attribute(schema.AttributeInfo{Name: "amount", Type: field.TypeFloat}).
		Roles("inv_id", "inv_ts", "inv_user").
		ReadOnly("total").
		Build()
	require.NoError(t, err)
	assert.Equal(t, "inv_id", vo.IDField())
	assert.Equal(t, "inv_ts", vo.TimestampField())
	assert.Equal(t, "inv_user", vo.AuditUserField())
	assert.Equal(t, []string{"inv_ts", "inv_user", "total"}, vo.NoCreateUpdateAttributes())
	assert.False(t, vo.NoCreateUpdate("amount"))

	_, err = schema.NewBuilder("Invoice", "invoices").
		ID("inv_id", field.TypeInt64).
		ReadOnly("missing").
		Build()
	assert.True(t, iscore.IsConfigError(err))

	_, err = schema.NewBuilder("Invoice", "invoices").
		Attribute(schema.AttributeInfo{Name: "inv_id", Type: field.TypeInt64}).
		Roles("inv_id", "inv_ts", "").
		Build()
	assert.True(t, iscore.IsConfigError(err), "timestamp role without attribute")
}
