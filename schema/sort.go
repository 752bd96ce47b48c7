package schema

import (
	"strings"
)

// JoinInfo is a table joined to the entity's primary table.
type JoinInfo struct {
	Table string
	On    string
}

// SortItem is one field of a sort definition.
type SortItem struct {
	// Field is an attribute name or a custom literal. A field containing
	// whitespace is rendered as given ("ord_date DESC NULLS LAST").
	Field string
	Desc  bool
	// Toggle marks items whose direction flips when the caller reverses the sort.
	Toggle bool
}

// Asc returns an ascending sort item.
func Asc(field string, toggle bool) SortItem {
	return SortItem{Field: field, Toggle: toggle}
}

// Desc returns a descending sort item.
func Desc(field string, toggle bool) SortItem {
	return SortItem{Field: field, Desc: true, Toggle: toggle}
}

// Custom reports if the item is a literal carrying its own direction.
func (s SortItem) Custom() bool {
	return strings.ContainsAny(s.Field, " \t\n")
}

// Orientation returns "ASC" or "DESC", honoring reversal of toggleable items.
func (s SortItem) Orientation(reverse bool) string {
	desc := s.Desc
	if reverse && s.Toggle {
		desc = !desc
	}
	if desc {
		return "DESC"
	}
	return "ASC"
}

// SortInfo is a named, ordered list of sort items. Sorts are addressed by
// their 1-based position in the entity's sort list or by ID.
type SortInfo struct {
	ID    string
	Items []SortItem
}

// Fields returns the item fields in order.
func (s SortInfo) Fields() []string {
	fields := make([]string, len(s.Items))
	for i, it := range s.Items {
		fields[i] = it.Field
	}
	return fields
}

// SortArray returns the entity's sort definitions. Index i of the slice is
// sort index i+1.
func (v *VOInfo) SortArray() []SortInfo {
	sorts := make([]SortInfo, len(v.sorts))
	for i, s := range v.sorts {
		sorts[i] = SortInfo{ID: s.ID, Items: append([]SortItem(nil), s.Items...)}
	}
	return sorts
}

// SortIndex returns the 1-based index of the sort with the given key.
func (v *VOInfo) SortIndex(key string) (int, bool) {
	i, ok := v.sortKeys[key]
	return i, ok
}

// ResolveSort returns a valid 1-based sort index. A known key wins over
// index; a zero or out-of-range index resolves to 1.
func (v *VOInfo) ResolveSort(key string, index int) int {
	if key != "" {
		if i, ok := v.sortKeys[key]; ok {
			return i
		}
	}
	if index < 1 || index > len(v.sorts) {
		return 1
	}
	return index
}

// OrderBy renders the ORDER BY list of the sort at the given index.
func (v *VOInfo) OrderBy(index int, reverse bool) string {
	s := v.sorts[v.ResolveSort("", index)-1]
	parts := make([]string, 0, len(s.Items))
	for _, it := range s.Items {
		if it.Custom() {
			parts = append(parts, it.Field)
			continue
		}
		parts = append(parts, v.sortRef(it.Field)+" "+it.Orientation(reverse))
	}
	return strings.Join(parts, ", ")
}

// DefaultOrderKey returns the key of the default sort, or the id attribute
// when the default sort has no key.
func (v *VOInfo) DefaultOrderKey() string {
	if id := v.sorts[0].ID; id != "" {
		return id
	}
	return v.idField
}

// DefaultSortOrder returns the rendered default ORDER BY list.
func (v *VOInfo) DefaultSortOrder() string {
	return v.OrderBy(1, false)
}

func (v *VOInfo) sortRef(name string) string {
	if a, ok := v.attrs[name]; ok {
		return a.Ref()
	}
	return QualifyName(name)
}
