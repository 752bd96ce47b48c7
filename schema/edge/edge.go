package edge

import "errors"

// Children links a master entity to a dependent entity.
//
// Without LinkTable the child holds ChildLinkField referencing the master's
// MasterLinkField (one-to-many). With LinkTable, the link table joins the
// child through LinkOn and ChildLinkField is the link table column
// referencing the master (many-to-many).
type Children struct {
	Name            string
	Entity          string
	MasterLinkField string
	ChildLinkField  string
	LinkTable       string
	LinkOn          string
	// CascadeDelete deletes the children when the master is deleted.
	CascadeDelete bool
}

// Validate checks the descriptor is complete.
func (c Children) Validate() error {
	return validate(c.Name, c.Entity, c.MasterLinkField, c.ChildLinkField, c.LinkTable, c.LinkOn)
}

// Parent is the reverse of Children: the entity holding ChildLinkField
// references MasterLinkField of the parent entity.
type Parent struct {
	Name            string
	Entity          string
	MasterLinkField string
	ChildLinkField  string
}

// Validate checks the descriptor is complete.
func (p Parent) Validate() error {
	return validate(p.Name, p.Entity, p.MasterLinkField, p.ChildLinkField, "", "")
}

// Multiselect stores a set of values per record in LinkTable, one row per
// value: MasterLinkField references the record id, ValueField holds the value.
type Multiselect struct {
	Name            string
	LinkTable       string
	MasterLinkField string
	ValueField      string
}

// Validate checks the descriptor is complete.
func (m Multiselect) Validate() error {
	switch {
	case m.Name == "":
		return errors.New("edge: multiselect name is required")
	case m.LinkTable == "":
		return errors.New("edge: multiselect link table is required")
	case m.MasterLinkField == "" || m.ValueField == "":
		return errors.New("edge: multiselect link and value fields are required")
	}
	return nil
}

// DelCascade names rows of Table whose LinkField references the deleted
// record and that are deleted before it.
type DelCascade struct {
	Table     string
	LinkField string
}

// Validate checks the descriptor is complete.
func (d DelCascade) Validate() error {
	if d.Table == "" || d.LinkField == "" {
		return errors.New("edge: delete cascade table and link field are required")
	}
	return nil
}

func validate(name, entity, master, child, linkTable, linkOn string) error {
	switch {
	case name == "":
		return errors.New("edge: name is required")
	case entity == "":
		return errors.New("edge: related entity is required")
	case master == "" || child == "":
		return errors.New("edge: master and child link fields are required")
	case linkTable != "" && linkOn == "":
		return errors.New("edge: link table requires an ON clause")
	}
	return nil
}
