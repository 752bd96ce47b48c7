package schema

import (
	"fmt"
	"strings"

	"github.com/insersa/iscore"
)

// LinkError is a problem found in the links between entities.
type LinkError struct {
	Entity  string
	Link    string
	Message string
}

func (e *LinkError) Error() string {
	if e.Link != "" {
		return fmt.Sprintf("%s.%s: %s", e.Entity, e.Link, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Entity, e.Message)
}

// ValidationResult holds the results of a registry validation.
type ValidationResult struct {
	Errors   []*LinkError
	Warnings []*LinkError
}

// HasErrors returns true if there are any validation errors.
func (r *ValidationResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// HasWarnings returns true if there are any validation warnings.
func (r *ValidationResult) HasWarnings() bool {
	return len(r.Warnings) > 0
}

// Err returns the errors as ConfigErrors, or nil.
func (r *ValidationResult) Err() error {
	errs := make([]error, len(r.Errors))
	for i, e := range r.Errors {
		errs[i] = iscore.NewConfigError(e.Entity, "", "link "+e.Link, e.Message)
	}
	return iscore.NewAggregateError(errs...)
}

// String returns a human-readable summary of the validation result.
func (r *ValidationResult) String() string {
	var sb strings.Builder
	write := func(title string, errs []*LinkError) {
		if len(errs) == 0 {
			return
		}
		sb.WriteString(title)
		sb.WriteString(":\n")
		for _, e := range errs {
			sb.WriteString("  - ")
			sb.WriteString(e.Error())
			sb.WriteString("\n")
		}
	}
	write("Errors", r.Errors)
	write("Warnings", r.Warnings)
	if !r.HasErrors() && !r.HasWarnings() {
		sb.WriteString("Validation passed.\n")
	}
	return sb.String()
}

func (r *ValidationResult) errorf(entity, link, format string, args ...any) {
	r.Errors = append(r.Errors, &LinkError{Entity: entity, Link: link, Message: fmt.Sprintf(format, args...)})
}

func (r *ValidationResult) warnf(entity, link, format string, args ...any) {
	r.Warnings = append(r.Warnings, &LinkError{Entity: entity, Link: link, Message: fmt.Sprintf(format, args...)})
}

func validateLinks(entities []*VOInfo, lookup func(string) (*VOInfo, bool)) *ValidationResult {
	r := &ValidationResult{}
	for _, vo := range entities {
		for _, c := range vo.children {
			child, ok := lookup(c.Entity)
			if !ok {
				r.errorf(vo.name, c.Name, "child entity %q is not registered", c.Entity)
				continue
			}
			if c.LinkTable == "" {
				if _, ok := child.attrs[c.ChildLinkField]; !ok {
					r.errorf(vo.name, c.Name, "child entity %s has no attribute %q", c.Entity, c.ChildLinkField)
				}
			}
			if c.Entity == vo.name {
				r.warnf(vo.name, c.Name, "entity is its own child")
			}
		}
		for _, p := range vo.parents {
			parent, ok := lookup(p.Entity)
			if !ok {
				r.errorf(vo.name, p.Name, "parent entity %q is not registered", p.Entity)
				continue
			}
			if _, ok := parent.attrs[p.MasterLinkField]; !ok {
				r.errorf(vo.name, p.Name, "parent entity %s has no attribute %q", p.Entity, p.MasterLinkField)
			}
		}
		for _, j := range vo.joins {
			if len(vo.NamesInTable(j.Table)) == 0 {
				r.warnf(vo.name, j.Table, "joined table has no attributes")
			}
		}
		if vo.sequence == "" && vo.types[vo.idField].IsNumeric() {
			r.warnf(vo.name, "", "numeric id without a sequence")
		}
	}
	return r
}
