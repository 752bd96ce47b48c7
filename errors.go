package iscore

import (
	"errors"
	"fmt"
	"strings"
)

// Standard sentinel errors for common operations.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("iscore: record not found")

	// ErrInvalidConfig is matched by every ConfigError.
	ErrInvalidConfig = errors.New("iscore: invalid entity configuration")

	// ErrBuild is matched by every BuildError.
	ErrBuild = errors.New("iscore: cannot build statement")

	// ErrConflict is returned when an update or delete guarded by a
	// timestamp affected no row: the record was modified or deleted
	// by another writer since it was read.
	ErrConflict = errors.New("iscore: record was concurrently modified or deleted")
)

// NotFoundError represents an error when a record is not found.
type NotFoundError struct {
	entity string
	id     any
}

// Error returns the error string.
func (e *NotFoundError) Error() string {
	if e.id != nil {
		return fmt.Sprintf("iscore: %s not found (id=%v)", e.entity, e.id)
	}
	return fmt.Sprintf("iscore: %s not found", e.entity)
}

// Is reports whether the target error matches NotFoundError.
func (e *NotFoundError) Is(err error) bool {
	return err == ErrNotFound
}

// Entity returns the entity name.
func (e *NotFoundError) Entity() string {
	return e.entity
}

// ID returns the id that was searched for, if available.
func (e *NotFoundError) ID() any {
	return e.id
}

// NewNotFoundError returns a new NotFoundError for the given entity and id.
func NewNotFoundError(entity string, id any) *NotFoundError {
	return &NotFoundError{entity: entity, id: id}
}

// IsNotFound returns true if the error is a NotFoundError.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	var e *NotFoundError
	return errors.As(err, &e) || errors.Is(err, ErrNotFound)
}

// ConfigError reports malformed or missing entity metadata. It aborts the
// registration of the entity it names, never the whole registry.
type ConfigError struct {
	Entity    string
	Attribute string // Attribute name (if applicable)
	Op        string // What was being configured, e.g. "register", "join", "sort".
	Message   string
	Cause     error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	var b strings.Builder
	b.WriteString("iscore: config error")
	if e.Op != "" {
		b.WriteString(" (")
		b.WriteString(e.Op)
		b.WriteString(")")
	}
	if e.Entity != "" {
		b.WriteString(" on entity ")
		b.WriteString(e.Entity)
	}
	if e.Attribute != "" {
		b.WriteString(" attribute ")
		b.WriteString(e.Attribute)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap returns the underlying error.
func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches ErrInvalidConfig.
func (e *ConfigError) Is(target error) bool {
	return target == ErrInvalidConfig
}

// NewConfigError creates a new ConfigError.
func NewConfigError(entity, attribute, op, message string) *ConfigError {
	return &ConfigError{Entity: entity, Attribute: attribute, Op: op, Message: message}
}

// IsConfigError returns true if the error is a ConfigError.
func IsConfigError(err error) bool {
	if err == nil {
		return false
	}
	var e *ConfigError
	return errors.As(err, &e)
}

// BuildError is returned when a statement cannot be built from the request,
// e.g. an operator applied to an operand it has no rendering rule for.
type BuildError struct {
	Entity    string
	Attribute string
	Op        string // Statement being built: "select", "insert", "update", ...
	Err       error
}

// Error returns the error string.
func (e *BuildError) Error() string {
	if e.Attribute != "" {
		return fmt.Sprintf("iscore: build %s %s.%s: %v", e.Op, e.Entity, e.Attribute, e.Err)
	}
	return fmt.Sprintf("iscore: build %s %s: %v", e.Op, e.Entity, e.Err)
}

// Unwrap returns the underlying error.
func (e *BuildError) Unwrap() error {
	return e.Err
}

// Is reports whether the target matches ErrBuild.
func (e *BuildError) Is(target error) bool {
	return target == ErrBuild
}

// NewBuildError returns a new BuildError.
func NewBuildError(entity, attribute, op string, err error) *BuildError {
	return &BuildError{Entity: entity, Attribute: attribute, Op: op, Err: err}
}

// IsBuildError returns true if the error is a BuildError.
func IsBuildError(err error) bool {
	if err == nil {
		return false
	}
	var e *BuildError
	return errors.As(err, &e)
}

// ConflictError is the stale-write status of an update or delete.
type ConflictError struct {
	Entity string
	ID     any
	Op     string
}

// Error returns the error string.
func (e *ConflictError) Error() string {
	return fmt.Sprintf("iscore: %s %s (id=%v): nothing updated, record was concurrently modified or deleted", e.Op, e.Entity, e.ID)
}

// Is reports whether the target matches ErrConflict.
func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// NewConflictError returns a new ConflictError.
func NewConflictError(entity, op string, id any) *ConflictError {
	return &ConflictError{Entity: entity, ID: id, Op: op}
}

// IsConflict returns true if the error is a stale-write conflict.
func IsConflict(err error) bool {
	if err == nil {
		return false
	}
	var e *ConflictError
	return errors.As(err, &e) || errors.Is(err, ErrConflict)
}

// ConstraintError represents a database constraint violation error.
type ConstraintError struct {
	msg  string
	wrap error
}

// Error returns the error string.
func (e ConstraintError) Error() string {
	return fmt.Sprintf("iscore: constraint failed: %s", e.msg)
}

// Unwrap returns the underlying error.
func (e ConstraintError) Unwrap() error {
	return e.wrap
}

// NewConstraintError returns a new ConstraintError with the given message.
func NewConstraintError(msg string, wrap error) error {
	return ConstraintError{msg: msg, wrap: wrap}
}

// IsConstraintError returns true if the error is a ConstraintError.
func IsConstraintError(err error) bool {
	if err == nil {
		return false
	}
	var e ConstraintError
	return errors.As(err, &e)
}

// ValidationError represents a validation error for attribute values.
type ValidationError struct {
	Entity string
	Name   string // Attribute name
	Err    error
}

// Error returns the error string.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("iscore: validation failed for %s.%s: %s", e.Entity, e.Name, e.Err)
}

// Unwrap returns the underlying error.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError returns a new ValidationError for the given attribute.
func NewValidationError(entity, name string, err error) *ValidationError {
	return &ValidationError{Entity: entity, Name: name, Err: err}
}

// IsValidationError returns true if the error is a ValidationError.
func IsValidationError(err error) bool {
	if err == nil {
		return false
	}
	var e *ValidationError
	return errors.As(err, &e)
}

// AggregateError represents multiple errors collected during an operation.
type AggregateError struct {
	Errors []error
}

// Error returns the error string.
func (e *AggregateError) Error() string {
	if len(e.Errors) == 0 {
		return "iscore: no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	var sb strings.Builder
	sb.WriteString("iscore: multiple errors:")
	for i, err := range e.Errors {
		fmt.Fprintf(&sb, "\n  [%d] %v", i+1, err)
	}
	return sb.String()
}

// Unwrap returns the collected errors.
func (e *AggregateError) Unwrap() []error {
	return e.Errors
}

// NewAggregateError returns a new AggregateError if there are errors,
// otherwise returns nil.
func NewAggregateError(errs ...error) error {
	var filtered []error
	for _, err := range errs {
		if err != nil {
			filtered = append(filtered, err)
		}
	}
	if len(filtered) == 0 {
		return nil
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &AggregateError{Errors: filtered}
}

// QueryError wraps a query execution error with additional context.
type QueryError struct {
	Entity string
	Op     string // Operation (e.g., "select", "count", "aggregate")
	Err    error
}

// Error returns the error string.
func (e *QueryError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("iscore: querying %s (%s): %v", e.Entity, e.Op, e.Err)
	}
	return fmt.Sprintf("iscore: querying %s: %v", e.Entity, e.Err)
}

// Unwrap returns the underlying error.
func (e *QueryError) Unwrap() error {
	return e.Err
}

// NewQueryError returns a new QueryError.
func NewQueryError(entity, op string, err error) *QueryError {
	return &QueryError{Entity: entity, Op: op, Err: err}
}

// IsQueryError returns true if the error is a QueryError.
func IsQueryError(err error) bool {
	if err == nil {
		return false
	}
	var e *QueryError
	return errors.As(err, &e)
}

// MutationError wraps a write execution error with additional context.
type MutationError struct {
	Entity string
	Op     string // Operation (e.g., "insert", "update", "delete")
	Err    error
}

// Error returns the error string.
func (e *MutationError) Error() string {
	return fmt.Sprintf("iscore: %s %s: %v", e.Op, e.Entity, e.Err)
}

// Unwrap returns the underlying error.
func (e *MutationError) Unwrap() error {
	return e.Err
}

// NewMutationError returns a new MutationError.
func NewMutationError(entity, op string, err error) *MutationError {
	return &MutationError{Entity: entity, Op: op, Err: err}
}

// IsMutationError returns true if the error is a MutationError.
func IsMutationError(err error) bool {
	if err == nil {
		return false
	}
	var e *MutationError
	return errors.As(err, &e)
}

// PrivacyError represents a request denied by the authorization policy.
type PrivacyError struct {
	Entity string
	Op     string
	Err    error
}

// Error returns the error string.
func (e *PrivacyError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("iscore: privacy denied %s on %s: %v", e.Op, e.Entity, e.Err)
	}
	return fmt.Sprintf("iscore: privacy denied %s on %s", e.Op, e.Entity)
}

// Unwrap returns the underlying error.
func (e *PrivacyError) Unwrap() error {
	return e.Err
}

// NewPrivacyError returns a new PrivacyError.
func NewPrivacyError(entity, op string, err error) *PrivacyError {
	return &PrivacyError{Entity: entity, Op: op, Err: err}
}

// IsPrivacyError returns true if the error is a PrivacyError.
func IsPrivacyError(err error) bool {
	if err == nil {
		return false
	}
	var e *PrivacyError
	return errors.As(err, &e)
}
