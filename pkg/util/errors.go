// Package util provides utility functions and common error types.
package util

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors shared across the reconciliation pipeline
var (
	ErrValidationFailed = errors.New("validation failed")
	ErrPlanningFailed   = errors.New("planning failed")
	ErrProtected        = errors.New("protected object")
	ErrNotFound         = errors.New("resource not found")
	ErrInvalidConfig    = errors.New("invalid configuration")
	ErrSnapshotFailed   = errors.New("pre-apply snapshot failed")
)

// Violation describes a single validation failure: the field checked,
// the offending value, and the rule that was broken.
type Violation struct {
	Field string
	Value string
	Rule  string
}

func (v Violation) String() string {
	if v.Value == "" {
		return fmt.Sprintf("%s: %s", v.Field, v.Rule)
	}
	return fmt.Sprintf("%s=%s: %s", v.Field, v.Value, v.Rule)
}

// ValidationError represents one or more validation failures
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	if len(e.Violations) == 1 {
		return "validation failed: " + e.Violations[0].String()
	}
	msgs := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		msgs[i] = v.String()
	}
	return fmt.Sprintf("validation failed:\n  - %s", strings.Join(msgs, "\n  - "))
}

func (e *ValidationError) Unwrap() error {
	return ErrValidationFailed
}

// ValidationBuilder helps accumulate validation violations
type ValidationBuilder struct {
	violations []Violation
}

// Add records a violation if condition is false
func (v *ValidationBuilder) Add(condition bool, field, value, rule string) *ValidationBuilder {
	if !condition {
		v.violations = append(v.violations, Violation{Field: field, Value: value, Rule: rule})
	}
	return v
}

// AddViolation records a violation unconditionally
func (v *ValidationBuilder) AddViolation(field, value, rule string) *ValidationBuilder {
	v.violations = append(v.violations, Violation{Field: field, Value: value, Rule: rule})
	return v
}

// AddViolationf records a violation with a formatted rule message
func (v *ValidationBuilder) AddViolationf(field, value, format string, args ...interface{}) *ValidationBuilder {
	v.violations = append(v.violations, Violation{Field: field, Value: value, Rule: fmt.Sprintf(format, args...)})
	return v
}

// HasViolations returns true if any violations were recorded
func (v *ValidationBuilder) HasViolations() bool {
	return len(v.violations) > 0
}

// Violations returns the recorded violations in order
func (v *ValidationBuilder) Violations() []Violation {
	return v.violations
}

// Build returns the validation error or nil if no violations
func (v *ValidationBuilder) Build() error {
	if len(v.violations) == 0 {
		return nil
	}
	return &ValidationError{Violations: v.violations}
}

// DependencyError represents a reference to an object that exists in
// neither desired nor live state.
type DependencyError struct {
	Resource      string
	DependsOn     string
	DependsOnType string
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("%s requires %s '%s' to exist", e.Resource, e.DependsOnType, e.DependsOn)
}

func (e *DependencyError) Unwrap() error {
	return ErrPlanningFailed
}

// NewDependencyError creates a dependency error
func NewDependencyError(resource, dependsOnType, dependsOn string) *DependencyError {
	return &DependencyError{
		Resource:      resource,
		DependsOn:     dependsOn,
		DependsOnType: dependsOnType,
	}
}

// ProtectedError reports an attempt to mutate an object the engine must
// never touch (the management network).
type ProtectedError struct {
	Resource string
	Reason   string
}

func (e *ProtectedError) Error() string {
	return fmt.Sprintf("%s is protected: %s", e.Resource, e.Reason)
}

func (e *ProtectedError) Unwrap() error {
	return ErrProtected
}
