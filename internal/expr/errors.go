// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package expr

import "fmt"

// UnsupportedOperationError is returned when an operator is applied to
// operands it has no SQL lowering for.
type UnsupportedOperationError struct {
	Op     string
	Reason string
}

func (e *UnsupportedOperationError) Error() string {
	return fmt.Sprintf("unsupported operation %s: %s", e.Op, e.Reason)
}

func unsupported(op any, format string, args ...any) error {
	return &UnsupportedOperationError{Op: fmt.Sprint(op), Reason: fmt.Sprintf(format, args...)}
}

// UnresolvedCorrelationError is returned when a subquery references a member
// of an enclosing query that cannot be found.
type UnresolvedCorrelationError struct {
	Scope  string
	Member string
	// Err is the error returned when resolving the member, if the scope was
	// found.
	Err error
}

func (e *UnresolvedCorrelationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("cannot resolve member %q of query %q: %s", e.Member, e.Scope, e.Err)
	}
	return fmt.Sprintf("cannot resolve member %q: no enclosing query with alias %q", e.Member, e.Scope)
}

func (e *UnresolvedCorrelationError) Unwrap() error {
	return e.Err
}

// InvalidStateError is returned when a query is misused, for example when it
// is changed after it was finalized.
type InvalidStateError struct {
	Op     string
	Reason string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s: %s", e.Op, e.Reason)
}
