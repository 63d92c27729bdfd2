// Package errors defines the error taxonomy of the query engine.
//
// Errors fall into two groups with different timing guarantees:
// construction-time validation failures ([ErrInvalidParameter]) are returned
// synchronously by the expression builders, before any evaluation begins;
// everything else surfaces when a plan is resolved or collected, never while
// the plan is being built.
package errors

import "errors"

var (
	// ErrCompute reports a semantic failure during evaluation, such as an
	// empty horizontal fold, incompatible types in a comparison or
	// reduction, or ambiguous return-type inference for a user function.
	ErrCompute = errors.New("compute error")

	// ErrShape reports a row or column count mismatch, such as appending
	// frames with different widths or broadcasting columns of differing
	// lengths.
	ErrShape = errors.New("shape error")

	// ErrColumnNotFound reports a column reference that did not resolve
	// against the schema available at planning time.
	ErrColumnNotFound = errors.New("column not found")

	// ErrInvalidParameter reports an invalid argument to a builder, such as
	// an unsupported strategy or interpolation name. It is always returned
	// before any evaluation starts.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrDuplicate reports a column name that would appear more than once
	// in an output schema.
	ErrDuplicate = errors.New("duplicate column name")

	// ErrNotImplemented reports a recognized but unsupported operation.
	ErrNotImplemented = errors.New("not implemented")
)

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool { return errors.Is(err, target) }

// As finds the first error in err's chain matching target, and if so, sets
// target to that error.
func As(err error, target any) bool { return errors.As(err, target) }
