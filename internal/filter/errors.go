package filter

import (
	"errors"
	"fmt"
)

// ErrMissingRange is matched by every MissingRangeError.
var ErrMissingRange = errors.New("filter: no date-time range set")

// MissingRangeError reports a range-dependent filter applied to a session
// without a DateTimeRange.
type MissingRangeError struct {
	Op string
}

func (e *MissingRangeError) Error() string {
	return fmt.Sprintf("filter: %s requires a date-time range; call SetRange first", e.Op)
}

func (e *MissingRangeError) Is(target error) bool {
	return target == ErrMissingRange
}

// InvalidOperatorError reports an operator token outside = != > < >= <=.
type InvalidOperatorError struct {
	Token string
}

func (e *InvalidOperatorError) Error() string {
	return fmt.Sprintf("filter: unsupported operator %q", e.Token)
}

// InvalidFieldError reports a field predicate naming a column that no
// event in the working set carries.
type InvalidFieldError struct {
	Field string
}

func (e *InvalidFieldError) Error() string {
	return fmt.Sprintf("filter: no event has field %q", e.Field)
}

// ExprError reports a malformed "<field> <op> <value>" expression.
type ExprError struct {
	Expr   string
	Reason string
}

func (e *ExprError) Error() string {
	return fmt.Sprintf("filter: bad expression %q: %s", e.Expr, e.Reason)
}
