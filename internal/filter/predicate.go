package filter

import (
	"strings"

	"spcal/internal/model"
)

// FieldPredicate compares one column of an event against a fixed operand.
type FieldPredicate struct {
	Field   string
	Op      Operator
	Operand any
}

// NewFieldPredicate validates the field name and operator token up front,
// so a bad operator never reaches a session.
func NewFieldPredicate(field, opToken string, operand any) (FieldPredicate, error) {
	field = strings.TrimSpace(field)
	if field == "" {
		return FieldPredicate{}, &ExprError{Expr: field + " " + opToken, Reason: "empty field name"}
	}
	op, err := ParseOperator(opToken)
	if err != nil {
		return FieldPredicate{}, err
	}
	return FieldPredicate{Field: field, Op: op, Operand: operand}, nil
}

// ParseFieldPredicate parses "<field> <op> <value>", for example
// "Priority > 2" or "Category = Team Meeting". The value is everything
// after the operator, trimmed.
func ParseFieldPredicate(expr string) (FieldPredicate, error) {
	rest := strings.TrimSpace(expr)

	field, rest, ok := strings.Cut(rest, " ")
	if !ok {
		return FieldPredicate{}, &ExprError{Expr: expr, Reason: "want <field> <op> <value>"}
	}
	opToken, value, ok := strings.Cut(strings.TrimLeft(rest, " "), " ")
	if !ok || strings.TrimSpace(value) == "" {
		return FieldPredicate{}, &ExprError{Expr: expr, Reason: "missing comparison value"}
	}
	return NewFieldPredicate(field, opToken, strings.TrimSpace(value))
}

// Match reports whether ev satisfies the predicate. Events without the
// field never match.
func (p FieldPredicate) Match(ev model.CalendarEvent) bool {
	v, ok := ev.Field(p.Field)
	if !ok {
		return false
	}
	return p.Op.compare(v, p.Operand)
}

func (p FieldPredicate) String() string {
	return p.Field + " " + p.Op.String() + " " + canonical(p.Operand)
}
