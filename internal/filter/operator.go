package filter

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Operator is a field comparison supported by Where.
type Operator int

const (
	OpEqual Operator = iota + 1
	OpNotEqual
	OpGreater
	OpLess
	OpGreaterEqual
	OpLessEqual
)

var operatorTokens = map[string]Operator{
	"=":  OpEqual,
	"!=": OpNotEqual,
	">":  OpGreater,
	"<":  OpLess,
	">=": OpGreaterEqual,
	"<=": OpLessEqual,
}

// ParseOperator maps a token such as ">=" to its Operator.
func ParseOperator(token string) (Operator, error) {
	op, ok := operatorTokens[strings.TrimSpace(token)]
	if !ok {
		return 0, &InvalidOperatorError{Token: token}
	}
	return op, nil
}

// Valid reports whether o is one of the declared operators.
func (o Operator) Valid() bool {
	return o >= OpEqual && o <= OpLessEqual
}

func (o Operator) String() string {
	for tok, op := range operatorTokens {
		if op == o {
			return tok
		}
	}
	return fmt.Sprintf("Operator(%d)", int(o))
}

// compare applies o to a field value and the comparison operand.
//
// = and != compare numerically when both sides are finite numbers and by
// canonical string form otherwise. Ordering operators coerce both sides to
// numbers; a non-numeric side is NaN and never satisfies the comparison.
func (o Operator) compare(field, operand any) bool {
	switch o {
	case OpEqual:
		return looseEqual(field, operand)
	case OpNotEqual:
		return !looseEqual(field, operand)
	}

	a, b := toNumber(field), toNumber(operand)
	if math.IsNaN(a) || math.IsNaN(b) {
		return false
	}
	switch o {
	case OpGreater:
		return a > b
	case OpLess:
		return a < b
	case OpGreaterEqual:
		return a >= b
	case OpLessEqual:
		return a <= b
	}
	return false
}

func looseEqual(a, b any) bool {
	na, nb := toNumber(a), toNumber(b)
	if isFinite(na) && isFinite(nb) {
		return na == nb
	}
	return canonical(a) == canonical(b)
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// toNumber coerces a column value to float64. Times become Unix
// milliseconds, booleans 1 or 0. Empty or non-numeric strings are NaN.
func toNumber(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case float32:
		return float64(t)
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case int32:
		return float64(t)
	case uint:
		return float64(t)
	case uint64:
		return float64(t)
	case bool:
		if t {
			return 1
		}
		return 0
	case time.Time:
		if t.IsZero() {
			return math.NaN()
		}
		return float64(t.UnixMilli())
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return math.NaN()
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return math.NaN()
		}
		return f
	}
	return math.NaN()
}

func canonical(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case time.Time:
		return t.Format(time.RFC3339)
	}
	return fmt.Sprint(v)
}
