package frappe

import (
	"encoding/json"
	"slices"
)

// Operators accepted in a filter.
var Operators = []string{"=", "<", ">", "!=", "<=", ">=", "like", "not like", "in", "not in", "between"}

// ValidOperator reports whether op is one of Operators.
func ValidOperator(op string) bool {
	return slices.Contains(Operators, op)
}

// Filter is one condition of a resource query. It is sent as the 4-tuple
// [doctype, fieldname, operator, value].
type Filter struct {
	DocType  string
	Field    string
	Operator string
	Value    any
}

func (f Filter) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{f.DocType, f.Field, f.Operator, f.Value})
}
