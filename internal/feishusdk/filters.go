package feishusdk

import (
	"encoding/json"
	"strings"

	bitablev1 "github.com/larksuite/oapi-sdk-go/v3/service/bitable/v1"
)

// FilterInfo aliases the Feishu SDK filter structure so callers don't have to import the SDK directly.
type (
	FilterInfo     = bitablev1.FilterInfo
	Condition      = bitablev1.Condition
	ChildrenFilter = bitablev1.ChildrenFilter
)

func newStringPtr(val string) *string {
	v := val
	return &v
}

// NewFilterInfo constructs a filter with the provided conjunction (defaults to "and").
func NewFilterInfo(conjunction string, conds ...*Condition) *FilterInfo {
	if strings.TrimSpace(conjunction) == "" {
		conjunction = "and"
	}
	filter := &FilterInfo{Conjunction: newStringPtr(strings.ToLower(conjunction))}
	for _, cond := range conds {
		if cond != nil {
			filter.Conditions = append(filter.Conditions, cond)
		}
	}
	return filter
}

// NewCondition creates a Condition node with the provided operator and values.
func NewCondition(field, operator string, values ...string) *Condition {
	fieldName := strings.TrimSpace(field)
	if fieldName == "" {
		return nil
	}
	op := strings.TrimSpace(operator)
	if op == "" {
		op = "is"
	}
	cond := &Condition{FieldName: newStringPtr(fieldName), Operator: newStringPtr(op)}
	if len(values) > 0 {
		cond.Value = append([]string(nil), values...)
		return cond
	}
	// Unary operators still need a Value field or the API answers
	// "Missing required parameter: Value".
	switch strings.ToLower(op) {
	case "isnotempty", "isempty":
		cond.Value = []string{""}
	}
	return cond
}

// NewChildrenFilter creates a grouping node with its own conjunction.
func NewChildrenFilter(conjunction string, conds ...*Condition) *ChildrenFilter {
	if strings.TrimSpace(conjunction) == "" {
		conjunction = "and"
	}
	child := &ChildrenFilter{Conjunction: newStringPtr(strings.ToLower(conjunction))}
	for _, cond := range conds {
		if cond != nil {
			child.Conditions = append(child.Conditions, cond)
		}
	}
	return child
}

// FilterJSON renders a filter for logs.
func FilterJSON(filter *FilterInfo) string {
	if filter == nil {
		return ""
	}
	raw, err := json.Marshal(filter)
	if err != nil {
		return ""
	}
	return string(raw)
}
