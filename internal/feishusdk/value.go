package feishusdk

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// BitableValueToString normalizes a bitable cell value (text, number, rich
// text segments, person or link objects) into a plain string.
func BitableValueToString(value any) string {
	return strings.TrimSpace(normalizeBitableValue(value))
}

// BitableFieldString reads a field value from a bitable row fields map as string.
func BitableFieldString(fields map[string]any, name string) string {
	if fields == nil || strings.TrimSpace(name) == "" {
		return ""
	}
	val, ok := fields[name]
	if !ok {
		return ""
	}
	return BitableValueToString(val)
}

// BitableValueToInt64 converts a cell value into int64 with best-effort
// parsing. Datetime cells arrive as millisecond numbers.
func BitableValueToInt64(value any) (int64, bool) {
	switch v := value.(type) {
	case nil:
		return 0, false
	case int64:
		return v, true
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case float64:
		return int64(v), true
	case float32:
		return int64(v), true
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n, true
		}
		if f, err := v.Float64(); err == nil {
			return int64(f), true
		}
		return 0, false
	}
	trimmed := BitableValueToString(value)
	if trimmed == "" {
		return 0, false
	}
	if n, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		return n, true
	}
	if f, err := strconv.ParseFloat(trimmed, 64); err == nil {
		return int64(f), true
	}
	return 0, false
}

func normalizeBitableValue(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case []byte:
		return strings.TrimSpace(string(v))
	case json.Number:
		return strings.TrimSpace(v.String())
	case float64:
		return formatFloat(v)
	case float32:
		return formatFloat(float64(v))
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case bool:
		return strconv.FormatBool(v)
	case []any:
		return normalizeBitableArray(v)
	case map[string]any:
		return normalizeBitableObject(v)
	case fmt.Stringer:
		return strings.TrimSpace(v.String())
	default:
		return ""
	}
}

func normalizeBitableArray(items []any) string {
	if len(items) == 0 {
		return ""
	}
	sep := ","
	if isRichTextArray(items) {
		sep = ""
	}
	parts := make([]string, 0, len(items))
	for _, item := range items {
		if part := normalizeBitableValue(item); part != "" {
			parts = append(parts, part)
		}
	}
	return strings.Join(parts, sep)
}

func isRichTextArray(items []any) bool {
	for _, item := range items {
		if m, ok := item.(map[string]any); ok {
			if _, hasText := m["text"]; hasText {
				return true
			}
		}
	}
	return false
}

func normalizeBitableObject(obj map[string]any) string {
	for _, key := range []string{"value", "values", "elements"} {
		if nested, ok := obj[key]; ok {
			if text := normalizeBitableValue(nested); text != "" {
				return text
			}
		}
	}
	for _, key := range []string{"text", "link", "name", "en_name", "email", "id"} {
		if raw, ok := obj[key].(string); ok {
			if trimmed := strings.TrimSpace(raw); trimmed != "" {
				return trimmed
			}
		}
	}
	if b, err := json.Marshal(obj); err == nil {
		return strings.TrimSpace(string(b))
	}
	return ""
}

func formatFloat(v float64) string {
	if math.Mod(v, 1) == 0 {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
