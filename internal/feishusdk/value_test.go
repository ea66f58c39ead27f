package feishusdk

import (
	"encoding/json"
	"testing"
)

func TestBitableValueToString(t *testing.T) {
	tests := []struct {
		name  string
		input any
		want  string
	}{
		{"text", " hello ", "hello"},
		{"number", 123.45, "123.45"},
		{"whole float", float64(1700000000000), "1700000000000"},
		{"bool", true, "true"},
		{"multi-select", []any{"A", "B"}, "A,B"},
		{"rich-text", []any{map[string]any{"type": "text", "text": "+2547"}, map[string]any{"type": "text", "text": "12345678"}}, "+254712345678"},
		{"person", map[string]any{"name": "Alice", "id": "u1"}, "Alice"},
		{"link", map[string]any{"text": "Doc", "link": "https://example.com"}, "Doc"},
		{"wrapper", map[string]any{"type": 1, "value": []any{map[string]any{"text": "wrapped"}}}, "wrapped"},
	}
	for _, tt := range tests {
		if got := BitableValueToString(tt.input); got != tt.want {
			t.Fatalf("%s: got %q want %q", tt.name, got, tt.want)
		}
	}
}

func TestBitableValueToInt64(t *testing.T) {
	tests := []struct {
		input any
		want  int64
		ok    bool
	}{
		{float64(1741600000000), 1741600000000, true},
		{json.Number("42"), 42, true},
		{"17", 17, true},
		{[]any{map[string]any{"text": "9"}}, 9, true},
		{"", 0, false},
		{nil, 0, false},
	}
	for _, tt := range tests {
		got, ok := BitableValueToInt64(tt.input)
		if got != tt.want || ok != tt.ok {
			t.Fatalf("BitableValueToInt64(%#v) = %d,%v want %d,%v", tt.input, got, ok, tt.want, tt.ok)
		}
	}
}

func TestNewConditionUnaryOperatorsCarryEmptyValue(t *testing.T) {
	for _, op := range []string{"isEmpty", "isNotEmpty"} {
		cond := NewCondition("forms_response_id", op)
		if cond == nil || len(cond.Value) != 1 || cond.Value[0] != "" {
			t.Fatalf("%s: expected Value [\"\"], got %#v", op, cond)
		}
	}
	if cond := NewCondition("status", "contains"); cond == nil || cond.Value != nil {
		t.Fatalf("expected nil Value for contains, got %#v", cond)
	}
	if NewCondition(" ", "is", "x") != nil {
		t.Fatalf("expected nil condition for blank field")
	}
}

func TestParseBitableURL(t *testing.T) {
	ref, err := ParseBitableURL("https://acme.feishu.cn/base/bascnAbc?table=tblReg&view=vewAll")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ref.AppToken != "bascnAbc" || ref.TableID != "tblReg" || ref.ViewID != "vewAll" {
		t.Fatalf("unexpected ref: %+v", ref)
	}

	bad := []string{
		"",
		"ftp://acme.feishu.cn/base/x?table=t",
		"https://example.com/base/x?table=t",
		"https://acme.feishu.cn/base/x",
		"https://acme.feishu.cn/wiki/abc?table=t",
	}
	for _, raw := range bad {
		if _, err := ParseBitableURL(raw); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}
