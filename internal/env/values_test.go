package env

import (
	"testing"
	"time"
)

func TestStringFallsBackWhenBlank(t *testing.T) {
	t.Setenv("REGSYNC_TEST_STRING", "   ")
	if got := String("REGSYNC_TEST_STRING", "fallback"); got != "fallback" {
		t.Fatalf("String() = %q, want fallback", got)
	}
	t.Setenv("REGSYNC_TEST_STRING", " value ")
	if got := String("REGSYNC_TEST_STRING", "fallback"); got != "value" {
		t.Fatalf("String() = %q, want value", got)
	}
}

func TestDurationRejectsInvalidAndNonPositive(t *testing.T) {
	cases := []struct {
		raw  string
		want time.Duration
	}{
		{raw: "", want: time.Second},
		{raw: "abc", want: time.Second},
		{raw: "-5s", want: time.Second},
		{raw: "250ms", want: 250 * time.Millisecond},
	}
	for _, tc := range cases {
		t.Setenv("REGSYNC_TEST_DURATION", tc.raw)
		if got := Duration("REGSYNC_TEST_DURATION", time.Second); got != tc.want {
			t.Fatalf("Duration(%q) = %v, want %v", tc.raw, got, tc.want)
		}
	}
}

func TestIntAndBool(t *testing.T) {
	t.Setenv("REGSYNC_TEST_INT", "42")
	if got := Int("REGSYNC_TEST_INT", 1); got != 42 {
		t.Fatalf("Int() = %d, want 42", got)
	}
	t.Setenv("REGSYNC_TEST_INT", "x")
	if got := Int("REGSYNC_TEST_INT", 1); got != 1 {
		t.Fatalf("Int() = %d, want fallback 1", got)
	}
	t.Setenv("REGSYNC_TEST_BOOL", "Yes")
	if !Bool("REGSYNC_TEST_BOOL", false) {
		t.Fatalf("Bool(Yes) should be true")
	}
	t.Setenv("REGSYNC_TEST_BOOL", "maybe")
	if Bool("REGSYNC_TEST_BOOL", false) {
		t.Fatalf("Bool(maybe) should fall back to false")
	}
}
