package envutil

import (
	"testing"
	"time"
)

func TestStrDefaultsAndTrims(t *testing.T) {
	if got := Str("ENVUTIL_TEST_MISSING", "fallback"); got != "fallback" {
		t.Fatalf("expected fallback, got %q", got)
	}
	t.Setenv("ENVUTIL_TEST_STR", "  value  ")
	if got := Str("ENVUTIL_TEST_STR", "fallback"); got != "value" {
		t.Fatalf("expected trimmed value, got %q", got)
	}
	t.Setenv("ENVUTIL_TEST_STR", "   ")
	if got := Str("ENVUTIL_TEST_STR", "fallback"); got != "fallback" {
		t.Fatalf("whitespace-only should fall back, got %q", got)
	}
}

func TestIntRejectsGarbage(t *testing.T) {
	t.Setenv("ENVUTIL_TEST_INT", "37")
	if got := Int("ENVUTIL_TEST_INT", 5); got != 37 {
		t.Fatalf("expected 37, got %d", got)
	}
	t.Setenv("ENVUTIL_TEST_INT", "not-a-number")
	if got := Int("ENVUTIL_TEST_INT", 5); got != 5 {
		t.Fatalf("expected default on parse failure, got %d", got)
	}
}

func TestBoolVariants(t *testing.T) {
	for _, v := range []string{"1", "true", "YES", "on"} {
		t.Setenv("ENVUTIL_TEST_BOOL", v)
		if !Bool("ENVUTIL_TEST_BOOL", false) {
			t.Fatalf("%q should parse as true", v)
		}
	}
	for _, v := range []string{"0", "false", "No", "off"} {
		t.Setenv("ENVUTIL_TEST_BOOL", v)
		if Bool("ENVUTIL_TEST_BOOL", true) {
			t.Fatalf("%q should parse as false", v)
		}
	}
	t.Setenv("ENVUTIL_TEST_BOOL", "maybe")
	if !Bool("ENVUTIL_TEST_BOOL", true) {
		t.Fatalf("unparseable value should keep the default")
	}
}

func TestDurationAcceptsBareSeconds(t *testing.T) {
	t.Setenv("ENVUTIL_TEST_DUR", "250ms")
	if got := Duration("ENVUTIL_TEST_DUR", time.Second); got != 250*time.Millisecond {
		t.Fatalf("expected 250ms, got %v", got)
	}
	t.Setenv("ENVUTIL_TEST_DUR", "30")
	if got := Duration("ENVUTIL_TEST_DUR", time.Second); got != 30*time.Second {
		t.Fatalf("bare integer should mean seconds, got %v", got)
	}
	t.Setenv("ENVUTIL_TEST_DUR", "soon")
	if got := Duration("ENVUTIL_TEST_DUR", time.Second); got != time.Second {
		t.Fatalf("expected default on parse failure, got %v", got)
	}
}
