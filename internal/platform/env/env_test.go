package env

import (
	"reflect"
	"testing"
	"time"
)

func TestString(t *testing.T) {
	if got := String("GLUE_ENV_STRING_UNSET", "fallback"); got != "fallback" {
		t.Fatalf("String()=%q, want fallback", got)
	}
	t.Setenv("GLUE_ENV_STRING", "value")
	if got := String("GLUE_ENV_STRING", "fallback"); got != "value" {
		t.Fatalf("String()=%q, want value", got)
	}
	t.Setenv("GLUE_ENV_STRING_EMPTY", "")
	if got := String("GLUE_ENV_STRING_EMPTY", "fallback"); got != "" {
		t.Fatalf("String()=%q, want empty override", got)
	}
}

func TestStrings(t *testing.T) {
	def := []string{"a"}
	if got := Strings("GLUE_ENV_STRINGS_UNSET", def); !reflect.DeepEqual(got, def) {
		t.Fatalf("Strings()=%v, want %v", got, def)
	}
	t.Setenv("GLUE_ENV_STRINGS", " year, ,month,day ")
	got := Strings("GLUE_ENV_STRINGS", def)
	want := []string{"year", "month", "day"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Strings()=%v, want %v", got, want)
	}
}

func TestDuration(t *testing.T) {
	got, err := Duration("GLUE_ENV_DURATION_UNSET", 5*time.Second)
	if err != nil {
		t.Fatalf("Duration() err=%v", err)
	}
	if got != 5*time.Second {
		t.Fatalf("Duration()=%v, want 5s", got)
	}

	t.Setenv("GLUE_ENV_DURATION", "250ms")
	got, err = Duration("GLUE_ENV_DURATION", 5*time.Second)
	if err != nil {
		t.Fatalf("Duration() err=%v", err)
	}
	if got != 250*time.Millisecond {
		t.Fatalf("Duration()=%v, want 250ms", got)
	}

	t.Setenv("GLUE_ENV_DURATION_BAD", "soon")
	if _, err := Duration("GLUE_ENV_DURATION_BAD", time.Second); err == nil {
		t.Fatalf("Duration() expected error")
	}
}

func TestBool(t *testing.T) {
	got, err := Bool("GLUE_ENV_BOOL_UNSET", true)
	if err != nil || !got {
		t.Fatalf("Bool()=%v err=%v, want true", got, err)
	}
	t.Setenv("GLUE_ENV_BOOL", "false")
	got, err = Bool("GLUE_ENV_BOOL", true)
	if err != nil || got {
		t.Fatalf("Bool()=%v err=%v, want false", got, err)
	}
	t.Setenv("GLUE_ENV_BOOL_BAD", "nope")
	if _, err := Bool("GLUE_ENV_BOOL_BAD", false); err == nil {
		t.Fatalf("Bool() expected error")
	}
}

func TestInt(t *testing.T) {
	got, err := Int("GLUE_ENV_INT_UNSET", 42)
	if err != nil || got != 42 {
		t.Fatalf("Int()=%v err=%v, want 42", got, err)
	}
	t.Setenv("GLUE_ENV_INT", " 7 ")
	got, err = Int("GLUE_ENV_INT", 42)
	if err != nil || got != 7 {
		t.Fatalf("Int()=%v err=%v, want 7", got, err)
	}
	t.Setenv("GLUE_ENV_INT_BAD", "seven")
	if _, err := Int("GLUE_ENV_INT_BAD", 42); err == nil {
		t.Fatalf("Int() expected error")
	}
}
