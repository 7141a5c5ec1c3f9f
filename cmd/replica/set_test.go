package main

import (
	"testing"

	"github.com/untoldecay/beadsreplica/internal/fieldvalue"
)

func TestParseFieldValueInference(t *testing.T) {
	cases := []struct {
		raw  string
		kind fieldvalue.Kind
	}{
		{"true", fieldvalue.KindBoolean},
		{"false", fieldvalue.KindBoolean},
		{"42", fieldvalue.KindInteger},
		{"-7", fieldvalue.KindInteger},
		{"3.14", fieldvalue.KindFloat},
		{"hello", fieldvalue.KindText},
		{"v1.0.0", fieldvalue.KindText},
	}
	for _, c := range cases {
		v, err := parseFieldValue(c.raw, "")
		if err != nil {
			t.Fatalf("parseFieldValue(%q): %v", c.raw, err)
		}
		if v.Kind != c.kind {
			t.Fatalf("parseFieldValue(%q): expected kind %v, got %v", c.raw, c.kind, v.Kind)
		}
	}
}

func TestParseFieldValueForcedType(t *testing.T) {
	v, err := parseFieldValue("42", "text")
	if err != nil {
		t.Fatalf("parseFieldValue: %v", err)
	}
	if v.Kind != fieldvalue.KindText {
		t.Fatalf("expected forced text type, got %v", v.Kind)
	}
	text, ok := v.AsText()
	if !ok || text != "42" {
		t.Fatalf("expected text \"42\", got %q (ok=%v)", text, ok)
	}
}

func TestParseFieldValueForcedTypeRejectsBadInput(t *testing.T) {
	if _, err := parseFieldValue("not-a-number", "integer"); err == nil {
		t.Fatal("expected an error forcing a non-numeric string to integer")
	}
}

func TestParseFieldValueUnknownType(t *testing.T) {
	if _, err := parseFieldValue("x", "currency"); err == nil {
		t.Fatal("expected an error for an unrecognized --type value")
	}
}
