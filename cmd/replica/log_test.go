package main

import (
	"testing"
	"time"
)

func TestParseSinceRFC3339(t *testing.T) {
	got, err := parseSince("2026-01-15T00:00:00Z")
	if err != nil {
		t.Fatalf("parseSince: %v", err)
	}
	want := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestParseSinceNaturalLanguage(t *testing.T) {
	got, err := parseSince("2 hours ago")
	if err != nil {
		t.Fatalf("parseSince: %v", err)
	}
	if !got.Before(time.Now()) {
		t.Fatalf("expected a time in the past, got %v", got)
	}
}

func TestParseSinceRejectsNonsense(t *testing.T) {
	if _, err := parseSince("zzyzxqqqq12345nonsense"); err == nil {
		t.Fatal("expected an error for an unparseable --since value")
	}
}
