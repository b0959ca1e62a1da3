package db

import (
	"testing"

	"github.com/google/uuid"
)

func TestFixtureIDStable(t *testing.T) {
	first := FixtureID("peter")
	if first != FixtureID(" peter ") {
		t.Fatal("expected stable id for the same fixture key")
	}
	if _, err := uuid.Parse(first); err != nil {
		t.Fatalf("expected uuid, got %q", first)
	}
	if first == FixtureID("bea") {
		t.Fatal("expected distinct ids for distinct keys")
	}
}

func TestFixtureIDPassesUUIDsThrough(t *testing.T) {
	raw := "6f1c5a52-1b0e-4a57-9a0c-3d1f4f2b7e10"
	if FixtureID(raw) != raw {
		t.Fatalf("expected uuid unchanged, got %q", FixtureID(raw))
	}
	if FixtureID("") != "" || nullable("") != nil {
		t.Fatal("expected empty input to stay empty")
	}
}
