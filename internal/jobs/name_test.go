package jobs

import (
	"testing"
	"time"
)

func TestName(t *testing.T) {
	at := time.Date(2026, 3, 14, 9, 15, 0, 0, time.UTC)
	got := Name("cog-convert", at, "3F2A9C1E-77b0-4c1e-9d1a-0c6f0e5f8a21", 3)
	if got != "cog-convert-20260314-091500-3f2a9c1e-0003" {
		t.Errorf("Name() = %q", got)
	}

	// Non-UTC times are normalized.
	local := at.In(time.FixedZone("X", 2*3600))
	if Name("cog-convert", local, "3f2a9c1e", 3) != got {
		t.Error("Name() depends on the time zone")
	}

	if got := Name("cog-convert", at, "", 3); got != "cog-convert-20260314-091500-0003" {
		t.Errorf("Name() without run = %q", got)
	}
}

func TestName_SameSecondRunsDiffer(t *testing.T) {
	at := time.Date(2026, 3, 14, 9, 15, 0, 0, time.UTC)
	a := Name("cog-convert", at, NewRunID(), 0)
	b := Name("cog-convert", at, NewRunID(), 0)
	if a == b {
		t.Errorf("two runs in the same second share job name %q", a)
	}
}

func TestNameOrdering(t *testing.T) {
	at := time.Date(2026, 3, 14, 9, 15, 0, 0, time.UTC)
	if !(Name("p", at, "run1", 9) < Name("p", at, "run1", 10)) {
		t.Error("sequence numbers do not sort")
	}
	if !(Name("p", at, "ffffffff", 9999) < Name("p", at.Add(time.Second), "00000000", 0)) {
		t.Error("timestamps do not sort")
	}
}

func TestRunFragment(t *testing.T) {
	for in, want := range map[string]string{
		"run-1":                                "run1",
		"3f2a9c1e-77b0-4c1e-9d1a-0c6f0e5f8a21": "3f2a9c1e",
		"AB_cd":                                "abcd",
		"":                                     "",
		"é-x":                                  "x",
	} {
		if got := RunFragment(in); got != want {
			t.Errorf("RunFragment(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNewRunID(t *testing.T) {
	a, b := NewRunID(), NewRunID()
	if a == "" || a == b {
		t.Errorf("NewRunID() = %q, %q", a, b)
	}
}
