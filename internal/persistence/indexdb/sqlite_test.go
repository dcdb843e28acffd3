package indexdb

import (
	"path/filepath"
	"testing"

	"gladekeep.gg/internal/sim/world"
)

func openTestIndex(t *testing.T) *SQLiteIndex {
	t.Helper()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func tickEntry(tick uint64, loads int) world.TickLogEntry {
	return world.TickLogEntry{
		Tick:            tick,
		ObserverChunk:   [2]int{1, -2},
		Loads:           loads,
		Resident:        25,
		LoadCapPerFrame: 4, UnloadCapPerFrame: 4,
		ActiveRadius: 2, Hysteresis: 1,
		StepMS: 0.1,
	}
}

func TestSQLiteIndex_tickRange(t *testing.T) {
	s := openTestIndex(t)

	for tick := uint64(1); tick <= 10; tick++ {
		if err := s.WriteTick(tickEntry(tick, int(tick%5))); err != nil {
			t.Fatalf("write tick %d: %v", tick, err)
		}
	}
	s.Flush()

	rows, err := s.TickRange(3, 7)
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	if len(rows) != 5 {
		t.Fatalf("rows = %d, want 5", len(rows))
	}
	for i, r := range rows {
		want := uint64(3 + i)
		if r.Tick != want {
			t.Fatalf("row %d: tick %d, want %d (out of order?)", i, r.Tick, want)
		}
		if r.Loads != int(want%5) || r.Resident != 25 || r.LoadCap != 4 {
			t.Fatalf("row %d fields: %+v", i, r)
		}
	}
}

func TestSQLiteIndex_tickUpsert(t *testing.T) {
	s := openTestIndex(t)

	if err := s.WriteTick(tickEntry(5, 1)); err != nil {
		t.Fatal(err)
	}
	if err := s.WriteTick(tickEntry(5, 3)); err != nil {
		t.Fatal(err)
	}
	s.Flush()

	rows, err := s.TickRange(5, 5)
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	if len(rows) != 1 || rows[0].Loads != 3 {
		t.Fatalf("duplicate tick not replaced: %+v", rows)
	}
}

func TestSQLiteIndex_failureCounts(t *testing.T) {
	s := openTestIndex(t)

	entries := []world.FailureEntry{
		{Tick: 1, Kind: "LOAD", CX: 2, CZ: 0, Cause: "disk full"},
		{Tick: 2, Kind: "LOAD", CX: 2, CZ: 0, Cause: "disk full"},
		{Tick: 3, Kind: "UNLOAD", CX: -1, CZ: 4, Attempts: 2, Cause: "handle busy"},
	}
	for _, e := range entries {
		if err := s.WriteFailure(e); err != nil {
			t.Fatalf("write failure: %v", err)
		}
	}
	s.Flush()

	for kind, want := range map[string]int{"LOAD": 2, "UNLOAD": 1, "": 3} {
		got, err := s.FailureCount(kind)
		if err != nil {
			t.Fatalf("count %q: %v", kind, err)
		}
		if got != want {
			t.Fatalf("count %q = %d, want %d", kind, got, want)
		}
	}
}

func TestSQLiteIndex_writesAfterCloseAreNoops(t *testing.T) {
	s := openTestIndex(t)
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	// Must not panic or block.
	if err := s.WriteTick(tickEntry(1, 1)); err != nil {
		t.Fatalf("write after close: %v", err)
	}
	if err := s.WriteFailure(world.FailureEntry{Tick: 1, Kind: "LOAD"}); err != nil {
		t.Fatalf("write after close: %v", err)
	}
	s.Flush()
	if err := s.Close(); err != nil {
		t.Fatalf("double close: %v", err)
	}
}

func TestSQLiteIndex_reopenKeepsRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")

	s, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.WriteTick(tickEntry(9, 2)); err != nil {
		t.Fatal(err)
	}
	s.Flush()
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	s2, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	rows, err := s2.TickRange(0, 100)
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	if len(rows) != 1 || rows[0].Tick != 9 {
		t.Fatalf("rows after reopen: %+v", rows)
	}
}
