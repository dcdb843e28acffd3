// Package indexdb maintains a queryable read-model of streaming telemetry.
// It is never authoritative: the world loop stays correct with the index
// disabled, and chunk contents are never stored here.
package indexdb

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	_ "modernc.org/sqlite"

	"gladekeep.gg/internal/sim/world"
)

type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool
}

type reqKind int

const (
	reqTick reqKind = iota + 1
	reqFailure
	reqFlush
)

type req struct {
	kind reqKind

	tick    world.TickLogEntry
	failure world.FailureEntry
	flush   chan struct{}
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		// Buffer sized for bursty teleports (large unload trains) without
		// stalling the world loop.
		ch: make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	// WAL is much faster for append-style workloads.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS ticks (
			tick INTEGER PRIMARY KEY,
			observer_cx INTEGER NOT NULL,
			observer_cz INTEGER NOT NULL,
			loads INTEGER NOT NULL,
			unloads INTEGER NOT NULL,
			cancels INTEGER NOT NULL,
			load_failures INTEGER NOT NULL,
			unload_failures INTEGER NOT NULL,
			deferred_loads INTEGER NOT NULL,
			deferred_unloads INTEGER NOT NULL,
			resident INTEGER NOT NULL,
			pending INTEGER NOT NULL,
			pending_unload INTEGER NOT NULL,
			active_radius INTEGER NOT NULL,
			hysteresis INTEGER NOT NULL,
			load_cap INTEGER NOT NULL,
			unload_cap INTEGER NOT NULL,
			step_ms REAL NOT NULL,
			raw_json TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS failures (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			tick INTEGER NOT NULL,
			kind TEXT NOT NULL,
			cx INTEGER NOT NULL,
			cz INTEGER NOT NULL,
			attempts INTEGER NOT NULL,
			cause TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_failures_coord ON failures(cx, cz, tick);`,
		`CREATE INDEX IF NOT EXISTS idx_failures_kind_tick ON failures(kind, tick);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	if _, err := db.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// WriteTick enqueues a tick row. Non-blocking: rows are dropped if the
// indexer falls behind, the JSONL event log remains the source of truth.
func (s *SQLiteIndex) WriteTick(entry world.TickLogEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqTick, tick: entry}:
	default:
	}
	return nil
}

func (s *SQLiteIndex) WriteFailure(entry world.FailureEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqFailure, failure: entry}:
	default:
	}
	return nil
}

func (s *SQLiteIndex) loop() {
	for r := range s.ch {
		switch r.kind {
		case reqTick:
			s.insertTick(r.tick)
		case reqFailure:
			s.insertFailure(r.failure)
		case reqFlush:
			close(r.flush)
		}
	}
}

func (s *SQLiteIndex) insertTick(e world.TickLogEntry) {
	raw, err := json.Marshal(e)
	if err != nil {
		return
	}
	_, _ = s.db.Exec(`INSERT OR REPLACE INTO ticks(
		tick, observer_cx, observer_cz,
		loads, unloads, cancels, load_failures, unload_failures,
		deferred_loads, deferred_unloads,
		resident, pending, pending_unload,
		active_radius, hysteresis, load_cap, unload_cap,
		step_ms, raw_json
	) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		e.Tick, e.ObserverChunk[0], e.ObserverChunk[1],
		e.Loads, e.Unloads, e.Cancels, e.LoadFailures, e.UnloadFailures,
		e.DeferredLoads, e.DeferredUnloads,
		e.Resident, e.Pending, e.PendingUnload,
		e.ActiveRadius, e.Hysteresis, e.LoadCapPerFrame, e.UnloadCapPerFrame,
		e.StepMS, string(raw))
}

func (s *SQLiteIndex) insertFailure(e world.FailureEntry) {
	_, _ = s.db.Exec(`INSERT INTO failures(tick, kind, cx, cz, attempts, cause)
		VALUES (?,?,?,?,?,?)`,
		e.Tick, e.Kind, e.CX, e.CZ, e.Attempts, e.Cause)
}

// Flush blocks until every row enqueued before the call has been written.
// Test/admin helper.
func (s *SQLiteIndex) Flush() {
	if s == nil || s.closed.Load() {
		return
	}
	// Channel ordering guarantees every earlier enqueue is written once the
	// sentinel comes back.
	done := make(chan struct{})
	s.ch <- req{kind: reqFlush, flush: done}
	<-done
}

// TickRow is a summarized tick as read back from the index.
type TickRow struct {
	Tick         uint64
	Loads        int
	Unloads      int
	LoadCap      int
	UnloadCap    int
	Resident     int
	LoadFailures int
}

// TickRange returns rows with fromTick <= tick <= toTick ordered by tick.
func (s *SQLiteIndex) TickRange(fromTick, toTick uint64) ([]TickRow, error) {
	rows, err := s.db.Query(`SELECT tick, loads, unloads, load_cap, unload_cap, resident, load_failures
		FROM ticks WHERE tick >= ? AND tick <= ? ORDER BY tick`, fromTick, toTick)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TickRow
	for rows.Next() {
		var r TickRow
		if err := rows.Scan(&r.Tick, &r.Loads, &r.Unloads, &r.LoadCap, &r.UnloadCap, &r.Resident, &r.LoadFailures); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// FailureCount returns the number of recorded failures of one kind
// ("LOAD" or "UNLOAD"), or of all kinds when kind is empty.
func (s *SQLiteIndex) FailureCount(kind string) (int, error) {
	var n int
	var err error
	if kind == "" {
		err = s.db.QueryRow(`SELECT COUNT(*) FROM failures`).Scan(&n)
	} else {
		err = s.db.QueryRow(`SELECT COUNT(*) FROM failures WHERE kind = ?`, kind).Scan(&n)
	}
	return n, err
}
