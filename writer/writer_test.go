package writer

import (
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/mevdschee/tqbulkwriter/store"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.BatchTimeWindow = 50 * time.Millisecond
	cfg.BatchRetries = 3
	cfg.ConnectRetryDelay = time.Millisecond
	cfg.ContentionDelay = time.Millisecond
	cfg.QueueCapacity = 64
	return cfg
}

func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestWriter_TimeTriggerFlushesLoneEntry(t *testing.T) {
	cfg := testConfig()
	cfg.BatchTimeWindow = 100 * time.Millisecond
	f := &fakeStore{}
	w := New(cfg, f)
	defer w.Stop()

	if err := w.Enqueue(Mergeable("INSERT INTO t", "", "(1)")); err != nil {
		t.Fatal(err)
	}
	if f.ExecCalls() != 0 {
		t.Error("entry flushed before the time window elapsed")
	}

	waitFor(t, time.Second, "time-triggered flush", func() bool { return f.ExecCalls() >= 1 })

	stmts := f.Statements()
	if len(stmts) != 1 || stmts[0] != "INSERT INTO t (1) " {
		t.Errorf("applied statements = %v, want single %q", stmts, "INSERT INTO t (1) ")
	}
}

func TestWriter_SizeTriggerFlushesBeforeWindow(t *testing.T) {
	cfg := testConfig()
	cfg.BatchTimeWindow = 10 * time.Second
	cfg.BatchSizeLimit = 5
	f := &fakeStore{}
	w := New(cfg, f)
	defer w.Stop()

	for _, v := range []string{"(1)", "(2)", "(3)", "(4)", "(5)"} {
		if err := w.Enqueue(Mergeable("INSERT INTO t", "", v)); err != nil {
			t.Fatal(err)
		}
	}

	waitFor(t, time.Second, "size-triggered flush", func() bool { return f.ExecCalls() >= 1 })

	stmts := f.Statements()
	if len(stmts) != 1 || stmts[0] != "INSERT INTO t (1),(2),(3),(4),(5) " {
		t.Errorf("applied statements = %v, want one merged statement", stmts)
	}
}

func TestWriter_OversizedValueForcesFlush(t *testing.T) {
	cfg := testConfig()
	cfg.BatchTimeWindow = 10 * time.Second
	cfg.MaxValueBytes = 10
	f := &fakeStore{}
	w := New(cfg, f)
	defer w.Stop()

	if err := w.Enqueue(Mergeable("INSERT INTO t", "", "(12345678901)")); err != nil {
		t.Fatal(err)
	}

	waitFor(t, time.Second, "forced flush", func() bool { return f.ExecCalls() >= 1 })
}

func TestWriter_ImmediateBypassesAccumulator(t *testing.T) {
	cfg := testConfig()
	cfg.BatchTimeWindow = 10 * time.Second
	f := &fakeStore{}
	w := New(cfg, f)

	if err := w.Enqueue(Mergeable("INSERT INTO t", "", "(1)")); err != nil {
		t.Fatal(err)
	}
	if err := w.Enqueue(Immediate("DELETE FROM t WHERE id = 9")); err != nil {
		t.Fatal(err)
	}

	waitFor(t, time.Second, "immediate execution", func() bool { return f.ExecCalls() >= 1 })

	stmts := f.Statements()
	if len(stmts) != 1 || stmts[0] != "DELETE FROM t WHERE id = 9" {
		t.Fatalf("applied statements = %v, want only the immediate query", stmts)
	}

	// The pending mergeable entry is still flushed on shutdown, without
	// the immediate query leaking into the render.
	w.Stop()
	stmts = f.Statements()
	if len(stmts) != 2 || stmts[1] != "INSERT INTO t (1) " {
		t.Errorf("applied statements = %v, want the batched insert last", stmts)
	}
	if strings.Contains(stmts[1], "DELETE") {
		t.Errorf("immediate query leaked into batch render: %q", stmts[1])
	}
}

func TestWriter_EndToEndMerge(t *testing.T) {
	cfg := testConfig()
	f := &fakeStore{}
	w := New(cfg, f)
	defer w.Stop()

	for _, v := range []string{"(1)", "(2)", "(3)"} {
		if err := w.Enqueue(Mergeable("INSERT INTO t", "", v)); err != nil {
			t.Fatal(err)
		}
	}

	waitFor(t, time.Second, "merged flush", func() bool { return f.ExecCalls() >= 1 })
	time.Sleep(150 * time.Millisecond)

	stmts := f.Statements()
	if len(stmts) != 1 {
		t.Fatalf("exec calls = %d, want one merged statement, got %v", len(stmts), stmts)
	}
	if stmts[0] != "INSERT INTO t (1),(2),(3) " {
		t.Errorf("statement = %q, want %q", stmts[0], "INSERT INTO t (1),(2),(3) ")
	}
}

func TestWriter_FinalFlushOnStop(t *testing.T) {
	cfg := testConfig()
	cfg.BatchTimeWindow = 10 * time.Second
	f := &fakeStore{}
	w := New(cfg, f)

	if err := w.Enqueue(Mergeable("INSERT INTO t", "", "(9)")); err != nil {
		t.Fatal(err)
	}
	// Give the loop time to pull the entry into the accumulator
	time.Sleep(100 * time.Millisecond)

	w.Stop()

	stmts := f.Statements()
	if len(stmts) != 1 || stmts[0] != "INSERT INTO t (9) " {
		t.Errorf("applied statements = %v, want the final flush", stmts)
	}
	if !f.Closed() {
		t.Error("store connection not closed on stop")
	}
}

func TestWriter_StopIdempotentAndEnqueueAfterStop(t *testing.T) {
	f := &fakeStore{}
	w := New(testConfig(), f)

	w.Stop()
	w.Stop()

	if err := w.Enqueue(Immediate("DELETE FROM t")); err != ErrStopped {
		t.Errorf("Enqueue after Stop = %v, want ErrStopped", err)
	}
}

func TestWriter_IsConnected(t *testing.T) {
	f := &fakeStore{}
	w := New(testConfig(), f)
	defer w.Stop()

	if !w.IsConnected() {
		t.Error("IsConnected() = false after successful connect")
	}
}

func TestWriter_DroppedBatchDoesNotPoisonQueue(t *testing.T) {
	cfg := testConfig()
	cfg.BatchRetries = 2
	f := &fakeStore{}
	f.SetFailAlways(errors.New("malformed statement"))
	w := New(cfg, f)
	defer w.Stop()

	if err := w.Enqueue(Mergeable("INSERT INTO t", "", "(1)")); err != nil {
		t.Fatal(err)
	}
	waitFor(t, time.Second, "exhausted retries", func() bool { return f.ExecCalls() >= 2 })

	// Store recovers; only new data flows, the failed batch stays dropped
	f.SetFailAlways(nil)
	if err := w.Enqueue(Mergeable("INSERT INTO t", "", "(2)")); err != nil {
		t.Fatal(err)
	}
	waitFor(t, time.Second, "fresh flush", func() bool { return len(f.Statements()) >= 1 })

	for _, stmt := range f.Statements() {
		if strings.Contains(stmt, "(1)") {
			t.Errorf("dropped batch was re-applied: %q", stmt)
		}
	}
}

func TestWriter_SQLiteEndToEnd(t *testing.T) {
	path := filepath.Join(t.TempDir(), "writer.db")

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec("CREATE TABLE test_writes (data TEXT)"); err != nil {
		t.Fatal(err)
	}
	db.Close()

	st := store.New(store.Config{Driver: "sqlite3", Host: path})
	w := New(testConfig(), st)

	for _, v := range []string{"('a')", "('b')", "('c')"} {
		if err := w.Enqueue(Mergeable("INSERT INTO test_writes (data) VALUES", "", v)); err != nil {
			t.Fatal(err)
		}
	}

	time.Sleep(300 * time.Millisecond)
	w.Stop()

	db, err = sql.Open("sqlite3", path)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM test_writes").Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 3 {
		t.Errorf("row count = %d, want 3", count)
	}
}
