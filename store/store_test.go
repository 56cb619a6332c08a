package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func TestConn_Lifecycle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.db")
	c := New(Config{Driver: "sqlite3", Host: path})
	ctx := context.Background()

	if c.Connected() {
		t.Error("Connected() = true before Connect")
	}
	if err := c.Exec(ctx, "SELECT 1"); err != ErrNotConnected {
		t.Errorf("Exec before Connect = %v, want ErrNotConnected", err)
	}

	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if !c.Connected() {
		t.Error("Connected() = false after Connect")
	}

	err := c.Exec(ctx, "CREATE TABLE t (n INTEGER); INSERT INTO t VALUES (1); INSERT INTO t VALUES (2)")
	if err != nil {
		t.Fatalf("Exec multi-statement: %v", err)
	}

	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if c.Connected() {
		t.Error("Connected() = true after Close")
	}

	// Verify the writes landed
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM t").Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Errorf("row count = %d, want 2", count)
	}
}

func TestConn_Reconnect(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.db")
	c := New(Config{Driver: "sqlite3", Host: path})
	ctx := context.Background()

	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := c.Reconnect(ctx); err != nil {
		t.Fatalf("Reconnect: %v", err)
	}
	if !c.Connected() {
		t.Error("Connected() = false after Reconnect")
	}
	if err := c.Exec(ctx, "CREATE TABLE t (n INTEGER)"); err != nil {
		t.Errorf("Exec after Reconnect: %v", err)
	}
	c.Close()
}

func TestConn_UnsupportedDriver(t *testing.T) {
	c := New(Config{Driver: "oracle"})
	if err := c.Connect(context.Background()); err == nil {
		t.Error("Connect with unsupported driver must fail")
	}
	if c.Connected() {
		t.Error("Connected() = true after failed Connect")
	}
}

func TestConn_CloseIdempotent(t *testing.T) {
	c := New(Config{Driver: "sqlite3", Host: ":memory:"})
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}
