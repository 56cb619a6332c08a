package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/go-sql-driver/mysql"
	log "github.com/sirupsen/logrus"
)

// Config holds the connection settings for the backing store
type Config struct {
	Driver     string // "mysql", "postgres" or "sqlite3"
	Host       string
	Name       string
	User       string
	Credential string
}

// Conn wraps a single live connection to the relational store.
// Connected is safe to call from any goroutine; everything else is
// expected to be driven by a single owner.
type Conn struct {
	cfg       Config
	db        *sql.DB
	connected atomic.Bool
}

// New creates an unconnected Conn for the given store
func New(cfg Config) *Conn {
	return &Conn{cfg: cfg}
}

func (c *Conn) dsn() (string, error) {
	switch c.cfg.Driver {
	case "mysql":
		mc := mysql.NewConfig()
		mc.User = c.cfg.User
		mc.Passwd = c.cfg.Credential
		mc.Net = "tcp"
		mc.Addr = c.cfg.Host
		mc.DBName = c.cfg.Name
		// Batches are rendered as multi-statement strings
		mc.MultiStatements = true
		mc.Timeout = 30 * time.Second
		mc.ReadTimeout = 350 * time.Second
		return mc.FormatDSN(), nil
	case "postgres":
		return fmt.Sprintf("postgres://%s:%s@%s/%s?sslmode=disable",
			c.cfg.User, c.cfg.Credential, c.cfg.Host, c.cfg.Name), nil
	case "sqlite3":
		return c.cfg.Host, nil
	default:
		return "", fmt.Errorf("unsupported store driver %q", c.cfg.Driver)
	}
}

// Connect establishes the store connection and verifies it with a ping.
// A single attempt; retry policy belongs to the caller.
func (c *Conn) Connect(ctx context.Context) error {
	c.connected.Store(false)

	dsn, err := c.dsn()
	if err != nil {
		return err
	}

	db, err := sql.Open(c.cfg.Driver, dsn)
	if err != nil {
		return err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return err
	}

	c.db = db
	c.connected.Store(true)
	log.WithFields(log.Fields{
		"driver": c.cfg.Driver,
		"host":   c.cfg.Host,
	}).Info("connected to store")

	return nil
}

// Reconnect closes the current connection and attempts a fresh one
func (c *Conn) Reconnect(ctx context.Context) error {
	c.connected.Store(false)
	if c.db != nil {
		c.db.Close()
		c.db = nil
	}
	return c.Connect(ctx)
}

// Exec runs a write statement on the store
func (c *Conn) Exec(ctx context.Context, stmt string) error {
	if c.db == nil {
		return ErrNotConnected
	}
	_, err := c.db.ExecContext(ctx, stmt)
	return err
}

// Connected reports whether the store connection is currently usable
func (c *Conn) Connected() bool {
	return c.connected.Load()
}

// Close tears down the store connection
func (c *Conn) Close() error {
	c.connected.Store(false)
	if c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db = nil
	return err
}
