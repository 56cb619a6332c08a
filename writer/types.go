package writer

import (
	"context"
	"time"
)

// Request represents a single pending data mutation. Exactly one of the
// two shapes is set: a mergeable request carries Prefix/Suffix/Value and
// participates in batching; an immediate request carries Query and is
// executed on its own as soon as it is dequeued.
type Request struct {
	Prefix string
	Suffix string
	Value  string
	Query  string
}

// Mergeable builds a batchable request. Requests with equal prefix and
// suffix are consolidated into one statement.
func Mergeable(prefix, suffix, value string) Request {
	return Request{Prefix: prefix, Suffix: suffix, Value: value}
}

// Immediate builds a request that bypasses batching
func Immediate(query string) Request {
	return Request{Query: query}
}

// IsImmediate reports whether the request bypasses batching
func (r Request) IsImmediate() bool {
	return r.Query != ""
}

// Store is the connection collaborator the writer drives. *store.Conn
// implements it; tests substitute fakes.
type Store interface {
	Connect(ctx context.Context) error
	Reconnect(ctx context.Context) error
	Exec(ctx context.Context, stmt string) error
	Connected() bool
	Close() error
}

// Config holds batching and retry settings for the writer
type Config struct {
	BatchTimeWindow   time.Duration // Max time before an accumulated batch is flushed
	BatchSizeLimit    int           // Merged-request count that triggers a flush
	BatchRetries      int           // Attempt budget for a batch flush
	ImmediateRetries  int           // Attempt budget for immediate requests
	ConnectRetryDelay time.Duration // Delay between reconnection attempts
	ContentionDelay   time.Duration // Backoff after a deadlock or lock wait timeout
	MaxValueBytes     int           // Single merged value size that forces a flush
	QueueCapacity     int           // Inbound queue buffer size
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		BatchTimeWindow:   75 * time.Millisecond,
		BatchSizeLimit:    3000,
		BatchRetries:      10,
		ImmediateRetries:  3,
		ConnectRetryDelay: 4 * time.Second,
		ContentionDelay:   2 * time.Second,
		MaxValueBytes:     200000,
		QueueCapacity:     10000,
	}
}
