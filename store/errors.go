package store

import (
	"database/sql/driver"
	"errors"
	"io"
	"net"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
)

// ErrNotConnected is returned by Exec when no connection has been established
var ErrNotConnected = errors.New("store: not connected")

// Kind classifies an execution failure to decide the recovery strategy
type Kind int

const (
	// KindNone means no failure
	KindNone Kind = iota
	// KindConnectivity means the connection is unusable and must be reestablished
	KindConnectivity
	// KindContention means a transient conflict resolvable by retrying
	KindContention
	// KindStatement means the statement itself was rejected
	KindStatement
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindConnectivity:
		return "connectivity"
	case KindContention:
		return "contention"
	default:
		return "statement"
	}
}

// MySQL server error numbers for lock conflicts
const (
	mysqlErrLockDeadlock    = 1213
	mysqlErrLockWaitTimeout = 1205
)

// Classify maps an execution error to its failure kind. Driver-typed
// errors are inspected first; message matching is kept only as a
// last-resort adapter for drivers without a structured taxonomy.
func Classify(err error) Kind {
	if err == nil {
		return KindNone
	}

	if errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, mysql.ErrInvalidConn) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, ErrNotConnected) {
		return KindConnectivity
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindConnectivity
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case mysqlErrLockDeadlock, mysqlErrLockWaitTimeout:
			return KindContention
		}
		return KindStatement
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Class() {
		case "40": // transaction_rollback: deadlock, serialization failure
			return KindContention
		case "08", "57": // connection_exception, operator_intervention
			return KindConnectivity
		}
		return KindStatement
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "broken pipe"),
		strings.Contains(msg, "connection timed out"),
		strings.Contains(msg, "bad connection"):
		return KindConnectivity
	case strings.Contains(msg, "deadlock"),
		strings.Contains(msg, "database is locked"):
		return KindContention
	}

	return KindStatement
}
