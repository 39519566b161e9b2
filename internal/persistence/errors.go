package persistence

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
)

// ErrNoWorldState is returned when a rewrite targets a database with no
// world-state row.
var ErrNoWorldState = errors.New("no world state row")

// DualWriteError reports that both halves of a mirrored write failed.
// A single-side failure is logged and tolerated; only losing both
// copies is fatal for the operation.
type DualWriteError struct {
	Document string
	Primary  error
	File     error
}

func (e *DualWriteError) Error() string {
	return fmt.Sprintf("dual write of %s failed on both targets: primary: %v; file: %v",
		e.Document, e.Primary, e.File)
}

// poisoned reports whether an error indicates the current transaction
// (or its connection) can no longer execute statements. Continuing to
// issue statements after one of these silently discards work, so the
// synchronizer aborts and the controller resets the connection.
func poisoned(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, sql.ErrTxDone) || errors.Is(err, sql.ErrConnDone) || errors.Is(err, driver.ErrBadConn) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "database is closed") ||
		strings.Contains(msg, "interrupted") ||
		strings.Contains(msg, "transaction has already been committed or rolled back")
}
