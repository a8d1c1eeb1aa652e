package store

import (
	"database/sql"
	"errors"
	"strings"
)

// IsUnavailable reports whether an error signature indicates the store
// connection is closed or gone, as opposed to a query-level failure.
//
// The write buffer uses this to decide between retrying a batch (transient
// query error) and tripping its circuit breaker (store unavailable).
func IsUnavailable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, sql.ErrConnDone) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "database is closed") ||
		strings.Contains(msg, "connection is closed") ||
		strings.Contains(msg, "no such database")
}
