package syncer

import (
	"errors"
	"fmt"

	"github.com/openfit/liftsync/internal/event"
	"github.com/openfit/liftsync/internal/store"
)

// Code classifies a sync failure for callers that branch on failure class
// rather than message text.
type Code string

const (
	// CodeTransientStore is a storage error expected to succeed on retry.
	CodeTransientStore Code = "transient_store"
	// CodeStoreUnavailable means the store is gone (closed, detached) and
	// retrying without intervention will not help.
	CodeStoreUnavailable Code = "store_unavailable"
	// CodeNetworkFetch is a relay fetch or publish failure.
	CodeNetworkFetch Code = "network_fetch"
	// CodeMalformedRecord means an event could not be validated or parsed.
	CodeMalformedRecord Code = "malformed_record"
	// CodeCapacityExceeded means an input exceeds a configured bound.
	CodeCapacityExceeded Code = "capacity_exceeded"
)

// SyncError carries a failure class alongside the wrapped cause.
type SyncError struct {
	Code Code
	Op   string
	Err  error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Code, e.Err)
}

func (e *SyncError) Unwrap() error { return e.Err }

// IsCode reports whether err carries the given code.
func IsCode(err error, code Code) bool {
	var se *SyncError
	return errors.As(err, &se) && se.Code == code
}

// CodeOf extracts the failure class, or false when err is not a SyncError.
func CodeOf(err error) (Code, bool) {
	var se *SyncError
	if errors.As(err, &se) {
		return se.Code, true
	}
	return "", false
}

// classify wraps an error from a lower layer with the matching code.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *SyncError
	if errors.As(err, &se) {
		return err // already classified
	}
	switch {
	case store.IsUnavailable(err):
		return &SyncError{Code: CodeStoreUnavailable, Op: op, Err: err}
	case event.IsParseError(err):
		return &SyncError{Code: CodeMalformedRecord, Op: op, Err: err}
	default:
		return &SyncError{Code: CodeTransientStore, Op: op, Err: err}
	}
}
