package persistence

import (
	"errors"
	"fmt"
)

// ErrClosed is returned by every operation issued after Close and before the
// next Open.
var ErrClosed = errors.New("persistence: connection closed")

// StorageError wraps a failure reported by the database engine.
type StorageError struct {
	Op    string
	Query string
	Err   error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func wrap(op, query string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Query: query, Err: err}
}
