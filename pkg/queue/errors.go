package queue

import (
	"fmt"

	"github.com/pkg/errors"
)

// StorageError reports a failed local queue operation. Callers decide whether
// to treat it as fatal; the sync routines usually log and move on.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("queue: %s failed: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Cause lets pkg/errors.Cause walk through the storage error.
func (e *StorageError) Cause() error { return e.Err }

func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: errors.WithStack(err)}
}

// IsStorageError reports whether err carries a *StorageError.
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}
