package cycle

import (
	"errors"
	"fmt"
)

var (
	ErrMissingFlags  = errors.New("cycle: flag repository is required")
	ErrMissingClient = errors.New("cycle: submission client is required")
)

// StorageError wraps a flag store failure. Op names the store call.
type StorageError struct {
	Op    string
	Value string
	Err   error
}

func (e *StorageError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("cycle: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("cycle: %s %s: %v", e.Op, e.Value, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
