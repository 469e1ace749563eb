package vsac

import (
	"errors"
	"fmt"
)

// Error is a failure that affects every request of the client, such as a
// missing API key, an unusable cache directory or credentials rejected by
// VSAC. It always aborts a batch.
type Error struct {
	Msg string
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("vsac: %s: %v", e.Msg, e.Err)
	}
	return "vsac: " + e.Msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ItemError is a failure limited to a single ValueSet.
type ItemError struct {
	OID string
	Op  string // fetch, decode, read cache, write cache
	Err error
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.OID, e.Err)
}

func (e *ItemError) Unwrap() error {
	return e.Err
}

// IsFatal reports whether err is an *Error.
func IsFatal(err error) bool {
	var vErr *Error
	return errors.As(err, &vErr)
}
