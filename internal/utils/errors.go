package utils

import (
	"errors"
	"fmt"
)

// AppError tags a failure with the component operation that produced it,
// e.g. "archive.record" or "presence.lookup".
type AppError struct {
	Op  string
	Msg string
	Err error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
	}
	return e.Op + ": " + e.Msg
}

func (e *AppError) Unwrap() error { return e.Err }

func NewAppError(op, msg string, err error) error {
	return &AppError{Op: op, Msg: msg, Err: err}
}

// OriginOp reports the innermost AppError operation in err's chain, or ""
// when err did not come from one of the client's components.
func OriginOp(err error) string {
	op := ""
	for err != nil {
		var appErr *AppError
		if !errors.As(err, &appErr) {
			break
		}
		op = appErr.Op
		err = appErr.Err
	}
	return op
}
