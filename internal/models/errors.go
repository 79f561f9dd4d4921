package models

import "fmt"

// ErrorKind classifies the failure of a fetch cycle.
type ErrorKind string

const (
	ErrorKindTransport        ErrorKind = "transport"
	ErrorKindParse            ErrorKind = "parse"
	ErrorKindAPI              ErrorKind = "api"
	ErrorKindIncompleteRecord ErrorKind = "incomplete_record"
)

// Label is the prefix used in user facing messages.
func (k ErrorKind) Label() string {
	switch k {
	case ErrorKindTransport:
		return "Transport"
	case ErrorKindParse:
		return "XML"
	case ErrorKindAPI:
		return "API"
	case ErrorKindIncompleteRecord:
		return "Record"
	default:
		return "Unknown"
	}
}

// FetchError is the classified outcome of a failed cycle.
type FetchError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *FetchError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s error: %s", e.Kind.Label(), e.Message)
	}
	return fmt.Sprintf("%s error: %s: %v", e.Kind.Label(), e.Message, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// NewFetchError constructs a FetchError.
func NewFetchError(kind ErrorKind, msg string, err error) *FetchError {
	return &FetchError{Kind: kind, Message: msg, Err: err}
}
