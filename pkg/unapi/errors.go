package unapi

import (
	"errors"
	"fmt"
)

// Sentinel errors for the unapi package. Use errors.Is to classify failures.
var (
	// ErrTransport covers network failures, non-2xx responses and bodies that
	// cannot be read or are not JSON.
	ErrTransport = errors.New("unapi: transport error")

	// ErrSchema is returned when a response is JSON but not in an expected shape.
	ErrSchema = errors.New("unapi: unexpected response schema")

	// ErrEmptyResult is returned when filtering leaves no rows. It usually means
	// the location id list or the variant/sex filter is broken upstream.
	ErrEmptyResult = errors.New("unapi: no matching rows")
)

// TransportError describes a failed GET.
type TransportError struct {
	URL        string
	StatusCode int // 0 when no response was received
	Err        error
}

func (e *TransportError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("%v: GET %s: status %d", ErrTransport, e.URL, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("%v: GET %s: %v", ErrTransport, e.URL, e.Err)
	default:
		return fmt.Sprintf("%v: GET %s", ErrTransport, e.URL)
	}
}

func (e *TransportError) Is(target error) bool { return target == ErrTransport }

func (e *TransportError) Unwrap() error { return e.Err }

// SchemaError describes a response that decoded as JSON but could not be
// interpreted.
type SchemaError struct {
	URL    string
	Reason string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("%v: %s: %s", ErrSchema, e.URL, e.Reason)
}

func (e *SchemaError) Is(target error) bool { return target == ErrSchema }
