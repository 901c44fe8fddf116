package bridge

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNotFound means the connector answered 404
	ErrNotFound = errors.New("bridge: resource not found")
	// ErrTimeout means no response arrived before the deadline
	ErrTimeout = errors.New("bridge: request timed out")
	// ErrTransport means the request could not be published
	ErrTransport = errors.New("bridge: transport failure")
	// ErrDuplicateID means a call with the same correlation id is pending
	ErrDuplicateID = errors.New("bridge: duplicate correlation id")
	// ErrClosed means the registry is no longer accepting calls
	ErrClosed = errors.New("bridge: registry closed")
)

// StatusError carries a non-200, non-404 response code from the connector
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("bridge: connector responded %d %s", e.Code, http.StatusText(e.Code))
}

// statusErr turns a response code into the matching error, nil for 200
func statusErr(code int) error {
	switch code {
	case http.StatusOK:
		return nil
	case http.StatusNotFound:
		return ErrNotFound
	default:
		return &StatusError{Code: code}
	}
}
