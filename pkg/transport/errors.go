package transport

import (
	"errors"
	"fmt"
)

// Transport errors.
var (
	// ErrClosed is returned when an operation is attempted on a closed server or connection.
	ErrClosed = errors.New("transport: closed")

	// ErrNoHandler is returned when no accessory handler is configured.
	ErrNoHandler = errors.New("transport: no accessory handler configured")

	// ErrAlreadyStarted is returned when Start is called on a running server.
	ErrAlreadyStarted = errors.New("transport: already started")

	// ErrMessageTooLarge is returned when a request or response exceeds the
	// maximum message size.
	ErrMessageTooLarge = errors.New("transport: message too large")

	// ErrUnexpectedData is returned when a controller sends data before
	// the accessory switched the connection to encryption.
	ErrUnexpectedData = errors.New("transport: data received before encryption started")

	// ErrNotSecured is returned by ClientConn.Secure on a failed
	// pair-verify result.
	ErrNotSecured = errors.New("transport: connection not secured")
)

// StatusError is a non-200 reply seen by ClientConn.
type StatusError struct {
	Code int
}

// Error implements error.
func (e *StatusError) Error() string {
	return fmt.Sprintf("transport: accessory replied %d %s", e.Code, StatusText(e.Code))
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == code
}
