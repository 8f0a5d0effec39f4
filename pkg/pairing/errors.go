package pairing

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformed means the request body could not be interpreted at
	// all. The transport answers with HTTP 400.
	ErrMalformed = errors.New("pairing: malformed request")

	// ErrNotVerified means a pairings request arrived on a connection
	// that has not completed pair-verify. The transport answers with
	// HTTP 470.
	ErrNotVerified = errors.New("pairing: connection not verified")

	// ErrInvalidConfig is returned when a required collaborator is
	// missing.
	ErrInvalidConfig = errors.New("pairing: invalid config")

	// ErrUnexpectedResponse is returned by Client when the accessory's
	// reply does not match the exchange.
	ErrUnexpectedResponse = errors.New("pairing: unexpected response")

	// ErrAccessoryAuthentication is returned by Client when the
	// accessory's proof or signature does not check out.
	ErrAccessoryAuthentication = errors.New("pairing: accessory authentication failed")

	// ErrNoAccessory is returned by Client when pair-verify is attempted
	// without a known accessory long-term key.
	ErrNoAccessory = errors.New("pairing: accessory unknown")
)

// ProtocolError is a TLV Error tag returned by the accessory.
type ProtocolError struct {
	State State
	Code  ErrorCode
}

// Error implements error.
func (e *ProtocolError) Error() string {
	return fmt.Sprintf("pairing: accessory replied %s at %s", e.Code, e.State)
}

// IsProtocolError reports whether err carries the given TLV error code.
func IsProtocolError(err error, code ErrorCode) bool {
	var pe *ProtocolError
	return errors.As(err, &pe) && pe.Code == code
}
