package pairing

import "fmt"

// Request paths.
const (
	PathPairSetup  = "/pair-setup"
	PathPairVerify = "/pair-verify"
	PathPairings   = "/pairings"
)

// ContentType is the media type of pairing bodies.
const ContentType = "application/pairing+tlv8"

// State is the pairing message number.
type State byte

const (
	StateM1 State = iota + 1
	StateM2
	StateM3
	StateM4
	StateM5
	StateM6
)

// String returns "M1".."M6".
func (s State) String() string {
	if s.IsValid() {
		return fmt.Sprintf("M%d", byte(s))
	}
	return fmt.Sprintf("State(%d)", byte(s))
}

// IsValid reports whether s is M1..M6.
func (s State) IsValid() bool {
	return s >= StateM1 && s <= StateM6
}

// Next returns the state of the reply to s.
func (s State) Next() State {
	return s + 1
}

// Method selects the pairing operation.
type Method byte

const (
	MethodPairSetup         Method = 0
	MethodPairSetupWithAuth Method = 1
	MethodPairVerify        Method = 2
	MethodAddPairing        Method = 3
	MethodRemovePairing     Method = 4
	MethodListPairings      Method = 5
)

// String returns the method name.
func (m Method) String() string {
	switch m {
	case MethodPairSetup:
		return "PairSetup"
	case MethodPairSetupWithAuth:
		return "PairSetupWithAuth"
	case MethodPairVerify:
		return "PairVerify"
	case MethodAddPairing:
		return "AddPairing"
	case MethodRemovePairing:
		return "RemovePairing"
	case MethodListPairings:
		return "ListPairings"
	default:
		return fmt.Sprintf("Method(%d)", byte(m))
	}
}

// ErrorCode is the value of the Error tag.
type ErrorCode byte

const (
	ErrorUnknown        ErrorCode = 0x01
	ErrorAuthentication ErrorCode = 0x02
	ErrorBackoff        ErrorCode = 0x03
	ErrorMaxPeers       ErrorCode = 0x04
	ErrorMaxTries       ErrorCode = 0x05
	ErrorUnavailable    ErrorCode = 0x06
	ErrorBusy           ErrorCode = 0x07
)

// String returns the error name.
func (e ErrorCode) String() string {
	switch e {
	case ErrorUnknown:
		return "Unknown"
	case ErrorAuthentication:
		return "Authentication"
	case ErrorBackoff:
		return "Backoff"
	case ErrorMaxPeers:
		return "MaxPeers"
	case ErrorMaxTries:
		return "MaxTries"
	case ErrorUnavailable:
		return "Unavailable"
	case ErrorBusy:
		return "Busy"
	default:
		return fmt.Sprintf("ErrorCode(%d)", byte(e))
	}
}

// Permission bits of a pairing.
const (
	PermissionUser  byte = 0x00
	PermissionAdmin byte = 0x01
)
