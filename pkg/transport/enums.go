package transport

import (
	"net/http"

	"github.com/backkem/hap/pkg/pairing"
)

// ContentType is the media type of every pairing request and response.
const ContentType = "application/pairing+tlv8"

// Command identifies what a request asks the accessory to do.
type Command int

const (
	// CommandUnknown is a pairing path used with the wrong method.
	CommandUnknown Command = iota
	// CommandPairSetup is POST /pair-setup.
	CommandPairSetup
	// CommandPairVerify is POST /pair-verify.
	CommandPairVerify
	// CommandPairings is POST /pairings.
	CommandPairings
	// CommandApplication is any other request, served by the App handler.
	CommandApplication
)

// String returns the string representation of the command.
func (c Command) String() string {
	switch c {
	case CommandPairSetup:
		return "PairSetup"
	case CommandPairVerify:
		return "PairVerify"
	case CommandPairings:
		return "Pairings"
	case CommandApplication:
		return "Application"
	default:
		return "Unknown"
	}
}

// IsPairing reports whether the command is handled by the pairing core.
func (c Command) IsPairing() bool {
	return c == CommandPairSetup || c == CommandPairVerify || c == CommandPairings
}

// CommandFor classifies a request by method and path.
func CommandFor(method, path string) Command {
	var cmd Command
	switch path {
	case pairing.PathPairSetup:
		cmd = CommandPairSetup
	case pairing.PathPairVerify:
		cmd = CommandPairVerify
	case pairing.PathPairings:
		cmd = CommandPairings
	default:
		return CommandApplication
	}
	if method != http.MethodPost {
		return CommandUnknown
	}
	return cmd
}
