package session

import "errors"

// Session package errors.
var (
	// ErrNotEstablished is returned when framing is attempted before
	// pair-verify has completed.
	ErrNotEstablished = errors.New("session: not established")

	// ErrClosed is returned for operations on a closed session.
	ErrClosed = errors.New("session: closed")

	// ErrDecryptionFailed is returned when a frame fails authentication.
	// The connection must be dropped.
	ErrDecryptionFailed = errors.New("session: decryption failed")

	// ErrTruncatedFrame is returned when the input ends inside a frame.
	ErrTruncatedFrame = errors.New("session: truncated frame")

	// ErrFrameTooLarge is returned when a frame declares more than
	// MaxFrameSize bytes.
	ErrFrameTooLarge = errors.New("session: frame too large")

	// ErrInvalidRole is returned for an undefined Role.
	ErrInvalidRole = errors.New("session: invalid role")

	// ErrSessionTableFull is returned when no more connections can be
	// tracked.
	ErrSessionTableFull = errors.New("session: session table full")

	// ErrDuplicateSession is returned when adding a session with an
	// existing ID.
	ErrDuplicateSession = errors.New("session: duplicate session ID")
)
