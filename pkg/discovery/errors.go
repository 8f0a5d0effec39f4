package discovery

import "errors"

// Package-level sentinel errors for discovery operations.
var (
	// ErrClosed is returned when an operation is attempted on a closed advertiser.
	ErrClosed = errors.New("discovery: closed")

	// ErrAlreadyStarted is returned when starting an advertisement that is already live.
	ErrAlreadyStarted = errors.New("discovery: already started")

	// ErrNotStarted is returned when updating or stopping an advertisement that was not started.
	ErrNotStarted = errors.New("discovery: not started")

	// ErrInvalidInstanceName is returned when the instance name is empty or
	// longer than a DNS label.
	ErrInvalidInstanceName = errors.New("discovery: invalid instance name")

	// ErrInvalidDeviceID is returned when the id key is not of the form XX:XX:XX:XX:XX:XX.
	ErrInvalidDeviceID = errors.New("discovery: invalid device id")

	// ErrInvalidModel is returned when the md key is empty.
	ErrInvalidModel = errors.New("discovery: invalid model")

	// ErrInvalidConfigNumber is returned when c# is zero.
	ErrInvalidConfigNumber = errors.New("discovery: invalid configuration number")

	// ErrInvalidCategory is returned when ci is zero.
	ErrInvalidCategory = errors.New("discovery: invalid category")

	// ErrInvalidSetupHash is returned when sh is not the base64 form of four bytes.
	ErrInvalidSetupHash = errors.New("discovery: invalid setup hash")

	// ErrServiceNotFound is returned when a requested service is not found.
	ErrServiceNotFound = errors.New("discovery: service not found")

	// ErrTimeout is returned when an operation times out.
	ErrTimeout = errors.New("discovery: operation timed out")

	// ErrInvalidTXTRecord is returned when a TXT record has invalid format.
	ErrInvalidTXTRecord = errors.New("discovery: invalid TXT record format")
)
