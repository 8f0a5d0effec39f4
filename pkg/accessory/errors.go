package accessory

import "errors"

// Package-level errors.
var (
	// ErrAlreadyStarted is returned when Start() is called on a running accessory.
	ErrAlreadyStarted = errors.New("accessory: already started")

	// ErrNotStarted is returned when an operation requires a running accessory.
	ErrNotStarted = errors.New("accessory: not started")

	// ErrAlreadyStopped is returned when Stop() is called on a stopped accessory.
	ErrAlreadyStopped = errors.New("accessory: already stopped")

	// ErrStorageRequired is returned when Store is nil.
	ErrStorageRequired = errors.New("accessory: storage is required")

	// ErrInvalidName is returned when Name is empty.
	ErrInvalidName = errors.New("accessory: name is required")

	// ErrInvalidSetupCode is returned for a malformed or trivial setup code.
	ErrInvalidSetupCode = errors.New("accessory: invalid setup code")

	// ErrInvalidSetupID is returned when SetupID is not four characters of [0-9A-Z].
	ErrInvalidSetupID = errors.New("accessory: invalid setup ID")

	// ErrInvalidCategory is returned for an unknown accessory category.
	ErrInvalidCategory = errors.New("accessory: invalid category")

	// ErrInvalidPort is returned when Port is out of range.
	ErrInvalidPort = errors.New("accessory: invalid port")

	// ErrPaired is returned when an operation requires an unpaired accessory.
	ErrPaired = errors.New("accessory: accessory is paired")

	// ErrPairingInProgress is returned when the setup code changes while a
	// pair-setup attempt is pending.
	ErrPairingInProgress = errors.New("accessory: pair-setup in progress")

	// ErrCorruptState is returned when a persisted record fails validation.
	ErrCorruptState = errors.New("accessory: corrupt persisted state")
)
