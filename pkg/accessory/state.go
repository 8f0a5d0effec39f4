package accessory

// State represents the lifecycle and pairing state of an Accessory.
type State int

const (
	// StateInitialized means the accessory is created but not started.
	StateInitialized State = iota

	// StateUnpaired means the accessory is running with no paired
	// controller. It advertises sf=1.
	StateUnpaired

	// StatePaired means the accessory is running with at least one admin
	// controller. It advertises sf=0.
	StatePaired

	// StateStopped means the accessory has been shut down.
	StateStopped
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case StateInitialized:
		return "Initialized"
	case StateUnpaired:
		return "Unpaired"
	case StatePaired:
		return "Paired"
	case StateStopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

// IsRunning returns true while the accessory accepts connections.
func (s State) IsRunning() bool {
	return s == StateUnpaired || s == StatePaired
}

// CanStart returns true if Start() can be called in this state.
func (s State) CanStart() bool {
	return s == StateInitialized
}

// CanStop returns true if Stop() can be called in this state.
func (s State) CanStop() bool {
	return s.IsRunning()
}
