package replay

// State is a phase of one replay run.
type State int

const (
	StateIdle      State = iota
	StateStarting        // Logs, rotation, app launch
	StateWarmingUp       // Waiting for the app to come up
	StatePlaying         // Event player started
	StateWaiting         // Waiting for the next checkpoint offset
	StateCapturing       // Capturing or dispatching a checkpoint
	StateDraining        // Waiting for the event player to exit
	StateStopped         // Finished without a crash
	StateSysCrash        // Device stopped answering
	StateAppCrash        // App lost focus
)

// String returns the state name used in logs.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateStarting:
		return "STARTING"
	case StateWarmingUp:
		return "WARMING_UP"
	case StatePlaying:
		return "PLAYING"
	case StateWaiting:
		return "WAITING"
	case StateCapturing:
		return "CAPTURING"
	case StateDraining:
		return "DRAINING"
	case StateStopped:
		return "STOPPED"
	case StateSysCrash:
		return "SYS_CRASH"
	case StateAppCrash:
		return "APP_CRASH"
	default:
		return "UNKNOWN"
	}
}

// IsTerminal reports whether no further transition is possible.
func (s State) IsTerminal() bool {
	return s == StateStopped || s == StateSysCrash || s == StateAppCrash
}
