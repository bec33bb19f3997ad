package tunnel

import "time"

// State is the lifecycle position of a tunnel.
type State int

const (
	StateIdle State = iota
	StateStarting
	StateActive
	StateStopping
	StateStopped
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateActive:
		return "active"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateStopped || s == StateFailed
}

// Transition records a single state change.
type Transition struct {
	From      State     `json:"from"`
	To        State     `json:"to"`
	Timestamp time.Time `json:"timestamp"`
	Reason    string    `json:"reason"`
}

// allowed lists the legal edges of the lifecycle.
var allowed = map[State][]State{
	StateIdle:     {StateStarting},
	StateStarting: {StateActive, StateFailed},
	StateActive:   {StateStopping, StateFailed},
	StateStopping: {StateStopped},
}

func canTransition(from, to State) bool {
	for _, s := range allowed[from] {
		if s == to {
			return true
		}
	}
	return false
}
