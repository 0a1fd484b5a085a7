package session

import "fmt"

// State is the degree to which the session is connected. Transitions are
// driven only by the public operations and the message-dispatch path.
type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
	Authenticated
	InQueue
	InMatch
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "DISCONNECTED"
	case Connecting:
		return "CONNECTING"
	case Connected:
		return "CONNECTED"
	case Authenticated:
		return "AUTHENTICATED"
	case InQueue:
		return "IN_QUEUE"
	case InMatch:
		return "IN_MATCH"
	}
	return fmt.Sprintf("STATE(%d)", int32(s))
}

// StateError reports an operation invoked while the session was in the
// wrong state. State-machine inconsistencies fail fast rather than being
// silently repaired.
type StateError struct {
	Op       string
	Required State
	Current  State
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s requires state %s, current state is %s", e.Op, e.Required, e.Current)
}
