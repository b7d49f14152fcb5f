package supervisor

import "fmt"

// State is the lifecycle of one supervised link.
type State int

const (
	Idle State = iota
	Discovering
	Connected
	BackoffWait
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Discovering:
		return "discovering"
	case Connected:
		return "connected"
	case BackoffWait:
		return "backoff"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Status is a snapshot of a link. Err is the failure that caused the most
// recent BackoffWait and is cleared on the next successful connect.
type Status struct {
	State State
	Err   error
}

// Failed reports whether the link is currently down because of an error.
func (s Status) Failed() bool { return s.Err != nil && s.State != Connected }

func (s Status) String() string {
	if s.Err != nil {
		return fmt.Sprintf("%s (%v)", s.State, s.Err)
	}
	return s.State.String()
}
