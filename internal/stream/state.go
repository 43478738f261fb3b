package stream

import "fmt"

// State is the lifecycle of one chat request.
//
//	Idle -> Sending -> Streaming -> Completed
//	           |           |
//	           +-> Failed <+
//
// Completed and Failed return to Idle before the next request.
type State int

const (
	Idle State = iota
	// Sending lasts from submit until the response headers arrive.
	Sending
	// Streaming lasts while the body is being read.
	Streaming
	Completed
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Sending:
		return "sending"
	case Streaming:
		return "streaming"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// InFlight reports whether a request is outstanding.
func (s State) InFlight() bool {
	return s == Sending || s == Streaming
}

// Terminal reports whether the request has finished.
func (s State) Terminal() bool {
	return s == Completed || s == Failed
}

// TransitionError reports a state change the lifecycle does not allow.
type TransitionError struct {
	From State
	To   State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid transition from %s to %s", e.From, e.To)
}

// Transition returns to if moving from s to to is allowed, or a *TransitionError otherwise.
func (s State) Transition(to State) (State, error) {
	ok := false
	switch s {
	case Idle:
		ok = to == Sending
	case Sending:
		ok = to == Streaming || to == Failed
	case Streaming:
		ok = to == Completed || to == Failed
	case Completed, Failed:
		ok = to == Idle
	}
	if !ok {
		return s, &TransitionError{From: s, To: to}
	}
	return to, nil
}
