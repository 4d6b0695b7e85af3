package pipeline

import "fmt"

// State is where the controller is within a stage.
type State int

const (
	StateIdle State = iota
	StateExtracting
	StateTranslating
	StateCleanup
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateExtracting:
		return "Extracting"
	case StateTranslating:
		return "Translating"
	case StateCleanup:
		return "Cleanup"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// transition moves the controller from one state to the next. from is the
// state the caller expects to be in.
func (p *Pipeline) transition(stage Stage, from, to State) error {
	if p.state != from {
		return fmt.Errorf("stage %s: invalid transition: expected %s, got %s", stage, from, p.state)
	}
	if !allowedTransition(from, to) {
		return fmt.Errorf("stage %s: disallowed transition %s -> %s", stage, from, to)
	}
	p.state = to
	return nil
}

// allowedTransition encodes Idle → Extracting → Translating → Cleanup → Idle.
// A failed extraction goes straight to Cleanup.
func allowedTransition(from, to State) bool {
	switch from {
	case StateIdle:
		return to == StateExtracting
	case StateExtracting:
		return to == StateTranslating || to == StateCleanup
	case StateTranslating:
		return to == StateCleanup
	case StateCleanup:
		return to == StateIdle
	default:
		return false
	}
}
