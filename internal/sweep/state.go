package sweep

import "fmt"

// State is the lifecycle of one (instrument, combination) pair within a run.
type State int

const (
	StatePending State = iota
	StateCached
	StateEvaluating
	StateSuccess
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "PENDING"
	case StateCached:
		return "CACHED"
	case StateEvaluating:
		return "EVALUATING"
	case StateSuccess:
		return "SUCCESS"
	case StateFailed:
		return "FAILED"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Terminal reports whether s ends the pair's lifecycle. Every terminal pair
// is appended to the batch and counted toward progress.
func (s State) Terminal() bool {
	return s == StateCached || s == StateSuccess || s == StateFailed
}

// CanTransition reports whether from -> to is a legal step.
func CanTransition(from, to State) bool {
	switch from {
	case StatePending:
		return to == StateCached || to == StateEvaluating
	case StateEvaluating:
		return to == StateSuccess || to == StateFailed
	}
	return false
}

// pair tracks one combination through the state machine.
type pair struct {
	state State
	trace func(from, to State)
}

func (p *pair) to(next State) {
	if !CanTransition(p.state, next) {
		panic(fmt.Sprintf("sweep: illegal transition %s -> %s", p.state, next))
	}
	if p.trace != nil {
		p.trace(p.state, next)
	}
	p.state = next
}
