// Package flow runs a compiled plan step by step: it asks, responds or
// executes, consulting policy before every side effect and recording each
// decision and tool result on the audit chain.
package flow

import (
	"fmt"

	"github.com/Ayejay3194/Auth-spine-sub014/internal/domain"
)

// State is where a run is in its lifecycle.
type State string

const (
	StatePending    State = "pending"
	StateAsking     State = "asking"
	StateExecuting  State = "executing"
	StateResponding State = "responding"
	StateDone       State = "done"
)

// validTransitions defines the legal state transitions.
// Each key is a source state, and the value is the set of valid target states.
var validTransitions = map[State]map[State]bool{
	StatePending:    {StateAsking: true, StateExecuting: true, StateResponding: true},
	StateExecuting:  {StateExecuting: true, StateAsking: true, StateResponding: true, StateDone: true},
	StateAsking:     {StateDone: true},
	StateResponding: {StateDone: true},
}

// IsValidTransition checks if a state transition is legal.
func IsValidTransition(from, to State) bool {
	targets, ok := validTransitions[from]
	if !ok {
		return false
	}
	return targets[to]
}

// machine tracks the state of a single run.
type machine struct {
	state State
}

func (m *machine) to(next State) error {
	if !IsValidTransition(m.state, next) {
		return domain.NewEngineError(
			domain.ErrInvalidTransition.Code,
			fmt.Sprintf("illegal transition %s -> %s", m.state, next),
		)
	}
	m.state = next
	return nil
}

// stateFor maps a step to the state that processes it.
func stateFor(step domain.FlowStep) (State, error) {
	switch {
	case step.Kind == domain.StepAsk && step.Ask != nil:
		return StateAsking, nil
	case step.Kind == domain.StepExecute && step.Execute != nil:
		return StateExecuting, nil
	case step.Kind == domain.StepRespond && step.Respond != nil:
		return StateResponding, nil
	}
	return "", domain.NewEngineError(domain.ErrMalformedStep.Code, fmt.Sprintf("malformed %q step", step.Kind))
}
