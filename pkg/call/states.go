package call

// State is the lifecycle state of a call.
//
// Every call starts at IN_PROGRESS when its first packet arrives and moves
// through the graph below. ARCHIVED and FAILED are terminal; once reached,
// no further transition is permitted.
type State string

const (
	// StateInProgress means packets are still being ingested.
	StateInProgress State = "IN_PROGRESS"

	// StateCompleted means the PBX signalled completion; the grace interval
	// for late packets is running.
	StateCompleted State = "COMPLETED"

	// StateProcessingAI means the completion pipeline handed the call to the
	// AI analyzer.
	StateProcessingAI State = "PROCESSING_AI"

	// StateArchived means AI analysis succeeded and the results are stored.
	StateArchived State = "ARCHIVED"

	// StateFailed means the AI retry budget was exhausted or the pipeline hit
	// an unrecoverable error.
	StateFailed State = "FAILED"
)

// validTransitions is the complete lifecycle graph. Transitions not listed
// here are rejected with ErrInvalidTransition.
var validTransitions = map[State][]State{
	StateInProgress:   {StateCompleted},
	StateCompleted:    {StateProcessingAI},
	StateProcessingAI: {StateArchived, StateFailed},
	StateArchived:     {},
	StateFailed:       {},
}

// IsValid reports whether s is one of the five lifecycle states.
func (s State) IsValid() bool {
	_, ok := validTransitions[s]
	return ok
}

// IsTerminal reports whether the state admits no further transitions.
func (s State) IsTerminal() bool {
	return s == StateArchived || s == StateFailed
}

// CanTransitionTo reports whether the edge s -> to exists in the lifecycle
// graph.
func (s State) CanTransitionTo(to State) bool {
	for _, next := range validTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}
