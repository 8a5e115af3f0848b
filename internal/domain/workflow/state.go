package workflow

// State represents a stage of a document's ingestion lifecycle
type State string

const (
	StateReceived     State = "RECEIVED"
	StateDetected     State = "DETECTED"
	StateExtracted    State = "EXTRACTED"
	StateAssembled    State = "ASSEMBLED"
	StateDeduplicated State = "DEDUPLICATED"
	StatePersisted    State = "PERSISTED"
	StateMapped       State = "MAPPED"
	StateDone         State = "DONE"
	StateFailed       State = "FAILED"
)

// pipelineOrder is the happy path, in order
var pipelineOrder = []State{
	StateReceived,
	StateDetected,
	StateExtracted,
	StateAssembled,
	StateDeduplicated,
	StatePersisted,
	StateMapped,
	StateDone,
}

var validStates = map[State]bool{
	StateReceived:     true,
	StateDetected:     true,
	StateExtracted:    true,
	StateAssembled:    true,
	StateDeduplicated: true,
	StatePersisted:    true,
	StateMapped:       true,
	StateDone:         true,
	StateFailed:       true,
}

var terminalStates = map[State]bool{
	StateDone:   true,
	StateFailed: true,
}

// IsTerminal returns true if the state is a terminal state (no further transitions allowed)
func (s State) IsTerminal() bool {
	return terminalStates[s]
}

// String returns the string representation of the state
func (s State) String() string {
	return string(s)
}

// IsValid returns true if the state is a valid pipeline state
func (s State) IsValid() bool {
	return validStates[s]
}

// Next returns the following happy-path state, or the state itself at the end
func (s State) Next() State {
	for i, st := range pipelineOrder {
		if st == s && i+1 < len(pipelineOrder) {
			return pipelineOrder[i+1]
		}
	}
	return s
}

// PipelineStates returns the happy path in order
func PipelineStates() []State {
	return append([]State(nil), pipelineOrder...)
}
