package workflow

// ingestBuilder holds the shared pipeline rules; Build copies them per document.
var ingestBuilder Builder

// Built in init: Configure reaches validStates only through the Builder
// interface, which package-level initialisation order does not follow.
func init() {
	ingestBuilder = newIngestBuilder()
}

func newIngestBuilder() Builder {
	b := NewBuilder()

	b.Configure(StateReceived).Permit(TriggerDetect, StateDetected)
	b.Configure(StateDetected).Permit(TriggerExtract, StateExtracted)
	b.Configure(StateExtracted).Permit(TriggerAssemble, StateAssembled)
	b.Configure(StateAssembled).Permit(TriggerDeduplicate, StateDeduplicated)
	b.Configure(StateDeduplicated).
		Permit(TriggerPersist, StatePersisted).
		Permit(TriggerSkipDuplicate, StateDone)
	b.Configure(StatePersisted).Permit(TriggerMap, StateMapped)
	b.Configure(StateMapped).Permit(TriggerComplete, StateDone)

	b.PermitFromAny(TriggerFail, StateFailed)
	return b
}

// NewIngestMachine returns a machine for one document, starting at RECEIVED
func NewIngestMachine() StateMachine {
	return ingestBuilder.Build(StateReceived)
}

// NewExternalMachine returns a machine for a pre-normalized package. Detection and
// extraction do not apply, so it starts at EXTRACTED.
func NewExternalMachine() StateMachine {
	return ingestBuilder.Build(StateExtracted)
}
