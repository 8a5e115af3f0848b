package workflow

// Trigger represents an event that can cause a state transition
type Trigger string

const (
	TriggerDetect        Trigger = "DETECT"
	TriggerExtract       Trigger = "EXTRACT"
	TriggerAssemble      Trigger = "ASSEMBLE"
	TriggerDeduplicate   Trigger = "DEDUPLICATE"
	TriggerSkipDuplicate Trigger = "SKIP_DUPLICATE"
	TriggerPersist       Trigger = "PERSIST"
	TriggerMap           Trigger = "MAP"
	TriggerComplete      Trigger = "COMPLETE"
	TriggerFail          Trigger = "FAIL"
)

// String returns the string representation of the trigger
func (t Trigger) String() string {
	return string(t)
}
