package workflow_test

import (
	"context"
	"testing"

	"github.com/telcoingest/invoice-pipeline/internal/domain/workflow"
)

// Exercises the shared rules from outside the package, after package init only.
func TestNewIngestMachine_AfterPackageInit(t *testing.T) {
	machine := workflow.NewIngestMachine()
	if machine.State() != workflow.StateReceived {
		t.Fatalf("State = %v, want %v", machine.State(), workflow.StateReceived)
	}
	if !machine.CanFire(workflow.TriggerDetect) {
		t.Error("CanFire(DETECT) should be true at RECEIVED")
	}
	if err := machine.Fire(context.Background(), workflow.TriggerDetect); err != nil {
		t.Fatalf("Fire(DETECT) failed: %v", err)
	}

	external := workflow.NewExternalMachine()
	if external.State() != workflow.StateExtracted {
		t.Errorf("external State = %v, want %v", external.State(), workflow.StateExtracted)
	}
}
