package workflow

import (
	"context"
	"errors"
	"testing"
)

type guardKey struct{}

func TestState_IsTerminal(t *testing.T) {
	tests := []struct {
		state    State
		expected bool
	}{
		{StateReceived, false},
		{StateDetected, false},
		{StateExtracted, false},
		{StateAssembled, false},
		{StateDeduplicated, false},
		{StatePersisted, false},
		{StateMapped, false},
		{StateDone, true},
		{StateFailed, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			if got := tt.state.IsTerminal(); got != tt.expected {
				t.Errorf("State.IsTerminal() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestState_IsValid(t *testing.T) {
	tests := []struct {
		name     string
		state    State
		expected bool
	}{
		{"valid state", StateReceived, true},
		{"valid terminal state", StateFailed, true},
		{"invalid state", State("INVALID"), false},
		{"empty state", State(""), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.state.IsValid(); got != tt.expected {
				t.Errorf("State.IsValid() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestState_Next(t *testing.T) {
	tests := []struct {
		state State
		want  State
	}{
		{StateReceived, StateDetected},
		{StateAssembled, StateDeduplicated},
		{StateMapped, StateDone},
		{StateDone, StateDone},
		{StateFailed, StateFailed},
	}

	for _, tt := range tests {
		if got := tt.state.Next(); got != tt.want {
			t.Errorf("%s.Next() = %v, want %v", tt.state, got, tt.want)
		}
	}
}

func TestTrigger_String(t *testing.T) {
	if got := TriggerSkipDuplicate.String(); got != "SKIP_DUPLICATE" {
		t.Errorf("Trigger.String() = %v, want %v", got, "SKIP_DUPLICATE")
	}
}

func TestBuilder_ConfigurePanicsOnInvalidState(t *testing.T) {
	builder := NewBuilder()

	defer func() {
		if r := recover(); r == nil {
			t.Error("Configure() should panic on invalid state")
		}
	}()

	builder.Configure(State("INVALID"))
}

func TestBuilder_BuildPanicsOnInvalidInitialState(t *testing.T) {
	builder := NewBuilder()

	defer func() {
		if r := recover(); r == nil {
			t.Error("Build() should panic on invalid initial state")
		}
	}()

	builder.Build(State("INVALID"))
}

func TestStateConfiguration_PermitIf(t *testing.T) {
	builder := NewBuilder()
	builder.Configure(StateDeduplicated).
		PermitIf(TriggerPersist, StateDone, func(ctx context.Context) bool {
			dup, _ := ctx.Value(guardKey{}).(bool)
			return dup
		}).
		PermitIf(TriggerPersist, StatePersisted, func(ctx context.Context) bool {
			dup, _ := ctx.Value(guardKey{}).(bool)
			return !dup
		})

	dupMachine := builder.Build(StateDeduplicated)
	if err := dupMachine.Fire(context.WithValue(context.Background(), guardKey{}, true), TriggerPersist); err != nil {
		t.Fatalf("Fire() failed: %v", err)
	}
	if dupMachine.State() != StateDone {
		t.Errorf("State after Fire() = %v, want %v", dupMachine.State(), StateDone)
	}

	freshMachine := builder.Build(StateDeduplicated)
	if err := freshMachine.Fire(context.Background(), TriggerPersist); err != nil {
		t.Fatalf("Fire() failed: %v", err)
	}
	if freshMachine.State() != StatePersisted {
		t.Errorf("State after Fire() = %v, want %v", freshMachine.State(), StatePersisted)
	}
}

func TestStateConfiguration_PermitIf_GuardFails(t *testing.T) {
	builder := NewBuilder()
	builder.Configure(StateReceived).
		PermitIf(TriggerDetect, StateDetected, func(ctx context.Context) bool {
			return false
		})

	machine := builder.Build(StateReceived)

	err := machine.Fire(context.Background(), TriggerDetect)
	if err == nil {
		t.Fatal("Fire() should fail when guard fails")
	}
	if !errors.Is(err, ErrGuardFailed) {
		t.Errorf("Fire() error = %v, want %v", err, ErrGuardFailed)
	}
	if machine.State() != StateReceived {
		t.Errorf("State should remain %v after failed Fire(), got %v", StateReceived, machine.State())
	}
}

func TestStateMachine_Fire_InvalidTransition(t *testing.T) {
	machine := NewIngestMachine()

	err := machine.Fire(context.Background(), TriggerPersist)
	if err == nil {
		t.Fatal("Fire() should fail for invalid transition")
	}
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Fire() error = %v, want %v", err, ErrInvalidTransition)
	}
	if machine.State() != StateReceived {
		t.Errorf("State should remain %v after failed Fire(), got %v", StateReceived, machine.State())
	}
}

func TestStateMachine_Fire_AfterTerminal(t *testing.T) {
	machine := NewIngestMachine()
	if err := machine.Fire(context.Background(), TriggerFail); err != nil {
		t.Fatalf("Fire(FAIL) failed: %v", err)
	}

	err := machine.Fire(context.Background(), TriggerDetect)
	if !errors.Is(err, ErrTerminal) {
		t.Errorf("Fire() error = %v, want %v", err, ErrTerminal)
	}
}

func TestStateMachine_PermittedTriggers(t *testing.T) {
	builder := NewBuilder()
	builder.Configure(StateDeduplicated).
		Permit(TriggerSkipDuplicate, StateDone).
		Permit(TriggerPersist, StatePersisted)

	machine := builder.Build(StateDeduplicated)

	triggers := machine.PermittedTriggers()
	if len(triggers) != 2 {
		t.Fatalf("PermittedTriggers() returned %d triggers, want 2", len(triggers))
	}
	if triggers[0] != TriggerPersist || triggers[1] != TriggerSkipDuplicate {
		t.Errorf("PermittedTriggers() = %v, want sorted [PERSIST SKIP_DUPLICATE]", triggers)
	}
}

func TestStateMachine_Immutability(t *testing.T) {
	machine1 := NewIngestMachine()
	machine2 := NewIngestMachine()

	if err := machine1.Fire(context.Background(), TriggerDetect); err != nil {
		t.Errorf("Fire() failed: %v", err)
	}

	if machine2.State() != StateReceived {
		t.Errorf("machine2 state = %v, want %v (machines should be independent)", machine2.State(), StateReceived)
	}
	if machine1.State() != StateDetected {
		t.Errorf("machine1 state = %v, want %v", machine1.State(), StateDetected)
	}
}

func TestIngestMachine_HappyPath(t *testing.T) {
	machine := NewIngestMachine()

	steps := []struct {
		trigger       Trigger
		expectedState State
	}{
		{TriggerDetect, StateDetected},
		{TriggerExtract, StateExtracted},
		{TriggerAssemble, StateAssembled},
		{TriggerDeduplicate, StateDeduplicated},
		{TriggerPersist, StatePersisted},
		{TriggerMap, StateMapped},
		{TriggerComplete, StateDone},
	}

	for i, step := range steps {
		if err := machine.Fire(context.Background(), step.trigger); err != nil {
			t.Fatalf("Step %d: Fire(%v) failed: %v", i, step.trigger, err)
		}
		if machine.State() != step.expectedState {
			t.Errorf("Step %d: State = %v, want %v", i, machine.State(), step.expectedState)
		}
	}

	history := machine.History()
	if len(history) != len(steps) {
		t.Fatalf("History() has %d transitions, want %d", len(history), len(steps))
	}
	if history[0].From != StateReceived || history[len(history)-1].To != StateDone {
		t.Errorf("History() = %+v, want RECEIVED ... DONE", history)
	}
}

func TestIngestMachine_DuplicateShortCircuit(t *testing.T) {
	machine := NewIngestMachine()
	for _, trigger := range []Trigger{TriggerDetect, TriggerExtract, TriggerAssemble, TriggerDeduplicate, TriggerSkipDuplicate} {
		if err := machine.Fire(context.Background(), trigger); err != nil {
			t.Fatalf("Fire(%v) failed: %v", trigger, err)
		}
	}
	if machine.State() != StateDone {
		t.Errorf("State = %v, want %v", machine.State(), StateDone)
	}
}

func TestIngestMachine_FailFromEveryStage(t *testing.T) {
	path := []Trigger{TriggerDetect, TriggerExtract, TriggerAssemble, TriggerDeduplicate, TriggerPersist, TriggerMap}

	for n := 0; n <= len(path); n++ {
		machine := NewIngestMachine()
		for _, trigger := range path[:n] {
			if err := machine.Fire(context.Background(), trigger); err != nil {
				t.Fatalf("Fire(%v) failed: %v", trigger, err)
			}
		}
		from := machine.State()
		if err := machine.Fire(context.Background(), TriggerFail); err != nil {
			t.Errorf("Fire(FAIL) from %v failed: %v", from, err)
		}
		if machine.State() != StateFailed {
			t.Errorf("State after FAIL from %v = %v, want %v", from, machine.State(), StateFailed)
		}
	}
}

func TestExternalMachine_StartsAtExtracted(t *testing.T) {
	machine := NewExternalMachine()
	if machine.State() != StateExtracted {
		t.Fatalf("State = %v, want %v", machine.State(), StateExtracted)
	}
	if machine.CanFire(TriggerDetect) {
		t.Error("CanFire(DETECT) should be false for external packages")
	}
	if !machine.CanFire(TriggerAssemble) {
		t.Error("CanFire(ASSEMBLE) should be true for external packages")
	}
}
