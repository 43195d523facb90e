package strategy

import "testing"

func TestStateMachineTransitions(t *testing.T) {
	sm := NewStateMachine()
	if sm.State != StateIdle {
		t.Fatalf("expected %s, got %s", StateIdle, sm.State)
	}
	steps := []struct {
		event Event
		want  State
	}{
		{EventWake, StateRefresh},
		{EventRefreshed, StateSpotPass},
		{EventSpotDone, StateFuturesPass},
		{EventPerpDone, StateIdle},
		{EventWake, StateRefresh},
	}
	for _, step := range steps {
		if got := sm.Apply(step.event); got != step.want {
			t.Fatalf("after %s expected %s, got %s", step.event, step.want, got)
		}
	}
}

func TestStateMachineInvalidTransition(t *testing.T) {
	sm := NewStateMachine()
	if sm.Apply(EventSpotDone) != StateIdle {
		t.Fatalf("invalid transition should not change state")
	}
	sm.Apply(EventWake)
	if sm.Apply(EventPerpDone) != StateRefresh {
		t.Fatalf("skipping the spot pass should not be allowed")
	}
}

func TestStateMachineAbort(t *testing.T) {
	sm := NewStateMachine()
	sm.Apply(EventWake)
	sm.Apply(EventRefreshed)
	if sm.Apply(EventAbort) != StateIdle {
		t.Fatalf("expected abort to return to idle")
	}
	if sm.Current() != StateIdle {
		t.Fatalf("expected idle, got %s", sm.Current())
	}
}
