package strategy

import "sync"

type StateMachine struct {
	mu    sync.Mutex
	State State
}

// NewStateMachine starts idle; the first tick wakes it into REFRESH.
func NewStateMachine() *StateMachine {
	return &StateMachine{State: StateIdle}
}

func (s *StateMachine) Apply(event Event) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.State = nextState(s.State, event)
	return s.State
}

func (s *StateMachine) Current() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.State
}

func nextState(current State, event Event) State {
	if event == EventAbort {
		return StateIdle
	}
	switch current {
	case StateIdle:
		if event == EventWake {
			return StateRefresh
		}
	case StateRefresh:
		if event == EventRefreshed {
			return StateSpotPass
		}
	case StateSpotPass:
		if event == EventSpotDone {
			return StateFuturesPass
		}
	case StateFuturesPass:
		if event == EventPerpDone {
			return StateIdle
		}
	}
	return current
}
