package strategy

type State string

type Event string

// Cycle phases. A cycle walks REFRESH -> SPOT_PASS -> FUTURES_PASS -> IDLE and
// the scheduler wakes it back to REFRESH.
const (
	StateRefresh     State = "REFRESH"
	StateSpotPass    State = "SPOT_PASS"
	StateFuturesPass State = "FUTURES_PASS"
	StateIdle        State = "IDLE"
)

const (
	EventRefreshed Event = "REFRESHED"
	EventSpotDone  Event = "SPOT_DONE"
	EventPerpDone  Event = "PERP_DONE"
	EventWake      Event = "WAKE"
	// EventAbort drops a cycle that could not refresh straight to IDLE.
	EventAbort Event = "ABORT"
)

type Action string

const (
	ActionHold Action = "HOLD"
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
)

func (a Action) IsBuy() bool { return a == ActionBuy }
