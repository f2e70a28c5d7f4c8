package capture

// SupervisorState is the recovery state machine's current state.
type SupervisorState int

const (
	StateIdle SupervisorState = iota
	StateMonitoring
	StateRecovering
	StateFailed
)

func (s SupervisorState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateMonitoring:
		return "monitoring"
	case StateRecovering:
		return "recovering"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// FailureKind names the fault that pushed the supervisor into recovery.
type FailureKind string

const (
	FailureTrack   FailureKind = "track"
	FailureEncoder FailureKind = "encoder"
	FailureStall   FailureKind = "stall"
)

// supervisor holds the recovery state machine and the bounded retry budget.
// All transitions happen on the session's run goroutine; no locking needed.
//
//	Idle → Monitoring        begin (recording started, budget refilled)
//	Monitoring → Recovering  consumeRetry (one budget unit per attempt)
//	Recovering → Monitoring  recovered
//	Recovering → Failed      consumeRetry with an empty budget
type supervisor struct {
	state       SupervisorState
	maxRetries  int
	retriesLeft int
}

func newSupervisor(maxRetries int) *supervisor {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &supervisor{state: StateIdle, maxRetries: maxRetries, retriesLeft: maxRetries}
}

// begin enters Monitoring with a full retry budget. Only a brand-new
// recording session refills the budget.
func (sv *supervisor) begin() {
	sv.state = StateMonitoring
	sv.retriesLeft = sv.maxRetries
}

// consumeRetry attempts to enter (or stay in) Recovering, spending one budget
// unit. Returns false when the budget is exhausted, transitioning to the
// terminal Failed state instead.
func (sv *supervisor) consumeRetry() bool {
	if sv.state == StateFailed {
		return false
	}
	if sv.retriesLeft <= 0 {
		sv.state = StateFailed
		return false
	}
	sv.retriesLeft--
	sv.state = StateRecovering
	return true
}

// recovered returns to Monitoring after a successful reacquire+rebind.
func (sv *supervisor) recovered() {
	sv.state = StateMonitoring
}

// retriesUsed reports how many budget units the session has spent.
func (sv *supervisor) retriesUsed() int {
	return sv.maxRetries - sv.retriesLeft
}
