package capture

import "testing"

func TestSupervisorTransitions(t *testing.T) {
	sv := newSupervisor(3)
	if sv.state != StateIdle {
		t.Fatalf("initial state = %s, want idle", sv.state)
	}

	sv.begin()
	if sv.state != StateMonitoring {
		t.Fatalf("state after begin = %s, want monitoring", sv.state)
	}
	if sv.retriesUsed() != 0 {
		t.Fatalf("retriesUsed = %d, want 0", sv.retriesUsed())
	}

	// Three attempts consume the whole budget, one unit each.
	for i := 1; i <= 3; i++ {
		if !sv.consumeRetry() {
			t.Fatalf("consumeRetry %d = false, budget should allow it", i)
		}
		if sv.state != StateRecovering {
			t.Fatalf("state = %s, want recovering", sv.state)
		}
		if sv.retriesUsed() != i {
			t.Fatalf("retriesUsed = %d, want %d", sv.retriesUsed(), i)
		}
	}

	// The fourth attempt fails terminally.
	if sv.consumeRetry() {
		t.Fatal("consumeRetry with empty budget = true, want false")
	}
	if sv.state != StateFailed {
		t.Fatalf("state = %s, want failed", sv.state)
	}

	// Failed is terminal: no further consumption, no decrement.
	if sv.consumeRetry() {
		t.Fatal("consumeRetry after Failed = true")
	}
	if sv.retriesUsed() != 3 {
		t.Fatalf("retriesUsed after Failed = %d, want 3", sv.retriesUsed())
	}
}

func TestSupervisorRecoveredResumesMonitoring(t *testing.T) {
	sv := newSupervisor(3)
	sv.begin()

	sv.consumeRetry()
	sv.recovered()
	if sv.state != StateMonitoring {
		t.Fatalf("state = %s, want monitoring", sv.state)
	}
	if sv.retriesUsed() != 1 {
		t.Fatalf("retriesUsed = %d, want 1 (budget does not refill on recovery)", sv.retriesUsed())
	}

	// Only begin refills the budget.
	sv.begin()
	if sv.retriesUsed() != 0 {
		t.Fatalf("retriesUsed after begin = %d, want 0", sv.retriesUsed())
	}
}

func TestSupervisorZeroBudget(t *testing.T) {
	sv := newSupervisor(0)
	sv.begin()
	if sv.consumeRetry() {
		t.Fatal("consumeRetry with zero ceiling = true, want immediate failure")
	}
	if sv.state != StateFailed {
		t.Fatalf("state = %s, want failed", sv.state)
	}
}

func TestSupervisorStateString(t *testing.T) {
	for st, want := range map[SupervisorState]string{
		StateIdle:       "idle",
		StateMonitoring: "monitoring",
		StateRecovering: "recovering",
		StateFailed:     "failed",
	} {
		if got := st.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", st, got, want)
		}
	}
}
