package queue

import "time"

// Transition helpers for the token lifecycle. Each timestamp is set at most
// once; LastStateChangeAt updates on every applied transition. Terminal
// states absorb every event as a silent no-op, so replays and duplicate
// client submissions converge instead of erroring.

func (t *Token) touch(state TokenState, now time.Time) {
	t.State = state
	t.LastStateChangeAt = now
}

// Arrive moves the token to ARRIVED. Returns false when the token is
// terminal and nothing changed.
func (t *Token) Arrive(now time.Time) bool {
	if t.State.Terminal() {
		return false
	}
	if t.ArrivedAt == nil {
		at := now
		t.ArrivedAt = &at
	}
	t.touch(StateArrived, now)
	return true
}

// BeginServing moves the token to SERVING and stamps serving time.
func (t *Token) BeginServing(now time.Time) bool {
	if t.State.Terminal() {
		return false
	}
	if t.ServingAt == nil {
		at := now
		t.ServingAt = &at
	}
	t.touch(StateServing, now)
	return true
}

// Complete moves the token to COMPLETED and stamps completion time.
func (t *Token) Complete(now time.Time) bool {
	if t.State.Terminal() {
		return false
	}
	if t.CompletedAt == nil {
		at := now
		t.CompletedAt = &at
	}
	t.touch(StateCompleted, now)
	return true
}

// MarkSkipped moves the token to SKIPPED. Renumbering and re-slotting are
// the orchestrator's job; this only records the state change.
func (t *Token) MarkSkipped(now time.Time) bool {
	if t.State.Terminal() {
		return false
	}
	t.touch(StateSkipped, now)
	return true
}

// Cancel moves the token to CANCELLED. Accepted from any state; a no-op on
// tokens that already reached a terminal state.
func (t *Token) Cancel(now time.Time) bool {
	if t.State.Terminal() {
		return false
	}
	t.touch(StateCancelled, now)
	return true
}
