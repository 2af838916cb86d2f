package queue

import "errors"

var (
	// ErrSessionNotFound is returned when a session id or day key resolves to nothing.
	ErrSessionNotFound = errors.New("session not found")

	// ErrTokenNotFound is returned when a token is absent or belongs to another session.
	ErrTokenNotFound = errors.New("token not found")

	// ErrSessionClosed is returned when booking or serving against a closed session.
	ErrSessionClosed = errors.New("session is closed")

	// ErrPlannedLeave is returned when a session exists but bookings are disabled for the day.
	ErrPlannedLeave = errors.New("planned leave: bookings disabled")

	// ErrInvalidSlot is returned when a slot index does not refer to a bookable slot.
	ErrInvalidSlot = errors.New("invalid slot index")

	// ErrSlotOccupied is returned when the requested slot is held by an active token.
	ErrSlotOccupied = errors.New("slot already booked")

	// ErrDuplicateTokenNo is returned when a write would issue a token number
	// the session has already issued.
	ErrDuplicateTokenNo = errors.New("token number already issued")

	// ErrNoFreeSlot is returned when a skipped token cannot be re-slotted anywhere.
	ErrNoFreeSlot = errors.New("no free slot available")

	// ErrInvalidMinutes is returned when an emergency delay is outside the allowed 5-60 range.
	ErrInvalidMinutes = errors.New("emergency minutes must be between 5 and 60")

	// ErrUnknownEventType is returned when a replayed event names no known action.
	ErrUnknownEventType = errors.New("unknown event type")
)
