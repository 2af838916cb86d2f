package queue

import "time"

// TokenState is the lifecycle state of a patient's queue token.
type TokenState string

const (
	StateBooked    TokenState = "BOOKED"
	StateArrived   TokenState = "ARRIVED"
	StateServing   TokenState = "SERVING"
	StateSkipped   TokenState = "SKIPPED"
	StateCancelled TokenState = "CANCELLED"
	StateCompleted TokenState = "COMPLETED"
)

// Terminal reports whether the state accepts no further transitions.
func (s TokenState) Terminal() bool {
	return s == StateCancelled || s == StateCompleted
}

// ActiveStates are the states that occupy a queue position. A phone or a
// slot index may be held by at most one token in these states per session.
var ActiveStates = []TokenState{StateBooked, StateArrived, StateServing, StateSkipped}

// EligibleStates are the states considered by serve-next selection,
// ordered by token number.
var EligibleStates = []TokenState{StateArrived, StateBooked, StateSkipped}

// Session is one clinic+doctor's bookable day.
type Session struct {
	ID       int64  `json:"id"`
	ClinicID string `json:"clinic_id"`
	DoctorID string `json:"doctor_id"`
	DateKey  string `json:"date_key"`

	StartTimeLocal string `json:"start_time_local"`
	EndTimeLocal   string `json:"end_time_local"`

	SlotMinutes             int `json:"slot_minutes"`
	MicroBufferMinutes      int `json:"micro_buffer_minutes"`
	BreakEveryN             int `json:"break_every_n"`
	BreakMinutes            int `json:"break_minutes"`
	EmergencyReserveMinutes int `json:"emergency_reserve_minutes"`

	PlannedLeave    bool `json:"planned_leave"`
	UnplannedClosed bool `json:"unplanned_closed"`

	// EmergencyDebtMinutes only ever grows; the reserve absorbs it
	// conceptually inside the estimator, never by mutation here.
	EmergencyDebtMinutes int `json:"emergency_debt_minutes"`

	CreatedAt time.Time `json:"created_at"`
}

// Closed reports whether the session accepts new bookings.
func (s *Session) Closed() bool {
	return s.PlannedLeave || s.UnplannedClosed
}

// Config returns the planner/estimator view of the session. The estimator
// and slot planner only ever see this value type, never a storage row.
func (s *Session) Config() SessionConfig {
	return SessionConfig{
		StartTimeLocal:          s.StartTimeLocal,
		EndTimeLocal:            s.EndTimeLocal,
		SlotMinutes:             s.SlotMinutes,
		MicroBufferMinutes:      s.MicroBufferMinutes,
		BreakEveryN:             s.BreakEveryN,
		BreakMinutes:            s.BreakMinutes,
		EmergencyReserveMinutes: s.EmergencyReserveMinutes,
		EmergencyDebtMinutes:    s.EmergencyDebtMinutes,
	}
}

// SessionConfig is the immutable configuration slice of a session consumed
// by the slot planner and the arrival estimator.
type SessionConfig struct {
	StartTimeLocal          string
	EndTimeLocal            string
	SlotMinutes             int
	MicroBufferMinutes      int
	BreakEveryN             int
	BreakMinutes            int
	EmergencyReserveMinutes int
	EmergencyDebtMinutes    int
}

// Token is one patient's queue entry within a session. Token numbers define
// serving order and are unique per session; they are never reused.
type Token struct {
	ID        int64 `json:"id"`
	SessionID int64 `json:"session_id"`

	TokenNo int `json:"token_no"`
	// SlotIndex is set for slot-based bookings only.
	SlotIndex *int `json:"slot_index,omitempty"`

	Phone         string `json:"phone"`
	Name          string `json:"name"`
	Urgency       string `json:"urgency"`
	ComplaintText string `json:"complaint_text"`
	IntakeSummary string `json:"intake_summary"`

	State TokenState `json:"state"`

	BookedAt          time.Time  `json:"booked_at"`
	ArrivedAt         *time.Time `json:"arrived_at,omitempty"`
	ServingAt         *time.Time `json:"serving_at,omitempty"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
	LastStateChangeAt time.Time  `json:"last_state_change_at"`
}

// ClientEvent is an append-only replay-log entry. The (client_id, event_id)
// pair is globally unique; a duplicate insert is a no-op, not an error.
type ClientEvent struct {
	ID          int64     `json:"id"`
	SessionID   int64     `json:"session_id"`
	ClientID    string    `json:"client_id"`
	EventID     string    `json:"event_id"`
	EventType   string    `json:"event_type"`
	PayloadJSON string    `json:"payload_json"`
	CreatedAt   time.Time `json:"created_at"`
}

// OutboundMessage kinds recorded against the notification outbox.
const (
	MessageConfirmation = "CONFIRMATION"
	MessageDelay        = "DELAY"
	MessageCancelled    = "CANCELLED"
	MessageReslotted    = "RESLOTTED"
	MessageCompleted    = "COMPLETED"
)
