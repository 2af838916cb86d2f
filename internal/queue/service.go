package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/auramed/opd-queue/internal/locker"
	"github.com/auramed/opd-queue/internal/observability/metrics"
	"github.com/auramed/opd-queue/internal/timemath"
	"github.com/auramed/opd-queue/pkg/logging"
)

var queueTracer = otel.Tracer("opd.internal.queue")

const upcomingLimit = 12

// SessionDefaults is the working-window configuration applied when a day
// session is created on first contact.
type SessionDefaults struct {
	StartTimeLocal          string
	EndTimeLocal            string
	SlotMinutes             int
	MicroBufferMinutes      int
	BreakEveryN             int
	BreakMinutes            int
	EmergencyReserveMinutes int
}

// ServiceConfig wires the orchestrator's dependencies.
type ServiceConfig struct {
	Repo     Repository
	Locks    locker.SessionLocker
	Notifier Notifier
	Alerts   StaffAlerter
	Metrics  *metrics.QueueMetrics
	Defaults SessionDefaults
	Logger   *logging.Logger
}

// Service is the queue orchestrator. Every public operation locks the
// session it touches for its full duration, so read-then-write sequences
// (dedup checks, token numbering, slot conflicts, serve-next selection)
// never interleave for the same session.
type Service struct {
	repo     Repository
	locks    locker.SessionLocker
	notifier Notifier
	alerts   StaffAlerter
	metrics  *metrics.QueueMetrics
	defaults SessionDefaults
	logger   *logging.Logger
	now      func() time.Time
}

// NewService constructs the queue orchestrator.
func NewService(cfg ServiceConfig) *Service {
	if cfg.Repo == nil {
		panic("queue: repository required")
	}
	if cfg.Locks == nil {
		cfg.Locks = locker.NewKeyedMutex()
	}
	if cfg.Notifier == nil {
		cfg.Notifier = NopNotifier{}
	}
	if cfg.Alerts == nil {
		cfg.Alerts = NopStaffAlerter{}
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &Service{
		repo:     cfg.Repo,
		locks:    cfg.Locks,
		notifier: cfg.Notifier,
		alerts:   cfg.Alerts,
		metrics:  cfg.Metrics,
		defaults: cfg.Defaults,
		logger:   cfg.Logger,
		now:      time.Now,
	}
}

func (s *Service) observe(op string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	s.metrics.ObserveOperation(op, status, time.Since(start).Seconds())
}

// GetOrCreateSession returns the unique session for a clinic+doctor+day,
// creating it with the configured defaults on first contact. An empty
// dateKey means today.
func (s *Service) GetOrCreateSession(ctx context.Context, clinicID, doctorID, dateKey string) (sess *Session, err error) {
	start := time.Now()
	defer func() { s.observe("get_or_create_session", start, err) }()
	ctx, span := queueTracer.Start(ctx, "queue.get_or_create_session")
	defer span.End()

	if dateKey == "" {
		dateKey = timemath.DateKey(s.now())
	}
	span.SetAttributes(attribute.String("opd.date_key", dateKey))

	sess, err = s.repo.GetSessionByDay(ctx, clinicID, doctorID, dateKey)
	if err == nil {
		return sess, nil
	}
	if !errors.Is(err, ErrSessionNotFound) {
		span.RecordError(err)
		return nil, err
	}

	sess = &Session{
		ClinicID:                clinicID,
		DoctorID:                doctorID,
		DateKey:                 dateKey,
		StartTimeLocal:          s.defaults.StartTimeLocal,
		EndTimeLocal:            s.defaults.EndTimeLocal,
		SlotMinutes:             s.defaults.SlotMinutes,
		MicroBufferMinutes:      s.defaults.MicroBufferMinutes,
		BreakEveryN:             s.defaults.BreakEveryN,
		BreakMinutes:            s.defaults.BreakMinutes,
		EmergencyReserveMinutes: s.defaults.EmergencyReserveMinutes,
	}
	if err = s.repo.CreateSession(ctx, sess); err != nil {
		span.RecordError(err)
		return nil, err
	}
	s.logger.Info("session created", "session_id", sess.ID, "clinic_id", clinicID, "doctor_id", doctorID, "date_key", dateKey)
	return sess, nil
}

// BookRequest carries an intake-classified booking. Urgency and the intake
// summary arrive pre-classified; the orchestrator never interprets
// complaint text itself.
type BookRequest struct {
	SessionID     int64
	Phone         string
	Name          string
	ComplaintText string
	Urgency       string
	IntakeSummary string
}

// BookResult is the outcome of a booking operation.
type BookResult struct {
	Token         *Token        `json:"token"`
	Window        ArrivalWindow `json:"window"`
	AlreadyBooked bool          `json:"already_booked"`
}

// Book assigns the next token number for a phone booking. Booking is
// idempotent per phone per session: an existing active token is returned
// unchanged with a freshly computed window.
func (s *Service) Book(ctx context.Context, req BookRequest) (res *BookResult, err error) {
	start := time.Now()
	defer func() { s.observe("book", start, err) }()
	ctx, span := queueTracer.Start(ctx, "queue.book")
	defer span.End()
	span.SetAttributes(attribute.Int64("opd.session_id", req.SessionID))

	unlock, err := s.locks.Lock(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	sess, err := s.repo.GetSession(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	if sess.PlannedLeave {
		s.metrics.ObserveBooking("phone", "leave")
		return nil, ErrPlannedLeave
	}
	if sess.UnplannedClosed {
		s.metrics.ObserveBooking("phone", "closed")
		return nil, ErrSessionClosed
	}

	phone := strings.TrimSpace(req.Phone)
	now := s.now()

	existing, err := s.repo.FindActiveByPhone(ctx, sess.ID, phone)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if existing != nil {
		s.metrics.ObserveBooking("phone", "deduped")
		return &BookResult{
			Token:         existing,
			Window:        s.windowFor(sess, existing, now),
			AlreadyBooked: true,
		}, nil
	}

	maxNo, err := s.repo.MaxTokenNo(ctx, sess.ID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	token := &Token{
		SessionID:         sess.ID,
		TokenNo:           maxNo + 1,
		Phone:             phone,
		Name:              strings.TrimSpace(req.Name),
		Urgency:           req.Urgency,
		ComplaintText:     strings.TrimSpace(req.ComplaintText),
		IntakeSummary:     req.IntakeSummary,
		State:             StateBooked,
		BookedAt:          now,
		LastStateChangeAt: now,
	}
	if err = s.repo.CreateToken(ctx, token); err != nil {
		span.RecordError(err)
		return nil, err
	}

	window := s.windowFor(sess, token, now)
	s.metrics.ObserveBooking("phone", "created")
	s.logger.Info("token booked", "session_id", sess.ID, "token_id", token.ID, "token_no", token.TokenNo, "urgency", token.Urgency)

	s.notifier.Notify(ctx, token.Phone, MessageConfirmation, "Token confirmed",
		confirmationMessage(token.TokenNo, timemath.FormatClock(window.Start), timemath.FormatClock(window.End)))

	return &BookResult{Token: token, Window: window}, nil
}

// BookSlotRequest books a specific slot from the day plan.
type BookSlotRequest struct {
	SessionID     int64
	SlotIndex     int
	Phone         string
	Name          string
	ComplaintText string
	Urgency       string
	IntakeSummary string
}

// BookSlot validates the slot against the day plan and any active holder,
// then books it. The token number is derived from the slot index.
func (s *Service) BookSlot(ctx context.Context, req BookSlotRequest) (res *BookResult, err error) {
	start := time.Now()
	defer func() { s.observe("book_slot", start, err) }()
	ctx, span := queueTracer.Start(ctx, "queue.book_slot")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("opd.session_id", req.SessionID),
		attribute.Int("opd.slot_index", req.SlotIndex),
	)

	unlock, err := s.locks.Lock(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	sess, err := s.repo.GetSession(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	if sess.PlannedLeave {
		s.metrics.ObserveBooking("slot", "leave")
		return nil, ErrPlannedLeave
	}
	if sess.UnplannedClosed {
		s.metrics.ObserveBooking("slot", "closed")
		return nil, ErrSessionClosed
	}

	phone := strings.TrimSpace(req.Phone)
	now := s.now()

	existing, err := s.repo.FindActiveByPhone(ctx, sess.ID, phone)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		s.metrics.ObserveBooking("slot", "deduped")
		return &BookResult{
			Token:         existing,
			Window:        s.windowFor(sess, existing, now),
			AlreadyBooked: true,
		}, nil
	}

	plan := PlanSlots(sess.Config())
	if _, ok := FindSlot(plan, req.SlotIndex); !ok {
		s.metrics.ObserveBooking("slot", "invalid")
		return nil, ErrInvalidSlot
	}

	active, err := s.repo.ListInStates(ctx, sess.ID, ActiveStates, 0)
	if err != nil {
		return nil, err
	}
	for _, t := range active {
		if t.SlotIndex != nil && *t.SlotIndex == req.SlotIndex {
			s.metrics.ObserveBooking("slot", "conflict")
			return nil, ErrSlotOccupied
		}
	}

	// The derived number must be free too: a phone booking may have reached
	// it first, and token numbers are unique per session.
	issued, err := s.repo.IssuedTokenNos(ctx, sess.ID)
	if err != nil {
		return nil, err
	}
	for _, no := range issued {
		if no == req.SlotIndex+1 {
			s.metrics.ObserveBooking("slot", "conflict")
			return nil, ErrSlotOccupied
		}
	}

	slotIndex := req.SlotIndex
	token := &Token{
		SessionID:         sess.ID,
		TokenNo:           slotIndex + 1,
		SlotIndex:         &slotIndex,
		Phone:             phone,
		Name:              strings.TrimSpace(req.Name),
		Urgency:           req.Urgency,
		ComplaintText:     strings.TrimSpace(req.ComplaintText),
		IntakeSummary:     req.IntakeSummary,
		State:             StateBooked,
		BookedAt:          now,
		LastStateChangeAt: now,
	}
	if err = s.repo.CreateToken(ctx, token); err != nil {
		span.RecordError(err)
		return nil, err
	}

	window := s.windowFor(sess, token, now)
	s.metrics.ObserveBooking("slot", "created")
	s.logger.Info("slot booked", "session_id", sess.ID, "token_id", token.ID, "slot_index", slotIndex)

	s.notifier.Notify(ctx, token.Phone, MessageConfirmation, "Token confirmed",
		confirmationMessage(token.TokenNo, timemath.FormatClock(window.Start), timemath.FormatClock(window.End)))

	return &BookResult{Token: token, Window: window}, nil
}

// WalkinRequest registers a patient who is physically present.
type WalkinRequest struct {
	SessionID     int64
	Phone         string
	Name          string
	ComplaintText string
	Urgency       string
}

// Walkin creates a token that starts in ARRIVED, bypassing the booked
// stage. Staff supply the urgency directly.
func (s *Service) Walkin(ctx context.Context, req WalkinRequest) (tok *Token, err error) {
	start := time.Now()
	defer func() { s.observe("walkin", start, err) }()
	ctx, span := queueTracer.Start(ctx, "queue.walkin")
	defer span.End()

	unlock, err := s.locks.Lock(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	sess, err := s.repo.GetSession(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	if sess.Closed() {
		return nil, ErrSessionClosed
	}

	maxNo, err := s.repo.MaxTokenNo(ctx, sess.ID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	arrivedAt := now
	token := &Token{
		SessionID:         sess.ID,
		TokenNo:           maxNo + 1,
		Phone:             strings.TrimSpace(req.Phone),
		Name:              strings.TrimSpace(req.Name),
		Urgency:           req.Urgency,
		ComplaintText:     strings.TrimSpace(req.ComplaintText),
		IntakeSummary:     "Walk-in added by staff. No diagnosis provided.",
		State:             StateArrived,
		BookedAt:          now,
		ArrivedAt:         &arrivedAt,
		LastStateChangeAt: now,
	}
	if err = s.repo.CreateToken(ctx, token); err != nil {
		span.RecordError(err)
		return nil, err
	}
	s.logger.Info("walk-in registered", "session_id", sess.ID, "token_id", token.ID, "token_no", token.TokenNo)
	return token, nil
}

// MarkArrived transitions a token to ARRIVED. Terminal tokens are left
// untouched; the call still succeeds.
func (s *Service) MarkArrived(ctx context.Context, tokenID int64) (tok *Token, err error) {
	start := time.Now()
	defer func() { s.observe("mark_arrived", start, err) }()
	ctx, span := queueTracer.Start(ctx, "queue.mark_arrived")
	defer span.End()

	token, err := s.repo.GetToken(ctx, tokenID)
	if err != nil {
		return nil, err
	}

	unlock, err := s.locks.Lock(ctx, token.SessionID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	// Re-read under the lock; the first read was only to learn the session.
	token, err = s.repo.GetToken(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	if token.Arrive(s.now()) {
		if err = s.repo.UpdateToken(ctx, token); err != nil {
			span.RecordError(err)
			return nil, err
		}
	}
	return token, nil
}

// ServeNextResult reports what a queue advance did. Served is nil when no
// one was called; Note explains why (empty queue, or a never-arrived
// patient was skipped and the caller should advance again).
type ServeNextResult struct {
	Served    *Token `json:"served,omitempty"`
	Completed *Token `json:"completed,omitempty"`
	Note      string `json:"note,omitempty"`
}

// ServeNext completes the currently serving token, then calls the next
// eligible one. A next-up token that never arrived is skipped instead of
// served; the caller invokes ServeNext again to actually advance.
func (s *Service) ServeNext(ctx context.Context, sessionID int64) (res *ServeNextResult, err error) {
	start := time.Now()
	defer func() { s.observe("serve_next", start, err) }()
	ctx, span := queueTracer.Start(ctx, "queue.serve_next")
	defer span.End()
	span.SetAttributes(attribute.Int64("opd.session_id", sessionID))

	unlock, err := s.locks.Lock(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	sess, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.UnplannedClosed {
		return nil, ErrSessionClosed
	}

	now := s.now()
	result := &ServeNextResult{}

	current, err := s.repo.FirstInStates(ctx, sessionID, []TokenState{StateServing})
	if err != nil {
		return nil, err
	}
	if current != nil {
		current.Complete(now)
		if err = s.repo.UpdateToken(ctx, current); err != nil {
			span.RecordError(err)
			return nil, err
		}
		result.Completed = current
		s.notifier.Notify(ctx, current.Phone, MessageCompleted, "Visit complete", completedMessage())
	}

	next, err := s.repo.FirstInStates(ctx, sessionID, EligibleStates)
	if err != nil {
		return nil, err
	}
	if next == nil {
		return result, nil
	}

	if next.State == StateBooked {
		// Never arrived: push them back instead of serving an empty chair.
		s.reslotOrRenumber(ctx, sess, next)
		next.MarkSkipped(now)
		if err = s.repo.UpdateToken(ctx, next); err != nil {
			span.RecordError(err)
			return nil, err
		}
		result.Note = "next token not arrived; skipped"
		s.logger.Info("serve-next skipped unarrived token", "session_id", sessionID, "token_id", next.ID, "token_no", next.TokenNo)
		return result, nil
	}

	next.BeginServing(now)
	if err = s.repo.UpdateToken(ctx, next); err != nil {
		span.RecordError(err)
		return nil, err
	}
	result.Served = next
	s.logger.Info("serving token", "session_id", sessionID, "token_id", next.ID, "token_no", next.TokenNo)
	return result, nil
}

// Skip pushes a token back in the queue: slot-based tokens move to the next
// free slot, number-based tokens move to the back of the line. Terminal
// tokens are untouched. A slot-based token that cannot be placed anywhere
// fails with ErrNoFreeSlot and no mutation.
func (s *Service) Skip(ctx context.Context, sessionID, tokenID int64) (tok *Token, err error) {
	start := time.Now()
	defer func() { s.observe("skip", start, err) }()
	ctx, span := queueTracer.Start(ctx, "queue.skip")
	defer span.End()

	unlock, err := s.locks.Lock(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	sess, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	token, err := s.sessionToken(ctx, sessionID, tokenID)
	if err != nil {
		return nil, err
	}
	if token.State.Terminal() {
		return token, nil
	}

	if token.SlotIndex != nil {
		newIndex, err := s.freeSlotAfter(ctx, sess, token)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		token.SlotIndex = &newIndex
		token.TokenNo = newIndex + 1
	} else {
		maxNo, err := s.repo.MaxTokenNo(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		token.TokenNo = maxNo + 1
	}

	now := s.now()
	token.MarkSkipped(now)
	if err = s.repo.UpdateToken(ctx, token); err != nil {
		span.RecordError(err)
		return nil, err
	}

	window := s.windowFor(sess, token, now)
	s.logger.Info("token skipped", "session_id", sessionID, "token_id", token.ID, "new_token_no", token.TokenNo)
	s.notifier.Notify(ctx, token.Phone, MessageReslotted, "Queue position changed",
		reslottedMessage(token.TokenNo, timemath.FormatClock(window.Start), timemath.FormatClock(window.End)))
	return token, nil
}

// Cancel transitions a token to CANCELLED from any state. Cancelling an
// already-terminal token succeeds silently.
func (s *Service) Cancel(ctx context.Context, sessionID, tokenID int64) (tok *Token, err error) {
	start := time.Now()
	defer func() { s.observe("cancel", start, err) }()
	ctx, span := queueTracer.Start(ctx, "queue.cancel")
	defer span.End()

	unlock, err := s.locks.Lock(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	token, err := s.sessionToken(ctx, sessionID, tokenID)
	if err != nil {
		return nil, err
	}
	if token.Cancel(s.now()) {
		if err = s.repo.UpdateToken(ctx, token); err != nil {
			span.RecordError(err)
			return nil, err
		}
		s.logger.Info("token cancelled", "session_id", sessionID, "token_id", token.ID)
	}
	return token, nil
}

// TriggerEmergency adds minutes (5-60) to the session's emergency debt.
// A single injection above 30 minutes alerts every waiting patient.
func (s *Service) TriggerEmergency(ctx context.Context, sessionID int64, minutes int) (debt int, err error) {
	start := time.Now()
	defer func() { s.observe("emergency", start, err) }()
	ctx, span := queueTracer.Start(ctx, "queue.emergency")
	defer span.End()
	span.SetAttributes(attribute.Int("opd.emergency_minutes", minutes))

	if minutes < 5 || minutes > 60 {
		return 0, ErrInvalidMinutes
	}

	unlock, err := s.locks.Lock(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	defer unlock()

	sess, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		return 0, err
	}

	sess.EmergencyDebtMinutes += minutes
	if err = s.repo.UpdateSession(ctx, sess); err != nil {
		span.RecordError(err)
		return 0, err
	}
	s.metrics.AddEmergencyMinutes(minutes)
	s.logger.Warn("emergency delay injected", "session_id", sessionID, "minutes", minutes, "debt", sess.EmergencyDebtMinutes)

	if minutes > 30 {
		s.alerts.StaffAlert(ctx, "Major emergency delay",
			fmt.Sprintf("Session %d: %d-minute emergency delay injected (debt now %d minutes). Waiting patients are being notified.",
				sessionID, minutes, sess.EmergencyDebtMinutes))
		active, err := s.repo.ListInStates(ctx, sessionID, ActiveStates, 0)
		if err != nil {
			return sess.EmergencyDebtMinutes, nil
		}
		body := delayMessage(minutes)
		for _, t := range active {
			s.notifier.Notify(ctx, t.Phone, MessageDelay, "Possible delay", body)
		}
	}

	return sess.EmergencyDebtMinutes, nil
}

// CloseSession terminates the session early: it flags the session closed,
// cancels every non-terminal token, and notifies each cancelled patient.
// Returns the number of tokens cancelled.
func (s *Service) CloseSession(ctx context.Context, sessionID int64) (cancelled int, err error) {
	start := time.Now()
	defer func() { s.observe("close_session", start, err) }()
	ctx, span := queueTracer.Start(ctx, "queue.close_session")
	defer span.End()

	unlock, err := s.locks.Lock(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	defer unlock()

	sess, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		return 0, err
	}

	sess.UnplannedClosed = true
	if err = s.repo.UpdateSession(ctx, sess); err != nil {
		span.RecordError(err)
		return 0, err
	}

	active, err := s.repo.ListInStates(ctx, sessionID, ActiveStates, 0)
	if err != nil {
		return 0, err
	}

	now := s.now()
	body := sessionCancelledMessage()
	for _, t := range active {
		t.Cancel(now)
		if err = s.repo.UpdateToken(ctx, t); err != nil {
			span.RecordError(err)
			return cancelled, err
		}
		cancelled++
		if t.Phone != "" {
			s.notifier.Notify(ctx, t.Phone, MessageCancelled, "Session closed", body)
		}
	}

	s.logger.Warn("session closed early", "session_id", sessionID, "cancelled", cancelled)
	s.alerts.StaffAlert(ctx, "OPD session closed early",
		fmt.Sprintf("Session %d (%s) was closed early; %d waiting tokens were cancelled and notified.",
			sessionID, sess.DateKey, cancelled))
	return cancelled, nil
}

// QueueState is the live read model shown on clinic displays.
type QueueState struct {
	SessionID int64      `json:"session_id"`
	Now       time.Time  `json:"now"`
	Serving   *Token     `json:"serving,omitempty"`
	Upcoming  []*Token   `json:"upcoming"`
	Stats     QueueStats `json:"stats"`
}

// QueueStats summarizes session health for the display board.
type QueueStats struct {
	EmergencyDebtMinutes int  `json:"emergency_debt_minutes"`
	UnplannedClosed      bool `json:"unplanned_closed"`
	PlannedLeave         bool `json:"planned_leave"`
}

// State returns the serving token, the next waiting tokens in serving
// order, and session stats.
func (s *Service) State(ctx context.Context, sessionID int64) (st *QueueState, err error) {
	start := time.Now()
	defer func() { s.observe("state", start, err) }()
	ctx, span := queueTracer.Start(ctx, "queue.state")
	defer span.End()

	sess, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	serving, err := s.repo.FirstInStates(ctx, sessionID, []TokenState{StateServing})
	if err != nil {
		return nil, err
	}
	upcoming, err := s.repo.ListInStates(ctx, sessionID, EligibleStates, upcomingLimit)
	if err != nil {
		return nil, err
	}

	return &QueueState{
		SessionID: sessionID,
		Now:       s.now(),
		Serving:   serving,
		Upcoming:  upcoming,
		Stats: QueueStats{
			EmergencyDebtMinutes: sess.EmergencyDebtMinutes,
			UnplannedClosed:      sess.UnplannedClosed,
			PlannedLeave:         sess.PlannedLeave,
		},
	}, nil
}

// SlotView is one entry of the day plan with its booked status.
type SlotView struct {
	Kind    SlotEntryKind `json:"kind"`
	Index   int           `json:"index"`
	Start   string        `json:"start"`
	End     string        `json:"end"`
	Booked  bool          `json:"booked"`
	TokenNo int           `json:"token_no,omitempty"`
}

// SlotBoard returns the day plan with occupancy computed by intersecting
// active tokens' slot indices against the planned sequence.
func (s *Service) SlotBoard(ctx context.Context, sessionID int64) (views []SlotView, err error) {
	start := time.Now()
	defer func() { s.observe("slot_board", start, err) }()
	ctx, span := queueTracer.Start(ctx, "queue.slot_board")
	defer span.End()

	sess, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	active, err := s.repo.ListInStates(ctx, sessionID, ActiveStates, 0)
	if err != nil {
		return nil, err
	}

	held := make(map[int]int) // slot index -> token number
	for _, t := range active {
		if t.SlotIndex != nil {
			held[*t.SlotIndex] = t.TokenNo
		}
	}

	plan := PlanSlots(sess.Config())
	views = make([]SlotView, 0, len(plan))
	for _, e := range plan {
		v := SlotView{
			Kind:  e.Kind,
			Index: e.Index,
			Start: timemath.FormatMinutes(e.Start),
			End:   timemath.FormatMinutes(e.End),
		}
		if e.Kind == EntrySlot {
			if no, ok := held[e.Index]; ok {
				v.Booked = true
				v.TokenNo = no
			}
		}
		views = append(views, v)
	}
	return views, nil
}

// Window recomputes a token's arrival window for idempotent re-display.
func (s *Service) Window(ctx context.Context, sessionID, tokenID int64) (w ArrivalWindow, err error) {
	sess, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		return ArrivalWindow{}, err
	}
	token, err := s.sessionToken(ctx, sessionID, tokenID)
	if err != nil {
		return ArrivalWindow{}, err
	}
	return s.windowFor(sess, token, s.now()), nil
}

func (s *Service) sessionToken(ctx context.Context, sessionID, tokenID int64) (*Token, error) {
	token, err := s.repo.GetToken(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	if token.SessionID != sessionID {
		return nil, ErrTokenNotFound
	}
	return token, nil
}

// windowFor picks the position index for estimation: the slot index for
// slot-based tokens, otherwise the zero-based token number rank.
func (s *Service) windowFor(sess *Session, t *Token, now time.Time) ArrivalWindow {
	position := t.TokenNo - 1
	if t.SlotIndex != nil {
		position = *t.SlotIndex
	}
	if position < 0 {
		position = 0
	}
	return ComputeArrivalWindow(sess.Config(), position, now)
}

// freeSlotAfter finds the earliest free slot strictly after the token's
// current slot, falling back to the earliest free slot anywhere. A slot is
// taken when another active token holds it, or when its derived token
// number has already been issued to someone else.
func (s *Service) freeSlotAfter(ctx context.Context, sess *Session, token *Token) (int, error) {
	active, err := s.repo.ListInStates(ctx, sess.ID, ActiveStates, 0)
	if err != nil {
		return 0, err
	}
	taken := make(map[int]bool)
	for _, t := range active {
		if t.ID == token.ID {
			continue
		}
		if t.SlotIndex != nil {
			taken[*t.SlotIndex] = true
		}
	}

	issued, err := s.repo.IssuedTokenNos(ctx, sess.ID)
	if err != nil {
		return 0, err
	}
	for _, no := range issued {
		if no != token.TokenNo {
			taken[no-1] = true
		}
	}

	current := -1
	if token.SlotIndex != nil {
		current = *token.SlotIndex
	}

	plan := PlanSlots(sess.Config())
	fallback := -1
	for _, e := range plan {
		if e.Kind != EntrySlot || taken[e.Index] {
			continue
		}
		if e.Index > current {
			return e.Index, nil
		}
		if fallback == -1 && e.Index != current {
			fallback = e.Index
		}
	}
	if fallback >= 0 {
		return fallback, nil
	}
	return 0, ErrNoFreeSlot
}

// reslotOrRenumber applies the skip placement policy without failing the
// caller: slot-based tokens move to the next free slot when one exists
// (keeping their place when the plan is full), number-based tokens go to
// the back of the line.
func (s *Service) reslotOrRenumber(ctx context.Context, sess *Session, token *Token) {
	if token.SlotIndex != nil {
		if newIndex, err := s.freeSlotAfter(ctx, sess, token); err == nil {
			token.SlotIndex = &newIndex
			token.TokenNo = newIndex + 1
		}
		return
	}
	if maxNo, err := s.repo.MaxTokenNo(ctx, sess.ID); err == nil {
		token.TokenNo = maxNo + 1
	}
}
