package queue

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/auramed/opd-queue/internal/timemath"
	"github.com/auramed/opd-queue/pkg/logging"
)

// IntakeClassifier triages free-text complaints before booking. The queue
// layer never inspects complaint text itself.
type IntakeClassifier interface {
	Classify(complaint string) (urgency, summary string)
}

// Handler exposes the queue orchestrator over HTTP.
type Handler struct {
	svc      *Service
	intake   IntakeClassifier
	clinicID string
	doctorID string
	logger   *logging.Logger
}

// NewHandler creates the queue HTTP handler. clinicID/doctorID are the
// deployment's default identity for session lookups that omit them.
func NewHandler(svc *Service, intake IntakeClassifier, clinicID, doctorID string, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{svc: svc, intake: intake, clinicID: clinicID, doctorID: doctorID, logger: logger}
}

type sessionRequest struct {
	ClinicID string `json:"clinic_id"`
	DoctorID string `json:"doctor_id"`
	DateKey  string `json:"date_key"`
}

// GetOrCreateSession handles POST /api/sessions.
func (h *Handler) GetOrCreateSession(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json: "+err.Error(), http.StatusBadRequest)
			return
		}
	}
	if req.ClinicID == "" {
		req.ClinicID = h.clinicID
	}
	if req.DoctorID == "" {
		req.DoctorID = h.doctorID
	}

	sess, err := h.svc.GetOrCreateSession(r.Context(), req.ClinicID, req.DoctorID, req.DateKey)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if sess.PlannedLeave {
		writeJSONStatus(w, http.StatusConflict, map[string]any{
			"session": sess,
			"error":   ErrPlannedLeave.Error(),
		})
		return
	}
	writeJSON(w, map[string]any{"session": sess})
}

// CurrentSession handles GET /api/sessions/current.
func (h *Handler) CurrentSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.svc.GetOrCreateSession(r.Context(), h.clinicID, h.doctorID, "")
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, map[string]any{"session": sess})
}

type bookRequest struct {
	SessionID int64  `json:"session_id"`
	Phone     string `json:"phone"`
	Name      string `json:"name"`
	Complaint string `json:"complaint"`
}

// Book handles POST /api/tokens/book.
func (h *Handler) Book(w http.ResponseWriter, r *http.Request) {
	var req bookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Phone == "" {
		http.Error(w, "phone is required", http.StatusBadRequest)
		return
	}

	urgency, summary := h.classify(req.Complaint)
	res, err := h.svc.Book(r.Context(), BookRequest{
		SessionID:     req.SessionID,
		Phone:         req.Phone,
		Name:          req.Name,
		ComplaintText: req.Complaint,
		Urgency:       urgency,
		IntakeSummary: summary,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, bookResponse(res))
}

type bookSlotRequest struct {
	SessionID int64  `json:"session_id"`
	SlotIndex *int   `json:"slot_index"`
	Phone     string `json:"phone"`
	Name      string `json:"name"`
	Complaint string `json:"complaint"`
}

// BookSlot handles POST /api/tokens/book-slot.
func (h *Handler) BookSlot(w http.ResponseWriter, r *http.Request) {
	var req bookSlotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Phone == "" {
		http.Error(w, "phone is required", http.StatusBadRequest)
		return
	}
	if req.SlotIndex == nil {
		http.Error(w, "slot_index is required", http.StatusBadRequest)
		return
	}

	urgency, summary := h.classify(req.Complaint)
	res, err := h.svc.BookSlot(r.Context(), BookSlotRequest{
		SessionID:     req.SessionID,
		SlotIndex:     *req.SlotIndex,
		Phone:         req.Phone,
		Name:          req.Name,
		ComplaintText: req.Complaint,
		Urgency:       urgency,
		IntakeSummary: summary,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, bookResponse(res))
}

// MarkArrived handles POST /api/tokens/{tokenID}/arrive.
func (h *Handler) MarkArrived(w http.ResponseWriter, r *http.Request) {
	tokenID, err := strconv.ParseInt(chi.URLParam(r, "tokenID"), 10, 64)
	if err != nil {
		http.Error(w, "invalid token id", http.StatusBadRequest)
		return
	}
	token, err := h.svc.MarkArrived(r.Context(), tokenID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, map[string]any{"token": token})
}

// QueueStateView handles GET /api/queue/state?session_id=.
func (h *Handler) QueueStateView(w http.ResponseWriter, r *http.Request) {
	sessionID, err := strconv.ParseInt(r.URL.Query().Get("session_id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid session_id", http.StatusBadRequest)
		return
	}
	state, err := h.svc.State(r.Context(), sessionID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, state)
}

// SlotBoard handles GET /api/sessions/{sessionID}/slots.
func (h *Handler) SlotBoard(w http.ResponseWriter, r *http.Request) {
	sessionID, err := strconv.ParseInt(chi.URLParam(r, "sessionID"), 10, 64)
	if err != nil {
		http.Error(w, "invalid session id", http.StatusBadRequest)
		return
	}
	board, err := h.svc.SlotBoard(r.Context(), sessionID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, map[string]any{"slots": board})
}

type sessionOnlyRequest struct {
	SessionID int64 `json:"session_id"`
}

// ServeNext handles POST /api/queue/serve-next.
func (h *Handler) ServeNext(w http.ResponseWriter, r *http.Request) {
	var req sessionOnlyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json: "+err.Error(), http.StatusBadRequest)
		return
	}
	res, err := h.svc.ServeNext(r.Context(), req.SessionID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, res)
}

type tokenActionRequest struct {
	SessionID int64 `json:"session_id"`
	TokenID   int64 `json:"token_id"`
}

// Skip handles POST /api/queue/skip.
func (h *Handler) Skip(w http.ResponseWriter, r *http.Request) {
	var req tokenActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json: "+err.Error(), http.StatusBadRequest)
		return
	}
	token, err := h.svc.Skip(r.Context(), req.SessionID, req.TokenID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, map[string]any{"token": token})
}

// Cancel handles POST /api/queue/cancel.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	var req tokenActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json: "+err.Error(), http.StatusBadRequest)
		return
	}
	token, err := h.svc.Cancel(r.Context(), req.SessionID, req.TokenID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, map[string]any{"token": token})
}

type walkinRequest struct {
	SessionID int64  `json:"session_id"`
	Phone     string `json:"phone"`
	Name      string `json:"name"`
	Complaint string `json:"complaint"`
	Urgency   string `json:"urgency"`
}

// Walkin handles POST /api/queue/walkin.
func (h *Handler) Walkin(w http.ResponseWriter, r *http.Request) {
	var req walkinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Urgency == "" {
		req.Urgency, _ = h.classify(req.Complaint)
	}
	token, err := h.svc.Walkin(r.Context(), WalkinRequest{
		SessionID:     req.SessionID,
		Phone:         req.Phone,
		Name:          req.Name,
		ComplaintText: req.Complaint,
		Urgency:       req.Urgency,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, map[string]any{"token": token})
}

type emergencyRequest struct {
	SessionID int64 `json:"session_id"`
	Minutes   int   `json:"minutes"`
}

// Emergency handles POST /api/queue/emergency.
func (h *Handler) Emergency(w http.ResponseWriter, r *http.Request) {
	var req emergencyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json: "+err.Error(), http.StatusBadRequest)
		return
	}
	debt, err := h.svc.TriggerEmergency(r.Context(), req.SessionID, req.Minutes)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, map[string]any{"emergency_debt_minutes": debt})
}

// CloseSession handles POST /api/sessions/{sessionID}/close.
func (h *Handler) CloseSession(w http.ResponseWriter, r *http.Request) {
	sessionID, err := strconv.ParseInt(chi.URLParam(r, "sessionID"), 10, 64)
	if err != nil {
		http.Error(w, "invalid session id", http.StatusBadRequest)
		return
	}
	cancelled, err := h.svc.CloseSession(r.Context(), sessionID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, map[string]any{"cancelled": cancelled})
}

type bulkEventsRequest struct {
	SessionID int64         `json:"session_id"`
	ClientID  string        `json:"client_id"`
	Events    []ReplayEvent `json:"events"`
}

// BulkEvents handles POST /api/events/bulk.
func (h *Handler) BulkEvents(w http.ResponseWriter, r *http.Request) {
	var req bulkEventsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.ClientID == "" {
		http.Error(w, "client_id is required", http.StatusBadRequest)
		return
	}
	accepted, err := h.svc.ApplyBatch(r.Context(), req.SessionID, req.ClientID, req.Events)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, map[string]any{"accepted": accepted, "total": len(req.Events)})
}

func (h *Handler) classify(complaint string) (string, string) {
	if h.intake == nil {
		return "", ""
	}
	return h.intake.Classify(complaint)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrSessionNotFound), errors.Is(err, ErrTokenNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrSessionClosed), errors.Is(err, ErrSlotOccupied),
		errors.Is(err, ErrNoFreeSlot), errors.Is(err, ErrPlannedLeave),
		errors.Is(err, ErrDuplicateTokenNo):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, ErrInvalidSlot), errors.Is(err, ErrInvalidMinutes):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		h.logger.Error("queue request failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func bookResponse(res *BookResult) map[string]any {
	return map[string]any{
		"token":          res.Token,
		"already_booked": res.AlreadyBooked,
		"window": map[string]any{
			"start":       res.Window.Start,
			"end":         res.Window.End,
			"start_label": timemath.FormatClock(res.Window.Start),
			"end_label":   timemath.FormatClock(res.Window.End),
		},
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusOK, v)
}

func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
