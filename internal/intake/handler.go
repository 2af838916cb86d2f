package intake

import (
	"encoding/json"
	"net/http"
)

// Handler exposes complaint triage as a standalone endpoint so clients can
// preview urgency before booking.
type Handler struct {
	classifier *Classifier
}

// NewHandler creates the intake HTTP handler.
func NewHandler(classifier *Classifier) *Handler {
	if classifier == nil {
		classifier = NewClassifier()
	}
	return &Handler{classifier: classifier}
}

type intakeRequest struct {
	ComplaintText string `json:"complaint_text"`
}

type intakeResponse struct {
	Urgency       string `json:"urgency"`
	IntakeSummary string `json:"intake_summary"`
}

// Classify handles POST /api/intake.
func (h *Handler) Classify(w http.ResponseWriter, r *http.Request) {
	var req intakeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json: "+err.Error(), http.StatusBadRequest)
		return
	}

	urgency, summary := h.classifier.Classify(req.ComplaintText)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(intakeResponse{Urgency: urgency, IntakeSummary: summary})
}
