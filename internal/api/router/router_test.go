package router

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/auramed/opd-queue/internal/intake"
	"github.com/auramed/opd-queue/internal/queue"
	"github.com/auramed/opd-queue/pkg/logging"
)

func newTestRouter(t *testing.T, staffSecret string) http.Handler {
	t.Helper()

	logger := logging.Default()
	svc := queue.NewService(queue.ServiceConfig{
		Repo: queue.NewInMemoryRepository(),
		Defaults: queue.SessionDefaults{
			StartTimeLocal: "17:00",
			EndTimeLocal:   "20:00",
			SlotMinutes:    9,
		},
	})
	classifier := intake.NewClassifier()

	return New(&Config{
		Logger:          logger,
		QueueHandler:    queue.NewHandler(svc, classifier, "clinic-1", "doc-1", logger),
		IntakeHandler:   intake.NewHandler(classifier),
		StaffAuthSecret: staffSecret,
	})
}

func TestRouterHealthEndpoint(t *testing.T) {
	router := newTestRouter(t, "")

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}

	var resp map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode health response: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("expected status 'ok', got %q", resp["status"])
	}
}

func TestRouterIntakeEndpoint(t *testing.T) {
	router := newTestRouter(t, "")

	req := httptest.NewRequest(http.MethodPost, "/api/intake",
		strings.NewReader(`{"complaint_text":"chest pain"}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}

	var resp map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode intake response: %v", err)
	}
	if resp["urgency"] != "high" {
		t.Errorf("expected urgency 'high', got %q", resp["urgency"])
	}
}

func TestRouterStaffRoutesRequireAuth(t *testing.T) {
	router := newTestRouter(t, "staff-secret")

	req := httptest.NewRequest(http.MethodPost, "/api/queue/serve-next",
		strings.NewReader(`{"session_id":1}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, rr.Code)
	}
}

func TestRouterPatientRoutesStayOpen(t *testing.T) {
	router := newTestRouter(t, "staff-secret")

	req := httptest.NewRequest(http.MethodPost, "/api/sessions",
		strings.NewReader(`{"date_key":"2026-03-02"}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
}
