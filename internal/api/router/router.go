package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	httpmiddleware "github.com/auramed/opd-queue/internal/http/middleware"
	"github.com/auramed/opd-queue/internal/intake"
	"github.com/auramed/opd-queue/internal/queue"
	"github.com/auramed/opd-queue/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger             *logging.Logger
	QueueHandler       *queue.Handler
	IntakeHandler      *intake.Handler
	MetricsHandler     http.Handler
	StaffAuthSecret    string
	CORSAllowedOrigins []string
}

// New creates the Chi router with all routes configured. Staff-only queue
// controls sit behind StaffJWT when a secret is set; without one they are
// open, which is only acceptable inside a clinic network.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/health", healthCheck)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	r.Route("/api", func(api chi.Router) {
		if cfg.IntakeHandler != nil {
			api.Post("/intake", cfg.IntakeHandler.Classify)
		}

		q := cfg.QueueHandler
		api.Post("/sessions", q.GetOrCreateSession)
		api.Get("/sessions/current", q.CurrentSession)
		api.Get("/sessions/{sessionID}/slots", q.SlotBoard)

		api.Post("/tokens/book", q.Book)
		api.Post("/tokens/book-slot", q.BookSlot)
		api.Post("/tokens/{tokenID}/arrive", q.MarkArrived)

		api.Get("/queue/state", q.QueueStateView)
		api.Post("/queue/cancel", q.Cancel)

		api.Post("/events/bulk", q.BulkEvents)

		// Front-desk controls.
		api.Group(func(staff chi.Router) {
			if cfg.StaffAuthSecret != "" {
				staff.Use(httpmiddleware.StaffJWT(cfg.StaffAuthSecret))
			}
			staff.Post("/sessions/{sessionID}/close", q.CloseSession)
			staff.Post("/queue/serve-next", q.ServeNext)
			staff.Post("/queue/skip", q.Skip)
			staff.Post("/queue/walkin", q.Walkin)
			staff.Post("/queue/emergency", q.Emergency)
		})
	})

	return r
}

func healthCheck(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
