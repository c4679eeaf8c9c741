package bot

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	ctrl "sigs.k8s.io/controller-runtime"

	"github.com/optibot/optibot/internal/config"
	"github.com/optibot/optibot/internal/nlu"
	"github.com/optibot/optibot/internal/notify"
	"github.com/optibot/optibot/internal/recommend"
	"github.com/optibot/optibot/internal/store"
	"github.com/optibot/optibot/internal/usage"
	"github.com/optibot/optibot/internal/workflow"
)

// Handlers holds the collaborators behind the Slack endpoints.
type Handlers struct {
	cfg          *config.Config
	orchestrator *workflow.Orchestrator
	slack        *notify.Client
	nlu          *nlu.Extractor
	usage        *usage.Reader
	source       recommend.Source
	outcomes     *store.OutcomeLog
}

// NewHandlers creates the Slack endpoint handlers.
func NewHandlers(cfg *config.Config, orch *workflow.Orchestrator, slack *notify.Client, extractor *nlu.Extractor, reader *usage.Reader, source recommend.Source, outcomes *store.OutcomeLog) *Handlers {
	return &Handlers{
		cfg:          cfg,
		orchestrator: orch,
		slack:        slack,
		nlu:          extractor,
		usage:        reader,
		source:       source,
		outcomes:     outcomes,
	}
}

// NewRouter creates the HTTP router: signed Slack endpoints plus health,
// metrics, and the change history API.
func NewRouter(h *Handlers) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	r.Route("/slack", func(r chi.Router) {
		r.Use(verifySignature(h.cfg.Slack.SigningSecret, time.Now))
		r.Post("/commands", h.HandleCommand)
		r.Post("/interactions", h.HandleInteraction)
	})

	r.Get("/api/v1/changes", h.ListChanges)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	return r
}

// NewServer creates the HTTP server hosting the bot.
func NewServer(cfg *config.Config, h *Handlers) *http.Server {
	return &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Address, cfg.Server.Port),
		Handler:      NewRouter(h),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
}

// ListChanges returns recent change outcomes, newest first.
func (h *Handlers) ListChanges(w http.ResponseWriter, r *http.Request) {
	if h.outcomes == nil {
		writeJSON(w, http.StatusOK, []store.OutcomeRecord{})
		return
	}
	records, err := h.outcomes.Recent(100)
	if err != nil {
		ctrl.Log.WithName("bot").Error(err, "Listing change outcomes failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load change history"})
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		ctrl.Log.WithName("bot").Error(err, "Encoding response failed")
	}
}
