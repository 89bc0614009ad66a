// Package httpserver exposes the ledger over REST with an SSE event stream.
package httpserver

import (
	"context"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/and161185/scorekeeper/internal/catalog"
	"github.com/and161185/scorekeeper/internal/level"
	"github.com/and161185/scorekeeper/internal/metrics"
	"github.com/and161185/scorekeeper/internal/service"
)

// Deps are the collaborators of the HTTP API.
type Deps struct {
	Ledger  service.Ledger
	Catalog *catalog.Catalog
	Rule    level.Rule
	Events  http.Handler                // SSE stream; nil disables /events
	Metrics *metrics.Metrics            // nil disables /metrics and request metrics
	Ready   func(context.Context) error // nil means always ready
	Log     *zap.Logger
}

// Server holds handlers for all routes.
type Server struct {
	ledger   service.Ledger
	cat      *catalog.Catalog
	rule     level.Rule
	ready    func(context.Context) error
	log      *zap.Logger
	validate *validator.Validate
}

// NewRouter builds the REST router.
func NewRouter(d Deps) http.Handler {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Catalog == nil {
		d.Catalog = &catalog.Catalog{}
	}
	s := &Server{
		ledger:   d.Ledger,
		cat:      d.Catalog,
		rule:     d.Rule,
		ready:    d.Ready,
		log:      d.Log,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}

	r := mux.NewRouter()
	r.Use(Logging(d.Log, d.Metrics), Recover(d.Log))
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "route not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	// Users
	r.HandleFunc("/users", s.register).Methods(http.MethodPost)
	r.HandleFunc("/users/{id}", s.getUser).Methods(http.MethodGet)
	r.HandleFunc("/users/{id}/points", s.addPoints).Methods(http.MethodPost)
	r.HandleFunc("/users/{id}/points", s.pointsHistory).Methods(http.MethodGet)
	r.HandleFunc("/users/{id}/sales", s.addSales).Methods(http.MethodPost)
	r.HandleFunc("/users/{id}/achievements", s.addAchievement).Methods(http.MethodPost)
	r.HandleFunc("/users/{id}/complete-challenge", s.completeChallenge).Methods(http.MethodPost)

	// Ranking & challenges
	r.HandleFunc("/ranking", s.ranking).Methods(http.MethodGet)
	r.HandleFunc("/challenges", s.challenges).Methods(http.MethodGet)

	// Ops
	r.HandleFunc("/health", s.health).Methods(http.MethodGet)
	if d.Events != nil {
		r.Handle("/events", d.Events).Methods(http.MethodGet)
	}
	if d.Metrics != nil {
		r.Handle("/metrics", d.Metrics.Handler()).Methods(http.MethodGet)
	}
	return r
}
