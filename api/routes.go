package api

import (
	"net/http"

	"github.com/garnizeh/iisa/internal/candidates"
	"github.com/garnizeh/iisa/internal/config"
	"github.com/garnizeh/iisa/internal/geo"
	"github.com/garnizeh/iisa/internal/session"
	"github.com/gorilla/mux"
)

func SetupRoutes(
	cfg *config.Config,
	version, buildTime string,
	store *candidates.Store,
	gate *session.Gate,
	lookup *geo.Lookup,
	tokens *session.Tokens,
) *mux.Router {
	r := mux.NewRouter()

	// Middleware chain
	r.Use(LoggingMiddleware)
	r.Use(CORSMiddleware)
	r.Use(RecoveryMiddleware)

	// Create handlers
	systemHandler := &SystemHandler{}
	citiesHandler := NewCitiesHandler(lookup)
	candidatesHandler := NewCandidatesHandler(store, lookup)
	sessionHandler := NewSessionHandler(gate, tokens, cfg.SecureCookies)
	dashboardHandler := NewDashboardHandler(store, lookup)

	// Open endpoints
	r.HandleFunc("/version", systemHandler.VersionHandler(version, buildTime)).Methods(http.MethodGet)
	r.HandleFunc("/health", systemHandler.HealthHandler).Methods(http.MethodGet)

	apiV1 := r.PathPrefix("/v1").Subrouter()
	apiV1.HandleFunc("/cities", citiesHandler.ListCities).Methods(http.MethodGet)

	// Registration and self-service edit flow
	apiV1.HandleFunc("/candidates", candidatesHandler.CreateCandidate).Methods(http.MethodPost)
	apiV1.HandleFunc("/candidates/lookup", candidatesHandler.LookupCandidate).Methods(http.MethodGet)
	apiV1.HandleFunc("/candidates/me", candidatesHandler.CurrentCandidate).Methods(http.MethodGet)
	apiV1.HandleFunc("/candidates/me", candidatesHandler.DeleteCurrentCandidate).Methods(http.MethodDelete)
	apiV1.HandleFunc("/candidates/{id}", candidatesHandler.GetCandidate).Methods(http.MethodGet)
	apiV1.HandleFunc("/candidates/{id}", candidatesHandler.UpdateCandidate).Methods(http.MethodPut)
	apiV1.HandleFunc("/candidates/{id}", candidatesHandler.DeleteCandidate).Methods(http.MethodDelete)

	// Session endpoints
	apiV1.HandleFunc("/session", sessionHandler.State).Methods(http.MethodGet)
	apiV1.HandleFunc("/session/login", sessionHandler.Login).Methods(http.MethodPost)
	apiV1.HandleFunc("/session/logout", sessionHandler.Logout).Methods(http.MethodPost)

	// Dashboard, behind the session gate
	dashboard := apiV1.PathPrefix("/dashboard").Subrouter()
	dashboard.Use(SessionMiddleware(gate, tokens))
	dashboard.HandleFunc("", dashboardHandler.Overview).Methods(http.MethodGet)
	dashboard.HandleFunc("/candidates", dashboardHandler.ListCandidates).Methods(http.MethodGet)
	dashboard.HandleFunc("/candidates/{id}", dashboardHandler.DeleteCandidate).Methods(http.MethodDelete)

	return r
}
