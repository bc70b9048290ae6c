// Package api assembles the HTTP surface: routing, middleware and the
// operational endpoints.
package api

import (
	"database/sql"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/custodialabs/custodia/pkg/auth"
	"github.com/custodialabs/custodia/pkg/catalogue"
	"github.com/custodialabs/custodia/pkg/entities"
	"github.com/custodialabs/custodia/pkg/middleware"
	"github.com/custodialabs/custodia/pkg/observability"
	"github.com/custodialabs/custodia/pkg/rgpd"
	"github.com/custodialabs/custodia/pkg/sso"
	"github.com/custodialabs/custodia/pkg/storage"
)

// Dependencies carries everything the server needs to wire its routes
type Dependencies struct {
	DB     *sql.DB
	Tokens *auth.TokenService
	Users  auth.Store

	Entities  entities.Service
	Records   rgpd.Store
	Catalogue catalogue.Store

	Files       storage.Storage
	StorageType string

	// OIDC may be nil when no identity provider is configured
	OIDC        sso.Provider
	FrontendURL string

	Logger  *observability.Logger
	Metrics *observability.Metrics
}

// Server is the assembled HTTP API
type Server struct {
	router *mux.Router
	logger *observability.Logger
}

// NewServer builds the router. Application routes live under /api;
// operational endpoints (metrics, health) are mounted at the root.
func NewServer(deps Dependencies) *Server {
	s := &Server{
		router: mux.NewRouter(),
		logger: deps.Logger,
	}
	s.setupRoutes(deps)
	return s
}

func (s *Server) setupRoutes(deps Dependencies) {
	s.router.Use(middleware.RequestID)
	if deps.Metrics != nil {
		s.router.Use(deps.Metrics.Middleware(routeTemplate))
	}

	health := observability.NewHealthChecker(deps.DB)
	s.router.HandleFunc("/health/live", health.Liveness).Methods(http.MethodGet)
	s.router.HandleFunc("/health/ready", health.Readiness).Methods(http.MethodGet)
	if deps.Metrics != nil {
		s.router.Handle("/metrics", deps.Metrics.Handler()).Methods(http.MethodGet)
	}

	api := s.router.PathPrefix("/api").Subrouter()

	// Routes reachable without a bearer token
	public := api.NewRoute().Subrouter()

	// Routes behind the access token check
	protected := api.NewRoute().Subrouter()
	authMiddleware := middleware.NewAuthMiddleware(deps.Tokens)
	protected.Use(authMiddleware.Handler)

	authHandlers := auth.NewHandlers(deps.Users, deps.Tokens, deps.Logger)
	authHandlers.RegisterRoutes(public, protected)

	ssoHandlers := sso.NewHandlers(deps.OIDC, deps.Users, deps.Tokens, deps.FrontendURL, deps.Logger)
	ssoHandlers.RegisterRoutes(public)

	entityHandlers := entities.NewHandlers(deps.Entities, deps.Logger)
	entityHandlers.RegisterRoutes(protected)

	rgpdHandlers := rgpd.NewHandlers(deps.Records, deps.Entities, deps.Logger)
	rgpdHandlers.RegisterRoutes(protected)

	catalogueHandlers := catalogue.NewHandlers(deps.Catalogue, deps.Files, deps.StorageType, deps.Logger)
	catalogueHandlers.RegisterRoutes(protected)
}

// routeTemplate resolves the matched mux path template for metric labels
func routeTemplate(r *http.Request) string {
	route := mux.CurrentRoute(r)
	if route == nil {
		return ""
	}
	template, err := route.GetPathTemplate()
	if err != nil {
		return ""
	}
	return template
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Router exposes the underlying router for composition in tests
func (s *Server) Router() *mux.Router {
	return s.router
}
