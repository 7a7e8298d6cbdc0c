package api

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/dataroomhq/dataroom/pkg/audit"
	"github.com/dataroomhq/dataroom/pkg/httputil"
	"github.com/dataroomhq/dataroom/pkg/identity"
	"github.com/dataroomhq/dataroom/pkg/observability"
	"github.com/dataroomhq/dataroom/pkg/resource"
	"github.com/dataroomhq/dataroom/pkg/swagger"
	"github.com/dataroomhq/dataroom/pkg/webhooks"
)

// maxUploadBytes caps multipart upload request bodies.
const maxUploadBytes = 512 << 20

// Config wires the server's collaborators. Webhooks, Audit and Docs are
// optional; their routes are only mounted when set.
type Config struct {
	Engine   *resource.Engine
	Resolver identity.Resolver
	Metrics  *observability.Metrics
	Webhooks *webhooks.Handlers
	Audit    *audit.Handlers
	Docs     *swagger.Handlers
	Logger   *logrus.Entry
}

// Server is the HTTP front of the resource engine.
type Server struct {
	engine   *resource.Engine
	resolver identity.Resolver
	metrics  *observability.Metrics
	webhooks *webhooks.Handlers
	audit    *audit.Handlers
	docs     *swagger.Handlers
	router   *mux.Router
	logger   *logrus.Entry
}

// NewServer creates the API server and registers its routes.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Engine == nil {
		return nil, fmt.Errorf("engine is required")
	}
	if cfg.Resolver == nil {
		return nil, fmt.Errorf("resolver is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}

	s := &Server{
		engine:   cfg.Engine,
		resolver: cfg.Resolver,
		metrics:  cfg.Metrics,
		webhooks: cfg.Webhooks,
		audit:    cfg.Audit,
		docs:     cfg.Docs,
		router:   mux.NewRouter(),
		logger:   logger.WithField("component", "api"),
	}
	s.setupRoutes()
	return s, nil
}

func (s *Server) setupRoutes() {
	if s.docs != nil {
		s.docs.Register(s.router)
	}

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.Use(s.authenticate)

	// fixed paths register before the generic resource routes so that mux
	// matches them first
	if s.webhooks != nil {
		s.webhooks.Register(api)
	}
	if s.audit != nil {
		s.audit.Register(api)
	}

	api.HandleFunc("/{resourceType}", s.createResource).Methods("POST")
	api.HandleFunc("/{resourceType}", s.listResources).Methods("GET")
	api.HandleFunc("/{resourceType}/{id}", s.getResource).Methods("GET")
	api.HandleFunc("/{resourceType}/{id}", s.updateResource).Methods("PATCH")
	api.HandleFunc("/{resourceType}/{id}", s.deleteResource).Methods("DELETE")

	api.HandleFunc("/{resourceType}/{id}/events", s.subscribe).Methods("GET")

	// POST creates a section, PUT updates one; presence violations are the
	// engine's to reject
	api.HandleFunc("/{resourceType}/{id}/sections/{section}", s.getSection).Methods("GET")
	api.HandleFunc("/{resourceType}/{id}/sections/{section}", s.upsertSection).Methods("POST", "PUT")
	api.HandleFunc("/{resourceType}/{id}/sections/{section}", s.deleteSection).Methods("DELETE")

	api.HandleFunc("/{resourceType}/{id}/sections/{section}/file", s.uploadFiles).Methods("POST", "PUT")
	api.HandleFunc("/{resourceType}/{id}/sections/{section}/file/{fileId}", s.downloadFile).Methods("GET")
	api.HandleFunc("/{resourceType}/{id}/sections/{section}/file/{fileId}", s.deleteDocument).Methods("DELETE")
}

// Handler returns the full middleware stack around the router.
func (s *Server) Handler() http.Handler {
	middlewares := []func(http.Handler) http.Handler{
		httputil.Recovery(s.logger),
		httputil.RequestID,
		httputil.Logging(s.logger),
	}
	if s.metrics != nil {
		middlewares = append(middlewares, observability.HTTPMetricsMiddleware(s.metrics))
	}
	return httputil.Chain(middlewares...)(s.router)
}

// ServeHTTP implements http.Handler without the middleware stack, for tests.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// authenticate resolves the bearer token into an actor for downstream
// handlers. Every /api/v1 route requires it.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := httputil.BearerToken(r)
		if err != nil {
			httputil.WriteError(w, s.logger, err)
			return
		}
		actor, err := s.resolver.Resolve(r.Context(), token)
		if err != nil {
			httputil.WriteError(w, s.logger, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(identity.WithActor(r.Context(), actor)))
	})
}

// actor pulls the authenticated actor out of the request context. The
// authenticate middleware guarantees presence on every registered route.
func (s *Server) actor(r *http.Request) *identity.Actor {
	actor, _ := identity.FromContext(r.Context())
	return actor
}
