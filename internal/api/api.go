// Package api exposes the HTTP submission and resolution surface: the
// transport spec.md assumes is present, wired here with chi.
package api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/sidetree-node/anchornode/internal/operation"
	"github.com/sidetree-node/anchornode/internal/projection"
	"github.com/sidetree-node/anchornode/internal/rooter"
)

// Server wires the Rooter and Projection behind an HTTP router.
type Server struct {
	router     chi.Router
	rooter     *rooter.Rooter
	projection *projection.Projection
	logger     *logrus.Logger
}

// NewServer builds a Server. Call Router to get the http.Handler to serve.
func NewServer(r *rooter.Rooter, proj *projection.Projection, logger *logrus.Logger) *Server {
	s := &Server{rooter: r, projection: proj, logger: logger}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(requestLogger(logger))

	router.Post("/operations", s.submitOperation)
	router.Get("/identifiers/{did}", s.resolveIdentifier)
	router.Handle("/metrics", promhttp.Handler())

	s.router = router
	return s
}

// Router returns the http.Handler serving every registered route.
func (s *Server) Router() http.Handler {
	return s.router
}

func requestLogger(logger *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger.WithField("method", r.Method).WithField("path", r.URL.Path).Debug("api: request")
			next.ServeHTTP(w, r)
		})
	}
}

// submitOperation reads a raw, client-encoded operation body and enqueues it
// with the Rooter. It does not authenticate the submitter: spec.md names
// that out of scope for this core.
func (s *Server) submitOperation(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "reading request body", http.StatusBadRequest)
		return
	}
	if _, err := operation.Decode(body); err != nil {
		http.Error(w, "malformed operation", http.StatusBadRequest)
		return
	}
	s.rooter.Add(body)
	w.WriteHeader(http.StatusAccepted)
}

// resolveIdentifier resolves the DID's unique portion against the
// Projection and renders the resulting document as JSON, or 404s.
func (s *Server) resolveIdentifier(w http.ResponseWriter, r *http.Request) {
	did := chi.URLParam(r, "did")

	doc, err := s.projection.Resolve(r.Context(), did)
	if err != nil {
		s.logger.WithError(err).Warn("api: resolve failed")
		http.Error(w, "resolution error", http.StatusInternalServerError)
		return
	}
	if doc == nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(struct {
		ID       string          `json:"id"`
		Document json.RawMessage `json:"didDocument"`
	}{ID: doc.ID, Document: doc.Body})
}
