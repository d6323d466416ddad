// Package server exposes the latest catalog over HTTP and keeps it current
// as files under the project root change.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/mark3labs/docweave/internal/catalog"
	"github.com/mark3labs/docweave/internal/log"
)

const shutdownTimeout = 5 * time.Second

// Server serves read-only views of the builder's current catalog.
type Server struct {
	builder  *catalog.Builder
	log      logrus.FieldLogger
	registry *prometheus.Registry
	metrics  *Metrics
	router   chi.Router
}

func New(builder *catalog.Builder, logger logrus.FieldLogger) *Server {
	if logger == nil {
		logger = log.Discard()
	}
	reg := prometheus.NewRegistry()
	s := &Server{
		builder:  builder,
		log:      logger,
		registry: reg,
		metrics:  NewMetrics(reg),
	}
	s.router = s.routes()
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

// Metrics exposes the server's collectors.
func (s *Server) Metrics() *Metrics { return s.metrics }

// Rebuild runs a full build when changed is empty and an incremental one
// otherwise.
func (s *Server) Rebuild(ctx context.Context, changed ...string) error {
	kind := "full"
	if len(changed) > 0 {
		kind = "incremental"
	}
	start := time.Now()
	var (
		c    *catalog.Catalog
		redo []string
		err  error
	)
	if kind == "full" {
		c, err = s.builder.Build(ctx)
	} else {
		c, redo, err = s.builder.Update(ctx, changed...)
	}
	s.metrics.BuildDurationSeconds.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	if err != nil {
		s.metrics.BuildsTotal.WithLabelValues(kind, "error").Inc()
		return err
	}
	s.metrics.BuildsTotal.WithLabelValues(kind, "ok").Inc()
	s.metrics.ReaggregatedTotal.Add(float64(len(redo)))
	s.metrics.observeCatalog(c)
	return nil
}

// Run serves on addr until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	logger := s.log.WithField("addr", addr)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("serving catalog")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.Recoverer,
		s.instrument,
	)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok\n"))
	})
	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	r.Route("/api", func(r chi.Router) {
		r.Use(s.requireCatalog)
		r.Get("/project", s.getProject)
		r.Get("/documents", s.listDocuments)
		r.Get("/documents/*", s.getDocument)
		r.Get("/endpoints", s.listEndpoints)
		r.Get("/endpoint", s.getEndpoint)
		r.Get("/dependencies", s.getDependencies)
	})
	return r
}

// instrument counts requests by route pattern and status and logs them at
// debug level.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.metrics.RequestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
		s.log.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   status,
			"duration": time.Since(start),
			"reqID":    middleware.GetReqID(r.Context()),
		}).Debug("request")
	})
}

type catalogKey struct{}

func (s *Server) requireCatalog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c := s.builder.Catalog()
		if c == nil {
			writeError(w, http.StatusServiceUnavailable, "catalog not built yet")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), catalogKey{}, c)))
	})
}

func catalogFrom(r *http.Request) *catalog.Catalog {
	return r.Context().Value(catalogKey{}).(*catalog.Catalog)
}

func (s *Server) getProject(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, catalogFrom(r).Project)
}

// documentSummary is a document without its endpoints.
type documentSummary struct {
	Name        string `json:"name"`
	Description string `json:"desc"`
	Order       int64  `json:"order"`
	Path        string `json:"path"`
	Endpoints   int    `json:"endpoints"`
}

func (s *Server) listDocuments(w http.ResponseWriter, r *http.Request) {
	c := catalogFrom(r)
	out := make([]documentSummary, 0, len(c.Documents))
	for _, d := range c.Documents {
		out = append(out, documentSummary{
			Name:        d.Name,
			Description: d.Description,
			Order:       d.Order,
			Path:        d.Path,
			Endpoints:   len(d.Endpoints),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": out, "skipped": c.Skipped})
}

func (s *Server) getDocument(w http.ResponseWriter, r *http.Request) {
	p := chi.URLParam(r, "*")
	doc, ok := catalogFrom(r).Document(p)
	if !ok {
		writeError(w, http.StatusNotFound, "no document "+strconv.Quote(p))
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) listEndpoints(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, catalogFrom(r).Endpoints)
}

func (s *Server) getEndpoint(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	u := q.Get("url")
	if u == "" {
		writeError(w, http.StatusBadRequest, "url query parameter is required")
		return
	}
	method := strings.ToUpper(q.Get("method"))
	if method == "" {
		method = catalog.DefaultMethod
	}
	ep, ok := catalogFrom(r).Endpoints.Get(u, method)
	if !ok {
		writeError(w, http.StatusNotFound, "no endpoint "+method+" "+u)
		return
	}
	writeJSON(w, http.StatusOK, ep)
}

func (s *Server) getDependencies(w http.ResponseWriter, r *http.Request) {
	c := catalogFrom(r)
	if file := r.URL.Query().Get("file"); file != "" {
		deps := c.Dependencies.Dependents(file)
		if deps == nil {
			deps = []string{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"file": file, "dependents": deps})
		return
	}
	writeJSON(w, http.StatusOK, c.Dependencies)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
