// Package httpapi serves read-only JSON endpoints over a project graph.
package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/DeusData/odoo-graph/internal/entity"
	"github.com/DeusData/odoo-graph/internal/query"
)

// Server routes HTTP requests to a query engine.
type Server struct {
	router chi.Router
	engine *query.Engine
}

// New creates the router for engine.
func New(engine *query.Engine) *Server {
	s := &Server{router: chi.NewRouter(), engine: engine}
	s.setupRoutes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := s.router
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/stats", s.handleStats)
	r.Route("/models", func(r chi.Router) {
		r.Get("/", s.handleListModels)
		r.Get("/{name}", s.handleGetModel)
		r.Get("/{name}/ancestry", s.handleAncestry)
		r.Get("/{name}/views", s.handleViewsForModel)
		r.Get("/{name}/fields", s.handleFields)
		r.Get("/{name}/relations", s.handleRelations)
	})
	r.Get("/views/{id}", s.handleGetView)
	r.Get("/modules/{name}/deps", s.handleModuleDeps)
	r.Get("/modules/{name}/dependents", s.handleModuleDependents)
	r.Get("/impact", s.handleImpact)
}

// requestLogger logs one line per request at debug level.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		slog.Debug("http.request",
			"method", r.Method, "path", r.URL.Path, "status", ww.Status(),
			"request_id", middleware.GetReqID(r.Context()), "elapsed", time.Since(start))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("http.encode", "err", err)
	}
}

type errorBody struct {
	Error       string   `json:"error"`
	Suggestions []string `json:"suggestions,omitempty"`
}

func writeError(w http.ResponseWriter, err error) {
	var nf *query.NotFoundError
	switch {
	case errors.As(err, &nf):
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error(), Suggestions: nf.Suggestions})
	case errors.Is(err, query.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error()})
	default:
		slog.Error("http.query", "err", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: err.Error()})
	}
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: msg})
}

// intParam reads a non-negative integer query parameter.
func intParam(r *http.Request, key string, def int) (int, bool) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.engine.Stats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, ok := intParam(r, "limit", 100)
	if !ok {
		badRequest(w, "limit must be a non-negative integer")
		return
	}
	offset, ok := intParam(r, "offset", 0)
	if !ok {
		badRequest(w, "offset must be a non-negative integer")
		return
	}
	filter := query.ModelFilter{
		Module:       q.Get("module"),
		Kind:         entity.ModelKind(q.Get("kind")),
		Pattern:      q.Get("pattern"),
		IncludeStubs: q.Get("include_stubs") == "true",
		Limit:        limit,
		Offset:       offset,
	}
	if v := q.Get("transient"); v != "" {
		t, err := strconv.ParseBool(v)
		if err != nil {
			badRequest(w, "transient must be a boolean")
			return
		}
		filter.Transient = &t
	}
	var (
		list *query.ModelList
		err  error
	)
	if term := q.Get("q"); term != "" {
		list, err = s.engine.SearchModels(r.Context(), term, limit)
	} else {
		list, err = s.engine.ListModels(r.Context(), filter)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetModel(w http.ResponseWriter, r *http.Request) {
	d, err := s.engine.GetModel(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleAncestry(w http.ResponseWriter, r *http.Request) {
	depth, ok := intParam(r, "depth", 5)
	if !ok {
		badRequest(w, "depth must be a non-negative integer")
		return
	}
	name := chi.URLParam(r, "name")
	var (
		hops []query.Hop
		err  error
	)
	switch dir := r.URL.Query().Get("direction"); dir {
	case "", "up":
		hops, err = s.engine.Ancestry(r.Context(), name, depth)
	case "down":
		hops, err = s.engine.Descendants(r.Context(), name, depth)
	default:
		badRequest(w, "direction must be up or down")
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, hops)
}

func (s *Server) handleViewsForModel(w http.ResponseWriter, r *http.Request) {
	views, err := s.engine.ViewsForModel(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleFields(w http.ResponseWriter, r *http.Request) {
	fields, err := s.engine.Fields(r.Context(), chi.URLParam(r, "name"), r.URL.Query().Get("type"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, fields)
}

func (s *Server) handleRelations(w http.ResponseWriter, r *http.Request) {
	rels, err := s.engine.Relations(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rels)
}

func (s *Server) handleGetView(w http.ResponseWriter, r *http.Request) {
	d, err := s.engine.GetView(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleModuleDeps(w http.ResponseWriter, r *http.Request) {
	deps, err := s.engine.ModuleDeps(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, deps)
}

func (s *Server) handleModuleDependents(w http.ResponseWriter, r *http.Request) {
	deps, err := s.engine.ModuleDependents(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, deps)
}

func (s *Server) handleImpact(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	label := entity.LabelModel
	key := q.Get("model")
	if v := q.Get("view"); v != "" {
		label, key = entity.LabelView, v
	}
	if key == "" {
		badRequest(w, "model or view is required")
		return
	}
	depth, ok := intParam(r, "depth", 3)
	if !ok {
		badRequest(w, "depth must be a non-negative integer")
		return
	}
	imp, err := s.engine.Impact(r.Context(), label, key, depth)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, imp)
}
