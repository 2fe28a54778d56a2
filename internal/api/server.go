// Package api exposes entity filtering, lookup and pagination over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/cors"

	"github.com/rpattn/querykit/internal/catalog"
	"github.com/rpattn/querykit/internal/domain"
	"github.com/rpattn/querykit/internal/export"
	"github.com/rpattn/querykit/internal/ingestion"
	"github.com/rpattn/querykit/internal/metrics"
	"github.com/rpattn/querykit/internal/middleware"
	"github.com/rpattn/querykit/internal/pagination"
	"github.com/rpattn/querykit/internal/query"
	"github.com/rpattn/querykit/internal/repository"
	"github.com/rpattn/querykit/internal/schema/validator"
)

// Dependencies are the collaborators a Server routes requests to.
type Dependencies struct {
	Builder   *query.Builder
	Catalogs  *catalog.Cache
	Schemas   repository.EntitySchemaRepository
	Entities  repository.EntityRepository
	Paginator *pagination.Paginator
	Importer  *ingestion.Service
	Exporter  *export.Service
	// Metrics is optional; without it /metrics is not served.
	Metrics *metrics.Metrics
	Logger  *slog.Logger

	AllowedOrigins []string
}

// Server is the HTTP API.
type Server struct {
	deps   Dependencies
	logger *slog.Logger
}

// NewServer creates a Server.
func NewServer(deps Dependencies) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Paginator == nil {
		deps.Paginator = pagination.New()
	}
	if deps.Exporter == nil {
		deps.Exporter = export.NewService(export.WithLogger(logger))
	}
	return &Server{deps: deps, logger: logger}
}

// Handler returns an http.Handler with all routes registered.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	s.handle(mux, "GET /healthz", http.HandlerFunc(s.handleHealthz))
	if s.deps.Metrics != nil {
		mux.Handle("GET /metrics", s.deps.Metrics.Handler())
	}

	s.handle(mux, "GET /v1/schemas", http.HandlerFunc(s.handleListSchemas))
	s.handle(mux, "POST /v1/schemas", http.HandlerFunc(s.handleCreateSchema))
	s.handle(mux, "GET /v1/schemas/{type}", http.HandlerFunc(s.handleGetSchema))

	s.handle(mux, "GET /v1/entities/{type}", s.filterHandler(domain.ModeAll))
	s.handle(mux, "GET /v1/entities/{type}/any", s.filterHandler(domain.ModeAny))
	s.handle(mux, "GET /v1/entities/{type}/lookup", http.HandlerFunc(s.handleLookup))
	s.handle(mux, "GET /v1/entities/{type}/export.xlsx",
		export.NewHTTPHandler(s.deps.Exporter, s.deps.Builder, s.deps.Catalogs, export.FormatXLSX))
	s.handle(mux, "GET /v1/entities/{type}/export.csv",
		export.NewHTTPHandler(s.deps.Exporter, s.deps.Builder, s.deps.Catalogs, export.FormatCSV))
	if s.deps.Importer != nil {
		s.handle(mux, "POST /v1/entities/{type}/import", ingestion.NewHTTPHandler(s.deps.Importer))
		if logs := s.deps.Importer.IngestionLog(); logs != nil {
			s.handle(mux, "GET /v1/entities/{type}/import/logs", ingestion.NewLogHandler(logs))
		}
	}
	s.handle(mux, "GET /v1/entities/{type}/{id}", http.HandlerFunc(s.handleGetEntity))
	s.handle(mux, "GET /v1/entities/{type}/{id}/linked", http.HandlerFunc(s.handleLinked))

	var handler http.Handler = mux
	handler = middleware.DataLoaderMiddleware(s.deps.Entities)(handler)
	handler = middleware.LoggingMiddleware(s.logger)(handler)

	origins := s.deps.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: true,
	}).Handler(handler)
}

func (s *Server) handle(mux *http.ServeMux, pattern string, h http.Handler) {
	if s.deps.Metrics != nil {
		h = middleware.Instrument(pattern, s.deps.Metrics, h)
	}
	mux.Handle(pattern, h)
}

// --- handlers ---

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// pageResponse is the JSON body of every paginated listing.
type pageResponse struct {
	domain.Page
	HasNext     bool `json:"has_next"`
	HasPrevious bool `json:"has_previous"`
	StartIndex  int  `json:"start_index"`
	EndIndex    int  `json:"end_index"`
}

func newPageResponse(page domain.Page) pageResponse {
	return pageResponse{
		Page:        page,
		HasNext:     page.HasNext(),
		HasPrevious: page.HasPrevious(),
		StartIndex:  page.StartIndex(),
		EndIndex:    page.EndIndex(),
	}
}

func (s *Server) filterHandler(mode domain.CompositionMode) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		entityType := r.PathValue("type")
		params := domain.ParametersFromValues(r.URL.Query())

		coll, err := s.deps.Builder.BuildAndExecute(r.Context(), entityType, params, mode)
		if err != nil {
			s.writeQueryError(w, err)
			return
		}
		s.writePage(w, r.Context(), coll, params)
	})
}

func (s *Server) handleLookup(w http.ResponseWriter, r *http.Request) {
	entityType := r.PathValue("type")
	params := domain.ParametersFromValues(r.URL.Query())

	coll, err := s.deps.Builder.Lookup(r.Context(), entityType, params)
	if err != nil {
		s.writeQueryError(w, err)
		return
	}
	s.writePage(w, r.Context(), coll, params)
}

func (s *Server) writePage(w http.ResponseWriter, ctx context.Context, coll domain.Collection, params domain.Parameters) {
	page, err := s.deps.Paginator.Paginate(ctx, coll, params)
	if err != nil {
		s.writeQueryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newPageResponse(page))
}

func (s *Server) handleGetEntity(w http.ResponseWriter, r *http.Request) {
	entity, ok := s.loadEntity(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, entity)
}

// linkedResponse maps each relationship field to the entities it references.
type linkedResponse struct {
	ID     uuid.UUID                  `json:"id"`
	Linked map[string][]domain.Entity `json:"linked"`
}

func (s *Server) handleLinked(w http.ResponseWriter, r *http.Request) {
	entity, ok := s.loadEntity(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	cat, err := s.deps.Catalogs.Get(ctx, entity.EntityType)
	if err != nil {
		s.writeQueryError(w, err)
		return
	}

	loader := middleware.EntityLoaderFromContext(ctx)
	if loader == nil {
		writeError(w, http.StatusInternalServerError, "entity loader unavailable")
		return
	}

	resp := linkedResponse{ID: entity.ID, Linked: make(map[string][]domain.Entity)}
	for _, field := range cat.Relationships() {
		linked, err := loader.LoadMany(ctx, referenceIDs(entity.Properties[field.Name]))
		if err != nil {
			s.writeQueryError(w, domain.NewExecutionError("load "+field.Name, err))
			return
		}
		resp.Linked[field.Name] = linked
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) loadEntity(w http.ResponseWriter, r *http.Request) (domain.Entity, bool) {
	entityType := r.PathValue("type")
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid entity id")
		return domain.Entity{}, false
	}

	entity, err := s.deps.Entities.GetByID(r.Context(), id)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
		return domain.Entity{}, false
	case err != nil:
		s.writeQueryError(w, domain.NewExecutionError("get entity", err))
		return domain.Entity{}, false
	}
	if entity.EntityType != entityType {
		writeError(w, http.StatusNotFound, fmt.Sprintf("%v: %s is not a %s", repository.ErrNotFound, id, entityType))
		return domain.Entity{}, false
	}
	return entity, true
}

func referenceIDs(value any) []string {
	switch v := value.(type) {
	case string:
		if strings.TrimSpace(v) == "" {
			return nil
		}
		return []string{strings.TrimSpace(v)}
	case []string:
		return v
	case []any:
		ids := make([]string, 0, len(v))
		for _, item := range v {
			if str, ok := item.(string); ok && strings.TrimSpace(str) != "" {
				ids = append(ids, strings.TrimSpace(str))
			}
		}
		return ids
	default:
		return nil
	}
}

func (s *Server) handleListSchemas(w http.ResponseWriter, r *http.Request) {
	schemas, err := s.deps.Schemas.List(r.Context())
	if err != nil {
		s.writeQueryError(w, domain.NewExecutionError("list schemas", err))
		return
	}
	writeJSON(w, http.StatusOK, schemas)
}

func (s *Server) handleGetSchema(w http.ResponseWriter, r *http.Request) {
	schema, err := s.deps.Schemas.GetByName(r.Context(), r.PathValue("type"))
	if err != nil {
		s.writeQueryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, schema)
}

func (s *Server) handleCreateSchema(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var schema domain.EntitySchema
	if err := json.NewDecoder(r.Body).Decode(&schema); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	schema.Name = strings.TrimSpace(schema.Name)
	if err := validator.ValidateSchema(schema); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	created, err := s.deps.Schemas.Create(r.Context(), domain.NewEntitySchema(schema.Name, schema.Description, schema.Fields))
	if err != nil {
		s.writeQueryError(w, domain.NewExecutionError("create schema", err))
		return
	}
	s.deps.Catalogs.Invalidate(created.Name)
	writeJSON(w, http.StatusCreated, created)
}

// --- helpers ---

func (s *Server) writeQueryError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrEntityTypeNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, context.Canceled):
		writeError(w, http.StatusServiceUnavailable, "request cancelled")
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, "request timed out")
	default:
		s.logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "query execution failed")
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
