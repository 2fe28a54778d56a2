package export

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/rpattn/querykit/internal/catalog"
	"github.com/rpattn/querykit/internal/domain"
)

// Querier produces the filtered collection to export.
type Querier interface {
	BuildAndExecute(ctx context.Context, entityType string, params domain.Parameters, mode domain.CompositionMode) (domain.Collection, error)
	Lookup(ctx context.Context, entityType string, params domain.Parameters) (domain.Collection, error)
}

// Catalogs supplies the column list for an entity type.
type Catalogs interface {
	Get(ctx context.Context, entityType string) (catalog.Catalog, error)
}

// Handler serves GET downloads of every entity matching the request's
// filter parameters. A q parameter switches to free-text lookup.
type Handler struct {
	service  *Service
	querier  Querier
	catalogs Catalogs
	format   Format
}

// NewHTTPHandler creates a download handler for one format.
func NewHTTPHandler(service *Service, querier Querier, catalogs Catalogs, format Format) http.Handler {
	return &Handler{service: service, querier: querier, catalogs: catalogs, format: format}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	entityType := strings.TrimSpace(r.PathValue("type"))
	if entityType == "" {
		writeError(w, http.StatusBadRequest, "entity type is required")
		return
	}

	ctx := r.Context()
	cat, err := h.catalogs.Get(ctx, entityType)
	if err != nil {
		writeQueryError(w, err)
		return
	}

	params := domain.ParametersFromValues(r.URL.Query())
	var coll domain.Collection
	if params.Has(domain.ParamQuery) {
		coll, err = h.querier.Lookup(ctx, entityType, params)
	} else {
		coll, err = h.querier.BuildAndExecute(ctx, entityType, params, domain.ModeAll)
	}
	if err != nil {
		writeQueryError(w, err)
		return
	}

	// Count before any bytes go out so an oversized export still gets a
	// proper status code.
	total, err := coll.Count(ctx)
	if err != nil {
		writeQueryError(w, err)
		return
	}
	if total > h.service.maxRows {
		writeError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("%v: %d rows, limit %d", ErrTooManyRows, total, h.service.maxRows))
		return
	}

	filename := fmt.Sprintf("%s.%s", sanitizeFileComponent(entityType), h.format)
	w.Header().Set("Content-Type", h.format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	if _, err := h.service.Write(ctx, w, h.format, cat.Names(), coll); err != nil {
		h.service.logger.Error("export failed", "entity_type", entityType, "format", h.format, "error", err)
	}
}

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

func sanitizeFileComponent(input string) string {
	cleaned := strings.Trim(unsafeFileChars.ReplaceAllString(input, "-"), "-.")
	if cleaned == "" {
		return "export"
	}
	return cleaned
}

func writeQueryError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrEntityTypeNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
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
