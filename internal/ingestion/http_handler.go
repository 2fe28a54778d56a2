package ingestion

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/spf13/cast"

	"github.com/rpattn/querykit/internal/domain"
	"github.com/rpattn/querykit/internal/repository"
)

const maxUploadBytes = 32 << 20

// Handler exposes Import as a multipart upload endpoint. The entity type is
// read from the {type} path segment.
type Handler struct {
	service *Service
}

// NewHTTPHandler wraps the service with a POST endpoint.
func NewHTTPHandler(service *Service) http.Handler {
	return &Handler{service: service}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	entityType := strings.TrimSpace(r.PathValue("type"))
	if entityType == "" {
		writeError(w, http.StatusBadRequest, "entity type is required")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid form data: %v", err))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("file required: %v", err))
		return
	}
	defer file.Close()

	summary, err := h.service.Import(r.Context(), Request{
		EntityType: entityType,
		FileName:   header.Filename,
		Data:       file,
	})
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, domain.ErrEntityTypeNotFound) {
			status = http.StatusNotFound
		}
		writeError(w, status, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

// NewLogHandler lists the rejected rows recorded for the {type} path segment.
// The optional file, limit and offset query parameters narrow the listing.
func NewLogHandler(repo repository.IngestionLogRepository) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		query := r.URL.Query()
		limit, _ := cast.ToIntE(query.Get("limit"))
		offset, _ := cast.ToIntE(query.Get("offset"))

		logs, err := repo.List(r.Context(), r.PathValue("type"), query.Get("file"), limit, offset)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"logs": logs})
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
