// Package api implements the Scrutin REST API.
// It serves the dashboard reads, unit imports and the publish and cancel
// mutations over net/http.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/scrutin/scrutin/internal/archive"
	"github.com/scrutin/scrutin/internal/dashboard"
	"github.com/scrutin/scrutin/internal/ingestion"
	"github.com/scrutin/scrutin/internal/store"
	"github.com/scrutin/scrutin/pkg/publication"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Handler is the top-level API handler.
type Handler struct {
	dashboard *dashboard.Service
	ingestion *ingestion.Service
	logger    *zap.Logger
}

// NewHandler creates a new API handler.
func NewHandler(dash *dashboard.Service, ing *ingestion.Service, logger *zap.Logger) *Handler {
	return &Handler{
		dashboard: dash,
		ingestion: ing,
		logger:    logger,
	}
}

// RegisterRoutes registers all API routes on the given ServeMux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Write endpoints (operator keys)
	mux.HandleFunc("POST /api/v1/units/{hierarchy}", h.handleImport)
	mux.HandleFunc("POST /api/v1/entities", h.handleRegisterEntity)
	mux.HandleFunc("POST /api/v1/entities/{type}/{id}/publish", h.handlePublish)
	mux.HandleFunc("POST /api/v1/entities/{type}/{id}/cancel", h.handleCancel)

	// Read endpoints
	mux.HandleFunc("GET /api/v1/tree/{hierarchy}", h.handleTree)
	mux.HandleFunc("GET /api/v1/entities/{type}", h.handleListEntities)
	mux.HandleFunc("GET /api/v1/entities/{type}/{id}", h.handleGetEntity)
	mux.HandleFunc("GET /api/v1/entities/{type}/{id}/status", h.handleStatus)
	mux.HandleFunc("GET /api/v1/entities/{type}/{id}/history", h.handleHistory)
	mux.HandleFunc("GET /api/v1/entities/{type}/{id}/snapshots/{snapshotID}", h.handleGetSnapshot)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeServiceError maps a service error onto an HTTP status. Refused and
// conflicting mutations are written as an Outcome so clients always get a
// typed reason.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		rejected *publication.RejectedError
		conflict *publication.ConflictError
	)
	switch {
	case errors.As(err, &conflict):
		writeJSON(w, http.StatusConflict, publication.OutcomeOf(publication.Record{}, err))
	case errors.As(err, &rejected):
		status := http.StatusConflict
		switch {
		case errors.Is(err, publication.ErrUnauthorized):
			status = http.StatusForbidden
		case errors.Is(err, publication.ErrNotReady):
			status = http.StatusUnprocessableEntity
		}
		writeJSON(w, status, publication.OutcomeOf(publication.Record{}, err))
	case errors.Is(err, store.ErrNotFound), errors.Is(err, archive.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, dashboard.ErrUnknownEntityType),
		errors.Is(err, dashboard.ErrUnknownHierarchy),
		errors.Is(err, ingestion.ErrUnknownHierarchy):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ingestion.ErrBatchTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, err.Error())
	default:
		h.logger.Error("request failed", zap.String("method", r.Method), zap.String("path", r.URL.Path), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// validationMessage flattens validator errors into one line.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s: failed %s=%s", fe.Field(), fe.Tag(), fe.Param()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s: failed %s", fe.Field(), fe.Tag()))
		}
	}
	return strings.Join(msgs, "; ")
}
