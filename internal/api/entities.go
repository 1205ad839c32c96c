package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/scrutin/scrutin/pkg/publication"
	"github.com/scrutin/scrutin/pkg/view"
)

// registerRequest is the JSON body for POST /api/v1/entities.
type registerRequest struct {
	Type          publication.EntityType `json:"type" validate:"required,oneof=circonscription department commune"`
	ID            string                 `json:"id" validate:"required,max=64"`
	Label         string                 `json:"label" validate:"max=256"`
	ExpectedUnits int                    `json:"expected_units" validate:"min=0"`
}

func (h *Handler) handleRegisterEntity(w http.ResponseWriter, r *http.Request) {
	if !ActorFrom(r.Context()).Elevated() {
		writeError(w, http.StatusForbidden, "registering entities requires an operator key")
		return
	}

	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	rec, err := h.dashboard.RegisterEntity(r.Context(), req.Type, req.ID, req.Label, req.ExpectedUnits)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) handleListEntities(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	status, ok := view.ParseStatusFilter(q.Get("status"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid status filter: "+q.Get("status"))
		return
	}
	page, err := intParam(q.Get("page"), 1)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid page: "+err.Error())
		return
	}
	pageSize, err := intParam(q.Get("page_size"), 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid page_size: "+err.Error())
		return
	}

	res, err := h.dashboard.List(r.Context(), publication.EntityType(r.PathValue("type")), view.Filter{
		Status: status,
		Search: q.Get("q"),
	}, page, pageSize)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if res.Items == nil {
		res.Items = []view.Entity{}
	}
	writeJSON(w, http.StatusOK, res)
}

func intParam(s string, def int) (int, error) {
	if s == "" {
		return def, nil
	}
	return strconv.Atoi(s)
}

func (h *Handler) handleGetEntity(w http.ResponseWriter, r *http.Request) {
	d, err := h.dashboard.Entity(r.Context(), publication.EntityType(r.PathValue("type")), r.PathValue("id"), ActorFrom(r.Context()))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	rec, err := h.dashboard.Status(r.Context(), publication.EntityType(r.PathValue("type")), r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	rec.History = nil
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := h.dashboard.History(r.Context(), publication.EntityType(r.PathValue("type")), r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if entries == nil {
		entries = []publication.HistoryEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *Handler) handlePublish(w http.ResponseWriter, r *http.Request) {
	h.handleTransition(w, r, publication.ActionPublish)
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	h.handleTransition(w, r, publication.ActionCancel)
}

func (h *Handler) handleTransition(w http.ResponseWriter, r *http.Request, action publication.Action) {
	typ := publication.EntityType(r.PathValue("type"))
	id := r.PathValue("id")
	actor := ActorFrom(r.Context())

	mutate := h.dashboard.Publish
	if action == publication.ActionCancel {
		mutate = h.dashboard.Cancel
	}
	rec, err := mutate(r.Context(), typ, id, actor)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, publication.OutcomeOf(rec, nil))
}

func (h *Handler) handleGetSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := h.dashboard.Snapshot(r.Context(), publication.EntityType(r.PathValue("type")), r.PathValue("id"), r.PathValue("snapshotID"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}
