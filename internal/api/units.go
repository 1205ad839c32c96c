package api

import (
	"compress/gzip"
	"encoding/json"
	"io"
	"net/http"

	"github.com/scrutin/scrutin/pkg/results"
)

// importRequest is the JSON body for POST /api/v1/units/{hierarchy}.
type importRequest struct {
	Rows []results.UnitRow `json:"rows" validate:"required,min=1"`
}

func (h *Handler) handleImport(w http.ResponseWriter, r *http.Request) {
	if !ActorFrom(r.Context()).Elevated() {
		writeError(w, http.StatusForbidden, "importing units requires an operator key")
		return
	}

	// Support gzip-compressed request bodies
	var body io.Reader = r.Body
	if r.Header.Get("Content-Encoding") == "gzip" {
		gz, err := gzip.NewReader(r.Body)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid gzip body: "+err.Error())
			return
		}
		defer gz.Close()
		body = gz
	}

	var req importRequest
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	res, err := h.ingestion.ImportBatch(r.Context(), r.PathValue("hierarchy"), req.Rows)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) handleTree(w http.ResponseWriter, r *http.Request) {
	tree, err := h.dashboard.Tree(r.Context(), r.PathValue("hierarchy"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tree)
}
