package api

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/scrutin/scrutin/internal/archive"
	"github.com/scrutin/scrutin/internal/dashboard"
	"github.com/scrutin/scrutin/internal/events"
	"github.com/scrutin/scrutin/internal/ingestion"
	"github.com/scrutin/scrutin/internal/lock"
	"github.com/scrutin/scrutin/internal/store"
	"github.com/scrutin/scrutin/pkg/config"
	"github.com/scrutin/scrutin/pkg/publication"
	"github.com/scrutin/scrutin/pkg/view"
)

const (
	adminKey  = "k-admin"
	viewerKey = "k-viewer"
)

func newServer(t *testing.T) http.Handler {
	t.Helper()
	logger := zaptest.NewLogger(t)
	mem := store.NewMemory()
	cfg := config.DefaultConfig()

	dash := dashboard.NewService(mem, lock.NewLocal(), archive.New(archive.NewLocal(t.TempDir()), 4), events.Nop{}, cfg.Dashboard, logger)
	ing := ingestion.NewService(mem, mem, cfg.Ingestion, logger)

	keys, err := ParseOperatorKeys(adminKey + ":alice:admin," + viewerKey + ":bob:viewer")
	require.NoError(t, err)

	mux := http.NewServeMux()
	NewHandler(dash, ing, logger).RegisterRoutes(mux)
	return CORS(APIKeyAuth(keys)(mux))
}

func do(t *testing.T, srv http.Handler, method, path, key string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func celRow(id, circ string, votesA int) map[string]any {
	return map[string]any{
		"id":                    id,
		"ancestors":             map[string]any{"circonscription": map[string]string{"id": circ, "label": "Circ " + circ}},
		"registered_voters":     100,
		"actual_voters":         votesA + 10,
		"valid_expressed_votes": votesA + 10,
		"blank_ballots":         0,
		"null_ballots":          0,
		"scores":                map[string]int{"A": votesA, "B": 10},
	}
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestPublishFlow(t *testing.T) {
	srv := newServer(t)

	rec := do(t, srv, "POST", "/api/v1/entities", adminKey, map[string]any{"type": "circonscription", "id": "001", "label": "Abidjan", "expected_units": 2})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, srv, "POST", "/api/v1/units/electoral", adminKey, map[string]any{"rows": []any{celRow("c1", "001", 50)}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[ingestion.Result](t, rec)
	assert.Equal(t, 1, res.Accepted)

	rec = do(t, srv, "POST", "/api/v1/entities/circonscription/001/publish", adminKey, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	out := decode[publication.Outcome](t, rec)
	assert.Equal(t, "not_ready", out.Code)
	assert.Contains(t, out.Reason, "1/2")

	rec = do(t, srv, "POST", "/api/v1/units/electoral", adminKey, map[string]any{"rows": []any{celRow("c2", "001", 5)}})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, srv, "POST", "/api/v1/entities/circonscription/001/publish", viewerKey, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "unauthorized", decode[publication.Outcome](t, rec).Code)

	rec = do(t, srv, "POST", "/api/v1/entities/circonscription/001/publish", adminKey, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	out = decode[publication.Outcome](t, rec)
	require.True(t, out.OK)
	assert.Equal(t, publication.StatusPublished, out.Record.Status)
	snapID := out.Record.History[0].SnapshotRef

	rec = do(t, srv, "POST", "/api/v1/entities/circonscription/001/publish", adminKey, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "no_op", decode[publication.Outcome](t, rec).Code)

	rec = do(t, srv, "GET", "/api/v1/entities/circonscription/001/status", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, publication.StatusPublished, decode[publication.Record](t, rec).Status)

	rec = do(t, srv, "GET", "/api/v1/entities/circonscription/001/history", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]publication.HistoryEntry](t, rec), 1)

	rec = do(t, srv, "GET", "/api/v1/entities/circonscription/001/snapshots/"+snapID, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	snap := decode[archive.Snapshot](t, rec)
	assert.Equal(t, "A", snap.Report.Winner)

	rec = do(t, srv, "GET", "/api/v1/entities/circonscription/001/snapshots/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, srv, "POST", "/api/v1/entities/circonscription/001/cancel", adminKey, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, publication.StatusCancelled, decode[publication.Outcome](t, rec).Record.Status)

	rec = do(t, srv, "POST", "/api/v1/entities/circonscription/001/cancel", adminKey, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestImportRejections(t *testing.T) {
	srv := newServer(t)

	bad := celRow("c9", "001", 1)
	delete(bad, "registered_voters")

	rec := do(t, srv, "POST", "/api/v1/units/electoral", adminKey, map[string]any{"rows": []any{celRow("c1", "001", 1), bad}})
	require.Equal(t, http.StatusOK, rec.Code)
	res := decode[ingestion.Result](t, rec)
	assert.Equal(t, 1, res.Accepted)
	require.Len(t, res.Rejected, 1)
	assert.Equal(t, "registered_voters", res.Rejected[0].Field)

	tests := []struct {
		name string
		path string
		key  string
		body any
		want int
	}{
		{"anonymous", "/api/v1/units/electoral", "", map[string]any{"rows": []any{celRow("c1", "001", 1)}}, http.StatusForbidden},
		{"viewer", "/api/v1/units/electoral", viewerKey, map[string]any{"rows": []any{celRow("c1", "001", 1)}}, http.StatusForbidden},
		{"unknown key", "/api/v1/units/electoral", "nope", map[string]any{"rows": []any{}}, http.StatusUnauthorized},
		{"empty batch", "/api/v1/units/electoral", adminKey, map[string]any{"rows": []any{}}, http.StatusBadRequest},
		{"unknown hierarchy", "/api/v1/units/regional", adminKey, map[string]any{"rows": []any{celRow("c1", "001", 1)}}, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, srv, "POST", tt.path, tt.key, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestImportGzip(t *testing.T) {
	srv := newServer(t)

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	require.NoError(t, json.NewEncoder(gz).Encode(map[string]any{"rows": []any{celRow("c1", "001", 3)}}))
	require.NoError(t, gz.Close())

	req := httptest.NewRequest("POST", "/api/v1/units/electoral", &buf)
	req.Header.Set("Content-Encoding", "gzip")
	req.Header.Set("X-API-Key", adminKey)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 1, decode[ingestion.Result](t, rec).Accepted)

	req = httptest.NewRequest("POST", "/api/v1/units/electoral", strings.NewReader("not gzip"))
	req.Header.Set("Content-Encoding", "gzip")
	req.Header.Set("X-API-Key", adminKey)
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRegisterValidation(t *testing.T) {
	srv := newServer(t)

	rec := do(t, srv, "POST", "/api/v1/entities", adminKey, map[string]any{"type": "district", "id": "1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Type")

	rec = do(t, srv, "POST", "/api/v1/entities", adminKey, map[string]any{"type": "commune", "expected_units": -1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, srv, "POST", "/api/v1/entities", viewerKey, map[string]any{"type": "commune", "id": "C1"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestListEntities(t *testing.T) {
	srv := newServer(t)
	for _, id := range []string{"001", "002", "003", "004"} {
		rec := do(t, srv, "POST", "/api/v1/entities", adminKey, map[string]any{"type": "circonscription", "id": id, "expected_units": 1})
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec := do(t, srv, "POST", "/api/v1/units/electoral", adminKey, map[string]any{"rows": []any{
		celRow("c1", "001", 1), celRow("c4", "004", 2),
	}})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, srv, "GET", "/api/v1/entities/circonscription?page_size=3&page=2", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[view.Page](t, rec)
	assert.Equal(t, 4, page.Total)
	assert.Equal(t, 2, page.TotalPages)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "004", page.Items[0].Record.EntityID)

	rec = do(t, srv, "GET", "/api/v1/entities/circonscription?status=ready&q=004", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page = decode[view.Page](t, rec)
	assert.Equal(t, 1, page.Total)

	rec = do(t, srv, "GET", "/api/v1/entities/circonscription?status=PUBLISHED", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page = decode[view.Page](t, rec)
	assert.Zero(t, page.Total)
	assert.NotNil(t, page.Items)

	for _, q := range []string{"status=bogus", "page=x", "page_size=-"} {
		rec = do(t, srv, "GET", "/api/v1/entities/circonscription?"+q, "", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}

	rec = do(t, srv, "GET", "/api/v1/entities/district", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTreeAndEntity(t *testing.T) {
	srv := newServer(t)
	rec := do(t, srv, "POST", "/api/v1/units/electoral", adminKey, map[string]any{"rows": []any{celRow("c1", "001", 20)}})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, srv, "GET", "/api/v1/tree/electoral", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	tree := decode[dashboard.Tree](t, rec)
	assert.Equal(t, int64(20), tree.Root.Scores["A"].Votes)

	rec = do(t, srv, "GET", "/api/v1/tree/regional", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, srv, "GET", "/api/v1/entities/circonscription/001", adminKey, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var detail struct {
		Ready   bool                 `json:"ready"`
		Winner  string               `json:"winner"`
		Allowed []publication.Action `json:"allowed"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &detail))
	assert.True(t, detail.Ready)
	assert.Equal(t, "A", detail.Winner)
	assert.Equal(t, []publication.Action{publication.ActionPublish}, detail.Allowed)

	rec = do(t, srv, "GET", "/api/v1/entities/circonscription/404", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	srv := newServer(t)
	rec := do(t, srv, "OPTIONS", "/api/v1/entities", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestParseOperatorKeys(t *testing.T) {
	keys, err := ParseOperatorKeys(" a:alice:admin , b:bob:operator,")
	require.NoError(t, err)
	assert.Equal(t, publication.Actor{Name: "alice", Role: publication.RoleAdmin}, keys["a"])
	assert.Equal(t, publication.Actor{Name: "bob", Role: publication.RoleOperator}, keys["b"])

	for _, bad := range []string{"a:alice", "a:alice:root", ":x:admin"} {
		_, err := ParseOperatorKeys(bad)
		assert.Error(t, err, bad)
	}
}
