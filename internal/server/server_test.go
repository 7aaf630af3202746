package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lazypower/resonance/internal/config"
	"github.com/lazypower/resonance/internal/engine"
	"github.com/lazypower/resonance/internal/store"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	db, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	eng := engine.New(db, nil, config.Default(), nil)
	t.Cleanup(eng.Stop)
	return New(eng, nil, "test-version")
}

func do(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body
}

const pizzaAnalyze = `{"messages":[
	{"role":"user","content":"Pizza dough needs a slow rise"},
	{"role":"assistant","content":"A slow rise gives pizza dough flavor"},
	{"role":"user","content":"Which oven temperature suits pizza?"},
	{"role":"assistant","content":"Pizza wants the hottest oven you have"}
]}`

func TestHealthEndpoint(t *testing.T) {
	srv := testServer(t)

	w := do(t, srv, "GET", "/api/health", "")
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "test-version", body["version"])
	assert.Equal(t, true, body["db"])
	assert.Equal(t, false, body["llm"])
}

func TestMetricsEndpoint(t *testing.T) {
	srv := testServer(t)
	do(t, srv, "GET", "/api/health", "")

	w := do(t, srv, "GET", "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `resonance_http_requests_total{method="GET",route="/api/health",status="200"}`)
}

func TestAnalyzeAndRead(t *testing.T) {
	srv := testServer(t)

	w := do(t, srv, "POST", "/api/conversations/c1/analyze", pizzaAnalyze)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decodeBody(t, w)
	assert.Equal(t, true, body["analyzed"])
	assert.EqualValues(t, 1, body["summary_version"])
	assert.NotEmpty(t, body["subjects"])

	w = do(t, srv, "GET", "/api/conversations/c1/subjects", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, decodeBody(t, w)["subjects"])

	w = do(t, srv, "GET", "/api/conversations/c1/summary?history=true", "")
	require.Equal(t, http.StatusOK, w.Code)
	body = decodeBody(t, w)
	assert.Len(t, body["history"], 1)
	summary := body["summary"].(map[string]any)
	assert.Equal(t, true, summary["fallback"])
}

func TestErrorMapping(t *testing.T) {
	srv := testServer(t)

	tests := []struct {
		name, method, path, body string
		want                     int
	}{
		{"bad json", "POST", "/api/conversations/c1/analyze", `{"messages":`, http.StatusBadRequest},
		{"unknown field", "POST", "/api/conversations/c1/analyze", `{"msgs":[]}`, http.StatusBadRequest},
		{"bad role", "POST", "/api/conversations/c1/analyze", `{"messages":[{"role":"robot","content":"x"}]}`, http.StatusBadRequest},
		{"no summary", "GET", "/api/conversations/none/summary", "", http.StatusNotFound},
		{"bad subject id", "GET", "/api/conversations/c1/proposals?subjects=nope", "", http.StatusBadRequest},
		{"unknown subject", "GET", "/api/conversations/c1/proposals?subjects=" + "00000000-0000-0000-0000-000000000001", "", http.StatusNotFound},
		{"dismiss without id", "POST", "/api/conversations/c1/proposals/dismiss", `{}`, http.StatusBadRequest},
		{"unknown keyword", "POST", "/api/access", `{"keyword":"ghost","principal_id":"u1","principal_type":"user","state":"deny"}`, http.StatusNotFound},
		{"bad limit", "GET", "/api/keywords?limit=abc", "", http.StatusBadRequest},
		{"limit out of range", "GET", "/api/keywords?limit=501", "", http.StatusBadRequest},
		{"bad sort", "GET", "/api/keywords?sort=color", "", http.StatusBadRequest},
		{"merge unknown", "POST", "/api/subjects/merge", `{"a":"00000000-0000-0000-0000-000000000001","b":"00000000-0000-0000-0000-000000000002"}`, http.StatusNotFound},
		{"bad config", "PUT", "/api/proposals/config", `{"match_weight":-1,"recency_weight":0.3,"recency_window":1,"min_similarity":0.2,"max_proposals":10}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, srv, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
			assert.NotEmpty(t, decodeBody(t, w)["error"])
		})
	}
}

func TestStatusOf(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, statusOf(io.EOF))
}

func TestProposalsFlow(t *testing.T) {
	srv := testServer(t)

	require.Equal(t, http.StatusOK, do(t, srv, "POST", "/api/conversations/c1/analyze", pizzaAnalyze).Code)
	w := do(t, srv, "POST", "/api/conversations/c2/analyze",
		`{"messages":[{"role":"user","content":"Baking pizza in a wood oven"},{"role":"assistant","content":"The wood oven gave the pizza char"}]}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(t, srv, "GET", "/api/conversations/c2/proposals", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decodeBody(t, w)
	assert.Equal(t, false, body["cached"])
	proposals := body["proposals"].([]any)
	require.NotEmpty(t, proposals)
	first := proposals[0].(map[string]any)

	w = do(t, srv, "GET", "/api/conversations/c2/proposals", "")
	assert.Equal(t, true, decodeBody(t, w)["cached"])

	var buf bytes.Buffer
	json.NewEncoder(&buf).Encode(map[string]any{"past_subject_id": first["past_subject_id"]})
	w = do(t, srv, "POST", "/api/conversations/c2/proposals/dismiss", buf.String())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(t, srv, "GET", "/api/conversations/c2/proposals", "")
	for _, p := range decodeBody(t, w)["proposals"].([]any) {
		assert.NotEqual(t, first["past_subject_id"], p.(map[string]any)["past_subject_id"])
	}

	w = do(t, srv, "POST", "/api/conversations/c2/switch", `{"to":"c1"}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, srv, "GET", "/api/conversations/c2/resonance", "")
	require.Equal(t, http.StatusOK, w.Code)
	body = decodeBody(t, w)
	assert.Contains(t, body["text"], "patterns:")
}

func TestProposalConfigRoundTrip(t *testing.T) {
	srv := testServer(t)

	w := do(t, srv, "GET", "/api/proposals/config", "")
	require.Equal(t, http.StatusOK, w.Code)
	cfg := decodeBody(t, w)
	assert.EqualValues(t, 1, cfg["version"])
	assert.Equal(t, "default", cfg["owner_id"])

	cfg["max_proposals"] = 3
	delete(cfg, "version")
	delete(cfg, "updated_at")
	payload, err := json.Marshal(cfg)
	require.NoError(t, err)

	w = do(t, srv, "PUT", "/api/proposals/config", string(payload))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	updated := decodeBody(t, w)
	assert.EqualValues(t, 2, updated["version"])
	assert.EqualValues(t, 3, updated["max_proposals"])
}

func TestAccessEndpoints(t *testing.T) {
	srv := testServer(t)
	require.Equal(t, http.StatusOK, do(t, srv, "POST", "/api/conversations/c1/analyze", pizzaAnalyze).Code)

	w := do(t, srv, "POST", "/api/principals", `{"id":"kids","type":"group","display_name":"Kids","members":["a","b","c"]}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = do(t, srv, "POST", "/api/access", `{"keyword":"pizza","principal_id":"kids","principal_type":"group","state":"deny","updated_by":"parent"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, true, decodeBody(t, w)["created"])

	w = do(t, srv, "POST", "/api/access", `{"keyword":"pizza","principal_id":"kids","principal_type":"group","state":"deny","updated_by":"parent"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decodeBody(t, w)["created"])

	w = do(t, srv, "GET", "/api/access/pizza", "")
	require.Equal(t, http.StatusOK, w.Code)
	states := decodeBody(t, w)["states"].([]any)
	require.Len(t, states, 1)
	assert.EqualValues(t, 3, states[0].(map[string]any)["member_count"])

	w = do(t, srv, "GET", "/api/access/pizza?principal=nobody", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, decodeBody(t, w)["access_state"])

	w = do(t, srv, "GET", "/api/keywords?sort=term&limit=1", "")
	require.Equal(t, http.StatusOK, w.Code)
	page := decodeBody(t, w)
	assert.Len(t, page["keywords"], 1)
	assert.Equal(t, true, page["has_more"])

	w = do(t, srv, "GET", "/api/principals", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeBody(t, w)["principals"], 1)
}
