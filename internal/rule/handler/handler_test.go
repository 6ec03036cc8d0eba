package handler_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"govern/internal/rule"
	"govern/internal/rule/handler"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	r := chi.NewRouter()
	handler.New(rule.NewMemoryStore(), slog.New(slog.DiscardHandler)).Register(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

const validRuleBody = `{
	"name": "policy review overdue",
	"trigger_type": "TIME_BASED",
	"entity_type": "policy",
	"field_name": "nextReviewDate",
	"threshold_value": 30,
	"severity_score": 3
}`

func createRule(t *testing.T, srv *httptest.Server) handler.RuleResponse {
	t.Helper()
	resp := doJSON(t, http.MethodPost, srv.URL+"/rules/", validRuleBody)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created handler.RuleResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	return created
}

func TestCreateRule(t *testing.T) {
	srv := newServer(t)

	created := createRule(t, srv)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "policy review overdue", created.Name)
	assert.True(t, created.Active, "rules default to active")
	assert.Equal(t, "TIME_BASED", created.TriggerType)
}

func TestCreateRuleValidation(t *testing.T) {
	srv := newServer(t)

	cases := []struct {
		name string
		body string
	}{
		{"missing name", `{"trigger_type":"TIME_BASED","entity_type":"policy","field_name":"f","severity_score":3}`},
		{"severity score out of range", `{"name":"r","trigger_type":"TIME_BASED","entity_type":"policy","field_name":"f","severity_score":9}`},
		{"unknown operator", `{"name":"r","trigger_type":"TIME_BASED","entity_type":"policy","field_name":"f","severity_score":3,"condition":"NEARLY_EQUALS"}`},
		{"unknown trigger type", `{"name":"r","trigger_type":"VIBE_BASED","entity_type":"policy","field_name":"f","severity_score":3}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := doJSON(t, http.MethodPost, srv.URL+"/rules/", tc.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestGetRule(t *testing.T) {
	srv := newServer(t)
	created := createRule(t, srv)

	resp := doJSON(t, http.MethodGet, srv.URL+"/rules/"+created.ID, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got handler.RuleResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, created.ID, got.ID)
}

func TestGetRuleNotFound(t *testing.T) {
	srv := newServer(t)

	resp := doJSON(t, http.MethodGet, srv.URL+"/rules/3f2f4f9a-1f27-4a8a-9a92-0f0f5d8f4a10", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = doJSON(t, http.MethodGet, srv.URL+"/rules/not-a-uuid", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUpdateRule(t *testing.T) {
	srv := newServer(t)
	created := createRule(t, srv)

	var body bytes.Buffer
	require.NoError(t, json.NewEncoder(&body).Encode(map[string]any{
		"name":            "policy review overdue",
		"trigger_type":    "TIME_BASED",
		"entity_type":     "policy",
		"field_name":      "nextReviewDate",
		"threshold_value": 60,
		"severity_score":  2,
		"active":          false,
	}))

	resp := doJSON(t, http.MethodPut, srv.URL+"/rules/"+created.ID, body.String())
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var updated handler.RuleResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&updated))
	assert.False(t, updated.Active)
	assert.Equal(t, float64(60), updated.ThresholdValue)
	assert.True(t, updated.CreatedAt.Equal(created.CreatedAt), "updates preserve creation time")
}

func TestDeleteRule(t *testing.T) {
	srv := newServer(t)
	created := createRule(t, srv)

	resp := doJSON(t, http.MethodDelete, srv.URL+"/rules/"+created.ID, "")
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = doJSON(t, http.MethodGet, srv.URL+"/rules/"+created.ID, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListRules(t *testing.T) {
	srv := newServer(t)
	createRule(t, srv)
	createRule(t, srv)

	resp := doJSON(t, http.MethodGet, srv.URL+"/rules/", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var list handler.ListResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	assert.Len(t, list.Rules, 2)
}
