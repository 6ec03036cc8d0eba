package handler_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"govern/internal/alert"
	"govern/internal/alert/handler"
	"govern/internal/rule"
	"govern/pkg/domain"
)

func newServer(t *testing.T, rules ...*rule.Rule) (*httptest.Server, *alert.MemoryStore) {
	t.Helper()
	ruleStore := rule.NewMemoryStore()
	for _, rl := range rules {
		require.NoError(t, ruleStore.Create(context.Background(), rl))
	}
	alertStore := alert.NewMemoryStore()
	engine := alert.NewEngine(ruleStore, alertStore)

	r := chi.NewRouter()
	handler.New(engine, slog.New(slog.DiscardHandler)).Register(r)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, alertStore
}

func post(t *testing.T, srv *httptest.Server, path, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(srv.URL+path, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func thresholdRule(entityType string) *rule.Rule {
	return &rule.Rule{
		ID:             domain.NewRuleID(),
		Name:           "risk score",
		Active:         true,
		TriggerType:    rule.TriggerThresholdBased,
		EntityType:     entityType,
		FieldName:      "score",
		ThresholdValue: 7,
		SeverityScore:  3,
	}
}

func TestHandleEvaluate(t *testing.T) {
	srv, _ := newServer(t, thresholdRule("risk"))

	resp := post(t, srv, "/evaluate/risk", `{"entity_id":"risk-1","data":{"score":9}}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode[handler.EvaluateResponse](t, resp)
	require.Len(t, body.Alerts, 1)
	assert.Equal(t, "HIGH", body.Alerts[0].Severity)
	assert.Equal(t, "ACTIVE", body.Alerts[0].Status)
	assert.Equal(t, "risk-1", body.Alerts[0].RelatedEntityID)
}

func TestHandleEvaluateRejectsMissingEntityID(t *testing.T) {
	srv, _ := newServer(t)

	resp := post(t, srv, "/evaluate/risk", `{"data":{"score":9}}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleEvaluateRejectsMalformedBody(t *testing.T) {
	srv, _ := newServer(t)

	resp := post(t, srv, "/evaluate/risk", `{not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleEvaluateBatch(t *testing.T) {
	srv, _ := newServer(t, thresholdRule("risk"))

	resp := post(t, srv, "/evaluate/risk/batch", `{"entities":[
		{"entity_id":"risk-1","data":{"score":9}},
		{"entity_id":"risk-2","data":{"score":2}},
		{"entity_id":"risk-3","data":{"score":8}}
	]}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode[handler.BatchResponse](t, resp)
	assert.Equal(t, 3, body.Processed)
	assert.Equal(t, 0, body.Errors)
	assert.Len(t, body.Alerts, 2)
}

func TestHandleEvaluateBatchRejectsEmpty(t *testing.T) {
	srv, _ := newServer(t)

	resp := post(t, srv, "/evaluate/risk/batch", `{"entities":[]}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleResolve(t *testing.T) {
	srv, alertStore := newServer(t, thresholdRule("risk"))

	resp := post(t, srv, "/evaluate/risk", `{"entity_id":"risk-1","data":{"score":9}}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = post(t, srv, "/alerts/risk-1/resolve", `{"entity_type":"risk"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode[handler.ResolveResponse](t, resp)
	assert.Equal(t, 1, body.Resolved)

	active, err := alertStore.ListActive(context.Background(), "risk-1")
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestHandleCleanupRejectsBadRetention(t *testing.T) {
	srv, _ := newServer(t)

	resp := post(t, srv, "/maintenance/cleanup", `{"retention_days":0}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleCleanup(t *testing.T) {
	srv, _ := newServer(t)

	resp := post(t, srv, "/maintenance/cleanup", `{"retention_days":90}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode[handler.CleanupResponse](t, resp)
	assert.Zero(t, body.Deleted)
}
