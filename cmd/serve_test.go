package main

import (
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/contract-intel/internal/store"
)

func newServeEnv(t *testing.T) (*pipelineEnv, *store.SQLiteStore) {
	t.Helper()
	st := newTestStore(t)
	return &pipelineEnv{Store: st}, st
}

func doRequest(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestServeHealth(t *testing.T) {
	env, _ := newServeEnv(t)
	h := newRouter(env)

	rec := doRequest(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody(t, rec)["status"])
}

func TestServeGetContract(t *testing.T) {
	env, st := newServeEnv(t)
	id := seedOpenContract(t, st)
	h := newRouter(env)

	rec := doRequest(t, h, http.MethodGet, "/contracts/"+id, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, id, body["id"])

	rec = doRequest(t, h, http.MethodGet, "/contracts/nonexistent", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServeListContracts(t *testing.T) {
	env, st := newServeEnv(t)
	seedOpenContract(t, st)
	h := newRouter(env)

	rec := doRequest(t, h, http.MethodGet, "/contracts?status=needs_clarification", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	var recs []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &recs))
	assert.Len(t, recs, 1)

	rec = doRequest(t, h, http.MethodGet, "/contracts?status=finalized", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	recs = nil
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &recs))
	assert.Empty(t, recs)
}

func TestServeClarificationFlow(t *testing.T) {
	env, st := newServeEnv(t)
	id := seedOpenContract(t, st)
	h := newRouter(env)

	rec := doRequest(t, h, http.MethodGet, "/contracts/"+id+"/clarifications", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "awaiting_answers", body["state"])
	assert.Equal(t, 2.0, body["pending"])

	// Answer one question.
	rec = doRequest(t, h, http.MethodPost, "/contracts/"+id+"/clarifications/total_value",
		`{"value": 60000}`)
	require.Equal(t, http.StatusOK, rec.Code)
	body = decodeBody(t, rec)
	assert.Equal(t, "partially_resolved", body["state"])
	assert.Equal(t, 1.0, body["pending"])

	// Repeat answers hit the write-once rule.
	rec = doRequest(t, h, http.MethodPost, "/contracts/"+id+"/clarifications/total_value",
		`{"value": 70000}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Unknown fields are not answerable.
	rec = doRequest(t, h, http.MethodPost, "/contracts/"+id+"/clarifications/bogus",
		`{"value": 1}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Invalid values are rejected without consuming the question.
	rec = doRequest(t, h, http.MethodPost, "/contracts/"+id+"/clarifications/start_date",
		`{"value": "not a date"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = doRequest(t, h, http.MethodPost, "/contracts/"+id+"/clarifications/start_date",
		`{"value": "2024-01-15"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	// Apply merges and finalizes.
	rec = doRequest(t, h, http.MethodPost, "/contracts/"+id+"/apply", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body = decodeBody(t, rec)
	assert.Equal(t, 0.0, body["pending"])

	got := doRequest(t, h, http.MethodGet, "/contracts/"+id, "")
	assert.Contains(t, got.Body.String(), "finalized")
}

func TestServeApplyRejectedContract(t *testing.T) {
	env, st := newServeEnv(t)
	id := seedRejectedContract(t, st)
	h := newRouter(env)

	rec := doRequest(t, h, http.MethodPost, "/contracts/"+id+"/apply", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "no extraction result")
}

func TestGracefulShutdownDrainsInFlight(t *testing.T) {
	started := make(chan struct{})
	handler := http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		close(started)
		time.Sleep(150 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)

	type reply struct {
		code int
		err  error
	}
	done := make(chan reply, 1)
	go func() {
		resp, err := http.Get("http://" + ln.Addr().String())
		if err != nil {
			done <- reply{err: err}
			return
		}
		resp.Body.Close()
		done <- reply{code: resp.StatusCode}
	}()

	<-started
	gracefulShutdown(srv, 2*time.Second)

	got := <-done
	require.NoError(t, got.err, "in-flight request completes during shutdown")
	assert.Equal(t, http.StatusOK, got.code)
}

func TestServeStats(t *testing.T) {
	env, st := newServeEnv(t)
	seedOpenContract(t, st)
	h := newRouter(env)

	rec := doRequest(t, h, http.MethodGet, "/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, 1.0, body["contracts_total"])
	assert.Equal(t, 1.0, body["needs_clarification"])
	assert.Equal(t, 2.0, body["open_questions"])

	rec = doRequest(t, h, http.MethodGet, "/stats?lookback_hours=bogus", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServeIngestRequiresPath(t *testing.T) {
	env, _ := newServeEnv(t)
	h := newRouter(env)

	rec := doRequest(t, h, http.MethodPost, "/contracts", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
