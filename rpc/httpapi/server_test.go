package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ulikoehler/YakDB-sub001/lib/lifecycle"
	"github.com/ulikoehler/YakDB-sub001/lib/tablespace"
)

func newTestServer(t *testing.T) (*httptest.Server, *lifecycle.Registry) {
	t.Helper()
	tables, err := tablespace.New(tablespace.Config{DataDir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = tables.Teardown() })

	registry := lifecycle.NewRegistry()
	srv := httptest.NewServer(NewRouter(Options{
		Tables:   tables,
		Registry: registry,
		Metrics: func(w io.Writer) {
			_, _ = io.WriteString(w, "yakdb_open_tables 1\n")
		},
		Info: func() ServerInfo {
			return ServerInfo{Version: "test", OpenTables: tables.OpenTables()}
		},
	}))
	t.Cleanup(srv.Close)
	return srv, registry
}

func do(t *testing.T, method, url, body string) (int, string) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(data)
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)
	status, body := do(t, http.MethodGet, srv.URL+"/health", "")
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"status":"OK"}`, body)
}

func TestPutGetDelete(t *testing.T) {
	srv, _ := newTestServer(t)
	key := srv.URL + "/api/tables/3/keys/hello"

	status, _ := do(t, http.MethodGet, key, "")
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = do(t, http.MethodPut, key+"?sync=full", "world")
	assert.Equal(t, http.StatusOK, status)

	status, body := do(t, http.MethodGet, key, "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "world", body)

	status, body = do(t, http.MethodGet, srv.URL+"/api/tables/3/count", "")
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"status":"success","count":1}`, body)

	status, _ = do(t, http.MethodDelete, key, "")
	assert.Equal(t, http.StatusOK, status)
	status, _ = do(t, http.MethodGet, key, "")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestEscapedKeys(t *testing.T) {
	srv, _ := newTestServer(t)

	status, _ := do(t, http.MethodPut, srv.URL+"/api/tables/0/keys/a%2Fb", "slash")
	require.Equal(t, http.StatusOK, status)
	status, _ = do(t, http.MethodPut, srv.URL+"/api/tables/0/keys/100%25", "percent")
	require.Equal(t, http.StatusOK, status)

	_, body := do(t, http.MethodGet, srv.URL+"/api/tables/0/keys/a%2Fb", "")
	assert.Equal(t, "slash", body)
	_, body = do(t, http.MethodGet, srv.URL+"/api/tables/0/keys/100%25", "")
	assert.Equal(t, "percent", body)

	// count over [a, b) only sees "a/b"
	_, body = do(t, http.MethodGet, srv.URL+"/api/tables/0/count?start=a&end=b", "")
	assert.JSONEq(t, `{"status":"success","count":1}`, body)
}

func TestBadRequests(t *testing.T) {
	srv, _ := newTestServer(t)

	status, _ := do(t, http.MethodGet, srv.URL+"/api/tables/notanumber/keys/a", "")
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = do(t, http.MethodPut, srv.URL+"/api/tables/1/keys/a?sync=sometimes", "x")
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestInfoAndMetrics(t *testing.T) {
	srv, _ := newTestServer(t)
	status, _ := do(t, http.MethodPut, srv.URL+"/api/tables/5/keys/a", "1")
	require.Equal(t, http.StatusOK, status)

	status, body := do(t, http.MethodGet, srv.URL+"/api/info", "")
	require.Equal(t, http.StatusOK, status)
	var info ServerInfo
	require.NoError(t, json.Unmarshal([]byte(body), &info))
	assert.Equal(t, "test", info.Version)
	assert.Equal(t, []uint32{5}, info.OpenTables)

	status, body = do(t, http.MethodGet, srv.URL+"/api/tables/5/info", "")
	require.Equal(t, http.StatusOK, status)
	var params []TableParam
	require.NoError(t, json.Unmarshal([]byte(body), &params))
	require.NotEmpty(t, params)
	assert.Equal(t, TableParam{Name: "index", Value: "5"}, params[0])

	status, body = do(t, http.MethodGet, srv.URL+"/metrics", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "yakdb_open_tables 1")
}

func TestDrainingRejects(t *testing.T) {
	srv, registry := newTestServer(t)
	require.NoError(t, registry.Drain(context.Background()))

	status, _ := do(t, http.MethodGet, srv.URL+"/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, status)
}
