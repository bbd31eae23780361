package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heysubinoy/asyncstore/internal/store"
	"github.com/heysubinoy/asyncstore/pkg/kv"
)

type brokenStore struct{ *store.MemStore }

func (brokenStore) Set(string, string) error { return errors.New("disk full") }

func newTestHTTP(t *testing.T) (*httptest.Server, *store.InstrumentedStore) {
	t.Helper()
	is := store.NewInstrumentedStore(store.NewMemStore())
	srv := NewServer(kv.New(is), nil, nil)
	ts := httptest.NewServer(srv.Handler(RegisterMetrics(is)))
	t.Cleanup(ts.Close)
	return ts, is
}

func do(t *testing.T, method, url, body string) *http.Response {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, r)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

func TestHTTP_SetGetRemove(t *testing.T) {
	ts, _ := newTestHTTP(t)

	resp := do(t, http.MethodPut, ts.URL+"/v1/items/foo", `{"value":"bar"}`)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(RequestIDHeader))

	resp = do(t, http.MethodGet, ts.URL+"/v1/items/foo", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "bar", readBody(t, resp))

	resp = do(t, http.MethodDelete, ts.URL+"/v1/items/foo", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = do(t, http.MethodGet, ts.URL+"/v1/items/foo", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHTTP_RequestIDIsEchoed(t *testing.T) {
	ts, _ := newTestHTTP(t)

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/v1/length", nil)
	require.NoError(t, err)
	req.Header.Set(RequestIDHeader, "req-42")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "req-42", resp.Header.Get(RequestIDHeader))
}

func TestHTTP_SetRejectsBadBody(t *testing.T) {
	ts, _ := newTestHTTP(t)

	for _, body := range []string{`not json`, `{}`, `{"value": 1}`} {
		resp := do(t, http.MethodPut, ts.URL+"/v1/items/foo", body)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, body)
	}
}

func TestHTTP_KeysLengthClear(t *testing.T) {
	ts, _ := newTestHTTP(t)

	resp := do(t, http.MethodGet, ts.URL+"/v1/keys", "")
	assert.JSONEq(t, `{"keys":[]}`, readBody(t, resp))

	do(t, http.MethodPost, ts.URL+"/v1/multi/set", `{"pairs":[["b","2"],["a","1"]]}`)

	resp = do(t, http.MethodGet, ts.URL+"/v1/keys", "")
	assert.JSONEq(t, `{"keys":["a","b"]}`, readBody(t, resp))

	resp = do(t, http.MethodGet, ts.URL+"/v1/length", "")
	assert.JSONEq(t, `{"length":2}`, readBody(t, resp))

	resp = do(t, http.MethodDelete, ts.URL+"/v1/items", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = do(t, http.MethodGet, ts.URL+"/v1/length", "")
	assert.JSONEq(t, `{"length":0}`, readBody(t, resp))
}

func TestHTTP_Merge(t *testing.T) {
	ts, _ := newTestHTTP(t)

	do(t, http.MethodPut, ts.URL+"/v1/items/user", `{"value":"{\"name\":\"ann\"}"}`)

	resp := do(t, http.MethodPost, ts.URL+"/v1/items/user/merge", `{"value":"{\"age\":30}"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"value":"{\"name\":\"ann\",\"age\":30}"}`, readBody(t, resp))

	resp = do(t, http.MethodPost, ts.URL+"/v1/items/missing/merge", `{"value":"{}"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"value":null}`, readBody(t, resp))
}

func TestHTTP_MultiOperations(t *testing.T) {
	ts, _ := newTestHTTP(t)

	resp := do(t, http.MethodPost, ts.URL+"/v1/multi/set", `{"pairs":[["a","[1]"],["b","x"]]}`)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = do(t, http.MethodPost, ts.URL+"/v1/multi/get", `{"keys":["a","nope","b"]}`)
	assert.JSONEq(t, `{"values":["[1]",null,"x"]}`, readBody(t, resp))

	resp = do(t, http.MethodPost, ts.URL+"/v1/multi/merge", `{"pairs":[["a","[2]"],["nope","{}"]]}`)
	assert.JSONEq(t, `{"values":["[1,[2]]",null]}`, readBody(t, resp))

	resp = do(t, http.MethodPost, ts.URL+"/v1/multi/remove", `{"keys":["a","b"]}`)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = do(t, http.MethodGet, ts.URL+"/v1/keys", "")
	assert.JSONEq(t, `{"keys":[]}`, readBody(t, resp))
}

func TestHTTP_MultiSetRejectsMalformedPairs(t *testing.T) {
	ts, _ := newTestHTTP(t)

	resp := do(t, http.MethodPost, ts.URL+"/v1/multi/set", `{"pairs":[["only-key"]]}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHTTP_InvalidKey(t *testing.T) {
	ts, _ := newTestHTTP(t)

	resp := do(t, http.MethodPost, ts.URL+"/v1/multi/get", `{"keys":[""]}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHTTP_StoreFailure(t *testing.T) {
	srv := NewServer(kv.New(brokenStore{store.NewMemStore()}), nil, nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp := do(t, http.MethodPut, ts.URL+"/v1/items/foo", `{"value":"bar"}`)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.NotContains(t, readBody(t, resp), "disk full")
}

func TestHTTP_Metrics(t *testing.T) {
	ts, _ := newTestHTTP(t)

	do(t, http.MethodPut, ts.URL+"/v1/items/foo", `{"value":"bar"}`)
	do(t, http.MethodGet, ts.URL+"/v1/items/foo", "")
	do(t, http.MethodGet, ts.URL+"/v1/items/foo", "")

	resp := do(t, http.MethodGet, ts.URL+"/metrics", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Operations map[string]uint64 `json:"operations"`
		Errors     map[string]uint64 `json:"errors"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, uint64(1), body.Operations["set"])
	assert.Equal(t, uint64(2), body.Operations["get"])
	assert.Equal(t, uint64(0), body.Errors["get"])

	resp = do(t, http.MethodPost, ts.URL+"/metrics", "")
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
