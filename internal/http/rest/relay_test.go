package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/netdout/relay/internal/daemon"
	"github.com/netdout/relay/internal/interest"
	"github.com/netdout/relay/internal/router"
	"github.com/netdout/relay/internal/settings"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDaemon struct {
	server  *httptest.Server
	submits atomic.Int32
	lastReq atomic.Value
}

func newFakeDaemon(t *testing.T) *fakeDaemon {
	t.Helper()

	fd := &fakeDaemon{}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /downloads", func(w http.ResponseWriter, r *http.Request) {
		var req daemon.JobRequest
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) {
			w.WriteHeader(http.StatusBadRequest)

			return
		}

		fd.submits.Add(1)
		fd.lastReq.Store(req)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"42"}`))
	})
	mux.HandleFunc("GET /downloads/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "42" {
			w.WriteHeader(http.StatusNotFound)

			return
		}

		w.Write([]byte(`{"id":"42","status":"downloading","downloaded_bytes":10}`))
	})

	fd.server = httptest.NewServer(mux)
	t.Cleanup(fd.server.Close)

	return fd
}

func newTestHandler(t *testing.T, daemonURL string) (*RelayHandler, *settings.Endpoints) {
	t.Helper()

	endpoints := settings.NewEndpoints(settings.NewMemoryStore(), daemonURL)
	client := daemon.NewClient(endpoints)

	return NewRelayHandler(router.New(client), interest.NewFilter(), endpoints, nil), endpoints
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))

	return v
}

func TestHandleIntent_QueueThenStatus(t *testing.T) {
	fd := newFakeDaemon(t)
	h, _ := newTestHandler(t, fd.server.URL)
	routes := h.Routes()

	rec := doJSON(t, routes, http.MethodPost, "/intents", `{"type":"QUEUE","url":"http://x/a.zip"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	queued := decode[router.Result](t, rec)
	assert.True(t, queued.OK)
	assert.JSONEq(t, `{"id":"42"}`, string(queued.Data))
	assert.Equal(t, daemon.JobRequest{URL: "http://x/a.zip", Output: daemon.DefaultOutput}, fd.lastReq.Load())

	rec = doJSON(t, routes, http.MethodPost, "/intents", `{"type":"STATUS","id":"42"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	status := decode[router.Result](t, rec)
	assert.True(t, status.OK)
	assert.JSONEq(t, `{"id":"42","status":"downloading","downloaded_bytes":10}`, string(status.Data))
}

func TestHandleIntent_DaemonFailureIsReportedInBody(t *testing.T) {
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer failing.Close()

	h, _ := newTestHandler(t, failing.URL)

	rec := doJSON(t, h.Routes(), http.MethodPost, "/intents", `{"type":"QUEUE","url":"http://x/a.zip"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	result := decode[router.Result](t, rec)
	assert.False(t, result.OK)
	assert.Equal(t, "daemon error: 500", result.Error)
	assert.Empty(t, result.Data)
}

func TestHandleIntent_Rejections(t *testing.T) {
	h, _ := newTestHandler(t, "http://127.0.0.1:1")

	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "unknown type", body: `{"type":"PING"}`, want: "unsupported intent type: PING"},
		{name: "bad json", body: `{"type":`, want: "invalid request body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, h.Routes(), http.MethodPost, "/intents", tt.body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)

			result := decode[router.Result](t, rec)
			assert.False(t, result.OK)
			assert.Equal(t, tt.want, result.Error)
		})
	}
}

func TestHandleCapture(t *testing.T) {
	fd := newFakeDaemon(t)
	h, _ := newTestHandler(t, fd.server.URL)
	routes := h.Routes()

	t.Run("not interesting", func(t *testing.T) {
		rec := doJSON(t, routes, http.MethodPost, "/capture", `{"href":"http://x/page.html","ctrlKey":true}`)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"captured":false}`, rec.Body.String())
		assert.EqualValues(t, 0, fd.submits.Load())
	})

	t.Run("no modifier", func(t *testing.T) {
		rec := doJSON(t, routes, http.MethodPost, "/capture", `{"href":"http://x/a.zip"}`)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"captured":false}`, rec.Body.String())
		assert.EqualValues(t, 0, fd.submits.Load())
	})

	t.Run("captured", func(t *testing.T) {
		rec := doJSON(t, routes, http.MethodPost, "/capture", `{"href":"http://x/movie.MKV","metaKey":true}`)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"captured":true,"ok":true,"data":{"id":"42"}}`, rec.Body.String())
		assert.EqualValues(t, 1, fd.submits.Load())
		assert.Equal(t, daemon.JobRequest{URL: "http://x/movie.MKV", Output: interest.CaptureOutput}, fd.lastReq.Load())
	})
}

func TestSettings_GetAndPut(t *testing.T) {
	h, endpoints := newTestHandler(t, "")
	routes := h.Routes()

	rec := doJSON(t, routes, http.MethodGet, "/settings", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, SettingsPayload{
		DaemonURL: settings.DefaultDaemonURL,
		Default:   settings.DefaultDaemonURL,
	}, decode[SettingsPayload](t, rec))

	rec = doJSON(t, routes, http.MethodPut, "/settings", `{"daemonUrl":"  http://10.0.0.5:9000  "}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "http://10.0.0.5:9000", decode[SettingsPayload](t, rec).DaemonURL)
	assert.Equal(t, settings.Endpoint("http://10.0.0.5:9000"), endpoints.Endpoint(context.Background()))

	rec = doJSON(t, routes, http.MethodPut, "/settings", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleHealth(t *testing.T) {
	h, _ := newTestHandler(t, "")

	rec := doJSON(t, h.Routes(), http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}
