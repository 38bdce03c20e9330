package rest

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/netdout/relay/internal/daemon"
	"github.com/netdout/relay/internal/interest"
	"github.com/netdout/relay/internal/logctx"
	"github.com/netdout/relay/internal/router"
	"github.com/netdout/relay/internal/settings"
	"github.com/netdout/relay/internal/telemetry"
)

const maxBodySize = 1 << 20

// CaptureRequest is a link click reported by a page.
type CaptureRequest struct {
	Href string `json:"href"`
	interest.Gesture
}

// CaptureResponse reports whether a click was captured and, if so, the queue reply.
type CaptureResponse struct {
	Captured bool `json:"captured"`
	*router.Result
}

// SettingsPayload is the options form's view of the relay settings.
type SettingsPayload struct {
	DaemonURL string `json:"daemonUrl"`
	Default   string `json:"default,omitempty"`
}

// RelayHandler exposes the intent surface to UI collaborators.
type RelayHandler struct {
	dispatcher router.Dispatcher
	filter     *interest.Filter
	endpoints  *settings.Endpoints
	telemetry  *telemetry.Telemetry
}

// NewRelayHandler creates a new relay handler.
func NewRelayHandler(d router.Dispatcher, f *interest.Filter, e *settings.Endpoints, t *telemetry.Telemetry) *RelayHandler {
	return &RelayHandler{
		dispatcher: d,
		filter:     f,
		endpoints:  e,
		telemetry:  t,
	}
}

func (h *RelayHandler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", h.HandleHealth)
	r.Post("/intents", h.HandleIntent)
	r.Post("/capture", h.HandleCapture)
	r.Get("/settings", h.HandleGetSettings)
	r.Put("/settings", h.HandlePutSettings)

	return r
}

func (h *RelayHandler) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte("ok"))
}

// HandleIntent answers a QUEUE or STATUS message with {ok,data} or {ok,error}.
// Daemon failures are reported in the body with HTTP 200.
func (h *RelayHandler) HandleIntent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logctx.LoggerFromContext(ctx)

	var msg router.Message
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(&msg); err != nil {
		logger.WarnContext(ctx, "failed to decode intent", "err", err)
		writeJSON(w, r, http.StatusBadRequest, router.Result{Error: "invalid request body"})

		return
	}

	intent, ok := msg.Intent()
	if !ok {
		writeJSON(w, r, http.StatusBadRequest, router.Result{Error: "unsupported intent type: " + msg.Type})

		return
	}

	reply, ok := h.dispatcher.Dispatch(ctx, intent)
	if !ok {
		writeJSON(w, r, http.StatusBadRequest, router.Result{Error: "unsupported intent type: " + msg.Type})

		return
	}

	result, err := router.Await(ctx, reply)
	if err != nil {
		logger.InfoContext(ctx, "caller went away before the reply", "err", err)

		return
	}

	writeJSON(w, r, http.StatusOK, result)
}

// HandleCapture runs the interest filter on a clicked link and queues it when
// it qualifies.
func (h *RelayHandler) HandleCapture(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logctx.LoggerFromContext(ctx)

	var req CaptureRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(&req); err != nil {
		logger.WarnContext(ctx, "failed to decode capture", "err", err)
		writeJSON(w, r, http.StatusBadRequest, router.Result{Error: "invalid request body"})

		return
	}

	captured := h.filter.IsInteresting(req.Href, req.Gesture)
	h.telemetry.RecordCapture(ctx, captured)

	if !captured {
		writeJSON(w, r, http.StatusOK, CaptureResponse{Captured: false})

		return
	}

	logger.InfoContext(ctx, "link captured", "href", req.Href)

	reply, ok := h.dispatcher.Dispatch(ctx, router.QueueIntent{Request: daemon.JobRequest{
		URL:    req.Href,
		Output: interest.CaptureOutput,
	}})
	if !ok {
		writeJSON(w, r, http.StatusInternalServerError, router.Result{Error: "queue intents are not handled"})

		return
	}

	result, err := router.Await(ctx, reply)
	if err != nil {
		logger.InfoContext(ctx, "caller went away before the reply", "err", err)

		return
	}

	writeJSON(w, r, http.StatusOK, CaptureResponse{Captured: true, Result: &result})
}

func (h *RelayHandler) HandleGetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, SettingsPayload{
		DaemonURL: h.endpoints.Endpoint(r.Context()).String(),
		Default:   h.endpoints.Default().String(),
	})
}

func (h *RelayHandler) HandlePutSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logctx.LoggerFromContext(ctx)

	var payload SettingsPayload
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(&payload); err != nil {
		logger.WarnContext(ctx, "failed to decode settings", "err", err)
		http.Error(w, "invalid request body", http.StatusBadRequest)

		return
	}

	if err := h.endpoints.Set(ctx, payload.DaemonURL); err != nil {
		logger.ErrorContext(ctx, "failed to save daemon url", "err", err)
		http.Error(w, "failed to save settings", http.StatusInternalServerError)

		return
	}

	logger.InfoContext(ctx, "daemon url updated", "daemon_url", h.endpoints.Endpoint(ctx))

	h.HandleGetSettings(w, r)
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil && !errors.Is(err, http.ErrHandlerTimeout) {
		logctx.LoggerFromContext(r.Context()).ErrorContext(r.Context(), "failed to encode response", "err", err)
	}
}
