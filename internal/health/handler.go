package health

import (
	"encoding/json"
	"net/http"
	"time"
)

// Handler serves the consumer's orchestration probes:
//
//	GET /health/startup: 200 once the first combined dependency check has
//	succeeded, 500 before that.
//	GET /health/live: 200 while a heartbeat has been observed within the
//	liveness window, 500 otherwise (the worker is presumed hung).
//	GET /health/ready: 200 only when both dependencies are healthy and the
//	liveness window has not elapsed; strictly more sensitive than liveness.
type Handler struct {
	state  *State
	window time.Duration
}

// NewHandler creates the probe handler. window is the liveness window,
// normally the long-poll wait plus a grace period.
func NewHandler(state *State, window time.Duration) *Handler {
	return &Handler{state: state, window: window}
}

// Routes registers the probe endpoints on mux.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health/startup", h.handleStartup)
	mux.HandleFunc("GET /health/live", h.handleLive)
	mux.HandleFunc("GET /health/ready", h.handleReady)
}

func (h *Handler) handleStartup(w http.ResponseWriter, _ *http.Request) {
	if !h.state.Snapshot().Started {
		writeStatus(w, http.StatusInternalServerError, "not-started")
		return
	}
	writeStatus(w, http.StatusOK, "started")
}

func (h *Handler) handleLive(w http.ResponseWriter, _ *http.Request) {
	if !h.state.Alive(h.window) {
		writeStatus(w, http.StatusInternalServerError, "dead")
		return
	}
	writeStatus(w, http.StatusOK, "alive")
}

func (h *Handler) handleReady(w http.ResponseWriter, _ *http.Request) {
	if !h.state.Snapshot().Ready() || !h.state.Alive(h.window) {
		writeStatus(w, http.StatusInternalServerError, "not-ready")
		return
	}
	writeStatus(w, http.StatusOK, "ready")
}

func writeStatus(w http.ResponseWriter, code int, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": status})
}
