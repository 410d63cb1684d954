package handlers

import (
	"fmt"
	"net/http"
)

// TriggerDispatch runs the on-demand single-job driver and reports what
// happened, including why nothing did.
func (h *ServiceHandler) TriggerDispatch(w http.ResponseWriter, r *http.Request) {
	result, err := h.dispatcher.DispatchOne(r.Context())
	if err != nil {
		h.logger.Errorw("on-demand dispatch failed", "error", err)
		h.writeError(w, r, http.StatusInternalServerError, fmt.Sprintf("dispatch failed: %v", err))
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// TriggerTick runs one periodic-style batch tick synchronously. It backs
// external cron schedulers that prefer to drive ticks over HTTP.
func (h *ServiceHandler) TriggerTick(w http.ResponseWriter, r *http.Request) {
	h.dispatcher.RunTick(r.Context())
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "tick completed"})
}

func (h *ServiceHandler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
