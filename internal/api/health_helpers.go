package api

import (
	"net/http"
)

// Health reports service liveness and whether the backing store answers.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	storeStatus := "ok"
	if h.Store != nil {
		if err := h.Store.Ping(r.Context()); err != nil {
			status = "degraded"
			storeStatus = "unavailable"
		}
	} else {
		status = "degraded"
		storeStatus = "unconfigured"
	}
	payload := map[string]interface{}{
		"status": status,
		"services": map[string]string{
			"store": storeStatus,
		},
	}
	writeJSON(w, http.StatusOK, payload)
}
