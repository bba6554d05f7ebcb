package response

import (
	"encoding/json"
	"net/http"
)

type SuccessEnvelope struct {
	Success bool `json:"success"`
	Data    any  `json:"data,omitempty"`
}

// WriteSuccess writes data in the success envelope. Probe responses can carry
// a 503 with a body, so Success follows the status code.
func (h *responseHandler) WriteSuccess(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)

	resp := SuccessEnvelope{
		Success: status < http.StatusBadRequest,
		Data:    data,
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.Log.Error("failed to encode response", "status", status, "error", err)
	}
}
