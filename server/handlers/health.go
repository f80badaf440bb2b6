package handlers

import (
	"encoding/json"
	"net/http"
)

// BreakerStater reports the circuit state of the completion client.
type BreakerStater interface {
	BreakerState() string
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status     string `json:"status"`
	Completion string `json:"completion"`
	Prompts    string `json:"prompts,omitempty"`
}

// HealthHandler reports liveness and whether completion calls are being
// short-circuited. version returns the active prompt set and may be nil.
func HealthHandler(completion BreakerStater, version func() string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{Status: "ok", Completion: completion.BreakerState()}
		if resp.Completion == "open" {
			resp.Status = "degraded"
		}
		if version != nil {
			resp.Prompts = version()
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}
}
