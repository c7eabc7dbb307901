package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/dwsmith1983/riskreactor/internal/queue"
)

type healthResponse struct {
	Status string       `json:"status"`
	Queue  *queue.Stats `json:"queue,omitempty"`
}

// Health reports liveness and the queue sizes. A queue backend that cannot
// be read yields "degraded" with a 200 so load balancers keep routing reads.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok"}
	if stats, err := h.reactor.Queue().Stats(r.Context()); err != nil {
		h.logger.Warn("health: queue stats unavailable", "error", err)
		resp.Status = "degraded"
	} else {
		resp.Queue = &stats
	}
	_ = json.NewEncoder(w).Encode(resp)
}
