package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/dwsmith1983/riskreactor/internal/queue"
)

const defaultDeadLetterLimit = 50

// QueueStatus returns queue sizes and the newest dead letters:
// GET /api/queue[?limit=N].
func (h *Handlers) QueueStatus(w http.ResponseWriter, r *http.Request) {
	limit := defaultDeadLetterLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			h.writeError(w, http.StatusBadRequest, "limit must be a non-negative integer", nil)
			return
		}
		limit = n
	}

	q := h.reactor.Queue()
	stats, err := q.Stats(r.Context())
	if err != nil {
		h.writeError(w, statusFor(err), "failed to read queue stats", err)
		return
	}
	dead, err := q.DeadLetters(r.Context(), limit)
	if err != nil {
		h.writeError(w, statusFor(err), "failed to read dead letters", err)
		return
	}
	if dead == nil {
		dead = []queue.DeadLetter{}
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"stats": stats, "deadLetters": dead})
}
