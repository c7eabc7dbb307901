package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/dwsmith1983/riskreactor/internal/intake"
	"github.com/dwsmith1983/riskreactor/pkg/types"
)

// PostTrigger expands one trigger event and queues the affected jobs.
func (h *Handlers) PostTrigger(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		h.writeError(w, http.StatusRequestEntityTooLarge, "request body too large", err)
		return
	}
	ev, err := intake.DecodeEvent(raw)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	n, err := h.reactor.Add(r.Context(), ev)
	if err != nil {
		status := statusFor(err)
		h.writeError(w, status, fmt.Sprintf("trigger %s rejected", ev), err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]any{"trigger": ev, "queued": n})
}

// PostCalc queues one calculation job.
func (h *Handlers) PostCalc(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Kind string `json:"kind"`
		Key  string `json:"key"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON", err)
		return
	}
	job, err := types.ParseJob(body.Kind, body.Key)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	added, err := h.reactor.AddCalc(r.Context(), job)
	if err != nil {
		h.writeError(w, statusFor(err), fmt.Sprintf("job %s rejected", job), err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]any{"job": job.Identity(), "added": added})
}
