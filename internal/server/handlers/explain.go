package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

func urlParam(r *http.Request, name string) string { return chi.URLParam(r, name) }

// Explain returns the dependency tree behind a stored metric:
// GET /api/explain?kind=…&key=…[&asOf=…][&format=text].
func (h *Handlers) Explain(w http.ResponseWriter, r *http.Request) {
	job, err := jobParams(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	asOf, err := asOfParam(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "asOf must be RFC 3339", nil)
		return
	}

	tree, err := h.reactor.Explainer().Explain(r.Context(), job.Kind, job.Key, asOf)
	if err != nil {
		h.writeError(w, statusFor(err), "failed to explain", err)
		return
	}

	if r.URL.Query().Get("format") == "text" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if err := tree.WriteText(w); err != nil {
			h.logger.Error("writing explain tree", "error", err)
		}
		return
	}
	_ = json.NewEncoder(w).Encode(tree)
}
