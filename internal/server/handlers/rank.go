package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/dwsmith1983/riskreactor/pkg/types"
)

// Rank ranks one stored metric: GET /api/rank?kind=…&key=…[&tenant=…][&asOf=…].
// Without a tenant parameter the tenant is resolved from the domain.
func (h *Handlers) Rank(w http.ResponseWriter, r *http.Request) {
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
	tenantID, err := tenantParam(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid tenant", nil)
		return
	}
	if tenantID == uuid.Nil {
		tenantID, err = h.reactor.Registry().Tenant(r.Context(), h.reactor.Env(), job)
		if err != nil {
			h.writeError(w, statusFor(err), "tenant not resolvable", err)
			return
		}
	}

	res, err := h.reactor.Ranking().Rank(r.Context(), job.Kind, job.Key, tenantID, asOf)
	if err != nil {
		h.writeError(w, statusFor(err), "failed to rank", err)
		return
	}
	_ = json.NewEncoder(w).Encode(res)
}

// RankWorkPackages ranks a tenant's active work packages:
// GET /api/tenants/{tenantID}/work-packages/rank?date=YYYY-MM-DD.
func (h *Handlers) RankWorkPackages(w http.ResponseWriter, r *http.Request) {
	tenantID, err := uuid.Parse(urlParam(r, "tenantID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid tenant", nil)
		return
	}
	d := h.reactor.Env().Today()
	if raw := r.URL.Query().Get("date"); raw != "" {
		if d, err = types.ParseDate(raw); err != nil {
			h.writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD", nil)
			return
		}
	}

	ranks, err := h.reactor.Ranking().RankWorkPackages(r.Context(), tenantID, d)
	if err != nil {
		h.writeError(w, statusFor(err), "failed to rank work packages", err)
		return
	}
	_ = json.NewEncoder(w).Encode(ranks)
}
