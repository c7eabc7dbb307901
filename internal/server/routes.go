package server

import (
	"github.com/go-chi/chi/v5"

	"github.com/dwsmith1983/riskreactor/internal/server/handlers"
)

func (s *Server) registerRoutes(r chi.Router) {
	h := handlers.New(s.reactor)
	h.SetLogger(s.logger)

	r.Route("/api", func(r chi.Router) {
		// Health
		r.Get("/health", h.Health)

		// Intake
		r.Post("/triggers", h.PostTrigger)
		r.Post("/calcs", h.PostCalc)

		// Reads
		r.Get("/rank", h.Rank)
		r.Get("/tenants/{tenantID}/work-packages/rank", h.RankWorkPackages)
		r.Get("/explain", h.Explain)

		// Queue
		r.Get("/queue", h.QueueStatus)
	})
}
