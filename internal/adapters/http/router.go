package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/shiftforge/escrow-payout-service/internal/application"
)

type Handler struct {
	service *application.Service
}

func NewHandler(service *application.Service) *Handler {
	return &Handler{service: service}
}

func NewRouter(handler *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { writeSuccess(w, http.StatusOK, "ok", nil) })
	r.Get("/readyz", func(w http.ResponseWriter, _ *http.Request) { writeSuccess(w, http.StatusOK, "ready", nil) })

	r.Route("/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware)
			r.Post("/escrows/hold", handler.hold)
			r.Get("/escrows/{id}", handler.getRecord)
			r.Get("/escrows/{id}/ledger", handler.listLedger)
			r.Post("/escrows/{id}/release", handler.release)
			r.Post("/escrows/{id}/payout", handler.payout)
			r.Post("/escrows/{id}/cancel", handler.cancel)
			r.Post("/escrows/{id}/dispute", handler.openDispute)
			r.Post("/escrows/{id}/dispute/resolve", handler.resolveDispute)
			r.Post("/assignments/{id}/acknowledge", handler.acknowledge)
			r.Get("/workers/{id}/stats", handler.workerStats)
			r.Post("/sweeps/acknowledgments/run", handler.runAcknowledgmentSweep)
			r.Post("/sweeps/payouts/run", handler.runPayoutSweep)
		})
	})
	return r
}
