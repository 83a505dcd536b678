package http

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/shiftforge/escrow-payout-service/internal/application"
	"github.com/shiftforge/escrow-payout-service/internal/contracts"
)

func (h *Handler) hold(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	var req contracts.HoldRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error(), requestIDFromContext(r.Context()))
		return
	}
	record, err := h.service.Hold(r.Context(), actor, application.HoldInput{
		AssignmentID: strings.TrimSpace(req.AssignmentID),
	})
	if err != nil {
		status, code := mapDomainError(err)
		writeError(w, status, code, err.Error(), requestIDFromContext(r.Context()))
		return
	}
	writeSuccess(w, http.StatusCreated, "", record)
}

func (h *Handler) getRecord(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	record, err := h.service.GetRecord(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		status, code := mapDomainError(err)
		writeError(w, status, code, err.Error(), requestIDFromContext(r.Context()))
		return
	}
	writeSuccess(w, http.StatusOK, "", record)
}

func (h *Handler) listLedger(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	entries, err := h.service.ListLedger(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		status, code := mapDomainError(err)
		writeError(w, status, code, err.Error(), requestIDFromContext(r.Context()))
		return
	}
	writeSuccess(w, http.StatusOK, "", map[string]interface{}{
		"items": entries,
	})
}

func (h *Handler) release(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	var req contracts.ReleaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error(), requestIDFromContext(r.Context()))
		return
	}
	record, err := h.service.Release(r.Context(), actor, application.ReleaseInput{
		RecordID:    chi.URLParam(r, "id"),
		HoursActual: req.HoursActual,
	})
	if err != nil {
		status, code := mapDomainError(err)
		writeError(w, status, code, err.Error(), requestIDFromContext(r.Context()))
		return
	}
	writeSuccess(w, http.StatusOK, "", record)
}

func (h *Handler) payout(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	record, err := h.service.Payout(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		status, code := mapDomainError(err)
		writeError(w, status, code, err.Error(), requestIDFromContext(r.Context()))
		return
	}
	writeSuccess(w, http.StatusOK, "", record)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	record, err := h.service.Cancel(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		status, code := mapDomainError(err)
		writeError(w, status, code, err.Error(), requestIDFromContext(r.Context()))
		return
	}
	writeSuccess(w, http.StatusOK, "", record)
}

func (h *Handler) openDispute(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	var req contracts.OpenDisputeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error(), requestIDFromContext(r.Context()))
		return
	}
	record, err := h.service.OpenDispute(r.Context(), actor, chi.URLParam(r, "id"), strings.TrimSpace(req.Reason))
	if err != nil {
		status, code := mapDomainError(err)
		writeError(w, status, code, err.Error(), requestIDFromContext(r.Context()))
		return
	}
	writeSuccess(w, http.StatusOK, "", record)
}

func (h *Handler) resolveDispute(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	var req contracts.ResolveDisputeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error(), requestIDFromContext(r.Context()))
		return
	}
	record, err := h.service.ResolveDispute(r.Context(), actor, application.ResolveDisputeInput{
		RecordID:            chi.URLParam(r, "id"),
		Resolution:          strings.ToLower(strings.TrimSpace(req.Resolution)),
		WorkerAmountMinor:   req.WorkerAmountMinor,
		BusinessRefundMinor: req.BusinessRefundMinor,
	})
	if err != nil {
		status, code := mapDomainError(err)
		writeError(w, status, code, err.Error(), requestIDFromContext(r.Context()))
		return
	}
	writeSuccess(w, http.StatusOK, "", record)
}

func (h *Handler) acknowledge(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	ack, err := h.service.Acknowledge(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		status, code := mapDomainError(err)
		writeError(w, status, code, err.Error(), requestIDFromContext(r.Context()))
		return
	}
	writeSuccess(w, http.StatusOK, "", ack)
}

func (h *Handler) workerStats(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	stats, err := h.service.GetWorkerStats(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		status, code := mapDomainError(err)
		writeError(w, status, code, err.Error(), requestIDFromContext(r.Context()))
		return
	}
	writeSuccess(w, http.StatusOK, "", stats)
}

func (h *Handler) runAcknowledgmentSweep(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	if actor.Role != "admin" && actor.Role != "system" {
		writeError(w, http.StatusForbidden, "forbidden", "sweeps require admin or system role", requestIDFromContext(r.Context()))
		return
	}
	report, err := h.service.RunAcknowledgmentSweep(r.Context())
	if err != nil {
		status, code := mapDomainError(err)
		writeError(w, status, code, err.Error(), requestIDFromContext(r.Context()))
		return
	}
	writeSuccess(w, http.StatusOK, "", contracts.SweepReportResponse{
		Scanned:   report.Scanned,
		Reminded:  report.Reminded,
		Cancelled: report.Cancelled,
		Skipped:   report.Skipped,
	})
}

func (h *Handler) runPayoutSweep(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	if actor.Role != "admin" && actor.Role != "system" {
		writeError(w, http.StatusForbidden, "forbidden", "sweeps require admin or system role", requestIDFromContext(r.Context()))
		return
	}
	report, err := h.service.RunPayoutSweep(r.Context())
	if err != nil {
		status, code := mapDomainError(err)
		writeError(w, status, code, err.Error(), requestIDFromContext(r.Context()))
		return
	}
	writeSuccess(w, http.StatusOK, "", contracts.SweepReportResponse{
		Scanned:   report.Scanned,
		Attempted: report.Attempted,
		Succeeded: report.Succeeded,
		Failed:    report.Failed,
		Skipped:   report.Skipped,
	})
}
