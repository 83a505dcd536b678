package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/shiftforge/escrow-payout-service/internal/contracts"
	"github.com/shiftforge/escrow-payout-service/internal/domain"
)

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeSuccess(w http.ResponseWriter, status int, message string, data interface{}) {
	writeJSON(w, status, contracts.SuccessResponse{
		Status:  "success",
		Message: message,
		Data:    data,
	})
}

func writeError(w http.ResponseWriter, status int, code, message, requestID string) {
	writeJSON(w, status, contracts.ErrorResponse{
		Status: "error",
		Error: contracts.ErrorPayload{
			Code:      code,
			Message:   message,
			RequestID: requestID,
		},
	})
}

func mapDomainError(err error) (status int, code string) {
	switch {
	case err == nil:
		return http.StatusOK, ""
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrInvalidAmount), errors.Is(err, domain.ErrAmountOverflow):
		return http.StatusBadRequest, "invalid_amount"
	case errors.Is(err, domain.ErrSplitMismatch):
		return http.StatusBadRequest, "split_mismatch"
	case errors.Is(err, domain.ErrInvalidEnvelope):
		return http.StatusBadRequest, "invalid_envelope"
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest, "invalid_input"
	case errors.Is(err, domain.ErrIdempotencyRequired):
		return http.StatusBadRequest, "idempotency_key_required"
	case errors.Is(err, domain.ErrGatewayDeclined):
		return http.StatusPaymentRequired, "gateway_declined"
	case errors.Is(err, domain.ErrCoolingOffActive):
		return http.StatusPreconditionFailed, "cooling_off_active"
	case errors.Is(err, domain.ErrRecordDisputed):
		return http.StatusConflict, "record_disputed"
	case errors.Is(err, domain.ErrNoOpenDispute):
		return http.StatusConflict, "no_open_dispute"
	case errors.Is(err, domain.ErrResolutionPinned):
		return http.StatusConflict, "resolution_pinned"
	case errors.Is(err, domain.ErrPayoutExhausted):
		return http.StatusConflict, "payout_exhausted"
	case errors.Is(err, domain.ErrAcknowledgmentClosed):
		return http.StatusConflict, "acknowledgment_closed"
	case errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrStatusConflict),
		errors.Is(err, domain.ErrIdempotencyConflict),
		errors.Is(err, domain.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, domain.ErrGatewayUnavailable):
		return http.StatusBadGateway, "gateway_unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
