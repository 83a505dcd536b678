package contracts

type SuccessResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

type ErrorPayload struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

type ErrorResponse struct {
	Status string       `json:"status"`
	Error  ErrorPayload `json:"error"`
}

type Pagination struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
	Total  int `json:"total"`
}

type HoldRequest struct {
	AssignmentID string `json:"assignment_id"`
}

type ReleaseRequest struct {
	HoursActual float64 `json:"hours_actual"`
}

type OpenDisputeRequest struct {
	Reason string `json:"reason"`
}

type ResolveDisputeRequest struct {
	Resolution          string `json:"resolution"`
	WorkerAmountMinor   int64  `json:"worker_amount_minor,omitempty"`
	BusinessRefundMinor int64  `json:"business_refund_minor,omitempty"`
}

type SweepReportResponse struct {
	Scanned   int `json:"scanned"`
	Reminded  int `json:"reminded,omitempty"`
	Cancelled int `json:"cancelled,omitempty"`
	Attempted int `json:"attempted,omitempty"`
	Succeeded int `json:"succeeded,omitempty"`
	Failed    int `json:"failed,omitempty"`
	Skipped   int `json:"skipped,omitempty"`
}
