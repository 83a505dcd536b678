package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shiftforge/escrow-payout-service/internal/domain"
)

// Client talks to the external payment processor over HTTPS JSON. Every
// mutating call carries the caller's idempotency key in the Idempotency-Key
// header, so the processor deduplicates retries after timeouts. Amount
// validation happens before any network I/O.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type holdRequest struct {
	PayerRef    string `json:"payer_ref"`
	AmountMinor int64  `json:"amount_minor"`
}

type transferRequest struct {
	PayeeRef    string `json:"payee_ref"`
	AmountMinor int64  `json:"amount_minor"`
}

type refundRequest struct {
	HoldRef     string `json:"hold_ref"`
	AmountMinor int64  `json:"amount_minor"`
}

type gatewayResponse struct {
	Ref     string `json:"ref"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

func (c *Client) CaptureHold(ctx context.Context, payerRef string, amountMinor int64, idemKey string) (string, error) {
	if err := validateCall(payerRef, amountMinor, idemKey); err != nil {
		return "", err
	}
	return c.post(ctx, "/v1/holds", holdRequest{PayerRef: payerRef, AmountMinor: amountMinor}, idemKey)
}

func (c *Client) Transfer(ctx context.Context, payeeRef string, amountMinor int64, idemKey string) (string, error) {
	if err := validateCall(payeeRef, amountMinor, idemKey); err != nil {
		return "", err
	}
	return c.post(ctx, "/v1/transfers", transferRequest{PayeeRef: payeeRef, AmountMinor: amountMinor}, idemKey)
}

func (c *Client) Refund(ctx context.Context, holdRef string, amountMinor int64, idemKey string) (string, error) {
	if err := validateCall(holdRef, amountMinor, idemKey); err != nil {
		return "", err
	}
	return c.post(ctx, "/v1/refunds", refundRequest{HoldRef: holdRef, AmountMinor: amountMinor}, idemKey)
}

func validateCall(ref string, amountMinor int64, idemKey string) error {
	if strings.TrimSpace(ref) == "" || strings.TrimSpace(idemKey) == "" {
		return domain.ErrInvalidInput
	}
	if amountMinor <= 0 {
		return domain.ErrInvalidAmount
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, payload any, idemKey string) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", idemKey)
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	var decoded gatewayResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", domain.ErrGatewayUnavailable, err)
	}
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if decoded.Ref == "" {
			return "", fmt.Errorf("%w: empty reference", domain.ErrGatewayUnavailable)
		}
		return decoded.Ref, nil
	case resp.StatusCode == http.StatusPaymentRequired || resp.StatusCode == http.StatusUnprocessableEntity:
		return "", fmt.Errorf("%w: %s", domain.ErrGatewayDeclined, decoded.Message)
	default:
		return "", fmt.Errorf("%w: status %d: %s", domain.ErrGatewayUnavailable, resp.StatusCode, decoded.Message)
	}
}
