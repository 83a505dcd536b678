package domain

import "time"

const (
	LedgerEntryEscrowHold     = "escrow_hold"
	LedgerEntryEscrowRefund   = "escrow_refund"
	LedgerEntryWorkerPayout   = "worker_payout"
	LedgerEntryBusinessRefund = "business_refund"
	LedgerEntryPlatformFee    = "platform_fee"
	LedgerEntryTaxWithheld    = "tax_withheld"
)

const (
	LedgerDirectionDebit  = "debit"
	LedgerDirectionCredit = "credit"
)

// LedgerEntry is one append-only row of the financial audit trail. Entries are
// never updated or deleted; the entry set for a record must always sum back to
// the captured escrow amount once the record is terminal.
type LedgerEntry struct {
	EntryID      string    `json:"entry_id"`
	RecordID     string    `json:"record_id"`
	AssignmentID string    `json:"assignment_id"`
	EntryType    string    `json:"entry_type"`
	Direction    string    `json:"direction"`
	AmountMinor  int64     `json:"amount_minor"`
	PartyID      string    `json:"party_id"`
	GatewayRef   string    `json:"gateway_ref,omitempty"`
	Note         string    `json:"note,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}
