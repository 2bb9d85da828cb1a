package nats

import (
	"time"

	"github.com/brojonat/solsync/service/ledger"
)

// OperationEvent represents a derived ledger operation published to NATS.
// This is published to the subject "ops.{account_address}" in JetStream.
type OperationEvent struct {
	// Operation identifiers
	OperationID string `json:"operation_id"`
	TxHash      string `json:"tx_hash"`

	// Account information
	AccountID      string `json:"account_id"`
	AccountAddress string `json:"account_address"` // Main wallet address

	// Operation details
	Kind       string   `json:"kind"`
	Value      int64    `json:"value"`
	Fee        uint64   `json:"fee"`
	Senders    []string `json:"senders,omitempty"`
	Recipients []string `json:"recipients,omitempty"`
	Memo       string   `json:"memo,omitempty"`
	HasFailed  bool     `json:"has_failed"`

	// Timing information
	BlockHeight uint64    `json:"block_height"`
	Date        time.Time `json:"date"`

	// Metadata
	PublishedAt time.Time `json:"published_at"`
}

// FromOperation converts a derived operation to an OperationEvent for
// publishing. accountAddress is the main wallet the operation belongs to,
// also for sub-account operations.
func FromOperation(op *ledger.Operation, accountAddress string) *OperationEvent {
	event := &OperationEvent{
		OperationID:    op.ID,
		TxHash:         op.TxHash,
		AccountID:      op.AccountID,
		AccountAddress: accountAddress,
		Kind:           string(op.Kind),
		Value:          op.Value,
		Fee:            op.Fee,
		Senders:        op.Senders,
		Recipients:     op.Recipients,
		HasFailed:      op.HasFailed,
		BlockHeight:    op.BlockHeight,
		Date:           op.Date,
		PublishedAt:    time.Now().UTC(),
	}

	if op.Memo != nil {
		event.Memo = *op.Memo
	}

	return event
}
