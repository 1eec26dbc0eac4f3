package ledger

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type AggregateType string

const (
	AggregateAccount              AggregateType = "account"
	AggregateTransaction          AggregateType = "transaction"
	AggregateHold                 AggregateType = "hold"
	AggregateScheduledTransaction AggregateType = "scheduled_transaction"
)

// Event is one row of the append-only per-aggregate stream.
// SequenceNumber is globally monotonic; AggregateVersion is per-aggregate
// monotonic starting at 1. Hash covers the canonical JSON of EventData
// chained onto PrevHash.
type Event struct {
	ID               uuid.UUID
	LedgerID         uuid.UUID
	SequenceNumber   int64
	AggregateType    AggregateType
	AggregateID      uuid.UUID
	AggregateVersion int64
	EventType        string
	EventData        json.RawMessage
	CorrelationID    uuid.UUID
	Hash             string
	PrevHash         string
	CreatedAt        time.Time
}

// Event type names. These are part of the stable wire contract.
const (
	EventAccountCreated     = "AccountCreated"
	EventAccountFrozen      = "AccountFrozen"
	EventAccountUnfrozen    = "AccountUnfrozen"
	EventAccountClosed      = "AccountClosed"
	EventTransactionPosted  = "TransactionPosted"
	EventHoldCreated        = "HoldCreated"
	EventHoldCommitted      = "HoldCommitted"
	EventHoldVoided         = "HoldVoided"
	EventHoldExpired        = "HoldExpired"
)

// Payload shapes below are the stable event_data wire format. Hashing is
// performed over their canonical JSON, so field meaning must never change
// under an existing name.

type AccountCreatedData struct {
	HolderID       string `json:"holderId"`
	HolderType     string `json:"holderType"`
	Currency       string `json:"currency"`
	Indicator      string `json:"indicator,omitempty"`
	AllowOverdraft bool   `json:"allowOverdraft,omitempty"`
}

type AccountFrozenData struct {
	FrozenBy string `json:"frozenBy"`
	Reason   string `json:"reason,omitempty"`
}

type AccountUnfrozenData struct {
	UnfrozenBy string `json:"unfrozenBy"`
	Reason     string `json:"reason,omitempty"`
}

type AccountClosedData struct {
	ClosedBy           string `json:"closedBy"`
	Reason             string `json:"reason,omitempty"`
	FinalBalance       int64  `json:"finalBalance"`
	SweepTransactionID string `json:"sweepTransactionId,omitempty"`
}

type TransactionPostedData struct {
	PostedAt string             `json:"postedAt"`
	Entries  []PostedEntryData  `json:"entries"`
}

type PostedEntryData struct {
	AccountID     string `json:"accountId"`
	EntryType     string `json:"entryType"`
	Amount        int64  `json:"amount"`
	BalanceBefore *int64 `json:"balanceBefore,omitempty"`
	BalanceAfter  *int64 `json:"balanceAfter,omitempty"`
}

type HoldCreatedData struct {
	SourceAccountID      string `json:"sourceAccountId"`
	DestinationAccountID string `json:"destinationAccountId,omitempty"`
	Amount               int64  `json:"amount"`
	ExpiresAt            string `json:"expiresAt,omitempty"`
	Reference            string `json:"reference"`
}

type HoldCommittedData struct {
	CommittedAmount int64 `json:"committedAmount"`
	OriginalAmount  int64 `json:"originalAmount"`
}

type HoldVoidedData struct {
	Reason string `json:"reason,omitempty"`
}

type HoldExpiredData struct {
	ExpiredAt string `json:"expiredAt"`
}
