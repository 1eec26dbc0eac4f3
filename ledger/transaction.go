package ledger

import (
	"time"

	"github.com/google/uuid"
)

type TransactionType string

const (
	TypeCredit     TransactionType = "credit"
	TypeDebit      TransactionType = "debit"
	TypeTransfer   TransactionType = "transfer"
	TypeJournal    TransactionType = "journal"
	TypeRefund     TransactionType = "refund"
	TypeCorrection TransactionType = "correction"
	TypeAdjustment TransactionType = "adjustment"
)

type TransactionStatus string

const (
	StatusPending  TransactionStatus = "pending"
	StatusInflight TransactionStatus = "inflight"
	StatusPosted   TransactionStatus = "posted"
	StatusExpired  TransactionStatus = "expired"
	StatusVoided   TransactionStatus = "voided"
	StatusReversed TransactionStatus = "reversed"
)

// Transaction is written once with status=posted and never mutated.
// Reversals are new rows carrying ParentID.
type Transaction struct {
	ID                   uuid.UUID
	LedgerID             uuid.UUID
	Reference            string
	Type                 TransactionType
	Status               TransactionStatus
	Amount               int64
	Currency             string
	Description          string
	SourceAccountID      *uuid.UUID
	DestinationAccountID *uuid.UUID
	CorrelationID        uuid.UUID
	IsReversal           bool
	ParentID             *uuid.UUID
	Metadata             map[string]any
	CreatedAt            time.Time
	PostedAt             *time.Time
	EffectiveDate        time.Time
}

type EntryType string

const (
	EntryDebit  EntryType = "DEBIT"
	EntryCredit EntryType = "CREDIT"
)

// Entry is a single leg of a transaction. For hot (system account) legs
// the balance snapshot columns are nil because the balance advances in
// a later batch.
type Entry struct {
	ID                 uuid.UUID
	LedgerID           uuid.UUID
	TransactionID      uuid.UUID
	AccountID          *uuid.UUID
	SystemAccountID    *uuid.UUID
	EntryType          EntryType
	Amount             int64
	Currency           string
	BalanceBefore      *int64
	BalanceAfter       *int64
	AccountLockVersion *int64
	IsHotAccount       bool
	OriginalAmount     *int64
	OriginalCurrency   string
	ExchangeRate       *int64
	CreatedAt          time.Time
}

// TransactionResult is the value cached by the idempotency layer and
// returned to callers of every posting operation.
type TransactionResult struct {
	Transaction *Transaction `json:"transaction"`
	Entries     []Entry      `json:"entries"`
}
