package ledger

import (
	"time"

	"github.com/google/uuid"
)

// CreateAccountInput creates a user account. HolderID is unique per
// ledger.
type CreateAccountInput struct {
	LedgerID       uuid.UUID
	HolderID       string
	HolderType     HolderType
	Currency       string
	AllowOverdraft bool
	OverdraftLimit int64
	AccountType    string
	NormalBalance  NormalBalance
	Indicator      string
	Metadata       map[string]any
}

// CreateSystemAccountInput creates a ledger-owned account. Identifier
// must begin with "@".
type CreateSystemAccountInput struct {
	LedgerID   uuid.UUID
	Identifier string
	Currency   string
	Metadata   map[string]any
}

// MoveInput is the shared shape of credit and debit: one user leg
// against the world system account.
type MoveInput struct {
	LedgerID       uuid.UUID
	HolderID       string
	Amount         int64
	Currency       string
	Reference      string
	IdempotencyKey string
	Description    string
	Metadata       map[string]any
	EffectiveDate  time.Time
}

type TransferInput struct {
	LedgerID        uuid.UUID
	SourceHolderID  string
	DestHolderID    string
	Amount          int64
	Currency        string
	Reference       string
	IdempotencyKey  string
	Description     string
	Metadata        map[string]any
	EffectiveDate   time.Time
}

// MultiTransferDestination is one fan-out leg. Amount nil marks the
// single allowed remainder destination.
type MultiTransferDestination struct {
	HolderID string
	Amount   *int64
}

type MultiTransferInput struct {
	LedgerID       uuid.UUID
	SourceHolderID string
	Destinations   []MultiTransferDestination
	Amount         int64
	Currency       string
	Reference      string
	IdempotencyKey string
	Description    string
	Metadata       map[string]any
}

// JournalLeg targets either a user account (HolderID) or a system
// account (SystemIdentifier), exactly one of the two.
type JournalLeg struct {
	HolderID         string
	SystemIdentifier string
	Direction        EntryType
	Amount           int64
	Currency         string
}

type JournalInput struct {
	LedgerID       uuid.UUID
	Legs           []JournalLeg
	Reference      string
	IdempotencyKey string
	Description    string
	Metadata       map[string]any
}

type RefundInput struct {
	LedgerID       uuid.UUID
	TransactionID  uuid.UUID
	Reference      string
	IdempotencyKey string
	Description    string
}

type CorrectInput struct {
	LedgerID        uuid.UUID
	TransactionID   uuid.UUID
	CorrectedAmount int64
	Reference       string
	IdempotencyKey  string
	Description     string
}

type AdjustmentType string

const (
	AdjustmentIncrease AdjustmentType = "increase"
	AdjustmentDecrease AdjustmentType = "decrease"
)

type AdjustInput struct {
	LedgerID       uuid.UUID
	HolderID       string
	Amount         int64
	Currency       string
	Type           AdjustmentType
	Reference      string
	IdempotencyKey string
	Description    string
}

type CreateHoldInput struct {
	LedgerID             uuid.UUID
	SourceHolderID       string
	DestinationHolderID  string
	Amount               int64
	Currency             string
	Reference            string
	IdempotencyKey       string
	Description          string
	Metadata             map[string]any
	ExpiresAt            *time.Time
}

type CommitHoldInput struct {
	LedgerID        uuid.UUID
	HoldID          uuid.UUID
	CommittedAmount *int64
	Destinations    []HoldDestination
	Reference       string
	IdempotencyKey  string
}

// ListTransactionsFilter drives the query surface. Zero values mean "no
// filter"; AfterID is a keyset cursor over created_at+id.
type ListTransactionsFilter struct {
	LedgerID  uuid.UUID
	AccountID *uuid.UUID
	Type      TransactionType
	Status    TransactionStatus
	Limit     int
	AfterID   *uuid.UUID
}
