package ledger

import (
	"time"

	"github.com/google/uuid"
)

type HoldStatus string

const (
	HoldInflight HoldStatus = "inflight"
	HoldPosted   HoldStatus = "posted"
	HoldVoided   HoldStatus = "voided"
	HoldExpired  HoldStatus = "expired"
)

// Hold is a two-phase reservation. While inflight, the hold amount is
// reflected in the source account's pending_debit; the posted balance
// moves only on commit.
type Hold struct {
	ID                   uuid.UUID
	LedgerID             uuid.UUID
	SourceAccountID      uuid.UUID
	DestinationAccountID *uuid.UUID
	Amount               int64
	CommittedAmount      *int64
	Currency             string
	Status               HoldStatus
	Reference            string
	Description          string
	Metadata             map[string]any
	ExpiresAt            *time.Time
	CreatedAt            time.Time
}

// HoldDestination is one settlement target of a multi-destination
// commit. Amount nil marks the single allowed remainder destination.
type HoldDestination struct {
	AccountID        *uuid.UUID
	SystemIdentifier string
	Amount           *int64
}
