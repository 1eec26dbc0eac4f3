// Package ledger holds the domain model shared by the engine and by
// embedding applications: accounts, transactions, entries, holds and the
// append-only event stream. All monetary amounts are signed 64-bit
// integers in minor units.
package ledger

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type HolderType string

const (
	HolderIndividual   HolderType = "individual"
	HolderOrganization HolderType = "organization"
	HolderSystem       HolderType = "system"
)

type AccountStatus string

const (
	AccountActive AccountStatus = "active"
	AccountFrozen AccountStatus = "frozen"
	AccountClosed AccountStatus = "closed"
)

type NormalBalance string

const (
	NormalCredit NormalBalance = "credit"
	NormalDebit  NormalBalance = "debit"
)

// Account is a user-held balance row. Balance columns are mutated in
// place under row lock; every mutation also appends a versioned balance
// row for audit.
type Account struct {
	ID              uuid.UUID
	LedgerID        uuid.UUID
	HolderID        string
	HolderType      HolderType
	Status          AccountStatus
	Currency        string
	Balance         int64
	CreditBalance   int64
	DebitBalance    int64
	PendingCredit   int64
	PendingDebit    int64
	AllowOverdraft  bool
	OverdraftLimit  int64
	AccountType     string
	NormalBalance   NormalBalance
	ParentAccountID *uuid.UUID
	Indicator       string
	LockVersion     int64
	Metadata        map[string]any
	CreatedAt       time.Time
	UpdatedAt       time.Time
	FrozenAt        *time.Time
	FrozenBy        string
	FrozenReason    string
	ClosedAt        *time.Time
	ClosedBy        string
	ClosedReason    string
}

// Available is the spendable balance: posted balance minus funds
// earmarked by inflight holds.
func (a *Account) Available() int64 {
	return a.Balance - a.PendingDebit
}

// SystemAccount is a ledger-owned counter-party account identified by an
// "@name" identifier. Its balance is advanced by the hot-account batch
// pipeline rather than by per-transaction row locks.
type SystemAccount struct {
	ID            uuid.UUID
	LedgerID      uuid.UUID
	Identifier    string
	Currency      string
	Balance       int64
	CreditBalance int64
	DebitBalance  int64
	Version       int64
	Metadata      map[string]any
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ValidSystemIdentifier reports whether id is a well-formed system
// account identifier ("@" followed by at least one character).
func ValidSystemIdentifier(id string) bool {
	return strings.HasPrefix(id, "@") && len(id) > 1
}

// Ledger is the tenant boundary. Created once, never mutated.
type Ledger struct {
	ID        uuid.UUID
	Name      string
	Metadata  map[string]any
	CreatedAt time.Time
}
