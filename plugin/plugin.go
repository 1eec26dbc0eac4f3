// Package plugin is the extension surface that surrounds the engine:
// lifecycle hooks, generic operation hooks, background workers and
// schema extensions. Plugins observe and veto operations; they never
// touch core invariants directly.
package plugin

import (
	"context"

	"github.com/google/uuid"

	"github.com/ShivamGupta-SM/summa-sub004/ledger"
)

// TransactionContext is passed to transaction lifecycle hooks. Before
// hooks may veto by returning an error; after hooks see the committed
// state.
type TransactionContext struct {
	LedgerID    uuid.UUID
	Operation   string
	Transaction *ledger.Transaction
	Entries     []ledger.Entry
}

type AccountContext struct {
	LedgerID uuid.UUID
	Account  *ledger.Account
}

type HoldContext struct {
	LedgerID uuid.UUID
	Hold     *ledger.Hold
}

// Hooks are the typed lifecycle hook points. Any field may be nil.
type Hooks struct {
	BeforeTransaction   func(ctx context.Context, tc *TransactionContext) error
	AfterTransaction    func(ctx context.Context, tc *TransactionContext)
	BeforeAccountCreate func(ctx context.Context, ac *AccountContext) error
	AfterAccountCreate  func(ctx context.Context, ac *AccountContext)
	BeforeHoldCreate    func(ctx context.Context, hc *HoldContext) error
	AfterHoldCommit     func(ctx context.Context, hc *HoldContext)
}

// Operation is the generic shape dispatched to operation hooks.
type Operation struct {
	Type     string
	LedgerID uuid.UUID
	Payload  any
}

// OperationHook matches operations by type and runs around them. A nil
// Match matches everything.
type OperationHook struct {
	Match  func(op Operation) bool
	Before func(ctx context.Context, op Operation) error
	After  func(ctx context.Context, op Operation)
}

// Worker is a periodic task contributed by a plugin. Interval is a
// human string ("30s", "5m", "1.5h", "1d"). LeaseRequired workers run
// on at most one process in a cluster per tick.
type Worker struct {
	ID            string
	Description   string
	Interval      string
	LeaseRequired bool
	Handler       func(ctx context.Context) error
}

// Column and Table describe plugin-owned schema extensions. The engine
// validates names and records ownership; emitting DDL is migration
// tooling's job.
type Column struct {
	Name    string
	Type    string
	NotNull bool
	Default string
}

type Table struct {
	Name    string
	Columns []Column
}

type OptionKind string

const (
	OptionString   OptionKind = "string"
	OptionInt      OptionKind = "int"
	OptionBool     OptionKind = "bool"
	OptionDuration OptionKind = "duration"
)

// Option declares one configuration knob a plugin accepts. The registry
// validates supplied config against these declarations at registration.
type Option struct {
	Name     string
	Kind     OptionKind
	Required bool
	Default  any
}

// Plugin bundles everything one extension contributes.
type Plugin struct {
	ID             string
	Schema         []Table
	Workers        []Worker
	Hooks          Hooks
	OperationHooks []OperationHook
	Options        []Option
	Config         map[string]any
}
