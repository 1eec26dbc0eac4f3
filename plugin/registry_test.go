package plugin

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/ShivamGupta-SM/summa-sub004/errs"
)

func TestNewRegistryRejectsBadPlugins(t *testing.T) {
	cases := []struct {
		name    string
		plugins []Plugin
	}{
		{"empty id", []Plugin{{}}},
		{"duplicate id", []Plugin{{ID: "a"}, {ID: "a"}}},
		{"reserved table", []Plugin{{ID: "a", Schema: []Table{{Name: "hold"}}}}},
		{"table owned twice", []Plugin{
			{ID: "a", Schema: []Table{{Name: "loyalty_points"}}},
			{ID: "b", Schema: []Table{{Name: "loyalty_points"}}},
		}},
		{"undeclared config key", []Plugin{{ID: "a", Config: map[string]any{"oops": 1}}}},
		{"missing required option", []Plugin{{
			ID:      "a",
			Options: []Option{{Name: "endpoint", Kind: OptionString, Required: true}},
		}}},
		{"wrong option kind", []Plugin{{
			ID:      "a",
			Options: []Option{{Name: "retries", Kind: OptionInt}},
			Config:  map[string]any{"retries": "three"},
		}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewRegistry(nil, tc.plugins); !errs.IsCode(err, errs.CodeInvalidArgument) {
				t.Fatalf("NewRegistry = %v, want INVALID_ARGUMENT", err)
			}
		})
	}
}

func TestNewRegistryFillsOptionDefaults(t *testing.T) {
	cfg := map[string]any{}
	p := Plugin{
		ID: "audit",
		Options: []Option{
			{Name: "interval", Kind: OptionDuration, Default: "5m"},
			{Name: "enabled", Kind: OptionBool, Default: true},
		},
		Config: cfg,
	}
	if _, err := NewRegistry(nil, []Plugin{p}); err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	if cfg["interval"] != "5m" || cfg["enabled"] != true {
		t.Fatalf("defaults not applied: %v", cfg)
	}
}

func TestBeforeHooksAbortInOrder(t *testing.T) {
	var order []string
	reg, err := NewRegistry(nil, []Plugin{
		{ID: "first", Hooks: Hooks{BeforeTransaction: func(context.Context, *TransactionContext) error {
			order = append(order, "first")
			return nil
		}}},
		{ID: "veto", Hooks: Hooks{BeforeTransaction: func(context.Context, *TransactionContext) error {
			order = append(order, "veto")
			return errs.New(errs.CodeInvalidArgument, "not allowed")
		}}},
		{ID: "unreached", Hooks: Hooks{BeforeTransaction: func(context.Context, *TransactionContext) error {
			order = append(order, "unreached")
			return nil
		}}},
	})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	tc := &TransactionContext{LedgerID: uuid.New(), Operation: "credit"}
	if err := reg.BeforeTransaction(context.Background(), tc); !errs.IsCode(err, errs.CodeInvalidArgument) {
		t.Fatalf("BeforeTransaction = %v, want INVALID_ARGUMENT", err)
	}
	if len(order) != 2 || order[0] != "first" || order[1] != "veto" {
		t.Fatalf("hook order = %v", order)
	}
}

func TestAfterHooksSurvivePanics(t *testing.T) {
	var called []string
	reg, err := NewRegistry(nil, []Plugin{
		{ID: "panicky", Hooks: Hooks{AfterTransaction: func(context.Context, *TransactionContext) {
			called = append(called, "panicky")
			panic("boom")
		}}},
		{ID: "calm", Hooks: Hooks{AfterTransaction: func(context.Context, *TransactionContext) {
			called = append(called, "calm")
		}}},
	})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	reg.AfterTransaction(context.Background(), &TransactionContext{Operation: "credit"})
	if len(called) != 2 || called[1] != "calm" {
		t.Fatalf("panic stopped later hooks: %v", called)
	}
}

func TestOperationHookMatching(t *testing.T) {
	var seen []string
	reg, err := NewRegistry(nil, []Plugin{{
		ID: "ops",
		OperationHooks: []OperationHook{
			{
				Match:  func(op Operation) bool { return op.Type == "holdCreate" },
				Before: func(_ context.Context, op Operation) error { seen = append(seen, "hold:"+op.Type); return nil },
			},
			{
				Before: func(_ context.Context, op Operation) error { seen = append(seen, "all:"+op.Type); return nil },
			},
		},
	}})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	if err := reg.BeforeHoldCreate(context.Background(), &HoldContext{}); err != nil {
		t.Fatalf("BeforeHoldCreate: %v", err)
	}
	if err := reg.BeforeAccountCreate(context.Background(), &AccountContext{}); err != nil {
		t.Fatalf("BeforeAccountCreate: %v", err)
	}

	want := []string{"hold:holdCreate", "all:holdCreate", "all:accountCreate"}
	if len(seen) != len(want) {
		t.Fatalf("seen = %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("seen = %v, want %v", seen, want)
		}
	}
}

func TestRegistryCollectsWorkersAndTables(t *testing.T) {
	reg, err := NewRegistry(nil, []Plugin{
		{
			ID:      "interest",
			Workers: []Worker{{ID: "interest-accrual", Interval: "1d", Handler: func(context.Context) error { return nil }}},
			Schema:  []Table{{Name: "interest_accrual", Columns: []Column{{Name: "rate_bps", Type: "bigint"}}}},
		},
		{
			ID:      "statements",
			Workers: []Worker{{ID: "statement-render", Interval: "1h", LeaseRequired: true, Handler: func(context.Context) error { return nil }}},
		},
	})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	if got := reg.Workers(); len(got) != 2 || got[0].ID != "interest-accrual" || got[1].ID != "statement-render" {
		t.Fatalf("Workers = %+v", got)
	}
	if owner := reg.Tables()["interest_accrual"]; owner != "interest" {
		t.Fatalf("table owner = %q, want interest", owner)
	}
}
