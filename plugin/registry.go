package plugin

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ShivamGupta-SM/summa-sub004/errs"
)

// coreTables are reserved names plugin schemas may not shadow.
var coreTables = map[string]struct{}{
	"ledger": {}, "account_balance": {}, "account_balance_version": {},
	"system_account": {}, "system_account_version": {},
	"transaction_record": {}, "entry_record": {}, "hold": {},
	"ledger_event": {}, "idempotency_key": {},
	"hot_account_entry": {}, "hot_account_failed_sequence": {},
	"worker_lease": {}, "hash_snapshot": {},
}

// Registry validates plugins at construction and pre-computes per-hook
// dispatch slices so the hot path never scans plugins that do not
// participate in a hook.
type Registry struct {
	logger  *zap.Logger
	plugins []Plugin

	beforeTransaction   []func(ctx context.Context, tc *TransactionContext) error
	afterTransaction    []func(ctx context.Context, tc *TransactionContext)
	beforeAccountCreate []func(ctx context.Context, ac *AccountContext) error
	afterAccountCreate  []func(ctx context.Context, ac *AccountContext)
	beforeHoldCreate    []func(ctx context.Context, hc *HoldContext) error
	afterHoldCommit     []func(ctx context.Context, hc *HoldContext)
	operationHooks      []OperationHook
	workers             []Worker
	tables              map[string]string // table -> owning plugin id
}

func NewRegistry(logger *zap.Logger, plugins []Plugin) (*Registry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Registry{logger: logger, tables: make(map[string]string)}
	seen := make(map[string]struct{}, len(plugins))
	for _, p := range plugins {
		if p.ID == "" {
			return nil, errs.New(errs.CodeInvalidArgument, "plugin id must not be empty")
		}
		if _, dup := seen[p.ID]; dup {
			return nil, errs.Newf(errs.CodeInvalidArgument, "duplicate plugin id %q", p.ID)
		}
		seen[p.ID] = struct{}{}

		if err := validateOptions(p); err != nil {
			return nil, err
		}
		for _, t := range p.Schema {
			if _, reserved := coreTables[t.Name]; reserved {
				return nil, errs.Newf(errs.CodeInvalidArgument,
					"plugin %q declares reserved table %q", p.ID, t.Name)
			}
			if owner, taken := r.tables[t.Name]; taken {
				return nil, errs.Newf(errs.CodeInvalidArgument,
					"plugin %q declares table %q already owned by %q", p.ID, t.Name, owner)
			}
			r.tables[t.Name] = p.ID
		}

		if h := p.Hooks.BeforeTransaction; h != nil {
			r.beforeTransaction = append(r.beforeTransaction, h)
		}
		if h := p.Hooks.AfterTransaction; h != nil {
			r.afterTransaction = append(r.afterTransaction, h)
		}
		if h := p.Hooks.BeforeAccountCreate; h != nil {
			r.beforeAccountCreate = append(r.beforeAccountCreate, h)
		}
		if h := p.Hooks.AfterAccountCreate; h != nil {
			r.afterAccountCreate = append(r.afterAccountCreate, h)
		}
		if h := p.Hooks.BeforeHoldCreate; h != nil {
			r.beforeHoldCreate = append(r.beforeHoldCreate, h)
		}
		if h := p.Hooks.AfterHoldCommit; h != nil {
			r.afterHoldCommit = append(r.afterHoldCommit, h)
		}
		r.operationHooks = append(r.operationHooks, p.OperationHooks...)
		r.workers = append(r.workers, p.Workers...)
		r.plugins = append(r.plugins, p)
	}
	return r, nil
}

// validateOptions checks supplied config against the plugin's declared
// option schema and fills defaults in place.
func validateOptions(p Plugin) error {
	declared := make(map[string]Option, len(p.Options))
	for _, opt := range p.Options {
		declared[opt.Name] = opt
	}
	for name := range p.Config {
		if _, ok := declared[name]; !ok {
			return errs.Newf(errs.CodeInvalidArgument,
				"plugin %q config key %q is not a declared option", p.ID, name)
		}
	}
	for _, opt := range p.Options {
		v, supplied := p.Config[opt.Name]
		if !supplied {
			if opt.Required && opt.Default == nil {
				return errs.Newf(errs.CodeInvalidArgument,
					"plugin %q missing required option %q", p.ID, opt.Name)
			}
			if opt.Default != nil && p.Config != nil {
				p.Config[opt.Name] = opt.Default
			}
			continue
		}
		if !optionKindMatches(opt.Kind, v) {
			return errs.Newf(errs.CodeInvalidArgument,
				"plugin %q option %q expects %s", p.ID, opt.Name, opt.Kind)
		}
	}
	return nil
}

func optionKindMatches(kind OptionKind, v any) bool {
	switch kind {
	case OptionString:
		_, ok := v.(string)
		return ok
	case OptionInt:
		switch v.(type) {
		case int, int32, int64:
			return true
		}
		return false
	case OptionBool:
		_, ok := v.(bool)
		return ok
	case OptionDuration:
		switch v.(type) {
		case time.Duration, string:
			return true
		}
		return false
	default:
		return false
	}
}

// Workers returns every worker contributed by registered plugins.
func (r *Registry) Workers() []Worker { return r.workers }

// Tables returns plugin-owned tables keyed by name.
func (r *Registry) Tables() map[string]string { return r.tables }

// BeforeTransaction runs before-hooks in registration order; the first
// error aborts the operation.
func (r *Registry) BeforeTransaction(ctx context.Context, tc *TransactionContext) error {
	for _, h := range r.beforeTransaction {
		if err := h(ctx, tc); err != nil {
			return err
		}
	}
	return r.beforeOperation(ctx, Operation{Type: tc.Operation, LedgerID: tc.LedgerID, Payload: tc})
}

// AfterTransaction runs after-hooks fire-and-forget: panics and errors
// are logged, never propagated.
func (r *Registry) AfterTransaction(ctx context.Context, tc *TransactionContext) {
	for _, h := range r.afterTransaction {
		r.safely("afterTransaction", func() { h(ctx, tc) })
	}
	r.afterOperation(ctx, Operation{Type: tc.Operation, LedgerID: tc.LedgerID, Payload: tc})
}

func (r *Registry) BeforeAccountCreate(ctx context.Context, ac *AccountContext) error {
	for _, h := range r.beforeAccountCreate {
		if err := h(ctx, ac); err != nil {
			return err
		}
	}
	return r.beforeOperation(ctx, Operation{Type: "accountCreate", LedgerID: ac.LedgerID, Payload: ac})
}

func (r *Registry) AfterAccountCreate(ctx context.Context, ac *AccountContext) {
	for _, h := range r.afterAccountCreate {
		r.safely("afterAccountCreate", func() { h(ctx, ac) })
	}
	r.afterOperation(ctx, Operation{Type: "accountCreate", LedgerID: ac.LedgerID, Payload: ac})
}

func (r *Registry) BeforeHoldCreate(ctx context.Context, hc *HoldContext) error {
	for _, h := range r.beforeHoldCreate {
		if err := h(ctx, hc); err != nil {
			return err
		}
	}
	return r.beforeOperation(ctx, Operation{Type: "holdCreate", LedgerID: hc.LedgerID, Payload: hc})
}

func (r *Registry) AfterHoldCommit(ctx context.Context, hc *HoldContext) {
	for _, h := range r.afterHoldCommit {
		r.safely("afterHoldCommit", func() { h(ctx, hc) })
	}
	r.afterOperation(ctx, Operation{Type: "holdCommit", LedgerID: hc.LedgerID, Payload: hc})
}

func (r *Registry) beforeOperation(ctx context.Context, op Operation) error {
	for _, h := range r.operationHooks {
		if h.Before == nil || !matches(h, op) {
			continue
		}
		if err := h.Before(ctx, op); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) afterOperation(ctx context.Context, op Operation) {
	for _, h := range r.operationHooks {
		if h.After == nil || !matches(h, op) {
			continue
		}
		after := h.After
		r.safely("afterOperation", func() { after(ctx, op) })
	}
}

func matches(h OperationHook, op Operation) bool {
	return h.Match == nil || h.Match(op)
}

func (r *Registry) safely(hook string, fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("plugin hook panicked", zap.String("hook", hook), zap.Any("panic", rec))
		}
	}()
	fn()
}
