package hotaccount

import (
	"testing"

	"github.com/google/uuid"

	"github.com/ShivamGupta-SM/summa-sub004/ledger"
)

func TestAggregate(t *testing.T) {
	ledgerID := uuid.MustParse("7b0d8c3e-0f3a-4f8e-9a49-9a2e6f6d2c11")
	world := uuid.MustParse("4f0f33ac-4c5b-44b4-8e0e-9b8f3c7e8a01")
	fees := uuid.MustParse("4f0f33ac-4c5b-44b4-8e0e-9b8f3c7e8a02")

	entries := []Entry{
		{ID: uuid.New(), SequenceNumber: 10, LedgerID: ledgerID, AccountID: world, Amount: 1_000, EntryType: ledger.EntryCredit},
		{ID: uuid.New(), SequenceNumber: 11, LedgerID: ledgerID, AccountID: fees, Amount: 250, EntryType: ledger.EntryCredit},
		{ID: uuid.New(), SequenceNumber: 12, LedgerID: ledgerID, AccountID: world, Amount: -400, EntryType: ledger.EntryDebit},
		{ID: uuid.New(), SequenceNumber: 13, LedgerID: ledgerID, AccountID: world, Amount: 300, EntryType: ledger.EntryCredit},
	}

	groups := Aggregate(entries)
	if len(groups) != 2 {
		t.Fatalf("groups = %d, want 2", len(groups))
	}

	// First-seen account order is preserved.
	if groups[0].AccountID != world || groups[1].AccountID != fees {
		t.Fatalf("group order = %s, %s", groups[0].AccountID, groups[1].AccountID)
	}

	w := groups[0]
	if w.NetDelta != 900 {
		t.Fatalf("world NetDelta = %d, want 900", w.NetDelta)
	}
	if w.CreditDelta != 1_300 {
		t.Fatalf("world CreditDelta = %d, want 1300", w.CreditDelta)
	}
	if w.DebitDelta != 400 {
		t.Fatalf("world DebitDelta = %d, want 400", w.DebitDelta)
	}
	if w.LastSeq != 13 {
		t.Fatalf("world LastSeq = %d, want 13", w.LastSeq)
	}
	if len(w.EntryIDs) != 3 {
		t.Fatalf("world EntryIDs = %d, want 3", len(w.EntryIDs))
	}
	if w.EntryIDs[0] != entries[0].ID || w.EntryIDs[1] != entries[2].ID || w.EntryIDs[2] != entries[3].ID {
		t.Fatalf("world EntryIDs out of order")
	}

	f := groups[1]
	if f.NetDelta != 250 || f.CreditDelta != 250 || f.DebitDelta != 0 || f.LastSeq != 11 {
		t.Fatalf("fees group = %+v", f)
	}
}

func TestAggregateEmpty(t *testing.T) {
	if groups := Aggregate(nil); len(groups) != 0 {
		t.Fatalf("Aggregate(nil) = %v", groups)
	}
}

// Credits and debits that cancel out still produce a group: the version
// row records the entry count even when the balance does not move.
func TestAggregateZeroNet(t *testing.T) {
	acct := uuid.New()
	groups := Aggregate([]Entry{
		{ID: uuid.New(), SequenceNumber: 1, AccountID: acct, Amount: 500, EntryType: ledger.EntryCredit},
		{ID: uuid.New(), SequenceNumber: 2, AccountID: acct, Amount: -500, EntryType: ledger.EntryDebit},
	})
	if len(groups) != 1 {
		t.Fatalf("groups = %d, want 1", len(groups))
	}
	g := groups[0]
	if g.NetDelta != 0 || g.CreditDelta != 500 || g.DebitDelta != 500 || len(g.EntryIDs) != 2 {
		t.Fatalf("group = %+v", g)
	}
}
