package balance

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/google/uuid"
)

func TestSortUUIDsOrdersAndDeduplicates(t *testing.T) {
	a := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	b := uuid.MustParse("00000000-0000-0000-0000-000000000002")
	c := uuid.MustParse("ffffffff-0000-0000-0000-000000000000")

	got := SortUUIDs([]uuid.UUID{c, b, a, b, c})
	want := []uuid.UUID{a, b, c}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

// Two callers locking overlapping account sets must derive the same
// order regardless of input permutation; otherwise deadlocks.
func TestSortUUIDsIsPermutationStable(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	ids := make([]uuid.UUID, 20)
	for i := range ids {
		ids[i] = uuid.New()
	}
	base := SortUUIDs(ids)
	for trial := 0; trial < 50; trial++ {
		shuffled := append([]uuid.UUID(nil), ids...)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		got := SortUUIDs(shuffled)
		for i := range base {
			if got[i] != base[i] {
				t.Fatalf("trial %d: order diverged at %d", trial, i)
			}
		}
	}
	for i := 1; i < len(base); i++ {
		if bytes.Compare(base[i-1][:], base[i][:]) >= 0 {
			t.Fatalf("not strictly ascending at %d", i)
		}
	}
}
