package balance

import (
	"bytes"
	"sort"

	"github.com/google/uuid"
)

// SortUUIDs returns ids in ascending byte order with duplicates
// removed. Locking account rows in this order across every code path is
// what prevents lock-ordering deadlocks.
func SortUUIDs(ids []uuid.UUID) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(ids))
	seen := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i][:], out[j][:]) < 0
	})
	return out
}
