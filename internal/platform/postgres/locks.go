package postgres

import (
	"hash/fnv"

	"github.com/google/uuid"
)

// StreamLockKey derives the 64-bit advisory lock key that serializes
// writers to one aggregate's event stream. Unrelated aggregates hash to
// different keys and never block each other; a rare collision only costs
// unnecessary serialization, never correctness.
func StreamLockKey(ledgerID uuid.UUID, aggregateType string, aggregateID uuid.UUID) int64 {
	h := fnv.New64a()
	_, _ = h.Write(ledgerID[:])
	_, _ = h.Write([]byte(aggregateType))
	_, _ = h.Write(aggregateID[:])
	return int64(h.Sum64())
}
