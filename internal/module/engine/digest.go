package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// digestFields is the canonical serialization the integrity digest covers.
// Field order is fixed by the struct; changing it invalidates old digests.
type digestFields struct {
	AggregateID string `json:"aggregate_id"`
	Kind        string `json:"kind"`
	FromState   string `json:"from_state"`
	ToState     string `json:"to_state"`
	Total       int64  `json:"total"`
	Actor       string `json:"actor"`
	Timestamp   string `json:"timestamp"`
}

// computeDigest returns the hex SHA-256 over the critical fields of a
// transition. It is a tamper-evidence stamp for the audit trail, not a
// cryptographic signature: there is no key and no non-repudiation.
func computeDigest(agg Aggregate, from, to State, actor string, at time.Time) string {
	fields := digestFields{
		AggregateID: agg.AggregateID().String(),
		Kind:        string(agg.AggregateKind()),
		FromState:   string(from),
		ToState:     string(to),
		Total:       agg.TotalAmount(),
		Actor:       actor,
		Timestamp:   at.UTC().Format(time.RFC3339Nano),
	}

	// Marshal of a flat struct with string/int fields cannot fail.
	data, _ := json.Marshal(fields)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
