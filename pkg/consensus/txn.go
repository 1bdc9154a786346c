package consensus

import "encoding/json"

// Transaction is an opaque structured record identified by a
// client-supplied id. Raw holds the exact bytes submitted by the
// client (the full record, including "id" and "data"), captured
// verbatim so canonical serialization for hashing never depends on a
// round-tripped re-encoding that could reorder object keys (§6).
type Transaction struct {
	ID  string
	Raw json.RawMessage
}

// txnEnvelope is the minimal shape the Admission API needs to parse
// out of a submitted transaction to validate and index it.
type txnEnvelope struct {
	ID   string          `json:"id"`
	Data json.RawMessage `json:"data"`
}

// ParseTransaction validates that raw is a JSON object carrying at
// least "id" and "data", per the submit() contract of §4.2.
func ParseTransaction(raw json.RawMessage) (Transaction, error) {
	var env txnEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Transaction{}, newErr(MalformedRequest, "transaction: %v", err)
	}
	if env.ID == "" {
		return Transaction{}, newErr(MalformedRequest, "transaction: missing id")
	}
	if env.Data == nil {
		return Transaction{}, newErr(MalformedRequest, "transaction: missing data")
	}

	return Transaction{ID: env.ID, Raw: raw}, nil
}
