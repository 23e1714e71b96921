// Package events turns committed ledger receipts into envelopes and fans them
// out to sinks: a SQLite journal, a Kafka topic and websocket subscribers.
package events

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/HappyFeet07/WyvernV3Fork/ledger"
	"github.com/google/uuid"
)

// EventVersion is the envelope schema version
const EventVersion = 1

// Envelope is one contract event as published to sinks
type Envelope struct {
	EventID      string          `json:"event_id"`
	EventType    string          `json:"event_type"`
	EventVersion int             `json:"event_version"`
	Seq          uint64          `json:"seq"`
	TxHash       string          `json:"tx_hash"`
	Contract     string          `json:"contract"`
	Index        int             `json:"index"`
	Timestamp    time.Time       `json:"timestamp"`
	Payload      json.RawMessage `json:"payload"`
}

// FromReceipt builds one envelope per event of r, in emission order
func FromReceipt(r *ledger.Receipt) ([]Envelope, error) {
	if r == nil || len(r.Events) == 0 {
		return nil, nil
	}
	txHash := r.TxHash.Hex()
	ts := time.Unix(int64(r.Time), 0).UTC()

	envs := make([]Envelope, 0, len(r.Events))
	for i, ev := range r.Events {
		payload, err := json.Marshal(ev.Data)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", ev.Name, err)
		}
		envs = append(envs, Envelope{
			EventID:      DeterministicEventID(txHash, strconv.Itoa(i)),
			EventType:    ev.Name,
			EventVersion: EventVersion,
			Seq:          r.Seq,
			TxHash:       txHash,
			Contract:     ev.Address.Hex(),
			Index:        i,
			Timestamp:    ts,
			Payload:      payload,
		})
	}
	return envs, nil
}

// DeterministicEventID derives a stable UUID from parts so replays dedupe
func DeterministicEventID(parts ...string) string {
	joined := strings.Join(parts, "|")
	if joined == "" {
		return uuid.Nil.String()
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(joined)).String()
}
