package amqp

import (
	"encoding/json"
	"time"
)

// SnapshotMessage tells the exporter a new snapshot landed. It carries only
// the id and headline number; the worker loads the full row from SQLite.
type SnapshotMessage struct {
	SnapshotID    int64     `json:"snapshot_id"`
	NetWorthCents int64     `json:"net_worth_cents"`
	FetchedAt     time.Time `json:"fetched_at"`
	Timestamp     time.Time `json:"timestamp"`
}

func NewSnapshotMessage(snapshotID, netWorthCents int64, fetchedAt time.Time) *SnapshotMessage {
	return &SnapshotMessage{
		SnapshotID:    snapshotID,
		NetWorthCents: netWorthCents,
		FetchedAt:     fetchedAt,
		Timestamp:     time.Now(),
	}
}

func (m *SnapshotMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func SnapshotMessageFromJSON(data []byte) (*SnapshotMessage, error) {
	var msg SnapshotMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
