// Package display carries manifest entries to kitchen display stations.
// Each station has a broadcast subject; delivery is at-most-once per
// connected subscriber, with per-station sequence numbers so clients can
// detect gaps and pull a full refresh.
package display

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/GetwithitMan/gwi-pos-sub005/errors"
	"github.com/GetwithitMan/gwi-pos-sub005/routing"
)

// SubjectPrefix is the NATS subject root for station broadcasts. A station's
// entries publish to SubjectPrefix + "." + stationID.
const SubjectPrefix = "pos.station"

// SubjectFor returns the broadcast subject for a station.
func SubjectFor(stationID string) string {
	return fmt.Sprintf("%s.%s", SubjectPrefix, stationID)
}

// Message is the wire payload sent to display stations.
type Message struct {
	// Seq is a per-station monotonic sequence number. A gap tells the
	// client it missed messages and must pull a full refresh.
	Seq         uint64                `json:"seq"`
	OrderID     string                `json:"order_id"`
	OrderNumber string                `json:"order_number,omitempty"`
	Table       string                `json:"table,omitempty"`
	SentAt      time.Time             `json:"sent_at"`
	Entry       routing.ManifestEntry `json:"entry"`
}

// Broadcaster is the publish surface the display path needs. The NATS
// client satisfies it.
type Broadcaster interface {
	Publish(subject string, data []byte) error
}

// Publisher broadcasts manifest entries over NATS, one subject per station.
type Publisher struct {
	client Broadcaster

	mu   sync.Mutex
	seqs map[string]uint64
}

// NewPublisher creates a display publisher over the given broadcaster.
func NewPublisher(client Broadcaster) *Publisher {
	return &Publisher{
		client: client,
		seqs:   make(map[string]uint64),
	}
}

// Publish implements the dispatch display sink. Fire-and-forget: the
// engine never waits for a display client to render.
func (p *Publisher) Publish(ctx context.Context, m *routing.Manifest, entry routing.ManifestEntry) error {
	if err := ctx.Err(); err != nil {
		return errors.WrapTransient(err, "Publisher", "Publish", entry.StationID)
	}

	p.mu.Lock()
	p.seqs[entry.StationID]++
	seq := p.seqs[entry.StationID]
	p.mu.Unlock()

	msg := Message{
		Seq:         seq,
		OrderID:     m.OrderID,
		OrderNumber: m.OrderNumber,
		Table:       m.Table,
		SentAt:      time.Now(),
		Entry:       entry,
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return errors.WrapInvalid(err, "Publisher", "Publish",
			fmt.Sprintf("marshal entry for station %s", entry.StationID))
	}

	return p.client.Publish(SubjectFor(entry.StationID), data)
}

// Seq returns the last sequence number published for a station.
func (p *Publisher) Seq(stationID string) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.seqs[stationID]
}
