// Package intake consumes order-send events from the order subsystem,
// resolves them against the current registry snapshot, and hands the
// manifest to the dispatch service. The engine never fetches or mutates
// order state itself.
package intake

import (
	"encoding/json"
	"log/slog"
	"sync"

	natspkg "github.com/nats-io/nats.go"

	"github.com/GetwithitMan/gwi-pos-sub005/dispatch"
	"github.com/GetwithitMan/gwi-pos-sub005/errors"
	"github.com/GetwithitMan/gwi-pos-sub005/registry"
	"github.com/GetwithitMan/gwi-pos-sub005/routing"
)

// NATS subjects consumed from the order subsystem.
const (
	// SendSubject carries an OrderSnapshot per send action.
	SendSubject = "pos.order.send"
	// VoidSubject carries a VoidEvent when an order is voided before
	// its tickets are acknowledged.
	VoidSubject = "pos.order.void"
)

// VoidEvent is the wire payload for an order void.
type VoidEvent struct {
	OrderID string `json:"order_id"`
}

// Subscriber is the subscription surface the intake needs.
type Subscriber interface {
	Subscribe(subject string, handler natspkg.MsgHandler) (*natspkg.Subscription, error)
}

// SnapshotSource yields the registry view for one resolution. Each send
// captures one snapshot; a config change mid-flight never tears a
// resolution. The station/tag registry satisfies it.
type SnapshotSource interface {
	Snapshot() *registry.Snapshot
}

// Dispatcher queues resolved manifests for delivery.
type Dispatcher interface {
	Enqueue(req dispatch.Request) error
	CancelOrder(orderID string) (cancelled, alreadyPrinted []string)
}

// Intake bridges order-send events into the routing engine.
type Intake struct {
	subs       Subscriber
	source     SnapshotSource
	dispatcher Dispatcher
	logger     *slog.Logger

	mu      sync.Mutex
	started bool
	subList []*natspkg.Subscription
}

// New creates an intake over the given collaborators.
func New(subs Subscriber, source SnapshotSource, dispatcher Dispatcher, logger *slog.Logger) (*Intake, error) {
	if source == nil || dispatcher == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Intake", "New",
			"snapshot source and dispatcher are required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Intake{
		subs:       subs,
		source:     source,
		dispatcher: dispatcher,
		logger:     logger,
	}, nil
}

// Start subscribes to the order subjects.
func (in *Intake) Start() error {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.started {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Intake", "Start", "intake")
	}
	if in.subs == nil {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Intake", "Start",
			"subscriber is required")
	}

	sendSub, err := in.subs.Subscribe(SendSubject, in.HandleSend)
	if err != nil {
		return errors.Wrap(err, "Intake", "Start", "subscribe to order sends")
	}
	voidSub, err := in.subs.Subscribe(VoidSubject, in.HandleVoid)
	if err != nil {
		return errors.Wrap(err, "Intake", "Start", "subscribe to order voids")
	}

	in.subList = append(in.subList, sendSub, voidSub)
	in.started = true
	return nil
}

// HandleSend resolves one order-send event and queues its manifest.
// Malformed events are logged and dropped; a bad message must not wedge
// the stream.
func (in *Intake) HandleSend(msg *natspkg.Msg) {
	var snap routing.OrderSnapshot
	if err := json.Unmarshal(msg.Data, &snap); err != nil {
		in.logger.Error("undecodable order-send event dropped", "error", err)
		return
	}

	manifest, err := routing.Resolve(snap, in.source.Snapshot())
	if err != nil {
		in.logger.Error("order resolution failed",
			"order_id", snap.OrderID, "error", err)
		return
	}

	if err := in.dispatcher.Enqueue(dispatch.Request{
		Manifest: &manifest,
		Server:   snap.Server,
	}); err != nil {
		in.logger.Error("dispatch enqueue failed",
			"order_id", snap.OrderID, "error", err)
	}
}

// HandleVoid cancels the in-flight print jobs for a voided order.
func (in *Intake) HandleVoid(msg *natspkg.Msg) {
	var ev VoidEvent
	if err := json.Unmarshal(msg.Data, &ev); err != nil {
		in.logger.Error("undecodable order-void event dropped", "error", err)
		return
	}
	if ev.OrderID == "" {
		return
	}

	cancelled, printed := in.dispatcher.CancelOrder(ev.OrderID)
	in.logger.Info("order void processed",
		"order_id", ev.OrderID,
		"cancelled", cancelled,
		"already_printed", printed)
}

// Stop drains the subscriptions.
func (in *Intake) Stop() error {
	in.mu.Lock()
	defer in.mu.Unlock()
	if !in.started {
		return nil
	}
	in.started = false
	for _, sub := range in.subList {
		if err := sub.Drain(); err != nil {
			return errors.WrapTransient(err, "Intake", "Stop", "drain subscription")
		}
	}
	in.subList = nil
	return nil
}
