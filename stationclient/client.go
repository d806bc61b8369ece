// Package stationclient consumes a display station's broadcast stream.
// Kitchen display applications embed it to receive manifest entries, detect
// sequence gaps, and trigger a full refresh from the external snapshot
// endpoint when messages were missed.
package stationclient

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	natspkg "github.com/nats-io/nats.go"

	"github.com/GetwithitMan/gwi-pos-sub005/display"
	"github.com/GetwithitMan/gwi-pos-sub005/errors"
)

// Subscriber is the subscription surface the client needs. The NATS client
// satisfies it.
type Subscriber interface {
	Subscribe(subject string, handler natspkg.MsgHandler) (*natspkg.Subscription, error)
	OnReconnect(fn func())
}

// EntryHandler receives each in-order station message.
type EntryHandler func(msg display.Message)

// RefreshHandler is invoked when the stream cannot be trusted: a sequence
// gap or a reconnect. The application pulls current state from its
// full-refresh endpoint; missed broadcasts are gone.
type RefreshHandler func(reason string)

// Client follows one station's broadcast subject.
type Client struct {
	stationID string
	subs      Subscriber
	logger    *slog.Logger

	onEntry   EntryHandler
	onRefresh RefreshHandler

	mu      sync.Mutex
	lastSeq uint64
	started bool
	sub     *natspkg.Subscription
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithRefreshHandler sets the gap/reconnect recovery callback.
func WithRefreshHandler(fn RefreshHandler) Option {
	return func(c *Client) { c.onRefresh = fn }
}

// New creates a station client for the given station.
func New(stationID string, subs Subscriber, onEntry EntryHandler, opts ...Option) (*Client, error) {
	if stationID == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Client", "New",
			"station ID is required")
	}
	if onEntry == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Client", "New",
			"entry handler is required")
	}

	c := &Client{
		stationID: stationID,
		subs:      subs,
		logger:    slog.Default(),
		onEntry:   onEntry,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Start subscribes to the station subject and wires reconnect recovery.
func (c *Client) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Client", "Start", c.stationID)
	}
	if c.subs == nil {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Client", "Start",
			"subscriber is required")
	}

	sub, err := c.subs.Subscribe(display.SubjectFor(c.stationID), c.handleMessage)
	if err != nil {
		return errors.Wrap(err, "Client", "Start",
			fmt.Sprintf("subscribe to station %s", c.stationID))
	}
	c.sub = sub

	c.subs.OnReconnect(func() {
		c.resetSeq()
		c.refresh("reconnect")
	})

	c.started = true
	return nil
}

// handleMessage decodes one broadcast and enforces sequence continuity.
func (c *Client) handleMessage(msg *natspkg.Msg) {
	var m display.Message
	if err := json.Unmarshal(msg.Data, &m); err != nil {
		c.logger.Warn("undecodable station message dropped",
			"station", c.stationID, "error", err)
		return
	}

	c.mu.Lock()
	last := c.lastSeq
	c.lastSeq = m.Seq
	c.mu.Unlock()

	// First message after start or reset establishes the baseline.
	if last != 0 && m.Seq != last+1 {
		c.logger.Warn("sequence gap on station stream",
			"station", c.stationID, "last_seq", last, "got_seq", m.Seq)
		c.refresh(fmt.Sprintf("sequence gap: %d -> %d", last, m.Seq))
	}

	c.onEntry(m)
}

func (c *Client) refresh(reason string) {
	if c.onRefresh != nil {
		c.onRefresh(reason)
	}
}

func (c *Client) resetSeq() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastSeq = 0
}

// LastSeq returns the last sequence number seen.
func (c *Client) LastSeq() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSeq
}

// Stop drains the subscription.
func (c *Client) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return nil
	}
	c.started = false
	if c.sub != nil {
		if err := c.sub.Drain(); err != nil {
			return errors.WrapTransient(err, "Client", "Stop", "drain subscription")
		}
	}
	return nil
}
