package printer

import (
	"context"
	"sync"

	"github.com/GetwithitMan/gwi-pos-sub005/errors"
)

// MemoryTransport is an in-process Transport for tests and for running the
// engine without physical printers. Failures can be scripted per station.
type MemoryTransport struct {
	mu       sync.Mutex
	payloads map[string][][]byte
	failures map[string][]error // consumed FIFO per Send
	delay    map[string]func(ctx context.Context) error
}

// NewMemoryTransport creates an empty in-memory transport.
func NewMemoryTransport() *MemoryTransport {
	return &MemoryTransport{
		payloads: make(map[string][][]byte),
		failures: make(map[string][]error),
		delay:    make(map[string]func(ctx context.Context) error),
	}
}

// FailNext queues errors returned by the next Sends to the station, in order.
func (m *MemoryTransport) FailNext(stationID string, errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[stationID] = append(m.failures[stationID], errs...)
}

// FailAlways makes every Send to the station fail with err.
func (m *MemoryTransport) FailAlways(stationID string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay[stationID] = func(context.Context) error { return err }
}

// BlockUntilCancelled makes Sends to the station hang until their context
// ends, simulating an unreachable device.
func (m *MemoryTransport) BlockUntilCancelled(stationID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay[stationID] = func(ctx context.Context) error {
		<-ctx.Done()
		return errors.WrapTransient(errors.ErrDeliveryTimeout, "MemoryTransport", "Send", stationID)
	}
}

// Send implements Transport.
func (m *MemoryTransport) Send(ctx context.Context, stationID string, payload []byte) error {
	m.mu.Lock()
	if fn, ok := m.delay[stationID]; ok {
		m.mu.Unlock()
		return fn(ctx)
	}
	if queue := m.failures[stationID]; len(queue) > 0 {
		err := queue[0]
		m.failures[stationID] = queue[1:]
		m.mu.Unlock()
		return err
	}
	cp := append([]byte(nil), payload...)
	m.payloads[stationID] = append(m.payloads[stationID], cp)
	m.mu.Unlock()
	return nil
}

// Payloads returns the payloads successfully delivered to the station.
func (m *MemoryTransport) Payloads(stationID string) [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.payloads[stationID]))
	copy(out, m.payloads[stationID])
	return out
}
