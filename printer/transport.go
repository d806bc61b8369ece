// Package printer provides the delivery transports for printer stations.
// The dispatch service hands a fully-encoded payload to a Transport and
// waits for acknowledgment or failure; retry policy lives in dispatch, not
// here.
package printer

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/GetwithitMan/gwi-pos-sub005/errors"
)

// Transport delivers one encoded ticket payload to a station's printer.
type Transport interface {
	// Send blocks until the device acknowledges the payload, the device
	// reports failure, or ctx ends. Transient failures (unreachable,
	// timeout) are retryable; invalid failures are not.
	Send(ctx context.Context, stationID string, payload []byte) error
}

// DLE EOT 1 asks an ESC/POS printer for its online status; the reply's
// offline bit is 0x08.
var statusQuery = []byte{0x10, 0x04, 0x01}

const statusOfflineBit = 0x08

// TCPConfig configures the network transport.
type TCPConfig struct {
	// Addrs maps station ID to the printer's host:port.
	Addrs map[string]string
	// DialTimeout bounds connection establishment (default 3s).
	DialTimeout time.Duration
	// AckTimeout bounds the wait for the status reply after writing the
	// payload (default 2s). Some printers never answer status queries;
	// setting SkipStatus treats a completed write as the acknowledgment.
	AckTimeout time.Duration
	SkipStatus bool
	// AckTimeouts overrides AckTimeout for individual stations.
	AckTimeouts map[string]time.Duration
}

// TCPTransport sends payloads to networked ESC/POS printers over a raw
// socket, one connection per job. Thermal printers are single-stream
// devices; holding connections open just hides failures until service.
type TCPTransport struct {
	cfg TCPConfig

	mu    sync.RWMutex
	addrs map[string]string
}

// NewTCPTransport creates a transport for the configured station addresses.
func NewTCPTransport(cfg TCPConfig) *TCPTransport {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 3 * time.Second
	}
	if cfg.AckTimeout <= 0 {
		cfg.AckTimeout = 2 * time.Second
	}
	addrs := make(map[string]string, len(cfg.Addrs))
	for id, addr := range cfg.Addrs {
		addrs[id] = addr
	}
	return &TCPTransport{cfg: cfg, addrs: addrs}
}

// SetAddr adds or updates a station's printer address (admin reconfigure).
func (t *TCPTransport) SetAddr(stationID, addr string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.addrs[stationID] = addr
}

// Send implements Transport.
func (t *TCPTransport) Send(ctx context.Context, stationID string, payload []byte) error {
	t.mu.RLock()
	addr, ok := t.addrs[stationID]
	t.mu.RUnlock()
	if !ok {
		return errors.WrapInvalid(errors.ErrStationNotFound, "TCPTransport", "Send",
			fmt.Sprintf("no printer address configured for station %s", stationID))
	}

	dialer := net.Dialer{Timeout: t.cfg.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return errors.WrapTransient(errors.ErrPrinterOffline, "TCPTransport", "Send",
			fmt.Sprintf("dial %s (%s): %v", stationID, addr, err))
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	if _, err := conn.Write(payload); err != nil {
		return errors.WrapTransient(err, "TCPTransport", "Send",
			fmt.Sprintf("write to %s", stationID))
	}

	if t.cfg.SkipStatus {
		return nil
	}

	if _, err := conn.Write(statusQuery); err != nil {
		return errors.WrapTransient(err, "TCPTransport", "Send",
			fmt.Sprintf("status query to %s", stationID))
	}

	ackTimeout := t.cfg.AckTimeout
	if override, ok := t.cfg.AckTimeouts[stationID]; ok && override > 0 {
		ackTimeout = override
	}
	_ = conn.SetReadDeadline(time.Now().Add(ackTimeout))
	var status [1]byte
	if _, err := conn.Read(status[:]); err != nil {
		return errors.WrapTransient(errors.ErrDeliveryTimeout, "TCPTransport", "Send",
			fmt.Sprintf("no status reply from %s: %v", stationID, err))
	}
	if status[0]&statusOfflineBit != 0 {
		return errors.WrapTransient(errors.ErrPrinterOffline, "TCPTransport", "Send",
			fmt.Sprintf("printer %s reports offline", stationID))
	}

	return nil
}
