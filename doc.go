// Package possub005 is a tag-based order routing and dispatch engine for
// restaurant point-of-sale systems.
//
// When an operator sends an order, the engine resolves each order item
// against the station and tag registries (item tags override category
// tags), groups the routed items into a per-station manifest, and
// dispatches every manifest entry concurrently: display stations receive
// a broadcast over NATS (at-most-once, sequence-numbered for gap
// detection), printer stations receive an ESC/POS ticket over TCP with
// bounded retry and operator alerting on exhaustion.
//
// Package layout:
//
//   - routing: pure resolution of order snapshots into manifests
//   - registry: versioned station and tag registries with atomic snapshots
//   - ticket: transport-agnostic ticket instruction builder
//   - escpos: byte-level encoder and decoder for the printer protocol
//   - printer: TCP and in-memory printer transports
//   - display: NATS publisher and websocket hub for kitchen displays
//   - dispatch: concurrent fan-out with per-destination timeout and retry
//   - intake: order-send and order-void event consumption
//   - stationclient: display-side consumer with gap detection
//   - cmd/routerd: the daemon
//
// Supporting packages: config (YAML configuration), errors (classified
// errors), metric (Prometheus), natsclient (connection management),
// health (component health aggregation), pkg/retry and pkg/buffer.
package possub005
