// Package dispatch delivers resolved routing manifests to their
// destinations: fire-and-forget publishes for display stations, retried
// acknowledged delivery for printer stations. Each destination is handled
// independently; one offline printer never delays the rest of the order.
package dispatch

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/GetwithitMan/gwi-pos-sub005/routing"
)

// JobState tracks a print job through its delivery lifecycle.
type JobState int

// Print job states
const (
	JobPending JobState = iota
	JobSending
	JobAcknowledged
	JobFailed
	JobCancelled
)

// String returns the string representation of JobState.
func (s JobState) String() string {
	switch s {
	case JobPending:
		return "pending"
	case JobSending:
		return "sending"
	case JobAcknowledged:
		return "acknowledged"
	case JobFailed:
		return "failed"
	case JobCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// PrintJob is one encoded ticket bound for one printer station.
type PrintJob struct {
	ID        uuid.UUID
	OrderID   string
	StationID string
	Payload   []byte
	CreatedAt time.Time

	mu       sync.Mutex
	state    JobState
	attempts int
	lastErr  error
}

func newPrintJob(orderID, stationID string, payload []byte) *PrintJob {
	return &PrintJob{
		ID:        uuid.New(),
		OrderID:   orderID,
		StationID: stationID,
		Payload:   payload,
		CreatedAt: time.Now(),
	}
}

// State returns the job's current state.
func (j *PrintJob) State() JobState {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// Attempts returns how many delivery attempts have been made.
func (j *PrintJob) Attempts() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.attempts
}

// LastError returns the most recent delivery error, if any.
func (j *PrintJob) LastError() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.lastErr
}

func (j *PrintJob) recordAttempt(err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.attempts++
	j.state = JobSending
	j.lastErr = err
}

// setState transitions to a terminal state unless the job is already
// terminal. Cancellation racing with an acknowledgment keeps the
// acknowledgment: the ticket is on paper either way.
func (j *PrintJob) setState(state JobState) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	switch j.state {
	case JobAcknowledged, JobFailed, JobCancelled:
		return false
	}
	j.state = state
	return true
}

// Outcome is the terminal result for one destination.
type Outcome int

// Destination outcomes
const (
	OutcomeSucceeded Outcome = iota
	OutcomeFailed
	OutcomeCancelled
)

// String returns the string representation of Outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeFailed:
		return "failed"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// DestinationResult records how delivery to one station ended.
type DestinationResult struct {
	StationID   string
	StationName string
	Kind        routing.StationKind
	Outcome     Outcome
	Attempts    int
	Duration    time.Duration
	Err         error
}

// Report aggregates per-destination results for one dispatched manifest.
// The order-send caller uses it to show "sent" vs "partially sent".
type Report struct {
	OrderID   string
	StartedAt time.Time
	Results   []DestinationResult
}

// Succeeded returns the station IDs that received their entry.
func (r *Report) Succeeded() []string {
	return r.stationsWith(OutcomeSucceeded)
}

// Failed returns the station IDs whose delivery exhausted retries.
func (r *Report) Failed() []string {
	return r.stationsWith(OutcomeFailed)
}

// Cancelled returns the station IDs whose delivery was cancelled.
func (r *Report) Cancelled() []string {
	return r.stationsWith(OutcomeCancelled)
}

func (r *Report) stationsWith(o Outcome) []string {
	var out []string
	for _, res := range r.Results {
		if res.Outcome == o {
			out = append(out, res.StationID)
		}
	}
	return out
}

// Partial reports whether at least one destination failed while another
// succeeded.
func (r *Report) Partial() bool {
	return len(r.Failed()) > 0 && len(r.Succeeded()) > 0
}

// AllSucceeded reports whether every destination received its entry.
func (r *Report) AllSucceeded() bool {
	for _, res := range r.Results {
		if res.Outcome != OutcomeSucceeded {
			return false
		}
	}
	return true
}

// Alert describes a terminal printer delivery failure. A missed ticket is
// a missed food order, so these always reach an operator-facing sink.
type Alert struct {
	JobID       uuid.UUID
	OrderID     string
	OrderNumber string
	StationID   string
	StationName string
	Attempts    int
	Err         error
	At          time.Time
}

// AlertSink receives operator alerts for failed print jobs.
type AlertSink interface {
	PrinterFailure(alert Alert)
}

// LogAlertSink writes alerts to the structured log. Deployments with a
// dedicated operator channel provide their own sink.
type LogAlertSink struct {
	Logger *slog.Logger
}

// PrinterFailure implements AlertSink.
func (s *LogAlertSink) PrinterFailure(alert Alert) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Error("print job failed, ticket not delivered",
		"job_id", alert.JobID,
		"order_id", alert.OrderID,
		"order_number", alert.OrderNumber,
		"station_id", alert.StationID,
		"station_name", alert.StationName,
		"attempts", alert.Attempts,
		"error", alert.Err,
	)
}
