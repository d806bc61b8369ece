package dispatch

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/GetwithitMan/gwi-pos-sub005/component"
	"github.com/GetwithitMan/gwi-pos-sub005/errors"
	"github.com/GetwithitMan/gwi-pos-sub005/escpos"
	"github.com/GetwithitMan/gwi-pos-sub005/metric"
	"github.com/GetwithitMan/gwi-pos-sub005/pkg/buffer"
	"github.com/GetwithitMan/gwi-pos-sub005/pkg/retry"
	"github.com/GetwithitMan/gwi-pos-sub005/printer"
	"github.com/GetwithitMan/gwi-pos-sub005/routing"
	"github.com/GetwithitMan/gwi-pos-sub005/ticket"
)

// DisplaySink publishes a manifest entry onto a display station's channel.
// Delivery is at-most-once; reconnecting clients recover through the
// external full-refresh endpoint, not from the dispatch engine.
type DisplaySink interface {
	Publish(ctx context.Context, manifest *routing.Manifest, entry routing.ManifestEntry) error
}

// ProfileFunc returns the ticket style profile for a printer station.
type ProfileFunc func(stationID string) ticket.StyleProfile

// Config tunes the dispatch service.
type Config struct {
	// DestinationTimeout bounds one destination's delivery, retries
	// included. Independent per destination, never shared.
	DestinationTimeout time.Duration
	// QueueCapacity bounds the async Enqueue queue.
	QueueCapacity int
	// Retry shapes the printer delivery backoff curve.
	Retry retry.Config
}

// DefaultConfig returns production dispatch defaults.
func DefaultConfig() Config {
	return Config{
		DestinationTimeout: 30 * time.Second,
		QueueCapacity:      256,
		Retry:              retry.PrinterDelivery(),
	}
}

// Request is one manifest to deliver, with the ticket header context that
// does not live on the manifest itself.
type Request struct {
	Manifest *routing.Manifest
	Server   string // server (employee) name for the ticket header
}

// Service fans resolved manifests out to their destinations. Constructed
// once at startup and shared by all order-send calls.
type Service struct {
	cfg      Config
	printers printer.Transport
	displays DisplaySink
	alerts   AlertSink
	profiles ProfileFunc
	logger   *slog.Logger
	metrics  *metric.Metrics

	// Async path
	queue    *buffer.Ring[Request]
	onReport func(*Report)

	// In-flight cancellation, keyed by order ID.
	inflightMu sync.Mutex
	inflight   map[string][]*inflightJob

	runCtx  context.Context
	runStop context.CancelFunc
	wg      sync.WaitGroup

	mu    sync.Mutex
	state component.State
}

type inflightJob struct {
	job    *PrintJob
	cancel context.CancelFunc
}

// Option configures a Service.
type Option func(*Service)

// WithAlertSink sets the operator alert sink for terminal print failures.
func WithAlertSink(sink AlertSink) Option {
	return func(s *Service) { s.alerts = sink }
}

// WithProfiles sets the per-station ticket style lookup.
func WithProfiles(fn ProfileFunc) Option {
	return func(s *Service) { s.profiles = fn }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithMetrics wires the engine metrics.
func WithMetrics(m *metric.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithReportCallback sets the callback invoked with each report produced
// by the async Enqueue path.
func WithReportCallback(fn func(*Report)) Option {
	return func(s *Service) { s.onReport = fn }
}

// NewService creates a dispatch service over the given transports.
func NewService(cfg Config, printers printer.Transport, displays DisplaySink, opts ...Option) *Service {
	if cfg.DestinationTimeout <= 0 {
		cfg.DestinationTimeout = 30 * time.Second
	}
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = 256
	}

	s := &Service{
		cfg:      cfg,
		printers: printers,
		displays: displays,
		logger:   slog.Default(),
		inflight: make(map[string][]*inflightJob),
		state:    component.StateCreated,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.alerts == nil {
		s.alerts = &LogAlertSink{Logger: s.logger}
	}
	if s.profiles == nil {
		s.profiles = func(string) ticket.StyleProfile { return ticket.DefaultProfile() }
	}
	return s
}

// Initialize validates the service's dependencies.
func (s *Service) Initialize() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.printers == nil && s.displays == nil {
		return errors.WrapFatal(errors.ErrNoTransport, "Service", "Initialize",
			"at least one of printer transport or display sink is required")
	}

	// Print jobs must not be dropped under load; writers block instead.
	s.queue = buffer.NewRing(s.cfg.QueueCapacity,
		buffer.WithOverflowPolicy[Request](buffer.Block))

	s.state = component.StateInitialized
	return nil
}

// Start launches the async queue worker. Synchronous Dispatch calls are
// accepted from this point on.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == component.StateStarted {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Service", "Start", "dispatch service")
	}
	if s.state != component.StateInitialized {
		return errors.WrapInvalid(errors.ErrNotStarted, "Service", "Start",
			"dispatch service must be initialized before starting")
	}
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, "Service", "Start", "context already cancelled")
	}

	s.runCtx, s.runStop = context.WithCancel(context.Background())

	s.wg.Add(1)
	go s.queueWorker()

	s.state = component.StateStarted
	return nil
}

// queueWorker drains the async queue until Stop closes it.
func (s *Service) queueWorker() {
	defer s.wg.Done()
	for {
		req, ok := s.queue.ReadBlocking()
		if !ok {
			return
		}
		// Queued work drains even during Stop, so bypass the state check.
		report := s.run(s.runCtx, req)
		if s.onReport != nil {
			s.onReport(report)
		}
	}
}

// Enqueue queues a manifest for asynchronous delivery. Blocks when the
// queue is full; the report goes to the WithReportCallback sink.
func (s *Service) Enqueue(req Request) error {
	s.mu.Lock()
	started := s.state == component.StateStarted
	s.mu.Unlock()
	if !started {
		return errors.WrapInvalid(errors.ErrNotStarted, "Service", "Enqueue", "dispatch service")
	}
	if req.Manifest == nil {
		return errors.WrapInvalid(fmt.Errorf("nil manifest"), "Service", "Enqueue", "request")
	}
	if err := s.queue.Write(req); err != nil {
		return errors.WrapTransient(err, "Service", "Enqueue", "dispatch queue")
	}
	return nil
}

// Dispatch delivers a manifest to every destination concurrently and
// blocks until each reaches a terminal state. One destination's slowness
// or failure never delays the others; each runs under its own timeout.
func (s *Service) Dispatch(ctx context.Context, req Request) (*Report, error) {
	if req.Manifest == nil {
		return nil, errors.WrapInvalid(fmt.Errorf("nil manifest"), "Service", "Dispatch", "request")
	}

	// The Add must happen under the same lock as the state check so a
	// racing Stop cannot begin its drain in between.
	s.mu.Lock()
	if s.state != component.StateStarted {
		s.mu.Unlock()
		return nil, errors.WrapInvalid(errors.ErrNotStarted, "Service", "Dispatch", "dispatch service")
	}
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	return s.run(ctx, req), nil
}

// run performs the fan-out for one manifest.
func (s *Service) run(ctx context.Context, req Request) *Report {
	m := req.Manifest
	s.observeManifest(m)

	report := &Report{OrderID: m.OrderID, StartedAt: time.Now()}
	results := make([]DestinationResult, len(m.Entries))

	header := ticket.Header{
		OrderNumber: m.OrderNumber,
		Table:       m.Table,
		Server:      req.Server,
		At:          m.ResolvedAt,
	}

	var wg sync.WaitGroup
	for i, entry := range m.Entries {
		wg.Add(1)
		go func(i int, entry routing.ManifestEntry) {
			defer wg.Done()
			switch entry.Kind {
			case routing.KindPrinter:
				results[i] = s.deliverPrinter(ctx, m, header, entry)
			case routing.KindDisplay:
				results[i] = s.deliverDisplay(ctx, m, entry)
			default:
				// A corrupt kind must never be published anywhere.
				results[i] = DestinationResult{
					StationID:   entry.StationID,
					StationName: entry.StationName,
					Kind:        entry.Kind,
					Outcome:     OutcomeFailed,
					Err: errors.WrapInvalid(
						fmt.Errorf("unknown station kind %q", entry.Kind),
						"Service", "Dispatch", entry.StationID),
				}
			}
		}(i, entry)
	}
	wg.Wait()

	report.Results = results
	s.logReport(m, report)
	return report
}

// deliverDisplay publishes the entry at-most-once. Failures are recorded,
// not retried; display clients recover through the full-refresh pull.
func (s *Service) deliverDisplay(ctx context.Context, m *routing.Manifest, entry routing.ManifestEntry) DestinationResult {
	res := DestinationResult{
		StationID:   entry.StationID,
		StationName: entry.StationName,
		Kind:        entry.Kind,
	}
	start := time.Now()

	if s.displays == nil {
		res.Outcome = OutcomeFailed
		res.Err = errors.WrapInvalid(errors.ErrNoTransport, "Service", "deliverDisplay", entry.StationID)
		res.Duration = time.Since(start)
		return res
	}

	destCtx, cancel := context.WithTimeout(ctx, s.cfg.DestinationTimeout)
	defer cancel()

	err := s.displays.Publish(destCtx, m, entry)
	res.Duration = time.Since(start)
	res.Attempts = 1

	outcome := "ok"
	if err != nil {
		res.Outcome = OutcomeFailed
		res.Err = err
		outcome = "error"
	} else {
		res.Outcome = OutcomeSucceeded
	}
	if s.metrics != nil {
		s.metrics.DisplayPublishes.WithLabelValues(entry.StationID, outcome).Inc()
		s.metrics.DispatchDuration.WithLabelValues("display", res.Outcome.String()).
			Observe(res.Duration.Seconds())
	}
	return res
}

// deliverPrinter builds, encodes, and delivers a ticket with bounded
// retry, waiting for the transport's acknowledgment.
func (s *Service) deliverPrinter(ctx context.Context, m *routing.Manifest, header ticket.Header, entry routing.ManifestEntry) (res DestinationResult) {
	res = DestinationResult{
		StationID:   entry.StationID,
		StationName: entry.StationName,
		Kind:        entry.Kind,
	}
	start := time.Now()
	// res is named so the deferred Duration assignment reaches the caller.
	defer func() {
		res.Duration = time.Since(start)
		if s.metrics != nil {
			s.metrics.DispatchDuration.WithLabelValues("printer", res.Outcome.String()).
				Observe(time.Since(start).Seconds())
		}
	}()

	if s.printers == nil {
		res.Outcome = OutcomeFailed
		res.Err = errors.WrapInvalid(errors.ErrNoTransport, "Service", "deliverPrinter", entry.StationID)
		return res
	}

	// Template build failures are local to this entry.
	doc, err := ticket.Build(header, entry, s.profiles(entry.StationID))
	if err != nil {
		res.Outcome = OutcomeFailed
		res.Err = err
		s.countJob(JobFailed)
		return res
	}
	payload, err := escpos.Encode(doc)
	if err != nil {
		res.Outcome = OutcomeFailed
		res.Err = err
		s.countJob(JobFailed)
		return res
	}

	job := newPrintJob(m.OrderID, entry.StationID, payload)
	destCtx, cancel := context.WithTimeout(ctx, s.cfg.DestinationTimeout)
	defer cancel()
	s.trackJob(job, cancel)
	defer s.untrackJob(m.OrderID, job)

	err = retry.Do(destCtx, s.cfg.Retry, func() error {
		if job.State() == JobCancelled {
			return retry.NonRetryable(errors.ErrJobCancelled)
		}
		sendErr := s.printers.Send(destCtx, entry.StationID, job.Payload)
		job.recordAttempt(sendErr)
		if sendErr == nil {
			return nil
		}
		if job.Attempts() > 1 && s.metrics != nil {
			s.metrics.PrintRetries.Inc()
		}
		if !errors.IsTransient(sendErr) {
			return retry.NonRetryable(sendErr)
		}
		return sendErr
	})

	res.Attempts = job.Attempts()

	switch {
	case err == nil:
		job.setState(JobAcknowledged)
		res.Outcome = OutcomeSucceeded
		s.countJob(JobAcknowledged)
	case job.State() == JobCancelled, stderrors.Is(err, errors.ErrJobCancelled):
		res.Outcome = OutcomeCancelled
		res.Err = errors.ErrJobCancelled
		s.countJob(JobCancelled)
	default:
		job.setState(JobFailed)
		res.Outcome = OutcomeFailed
		res.Err = err
		s.countJob(JobFailed)
		s.raiseAlert(m, entry, job, err)
	}
	return res
}

func (s *Service) trackJob(job *PrintJob, cancel context.CancelFunc) {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	s.inflight[job.OrderID] = append(s.inflight[job.OrderID], &inflightJob{job: job, cancel: cancel})
}

func (s *Service) untrackJob(orderID string, job *PrintJob) {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	jobs := s.inflight[orderID]
	for i, ij := range jobs {
		if ij.job == job {
			s.inflight[orderID] = append(jobs[:i], jobs[i+1:]...)
			break
		}
	}
	if len(s.inflight[orderID]) == 0 {
		delete(s.inflight, orderID)
	}
}

// CancelOrder cancels the in-flight print jobs for a voided order. Jobs
// already acknowledged cannot be retracted; their station IDs are
// returned so the caller can tell the operator which tickets printed
// anyway.
func (s *Service) CancelOrder(orderID string) (cancelled, alreadyPrinted []string) {
	s.inflightMu.Lock()
	jobs := append([]*inflightJob(nil), s.inflight[orderID]...)
	s.inflightMu.Unlock()

	for _, ij := range jobs {
		if ij.job.setState(JobCancelled) {
			ij.cancel()
			cancelled = append(cancelled, ij.job.StationID)
		} else if ij.job.State() == JobAcknowledged {
			alreadyPrinted = append(alreadyPrinted, ij.job.StationID)
		}
	}
	if len(cancelled) > 0 || len(alreadyPrinted) > 0 {
		s.logger.Info("order cancellation",
			"order_id", orderID,
			"cancelled_stations", cancelled,
			"already_printed", alreadyPrinted)
	}
	return cancelled, alreadyPrinted
}

func (s *Service) raiseAlert(m *routing.Manifest, entry routing.ManifestEntry, job *PrintJob, err error) {
	if s.metrics != nil {
		s.metrics.AlertsRaised.Inc()
	}
	s.alerts.PrinterFailure(Alert{
		JobID:       job.ID,
		OrderID:     m.OrderID,
		OrderNumber: m.OrderNumber,
		StationID:   entry.StationID,
		StationName: entry.StationName,
		Attempts:    job.Attempts(),
		Err:         err,
		At:          time.Now(),
	})
}

func (s *Service) countJob(state JobState) {
	if s.metrics != nil {
		s.metrics.PrintJobs.WithLabelValues(state.String()).Inc()
	}
}

// observeManifest emits routing metrics and the audit log line for one
// manifest entering dispatch.
func (s *Service) observeManifest(m *routing.Manifest) {
	if s.metrics != nil {
		s.metrics.ManifestsResolved.Inc()
		for _, e := range m.Entries {
			s.metrics.ItemsRouted.WithLabelValues(e.StationID, string(e.Kind)).
				Add(float64(len(e.Items)))
		}
		for _, u := range m.Unrouted {
			s.metrics.ItemsUnrouted.WithLabelValues(string(u.Reason)).Inc()
		}
		s.metrics.UnknownTags.Add(float64(len(m.UnknownTags)))
	}

	if len(m.Unrouted) > 0 {
		s.logger.Warn("manifest has unrouted items",
			"order_id", m.OrderID,
			"unrouted", len(m.Unrouted),
			"unknown_tags", m.UnknownTags)
	}
	s.logger.Debug("dispatching manifest",
		"order_id", m.OrderID,
		"destinations", len(m.Entries),
		"registry_version", m.RegistryVersion)
}

func (s *Service) logReport(m *routing.Manifest, report *Report) {
	if failed := report.Failed(); len(failed) > 0 {
		s.logger.Warn("dispatch completed with failures",
			"order_id", m.OrderID,
			"succeeded", report.Succeeded(),
			"failed", failed,
			"cancelled", report.Cancelled())
		return
	}
	s.logger.Info("dispatch completed",
		"order_id", m.OrderID,
		"destinations", len(report.Results))
}

// Stop drains in-flight dispatches. Deliveries still running when the
// timeout expires are cancelled.
func (s *Service) Stop(timeout time.Duration) error {
	s.mu.Lock()
	if s.state != component.StateStarted {
		s.mu.Unlock()
		return errors.WrapInvalid(errors.ErrNotStarted, "Service", "Stop", "dispatch service")
	}
	s.state = component.StateStopped
	s.mu.Unlock()

	_ = s.queue.Close()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.runStop()
		return nil
	case <-time.After(timeout):
		s.runStop()
		return errors.WrapTransient(
			fmt.Errorf("dispatch drain exceeded %v", timeout),
			"Service", "Stop", "in-flight deliveries cancelled")
	}
}

var _ component.Lifecycle = (*Service)(nil)
