// Package monitor watches the host process and the project tree, records
// errors, and escalates to an emergency rollback when errors pile up.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc"

	"github.com/pders01/rollguard/internal/config"
	"github.com/pders01/rollguard/internal/models"
	"github.com/pders01/rollguard/internal/rollback"
)

// maxHistory bounds the in-memory event history; per-type counters keep
// counting past it
const maxHistory = 1000

var ErrAlreadyRunning = errors.New("monitor already running")

// Recoverer performs rollbacks on behalf of the monitor.
// *rollback.Controller satisfies it.
type Recoverer interface {
	EmergencyRollback(ctx context.Context) (*rollback.Result, error)
	RollbackToStable(ctx context.Context) (*rollback.Result, error)
}

// Config is the monitor configuration
type Config struct {
	config.MonitorSettings
	// Root is the project tree whose disk and critical files are sampled.
	Root string
	// PID is the host process to sample. Zero means the current process.
	PID int
}

// Option configures a Monitor
type Option func(*Monitor)

// WithSampler replaces the procfs sampler
func WithSampler(s Sampler) Option {
	return func(m *Monitor) { m.sampler = s }
}

// WithRestarter replaces the process restart used when recovery fails
func WithRestarter(f func() error) Option {
	return func(m *Monitor) { m.restart = f }
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

// WithMetrics enables Prometheus metrics
func WithMetrics(metrics *Metrics) Option {
	return func(m *Monitor) { m.metrics = metrics }
}

// WithEventLog persists every recorded event
func WithEventLog(log *EventLog) Option {
	return func(m *Monitor) { m.eventLog = log }
}

// WithProbe adds a health probe checked on every sample
func WithProbe(p Probe) Option {
	return func(m *Monitor) { m.probes = append(m.probes, p) }
}

// WithLogger sets the monitor logger
func WithLogger(l *slog.Logger) Option {
	return func(m *Monitor) { m.logger = l }
}

// Monitor is the error monitor. Create it with New; the zero value is not
// usable.
type Monitor struct {
	cfg       Config
	recoverer Recoverer
	sampler   Sampler
	restart   func() error
	metrics   *Metrics
	eventLog  *EventLog
	probes    []Probe
	logger    *slog.Logger
	now       func() time.Time

	mu           sync.Mutex
	pid          int
	history      []models.ErrorEvent
	counts       map[string]int
	total        int
	emergency    bool
	recoveredAt  time.Time
	threshold    int
	window       time.Duration
	autoRollback bool
	handlers     map[string]Handler

	// stopped is set by Stop and cleared by Start; no escalation fires
	// while it is set
	stopped     bool
	escalations sync.WaitGroup

	queue chan models.ErrorEvent

	lifecycle sync.Mutex
	running   bool
	cancel    context.CancelFunc
	wg        *conc.WaitGroup
	done      chan struct{}
}

// New creates a monitor. Start must be called to begin sampling and
// handling events; RecordError works before that.
func New(cfg Config, recoverer Recoverer, opts ...Option) *Monitor {
	if cfg.PID == 0 {
		cfg.PID = os.Getpid()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.Threshold < 1 {
		cfg.Threshold = 1
	}

	m := &Monitor{
		cfg:          cfg,
		recoverer:    recoverer,
		restart:      ReexecSelf,
		logger:       slog.Default(),
		now:          time.Now,
		pid:          cfg.PID,
		counts:       make(map[string]int),
		threshold:    cfg.Threshold,
		window:       cfg.Window,
		autoRollback: cfg.AutoRollback,
		queue:        make(chan models.ErrorEvent, cfg.QueueSize),
		done:         make(chan struct{}),
	}
	close(m.done)
	for _, opt := range opts {
		opt(m)
	}
	if m.sampler == nil {
		m.sampler = NewProcSampler(cfg.Root)
	}
	m.handlers = m.defaultHandlers()
	return m
}

// Start launches the sampling and event-handling workers. The workers stop
// when ctx is cancelled or Stop is called.
func (m *Monitor) Start(ctx context.Context) error {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()
	if m.activeLocked() {
		return ErrAlreadyRunning
	}

	var watcher *fileWatcher
	if m.cfg.WatchFiles && len(m.cfg.CriticalFiles) > 0 {
		w, err := newFileWatcher(m.cfg.Root, m.cfg.CriticalFiles, m.logger)
		if err != nil {
			m.logger.Warn("critical file watch disabled", "error", err)
		} else {
			watcher = w
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.wg = conc.NewWaitGroup()
	m.done = make(chan struct{})
	m.running = true
	m.mu.Lock()
	m.stopped = false
	m.mu.Unlock()
	m.metrics.setActive(true)

	m.wg.Go(func() { m.sampleLoop(ctx) })
	m.wg.Go(func() { m.eventLoop(ctx) })
	if watcher != nil {
		m.wg.Go(func() { watcher.run(ctx, m) })
	}

	wg, done := m.wg, m.done
	go func() {
		<-ctx.Done()
		wg.Wait()
		m.metrics.setActive(false)
		close(done)
	}()

	m.logger.Info("monitoring started", "pid", m.PID(), "interval", m.cfg.Interval,
		"threshold", m.cfg.Threshold, "window", m.cfg.Window)
	return nil
}

// Stop cancels the workers and waits for them and for any emergency
// rollback already in progress. Events recorded after Stop returns are kept
// in the history but never escalate. Calling Stop on a stopped monitor is a
// no-op.
func (m *Monitor) Stop() {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()
	if !m.running {
		return
	}
	m.mu.Lock()
	m.stopped = true
	m.mu.Unlock()
	m.escalations.Wait()

	m.cancel()
	m.wg.Wait()
	<-m.done
	m.running = false
	m.logger.Info("monitoring stopped")
}

// Done is closed once the workers have exited
func (m *Monitor) Done() <-chan struct{} {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()
	return m.done
}

// Running reports whether the workers are active
func (m *Monitor) Running() bool {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()
	return m.activeLocked()
}

func (m *Monitor) activeLocked() bool {
	if !m.running {
		return false
	}
	select {
	case <-m.done:
		return false
	default:
		return true
	}
}

// PID returns the process being sampled
func (m *Monitor) PID() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pid
}

// SetPID points sampling at another process, e.g. a relaunched child
func (m *Monitor) SetPID(pid int) {
	m.mu.Lock()
	m.pid = pid
	m.mu.Unlock()
}

// RecordError records an event, queues it for its handler and evaluates
// the escalation rule before returning. It never fails.
func (m *Monitor) RecordError(errType, message string, details map[string]string, severity models.Severity) models.ErrorEvent {
	if severity == "" {
		severity = models.SeverityMedium
	}
	ev := models.ErrorEvent{
		ID:       uuid.NewString(),
		Type:     errType,
		Message:  message,
		Severity: severity,
	}
	if len(details) > 0 {
		ev.Context = make(map[string]string, len(details))
		for k, v := range details {
			ev.Context[k] = v
		}
	}

	m.mu.Lock()
	// stamped under the lock so history stays ordered by timestamp
	ev.Timestamp = m.now()
	ev.PID = m.pid
	m.history = append(m.history, ev)
	if len(m.history) > maxHistory {
		m.history = append([]models.ErrorEvent(nil), m.history[len(m.history)-maxHistory:]...)
	}
	m.counts[errType]++
	m.total++
	escalate := !m.stopped && m.shouldEscalateLocked(ev.Timestamp)
	if escalate {
		m.emergency = true
		m.escalations.Add(1)
	}
	m.mu.Unlock()

	m.logger.Warn("error recorded", "type", errType, "severity", severity, "message", message)
	m.metrics.recordError(ev)

	if m.eventLog != nil {
		if err := m.eventLog.Write(ev); err != nil {
			m.logger.Warn("failed to persist error event", "error", err)
		}
	}

	select {
	case m.queue <- ev:
	default:
		m.metrics.dropped()
		m.logger.Warn("event queue full, handler skipped", "type", errType, "id", ev.ID)
	}

	if escalate {
		defer m.escalations.Done()
		m.escalate()
	}
	return ev
}

// shouldEscalateLocked counts events inside the trailing window. Events
// recorded before the last successful recovery do not count again.
func (m *Monitor) shouldEscalateLocked(now time.Time) bool {
	if m.emergency {
		return false
	}
	since := now.Add(-m.window)
	if m.recoveredAt.After(since) {
		since = m.recoveredAt
	}
	recent := 0
	for _, ev := range m.history {
		if ev.Timestamp.After(since) {
			recent++
		}
	}
	return recent >= m.threshold
}

// escalate runs on the goroutine that recorded the triggering event
func (m *Monitor) escalate() {
	m.metrics.escalated()
	m.metrics.setEmergency(true)
	m.logger.Error("error threshold exceeded, entering emergency mode",
		"threshold", m.Threshold(), "window", m.Window())

	m.mu.Lock()
	auto := m.autoRollback
	m.mu.Unlock()
	if !auto || m.recoverer == nil {
		m.logger.Warn("automatic rollback disabled, staying in emergency mode")
		return
	}

	res, err := m.recoverer.EmergencyRollback(context.Background())
	m.metrics.rollback(err)
	if err == nil {
		m.mu.Lock()
		m.emergency = false
		m.recoveredAt = m.now()
		m.mu.Unlock()
		m.metrics.setEmergency(false)
		m.logger.Info("emergency rollback succeeded, leaving emergency mode", "target", res.Target)
		return
	}

	m.logger.Error("emergency rollback failed", "error", err)
	if !m.cfg.Restart {
		m.logger.Error("process restart disabled, staying in emergency mode")
		return
	}
	m.logger.Error("restarting process as last resort", "args", os.Args)
	m.metrics.restarted()
	if err := m.restart(); err != nil {
		m.logger.Error("process restart failed", "error", err)
	}
}

// Summary returns a consistent view of the monitor state
func (m *Monitor) Summary() models.MonitorSummary {
	m.mu.Lock()
	s := summarize(m.history, m.now())
	s.TotalErrors = m.total
	s.CountsByType = make(map[string]int, len(m.counts))
	for k, v := range m.counts {
		s.CountsByType[k] = v
	}
	s.EmergencyMode = m.emergency
	s.Threshold = m.threshold
	s.AutoRollback = m.autoRollback
	m.mu.Unlock()

	s.MonitoringActive = m.Running()
	return s
}

// History returns recorded events, oldest first
func (m *Monitor) History() []models.ErrorEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.ErrorEvent(nil), m.history...)
}

// EmergencyMode reports whether the monitor is in emergency mode
func (m *Monitor) EmergencyMode() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.emergency
}

// ClearHistory drops recorded events and counters and leaves emergency mode
func (m *Monitor) ClearHistory() error {
	m.mu.Lock()
	m.history = nil
	m.counts = make(map[string]int)
	m.total = 0
	m.emergency = false
	m.mu.Unlock()
	m.metrics.setEmergency(false)

	if m.eventLog != nil {
		if err := m.eventLog.Clear(); err != nil {
			return fmt.Errorf("failed to clear event log: %w", err)
		}
	}
	m.logger.Info("error history cleared")
	return nil
}

// Threshold returns the escalation threshold
func (m *Monitor) Threshold() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.threshold
}

// SetThreshold changes the escalation threshold; values below 1 become 1.
// Only events recorded inside the window and after the last successful
// emergency rollback count toward it.
func (m *Monitor) SetThreshold(n int) {
	if n < 1 {
		n = 1
	}
	m.mu.Lock()
	m.threshold = n
	m.mu.Unlock()
	m.logger.Info("error threshold set", "threshold", n)
}

// Window returns the escalation window
func (m *Monitor) Window() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.window
}

// SetWindow changes the escalation window. The window never reaches back
// past the last successful emergency rollback, so widening it does not
// count events that already triggered a recovery.
func (m *Monitor) SetWindow(d time.Duration) {
	m.mu.Lock()
	m.window = d
	m.mu.Unlock()
}

// SetAutoRollback toggles automatic rollbacks from escalation and handlers
func (m *Monitor) SetAutoRollback(enabled bool) {
	m.mu.Lock()
	m.autoRollback = enabled
	m.mu.Unlock()
	m.logger.Info("auto rollback toggled", "enabled", enabled)
}

// RegisterHandler installs the handler for an error type, replacing any
// existing one. The empty type sets the fallback handler.
func (m *Monitor) RegisterHandler(errType string, h Handler) {
	m.mu.Lock()
	m.handlers[errType] = h
	m.mu.Unlock()
}

func (m *Monitor) handler(errType string) Handler {
	m.mu.Lock()
	defer m.mu.Unlock()
	if h, ok := m.handlers[errType]; ok {
		return h
	}
	return m.handlers[""]
}

func (m *Monitor) autoRollbackEnabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.autoRollback
}

// eventLoop handles queued events in order until ctx is done
func (m *Monitor) eventLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-m.queue:
			m.dispatch(ctx, ev)
		}
	}
}

func (m *Monitor) dispatch(ctx context.Context, ev models.ErrorEvent) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("error handler panicked", "type", ev.Type, "panic", r)
		}
	}()

	h := m.handler(ev.Type)
	if h == nil {
		return
	}
	if err := h(ctx, ev); err != nil {
		m.logger.Error("error handler failed", "type", ev.Type, "id", ev.ID, "error", err)
	}
}

// sampleLoop samples on every interval and backs off after a failure
func (m *Monitor) sampleLoop(ctx context.Context) {
	for {
		wait := m.cfg.Interval
		if err := m.sampleOnce(ctx); err != nil {
			m.logger.Error("health sample failed", "error", err, "backoff", m.cfg.Backoff)
			wait = m.cfg.Backoff
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (m *Monitor) sampleOnce(ctx context.Context) error {
	s, err := m.sampler.Sample(ctx, m.PID())
	if err != nil {
		return err
	}
	m.metrics.observe(s)

	for _, b := range Evaluate(s, m.cfg.MonitorSettings) {
		m.RecordError(b.Type, b.Message, b.Context, models.SeverityLow)
	}
	for _, b := range CheckCriticalFiles(m.cfg.Root, m.cfg.CriticalFiles) {
		m.RecordError(b.Type, b.Message, b.Context, models.SeverityLow)
	}
	for _, p := range m.probes {
		pctx, cancel := context.WithTimeout(ctx, probeTimeout)
		err := p.Check(pctx)
		cancel()
		if err != nil && ctx.Err() == nil {
			m.RecordError(models.ErrorTypeAIProcessing, fmt.Sprintf("%s probe failed: %v", p.Name(), err),
				map[string]string{"probe": p.Name()}, models.SeverityLow)
		}
	}
	return nil
}
