// Package monitor tracks which deprecated elements are under
// observation, buffers access events, and flushes them to the telemetry
// collector on a fixed interval or when the buffer fills. Registries
// and buffers are process-local; running multiple monitor instances
// against the same database requires external coordination.
package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/google/uuid"

	"github.com/schemaguard/schemaguard/internal/deprecation"
	"github.com/schemaguard/schemaguard/internal/metrics"
	"github.com/schemaguard/schemaguard/internal/telemetry"
	"github.com/schemaguard/schemaguard/pkg/logger"
)

// Collector is the telemetry surface the monitor flushes into.
type Collector interface {
	RecordAccessEvents(ctx context.Context, events []telemetry.AccessEvent) error
	EventsInRange(start, end time.Time) []telemetry.AccessEvent
}

// AlertSink receives the synchronous access hook, so alerting latency
// is independent of flush latency.
type AlertSink interface {
	TriggerDeprecatedElementAccess(elementType, elementName, sourceType, queryType string)
}

// ElementState is the monitoring state of one element.
type ElementState string

const (
	StateMonitoring       ElementState = "monitoring"
	StateRemovalCandidate ElementState = "removal_candidate"
)

// Config configures the monitor.
type Config struct {
	// BatchSize triggers a flush when the buffer reaches this size.
	BatchSize int

	// FlushIntervalSeconds is the periodic flush cadence.
	FlushIntervalSeconds int

	// StatsWindowDays is the lookback for on-demand element stats.
	StatsWindowDays int

	// AlertOnAccess invokes the alert sink on every recorded access.
	AlertOnAccess bool
}

func (c *Config) applyDefaults() {
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.FlushIntervalSeconds <= 0 {
		c.FlushIntervalSeconds = 30
	}
	if c.StatsWindowDays <= 0 {
		c.StatsWindowDays = 30
	}
}

type trackedElement struct {
	element deprecation.DeprecatedElement
	state   ElementState
	since   time.Time
}

// Monitor is the runtime core of the subsystem.
type Monitor struct {
	cfg       Config
	collector Collector
	alerts    AlertSink
	logger    *logger.Logger
	counters  *metrics.Set

	mu       sync.Mutex
	elements map[string]*trackedElement
	buffer   []telemetry.AccessEvent

	scheduler *gocron.Scheduler
	now       func() time.Time
}

// New creates a monitor. alerts may be nil when alerting is disabled.
func New(cfg Config, collector Collector, alerts AlertSink, counters *metrics.Set, log *logger.Logger) *Monitor {
	cfg.applyDefaults()
	if counters == nil {
		counters = metrics.NewNop()
	}
	return &Monitor{
		cfg:       cfg,
		collector: collector,
		alerts:    alerts,
		logger:    log,
		counters:  counters,
		elements:  make(map[string]*trackedElement),
		now:       time.Now,
	}
}

// SetClock overrides the time source.
func (m *Monitor) SetClock(now func() time.Time) {
	m.now = now
}

// Start launches the periodic flush task.
func (m *Monitor) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.scheduler != nil {
		return fmt.Errorf("monitor already started")
	}
	m.scheduler = gocron.NewScheduler(time.UTC)
	interval := time.Duration(m.cfg.FlushIntervalSeconds) * time.Second
	if _, err := m.scheduler.Every(interval).Do(m.flushTask); err != nil {
		return fmt.Errorf("failed to schedule flush: %w", err)
	}
	m.scheduler.StartAsync()
	m.logger.Infof("monitor flushing every %s", interval)
	return nil
}

// Stop halts the flush task and performs a final synchronous flush so
// buffered events are not dropped.
func (m *Monitor) Stop() {
	m.mu.Lock()
	scheduler := m.scheduler
	m.scheduler = nil
	m.mu.Unlock()

	if scheduler != nil {
		scheduler.Stop()
	}
	if err := m.Flush(context.Background()); err != nil {
		m.logger.Warnf("final flush failed: %v", err)
	}
}

// StartMonitoring registers an element. Idempotent: re-registering an
// already-tracked element is a no-op.
func (m *Monitor) StartMonitoring(el deprecation.DeprecatedElement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := el.Key()
	if _, ok := m.elements[key]; ok {
		return nil
	}
	m.elements[key] = &trackedElement{
		element: el,
		state:   StateMonitoring,
		since:   m.now(),
	}
	m.logger.Infof("monitoring %s", key)
	return nil
}

// StopMonitoring removes an element from the registry. Idempotent.
func (m *Monitor) StopMonitoring(el deprecation.DeprecatedElement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := el.Key()
	if _, ok := m.elements[key]; !ok {
		return nil
	}
	delete(m.elements, key)
	m.logger.Infof("stopped monitoring %s", key)
	return nil
}

// MonitoredElements returns the currently tracked elements.
func (m *Monitor) MonitoredElements() []deprecation.DeprecatedElement {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]deprecation.DeprecatedElement, 0, len(m.elements))
	for _, t := range m.elements {
		out = append(out, t.element)
	}
	return out
}

// RecordAccess records one access to a deprecated element. The event
// lands in the in-process buffer and the call returns immediately; the
// alert hook runs synchronously so alerting does not wait for flush.
// Accesses to elements not in the registry are dropped and counted, so
// every buffered event references an actively monitored element.
func (m *Monitor) RecordAccess(elementName, elementType string, source telemetry.AccessSource, queryType telemetry.QueryType, metadata map[string]string) {
	event := telemetry.AccessEvent{
		ID:          uuid.NewString(),
		ElementName: elementName,
		ElementType: elementType,
		Timestamp:   m.now(),
		Source:      source,
		QueryType:   queryType,
		Metadata:    metadata,
	}
	if ms, ok := metadata["execution_time_ms"]; ok {
		fmt.Sscanf(ms, "%f", &event.ExecutionTimeMs)
	}

	key := elementType + ":" + elementName
	m.mu.Lock()
	if _, tracked := m.elements[key]; !tracked {
		m.mu.Unlock()
		m.counters.UnknownElementEvents.Inc()
		m.logger.Debugf("dropped access to unmonitored element %s", key)
		return
	}
	m.buffer = append(m.buffer, event)
	full := len(m.buffer) >= m.cfg.BatchSize
	m.mu.Unlock()

	m.counters.EventsRecorded.Inc()

	if m.cfg.AlertOnAccess && m.alerts != nil {
		m.alerts.TriggerDeprecatedElementAccess(elementType, elementName, string(source.Type), string(queryType))
	}

	if full {
		if err := m.Flush(context.Background()); err != nil {
			m.logger.Warnf("buffer-full flush failed, batch requeued: %v", err)
		}
	}
}

// Flush hands the buffered batch to the collector in one call. On
// failure the batch is prepended back onto the live buffer so the
// retried batch is processed before newer events: delivery is
// at-least-once and approximately chronological.
func (m *Monitor) Flush(ctx context.Context) error {
	m.mu.Lock()
	if len(m.buffer) == 0 {
		m.mu.Unlock()
		return nil
	}
	batch := m.buffer
	m.buffer = nil
	m.mu.Unlock()

	if err := m.collector.RecordAccessEvents(ctx, batch); err != nil {
		m.mu.Lock()
		m.buffer = append(batch, m.buffer...)
		m.mu.Unlock()
		m.counters.FlushFailures.Inc()
		return fmt.Errorf("failed to flush %d events: %w", len(batch), err)
	}
	return nil
}

// BufferedEvents returns the number of events awaiting flush.
func (m *Monitor) BufferedEvents() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.buffer)
}

// flushTask is the periodic flush entrypoint. Failures are contained
// here so the task keeps running on its next tick.
func (m *Monitor) flushTask() {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Errorf("flush task panicked: %v", r)
			if sink, ok := m.alerts.(interface {
				TriggerSystemError(component string, err error)
			}); ok && m.alerts != nil {
				sink.TriggerSystemError("monitor", fmt.Errorf("flush task panicked: %v", r))
			}
		}
	}()
	if err := m.Flush(context.Background()); err != nil {
		m.logger.Warnf("periodic flush failed, batch requeued: %v", err)
	}
}

// elementEvents gathers flushed and still-buffered events for one
// element within [start, end).
func (m *Monitor) elementEvents(name string, start, end time.Time) []telemetry.AccessEvent {
	events := m.collector.EventsInRange(start, end)

	m.mu.Lock()
	for _, ev := range m.buffer {
		if !ev.Timestamp.Before(start) && ev.Timestamp.Before(end) {
			events = append(events, ev)
		}
	}
	m.mu.Unlock()

	var out []telemetry.AccessEvent
	for _, ev := range events {
		if name == "" || ev.ElementName == name {
			out = append(out, ev)
		}
	}
	return out
}
