package telemetry

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/schemaguard/schemaguard/internal/metrics"
	"github.com/schemaguard/schemaguard/pkg/logger"
)

// EventStore is an optional durable backend for raw events.
type EventStore interface {
	SaveEvents(ctx context.Context, events []AccessEvent) error
	Close() error
}

// EventLoader is an optional EventStore extension that can read back
// persisted events, letting a cold-started collector replay recent
// history into the ring.
type EventLoader interface {
	LoadDay(ctx context.Context, day time.Time) ([]AccessEvent, error)
}

// Config configures the collector.
type Config struct {
	// BufferSize bounds the in-memory event ring. Oldest events are
	// evicted on overflow and counted as a metric.
	BufferSize int

	// AggregationIntervalMinutes is the metrics rollup period.
	AggregationIntervalMinutes int

	// RetentionDays bounds how long events and metrics are kept.
	RetentionDays int

	// ReplayDays is how many days of persisted events are reloaded
	// into the ring on Start when the store supports it.
	ReplayDays int
}

func (c *Config) applyDefaults() {
	if c.BufferSize <= 0 {
		c.BufferSize = 10000
	}
	if c.AggregationIntervalMinutes <= 0 {
		c.AggregationIntervalMinutes = 5
	}
	if c.RetentionDays <= 0 {
		c.RetentionDays = 90
	}
	if c.ReplayDays <= 0 {
		c.ReplayDays = 7
	}
}

// Collector stores access events and derives metrics from them.
type Collector struct {
	cfg      Config
	store    EventStore
	logger   *logger.Logger
	counters *metrics.Set

	mu             sync.RWMutex
	events         []AccessEvent
	seen           map[string]struct{}
	metricsBuf     []Metrics
	lastAggregated time.Time

	scheduler *gocron.Scheduler
	now       func() time.Time
}

// NewCollector creates a collector. store may be nil for in-memory-only
// operation.
func NewCollector(cfg Config, store EventStore, counters *metrics.Set, log *logger.Logger) *Collector {
	cfg.applyDefaults()
	if counters == nil {
		counters = metrics.NewNop()
	}
	return &Collector{
		cfg:      cfg,
		store:    store,
		logger:   log,
		counters: counters,
		seen:     make(map[string]struct{}),
		now:      time.Now,
	}
}

// SetClock overrides the time source.
func (c *Collector) SetClock(now func() time.Time) {
	c.now = now
}

// Start launches the aggregation timer.
func (c *Collector) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.scheduler != nil {
		return fmt.Errorf("collector already started")
	}
	c.lastAggregated = c.now()
	c.replayPersisted(context.Background())

	c.scheduler = gocron.NewScheduler(time.UTC)
	interval := time.Duration(c.cfg.AggregationIntervalMinutes) * time.Minute
	if _, err := c.scheduler.Every(interval).Do(c.runAggregation); err != nil {
		return fmt.Errorf("failed to schedule aggregation: %w", err)
	}
	c.scheduler.StartAsync()
	c.logger.Infof("telemetry aggregation every %s", interval)
	return nil
}

// Stop halts the aggregation timer and runs a final rollup.
func (c *Collector) Stop() {
	c.mu.Lock()
	scheduler := c.scheduler
	c.scheduler = nil
	c.mu.Unlock()

	if scheduler != nil {
		scheduler.Stop()
		c.runAggregation()
	}
	if c.store != nil {
		if err := c.store.Close(); err != nil {
			c.logger.Warnf("failed to close event store: %v", err)
		}
	}
}

// replayPersisted reloads recent persisted events into the ring so
// stats and trends survive a restart. Replayed IDs enter the seen set,
// so a batch retried across the restart still deduplicates. Caller
// holds the lock.
func (c *Collector) replayPersisted(ctx context.Context) {
	loader, ok := c.store.(EventLoader)
	if !ok {
		return
	}

	now := c.now()
	restored := 0
	for i := c.cfg.ReplayDays; i >= 0; i-- {
		day := now.AddDate(0, 0, -i)
		events, err := loader.LoadDay(ctx, day)
		if err != nil {
			c.logger.Warnf("failed to replay events for %s: %v", day.UTC().Format("2006-01-02"), err)
			continue
		}
		for _, ev := range events {
			if _, dup := c.seen[ev.ID]; dup {
				continue
			}
			c.seen[ev.ID] = struct{}{}
			c.events = append(c.events, ev)
			restored++
		}
	}

	if over := len(c.events) - c.cfg.BufferSize; over > 0 {
		for _, ev := range c.events[:over] {
			delete(c.seen, ev.ID)
		}
		c.events = append(c.events[:0:0], c.events[over:]...)
	}
	if restored > 0 {
		c.logger.Infof("replayed %d persisted events", restored)
	}
}

// RecordAccessEvents ingests a batch of events. Events already seen
// (a retried batch after a partial failure) are dropped, making ingest
// effectively idempotent. Overflow evicts oldest events.
func (c *Collector) RecordAccessEvents(ctx context.Context, events []AccessEvent) error {
	if len(events) == 0 {
		return nil
	}

	c.mu.Lock()
	fresh := make([]AccessEvent, 0, len(events))
	for _, ev := range events {
		if _, dup := c.seen[ev.ID]; dup {
			c.counters.DuplicateEvents.Inc()
			continue
		}
		c.seen[ev.ID] = struct{}{}
		c.events = append(c.events, ev)
		fresh = append(fresh, ev)
	}

	evicted := 0
	if len(c.events) > c.cfg.BufferSize {
		evicted = len(c.events) - c.cfg.BufferSize
		for _, ev := range c.events[:evicted] {
			delete(c.seen, ev.ID)
		}
		c.events = append(c.events[:0:0], c.events[evicted:]...)
	}
	c.mu.Unlock()

	if evicted > 0 {
		c.counters.BufferEvictions.Add(float64(evicted))
		c.logger.Warnf("event buffer overflow: evicted %d oldest events", evicted)
	}

	if c.store != nil && len(fresh) > 0 {
		if err := c.store.SaveEvents(ctx, fresh); err != nil {
			return fmt.Errorf("failed to persist events: %w", err)
		}
	}
	return nil
}

// EventsInRange returns events with timestamps in [start, end).
func (c *Collector) EventsInRange(start, end time.Time) []AccessEvent {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []AccessEvent
	for _, ev := range c.events {
		if !ev.Timestamp.Before(start) && ev.Timestamp.Before(end) {
			out = append(out, ev)
		}
	}
	return out
}

// LatestMetrics returns up to n most recent rollups, newest first.
func (c *Collector) LatestMetrics(n int) []Metrics {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if n <= 0 || n > len(c.metricsBuf) {
		n = len(c.metricsBuf)
	}
	out := make([]Metrics, 0, n)
	for i := len(c.metricsBuf) - 1; i >= len(c.metricsBuf)-n; i-- {
		out = append(out, c.metricsBuf[i])
	}
	return out
}

// Cleanup purges events and metrics older than the retention window.
func (c *Collector) Cleanup() (removed int) {
	cutoff := c.now().AddDate(0, 0, -c.cfg.RetentionDays)

	c.mu.Lock()
	defer c.mu.Unlock()

	kept := c.events[:0]
	for _, ev := range c.events {
		if ev.Timestamp.Before(cutoff) {
			delete(c.seen, ev.ID)
			removed++
			continue
		}
		kept = append(kept, ev)
	}
	c.events = kept

	keptMetrics := c.metricsBuf[:0]
	for _, m := range c.metricsBuf {
		if !m.Timestamp.Before(cutoff) {
			keptMetrics = append(keptMetrics, m)
		}
	}
	c.metricsBuf = keptMetrics
	return removed
}

// runAggregation computes a rollup over the window since the previous
// aggregation. Failures are caught here so the periodic task never dies.
func (c *Collector) runAggregation() {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Errorf("aggregation panicked: %v", r)
		}
	}()

	now := c.now()
	c.mu.Lock()
	start := c.lastAggregated
	c.lastAggregated = now
	c.mu.Unlock()

	window := c.EventsInRange(start, now)
	snapshot := c.Aggregate(window, now)

	c.mu.Lock()
	c.metricsBuf = append(c.metricsBuf, snapshot)
	// Bound the rollup buffer by the retention window.
	maxEntries := c.cfg.RetentionDays * 1440 / c.cfg.AggregationIntervalMinutes
	if maxEntries > 0 && len(c.metricsBuf) > maxEntries {
		c.metricsBuf = append(c.metricsBuf[:0:0], c.metricsBuf[len(c.metricsBuf)-maxEntries:]...)
	}
	c.mu.Unlock()
}

// Aggregate computes one Metrics snapshot over a set of events.
func (c *Collector) Aggregate(events []AccessEvent, at time.Time) Metrics {
	m := Metrics{
		Timestamp:      at,
		TotalEvents:    len(events),
		AccessByType:   make(map[QueryType]int),
		AccessBySource: make(map[SourceType]int),
	}

	perElement := make(map[string]int)
	var execTotal float64
	var execCount int
	var errCount int
	for _, ev := range events {
		perElement[ev.ElementName]++
		m.AccessByType[ev.QueryType]++
		m.AccessBySource[ev.Source.Type]++
		if ev.ExecutionTimeMs > 0 {
			execTotal += ev.ExecutionTimeMs
			execCount++
		}
		if ev.Metadata["error"] != "" {
			errCount++
		}
	}

	m.UniqueElements = len(perElement)
	if execCount > 0 {
		m.AverageResponseTime = execTotal / float64(execCount)
	}
	if len(events) > 0 {
		m.ErrorRate = float64(errCount) / float64(len(events))
	}

	for element, count := range perElement {
		m.TopAccessedElements = append(m.TopAccessedElements, ElementCount{Element: element, Count: count})
	}
	sort.Slice(m.TopAccessedElements, func(i, j int) bool {
		if m.TopAccessedElements[i].Count != m.TopAccessedElements[j].Count {
			return m.TopAccessedElements[i].Count > m.TopAccessedElements[j].Count
		}
		return m.TopAccessedElements[i].Element < m.TopAccessedElements[j].Element
	})
	if len(m.TopAccessedElements) > 10 {
		m.TopAccessedElements = m.TopAccessedElements[:10]
	}
	return m
}
