package monitor

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schemaguard/schemaguard/internal/deprecation"
	"github.com/schemaguard/schemaguard/internal/telemetry"
	"github.com/schemaguard/schemaguard/pkg/logger"
)

var testBase = time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

// fakeCollector accepts flushed batches; failures counts how many
// flushes fail before it starts accepting.
type fakeCollector struct {
	mu       sync.Mutex
	events   []telemetry.AccessEvent
	batches  int
	failures int
}

func (c *fakeCollector) RecordAccessEvents(ctx context.Context, events []telemetry.AccessEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failures > 0 {
		c.failures--
		return fmt.Errorf("collector unavailable")
	}
	c.batches++
	c.events = append(c.events, events...)
	return nil
}

func (c *fakeCollector) EventsInRange(start, end time.Time) []telemetry.AccessEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []telemetry.AccessEvent
	for _, ev := range c.events {
		if !ev.Timestamp.Before(start) && ev.Timestamp.Before(end) {
			out = append(out, ev)
		}
	}
	return out
}

type fakeSink struct {
	mu    sync.Mutex
	calls []string
}

func (s *fakeSink) TriggerDeprecatedElementAccess(elementType, elementName, sourceType, queryType string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, elementType+":"+elementName)
}

func tableElement(name string) deprecation.DeprecatedElement {
	return deprecation.DeprecatedElement{
		Type:           deprecation.ElementTable,
		Schema:         "public",
		OriginalName:   name,
		DeprecatedName: name + "_deprecated_20260830",
		DeprecatedAt:   testBase,
	}
}

func testMonitor(cfg Config) (*Monitor, *fakeCollector, *fakeSink) {
	collector := &fakeCollector{}
	sink := &fakeSink{}
	m := New(cfg, collector, sink, nil, logger.New("test"))
	m.SetClock(func() time.Time { return testBase })
	return m, collector, sink
}

func appSource() telemetry.AccessSource {
	return telemetry.AccessSource{Type: telemetry.SourceApplication, Identifier: "billing-svc"}
}

func TestStartMonitoringIdempotent(t *testing.T) {
	m, _, _ := testMonitor(Config{})
	el := tableElement("old_orders")

	require.NoError(t, m.StartMonitoring(el))
	require.NoError(t, m.StartMonitoring(el))
	require.NoError(t, m.StartMonitoring(el))

	assert.Len(t, m.MonitoredElements(), 1)
}

func TestStopMonitoringIdempotent(t *testing.T) {
	m, _, _ := testMonitor(Config{})
	el := tableElement("old_orders")
	require.NoError(t, m.StartMonitoring(el))

	require.NoError(t, m.StopMonitoring(el))
	require.NoError(t, m.StopMonitoring(el))
	assert.Empty(t, m.MonitoredElements())
}

func TestRecordAccessBuffersAndAlerts(t *testing.T) {
	m, collector, sink := testMonitor(Config{BatchSize: 100, AlertOnAccess: true})
	el := tableElement("old_orders")
	require.NoError(t, m.StartMonitoring(el))

	m.RecordAccess(el.DeprecatedName, "table", appSource(), telemetry.QuerySelect, map[string]string{
		"execution_time_ms": "12.5",
	})

	assert.Equal(t, 1, m.BufferedEvents())
	assert.Empty(t, collector.events)
	require.Len(t, sink.calls, 1)
	assert.Equal(t, "table:"+el.DeprecatedName, sink.calls[0])
}

func TestRecordAccessDropsUnmonitoredElement(t *testing.T) {
	m, collector, sink := testMonitor(Config{BatchSize: 100, AlertOnAccess: true})

	m.RecordAccess("never_registered_deprecated_20260830", "table", appSource(), telemetry.QuerySelect, nil)

	assert.Equal(t, 0, m.BufferedEvents())
	assert.Empty(t, collector.events)
	assert.Empty(t, sink.calls)
}

func TestRecordAccessDropsAfterStopMonitoring(t *testing.T) {
	m, _, _ := testMonitor(Config{BatchSize: 100})
	el := tableElement("old_orders")
	require.NoError(t, m.StartMonitoring(el))
	m.RecordAccess(el.DeprecatedName, "table", appSource(), telemetry.QuerySelect, nil)
	assert.Equal(t, 1, m.BufferedEvents())

	require.NoError(t, m.StopMonitoring(el))
	m.RecordAccess(el.DeprecatedName, "table", appSource(), telemetry.QuerySelect, nil)
	assert.Equal(t, 1, m.BufferedEvents())
}

func TestBufferFullTriggersFlush(t *testing.T) {
	m, collector, _ := testMonitor(Config{BatchSize: 3})
	require.NoError(t, m.StartMonitoring(tableElement("old_orders")))

	for i := 0; i < 3; i++ {
		m.RecordAccess("old_orders_deprecated_20260830", "table", appSource(), telemetry.QuerySelect, nil)
	}

	assert.Equal(t, 0, m.BufferedEvents())
	collector.mu.Lock()
	defer collector.mu.Unlock()
	assert.Equal(t, 1, collector.batches)
	assert.Len(t, collector.events, 3)
}

func TestFlushRequeuesOnFailure(t *testing.T) {
	m, collector, _ := testMonitor(Config{BatchSize: 100})
	collector.failures = 1
	require.NoError(t, m.StartMonitoring(tableElement("old_orders")))

	m.RecordAccess("old_orders_deprecated_20260830", "table", appSource(), telemetry.QuerySelect, nil)
	m.RecordAccess("old_orders_deprecated_20260830", "table", appSource(), telemetry.QueryUpdate, nil)

	err := m.Flush(context.Background())
	require.Error(t, err)
	assert.Equal(t, 2, m.BufferedEvents())

	require.NoError(t, m.Flush(context.Background()))
	assert.Equal(t, 0, m.BufferedEvents())

	collector.mu.Lock()
	defer collector.mu.Unlock()
	require.Len(t, collector.events, 2)
	assert.Equal(t, telemetry.QuerySelect, collector.events[0].QueryType)
}

func TestFlushKeepsEventOrderAcrossRetry(t *testing.T) {
	m, collector, _ := testMonitor(Config{BatchSize: 100})
	collector.failures = 1
	require.NoError(t, m.StartMonitoring(tableElement("a")))
	require.NoError(t, m.StartMonitoring(tableElement("b")))

	m.RecordAccess("a_deprecated_20260830", "table", appSource(), telemetry.QuerySelect, nil)
	require.Error(t, m.Flush(context.Background()))

	// A new event arrives while the failed batch waits for retry.
	m.RecordAccess("b_deprecated_20260830", "table", appSource(), telemetry.QuerySelect, nil)
	require.NoError(t, m.Flush(context.Background()))

	collector.mu.Lock()
	defer collector.mu.Unlock()
	require.Len(t, collector.events, 2)
	assert.Equal(t, "a_deprecated_20260830", collector.events[0].ElementName)
	assert.Equal(t, "b_deprecated_20260830", collector.events[1].ElementName)
}

func TestFlushEmptyBufferIsNoop(t *testing.T) {
	m, collector, _ := testMonitor(Config{})
	require.NoError(t, m.Flush(context.Background()))
	collector.mu.Lock()
	defer collector.mu.Unlock()
	assert.Equal(t, 0, collector.batches)
}

func TestExecutionTimeParsedFromMetadata(t *testing.T) {
	m, collector, _ := testMonitor(Config{BatchSize: 100})
	require.NoError(t, m.StartMonitoring(tableElement("old_orders")))

	m.RecordAccess("old_orders_deprecated_20260830", "table", appSource(), telemetry.QuerySelect, map[string]string{
		"execution_time_ms": "42.25",
	})
	require.NoError(t, m.Flush(context.Background()))

	collector.mu.Lock()
	defer collector.mu.Unlock()
	require.Len(t, collector.events, 1)
	assert.InDelta(t, 42.25, collector.events[0].ExecutionTimeMs, 0.001)
}

func TestGetElementStats(t *testing.T) {
	m, _, _ := testMonitor(Config{StatsWindowDays: 30})
	el := tableElement("old_orders")
	require.NoError(t, m.StartMonitoring(el))

	clock := testBase
	m.SetClock(func() time.Time { return clock })

	accesses := []struct {
		offset time.Duration
		source telemetry.SourceType
		query  telemetry.QueryType
	}{
		{-48 * time.Hour, telemetry.SourceApplication, telemetry.QuerySelect},
		{-24 * time.Hour, telemetry.SourceApplication, telemetry.QuerySelect},
		{-23 * time.Hour, telemetry.SourceAdmin, telemetry.QueryUpdate},
		{-time.Hour, telemetry.SourceApplication, telemetry.QuerySelect},
	}
	for _, a := range accesses {
		at := testBase.Add(a.offset)
		clock = at
		m.RecordAccess(el.DeprecatedName, "table", telemetry.AccessSource{Type: a.source}, a.query, map[string]string{
			"execution_time_ms": "10",
		})
	}
	clock = testBase

	stats := m.GetElementStats(el.DeprecatedName)
	assert.Equal(t, 4, stats.TotalAccess)
	assert.Equal(t, testBase.Add(-time.Hour), stats.LastAccessed)
	assert.Equal(t, 3, stats.BySource[telemetry.SourceApplication])
	assert.Equal(t, 1, stats.BySource[telemetry.SourceAdmin])
	assert.Equal(t, 3, stats.ByQueryType[telemetry.QuerySelect])
	assert.InDelta(t, 10.0, stats.AverageExecutionMs, 0.001)
	assert.Len(t, stats.Daily, 3)
}

func TestGetRemovalCandidates(t *testing.T) {
	m, _, _ := testMonitor(Config{StatsWindowDays: 30})
	idle := tableElement("idle_table")
	busy := tableElement("busy_table")
	require.NoError(t, m.StartMonitoring(idle))
	require.NoError(t, m.StartMonitoring(busy))

	m.RecordAccess(busy.DeprecatedName, "table", appSource(), telemetry.QuerySelect, nil)

	candidates := m.GetRemovalCandidates(30)
	require.Len(t, candidates, 1)
	assert.Equal(t, idle.Key(), candidates[0].Element.Key())
	assert.Equal(t, 0, candidates[0].TotalAccess)

	// The idle element's state flips to removal candidate.
	d := m.GetDashboardData()
	for _, el := range d.Elements {
		if el.Key == idle.Key() {
			assert.Equal(t, StateRemovalCandidate, el.State)
		}
	}
}

func TestRemovalCandidateByStaleAccess(t *testing.T) {
	m, _, _ := testMonitor(Config{StatsWindowDays: 30})
	el := tableElement("old_orders")
	require.NoError(t, m.StartMonitoring(el))

	clock := testBase.AddDate(0, 0, -45)
	m.SetClock(func() time.Time { return clock })
	m.RecordAccess(el.DeprecatedName, "table", appSource(), telemetry.QuerySelect, nil)
	clock = testBase

	// A lookback wider than the access age clears the candidacy.
	assert.Empty(t, m.GetRemovalCandidates(50))

	candidates := m.GetRemovalCandidates(30)
	require.Len(t, candidates, 1)
	assert.Equal(t, 1, candidates[0].TotalAccess)
	assert.Equal(t, testBase.AddDate(0, 0, -45), candidates[0].LastAccessed)
}

func TestDashboardData(t *testing.T) {
	m, _, _ := testMonitor(Config{StatsWindowDays: 30})
	never := tableElement("never_touched")
	active := tableElement("still_used")
	require.NoError(t, m.StartMonitoring(never))
	require.NoError(t, m.StartMonitoring(active))

	m.RecordAccess(active.DeprecatedName, "table", appSource(), telemetry.QuerySelect, nil)
	m.RecordAccess(active.DeprecatedName, "table", appSource(), telemetry.QueryUpdate, nil)

	d := m.GetDashboardData()
	assert.Equal(t, 2, d.MonitoredElements)
	assert.Equal(t, 2, d.TotalAccesses)
	assert.Equal(t, 1, d.RemovalCandidates)
	require.Len(t, d.Elements, 2)

	byKey := make(map[string]ElementStatus)
	for _, el := range d.Elements {
		byKey[el.Key] = el
	}
	assert.Equal(t, "safe", byKey[never.Key()].Status)
	assert.Equal(t, "active", byKey[active.Key()].Status)
	assert.Equal(t, 2, byKey[active.Key()].TotalAccess)
}

func TestDashboardWarningStatus(t *testing.T) {
	m, _, _ := testMonitor(Config{StatsWindowDays: 30})
	el := tableElement("old_orders")
	require.NoError(t, m.StartMonitoring(el))

	clock := testBase.AddDate(0, 0, -45)
	m.SetClock(func() time.Time { return clock })
	m.RecordAccess(el.DeprecatedName, "table", appSource(), telemetry.QuerySelect, nil)
	clock = testBase

	d := m.GetDashboardData()
	require.Len(t, d.Elements, 1)
	assert.Equal(t, "warning", d.Elements[0].Status)
	assert.Equal(t, 1, d.RemovalCandidates)
}

func TestStopFlushesBuffer(t *testing.T) {
	m, collector, _ := testMonitor(Config{BatchSize: 100, FlushIntervalSeconds: 3600})
	require.NoError(t, m.Start())
	require.NoError(t, m.StartMonitoring(tableElement("old_orders")))
	m.RecordAccess("old_orders_deprecated_20260830", "table", appSource(), telemetry.QuerySelect, nil)

	m.Stop()

	collector.mu.Lock()
	defer collector.mu.Unlock()
	assert.Len(t, collector.events, 1)
	assert.Equal(t, 0, m.BufferedEvents())
}
