package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schemaguard/schemaguard/pkg/logger"
)

var testBase = time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

// memStore records persisted batches and can fail on demand.
type memStore struct {
	mu     sync.Mutex
	saved  [][]AccessEvent
	err    error
	closed bool
}

func (s *memStore) SaveEvents(ctx context.Context, events []AccessEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.saved = append(s.saved, events)
	return nil
}

func (s *memStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func testCollector(cfg Config) *Collector {
	c := NewCollector(cfg, nil, nil, logger.New("test"))
	c.SetClock(func() time.Time { return testBase })
	return c
}

func event(id, element string, at time.Time) AccessEvent {
	return AccessEvent{
		ID:          id,
		ElementName: element,
		ElementType: "table",
		Timestamp:   at,
		Source:      AccessSource{Type: SourceApplication, Identifier: "billing-svc"},
		QueryType:   QuerySelect,
	}
}

func TestRecordAndQueryEvents(t *testing.T) {
	c := testCollector(Config{})

	require.NoError(t, c.RecordAccessEvents(context.Background(), []AccessEvent{
		event("e1", "old_orders_deprecated_20260830", testBase.Add(-2*time.Hour)),
		event("e2", "old_orders_deprecated_20260830", testBase.Add(-time.Hour)),
		event("e3", "legacy_total_deprecated_20260830", testBase.Add(-time.Minute)),
	}))

	all := c.EventsInRange(testBase.Add(-24*time.Hour), testBase)
	assert.Len(t, all, 3)

	recent := c.EventsInRange(testBase.Add(-90*time.Minute), testBase)
	assert.Len(t, recent, 2)
}

func TestDuplicateEventsDropped(t *testing.T) {
	c := testCollector(Config{})
	batch := []AccessEvent{
		event("e1", "old_orders_deprecated_20260830", testBase.Add(-time.Hour)),
		event("e2", "old_orders_deprecated_20260830", testBase.Add(-time.Hour)),
	}

	require.NoError(t, c.RecordAccessEvents(context.Background(), batch))
	// A retried batch after a partial flush failure must not double count.
	require.NoError(t, c.RecordAccessEvents(context.Background(), batch))

	all := c.EventsInRange(testBase.Add(-24*time.Hour), testBase)
	assert.Len(t, all, 2)
}

func TestBufferEviction(t *testing.T) {
	c := testCollector(Config{BufferSize: 3})

	var events []AccessEvent
	for i := 0; i < 5; i++ {
		events = append(events, event(
			fmt.Sprintf("e%d", i), "old_orders_deprecated_20260830",
			testBase.Add(time.Duration(i-10)*time.Minute)))
	}
	require.NoError(t, c.RecordAccessEvents(context.Background(), events))

	all := c.EventsInRange(testBase.Add(-24*time.Hour), testBase)
	require.Len(t, all, 3)
	assert.Equal(t, "e2", all[0].ID)

	// Evicted IDs are forgotten, so an old ID can be ingested again.
	require.NoError(t, c.RecordAccessEvents(context.Background(), events[:1]))
	all = c.EventsInRange(testBase.Add(-24*time.Hour), testBase)
	assert.Len(t, all, 3)
}

func TestEventsPersistToStore(t *testing.T) {
	store := &memStore{}
	c := NewCollector(Config{}, store, nil, logger.New("test"))
	c.SetClock(func() time.Time { return testBase })

	batch := []AccessEvent{event("e1", "old_orders_deprecated_20260830", testBase.Add(-time.Hour))}
	require.NoError(t, c.RecordAccessEvents(context.Background(), batch))
	require.NoError(t, c.RecordAccessEvents(context.Background(), batch))

	store.mu.Lock()
	defer store.mu.Unlock()
	// The duplicate batch contains nothing fresh, so only one save.
	require.Len(t, store.saved, 1)
	assert.Len(t, store.saved[0], 1)
}

// loaderStore is a memStore that can also serve persisted events back,
// keyed by day.
type loaderStore struct {
	memStore
	days map[string][]AccessEvent
}

func (s *loaderStore) LoadDay(ctx context.Context, day time.Time) ([]AccessEvent, error) {
	return s.days[day.UTC().Format("2006-01-02")], nil
}

func TestStartReplaysPersistedEvents(t *testing.T) {
	dayKey := func(at time.Time) string { return at.UTC().Format("2006-01-02") }
	store := &loaderStore{days: map[string][]AccessEvent{
		dayKey(testBase.AddDate(0, 0, -1)): {event("e1", "old_orders_deprecated_20260830", testBase.Add(-24*time.Hour))},
		dayKey(testBase):                   {event("e2", "old_orders_deprecated_20260830", testBase.Add(-time.Hour))},
	}}
	c := NewCollector(Config{}, store, nil, logger.New("test"))
	c.SetClock(func() time.Time { return testBase })

	require.NoError(t, c.Start())
	defer c.Stop()

	replayed := c.EventsInRange(testBase.AddDate(0, 0, -7), testBase)
	assert.Len(t, replayed, 2)

	// Replay fills the seen set but never writes back to the store.
	store.mu.Lock()
	assert.Empty(t, store.saved)
	store.mu.Unlock()

	// A batch retried across the restart still deduplicates.
	require.NoError(t, c.RecordAccessEvents(context.Background(), []AccessEvent{
		event("e2", "old_orders_deprecated_20260830", testBase.Add(-time.Hour)),
	}))
	assert.Len(t, c.EventsInRange(testBase.AddDate(0, 0, -7), testBase), 2)
}

func TestReplaySkippedWithoutLoader(t *testing.T) {
	store := &memStore{}
	c := NewCollector(Config{}, store, nil, logger.New("test"))
	c.SetClock(func() time.Time { return testBase })

	require.NoError(t, c.Start())
	defer c.Stop()
	assert.Empty(t, c.EventsInRange(testBase.AddDate(0, 0, -7), testBase))
}

func TestStoreFailurePropagates(t *testing.T) {
	store := &memStore{err: fmt.Errorf("redis: connection refused")}
	c := NewCollector(Config{}, store, nil, logger.New("test"))

	err := c.RecordAccessEvents(context.Background(), []AccessEvent{
		event("e1", "old_orders_deprecated_20260830", testBase),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to persist")
}

func TestAggregate(t *testing.T) {
	c := testCollector(Config{})
	events := []AccessEvent{
		{ID: "e1", ElementName: "a", Timestamp: testBase, QueryType: QuerySelect,
			Source: AccessSource{Type: SourceApplication}, ExecutionTimeMs: 10},
		{ID: "e2", ElementName: "a", Timestamp: testBase, QueryType: QueryUpdate,
			Source: AccessSource{Type: SourceAdmin}, ExecutionTimeMs: 30},
		{ID: "e3", ElementName: "b", Timestamp: testBase, QueryType: QuerySelect,
			Source: AccessSource{Type: SourceApplication},
			Metadata: map[string]string{"error": "permission denied"}},
	}

	m := c.Aggregate(events, testBase)
	assert.Equal(t, 3, m.TotalEvents)
	assert.Equal(t, 2, m.UniqueElements)
	assert.Equal(t, 2, m.AccessByType[QuerySelect])
	assert.Equal(t, 1, m.AccessByType[QueryUpdate])
	assert.Equal(t, 2, m.AccessBySource[SourceApplication])
	assert.InDelta(t, 20.0, m.AverageResponseTime, 0.001)
	assert.InDelta(t, 1.0/3.0, m.ErrorRate, 0.001)
	require.Len(t, m.TopAccessedElements, 2)
	assert.Equal(t, ElementCount{Element: "a", Count: 2}, m.TopAccessedElements[0])
}

func TestCleanup(t *testing.T) {
	c := testCollector(Config{RetentionDays: 30})

	require.NoError(t, c.RecordAccessEvents(context.Background(), []AccessEvent{
		event("old", "a", testBase.AddDate(0, 0, -40)),
		event("fresh", "a", testBase.Add(-time.Hour)),
	}))

	removed := c.Cleanup()
	assert.Equal(t, 1, removed)

	all := c.EventsInRange(testBase.AddDate(0, 0, -60), testBase)
	require.Len(t, all, 1)
	assert.Equal(t, "fresh", all[0].ID)
}

func trendEvents(element string, dailyCounts []int) []AccessEvent {
	start := testBase.AddDate(0, 0, -len(dailyCounts))
	var out []AccessEvent
	for day, n := range dailyCounts {
		for i := 0; i < n; i++ {
			at := start.Add(time.Duration(day)*24*time.Hour + time.Duration(i)*time.Minute)
			out = append(out, event(fmt.Sprintf("%s-%d-%d", element, day, i), element, at))
		}
	}
	return out
}

func TestAnalyzeTrends(t *testing.T) {
	c := testCollector(Config{})
	require.NoError(t, c.RecordAccessEvents(context.Background(), trendEvents("rising", []int{1, 2, 4, 6, 8, 11, 14})))
	require.NoError(t, c.RecordAccessEvents(context.Background(), trendEvents("flat", []int{3, 3, 3, 3, 3, 3, 3})))
	require.NoError(t, c.RecordAccessEvents(context.Background(), trendEvents("fading", []int{9, 7, 5, 3, 2, 1, 0})))

	report := c.AnalyzeTrends(7)
	require.Len(t, report.Elements, 3)

	byName := make(map[string]ElementTrend)
	for _, tr := range report.Elements {
		byName[tr.Element] = tr
	}
	assert.Equal(t, TrendIncreasing, byName["rising"].Direction)
	assert.Equal(t, TrendStable, byName["flat"].Direction)
	assert.Equal(t, TrendDecreasing, byName["fading"].Direction)

	assert.Equal(t, []string{"rising"}, report.RiskElements)
	require.NotEmpty(t, report.Recommendations)
	assert.Contains(t, report.Recommendations[0], "rising")
}

func TestAnalyzeTrendsEmpty(t *testing.T) {
	c := testCollector(Config{})
	report := c.AnalyzeTrends(7)
	assert.Empty(t, report.Elements)
	assert.Equal(t, TrendStable, report.OverallDirection)
	require.Len(t, report.Recommendations, 1)
	assert.Contains(t, report.Recommendations[0], "no deprecated element accessed")
}

func TestExportJSON(t *testing.T) {
	c := testCollector(Config{})
	require.NoError(t, c.RecordAccessEvents(context.Background(), trendEvents("old_orders_deprecated_20260830", []int{2, 2, 2})))

	data, err := c.ExportTelemetryData(testBase.AddDate(0, 0, -7), testBase, FormatJSON)
	require.NoError(t, err)

	var bundle ExportBundle
	require.NoError(t, json.Unmarshal(data, &bundle))
	assert.Equal(t, 6, len(bundle.Events))
	assert.Equal(t, FormatJSON, bundle.Metadata.Format)
}

func TestExportCSV(t *testing.T) {
	c := testCollector(Config{})
	require.NoError(t, c.RecordAccessEvents(context.Background(), trendEvents("old_orders_deprecated_20260830", []int{1, 1})))

	data, err := c.ExportTelemetryData(testBase.AddDate(0, 0, -7), testBase, FormatCSV)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.GreaterOrEqual(t, len(lines), 3)
	assert.Contains(t, lines[0], "element")
}

func TestExportEmptyRange(t *testing.T) {
	c := testCollector(Config{})
	_, err := c.ExportTelemetryData(testBase, testBase, FormatJSON)
	assert.Error(t, err)
}

func TestStopClosesStore(t *testing.T) {
	store := &memStore{}
	c := NewCollector(Config{}, store, nil, logger.New("test"))
	c.Stop()

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.True(t, store.closed)
}
