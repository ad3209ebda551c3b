package monitor

import (
	"fmt"
	"sort"
	"time"

	"github.com/schemaguard/schemaguard/internal/deprecation"
	"github.com/schemaguard/schemaguard/internal/telemetry"
)

// Stats is the derived per-element aggregate. It is a view computed on
// demand from the event population, never persisted.
type Stats struct {
	Element            string                       `json:"element"`
	TotalAccess        int                          `json:"totalAccess"`
	LastAccessed       time.Time                    `json:"lastAccessed"`
	Daily              map[string]int               `json:"daily"`
	Weekly             map[string]int               `json:"weekly"`
	Monthly            map[string]int               `json:"monthly"`
	BySource           map[telemetry.SourceType]int `json:"bySource"`
	ByQueryType        map[telemetry.QueryType]int  `json:"byQueryType"`
	AverageExecutionMs float64                      `json:"averageExecutionMs"`
	PeakAccessHour     int                          `json:"peakAccessHour"`
}

// RemovalCandidate is an element with no qualifying access in the
// lookback window.
type RemovalCandidate struct {
	Element      deprecation.DeprecatedElement `json:"element"`
	TotalAccess  int                           `json:"totalAccess"`
	LastAccessed time.Time                     `json:"lastAccessed"`
	MonitoredFor time.Duration                 `json:"monitoredFor"`
}

// ElementStatus classifies an element for the dashboard.
type ElementStatus struct {
	Key          string       `json:"key"`
	Type         string       `json:"type"`
	Name         string       `json:"name"`
	State        ElementState `json:"state"`
	Status       string       `json:"status"` // safe, warning, active
	TotalAccess  int          `json:"totalAccess"`
	LastAccessed time.Time    `json:"lastAccessed,omitempty"`
}

// Dashboard aggregates cross-element overview data.
type Dashboard struct {
	MonitoredElements int             `json:"monitoredElements"`
	TotalAccesses     int             `json:"totalAccesses"`
	BufferedEvents    int             `json:"bufferedEvents"`
	RemovalCandidates int             `json:"removalCandidates"`
	Elements          []ElementStatus `json:"elements"`
	DailyTotals       []int           `json:"dailyTotals"` // last 7 days, oldest first
}

// GetElementStats computes the aggregate for one element over the
// configured stats window.
func (m *Monitor) GetElementStats(elementName string) *Stats {
	now := m.now()
	start := now.AddDate(0, 0, -m.cfg.StatsWindowDays)
	events := m.elementEvents(elementName, start, now)

	stats := &Stats{
		Element:     elementName,
		Daily:       make(map[string]int),
		Weekly:      make(map[string]int),
		Monthly:     make(map[string]int),
		BySource:    make(map[telemetry.SourceType]int),
		ByQueryType: make(map[telemetry.QueryType]int),
	}

	hourCounts := make(map[int]int)
	var execTotal float64
	var execCount int
	for _, ev := range events {
		stats.TotalAccess++
		if ev.Timestamp.After(stats.LastAccessed) {
			stats.LastAccessed = ev.Timestamp
		}
		stats.Daily[ev.Timestamp.Format("2006-01-02")]++
		year, week := ev.Timestamp.ISOWeek()
		stats.Weekly[fmt.Sprintf("%d-W%02d", year, week)]++
		stats.Monthly[ev.Timestamp.Format("2006-01")]++
		stats.BySource[ev.Source.Type]++
		stats.ByQueryType[ev.QueryType]++
		hourCounts[ev.Timestamp.Hour()]++
		if ev.ExecutionTimeMs > 0 {
			execTotal += ev.ExecutionTimeMs
			execCount++
		}
	}

	if execCount > 0 {
		stats.AverageExecutionMs = execTotal / float64(execCount)
	}
	peak, peakCount := 0, -1
	for hour, count := range hourCounts {
		if count > peakCount || (count == peakCount && hour < peak) {
			peak, peakCount = hour, count
		}
	}
	stats.PeakAccessHour = peak
	return stats
}

// GetRemovalCandidates returns elements with zero access in the window
// or a last access older than daysSinceLastAccess.
func (m *Monitor) GetRemovalCandidates(daysSinceLastAccess int) []RemovalCandidate {
	now := m.now()
	cutoff := now.AddDate(0, 0, -daysSinceLastAccess)

	m.mu.Lock()
	tracked := make([]*trackedElement, 0, len(m.elements))
	for _, t := range m.elements {
		tracked = append(tracked, t)
	}
	m.mu.Unlock()

	var candidates []RemovalCandidate
	for _, t := range tracked {
		// All history matters here, not just the stats window.
		events := m.elementEvents(t.element.DeprecatedName, time.Time{}, now)
		var last time.Time
		for _, ev := range events {
			if ev.Timestamp.After(last) {
				last = ev.Timestamp
			}
		}
		if len(events) == 0 || last.Before(cutoff) {
			m.markRemovalCandidate(t.element.Key())
			candidates = append(candidates, RemovalCandidate{
				Element:      t.element,
				TotalAccess:  len(events),
				LastAccessed: last,
				MonitoredFor: now.Sub(t.since),
			})
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Element.Key() < candidates[j].Element.Key()
	})
	return candidates
}

func (m *Monitor) markRemovalCandidate(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.elements[key]; ok {
		t.state = StateRemovalCandidate
	}
}

// GetDashboardData aggregates overview counters, per-element status
// classification, and cross-element daily totals.
func (m *Monitor) GetDashboardData() *Dashboard {
	now := m.now()
	windowStart := now.AddDate(0, 0, -m.cfg.StatsWindowDays)

	m.mu.Lock()
	tracked := make([]*trackedElement, 0, len(m.elements))
	for _, t := range m.elements {
		tracked = append(tracked, t)
	}
	buffered := len(m.buffer)
	m.mu.Unlock()

	d := &Dashboard{
		MonitoredElements: len(tracked),
		BufferedEvents:    buffered,
		DailyTotals:       make([]int, 7),
	}

	weekStart := now.AddDate(0, 0, -7)
	for _, ev := range m.elementEvents("", weekStart, now) {
		day := int(ev.Timestamp.Sub(weekStart).Hours() / 24)
		if day >= 0 && day < 7 {
			d.DailyTotals[day]++
		}
	}

	for _, t := range tracked {
		all := m.elementEvents(t.element.DeprecatedName, time.Time{}, now)
		var last time.Time
		recent := 0
		for _, ev := range all {
			if ev.Timestamp.After(last) {
				last = ev.Timestamp
			}
			if !ev.Timestamp.Before(windowStart) {
				recent++
			}
		}
		d.TotalAccesses += len(all)

		status := "active"
		switch {
		case len(all) == 0:
			status = "safe"
			d.RemovalCandidates++
		case recent == 0:
			status = "warning"
			d.RemovalCandidates++
		}

		d.Elements = append(d.Elements, ElementStatus{
			Key:          t.element.Key(),
			Type:         string(t.element.Type),
			Name:         t.element.DeprecatedName,
			State:        t.state,
			Status:       status,
			TotalAccess:  len(all),
			LastAccessed: last,
		})
	}

	sort.Slice(d.Elements, func(i, j int) bool {
		return d.Elements[i].Key < d.Elements[j].Key
	})
	return d
}
