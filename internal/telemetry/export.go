package telemetry

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"
)

// ExportFormat selects the export encoding.
type ExportFormat string

const (
	FormatJSON ExportFormat = "json"
	FormatCSV  ExportFormat = "csv"
)

// ExportMetadata describes an export bundle.
type ExportMetadata struct {
	GeneratedAt time.Time    `json:"generatedAt"`
	Start       time.Time    `json:"start"`
	End         time.Time    `json:"end"`
	Format      ExportFormat `json:"format"`
	EventCount  int          `json:"eventCount"`
}

// ExportBundle is the full audit export: metadata, raw events in range,
// computed metrics, and a risk-ranked summary.
type ExportBundle struct {
	Metadata ExportMetadata `json:"metadata"`
	Events   []AccessEvent  `json:"events"`
	Metrics  []Metrics      `json:"metrics"`
	Risk     []RiskSummary  `json:"riskSummary"`
}

// ExportTelemetryData produces an export bundle for [start, end) in the
// requested format.
func (c *Collector) ExportTelemetryData(start, end time.Time, format ExportFormat) ([]byte, error) {
	if !end.After(start) {
		return nil, fmt.Errorf("export range is empty: %s to %s", start, end)
	}

	events := c.EventsInRange(start, end)
	bundle := ExportBundle{
		Metadata: ExportMetadata{
			GeneratedAt: c.now(),
			Start:       start,
			End:         end,
			Format:      format,
			EventCount:  len(events),
		},
		Events:  events,
		Metrics: c.metricsInRange(start, end),
		Risk:    riskSummary(events),
	}

	switch format {
	case FormatJSON, "":
		return json.MarshalIndent(bundle, "", "  ")
	case FormatCSV:
		return exportCSV(events)
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
}

func (c *Collector) metricsInRange(start, end time.Time) []Metrics {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []Metrics
	for _, m := range c.metricsBuf {
		if !m.Timestamp.Before(start) && m.Timestamp.Before(end) {
			out = append(out, m)
		}
	}
	return out
}

func riskSummary(events []AccessEvent) []RiskSummary {
	type acc struct {
		total int
		last  time.Time
		daily map[string]int
	}
	perElement := make(map[string]*acc)
	for _, ev := range events {
		a, ok := perElement[ev.ElementName]
		if !ok {
			a = &acc{daily: make(map[string]int)}
			perElement[ev.ElementName] = a
		}
		a.total++
		a.daily[ev.Timestamp.Format("2006-01-02")]++
		if ev.Timestamp.After(a.last) {
			a.last = ev.Timestamp
		}
	}

	var out []RiskSummary
	for name, a := range perElement {
		days := make([]string, 0, len(a.daily))
		for d := range a.daily {
			days = append(days, d)
		}
		sort.Strings(days)
		counts := make([]int, 0, len(days))
		for _, d := range days {
			counts = append(counts, a.daily[d])
		}
		out = append(out, RiskSummary{
			Element:      name,
			Total:        a.total,
			LastAccessed: a.last,
			Direction:    classifySlope(leastSquaresSlope(counts)),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Total != out[j].Total {
			return out[i].Total > out[j].Total
		}
		return out[i].Element < out[j].Element
	})
	return out
}

func exportCSV(events []AccessEvent) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := []string{"id", "element", "type", "timestamp", "source_type", "source_id", "query_type", "execution_ms"}
	if err := w.Write(header); err != nil {
		return nil, fmt.Errorf("failed to write csv header: %w", err)
	}
	for _, ev := range events {
		record := []string{
			ev.ID,
			ev.ElementName,
			ev.ElementType,
			ev.Timestamp.Format(time.RFC3339),
			string(ev.Source.Type),
			ev.Source.Identifier,
			string(ev.QueryType),
			strconv.FormatFloat(ev.ExecutionTimeMs, 'f', -1, 64),
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write csv record: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush csv: %w", err)
	}
	return buf.Bytes(), nil
}
