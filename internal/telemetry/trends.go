package telemetry

import (
	"fmt"
	"sort"
	"time"
)

// TrendDirection classifies a least-squares slope.
type TrendDirection string

const (
	TrendIncreasing TrendDirection = "increasing"
	TrendDecreasing TrendDirection = "decreasing"
	TrendStable     TrendDirection = "stable"
)

// Slopes with magnitude below this threshold classify as stable.
const stableSlopeThreshold = 0.1

// ElementTrend is the fitted trend for one element.
type ElementTrend struct {
	Element     string         `json:"element"`
	Slope       float64        `json:"slope"`
	Direction   TrendDirection `json:"direction"`
	DailyCounts []int          `json:"dailyCounts"`
	Total       int            `json:"total"`
}

// TrendReport is the result of trend analysis over a lookback window.
type TrendReport struct {
	WindowDays       int            `json:"windowDays"`
	OverallSlope     float64        `json:"overallSlope"`
	OverallDirection TrendDirection `json:"overallDirection"`
	Elements         []ElementTrend `json:"elements"`
	RiskElements     []string       `json:"riskElements"`
	Recommendations  []string       `json:"recommendations"`
}

// AnalyzeTrends buckets events by day and element over the last `days`
// days and fits a linear trend per element and overall.
func (c *Collector) AnalyzeTrends(days int) *TrendReport {
	if days <= 0 {
		days = 7
	}
	now := c.now()
	start := now.AddDate(0, 0, -days)
	events := c.EventsInRange(start, now)

	report := &TrendReport{WindowDays: days}

	// Bucket by element and day offset from window start.
	perElement := make(map[string][]int)
	overall := make([]int, days)
	for _, ev := range events {
		day := int(ev.Timestamp.Sub(start).Hours() / 24)
		if day < 0 || day >= days {
			continue
		}
		counts, ok := perElement[ev.ElementName]
		if !ok {
			counts = make([]int, days)
			perElement[ev.ElementName] = counts
		}
		counts[day]++
		overall[day]++
	}

	report.OverallSlope = leastSquaresSlope(overall)
	report.OverallDirection = classifySlope(report.OverallSlope)

	names := make([]string, 0, len(perElement))
	for name := range perElement {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		counts := perElement[name]
		total := 0
		for _, n := range counts {
			total += n
		}
		slope := leastSquaresSlope(counts)
		trend := ElementTrend{
			Element:     name,
			Slope:       slope,
			Direction:   classifySlope(slope),
			DailyCounts: counts,
			Total:       total,
		}
		report.Elements = append(report.Elements, trend)
		if trend.Direction == TrendIncreasing {
			report.RiskElements = append(report.RiskElements, name)
		}
	}

	report.Recommendations = recommendations(report)
	return report
}

// leastSquaresSlope fits y = a + b*x over daily counts and returns b.
func leastSquaresSlope(counts []int) float64 {
	n := float64(len(counts))
	if n < 2 {
		return 0
	}
	var sumX, sumY, sumXY, sumXX float64
	for i, y := range counts {
		x := float64(i)
		sumX += x
		sumY += float64(y)
		sumXY += x * float64(y)
		sumXX += x * x
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}
	return (n*sumXY - sumX*sumY) / denom
}

func classifySlope(slope float64) TrendDirection {
	switch {
	case slope >= stableSlopeThreshold:
		return TrendIncreasing
	case slope <= -stableSlopeThreshold:
		return TrendDecreasing
	default:
		return TrendStable
	}
}

func recommendations(r *TrendReport) []string {
	var recs []string
	for _, name := range r.RiskElements {
		recs = append(recs, fmt.Sprintf(
			"access to %s is increasing; migrate remaining consumers before removal", name))
	}
	if len(r.RiskElements) == 0 && len(r.Elements) > 0 {
		recs = append(recs, "no element shows increasing usage; review removal candidates")
	}
	if len(r.Elements) == 0 {
		recs = append(recs, fmt.Sprintf("no deprecated element accessed in the last %d days", r.WindowDays))
	}
	return recs
}

// RiskSummary ranks elements by recent access for export bundles.
type RiskSummary struct {
	Element      string         `json:"element"`
	Total        int            `json:"total"`
	LastAccessed time.Time      `json:"lastAccessed"`
	Direction    TrendDirection `json:"direction"`
}
