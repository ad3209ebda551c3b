// Package telemetry stores raw access events against deprecated
// elements and derives aggregated metrics, trends, and export bundles
// from them. The event buffer is a bounded ring; evictions are counted
// rather than silently dropped.
package telemetry

import "time"

// QueryType classifies the statement that touched a deprecated element.
type QueryType string

const (
	QuerySelect QueryType = "SELECT"
	QueryInsert QueryType = "INSERT"
	QueryUpdate QueryType = "UPDATE"
	QueryDelete QueryType = "DELETE"
	QueryAlter  QueryType = "ALTER"
	QueryCreate QueryType = "CREATE"
	QueryDrop   QueryType = "DROP"
	QueryOther  QueryType = "OTHER"
)

// SourceType classifies where an access originated.
type SourceType string

const (
	SourceApplication SourceType = "application"
	SourceMigration   SourceType = "migration"
	SourceAdmin       SourceType = "admin"
	SourceUnknown     SourceType = "unknown"
)

// AccessSource identifies the origin of an access event.
type AccessSource struct {
	Type       SourceType `json:"type"`
	Identifier string     `json:"identifier,omitempty"`
	Origin     string     `json:"origin,omitempty"`
}

// AccessEvent records one access to a deprecated element. Events are
// immutable; the ID is stable so ingest can de-duplicate retried
// batches.
type AccessEvent struct {
	ID              string            `json:"id"`
	ElementName     string            `json:"elementName"`
	ElementType     string            `json:"elementType"`
	Timestamp       time.Time         `json:"timestamp"`
	Source          AccessSource      `json:"source"`
	QueryType       QueryType         `json:"queryType"`
	ExecutionTimeMs float64           `json:"executionTimeMs,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// ElementCount pairs an element with an access count.
type ElementCount struct {
	Element string `json:"element"`
	Count   int    `json:"count"`
}

// Metrics is a periodic rollup over one aggregation window.
type Metrics struct {
	Timestamp           time.Time          `json:"timestamp"`
	TotalEvents         int                `json:"totalEvents"`
	UniqueElements      int                `json:"uniqueElements"`
	TopAccessedElements []ElementCount     `json:"topAccessedElements"`
	AccessByType        map[QueryType]int  `json:"accessByType"`
	AccessBySource      map[SourceType]int `json:"accessBySource"`
	ErrorRate           float64            `json:"errorRate"`
	AverageResponseTime float64            `json:"averageResponseTime"`
}
