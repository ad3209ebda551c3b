// Package alerts turns qualifying events into severity-classified
// alerts, applies per-key throttling and multi-level escalation, and
// fans alerts out to configured channels. One channel's failure never
// blocks another's delivery.
package alerts

import "time"

// Severity orders alert importance: info < warning < error < critical.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

var severityRank = map[Severity]int{
	SeverityInfo:     0,
	SeverityWarning:  1,
	SeverityError:    2,
	SeverityCritical: 3,
}

// AtLeast reports whether s is at least as severe as min.
func (s Severity) AtLeast(min Severity) bool {
	return severityRank[s] >= severityRank[min]
}

// Valid reports whether s names a known severity.
func (s Severity) Valid() bool {
	_, ok := severityRank[s]
	return ok
}

// Type identifies the alert generation path.
type Type string

const (
	TypeDeprecatedElementAccess Type = "deprecated_element_access"
	TypeThresholdExceeded       Type = "threshold_exceeded"
	TypeUsageSpike              Type = "usage_spike"
	TypeSystemError             Type = "system_error"
	TypeEscalation              Type = "escalation"
)

// Alert is one delivered (or retained) alert. Only Acknowledged and
// ResolvedAt mutate after creation.
type Alert struct {
	ID           string            `json:"id"`
	Timestamp    time.Time         `json:"timestamp"`
	Severity     Severity          `json:"severity"`
	Type         Type              `json:"type"`
	Title        string            `json:"title"`
	Message      string            `json:"message"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	Acknowledged bool              `json:"acknowledged"`
	ResolvedAt   *time.Time        `json:"resolvedAt,omitempty"`
}

// EscalationRule raises severity when a key fires often enough inside
// a time window. Rules are evaluated in configuration order.
type EscalationRule struct {
	TriggerCount      int
	TimeWindowMinutes int
	EscalateTo        Severity
}

// Channel delivers alerts. Send failures are isolated per channel.
type Channel interface {
	Name() string
	// Accepts reports whether the channel's severity filter admits
	// the given severity.
	Accepts(severity Severity) bool
	Send(alert Alert) error
}
