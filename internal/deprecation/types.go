// Package deprecation implements the migration lifecycle for retiring
// schema elements: planning with safety checks, transactional rename
// execution, and rollback. Deprecation is non-destructive; an element
// is renamed in place and its data is preserved. Destructive removal is
// a separate, manually approved operation outside this package.
package deprecation

import (
	"fmt"
	"strings"
	"time"
)

// ElementType identifies the kind of schema element being deprecated.
type ElementType string

const (
	ElementTable      ElementType = "table"
	ElementColumn     ElementType = "column"
	ElementIndex      ElementType = "index"
	ElementConstraint ElementType = "constraint"
)

// Valid reports whether the element type is one of the supported kinds.
func (t ElementType) Valid() bool {
	switch t {
	case ElementTable, ElementColumn, ElementIndex, ElementConstraint:
		return true
	}
	return false
}

// Phase is the lifecycle phase of a migration.
type Phase string

const (
	PhasePlanned    Phase = "planned"
	PhaseExecuting  Phase = "executing"
	PhaseCompleted  Phase = "completed"
	PhaseRolledBack Phase = "rolled_back"
	PhaseFailed     Phase = "failed"
)

// RiskLevel classifies a planned migration.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

var riskRank = map[RiskLevel]int{
	RiskLow:      0,
	RiskMedium:   1,
	RiskHigh:     2,
	RiskCritical: 3,
}

// MaxRisk returns the higher of two risk levels.
func MaxRisk(a, b RiskLevel) RiskLevel {
	if riskRank[b] > riskRank[a] {
		return b
	}
	return a
}

// DeprecatedElement records a schema element renamed out of service.
// Immutable once created; superseded only by rollback or removal.
type DeprecatedElement struct {
	Type           ElementType `json:"type"`
	Schema         string      `json:"schema"`
	Table          string      `json:"table,omitempty"` // owning table for columns and constraints
	OriginalName   string      `json:"originalName"`
	DeprecatedName string      `json:"deprecatedName"`
	Reason         string      `json:"reason,omitempty"`
	DeprecatedAt   time.Time   `json:"deprecatedAt"`
}

// Key returns the registry key for the element.
func (e DeprecatedElement) Key() string {
	return fmt.Sprintf("%s:%s", e.Type, e.DeprecatedName)
}

// DeprecatedNameFor derives the deprecated name from the original name
// and the deprecation date. The derivation is deterministic so that the
// renamed object itself is the durable marker.
func DeprecatedNameFor(original string, at time.Time) string {
	return fmt.Sprintf("%s_deprecated_%s", original, at.Format("20060102"))
}

// CheckResult is the outcome of one safety check run at planning time.
type CheckResult struct {
	Name     string    `json:"name"`
	Passed   bool      `json:"passed"`
	Message  string    `json:"message"`
	Severity RiskLevel `json:"severity"`
}

// Metadata carries operator-facing context for a migration.
type Metadata struct {
	RiskLevel                RiskLevel  `json:"riskLevel"`
	EstimatedDurationSeconds int        `json:"estimatedDurationSeconds,omitempty"`
	ApprovalRequired         bool       `json:"approvalRequired"`
	ApprovedBy               string     `json:"approvedBy,omitempty"`
	ApprovedAt               *time.Time `json:"approvedAt,omitempty"`
	CreatedBy                string     `json:"createdBy,omitempty"`
	Environment              string     `json:"environment,omitempty"`
	Reason                   string     `json:"reason,omitempty"`
	BackupID                 string     `json:"backupId,omitempty"`
	Error                    string     `json:"error,omitempty"`
}

// Migration is the unit of planning and execution.
type Migration struct {
	ID           string              `json:"id"`
	Elements     []DeprecatedElement `json:"elements"`
	Phase        Phase               `json:"phase"`
	SafetyChecks []CheckResult       `json:"safetyChecks"`
	Metadata     Metadata            `json:"metadata"`
	Timestamp    time.Time           `json:"timestamp"`
}

// ElementSpec is an operator-supplied description of an element to
// deprecate, before planning resolves it into a DeprecatedElement.
type ElementSpec struct {
	Type   ElementType
	Schema string
	Table  string // required for columns and constraints
	Name   string
}

// ParseElementSpec parses the CLI form "type:name". Column and
// constraint names use "table.name"; an optional schema prefix uses
// "schema/name" ahead of the table part. The schema defaults to public.
func ParseElementSpec(s string) (ElementSpec, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return ElementSpec{}, fmt.Errorf("invalid element spec %q: expected type:name", s)
	}

	spec := ElementSpec{Type: ElementType(parts[0]), Schema: "public"}
	if !spec.Type.Valid() {
		return ElementSpec{}, fmt.Errorf("invalid element type %q", parts[0])
	}

	name := parts[1]
	if idx := strings.Index(name, "/"); idx >= 0 {
		spec.Schema = name[:idx]
		name = name[idx+1:]
	}

	switch spec.Type {
	case ElementColumn, ElementConstraint:
		dot := strings.Index(name, ".")
		if dot <= 0 || dot == len(name)-1 {
			return ElementSpec{}, fmt.Errorf("invalid %s spec %q: expected table.name", spec.Type, s)
		}
		spec.Table = name[:dot]
		spec.Name = name[dot+1:]
	default:
		spec.Name = name
	}

	if spec.Name == "" {
		return ElementSpec{}, fmt.Errorf("invalid element spec %q: empty name", s)
	}
	return spec, nil
}
