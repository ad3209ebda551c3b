// Package safety evaluates proposed deprecations before any schema
// change happens. Checks are pure predicates over an element and the
// facts gathered about it; the orchestrator owns fact gathering and
// result aggregation.
package safety

import (
	"fmt"
	"strings"
)

// Element is the view of a schema element a check operates on.
type Element struct {
	Type           string
	Schema         string
	Table          string
	Name           string
	DeprecatedName string
}

// Display returns a human-readable identifier for the element.
func (e Element) Display() string {
	if e.Table != "" {
		return fmt.Sprintf("%s %s.%s.%s", e.Type, e.Schema, e.Table, e.Name)
	}
	return fmt.Sprintf("%s %s.%s", e.Type, e.Schema, e.Name)
}

// Facts holds the lightweight metadata checks inspect. A negative
// DaysSinceModified means the modification time is unknown.
type Facts struct {
	Exists              bool
	DeprecatedNameTaken bool
	Dependents          []string
	DaysSinceModified   int
}

// Result is the outcome of one check.
type Result struct {
	Name     string
	Passed   bool
	Message  string
	Severity string
	Critical bool
}

// Check is a named pure predicate. Severity feeds risk aggregation when
// the check fails; a Critical failure blocks planning entirely.
type Check struct {
	Name     string
	Severity string
	Critical bool
	Fn       func(Element, Facts) (bool, string)
}

// Evaluate runs every check against the element and returns one result
// per check, in order.
func Evaluate(checks []Check, el Element, facts Facts) []Result {
	results := make([]Result, 0, len(checks))
	for _, c := range checks {
		passed, message := c.Fn(el, facts)
		results = append(results, Result{
			Name:     c.Name,
			Passed:   passed,
			Message:  message,
			Severity: c.Severity,
			Critical: c.Critical,
		})
	}
	return results
}

// Reserved name prefixes that must never be deprecated.
var reservedPrefixes = []string{"pg_", "sql_", "information_schema"}

// Stale threshold for the recent-modification check, in days.
const recentModificationDays = 7

// DefaultChecks returns the standard check battery.
func DefaultChecks() []Check {
	return []Check{
		{
			Name:     "element_exists",
			Severity: "critical",
			Critical: true,
			Fn: func(el Element, f Facts) (bool, string) {
				if !f.Exists {
					return false, fmt.Sprintf("%s does not exist", el.Display())
				}
				return true, fmt.Sprintf("%s exists", el.Display())
			},
		},
		{
			Name:     "deprecated_name_available",
			Severity: "critical",
			Critical: true,
			Fn: func(el Element, f Facts) (bool, string) {
				if f.DeprecatedNameTaken {
					return false, fmt.Sprintf("target name %s already exists", el.DeprecatedName)
				}
				return true, fmt.Sprintf("target name %s is free", el.DeprecatedName)
			},
		},
		{
			Name:     "no_reserved_prefix",
			Severity: "medium",
			Fn: func(el Element, f Facts) (bool, string) {
				for _, prefix := range reservedPrefixes {
					if strings.HasPrefix(el.Name, prefix) {
						return false, fmt.Sprintf("name %s uses reserved prefix %s", el.Name, prefix)
					}
				}
				return true, "no reserved prefix"
			},
		},
		{
			Name:     "no_foreign_key_dependents",
			Severity: "high",
			Fn: func(el Element, f Facts) (bool, string) {
				if len(f.Dependents) > 0 {
					return false, fmt.Sprintf("referenced by foreign keys from: %s", strings.Join(f.Dependents, ", "))
				}
				return true, "no foreign key dependents"
			},
		},
		{
			Name:     "not_recently_modified",
			Severity: "medium",
			Fn: func(el Element, f Facts) (bool, string) {
				if f.DaysSinceModified < 0 {
					return true, "modification time unknown"
				}
				if f.DaysSinceModified < recentModificationDays {
					return false, fmt.Sprintf("modified %d days ago", f.DaysSinceModified)
				}
				return true, fmt.Sprintf("last modified %d days ago", f.DaysSinceModified)
			},
		},
	}
}
