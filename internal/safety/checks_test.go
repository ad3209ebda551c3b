package safety

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func healthyFacts() Facts {
	return Facts{Exists: true, DaysSinceModified: 120}
}

func testElement() Element {
	return Element{
		Type:           "table",
		Schema:         "public",
		Name:           "old_orders",
		DeprecatedName: "old_orders_deprecated_20260830",
	}
}

func resultByName(t *testing.T, results []Result, name string) Result {
	t.Helper()
	for _, r := range results {
		if r.Name == name {
			return r
		}
	}
	t.Fatalf("no result named %s", name)
	return Result{}
}

func TestDefaultChecksHealthyElement(t *testing.T) {
	results := Evaluate(DefaultChecks(), testElement(), healthyFacts())
	require.Len(t, results, 5)
	for _, r := range results {
		assert.True(t, r.Passed, "check %s failed: %s", r.Name, r.Message)
	}
}

func TestElementExists(t *testing.T) {
	facts := healthyFacts()
	facts.Exists = false

	results := Evaluate(DefaultChecks(), testElement(), facts)
	r := resultByName(t, results, "element_exists")
	assert.False(t, r.Passed)
	assert.True(t, r.Critical)
	assert.Contains(t, r.Message, "does not exist")
}

func TestDeprecatedNameAvailable(t *testing.T) {
	facts := healthyFacts()
	facts.DeprecatedNameTaken = true

	results := Evaluate(DefaultChecks(), testElement(), facts)
	r := resultByName(t, results, "deprecated_name_available")
	assert.False(t, r.Passed)
	assert.True(t, r.Critical)
}

func TestReservedPrefix(t *testing.T) {
	tests := []struct {
		name   string
		passed bool
	}{
		{"pg_stat_custom", false},
		{"sql_features_copy", false},
		{"information_schema_dump", false},
		{"orders", true},
		{"pginfo", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			el := testElement()
			el.Name = tt.name
			results := Evaluate(DefaultChecks(), el, healthyFacts())
			r := resultByName(t, results, "no_reserved_prefix")
			assert.Equal(t, tt.passed, r.Passed)
			assert.False(t, r.Critical)
		})
	}
}

func TestForeignKeyDependents(t *testing.T) {
	facts := healthyFacts()
	facts.Dependents = []string{"order_items", "invoices"}

	results := Evaluate(DefaultChecks(), testElement(), facts)
	r := resultByName(t, results, "no_foreign_key_dependents")
	assert.False(t, r.Passed)
	assert.Equal(t, "high", r.Severity)
	assert.Contains(t, r.Message, "order_items")
}

func TestRecentlyModified(t *testing.T) {
	tests := []struct {
		name   string
		days   int
		passed bool
	}{
		{"modified yesterday", 1, false},
		{"modified six days ago", 6, false},
		{"modified at threshold", 7, true},
		{"modification time unknown", -1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			facts := healthyFacts()
			facts.DaysSinceModified = tt.days
			results := Evaluate(DefaultChecks(), testElement(), facts)
			r := resultByName(t, results, "not_recently_modified")
			assert.Equal(t, tt.passed, r.Passed)
		})
	}
}

func TestDisplayIncludesTable(t *testing.T) {
	el := Element{Type: "column", Schema: "public", Table: "orders", Name: "legacy_total"}
	assert.Equal(t, "column public.orders.legacy_total", el.Display())

	el = Element{Type: "table", Schema: "public", Name: "orders"}
	assert.Equal(t, "table public.orders", el.Display())
}
