package interceptor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schemaguard/schemaguard/internal/deprecation"
	"github.com/schemaguard/schemaguard/internal/telemetry"
	"github.com/schemaguard/schemaguard/pkg/logger"
)

type recordedAccess struct {
	element   string
	queryType telemetry.QueryType
}

type fakeRecorder struct {
	elements []deprecation.DeprecatedElement
	accesses []recordedAccess
}

func (r *fakeRecorder) MonitoredElements() []deprecation.DeprecatedElement {
	return r.elements
}

func (r *fakeRecorder) RecordAccess(elementName, elementType string, source telemetry.AccessSource, queryType telemetry.QueryType, metadata map[string]string) {
	r.accesses = append(r.accesses, recordedAccess{element: elementName, queryType: queryType})
}

func monitored(names ...string) []deprecation.DeprecatedElement {
	var out []deprecation.DeprecatedElement
	for _, n := range names {
		out = append(out, deprecation.DeprecatedElement{
			Type:           deprecation.ElementTable,
			Schema:         "public",
			DeprecatedName: n,
		})
	}
	return out
}

func appSource() telemetry.AccessSource {
	return telemetry.AccessSource{Type: telemetry.SourceApplication, Identifier: "billing-svc"}
}

func TestInspectRecordsMatch(t *testing.T) {
	rec := &fakeRecorder{elements: monitored("old_orders_deprecated_20260830")}
	i := New(Config{}, rec, logger.New("test"))

	err := i.Inspect("SELECT id, total FROM old_orders_deprecated_20260830 WHERE id = $1", appSource())
	require.NoError(t, err)
	require.Len(t, rec.accesses, 1)
	assert.Equal(t, "old_orders_deprecated_20260830", rec.accesses[0].element)
	assert.Equal(t, telemetry.QuerySelect, rec.accesses[0].queryType)
}

func TestInspectNoMatch(t *testing.T) {
	rec := &fakeRecorder{elements: monitored("old_orders_deprecated_20260830")}
	i := New(Config{}, rec, logger.New("test"))

	require.NoError(t, i.Inspect("SELECT * FROM orders", appSource()))
	assert.Empty(t, rec.accesses)
}

func TestInspectWordBoundary(t *testing.T) {
	rec := &fakeRecorder{elements: monitored("old_orders_deprecated_20260830")}
	i := New(Config{}, rec, logger.New("test"))

	// A longer identifier containing the deprecated name must not match.
	require.NoError(t, i.Inspect("SELECT * FROM old_orders_deprecated_20260830x", appSource()))
	assert.Empty(t, rec.accesses)
}

func TestInspectCaseInsensitive(t *testing.T) {
	rec := &fakeRecorder{elements: monitored("old_orders_deprecated_20260830")}
	i := New(Config{}, rec, logger.New("test"))

	require.NoError(t, i.Inspect("select * from OLD_ORDERS_DEPRECATED_20260830", appSource()))
	assert.Len(t, rec.accesses, 1)
}

func TestInspectDistinctElementsOnce(t *testing.T) {
	rec := &fakeRecorder{elements: monitored("a_deprecated_20260830", "b_deprecated_20260830")}
	i := New(Config{}, rec, logger.New("test"))

	sql := "SELECT * FROM a_deprecated_20260830 JOIN b_deprecated_20260830 USING (id) " +
		"WHERE a_deprecated_20260830.id > 10"
	require.NoError(t, i.Inspect(sql, appSource()))

	// Each element is recorded once per statement, even when it appears
	// multiple times.
	require.Len(t, rec.accesses, 2)
}

func TestInspectQueryTypeClassification(t *testing.T) {
	tests := []struct {
		sql  string
		want telemetry.QueryType
	}{
		{"SELECT * FROM el_deprecated_20260830", telemetry.QuerySelect},
		{"WITH x AS (SELECT 1) SELECT * FROM el_deprecated_20260830", telemetry.QuerySelect},
		{"INSERT INTO el_deprecated_20260830 VALUES (1)", telemetry.QueryInsert},
		{"UPDATE el_deprecated_20260830 SET a = 1", telemetry.QueryUpdate},
		{"DELETE FROM el_deprecated_20260830", telemetry.QueryDelete},
		{"ALTER TABLE el_deprecated_20260830 ADD COLUMN x int", telemetry.QueryAlter},
		{"DROP TABLE el_deprecated_20260830", telemetry.QueryDrop},
		{"-- audit pass\nSELECT * FROM el_deprecated_20260830", telemetry.QuerySelect},
		{"GRANT SELECT ON el_deprecated_20260830 TO app", telemetry.QueryOther},
	}
	for _, tt := range tests {
		t.Run(string(tt.want)+"_"+tt.sql[:6], func(t *testing.T) {
			rec := &fakeRecorder{elements: monitored("el_deprecated_20260830")}
			i := New(Config{}, rec, logger.New("test"))
			require.NoError(t, i.Inspect(tt.sql, appSource()))
			require.Len(t, rec.accesses, 1)
			assert.Equal(t, tt.want, rec.accesses[0].queryType)
		})
	}
}

func TestStrictModeBlocks(t *testing.T) {
	rec := &fakeRecorder{elements: monitored("old_orders_deprecated_20260830")}
	i := New(Config{StrictMode: true}, rec, logger.New("test"))

	err := i.Inspect("SELECT * FROM old_orders_deprecated_20260830", appSource())
	var blocked *BlockedStatementError
	require.ErrorAs(t, err, &blocked)
	assert.Equal(t, []string{"old_orders_deprecated_20260830"}, blocked.Elements)

	// The access is still recorded even when the statement is blocked.
	assert.Len(t, rec.accesses, 1)
}

func TestStrictModeAllowsCleanStatements(t *testing.T) {
	rec := &fakeRecorder{elements: monitored("old_orders_deprecated_20260830")}
	i := New(Config{StrictMode: true}, rec, logger.New("test"))

	assert.NoError(t, i.Inspect("SELECT * FROM orders", appSource()))
}

func TestRefreshPicksUpNewElements(t *testing.T) {
	rec := &fakeRecorder{}
	i := New(Config{}, rec, logger.New("test"))

	require.NoError(t, i.Inspect("SELECT * FROM late_deprecated_20260830", appSource()))
	assert.Empty(t, rec.accesses)

	rec.elements = monitored("late_deprecated_20260830")
	i.Refresh()

	require.NoError(t, i.Inspect("SELECT * FROM late_deprecated_20260830", appSource()))
	assert.Len(t, rec.accesses, 1)
}

func TestNoElementsNoPattern(t *testing.T) {
	rec := &fakeRecorder{}
	i := New(Config{StrictMode: true}, rec, logger.New("test"))
	assert.NoError(t, i.Inspect("SELECT * FROM anything", appSource()))
}
