package rollback

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schemaguard/schemaguard/internal/backup"
	"github.com/schemaguard/schemaguard/internal/deprecation"
	"github.com/schemaguard/schemaguard/pkg/logger"
)

// ddlRecorder implements schema.Repository for rollback tests; only
// ExecuteDDL matters here.
type ddlRecorder struct {
	executed [][]string
	err      error
}

func (r *ddlRecorder) ExecuteDDL(ctx context.Context, statements []string) error {
	if r.err != nil {
		return r.err
	}
	r.executed = append(r.executed, statements)
	return nil
}

func (r *ddlRecorder) TableExists(ctx context.Context, schemaName, table string) (bool, error) {
	return false, nil
}

func (r *ddlRecorder) ColumnExists(ctx context.Context, schemaName, table, column string) (bool, error) {
	return false, nil
}

func (r *ddlRecorder) IndexExists(ctx context.Context, schemaName, index string) (bool, error) {
	return false, nil
}

func (r *ddlRecorder) ConstraintExists(ctx context.Context, schemaName, constraint string) (bool, error) {
	return false, nil
}

func (r *ddlRecorder) ForeignKeyDependents(ctx context.Context, schemaName, table string) ([]string, error) {
	return nil, nil
}

func (r *ddlRecorder) RowCount(ctx context.Context, schemaName, table string) (int64, error) {
	return 0, nil
}

type stubValidator struct {
	report   *backup.Report
	err      error
	latestID string
	asked    []string
}

func (s *stubValidator) ValidateBackup(ctx context.Context, backupID string) (*backup.Report, error) {
	s.asked = append(s.asked, backupID)
	return s.report, s.err
}

func (s *stubValidator) LatestBackupID() (string, error) {
	if s.latestID == "" {
		return "", fmt.Errorf("no backups found")
	}
	return s.latestID, nil
}

func testMigration() *deprecation.Migration {
	return &deprecation.Migration{
		ID:    "mig-1",
		Phase: deprecation.PhaseCompleted,
		Elements: []deprecation.DeprecatedElement{{
			Type:           deprecation.ElementTable,
			Schema:         "public",
			OriginalName:   "old_orders",
			DeprecatedName: "old_orders_deprecated_20260830",
			DeprecatedAt:   time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC),
		}},
	}
}

func passingReport(id string) *backup.Report {
	return &backup.Report{BackupID: id, Passed: true, Score: 100}
}

func failingReport(id string) *backup.Report {
	return &backup.Report{
		BackupID: id,
		Passed:   false,
		Score:    66,
		Checks:   []backup.Check{{Name: "checksum", Message: "checksum mismatch"}},
	}
}

func TestRollbackReversesRenames(t *testing.T) {
	repo := &ddlRecorder{}
	m := NewManager(repo, nil, Config{}, logger.New("test"))

	require.NoError(t, m.Rollback(context.Background(), testMigration()))

	require.Len(t, repo.executed, 1)
	require.Len(t, repo.executed[0], 1)
	assert.Contains(t, repo.executed[0][0], `RENAME TO "old_orders"`)
}

func TestRollbackValidatesRecordedBackup(t *testing.T) {
	repo := &ddlRecorder{}
	validator := &stubValidator{report: passingReport("nightly-1")}
	m := NewManager(repo, validator, Config{ValidateBeforeRollback: true, RequireBackup: true}, logger.New("test"))

	migration := testMigration()
	migration.Metadata.BackupID = "nightly-1"
	require.NoError(t, m.Rollback(context.Background(), migration))

	assert.Equal(t, []string{"nightly-1"}, validator.asked)
	assert.Len(t, repo.executed, 1)
}

func TestRollbackFallsBackToLatestBackup(t *testing.T) {
	repo := &ddlRecorder{}
	validator := &stubValidator{report: passingReport("nightly-2"), latestID: "nightly-2"}
	m := NewManager(repo, validator, Config{ValidateBeforeRollback: true, RequireBackup: true}, logger.New("test"))

	require.NoError(t, m.Rollback(context.Background(), testMigration()))
	assert.Equal(t, []string{"nightly-2"}, validator.asked)
}

func TestRollbackRefusedOnInvalidBackup(t *testing.T) {
	repo := &ddlRecorder{}
	validator := &stubValidator{report: failingReport("nightly-3"), latestID: "nightly-3"}
	m := NewManager(repo, validator, Config{ValidateBeforeRollback: true, RequireBackup: true}, logger.New("test"))

	err := m.Rollback(context.Background(), testMigration())
	var invalid *deprecation.BackupInvalidError
	require.ErrorAs(t, err, &invalid)
	assert.Contains(t, invalid.Reason, "checksum mismatch")
	assert.Empty(t, repo.executed)
}

func TestRollbackProceedsWithWarningWhenBackupOptional(t *testing.T) {
	repo := &ddlRecorder{}
	validator := &stubValidator{report: failingReport("nightly-4"), latestID: "nightly-4"}
	m := NewManager(repo, validator, Config{ValidateBeforeRollback: true, RequireBackup: false}, logger.New("test"))

	require.NoError(t, m.Rollback(context.Background(), testMigration()))
	assert.Len(t, repo.executed, 1)
}

func TestRollbackRefusedWhenNoBackupExists(t *testing.T) {
	repo := &ddlRecorder{}
	validator := &stubValidator{}
	m := NewManager(repo, validator, Config{ValidateBeforeRollback: true, RequireBackup: true}, logger.New("test"))

	err := m.Rollback(context.Background(), testMigration())
	var invalid *deprecation.BackupInvalidError
	require.ErrorAs(t, err, &invalid)
	assert.Empty(t, repo.executed)
}

func TestRollbackDDLFailurePropagates(t *testing.T) {
	repo := &ddlRecorder{err: fmt.Errorf("deadlock detected")}
	m := NewManager(repo, nil, Config{}, logger.New("test"))

	err := m.Rollback(context.Background(), testMigration())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "deadlock")
}
