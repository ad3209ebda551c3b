// Package rollback reverses a migration's schema changes. All reverse
// renames run inside a single transaction so a failed rollback never
// leaves the schema half-reverted.
package rollback

import (
	"context"
	"fmt"

	"github.com/schemaguard/schemaguard/internal/backup"
	"github.com/schemaguard/schemaguard/internal/deprecation"
	"github.com/schemaguard/schemaguard/internal/schema"
	"github.com/schemaguard/schemaguard/pkg/logger"
)

// BackupValidator is the validation gate consulted before a rollback.
type BackupValidator interface {
	ValidateBackup(ctx context.Context, backupID string) (*backup.Report, error)
	LatestBackupID() (string, error)
}

// Config controls the rollback safety gates.
type Config struct {
	// ValidateBeforeRollback runs backup validation before reversing
	// any rename.
	ValidateBeforeRollback bool

	// RequireBackup refuses the rollback when validation fails.
	// When false a failed validation only logs a warning.
	RequireBackup bool
}

// Manager reverses migrations.
type Manager struct {
	repo      schema.Repository
	validator BackupValidator
	cfg       Config
	logger    *logger.Logger
}

// NewManager creates a rollback manager. validator may be nil when
// backup validation is disabled.
func NewManager(repo schema.Repository, validator BackupValidator, cfg Config, log *logger.Logger) *Manager {
	return &Manager{repo: repo, validator: validator, cfg: cfg, logger: log}
}

// Rollback reverses every rename of the migration in one transaction.
func (m *Manager) Rollback(ctx context.Context, migration *deprecation.Migration) error {
	if m.cfg.ValidateBeforeRollback && m.validator != nil {
		if err := m.validateBackup(ctx, migration); err != nil {
			return err
		}
	}

	stmts := deprecation.ReverseRenameStatements(migration)
	if err := m.repo.ExecuteDDL(ctx, stmts); err != nil {
		return fmt.Errorf("failed to reverse renames: %w", err)
	}

	m.logger.Infof("rolled back %d elements for migration %s", len(migration.Elements), migration.ID)
	return nil
}

func (m *Manager) validateBackup(ctx context.Context, migration *deprecation.Migration) error {
	backupID := migration.Metadata.BackupID
	if backupID == "" {
		id, err := m.validator.LatestBackupID()
		if err != nil {
			if m.cfg.RequireBackup {
				return &deprecation.BackupInvalidError{Reason: err.Error()}
			}
			m.logger.Warnf("no backup available before rollback: %v", err)
			return nil
		}
		backupID = id
	}

	report, err := m.validator.ValidateBackup(ctx, backupID)
	if err != nil {
		if m.cfg.RequireBackup {
			return &deprecation.BackupInvalidError{BackupID: backupID, Reason: err.Error()}
		}
		m.logger.Warnf("backup validation errored before rollback: %v", err)
		return nil
	}
	if !report.Passed {
		reason := fmt.Sprintf("score %d/100", report.Score)
		for _, c := range report.Checks {
			if !c.Passed {
				reason = c.Message
				break
			}
		}
		if m.cfg.RequireBackup {
			return &deprecation.BackupInvalidError{BackupID: backupID, Reason: reason}
		}
		m.logger.Warnf("backup %s failed validation, proceeding with rollback: %s", backupID, reason)
	}
	return nil
}
