package deprecation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/schemaguard/schemaguard/internal/safety"
	"github.com/schemaguard/schemaguard/internal/schema"
	"github.com/schemaguard/schemaguard/pkg/logger"
)

// Tracker is the monitoring surface the orchestrator notifies when
// elements enter or leave deprecation.
type Tracker interface {
	StartMonitoring(el DeprecatedElement) error
	StopMonitoring(el DeprecatedElement) error
}

// Rollbacker reverses a migration's schema changes.
type Rollbacker interface {
	Rollback(ctx context.Context, m *Migration) error
}

// Options carries operator-supplied context for planning.
type Options struct {
	Reason                   string
	CreatedBy                string
	Environment              string
	BackupID                 string
	EstimatedDurationSeconds int
}

// Status summarizes migration history.
type Status struct {
	Total          int
	ByPhase        map[Phase]int
	ActiveElements int
}

// System orchestrates deprecation migrations end to end.
type System struct {
	store      Store
	repo       schema.Repository
	checks     []safety.Check
	tracker    Tracker
	rollbacker Rollbacker
	logger     *logger.Logger
	now        func() time.Time
}

// NewSystem wires the orchestrator. tracker and rollbacker may be nil
// when monitoring or rollback is disabled.
func NewSystem(store Store, repo schema.Repository, checks []safety.Check, tracker Tracker, rollbacker Rollbacker, log *logger.Logger) *System {
	if checks == nil {
		checks = safety.DefaultChecks()
	}
	return &System{
		store:      store,
		repo:       repo,
		checks:     checks,
		tracker:    tracker,
		rollbacker: rollbacker,
		logger:     log,
		now:        time.Now,
	}
}

// SetClock overrides the time source.
func (s *System) SetClock(now func() time.Time) {
	s.now = now
}

// PlanDeprecation validates the element specs, runs the safety check
// battery, and persists a migration in the planned phase. The database
// schema is not touched.
func (s *System) PlanDeprecation(ctx context.Context, specs []ElementSpec, opts Options) (*Migration, error) {
	if len(specs) == 0 {
		return nil, fmt.Errorf("no elements to deprecate")
	}

	now := s.now()
	risk := RiskLow
	var elements []DeprecatedElement
	var allResults []CheckResult

	for _, spec := range specs {
		if !spec.Type.Valid() {
			return nil, fmt.Errorf("invalid element type %q", spec.Type)
		}
		if spec.Name == "" {
			return nil, fmt.Errorf("element name is required")
		}
		if (spec.Type == ElementColumn || spec.Type == ElementConstraint) && spec.Table == "" {
			return nil, fmt.Errorf("%s %s requires an owning table", spec.Type, spec.Name)
		}

		el := DeprecatedElement{
			Type:           spec.Type,
			Schema:         spec.Schema,
			Table:          spec.Table,
			OriginalName:   spec.Name,
			DeprecatedName: DeprecatedNameFor(spec.Name, now),
			Reason:         opts.Reason,
			DeprecatedAt:   now,
		}

		facts, err := s.gatherFacts(ctx, el)
		if err != nil {
			return nil, fmt.Errorf("failed to gather metadata for %s: %w", spec.Name, err)
		}

		view := safety.Element{
			Type:           string(el.Type),
			Schema:         el.Schema,
			Table:          el.Table,
			Name:           el.OriginalName,
			DeprecatedName: el.DeprecatedName,
		}
		for _, res := range safety.Evaluate(s.checks, view, facts) {
			allResults = append(allResults, CheckResult{
				Name:     res.Name,
				Passed:   res.Passed,
				Message:  res.Message,
				Severity: RiskLevel(res.Severity),
			})
			if res.Passed {
				continue
			}
			if res.Critical {
				return nil, &UnsafeDeprecationError{
					Element: view.Display(),
					Check:   res.Name,
					Message: res.Message,
				}
			}
			risk = MaxRisk(risk, RiskLevel(res.Severity))
		}

		elements = append(elements, el)
	}

	m := &Migration{
		ID:           uuid.NewString(),
		Elements:     elements,
		Phase:        PhasePlanned,
		SafetyChecks: allResults,
		Metadata: Metadata{
			RiskLevel:                risk,
			EstimatedDurationSeconds: opts.EstimatedDurationSeconds,
			ApprovalRequired:         risk == RiskHigh || risk == RiskCritical,
			CreatedBy:                opts.CreatedBy,
			Environment:              opts.Environment,
			Reason:                   opts.Reason,
			BackupID:                 opts.BackupID,
		},
		Timestamp: now,
	}

	if err := s.store.Save(ctx, m); err != nil {
		return nil, fmt.Errorf("failed to persist migration: %w", err)
	}

	s.logger.WithFields(map[string]string{
		"migration": m.ID,
		"elements":  fmt.Sprintf("%d", len(elements)),
		"risk":      string(risk),
	}).Info("migration planned")
	return m, nil
}

// Approve records an approval on a planned migration so that execution
// can proceed when approval is required.
func (s *System) Approve(ctx context.Context, migrationID, approvedBy string) error {
	m, err := s.store.Get(ctx, migrationID)
	if err != nil {
		return err
	}
	if m.Phase != PhasePlanned {
		return &InvalidStateError{MigrationID: m.ID, Phase: m.Phase, Wanted: PhasePlanned}
	}
	now := s.now()
	m.Metadata.ApprovedBy = approvedBy
	m.Metadata.ApprovedAt = &now
	if err := s.store.Update(ctx, m); err != nil {
		return fmt.Errorf("failed to record approval: %w", err)
	}
	s.logger.Infof("migration %s approved by %s", m.ID, approvedBy)
	return nil
}

// ExecuteDeprecation renames every element of the migration inside one
// transaction and registers the elements with the monitor. On any
// statement failure the migration moves to failed and no rename
// persists.
func (s *System) ExecuteDeprecation(ctx context.Context, migrationID string) error {
	m, err := s.store.Get(ctx, migrationID)
	if err != nil {
		return err
	}
	if m.Phase != PhasePlanned {
		return &InvalidStateError{MigrationID: m.ID, Phase: m.Phase, Wanted: PhasePlanned}
	}
	if m.Metadata.ApprovalRequired && m.Metadata.ApprovedBy == "" {
		return &ApprovalRequiredError{MigrationID: m.ID, RiskLevel: m.Metadata.RiskLevel}
	}

	m.Phase = PhaseExecuting
	if err := s.store.Update(ctx, m); err != nil {
		return fmt.Errorf("failed to mark migration executing: %w", err)
	}

	stmts := make([]string, 0, len(m.Elements))
	for _, el := range m.Elements {
		stmts = append(stmts, renameSQL(el, false))
	}

	if err := s.repo.ExecuteDDL(ctx, stmts); err != nil {
		m.Phase = PhaseFailed
		m.Metadata.Error = err.Error()
		if uerr := s.store.Update(ctx, m); uerr != nil {
			s.logger.Errorf("failed to record migration failure: %v", uerr)
		}
		return fmt.Errorf("failed to execute deprecation: %w", err)
	}

	m.Phase = PhaseCompleted
	if err := s.store.Update(ctx, m); err != nil {
		return fmt.Errorf("failed to mark migration completed: %w", err)
	}

	if s.tracker != nil {
		for _, el := range m.Elements {
			if err := s.tracker.StartMonitoring(el); err != nil {
				s.logger.Warnf("failed to start monitoring %s: %v", el.Key(), err)
			}
		}
	}

	s.logger.Infof("migration %s completed: %d elements deprecated", m.ID, len(m.Elements))
	return nil
}

// RollbackMigration reverses a completed migration via the rollback
// manager. On failure the migration stays completed with an error note.
func (s *System) RollbackMigration(ctx context.Context, migrationID string) error {
	m, err := s.store.Get(ctx, migrationID)
	if err != nil {
		return err
	}
	if m.Phase != PhaseCompleted {
		return &InvalidStateError{MigrationID: m.ID, Phase: m.Phase, Wanted: PhaseCompleted}
	}
	if s.rollbacker == nil {
		return fmt.Errorf("rollback is not configured")
	}

	if err := s.rollbacker.Rollback(ctx, m); err != nil {
		m.Metadata.Error = fmt.Sprintf("rollback failed: %v", err)
		if uerr := s.store.Update(ctx, m); uerr != nil {
			s.logger.Errorf("failed to record rollback failure: %v", uerr)
		}
		return fmt.Errorf("failed to roll back migration %s: %w", m.ID, err)
	}

	m.Phase = PhaseRolledBack
	if err := s.store.Update(ctx, m); err != nil {
		return fmt.Errorf("failed to mark migration rolled back: %w", err)
	}

	if s.tracker != nil {
		for _, el := range m.Elements {
			if err := s.tracker.StopMonitoring(el); err != nil {
				s.logger.Warnf("failed to stop monitoring %s: %v", el.Key(), err)
			}
		}
	}

	s.logger.Infof("migration %s rolled back", m.ID)
	return nil
}

// GetMigration returns a single migration record.
func (s *System) GetMigration(ctx context.Context, migrationID string) (*Migration, error) {
	return s.store.Get(ctx, migrationID)
}

// ListMigrations returns migration history, newest first.
func (s *System) ListMigrations(ctx context.Context) ([]*Migration, error) {
	return s.store.List(ctx)
}

// GetDeprecationStatus summarizes migration history.
func (s *System) GetDeprecationStatus(ctx context.Context) (*Status, error) {
	ms, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	st := &Status{ByPhase: make(map[Phase]int)}
	for _, m := range ms {
		st.Total++
		st.ByPhase[m.Phase]++
		if m.Phase == PhaseCompleted {
			st.ActiveElements += len(m.Elements)
		}
	}
	return st, nil
}

// gatherFacts collects the metadata the safety checks inspect.
func (s *System) gatherFacts(ctx context.Context, el DeprecatedElement) (safety.Facts, error) {
	facts := safety.Facts{DaysSinceModified: -1}
	if s.repo == nil {
		// Planning without a live database: existence cannot be
		// verified, so the evaluator sees optimistic facts.
		facts.Exists = true
		return facts, nil
	}

	var err error
	switch el.Type {
	case ElementTable:
		facts.Exists, err = s.repo.TableExists(ctx, el.Schema, el.OriginalName)
		if err != nil {
			return facts, err
		}
		facts.DeprecatedNameTaken, err = s.repo.TableExists(ctx, el.Schema, el.DeprecatedName)
		if err != nil {
			return facts, err
		}
		facts.Dependents, err = s.repo.ForeignKeyDependents(ctx, el.Schema, el.OriginalName)
		if err != nil {
			return facts, err
		}
	case ElementColumn:
		facts.Exists, err = s.repo.ColumnExists(ctx, el.Schema, el.Table, el.OriginalName)
		if err != nil {
			return facts, err
		}
		facts.DeprecatedNameTaken, err = s.repo.ColumnExists(ctx, el.Schema, el.Table, el.DeprecatedName)
		if err != nil {
			return facts, err
		}
	case ElementIndex:
		facts.Exists, err = s.repo.IndexExists(ctx, el.Schema, el.OriginalName)
		if err != nil {
			return facts, err
		}
		facts.DeprecatedNameTaken, err = s.repo.IndexExists(ctx, el.Schema, el.DeprecatedName)
		if err != nil {
			return facts, err
		}
	case ElementConstraint:
		facts.Exists, err = s.repo.ConstraintExists(ctx, el.Schema, el.OriginalName)
		if err != nil {
			return facts, err
		}
		facts.DeprecatedNameTaken, err = s.repo.ConstraintExists(ctx, el.Schema, el.DeprecatedName)
		if err != nil {
			return facts, err
		}
	}
	return facts, nil
}

// renameSQL builds the rename statement for an element. reverse maps
// the deprecated name back to the original.
func renameSQL(el DeprecatedElement, reverse bool) string {
	from, to := el.OriginalName, el.DeprecatedName
	if reverse {
		from, to = to, from
	}
	switch el.Type {
	case ElementColumn:
		return schema.RenameColumnSQL(el.Schema, el.Table, from, to)
	case ElementIndex:
		return schema.RenameIndexSQL(el.Schema, from, to)
	case ElementConstraint:
		return schema.RenameConstraintSQL(el.Schema, el.Table, from, to)
	default:
		return schema.RenameTableSQL(el.Schema, from, to)
	}
}

// ReverseRenameStatements builds the statements that undo a migration's
// renames, for the rollback manager.
func ReverseRenameStatements(m *Migration) []string {
	stmts := make([]string, 0, len(m.Elements))
	for _, el := range m.Elements {
		stmts = append(stmts, renameSQL(el, true))
	}
	return stmts
}
