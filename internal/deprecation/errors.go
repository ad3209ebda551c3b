package deprecation

import "fmt"

// NotFoundError indicates an unknown migration ID.
type NotFoundError struct {
	MigrationID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("migration %s not found", e.MigrationID)
}

// InvalidStateError indicates an operation attempted from the wrong
// migration phase.
type InvalidStateError struct {
	MigrationID string
	Phase       Phase
	Wanted      Phase
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("migration %s is in phase %s, expected %s", e.MigrationID, e.Phase, e.Wanted)
}

// ApprovalRequiredError indicates execution was refused because the
// migration requires a recorded approval.
type ApprovalRequiredError struct {
	MigrationID string
	RiskLevel   RiskLevel
}

func (e *ApprovalRequiredError) Error() string {
	return fmt.Sprintf("migration %s requires approval (risk level %s)", e.MigrationID, e.RiskLevel)
}

// UnsafeDeprecationError indicates a critical safety check failed
// during planning.
type UnsafeDeprecationError struct {
	Element string
	Check   string
	Message string
}

func (e *UnsafeDeprecationError) Error() string {
	return fmt.Sprintf("unsafe deprecation of %s: check %s failed: %s", e.Element, e.Check, e.Message)
}

// BackupInvalidError indicates a rollback was refused because backup
// validation failed and a valid backup is required.
type BackupInvalidError struct {
	BackupID string
	Reason   string
}

func (e *BackupInvalidError) Error() string {
	return fmt.Sprintf("backup %s failed validation: %s", e.BackupID, e.Reason)
}
