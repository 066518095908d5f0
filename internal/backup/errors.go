package backup

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrMissingTenant       = errors.New("tenant id is required")
	ErrCorruptArchive      = errors.New("backup archive is corrupt")
	ErrTenantMismatch      = errors.New("backup belongs to a different tenant")
	ErrOperationInProgress = errors.New("a backup or restore is already running for this tenant")
	ErrInvalidFilename     = errors.New("invalid backup filename")
	ErrStorageDisabled     = errors.New("backup storage is not configured")
	ErrNoTransactions      = errors.New("atomic restore requires a transaction manager")
)

// TableError reports which table a fetch or upsert failed on.
type TableError struct {
	Table string
	Op    string
	Err   error
}

func (e *TableError) Error() string {
	return fmt.Sprintf("failed to %s %s: %v", e.Op, e.Table, e.Err)
}

func (e *TableError) Unwrap() error { return e.Err }

// PartialRestoreError is returned when a restore stopped at Failed. Tables in Completed
// were written and remain in the store.
type PartialRestoreError struct {
	Failed    string
	Completed []string
	Err       error
}

func (e *PartialRestoreError) Error() string {
	if len(e.Completed) == 0 {
		return fmt.Sprintf("restore stopped at %s, nothing was written: %v", e.Failed, e.Err)
	}
	return fmt.Sprintf("restore stopped at %s after writing %s: %v",
		e.Failed, strings.Join(e.Completed, ", "), e.Err)
}

func (e *PartialRestoreError) Unwrap() error { return e.Err }

func corrupt(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrCorruptArchive, fmt.Sprintf(format, args...))
}
