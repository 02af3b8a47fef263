package domain

import (
	"errors"
	"fmt"

	m "gooze.dev/pkg/rebundle/internal/model"
)

// Sentinel errors, one per failure class. The typed errors below unwrap to
// them so callers can use errors.Is without caring about details.
var (
	ErrClassification          = errors.New("classification failed")
	ErrPatchIO                 = errors.New("patch write failed")
	ErrBinaryGrowth            = errors.New("new prefix longer than old prefix in binary content")
	ErrMarkerNotFound          = errors.New("marker not found")
	ErrMissingReferenceInstall = errors.New("reference installation not found")
	ErrLedgerCorrupt           = errors.New("prefix ledger corrupt")
	ErrMaterializeCycle        = errors.New("symlink materialization cycle")
)

// ClassificationError reports a file that could not be inspected.
type ClassificationError struct {
	Path m.Path
	Err  error
}

func (e *ClassificationError) Error() string {
	return fmt.Sprintf("classify %s: %v", e.Path, e.Err)
}

func (e *ClassificationError) Unwrap() []error { return []error{ErrClassification, e.Err} }

// PatchIOError reports a file that could not be rewritten.
type PatchIOError struct {
	Path m.Path
	Err  error
}

func (e *PatchIOError) Error() string {
	return fmt.Sprintf("patch %s: %v", e.Path, e.Err)
}

func (e *PatchIOError) Unwrap() []error { return []error{ErrPatchIO, e.Err} }

// BinaryGrowthError reports a binary file that would have to grow to hold
// the new prefix.
type BinaryGrowthError struct {
	Path   m.Path
	OldLen int
	NewLen int
}

func (e *BinaryGrowthError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%v (%d > %d bytes)", ErrBinaryGrowth, e.NewLen, e.OldLen)
	}

	return fmt.Sprintf("%s: %v (%d > %d bytes)", e.Path, ErrBinaryGrowth, e.NewLen, e.OldLen)
}

func (e *BinaryGrowthError) Unwrap() error { return ErrBinaryGrowth }

// MarkerNotFoundError reports a script that no longer matches the format the
// portabilization edits depend on.
type MarkerNotFoundError struct {
	Path   m.Path
	Marker string
}

func (e *MarkerNotFoundError) Error() string {
	return fmt.Sprintf("%s: %v: %q", e.Path, ErrMarkerNotFound, e.Marker)
}

func (e *MarkerNotFoundError) Unwrap() error { return ErrMarkerNotFound }

// MissingReferenceInstallError reports that the packages to backfill have no
// source on the build machine.
type MissingReferenceInstallError struct {
	Detail string
	Err    error
}

func (e *MissingReferenceInstallError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%v: %s: %v", ErrMissingReferenceInstall, e.Detail, e.Err)
	}

	return fmt.Sprintf("%v: %s", ErrMissingReferenceInstall, e.Detail)
}

func (e *MissingReferenceInstallError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrMissingReferenceInstall}
	}

	return []error{ErrMissingReferenceInstall, e.Err}
}

// LedgerCorruptError reports a ledger whose content is not a single absolute path.
type LedgerCorruptError struct {
	Path   m.Path
	Reason string
}

func (e *LedgerCorruptError) Error() string {
	return fmt.Sprintf("%s: %v: %s", e.Path, ErrLedgerCorrupt, e.Reason)
}

func (e *LedgerCorruptError) Unwrap() error { return ErrLedgerCorrupt }
