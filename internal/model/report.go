package model

import "time"

// PassReport summarizes one Tree Walker pass.
type PassReport struct {
	ID         string        `yaml:"id"`
	Root       Path          `yaml:"root"`
	OldPrefix  string        `yaml:"old_prefix"`
	NewPrefix  string        `yaml:"new_prefix"`
	DryRun     bool          `yaml:"dry_run,omitempty"`
	StartedAt  time.Time     `yaml:"started_at"`
	Duration   time.Duration `yaml:"duration"`
	Counts     map[Kind]int  `yaml:"counts"`
	Text       []Path        `yaml:"text,omitempty"`
	Binary     []Path        `yaml:"binary,omitempty"`
	Retargeted []Path        `yaml:"retargeted,omitempty"`
	// Materialized lists external symlinks replaced by copies of their targets.
	Materialized []Path `yaml:"materialized,omitempty"`
}

// NewPassReport creates an empty report for a pass over root.
func NewPassReport(id string, root Path, sub Substitution) PassReport {
	return PassReport{
		ID:        id,
		Root:      root,
		OldPrefix: string(sub.Old),
		NewPrefix: string(sub.New),
		Counts:    make(map[Kind]int),
	}
}

// Patched returns the number of files whose content changed.
func (r PassReport) Patched() int {
	return len(r.Text) + len(r.Binary)
}

// GuardStatus is the outcome of a launch-time relocation check.
type GuardStatus int

const (
	// NoLedger means the bundle carries no ledger and is not portable.
	NoLedger GuardStatus = iota
	// Unchanged means the ledger already matches the bundle location.
	Unchanged
	// Relocated means the tree was retargeted and the ledger rewritten.
	Relocated
	// Degraded means relocation was needed but could not be done.
	Degraded
)

func (s GuardStatus) String() string {
	switch s {
	case NoLedger:
		return "no-ledger"
	case Unchanged:
		return "unchanged"
	case Relocated:
		return "relocated"
	case Degraded:
		return "degraded"
	}

	return "unknown"
}

// GuardResult is what the relocation guard hands back to the launcher.
type GuardResult struct {
	Status   GuardStatus
	Recorded string
	Actual   string
	Warnings []string
	Report   *PassReport
}

// BundleStatus describes a bundle's relocation state without changing it.
type BundleStatus struct {
	Root      Path
	Runtime   Path
	Ledger    Path
	HasLedger bool
	Recorded  string
	// LedgerErr is set when the ledger exists but cannot be used.
	LedgerErr error
	Actual    string
	Writable  bool
}

// NeedsRelocation reports whether the next guard run would walk the runtime.
func (s BundleStatus) NeedsRelocation() bool {
	return s.HasLedger && (s.LedgerErr != nil || s.Recorded != s.Actual)
}
