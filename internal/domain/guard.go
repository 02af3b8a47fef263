package domain

import (
	"context"
	"fmt"
	"log/slog"

	"gooze.dev/pkg/rebundle/internal/adapter"
	m "gooze.dev/pkg/rebundle/internal/model"
)

// Warner receives human-readable warnings raised by the guard.
type Warner func(msg string)

// GuardOptions configures a Guard.
type GuardOptions struct {
	Layout     Layout
	InstallDir string
	Classifier ClassifierOptions
	Warn       Warner
}

// Guard runs at launch and relocates the runtime when the bundle has been
// moved since the last recorded prefix.
type Guard struct {
	fs   adapter.RuntimeFSAdapter
	opts GuardOptions
}

// NewGuard constructs a Guard.
func NewGuard(fsAdapter adapter.RuntimeFSAdapter, opts GuardOptions) *Guard {
	return &Guard{fs: fsAdapter, opts: opts}
}

// Check compares the ledger against the bundle's location and relocates if
// needed. It never returns an error: failures end in Degraded and the
// application is expected to start regardless.
func (g *Guard) Check(ctx context.Context, bundleRoot m.Path) m.GuardResult {
	result := m.GuardResult{}

	actual, err := g.actualPrefix(bundleRoot)
	if err != nil {
		return g.degrade(ctx, result, fmt.Sprintf("cannot resolve bundle location %s: %v", bundleRoot, err))
	}

	result.Actual = actual.String()
	bundle := g.opts.Layout.Bundle(actual)

	recorded, ok, err := NewLedger(g.fs, bundle.Ledger).Read()

	switch {
	case !ok && err == nil:
		slog.DebugContext(ctx, "No prefix ledger, runtime not portable", "ledger", bundle.Ledger)
		result.Status = m.NoLedger

		return result
	case err != nil && ok:
		recorded = bundle.InstallPrefix(g.opts.InstallDir)
		g.warn(ctx, &result, fmt.Sprintf("%v; assuming install prefix %s", err, recorded))
	case err != nil:
		return g.degrade(ctx, result, fmt.Sprintf("cannot read ledger: %v", err))
	case recorded == result.Actual:
		result.Recorded = recorded
		result.Status = m.Unchanged

		return result
	}

	result.Recorded = recorded

	if !g.fs.Writable(bundle.Runtime) || !g.fs.Writable(bundle.Ledger.Dir()) {
		return g.degrade(ctx, result, fmt.Sprintf(
			"bundle moved from %s to %s but %s is not writable; running without relocation",
			recorded, result.Actual, bundle.Runtime))
	}

	walker := NewWalker(g.fs, WalkerOptions{Classifier: g.opts.Classifier})

	report, err := walker.Walk(ctx, bundle.Runtime, m.NewSubstitution(recorded, result.Actual))
	result.Report = &report

	if err != nil {
		return g.degrade(ctx, result, fmt.Sprintf("relocation from %s to %s failed: %v", recorded, result.Actual, err))
	}

	if err := NewLedger(g.fs, bundle.Ledger).Write(result.Actual); err != nil {
		return g.degrade(ctx, result, fmt.Sprintf("relocated but cannot update ledger: %v", err))
	}

	slog.InfoContext(ctx, "Runtime relocated", "from", recorded, "to", result.Actual, "patched", report.Patched())
	result.Status = m.Relocated

	return result
}

func (g *Guard) actualPrefix(bundleRoot m.Path) (m.Path, error) {
	abs, err := g.fs.Abs(bundleRoot)
	if err != nil {
		return "", err
	}

	return g.fs.EvalSymlinks(abs)
}

func (g *Guard) degrade(ctx context.Context, result m.GuardResult, msg string) m.GuardResult {
	g.warn(ctx, &result, msg)
	result.Status = m.Degraded

	return result
}

func (g *Guard) warn(ctx context.Context, result *m.GuardResult, msg string) {
	result.Warnings = append(result.Warnings, msg)
	slog.WarnContext(ctx, msg)

	if g.opts.Warn != nil {
		g.opts.Warn(msg)
	}
}

// Status inspects the bundle at bundleRoot without modifying it.
func (g *Guard) Status(bundleRoot m.Path) (m.BundleStatus, error) {
	actual, err := g.actualPrefix(bundleRoot)
	if err != nil {
		return m.BundleStatus{}, fmt.Errorf("cannot resolve bundle location %s: %w", bundleRoot, err)
	}

	bundle := g.opts.Layout.Bundle(actual)
	status := m.BundleStatus{
		Root:     bundle.Root,
		Runtime:  bundle.Runtime,
		Ledger:   bundle.Ledger,
		Actual:   actual.String(),
		Writable: g.fs.Writable(bundle.Runtime) && g.fs.Writable(bundle.Ledger.Dir()),
	}

	recorded, ok, err := NewLedger(g.fs, bundle.Ledger).Read()
	status.HasLedger = ok
	status.Recorded = recorded

	if err != nil && !ok {
		return status, fmt.Errorf("cannot read ledger: %w", err)
	}

	status.LedgerErr = err

	return status, nil
}
