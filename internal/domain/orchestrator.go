package domain

import (
	"context"
	"fmt"
	"log/slog"

	"gooze.dev/pkg/rebundle/internal/adapter"
	m "gooze.dev/pkg/rebundle/internal/model"
)

// PortabilizeConfig is everything a portabilize run depends on.
type PortabilizeConfig struct {
	// BundleRoot is the bundle at its build location.
	BundleRoot m.Path
	Layout     Layout
	// InstallDir is the directory the bundle will be installed into.
	InstallDir string

	Classifier ClassifierOptions

	ActivateScript  string
	ActivateEdits   []Edit
	EntryPoint      string
	Shebang         string
	ValidateScripts bool

	Backfill BackfillOptions

	FixInstallNames bool
	InstallNameTool string
	Links           []LibraryLink

	DryRun bool
}

// DefaultPortabilizeConfig returns the settings used for conda runtimes.
func DefaultPortabilizeConfig(bundleRoot m.Path) PortabilizeConfig {
	return PortabilizeConfig{
		BundleRoot:      bundleRoot,
		Layout:          DefaultLayout(),
		InstallDir:      DefaultInstallDir,
		Classifier:      DefaultClassifierOptions(),
		ActivateScript:  "bin/activate",
		ActivateEdits:   ActivateEdits(),
		EntryPoint:      "bin/conda",
		Shebang:         DefaultShebang,
		ValidateScripts: true,
		Backfill: BackfillOptions{
			Packages: DefaultBackfillPackages,
			Manager:  "conda",
		},
		InstallNameTool: "install_name_tool",
	}
}

// PortabilizeResult describes what a portabilize run did, or would do in a
// dry run.
type PortabilizeResult struct {
	Bundle        Bundle
	BuildPrefix   string
	InstallPrefix string
	InstallNames  []m.Path
	Externalize   m.PassReport
	Diffs         map[string]string
	Backfilled    []string
	Relocation    m.PassReport
	Links         []m.Path
	LedgerWritten bool
}

// Orchestrator turns a freshly built runtime into one that can be moved.
type Orchestrator interface {
	Portabilize(ctx context.Context, cfg PortabilizeConfig) (PortabilizeResult, error)
}

type orchestrator struct {
	fsAdapter  adapter.RuntimeFSAdapter
	cmdAdapter adapter.CommandAdapter
}

// NewOrchestrator constructs an Orchestrator backed by the provided
// filesystem and command adapters.
func NewOrchestrator(fsAdapter adapter.RuntimeFSAdapter, cmdAdapter adapter.CommandAdapter) Orchestrator {
	return &orchestrator{
		fsAdapter:  fsAdapter,
		cmdAdapter: cmdAdapter,
	}
}

// Portabilize runs the steps in order and stops at the first failure.
func (o *orchestrator) Portabilize(ctx context.Context, cfg PortabilizeConfig) (PortabilizeResult, error) {
	// The runtime embeds the path it was built under, symlinks and all, so the
	// build prefix is the absolute root left unresolved.
	root, err := o.fsAdapter.Abs(cfg.BundleRoot)
	if err != nil {
		return PortabilizeResult{}, fmt.Errorf("failed to resolve bundle root: %w", err)
	}

	bundle := cfg.Layout.Bundle(root)
	result := PortabilizeResult{
		Bundle:        bundle,
		BuildPrefix:   bundle.Root.String(),
		InstallPrefix: bundle.InstallPrefix(cfg.InstallDir),
		Diffs:         make(map[string]string),
	}

	slog.InfoContext(ctx, "Portabilizing runtime", "runtime", bundle.Runtime,
		"buildPrefix", result.BuildPrefix, "installPrefix", result.InstallPrefix, "dryRun", cfg.DryRun)

	steps := []struct {
		name string
		run  func(context.Context, PortabilizeConfig, *PortabilizeResult) error
	}{
		{"install names", o.fixInstallNames},
		{"externalize links", o.externalize},
		{"activate script", o.patchActivate},
		{"entry point", o.patchEntryPoint},
		{"backfill packages", o.backfill},
		{"relocate", o.relocate},
		{"library links", o.createLinks},
	}

	for _, step := range steps {
		if err := step.run(ctx, cfg, &result); err != nil {
			slog.ErrorContext(ctx, "Portabilize step failed", "step", step.name, "error", err)
			return result, fmt.Errorf("%s: %w", step.name, err)
		}
	}

	return result, nil
}

func (o *orchestrator) fixInstallNames(ctx context.Context, cfg PortabilizeConfig, result *PortabilizeResult) error {
	if !cfg.FixInstallNames {
		return nil
	}

	fixer := NewInstallNameFixer(o.fsAdapter, o.cmdAdapter, cfg.InstallNameTool)

	fixed, err := fixer.Fix(ctx, result.Bundle.Runtime, cfg.DryRun)
	result.InstallNames = fixed

	return err
}

func (o *orchestrator) externalize(ctx context.Context, cfg PortabilizeConfig, result *PortabilizeResult) error {
	walker := NewWalker(o.fsAdapter, WalkerOptions{Classifier: cfg.Classifier, DryRun: cfg.DryRun})
	identity := m.NewSubstitution(result.BuildPrefix, result.BuildPrefix)

	report, err := walker.Walk(ctx, result.Bundle.Runtime, identity)
	result.Externalize = report

	return err
}

func (o *orchestrator) patchActivate(_ context.Context, cfg PortabilizeConfig, result *PortabilizeResult) error {
	if cfg.ActivateScript == "" {
		return nil
	}

	editor := NewScriptEditor(o.fsAdapter, cfg.ValidateScripts, cfg.DryRun)

	diff, err := editor.Patch(result.Bundle.Runtime.Join(cfg.ActivateScript), cfg.ActivateEdits)
	if err != nil {
		return err
	}

	result.Diffs[cfg.ActivateScript] = diff

	return nil
}

func (o *orchestrator) patchEntryPoint(_ context.Context, cfg PortabilizeConfig, result *PortabilizeResult) error {
	if cfg.EntryPoint == "" {
		return nil
	}

	shebang := cfg.Shebang
	if shebang == "" {
		shebang = DefaultShebang
	}

	editor := NewScriptEditor(o.fsAdapter, false, cfg.DryRun)

	diff, err := editor.Shebang(result.Bundle.Runtime.Join(cfg.EntryPoint), shebang)
	if err != nil {
		return err
	}

	result.Diffs[cfg.EntryPoint] = diff

	return nil
}

func (o *orchestrator) backfill(ctx context.Context, cfg PortabilizeConfig, result *PortabilizeResult) error {
	opts := cfg.Backfill
	opts.DryRun = cfg.DryRun

	if opts.Packages != nil && len(opts.Packages) == 0 {
		return nil
	}

	copied, err := NewBackfiller(o.fsAdapter, o.cmdAdapter).Backfill(ctx, result.Bundle.Runtime, opts)
	result.Backfilled = copied

	return err
}

func (o *orchestrator) relocate(ctx context.Context, cfg PortabilizeConfig, result *PortabilizeResult) error {
	walker := NewWalker(o.fsAdapter, WalkerOptions{Classifier: cfg.Classifier, DryRun: cfg.DryRun})
	sub := m.NewSubstitution(result.BuildPrefix, result.InstallPrefix)

	report, err := walker.Walk(ctx, result.Bundle.Runtime, sub)
	result.Relocation = report

	if err != nil || cfg.DryRun {
		return err
	}

	if err := NewLedger(o.fsAdapter, result.Bundle.Ledger).Write(result.InstallPrefix); err != nil {
		return fmt.Errorf("failed to write ledger: %w", err)
	}

	result.LedgerWritten = true

	return nil
}

func (o *orchestrator) createLinks(_ context.Context, cfg PortabilizeConfig, result *PortabilizeResult) error {
	if len(cfg.Links) == 0 {
		return nil
	}

	created, err := CreateLibraryLinks(o.fsAdapter, result.Bundle.Runtime, cfg.Links, cfg.DryRun)
	result.Links = created

	return err
}
