package domain

import (
	"path/filepath"
	"strings"

	m "gooze.dev/pkg/rebundle/internal/model"
)

// Default bundle layout names.
const (
	DefaultRuntimeDir = "conda_env"
	DefaultLedgerName = "application_path_prefix"
	DefaultInstallDir = "/Applications"
	resourcesDir      = "Contents/Resources"
	bundleExt         = ".app"
)

// Layout names the locations inside an application bundle.
type Layout struct {
	RuntimeDir string
	LedgerName string
}

// DefaultLayout returns the layout of bundles produced by portabilize.
func DefaultLayout() Layout {
	return Layout{RuntimeDir: DefaultRuntimeDir, LedgerName: DefaultLedgerName}
}

// Bundle holds the resolved paths of one application bundle. Root is the
// prefix that gets recorded in the ledger and substituted in the runtime.
type Bundle struct {
	Root    m.Path
	Runtime m.Path
	Ledger  m.Path
}

// Bundle derives the runtime root and ledger path for the bundle at root.
func (l Layout) Bundle(root m.Path) Bundle {
	runtimeDir := l.RuntimeDir
	if runtimeDir == "" {
		runtimeDir = DefaultRuntimeDir
	}

	ledger := l.LedgerName
	if ledger == "" {
		ledger = DefaultLedgerName
	}

	resources := root.Join(resourcesDir)

	return Bundle{
		Root:    root,
		Runtime: resources.Join(runtimeDir),
		Ledger:  resources.Join(ledger),
	}
}

// Name returns the bundle name without the .app extension.
func (b Bundle) Name() string {
	return strings.TrimSuffix(b.Root.Base(), bundleExt)
}

// InstallPrefix is where the bundle is expected to live after installation.
func (b Bundle) InstallPrefix(installDir string) string {
	if installDir == "" {
		installDir = DefaultInstallDir
	}

	return filepath.Join(installDir, b.Name()+bundleExt)
}
