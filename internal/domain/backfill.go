package domain

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"regexp"

	"github.com/Masterminds/semver/v3"

	"gooze.dev/pkg/rebundle/internal/adapter"
	m "gooze.dev/pkg/rebundle/internal/model"
)

// DefaultBackfillPackages are the packages a bare conda environment lacks
// to run its own package manager.
var DefaultBackfillPackages = []string{"conda", "enum", "ruamel_yaml", "requests"}

var (
	shebangPythonRe = regexp.MustCompile(`^#!(.*)/bin/python`)
	pythonDirRe     = regexp.MustCompile(`^python(\d+\.\d+)$`)
)

// BackfillOptions selects what is copied and from where.
type BackfillOptions struct {
	Packages []string
	// Manager is the executable looked up on PATH when Reference is empty.
	Manager   string
	Reference m.Path
	// SitePackages is a site-packages path relative to an installation root.
	// Empty means the newest lib/pythonX.Y/site-packages.
	SitePackages string
	DryRun       bool
}

// Backfiller copies packages from a reference installation into the runtime.
type Backfiller struct {
	fs  adapter.RuntimeFSAdapter
	cmd adapter.CommandAdapter
}

// NewBackfiller constructs a Backfiller.
func NewBackfiller(fsAdapter adapter.RuntimeFSAdapter, cmdAdapter adapter.CommandAdapter) *Backfiller {
	return &Backfiller{fs: fsAdapter, cmd: cmdAdapter}
}

// LocateReference returns the reference installation root. Without an
// explicit reference, the manager executable is resolved on PATH and the
// root is read from its python shebang.
func (b *Backfiller) LocateReference(ctx context.Context, opts BackfillOptions) (m.Path, error) {
	if opts.Reference != "" {
		info, err := b.fs.Lstat(opts.Reference)
		if err != nil || !info.IsDir() {
			return "", &MissingReferenceInstallError{Detail: "configured reference " + opts.Reference.String(), Err: err}
		}

		return opts.Reference, nil
	}

	manager := opts.Manager
	if manager == "" {
		manager = "conda"
	}

	bin, err := b.cmd.LookPath(manager)
	if err != nil {
		return "", &MissingReferenceInstallError{Detail: manager + " not on PATH", Err: err}
	}

	head, err := b.fs.ReadHead(bin, 4096)
	if err != nil {
		return "", &MissingReferenceInstallError{Detail: "read " + bin.String(), Err: err}
	}

	line, _, _ := bufio.NewReader(bytes.NewReader(head)).ReadLine()

	match := shebangPythonRe.FindSubmatch(line)
	if match == nil {
		return "", &MissingReferenceInstallError{Detail: bin.String() + " has no python shebang"}
	}

	root := m.Path(match[1])
	slog.DebugContext(ctx, "Located reference installation", "manager", bin, "root", root)

	return root, nil
}

// FindSitePackages returns the site-packages directory of the installation
// at root. A configured relative path wins; otherwise the highest python
// version under lib/ is used.
func FindSitePackages(fsAdapter adapter.RuntimeFSAdapter, root m.Path, configured string) (m.Path, error) {
	if configured != "" {
		return root.Join(configured), nil
	}

	lib := root.Join("lib")

	entries, err := fsAdapter.ReadDir(lib)
	if err != nil {
		return "", fmt.Errorf("list %s: %w", lib, err)
	}

	var (
		best    *semver.Version
		bestDir m.Path
	)

	for _, entry := range entries {
		match := pythonDirRe.FindStringSubmatch(entry.Name())
		if match == nil {
			continue
		}

		version, err := semver.NewVersion(match[1])
		if err != nil {
			continue
		}

		dir := lib.Join(entry.Name(), "site-packages")

		info, err := fsAdapter.Lstat(dir)
		if err != nil || !info.IsDir() {
			continue
		}

		if best == nil || version.GreaterThan(best) {
			best = version
			bestDir = dir
		}
	}

	if best == nil {
		return "", fmt.Errorf("no lib/pythonX.Y/site-packages under %s: %w", root, fs.ErrNotExist)
	}

	return bestDir, nil
}

// Backfill copies every package missing from the runtime at runtimeRoot and
// returns the names copied. Packages may be directories or single modules.
func (b *Backfiller) Backfill(ctx context.Context, runtimeRoot m.Path, opts BackfillOptions) ([]string, error) {
	reference, err := b.LocateReference(ctx, opts)
	if err != nil {
		return nil, err
	}

	source, err := FindSitePackages(b.fs, reference, opts.SitePackages)
	if err != nil {
		return nil, &MissingReferenceInstallError{Detail: "site-packages of " + reference.String(), Err: err}
	}

	dest, err := FindSitePackages(b.fs, runtimeRoot, opts.SitePackages)
	if err != nil {
		return nil, fmt.Errorf("runtime site-packages: %w", err)
	}

	packages := opts.Packages
	if packages == nil {
		packages = DefaultBackfillPackages
	}

	var copied []string

	for _, pkg := range packages {
		done, err := b.backfillOne(ctx, source, dest, pkg, opts.DryRun)
		if err != nil {
			return copied, err
		}

		if done {
			copied = append(copied, pkg)
		}
	}

	return copied, nil
}

func (b *Backfiller) backfillOne(ctx context.Context, source, dest m.Path, pkg string, dryRun bool) (bool, error) {
	for _, name := range []string{pkg, pkg + ".py"} {
		if _, err := b.fs.Lstat(dest.Join(name)); err == nil {
			slog.DebugContext(ctx, "Package already present", "package", pkg, "dest", dest)
			return false, nil
		}
	}

	for _, name := range []string{pkg, pkg + ".py"} {
		src := source.Join(name)

		info, err := b.fs.Lstat(src)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}

		if err != nil {
			return false, &MissingReferenceInstallError{Detail: "package " + pkg, Err: err}
		}

		if dryRun {
			return true, nil
		}

		if info.IsDir() {
			err = b.fs.CopyDir(src, dest.Join(name))
		} else {
			err = b.fs.CopyFile(src, dest.Join(name))
		}

		if err != nil {
			return false, &PatchIOError{Path: dest.Join(name), Err: err}
		}

		slog.InfoContext(ctx, "Backfilled package", "package", pkg, "from", src)

		return true, nil
	}

	return false, &MissingReferenceInstallError{Detail: fmt.Sprintf("package %s not found in %s", pkg, source)}
}
