package domain

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"gooze.dev/pkg/rebundle/internal/adapter"
	m "gooze.dev/pkg/rebundle/internal/model"
)

const (
	libPythonPattern  = "libpython*.dylib"
	sitePackagesAlias = "site-packages/"
)

// InstallNameFixer points the install name of the bundled libpython at the
// interpreter's own location so the loader does not look for it at the
// build path.
type InstallNameFixer struct {
	fs   adapter.RuntimeFSAdapter
	cmd  adapter.CommandAdapter
	tool string
}

// NewInstallNameFixer constructs an InstallNameFixer running tool.
func NewInstallNameFixer(fsAdapter adapter.RuntimeFSAdapter, cmdAdapter adapter.CommandAdapter, tool string) *InstallNameFixer {
	if tool == "" {
		tool = "install_name_tool"
	}

	return &InstallNameFixer{fs: fsAdapter, cmd: cmdAdapter, tool: tool}
}

// Fix rewrites the id of every lib/libpython*.dylib below runtimeRoot and
// returns the libraries handled.
func (f *InstallNameFixer) Fix(ctx context.Context, runtimeRoot m.Path, dryRun bool) ([]m.Path, error) {
	lib := runtimeRoot.Join("lib")

	entries, err := f.fs.ReadDir(lib)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", lib, err)
	}

	var fixed []m.Path

	for _, entry := range entries {
		if ok, _ := filepath.Match(libPythonPattern, entry.Name()); !ok {
			continue
		}

		path := lib.Join(entry.Name())
		id := "@executable_path/" + filepath.ToSlash(filepath.Join("..", "lib", entry.Name()))

		if !dryRun {
			if out, err := f.cmd.Run(ctx, lib.String(), f.tool, "-id", id, path.String()); err != nil {
				slog.ErrorContext(ctx, "install_name_tool failed", "library", path, "output", out)
				return fixed, fmt.Errorf("set install name of %s: %w", path, err)
			}
		}

		fixed = append(fixed, path)
	}

	return fixed, nil
}

// LibraryLink is a symlink created inside the runtime. Both paths are
// relative to the runtime root. A target starting with "site-packages/"
// is resolved against the runtime's site-packages directory.
type LibraryLink struct {
	Link   string `mapstructure:"link" yaml:"link"`
	Target string `mapstructure:"target" yaml:"target"`
}

// CreateLibraryLinks creates relative symlinks for links that do not exist
// yet and returns the links created.
func CreateLibraryLinks(fsAdapter adapter.RuntimeFSAdapter, runtimeRoot m.Path, links []LibraryLink, dryRun bool) ([]m.Path, error) {
	var created []m.Path

	for _, link := range links {
		linkPath := runtimeRoot.Join(link.Link)
		if _, err := fsAdapter.Lstat(linkPath); err == nil {
			continue
		}

		target := runtimeRoot.Join(link.Target)

		if rest, ok := strings.CutPrefix(link.Target, sitePackagesAlias); ok {
			sitePackages, err := FindSitePackages(fsAdapter, runtimeRoot, "")
			if err != nil {
				return created, err
			}

			target = sitePackages.Join(rest)
		}

		text, err := filepath.Rel(linkPath.Dir().String(), target.String())
		if err != nil {
			return created, fmt.Errorf("link %s: %w", link.Link, err)
		}

		if !dryRun {
			if err := fsAdapter.MkdirAll(linkPath.Dir(), 0o755); err != nil {
				return created, &PatchIOError{Path: linkPath, Err: err}
			}

			if err := fsAdapter.Symlink(text, linkPath); err != nil {
				return created, &PatchIOError{Path: linkPath, Err: err}
			}
		}

		created = append(created, linkPath)
	}

	return created, nil
}
