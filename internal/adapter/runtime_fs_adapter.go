// Package adapter contains the infrastructure ports the relocation engine
// runs against: filesystem, subprocesses, report persistence and metrics.
package adapter

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/renameio"
	"golang.org/x/sys/unix"

	m "gooze.dev/pkg/rebundle/internal/model"
)

// RuntimeFSAdapter abstracts the filesystem operations the relocation engine
// needs. It hides direct `os` access so the domain can be driven against
// temporary trees in tests.
//
//nolint:interfacebloat // A richer interface keeps the domain decoupled from os/fs.
type RuntimeFSAdapter interface {
	// Lstat returns metadata without following a final symlink.
	Lstat(path m.Path) (fs.FileInfo, error)

	// ReadDir lists a directory sorted by name.
	ReadDir(path m.Path) ([]fs.DirEntry, error)

	// ReadFile loads a whole file.
	ReadFile(path m.Path) ([]byte, error)

	// ReadHead loads at most n bytes from the start of a file.
	ReadHead(path m.Path, n int) ([]byte, error)

	// Overwrite truncates an existing file and writes content into it, keeping
	// inode and mode.
	Overwrite(path m.Path, content []byte) error

	// WriteInPlace writes content over an existing file starting at offset 0
	// without truncating. The content must have the file's exact size.
	WriteInPlace(path m.Path, content []byte) error

	// WriteFileAtomic replaces path with content via a temporary file and rename.
	WriteFileAtomic(path m.Path, content []byte, perm os.FileMode) error

	// Readlink returns the raw target text of a symlink.
	Readlink(path m.Path) (string, error)

	// EvalSymlinks resolves every symlink in path.
	EvalSymlinks(path m.Path) (m.Path, error)

	// Symlink creates link pointing at target.
	Symlink(target string, link m.Path) error

	// Remove deletes a single entry.
	Remove(path m.Path) error

	// CopyFile copies a regular file, preserving its mode.
	CopyFile(src, dst m.Path) error

	// CopyDir recursively copies a directory tree. Symlinks inside the tree
	// are recreated as symlinks; relative ones escaping src become absolute.
	CopyDir(src, dst m.Path) error

	// MkdirAll creates a directory and any missing parents.
	MkdirAll(path m.Path, perm os.FileMode) error

	// Writable reports whether the current process may create and modify
	// entries in path.
	Writable(path m.Path) bool

	// Abs returns an absolute, cleaned form of path.
	Abs(path m.Path) (m.Path, error)
}

// LocalRuntimeFSAdapter is the os-backed RuntimeFSAdapter.
type LocalRuntimeFSAdapter struct{}

// NewLocalRuntimeFSAdapter constructs a LocalRuntimeFSAdapter.
func NewLocalRuntimeFSAdapter() *LocalRuntimeFSAdapter {
	return &LocalRuntimeFSAdapter{}
}

// Lstat returns file metadata without following symlinks.
func (a *LocalRuntimeFSAdapter) Lstat(path m.Path) (fs.FileInfo, error) {
	return os.Lstat(string(path))
}

// ReadDir lists the entries of a directory.
func (a *LocalRuntimeFSAdapter) ReadDir(path m.Path) ([]fs.DirEntry, error) {
	return os.ReadDir(string(path))
}

// ReadFile loads file contents from disk.
func (a *LocalRuntimeFSAdapter) ReadFile(path m.Path) ([]byte, error) {
	return os.ReadFile(string(path))
}

// ReadHead loads at most n leading bytes of a file.
func (a *LocalRuntimeFSAdapter) ReadHead(path m.Path, n int) ([]byte, error) {
	// #nosec G304 - path comes from walking the runtime root
	f, err := os.Open(string(path))
	if err != nil {
		return nil, err
	}

	defer func() { _ = f.Close() }()

	buf := make([]byte, n)

	read, err := io.ReadFull(f, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, err
	}

	return buf[:read], nil
}

// Overwrite truncates the file and writes content.
func (a *LocalRuntimeFSAdapter) Overwrite(path m.Path, content []byte) error {
	f, err := os.OpenFile(string(path), os.O_WRONLY|os.O_TRUNC, 0)
	if err != nil {
		return err
	}

	if _, err := f.Write(content); err != nil {
		_ = f.Close()
		return err
	}

	return f.Close()
}

// WriteInPlace writes content over the file from offset 0. It refuses to
// write when the content length differs from the current file size.
func (a *LocalRuntimeFSAdapter) WriteInPlace(path m.Path, content []byte) error {
	f, err := os.OpenFile(string(path), os.O_WRONLY, 0)
	if err != nil {
		return err
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return err
	}

	if info.Size() != int64(len(content)) {
		_ = f.Close()
		return fmt.Errorf("refusing in-place write of %d bytes over %d byte file", len(content), info.Size())
	}

	if _, err := f.WriteAt(content, 0); err != nil {
		_ = f.Close()
		return err
	}

	return f.Close()
}

// WriteFileAtomic writes content to a temporary file next to path and
// renames it over path.
func (a *LocalRuntimeFSAdapter) WriteFileAtomic(path m.Path, content []byte, perm os.FileMode) error {
	pending, err := renameio.TempFile(filepath.Dir(string(path)), string(path))
	if err != nil {
		return err
	}

	defer func() { _ = pending.Cleanup() }()

	if _, err := pending.Write(content); err != nil {
		return err
	}

	if err := pending.Chmod(perm); err != nil {
		return err
	}

	return pending.CloseAtomicallyReplace()
}

// Readlink returns the target text of a symlink.
func (a *LocalRuntimeFSAdapter) Readlink(path m.Path) (string, error) {
	return os.Readlink(string(path))
}

// EvalSymlinks resolves all symlinks in path.
func (a *LocalRuntimeFSAdapter) EvalSymlinks(path m.Path) (m.Path, error) {
	resolved, err := filepath.EvalSymlinks(string(path))
	if err != nil {
		return "", err
	}

	return m.Path(resolved), nil
}

// Symlink creates a symbolic link.
func (a *LocalRuntimeFSAdapter) Symlink(target string, link m.Path) error {
	return os.Symlink(target, string(link))
}

// Remove deletes a file, symlink or empty directory.
func (a *LocalRuntimeFSAdapter) Remove(path m.Path) error {
	return os.Remove(string(path))
}

// CopyFile copies a single regular file, preserving its permission bits.
func (a *LocalRuntimeFSAdapter) CopyFile(src, dst m.Path) error {
	info, err := os.Stat(string(src))
	if err != nil {
		return err
	}

	return a.copyFile(string(src), string(dst), info.Mode().Perm())
}

// CopyDir recursively copies a directory tree. Relative links that point
// outside src are rewritten to the absolute path they named in the source,
// so the copy still reaches the same content.
func (a *LocalRuntimeFSAdapter) CopyDir(src, dst m.Path) error {
	return filepath.Walk(string(src), func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		relPath, err := filepath.Rel(string(src), path)
		if err != nil {
			return err
		}

		targetPath := filepath.Join(string(dst), relPath)

		switch {
		case info.Mode()&os.ModeSymlink != 0:
			linkTarget, err := os.Readlink(path)
			if err != nil {
				return err
			}

			return os.Symlink(copiedLinkText(string(src), path, linkTarget), targetPath)
		case info.IsDir():
			return os.MkdirAll(targetPath, info.Mode().Perm()|0o700)
		case info.Mode().IsRegular():
			return a.copyFile(path, targetPath, info.Mode().Perm())
		}

		// Sockets, devices and fifos have no place in a relocatable tree.
		return nil
	})
}

func copiedLinkText(src, link, text string) string {
	if filepath.IsAbs(text) {
		return text
	}

	target := filepath.Join(filepath.Dir(link), text)

	rel, err := filepath.Rel(src, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return target
	}

	return text
}

// copyFile copies a single file.
func (a *LocalRuntimeFSAdapter) copyFile(src, dst string, mode os.FileMode) error {
	// #nosec G304 - src is a path inside the runtime or reference install
	sourceFile, err := os.Open(src)
	if err != nil {
		return err
	}

	defer func() { _ = sourceFile.Close() }()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}

	// #nosec G304 - dst is internal destination path, not user input
	destFile, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}

	if _, err := io.Copy(destFile, sourceFile); err != nil {
		_ = destFile.Close()
		return err
	}

	if err := destFile.Close(); err != nil {
		return err
	}

	return os.Chmod(dst, mode)
}

// MkdirAll creates a directory along with any necessary parents.
func (a *LocalRuntimeFSAdapter) MkdirAll(path m.Path, perm os.FileMode) error {
	return os.MkdirAll(string(path), perm)
}

// Writable reports whether path grants write and search access to the
// current process.
func (a *LocalRuntimeFSAdapter) Writable(path m.Path) bool {
	return unix.Access(string(path), unix.W_OK|unix.X_OK) == nil
}

// Abs returns the absolute form of path.
func (a *LocalRuntimeFSAdapter) Abs(path m.Path) (m.Path, error) {
	abs, err := filepath.Abs(string(path))
	if err != nil {
		return "", err
	}

	return m.Path(abs), nil
}
