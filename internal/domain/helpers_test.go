package domain

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"gooze.dev/pkg/rebundle/internal/adapter"
	m "gooze.dev/pkg/rebundle/internal/model"
)

// recordingFS records every mutating call and can inject write failures.
type recordingFS struct {
	*adapter.LocalRuntimeFSAdapter
	writes    []m.Path
	failWrite map[m.Path]error
	readOnly  bool
}

func newRecordingFS() *recordingFS {
	return &recordingFS{
		LocalRuntimeFSAdapter: adapter.NewLocalRuntimeFSAdapter(),
		failWrite:             make(map[m.Path]error),
	}
}

func (r *recordingFS) record(path m.Path) error {
	r.writes = append(r.writes, path)
	return r.failWrite[path]
}

func (r *recordingFS) Overwrite(path m.Path, content []byte) error {
	if err := r.record(path); err != nil {
		return err
	}

	return r.LocalRuntimeFSAdapter.Overwrite(path, content)
}

func (r *recordingFS) WriteInPlace(path m.Path, content []byte) error {
	if err := r.record(path); err != nil {
		return err
	}

	return r.LocalRuntimeFSAdapter.WriteInPlace(path, content)
}

func (r *recordingFS) WriteFileAtomic(path m.Path, content []byte, perm os.FileMode) error {
	if err := r.record(path); err != nil {
		return err
	}

	return r.LocalRuntimeFSAdapter.WriteFileAtomic(path, content, perm)
}

func (r *recordingFS) Remove(path m.Path) error {
	if err := r.record(path); err != nil {
		return err
	}

	return r.LocalRuntimeFSAdapter.Remove(path)
}

func (r *recordingFS) Symlink(target string, link m.Path) error {
	if err := r.record(link); err != nil {
		return err
	}

	return r.LocalRuntimeFSAdapter.Symlink(target, link)
}

func (r *recordingFS) CopyFile(src, dst m.Path) error {
	if err := r.record(dst); err != nil {
		return err
	}

	return r.LocalRuntimeFSAdapter.CopyFile(src, dst)
}

func (r *recordingFS) CopyDir(src, dst m.Path) error {
	if err := r.record(dst); err != nil {
		return err
	}

	return r.LocalRuntimeFSAdapter.CopyDir(src, dst)
}

func (r *recordingFS) Writable(path m.Path) bool {
	if r.readOnly {
		return false
	}

	return r.LocalRuntimeFSAdapter.Writable(path)
}

// fakeCommands stands in for PATH lookups and subprocesses.
type fakeCommands struct {
	paths map[string]m.Path
	runs  [][]string
	err   error
}

func (f *fakeCommands) LookPath(name string) (m.Path, error) {
	if path, ok := f.paths[name]; ok {
		return path, nil
	}

	return "", errors.New("executable file not found in $PATH")
}

func (f *fakeCommands) Run(_ context.Context, _ string, name string, args ...string) (string, error) {
	f.runs = append(f.runs, append([]string{name}, args...))
	return "", f.err
}

func (f *fakeCommands) Exec(m.Path, []string, []string) error {
	return errors.New("exec not supported in tests")
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	writeBytes(t, path, []byte(content))
}

func writeBytes(t *testing.T, path string, content []byte) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
	}

	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}

	return string(data)
}

func symlink(t *testing.T, target, link string) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(link), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(link), err)
	}

	if err := os.Symlink(target, link); err != nil {
		t.Fatalf("symlink %s -> %s: %v", link, target, err)
	}
}

// tempRoot returns a resolved temporary directory.
func tempRoot(t *testing.T) string {
	t.Helper()

	dir, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatalf("resolve temp dir: %v", err)
	}

	return dir
}
