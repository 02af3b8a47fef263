package domain

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	m "gooze.dev/pkg/rebundle/internal/model"
)

// newReferenceInstall lays out a conda-like installation with packages in
// its newest site-packages and a conda entry point.
func newReferenceInstall(t *testing.T) string {
	t.Helper()

	ref := tempRoot(t)
	writeFile(t, filepath.Join(ref, "lib", "python3.9", "site-packages", "old.txt"), "stale")
	site := filepath.Join(ref, "lib", "python3.11", "site-packages")
	writeFile(t, filepath.Join(site, "conda", "__init__.py"), "")
	writeFile(t, filepath.Join(site, "conda", "cli", "main.py"), "def main(): pass\n")
	writeFile(t, filepath.Join(site, "enum", "__init__.py"), "")
	writeFile(t, filepath.Join(site, "ruamel_yaml", "__init__.py"), "")
	writeFile(t, filepath.Join(site, "requests.py"), "get = None\n")
	writeFile(t, filepath.Join(ref, "bin", "conda"), "#!"+ref+"/bin/python\nimport conda\n")

	return ref
}

func newRuntime(t *testing.T) string {
	t.Helper()

	runtime := tempRoot(t)
	writeFile(t, filepath.Join(runtime, "lib", "python3.11", "site-packages", "enum", "__init__.py"), "# own enum\n")

	return runtime
}

func TestFindSitePackages_HighestVersion(t *testing.T) {
	root := tempRoot(t)
	writeFile(t, filepath.Join(root, "lib", "python3.9", "site-packages", "a"), "")
	writeFile(t, filepath.Join(root, "lib", "python3.11", "site-packages", "a"), "")
	writeFile(t, filepath.Join(root, "lib", "python3.12", "README"), "no site-packages here")
	writeFile(t, filepath.Join(root, "lib", "pythonista", "site-packages", "a"), "")

	got, err := FindSitePackages(newRecordingFS(), m.Path(root), "")
	require.NoError(t, err)
	assert.Equal(t, m.Path(filepath.Join(root, "lib", "python3.11", "site-packages")), got)

	got, err = FindSitePackages(newRecordingFS(), m.Path(root), "lib/python3.9/site-packages")
	require.NoError(t, err)
	assert.Equal(t, m.Path(filepath.Join(root, "lib", "python3.9", "site-packages")), got)

	_, err = FindSitePackages(newRecordingFS(), m.Path(tempRoot(t)), "")
	require.Error(t, err)
}

func TestBackfiller_LocateReference(t *testing.T) {
	ref := newReferenceInstall(t)

	t.Run("from shebang of manager on PATH", func(t *testing.T) {
		cmds := &fakeCommands{paths: map[string]m.Path{"conda": m.Path(filepath.Join(ref, "bin", "conda"))}}

		got, err := NewBackfiller(newRecordingFS(), cmds).LocateReference(context.Background(), BackfillOptions{})
		require.NoError(t, err)
		assert.Equal(t, m.Path(ref), got)
	})

	t.Run("configured reference wins", func(t *testing.T) {
		got, err := NewBackfiller(newRecordingFS(), &fakeCommands{}).LocateReference(
			context.Background(), BackfillOptions{Reference: m.Path(ref)})
		require.NoError(t, err)
		assert.Equal(t, m.Path(ref), got)
	})

	t.Run("manager missing", func(t *testing.T) {
		_, err := NewBackfiller(newRecordingFS(), &fakeCommands{}).LocateReference(context.Background(), BackfillOptions{})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrMissingReferenceInstall)
	})

	t.Run("manager without python shebang", func(t *testing.T) {
		script := filepath.Join(tempRoot(t), "conda")
		writeFile(t, script, "#!/bin/sh\nexec true\n")
		cmds := &fakeCommands{paths: map[string]m.Path{"conda": m.Path(script)}}

		_, err := NewBackfiller(newRecordingFS(), cmds).LocateReference(context.Background(), BackfillOptions{})
		assert.ErrorIs(t, err, ErrMissingReferenceInstall)
	})
}

func TestBackfiller_Backfill(t *testing.T) {
	ref := newReferenceInstall(t)
	runtime := newRuntime(t)

	copied, err := NewBackfiller(newRecordingFS(), &fakeCommands{}).Backfill(
		context.Background(), m.Path(runtime), BackfillOptions{Reference: m.Path(ref)})
	require.NoError(t, err)
	assert.Equal(t, []string{"conda", "ruamel_yaml", "requests"}, copied)

	site := filepath.Join(runtime, "lib", "python3.11", "site-packages")
	assert.Equal(t, "def main(): pass\n", readFile(t, filepath.Join(site, "conda", "cli", "main.py")))
	assert.Equal(t, "get = None\n", readFile(t, filepath.Join(site, "requests.py")))
	assert.Equal(t, "# own enum\n", readFile(t, filepath.Join(site, "enum", "__init__.py")))

	copied, err = NewBackfiller(newRecordingFS(), &fakeCommands{}).Backfill(
		context.Background(), m.Path(runtime), BackfillOptions{Reference: m.Path(ref)})
	require.NoError(t, err)
	assert.Empty(t, copied)
}

func TestBackfiller_DryRun(t *testing.T) {
	ref := newReferenceInstall(t)
	runtime := newRuntime(t)
	fs := newRecordingFS()

	copied, err := NewBackfiller(fs, &fakeCommands{}).Backfill(
		context.Background(), m.Path(runtime), BackfillOptions{Reference: m.Path(ref), DryRun: true})
	require.NoError(t, err)
	assert.Len(t, copied, 3)
	assert.Empty(t, fs.writes)
}

func TestBackfiller_MissingPackage(t *testing.T) {
	ref := newReferenceInstall(t)
	runtime := newRuntime(t)

	_, err := NewBackfiller(newRecordingFS(), &fakeCommands{}).Backfill(
		context.Background(), m.Path(runtime), BackfillOptions{Reference: m.Path(ref), Packages: []string{"numpy"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingReferenceInstall)
	assert.Contains(t, err.Error(), "numpy")
}
