package domain

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	m "gooze.dev/pkg/rebundle/internal/model"
)

func TestReplaceText(t *testing.T) {
	sub := m.NewSubstitution("/build/old/app", "/opt/new")

	out, n := ReplaceText([]byte("a=/build/old/app/bin:/build/old/app/lib\n"), sub)
	assert.Equal(t, 2, n)
	assert.Equal(t, "a=/opt/new/bin:/opt/new/lib\n", string(out))

	out, n = ReplaceText([]byte("nothing here"), sub)
	assert.Zero(t, n)
	assert.Equal(t, "nothing here", string(out))

	out, n = ReplaceText([]byte("x"), m.NewSubstitution("", "/y"))
	assert.Zero(t, n)
	assert.Equal(t, "x", string(out))
}

func TestTextPatcher_Patch(t *testing.T) {
	root := tempRoot(t)
	path := filepath.Join(root, "app.txt")
	writeFile(t, path, "/build/old/app")
	require.NoError(t, os.Chmod(path, 0o755))

	fs := newRecordingFS()
	changed, err := NewTextPatcher(fs).Patch(m.Path(path), m.NewSubstitution("/build/old/app", "/opt/new"))
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, "/opt/new", readFile(t, path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())
}

func TestTextPatcher_AbsentPrefixNotWritten(t *testing.T) {
	root := tempRoot(t)
	path := filepath.Join(root, "notes.txt")
	writeFile(t, path, "unrelated\n")

	fs := newRecordingFS()
	changed, err := NewTextPatcher(fs).Patch(m.Path(path), m.NewSubstitution("/build/old/app", "/opt/new"))
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Empty(t, fs.writes)
	assert.Equal(t, "unrelated\n", readFile(t, path))
}

func TestTextPatcher_WriteFailure(t *testing.T) {
	root := tempRoot(t)
	path := filepath.Join(root, "app.txt")
	writeFile(t, path, "/build/old/app")

	fs := newRecordingFS()
	fs.failWrite[m.Path(path)] = os.ErrPermission

	_, err := NewTextPatcher(fs).Patch(m.Path(path), m.NewSubstitution("/build/old/app", "/opt/new"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPatchIO))
	assert.True(t, errors.Is(err, os.ErrPermission))
	assert.Equal(t, "/build/old/app", readFile(t, path))
}
