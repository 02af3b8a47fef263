package domain

import (
	"bytes"

	"gooze.dev/pkg/rebundle/internal/adapter"
	m "gooze.dev/pkg/rebundle/internal/model"
)

// TextPatcher rewrites text files with literal prefix replacement.
type TextPatcher struct {
	fs adapter.RuntimeFSAdapter
}

// NewTextPatcher constructs a TextPatcher.
func NewTextPatcher(fsAdapter adapter.RuntimeFSAdapter) *TextPatcher {
	return &TextPatcher{fs: fsAdapter}
}

// Patch replaces every occurrence of the old prefix in path. Files without
// an occurrence are not written.
func (p *TextPatcher) Patch(path m.Path, sub m.Substitution) (bool, error) {
	data, err := p.fs.ReadFile(path)
	if err != nil {
		return false, &PatchIOError{Path: path, Err: err}
	}

	out, n := ReplaceText(data, sub)
	if n == 0 {
		return false, nil
	}

	if err := p.fs.Overwrite(path, out); err != nil {
		return false, &PatchIOError{Path: path, Err: err}
	}

	return true, nil
}

// ReplaceText returns data with every non-overlapping occurrence of the old
// prefix replaced, and the number of occurrences.
func ReplaceText(data []byte, sub m.Substitution) ([]byte, int) {
	if len(sub.Old) == 0 {
		return data, 0
	}

	n := bytes.Count(data, sub.Old)
	if n == 0 {
		return data, 0
	}

	return bytes.ReplaceAll(data, sub.Old, sub.New), n
}
