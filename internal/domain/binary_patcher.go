package domain

import (
	"bytes"
	"errors"
	"fmt"

	"gooze.dev/pkg/rebundle/internal/adapter"
	m "gooze.dev/pkg/rebundle/internal/model"
)

// BinaryPatcher rewrites prefixes inside binary files without changing the
// file length, so offsets in compiled objects stay valid.
type BinaryPatcher struct {
	fs adapter.RuntimeFSAdapter
}

// NewBinaryPatcher constructs a BinaryPatcher.
func NewBinaryPatcher(fsAdapter adapter.RuntimeFSAdapter) *BinaryPatcher {
	return &BinaryPatcher{fs: fsAdapter}
}

// Patch rewrites path in place. A longer new prefix is refused with a
// BinaryGrowthError and the file is left untouched.
func (p *BinaryPatcher) Patch(path m.Path, sub m.Substitution) (bool, error) {
	data, err := p.fs.ReadFile(path)
	if err != nil {
		return false, &PatchIOError{Path: path, Err: err}
	}

	out, n, err := ReplaceFixedLength(data, sub.Old, sub.New)
	if err != nil {
		var growth *BinaryGrowthError
		if errors.As(err, &growth) {
			growth.Path = path
		}

		return false, err
	}

	if n == 0 {
		return false, nil
	}

	if len(out) != len(data) {
		return false, &PatchIOError{Path: path, Err: fmt.Errorf("length changed from %d to %d", len(data), len(out))}
	}

	if err := p.fs.WriteInPlace(path, out); err != nil {
		return false, &PatchIOError{Path: path, Err: err}
	}

	return true, nil
}

// ReplaceFixedLength replaces old with new in buf while keeping its length.
//
// Each occurrence sits in a NUL-terminated string that runs to the next zero
// byte or the end of buf. All occurrences in that string are replaced, the
// rest of the string moves left, and the bytes freed by the shorter prefix
// are zeroed after it. The returned count is the number of occurrences.
func ReplaceFixedLength(buf, oldPrefix, newPrefix []byte) ([]byte, int, error) {
	if len(oldPrefix) == 0 {
		return buf, 0, nil
	}

	count := bytes.Count(buf, oldPrefix)
	if count == 0 {
		return buf, 0, nil
	}

	if len(newPrefix) > len(oldPrefix) {
		return nil, count, &BinaryGrowthError{OldLen: len(oldPrefix), NewLen: len(newPrefix)}
	}

	out := make([]byte, 0, len(buf))
	i := 0

	for i < len(buf) {
		idx := bytes.Index(buf[i:], oldPrefix)
		if idx < 0 {
			out = append(out, buf[i:]...)
			break
		}

		start := i + idx
		out = append(out, buf[i:start]...)

		end := len(buf)
		if nul := bytes.IndexByte(buf[start+len(oldPrefix):], 0); nul >= 0 {
			end = start + len(oldPrefix) + nul
		}

		segment := buf[start:end]
		replaced := bytes.ReplaceAll(segment, oldPrefix, newPrefix)
		out = append(out, replaced...)
		out = append(out, make([]byte, len(segment)-len(replaced))...)
		i = end
	}

	return out, count, nil
}
