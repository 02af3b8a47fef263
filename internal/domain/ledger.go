package domain

import (
	"errors"
	"io/fs"
	"path/filepath"
	"strings"

	"gooze.dev/pkg/rebundle/internal/adapter"
	m "gooze.dev/pkg/rebundle/internal/model"
)

const ledgerPerm = 0o644

// Ledger is the one-line file recording the prefix the runtime was last
// relocated to.
type Ledger struct {
	fs   adapter.RuntimeFSAdapter
	path m.Path
}

// NewLedger returns the ledger stored at path.
func NewLedger(fsAdapter adapter.RuntimeFSAdapter, path m.Path) *Ledger {
	return &Ledger{fs: fsAdapter, path: path}
}

// Path returns the ledger location.
func (l *Ledger) Path() m.Path {
	return l.path
}

// Read returns the recorded prefix. ok is false when no ledger exists.
func (l *Ledger) Read() (prefix string, ok bool, err error) {
	data, err := l.fs.ReadFile(l.path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", false, nil
	}

	if err != nil {
		return "", false, err
	}

	prefix, err = ParseLedger(l.path, data)
	if err != nil {
		return "", true, err
	}

	return prefix, true, nil
}

// Write replaces the ledger atomically, so readers see either the old or
// the new prefix.
func (l *Ledger) Write(prefix string) error {
	if !filepath.IsAbs(prefix) {
		return &LedgerCorruptError{Path: l.path, Reason: "refusing to record relative prefix " + prefix}
	}

	return l.fs.WriteFileAtomic(l.path, []byte(prefix+"\n"), ledgerPerm)
}

// ParseLedger validates ledger content: exactly one absolute path. Leading
// and trailing whitespace is ignored.
func ParseLedger(path m.Path, data []byte) (string, error) {
	text := strings.TrimSpace(string(data))

	switch {
	case text == "":
		return "", &LedgerCorruptError{Path: path, Reason: "empty"}
	case strings.ContainsAny(text, "\r\n"):
		return "", &LedgerCorruptError{Path: path, Reason: "more than one line"}
	case !filepath.IsAbs(text):
		return "", &LedgerCorruptError{Path: path, Reason: "not an absolute path"}
	}

	return text, nil
}
