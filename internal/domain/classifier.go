package domain

import (
	"errors"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"gooze.dev/pkg/rebundle/internal/adapter"
	m "gooze.dev/pkg/rebundle/internal/model"
)

// sniffLen is how much of a file is inspected to tell text from binary.
const sniffLen = 3072

// ClassifierOptions controls which entries a pass ignores.
type ClassifierOptions struct {
	// SkipPatterns are glob patterns matched against base names of files.
	SkipPatterns []string
	// SkipDirs are directory base names that are never entered.
	SkipDirs []string
	// MaxFileSize skips regular files larger than this many bytes. Zero means
	// no limit.
	MaxFileSize int64
}

// DefaultClassifierOptions skips Python bytecode and its cache directories.
func DefaultClassifierOptions() ClassifierOptions {
	return ClassifierOptions{
		SkipPatterns: []string{"*.pyc", "*.pyo"},
		SkipDirs:     []string{"__pycache__"},
	}
}

// Classifier decides how each entry below a runtime root is handled.
// It never modifies the filesystem.
type Classifier struct {
	fs   adapter.RuntimeFSAdapter
	root m.Path
	opts ClassifierOptions
}

// NewClassifier builds a Classifier for the tree at root. Root is resolved
// so links can be compared against its real location.
func NewClassifier(fsAdapter adapter.RuntimeFSAdapter, root m.Path, opts ClassifierOptions) (*Classifier, error) {
	abs, err := fsAdapter.Abs(root)
	if err != nil {
		return nil, &ClassificationError{Path: root, Err: err}
	}

	resolved, err := fsAdapter.EvalSymlinks(abs)
	if err != nil {
		return nil, &ClassificationError{Path: root, Err: err}
	}

	return &Classifier{fs: fsAdapter, root: resolved, opts: opts}, nil
}

// Root returns the resolved runtime root.
func (c *Classifier) Root() m.Path {
	return c.root
}

// Classify inspects a single entry.
func (c *Classifier) Classify(path m.Path) (m.Candidate, error) {
	info, err := c.fs.Lstat(path)
	if err != nil {
		return m.Candidate{}, &ClassificationError{Path: path, Err: err}
	}

	mode := info.Mode()

	switch {
	case mode&fs.ModeSymlink != 0:
		return c.classifyLink(path)
	case mode.IsDir():
		if c.skipDir(path.Base()) {
			return m.Candidate{Path: path, Kind: m.Skipped, Reason: "excluded directory"}, nil
		}

		return m.Candidate{Path: path, Kind: m.Directory}, nil
	case !mode.IsRegular():
		return m.Candidate{Path: path, Kind: m.Skipped, Reason: "special file"}, nil
	}

	if c.skipFile(path.Base()) {
		return m.Candidate{Path: path, Kind: m.Skipped, Reason: "excluded pattern"}, nil
	}

	if c.opts.MaxFileSize > 0 && info.Size() > c.opts.MaxFileSize {
		return m.Candidate{Path: path, Kind: m.Skipped, Reason: "too large"}, nil
	}

	head, err := c.fs.ReadHead(path, sniffLen)
	if err != nil {
		return m.Candidate{}, &ClassificationError{Path: path, Err: err}
	}

	return m.Candidate{Path: path, Kind: ClassifyContent(head)}, nil
}

func (c *Classifier) classifyLink(path m.Path) (m.Candidate, error) {
	target, err := c.fs.EvalSymlinks(path)
	if err != nil {
		reason := "unresolvable"
		if errors.Is(err, fs.ErrNotExist) {
			reason = "dangling"
		}

		return m.Candidate{Path: path, Kind: m.Skipped, Reason: reason}, nil
	}

	kind := m.ExternalSymlink
	if Within(c.root, target) {
		kind = m.InternalSymlink
	}

	return m.Candidate{Path: path, Kind: kind, Target: target}, nil
}

func (c *Classifier) skipDir(name string) bool {
	for _, dir := range c.opts.SkipDirs {
		if dir == name {
			return true
		}
	}

	return false
}

func (c *Classifier) skipFile(name string) bool {
	for _, pattern := range c.opts.SkipPatterns {
		if ok, _ := filepath.Match(pattern, name); ok {
			return true
		}
	}

	return false
}

// ClassifyContent tells text from binary by sniffing content. A file is text
// when its detected type is text/plain or descends from it.
func ClassifyContent(data []byte) m.Kind {
	for mt := mimetype.Detect(data); mt != nil; mt = mt.Parent() {
		if mt.Is("text/plain") {
			return m.RegularText
		}
	}

	return m.RegularBinary
}

// Within reports whether path equals root or lies below it.
func Within(root, path m.Path) bool {
	rel, err := filepath.Rel(string(root), string(path))
	if err != nil {
		return false
	}

	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
