// Package model defines the data structures shared by the relocation engine.
package model

import (
	"bytes"
	"path/filepath"
)

// Path represents a file system path.
type Path string

// String returns the path as a plain string.
func (p Path) String() string {
	return string(p)
}

// Join appends elements to the path.
func (p Path) Join(elem ...string) Path {
	return Path(filepath.Join(append([]string{string(p)}, elem...)...))
}

// Base returns the last element of the path.
func (p Path) Base() string {
	return filepath.Base(string(p))
}

// Dir returns all but the last element of the path.
func (p Path) Dir() Path {
	return Path(filepath.Dir(string(p)))
}

// Substitution is the (old prefix, new prefix) pair used for a whole pass.
// Both sides are compared and written byte for byte.
type Substitution struct {
	Old []byte
	New []byte
}

// NewSubstitution builds a Substitution from two prefix strings.
func NewSubstitution(oldPrefix, newPrefix string) Substitution {
	return Substitution{Old: []byte(oldPrefix), New: []byte(newPrefix)}
}

// IsIdentity reports whether the pass would not change any content.
func (s Substitution) IsIdentity() bool {
	return bytes.Equal(s.Old, s.New)
}

// Grows reports whether the new prefix is longer than the old one, which
// fixed-length binary content cannot absorb.
func (s Substitution) Grows() bool {
	return len(s.New) > len(s.Old)
}

// Idempotent reports whether a second pass with the same substitution is a
// no-op. That fails only when the new prefix still contains the old one.
func (s Substitution) Idempotent() bool {
	return s.IsIdentity() || !bytes.Contains(s.New, s.Old)
}

func (s Substitution) String() string {
	return string(s.Old) + " -> " + string(s.New)
}

