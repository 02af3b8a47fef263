package model

import "fmt"

// Kind classifies a filesystem entry for one relocation pass.
type Kind int

const (
	// Directory entries are descended into.
	Directory Kind = iota
	// RegularText files are rewritten with literal substring replacement.
	RegularText
	// RegularBinary files are rewritten in place without changing their length.
	RegularBinary
	// ExternalSymlink links resolve outside the runtime root and get materialized.
	ExternalSymlink
	// InternalSymlink links resolve inside the runtime root and are left alone.
	InternalSymlink
	// Skipped entries are never patched (bytecode caches, excluded patterns).
	Skipped
)

var kindNames = [...]string{
	Directory:       "directory",
	RegularText:     "text",
	RegularBinary:   "binary",
	ExternalSymlink: "external-symlink",
	InternalSymlink: "internal-symlink",
	Skipped:         "skipped",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "unknown"
	}

	return kindNames[k]
}

// MarshalText lets reports carry kinds as readable names.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText parses a kind name written by MarshalText.
func (k *Kind) UnmarshalText(text []byte) error {
	for i, name := range kindNames {
		if name == string(text) {
			*k = Kind(i)
			return nil
		}
	}

	return fmt.Errorf("unknown kind %q", text)
}

// IsRegular reports whether the kind is a patchable regular file.
func (k Kind) IsRegular() bool {
	return k == RegularText || k == RegularBinary
}

// Candidate is a filesystem entry considered for patching.
type Candidate struct {
	Path Path
	Kind Kind
	// Target is the resolved link target for symlinks.
	Target Path
	// Reason explains why an entry was skipped.
	Reason string
}
