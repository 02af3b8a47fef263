package domain

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
	"mvdan.cc/sh/v3/syntax"

	"gooze.dev/pkg/rebundle/internal/adapter"
	m "gooze.dev/pkg/rebundle/internal/model"
)

// Edit is one marker-anchored change to a script: the first line containing
// Marker and the Delete-1 lines after it are dropped and Insert takes their
// place.
type Edit struct {
	Marker string   `mapstructure:"marker" yaml:"marker"`
	Delete int      `mapstructure:"delete" yaml:"delete"`
	Insert []string `mapstructure:"insert" yaml:"insert,omitempty"`
}

// ActivateEdits makes a conda activate script resolve its environment from
// its own location instead of the build-time path.
func ActivateEdits() []Edit {
	return []Edit{
		{Marker: "checkenv", Delete: 5},
		{Marker: "_NEW_PART=", Delete: 1, Insert: []string{"_NEW_PART=$_CONDA_DIR"}},
	}
}

// DefaultShebang is the interpreter line given to entry points.
const DefaultShebang = "#!/usr/bin/env python"

// ApplyScriptPatch applies edits in order. A marker that matches no line
// fails the whole patch.
func ApplyScriptPatch(path m.Path, content []byte, edits []Edit) ([]byte, error) {
	lines := splitLines(content)

	for _, edit := range edits {
		idx := -1

		for i, line := range lines {
			if strings.Contains(line, edit.Marker) {
				idx = i
				break
			}
		}

		if idx < 0 {
			return nil, &MarkerNotFoundError{Path: path, Marker: edit.Marker}
		}

		end := idx + max(edit.Delete, 0)
		if end > len(lines) {
			end = len(lines)
		}

		patched := make([]string, 0, len(lines)-(end-idx)+len(edit.Insert))
		patched = append(patched, lines[:idx]...)

		for _, insert := range edit.Insert {
			patched = append(patched, insert+"\n")
		}

		lines = append(patched, lines[end:]...)
	}

	return []byte(strings.Join(lines, "")), nil
}

// RewriteShebang replaces the first line of content with shebang. Content
// without a shebang line is rejected.
func RewriteShebang(path m.Path, content []byte, shebang string) ([]byte, error) {
	if !bytes.HasPrefix(content, []byte("#!")) {
		return nil, &MarkerNotFoundError{Path: path, Marker: "#!"}
	}

	rest := []byte{}
	if nl := bytes.IndexByte(content, '\n'); nl >= 0 {
		rest = content[nl+1:]
	}

	out := make([]byte, 0, len(shebang)+1+len(rest))
	out = append(out, shebang...)
	out = append(out, '\n')

	return append(out, rest...), nil
}

// ValidateShell parses content as a bash script.
func ValidateShell(path m.Path, content []byte) error {
	parser := syntax.NewParser(syntax.Variant(syntax.LangBash))
	if _, err := parser.Parse(bytes.NewReader(content), path.String()); err != nil {
		return fmt.Errorf("patched script is not valid bash: %w", err)
	}

	return nil
}

// UnifiedDiff renders the change from before to after.
func UnifiedDiff(path m.Path, before, after []byte) (string, error) {
	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(before)),
		B:        difflib.SplitLines(string(after)),
		FromFile: path.String(),
		ToFile:   path.String() + " (patched)",
		Context:  3,
	})
}

// ScriptEditor reads, edits and writes back scripts inside the runtime.
type ScriptEditor struct {
	fs       adapter.RuntimeFSAdapter
	validate bool
	dryRun   bool
}

// NewScriptEditor constructs a ScriptEditor. With validate set, scripts are
// parsed as bash after patching. With dryRun set, nothing is written.
func NewScriptEditor(fsAdapter adapter.RuntimeFSAdapter, validate, dryRun bool) *ScriptEditor {
	return &ScriptEditor{fs: fsAdapter, validate: validate, dryRun: dryRun}
}

// Patch applies edits to the script at path and returns the diff.
func (e *ScriptEditor) Patch(path m.Path, edits []Edit) (string, error) {
	return e.rewrite(path, func(content []byte) ([]byte, error) {
		patched, err := ApplyScriptPatch(path, content, edits)
		if err != nil {
			return nil, err
		}

		if e.validate {
			if err := ValidateShell(path, patched); err != nil {
				return nil, err
			}
		}

		return patched, nil
	})
}

// Shebang replaces the interpreter line of the script at path.
func (e *ScriptEditor) Shebang(path m.Path, shebang string) (string, error) {
	return e.rewrite(path, func(content []byte) ([]byte, error) {
		return RewriteShebang(path, content, shebang)
	})
}

func (e *ScriptEditor) rewrite(path m.Path, edit func([]byte) ([]byte, error)) (string, error) {
	content, err := e.fs.ReadFile(path)
	if err != nil {
		return "", &PatchIOError{Path: path, Err: err}
	}

	patched, err := edit(content)
	if err != nil {
		return "", err
	}

	diff, err := UnifiedDiff(path, content, patched)
	if err != nil {
		return "", err
	}

	if e.dryRun || bytes.Equal(content, patched) {
		return diff, nil
	}

	if err := e.fs.Overwrite(path, patched); err != nil {
		return "", &PatchIOError{Path: path, Err: err}
	}

	return diff, nil
}

// splitLines splits content keeping line terminators.
func splitLines(content []byte) []string {
	if len(content) == 0 {
		return nil
	}

	return strings.SplitAfter(string(content), "\n")
}
