package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// withConfig replaces viper defaults for the duration of a test. Defaults
// rank below flags, so command-line flags in the same test still win.
func withConfig(t *testing.T, values map[string]any) {
	t.Helper()

	for key, value := range values {
		previous := viper.Get(key)
		viper.SetDefault(key, value)

		t.Cleanup(func() { viper.SetDefault(key, previous) })
	}
}

// executeRoot runs a fresh root command carrying sub with args.
func executeRoot(t *testing.T, sub *cobra.Command, args ...string) (string, string, error) {
	t.Helper()

	withConfig(t, map[string]any{logFilenameKey: filepath.Join(t.TempDir(), "rebundle.log")})

	root := newRootCmd()
	root.AddCommand(sub)

	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	root.SetOut(out)
	root.SetErr(errOut)
	root.SetArgs(args)

	err := root.Execute()

	return out.String(), errOut.String(), err
}

func writeTestFile(t *testing.T, path, content string) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
	}

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func readTestFile(t *testing.T, path string) string {
	t.Helper()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}

	return string(data)
}

func resolvedTempDir(t *testing.T) string {
	t.Helper()

	dir, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatalf("resolve temp dir: %v", err)
	}

	return dir
}
