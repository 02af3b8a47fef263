package adapter

import (
	"bytes"
	"context"
	"os/exec"
	"time"

	"golang.org/x/sys/unix"

	m "gooze.dev/pkg/rebundle/internal/model"
)

// CommandAdapter abstracts subprocess operations: locating tools on PATH,
// running them, and handing the process over to the bundled program.
type CommandAdapter interface {
	// LookPath resolves an executable name against PATH.
	LookPath(name string) (m.Path, error)

	// Run executes name with args in dir and returns combined stdout/stderr.
	Run(ctx context.Context, dir, name string, args ...string) (output string, err error)

	// Exec replaces the current process image. It only returns on failure.
	Exec(path m.Path, argv []string, env []string) error
}

// LocalCommandAdapter provides a concrete implementation using os/exec.
type LocalCommandAdapter struct {
	timeout time.Duration
}

// NewLocalCommandAdapter constructs a LocalCommandAdapter with a default 2m timeout.
func NewLocalCommandAdapter() *LocalCommandAdapter {
	return &LocalCommandAdapter{
		timeout: 2 * time.Minute,
	}
}

// LookPath resolves name on PATH.
func (a *LocalCommandAdapter) LookPath(name string) (m.Path, error) {
	path, err := exec.LookPath(name)
	if err != nil {
		return "", err
	}

	return m.Path(path), nil
}

// Run executes a command and captures its output.
func (a *LocalCommandAdapter) Run(ctx context.Context, dir, name string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	// #nosec G204 - tool name and args come from operator configuration
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer

	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	output := stdout.String() + stderr.String()

	return output, err
}

// Exec replaces the running process with path.
func (a *LocalCommandAdapter) Exec(path m.Path, argv []string, env []string) error {
	return unix.Exec(string(path), argv, env)
}
