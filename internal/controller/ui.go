// Package controller renders relocation results for the command line.
package controller

import (
	"context"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"gooze.dev/pkg/rebundle/internal/domain"
	m "gooze.dev/pkg/rebundle/internal/model"
)

// UI defines how command results are shown to the user.
type UI interface {
	DisplayPassReport(ctx context.Context, title string, report m.PassReport)
	DisplayPortabilize(ctx context.Context, result domain.PortabilizeResult)
	DisplayGuard(ctx context.Context, result m.GuardResult)
	DisplayStatus(ctx context.Context, status m.BundleStatus)
	DisplayWarning(ctx context.Context, msg string)
}

// NewUI returns the UI for cmd. Styling is only applied on terminals.
func NewUI(cmd *cobra.Command, tty bool) UI {
	return NewSimpleUI(cmd, tty)
}

// IsTTY reports whether f is attached to a terminal.
func IsTTY(f *os.File) bool {
	if f == nil {
		return false
	}

	return term.IsTerminal(int(f.Fd()))
}
