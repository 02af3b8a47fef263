package controller

import (
	"bytes"
	"context"
	"fmt"
	"sort"

	"github.com/charmbracelet/lipgloss"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"gooze.dev/pkg/rebundle/internal/domain"
	m "gooze.dev/pkg/rebundle/internal/model"
)

var (
	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Bold(true)
	infoStyle = lipgloss.NewStyle().Faint(true)
	warnStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("3")).Bold(true)
	errStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
)

// SimpleUI implements UI by printing to the command's output streams.
type SimpleUI struct {
	cmd    *cobra.Command
	styled bool
}

// NewSimpleUI creates a new SimpleUI.
func NewSimpleUI(cmd *cobra.Command, styled bool) *SimpleUI {
	return &SimpleUI{cmd: cmd, styled: styled}
}

// DisplayPassReport prints entry counts and the files a pass changed.
func (s *SimpleUI) DisplayPassReport(ctx context.Context, title string, report m.PassReport) {
	if err := ctx.Err(); err != nil {
		return
	}

	mode := ""
	if report.DryRun {
		mode = " " + s.style(warnStyle, "(dry run)")
	}

	s.printf("%s%s: %s -> %s\n", title, mode, report.OldPrefix, report.NewPrefix)
	s.printf("%s", renderCountsTable(report))

	if changes := renderChangesTable(report); changes != "" {
		s.printf("\n%s", changes)
	}
}

// DisplayPortabilize prints every step of a portabilize run.
func (s *SimpleUI) DisplayPortabilize(ctx context.Context, result domain.PortabilizeResult) {
	if err := ctx.Err(); err != nil {
		return
	}

	s.printf("Runtime: %s\n", result.Bundle.Runtime)

	for _, lib := range result.InstallNames {
		s.printf("install name: %s\n", lib)
	}

	s.DisplayPassReport(ctx, "Externalize links", result.Externalize)

	scripts := make([]string, 0, len(result.Diffs))
	for script := range result.Diffs {
		scripts = append(scripts, script)
	}

	sort.Strings(scripts)

	for _, script := range scripts {
		if diff := result.Diffs[script]; diff != "" {
			s.printf("\n%s", diff)
		}
	}

	for _, pkg := range result.Backfilled {
		s.printf("backfilled: %s\n", pkg)
	}

	s.printf("\n")
	s.DisplayPassReport(ctx, "Relocate", result.Relocation)

	for _, link := range result.Links {
		s.printf("library link: %s\n", link)
	}

	if result.LedgerWritten {
		s.printf("%s ledger %s records %s\n", s.style(okStyle, "portable"), result.Bundle.Ledger, result.InstallPrefix)
	}
}

// DisplayGuard prints the outcome of a guard check.
func (s *SimpleUI) DisplayGuard(ctx context.Context, result m.GuardResult) {
	if err := ctx.Err(); err != nil {
		return
	}

	s.printf("%s %s\n", s.statusLabel(result.Status), result.Actual)

	if result.Recorded != "" && result.Recorded != result.Actual {
		s.printf("  recorded prefix: %s\n", result.Recorded)
	}

	if result.Report != nil {
		s.printf("  patched %d file(s), materialized %d link(s)\n", result.Report.Patched(), len(result.Report.Materialized))
	}
}

// DisplayStatus prints the ledger and location of a bundle.
func (s *SimpleUI) DisplayStatus(ctx context.Context, status m.BundleStatus) {
	if err := ctx.Err(); err != nil {
		return
	}

	var tableBuffer bytes.Buffer

	table := tablewriter.NewWriter(&tableBuffer)
	table.SetBorder(false)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetAutoWrapText(false)

	recorded := status.Recorded

	switch {
	case !status.HasLedger:
		recorded = "(no ledger)"
	case status.LedgerErr != nil:
		recorded = fmt.Sprintf("(corrupt: %v)", status.LedgerErr)
	}

	table.Append([]string{"Runtime", status.Runtime.String()})
	table.Append([]string{"Ledger", status.Ledger.String()})
	table.Append([]string{"Recorded prefix", recorded})
	table.Append([]string{"Actual prefix", status.Actual})
	table.Append([]string{"Writable", fmt.Sprintf("%t", status.Writable)})
	table.Render()

	s.printf("%s", tableBuffer.String())

	switch {
	case !status.HasLedger:
		s.printf("%s\n", s.style(warnStyle, "not portable"))
	case status.NeedsRelocation():
		s.printf("%s\n", s.style(warnStyle, "relocation pending"))
	default:
		s.printf("%s\n", s.style(okStyle, "up to date"))
	}
}

// DisplayWarning prints msg to the error stream.
func (s *SimpleUI) DisplayWarning(ctx context.Context, msg string) {
	if err := ctx.Err(); err != nil {
		return
	}

	_, _ = fmt.Fprintf(s.cmd.ErrOrStderr(), "%s %s\n", s.style(warnStyle, "warning:"), msg)
}

func (s *SimpleUI) statusLabel(status m.GuardStatus) string {
	label := status.String()

	switch status {
	case m.Relocated:
		return s.style(okStyle, label)
	case m.Unchanged:
		return s.style(infoStyle, label)
	case m.Degraded:
		return s.style(errStyle, label)
	case m.NoLedger:
		return s.style(warnStyle, label)
	}

	return label
}

func (s *SimpleUI) style(style lipgloss.Style, text string) string {
	if !s.styled {
		return text
	}

	return style.Render(text)
}

func (s *SimpleUI) printf(format string, args ...interface{}) {
	_, _ = fmt.Fprintf(s.cmd.OutOrStdout(), format, args...)
}

var kindOrder = []m.Kind{m.Directory, m.RegularText, m.RegularBinary, m.ExternalSymlink, m.InternalSymlink, m.Skipped}

func renderCountsTable(report m.PassReport) string {
	var tableBuffer bytes.Buffer

	table := tablewriter.NewWriter(&tableBuffer)
	table.SetHeader([]string{"Kind", "Entries"})
	table.SetBorder(false)
	table.SetCenterSeparator("")
	table.SetColumnAlignment([]int{tablewriter.ALIGN_LEFT, tablewriter.ALIGN_RIGHT})

	total := 0

	for _, kind := range kindOrder {
		n := report.Counts[kind]
		if n == 0 {
			continue
		}

		table.Append([]string{kind.String(), fmt.Sprintf("%d", n)})

		total += n
	}

	table.SetFooter([]string{"Total", fmt.Sprintf("%d", total)})
	table.Render()

	return tableBuffer.String()
}

func renderChangesTable(report m.PassReport) string {
	rows := make([][]string, 0, report.Patched()+len(report.Materialized)+len(report.Retargeted))

	for _, path := range report.Text {
		rows = append(rows, []string{path.String(), "text"})
	}

	for _, path := range report.Binary {
		rows = append(rows, []string{path.String(), "binary"})
	}

	for _, path := range report.Materialized {
		rows = append(rows, []string{path.String(), "materialized"})
	}

	for _, path := range report.Retargeted {
		rows = append(rows, []string{path.String(), "retargeted"})
	}

	if len(rows) == 0 {
		return ""
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i][0] < rows[j][0] })

	var tableBuffer bytes.Buffer

	table := tablewriter.NewWriter(&tableBuffer)
	table.SetHeader([]string{"Path", "Change"})
	table.SetBorder(false)
	table.SetCenterSeparator("")
	table.SetAutoWrapText(false)
	table.AppendBulk(rows)
	table.Render()

	return tableBuffer.String()
}
