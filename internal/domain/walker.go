package domain

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"gooze.dev/pkg/rebundle/internal/adapter"
	m "gooze.dev/pkg/rebundle/internal/model"
)

// WalkerOptions configures a Walker.
type WalkerOptions struct {
	Classifier ClassifierOptions
	// DryRun plans a pass without touching the tree.
	DryRun bool
}

// Walker applies one Substitution to every entry below a runtime root.
type Walker struct {
	fs     adapter.RuntimeFSAdapter
	text   *TextPatcher
	binary *BinaryPatcher
	opts   WalkerOptions
	newID  func() string
	now    func() time.Time
}

// NewWalker constructs a Walker.
func NewWalker(fsAdapter adapter.RuntimeFSAdapter, opts WalkerOptions) *Walker {
	return &Walker{
		fs:     fsAdapter,
		text:   NewTextPatcher(fsAdapter),
		binary: NewBinaryPatcher(fsAdapter),
		opts:   opts,
		newID:  uuid.NewString,
		now:    time.Now,
	}
}

// DryRun reports whether the walker only plans.
func (w *Walker) DryRun() bool {
	return w.opts.DryRun
}

type retarget struct {
	link    m.Path
	newText string
}

// pass holds the state of a single Walk call.
type pass struct {
	*Walker
	ctx        context.Context
	classifier *Classifier
	sub        m.Substitution
	report     *m.PassReport
	// active holds materialized directory targets currently being descended.
	active    map[m.Path]bool
	retargets []retarget
	plan      []m.Candidate
}

// Walk runs a pass of sub over root. Discovery (link retargeting decisions,
// materialization of external links and classification) completes before
// any file content is rewritten, so a pass that has to refuse a binary file
// fails without patching anything.
func (w *Walker) Walk(ctx context.Context, root m.Path, sub m.Substitution) (m.PassReport, error) {
	classifier, err := NewClassifier(w.fs, root, w.opts.Classifier)
	if err != nil {
		return m.PassReport{}, err
	}

	report := m.NewPassReport(w.newID(), classifier.Root(), sub)
	report.DryRun = w.opts.DryRun
	report.StartedAt = w.now()

	p := &pass{
		Walker:     w,
		ctx:        ctx,
		classifier: classifier,
		sub:        sub,
		report:     &report,
		active:     make(map[m.Path]bool),
	}

	slog.DebugContext(ctx, "Walking runtime root", "root", report.Root, "substitution", sub.String(), "dryRun", w.opts.DryRun)

	err = p.discover(classifier.Root())
	if err == nil {
		err = p.checkGrowth()
	}

	if err == nil && !w.opts.DryRun {
		err = p.apply()
	}

	if w.opts.DryRun {
		p.recordPlan()
	}

	report.Duration = w.now().Sub(report.StartedAt)

	if err != nil {
		slog.ErrorContext(ctx, "Relocation pass failed", "root", report.Root, "error", err)
		return report, err
	}

	slog.InfoContext(ctx, "Relocation pass finished",
		"root", report.Root,
		"text", len(report.Text),
		"binary", len(report.Binary),
		"materialized", len(report.Materialized),
		"retargeted", len(report.Retargeted))

	return report, nil
}

func (p *pass) discover(dir m.Path) error {
	entries, err := p.fs.ReadDir(dir)
	if err != nil {
		return &ClassificationError{Path: dir, Err: err}
	}

	for _, entry := range entries {
		if err := p.visit(dir.Join(entry.Name())); err != nil {
			return err
		}
	}

	return nil
}

func (p *pass) visit(path m.Path) error {
	retargeted, err := p.planRetarget(path)
	if err != nil {
		return err
	}

	if retargeted {
		p.report.Counts[m.InternalSymlink]++
		return nil
	}

	cand, err := p.classifier.Classify(path)
	if err != nil {
		return err
	}

	p.report.Counts[cand.Kind]++

	switch cand.Kind {
	case m.Directory:
		return p.discover(path)
	case m.ExternalSymlink:
		return p.materialize(cand)
	case m.RegularText, m.RegularBinary:
		return p.precheck(cand)
	case m.Skipped:
		if cand.Reason == "dangling" {
			slog.DebugContext(p.ctx, "Skipping dangling symlink", "path", path)
		}
	}

	return nil
}

// planRetarget records links whose text still names the old prefix.
// Such links are rewritten, never materialized.
func (p *pass) planRetarget(path m.Path) (bool, error) {
	if p.sub.IsIdentity() {
		return false, nil
	}

	info, err := p.fs.Lstat(path)
	if err != nil {
		return false, &ClassificationError{Path: path, Err: err}
	}

	if info.Mode()&fs.ModeSymlink == 0 {
		return false, nil
	}

	text, err := p.fs.Readlink(path)
	if err != nil {
		return false, &ClassificationError{Path: path, Err: err}
	}

	if !bytes.Contains([]byte(text), p.sub.Old) {
		return false, nil
	}

	newText, _ := ReplaceText([]byte(text), p.sub)
	p.retargets = append(p.retargets, retarget{link: path, newText: string(newText)})

	return true, nil
}

func (p *pass) materialize(cand m.Candidate) error {
	if p.opts.DryRun {
		p.report.Materialized = append(p.report.Materialized, p.rel(cand.Path))
		return nil
	}

	if p.active[cand.Target] || Within(cand.Target, p.classifier.Root()) {
		return fmt.Errorf("%s -> %s: %w", cand.Path, cand.Target, ErrMaterializeCycle)
	}

	info, err := p.fs.Lstat(cand.Target)
	if err != nil {
		return &ClassificationError{Path: cand.Target, Err: err}
	}

	if err := p.fs.Remove(cand.Path); err != nil {
		return &PatchIOError{Path: cand.Path, Err: err}
	}

	if info.IsDir() {
		err = p.fs.CopyDir(cand.Target, cand.Path)
	} else {
		err = p.fs.CopyFile(cand.Target, cand.Path)
	}

	if err != nil {
		return &PatchIOError{Path: cand.Path, Err: fmt.Errorf("materialize %s: %w", cand.Target, err)}
	}

	slog.DebugContext(p.ctx, "Materialized external symlink", "path", cand.Path, "target", cand.Target)
	p.report.Materialized = append(p.report.Materialized, p.rel(cand.Path))

	if !info.IsDir() {
		return p.visitCopy(cand.Path)
	}

	p.active[cand.Target] = true
	defer delete(p.active, cand.Target)

	return p.visitCopy(cand.Path)
}

// visitCopy classifies a freshly materialized entry like any other.
func (p *pass) visitCopy(path m.Path) error {
	cand, err := p.classifier.Classify(path)
	if err != nil {
		return err
	}

	p.report.Counts[cand.Kind]++

	switch cand.Kind {
	case m.Directory:
		return p.discover(path)
	case m.RegularText, m.RegularBinary:
		return p.precheck(cand)
	}

	return nil
}

// precheck plans a regular file when it holds the old prefix.
func (p *pass) precheck(cand m.Candidate) error {
	if p.sub.IsIdentity() || len(p.sub.Old) == 0 {
		return nil
	}

	data, err := p.fs.ReadFile(cand.Path)
	if err != nil {
		return &ClassificationError{Path: cand.Path, Err: err}
	}

	if bytes.Contains(data, p.sub.Old) {
		p.plan = append(p.plan, cand)
	}

	return nil
}

func (p *pass) checkGrowth() error {
	if !p.sub.Grows() {
		return nil
	}

	for _, cand := range p.plan {
		if cand.Kind == m.RegularBinary {
			return &BinaryGrowthError{Path: cand.Path, OldLen: len(p.sub.Old), NewLen: len(p.sub.New)}
		}
	}

	return nil
}

func (p *pass) apply() error {
	for _, r := range p.retargets {
		if err := p.fs.Remove(r.link); err != nil {
			return &PatchIOError{Path: r.link, Err: err}
		}

		if err := p.fs.Symlink(r.newText, r.link); err != nil {
			return &PatchIOError{Path: r.link, Err: err}
		}

		p.report.Retargeted = append(p.report.Retargeted, p.rel(r.link))
	}

	for _, cand := range p.plan {
		var (
			changed bool
			err     error
		)

		if cand.Kind == m.RegularText {
			changed, err = p.text.Patch(cand.Path, p.sub)
		} else {
			changed, err = p.binary.Patch(cand.Path, p.sub)
		}

		if err != nil {
			return err
		}

		if !changed {
			continue
		}

		if cand.Kind == m.RegularText {
			p.report.Text = append(p.report.Text, p.rel(cand.Path))
		} else {
			p.report.Binary = append(p.report.Binary, p.rel(cand.Path))
		}
	}

	return nil
}

// recordPlan fills the report with what a real pass would have changed.
func (p *pass) recordPlan() {
	for _, r := range p.retargets {
		p.report.Retargeted = append(p.report.Retargeted, p.rel(r.link))
	}

	for _, cand := range p.plan {
		if cand.Kind == m.RegularText {
			p.report.Text = append(p.report.Text, p.rel(cand.Path))
		} else {
			p.report.Binary = append(p.report.Binary, p.rel(cand.Path))
		}
	}
}

func (p *pass) rel(path m.Path) m.Path {
	rel, err := filepath.Rel(string(p.classifier.Root()), string(path))
	if err != nil {
		return path
	}

	return m.Path(rel)
}
