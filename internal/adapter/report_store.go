package adapter

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	m "gooze.dev/pkg/rebundle/internal/model"
)

// ReportStore persists pass reports so operators can audit what a
// relocation touched.
type ReportStore interface {
	SaveReport(path m.Path, report m.PassReport) error
	LoadReports(path m.Path) ([]m.PassReport, error)
}

// YAMLReportStore appends reports as a YAML document stream.
type YAMLReportStore struct{}

// NewReportStore constructs the default YAML-backed ReportStore.
func NewReportStore() *YAMLReportStore {
	return &YAMLReportStore{}
}

// SaveReport appends report as a new document to the file at path.
func (s *YAMLReportStore) SaveReport(path m.Path, report m.PassReport) error {
	if err := os.MkdirAll(filepath.Dir(string(path)), 0o755); err != nil {
		return fmt.Errorf("failed to create report dir: %w", err)
	}

	// #nosec G304 - report path comes from operator configuration
	f, err := os.OpenFile(string(path), os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open report file: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to stat report file: %w", err)
	}

	// Each encoder starts a fresh stream, so later documents need their own
	// separator.
	if info.Size() > 0 {
		if _, err := f.WriteString("---\n"); err != nil {
			_ = f.Close()
			return fmt.Errorf("failed to write report separator: %w", err)
		}
	}

	enc := yaml.NewEncoder(f)
	enc.SetIndent(2)

	if err := enc.Encode(report); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to encode report: %w", err)
	}

	if err := enc.Close(); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to flush report: %w", err)
	}

	return f.Close()
}

// LoadReports reads every report document stored at path.
func (s *YAMLReportStore) LoadReports(path m.Path) ([]m.PassReport, error) {
	// #nosec G304 - report path comes from operator configuration
	f, err := os.Open(string(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open report file: %w", err)
	}

	defer func() { _ = f.Close() }()

	var reports []m.PassReport

	dec := yaml.NewDecoder(f)

	for {
		var report m.PassReport

		err := dec.Decode(&report)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}

			return nil, fmt.Errorf("failed to decode report: %w", err)
		}

		reports = append(reports, report)
	}

	return reports, nil
}
