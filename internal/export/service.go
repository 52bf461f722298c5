// Package export renders the audit trail of a case into regulator-facing
// files. The XLSX workbook mirrors what auditors receive during inspections;
// the CSV variant feeds downstream tooling.
package export

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/pvsentinel/narrativecore/internal/domain"
	"github.com/pvsentinel/narrativecore/internal/versions"
)

var changeHeaders = []string{
	"Change ID",
	"Case ID",
	"Version",
	"Change Type",
	"Severity",
	"Clinical Terms",
	"Original Text",
	"Modified Text",
	"Justification",
	"Justified By",
	"Recorded At",
}

var versionHeaders = []string{
	"Version",
	"State",
	"Source",
	"Author",
	"Word Count",
	"Completeness",
	"Compliance",
	"Integrity Hash",
	"Model",
	"Created At",
}

// Service assembles audit reports from the version store.
type Service struct {
	versions *versions.Service
}

// NewService creates an export service over the version store.
func NewService(versions *versions.Service) *Service {
	return &Service{versions: versions}
}

// AuditReport is the full audit trail of one case.
type AuditReport struct {
	CaseID      string
	GeneratedAt time.Time
	Versions    []domain.NarrativeVersion
	Changes     []domain.ChangeRecord
	Summary     domain.ComparisonSummary
}

// BuildReport loads every revision and change record for the case.
func (s *Service) BuildReport(ctx context.Context, caseID string) (AuditReport, error) {
	if strings.TrimSpace(caseID) == "" {
		return AuditReport{}, errors.New("case id is required")
	}
	revisions, err := s.versions.List(ctx, caseID)
	if err != nil {
		return AuditReport{}, fmt.Errorf("load versions: %w", err)
	}
	if len(revisions) == 0 {
		return AuditReport{}, fmt.Errorf("case %s: %w", caseID, domain.ErrNotFound)
	}
	changes, err := s.versions.ChangesForCase(ctx, caseID)
	if err != nil {
		return AuditReport{}, fmt.Errorf("load change records: %w", err)
	}
	return AuditReport{
		CaseID:      caseID,
		GeneratedAt: time.Now().UTC(),
		Versions:    revisions,
		Changes:     changes,
		Summary:     domain.SummarizeChanges(changes),
	}, nil
}

// WriteWorkbook renders the report as an XLSX workbook with Versions,
// Changes and Summary sheets.
func (s *Service) WriteWorkbook(ctx context.Context, caseID string, w io.Writer) error {
	report, err := s.BuildReport(ctx, caseID)
	if err != nil {
		return err
	}

	f := excelize.NewFile()
	defer f.Close()

	const versionsSheet = "Versions"
	f.SetSheetName("Sheet1", versionsSheet)
	if err := writeSheetRow(f, versionsSheet, 1, toCells(versionHeaders)); err != nil {
		return err
	}
	for i, version := range report.Versions {
		row := []any{
			version.SequenceNumber,
			string(version.State),
			string(version.Source),
			version.AuthorID,
			version.WordCount,
			version.CompletenessScore,
			version.ComplianceScore,
			version.IntegrityHash,
			version.Model.ModelName,
			version.CreatedAt.UTC().Format(time.RFC3339),
		}
		if err := writeSheetRow(f, versionsSheet, i+2, row); err != nil {
			return err
		}
	}

	const changesSheet = "Changes"
	if _, err := f.NewSheet(changesSheet); err != nil {
		return fmt.Errorf("create changes sheet: %w", err)
	}
	if err := writeSheetRow(f, changesSheet, 1, toCells(changeHeaders)); err != nil {
		return err
	}
	for i, change := range report.Changes {
		if err := writeSheetRow(f, changesSheet, i+2, changeCells(change)); err != nil {
			return err
		}
	}

	const summarySheet = "Summary"
	if _, err := f.NewSheet(summarySheet); err != nil {
		return fmt.Errorf("create summary sheet: %w", err)
	}
	summaryRows := [][]any{
		{"Case ID", report.CaseID},
		{"Generated At", report.GeneratedAt.Format(time.RFC3339)},
		{"Total Versions", len(report.Versions)},
		{"Total Changes", report.Summary.TotalChanges},
		{"Critical Changes", report.Summary.BySeverity[domain.SeverityCritical]},
		{"Significant Changes", report.Summary.BySeverity[domain.SeveritySignificant]},
		{"Minor Changes", report.Summary.BySeverity[domain.SeverityMinor]},
		{"Cosmetic Changes", report.Summary.BySeverity[domain.SeverityCosmetic]},
		{"Requires Medical Review", report.Summary.RequiresMedicalReview},
		{"Clinical Impact", report.Summary.ClinicalImpact},
	}
	for i, row := range summaryRows {
		if err := writeSheetRow(f, summarySheet, i+1, row); err != nil {
			return err
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// WriteCSV renders the change log of the report as CSV.
func (s *Service) WriteCSV(ctx context.Context, caseID string, w io.Writer) error {
	report, err := s.BuildReport(ctx, caseID)
	if err != nil {
		return err
	}

	csvWriter := csv.NewWriter(w)
	if err := csvWriter.Write(changeHeaders); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	row := make([]string, len(changeHeaders))
	for _, change := range report.Changes {
		for i, cell := range changeCells(change) {
			row[i] = formatValue(cell)
		}
		if err := csvWriter.Write(row); err != nil {
			return fmt.Errorf("write change row: %w", err)
		}
	}
	csvWriter.Flush()
	if err := csvWriter.Error(); err != nil {
		return fmt.Errorf("flush rows: %w", err)
	}
	return nil
}

// FileName builds the download name for a case export, e.g.
// audit-case-001.xlsx.
func FileName(caseID, extension string) string {
	base := sanitizeFileComponent(caseID)
	if base == "" {
		base = "case"
	}
	return fmt.Sprintf("audit-%s.%s", base, extension)
}

func changeCells(change domain.ChangeRecord) []any {
	justification := ""
	if change.Justification != nil {
		justification = *change.Justification
	}
	justifiedBy := ""
	if change.JustifiedBy != nil {
		justifiedBy = *change.JustifiedBy
	}
	return []any{
		change.ID.String(),
		change.CaseID,
		change.ToVersionID.String(),
		string(change.ChangeType),
		string(change.Severity),
		strings.Join(change.ClinicalTermsMatched, "; "),
		change.OriginalText,
		change.ModifiedText,
		justification,
		justifiedBy,
		change.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func writeSheetRow(f *excelize.File, sheet string, row int, cells []any) error {
	for col, value := range cells {
		cell, err := excelize.CoordinatesToCellName(col+1, row)
		if err != nil {
			return fmt.Errorf("resolve cell %s!%d:%d: %w", sheet, row, col+1, err)
		}
		if err := f.SetCellValue(sheet, cell, value); err != nil {
			return fmt.Errorf("set cell %s!%s: %w", sheet, cell, err)
		}
	}
	return nil
}

func toCells(headers []string) []any {
	cells := make([]any, len(headers))
	for i, header := range headers {
		cells[i] = header
	}
	return cells
}

func sanitizeFileComponent(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return ""
	}
	builder := strings.Builder{}
	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z':
			builder.WriteRune(r)
		case r >= '0' && r <= '9':
			builder.WriteRune(r)
		case r == '-' || r == '_':
			builder.WriteRune(r)
		default:
			builder.WriteRune('-')
		}
	}
	return strings.Trim(builder.String(), "-")
}

func formatValue(value any) string {
	if value == nil {
		return ""
	}
	switch v := value.(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	case time.Time:
		return v.UTC().Format(time.RFC3339)
	case bool:
		if v {
			return "true"
		}
		return "false"
	default:
		return fmt.Sprintf("%v", v)
	}
}
