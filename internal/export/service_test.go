package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/pvsentinel/narrativecore/internal/domain"
	"github.com/pvsentinel/narrativecore/internal/repository"
	"github.com/pvsentinel/narrativecore/internal/review"
	"github.com/pvsentinel/narrativecore/internal/terms"
	"github.com/pvsentinel/narrativecore/internal/versions"
)

func newTestExport(t *testing.T) (*Service, *versions.Service) {
	t.Helper()
	registry, err := terms.NewRegistry("")
	if err != nil {
		t.Fatalf("failed to build terms registry: %v", err)
	}
	store := versions.NewService(
		repository.NewMemoryVersionRepository(),
		repository.NewMemoryChangeRepository(),
		terms.NewClassifier(registry, 0),
		review.NewGate(),
	)
	return NewService(store), store
}

func seedCase(t *testing.T, store *versions.Service, caseID string) {
	t.Helper()
	ctx := context.Background()
	texts := []string{
		"Patient took drug X, felt fine",
		"Patient took drug X, developed anaphylaxis",
	}
	for _, text := range texts {
		if _, err := store.Append(ctx, versions.AppendRequest{CaseID: caseID, Text: text, AuthorID: "drafter-1"}); err != nil {
			t.Fatalf("seed append failed: %v", err)
		}
	}
}

func TestBuildReportAggregatesCase(t *testing.T) {
	s, store := newTestExport(t)
	seedCase(t, store, "CASE-EXP-1")

	report, err := s.BuildReport(context.Background(), "CASE-EXP-1")
	if err != nil {
		t.Fatalf("build report failed: %v", err)
	}
	if len(report.Versions) != 2 {
		t.Errorf("expected 2 versions, got %d", len(report.Versions))
	}
	if len(report.Changes) != 1 {
		t.Errorf("expected 1 change record, got %d", len(report.Changes))
	}
	if !report.Summary.RequiresMedicalReview {
		t.Error("critical change must flag medical review in the summary")
	}
}

func TestBuildReportUnknownCase(t *testing.T) {
	s, _ := newTestExport(t)
	if _, err := s.BuildReport(context.Background(), "NO-SUCH-CASE"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestWriteWorkbookSheets(t *testing.T) {
	s, store := newTestExport(t)
	seedCase(t, store, "CASE-EXP-2")

	var buf bytes.Buffer
	if err := s.WriteWorkbook(context.Background(), "CASE-EXP-2", &buf); err != nil {
		t.Fatalf("write workbook failed: %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("reopen workbook failed: %v", err)
	}
	defer f.Close()

	for _, sheet := range []string{"Versions", "Changes", "Summary"} {
		if idx, _ := f.GetSheetIndex(sheet); idx < 0 {
			t.Errorf("workbook missing sheet %q", sheet)
		}
	}

	rows, err := f.GetRows("Versions")
	if err != nil {
		t.Fatalf("read versions sheet: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header plus 2 version rows, got %d rows", len(rows))
	}
	if rows[0][0] != "Version" {
		t.Errorf("unexpected versions header: %v", rows[0])
	}

	changeRows, err := f.GetRows("Changes")
	if err != nil {
		t.Fatalf("read changes sheet: %v", err)
	}
	if len(changeRows) != 2 {
		t.Fatalf("expected header plus 1 change row, got %d rows", len(changeRows))
	}
}

func TestWriteCSVChangeLog(t *testing.T) {
	s, store := newTestExport(t)
	seedCase(t, store, "CASE-EXP-3")

	var buf bytes.Buffer
	if err := s.WriteCSV(context.Background(), "CASE-EXP-3", &buf); err != nil {
		t.Fatalf("write csv failed: %v", err)
	}

	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("parse csv failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected header plus 1 change row, got %d", len(records))
	}
	if records[0][0] != "Change ID" {
		t.Errorf("unexpected csv header: %v", records[0])
	}
	row := records[1]
	if row[4] != string(domain.SeverityCritical) {
		t.Errorf("expected critical severity in csv row, got %q", row[4])
	}
	if !strings.Contains(row[5], "anaphylaxis") {
		t.Errorf("matched clinical terms missing from csv row: %q", row[5])
	}
}

func TestFileName(t *testing.T) {
	if got := FileName("CASE 001/β", "csv"); got != "audit-case-001.csv" {
		t.Errorf("unexpected file name %q", got)
	}
	if got := FileName("", "xlsx"); got != "audit-case.xlsx" {
		t.Errorf("unexpected fallback file name %q", got)
	}
}
