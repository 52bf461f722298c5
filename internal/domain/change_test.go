package domain

import (
	"strings"
	"testing"
)

func justified(s string) *string { return &s }

func TestBlocksPromotion(t *testing.T) {
	cases := []struct {
		name     string
		change   ChangeRecord
		expected bool
	}{
		{"critical without justification", ChangeRecord{Severity: SeverityCritical}, true},
		{"significant without justification", ChangeRecord{Severity: SeveritySignificant}, true},
		{"critical with justification", ChangeRecord{Severity: SeverityCritical, Justification: justified("reviewed against source document")}, false},
		{"critical with empty justification", ChangeRecord{Severity: SeverityCritical, Justification: justified("")}, true},
		{"minor", ChangeRecord{Severity: SeverityMinor}, false},
		{"cosmetic", ChangeRecord{Severity: SeverityCosmetic}, false},
	}

	for _, tc := range cases {
		if got := tc.change.BlocksPromotion(); got != tc.expected {
			t.Errorf("%s: expected BlocksPromotion=%v, got %v", tc.name, tc.expected, got)
		}
	}
}

func TestSummarizeChangesCounts(t *testing.T) {
	changes := []ChangeRecord{
		{Severity: SeverityCritical, ChangeType: ChangeModification, RequiresReview: true},
		{Severity: SeverityMinor, ChangeType: ChangeAddition},
		{Severity: SeverityCosmetic, ChangeType: ChangeStyle},
	}

	summary := SummarizeChanges(changes)
	if summary.TotalChanges != 3 {
		t.Errorf("expected 3 total changes, got %d", summary.TotalChanges)
	}
	if summary.BySeverity[SeverityCritical] != 1 || summary.BySeverity[SeverityMinor] != 1 {
		t.Errorf("unexpected severity counts: %+v", summary.BySeverity)
	}
	if summary.ByType[ChangeStyle] != 1 {
		t.Errorf("unexpected type counts: %+v", summary.ByType)
	}
	if summary.RequiresReviewCount != 1 {
		t.Errorf("expected 1 change requiring review, got %d", summary.RequiresReviewCount)
	}
	if !summary.RequiresMedicalReview {
		t.Error("a critical change must require medical review")
	}
	if !strings.HasPrefix(summary.ClinicalImpact, "HIGH IMPACT") {
		t.Errorf("unexpected impact text %q", summary.ClinicalImpact)
	}
}

func TestSummarizeChangesSignificantThreshold(t *testing.T) {
	two := []ChangeRecord{
		{Severity: SeveritySignificant},
		{Severity: SeveritySignificant},
	}
	if SummarizeChanges(two).RequiresMedicalReview {
		t.Error("two significant changes should not require medical review")
	}

	three := append(two, ChangeRecord{Severity: SeveritySignificant})
	if !SummarizeChanges(three).RequiresMedicalReview {
		t.Error("three significant changes must require medical review")
	}
}

func TestClinicalImpactDescriptions(t *testing.T) {
	added := ChangeRecord{ModifiedText: "developed anaphylaxis"}
	if !strings.HasPrefix(added.ClinicalImpact(), "Added new information") {
		t.Errorf("unexpected impact for addition: %q", added.ClinicalImpact())
	}

	removed := ChangeRecord{OriginalText: "felt fine"}
	if !strings.HasPrefix(removed.ClinicalImpact(), "Removed information") {
		t.Errorf("unexpected impact for deletion: %q", removed.ClinicalImpact())
	}

	modified := ChangeRecord{OriginalText: "felt fine", ModifiedText: "developed anaphylaxis"}
	if !strings.HasPrefix(modified.ClinicalImpact(), "Modified information") {
		t.Errorf("unexpected impact for modification: %q", modified.ClinicalImpact())
	}
}

func TestParseRole(t *testing.T) {
	if _, err := ParseRole("reviewer"); err != nil {
		t.Fatalf("reviewer must parse: %v", err)
	}
	if _, err := ParseRole("superuser"); err == nil {
		t.Fatal("unknown roles must be rejected")
	}

	if !RoleReviewer.Capabilities().CanApproveCases {
		t.Error("reviewers must be able to approve cases")
	}
	if RoleReadOnly.Capabilities().CanEditDrafts {
		t.Error("readonly must not edit drafts")
	}
	if RoleDrafter.Capabilities().CanApproveCases {
		t.Error("drafters must not approve cases")
	}
}
