package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ChangeType describes what kind of edit a change block represents.
type ChangeType string

const (
	ChangeAddition       ChangeType = "addition"
	ChangeDeletion       ChangeType = "deletion"
	ChangeModification   ChangeType = "modification"
	ChangeReorder        ChangeType = "reorder"
	ChangeStyle          ChangeType = "style_change"
	ChangeClinicalUpdate ChangeType = "clinical_update"
)

// Severity buckets a change by its clinical weight.
type Severity string

const (
	SeverityCritical    Severity = "critical"
	SeveritySignificant Severity = "significant"
	SeverityMinor       Severity = "minor"
	SeverityCosmetic    Severity = "cosmetic"
)

// RequiresReview reports whether the severity demands human review before the
// target version may be promoted.
func (s Severity) RequiresReview() bool {
	return s == SeverityCritical || s == SeveritySignificant
}

// ChangeRecord is one contiguous changed block between two adjacent narrative
// versions, scored by the classifier. Records are append-only and retained
// for audit for the life of the case.
type ChangeRecord struct {
	ID                   uuid.UUID  `json:"id"`
	CaseID               string     `json:"case_id"`
	FromVersionID        uuid.UUID  `json:"from_version_id"`
	ToVersionID          uuid.UUID  `json:"to_version_id"`
	ChangeType           ChangeType `json:"change_type"`
	Severity             Severity   `json:"severity"`
	OriginalText         string     `json:"original_text"`
	ModifiedText         string     `json:"modified_text"`
	LineNumber           int        `json:"line_number"`
	ClinicalTermsMatched []string   `json:"clinical_terms_matched,omitempty"`
	RequiresReview       bool       `json:"requires_review"`
	Justification        *string    `json:"justification,omitempty"`
	JustifiedBy          *string    `json:"justified_by,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
}

// IsJustified reports whether a non-empty justification has been recorded.
func (c ChangeRecord) IsJustified() bool {
	return c.Justification != nil && *c.Justification != ""
}

// BlocksPromotion reports whether the change prevents its target version from
// reaching Final or Locked.
func (c ChangeRecord) BlocksPromotion() bool {
	return c.Severity.RequiresReview() && !c.IsJustified()
}

// ClinicalImpact renders a short human-readable description of the edit,
// shown alongside the change in review screens and audit exports.
func (c ChangeRecord) ClinicalImpact() string {
	switch {
	case c.OriginalText == "" && c.ModifiedText != "":
		return fmt.Sprintf("Added new information: %s", truncate(c.ModifiedText, 50))
	case c.OriginalText != "" && c.ModifiedText == "":
		return fmt.Sprintf("Removed information: %s", truncate(c.OriginalText, 50))
	default:
		return fmt.Sprintf("Modified information from %q to %q", truncate(c.OriginalText, 30), truncate(c.ModifiedText, 30))
	}
}

// ComparisonSummary aggregates the changes between two versions.
type ComparisonSummary struct {
	TotalChanges          int                `json:"total_changes"`
	BySeverity            map[Severity]int   `json:"by_severity"`
	ByType                map[ChangeType]int `json:"by_type"`
	RequiresReviewCount   int                `json:"requires_review_count"`
	ClinicalImpact        string             `json:"clinical_impact"`
	RequiresMedicalReview bool               `json:"requires_medical_review"`
}

// significantReviewThreshold is the number of significant changes that alone
// triggers mandatory medical review.
const significantReviewThreshold = 3

// SummarizeChanges builds the aggregate view of a comparison. Any critical
// change, or three or more significant changes, requires medical review.
func SummarizeChanges(changes []ChangeRecord) ComparisonSummary {
	summary := ComparisonSummary{
		TotalChanges: len(changes),
		BySeverity:   map[Severity]int{},
		ByType:       map[ChangeType]int{},
	}
	for _, change := range changes {
		summary.BySeverity[change.Severity]++
		summary.ByType[change.ChangeType]++
		if change.RequiresReview {
			summary.RequiresReviewCount++
		}
	}

	critical := summary.BySeverity[SeverityCritical]
	significant := summary.BySeverity[SeveritySignificant]
	summary.RequiresMedicalReview = critical > 0 || significant >= significantReviewThreshold

	switch {
	case critical > 0:
		summary.ClinicalImpact = fmt.Sprintf("HIGH IMPACT: %d critical changes detected affecting clinical meaning", critical)
	case significant >= significantReviewThreshold:
		summary.ClinicalImpact = fmt.Sprintf("MODERATE IMPACT: %d significant changes detected", significant)
	case summary.TotalChanges > 10:
		summary.ClinicalImpact = fmt.Sprintf("MODERATE IMPACT: extensive editing with %d total changes", summary.TotalChanges)
	default:
		summary.ClinicalImpact = fmt.Sprintf("LOW IMPACT: %d minor changes with no significant clinical impact", summary.TotalChanges)
	}

	return summary
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
