package domain

import (
	"testing"
)

func TestNewNarrativeVersionDerivedMetadata(t *testing.T) {
	text := "Patient started medication at a dose of 50 mg. Symptom onset followed, duration two days, outcome resolved."
	v := NewNarrativeVersion("CASE-001", 1, text, "drafter-1", SourceHumanEdit, ModelMetadata{})

	if v.State != StateDraft {
		t.Errorf("new versions must start in draft, got %s", v.State)
	}
	if v.SequenceNumber != 1 {
		t.Errorf("unexpected sequence number %d", v.SequenceNumber)
	}
	if v.WordCount != 17 {
		t.Errorf("expected word count 17, got %d", v.WordCount)
	}
	if v.CompletenessScore <= 0 || v.CompletenessScore > 1 {
		t.Errorf("completeness score out of range: %f", v.CompletenessScore)
	}
	if v.ComplianceScore < 0 || v.ComplianceScore > 1 {
		t.Errorf("compliance score out of range: %f", v.ComplianceScore)
	}
	if v.IntegrityHash == "" {
		t.Fatal("integrity hash must be stamped on creation")
	}
}

func TestVerifyIntegrityDetectsTampering(t *testing.T) {
	v := NewNarrativeVersion("CASE-001", 1, "Patient took drug X.", "drafter-1", SourceHumanEdit, ModelMetadata{})
	if !v.VerifyIntegrity() {
		t.Fatal("freshly created version must verify")
	}

	v.Text = "Patient took drug Y."
	if v.VerifyIntegrity() {
		t.Error("tampered text must fail integrity verification")
	}
}

func TestWithStateDoesNotTouchText(t *testing.T) {
	v := NewNarrativeVersion("CASE-001", 1, "Patient took drug X.", "drafter-1", SourceHumanEdit, ModelMetadata{})
	promoted := v.WithState(StateReview)

	if promoted.State != StateReview {
		t.Errorf("expected review state, got %s", promoted.State)
	}
	if promoted.Text != v.Text || promoted.IntegrityHash != v.IntegrityHash {
		t.Error("state transition must not alter text or integrity hash")
	}
	if v.State != StateDraft {
		t.Error("original value must be unchanged")
	}
}

func TestCompletenessScoreMonotone(t *testing.T) {
	sparse := CompletenessScore("Nothing clinical here.")
	rich := CompletenessScore("patient medication dose symptom onset duration outcome")

	if sparse != 0 {
		t.Errorf("expected zero completeness, got %f", sparse)
	}
	if rich != 1 {
		t.Errorf("expected full completeness, got %f", rich)
	}
}

func TestStateTerminal(t *testing.T) {
	if StateDraft.Terminal() || StateReview.Terminal() || StateFinal.Terminal() {
		t.Error("only locked is terminal")
	}
	if !StateLocked.Terminal() {
		t.Error("locked must be terminal")
	}
}
