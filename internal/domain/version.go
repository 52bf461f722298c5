package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"
)

// VersionState tracks a narrative revision through the review lifecycle.
type VersionState string

const (
	StateDraft  VersionState = "draft"
	StateReview VersionState = "review"
	StateFinal  VersionState = "final"
	StateLocked VersionState = "locked"
)

// Terminal reports whether no further transitions are allowed from the state.
func (s VersionState) Terminal() bool {
	return s == StateLocked
}

// Valid reports whether the state is one of the known lifecycle states.
func (s VersionState) Valid() bool {
	switch s {
	case StateDraft, StateReview, StateFinal, StateLocked:
		return true
	}
	return false
}

// VersionSource records who produced the narrative text.
type VersionSource string

const (
	SourceAIGenerated VersionSource = "ai_generated"
	SourceHumanEdit   VersionSource = "human_edit"
)

// ModelMetadata stamps an AI-generated draft with the model and prompt that
// produced it, so a generation can be traced back for audit.
type ModelMetadata struct {
	ModelName  string `json:"model_name,omitempty"`
	ModelHash  string `json:"model_hash,omitempty"`
	PromptHash string `json:"prompt_hash,omitempty"`
}

// NarrativeVersion is one immutable revision of a case narrative. State
// transitions update the state pointer only; the text never changes after
// creation.
type NarrativeVersion struct {
	ID                uuid.UUID     `json:"id"`
	CaseID            string        `json:"case_id"`
	SequenceNumber    int64         `json:"sequence_number"`
	Text              string        `json:"text"`
	State             VersionState  `json:"state"`
	Source            VersionSource `json:"source"`
	AuthorID          string        `json:"author_id"`
	Model             ModelMetadata `json:"model"`
	WordCount         int           `json:"word_count"`
	CompletenessScore float64       `json:"completeness_score"`
	ComplianceScore   float64       `json:"compliance_score"`
	IntegrityHash     string        `json:"integrity_hash"`
	CreatedAt         time.Time     `json:"created_at"`
}

// NewNarrativeVersion creates a Draft revision with derived metadata filled in.
func NewNarrativeVersion(caseID string, sequence int64, text, authorID string, source VersionSource, model ModelMetadata) NarrativeVersion {
	now := time.Now().UTC()
	v := NarrativeVersion{
		ID:                uuid.New(),
		CaseID:            caseID,
		SequenceNumber:    sequence,
		Text:              text,
		State:             StateDraft,
		Source:            source,
		AuthorID:          authorID,
		Model:             model,
		WordCount:         len(strings.Fields(text)),
		CompletenessScore: CompletenessScore(text),
		ComplianceScore:   ComplianceScore(text),
		CreatedAt:         now,
	}
	v.IntegrityHash = v.computeIntegrityHash()
	return v
}

// WithState returns a copy of the version carrying the new state. The text and
// all derived metadata are untouched.
func (v NarrativeVersion) WithState(state VersionState) NarrativeVersion {
	v.State = state
	return v
}

// VerifyIntegrity recomputes the content hash and compares it against the
// stored one, detecting any post-hoc tampering with the narrative text.
func (v NarrativeVersion) VerifyIntegrity() bool {
	return v.IntegrityHash == v.computeIntegrityHash()
}

func (v NarrativeVersion) computeIntegrityHash() string {
	h := sha256.New()
	h.Write([]byte(v.Text))
	h.Write([]byte(v.CreatedAt.UTC().Format(time.RFC3339Nano)))
	h.Write([]byte(v.AuthorID))
	return hex.EncodeToString(h.Sum(nil))
}

// requiredElements drive the clinical completeness score: the share of these
// that appear somewhere in the narrative.
var requiredElements = []string{"patient", "medication", "dose", "symptom", "onset", "duration", "outcome"}

// complianceIndicators drive the regulatory compliance score.
var complianceIndicators = []string{"timeline", "causality", "outcome", "follow-up", "concomitant"}

// CompletenessScore estimates how many of the expected clinical elements the
// narrative mentions, in [0,1].
func CompletenessScore(text string) float64 {
	return coverageScore(text, requiredElements)
}

// ComplianceScore estimates coverage of regulatory reporting indicators, in [0,1].
func ComplianceScore(text string) float64 {
	return coverageScore(text, complianceIndicators)
}

func coverageScore(text string, indicators []string) float64 {
	lower := strings.ToLower(text)
	present := 0
	for _, indicator := range indicators {
		if strings.Contains(lower, indicator) {
			present++
		}
	}
	return float64(present) / float64(len(indicators))
}
