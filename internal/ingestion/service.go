// Package ingestion accepts generated draft narratives from the LLM pipeline.
// The pipeline itself is out of scope; only its output text and model identity
// cross this boundary, and both are hashed for the audit trail.
package ingestion

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/pvsentinel/narrativecore/internal/domain"
	"github.com/pvsentinel/narrativecore/internal/versions"
)

// Service stamps incoming drafts with model metadata and stores them as the
// next revision of their case.
type Service struct {
	versions *versions.Service
}

// NewService creates an ingestion service over the version store.
func NewService(versions *versions.Service) *Service {
	return &Service{versions: versions}
}

// DraftRequest is one generated narrative handed over by the LLM pipeline.
type DraftRequest struct {
	CaseID         string `json:"caseId"`
	Text           string `json:"text"`
	ModelName      string `json:"modelName"`
	ModelVersion   string `json:"modelVersion"`
	PromptTemplate string `json:"promptTemplate"`
}

func (r DraftRequest) validate() error {
	if strings.TrimSpace(r.CaseID) == "" {
		return errors.New("caseId is required")
	}
	if strings.TrimSpace(r.Text) == "" {
		return errors.New("draft text is required")
	}
	if strings.TrimSpace(r.ModelName) == "" {
		return errors.New("modelName is required for generated drafts")
	}
	return nil
}

// IngestDraft appends the generated text as an AI-sourced revision. The model
// and prompt hashes make the generation reproducible for audit.
func (s *Service) IngestDraft(ctx context.Context, authorID string, req DraftRequest) (versions.AppendResult, error) {
	if err := req.validate(); err != nil {
		return versions.AppendResult{}, err
	}

	model := domain.ModelMetadata{
		ModelName: req.ModelName,
		ModelHash: ContentHash(req.ModelName + "@" + req.ModelVersion),
	}
	if req.PromptTemplate != "" {
		model.PromptHash = ContentHash(req.PromptTemplate)
	}

	return s.versions.Append(ctx, versions.AppendRequest{
		CaseID:   req.CaseID,
		Text:     req.Text,
		AuthorID: authorID,
		Source:   domain.SourceAIGenerated,
		Model:    model,
	})
}

// ContentHash returns the hex sha256 of the content, the fingerprint format
// used for model and prompt identities.
func ContentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
