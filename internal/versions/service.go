// Package versions implements the narrative version store: append-only
// revision history per case, diff and severity scoring on every append, and
// lifecycle transitions guarded by the review gate.
package versions

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/pvsentinel/narrativecore/internal/domain"
	"github.com/pvsentinel/narrativecore/internal/repository"
	"github.com/pvsentinel/narrativecore/internal/review"
	"github.com/pvsentinel/narrativecore/internal/terms"
)

// Service coordinates version appends, comparisons and lifecycle transitions.
// Appends are serialized per case so sequence numbers stay monotonic; the
// repository's unique constraint catches anything that slips through.
type Service struct {
	versions   repository.VersionRepository
	changes    repository.ChangeRepository
	classifier *terms.Classifier
	gate       *review.Gate

	mu        sync.Mutex
	caseLocks map[string]*sync.Mutex
}

// NewService wires the version store over its repositories.
func NewService(versions repository.VersionRepository, changes repository.ChangeRepository, classifier *terms.Classifier, gate *review.Gate) *Service {
	return &Service{
		versions:   versions,
		changes:    changes,
		classifier: classifier,
		gate:       gate,
		caseLocks:  map[string]*sync.Mutex{},
	}
}

func (s *Service) caseLock(caseID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.caseLocks[caseID]
	if !ok {
		lock = &sync.Mutex{}
		s.caseLocks[caseID] = lock
	}
	return lock
}

// AppendRequest carries one new narrative revision.
type AppendRequest struct {
	CaseID   string
	Text     string
	AuthorID string
	Source   domain.VersionSource
	Model    domain.ModelMetadata
}

func (r AppendRequest) validate() error {
	if strings.TrimSpace(r.CaseID) == "" {
		return errors.New("caseId is required")
	}
	if strings.TrimSpace(r.Text) == "" {
		return errors.New("narrative text is required")
	}
	if strings.TrimSpace(r.AuthorID) == "" {
		return errors.New("authorId is required")
	}
	return nil
}

// AppendResult is the stored version plus the scored changes against its
// predecessor.
type AppendResult struct {
	Version domain.NarrativeVersion  `json:"version"`
	Changes []domain.ChangeRecord    `json:"changes"`
	Summary domain.ComparisonSummary `json:"summary"`
}

// Append stores a new revision for the case. Fails with ErrInvalidState when
// the latest version is Locked. When a predecessor exists, the diff is scored
// and persisted as ChangeRecords alongside the version.
func (s *Service) Append(ctx context.Context, req AppendRequest) (AppendResult, error) {
	if err := req.validate(); err != nil {
		return AppendResult{}, err
	}
	if req.Source == "" {
		req.Source = domain.SourceHumanEdit
	}

	lock := s.caseLock(req.CaseID)
	lock.Lock()
	defer lock.Unlock()

	var previous *domain.NarrativeVersion
	sequence := int64(1)
	latest, err := s.versions.Latest(ctx, req.CaseID)
	switch {
	case err == nil:
		if latest.State.Terminal() {
			return AppendResult{}, fmt.Errorf("%w: case %s is locked", domain.ErrInvalidState, req.CaseID)
		}
		previous = &latest
		sequence = latest.SequenceNumber + 1
	case errors.Is(err, domain.ErrNotFound):
		// First revision for the case.
	default:
		return AppendResult{}, err
	}

	version := domain.NewNarrativeVersion(req.CaseID, sequence, req.Text, req.AuthorID, req.Source, req.Model)

	var records []domain.ChangeRecord
	if previous != nil {
		records = s.scoreChanges(*previous, version)
	}

	stored, err := s.versions.Create(ctx, version)
	if err != nil {
		return AppendResult{}, err
	}
	if len(records) > 0 {
		if err := s.changes.CreateBatch(ctx, records); err != nil {
			return AppendResult{}, err
		}
	}

	log.Printf("[VERSIONS] case %s appended revision %d (%d changes)", req.CaseID, stored.SequenceNumber, len(records))
	return AppendResult{Version: stored, Changes: records, Summary: domain.SummarizeChanges(records)}, nil
}

// scoreChanges diffs two revisions and classifies each block. Classification
// failures keep the fail-closed Critical severity and are logged rather than
// aborting the append.
func (s *Service) scoreChanges(from, to domain.NarrativeVersion) []domain.ChangeRecord {
	blocks := domain.DiffNarratives(from.Text, to.Text)
	records := make([]domain.ChangeRecord, 0, len(blocks))
	for _, block := range blocks {
		severity, matched, err := s.classifier.Classify(block)
		if err != nil {
			log.Printf("[VERSIONS] classification failed for case %s, defaulting to critical: %v", to.CaseID, err)
		}
		records = append(records, domain.ChangeRecord{
			ID:                   uuid.New(),
			CaseID:               to.CaseID,
			FromVersionID:        from.ID,
			ToVersionID:          to.ID,
			ChangeType:           resolveChangeType(block, severity, matched),
			Severity:             severity,
			OriginalText:         block.OriginalText,
			ModifiedText:         block.ModifiedText,
			LineNumber:           block.LineNumber,
			ClinicalTermsMatched: matched,
			RequiresReview:       severity.RequiresReview(),
			CreatedAt:            to.CreatedAt,
		})
	}
	return records
}

// resolveChangeType upgrades a plain modification to a clinical update when
// the classifier matched clinical terms in it.
func resolveChangeType(block domain.ChangeBlock, severity domain.Severity, matched []string) domain.ChangeType {
	if block.Type == domain.ChangeModification && severity.RequiresReview() && len(matched) > 0 {
		return domain.ChangeClinicalUpdate
	}
	return block.Type
}

// Get returns one revision by sequence number.
func (s *Service) Get(ctx context.Context, caseID string, sequence int64) (domain.NarrativeVersion, error) {
	return s.versions.GetBySequence(ctx, caseID, sequence)
}

// Latest returns the newest revision of the case.
func (s *Service) Latest(ctx context.Context, caseID string) (domain.NarrativeVersion, error) {
	return s.versions.Latest(ctx, caseID)
}

// List returns all revisions of the case in sequence order.
func (s *Service) List(ctx context.Context, caseID string) ([]domain.NarrativeVersion, error) {
	return s.versions.List(ctx, caseID)
}

// ChangesForVersion returns the persisted audit records that produced the
// given revision.
func (s *Service) ChangesForVersion(ctx context.Context, caseID string, sequence int64) ([]domain.ChangeRecord, error) {
	version, err := s.versions.GetBySequence(ctx, caseID, sequence)
	if err != nil {
		return nil, err
	}
	return s.changes.ListForVersion(ctx, version.ID)
}

// ChangesForCase returns the full change log of the case in creation order.
func (s *Service) ChangesForCase(ctx context.Context, caseID string) ([]domain.ChangeRecord, error) {
	return s.changes.ListByCase(ctx, caseID)
}

// Comparison is an ad-hoc diff between two stored revisions. The change
// records are recomputed, not persisted; the persisted audit trail lives with
// the append that created each revision.
type Comparison struct {
	CaseID  string                   `json:"case_id"`
	From    domain.NarrativeVersion  `json:"from"`
	To      domain.NarrativeVersion  `json:"to"`
	Changes []domain.ChangeRecord    `json:"changes"`
	Summary domain.ComparisonSummary `json:"summary"`
}

// Compare diffs two revisions of the case. Diff and classification are pure,
// so comparing a revision against itself yields no changes.
func (s *Service) Compare(ctx context.Context, caseID string, fromSeq, toSeq int64) (Comparison, error) {
	from, err := s.versions.GetBySequence(ctx, caseID, fromSeq)
	if err != nil {
		return Comparison{}, err
	}
	to, err := s.versions.GetBySequence(ctx, caseID, toSeq)
	if err != nil {
		return Comparison{}, err
	}

	records := s.scoreChanges(from, to)
	return Comparison{
		CaseID:  caseID,
		From:    from,
		To:      to,
		Changes: records,
		Summary: domain.SummarizeChanges(records),
	}, nil
}

// Transition applies a lifecycle action to a revision on behalf of the actor
// role. Promotion to Final/Locked is blocked while any critical or significant
// change lacks justification.
func (s *Service) Transition(ctx context.Context, caseID string, sequence int64, action review.Action, role domain.Role) (domain.NarrativeVersion, error) {
	lock := s.caseLock(caseID)
	lock.Lock()
	defer lock.Unlock()

	version, err := s.versions.GetBySequence(ctx, caseID, sequence)
	if err != nil {
		return domain.NarrativeVersion{}, err
	}
	changes, err := s.changes.ListForVersion(ctx, version.ID)
	if err != nil {
		return domain.NarrativeVersion{}, err
	}

	next, err := s.gate.Transition(version, action, role, changes)
	if err != nil {
		return domain.NarrativeVersion{}, err
	}

	updated, err := s.versions.UpdateState(ctx, version.ID, next)
	if err != nil {
		return domain.NarrativeVersion{}, err
	}
	log.Printf("[VERSIONS] case %s revision %d: %s -> %s", caseID, sequence, version.State, next)
	return updated, nil
}

// PendingJustifications lists the changes still blocking promotion of a
// revision.
func (s *Service) PendingJustifications(ctx context.Context, caseID string, sequence int64) ([]domain.ChangeRecord, error) {
	changes, err := s.ChangesForVersion(ctx, caseID, sequence)
	if err != nil {
		return nil, err
	}
	return s.gate.RequireJustification(changes), nil
}

// Justify records the reviewer's rationale on a flagged change.
func (s *Service) Justify(ctx context.Context, changeID uuid.UUID, justification, actorID string, role domain.Role) (domain.ChangeRecord, error) {
	if strings.TrimSpace(justification) == "" {
		return domain.ChangeRecord{}, errors.New("justification must not be empty")
	}
	caps := role.Capabilities()
	if !caps.CanEditDrafts && !caps.CanReviewCases {
		return domain.ChangeRecord{}, fmt.Errorf("%w: role %s cannot justify changes", domain.ErrPermissionDenied, role)
	}
	if _, err := s.changes.GetByID(ctx, changeID); err != nil {
		return domain.ChangeRecord{}, err
	}
	return s.changes.SetJustification(ctx, changeID, justification, actorID)
}
