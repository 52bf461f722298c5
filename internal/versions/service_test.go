package versions

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/pvsentinel/narrativecore/internal/domain"
	"github.com/pvsentinel/narrativecore/internal/repository"
	"github.com/pvsentinel/narrativecore/internal/review"
	"github.com/pvsentinel/narrativecore/internal/terms"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	registry, err := terms.NewRegistry("")
	if err != nil {
		t.Fatalf("failed to build terms registry: %v", err)
	}
	return NewService(
		repository.NewMemoryVersionRepository(),
		repository.NewMemoryChangeRepository(),
		terms.NewClassifier(registry, 0),
		review.NewGate(),
	)
}

func mustAppend(t *testing.T, s *Service, caseID, text, author string) AppendResult {
	t.Helper()
	result, err := s.Append(context.Background(), AppendRequest{
		CaseID:   caseID,
		Text:     text,
		AuthorID: author,
	})
	if err != nil {
		t.Fatalf("append failed: %v", err)
	}
	return result
}

func TestAppendSequenceMonotonic(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		result := mustAppend(t, s, "CASE-001", fmt.Sprintf("Narrative revision %d.", i), "drafter-1")
		if result.Version.SequenceNumber != int64(i) {
			t.Fatalf("expected sequence %d, got %d", i, result.Version.SequenceNumber)
		}
	}

	versions, err := s.List(ctx, "CASE-001")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	for i, version := range versions {
		if version.SequenceNumber != int64(i+1) {
			t.Errorf("sequence gap at index %d: got %d", i, version.SequenceNumber)
		}
	}
}

func TestAppendConcurrentKeepsSequenceDense(t *testing.T) {
	s := newTestService(t)

	const writers = 8
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := s.Append(context.Background(), AppendRequest{
				CaseID:   "CASE-RACE",
				Text:     fmt.Sprintf("Concurrent revision %d.", n),
				AuthorID: "drafter-1",
			})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent append failed: %v", err)
		}
	}

	versions, err := s.List(context.Background(), "CASE-RACE")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(versions) != writers {
		t.Fatalf("expected %d versions, got %d", writers, len(versions))
	}
	for i, version := range versions {
		if version.SequenceNumber != int64(i+1) {
			t.Errorf("sequence must be dense, index %d has %d", i, version.SequenceNumber)
		}
	}
}

func TestAppendOnLockedCaseFails(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	mustAppend(t, s, "CASE-002", "Patient recovered without issue.", "drafter-1")
	if _, err := s.Transition(ctx, "CASE-002", 1, review.ActionSubmit, domain.RoleDrafter); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if _, err := s.Transition(ctx, "CASE-002", 1, review.ActionApprove, domain.RoleReviewer); err != nil {
		t.Fatalf("approve failed: %v", err)
	}
	if _, err := s.Transition(ctx, "CASE-002", 1, review.ActionLock, domain.RoleReviewer); err != nil {
		t.Fatalf("lock failed: %v", err)
	}

	_, err := s.Append(ctx, AppendRequest{CaseID: "CASE-002", Text: "Late correction.", AuthorID: "drafter-1"})
	if !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("append on locked case must fail with ErrInvalidState, got %v", err)
	}
}

func TestCriticalChangeBlocksPromotionUntilJustified(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	mustAppend(t, s, "CASE-003", "Patient took drug X, felt fine", "drafter-1")
	result := mustAppend(t, s, "CASE-003", "Patient took drug X, developed anaphylaxis", "drafter-1")

	if len(result.Changes) != 1 {
		t.Fatalf("expected one change record, got %d", len(result.Changes))
	}
	change := result.Changes[0]
	if change.Severity != domain.SeverityCritical {
		t.Fatalf("anaphylaxis change must classify critical, got %s", change.Severity)
	}
	if change.ChangeType != domain.ChangeClinicalUpdate {
		t.Errorf("critical modification with matched terms should be a clinical update, got %s", change.ChangeType)
	}
	if !result.Summary.RequiresMedicalReview {
		t.Error("summary must flag medical review")
	}

	if _, err := s.Transition(ctx, "CASE-003", 2, review.ActionSubmit, domain.RoleDrafter); err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	// Promotion is blocked while the critical change is unjustified.
	_, err := s.Transition(ctx, "CASE-003", 2, review.ActionApprove, domain.RoleReviewer)
	if !errors.Is(err, domain.ErrMissingJustification) {
		t.Fatalf("expected ErrMissingJustification, got %v", err)
	}

	pending, err := s.PendingJustifications(ctx, "CASE-003", 2)
	if err != nil {
		t.Fatalf("pending failed: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected one pending justification, got %d", len(pending))
	}

	if _, err := s.Justify(ctx, change.ID, "confirmed with treating physician", "reviewer-1", domain.RoleReviewer); err != nil {
		t.Fatalf("justify failed: %v", err)
	}

	version, err := s.Transition(ctx, "CASE-003", 2, review.ActionApprove, domain.RoleReviewer)
	if err != nil {
		t.Fatalf("approve after justification failed: %v", err)
	}
	if version.State != domain.StateFinal {
		t.Errorf("expected final state, got %s", version.State)
	}
}

func TestCosmeticEditsNeverBlockPromotion(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	mustAppend(t, s, "CASE-004", "The report was finalized.", "drafter-1")
	result := mustAppend(t, s, "CASE-004", "The report was finalized", "drafter-1")

	for _, change := range result.Changes {
		if change.Severity != domain.SeverityCosmetic {
			t.Fatalf("expected cosmetic change, got %s", change.Severity)
		}
	}

	if _, err := s.Transition(ctx, "CASE-004", 2, review.ActionSubmit, domain.RoleDrafter); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if _, err := s.Transition(ctx, "CASE-004", 2, review.ActionApprove, domain.RoleReviewer); err != nil {
		t.Fatalf("cosmetic-only edits must not block approval: %v", err)
	}
}

func TestCompareIsPureAndIdempotent(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	mustAppend(t, s, "CASE-005", "Patient took drug X.\nOutcome pending.", "drafter-1")
	mustAppend(t, s, "CASE-005", "Patient took drug X.\nOutcome resolved.", "drafter-1")

	self, err := s.Compare(ctx, "CASE-005", 1, 1)
	if err != nil {
		t.Fatalf("self compare failed: %v", err)
	}
	if len(self.Changes) != 0 {
		t.Errorf("comparing a version against itself must yield no changes, got %d", len(self.Changes))
	}

	comparison, err := s.Compare(ctx, "CASE-005", 1, 2)
	if err != nil {
		t.Fatalf("compare failed: %v", err)
	}
	if len(comparison.Changes) != 1 {
		t.Fatalf("expected one change, got %d", len(comparison.Changes))
	}
	if comparison.Summary.TotalChanges != 1 {
		t.Errorf("summary total mismatch: %d", comparison.Summary.TotalChanges)
	}
}

func TestAppendStampsIntegrityAndScores(t *testing.T) {
	s := newTestService(t)

	result := mustAppend(t, s, "CASE-006",
		"Patient on medication, dose 10 mg. Symptom onset after one day; duration short; outcome good.", "drafter-1")
	version := result.Version

	if !version.VerifyIntegrity() {
		t.Error("stored version must pass integrity verification")
	}
	if version.WordCount == 0 {
		t.Error("word count must be derived")
	}
	if version.CompletenessScore <= 0 {
		t.Error("completeness score must reflect clinical elements")
	}
}

func TestJustifyValidation(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	mustAppend(t, s, "CASE-007", "Patient took drug X, felt fine", "drafter-1")
	result := mustAppend(t, s, "CASE-007", "Patient took drug X, developed anaphylaxis", "drafter-1")
	change := result.Changes[0]

	if _, err := s.Justify(ctx, change.ID, "   ", "reviewer-1", domain.RoleReviewer); err == nil {
		t.Error("blank justification must be rejected")
	}
	if _, err := s.Justify(ctx, change.ID, "confirmed", "auditor-1", domain.RoleReadOnly); !errors.Is(err, domain.ErrPermissionDenied) {
		t.Errorf("readonly justification must be denied, got %v", err)
	}
}
