// Package repository persists narrative versions and change records. Both
// stores are append-only: versions and changes are never deleted, and the only
// mutations are the version state pointer and change justifications.
package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/pvsentinel/narrativecore/internal/domain"
)

// VersionRepository stores ordered narrative revisions per case. Create must
// reject duplicate (case_id, sequence_number) pairs with
// domain.ErrSequenceConflict so concurrent append races surface instead of
// silently reordering history.
type VersionRepository interface {
	Create(ctx context.Context, version domain.NarrativeVersion) (domain.NarrativeVersion, error)
	GetByID(ctx context.Context, id uuid.UUID) (domain.NarrativeVersion, error)
	GetBySequence(ctx context.Context, caseID string, sequence int64) (domain.NarrativeVersion, error)
	Latest(ctx context.Context, caseID string) (domain.NarrativeVersion, error)
	List(ctx context.Context, caseID string) ([]domain.NarrativeVersion, error)
	UpdateState(ctx context.Context, id uuid.UUID, state domain.VersionState) (domain.NarrativeVersion, error)
}

// ChangeRepository stores the audit trail of scored changes between adjacent
// versions.
type ChangeRepository interface {
	CreateBatch(ctx context.Context, changes []domain.ChangeRecord) error
	GetByID(ctx context.Context, id uuid.UUID) (domain.ChangeRecord, error)
	ListByCase(ctx context.Context, caseID string) ([]domain.ChangeRecord, error)
	ListForVersion(ctx context.Context, toVersionID uuid.UUID) ([]domain.ChangeRecord, error)
	SetJustification(ctx context.Context, id uuid.UUID, justification, justifiedBy string) (domain.ChangeRecord, error)
}
