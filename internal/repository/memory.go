package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/pvsentinel/narrativecore/internal/domain"
)

// memoryVersionRepository keeps versions in process memory. Used by tests and
// available as a throwaway backend for local experiments.
type memoryVersionRepository struct {
	mu       sync.RWMutex
	byID     map[uuid.UUID]domain.NarrativeVersion
	byCase   map[string][]uuid.UUID
	sequence map[string]map[int64]uuid.UUID
}

// NewMemoryVersionRepository creates an empty in-memory version store.
func NewMemoryVersionRepository() VersionRepository {
	return &memoryVersionRepository{
		byID:     map[uuid.UUID]domain.NarrativeVersion{},
		byCase:   map[string][]uuid.UUID{},
		sequence: map[string]map[int64]uuid.UUID{},
	}
}

func (r *memoryVersionRepository) Create(ctx context.Context, version domain.NarrativeVersion) (domain.NarrativeVersion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	seqs, ok := r.sequence[version.CaseID]
	if !ok {
		seqs = map[int64]uuid.UUID{}
		r.sequence[version.CaseID] = seqs
	}
	if _, exists := seqs[version.SequenceNumber]; exists {
		return domain.NarrativeVersion{}, fmt.Errorf("%w: case %s sequence %d already exists",
			domain.ErrSequenceConflict, version.CaseID, version.SequenceNumber)
	}

	seqs[version.SequenceNumber] = version.ID
	r.byID[version.ID] = version
	r.byCase[version.CaseID] = append(r.byCase[version.CaseID], version.ID)
	return version, nil
}

func (r *memoryVersionRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.NarrativeVersion, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	version, ok := r.byID[id]
	if !ok {
		return domain.NarrativeVersion{}, fmt.Errorf("%w: version %s", domain.ErrNotFound, id)
	}
	return version, nil
}

func (r *memoryVersionRepository) GetBySequence(ctx context.Context, caseID string, sequence int64) (domain.NarrativeVersion, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.sequence[caseID][sequence]
	if !ok {
		return domain.NarrativeVersion{}, fmt.Errorf("%w: case %s version %d", domain.ErrNotFound, caseID, sequence)
	}
	return r.byID[id], nil
}

func (r *memoryVersionRepository) Latest(ctx context.Context, caseID string) (domain.NarrativeVersion, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var latest domain.NarrativeVersion
	found := false
	for _, id := range r.byCase[caseID] {
		version := r.byID[id]
		if !found || version.SequenceNumber > latest.SequenceNumber {
			latest = version
			found = true
		}
	}
	if !found {
		return domain.NarrativeVersion{}, fmt.Errorf("%w: case %s has no versions", domain.ErrNotFound, caseID)
	}
	return latest, nil
}

func (r *memoryVersionRepository) List(ctx context.Context, caseID string) ([]domain.NarrativeVersion, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	versions := make([]domain.NarrativeVersion, 0, len(r.byCase[caseID]))
	for _, id := range r.byCase[caseID] {
		versions = append(versions, r.byID[id])
	}
	sort.Slice(versions, func(i, j int) bool {
		return versions[i].SequenceNumber < versions[j].SequenceNumber
	})
	return versions, nil
}

func (r *memoryVersionRepository) UpdateState(ctx context.Context, id uuid.UUID, state domain.VersionState) (domain.NarrativeVersion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	version, ok := r.byID[id]
	if !ok {
		return domain.NarrativeVersion{}, fmt.Errorf("%w: version %s", domain.ErrNotFound, id)
	}
	version = version.WithState(state)
	r.byID[id] = version
	return version, nil
}

// memoryChangeRepository keeps change records in process memory.
type memoryChangeRepository struct {
	mu   sync.RWMutex
	byID map[uuid.UUID]domain.ChangeRecord
	// order preserves insertion order for stable listings.
	order []uuid.UUID
}

// NewMemoryChangeRepository creates an empty in-memory change store.
func NewMemoryChangeRepository() ChangeRepository {
	return &memoryChangeRepository{byID: map[uuid.UUID]domain.ChangeRecord{}}
}

func (r *memoryChangeRepository) CreateBatch(ctx context.Context, changes []domain.ChangeRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, change := range changes {
		r.byID[change.ID] = change
		r.order = append(r.order, change.ID)
	}
	return nil
}

func (r *memoryChangeRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.ChangeRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	change, ok := r.byID[id]
	if !ok {
		return domain.ChangeRecord{}, fmt.Errorf("%w: change %s", domain.ErrNotFound, id)
	}
	return change, nil
}

func (r *memoryChangeRepository) ListByCase(ctx context.Context, caseID string) ([]domain.ChangeRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var changes []domain.ChangeRecord
	for _, id := range r.order {
		if change := r.byID[id]; change.CaseID == caseID {
			changes = append(changes, change)
		}
	}
	return changes, nil
}

func (r *memoryChangeRepository) ListForVersion(ctx context.Context, toVersionID uuid.UUID) ([]domain.ChangeRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var changes []domain.ChangeRecord
	for _, id := range r.order {
		if change := r.byID[id]; change.ToVersionID == toVersionID {
			changes = append(changes, change)
		}
	}
	return changes, nil
}

func (r *memoryChangeRepository) SetJustification(ctx context.Context, id uuid.UUID, justification, justifiedBy string) (domain.ChangeRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	change, ok := r.byID[id]
	if !ok {
		return domain.ChangeRecord{}, fmt.Errorf("%w: change %s", domain.ErrNotFound, id)
	}
	change.Justification = &justification
	change.JustifiedBy = &justifiedBy
	r.byID[id] = change
	return change, nil
}
