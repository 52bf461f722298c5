package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pvsentinel/narrativecore/internal/domain"
)

const uniqueViolationCode = "23505"

// postgresVersionRepository implements VersionRepository on a pgx pool.
type postgresVersionRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresVersionRepository creates a Postgres-backed version store.
func NewPostgresVersionRepository(pool *pgxpool.Pool) VersionRepository {
	return &postgresVersionRepository{pool: pool}
}

const versionColumns = `id, case_id, sequence_number, text, state, source, author_id,
	model_name, model_hash, prompt_hash, word_count, completeness_score,
	compliance_score, integrity_hash, created_at`

func (r *postgresVersionRepository) Create(ctx context.Context, version domain.NarrativeVersion) (domain.NarrativeVersion, error) {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO narrative_versions (`+versionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		version.ID, version.CaseID, version.SequenceNumber, version.Text,
		string(version.State), string(version.Source), version.AuthorID,
		version.Model.ModelName, version.Model.ModelHash, version.Model.PromptHash,
		version.WordCount, version.CompletenessScore, version.ComplianceScore,
		version.IntegrityHash, version.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return domain.NarrativeVersion{}, fmt.Errorf("%w: case %s sequence %d already exists",
				domain.ErrSequenceConflict, version.CaseID, version.SequenceNumber)
		}
		return domain.NarrativeVersion{}, fmt.Errorf("failed to insert narrative version: %w", err)
	}
	return version, nil
}

func (r *postgresVersionRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.NarrativeVersion, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+versionColumns+` FROM narrative_versions WHERE id = $1`, id)
	return scanVersion(row)
}

func (r *postgresVersionRepository) GetBySequence(ctx context.Context, caseID string, sequence int64) (domain.NarrativeVersion, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+versionColumns+` FROM narrative_versions
		WHERE case_id = $1 AND sequence_number = $2`, caseID, sequence)
	return scanVersion(row)
}

func (r *postgresVersionRepository) Latest(ctx context.Context, caseID string) (domain.NarrativeVersion, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+versionColumns+` FROM narrative_versions
		WHERE case_id = $1
		ORDER BY sequence_number DESC
		LIMIT 1`, caseID)
	return scanVersion(row)
}

func (r *postgresVersionRepository) List(ctx context.Context, caseID string) ([]domain.NarrativeVersion, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+versionColumns+` FROM narrative_versions
		WHERE case_id = $1
		ORDER BY sequence_number ASC`, caseID)
	if err != nil {
		return nil, fmt.Errorf("failed to list narrative versions: %w", err)
	}
	defer rows.Close()

	var versions []domain.NarrativeVersion
	for rows.Next() {
		version, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		versions = append(versions, version)
	}
	return versions, rows.Err()
}

func (r *postgresVersionRepository) UpdateState(ctx context.Context, id uuid.UUID, state domain.VersionState) (domain.NarrativeVersion, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE narrative_versions SET state = $2 WHERE id = $1
		RETURNING `+versionColumns, id, string(state))
	return scanVersion(row)
}

func scanVersion(row pgx.Row) (domain.NarrativeVersion, error) {
	var v domain.NarrativeVersion
	var state, source string
	err := row.Scan(&v.ID, &v.CaseID, &v.SequenceNumber, &v.Text, &state, &source, &v.AuthorID,
		&v.Model.ModelName, &v.Model.ModelHash, &v.Model.PromptHash,
		&v.WordCount, &v.CompletenessScore, &v.ComplianceScore, &v.IntegrityHash, &v.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.NarrativeVersion{}, fmt.Errorf("%w: narrative version", domain.ErrNotFound)
		}
		return domain.NarrativeVersion{}, fmt.Errorf("failed to scan narrative version: %w", err)
	}
	v.State = domain.VersionState(state)
	v.Source = domain.VersionSource(source)
	return v, nil
}

// postgresChangeRepository implements ChangeRepository on a pgx pool.
type postgresChangeRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresChangeRepository creates a Postgres-backed change store.
func NewPostgresChangeRepository(pool *pgxpool.Pool) ChangeRepository {
	return &postgresChangeRepository{pool: pool}
}

const changeColumns = `id, case_id, from_version_id, to_version_id, change_type, severity,
	original_text, modified_text, line_number, clinical_terms, requires_review,
	justification, justified_by, created_at`

func (r *postgresChangeRepository) CreateBatch(ctx context.Context, changes []domain.ChangeRecord) error {
	if len(changes) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, change := range changes {
		batch.Queue(`
			INSERT INTO change_records (`+changeColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
			change.ID, change.CaseID, change.FromVersionID, change.ToVersionID,
			string(change.ChangeType), string(change.Severity),
			change.OriginalText, change.ModifiedText, change.LineNumber,
			change.ClinicalTermsMatched, change.RequiresReview,
			change.Justification, change.JustifiedBy, change.CreatedAt,
		)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()
	for range changes {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to insert change record: %w", err)
		}
	}
	return nil
}

func (r *postgresChangeRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.ChangeRecord, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+changeColumns+` FROM change_records WHERE id = $1`, id)
	return scanChange(row)
}

func (r *postgresChangeRepository) ListByCase(ctx context.Context, caseID string) ([]domain.ChangeRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+changeColumns+` FROM change_records
		WHERE case_id = $1
		ORDER BY created_at ASC, line_number ASC`, caseID)
	if err != nil {
		return nil, fmt.Errorf("failed to list change records: %w", err)
	}
	defer rows.Close()
	return collectChanges(rows)
}

func (r *postgresChangeRepository) ListForVersion(ctx context.Context, toVersionID uuid.UUID) ([]domain.ChangeRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+changeColumns+` FROM change_records
		WHERE to_version_id = $1
		ORDER BY line_number ASC`, toVersionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list change records for version: %w", err)
	}
	defer rows.Close()
	return collectChanges(rows)
}

func (r *postgresChangeRepository) SetJustification(ctx context.Context, id uuid.UUID, justification, justifiedBy string) (domain.ChangeRecord, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE change_records SET justification = $2, justified_by = $3
		WHERE id = $1
		RETURNING `+changeColumns, id, justification, justifiedBy)
	return scanChange(row)
}

func collectChanges(rows pgx.Rows) ([]domain.ChangeRecord, error) {
	var changes []domain.ChangeRecord
	for rows.Next() {
		change, err := scanChange(rows)
		if err != nil {
			return nil, err
		}
		changes = append(changes, change)
	}
	return changes, rows.Err()
}

func scanChange(row pgx.Row) (domain.ChangeRecord, error) {
	var c domain.ChangeRecord
	var changeType, severity string
	err := row.Scan(&c.ID, &c.CaseID, &c.FromVersionID, &c.ToVersionID, &changeType, &severity,
		&c.OriginalText, &c.ModifiedText, &c.LineNumber, &c.ClinicalTermsMatched,
		&c.RequiresReview, &c.Justification, &c.JustifiedBy, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ChangeRecord{}, fmt.Errorf("%w: change record", domain.ErrNotFound)
		}
		return domain.ChangeRecord{}, fmt.Errorf("failed to scan change record: %w", err)
	}
	c.ChangeType = domain.ChangeType(changeType)
	c.Severity = domain.Severity(severity)
	return c, nil
}
