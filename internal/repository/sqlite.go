package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // pure go sqlite driver

	"github.com/pvsentinel/narrativecore/internal/domain"
)

// OpenSQLite opens (or creates) the embedded database used by single-user
// deployments and applies the schema.
func OpenSQLite(path string) (*sql.DB, error) {
	if path == "" {
		path = "pvsentinel.db"
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// The driver serializes writes; a single connection avoids table locks
	// surfacing as busy errors.
	db.SetMaxOpenConns(1)
	if err := applySQLiteSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func applySQLiteSchema(db *sql.DB) error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS narrative_versions (
			id TEXT PRIMARY KEY,
			case_id TEXT NOT NULL,
			sequence_number INTEGER NOT NULL,
			text TEXT NOT NULL,
			state TEXT NOT NULL,
			source TEXT NOT NULL,
			author_id TEXT NOT NULL,
			model_name TEXT NOT NULL DEFAULT '',
			model_hash TEXT NOT NULL DEFAULT '',
			prompt_hash TEXT NOT NULL DEFAULT '',
			word_count INTEGER NOT NULL,
			completeness_score REAL NOT NULL,
			compliance_score REAL NOT NULL,
			integrity_hash TEXT NOT NULL,
			created_at TEXT NOT NULL,
			UNIQUE (case_id, sequence_number)
		)`,
		`CREATE TABLE IF NOT EXISTS change_records (
			id TEXT PRIMARY KEY,
			case_id TEXT NOT NULL,
			from_version_id TEXT NOT NULL,
			to_version_id TEXT NOT NULL,
			change_type TEXT NOT NULL,
			severity TEXT NOT NULL,
			original_text TEXT NOT NULL,
			modified_text TEXT NOT NULL,
			line_number INTEGER NOT NULL,
			clinical_terms TEXT NOT NULL DEFAULT '[]',
			requires_review INTEGER NOT NULL,
			justification TEXT,
			justified_by TEXT,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_versions_case ON narrative_versions (case_id, sequence_number)`,
		`CREATE INDEX IF NOT EXISTS idx_changes_case ON change_records (case_id)`,
		`CREATE INDEX IF NOT EXISTS idx_changes_to_version ON change_records (to_version_id)`,
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to apply sqlite schema: %w", err)
		}
	}
	return nil
}

// sqliteVersionRepository implements VersionRepository on an embedded database.
type sqliteVersionRepository struct {
	db *sql.DB
}

// NewSQLiteVersionRepository creates a SQLite-backed version store.
func NewSQLiteVersionRepository(db *sql.DB) VersionRepository {
	return &sqliteVersionRepository{db: db}
}

func (r *sqliteVersionRepository) Create(ctx context.Context, version domain.NarrativeVersion) (domain.NarrativeVersion, error) {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO narrative_versions (id, case_id, sequence_number, text, state, source, author_id,
			model_name, model_hash, prompt_hash, word_count, completeness_score,
			compliance_score, integrity_hash, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		version.ID.String(), version.CaseID, version.SequenceNumber, version.Text,
		string(version.State), string(version.Source), version.AuthorID,
		version.Model.ModelName, version.Model.ModelHash, version.Model.PromptHash,
		version.WordCount, version.CompletenessScore, version.ComplianceScore,
		version.IntegrityHash, version.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return domain.NarrativeVersion{}, fmt.Errorf("%w: case %s sequence %d already exists",
				domain.ErrSequenceConflict, version.CaseID, version.SequenceNumber)
		}
		return domain.NarrativeVersion{}, fmt.Errorf("failed to insert narrative version: %w", err)
	}
	return version, nil
}

const sqliteVersionColumns = `id, case_id, sequence_number, text, state, source, author_id,
	model_name, model_hash, prompt_hash, word_count, completeness_score,
	compliance_score, integrity_hash, created_at`

func (r *sqliteVersionRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.NarrativeVersion, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sqliteVersionColumns+` FROM narrative_versions WHERE id = ?`, id.String())
	return scanSQLiteVersion(row)
}

func (r *sqliteVersionRepository) GetBySequence(ctx context.Context, caseID string, sequence int64) (domain.NarrativeVersion, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+sqliteVersionColumns+` FROM narrative_versions
		WHERE case_id = ? AND sequence_number = ?`, caseID, sequence)
	return scanSQLiteVersion(row)
}

func (r *sqliteVersionRepository) Latest(ctx context.Context, caseID string) (domain.NarrativeVersion, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+sqliteVersionColumns+` FROM narrative_versions
		WHERE case_id = ?
		ORDER BY sequence_number DESC
		LIMIT 1`, caseID)
	return scanSQLiteVersion(row)
}

func (r *sqliteVersionRepository) List(ctx context.Context, caseID string) ([]domain.NarrativeVersion, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+sqliteVersionColumns+` FROM narrative_versions
		WHERE case_id = ?
		ORDER BY sequence_number ASC`, caseID)
	if err != nil {
		return nil, fmt.Errorf("failed to list narrative versions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var versions []domain.NarrativeVersion
	for rows.Next() {
		version, err := scanSQLiteVersion(rows)
		if err != nil {
			return nil, err
		}
		versions = append(versions, version)
	}
	return versions, rows.Err()
}

func (r *sqliteVersionRepository) UpdateState(ctx context.Context, id uuid.UUID, state domain.VersionState) (domain.NarrativeVersion, error) {
	if _, err := r.db.ExecContext(ctx, `UPDATE narrative_versions SET state = ? WHERE id = ?`, string(state), id.String()); err != nil {
		return domain.NarrativeVersion{}, fmt.Errorf("failed to update version state: %w", err)
	}
	return r.GetByID(ctx, id)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteVersion(row rowScanner) (domain.NarrativeVersion, error) {
	var v domain.NarrativeVersion
	var id, state, source, createdAt string
	err := row.Scan(&id, &v.CaseID, &v.SequenceNumber, &v.Text, &state, &source, &v.AuthorID,
		&v.Model.ModelName, &v.Model.ModelHash, &v.Model.PromptHash,
		&v.WordCount, &v.CompletenessScore, &v.ComplianceScore, &v.IntegrityHash, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.NarrativeVersion{}, fmt.Errorf("%w: narrative version", domain.ErrNotFound)
		}
		return domain.NarrativeVersion{}, fmt.Errorf("failed to scan narrative version: %w", err)
	}
	v.ID, err = uuid.Parse(id)
	if err != nil {
		return domain.NarrativeVersion{}, fmt.Errorf("corrupt version id %q: %w", id, err)
	}
	v.State = domain.VersionState(state)
	v.Source = domain.VersionSource(source)
	v.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return domain.NarrativeVersion{}, fmt.Errorf("corrupt created_at %q: %w", createdAt, err)
	}
	return v, nil
}

// sqliteChangeRepository implements ChangeRepository on an embedded database.
type sqliteChangeRepository struct {
	db *sql.DB
}

// NewSQLiteChangeRepository creates a SQLite-backed change store.
func NewSQLiteChangeRepository(db *sql.DB) ChangeRepository {
	return &sqliteChangeRepository{db: db}
}

const sqliteChangeColumns = `id, case_id, from_version_id, to_version_id, change_type, severity,
	original_text, modified_text, line_number, clinical_terms, requires_review,
	justification, justified_by, created_at`

func (r *sqliteChangeRepository) CreateBatch(ctx context.Context, changes []domain.ChangeRecord) error {
	if len(changes) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, change := range changes {
		terms, err := json.Marshal(change.ClinicalTermsMatched)
		if err != nil {
			return fmt.Errorf("failed to encode clinical terms: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO change_records (`+sqliteChangeColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			change.ID.String(), change.CaseID, change.FromVersionID.String(), change.ToVersionID.String(),
			string(change.ChangeType), string(change.Severity),
			change.OriginalText, change.ModifiedText, change.LineNumber,
			string(terms), change.RequiresReview,
			change.Justification, change.JustifiedBy,
			change.CreatedAt.UTC().Format(time.RFC3339Nano),
		)
		if err != nil {
			return fmt.Errorf("failed to insert change record: %w", err)
		}
	}
	return tx.Commit()
}

func (r *sqliteChangeRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.ChangeRecord, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sqliteChangeColumns+` FROM change_records WHERE id = ?`, id.String())
	return scanSQLiteChange(row)
}

func (r *sqliteChangeRepository) ListByCase(ctx context.Context, caseID string) ([]domain.ChangeRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+sqliteChangeColumns+` FROM change_records
		WHERE case_id = ?
		ORDER BY created_at ASC, line_number ASC`, caseID)
	if err != nil {
		return nil, fmt.Errorf("failed to list change records: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return collectSQLiteChanges(rows)
}

func (r *sqliteChangeRepository) ListForVersion(ctx context.Context, toVersionID uuid.UUID) ([]domain.ChangeRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+sqliteChangeColumns+` FROM change_records
		WHERE to_version_id = ?
		ORDER BY line_number ASC`, toVersionID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list change records for version: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return collectSQLiteChanges(rows)
}

func (r *sqliteChangeRepository) SetJustification(ctx context.Context, id uuid.UUID, justification, justifiedBy string) (domain.ChangeRecord, error) {
	if _, err := r.db.ExecContext(ctx, `
		UPDATE change_records SET justification = ?, justified_by = ? WHERE id = ?`,
		justification, justifiedBy, id.String()); err != nil {
		return domain.ChangeRecord{}, fmt.Errorf("failed to set justification: %w", err)
	}
	return r.GetByID(ctx, id)
}

func collectSQLiteChanges(rows *sql.Rows) ([]domain.ChangeRecord, error) {
	var changes []domain.ChangeRecord
	for rows.Next() {
		change, err := scanSQLiteChange(rows)
		if err != nil {
			return nil, err
		}
		changes = append(changes, change)
	}
	return changes, rows.Err()
}

func scanSQLiteChange(row rowScanner) (domain.ChangeRecord, error) {
	var c domain.ChangeRecord
	var id, fromID, toID, changeType, severity, terms, createdAt string
	err := row.Scan(&id, &c.CaseID, &fromID, &toID, &changeType, &severity,
		&c.OriginalText, &c.ModifiedText, &c.LineNumber, &terms,
		&c.RequiresReview, &c.Justification, &c.JustifiedBy, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ChangeRecord{}, fmt.Errorf("%w: change record", domain.ErrNotFound)
		}
		return domain.ChangeRecord{}, fmt.Errorf("failed to scan change record: %w", err)
	}
	if c.ID, err = uuid.Parse(id); err != nil {
		return domain.ChangeRecord{}, fmt.Errorf("corrupt change id %q: %w", id, err)
	}
	if c.FromVersionID, err = uuid.Parse(fromID); err != nil {
		return domain.ChangeRecord{}, fmt.Errorf("corrupt from_version_id %q: %w", fromID, err)
	}
	if c.ToVersionID, err = uuid.Parse(toID); err != nil {
		return domain.ChangeRecord{}, fmt.Errorf("corrupt to_version_id %q: %w", toID, err)
	}
	c.ChangeType = domain.ChangeType(changeType)
	c.Severity = domain.Severity(severity)
	if err := json.Unmarshal([]byte(terms), &c.ClinicalTermsMatched); err != nil {
		return domain.ChangeRecord{}, fmt.Errorf("corrupt clinical terms %q: %w", terms, err)
	}
	if c.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return domain.ChangeRecord{}, fmt.Errorf("corrupt created_at %q: %w", createdAt, err)
	}
	return c, nil
}
