package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"abm-playbook-workers/internal/models"

	"github.com/google/uuid"
)

const createArchiveTable = `CREATE TABLE IF NOT EXISTS abm_playbooks (
	id           UUID PRIMARY KEY,
	playbook_id  TEXT NOT NULL UNIQUE,
	generated_at TIMESTAMPTZ NOT NULL,
	payload      JSONB NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

const upsertPlaybook = `INSERT INTO abm_playbooks (id, playbook_id, generated_at, payload)
VALUES ($1, $2, $3, $4)
ON CONFLICT (playbook_id) DO UPDATE SET generated_at = EXCLUDED.generated_at, payload = EXCLUDED.payload
RETURNING id`

const selectPlaybook = `SELECT payload FROM abm_playbooks WHERE playbook_id = $1`

const selectRecent = `SELECT payload FROM abm_playbooks ORDER BY generated_at DESC LIMIT $1`

// PostgresArchive keeps every playbook ever generated, beyond the capped
// history.
type PostgresArchive struct {
	db *sql.DB
}

func NewPostgresArchive(db *sql.DB) *PostgresArchive {
	return &PostgresArchive{db: db}
}

func (a *PostgresArchive) EnsureSchema(ctx context.Context) error {
	if _, err := a.db.ExecContext(ctx, createArchiveTable); err != nil {
		return fmt.Errorf("%w: create archive table: %v", ErrStoreFailed, err)
	}
	return nil
}

// Save upserts pb by playbook id and returns the archive row id.
func (a *PostgresArchive) Save(ctx context.Context, pb *models.Playbook) (string, error) {
	payload, err := json.Marshal(pb)
	if err != nil {
		return "", fmt.Errorf("%w: marshal playbook: %v", ErrStoreFailed, err)
	}

	var id string
	err = a.db.QueryRowContext(ctx, upsertPlaybook,
		uuid.New().String(), pb.PlaybookID, pb.GenerationDate.UTC(), payload,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("%w: archive playbook %s: %v", ErrStoreFailed, pb.PlaybookID, err)
	}
	return id, nil
}

func (a *PostgresArchive) Get(ctx context.Context, playbookID string) (*models.Playbook, error) {
	var payload []byte
	err := a.db.QueryRowContext(ctx, selectPlaybook, playbookID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrPlaybookNotFound, playbookID)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreFailed, err)
	}
	return decodePlaybook(payload)
}

// Recent returns up to limit archived playbooks, newest first.
func (a *PostgresArchive) Recent(ctx context.Context, limit int) ([]*models.Playbook, error) {
	rows, err := a.db.QueryContext(ctx, selectRecent, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreFailed, err)
	}
	defer rows.Close()

	out := make([]*models.Playbook, 0, limit)
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreFailed, err)
		}
		pb, err := decodePlaybook(payload)
		if err != nil {
			return nil, err
		}
		out = append(out, pb)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreFailed, err)
	}
	return out, nil
}

func decodePlaybook(payload []byte) (*models.Playbook, error) {
	var pb models.Playbook
	if err := json.Unmarshal(payload, &pb); err != nil {
		return nil, fmt.Errorf("%w: decode archived playbook: %v", ErrStoreFailed, err)
	}
	pb.EnsureSlices()
	return &pb, nil
}
