package repo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/glonboarding/hr-lambda-telnyx/internal/model"
)

type PostgresMessageRepo struct {
	db *sql.DB
}

func NewPostgresMessageRepo(db *sql.DB) *PostgresMessageRepo {
	return &PostgresMessageRepo{db: db}
}

func (r *PostgresMessageRepo) QueuedOutbound(ctx context.Context, orgID string) ([]model.MessageRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, org_id, lead_id, number, from_number, message, direction, status
		FROM lead_texts
		WHERE org_id = $1 AND direction = 'outbound' AND status = 'queued'
		ORDER BY created_at ASC
	`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.MessageRecord
	for rows.Next() {
		var m model.MessageRecord
		var leadID sql.NullString
		var direction, status string
		if err := rows.Scan(
			&m.ID,
			&m.OrgID,
			&leadID,
			&m.Number,
			&m.FromNumber,
			&m.Message,
			&direction,
			&status,
		); err != nil {
			return nil, err
		}
		m.LeadID = nullString(leadID)
		m.Direction = model.Direction(direction)
		m.Status = model.Status(status)
		out = append(out, m)
	}
	return out, rows.Err()
}

// Insert assigns an id when the record has none and returns it.
func (r *PostgresMessageRepo) Insert(ctx context.Context, rec *model.MessageRecord) (string, error) {
	if rec == nil {
		return "", errors.New("record must not be nil")
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}

	now := time.Now().UTC()
	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO lead_texts
			(id, org_id, lead_id, number, from_number, message, direction, status,
			 telnyx_message_id, error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)
	`,
		rec.ID,
		rec.OrgID,
		rec.LeadID,
		rec.Number,
		rec.FromNumber,
		rec.Message,
		string(rec.Direction),
		string(rec.Status),
		rec.GatewayMessageID,
		rec.Error,
		now,
	); err != nil {
		return "", err
	}

	rec.CreatedAt = now
	rec.UpdatedAt = now
	return rec.ID, nil
}

// UpdateStatus moves a record out of queued. Once the record is terminal the
// update matches nothing, so replays are harmless.
func (r *PostgresMessageRepo) UpdateStatus(ctx context.Context, id string, outcome model.Outcome) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE lead_texts
		SET status = $2,
		    telnyx_message_id = $3,
		    error = $4,
		    updated_at = now()
		WHERE id = $1 AND status = 'queued'
	`, id, string(outcome.Status), outcome.GatewayMessageID, outcome.Error)
	return err
}

func (r *PostgresMessageRepo) OrgsWithQueued(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT org_id
		FROM lead_texts
		WHERE direction = 'outbound' AND status = 'queued'
		ORDER BY org_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orgs []string
	for rows.Next() {
		var org string
		if err := rows.Scan(&org); err != nil {
			return nil, err
		}
		orgs = append(orgs, org)
	}
	return orgs, rows.Err()
}

func (r *PostgresMessageRepo) ListSent(ctx context.Context, orgID string, limit, offset int) ([]model.MessageRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, org_id, lead_id, number, from_number, message, direction, status,
		       telnyx_message_id, error, created_at, updated_at
		FROM lead_texts
		WHERE org_id = $1 AND direction = 'outbound' AND status = 'sent'
		ORDER BY updated_at DESC
		LIMIT $2 OFFSET $3
	`, orgID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.MessageRecord
	for rows.Next() {
		var m model.MessageRecord
		var direction, status string
		var leadID, remoteID, lastErr sql.NullString

		if err := rows.Scan(
			&m.ID,
			&m.OrgID,
			&leadID,
			&m.Number,
			&m.FromNumber,
			&m.Message,
			&direction,
			&status,
			&remoteID,
			&lastErr,
			&m.CreatedAt,
			&m.UpdatedAt,
		); err != nil {
			return nil, err
		}

		m.Direction = model.Direction(direction)
		m.Status = model.Status(status)
		m.LeadID = nullString(leadID)
		m.GatewayMessageID = nullString(remoteID)
		m.Error = nullString(lastErr)

		out = append(out, m)
	}
	return out, rows.Err()
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}
