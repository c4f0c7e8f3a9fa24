package repo

import (
	"context"
	"database/sql"
	"errors"

	"github.com/glonboarding/hr-lambda-telnyx/internal/model"
)

type PostgresLeadRepo struct {
	db *sql.DB
}

func NewPostgresLeadRepo(db *sql.DB) *PostgresLeadRepo {
	return &PostgresLeadRepo{db: db}
}

func (r *PostgresLeadRepo) FindByPhone(ctx context.Context, phone string) (*model.Lead, error) {
	var l model.Lead
	var optIn sql.NullBool
	var msgStatus sql.NullString

	err := r.db.QueryRowContext(ctx, `
		SELECT id, org_id, phone, opt_in, message_status
		FROM leads
		WHERE phone = $1
		LIMIT 1
	`, phone).Scan(&l.ID, &l.OrgID, &l.Phone, &optIn, &msgStatus)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if optIn.Valid {
		v := optIn.Bool
		l.OptIn = model.OptInFromNullable(&v)
	}
	l.MessageStatus = model.LeadMessageStatus(msgStatus.String)
	return &l, nil
}

func (r *PostgresLeadRepo) UpdateOptIn(ctx context.Context, id string, optIn model.OptIn) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE leads SET opt_in = $2 WHERE id = $1
	`, id, optIn.Nullable())
	return err
}

func (r *PostgresLeadRepo) OptInIfUndecided(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE leads SET opt_in = true WHERE id = $1 AND opt_in IS NULL
	`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *PostgresLeadRepo) UpdateMessageStatusIfQueued(ctx context.Context, id string, status model.LeadMessageStatus) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE leads SET message_status = $2 WHERE id = $1 AND message_status = 'queued'
	`, id, string(status))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}
