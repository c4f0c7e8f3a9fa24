package repo

import (
	"context"
	"database/sql"
	"errors"
	"strings"
)

type PostgresPromptRepo struct {
	db *sql.DB
}

func NewPostgresPromptRepo(db *sql.DB) *PostgresPromptRepo {
	return &PostgresPromptRepo{db: db}
}

// ReplyPrompt reports false when the org has no non-blank reply_message.
func (r *PostgresPromptRepo) ReplyPrompt(ctx context.Context, orgID string) (string, bool, error) {
	var msg sql.NullString
	err := r.db.QueryRowContext(ctx, `
		SELECT reply_message FROM lead_text_prompt WHERE org_id = $1 LIMIT 1
	`, orgID).Scan(&msg)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	if !msg.Valid || strings.TrimSpace(msg.String) == "" {
		return "", false, nil
	}
	return msg.String, true, nil
}
