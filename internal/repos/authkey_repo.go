package repos

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"goodscommunity/internal/domain"
)

type AuthKeyRepo struct{ db *sqlx.DB }

func NewAuthKeyRepo(db *sqlx.DB) *AuthKeyRepo { return &AuthKeyRepo{db: db} }

// Upsert stores key as the only live key for email, replacing any prior one.
func (r *AuthKeyRepo) Upsert(ctx context.Context, k domain.EmailAuthKey) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO email_auth_keys(email, auth_key, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(email) DO UPDATE SET auth_key = excluded.auth_key, created_at = excluded.created_at
	`, k.Email, k.Key, k.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert auth key: %w", err)
	}
	return nil
}

// ByEmail returns nil, nil when no key is stored.
func (r *AuthKeyRepo) ByEmail(ctx context.Context, email string) (*domain.EmailAuthKey, error) {
	var k domain.EmailAuthKey
	err := r.db.GetContext(ctx, &k, `SELECT email, auth_key, created_at FROM email_auth_keys WHERE email = ?`, email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select auth key: %w", err)
	}
	return &k, nil
}

// Consume deletes the key only if it still matches. One caller wins when two
// race on the same key.
func (r *AuthKeyRepo) Consume(ctx context.Context, email, key string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM email_auth_keys WHERE email = ? AND auth_key = ?`, email, key)
	if err != nil {
		return 0, fmt.Errorf("delete auth key: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
