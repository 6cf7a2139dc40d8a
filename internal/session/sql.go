package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"goodscommunity/internal/domain"
)

// SQLStore binds session ids to member rows in the sessions table. The
// snapshot is read through a join, so profile edits show up immediately.
type SQLStore struct {
	DB   *sqlx.DB
	idle time.Duration
}

func NewSQLStore(db *sqlx.DB, idle time.Duration) *SQLStore {
	return &SQLStore{DB: db, idle: idle}
}

func (s *SQLStore) Get(ctx context.Context, id string) (*domain.MemberView, error) {
	var m domain.Member
	err := s.DB.GetContext(ctx, &m, `
      SELECT m.email, m.name, m.password_hash, m.phone, m.address, m.profile_image,
             COALESCE(m.created_at,'') AS created_at, COALESCE(m.updated_at,'') AS updated_at
      FROM sessions s
      JOIN members m ON m.email = s.member_email
      WHERE s.id = ? AND (? = 0 OR s.last_seen >= datetime('now', ?))`,
		id, int64(s.idle.Seconds()), fmt.Sprintf("-%d seconds", int64(s.idle.Seconds())))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("session lookup: %w", err)
	}
	if _, err := s.DB.ExecContext(ctx, `UPDATE sessions SET last_seen=CURRENT_TIMESTAMP WHERE id=?`, id); err != nil {
		return nil, fmt.Errorf("session touch: %w", err)
	}
	v := m.View()
	return &v, nil
}

func (s *SQLStore) Set(ctx context.Context, id string, m domain.MemberView) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO sessions(id, member_email, last_seen)
		VALUES(?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET member_email=excluded.member_email, last_seen=CURRENT_TIMESTAMP`,
		id, m.Email)
	if err != nil {
		return fmt.Errorf("session bind: %w", err)
	}
	return nil
}

func (s *SQLStore) Clear(ctx context.Context, id string) error {
	if _, err := s.DB.ExecContext(ctx, `DELETE FROM sessions WHERE id=?`, id); err != nil {
		return fmt.Errorf("session delete: %w", err)
	}
	return nil
}
