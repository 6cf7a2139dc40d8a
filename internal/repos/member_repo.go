package repos

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"goodscommunity/internal/domain"
)

type MemberRepo struct{ DB *sqlx.DB }

func NewMemberRepo(db *sqlx.DB) *MemberRepo { return &MemberRepo{DB: db} }

const memberColumns = `email, name, password_hash, phone, address, profile_image,
    COALESCE(created_at,'') AS created_at, COALESCE(updated_at,'') AS updated_at`

// ByEmail returns nil, nil when no member has that email.
func (r *MemberRepo) ByEmail(ctx context.Context, email string) (*domain.Member, error) {
	var m domain.Member
	err := r.DB.GetContext(ctx, &m, `SELECT `+memberColumns+` FROM members WHERE LOWER(email)=LOWER(?)`, email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select member: %w", err)
	}
	return &m, nil
}

func (r *MemberRepo) Insert(ctx context.Context, m *domain.Member) (int64, error) {
	tx, err := r.DB.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO members(email,name,password_hash,phone,address,profile_image,created_at)
		VALUES(?,?,?,?,?,?,CURRENT_TIMESTAMP)`,
		m.Email, m.Name, m.Hash, m.Phone, m.Address, m.ProfileImage)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, ErrDuplicate
		}
		return 0, fmt.Errorf("insert member: %w", err)
	}
	n, _ := res.RowsAffected()
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return n, nil
}

// Update overwrites the row currently keyed by email with m, including a
// possibly changed email.
func (r *MemberRepo) Update(ctx context.Context, email string, m *domain.Member) (int64, error) {
	tx, err := r.DB.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE members
		SET email=?, name=?, password_hash=?, phone=?, address=?, updated_at=CURRENT_TIMESTAMP
		WHERE LOWER(email)=LOWER(?)`,
		m.Email, m.Name, m.Hash, m.Phone, m.Address, email)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, ErrDuplicate
		}
		return 0, fmt.Errorf("update member: %w", err)
	}
	n, _ := res.RowsAffected()
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return n, nil
}

func (r *MemberRepo) UpdateProfileImage(ctx context.Context, email, ref string) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE members SET profile_image=?, updated_at=CURRENT_TIMESTAMP
		WHERE LOWER(email)=LOWER(?)`, ref, email)
	if err != nil {
		return 0, fmt.Errorf("update profile image: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
