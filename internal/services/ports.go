package services

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"goodscommunity/internal/domain"
	"goodscommunity/internal/repos"
)

// Notifier receives events after a mutation has committed. Implementations
// must not block.
type Notifier interface {
	Broadcast(ev domain.NotificationEvent)
	SendToMember(email string, ev domain.NotificationEvent)
}

type MemberStore interface {
	ByEmail(ctx context.Context, email string) (*domain.Member, error)
	Insert(ctx context.Context, m *domain.Member) (int64, error)
	Update(ctx context.Context, email string, m *domain.Member) (int64, error)
	UpdateProfileImage(ctx context.Context, email, ref string) (int64, error)
}

type ProductStore interface {
	List(ctx context.Context) ([]domain.Product, error)
	ByID(ctx context.Context, id int64) (*domain.Product, error)
	ByCode(ctx context.Context, code string) (*domain.Product, error)
	ByCategory(ctx context.Context, category string) ([]domain.Product, error)
	Search(ctx context.Context, keyword string) ([]domain.Product, error)
	Insert(ctx context.Context, p *domain.Product) (int64, error)
	Update(ctx context.Context, p *domain.Product) (int64, error)
	Delete(ctx context.Context, id int64) (int64, error)
	AdjustStock(ctx context.Context, id int64, delta int) (int, int64, error)
	UpdateImage(ctx context.Context, id int64, ref string) (int64, error)
}

type AuthKeyStore interface {
	Upsert(ctx context.Context, k domain.EmailAuthKey) error
	ByEmail(ctx context.Context, email string) (*domain.EmailAuthKey, error)
	Consume(ctx context.Context, email, key string) (int64, error)
}

var (
	_ MemberStore  = (*repos.MemberRepo)(nil)
	_ ProductStore = (*repos.ProductRepo)(nil)
	_ AuthKeyStore = (*repos.AuthKeyRepo)(nil)
)

const internalMessage = "internal server error"

// internal logs the cause and returns an Internal error that does not leak it.
func internal(log *zap.Logger, action string, err error, fields ...zap.Field) error {
	log.Error(action, append(fields, zap.Error(err))...)
	return domain.Internal(internalMessage)
}

// storeErr maps a repository error: duplicates become Conflict, everything
// else is Internal.
func storeErr(log *zap.Logger, action string, err error, conflictMsg string, fields ...zap.Field) error {
	if errors.Is(err, repos.ErrDuplicate) {
		return domain.Conflict(conflictMsg)
	}
	return internal(log, action, err, fields...)
}

func orNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}

// nopNotifier drops everything; used when no hub is wired.
type nopNotifier struct{}

func (nopNotifier) Broadcast(domain.NotificationEvent)            {}
func (nopNotifier) SendToMember(string, domain.NotificationEvent) {}

func orNopNotifier(n Notifier) Notifier {
	if n == nil {
		return nopNotifier{}
	}
	return n
}

var errZeroRows = errors.New("store reported zero affected rows")
