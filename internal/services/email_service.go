package services

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"math/big"
	"strings"
	"time"

	"go.uber.org/zap"

	"goodscommunity/internal/domain"
	"goodscommunity/internal/mail"
	"goodscommunity/internal/validate"
)

const (
	authKeyLen      = 6
	authKeyAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

type EmailService struct {
	Keys AuthKeyStore
	Mail mail.Sender
	TTL  time.Duration
	Log  *zap.Logger

	now    func() time.Time
	newKey func() (string, error)
}

func NewEmailService(keys AuthKeyStore, sender mail.Sender, ttl time.Duration, log *zap.Logger) *EmailService {
	return &EmailService{Keys: keys, Mail: sender, TTL: ttl, Log: orNop(log), now: time.Now, newKey: generateKey}
}

func generateKey() (string, error) {
	var b strings.Builder
	max := big.NewInt(int64(len(authKeyAlphabet)))
	for i := 0; i < authKeyLen; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(authKeyAlphabet[n.Int64()])
	}
	return b.String(), nil
}

func normalizeEmail(s string) (string, bool) {
	email, ok := validate.Email(s)
	return strings.ToLower(email), ok
}

// RequestEmailVerification issues a fresh key for email, replacing any
// earlier one, and mails it. The bool reports whether the mail went out.
func (s *EmailService) RequestEmailVerification(ctx context.Context, email string) (bool, error) {
	email, ok := normalizeEmail(email)
	if !ok {
		return false, domain.InvalidArgument("a valid email is required")
	}
	key, err := s.newKey()
	if err != nil {
		return false, internal(s.Log, "email.key.generate", err)
	}
	if err := s.Keys.Upsert(ctx, domain.EmailAuthKey{Email: email, Key: key, CreatedAt: s.now().UnixMilli()}); err != nil {
		return false, internal(s.Log, "email.key.store", err, zap.String("email", email))
	}

	body := fmt.Sprintf("Your GoodsCommunity verification key is %s.\nIt expires in %s.\n", key, s.TTL)
	if err := s.Mail.Send(ctx, email, "[GoodsCommunity] Email verification", body); err != nil {
		s.Log.Warn("email.send.fail", zap.String("email", email), zap.Error(err))
		return false, nil
	}
	s.Log.Info("email.send", zap.String("email", email))
	return true, nil
}

// CheckEmailVerification consumes the key for email if it matches. A key
// verifies at most once.
func (s *EmailService) CheckEmailVerification(ctx context.Context, email, key string) error {
	email, ok := normalizeEmail(email)
	if !ok {
		return domain.InvalidArgument("a valid email is required")
	}
	key = strings.ToUpper(strings.TrimSpace(key))

	stored, err := s.Keys.ByEmail(ctx, email)
	if err != nil {
		return internal(s.Log, "email.key.lookup", err, zap.String("email", email))
	}
	if stored == nil || s.expired(stored) {
		return domain.NotFound("no verification key for this email")
	}
	if subtle.ConstantTimeCompare([]byte(stored.Key), []byte(key)) != 1 {
		return domain.InvalidArgument("verification key does not match")
	}
	n, err := s.Keys.Consume(ctx, email, stored.Key)
	if err != nil {
		return internal(s.Log, "email.key.consume", err, zap.String("email", email))
	}
	if n == 0 {
		// consumed or re-issued since the read
		return domain.NotFound("no verification key for this email")
	}
	return nil
}

func (s *EmailService) expired(k *domain.EmailAuthKey) bool {
	if s.TTL <= 0 {
		return false
	}
	return s.now().Sub(time.UnixMilli(k.CreatedAt)) > s.TTL
}
