package services

import (
	"context"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"goodscommunity/internal/blob"
	"goodscommunity/internal/domain"
	"goodscommunity/internal/session"
	"goodscommunity/internal/validate"
)

// Registration is a signup request. Password is plain text.
type Registration struct {
	Email    string
	Name     string
	Password string
	Phone    string
	Address  string
}

type MemberService struct {
	Members MemberStore
	Blobs   blob.Store
	Notify  Notifier
	Log     *zap.Logger
}

func NewMemberService(members MemberStore, blobs blob.Store, notify Notifier, log *zap.Logger) *MemberService {
	return &MemberService{Members: members, Blobs: blobs, Notify: orNopNotifier(notify), Log: orNop(log)}
}

func (s *MemberService) RegisterMember(ctx context.Context, r Registration) (domain.MemberView, error) {
	email, ok := validate.Email(r.Email)
	if !ok {
		return domain.MemberView{}, domain.InvalidArgument("a valid email is required")
	}
	name := strings.TrimSpace(r.Name)
	if name == "" {
		return domain.MemberView{}, domain.InvalidArgument("name is required")
	}
	if r.Password == "" {
		return domain.MemberView{}, domain.InvalidArgument("password is required")
	}

	existing, err := s.Members.ByEmail(ctx, email)
	if err != nil {
		return domain.MemberView{}, internal(s.Log, "member.signup.lookup", err, zap.String("email", email))
	}
	if existing != nil {
		return domain.MemberView{}, domain.Conflict("email is already registered")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(r.Password), bcrypt.DefaultCost)
	if err != nil {
		return domain.MemberView{}, internal(s.Log, "member.signup.hash", err)
	}
	m := &domain.Member{
		Email:   email,
		Name:    name,
		Hash:    string(hash),
		Phone:   strings.TrimSpace(r.Phone),
		Address: strings.TrimSpace(r.Address),
	}
	n, err := s.Members.Insert(ctx, m)
	if err != nil {
		return domain.MemberView{}, storeErr(s.Log, "member.signup.insert", err, "email is already registered", zap.String("email", email))
	}
	if n == 0 {
		return domain.MemberView{}, internal(s.Log, "member.signup.insert", errZeroRows, zap.String("email", email))
	}

	s.Notify.Broadcast(domain.NewEvent(domain.EventSignup, map[string]any{
		"name": m.Name,
		"msg":  "joined the community",
	}))
	s.Log.Info("member.signup", zap.String("email", email))
	return m.View(), nil
}

func (s *MemberService) Authenticate(ctx context.Context, email, password string, sess *session.Session) (domain.MemberView, error) {
	m, err := s.Members.ByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		return domain.MemberView{}, internal(s.Log, "member.login.lookup", err)
	}
	if m == nil {
		return domain.MemberView{}, domain.NotFound("no member with that email")
	}
	if bcrypt.CompareHashAndPassword([]byte(m.Hash), []byte(password)) != nil {
		return domain.MemberView{}, domain.InvalidCredential("email or password does not match")
	}
	view := m.View()
	if err := sess.Set(ctx, view); err != nil {
		return domain.MemberView{}, internal(s.Log, "member.login.session", err)
	}
	return view, nil
}

func (s *MemberService) Logout(ctx context.Context, sess *session.Session) error {
	if err := sess.Clear(ctx); err != nil {
		return internal(s.Log, "member.logout.session", err)
	}
	return nil
}

// CheckStatus reports whether sess carries a member, and which.
func (s *MemberService) CheckStatus(ctx context.Context, sess *session.Session) (bool, domain.MemberView, error) {
	m, err := sess.Member(ctx)
	if err != nil {
		return false, domain.MemberView{}, internal(s.Log, "member.check.session", err)
	}
	if m == nil {
		return false, domain.MemberView{}, nil
	}
	return true, *m, nil
}

// current returns the member row behind sess, or Unauthorized.
func (s *MemberService) current(ctx context.Context, sess *session.Session) (*domain.MemberView, *domain.Member, error) {
	view, err := sess.Member(ctx)
	if err != nil {
		return nil, nil, internal(s.Log, "member.session", err)
	}
	if view == nil {
		return nil, nil, domain.Unauthorized("login required")
	}
	stored, err := s.Members.ByEmail(ctx, view.Email)
	if err != nil {
		return nil, nil, internal(s.Log, "member.lookup", err, zap.String("email", view.Email))
	}
	if stored == nil {
		_ = sess.Clear(ctx)
		return nil, nil, domain.Unauthorized("login required")
	}
	return view, stored, nil
}

// UpdateMember applies patch to the logged-in member. A new password needs
// the current one; when it does not match nothing is written.
func (s *MemberService) UpdateMember(ctx context.Context, patch domain.MemberPatch, currentPassword string, sess *session.Session) (domain.MemberView, error) {
	_, stored, err := s.current(ctx, sess)
	if err != nil {
		return domain.MemberView{}, err
	}

	next := *stored
	if patch.Password != "" {
		if bcrypt.CompareHashAndPassword([]byte(stored.Hash), []byte(currentPassword)) != nil {
			return domain.MemberView{}, domain.Unauthorized("current password does not match")
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(patch.Password), bcrypt.DefaultCost)
		if err != nil {
			return domain.MemberView{}, internal(s.Log, "member.update.hash", err)
		}
		next.Hash = string(hash)
	}

	if strings.TrimSpace(patch.Email) != "" {
		email, ok := validate.Email(patch.Email)
		if !ok {
			return domain.MemberView{}, domain.InvalidArgument("a valid email is required")
		}
		if !strings.EqualFold(email, stored.Email) {
			other, err := s.Members.ByEmail(ctx, email)
			if err != nil {
				return domain.MemberView{}, internal(s.Log, "member.update.lookup", err)
			}
			if other != nil {
				return domain.MemberView{}, domain.Conflict("email is already registered")
			}
		}
		next.Email = email
	}
	next.Name = strings.TrimSpace(patch.Name)
	next.Phone = strings.TrimSpace(patch.Phone)
	next.Address = strings.TrimSpace(patch.Address)

	n, err := s.Members.Update(ctx, stored.Email, &next)
	if err != nil {
		return domain.MemberView{}, storeErr(s.Log, "member.update", err, "email is already registered", zap.String("email", stored.Email))
	}
	if n == 0 {
		return domain.MemberView{}, internal(s.Log, "member.update", errZeroRows, zap.String("email", stored.Email))
	}

	view := next.View()
	if err := sess.Set(ctx, view); err != nil {
		// the row is committed; the next request reloads through the store
		s.Log.Warn("member.update.session", zap.String("email", view.Email), zap.Error(err))
	}
	s.Notify.SendToMember(view.Email, domain.NewEvent(domain.EventProfileUpdated, map[string]any{
		"memberEmail": view.Email,
		"memberName":  view.Name,
	}))
	return view, nil
}

// UpdateProfileImage replaces the profile image of claimedEmail, which must
// be the logged-in member. It returns the new image reference.
func (s *MemberService) UpdateProfileImage(ctx context.Context, sess *session.Session, claimedEmail string, up domain.Upload) (string, error) {
	_, stored, err := s.current(ctx, sess)
	if err != nil {
		return "", err
	}
	if !strings.EqualFold(strings.TrimSpace(claimedEmail), stored.Email) {
		return "", domain.Forbidden("you can only change your own profile image")
	}
	if err := checkImage(up); err != nil {
		return "", err
	}

	ref, err := s.Blobs.Put(ctx, blobName(profileImageDir, up), up.ContentType, up.Data)
	if err != nil {
		return "", internal(s.Log, "member.image.put", err, zap.String("email", stored.Email))
	}
	n, err := s.Members.UpdateProfileImage(ctx, stored.Email, ref)
	if err == nil && n == 0 {
		err = errZeroRows
	}
	if err != nil {
		s.deleteBlob(ctx, ref)
		return "", internal(s.Log, "member.image.update", err, zap.String("email", stored.Email))
	}

	// the row, not the snapshot, names the image currently in use
	if old := stored.ProfileImage; old != nil && inDir(*old, profileImageDir) && *old != ref {
		s.deleteBlob(ctx, *old)
	}
	stored.ProfileImage = &ref
	view := stored.View()
	if err := sess.Set(ctx, view); err != nil {
		s.Log.Warn("member.image.session", zap.String("email", view.Email), zap.Error(err))
	}
	return ref, nil
}

func (s *MemberService) deleteBlob(ctx context.Context, ref string) {
	if err := s.Blobs.Delete(ctx, ref); err != nil {
		s.Log.Warn("blob.delete", zap.String("ref", ref), zap.Error(err))
	}
}
