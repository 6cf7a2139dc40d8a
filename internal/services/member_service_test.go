package services_test

import (
	"context"
	"database/sql"
	"sync"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goodscommunity/internal/domain"
	"goodscommunity/internal/repos"
	"goodscommunity/internal/services"
	"goodscommunity/internal/session"
)

type memberFixture struct {
	svc   *services.MemberService
	repo  *repos.MemberRepo
	notes *recorder
	blobs *memBlobs
}

func newMemberFixture(t *testing.T) memberFixture {
	repo := repos.NewMemberRepo(memdb(t))
	notes := &recorder{}
	blobs := newMemBlobs()
	return memberFixture{
		svc:   services.NewMemberService(repo, blobs, notes, nil),
		repo:  repo,
		notes: notes,
		blobs: blobs,
	}
}

func TestRegisterMemberBroadcastsSignupOnce(t *testing.T) {
	f := newMemberFixture(t)
	ctx := context.Background()

	view, err := f.svc.RegisterMember(ctx, services.Registration{Email: "a@x.com", Name: "A", Password: "secret-1"})
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", view.Email)

	require.Len(t, f.notes.broadcasts, 1)
	ev := f.notes.broadcasts[0]
	assert.Equal(t, domain.EventSignup, ev.Kind)
	assert.Equal(t, "A", ev.Attributes["name"])
	assert.NotZero(t, ev.Timestamp)

	stored, err := f.repo.ByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.NotEqual(t, "secret-1", stored.Hash)
}

func TestRegisterMemberRejectsMissingFields(t *testing.T) {
	f := newMemberFixture(t)
	cases := map[string]services.Registration{
		"no email":  {Name: "A", Password: "pw"},
		"bad email": {Email: "not-an-email", Name: "A", Password: "pw"},
		"no name":   {Email: "a@x.com", Password: "pw"},
		"no pass":   {Email: "a@x.com", Name: "A"},
	}
	for name, r := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.RegisterMember(context.Background(), r)
			requireKind(t, domain.KindInvalidArgument, err)
		})
	}
	assert.Empty(t, f.notes.broadcasts)
}

func TestRegisterMemberDuplicateEmail(t *testing.T) {
	f := newMemberFixture(t)
	_, err := f.svc.RegisterMember(context.Background(), services.Registration{Email: "alice@goods.test", Name: "Other", Password: "pw"})
	requireKind(t, domain.KindConflict, err)
	assert.Empty(t, f.notes.broadcasts)
}

func TestRegisterMemberConcurrentSameEmail(t *testing.T) {
	f := newMemberFixture(t)
	const n = 4
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.RegisterMember(context.Background(), services.Registration{Email: "race@x.com", Name: "R", Password: "pw"})
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.Equal(t, domain.KindConflict, domain.KindOf(err))
	}
	assert.Equal(t, 1, ok)
	assert.Len(t, f.notes.broadcasts, 1)
}

func newMockMemberService(t *testing.T) (*services.MemberService, sqlmock.Sqlmock, *recorder) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = mockDB.Close() })
	notes := &recorder{}
	repo := repos.NewMemberRepo(sqlx.NewDb(mockDB, "sqlmock"))
	return services.NewMemberService(repo, newMemBlobs(), notes, nil), mock, notes
}

func TestRegisterMemberStoreFailureDoesNotNotify(t *testing.T) {
	svc, mock, notes := newMockMemberService(t)

	mock.ExpectQuery(`FROM members WHERE`).WillReturnError(sql.ErrNoRows)
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO members`).WillReturnError(errBoom)
	mock.ExpectRollback()

	_, err := svc.RegisterMember(context.Background(), services.Registration{Email: "a@x.com", Name: "A", Password: "pw"})
	requireKind(t, domain.KindInternal, err)
	assert.NotContains(t, err.Error(), "boom")
	assert.Empty(t, notes.broadcasts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegisterMemberUniqueViolationIsConflict(t *testing.T) {
	svc, mock, notes := newMockMemberService(t)

	mock.ExpectQuery(`FROM members WHERE`).WillReturnError(sql.ErrNoRows)
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO members`).WillReturnError(errUnique)
	mock.ExpectRollback()

	_, err := svc.RegisterMember(context.Background(), services.Registration{Email: "a@x.com", Name: "A", Password: "pw"})
	requireKind(t, domain.KindConflict, err)
	assert.Empty(t, notes.broadcasts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuthenticate(t *testing.T) {
	f := newMemberFixture(t)
	ctx := context.Background()

	sess := newSession()
	_, err := f.svc.Authenticate(ctx, "ghost@goods.test", "Passw0rd!", sess)
	requireKind(t, domain.KindNotFound, err)

	_, err = f.svc.Authenticate(ctx, "alice@goods.test", "wrong", sess)
	requireKind(t, domain.KindInvalidCredential, err)
	authed, _, err := f.svc.CheckStatus(ctx, sess)
	require.NoError(t, err)
	assert.False(t, authed, "failed login leaves the session anonymous")

	view, err := f.svc.Authenticate(ctx, "alice@goods.test", "Passw0rd!", sess)
	require.NoError(t, err)
	assert.Equal(t, "Alice", view.Name)

	authed, got, err := f.svc.CheckStatus(ctx, sess)
	require.NoError(t, err)
	assert.True(t, authed)
	assert.Equal(t, "alice@goods.test", got.Email)
}

func TestAuthenticateAfterRegisterWithOtherPassword(t *testing.T) {
	f := newMemberFixture(t)
	ctx := context.Background()
	_, err := f.svc.RegisterMember(ctx, services.Registration{Email: "a@x.com", Name: "A", Password: "right-one"})
	require.NoError(t, err)

	sess := newSession()
	_, err = f.svc.Authenticate(ctx, "a@x.com", "wrong", sess)
	requireKind(t, domain.KindInvalidCredential, err)
	authed, _, err := f.svc.CheckStatus(ctx, sess)
	require.NoError(t, err)
	assert.False(t, authed)
}

func TestLogoutIsIdempotent(t *testing.T) {
	f := newMemberFixture(t)
	ctx := context.Background()
	sess := newSession()

	require.NoError(t, f.svc.Logout(ctx, sess))
	authed, _, err := f.svc.CheckStatus(ctx, sess)
	require.NoError(t, err)
	assert.False(t, authed)

	_, err = f.svc.Authenticate(ctx, "alice@goods.test", "Passw0rd!", sess)
	require.NoError(t, err)
	require.NoError(t, f.svc.Logout(ctx, sess))
	require.NoError(t, f.svc.Logout(ctx, sess))
	authed, _, err = f.svc.CheckStatus(ctx, sess)
	require.NoError(t, err)
	assert.False(t, authed)
}

func loggedIn(t *testing.T, f memberFixture, email string) *session.Session {
	t.Helper()
	sess := newSession()
	_, err := f.svc.Authenticate(context.Background(), email, "Passw0rd!", sess)
	require.NoError(t, err)
	return sess
}

func TestUpdateMemberRequiresSession(t *testing.T) {
	f := newMemberFixture(t)
	_, err := f.svc.UpdateMember(context.Background(), domain.MemberPatch{Name: "X"}, "", newSession())
	requireKind(t, domain.KindUnauthorized, err)
}

func TestUpdateMemberWrongCurrentPasswordAppliesNothing(t *testing.T) {
	f := newMemberFixture(t)
	ctx := context.Background()
	sess := loggedIn(t, f, "alice@goods.test")

	patch := domain.MemberPatch{Name: "Mallory", Phone: "000", Address: "Nowhere", Password: "N3w-pass!"}
	_, err := f.svc.UpdateMember(ctx, patch, "not-my-password", sess)
	requireKind(t, domain.KindUnauthorized, err)

	stored, err := f.repo.ByEmail(ctx, "alice@goods.test")
	require.NoError(t, err)
	assert.Equal(t, "Alice", stored.Name)
	assert.Equal(t, "010-1111-2222", stored.Phone)
	assert.Equal(t, "Seoul", stored.Address)
	assert.Empty(t, f.notes.private)

	_, err = f.svc.Authenticate(ctx, "alice@goods.test", "Passw0rd!", newSession())
	assert.NoError(t, err, "old password still works")
}

func TestUpdateMemberAppliesPatchAndNotifiesPrivately(t *testing.T) {
	f := newMemberFixture(t)
	ctx := context.Background()
	sess := loggedIn(t, f, "alice@goods.test")

	patch := domain.MemberPatch{Name: "Alicia", Phone: "010-9999-0000", Address: "Incheon", Password: "N3w-pass!"}
	view, err := f.svc.UpdateMember(ctx, patch, "Passw0rd!", sess)
	require.NoError(t, err)
	assert.Equal(t, "alice@goods.test", view.Email, "empty email keeps the current one")
	assert.Equal(t, "Alicia", view.Name)

	_, snap, err := f.svc.CheckStatus(ctx, sess)
	require.NoError(t, err)
	assert.Equal(t, "Alicia", snap.Name)
	assert.Equal(t, "Incheon", snap.Address)

	require.Len(t, f.notes.private, 1)
	assert.Equal(t, "alice@goods.test", f.notes.private[0].to)
	assert.Equal(t, domain.EventProfileUpdated, f.notes.private[0].ev.Kind)
	assert.Empty(t, f.notes.broadcasts)

	_, err = f.svc.Authenticate(ctx, "alice@goods.test", "N3w-pass!", newSession())
	assert.NoError(t, err)
}

func TestUpdateMemberChangesEmail(t *testing.T) {
	f := newMemberFixture(t)
	ctx := context.Background()
	sess := loggedIn(t, f, "alice@goods.test")

	_, err := f.svc.UpdateMember(ctx, domain.MemberPatch{Email: "bob@goods.test", Name: "Alice"}, "", sess)
	requireKind(t, domain.KindConflict, err)

	view, err := f.svc.UpdateMember(ctx, domain.MemberPatch{Email: "alice2@goods.test", Name: "Alice"}, "", sess)
	require.NoError(t, err)
	assert.Equal(t, "alice2@goods.test", view.Email)

	old, err := f.repo.ByEmail(ctx, "alice@goods.test")
	require.NoError(t, err)
	assert.Nil(t, old)
	_, snap, err := f.svc.CheckStatus(ctx, sess)
	require.NoError(t, err)
	assert.Equal(t, "alice2@goods.test", snap.Email)
}

func TestUpdateMemberZeroRowsIsInternal(t *testing.T) {
	svc, mock, notes := newMockMemberService(t)
	ctx := context.Background()
	sess := newSession()
	require.NoError(t, sess.Set(ctx, domain.MemberView{Email: "a@x.com", Name: "A"}))

	cols := []string{"email", "name", "password_hash", "phone", "address", "profile_image", "created_at", "updated_at"}
	mock.ExpectQuery(`FROM members WHERE`).
		WillReturnRows(sqlmock.NewRows(cols).AddRow("a@x.com", "A", "h", "", "", nil, "", ""))
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE members`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	_, err := svc.UpdateMember(ctx, domain.MemberPatch{Name: "B"}, "", sess)
	requireKind(t, domain.KindInternal, err)
	assert.Empty(t, notes.private)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateProfileImageCheckOrder(t *testing.T) {
	f := newMemberFixture(t)
	ctx := context.Background()

	_, err := f.svc.UpdateProfileImage(ctx, newSession(), "alice@goods.test", pngUpload("a.png"))
	requireKind(t, domain.KindUnauthorized, err)

	sess := loggedIn(t, f, "alice@goods.test")
	_, err = f.svc.UpdateProfileImage(ctx, sess, "bob@goods.test", pngUpload("a.png"))
	requireKind(t, domain.KindForbidden, err)

	// ownership is checked before the payload
	_, err = f.svc.UpdateProfileImage(ctx, sess, "bob@goods.test", domain.Upload{})
	requireKind(t, domain.KindForbidden, err)

	bad := map[string]domain.Upload{
		"empty":     {Filename: "a.png", ContentType: "image/png"},
		"not image": {Filename: "a.txt", ContentType: "text/plain", Data: []byte("hi")},
		"too big":   {Filename: "a.png", ContentType: "image/png", Data: make([]byte, services.MaxImageBytes+1)},
	}
	for name, up := range bad {
		_, err = f.svc.UpdateProfileImage(ctx, sess, "alice@goods.test", up)
		assert.Equal(t, domain.KindInvalidArgument, domain.KindOf(err), name)
	}
	assert.Zero(t, f.blobs.puts, "no blob writes before every check passes")
}

func TestUpdateProfileImageReplacesOldImage(t *testing.T) {
	f := newMemberFixture(t)
	ctx := context.Background()
	sess := loggedIn(t, f, "alice@goods.test")

	first, err := f.svc.UpdateProfileImage(ctx, sess, "Alice@Goods.test", pngUpload("me.PNG"))
	require.NoError(t, err)
	assert.True(t, isProfileRef(first), first)

	second, err := f.svc.UpdateProfileImage(ctx, sess, "alice@goods.test", pngUpload("me2.png"))
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
	assert.False(t, f.blobs.has(first), "old image deleted")
	assert.True(t, f.blobs.has(second))

	stored, err := f.repo.ByEmail(ctx, "alice@goods.test")
	require.NoError(t, err)
	require.NotNil(t, stored.ProfileImage)
	assert.Equal(t, second, *stored.ProfileImage)

	_, snap, err := f.svc.CheckStatus(ctx, sess)
	require.NoError(t, err)
	require.NotNil(t, snap.ProfileImage)
	assert.Equal(t, second, *snap.ProfileImage)
}

func TestUpdateProfileImageFromStaleSessionRemovesCurrentImage(t *testing.T) {
	f := newMemberFixture(t)
	ctx := context.Background()
	phone := loggedIn(t, f, "alice@goods.test")
	laptop := loggedIn(t, f, "alice@goods.test")

	first, err := f.svc.UpdateProfileImage(ctx, phone, "alice@goods.test", pngUpload("a.png"))
	require.NoError(t, err)

	// laptop still holds a snapshot without any image
	second, err := f.svc.UpdateProfileImage(ctx, laptop, "alice@goods.test", pngUpload("b.png"))
	require.NoError(t, err)
	assert.False(t, f.blobs.has(first), "image in use before the upload is deleted")
	assert.True(t, f.blobs.has(second))
	assert.Len(t, f.blobs.objects, 1)
}

func TestUpdateProfileImageRowFailureRemovesBlob(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()
	blobs := newMemBlobs()
	svc := services.NewMemberService(repos.NewMemberRepo(sqlx.NewDb(mockDB, "sqlmock")), blobs, nil, nil)

	ctx := context.Background()
	sess := newSession()
	require.NoError(t, sess.Set(ctx, domain.MemberView{Email: "a@x.com"}))
	cols := []string{"email", "name", "password_hash", "phone", "address", "profile_image", "created_at", "updated_at"}
	mock.ExpectQuery(`FROM members WHERE`).
		WillReturnRows(sqlmock.NewRows(cols).AddRow("a@x.com", "A", "h", "", "", nil, "", ""))
	mock.ExpectExec(`UPDATE members SET profile_image`).WillReturnError(errBoom)

	_, err = svc.UpdateProfileImage(ctx, sess, "a@x.com", pngUpload("a.png"))
	requireKind(t, domain.KindInternal, err)
	assert.Equal(t, 1, blobs.puts)
	require.Len(t, blobs.deletes, 1)
	assert.Empty(t, blobs.objects)
	assert.NoError(t, mock.ExpectationsWereMet())
}
