package services_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"goodscommunity/internal/domain"
	"goodscommunity/internal/repos"
	"goodscommunity/internal/session"
)

func memdb(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := repos.OpenDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newSession() *session.Session {
	return session.New(uuid.NewString(), session.NewMemoryStore(time.Hour))
}

type sent struct {
	to string
	ev domain.NotificationEvent
}

// recorder is a Notifier that keeps what it was given.
type recorder struct {
	mu         sync.Mutex
	broadcasts []domain.NotificationEvent
	private    []sent
}

func (r *recorder) Broadcast(ev domain.NotificationEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.broadcasts = append(r.broadcasts, ev)
}

func (r *recorder) SendToMember(email string, ev domain.NotificationEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.private = append(r.private, sent{to: email, ev: ev})
}

func (r *recorder) kinds() []domain.EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.EventKind
	for _, ev := range r.broadcasts {
		out = append(out, ev.Kind)
	}
	return out
}

// memBlobs is an in-memory blob.Store.
type memBlobs struct {
	mu      sync.Mutex
	objects map[string][]byte
	puts    int
	deletes []string
	putErr  error
}

func newMemBlobs() *memBlobs { return &memBlobs{objects: map[string][]byte{}} }

func (b *memBlobs) Put(_ context.Context, name, _ string, data []byte) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.puts++
	if b.putErr != nil {
		return "", b.putErr
	}
	ref := "/media/" + name
	b.objects[ref] = data
	return ref, nil
}

func (b *memBlobs) Delete(_ context.Context, ref string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deletes = append(b.deletes, ref)
	delete(b.objects, ref)
	return nil
}

func (b *memBlobs) has(ref string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.objects[ref]
	return ok
}

func pngUpload(name string) domain.Upload {
	return domain.Upload{Filename: name, ContentType: "image/png", Data: []byte("\x89PNG\r\n\x1a\nfake")}
}

var errBoom = errors.New("boom")

func requireKind(t *testing.T, want domain.Kind, err error) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, want, domain.KindOf(err), "err = %v", err)
}

func isProfileRef(ref string) bool {
	return strings.HasPrefix(ref, "/media/profile_images/") && strings.HasSuffix(ref, ".png")
}

var errUnique = errors.New("UNIQUE constraint failed: members.email")
