package session

import (
	"context"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goodscommunity/internal/domain"
	"goodscommunity/internal/repos"
)

var alice = domain.MemberView{Email: "alice@goods.test", Name: "Alice"}

// exercise runs the behavior every backend must share.
func exercise(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()
	sess := New(uuid.NewString(), store)

	m, err := sess.Member(ctx)
	require.NoError(t, err)
	assert.Nil(t, m, "fresh session is anonymous")

	require.NoError(t, sess.Set(ctx, alice))
	m, err = sess.Member(ctx)
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, "alice@goods.test", m.Email)
	assert.Equal(t, "Alice", m.Name)

	other := New(uuid.NewString(), store)
	m, err = other.Member(ctx)
	require.NoError(t, err)
	assert.Nil(t, m, "sessions are isolated")

	require.NoError(t, sess.Clear(ctx))
	require.NoError(t, sess.Clear(ctx), "clear is idempotent")
	m, err = sess.Member(ctx)
	require.NoError(t, err)
	assert.Nil(t, m)
}

func TestMemoryStore(t *testing.T) {
	exercise(t, NewMemoryStore(time.Minute))
}

func TestMemoryStoreIdleExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	s := NewMemoryStore(10 * time.Minute)
	s.now = func() time.Time { return now }

	require.NoError(t, s.Set(ctx, "a", alice))
	require.NoError(t, s.Set(ctx, "b", alice))

	now = now.Add(9 * time.Minute)
	m, err := s.Get(ctx, "a") // touches a
	require.NoError(t, err)
	require.NotNil(t, m)

	now = now.Add(2 * time.Minute)
	assert.Equal(t, 1, s.Sweep())

	m, err = s.Get(ctx, "a")
	require.NoError(t, err)
	assert.NotNil(t, m)

	now = now.Add(11 * time.Minute)
	m, err = s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Nil(t, m)
}

func TestMemoryStoreSweeperDropsIdleEntries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var clock atomic.Int64
	clock.Store(time.Unix(1_700_000_000, 0).UnixNano())
	s := NewMemoryStore(time.Minute)
	s.now = func() time.Time { return time.Unix(0, clock.Load()) }

	require.NoError(t, s.Set(ctx, "a", alice))
	done := make(chan struct{})
	go func() {
		s.RunSweeper(ctx, 5*time.Millisecond)
		close(done)
	}()

	clock.Add(int64(2 * time.Minute))
	assert.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return len(s.entries) == 0
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestMemoryStoreReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(0)
	require.NoError(t, s.Set(ctx, "a", alice))
	m, _ := s.Get(ctx, "a")
	m.Name = "mutated"
	again, _ := s.Get(ctx, "a")
	assert.Equal(t, "Alice", again.Name)
}

func TestNilSessionIsAnonymous(t *testing.T) {
	var sess *Session
	m, err := sess.Member(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, m)
	assert.NoError(t, sess.Clear(context.Background()))
}

func TestSQLStore(t *testing.T) {
	db, err := repos.OpenDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	exercise(t, NewSQLStore(db, 30*time.Minute))
}

func TestSQLStoreFollowsMemberRow(t *testing.T) {
	ctx := context.Background()
	db, err := repos.OpenDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	s := NewSQLStore(db, 0)
	require.NoError(t, s.Set(ctx, "sid-1", alice))
	_, err = db.Exec(`UPDATE members SET name='Alicia' WHERE email=?`, alice.Email)
	require.NoError(t, err)

	m, err := s.Get(ctx, "sid-1")
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, "Alicia", m.Name)
}

func getRedisClient(t *testing.T) *redis.Client {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	return client
}

func TestRedisStore(t *testing.T) {
	client := getRedisClient(t)
	s := NewRedisStore(client, time.Minute)
	defer s.Close()
	exercise(t, s)
}
