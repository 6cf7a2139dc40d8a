package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"goodscommunity/internal/blob"
	"goodscommunity/internal/config"
	"goodscommunity/internal/http/handlers"
	"goodscommunity/internal/notify"
	"goodscommunity/internal/repos"
	"goodscommunity/internal/session"
)

const seededPassword = "Passw0rd!"

type testEnv struct {
	App  *fiber.App
	DB   *sqlx.DB
	Hub  *notify.Hub
	Mail *mailbox
	Logs *observer.ObservedLogs
	Cfg  config.Config
}

func testConfig(t *testing.T) config.Config {
	return config.Config{
		Env:      "test",
		DBDSN:    ":memory:",
		MediaDir: t.TempDir(),
		HTTP: config.HTTPConfig{
			BodyLimit:       6 << 20,
			RateMax:         1000,
			RateWindow:      time.Minute,
			LoginRateMax:    100,
			LoginRateWindow: time.Minute,
			SSEHeartbeat:    time.Minute,
			SSEMaxClients:   10,
		},
		Session: config.SessionConfig{Backend: "memory", IdleTimeout: time.Hour},
		Blob:    config.BlobConfig{Backend: "local"},
		Mail:    config.MailConfig{Backend: "log"},
		AuthKey: config.AuthKeyConfig{TTL: 30 * time.Minute},
	}
}

// newEnv builds the full app on an in-memory database. tweak may adjust the
// config before wiring.
func newEnv(t *testing.T, tweak func(*config.Config)) *testEnv {
	t.Helper()
	cfg := testConfig(t)
	if tweak != nil {
		tweak(&cfg)
	}

	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)
	t.Cleanup(zap.ReplaceGlobals(logger))

	db, err := repos.OpenDB(cfg.DBDSN)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	hub := notify.NewHub(notify.WithLogger(logger), notify.WithMaxSubscribers(cfg.HTTP.SSEMaxClients))
	t.Cleanup(hub.Stop)
	box := &mailbox{}

	deps := handlers.NewDeps(db, cfg, session.NewMemoryStore(cfg.Session.IdleTimeout),
		blob.NewLocalStore(cfg.MediaDir), box, hub, logger)
	return &testEnv{App: handlers.NewApp(deps), DB: db, Hub: hub, Mail: box, Logs: logs, Cfg: cfg}
}

// mailbox records outgoing mail; fail makes Send return an error.
type mailbox struct {
	mu   sync.Mutex
	sent []mailMsg
	fail bool
}

type mailMsg struct{ To, Subject, Body string }

func (m *mailbox) Send(_ context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return io.ErrClosedPipe
	}
	m.sent = append(m.sent, mailMsg{To: to, Subject: subject, Body: body})
	return nil
}

var reKey = regexp.MustCompile(`key is ([A-Z0-9]{6})`)

func (m *mailbox) lastKey(t *testing.T) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.sent, "no mail sent")
	match := reKey.FindStringSubmatch(m.sent[len(m.sent)-1].Body)
	require.Len(t, match, 2, "no key in mail body")
	return match[1]
}

func jsonRequest(method, target string, body any) *http.Request {
	var r io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, target, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

func withSID(req *http.Request, sid string) *http.Request {
	if sid != "" {
		req.AddCookie(&http.Cookie{Name: "sid", Value: sid})
	}
	return req
}

func extractCookie(resp *http.Response, name string) string {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c.Value
		}
	}
	return ""
}

func (e *testEnv) do(t *testing.T, req *http.Request) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := e.App.Test(req, 5000)
	require.NoError(t, err)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var body map[string]any
	_ = json.Unmarshal(raw, &body)
	return resp, body
}

func decodeJSON(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

// login signs in with the seeded password and returns the session id.
func (e *testEnv) login(t *testing.T, email string) string {
	t.Helper()
	resp, body := e.do(t, jsonRequest("POST", "/api/auth/login", map[string]string{
		"memberEmail":    email,
		"memberPassword": seededPassword,
	}))
	require.Equal(t, http.StatusOK, resp.StatusCode, "login body: %v", body)
	sid := extractCookie(resp, "sid")
	require.NotEmpty(t, sid)
	return sid
}
