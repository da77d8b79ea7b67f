package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/advice-board/internal/config"
)

// newTestServer runs the full stack against in-memory SQLite and an
// in-process Redis.
func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mr := miniredis.RunT(t)

	cfg := config.Config{
		Port:        0,
		DBDriver:    "sqlite",
		DBDSN:       ":memory:",
		TokenSecret: "integration-test-secret",
		TokenTTL:    time.Hour,
		RedisURL:    "redis://" + mr.Addr(),
		CORSOrigin:  "*",
	}

	srv, err := New(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Close() })

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

type client struct {
	t     *testing.T
	base  string
	token string
}

func (c client) do(method, path, body string) (int, []byte) {
	c.t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, c.base+path, r)
	require.NoError(c.t, err)
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	require.NoError(c.t, err)
	return resp.StatusCode, out
}

// signUp registers a user and returns a client carrying their token.
func signUp(t *testing.T, base, name string) client {
	t.Helper()
	anon := client{t: t, base: base}

	status, _ := anon.do(http.MethodPost, "/api/user/register",
		`{"username":"`+name+`","email":"`+name+`@example.com","password":"correct horse"}`)
	require.Equal(t, http.StatusCreated, status)

	status, body := anon.do(http.MethodPost, "/api/user/login",
		`{"email":"`+strings.ToUpper(name)+`@example.com","password":"correct horse"}`)
	require.Equal(t, http.StatusOK, status)

	var login struct{ Token string }
	require.NoError(t, json.Unmarshal(body, &login))
	require.NotEmpty(t, login.Token)
	return client{t: t, base: base, token: login.Token}
}

func decode[T any](t *testing.T, body []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(body, &v), string(body))
	return v
}

func TestAnonymousAdviceEndToEnd(t *testing.T) {
	ts := newTestServer(t)
	alice := signUp(t, ts.URL, "alice")
	bob := signUp(t, ts.URL, "bob")
	nobody := client{t: t, base: ts.URL}

	// Alice posts anonymously: she is told it is hers, but not shown as creator.
	status, body := alice.do(http.MethodPost, "/api/advices", `{"title":"Sleep","content":"Eight hours","anonymous":true}`)
	require.Equal(t, http.StatusCreated, status, string(body))
	created := decode[map[string]any](t, body)
	assert.Equal(t, true, created["_isMine"])
	assert.NotContains(t, created, "_createdBy")
	id := created["_id"].(string)

	// Nobody else can tell who wrote it.
	for _, viewer := range []client{bob, nobody} {
		status, body = viewer.do(http.MethodGet, "/api/advices", "")
		require.Equal(t, http.StatusOK, status)
		list := decode[[]map[string]any](t, body)
		require.Len(t, list, 1)
		assert.NotContains(t, list[0], "_createdBy")
		assert.Equal(t, false, list[0]["_isMine"])
		assert.NotContains(t, string(body), "alice")
	}

	// Bob cannot touch it, whatever he sends.
	status, _ = bob.do(http.MethodPut, "/api/advices/"+id, `{"title":""}`)
	assert.Equal(t, http.StatusForbidden, status)
	status, _ = bob.do(http.MethodDelete, "/api/advices/"+id, "")
	assert.Equal(t, http.StatusForbidden, status)

	// Searching finds it, still redacted.
	status, body = nobody.do(http.MethodGet, "/api/advices/search?key=anonymous&value=true", "")
	require.Equal(t, http.StatusOK, status)
	assert.NotContains(t, string(body), "_createdBy")

	// Alice can make it public; the populated creator then appears.
	status, _ = alice.do(http.MethodPut, "/api/advices/"+id, `{"anonymous":false}`)
	require.Equal(t, http.StatusOK, status)
	status, body = bob.do(http.MethodGet, "/api/advices/"+id, "")
	require.Equal(t, http.StatusOK, status)
	public := decode[map[string]any](t, body)
	creator, ok := public["_createdBy"].(map[string]any)
	require.True(t, ok, string(body))
	assert.Equal(t, "alice", creator["username"])
}

// A request the caller may not make is refused as such, however badly its
// body is formed.
func TestMutationErrorPrecedence(t *testing.T) {
	ts := newTestServer(t)
	alice := signUp(t, ts.URL, "alice")
	bob := signUp(t, ts.URL, "bob")

	_, body := alice.do(http.MethodPost, "/api/advices", `{"title":"Tea","content":"Green","anonymous":false}`)
	id := decode[map[string]any](t, body)["_id"].(string)
	status, body := alice.do(http.MethodPost, "/api/advices/"+id+"/replies", `{"content":"mine","anonymous":false}`)
	require.Equal(t, http.StatusCreated, status, string(body))
	replyID := decode[map[string]any](t, body)["replies"].([]any)[0].(map[string]any)["_id"].(string)

	tests := []struct {
		name   string
		as     client
		method string
		path   string
		body   string
		want   int
	}{
		{"non-owner, wrongly typed field", bob, http.MethodPut, "/api/advices/" + id, `{"anonymous":"yes"}`, http.StatusForbidden},
		{"non-owner, invalid field", bob, http.MethodPut, "/api/advices/" + id, `{"title":""}`, http.StatusForbidden},
		{"missing advice, bad body", alice, http.MethodPut, "/api/advices/does-not-exist", `{"anonymous":"yes"}`, http.StatusNotFound},
		{"missing parent for a reply, bad body", bob, http.MethodPost, "/api/advices/does-not-exist/replies", `not json`, http.StatusNotFound},
		{"missing reply, bad body", alice, http.MethodPut, "/api/advices/" + id + "/replies/nope", `not json`, http.StatusNotFound},
		{"someone else's reply, bad body", bob, http.MethodPut, "/api/advices/" + id + "/replies/" + replyID, `{"content":`, http.StatusForbidden},
		{"owner, wrongly typed field", alice, http.MethodPut, "/api/advices/" + id, `{"anonymous":"yes"}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := tt.as.do(tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, status, string(body))
		})
	}

	// Nothing above changed the advice.
	_, body = alice.do(http.MethodGet, "/api/advices/"+id, "")
	got := decode[map[string]any](t, body)
	assert.Equal(t, "Tea", got["title"])
	assert.Equal(t, false, got["anonymous"])
}

func TestRepliesEndToEnd(t *testing.T) {
	ts := newTestServer(t)
	alice := signUp(t, ts.URL, "alice")
	bob := signUp(t, ts.URL, "bob")

	_, body := alice.do(http.MethodPost, "/api/advices", `{"title":"Tea","content":"Green","anonymous":false}`)
	id := decode[map[string]any](t, body)["_id"].(string)

	status, body := bob.do(http.MethodPost, "/api/advices/"+id+"/replies", `{"content":"agreed","anonymous":true}`)
	require.Equal(t, http.StatusCreated, status, string(body))
	replies := decode[map[string]any](t, body)["replies"].([]any)
	require.Len(t, replies, 1)
	replyID := replies[0].(map[string]any)["_id"].(string)

	// The advice owner has no rights over Bob's reply.
	status, _ = alice.do(http.MethodPut, "/api/advices/"+id+"/replies/"+replyID, `{"content":"hijacked"}`)
	assert.Equal(t, http.StatusForbidden, status)
	status, _ = alice.do(http.MethodDelete, "/api/advices/"+id+"/replies/"+replyID, "")
	assert.Equal(t, http.StatusForbidden, status)

	// Alice sees the reply without its creator and not as hers.
	_, body = alice.do(http.MethodGet, "/api/advices/"+id, "")
	reply := decode[map[string]any](t, body)["replies"].([]any)[0].(map[string]any)
	assert.NotContains(t, reply, "_createdBy")
	assert.Equal(t, false, reply["_isMine"])

	status, body = bob.do(http.MethodDelete, "/api/advices/"+id+"/replies/"+replyID, "")
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, decode[map[string]any](t, body)["replies"])
}

func TestAuthRequired(t *testing.T) {
	ts := newTestServer(t)
	nobody := client{t: t, base: ts.URL}
	forged := client{t: t, base: ts.URL, token: "not.a.jwt"}

	for _, c := range []client{nobody, forged} {
		status, body := c.do(http.MethodPost, "/api/advices", `{"title":"t","content":"c","anonymous":false}`)
		assert.Equal(t, http.StatusUnauthorized, status)
		assert.JSONEq(t, `{"error":"unauthenticated","message":"valid authentication required"}`, string(body))
	}

	// A forged token on a read route is treated as no token at all.
	status, _ := forged.do(http.MethodGet, "/api/advices", "")
	assert.Equal(t, http.StatusOK, status)
}

func TestLogoutRevokesToken(t *testing.T) {
	ts := newTestServer(t)
	alice := signUp(t, ts.URL, "alice")

	status, body := alice.do(http.MethodGet, "/api/user/me", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "alice", decode[map[string]any](t, body)["username"])

	status, _ = alice.do(http.MethodPost, "/api/user/logout", "")
	require.Equal(t, http.StatusOK, status)

	status, _ = alice.do(http.MethodGet, "/api/user/me", "")
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)

	status, body := client{t: t, base: ts.URL}.do(http.MethodGet, "/api/health", "")

	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"status":"ok","checks":{"database":"up","redis":"up"}}`, string(body))
}

func TestGitHubRoutesAbsentWhenUnconfigured(t *testing.T) {
	ts := newTestServer(t)

	status, _ := client{t: t, base: ts.URL}.do(http.MethodGet, "/auth/github/login", "")

	assert.Equal(t, http.StatusNotFound, status)
}

func TestNew_RejectsUnknownDriver(t *testing.T) {
	_, err := New(context.Background(), config.Config{DBDriver: "mongo", TokenSecret: "integration-test-secret"},
		slog.New(slog.NewTextHandler(io.Discard, nil)))

	assert.Error(t, err)
}
