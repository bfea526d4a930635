package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dmchat/internal/devserver"
	"dmchat/internal/session"
	"dmchat/internal/transport/httpdto"
	dmchat_errors "dmchat/pkg/errors"
)

type fixture struct {
	server *devserver.Server
	url    string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s := devserver.New(devserver.Options{Mode: devserver.TestMode, JWTSecret: "test"})
	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		ts.Close()
		cancel()
	})
	return &fixture{server: s, url: ts.URL}
}

// login registers username and returns a client authenticated as them.
func (f *fixture) login(t *testing.T, username string) *Client {
	t.Helper()
	anon := NewClient(f.url, nil)
	ctx := context.Background()
	require.NoError(t, anon.Register(ctx, httpdto.RegisterRequest{
		Username:    username,
		DisplayName: username + " display",
		Email:       username + "@example.com",
		Password:    "password1",
	}))
	token, err := anon.Login(ctx, username, "password1")
	require.NoError(t, err)
	return NewClient(f.url, session.StaticToken(token))
}

func TestClient_LoginFailures(t *testing.T) {
	f := newFixture(t)
	f.login(t, "alice")
	anon := NewClient(f.url, nil)

	_, err := anon.Login(context.Background(), "alice", "wrong-password1")
	assert.ErrorIs(t, err, dmchat_errors.ErrUnauthorized)
	assert.Equal(t, http.StatusUnauthorized, dmchat_errors.StatusOf(err))

	err = anon.Register(context.Background(), httpdto.RegisterRequest{
		Username: "alice", Email: "x@example.com", Password: "password1",
	})
	assert.ErrorIs(t, err, dmchat_errors.ErrConflict)
}

func TestClient_Me(t *testing.T) {
	f := newFixture(t)
	alice := f.login(t, "alice")

	me, err := alice.Me(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "alice", me.Username)
	assert.Equal(t, "alice display", me.DisplayName)

	_, err = NewClient(f.url, session.StaticToken("bogus")).Me(context.Background())
	assert.ErrorIs(t, err, dmchat_errors.ErrUnauthorized)
}

func TestClient_Chats(t *testing.T) {
	f := newFixture(t)
	alice := f.login(t, "alice")
	f.login(t, "bob")
	ctx := context.Background()

	_, err := alice.CreateChat(ctx, "nobody")
	assert.ErrorIs(t, err, dmchat_errors.ErrNotFound)

	created, err := alice.CreateChat(ctx, "bob")
	require.NoError(t, err)
	assert.NotZero(t, created.ChatID)
	assert.Len(t, created.Participants, 2)

	existing, err := alice.CreateChat(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, created.ChatID, existing.ChatID)
	assert.Equal(t, "Chat already exists", existing.Message)

	chats, err := alice.ListChats(ctx)
	require.NoError(t, err)
	require.Len(t, chats, 1)
	counterpart, ok := chats[0].Counterpart("alice")
	require.True(t, ok)
	assert.Equal(t, "bob", counterpart.Username)
}

func TestClient_MessageLifecycle(t *testing.T) {
	f := newFixture(t)
	alice := f.login(t, "alice")
	bob := f.login(t, "bob")
	ctx := context.Background()

	created, err := alice.CreateChat(ctx, "bob")
	require.NoError(t, err)

	err = alice.SendMessage(ctx, SendMessageInput{ChatID: created.ChatID})
	assert.ErrorIs(t, err, dmchat_errors.ErrEmptyMessage)

	require.NoError(t, alice.SendMessage(ctx, SendMessageInput{ChatID: created.ChatID, Content: "hello"}))
	require.NoError(t, bob.SendMessage(ctx, SendMessageInput{
		ChatID:       created.ChatID,
		Content:      "hi",
		ReplyContent: "hello",
		Image:        &Attachment{Name: "cat.png", ContentType: "image/png", Data: []byte("\x89PNG")},
	}))

	msgs, err := alice.ListMessages(ctx, created.ChatID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "hello", msgs[0].Content)
	assert.Equal(t, "hello", msgs[1].ReplyContent)
	require.True(t, msgs[1].HasImage())
	assert.False(t, msgs[1].SentTime.IsZero())

	img, err := http.Get(alice.ResolveURL(msgs[1].ImageURL))
	require.NoError(t, err)
	img.Body.Close()
	assert.Equal(t, http.StatusOK, img.StatusCode)

	err = bob.EditMessage(ctx, msgs[0].ID, "mine now")
	assert.ErrorIs(t, err, dmchat_errors.ErrForbidden)

	require.NoError(t, alice.EditMessage(ctx, msgs[0].ID, "hello there"))
	require.NoError(t, bob.DeleteMessage(ctx, msgs[1].ID))

	msgs, err = bob.ListMessages(ctx, created.ChatID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "hello there", msgs[0].Content)
}

func TestClient_TransportError(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", session.StaticToken("t"), WithTimeout(time.Second))

	_, err := c.ListChats(context.Background())
	assert.ErrorIs(t, err, dmchat_errors.ErrTransport)
	assert.Equal(t, dmchat_errors.KindTransport, dmchat_errors.Classify(err))
}

func TestClient_ErrorDetail(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"detail":[{"loc":["body","username"],"msg":"field required"}]}`))
	}))
	defer ts.Close()

	err := NewClient(ts.URL, nil).Register(context.Background(), httpdto.RegisterRequest{})
	require.Error(t, err)
	assert.ErrorIs(t, err, dmchat_errors.ErrInvalidInput)
	assert.Contains(t, err.Error(), "field required")
	assert.Contains(t, err.Error(), "POST /register")
}

func TestClient_ResolveURL(t *testing.T) {
	c := NewClient("http://localhost:5050/", nil)

	assert.Equal(t, "http://localhost:5050/uploads/a.png", c.ResolveURL("/uploads/a.png"))
	assert.Equal(t, "http://localhost:5050/uploads/a.png", c.ResolveURL("uploads/a.png"))
	assert.Equal(t, "https://cdn.example.com/a.png", c.ResolveURL("https://cdn.example.com/a.png"))
	assert.Empty(t, c.ResolveURL(""))
}
