package chat

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lmsportal/internal/auth"
	"lmsportal/internal/model"
)

func tokenFor(t *testing.T, name string) string {
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.Claims{UserID: "id-" + name, Name: name}).
		SignedString([]byte("chat-test"))
	require.NoError(t, err)
	return tok
}

func startHub(t *testing.T) (*Hub, string) {
	hub := NewHub(nil)
	srv := httptest.NewServer(hub)
	t.Cleanup(srv.Close)
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func join(t *testing.T, url, token string) *Room {
	c, err := Dial(context.Background(), url, nil)
	require.NoError(t, err)
	r := NewRoom(c, token, nil)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func waitFor(t *testing.T, r *Room, n int) []model.ChatMessage {
	require.Eventually(t, func() bool { return len(r.Messages()) >= n }, 2*time.Second, 10*time.Millisecond)
	return r.Messages()
}

func TestLateJoinerSeesNoBackfill(t *testing.T) {
	hub, url := startHub(t)
	ctx := context.Background()

	a := join(t, url, tokenFor(t, "Alice"))
	b := join(t, url, tokenFor(t, "Bob"))
	require.Eventually(t, func() bool { return hub.Connected() == 2 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, a.Send(ctx, "hi"))
	assert.Equal(t, []model.ChatMessage{{User: "Alice", Message: "hi"}}, waitFor(t, b, 1))
	assert.Equal(t, []model.ChatMessage{{User: "Alice", Message: "hi"}}, waitFor(t, a, 1))

	c := join(t, url, "")
	require.Eventually(t, func() bool { return hub.Connected() == 3 }, 2*time.Second, 10*time.Millisecond)
	assert.Empty(t, c.Messages())

	require.NoError(t, b.Send(ctx, "welcome"))
	assert.Equal(t, []model.ChatMessage{{User: "Bob", Message: "welcome"}}, waitFor(t, c, 1))
	assert.Equal(t, []model.ChatMessage{
		{User: "Alice", Message: "hi"},
		{User: "Bob", Message: "welcome"},
	}, waitFor(t, b, 2))
	assert.Equal(t, "Guest", c.Name())
}

func TestArrivalOrder(t *testing.T) {
	hub, url := startHub(t)
	a := join(t, url, tokenFor(t, "Alice"))
	b := join(t, url, tokenFor(t, "Bob"))
	require.Eventually(t, func() bool { return hub.Connected() == 2 }, 2*time.Second, 10*time.Millisecond)

	for _, text := range []string{"one", "two", "three"} {
		require.NoError(t, a.Send(context.Background(), text))
	}
	got := waitFor(t, b, 3)
	assert.Equal(t, []string{"one", "two", "three"}, []string{got[0].Message, got[1].Message, got[2].Message})
}

func TestClosedClientStopsRoom(t *testing.T) {
	_, url := startHub(t)
	c, err := Dial(context.Background(), url, nil)
	require.NoError(t, err)
	r := NewRoom(c, "", nil)

	require.NoError(t, r.Close())
	select {
	case <-r.Done():
	case <-time.After(time.Second):
		t.Fatal("room still listening")
	}
	assert.ErrorIs(t, c.Send(context.Background(), model.ChatMessage{User: "x", Message: "y"}), ErrClosed)
}

type fakeTransport struct {
	mu   sync.Mutex
	in   chan model.ChatMessage
	sent []model.ChatMessage
	once sync.Once
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{in: make(chan model.ChatMessage, 8)}
}

func (f *fakeTransport) Subscribe() <-chan model.ChatMessage { return f.in }

func (f *fakeTransport) Send(_ context.Context, msg model.ChatMessage) error {
	f.mu.Lock()
	f.sent = append(f.sent, msg)
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) Close() error {
	f.once.Do(func() { close(f.in) })
	return nil
}

func TestRoomIgnoresBlankText(t *testing.T) {
	ft := newFakeTransport()
	r := NewRoom(ft, tokenFor(t, "Alice"), nil)
	defer r.Close()

	require.NoError(t, r.Send(context.Background(), "  \n\t"))
	require.NoError(t, r.Send(context.Background(), "hello"))

	ft.mu.Lock()
	defer ft.mu.Unlock()
	assert.Equal(t, []model.ChatMessage{{User: "Alice", Message: "hello"}}, ft.sent)
}

func TestRoomNameFixedAtMount(t *testing.T) {
	ft := newFakeTransport()
	r := NewRoom(ft, tokenFor(t, "Alice"), nil)
	defer r.Close()

	assert.Equal(t, "Alice", r.Name())
	assert.Equal(t, "Guest", NewRoom(newFakeTransport(), "not-a-jwt", nil).Name())
}

func TestRoomCallback(t *testing.T) {
	ft := newFakeTransport()
	seen := make(chan model.ChatMessage, 1)
	r := NewRoom(ft, "", func(m model.ChatMessage) { seen <- m })
	defer r.Close()

	ft.in <- model.ChatMessage{User: "Bob", Message: "yo"}
	select {
	case m := <-seen:
		assert.Equal(t, "yo", m.Message)
	case <-time.After(time.Second):
		t.Fatal("callback not called")
	}
	assert.Len(t, r.Messages(), 1)
}
