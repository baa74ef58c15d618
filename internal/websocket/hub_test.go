package websocket

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticAuth map[string]string

func (a staticAuth) ParseToken(tokenStr string) (string, error) {
	if subject, ok := a[tokenStr]; ok {
		return subject, nil
	}
	return "", errors.New("invalid token")
}

type chanSubscriber struct {
	mu       sync.Mutex
	channels map[string]chan string
}

func (s *chanSubscriber) Subscribe(ctx context.Context, channel string) <-chan string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan string, 4)
	s.channels[channel] = ch
	return ch
}

func (s *chanSubscriber) get(channel string) chan string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.channels[channel]
}

func TestHubRelaysSubjectUpdates(t *testing.T) {
	sub := &chanSubscriber{channels: map[string]chan string{}}
	hub := NewHub(sub, staticAuth{"tok-alice": "alice"})
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?token=tok-alice"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return sub.get("job_updates:alice") != nil }, time.Second, 5*time.Millisecond)
	sub.get("job_updates:alice") <- `{"type":"progress"}`

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"progress"}`, string(data))
	assert.Equal(t, 1, hub.Connections("alice"))

	conn.Close()
	require.Eventually(t, func() bool { return hub.Connections("alice") == 0 }, time.Second, 5*time.Millisecond)
}

func TestHubRejectsBadToken(t *testing.T) {
	hub := NewHub(&chanSubscriber{channels: map[string]chan string{}}, staticAuth{})

	for _, target := range []string{"/", "/?token=nope"} {
		rec := httptest.NewRecorder()
		hub.HandleWebSocket(rec, httptest.NewRequest(http.MethodGet, target, nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code, target)
	}
}
