package notify

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebSocketHandler_RejectsUnauthenticated(t *testing.T) {
	handler := NewWebSocketHandler(NewHub(), func(*http.Request) (uuid.UUID, bool) {
		return uuid.Nil, false
	}, zerolog.Nop())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWebSocketHandler_StreamsOwnEvents(t *testing.T) {
	hub := NewHub()
	account := uuid.New()

	handler := NewWebSocketHandler(hub, func(*http.Request) (uuid.UUID, bool) {
		return account, true
	}, zerolog.Nop())

	srv := httptest.NewServer(handler)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool {
		return hub.SubscriberCount(account) == 1
	}, time.Second, 10*time.Millisecond)

	hub.Deliver(Event{Type: EventCompleted, AccountID: uuid.New(), Message: "not yours"})
	hub.Deliver(Event{Type: EventConsulting, AccountID: account, Message: "It's your turn!"})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, EventConsulting, ev.Type)
	assert.Equal(t, account, ev.AccountID)

	conn.Close()
	require.Eventually(t, func() bool {
		return hub.SubscriberCount(account) == 0
	}, 2*time.Second, 10*time.Millisecond)
}
