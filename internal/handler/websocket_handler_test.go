package handler_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warrenlibrary/library-backend/internal/broker"
	"github.com/warrenlibrary/library-backend/internal/handler"
	"github.com/warrenlibrary/library-backend/internal/testutil"
	"github.com/warrenlibrary/library-backend/internal/utils"
)

func dialFeed(t *testing.T, server *httptest.Server, token string) (*websocket.Conn, *http.Response, error) {
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/ws?token=" + token
	return websocket.DefaultDialer.Dial(url, nil)
}

func readFeed(t *testing.T, conn *websocket.Conn) handler.WSMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var msg handler.WSMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestWebSocketFeed_StreamsBorrowEvents(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)
	defer testDB.Teardown(t)

	router, _ := newTestRouter(t, testDB.DB, nil)
	server := httptest.NewServer(router)
	defer server.Close()

	student := testutil.DefaultStudent(t, testDB.DB)
	token := testutil.TokenFor(t, student)
	book := testutil.CreateTestBook(t, testDB.DB, "Dune", "Frank Herbert", "isbn-dune", "")

	conn, _, err := dialFeed(t, server, token)
	require.NoError(t, err)
	defer conn.Close()

	assert.Equal(t, "connected", readFeed(t, conn).Type)

	w := doRequest(router, http.MethodPost, "/api/borrow", token, map[string]interface{}{"book_id": book.ID})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	// Every client gets the feed, so it must not reveal who borrowed.
	assert.NotContains(t, string(raw), "user_id")

	var msg handler.WSMessage
	require.NoError(t, json.Unmarshal(raw, &msg))
	assert.Equal(t, "event", msg.Type)
	require.NotNil(t, msg.Event)
	assert.Equal(t, broker.EventBorrowed, msg.Event.Type)
	assert.Equal(t, book.ID, msg.Event.BookID)
	assert.False(t, msg.Event.Available)
}

func TestWebSocketFeed_RejectsBadTokens(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)
	defer testDB.Teardown(t)

	router, _ := newTestRouter(t, testDB.DB, nil)
	server := httptest.NewServer(router)
	defer server.Close()

	_, resp, err := dialFeed(t, server, "")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	student := testutil.DefaultStudent(t, testDB.DB)
	expired, err := utils.GenerateToken(student, testutil.TestSecret, -time.Minute)
	require.NoError(t, err)

	_, resp, err = dialFeed(t, server, expired)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestWebSocketFeed_ClosesWhenTokenExpires(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)
	defer testDB.Teardown(t)

	router, _ := newTestRouter(t, testDB.DB, nil)
	server := httptest.NewServer(router)
	defer server.Close()

	student := testutil.DefaultStudent(t, testDB.DB)
	shortLived, err := utils.GenerateToken(student, testutil.TestSecret, 2*time.Second)
	require.NoError(t, err)

	conn, _, err := dialFeed(t, server, shortLived)
	require.NoError(t, err)
	defer conn.Close()

	assert.Equal(t, "connected", readFeed(t, conn).Type)
	assert.Equal(t, "session_expired", readFeed(t, conn).Type)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure))
}
