package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quizrally/internal/config"
)

const importBody = `{"quiz": {"quiz_title": "Capitals", "questions": [
	{"id": 0, "text": "Capital of France?", "options": ["Paris", "Lyon", "Nice", "Lille"], "answer_index": 0},
	{"id": 1, "text": "Capital of Spain?", "options": ["Seville", "Madrid", "Bilbao", "Valencia"], "answer_index": 1}
]}}`

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	s := NewServer(config.Load())
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func postJSON(t *testing.T, url, body string) (int, map[string]any) {
	t.Helper()
	resp, err := http.Post(url, "application/json", bytes.NewReader([]byte(body)))
	require.NoError(t, err)
	defer resp.Body.Close()
	var decoded map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp.StatusCode, decoded
}

func getJSON(t *testing.T, url string) (int, map[string]any) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	var decoded map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp.StatusCode, decoded
}

func TestHealth(t *testing.T) {
	_, ts := newTestServer(t)
	status, body := getJSON(t, ts.URL+"/health")
	assert.Equal(t, 200, status)
	assert.Equal(t, "ok", body["status"])
}

func TestImportQuizAndCreateRoom(t *testing.T) {
	_, ts := newTestServer(t)

	status, body := postJSON(t, ts.URL+"/quiz/import", importBody)
	require.Equal(t, 200, status)
	quizID, _ := body["quiz_id"].(string)
	require.NotEmpty(t, quizID)

	status, body = getJSON(t, ts.URL+"/quiz/"+quizID)
	require.Equal(t, 200, status)
	assert.Equal(t, "Capitals", body["quiz_title"])

	status, body = postJSON(t, ts.URL+"/room/create",
		fmt.Sprintf(`{"quiz_id": %q, "time_limit": 20}`, quizID))
	require.Equal(t, 200, status)
	code, _ := body["room_code"].(string)
	token, _ := body["organizer_token"].(string)
	assert.Len(t, code, 6)
	assert.NotEmpty(t, token)

	resp, err := http.Get(ts.URL + "/room/" + code + "/qr")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
}

func TestImportRejectsInvalidQuiz(t *testing.T) {
	_, ts := newTestServer(t)
	status, _ := postJSON(t, ts.URL+"/quiz/import",
		`{"quiz": {"quiz_title": "bad", "questions": [{"id": 0, "text": "q", "options": ["a", "b", "c"], "answer_index": 0}]}}`)
	assert.Equal(t, 400, status)
}

func TestQuizAndHistoryNotFound(t *testing.T) {
	_, ts := newTestServer(t)

	status, _ := getJSON(t, ts.URL+"/quiz/nope")
	assert.Equal(t, 404, status)

	status, _ = getJSON(t, ts.URL+"/history/ZZZZZZ")
	assert.Equal(t, 404, status)

	status, body := getJSON(t, ts.URL+"/history")
	assert.Equal(t, 200, status)
	assert.NotNil(t, body["games"])
}

func TestCreateRoomUnknownQuiz(t *testing.T) {
	_, ts := newTestServer(t)
	status, _ := postJSON(t, ts.URL+"/room/create", `{"quiz_id": "nope"}`)
	assert.Equal(t, 404, status)
}

func dialWS(t *testing.T, ts *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg map[string]any
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

// readUntil skips interleaved broadcasts until a message of the wanted type
// arrives.
func readUntil(t *testing.T, conn *websocket.Conn, typ string) map[string]any {
	t.Helper()
	for i := 0; i < 20; i++ {
		msg := readMessage(t, conn)
		if msg["type"] == typ {
			return msg
		}
	}
	t.Fatalf("never received %s", typ)
	return nil
}

func setupRoom(t *testing.T, ts *httptest.Server) (code, token string) {
	t.Helper()
	status, body := postJSON(t, ts.URL+"/quiz/import", importBody)
	require.Equal(t, 200, status)
	quizID := body["quiz_id"].(string)
	status, body = postJSON(t, ts.URL+"/room/create", fmt.Sprintf(`{"quiz_id": %q}`, quizID))
	require.Equal(t, 200, status)
	return body["room_code"].(string), body["organizer_token"].(string)
}

func TestWebSocketJoinFlow(t *testing.T) {
	_, ts := newTestServer(t)
	code, token := setupRoom(t, ts)

	organizer := dialWS(t, ts, "/ws/"+code+"/org-1?organizer=true&token="+token)
	msg := readMessage(t, organizer)
	assert.Equal(t, "ROOM_CREATED", msg["type"])
	assert.Equal(t, code, msg["room_code"])

	player := dialWS(t, ts, "/ws/"+code+"/player-1")
	msg = readMessage(t, player)
	assert.Equal(t, "JOINED_ROOM", msg["type"])

	require.NoError(t, player.WriteJSON(map[string]any{"type": "JOIN", "nickname": "alice"}))
	msg = readUntil(t, player, "PLAYER_JOINED")
	assert.Equal(t, "alice", msg["nickname"])
	assert.Equal(t, float64(1), msg["player_count"])

	msg = readUntil(t, organizer, "PLAYER_JOINED")
	assert.Equal(t, "alice", msg["nickname"])
}

func TestWebSocketRejectsBadToken(t *testing.T) {
	_, ts := newTestServer(t)
	code, _ := setupRoom(t, ts)

	conn := dialWS(t, ts, "/ws/"+code+"/org-1?organizer=true&token=wrong")
	msg := readMessage(t, conn)
	assert.Equal(t, "ERROR", msg["type"])
	assert.Equal(t, "invalid organizer token", msg["message"])
}

func TestWebSocketUnknownRoom(t *testing.T) {
	_, ts := newTestServer(t)
	conn := dialWS(t, ts, "/ws/ZZZZZZ/player-1")
	msg := readMessage(t, conn)
	assert.Equal(t, "ERROR", msg["type"])
}

func TestWebSocketOversizedMessageKeepsConnection(t *testing.T) {
	s, ts := newTestServer(t)
	code, _ := setupRoom(t, ts)

	player := dialWS(t, ts, "/ws/"+code+"/player-1")
	readMessage(t, player) // JOINED_ROOM

	huge := fmt.Sprintf(`{"type":"JOIN","nickname":%q}`, strings.Repeat("x", int(s.config.MaxWSMessageSize)))
	require.NoError(t, player.WriteMessage(websocket.TextMessage, []byte(huge)))
	msg := readMessage(t, player)
	assert.Equal(t, "ERROR", msg["type"])
	assert.Equal(t, "message too large", msg["message"])

	// The connection survives and a normal join still works.
	require.NoError(t, player.WriteJSON(map[string]any{"type": "JOIN", "nickname": "alice"}))
	msg = readUntil(t, player, "PLAYER_JOINED")
	assert.Equal(t, "alice", msg["nickname"])
}
