package web

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

	"github.com/justinabrahms/chessduel/internal/chess"
	"github.com/justinabrahms/chessduel/internal/game"
)

type inFrame struct {
	Topic string          `json:"topic"`
	Type  string          `json:"type"`
	Data  json.RawMessage `json:"data"`
}

type wsConn struct {
	t    *testing.T
	conn *websocket.Conn
}

func (e *testEnv) dial(t *testing.T, srv *httptest.Server, token string) *wsConn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + token
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return &wsConn{t: t, conn: conn}
}

func (c *wsConn) send(v interface{}) {
	c.t.Helper()
	require.NoError(c.t, c.conn.WriteJSON(v))
}

// next reads frames until one of the given type arrives.
func (c *wsConn) next(frameType string) inFrame {
	c.t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		require.NoError(c.t, c.conn.SetReadDeadline(deadline))
		var f inFrame
		require.NoError(c.t, c.conn.ReadJSON(&f), "waiting for %s", frameType)
		if f.Type == frameType {
			return f
		}
	}
}

// collect reads until a frame of every given type has arrived, in any order.
func (c *wsConn) collect(frameTypes ...string) map[string]inFrame {
	c.t.Helper()
	want := make(map[string]bool, len(frameTypes))
	for _, ft := range frameTypes {
		want[ft] = true
	}
	got := make(map[string]inFrame, len(frameTypes))
	deadline := time.Now().Add(2 * time.Second)
	for len(got) < len(want) {
		require.NoError(c.t, c.conn.SetReadDeadline(deadline))
		var f inFrame
		require.NoError(c.t, c.conn.ReadJSON(&f), "waiting for %v", frameTypes)
		if want[f.Type] {
			got[f.Type] = f
		}
	}
	return got
}

func TestWebSocketRejectsMissingToken(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.handler)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(url+"?token=bogus", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestWebSocketPingAndPresence(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.handler)
	defer srv.Close()
	alice := env.register(t, "alice")

	ws := env.dial(t, srv, alice.token)
	presence := ws.next(game.PresenceTopic)
	assert.Contains(t, string(presence.Data), "Player alice")

	ws.send(map[string]string{"type": "ping"})
	ws.next("pong")

	w := env.do(t, "GET", "/api/lobby/players", alice.token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), alice.user.ID)
}

func TestWebSocketMovesReachSubscribers(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.handler)
	defer srv.Close()
	alice := env.register(t, "alice")
	bob := env.register(t, "bob")

	bobWS := env.dial(t, srv, bob.token)
	bobWS.next(game.PresenceTopic)

	g := env.startGame(t, alice, bob)
	start := bobWS.next(game.EventGameStart)
	assert.Equal(t, game.UserEventTopic(bob.user.ID, game.EventGameStart), start.Topic)

	bobWS.send(map[string]string{"type": "subscribe", "topic": game.GameTopic(g.ID)})
	bobWS.next("subscribed")

	aliceWS := env.dial(t, srv, alice.token)
	aliceWS.next(game.PresenceTopic)
	aliceWS.send(map[string]string{"type": "move", "gameId": g.ID, "from": "e2", "to": "e4"})
	ack := aliceWS.next("move-accepted")
	var accepted chess.Move
	require.NoError(t, json.Unmarshal(ack.Data, &accepted))
	assert.Equal(t, "e4", accepted.Notation)

	update := bobWS.next(game.EventMoves)
	assert.Equal(t, game.MovesTopic(g.ID), update.Topic)
	var mv chess.Move
	require.NoError(t, json.Unmarshal(update.Data, &mv))
	assert.Equal(t, 1, mv.MoveNumber)
	assert.Equal(t, "e4", mv.To.String())

	// A rejected move comes back to the sender only.
	aliceWS.send(map[string]string{"type": "move", "gameId": g.ID, "from": "d2", "to": "d4"})
	errFrame := aliceWS.next("error")
	var body ErrorBody
	require.NoError(t, json.Unmarshal(errFrame.Data, &body))
	assert.Equal(t, "NOT_YOUR_TURN", body.Error)

	bobWS.send(map[string]string{"type": "resign", "gameId": g.ID})
	frames := bobWS.collect("resign-accepted", game.EventResigned)
	resigned := frames[game.EventResigned]
	assert.Equal(t, game.ResignedTopic(g.ID), resigned.Topic)
	assert.Contains(t, string(resigned.Data), `"winnerId":"`+alice.user.ID+`"`)
}

func TestWebSocketSubscriptionRules(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.handler)
	defer srv.Close()
	alice := env.register(t, "alice")
	bob := env.register(t, "bob")

	ws := env.dial(t, srv, alice.token)
	ws.send(map[string]string{"type": "subscribe", "topic": game.UserTopic(bob.user.ID)})
	f := ws.next("error")
	var body ErrorBody
	require.NoError(t, json.Unmarshal(f.Data, &body))
	assert.Equal(t, "BAD_REQUEST", body.Error)

	ws.send(map[string]string{"type": "launch-missiles"})
	ws.next("error")

	require.NoError(t, ws.conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	ws.next("error")
}

func TestWebSocketInvitationNotifications(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.handler)
	defer srv.Close()
	alice := env.register(t, "alice")
	bob := env.register(t, "bob")

	aliceWS := env.dial(t, srv, alice.token)
	aliceWS.next(game.PresenceTopic)
	bobWS := env.dial(t, srv, bob.token)
	bobWS.next(game.PresenceTopic)

	w := env.do(t, "POST", "/api/lobby/invitations", alice.token, SendInvitationRequest{ToUserID: bob.user.ID})
	require.Equal(t, http.StatusCreated, w.Code)
	var inv map[string]interface{}
	decodeBody(t, w, &inv)

	invited := bobWS.next(game.EventInvitations)
	assert.Contains(t, string(invited.Data), inv["id"].(string))

	w = env.do(t, "POST", "/api/lobby/invitations/"+inv["id"].(string)+"/decline", bob.token, nil)
	require.Equal(t, http.StatusNoContent, w.Code)
	declined := aliceWS.next(game.EventInvitationDeclined)
	assert.Contains(t, string(declined.Data), `"status":"DECLINED"`)
}

func TestHubPublishDropsWhenFull(t *testing.T) {
	hub := NewHub(WithBroadcastBuffer(1))
	// Run is not started, so the queue never drains.
	require.NoError(t, hub.Publish("presence", nil))
	assert.ErrorIs(t, hub.Publish("presence", nil), ErrBroadcastBufferFull)
}
