package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classroom-backend/internal/cache"
	"classroom-backend/internal/config"
	"classroom-backend/internal/database"
	"classroom-backend/internal/model"
	"classroom-backend/internal/relay"
	"classroom-backend/internal/store"
)

type testServer struct {
	srv   *Server
	store *store.Store
	addr  string
}

func startServer(t *testing.T) *testServer {
	t.Helper()

	cfg := config.FromEnv()
	cfg.Auth.JWTSecret = "test-secret"
	cfg.Upload.Dir = t.TempDir()
	cfg.Database = config.DatabaseConfig{
		Driver: "sqlite",
		Path:   fmt.Sprintf("file:server_%s?mode=memory&cache=shared", t.Name()),
	}

	db, err := database.ConnectDB(cfg.Database)
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })

	st := store.New(db)
	rl := relay.New(st, cache.NewMemoryKeys(time.Minute))

	srv, err := New(cfg, db, st, rl, nil)
	require.NoError(t, err)
	srv.SetupMiddleware()
	srv.SetupRoutes()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = srv.App().Listener(ln) }()
	t.Cleanup(func() { _ = srv.Shutdown() })

	return &testServer{srv: srv, store: st, addr: ln.Addr().String()}
}

func (s *testServer) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws://"+s.addr+"/ws", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, eventType string, payload any) {
	t.Helper()
	data, err := json.Marshal(map[string]any{"type": eventType, "payload": payload})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))
}

// next reads frames until one of the wanted type arrives.
func next(t *testing.T, conn *websocket.Conn, eventType string) relay.Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		var env relay.Envelope
		require.NoError(t, json.Unmarshal(data, &env))
		if env.Type == eventType {
			return env
		}
	}
}

func TestWebSocketClassroomFlow(t *testing.T) {
	ts := startServer(t)
	ctx := context.Background()

	teacherRole, err := ts.store.GetRoleByName(ctx, model.RoleTeacher)
	require.NoError(t, err)
	studentRole, err := ts.store.GetRoleByName(ctx, model.RoleStudent)
	require.NoError(t, err)
	tess, err := ts.store.CreateUser(ctx, "Tess", "tess@school.test", "x", &teacherRole.ID)
	require.NoError(t, err)
	ana, err := ts.store.CreateUser(ctx, "Ana", "ana@school.test", "x", &studentRole.ID)
	require.NoError(t, err)
	room, err := ts.store.CreateRoom(ctx, "Algebra", tess.ID, model.RoomTypeClass)
	require.NoError(t, err)

	teacher := ts.dial(t)
	send(t, teacher, relay.TypeJoin, map[string]any{
		"roomId": room.ID,
		"user":   map[string]any{"id": tess.ID, "name": "Tess", "role": "teacher"},
	})
	next(t, teacher, relay.TypeCanvasSnapshot)
	next(t, teacher, relay.TypePresenceUpdated)

	send(t, teacher, relay.TypeDrawStroke, map[string]any{
		"roomId": room.ID,
		"role":   "teacher",
		"line":   map[string]any{"points": []float64{0, 0, 5, 5}, "stroke": "#000", "strokeWidth": 2},
	})
	// frames on one connection are handled in order
	send(t, teacher, relay.TypePing, nil)
	next(t, teacher, relay.TypePong)

	student := ts.dial(t)
	send(t, student, relay.TypeJoin, map[string]any{
		"roomId": fmt.Sprint(room.ID),
		"user":   map[string]any{"id": ana.ID, "name": "Ana", "role": "student"},
	})
	snap := next(t, student, relay.TypeCanvasSnapshot)
	var strokes []relay.Stroke
	require.NoError(t, json.Unmarshal(snap.Payload, &strokes))
	require.Len(t, strokes, 1)
	assert.Equal(t, []float64{0, 0, 5, 5}, strokes[0].Points)

	presence := next(t, teacher, relay.TypePresenceUpdated)
	var members []relay.Member
	require.NoError(t, json.Unmarshal(presence.Payload, &members))
	assert.Len(t, members, 2)

	send(t, student, relay.TypeSendMessage, map[string]any{
		"roomId": room.ID, "userId": ana.ID, "content": "Can you help?", "role": "student", "clientMsgId": "q1",
	})
	next(t, student, relay.TypeMessageAck)
	received := next(t, teacher, relay.TypeMessageReceived)
	var view relay.MessageView
	require.NoError(t, json.Unmarshal(received.Payload, &view))
	assert.Equal(t, "Can you help?", view.Content)
	assert.False(t, view.IsAnswered)

	// resubmission is acknowledged but not stored again
	send(t, student, relay.TypeSendMessage, map[string]any{
		"roomId": room.ID, "userId": ana.ID, "content": "Can you help?", "role": "student", "clientMsgId": "q1",
	})
	ack := next(t, student, relay.TypeMessageAck)
	assert.Contains(t, string(ack.Payload), `"duplicate":true`)

	send(t, teacher, relay.TypeSendMessage, map[string]any{
		"roomId": room.ID, "userId": tess.ID, "content": "Yes, with what?", "role": "teacher",
	})
	received = next(t, student, relay.TypeMessageReceived)
	require.NoError(t, json.Unmarshal(received.Payload, &view))
	assert.True(t, view.IsAnswered)

	history, err := ts.store.GetHistory(ctx, room.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.True(t, history[0].IsAnswered)

	send(t, student, "dance", map[string]any{})
	next(t, student, relay.TypeError)

	// dropping the student socket updates the teacher's member list
	require.NoError(t, student.Close())
	presence = next(t, teacher, relay.TypePresenceUpdated)
	require.NoError(t, json.Unmarshal(presence.Payload, &members))
	require.Len(t, members, 1)
	assert.Equal(t, tess.ID, members[0].ID)
}

func TestRoutesWired(t *testing.T) {
	ts := startServer(t)
	app := ts.srv.App()

	for _, path := range []string{"/health", "/health/live", "/health/ready", "/auth/roles", "/chat/rooms", "/chat/class-rooms", "/shared_files/room/1"} {
		resp, err := app.Test(httptest.NewRequest("GET", path, nil), -1)
		require.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode, path)
	}

	resp, err := app.Test(httptest.NewRequest("GET", "/ws", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, 426, resp.StatusCode, "plain GET on /ws needs an upgrade")

	resp, err = app.Test(httptest.NewRequest("GET", "/auth/me", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, 401, resp.StatusCode)
}
