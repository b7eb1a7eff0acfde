package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classroom-backend/internal/auth"
	"classroom-backend/internal/database"
	"classroom-backend/internal/model"
	"classroom-backend/internal/relay"
	"classroom-backend/internal/store"
)

type testEnv struct {
	app   *fiber.App
	store *store.Store
	relay *relay.Relay
	dir   string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := database.Open(sqlite.Open(fmt.Sprintf("file:handler_%s?mode=memory&cache=shared", name)), nil)
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() { _ = database.Close(db) })

	st := store.New(db)
	rl := relay.New(st, nil)
	dir := t.TempDir()
	jwtManager := auth.NewJWTManager("test-secret", time.Hour)

	files, err := NewSharedFileHandler(st, dir, 1024)
	require.NoError(t, err)
	authH := NewAuthHandler(st, jwtManager, false)
	chat := NewChatHandler(st, rl)
	health := NewHealthHandler(db, nil, rl)

	app := fiber.New()
	app.Post("/auth/register", authH.Register)
	app.Post("/auth/login", authH.Login)
	app.Get("/auth/roles", authH.GetRoles)
	app.Get("/auth/users", authH.GetUsers)
	app.Get("/auth/me", auth.AuthMiddleware(jwtManager), authH.GetMe)
	app.Get("/chat/rooms", chat.GetChatRooms)
	app.Get("/chat/class-rooms", chat.GetClassRooms)
	app.Get("/chat/student-rooms/:userId", chat.GetStudentRooms)
	app.Get("/chat/messages/:roomId", chat.GetMessages)
	app.Post("/chat/create-room", chat.CreateRoom)
	app.Post("/chat/send", chat.SendMessage)
	app.Delete("/chat/rooms/:roomId", chat.DeleteRoom)
	app.Post("/shared_files/upload", files.Upload)
	app.Get("/shared_files/room/:roomId", files.ListByRoom)
	app.Get("/shared_files/download/:filename", files.Download)
	app.Get("/health", health.Check)
	app.Get("/health/ready", health.Readiness)

	return &testEnv{app: app, store: st, relay: rl, dir: dir}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) (*http.Response, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return e.send(t, req)
}

func (e *testEnv) send(t *testing.T, req *http.Request) (*http.Response, []byte) {
	t.Helper()
	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func (e *testEnv) user(t *testing.T, name, role string) *model.User {
	t.Helper()
	r, err := e.store.GetRoleByName(context.Background(), role)
	require.NoError(t, err)
	u, err := e.store.CreateUser(context.Background(), name, strings.ToLower(name)+"@school.test", "x", &r.ID)
	require.NoError(t, err)
	return u
}

func TestRegisterLoginMe(t *testing.T) {
	e := newTestEnv(t)

	teacher, err := e.store.GetRoleByName(context.Background(), model.RoleTeacher)
	require.NoError(t, err)

	resp, _ := e.do(t, "POST", "/auth/register", RegisterRequest{Name: "Tess", Email: "Tess@School.test", Password: "secret1", RoleID: &teacher.ID})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	resp, _ = e.do(t, "POST", "/auth/register", RegisterRequest{Name: "Tess", Email: "tess@school.test", Password: "secret1"})
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)

	resp, _ = e.do(t, "POST", "/auth/register", RegisterRequest{Name: "Short", Email: "s@school.test", Password: "123"})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp, _ = e.do(t, "POST", "/auth/login", LoginRequest{Email: "tess@school.test", Password: "wrong"})
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	resp, body := e.do(t, "POST", "/auth/login", LoginRequest{Email: "tess@school.test", Password: "secret1"})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var login AuthResponse
	require.NoError(t, json.Unmarshal(body, &login))
	assert.Equal(t, "Tess", login.User.Name)
	assert.Equal(t, model.RoleTeacher, login.User.Role)
	assert.NotEmpty(t, login.AccessToken)

	req := httptest.NewRequest("GET", "/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+login.AccessToken)
	resp, body = e.send(t, req)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var me UserResponse
	require.NoError(t, json.Unmarshal(body, &me))
	assert.Equal(t, login.User, me)
}

func TestRolesAndUsers(t *testing.T) {
	e := newTestEnv(t)
	e.user(t, "Ana", model.RoleStudent)

	resp, body := e.do(t, "GET", "/auth/roles", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var roles []model.Role
	require.NoError(t, json.Unmarshal(body, &roles))
	assert.Len(t, roles, 2)

	resp, body = e.do(t, "GET", "/auth/users", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var users []UserResponse
	require.NoError(t, json.Unmarshal(body, &users))
	require.Len(t, users, 1)
	assert.Equal(t, model.RoleStudent, users[0].Role)
	assert.NotContains(t, string(body), "password")
}

func TestChatRoomLifecycle(t *testing.T) {
	e := newTestEnv(t)
	ana := e.user(t, "Ana", model.RoleStudent)
	tess := e.user(t, "Tess", model.RoleTeacher)

	listener := relay.NewClient(16)
	e.relay.Connect(listener)

	resp, _ := e.do(t, "POST", "/chat/create-room", CreateRoomRequest{Name: "Help", OwnerID: ana.ID, RoomType: "lobby"})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp, body := e.do(t, "POST", "/chat/create-room", CreateRoomRequest{Name: "Help", OwnerID: ana.ID, RoomType: "chat"})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	var room model.Room
	require.NoError(t, json.Unmarshal(body, &room))
	assert.True(t, room.IsActive)

	resp, _ = e.do(t, "POST", "/chat/send", SendMessageRequest{RoomID: room.ID, UserID: ana.ID, Content: "Can you help?", Role: "student"})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	resp, body = e.do(t, "POST", "/chat/send", SendMessageRequest{RoomID: room.ID, UserID: tess.ID, Content: "Yes, with what?", Role: "teacher"})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	var sent relay.MessageView
	require.NoError(t, json.Unmarshal(body, &sent))
	assert.True(t, sent.IsAnswered)
	assert.Equal(t, "Tess", sent.Name)

	resp, body = e.do(t, "GET", fmt.Sprintf("/chat/messages/%d", room.ID), nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var history []relay.MessageView
	require.NoError(t, json.Unmarshal(body, &history))
	require.Len(t, history, 2)
	assert.Equal(t, "Can you help?", history[0].Content)
	assert.True(t, history[0].IsAnswered)
	assert.Equal(t, model.RoleStudent, history[0].Role)

	resp, body = e.do(t, "GET", "/chat/rooms", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var summaries []store.RoomSummary
	require.NoError(t, json.Unmarshal(body, &summaries))
	require.Len(t, summaries, 1)
	assert.Equal(t, "Ana", summaries[0].OwnerName)
	require.NotNil(t, summaries[0].LastContent)
	assert.Equal(t, "Yes, with what?", *summaries[0].LastContent)
	assert.True(t, summaries[0].IsAnswered)

	resp, body = e.do(t, "GET", fmt.Sprintf("/chat/student-rooms/%d", ana.ID), nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &summaries))
	assert.Len(t, summaries, 1)

	resp, _ = e.do(t, "DELETE", fmt.Sprintf("/chat/rooms/%d", room.ID), nil)
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)
	resp, _ = e.do(t, "DELETE", fmt.Sprintf("/chat/rooms/%d", room.ID), nil)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	resp, _ = e.do(t, "POST", "/chat/send", SendMessageRequest{RoomID: room.ID, UserID: ana.ID, Content: "again?", Role: "student"})
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)

	_, body = e.do(t, "GET", "/chat/rooms", nil)
	assert.JSONEq(t, `[]`, string(body))
	_, body = e.do(t, "GET", fmt.Sprintf("/chat/messages/%d", room.ID), nil)
	require.NoError(t, json.Unmarshal(body, &history))
	assert.Len(t, history, 2, "history survives deactivation")

	// create, two sends and delete each refresh the list
	refreshes := 0
	for {
		select {
		case frame := <-listener.Outbound():
			if strings.Contains(string(frame), relay.TypeChatListRefresh) {
				refreshes++
			}
			continue
		default:
		}
		break
	}
	assert.Equal(t, 4, refreshes)
}

func TestClassRoomsAndBadIDs(t *testing.T) {
	e := newTestEnv(t)
	tess := e.user(t, "Tess", model.RoleTeacher)

	resp, _ := e.do(t, "POST", "/chat/create-room", CreateRoomRequest{Name: "Algebra", OwnerID: tess.ID, RoomType: "class"})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	_, body := e.do(t, "GET", "/chat/class-rooms", nil)
	var summaries []store.RoomSummary
	require.NoError(t, json.Unmarshal(body, &summaries))
	require.Len(t, summaries, 1)
	assert.Equal(t, "Algebra", summaries[0].RoomName)
	assert.Nil(t, summaries[0].LastContent)

	_, body = e.do(t, "GET", "/chat/messages/abc", nil)
	assert.JSONEq(t, `[]`, string(body))
	_, body = e.do(t, "GET", "/chat/student-rooms/abc", nil)
	assert.JSONEq(t, `[]`, string(body))

	resp, _ = e.do(t, "DELETE", "/chat/rooms/abc", nil)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp, _ = e.do(t, "POST", "/chat/send", SendMessageRequest{RoomID: 999, UserID: tess.ID, Content: "hi", Role: "teacher"})
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	resp, _ = e.do(t, "POST", "/chat/send", SendMessageRequest{RoomID: 1, UserID: tess.ID, Content: "   "})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func upload(t *testing.T, e *testEnv, filename string, content []byte, roomID, userID string) (*http.Response, []byte) {
	t.Helper()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.WriteField("roomId", roomID))
	require.NoError(t, w.WriteField("userId", userID))
	require.NoError(t, w.Close())

	req := httptest.NewRequest("POST", "/shared_files/upload", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return e.send(t, req)
}

func TestSharedFiles(t *testing.T) {
	e := newTestEnv(t)

	resp, body := upload(t, e, "notes.PDF", bytes.Repeat([]byte("a"), 512), "3", "7")
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	var file model.SharedFile
	require.NoError(t, json.Unmarshal(body, &file))
	assert.Equal(t, "notes.PDF", file.FileName)
	assert.True(t, strings.HasSuffix(file.FileURL, ".pdf"))
	assert.InDelta(t, 0.5, file.FileSize, 0.001)

	_, err := os.Stat(filepath.Join(e.dir, file.FileURL))
	require.NoError(t, err)

	resp, _ = upload(t, e, "big.bin", bytes.Repeat([]byte("a"), 2048), "3", "7")
	assert.Equal(t, fiber.StatusRequestEntityTooLarge, resp.StatusCode)
	resp, _ = upload(t, e, "x.txt", []byte("x"), "room", "7")
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	_, body = e.do(t, "GET", "/shared_files/room/3", nil)
	var files []model.SharedFile
	require.NoError(t, json.Unmarshal(body, &files))
	require.Len(t, files, 1)
	_, body = e.do(t, "GET", "/shared_files/room/nope", nil)
	assert.JSONEq(t, `[]`, string(body))

	resp, body = e.do(t, "GET", "/shared_files/download/"+file.FileURL, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Len(t, body, 512)

	resp, _ = e.do(t, "GET", "/shared_files/download/missing.pdf", nil)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	resp, _ = e.do(t, "GET", "/shared_files/download/..%2Fsecret", nil)
	assert.NotEqual(t, fiber.StatusOK, resp.StatusCode)
	resp, _ = e.do(t, "GET", "/shared_files/download/.env", nil)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestHealth(t *testing.T) {
	e := newTestEnv(t)

	resp, body := e.do(t, "GET", "/health", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var health HealthResponse
	require.NoError(t, json.Unmarshal(body, &health))
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "healthy", health.Checks["database"].Status)
	assert.Equal(t, "not_configured", health.Checks["redis"].Status)

	resp, _ = e.do(t, "GET", "/health/ready", nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}
