package handler

import (
	"errors"
	"log"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"classroom-backend/internal/model"
	"classroom-backend/internal/relay"
	"classroom-backend/internal/store"
)

// ChatHandler 채팅방/메시지 REST 핸들러
type ChatHandler struct {
	rooms store.Directory
	relay *relay.Relay
}

// NewChatHandler ChatHandler 생성
func NewChatHandler(rooms store.Directory, rl *relay.Relay) *ChatHandler {
	return &ChatHandler{rooms: rooms, relay: rl}
}

// CreateRoomRequest 방 생성 요청
type CreateRoomRequest struct {
	Name     string `json:"name"`
	OwnerID  int64  `json:"owner_id"`
	RoomType string `json:"room_type"`
}

// SendMessageRequest 메시지 전송 요청
type SendMessageRequest struct {
	RoomID  int64  `json:"room_id"`
	UserID  int64  `json:"user_id"`
	Content string `json:"content"`
	Role    string `json:"role"`
	Name    string `json:"name"`
}

// GetChatRooms 활성 질문방 목록 (최근 메시지 순)
func (h *ChatHandler) GetChatRooms(c *fiber.Ctx) error {
	return h.summaries(c, store.SummaryFilter{Type: model.RoomTypeChat, ActiveOnly: true})
}

// GetClassRooms 활성 수업방 목록
func (h *ChatHandler) GetClassRooms(c *fiber.Ctx) error {
	return h.summaries(c, store.SummaryFilter{Type: model.RoomTypeClass, ActiveOnly: true})
}

// GetStudentRooms 학생이 만든 활성 방 목록
func (h *ChatHandler) GetStudentRooms(c *fiber.Ctx) error {
	userID, ok := paramID(c, "userId")
	if !ok {
		return c.JSON([]store.RoomSummary{})
	}
	return h.summaries(c, store.SummaryFilter{ActiveOnly: true, OwnerID: userID})
}

func (h *ChatHandler) summaries(c *fiber.Ctx, filter store.SummaryFilter) error {
	summaries, err := h.rooms.GetRoomSummaries(c.UserContext(), filter)
	if err != nil {
		log.Printf("[Chat] Failed to list rooms: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to list rooms",
		})
	}
	return c.JSON(summaries)
}

// GetMessages 방 메시지 기록 (오래된 순)
func (h *ChatHandler) GetMessages(c *fiber.Ctx) error {
	roomID, ok := paramID(c, "roomId")
	if !ok {
		return c.JSON([]relay.MessageView{})
	}

	messages, err := h.rooms.GetHistory(c.UserContext(), roomID)
	if err != nil {
		log.Printf("[Chat] Failed to load history of room %d: %v", roomID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to load messages",
		})
	}

	views := make([]relay.MessageView, len(messages))
	for i := range messages {
		views[i] = relay.NewMessageView(&messages[i], "", "")
	}
	return c.JSON(views)
}

// CreateRoom 방 생성
func (h *ChatHandler) CreateRoom(c *fiber.Ctx) error {
	var req CreateRoomRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}
	if strings.TrimSpace(req.Name) == "" || req.OwnerID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "name and owner_id are required",
		})
	}

	room, err := h.rooms.CreateRoom(c.UserContext(), req.Name, req.OwnerID, model.RoomType(req.RoomType))
	if err != nil {
		if errors.Is(err, store.ErrInvalidRoomType) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "room_type must be class or chat",
			})
		}
		log.Printf("[Chat] Failed to create room: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to create room",
		})
	}

	h.relay.NotifyChatListChanged()
	return c.Status(fiber.StatusCreated).JSON(room)
}

// SendMessage REST 메시지 전송 (소켓과 같은 답변 규칙 적용)
func (h *ChatHandler) SendMessage(c *fiber.Ctx) error {
	var req SendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}
	if req.RoomID <= 0 || req.UserID <= 0 || strings.TrimSpace(req.Content) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "room_id, user_id and content are required",
		})
	}

	msg, _, err := h.rooms.SendMessage(c.UserContext(), req.RoomID, req.UserID, req.Content, req.Role)
	switch {
	case errors.Is(err, store.ErrRoomNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "room not found",
		})
	case errors.Is(err, store.ErrRoomInactive):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "room is closed",
		})
	case err != nil:
		log.Printf("[Chat] Failed to store message in room %d: %v", req.RoomID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to send message",
		})
	}

	view := relay.NewMessageView(msg, req.Name, req.Role)
	h.relay.PublishMessage(view)
	return c.Status(fiber.StatusCreated).JSON(view)
}

// DeleteRoom 방 비활성화 (메시지는 유지)
func (h *ChatHandler) DeleteRoom(c *fiber.Ctx) error {
	roomID, ok := paramID(c, "roomId")
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid room id",
		})
	}

	changed, err := h.rooms.DeactivateRoom(c.UserContext(), roomID)
	if err != nil {
		log.Printf("[Chat] Failed to deactivate room %d: %v", roomID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to delete room",
		})
	}
	if !changed {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "room not found",
		})
	}

	h.relay.NotifyChatListChanged()
	return c.SendStatus(fiber.StatusNoContent)
}

// paramID 양의 정수 경로 파라미터 파싱
func paramID(c *fiber.Ctx, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Params(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
