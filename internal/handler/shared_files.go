package handler

import (
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"classroom-backend/internal/model"
	"classroom-backend/internal/store"
)

// SharedFileHandler 방 공유 파일 핸들러 (로컬 디스크 저장)
type SharedFileHandler struct {
	store   *store.Store
	dir     string
	maxSize int
}

// NewSharedFileHandler SharedFileHandler 생성 (업로드 디렉터리 생성 포함)
func NewSharedFileHandler(st *store.Store, dir string, maxSize int) (*SharedFileHandler, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &SharedFileHandler{store: st, dir: dir, maxSize: maxSize}, nil
}

// Upload multipart 업로드 (file, roomId, userId)
func (h *SharedFileHandler) Upload(c *fiber.Ctx) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "file is required",
		})
	}
	if h.maxSize > 0 && fh.Size > int64(h.maxSize) {
		return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{
			"error": "file is too large",
		})
	}

	roomID, err1 := strconv.ParseInt(c.FormValue("roomId"), 10, 64)
	userID, err2 := strconv.ParseInt(c.FormValue("userId"), 10, 64)
	if err1 != nil || err2 != nil || roomID <= 0 || userID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "roomId and userId are required",
		})
	}

	storedName := uuid.NewString() + strings.ToLower(filepath.Ext(fh.Filename))
	if err := c.SaveFile(fh, filepath.Join(h.dir, storedName)); err != nil {
		log.Printf("[Files] Failed to save upload: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to save file",
		})
	}

	file := model.SharedFile{
		RoomID:   roomID,
		UserID:   userID,
		FileName: filepath.Base(fh.Filename),
		FileURL:  storedName,
		FileSize: float64(fh.Size) / 1024,
	}
	if err := h.store.CreateSharedFile(c.UserContext(), &file); err != nil {
		_ = os.Remove(filepath.Join(h.dir, storedName))
		log.Printf("[Files] Failed to record upload: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to record file",
		})
	}

	log.Printf("[Files] Room %d: %s uploaded by user %d (%.1f KB)", roomID, file.FileName, userID, file.FileSize)
	return c.Status(fiber.StatusCreated).JSON(file)
}

// ListByRoom 방 파일 목록 (최신순)
func (h *SharedFileHandler) ListByRoom(c *fiber.Ctx) error {
	roomID, ok := paramID(c, "roomId")
	if !ok {
		return c.JSON([]model.SharedFile{})
	}

	files, err := h.store.ListSharedFiles(c.UserContext(), roomID)
	if err != nil {
		log.Printf("[Files] Failed to list files of room %d: %v", roomID, err)
		return c.JSON([]model.SharedFile{})
	}
	return c.JSON(files)
}

// Download 저장된 파일 다운로드
func (h *SharedFileHandler) Download(c *fiber.Ctx) error {
	name := c.Params("filename")
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid file name",
		})
	}

	path := filepath.Join(h.dir, name)
	if info, err := os.Stat(path); err != nil || info.IsDir() {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "file not found",
		})
	}
	return c.Download(path)
}
