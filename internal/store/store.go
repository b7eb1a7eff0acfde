// Package store is the room directory: rooms, messages, users and shared
// files on top of GORM. Every operation takes a context and returns wrapped
// errors; sentinel errors are matched with errors.Is.
package store

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"classroom-backend/internal/model"
)

var (
	ErrRoomNotFound    = errors.New("room not found")
	ErrRoomInactive    = errors.New("room is not active")
	ErrInvalidRoomType = errors.New("invalid room type")
	ErrUserNotFound    = errors.New("user not found")
	ErrRoleNotFound    = errors.New("role not found")
	ErrEmailTaken      = errors.New("email already registered")
)

// Directory is the persistence contract consumed by the relay and the HTTP
// handlers.
type Directory interface {
	CreateMessage(ctx context.Context, roomID, userID int64, content string, answered bool) (*model.Message, error)
	SendMessage(ctx context.Context, roomID, userID int64, content, role string) (*model.Message, int64, error)
	MarkAllAnswered(ctx context.Context, roomID int64) (int64, error)
	GetHistory(ctx context.Context, roomID int64) ([]model.Message, error)
	GetRoomSummaries(ctx context.Context, filter SummaryFilter) ([]RoomSummary, error)
	CreateRoom(ctx context.Context, name string, ownerID int64, roomType model.RoomType) (*model.Room, error)
	GetRoom(ctx context.Context, roomID int64) (*model.Room, error)
	DeactivateRoom(ctx context.Context, roomID int64) (bool, error)
}

// Store GORM 기반 Directory 구현
type Store struct {
	db *gorm.DB
}

var _ Directory = (*Store)(nil)

// New Store 생성
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB 내부 GORM 핸들
func (s *Store) DB() *gorm.DB {
	return s.db
}

func (s *Store) conn(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx)
}
