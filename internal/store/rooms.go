package store

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"classroom-backend/internal/model"
)

// SummaryFilter narrows GetRoomSummaries.
type SummaryFilter struct {
	Type       model.RoomType // empty matches every type
	ActiveOnly bool
	OwnerID    int64 // 0 matches every owner
}

// RoomSummary is a room joined with its most recent message.
type RoomSummary struct {
	RoomID        int64          `json:"room_id"`
	RoomName      string         `json:"room_name"`
	RoomType      model.RoomType `json:"room_type"`
	IsActive      bool           `json:"room_is_active"`
	OwnerID       int64          `json:"room_created_by"`
	OwnerName     string         `json:"owner_name"`
	CreatedAt     time.Time      `json:"room_created_at"`
	LastContent   *string        `json:"last_content"`
	LastMessageAt *time.Time     `json:"last_message_at"`
	IsAnswered    bool           `json:"is_answered"`
}

// activityAt is the sort key for summaries: last message time, or the room's
// creation time when it has no messages yet.
func (s RoomSummary) activityAt() time.Time {
	if s.LastMessageAt != nil {
		return *s.LastMessageAt
	}
	return s.CreatedAt
}

// CreateRoom creates an active room.
func (s *Store) CreateRoom(ctx context.Context, name string, ownerID int64, roomType model.RoomType) (*model.Room, error) {
	if !roomType.Valid() {
		return nil, ErrInvalidRoomType
	}
	room := model.Room{
		Name:     strings.TrimSpace(name),
		Type:     roomType,
		OwnerID:  ownerID,
		IsActive: true,
	}
	if err := s.conn(ctx).Create(&room).Error; err != nil {
		return nil, errors.Wrap(err, "create room")
	}
	return &room, nil
}

// GetRoom loads a room by id.
func (s *Store) GetRoom(ctx context.Context, roomID int64) (*model.Room, error) {
	var room model.Room
	if err := s.conn(ctx).First(&room, roomID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, errors.Wrapf(err, "get room %d", roomID)
	}
	return &room, nil
}

// DeactivateRoom soft-deletes a room. It reports whether an active room was
// actually switched off; messages are kept.
func (s *Store) DeactivateRoom(ctx context.Context, roomID int64) (bool, error) {
	res := s.conn(ctx).Model(&model.Room{}).
		Where("id = ? AND is_active = ?", roomID, true).
		Update("is_active", false)
	if res.Error != nil {
		return false, errors.Wrapf(res.Error, "deactivate room %d", roomID)
	}
	return res.RowsAffected > 0, nil
}

// GetRoomSummaries lists rooms matching the filter, each with its latest
// message, most recently active first. The latest message of a room is the
// one with the highest id, so equal timestamps resolve by insertion order.
func (s *Store) GetRoomSummaries(ctx context.Context, filter SummaryFilter) ([]RoomSummary, error) {
	q := s.conn(ctx).Model(&model.Room{}).Preload("Owner")
	if filter.Type != "" {
		q = q.Where("room_type = ?", filter.Type)
	}
	if filter.ActiveOnly {
		q = q.Where("is_active = ?", true)
	}
	if filter.OwnerID != 0 {
		q = q.Where("owner_id = ?", filter.OwnerID)
	}

	var rooms []model.Room
	if err := q.Find(&rooms).Error; err != nil {
		return nil, errors.Wrap(err, "list rooms")
	}

	summaries := make([]RoomSummary, 0, len(rooms))
	if len(rooms) == 0 {
		return summaries, nil
	}

	roomIDs := make([]int64, len(rooms))
	for i, r := range rooms {
		roomIDs[i] = r.ID
	}

	latestIDs := s.conn(ctx).Model(&model.Message{}).
		Select("MAX(id)").
		Where("room_id IN ?", roomIDs).
		Group("room_id")

	var latest []model.Message
	if err := s.conn(ctx).Where("id IN (?)", latestIDs).Find(&latest).Error; err != nil {
		return nil, errors.Wrap(err, "latest messages")
	}

	byRoom := make(map[int64]model.Message, len(latest))
	for _, m := range latest {
		byRoom[m.RoomID] = m
	}

	for _, r := range rooms {
		summary := RoomSummary{
			RoomID:    r.ID,
			RoomName:  r.Name,
			RoomType:  r.Type,
			IsActive:  r.IsActive,
			OwnerID:   r.OwnerID,
			CreatedAt: r.CreatedAt,
		}
		if r.Owner != nil {
			summary.OwnerName = r.Owner.Name
		}
		if m, ok := byRoom[r.ID]; ok {
			content := m.Content
			createdAt := m.CreatedAt
			summary.LastContent = &content
			summary.LastMessageAt = &createdAt
			summary.IsAnswered = m.IsAnswered
		}
		summaries = append(summaries, summary)
	}

	sort.SliceStable(summaries, func(i, j int) bool {
		ai, aj := summaries[i].activityAt(), summaries[j].activityAt()
		if ai.Equal(aj) {
			return summaries[i].RoomID > summaries[j].RoomID
		}
		return ai.After(aj)
	})

	return summaries, nil
}

// GetStudentRooms lists a student's active rooms with their last message.
func (s *Store) GetStudentRooms(ctx context.Context, ownerID int64) ([]RoomSummary, error) {
	return s.GetRoomSummaries(ctx, SummaryFilter{ActiveOnly: true, OwnerID: ownerID})
}
