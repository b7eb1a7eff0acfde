package store

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"classroom-backend/internal/model"
)

// CreateMessage inserts a message row as-is. It does not touch prior
// messages; SendMessage is the path that applies the answered rule.
func (s *Store) CreateMessage(ctx context.Context, roomID, userID int64, content string, answered bool) (*model.Message, error) {
	msg := model.Message{
		RoomID:     roomID,
		UserID:     userID,
		Content:    content,
		IsAnswered: answered,
	}
	if err := s.conn(ctx).Create(&msg).Error; err != nil {
		return nil, errors.Wrapf(err, "create message in room %d", roomID)
	}
	return &msg, nil
}

// SendMessage persists a new message and, for teacher authors, marks every
// previously unanswered message in the room as answered. Both writes happen
// in one transaction. It returns the stored message (author preloaded) and
// the number of prior messages that were flipped.
func (s *Store) SendMessage(ctx context.Context, roomID, userID int64, content, role string) (*model.Message, int64, error) {
	teacher := model.IsTeacher(role)

	var (
		msg    model.Message
		marked int64
	)
	err := s.conn(ctx).Transaction(func(tx *gorm.DB) error {
		var room model.Room
		if err := tx.Select("id", "is_active").First(&room, roomID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrRoomNotFound
			}
			return errors.Wrap(err, "load room")
		}
		if !room.IsActive {
			return ErrRoomInactive
		}

		if teacher {
			res := tx.Model(&model.Message{}).
				Where("room_id = ? AND is_answered = ?", roomID, false).
				Update("is_answered", true)
			if res.Error != nil {
				return errors.Wrap(res.Error, "mark prior messages answered")
			}
			marked = res.RowsAffected
		}

		msg = model.Message{
			RoomID:     roomID,
			UserID:     userID,
			Content:    content,
			IsAnswered: teacher,
		}
		if err := tx.Create(&msg).Error; err != nil {
			return errors.Wrap(err, "insert message")
		}

		return tx.Preload("User.Role").First(&msg, msg.ID).Error
	})
	if err != nil {
		return nil, 0, err
	}

	return &msg, marked, nil
}

// MarkAllAnswered flips every unanswered message in the room and returns the
// number of rows changed.
func (s *Store) MarkAllAnswered(ctx context.Context, roomID int64) (int64, error) {
	res := s.conn(ctx).Model(&model.Message{}).
		Where("room_id = ? AND is_answered = ?", roomID, false).
		Update("is_answered", true)
	if res.Error != nil {
		return 0, errors.Wrapf(res.Error, "mark answered in room %d", roomID)
	}
	return res.RowsAffected, nil
}

// GetHistory returns the room's messages oldest first, authors joined.
// An unknown room yields an empty slice.
func (s *Store) GetHistory(ctx context.Context, roomID int64) ([]model.Message, error) {
	messages := make([]model.Message, 0)
	err := s.conn(ctx).
		Where("room_id = ?", roomID).
		Preload("User.Role").
		Order("created_at ASC").
		Order("id ASC").
		Find(&messages).Error
	if err != nil {
		return nil, errors.Wrapf(err, "history of room %d", roomID)
	}
	return messages, nil
}
