package store

import (
	"context"

	"github.com/pkg/errors"

	"classroom-backend/internal/model"
)

// CreateSharedFile 공유 파일 메타데이터 저장
func (s *Store) CreateSharedFile(ctx context.Context, file *model.SharedFile) error {
	if err := s.conn(ctx).Create(file).Error; err != nil {
		return errors.Wrapf(err, "save shared file in room %d", file.RoomID)
	}
	return nil
}

// ListSharedFiles 방의 공유 파일 목록 (최신순)
func (s *Store) ListSharedFiles(ctx context.Context, roomID int64) ([]model.SharedFile, error) {
	files := make([]model.SharedFile, 0)
	err := s.conn(ctx).
		Where("room_id = ?", roomID).
		Order("created_at DESC").
		Order("id DESC").
		Find(&files).Error
	if err != nil {
		return nil, errors.Wrapf(err, "list shared files of room %d", roomID)
	}
	return files, nil
}
