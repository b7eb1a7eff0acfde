package store

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"classroom-backend/internal/model"
)

// CreateUser 사용자 생성 (이메일 중복 시 ErrEmailTaken)
func (s *Store) CreateUser(ctx context.Context, name, email, passwordHash string, roleID *int64) (*model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	var count int64
	if err := s.conn(ctx).Model(&model.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return nil, errors.Wrap(err, "check email")
	}
	if count > 0 {
		return nil, ErrEmailTaken
	}

	if roleID != nil {
		if _, err := s.GetRole(ctx, *roleID); err != nil {
			return nil, err
		}
	}

	user := model.User{
		Name:         strings.TrimSpace(name),
		Email:        email,
		PasswordHash: passwordHash,
		RoleID:       roleID,
	}
	if err := s.conn(ctx).Create(&user).Error; err != nil {
		return nil, errors.Wrap(err, "create user")
	}
	return s.GetUser(ctx, user.ID)
}

// GetUser 사용자 조회 (역할 포함)
func (s *Store) GetUser(ctx context.Context, userID int64) (*model.User, error) {
	var user model.User
	if err := s.conn(ctx).Preload("Role").First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, errors.Wrapf(err, "get user %d", userID)
	}
	return &user, nil
}

// FindUserByEmail 이메일로 사용자 조회
func (s *Store) FindUserByEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	err := s.conn(ctx).Preload("Role").
		Where("email = ?", strings.ToLower(strings.TrimSpace(email))).
		First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, errors.Wrap(err, "find user by email")
	}
	return &user, nil
}

// ListUsers 전체 사용자 목록 (역할 포함)
func (s *Store) ListUsers(ctx context.Context) ([]model.User, error) {
	users := make([]model.User, 0)
	if err := s.conn(ctx).Preload("Role").Order("id ASC").Find(&users).Error; err != nil {
		return nil, errors.Wrap(err, "list users")
	}
	return users, nil
}

// ListRoles 역할 목록
func (s *Store) ListRoles(ctx context.Context) ([]model.Role, error) {
	roles := make([]model.Role, 0)
	if err := s.conn(ctx).Order("id ASC").Find(&roles).Error; err != nil {
		return nil, errors.Wrap(err, "list roles")
	}
	return roles, nil
}

// GetRole 역할 조회
func (s *Store) GetRole(ctx context.Context, roleID int64) (*model.Role, error) {
	var role model.Role
	if err := s.conn(ctx).First(&role, roleID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRoleNotFound
		}
		return nil, errors.Wrapf(err, "get role %d", roleID)
	}
	return &role, nil
}

// GetRoleByName 이름으로 역할 조회
func (s *Store) GetRoleByName(ctx context.Context, name string) (*model.Role, error) {
	var role model.Role
	if err := s.conn(ctx).Where("name = ?", strings.ToLower(name)).First(&role).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRoleNotFound
		}
		return nil, errors.Wrapf(err, "get role %q", name)
	}
	return &role, nil
}
