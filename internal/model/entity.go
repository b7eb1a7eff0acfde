package model

import (
	"time"
)

// Role 사용자 역할 (teacher, student)
type Role struct {
	ID   int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	Name string `gorm:"type:varchar(50);uniqueIndex;not null" json:"name"`
}

func (Role) TableName() string {
	return "roles"
}

// User 사용자
type User struct {
	ID           int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Name         string    `gorm:"type:varchar(100);not null" json:"name"`
	Email        string    `gorm:"type:varchar(150);uniqueIndex;not null" json:"email"`
	PasswordHash string    `gorm:"column:password_hash;type:varchar(255);not null" json:"-"`
	RoleID       *int64    `json:"role_id,omitempty"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`

	// Relations
	Role *Role `gorm:"foreignKey:RoleID" json:"role,omitempty"`
}

func (User) TableName() string {
	return "users"
}

// RoleName 역할 이름 반환 (역할이 로드되지 않았으면 빈 문자열)
func (u *User) RoleName() string {
	if u.Role == nil {
		return ""
	}
	return u.Role.Name
}

// Room 수업(class) 또는 질문 스레드(chat)
type Room struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Name      string    `gorm:"type:varchar(200);not null" json:"name"`
	Type      RoomType  `gorm:"column:room_type;type:varchar(20);not null;index" json:"room_type"`
	OwnerID   int64     `gorm:"not null;index" json:"owner_id"`
	IsActive  bool      `gorm:"default:true;index" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`

	// Relations
	Owner    *User     `gorm:"foreignKey:OwnerID" json:"owner,omitempty"`
	Messages []Message `gorm:"foreignKey:RoomID" json:"messages,omitempty"`
}

func (Room) TableName() string {
	return "rooms"
}

// Message 채팅 메시지
type Message struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	RoomID     int64     `gorm:"not null;index:idx_messages_room_created" json:"room_id"`
	UserID     int64     `gorm:"not null" json:"user_id"`
	Content    string    `gorm:"type:text;not null" json:"content"`
	IsAnswered bool      `gorm:"default:false;index" json:"is_answered"`
	CreatedAt  time.Time `gorm:"autoCreateTime;index:idx_messages_room_created" json:"created_at"`

	// Relations
	User *User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

func (Message) TableName() string {
	return "messages"
}

// SharedFile 방에 공유된 파일 메타데이터
type SharedFile struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	RoomID    int64     `gorm:"not null;index" json:"room_id"`
	UserID    int64     `gorm:"not null" json:"user_id"`
	FileName  string    `gorm:"type:varchar(255);not null" json:"file_name"`
	FileURL   string    `gorm:"type:varchar(255);not null" json:"file_url"`
	FileSize  float64   `gorm:"not null" json:"file_size"` // KB
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (SharedFile) TableName() string {
	return "shared_files"
}
