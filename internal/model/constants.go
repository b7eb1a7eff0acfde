package model

import "strings"

// RoomType 방 타입
type RoomType string

const (
	RoomTypeClass RoomType = "class" // 교사가 여는 수업방
	RoomTypeChat  RoomType = "chat"  // 학생의 1:1 질문 스레드
)

func (t RoomType) String() string {
	return string(t)
}

// Valid 지원하는 방 타입인지 확인
func (t RoomType) Valid() bool {
	return t == RoomTypeClass || t == RoomTypeChat
}

// 역할 이름
const (
	RoleTeacher = "teacher"
	RoleStudent = "student"
)

// DefaultRoles 마이그레이션 시 생성되는 기본 역할
var DefaultRoles = []string{RoleTeacher, RoleStudent}

// IsTeacher 역할 문자열이 교사인지 확인 (대소문자 무시)
func IsTeacher(role string) bool {
	return strings.EqualFold(strings.TrimSpace(role), RoleTeacher)
}
