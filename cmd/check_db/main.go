package main

import (
	"fmt"
	"log"

	"classroom-backend/internal/config"
	"classroom-backend/internal/database"
	"classroom-backend/internal/model"
)

func main() {
	cfg := config.Load()

	db, err := database.ConnectDB(cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	defer database.Close(db)

	fmt.Printf("✅ Connected to database (%s)\n", db.Dialector.Name())
	fmt.Println()

	tables := []struct {
		name  string
		model any
	}{
		{"roles", &model.Role{}},
		{"users", &model.User{}},
		{"rooms", &model.Room{}},
		{"messages", &model.Message{}},
		{"shared_files", &model.SharedFile{}},
	}

	fmt.Println("📊 Row counts:")
	for _, t := range tables {
		var count int64
		if err := db.Model(t.model).Count(&count).Error; err != nil {
			fmt.Printf("  - %-13s error: %v\n", t.name, err)
			continue
		}
		fmt.Printf("  - %-13s %d\n", t.name, count)
	}
	fmt.Println()

	var active, inactive int64
	db.Model(&model.Room{}).Where("is_active = ?", true).Count(&active)
	db.Model(&model.Room{}).Where("is_active = ?", false).Count(&inactive)
	fmt.Printf("🏫 Rooms: %d active, %d closed\n", active, inactive)

	var unanswered int64
	db.Model(&model.Message{}).
		Joins("JOIN rooms ON rooms.id = messages.room_id").
		Where("messages.is_answered = ? AND rooms.is_active = ?", false, true).
		Count(&unanswered)
	fmt.Printf("❓ Unanswered messages in open rooms: %d\n", unanswered)
}
