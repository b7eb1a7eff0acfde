package main

import (
	"log"

	"gorm.io/gorm"

	"classroom-backend/internal/config"
	"classroom-backend/internal/database"
	"classroom-backend/internal/model"
)

func main() {
	cfg := config.Load()

	// Connect to database (migrates and seeds the default roles)
	db, err := database.ConnectDB(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close(db)

	log.Println("Database connected. Starting role reset...")

	err = db.Transaction(func(tx *gorm.DB) error {
		var student model.Role
		if err := tx.Where("name = ?", model.RoleStudent).First(&student).Error; err != nil {
			return err
		}

		known := tx.Model(&model.Role{}).Select("id").Where("name IN ?", model.DefaultRoles)

		// 1. Users without a known role become students
		log.Println("Assigning the student role to users without a known role...")
		res := tx.Model(&model.User{}).
			Where("role_id IS NULL OR role_id NOT IN (?)", known).
			Update("role_id", student.ID)
		if res.Error != nil {
			return res.Error
		}
		log.Printf("  %d user(s) assigned", res.RowsAffected)

		// 2. Roles other than teacher/student are removed
		log.Println("Removing unknown roles...")
		res = tx.Where("name NOT IN ?", model.DefaultRoles).Delete(&model.Role{})
		if res.Error != nil {
			return res.Error
		}
		log.Printf("  %d role(s) removed", res.RowsAffected)
		return nil
	})
	if err != nil {
		log.Fatalf("Role reset failed: %v", err)
	}

	log.Println("Role reset complete.")
}
