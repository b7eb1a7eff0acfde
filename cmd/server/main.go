package main

import (
	"log"

	"classroom-backend/internal/cache"
	"classroom-backend/internal/config"
	"classroom-backend/internal/database"
	"classroom-backend/internal/handler"
	"classroom-backend/internal/relay"
	"classroom-backend/internal/server"
	"classroom-backend/internal/store"
)

func main() {
	// 설정 로드
	cfg := config.Load()

	// 데이터베이스 연결 (마이그레이션 + 역할 시드 포함)
	db, err := database.ConnectDB(cfg.Database)
	if err != nil {
		log.Fatalf("❌ Database connection failed: %v", err)
	}
	defer database.Close(db)

	if err := database.Ping(db); err != nil {
		log.Fatalf("❌ Database ping failed: %v", err)
	}
	log.Printf("✅ Database connected (%s)", cfg.Database.Driver)

	st := store.New(db)

	// 메시지 중복 방지 키 저장소 (Redis 없으면 메모리)
	var (
		dedupe      relay.Deduper
		redisHealth handler.Pinger
	)
	if cfg.Redis.Enabled() {
		redisClient, err := cache.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Idempotency.TTL)
		if err != nil {
			log.Printf("⚠️ Redis unavailable (%v), falling back to in-memory idempotency keys", err)
			dedupe = cache.NewMemoryKeys(cfg.Idempotency.TTL)
		} else {
			defer redisClient.Close()
			dedupe = redisClient
			redisHealth = redisClient
		}
	} else {
		log.Println("ℹ️ Redis not configured, using in-memory idempotency keys")
		dedupe = cache.NewMemoryKeys(cfg.Idempotency.TTL)
	}

	rl := relay.New(st, dedupe)

	// 서버 생성 및 설정
	srv, err := server.New(cfg, db, st, rl, redisHealth)
	if err != nil {
		log.Fatalf("❌ Server setup failed: %v", err)
	}
	srv.SetupMiddleware()
	srv.SetupRoutes()

	// 서버 시작
	if err := srv.Start(); err != nil {
		log.Fatalf("Server failed to start: %v", err)
	}
}
