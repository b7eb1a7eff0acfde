package server

import (
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"gorm.io/gorm"

	"classroom-backend/internal/auth"
	"classroom-backend/internal/config"
	"classroom-backend/internal/handler"
	"classroom-backend/internal/relay"
	"classroom-backend/internal/store"
)

// Server Fiber 서버 래퍼
type Server struct {
	app               *fiber.App
	cfg               *config.Config
	relay             *relay.Relay
	authHandler       *handler.AuthHandler
	chatHandler       *handler.ChatHandler
	sharedFileHandler *handler.SharedFileHandler
	healthHandler     *handler.HealthHandler
	relayWSHandler    *handler.RelayWSHandler
	jwtManager        *auth.JWTManager
}

// New 새 서버 인스턴스 생성
// redis는 Redis를 쓰지 않으면 nil
func New(cfg *config.Config, db *gorm.DB, st *store.Store, rl *relay.Relay, redis handler.Pinger) (*Server, error) {
	app := fiber.New(fiber.Config{
		AppName:      "Classroom Relay",
		ServerHeader: "Fiber",
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		Prefork:      false, // WebSocket과 호환성 문제로 비활성화
		BodyLimit:    cfg.Upload.MaxSizeBytes + 1024*1024,
	})

	jwtManager := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenExpiry)

	sharedFileHandler, err := handler.NewSharedFileHandler(st, cfg.Upload.Dir, cfg.Upload.MaxSizeBytes)
	if err != nil {
		return nil, err
	}

	return &Server{
		app:               app,
		cfg:               cfg,
		relay:             rl,
		authHandler:       handler.NewAuthHandler(st, jwtManager, cfg.Auth.SecureCookie),
		chatHandler:       handler.NewChatHandler(st, rl),
		sharedFileHandler: sharedFileHandler,
		healthHandler:     handler.NewHealthHandler(db, redis, rl),
		relayWSHandler:    handler.NewRelayWSHandler(rl, cfg.WebSocket),
		jwtManager:        jwtManager,
	}, nil
}

// App 내부 Fiber 앱 (테스트용)
func (s *Server) App() *fiber.App {
	return s.app
}

// SetupMiddleware 미들웨어 설정
func (s *Server) SetupMiddleware() {
	// 패닉 복구
	s.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))

	// 로깅
	s.app.Use(logger.New(logger.Config{
		Format:     "${time} | ${status} | ${latency} | ${ip} | ${method} ${path}\n",
		TimeFormat: "2006-01-02 15:04:05",
	}))

	// CORS
	s.app.Use(cors.New(cors.Config{
		AllowOrigins:     s.cfg.CORS.AllowOrigins,
		AllowHeaders:     s.cfg.CORS.AllowHeaders,
		AllowMethods:     "GET, POST, PUT, DELETE, OPTIONS",
		AllowCredentials: true,
	}))

	// 프론트엔드 빌드 제공 (설정된 경우)
	if s.cfg.Server.StaticDir != "" {
		s.app.Static("/", s.cfg.Server.StaticDir)
	}
}

// SetupRoutes 라우트 설정
func (s *Server) SetupRoutes() {
	// 헬스체크 엔드포인트
	s.app.Get("/health", s.healthHandler.Check)
	s.app.Get("/health/live", s.healthHandler.Liveness)
	s.app.Get("/health/ready", s.healthHandler.Readiness)

	// Rate Limiter 설정 (인증 엔드포인트용 - Brute Force 방지)
	authLimiter := limiter.New(limiter.Config{
		Max:        10,              // 최대 10회
		Expiration: 1 * time.Minute, // 1분당
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP() // IP 기반 제한
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "too many requests, please try again later",
			})
		},
	})

	// Auth 라우트 그룹
	authGroup := s.app.Group("/auth")
	authGroup.Post("/register", authLimiter, s.authHandler.Register)
	authGroup.Post("/login", authLimiter, s.authHandler.Login)
	authGroup.Post("/logout", s.authHandler.Logout)
	authGroup.Get("/roles", s.authHandler.GetRoles)
	authGroup.Get("/users", s.authHandler.GetUsers)
	authGroup.Get("/me", auth.AuthMiddleware(s.jwtManager), s.authHandler.GetMe)

	// Chat 라우트 그룹
	chatGroup := s.app.Group("/chat")
	chatGroup.Get("/rooms", s.chatHandler.GetChatRooms)
	chatGroup.Get("/class-rooms", s.chatHandler.GetClassRooms)
	chatGroup.Get("/student-rooms/:userId", s.chatHandler.GetStudentRooms)
	chatGroup.Get("/messages/:roomId", s.chatHandler.GetMessages)
	chatGroup.Post("/create-room", s.chatHandler.CreateRoom)
	chatGroup.Post("/send", s.chatHandler.SendMessage)
	chatGroup.Delete("/rooms/:roomId", s.chatHandler.DeleteRoom)

	// 공유 파일 라우트 그룹
	filesGroup := s.app.Group("/shared_files")
	filesGroup.Post("/upload", s.sharedFileHandler.Upload)
	filesGroup.Get("/room/:roomId", s.sharedFileHandler.ListByRoom)
	filesGroup.Get("/download/:filename", s.sharedFileHandler.Download)

	// WebSocket 업그레이드 체크 미들웨어
	s.app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	// WebSocket 교실 릴레이 엔드포인트 (신원은 프레임에 담겨 옴)
	s.app.Get("/ws", websocket.New(s.relayWSHandler.HandleWebSocket, websocket.Config{
		ReadBufferSize:  s.cfg.WebSocket.ReadBufferSize,
		WriteBufferSize: s.cfg.WebSocket.WriteBufferSize,
	}))
}

// Start 서버 시작 (Graceful Shutdown 지원)
func (s *Server) Start() error {
	// Graceful Shutdown 설정
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("🛑 Shutting down server...")
		if err := s.Shutdown(); err != nil {
			log.Fatalf("Server shutdown error: %v", err)
		}
	}()

	log.Printf("🚀 Classroom relay starting on %s", s.cfg.Server.Port)
	log.Printf("📡 WebSocket endpoint: ws://localhost%s/ws", s.cfg.Server.Port)

	return s.app.Listen(s.cfg.Server.Port)
}

// Shutdown 서버 종료
func (s *Server) Shutdown() error {
	return s.app.ShutdownWithTimeout(30 * time.Second)
}
