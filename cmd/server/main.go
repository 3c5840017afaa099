package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rolechat/backend/internal/config"
	"github.com/rolechat/backend/internal/database"
	"github.com/rolechat/backend/internal/handlers"
	"github.com/rolechat/backend/internal/metrics"
	"github.com/rolechat/backend/internal/middleware"
	"github.com/rolechat/backend/internal/realtime"
	"github.com/rolechat/backend/internal/services"
	"github.com/rolechat/backend/internal/storage"
	"github.com/rolechat/backend/pkg/logger"
	"github.com/rolechat/backend/pkg/utils"
	"golang.org/x/time/rate"
)

func main() {
	godotenv.Load()
	logger.Init()

	cfg := config.Load()
	utils.ConfigureJWT(cfg.JWT.Secret, cfg.JWT.ExpirationHours)

	db, err := database.Connect(cfg.DB)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}

	storageClient, err := storage.NewMinIOClient(cfg.MinIO)
	if err != nil {
		log.Fatalf("minio initialization failed: %v", err)
	}
	bucketCtx, cancelBucket := context.WithTimeout(context.Background(), 10*time.Second)
	if err := storageClient.EnsureBucket(bucketCtx); err != nil {
		log.Fatalf("minio bucket setup failed: %v", err)
	}
	cancelBucket()

	rolesService := services.NewRolesService(db, cfg.Chat.MigrationBatchSize)
	if _, err := rolesService.EnsureDefaults(context.Background()); err != nil {
		log.Fatalf("role registry setup failed: %v", err)
	}
	directoryService := services.NewDirectoryService(db, rolesService)
	chatService := services.NewChatService(db, storageClient, cfg.Chat.HistoryLimit)

	hub := realtime.NewHub()
	chatService.SetPublisher(hub)

	app := fiber.New(fiber.Config{
		BodyLimit: int(cfg.Chat.MaxAttachmentBytes) + 1024*1024,
	})

	app.Use(recover.New())
	app.Use(middleware.CORS(cfg.Server.AllowedOrigins))
	app.Use(middleware.RequestLogger())
	app.Use(metrics.Middleware())

	authMiddleware := middleware.NewAuthMiddleware(db)

	authHandler := handlers.NewAuthHandler(db)
	usersHandler := handlers.NewUsersHandler(db, directoryService)
	rolesHandler := handlers.NewRolesHandler(rolesService)
	chatHandler := handlers.NewChatHandler(chatService, cfg.Chat.MaxAttachmentBytes)
	wsHandler := handlers.NewWSHandler(chatService, hub)

	app.Get("/health", func(c *fiber.Ctx) error {
		return utils.Success(c, fiber.StatusOK, fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := app.Group("/api")

	auth := api.Group("/auth")
	auth.Post("/register", middleware.RateLimit(rate.Every(time.Second), 5), authHandler.Register)
	auth.Post("/login", middleware.RateLimit(rate.Every(time.Second), 5), authHandler.Login)
	auth.Get("/me", authMiddleware.RequireAuth, authHandler.Me)
	auth.Put("/password", authMiddleware.RequireAuth, authHandler.ChangePassword)

	users := api.Group("/users", authMiddleware.RequireAuth, middleware.SecurityLogger())
	users.Get("/search", usersHandler.Search)
	users.Get("/", middleware.AdminOnly, usersHandler.List)
	users.Post("/", middleware.AdminOnly, usersHandler.CreatePlaceholder)
	users.Get("/:id", middleware.AdminOnly, usersHandler.Get)
	users.Put("/:id/role", middleware.AdminOnly, usersHandler.ChangeRole)
	users.Delete("/:id/role", middleware.AdminOnly, usersHandler.ClearRole)
	users.Post("/:id/role/reset", middleware.AdminOnly, usersHandler.ResetRole)
	users.Put("/:id/email", middleware.AdminOnly, usersHandler.UpdateEmail)
	users.Delete("/:id", middleware.AdminOnly, usersHandler.Delete)

	roles := api.Group("/roles", authMiddleware.RequireAuth, middleware.SecurityLogger())
	roles.Get("/", rolesHandler.List)
	roles.Post("/", middleware.AdminOnly, rolesHandler.Add)
	roles.Put("/:name", middleware.AdminOnly, rolesHandler.Rename)
	roles.Delete("/:name", middleware.AdminOnly, rolesHandler.Delete)

	chat := api.Group("/chat", authMiddleware.RequireAuth)
	chat.Get("/rooms", chatHandler.Rooms)
	chat.Get("/unreads", chatHandler.Unreads)
	chat.Get("/with/:userID", chatHandler.OpenPrivate)
	chat.Get("/rooms/:roomID/messages", chatHandler.History)
	chat.Post("/rooms/:roomID/messages", chatHandler.Send)
	chat.Post("/rooms/:roomID/messages/:messageID/reactions", chatHandler.React)
	chat.Delete("/rooms/:roomID/messages/:messageID", chatHandler.Delete)
	chat.Post("/rooms/:roomID/read", chatHandler.MarkRead)
	chat.Get("/rooms/:roomID/ws", wsHandler.Upgrade, wsHandler.Serve())

	go func() {
		addr := fmt.Sprintf(":%s", cfg.Server.Port)
		logger.Info("server_starting", map[string]interface{}{"addr": addr})
		if err := app.Listen(addr); err != nil {
			log.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("server_shutting_down", nil)
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Fatalf("shutdown failed: %v", err)
	}
}
