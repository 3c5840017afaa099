package handlers

import (
	"bytes"
	"context"
	"database/sql/driver"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rolechat/backend/internal/database"
	"github.com/rolechat/backend/internal/middleware"
	"github.com/rolechat/backend/internal/models"
	"github.com/rolechat/backend/internal/realtime"
	"github.com/rolechat/backend/internal/services"
	"github.com/rolechat/backend/pkg/logger"
	"github.com/rolechat/backend/pkg/utils"
	"gorm.io/gorm"
)

type testEnv struct {
	app   *fiber.App
	db    *gorm.DB
	chat  *services.ChatService
	store *memoryStore
}

var testSetupOnce sync.Once

// memoryStore is an in-process ObjectStore so attachment flows run
// without a live MinIO.
type memoryStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemoryStore() *memoryStore {
	return &memoryStore{objects: make(map[string][]byte)}
}

func (m *memoryStore) Upload(_ context.Context, objectName string, reader io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.objects[objectName] = data
	m.mu.Unlock()
	return nil
}

func (m *memoryStore) Delete(_ context.Context, objectName string) error {
	m.mu.Lock()
	delete(m.objects, objectName)
	m.mu.Unlock()
	return nil
}

func (m *memoryStore) PublicURL(objectName string) string {
	return "http://storage.test/attachments-bucket/" + objectName
}

func (m *memoryStore) ObjectNameFromURL(url string) (string, bool) {
	const prefix = "http://storage.test/attachments-bucket/"
	if len(url) <= len(prefix) || url[:len(prefix)] != prefix {
		return "", false
	}
	return url[len(prefix):], true
}

func (m *memoryStore) has(objectName string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[objectName]
	return ok
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	testSetupOnce.Do(func() {
		gosqlite.MustRegisterScalarFunction("NOW", 0, func(ctx *gosqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
			return time.Now().UTC(), nil
		})
		logger.Init()
		utils.ConfigureJWT("test-secret", 24)
	})

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed opening in-memory sqlite database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed getting sql.DB from gorm: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	if err := database.Migrate(db); err != nil {
		t.Fatalf("failed automigrating models: %v", err)
	}
	if err := db.FirstOrCreate(&models.Room{}, models.Room{ID: models.GlobalRoomID}).Error; err != nil {
		t.Fatalf("failed seeding global room: %v", err)
	}

	store := newMemoryStore()

	rolesService := services.NewRolesService(db, 450)
	if _, err := rolesService.EnsureDefaults(context.Background()); err != nil {
		t.Fatalf("failed seeding role registry: %v", err)
	}
	directoryService := services.NewDirectoryService(db, rolesService)
	chatService := services.NewChatService(db, store, 100)

	hub := realtime.NewHub()
	chatService.SetPublisher(hub)

	authMiddleware := middleware.NewAuthMiddleware(db)

	authHandler := NewAuthHandler(db)
	usersHandler := NewUsersHandler(db, directoryService)
	rolesHandler := NewRolesHandler(rolesService)
	chatHandler := NewChatHandler(chatService, 25*1024*1024)

	app := fiber.New(fiber.Config{BodyLimit: 50 * 1024 * 1024})
	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(middleware.RequestLogger())

	api := app.Group("/api")

	auth := api.Group("/auth")
	auth.Post("/register", authHandler.Register)
	auth.Post("/login", authHandler.Login)
	auth.Get("/me", authMiddleware.RequireAuth, authHandler.Me)
	auth.Put("/password", authMiddleware.RequireAuth, authHandler.ChangePassword)

	users := api.Group("/users", authMiddleware.RequireAuth)
	users.Get("/search", usersHandler.Search)
	users.Get("/", middleware.AdminOnly, usersHandler.List)
	users.Post("/", middleware.AdminOnly, usersHandler.CreatePlaceholder)
	users.Get("/:id", middleware.AdminOnly, usersHandler.Get)
	users.Put("/:id/role", middleware.AdminOnly, usersHandler.ChangeRole)
	users.Delete("/:id/role", middleware.AdminOnly, usersHandler.ClearRole)
	users.Post("/:id/role/reset", middleware.AdminOnly, usersHandler.ResetRole)
	users.Put("/:id/email", middleware.AdminOnly, usersHandler.UpdateEmail)
	users.Delete("/:id", middleware.AdminOnly, usersHandler.Delete)

	roles := api.Group("/roles", authMiddleware.RequireAuth)
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

	return &testEnv{app: app, db: db, chat: chatService, store: store}
}

func createTestUser(t *testing.T, db *gorm.DB, email, password, role string) (*models.User, string) {
	t.Helper()

	hash, err := utils.HashPassword(password)
	if err != nil {
		t.Fatalf("failed hashing password: %v", err)
	}

	user := &models.User{
		Email:        email,
		PasswordHash: hash,
		Role:         role,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed creating test user: %v", err)
	}

	token, err := utils.GenerateToken(user)
	if err != nil {
		t.Fatalf("failed generating auth token: %v", err)
	}

	return user, token
}

func authHeaders(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func performRequest(t *testing.T, app *fiber.App, method, path string, body io.Reader, headers map[string]string) *http.Response {
	t.Helper()

	req := httptest.NewRequest(method, path, body)
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := app.Test(req, int((10 * time.Second).Milliseconds()))
	if err != nil {
		t.Fatalf("request %s %s failed: %v", method, path, err)
	}

	return resp
}

func performJSONRequest(t *testing.T, app *fiber.App, method, path string, payload any, headers map[string]string) *http.Response {
	t.Helper()

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("failed to marshal payload: %v", err)
		}
		body = bytes.NewReader(encoded)
	}

	requestHeaders := map[string]string{}
	for key, value := range headers {
		requestHeaders[key] = value
	}
	if payload != nil {
		requestHeaders["Content-Type"] = "application/json"
	}

	return performRequest(t, app, method, path, body, requestHeaders)
}

func decodeJSONMap(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed reading response body: %v", err)
	}

	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("failed decoding JSON response: %v body=%q", err, string(raw))
	}

	return payload
}

func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Fatalf("expected status %d, got %d", expected, resp.StatusCode)
	}
}

func assertEnvelopeError(t *testing.T, body map[string]any, expected string) {
	t.Helper()
	if success, _ := body["success"].(bool); success {
		t.Fatalf("expected success=false, got %+v", body)
	}
	if got, _ := body["error"].(string); got != expected {
		t.Fatalf("expected error %q, got %q", expected, got)
	}
}

func dataMap(t *testing.T, body map[string]any) map[string]any {
	t.Helper()
	data, ok := body["data"].(map[string]any)
	if !ok {
		t.Fatalf("expected data object, got %+v", body)
	}
	return data
}
