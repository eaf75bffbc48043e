package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/soulmatch/internal/auth"
	"github.com/MarcoPoloResearchLab/soulmatch/internal/contents"
	"github.com/MarcoPoloResearchLab/soulmatch/internal/database"
	"github.com/MarcoPoloResearchLab/soulmatch/internal/messaging"
	"github.com/MarcoPoloResearchLab/soulmatch/internal/profiles"
	"github.com/MarcoPoloResearchLab/soulmatch/internal/realtime"
	"github.com/MarcoPoloResearchLab/soulmatch/internal/storage"
	"github.com/MarcoPoloResearchLab/soulmatch/internal/users"
	sqlite "github.com/glebarez/sqlite"
	"github.com/gin-gonic/gin"
	"github.com/spf13/afero"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testPassword = "Rahasia123"

type apiHarness struct {
	server     *httptest.Server
	users      *users.Service
	dispatcher *realtime.Dispatcher
	filesystem afero.Fs
}

func newAPIHarness(t *testing.T) *apiHarness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := database.Migrate(db, zap.NewNop()); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}

	issuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte("test-signing-secret"),
		Issuer:        "soulmatch-auth",
		Audience:      "soulmatch-api",
		TokenTTL:      time.Hour,
	})
	if err != nil {
		t.Fatalf("failed to construct issuer: %v", err)
	}
	profileService, err := profiles.NewService(profiles.ServiceConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to construct profiles service: %v", err)
	}
	userService, err := users.NewService(users.ServiceConfig{
		Database: db,
		Profiles: profileService,
		Tokens:   issuer,
	})
	if err != nil {
		t.Fatalf("failed to construct users service: %v", err)
	}
	sessions, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		Tokens:     issuer,
		Revocation: userService,
	})
	if err != nil {
		t.Fatalf("failed to construct session validator: %v", err)
	}
	store, err := messaging.NewGormStore(messaging.GormStoreConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to construct store: %v", err)
	}
	dispatcher := realtime.NewDispatcher()
	messagingService, err := messaging.NewService(messaging.ServiceConfig{Store: store, Publisher: dispatcher})
	if err != nil {
		t.Fatalf("failed to construct messaging service: %v", err)
	}
	contentService, err := contents.NewService(contents.ServiceConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to construct contents service: %v", err)
	}
	filesystem := afero.NewMemMapFs()
	bucket, err := storage.NewBucket(storage.BucketConfig{Filesystem: filesystem, PublicBaseURL: storageRoutePrefix})
	if err != nil {
		t.Fatalf("failed to construct bucket: %v", err)
	}

	handler, err := NewHTTPHandler(Dependencies{
		Sessions:          sessions,
		Users:             userService,
		Profiles:          profileService,
		Messaging:         messagingService,
		Contents:          contentService,
		Bucket:            bucket,
		Realtime:          dispatcher,
		HeartbeatInterval: 50 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("failed to construct http handler: %v", err)
	}
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return &apiHarness{server: server, users: userService, dispatcher: dispatcher, filesystem: filesystem}
}

type session struct {
	token  string
	userID string
}

func (h *apiHarness) signUpAndIn(t *testing.T, email, name string) session {
	t.Helper()
	status, body := h.do(t, http.MethodPost, "/auth/signup", "", map[string]string{
		"email":    email,
		"name":     name,
		"password": testPassword,
	})
	if status != http.StatusCreated {
		t.Fatalf("sign-up failed: %d %s", status, body)
	}
	return h.signIn(t, email, testPassword)
}

func (h *apiHarness) signIn(t *testing.T, email, password string) session {
	t.Helper()
	status, body := h.do(t, http.MethodPost, "/auth/signin", "", map[string]string{"email": email, "password": password})
	if status != http.StatusOK {
		t.Fatalf("sign-in failed: %d %s", status, body)
	}
	var payload struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
		User        struct {
			ID string `json:"id"`
		} `json:"user"`
	}
	decode(t, body, &payload)
	if payload.AccessToken == "" || payload.TokenType != "Bearer" || payload.User.ID == "" {
		t.Fatalf("unexpected sign-in payload %s", body)
	}
	return session{token: payload.AccessToken, userID: payload.User.ID}
}

func (h *apiHarness) do(t *testing.T, method, path, token string, body any) (int, []byte) {
	t.Helper()
	var reader io.Reader = http.NoBody
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	}
	request, err := http.NewRequestWithContext(context.Background(), method, h.server.URL+path, reader)
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}
	return h.send(t, request)
}

func (h *apiHarness) send(t *testing.T, request *http.Request) (int, []byte) {
	t.Helper()
	response, err := h.server.Client().Do(request)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer response.Body.Close()
	payload, err := io.ReadAll(response.Body)
	if err != nil {
		t.Fatalf("failed to read response: %v", err)
	}
	return response.StatusCode, payload
}

func decode(t *testing.T, body []byte, target any) {
	t.Helper()
	if err := json.Unmarshal(body, target); err != nil {
		t.Fatalf("failed to decode %s: %v", body, err)
	}
}

func errorCode(t *testing.T, body []byte) string {
	t.Helper()
	var payload errorResponsePayload
	decode(t, body, &payload)
	return payload.Error
}
