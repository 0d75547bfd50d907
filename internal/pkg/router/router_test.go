package router

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ManuelReschke/IntegrationGate/app/repository"
	"github.com/ManuelReschke/IntegrationGate/internal/pkg/config"
	"github.com/ManuelReschke/IntegrationGate/internal/pkg/database"
	"github.com/ManuelReschke/IntegrationGate/internal/pkg/events"
)

const adminToken = "test-admin-token"

type testServer struct {
	app *fiber.App
	now time.Time
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, database.AutoMigrate(db))

	// Monday 10:30 UTC
	now := time.Date(2024, 7, 1, 10, 30, 0, 0, time.UTC)
	cfg := config.New(config.WithClock(func() time.Time { return now }))
	repos := repository.NewRepositories(db)
	dispatcher := events.NewDispatcher()
	dispatcher.Listen(events.NewAuditRecorder(repos.AuditLog))

	app := fiber.New()
	InstallRouter(app, Dependencies{
		Config:     cfg,
		Repos:      repos,
		Dispatcher: dispatcher,
		AdminToken: adminToken,
	})
	return &testServer{app: app, now: now}
}

func (s *testServer) admin(t *testing.T, method, path string, userID string, body string) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Authorization", "Bearer "+adminToken)
	req.Header.Set("X-User-ID", userID)
	if body != "" {
		req.Header.Set("Content-Type", fiber.MIMEApplicationJSON)
	}
	return s.do(t, req)
}

func (s *testServer) do(t *testing.T, req *http.Request) (int, map[string]any) {
	t.Helper()
	resp, err := s.app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]any{}
	_ = json.Unmarshal(raw, &out)
	return resp.StatusCode, out
}

func (s *testServer) createIntegration(t *testing.T, body string) (id string, clientID string, clientSecret string) {
	t.Helper()
	status, out := s.admin(t, http.MethodPost, "/api/admin/integrations", "1", body)
	require.Equal(t, http.StatusCreated, status, out)
	integration := out["integration"].(map[string]any)
	return jsonID(integration["id"]), out["client_id"].(string), out["client_secret"].(string)
}

func jsonID(v any) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func apiCall(method, path, clientID, secret string) *http.Request {
	req := httptest.NewRequest(method, path, nil)
	req.Header.Set("X-Client-ID", clientID)
	req.Header.Set("X-Client-Secret", secret)
	return req
}

func TestIntegrationLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t)
	id, clientID, secret := s.createIntegration(t, `{"name":"CRM sync","permissions":{"posts":["read"]}}`)
	assert.Len(t, clientID, 40)
	assert.Len(t, secret, 80)

	status, out := s.admin(t, http.MethodGet, "/api/admin/integrations/"+id, "1", "")
	assert.Equal(t, http.StatusOK, status)
	assert.NotContains(t, out, "client_secret")

	status, _ = s.do(t, apiCall(http.MethodGet, "/api/v1/posts", clientID, secret))
	assert.Equal(t, http.StatusOK, status)

	status, out = s.do(t, apiCall(http.MethodPost, "/api/v1/posts", clientID, secret))
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "insufficient_permission", out["error"])

	status, out = s.admin(t, http.MethodPost, "/api/admin/integrations/"+id+"/deactivate", "1", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "inactive", out["status"])
	status, out = s.do(t, apiCall(http.MethodGet, "/api/v1/me", clientID, secret))
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "inactive", out["error"])

	_, _ = s.admin(t, http.MethodPost, "/api/admin/integrations/"+id+"/activate", "1", "")
	status, out = s.admin(t, http.MethodPost, "/api/admin/integrations/"+id+"/regenerate-secret", "1", "")
	require.Equal(t, http.StatusOK, status)
	fresh := out["client_secret"].(string)
	status, _ = s.do(t, apiCall(http.MethodGet, "/api/v1/me", clientID, secret))
	assert.Equal(t, http.StatusUnauthorized, status, "old secret stops working")
	status, out = s.do(t, apiCall(http.MethodGet, "/api/v1/me", clientID, fresh))
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, clientID, out["integration"].(map[string]any)["client_id"])

	status, out = s.admin(t, http.MethodGet, "/api/admin/integrations/"+id+"/audit", "1", "")
	require.Equal(t, http.StatusOK, status)
	assert.GreaterOrEqual(t, len(out["data"].([]any)), 4)

	status, _ = s.admin(t, http.MethodDelete, "/api/admin/integrations/"+id, "1", "")
	assert.Equal(t, http.StatusNoContent, status)
	status, _ = s.do(t, apiCall(http.MethodGet, "/api/v1/me", clientID, fresh))
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestAdminValidationAndOwnership(t *testing.T) {
	s := newTestServer(t)

	status, out := s.admin(t, http.MethodPost, "/api/admin/integrations", "1", `{"name":"x","role":"superuser"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, "validation_failed", out["error"])

	status, _ = s.admin(t, http.MethodPost, "/api/admin/integrations", "1", `{"name":"x","redirect_uris":["/cb"]}`)
	assert.Equal(t, http.StatusUnprocessableEntity, status)

	id, _, _ := s.createIntegration(t, `{"name":"mine"}`)
	status, _ = s.admin(t, http.MethodGet, "/api/admin/integrations/"+id, "2", "")
	assert.Equal(t, http.StatusForbidden, status)
	status, _ = s.admin(t, http.MethodGet, "/api/admin/integrations/999", "1", "")
	assert.Equal(t, http.StatusNotFound, status)
	status, _ = s.admin(t, http.MethodGet, "/api/admin/integrations/abc", "1", "")
	assert.Equal(t, http.StatusBadRequest, status)

	status, out = s.admin(t, http.MethodGet, "/api/admin/integrations?per_page=5", "1", "")
	assert.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 1, out["total"])
	assert.EqualValues(t, 5, out["per_page"])

	req := httptest.NewRequest(http.MethodGet, "/api/admin/integrations", nil)
	status, _ = s.do(t, req)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestSecretsOverHTTP(t *testing.T) {
	s := newTestServer(t)
	id, clientID, _ := s.createIntegration(t, `{"name":"deploy bot"}`)
	base := "/api/admin/integrations/" + id + "/secrets"

	status, created := s.admin(t, http.MethodPost, base, "1", "")
	require.Equal(t, http.StatusCreated, status, created)
	assert.Equal(t, "Secret Key 1", created["name"])
	key := created["secret_key"].(string)
	assert.Len(t, key, 80)
	secretPath := base + "/" + jsonID(created["id"])

	status, _ = s.do(t, apiCall(http.MethodGet, "/api/v1/me", clientID, key))
	assert.Equal(t, http.StatusOK, status, "child secrets authenticate")

	status, out := s.admin(t, http.MethodGet, base, "1", "")
	require.Equal(t, http.StatusOK, status)
	listed := out["data"].([]any)[0].(map[string]any)
	assert.Equal(t, key[:4]+strings.Repeat("*", 72)+key[76:], listed["secret_key"])
	assert.NotNil(t, listed["last_used_at"])

	past := s.now.Add(-time.Hour).Format(time.RFC3339)
	status, _ = s.admin(t, http.MethodPost, secretPath+"/expiration", "1", `{"expires_at":"`+past+`"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, status)

	future := s.now.Add(time.Hour).Format(time.RFC3339)
	status, out = s.admin(t, http.MethodPost, secretPath+"/expiration", "1", `{"expires_at":"`+future+`"}`)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, future, out["expires_at"])
	status, out = s.admin(t, http.MethodDelete, secretPath+"/expiration", "1", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Nil(t, out["expires_at"])

	status, _ = s.admin(t, http.MethodPut, secretPath, "1", `{"status":"paused"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, status)

	status, rotated := s.admin(t, http.MethodPost, base+"/rotate", "1", `{"name":"quarterly"}`)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "quarterly", rotated["name"])
	status, _ = s.do(t, apiCall(http.MethodGet, "/api/v1/me", clientID, key))
	assert.Equal(t, http.StatusUnauthorized, status, "rotation deactivates older secrets")
	status, _ = s.do(t, apiCall(http.MethodGet, "/api/v1/me", clientID, rotated["secret_key"].(string)))
	assert.Equal(t, http.StatusOK, status)

	status, out = s.admin(t, http.MethodGet, base+"?status=active", "1", "")
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, out["data"], 1)

	status, out = s.admin(t, http.MethodPost, base+"/cleanup", "1", "")
	assert.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 0, out["removed"])

	status, _ = s.admin(t, http.MethodDelete, secretPath, "1", "")
	assert.Equal(t, http.StatusNoContent, status)
	status, _ = s.admin(t, http.MethodGet, secretPath, "1", "")
	assert.Equal(t, http.StatusNotFound, status)
}
