package middleware

import (
	"context"
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

	"github.com/ManuelReschke/IntegrationGate/app/models"
	"github.com/ManuelReschke/IntegrationGate/app/repository"
	"github.com/ManuelReschke/IntegrationGate/internal/pkg/access"
	"github.com/ManuelReschke/IntegrationGate/internal/pkg/config"
	"github.com/ManuelReschke/IntegrationGate/internal/pkg/credentials"
	"github.com/ManuelReschke/IntegrationGate/internal/pkg/events"
	"github.com/ManuelReschke/IntegrationGate/internal/pkg/gate"
	"github.com/ManuelReschke/IntegrationGate/internal/pkg/integrationcontext"
	"github.com/ManuelReschke/IntegrationGate/internal/pkg/ratelimit"
	"github.com/ManuelReschke/IntegrationGate/internal/pkg/restrictions"
)

type recordedVerdict struct {
	integrationID uint
	label         string
}

type fakeRecorder struct{ got []recordedVerdict }

func (r *fakeRecorder) AddVerdict(_ context.Context, id uint, label string) error {
	r.got = append(r.got, recordedVerdict{id, label})
	return nil
}

type harness struct {
	cfg      *config.Config
	gate     *gate.Gate
	services *credentials.IntegrationService
	recorder *fakeRecorder
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&models.Integration{}, &models.IntegrationSecret{}))

	// Monday 10:30 UTC
	now := time.Date(2024, 7, 1, 10, 30, 0, 0, time.UTC)
	cfg := config.New(config.WithClock(func() time.Time { return now }))
	repos := repository.NewRepositories(db)
	return &harness{
		cfg:      cfg,
		gate:     gate.New(cfg, gate.NewRepositoryStore(repos.Integration, repos.Secret)),
		services: credentials.NewIntegrationService(repos.Integration, repos.Secret, cfg),
		recorder: &fakeRecorder{},
	}
}

func (h *harness) integration(t *testing.T, in credentials.IntegrationInput) *models.Integration {
	t.Helper()
	in.UserID = 1
	in.Name = "crm"
	i, _, err := h.services.Create(context.Background(), in)
	require.NoError(t, err)
	return i
}

func (h *harness) app(reqs Requirements) *fiber.App {
	app := fiber.New()
	app.Get("/resource", IntegrationAuth(h.gate, reqs, h.recorder), func(c *fiber.Ctx) error {
		return c.JSON(integrationcontext.GetIntegrationContext(c))
	})
	app.Post("/resource", IntegrationAuth(h.gate, reqs, h.recorder), func(c *fiber.Ctx) error {
		return c.SendString(integrationcontext.GetClientID(c))
	})
	return app
}

func call(t *testing.T, app *fiber.App, req *http.Request) (int, map[string]any) {
	t.Helper()
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	body := map[string]any{}
	_ = json.Unmarshal(raw, &body)
	return resp.StatusCode, body
}

func withCredentials(i *models.Integration) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/resource", nil)
	req.Header.Set("X-Client-ID", i.ClientID)
	req.Header.Set("X-Client-Secret", i.ClientSecret)
	return req
}

func TestIntegrationAuthAllows(t *testing.T) {
	h := newHarness(t)
	i := h.integration(t, credentials.IntegrationInput{Permissions: access.PermissionMap{"posts": {"read"}}})
	app := h.app(Requirements{Role: access.RoleUser, Permissions: []string{"posts:read"}})

	status, body := call(t, app, withCredentials(i))
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, i.ClientID, body["client_id"])
	assert.Equal(t, true, body["authenticated"])
	assert.Equal(t, []recordedVerdict{{i.ID, "allow"}}, h.recorder.got)
}

func TestIntegrationAuthDenials(t *testing.T) {
	h := newHarness(t)
	active := h.integration(t, credentials.IntegrationInput{})
	inactive := h.integration(t, credentials.IntegrationInput{Status: models.STATUS_INACTIVE})
	whitelisted := h.integration(t, credentials.IntegrationInput{
		IPWhitelist: &restrictions.IPWhitelist{RequireWhitelist: true, AllowedIPs: []string{"10.0.0.0/8"}},
	})
	geo := h.integration(t, credentials.IntegrationInput{
		GeoRestrictions: &restrictions.GeoRestrictions{BlockedCountries: []string{"RU"}},
	})

	tests := []struct {
		name   string
		reqs   Requirements
		req    func() *http.Request
		status int
		reason string
	}{
		{"missing credentials", Requirements{}, func() *http.Request {
			return httptest.NewRequest(http.MethodGet, "/resource", nil)
		}, http.StatusUnauthorized, "invalid_credentials"},
		{"wrong secret", Requirements{}, func() *http.Request {
			req := withCredentials(active)
			req.Header.Set("X-Client-Secret", "nope")
			return req
		}, http.StatusUnauthorized, "invalid_credentials"},
		{"inactive", Requirements{}, func() *http.Request { return withCredentials(inactive) }, http.StatusUnauthorized, "inactive"},
		{"role", Requirements{Role: access.RoleAdmin}, func() *http.Request { return withCredentials(active) }, http.StatusForbidden, "insufficient_role"},
		{"permission", Requirements{Permissions: []string{"posts:delete"}}, func() *http.Request { return withCredentials(active) }, http.StatusForbidden, "insufficient_permission"},
		{"ip", Requirements{}, func() *http.Request { return withCredentials(whitelisted) }, http.StatusForbidden, "ip_not_allowed"},
		{"country header is upper-cased", Requirements{}, func() *http.Request {
			req := withCredentials(geo)
			req.Header.Set("CF-IPCountry", "ru")
			return req
		}, http.StatusForbidden, "geo_not_allowed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := call(t, h.app(tt.reqs), tt.req())
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.reason, body["error"])
			assert.NotEmpty(t, body["message"])
		})
	}

	status, _ := call(t, h.app(Requirements{}), withCredentials(geo))
	assert.Equal(t, http.StatusOK, status, "no country header skips the geo check")
}

func TestRequirementsValidate(t *testing.T) {
	assert.NoError(t, Requirements{}.Validate())
	assert.NoError(t, Requirements{Permissions: []string{"posts:read", "files:upload"}}.Validate())
	for _, bad := range []string{"posts.read", "posts:", ":read", ""} {
		assert.Error(t, Requirements{Permissions: []string{bad}}.Validate(), bad)
	}

	h := newHarness(t)
	assert.Panics(t, func() {
		IntegrationAuth(h.gate, Requirements{Permissions: []string{"posts.create"}})
	})
}

func TestIntegrationAuthEnforcesDeclaredPermissions(t *testing.T) {
	h := newHarness(t)
	i := h.integration(t, credentials.IntegrationInput{Permissions: access.PermissionMap{"posts": {"read"}}})

	status, body := call(t, h.app(Requirements{Role: access.RoleUser, Permissions: []string{"posts:create"}}), withCredentials(i))
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "insufficient_permission", body["error"])

	status, _ = call(t, h.app(Requirements{Role: access.RoleUser, Permissions: []string{"posts:read"}}), withCredentials(i))
	assert.Equal(t, http.StatusOK, status)
}

func TestIntegrationAuthFormCredentials(t *testing.T) {
	h := newHarness(t)
	i := h.integration(t, credentials.IntegrationInput{})
	app := h.app(Requirements{})

	form := "client_id=" + i.ClientID + "&client_secret=" + i.ClientSecret
	req := httptest.NewRequest(http.MethodPost, "/resource", strings.NewReader(form))
	req.Header.Set("Content-Type", fiber.MIMEApplicationForm)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	payload := `{"client_id":"` + i.ClientID + `","client_secret":"` + i.ClientSecret + `"}`
	req = httptest.NewRequest(http.MethodPost, "/resource", strings.NewReader(payload))
	req.Header.Set("Content-Type", fiber.MIMEApplicationJSON)
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestIntegrationRateLimit(t *testing.T) {
	h := newHarness(t)
	i := h.integration(t, credentials.IntegrationInput{
		RateLimits: &ratelimit.Limits{ScopeLimits: map[string]string{"reports": "2/minute"}},
	})

	app := fiber.New()
	app.Get("/reports", IntegrationAuth(h.gate, Requirements{}), IntegrationRateLimit(h.cfg, nil, "reports"), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})

	for n := 0; n < 2; n++ {
		req := withCredentials(i)
		req.URL.Path = "/reports"
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
		assert.Equal(t, "2", resp.Header.Get("X-RateLimit-Limit"))
	}

	req := withCredentials(i)
	req.URL.Path = "/reports"
	status, body := call(t, app, req)
	assert.Equal(t, http.StatusTooManyRequests, status)
	assert.Equal(t, "rate_limit_exceeded", body["error"])
	assert.Contains(t, body, "retry_after")
}

func TestAdminToken(t *testing.T) {
	app := fiber.New()
	app.Get("/admin", AdminToken("s3cret"), func(c *fiber.Ctx) error {
		actor := events.ActorFrom(c.UserContext())
		return c.JSON(fiber.Map{"user_id": GetUserID(c), "actor": actor.ID, "type": actor.Type})
	})

	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	status, _ := call(t, app, req)
	assert.Equal(t, http.StatusUnauthorized, status)

	req = httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	status, _ = call(t, app, req)
	assert.Equal(t, http.StatusBadRequest, status, "acting user is required")

	req.Header.Set("X-User-ID", "12")
	status, body := call(t, app, req)
	assert.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 12, body["user_id"])
	assert.Equal(t, "12", body["actor"])
	assert.Equal(t, models.AuditActorUser, body["type"])

	disabled := fiber.New()
	disabled.Get("/admin", AdminToken(""), func(c *fiber.Ctx) error { return nil })
	req = httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer ")
	status, _ = call(t, disabled, req)
	assert.Equal(t, http.StatusUnauthorized, status)
}
