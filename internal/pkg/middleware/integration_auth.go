package middleware

import (
	"context"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/IntegrationGate/internal/pkg/access"
	"github.com/ManuelReschke/IntegrationGate/internal/pkg/gate"
	"github.com/ManuelReschke/IntegrationGate/internal/pkg/integrationcontext"
)

// Headers consulted for the caller country, first non-empty wins.
var countryHeaders = []string{"X-Country-Code", "CF-IPCountry", "X-Forwarded-Country"}

var denyMessages = map[gate.Reason]string{
	gate.ReasonInvalidCredentials:     "Invalid client credentials",
	gate.ReasonInactive:               "Integration is inactive",
	gate.ReasonInsufficientRole:       "Insufficient role",
	gate.ReasonInsufficientPermission: "Insufficient permissions",
	gate.ReasonIPNotAllowed:           "Access denied from this IP address",
	gate.ReasonGeoNotAllowed:          "Access denied from this location",
	gate.ReasonTimeNotAllowed:         "Access denied at this time",
}

// Requirements are declared per route.
type Requirements struct {
	Role        access.Role
	Permissions []string
}

// Validate rejects permission declarations the gate would not enforce.
func (r Requirements) Validate() error {
	for _, raw := range r.Permissions {
		req, ok := access.ParseRequirement(raw)
		if !ok || req.Resource == "" || req.Action == "" {
			return fmt.Errorf("invalid permission requirement %q: want resource:action", raw)
		}
	}
	return nil
}

// VerdictRecorder counts gate decisions. Failures are logged and ignored.
type VerdictRecorder interface {
	AddVerdict(ctx context.Context, integrationID uint, label string) error
}

// IntegrationAuth runs the gate for every request and stores the integration
// context in Locals when the call is allowed. It panics when a declared
// permission is not a "resource:action" pair.
func IntegrationAuth(g *gate.Gate, reqs Requirements, recorders ...VerdictRecorder) fiber.Handler {
	if err := reqs.Validate(); err != nil {
		panic(err)
	}
	return func(c *fiber.Ctx) error {
		clientID, clientSecret := extractClientCredentials(c)
		verdict, err := g.Evaluate(c.UserContext(), gate.Request{
			ClientID:            clientID,
			ClientSecret:        clientSecret,
			RequiredRole:        reqs.Role,
			RequiredPermissions: reqs.Permissions,
			CallerIP:            c.IP(),
			CallerCountry:       callerCountry(c),
		})
		if err != nil {
			log.Errorf("integration gate: %v", err)
			record(c, recorders, 0, string(gate.ReasonStoreUnavailable))
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"error":   string(gate.ReasonStoreUnavailable),
				"message": "Credential verification is temporarily unavailable",
			})
		}

		var integrationID uint
		if verdict.Integration != nil {
			integrationID = verdict.Integration.ID
		}
		record(c, recorders, integrationID, verdict.Label())

		if !verdict.Allowed {
			log.Warnf("integration gate denied %s %s: client_id=%q ip=%s reason=%s",
				c.Method(), c.Path(), clientID, c.IP(), verdict.Reason)
			return c.Status(verdict.HTTPStatus()).JSON(fiber.Map{
				"error":   string(verdict.Reason),
				"message": denyMessages[verdict.Reason],
			})
		}

		integrationcontext.Set(c, verdict.Integration, verdict.Secret)
		return c.Next()
	}
}

func record(c *fiber.Ctx, recorders []VerdictRecorder, integrationID uint, label string) {
	for _, r := range recorders {
		if r == nil {
			continue
		}
		if err := r.AddVerdict(c.UserContext(), integrationID, label); err != nil {
			log.Warnf("failed to record gate verdict %s for integration %d: %v", label, integrationID, err)
		}
	}
}

func extractClientCredentials(c *fiber.Ctx) (string, string) {
	clientID := strings.TrimSpace(c.Get("X-Client-ID"))
	clientSecret := strings.TrimSpace(c.Get("X-Client-Secret"))
	if clientID == "" {
		clientID = strings.TrimSpace(c.FormValue("client_id"))
	}
	if clientSecret == "" {
		clientSecret = strings.TrimSpace(c.FormValue("client_secret"))
	}
	if clientID == "" || clientSecret == "" {
		var body struct {
			ClientID     string `json:"client_id"`
			ClientSecret string `json:"client_secret"`
		}
		if strings.HasPrefix(string(c.Request().Header.ContentType()), fiber.MIMEApplicationJSON) && c.BodyParser(&body) == nil {
			if clientID == "" {
				clientID = strings.TrimSpace(body.ClientID)
			}
			if clientSecret == "" {
				clientSecret = strings.TrimSpace(body.ClientSecret)
			}
		}
	}
	return clientID, clientSecret
}

func callerCountry(c *fiber.Ctx) string {
	for _, h := range countryHeaders {
		if v := strings.TrimSpace(c.Get(h)); v != "" {
			return strings.ToUpper(v)
		}
	}
	return ""
}
