package controllers

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/IntegrationGate/app/models"
	"github.com/ManuelReschke/IntegrationGate/app/repository"
	"github.com/ManuelReschke/IntegrationGate/internal/pkg/access"
	"github.com/ManuelReschke/IntegrationGate/internal/pkg/credentials"
	"github.com/ManuelReschke/IntegrationGate/internal/pkg/events"
	"github.com/ManuelReschke/IntegrationGate/internal/pkg/middleware"
	"github.com/ManuelReschke/IntegrationGate/internal/pkg/ratelimit"
	"github.com/ManuelReschke/IntegrationGate/internal/pkg/restrictions"
)

// VerdictReader reads the gate decision counts of an integration.
type VerdictReader interface {
	Verdicts(ctx context.Context, integrationID uint) (map[string]int64, error)
}

// IntegrationController serves the admin API for integrations. Every handler
// acts for the user id set by middleware.AdminToken.
type IntegrationController struct {
	services   *credentials.IntegrationService
	dispatcher *events.Dispatcher
	audit      repository.AuditLogRepository
	verdicts   VerdictReader
}

func NewIntegrationController(services *credentials.IntegrationService, dispatcher *events.Dispatcher, audit repository.AuditLogRepository, verdicts VerdictReader) *IntegrationController {
	return &IntegrationController{services: services, dispatcher: dispatcher, audit: audit, verdicts: verdicts}
}

type integrationRequest struct {
	Name             *string                        `json:"name"`
	Description      *string                        `json:"description"`
	RedirectURIs     []string                       `json:"redirect_uris"`
	Status           *string                        `json:"status"`
	Role             *string                        `json:"role"`
	Permissions      access.PermissionMap           `json:"permissions"`
	AllowedScopes    []string                       `json:"allowed_scopes"`
	DefaultScopes    []string                       `json:"default_scopes"`
	IPWhitelist      *restrictions.IPWhitelist      `json:"ip_whitelist"`
	GeoRestrictions  *restrictions.GeoRestrictions  `json:"geo_restrictions"`
	TimeRestrictions *restrictions.TimeRestrictions `json:"time_restrictions"`
	RateLimits       *ratelimit.Limits              `json:"rate_limits"`
	Metadata         map[string]any                 `json:"metadata"`
}

// loadOwned resolves :id for the acting user and writes the error response
// itself when that fails.
func (ic *IntegrationController) loadOwned(c *fiber.Ctx) (*models.Integration, error) {
	id, ok := paramID(c, "id")
	if !ok {
		return nil, jsonError(c, fiber.StatusBadRequest, "bad_request", "Invalid integration id")
	}
	i, err := ic.services.Get(c.UserContext(), middleware.GetUserID(c), id)
	if err != nil {
		return nil, handleServiceError(c, err)
	}
	return i, nil
}

// HandleList returns a page of the user's integrations.
// Query: status, search, page, per_page.
func (ic *IntegrationController) HandleList(c *fiber.Ctx) error {
	page, err := ic.services.ListForUser(c.UserContext(), middleware.GetUserID(c),
		strings.TrimSpace(c.Query("status")),
		strings.TrimSpace(c.Query("search")),
		c.QueryInt("page", 1),
		c.QueryInt("per_page", 0),
	)
	if err != nil {
		return handleServiceError(c, err)
	}
	return c.JSON(page)
}

// HandleCreate returns the new integration together with its client secret.
// The secret is not shown again.
func (ic *IntegrationController) HandleCreate(c *fiber.Ctx) error {
	var req integrationRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Invalid request body")
	}
	in := credentials.IntegrationInput{
		UserID:           middleware.GetUserID(c),
		RedirectURIs:     req.RedirectURIs,
		Role:             req.Role,
		Permissions:      req.Permissions,
		AllowedScopes:    req.AllowedScopes,
		DefaultScopes:    req.DefaultScopes,
		IPWhitelist:      req.IPWhitelist,
		GeoRestrictions:  req.GeoRestrictions,
		TimeRestrictions: req.TimeRestrictions,
		RateLimits:       req.RateLimits,
		Metadata:         req.Metadata,
	}
	if req.Name != nil {
		in.Name = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		in.Description = *req.Description
	}
	if req.Status != nil {
		in.Status = *req.Status
	}

	i, evs, err := ic.services.Create(c.UserContext(), in)
	if err != nil {
		return handleServiceError(c, err)
	}
	dispatch(c, ic.dispatcher, evs)
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"integration":   i,
		"client_id":     i.ClientID,
		"client_secret": i.ClientSecret,
	})
}

func (ic *IntegrationController) HandleShow(c *fiber.Ctx) error {
	i, err := ic.loadOwned(c)
	if i == nil {
		return err
	}
	return c.JSON(i)
}

func (ic *IntegrationController) HandleUpdate(c *fiber.Ctx) error {
	i, err := ic.loadOwned(c)
	if i == nil {
		return err
	}
	var req integrationRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Invalid request body")
	}
	evs, err := ic.services.Update(c.UserContext(), i, credentials.IntegrationUpdate{
		Name:             req.Name,
		Description:      req.Description,
		RedirectURIs:     req.RedirectURIs,
		Status:           req.Status,
		Role:             req.Role,
		Permissions:      req.Permissions,
		AllowedScopes:    req.AllowedScopes,
		DefaultScopes:    req.DefaultScopes,
		IPWhitelist:      req.IPWhitelist,
		GeoRestrictions:  req.GeoRestrictions,
		TimeRestrictions: req.TimeRestrictions,
		RateLimits:       req.RateLimits,
		Metadata:         req.Metadata,
	})
	if err != nil {
		return handleServiceError(c, err)
	}
	dispatch(c, ic.dispatcher, evs)
	return c.JSON(i)
}

func (ic *IntegrationController) HandleDelete(c *fiber.Ctx) error {
	i, err := ic.loadOwned(c)
	if i == nil {
		return err
	}
	evs, err := ic.services.Delete(c.UserContext(), i)
	if err != nil {
		return handleServiceError(c, err)
	}
	dispatch(c, ic.dispatcher, evs)
	return c.SendStatus(fiber.StatusNoContent)
}

func (ic *IntegrationController) HandleActivate(c *fiber.Ctx) error {
	return ic.changeStatus(c, ic.services.Activate)
}

func (ic *IntegrationController) HandleDeactivate(c *fiber.Ctx) error {
	return ic.changeStatus(c, ic.services.Deactivate)
}

func (ic *IntegrationController) changeStatus(c *fiber.Ctx, change func(context.Context, *models.Integration) ([]events.Event, error)) error {
	i, err := ic.loadOwned(c)
	if i == nil {
		return err
	}
	evs, err := change(c.UserContext(), i)
	if err != nil {
		return handleServiceError(c, err)
	}
	dispatch(c, ic.dispatcher, evs)
	return c.JSON(i)
}

// HandleRegenerateSecret replaces the legacy client secret and returns it once.
func (ic *IntegrationController) HandleRegenerateSecret(c *fiber.Ctx) error {
	i, err := ic.loadOwned(c)
	if i == nil {
		return err
	}
	secret, evs, err := ic.services.RegenerateSecret(c.UserContext(), i)
	if err != nil {
		return handleServiceError(c, err)
	}
	dispatch(c, ic.dispatcher, evs)
	return c.JSON(fiber.Map{"client_id": i.ClientID, "client_secret": secret})
}

// HandleVerdicts returns the gate decision counts per reason.
func (ic *IntegrationController) HandleVerdicts(c *fiber.Ctx) error {
	i, err := ic.loadOwned(c)
	if i == nil {
		return err
	}
	counts := map[string]int64{}
	if ic.verdicts != nil {
		counts, err = ic.verdicts.Verdicts(c.UserContext(), i.ID)
		if err != nil {
			return jsonError(c, fiber.StatusServiceUnavailable, "cache_unavailable", "Verdict counters unavailable")
		}
	}
	return c.JSON(fiber.Map{"integration_id": i.ID, "verdicts": counts})
}

// HandleAudit lists the newest audit entries of an integration. Query: limit.
func (ic *IntegrationController) HandleAudit(c *fiber.Ctx) error {
	i, err := ic.loadOwned(c)
	if i == nil {
		return err
	}
	entries, err := ic.audit.ListByIntegration(c.UserContext(), i.ID, c.QueryInt("limit", 0))
	if err != nil {
		return handleServiceError(c, err)
	}
	if entries == nil {
		entries = []models.AuditLog{}
	}
	return c.JSON(fiber.Map{"data": entries})
}
