package controllers

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/IntegrationGate/app/models"
	"github.com/ManuelReschke/IntegrationGate/internal/pkg/config"
	"github.com/ManuelReschke/IntegrationGate/internal/pkg/credentials"
	"github.com/ManuelReschke/IntegrationGate/internal/pkg/events"
	"github.com/ManuelReschke/IntegrationGate/internal/pkg/middleware"
)

// SecretController serves /integrations/:id/secrets for the owning user.
type SecretController struct {
	services   *credentials.IntegrationService
	secrets    *credentials.SecretManager
	cfg        *config.Config
	dispatcher *events.Dispatcher
}

func NewSecretController(services *credentials.IntegrationService, secrets *credentials.SecretManager, cfg *config.Config, dispatcher *events.Dispatcher) *SecretController {
	return &SecretController{services: services, secrets: secrets, cfg: cfg, dispatcher: dispatcher}
}

type secretRequest struct {
	Name      *string        `json:"name"`
	SecretKey string         `json:"secret_key"`
	Status    *string        `json:"status"`
	ExpiresAt *time.Time     `json:"expires_at"`
	Metadata  map[string]any `json:"metadata"`
}

// secretJSON masks the key unless reveal is set. Keys are revealed only in
// the response that created them.
func (sc *SecretController) secretJSON(s *models.IntegrationSecret, reveal bool) fiber.Map {
	key := s.Masked()
	if reveal {
		key = s.SecretKey
	}
	return fiber.Map{
		"id":             s.ID,
		"integration_id": s.IntegrationID,
		"name":           s.Name,
		"secret_key":     key,
		"status":         s.Status,
		"is_expired":     s.IsExpired(sc.cfg.Now()),
		"last_used_at":   formatTimePtr(s.LastUsedAt),
		"expires_at":     formatTimePtr(s.ExpiresAt),
		"metadata":       s.Metadata,
		"created_at":     s.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func (sc *SecretController) loadIntegration(c *fiber.Ctx) (*models.Integration, error) {
	id, ok := paramID(c, "id")
	if !ok {
		return nil, jsonError(c, fiber.StatusBadRequest, "bad_request", "Invalid integration id")
	}
	i, err := sc.services.Get(c.UserContext(), middleware.GetUserID(c), id)
	if err != nil {
		return nil, handleServiceError(c, err)
	}
	return i, nil
}

func (sc *SecretController) loadSecret(c *fiber.Ctx) (*models.IntegrationSecret, error) {
	i, err := sc.loadIntegration(c)
	if i == nil {
		return nil, err
	}
	id, ok := paramID(c, "secretId")
	if !ok {
		return nil, jsonError(c, fiber.StatusBadRequest, "bad_request", "Invalid secret id")
	}
	s, err := sc.secrets.Get(c.UserContext(), i, id)
	if err != nil {
		return nil, handleServiceError(c, err)
	}
	return s, nil
}

// HandleList returns masked secrets. Query: status, include_expired (default true).
func (sc *SecretController) HandleList(c *fiber.Ctx) error {
	i, err := sc.loadIntegration(c)
	if i == nil {
		return err
	}
	list, err := sc.secrets.List(c.UserContext(), i,
		strings.TrimSpace(c.Query("status")),
		c.QueryBool("include_expired", true),
	)
	if err != nil {
		return handleServiceError(c, err)
	}
	out := make([]fiber.Map, 0, len(list))
	for n := range list {
		out = append(out, sc.secretJSON(&list[n], false))
	}
	return c.JSON(fiber.Map{"data": out})
}

func (sc *SecretController) HandleCreate(c *fiber.Ctx) error {
	i, err := sc.loadIntegration(c)
	if i == nil {
		return err
	}
	var req secretRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return jsonError(c, fiber.StatusBadRequest, "bad_request", "Invalid request body")
		}
	}
	if req.ExpiresAt != nil && !req.ExpiresAt.After(sc.cfg.Now()) {
		return jsonError(c, fiber.StatusUnprocessableEntity, "validation_failed", "expires_at must be in the future")
	}
	in := credentials.SecretInput{SecretKey: req.SecretKey, ExpiresAt: req.ExpiresAt, Metadata: req.Metadata}
	if req.Name != nil {
		in.Name = strings.TrimSpace(*req.Name)
	}
	if req.Status != nil {
		in.Status = *req.Status
	}

	s, evs, err := sc.secrets.Create(c.UserContext(), i, in)
	if err != nil {
		return handleServiceError(c, err)
	}
	dispatch(c, sc.dispatcher, evs)
	return c.Status(fiber.StatusCreated).JSON(sc.secretJSON(s, true))
}

func (sc *SecretController) HandleShow(c *fiber.Ctx) error {
	s, err := sc.loadSecret(c)
	if s == nil {
		return err
	}
	return c.JSON(sc.secretJSON(s, false))
}

func (sc *SecretController) HandleUpdate(c *fiber.Ctx) error {
	s, err := sc.loadSecret(c)
	if s == nil {
		return err
	}
	var req secretRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Invalid request body")
	}
	evs, err := sc.secrets.Update(c.UserContext(), s, credentials.SecretUpdate{Name: req.Name, Status: req.Status, Metadata: req.Metadata})
	if err != nil {
		return handleServiceError(c, err)
	}
	dispatch(c, sc.dispatcher, evs)
	return c.JSON(sc.secretJSON(s, false))
}

func (sc *SecretController) HandleDelete(c *fiber.Ctx) error {
	s, err := sc.loadSecret(c)
	if s == nil {
		return err
	}
	evs, err := sc.secrets.Delete(c.UserContext(), s)
	if err != nil {
		return handleServiceError(c, err)
	}
	dispatch(c, sc.dispatcher, evs)
	return c.SendStatus(fiber.StatusNoContent)
}

func (sc *SecretController) HandleActivate(c *fiber.Ctx) error {
	return sc.change(c, sc.secrets.Activate)
}

func (sc *SecretController) HandleDeactivate(c *fiber.Ctx) error {
	return sc.change(c, sc.secrets.Deactivate)
}

func (sc *SecretController) HandleRemoveExpiration(c *fiber.Ctx) error {
	return sc.change(c, sc.secrets.RemoveExpiration)
}

// HandleSetExpiration expects {"expires_at": RFC 3339 timestamp in the future}.
func (sc *SecretController) HandleSetExpiration(c *fiber.Ctx) error {
	var req struct {
		ExpiresAt *time.Time `json:"expires_at"`
	}
	if err := c.BodyParser(&req); err != nil || req.ExpiresAt == nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "expires_at is required")
	}
	if !req.ExpiresAt.After(sc.cfg.Now()) {
		return jsonError(c, fiber.StatusUnprocessableEntity, "validation_failed", "expires_at must be in the future")
	}
	at := req.ExpiresAt.UTC()
	return sc.change(c, func(ctx context.Context, s *models.IntegrationSecret) ([]events.Event, error) {
		return sc.secrets.SetExpiration(ctx, s, at)
	})
}

func (sc *SecretController) change(c *fiber.Ctx, apply func(context.Context, *models.IntegrationSecret) ([]events.Event, error)) error {
	s, err := sc.loadSecret(c)
	if s == nil {
		return err
	}
	evs, err := apply(c.UserContext(), s)
	if err != nil {
		return handleServiceError(c, err)
	}
	dispatch(c, sc.dispatcher, evs)
	return c.JSON(sc.secretJSON(s, false))
}

// HandleRotate deactivates every secret and returns the new one unmasked.
// Body (optional): {"name": "..."}.
func (sc *SecretController) HandleRotate(c *fiber.Ctx) error {
	i, err := sc.loadIntegration(c)
	if i == nil {
		return err
	}
	var req secretRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return jsonError(c, fiber.StatusBadRequest, "bad_request", "Invalid request body")
		}
	}
	name := ""
	if req.Name != nil {
		name = strings.TrimSpace(*req.Name)
	}
	s, evs, err := sc.secrets.Rotate(c.UserContext(), i, name)
	if err != nil {
		return handleServiceError(c, err)
	}
	dispatch(c, sc.dispatcher, evs)
	return c.Status(fiber.StatusCreated).JSON(sc.secretJSON(s, true))
}

// HandleCleanup removes the expired secrets of an integration.
func (sc *SecretController) HandleCleanup(c *fiber.Ctx) error {
	i, err := sc.loadIntegration(c)
	if i == nil {
		return err
	}
	removed, evs, err := sc.secrets.CleanupExpired(c.UserContext(), i)
	if err != nil {
		return handleServiceError(c, err)
	}
	dispatch(c, sc.dispatcher, evs)
	return c.JSON(fiber.Map{"removed": removed})
}
