package controllers

import (
	"errors"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/IntegrationGate/internal/pkg/access"
	"github.com/ManuelReschke/IntegrationGate/internal/pkg/credentials"
	"github.com/ManuelReschke/IntegrationGate/internal/pkg/events"
	"github.com/ManuelReschke/IntegrationGate/internal/pkg/gate"
	"github.com/ManuelReschke/IntegrationGate/internal/pkg/restrictions"
)

func jsonError(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(fiber.Map{"error": code, "message": message})
}

func formatTimePtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func paramID(c *fiber.Ctx, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Params(name), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

// handleServiceError maps service errors to JSON responses.
func handleServiceError(c *fiber.Ctx, err error) error {
	var validationErrs validator.ValidationErrors
	var scheduleErr *restrictions.ScheduleError

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return jsonError(c, fiber.StatusNotFound, "not_found", "Resource not found")
	case errors.Is(err, credentials.ErrNotOwner):
		return jsonError(c, fiber.StatusForbidden, "forbidden", "You do not own this integration")
	case errors.As(err, &validationErrs),
		errors.As(err, &scheduleErr),
		errors.Is(err, access.ErrUnknownRole),
		errors.Is(err, access.ErrUnknownPermission),
		errors.Is(err, access.ErrUnknownScope),
		errors.Is(err, credentials.ErrInvalidRedirectURI),
		errors.Is(err, credentials.ErrInvalidIPPattern),
		errors.Is(err, credentials.ErrInvalidRateLimit),
		errors.Is(err, credentials.ErrInvalidStatus),
		errors.Is(err, credentials.ErrDuplicateSecretKey):
		return jsonError(c, fiber.StatusUnprocessableEntity, "validation_failed", err.Error())
	case errors.Is(err, gate.ErrStoreUnavailable):
		log.Errorf("credential store: %v", err)
		return jsonError(c, fiber.StatusServiceUnavailable, string(gate.ReasonStoreUnavailable), "Credential store unavailable")
	}
	log.Errorf("%s %s failed: %v", c.Method(), c.Path(), err)
	return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Request failed")
}

// dispatch delivers events after a successful change. Listener failures are
// logged; the change itself already happened.
func dispatch(c *fiber.Ctx, d *events.Dispatcher, evs []events.Event) {
	if err := d.Dispatch(c.UserContext(), evs...); err != nil {
		log.Errorf("event listeners failed: %v", err)
	}
}
