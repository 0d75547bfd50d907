package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/IntegrationGate/app/models"
	"github.com/ManuelReschke/IntegrationGate/app/repository"
)

// ActivityLogger writes one log line per event.
type ActivityLogger struct{}

func (ActivityLogger) Handle(_ context.Context, e Event) error {
	if e.IsSecretEvent() {
		log.Infof("[Integration] %s integration=%d secret=%d", e.Name, e.IntegrationID, e.SecretID)
		return nil
	}
	if e.Name == SecretExpiredCleanup {
		log.Infof("[Integration] %s integration=%d removed=%v", e.Name, e.IntegrationID, e.Attributes["removed"])
		return nil
	}
	log.Infof("[Integration] %s integration=%d", e.Name, e.IntegrationID)
	return nil
}

var sensitiveKeys = map[string]bool{
	"client_secret": true,
	"secret":        true,
	"secret_key":    true,
	"token":         true,
	"password":      true,
}

// AuditRecorder persists every event as an audit log row.
type AuditRecorder struct {
	repo repository.AuditLogRepository
}

func NewAuditRecorder(repo repository.AuditLogRepository) *AuditRecorder {
	return &AuditRecorder{repo: repo}
}

func (r *AuditRecorder) Handle(ctx context.Context, e Event) error {
	changes, err := json.Marshal(redact(e.Attributes))
	if err != nil {
		changes = []byte("{}")
	}

	entry := &models.AuditLog{
		EventID:       e.ID,
		Event:         string(e.Name),
		EntityType:    models.AuditEntityIntegration,
		EntityID:      e.IntegrationID,
		IntegrationID: e.IntegrationID,
		Changes:       changes,
		ActorType:     models.AuditActorSystem,
		ActorID:       "system",
		OccurredAt:    e.OccurredAt,
	}
	if e.IsSecretEvent() {
		entry.EntityType = models.AuditEntitySecret
		entry.EntityID = e.SecretID
	}
	if a := ActorFrom(ctx); a != nil {
		entry.ActorType = a.Type
		entry.ActorID = a.ID
		entry.IPAddress = a.IPAddress
		entry.UserAgent = a.UserAgent
	}

	if err := r.repo.Create(ctx, entry); err != nil {
		return fmt.Errorf("audit %s: %w", e.Name, err)
	}
	return nil
}

func redact(attrs map[string]any) map[string]any {
	out := make(map[string]any, len(attrs))
	for k, v := range attrs {
		if sensitiveKeys[strings.ToLower(k)] {
			out[k] = "[REDACTED]"
			continue
		}
		if nested, ok := v.(map[string]any); ok {
			out[k] = redact(nested)
			continue
		}
		out[k] = v
	}
	return out
}
