package credentials

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/ManuelReschke/IntegrationGate/app/models"
	"github.com/ManuelReschke/IntegrationGate/app/repository"
	"github.com/ManuelReschke/IntegrationGate/internal/pkg/config"
	"github.com/ManuelReschke/IntegrationGate/internal/pkg/events"
)

var (
	ErrIntegrationRequired = errors.New("secret must belong to a persisted integration")
	ErrInvalidStatus       = errors.New("status must be active or inactive")
	ErrDuplicateSecretKey  = errors.New("secret key is already used by this integration")
)

// SecretInput carries optional values for a new secret. Empty fields are
// generated.
type SecretInput struct {
	Name      string
	SecretKey string
	Status    string
	ExpiresAt *time.Time
	Metadata  map[string]any
}

// SecretUpdate changes the fields that are set.
type SecretUpdate struct {
	Name     *string
	Status   *string
	Metadata map[string]any
}

// SecretManager runs the lifecycle of integration secrets.
type SecretManager struct {
	secrets repository.SecretRepository
	cfg     *config.Config
}

func NewSecretManager(secrets repository.SecretRepository, cfg *config.Config) *SecretManager {
	return &SecretManager{secrets: secrets, cfg: cfg}
}

// Create stores a new secret for integration. The name defaults to
// "Secret Key N" with N one more than the number of existing secrets.
func (m *SecretManager) Create(ctx context.Context, integration *models.Integration, in SecretInput) (*models.IntegrationSecret, []events.Event, error) {
	if integration == nil || integration.ID == 0 {
		return nil, nil, ErrIntegrationRequired
	}

	secret := &models.IntegrationSecret{
		IntegrationID: integration.ID,
		Name:          in.Name,
		SecretKey:     in.SecretKey,
		Status:        in.Status,
		ExpiresAt:     in.ExpiresAt,
	}
	if in.Metadata != nil {
		secret.Metadata = datatypes.JSONMap(in.Metadata)
	}

	if secret.SecretKey == "" {
		key, err := RandomToken(m.cfg.SecretKeyLength())
		if err != nil {
			return nil, nil, err
		}
		secret.SecretKey = key
	} else {
		_, err := m.secrets.GetByKey(ctx, integration.ID, secret.SecretKey)
		switch {
		case err == nil:
			return nil, nil, ErrDuplicateSecretKey
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return nil, nil, fmt.Errorf("lookup secret key: %w", err)
		}
	}
	if secret.Name == "" {
		count, err := m.secrets.CountByIntegration(ctx, integration.ID)
		if err != nil {
			return nil, nil, fmt.Errorf("count secrets: %w", err)
		}
		secret.Name = fmt.Sprintf("Secret Key %d", count+1)
	}
	if secret.Status == "" {
		secret.Status = models.STATUS_ACTIVE
	}
	if err := secret.Validate(); err != nil {
		return nil, nil, err
	}

	if err := m.secrets.Create(ctx, secret); err != nil {
		return nil, nil, fmt.Errorf("create secret: %w", err)
	}
	return secret, []events.Event{m.event(events.SecretCreated, secret, map[string]any{"name": secret.Name})}, nil
}

// Validate reports whether secret may authenticate right now.
func (m *SecretManager) Validate(secret *models.IntegrationSecret) bool {
	return secret != nil && secret.IsValid(m.cfg.Now())
}

// MarkUsed records the current time as the last use. Validity is unaffected.
func (m *SecretManager) MarkUsed(ctx context.Context, secret *models.IntegrationSecret) error {
	now := m.cfg.Now()
	if err := m.secrets.MarkUsed(ctx, secret.ID, now); err != nil {
		return fmt.Errorf("mark secret used: %w", err)
	}
	secret.LastUsedAt = &now
	return nil
}

func (m *SecretManager) SetExpiration(ctx context.Context, secret *models.IntegrationSecret, at time.Time) ([]events.Event, error) {
	secret.ExpiresAt = &at
	return m.save(ctx, secret, map[string]any{"expires_at": at})
}

func (m *SecretManager) RemoveExpiration(ctx context.Context, secret *models.IntegrationSecret) ([]events.Event, error) {
	secret.ExpiresAt = nil
	return m.save(ctx, secret, map[string]any{"expires_at": nil})
}

func (m *SecretManager) Activate(ctx context.Context, secret *models.IntegrationSecret) ([]events.Event, error) {
	secret.Status = models.STATUS_ACTIVE
	return m.save(ctx, secret, map[string]any{"status": secret.Status})
}

func (m *SecretManager) Deactivate(ctx context.Context, secret *models.IntegrationSecret) ([]events.Event, error) {
	secret.Status = models.STATUS_INACTIVE
	return m.save(ctx, secret, map[string]any{"status": secret.Status})
}

func (m *SecretManager) Update(ctx context.Context, secret *models.IntegrationSecret, in SecretUpdate) ([]events.Event, error) {
	changes := map[string]any{}
	if in.Name != nil {
		secret.Name = *in.Name
		changes["name"] = *in.Name
	}
	if in.Status != nil {
		if *in.Status != models.STATUS_ACTIVE && *in.Status != models.STATUS_INACTIVE {
			return nil, ErrInvalidStatus
		}
		secret.Status = *in.Status
		changes["status"] = *in.Status
	}
	if in.Metadata != nil {
		secret.Metadata = datatypes.JSONMap(in.Metadata)
		changes["metadata"] = in.Metadata
	}
	if err := secret.Validate(); err != nil {
		return nil, err
	}
	return m.save(ctx, secret, changes)
}

// Delete soft deletes the secret.
func (m *SecretManager) Delete(ctx context.Context, secret *models.IntegrationSecret) ([]events.Event, error) {
	if err := m.secrets.Delete(ctx, secret.ID); err != nil {
		return nil, fmt.Errorf("delete secret: %w", err)
	}
	return []events.Event{m.event(events.SecretDeleted, secret, map[string]any{"name": secret.Name})}, nil
}

// Rotate deactivates every secret of integration and creates one new active
// secret named name, or "Rotated Secret <timestamp>" when name is empty.
func (m *SecretManager) Rotate(ctx context.Context, integration *models.Integration, name string) (*models.IntegrationSecret, []events.Event, error) {
	if integration == nil || integration.ID == 0 {
		return nil, nil, ErrIntegrationRequired
	}
	if name == "" {
		name = "Rotated Secret " + m.cfg.Now().Format("2006-01-02 15:04:05")
	}
	key, err := RandomToken(m.cfg.SecretKeyLength())
	if err != nil {
		return nil, nil, err
	}

	secret := &models.IntegrationSecret{Name: name, SecretKey: key, Status: models.STATUS_ACTIVE}
	if err := secret.Validate(); err != nil {
		return nil, nil, err
	}
	if err := m.secrets.Rotate(ctx, integration.ID, secret); err != nil {
		return nil, nil, fmt.Errorf("rotate secrets: %w", err)
	}
	return secret, []events.Event{m.event(events.SecretRotated, secret, map[string]any{"name": name})}, nil
}

// CleanupExpired removes the secrets of integration whose expiry has passed
// and returns how many were removed.
func (m *SecretManager) CleanupExpired(ctx context.Context, integration *models.Integration) (int64, []events.Event, error) {
	if integration == nil || integration.ID == 0 {
		return 0, nil, ErrIntegrationRequired
	}
	removed, err := m.secrets.DeleteExpired(ctx, integration.ID, m.cfg.Now())
	if err != nil {
		return 0, nil, fmt.Errorf("cleanup expired secrets: %w", err)
	}
	if removed == 0 {
		return 0, nil, nil
	}
	e := events.New(events.SecretExpiredCleanup, integration.ID, m.cfg.Now(), map[string]any{"removed": removed})
	return removed, []events.Event{e}, nil
}

// List returns the secrets of integration, newest first.
func (m *SecretManager) List(ctx context.Context, integration *models.Integration, status string, includeExpired bool) ([]models.IntegrationSecret, error) {
	return m.secrets.ListByIntegration(ctx, integration.ID, repository.SecretFilter{
		Status:         status,
		IncludeExpired: includeExpired,
		Now:            m.cfg.Now(),
	})
}

// Get loads a secret of integration. Secrets of other integrations are not found.
func (m *SecretManager) Get(ctx context.Context, integration *models.Integration, id uint) (*models.IntegrationSecret, error) {
	return m.secrets.GetForIntegration(ctx, integration.ID, id)
}

// Mask is the display form of a secret key.
func Mask(secret *models.IntegrationSecret) string {
	return models.MaskSecret(secret.SecretKey)
}

func (m *SecretManager) save(ctx context.Context, secret *models.IntegrationSecret, changes map[string]any) ([]events.Event, error) {
	if err := m.secrets.Update(ctx, secret); err != nil {
		return nil, fmt.Errorf("update secret: %w", err)
	}
	return []events.Event{m.event(events.SecretUpdated, secret, changes)}, nil
}

func (m *SecretManager) event(name events.Name, secret *models.IntegrationSecret, attrs map[string]any) events.Event {
	return events.New(name, secret.IntegrationID, m.cfg.Now(), attrs).WithSecret(secret.ID)
}
