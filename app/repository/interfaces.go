package repository

import (
	"context"
	"time"

	"github.com/ManuelReschke/IntegrationGate/app/models"
	"gorm.io/gorm"
)

// IntegrationFilter narrows integration listings. Zero values do not filter.
type IntegrationFilter struct {
	UserID uint
	Status string
	Search string
	Offset int
	Limit  int
}

// SecretFilter narrows secret listings of one integration.
type SecretFilter struct {
	Status         string
	IncludeExpired bool
	Now            time.Time
}

// IntegrationRepository defines the interface for integration persistence
type IntegrationRepository interface {
	Create(ctx context.Context, integration *models.Integration) error
	GetByID(ctx context.Context, id uint) (*models.Integration, error)
	GetByClientID(ctx context.Context, clientID string) (*models.Integration, error)
	ClientIDExists(ctx context.Context, clientID string) (bool, error)
	Update(ctx context.Context, integration *models.Integration) error
	Delete(ctx context.Context, id uint) error
	List(ctx context.Context, filter IntegrationFilter) ([]models.Integration, int64, error)
}

// SecretRepository defines the interface for integration secret persistence
type SecretRepository interface {
	Create(ctx context.Context, secret *models.IntegrationSecret) error
	GetForIntegration(ctx context.Context, integrationID, id uint) (*models.IntegrationSecret, error)
	GetByKey(ctx context.Context, integrationID uint, key string) (*models.IntegrationSecret, error)
	ListByIntegration(ctx context.Context, integrationID uint, filter SecretFilter) ([]models.IntegrationSecret, error)
	CountByIntegration(ctx context.Context, integrationID uint) (int64, error)
	Update(ctx context.Context, secret *models.IntegrationSecret) error
	Delete(ctx context.Context, id uint) error
	MarkUsed(ctx context.Context, id uint, at time.Time) error
	Rotate(ctx context.Context, integrationID uint, secret *models.IntegrationSecret) error
	DeleteExpired(ctx context.Context, integrationID uint, now time.Time) (int64, error)
}

// AuditLogRepository defines the interface for the audit trail
type AuditLogRepository interface {
	Create(ctx context.Context, entry *models.AuditLog) error
	ListByIntegration(ctx context.Context, integrationID uint, limit int) ([]models.AuditLog, error)
}

// Repositories struct holds all repository instances
type Repositories struct {
	Integration IntegrationRepository
	Secret      SecretRepository
	AuditLog    AuditLogRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Integration: NewIntegrationRepository(db),
		Secret:      NewSecretRepository(db),
		AuditLog:    NewAuditLogRepository(db),
	}
}
