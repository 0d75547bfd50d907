package gate

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/ManuelReschke/IntegrationGate/app/models"
	"github.com/ManuelReschke/IntegrationGate/app/repository"
)

// Store is the read path the gate needs plus the mark-used write.
// Implementations return ErrNotFound for unknown records.
type Store interface {
	IntegrationByClientID(ctx context.Context, clientID string) (*models.Integration, error)
	SecretByKey(ctx context.Context, integrationID uint, key string) (*models.IntegrationSecret, error)
	MarkSecretUsed(ctx context.Context, secretID uint, at time.Time) error
}

type repositoryStore struct {
	integrations repository.IntegrationRepository
	secrets      repository.SecretRepository
}

// NewRepositoryStore adapts the gorm repositories to Store.
func NewRepositoryStore(integrations repository.IntegrationRepository, secrets repository.SecretRepository) Store {
	return &repositoryStore{integrations: integrations, secrets: secrets}
}

func (s *repositoryStore) IntegrationByClientID(ctx context.Context, clientID string) (*models.Integration, error) {
	integration, err := s.integrations.GetByClientID(ctx, clientID)
	return integration, notFound(err)
}

func (s *repositoryStore) SecretByKey(ctx context.Context, integrationID uint, key string) (*models.IntegrationSecret, error) {
	secret, err := s.secrets.GetByKey(ctx, integrationID, key)
	return secret, notFound(err)
}

func (s *repositoryStore) MarkSecretUsed(ctx context.Context, secretID uint, at time.Time) error {
	return s.secrets.MarkUsed(ctx, secretID, at)
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
