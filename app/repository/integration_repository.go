package repository

import (
	"context"
	"strings"

	"github.com/ManuelReschke/IntegrationGate/app/models"
	"gorm.io/gorm"
)

type integrationRepository struct {
	db *gorm.DB
}

// NewIntegrationRepository creates a new integration repository instance
func NewIntegrationRepository(db *gorm.DB) IntegrationRepository {
	return &integrationRepository{db: db}
}

func (r *integrationRepository) Create(ctx context.Context, integration *models.Integration) error {
	return r.db.WithContext(ctx).Create(integration).Error
}

func (r *integrationRepository) GetByID(ctx context.Context, id uint) (*models.Integration, error) {
	var integration models.Integration
	err := r.db.WithContext(ctx).First(&integration, id).Error
	if err != nil {
		return nil, err
	}
	return &integration, nil
}

// GetByClientID resolves a client identifier. Soft deleted integrations are
// not found.
func (r *integrationRepository) GetByClientID(ctx context.Context, clientID string) (*models.Integration, error) {
	trimmed := strings.TrimSpace(clientID)
	if trimmed == "" {
		return nil, gorm.ErrRecordNotFound
	}
	var integration models.Integration
	err := r.db.WithContext(ctx).Where("client_id = ?", trimmed).First(&integration).Error
	if err != nil {
		return nil, err
	}
	return &integration, nil
}

// ClientIDExists also sees soft deleted rows, the unique index does too.
func (r *integrationRepository) ClientIDExists(ctx context.Context, clientID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Unscoped().Model(&models.Integration{}).
		Where("client_id = ?", clientID).
		Count(&count).Error
	return count > 0, err
}

func (r *integrationRepository) Update(ctx context.Context, integration *models.Integration) error {
	return r.db.WithContext(ctx).Omit("Secrets").Save(integration).Error
}

// Delete soft deletes the integration together with its secrets.
func (r *integrationRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("integration_id = ?", id).Delete(&models.IntegrationSecret{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&models.Integration{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

// List returns one page of integrations and the total matching count.
func (r *integrationRepository) List(ctx context.Context, filter IntegrationFilter) ([]models.Integration, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Integration{})
	if filter.UserID != 0 {
		query = query.Where("user_id = ?", filter.UserID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if s := strings.TrimSpace(filter.Search); s != "" {
		like := "%" + s + "%"
		query = query.Where("name LIKE ? OR description LIKE ? OR client_id LIKE ?", like, like, like)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var integrations []models.Integration
	q := query.Order("created_at DESC").Order("id DESC").Offset(filter.Offset)
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	if err := q.Find(&integrations).Error; err != nil {
		return nil, 0, err
	}
	return integrations, total, nil
}
