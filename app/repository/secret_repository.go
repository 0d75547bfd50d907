package repository

import (
	"context"
	"time"

	"github.com/ManuelReschke/IntegrationGate/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type secretRepository struct {
	db *gorm.DB
}

// NewSecretRepository creates a new secret repository instance
func NewSecretRepository(db *gorm.DB) SecretRepository {
	return &secretRepository{db: db}
}

func (r *secretRepository) Create(ctx context.Context, secret *models.IntegrationSecret) error {
	return r.db.WithContext(ctx).Create(secret).Error
}

// GetForIntegration loads a secret only when it belongs to integrationID.
func (r *secretRepository) GetForIntegration(ctx context.Context, integrationID, id uint) (*models.IntegrationSecret, error) {
	var secret models.IntegrationSecret
	err := r.db.WithContext(ctx).
		Where("id = ? AND integration_id = ?", id, integrationID).
		First(&secret).Error
	if err != nil {
		return nil, err
	}
	return &secret, nil
}

// GetByKey prefers an active row, then the newest one, when a key is stored
// more than once.
func (r *secretRepository) GetByKey(ctx context.Context, integrationID uint, key string) (*models.IntegrationSecret, error) {
	if key == "" {
		return nil, gorm.ErrRecordNotFound
	}
	var secret models.IntegrationSecret
	err := r.db.WithContext(ctx).
		Where("integration_id = ? AND secret_key = ?", integrationID, key).
		Order("CASE WHEN status = '" + models.STATUS_ACTIVE + "' THEN 0 ELSE 1 END, id DESC").
		Take(&secret).Error
	if err != nil {
		return nil, err
	}
	return &secret, nil
}

func (r *secretRepository) ListByIntegration(ctx context.Context, integrationID uint, filter SecretFilter) ([]models.IntegrationSecret, error) {
	query := r.db.WithContext(ctx).Where("integration_id = ?", integrationID)
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if !filter.IncludeExpired {
		now := filter.Now
		if now.IsZero() {
			now = time.Now()
		}
		query = query.Where("expires_at IS NULL OR expires_at > ?", now)
	}

	var secrets []models.IntegrationSecret
	err := query.Order("created_at DESC").Order("id DESC").Find(&secrets).Error
	return secrets, err
}

// CountByIntegration counts active and inactive secrets alike.
func (r *secretRepository) CountByIntegration(ctx context.Context, integrationID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.IntegrationSecret{}).
		Where("integration_id = ?", integrationID).
		Count(&count).Error
	return count, err
}

func (r *secretRepository) Update(ctx context.Context, secret *models.IntegrationSecret) error {
	return r.db.WithContext(ctx).Save(secret).Error
}

func (r *secretRepository) Delete(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).Delete(&models.IntegrationSecret{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *secretRepository) MarkUsed(ctx context.Context, id uint, at time.Time) error {
	return r.db.WithContext(ctx).Model(&models.IntegrationSecret{}).
		Where("id = ?", id).
		Update("last_used_at", at).Error
}

// Rotate deactivates every secret of the integration and inserts secret as
// its only active one. The integration row is locked for the duration so
// concurrent rotations run one after another.
func (r *secretRepository) Rotate(ctx context.Context, integrationID uint, secret *models.IntegrationSecret) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var owner models.Integration
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id").
			First(&owner, integrationID).Error; err != nil {
			return err
		}

		if err := tx.Model(&models.IntegrationSecret{}).
			Where("integration_id = ?", integrationID).
			Update("status", models.STATUS_INACTIVE).Error; err != nil {
			return err
		}

		secret.IntegrationID = integrationID
		secret.Status = models.STATUS_ACTIVE
		return tx.Create(secret).Error
	})
}

// DeleteExpired soft deletes the secrets whose expiry has been reached.
// Secrets without an expiry are kept.
func (r *secretRepository) DeleteExpired(ctx context.Context, integrationID uint, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("integration_id = ? AND expires_at IS NOT NULL AND expires_at <= ?", integrationID, now).
		Delete(&models.IntegrationSecret{})
	return res.RowsAffected, res.Error
}
