package repository

import (
	"context"

	"github.com/ManuelReschke/IntegrationGate/app/models"
	"gorm.io/gorm"
)

type auditLogRepository struct {
	db *gorm.DB
}

func NewAuditLogRepository(db *gorm.DB) AuditLogRepository {
	return &auditLogRepository{db: db}
}

func (r *auditLogRepository) Create(ctx context.Context, entry *models.AuditLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

// ListByIntegration returns the newest entries first.
func (r *auditLogRepository) ListByIntegration(ctx context.Context, integrationID uint, limit int) ([]models.AuditLog, error) {
	if limit <= 0 {
		limit = 100
	}
	var logs []models.AuditLog
	err := r.db.WithContext(ctx).
		Where("integration_id = ?", integrationID).
		Order("occurred_at DESC").Order("id DESC").
		Limit(limit).
		Find(&logs).Error
	return logs, err
}
