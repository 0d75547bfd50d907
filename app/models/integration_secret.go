package models

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// IntegrationSecret is one rotatable credential of an integration, used next
// to the legacy client_secret.
type IntegrationSecret struct {
	ID            uint              `gorm:"primaryKey" json:"id"`
	IntegrationID uint              `gorm:"not null;index:idx_secrets_integration_status,priority:1" json:"integration_id"`
	Name          string            `gorm:"type:varchar(255);not null" json:"name" validate:"required,max=255"`
	SecretKey     string            `gorm:"type:varchar(255);not null;index" json:"-"`
	Status        string            `gorm:"type:varchar(20);default:'active';index:idx_secrets_integration_status,priority:2" json:"status" validate:"oneof=active inactive"`
	LastUsedAt    *time.Time        `json:"last_used_at"`
	ExpiresAt     *time.Time        `gorm:"index" json:"expires_at"`
	Metadata      datatypes.JSONMap `gorm:"type:json" json:"metadata"`
	CreatedAt     time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt     gorm.DeletedAt    `gorm:"index" json:"-"`
}

func (IntegrationSecret) TableName() string {
	return "integration_secrets"
}

func (s *IntegrationSecret) Validate() error {
	v := validator.New()

	return v.Struct(s)
}

func (s *IntegrationSecret) IsActive() bool {
	return s.Status == STATUS_ACTIVE
}

// IsExpired reports whether an expiry is set and has been reached.
func (s *IntegrationSecret) IsExpired(now time.Time) bool {
	return s.ExpiresAt != nil && !s.ExpiresAt.After(now)
}

// IsValid is true for active secrets that have not expired.
func (s *IntegrationSecret) IsValid(now time.Time) bool {
	return s.IsActive() && !s.IsExpired(now)
}

func (s *IntegrationSecret) Masked() string {
	return MaskSecret(s.SecretKey)
}

// MaskSecret keeps the first and last four characters of keys longer than
// eight characters and stars out the rest. The length is preserved.
func MaskSecret(key string) string {
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:4] + strings.Repeat("*", len(key)-8) + key[len(key)-4:]
}
