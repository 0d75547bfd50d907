package models

import (
	"time"

	"gorm.io/datatypes"
)

// AuditLog is one recorded lifecycle event of an integration or secret.
type AuditLog struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	EventID       string         `gorm:"type:char(36);uniqueIndex;not null" json:"event_id"`
	Event         string         `gorm:"type:varchar(50);not null;index" json:"event"`
	EntityType    string         `gorm:"type:varchar(30);not null;index:idx_audit_entity" json:"entity_type"`
	EntityID      uint           `gorm:"not null;index:idx_audit_entity" json:"entity_id"`
	IntegrationID uint           `gorm:"not null;index" json:"integration_id"`
	Changes       datatypes.JSON `gorm:"type:json" json:"changes"`
	ActorType     string         `gorm:"type:varchar(20);not null" json:"actor_type"`
	ActorID       string         `gorm:"type:varchar(255);not null" json:"actor_id"`
	IPAddress     string         `gorm:"type:varchar(45)" json:"ip_address"`
	UserAgent     string         `gorm:"type:varchar(255)" json:"user_agent"`
	OccurredAt    time.Time      `gorm:"not null" json:"occurred_at"`
	CreatedAt     time.Time      `gorm:"autoCreateTime" json:"created_at"`
}

func (AuditLog) TableName() string {
	return "audit_logs"
}

const (
	AuditEntityIntegration = "integration"
	AuditEntitySecret      = "secret"
)

const (
	AuditActorUser   = "user"
	AuditActorSystem = "system"
)
