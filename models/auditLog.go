package models

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// AuditLog records who did what to the ledger, from where. Writes are
// best-effort companions to the business write in the same transaction.
type AuditLog struct {
	ID            int       `gorm:"primary_key" json:"id"`
	UserId        int       `gorm:"index" json:"user_id"`
	UserName      string    `gorm:"size:100" json:"user_name"`
	OriginIp      string    `gorm:"size:45" json:"origin_ip"`
	Action        string    `gorm:"size:20;not null" json:"action"`
	EntityType    string    `gorm:"size:50;index;not null" json:"entity_type"`
	EntityId      int       `gorm:"index" json:"entity_id"`
	Detail        string    `gorm:"type:text" json:"detail"`
	CorrelationId string    `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func RecordAudit(ctx context.Context, tx *gorm.DB, action string, entityType string, entityId int, detail string) error {
	userId, userName, originIp, correlationId := auditStamp(ctx)
	entry := AuditLog{
		UserId:        userId,
		UserName:      userName,
		OriginIp:      originIp,
		Action:        action,
		EntityType:    entityType,
		EntityId:      entityId,
		Detail:        detail,
		CorrelationId: correlationId,
	}
	return tx.Create(&entry).Error
}
