package models

import (
	"github.com/jackc/pgtype"
	"gorm.io/gorm"
)

type AdminAuditLog struct {
	gorm.Model

	UserID  string       `json:"userId" gorm:"index"`
	Action  string       `json:"action"`
	Details pgtype.JSONB `json:"details" gorm:"type:jsonb"`
}
