package models

import (
	"github.com/jackc/pgtype"
	"gorm.io/gorm"
)

type SavedSearch struct {
	gorm.Model

	UserID  string       `json:"userId" gorm:"index"`
	Name    string       `json:"name"`
	Filters pgtype.JSONB `json:"filters" gorm:"type:jsonb"`
}

type SavedSubawardSearch struct {
	gorm.Model

	UserID  string       `json:"userId" gorm:"index"`
	Name    string       `json:"name"`
	Filters pgtype.JSONB `json:"filters" gorm:"type:jsonb"`
}
