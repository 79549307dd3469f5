package models

import (
	"time"

	"gorm.io/gorm"
)

// RepAssignment maps an organization to the internal user covering it.
type RepAssignment struct {
	gorm.Model

	OrganizationID uint         `json:"organizationId" gorm:"uniqueIndex"`
	Organization   Organization `json:"-"`

	UserID     string    `json:"userId" gorm:"index"`
	AssignedBy string    `json:"assignedBy"`
	AssignedAt time.Time `json:"assignedAt"`
	Notes      string    `json:"notes"`
}
