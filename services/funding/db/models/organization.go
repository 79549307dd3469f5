package models

import (
	"gorm.io/gorm"
)

// Organization identity is the (name, state) pair. Name casing is taken as
// delivered by the upstream source; near-duplicate spellings from different
// sources become distinct rows.
type Organization struct {
	gorm.Model

	Name  string `json:"name" gorm:"index:idx_org_name_state,unique"`
	State string `json:"state" gorm:"index:idx_org_name_state,unique"`

	City          string `json:"city"`
	Address       string `json:"address"`
	Industry      string `json:"industry"`
	Revenue       *int64 `json:"revenue,omitempty"`
	EmployeeCount *int   `json:"employeeCount,omitempty"`
}
