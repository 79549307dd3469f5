package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// FundingRecord is a prime award attributed to one organization and one
// vertical. ExternalRef carries the upstream award identifier used to
// correlate sub-awards; it is a dedicated column, never encoded into Notes.
type FundingRecord struct {
	gorm.Model

	OrganizationID uint         `json:"organizationId" gorm:"index"`
	Organization   Organization `json:"organization,omitempty"`
	VerticalID     uint         `json:"verticalId" gorm:"index"`
	Vertical       Vertical     `json:"vertical,omitempty"`
	GrantTypeID    *uint        `json:"grantTypeId,omitempty"`
	GrantType      *GrantType   `json:"grantType,omitempty"`

	Amount     decimal.Decimal `json:"amount" gorm:"type:numeric(16,2)"`
	FiscalYear int             `json:"fiscalYear" gorm:"index"`
	Status     string          `json:"status"`

	StartDate  *time.Time `json:"startDate,omitempty"`
	EndDate    *time.Time `json:"endDate,omitempty"`
	ActionDate *time.Time `json:"actionDate,omitempty"`

	Source      string `json:"source" gorm:"index"`
	ExternalRef string `json:"externalRef" gorm:"index"`
	Notes       string `json:"notes"`
}
