package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type SubAward struct {
	gorm.Model

	FundingRecordID uint          `json:"fundingRecordId" gorm:"index"`
	FundingRecord   FundingRecord `json:"-"`
	RecipientOrgID  uint          `json:"recipientOrgId" gorm:"index"`
	RecipientOrg    Organization  `json:"recipientOrg,omitempty" gorm:"foreignKey:RecipientOrgID"`

	SubawardID  string          `json:"subawardId"`
	Amount      decimal.Decimal `json:"amount" gorm:"type:numeric(16,2)"`
	ActionDate  *time.Time      `json:"actionDate,omitempty"`
	Description string          `json:"description"`
}
