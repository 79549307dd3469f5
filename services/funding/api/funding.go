package api

import (
	"encoding/json"
	"time"

	"github.com/fundtrail/fundtrail/services/funding/db/models"
	"github.com/shopspring/decimal"
)

type ListOrganizationsResponse struct {
	Organizations []models.Organization `json:"organizations"`
}

type OrganizationFundingRecord struct {
	models.FundingRecord
	SubAwards []models.SubAward `json:"subAwards,omitempty"`
}

type GetOrganizationResponse struct {
	Organization   models.Organization         `json:"organization"`
	FundingRecords []OrganizationFundingRecord `json:"fundingRecords"`
	Assignment     *models.RepAssignment       `json:"assignment,omitempty"`
}

type ListFundingRecordsResponse struct {
	Records    []models.FundingRecord `json:"records"`
	TotalCount int64                  `json:"totalCount"`
}

type SummaryEntry struct {
	Name  string          `json:"name"`
	Total decimal.Decimal `json:"total"`
	Count int64           `json:"count"`
}

type FundingSummaryResponse struct {
	ByVertical   []SummaryEntry `json:"byVertical"`
	BySource     []SummaryEntry `json:"bySource"`
	ByFiscalYear []SummaryEntry `json:"byFiscalYear"`
}

type PutRepAssignmentRequest struct {
	UserID string `json:"userId" validate:"required"`
	Notes  string `json:"notes,omitempty"`
}

type SavedSearch struct {
	ID        uint            `json:"id"`
	Name      string          `json:"name"`
	Filters   json.RawMessage `json:"filters"`
	CreatedAt time.Time       `json:"createdAt"`
}

type CreateSavedSearchRequest struct {
	Name    string          `json:"name" validate:"required"`
	Filters json.RawMessage `json:"filters" validate:"required"`
}

type ListSavedSearchesResponse struct {
	Searches []SavedSearch `json:"searches"`
}
