package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const DefaultUSASpendingBaseURL = "https://api.usaspending.gov"

// GrantAwardTypeCodes are the USAspending award type codes for grant-type
// assistance awards.
var GrantAwardTypeCodes = []string{"02", "03", "04", "05"}

type USASpendingClient struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

func NewUSASpendingClient(baseURL string, logger *zap.Logger) *USASpendingClient {
	if baseURL == "" {
		baseURL = DefaultUSASpendingBaseURL
	}
	return &USASpendingClient{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger.Named("usaspending"),
	}
}

type TimePeriod struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

type LocationFilter struct {
	Country string `json:"country"`
	State   string `json:"state,omitempty"`
}

type AgencyFilter struct {
	Type string `json:"type"`
	Tier string `json:"tier"`
	Name string `json:"name"`
}

// AwardSearchFilters is the filter object of the spending_by_award endpoints.
// ProgramNumbers must be a list even for a single ALN; the endpoint silently
// ignores the filter when it is sent as a bare string.
type AwardSearchFilters struct {
	TimePeriod                  []TimePeriod     `json:"time_period,omitempty"`
	AwardTypeCodes              []string         `json:"award_type_codes,omitempty"`
	RecipientLocations          []LocationFilter `json:"recipient_locations,omitempty"`
	PlaceOfPerformanceLocations []LocationFilter `json:"place_of_performance_locations,omitempty"`
	ProgramNumbers              []string         `json:"program_numbers,omitempty"`
	Agencies                    []AgencyFilter   `json:"agencies,omitempty"`
	AwardUniqueIDs              []string         `json:"award_unique_ids,omitempty"`
}

type awardSearchRequest struct {
	Filters   AwardSearchFilters `json:"filters"`
	Fields    []string           `json:"fields"`
	Page      int                `json:"page"`
	Limit     int                `json:"limit"`
	Subawards bool               `json:"subawards"`
}

type PageMetadata struct {
	Page    int  `json:"page"`
	HasNext bool `json:"hasNext"`
}

type Award struct {
	InternalID        string  `json:"generated_internal_id"`
	AwardID           string  `json:"Award ID"`
	RecipientName     string  `json:"Recipient Name"`
	Amount            float64 `json:"Award Amount"`
	Description       string  `json:"Description"`
	StartDate         string  `json:"Start Date"`
	EndDate           string  `json:"End Date"`
	AwardingAgency    string  `json:"Awarding Agency"`
	AwardingSubAgency string  `json:"Awarding Sub Agency"`
	PlaceOfPerfState  string  `json:"Place of Performance State Code"`
	CFDANumber        string  `json:"CFDA Number"`
	AwardType         string  `json:"Award Type"`
}

type AwardSearchResponse struct {
	Results      []Award      `json:"results"`
	PageMetadata PageMetadata `json:"page_metadata"`
}

var awardFields = []string{
	"Award ID", "Recipient Name", "Award Amount", "Description",
	"Start Date", "End Date", "Awarding Agency", "Awarding Sub Agency",
	"Place of Performance State Code", "CFDA Number", "Award Type",
}

// SpendingByAward queries the prime award view of spending_by_award.
func (c *USASpendingClient) SpendingByAward(ctx context.Context, filters AwardSearchFilters, page, limit int) (*AwardSearchResponse, error) {
	req := awardSearchRequest{
		Filters: filters,
		Fields:  awardFields,
		Page:    page,
		Limit:   limit,
	}

	var resp AwardSearchResponse
	if err := c.post(ctx, "/api/v2/search/spending_by_award/", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

type Subaward struct {
	InternalID   string  `json:"prime_award_generated_internal_id"`
	SubawardID   string  `json:"Sub-Award ID"`
	SubAwardee   string  `json:"Sub-Awardee Name"`
	Amount       float64 `json:"Sub-Award Amount"`
	ActionDate   string  `json:"Sub-Award Date"`
	Description  string  `json:"Sub-Award Description"`
	PrimeAwardID string  `json:"Prime Award ID"`
}

type SubawardSearchResponse struct {
	Results      []Subaward   `json:"results"`
	PageMetadata PageMetadata `json:"page_metadata"`
}

var subawardFields = []string{
	"Sub-Award ID", "Sub-Awardee Name", "Sub-Award Amount", "Sub-Award Date",
	"Sub-Award Description", "Prime Award ID",
}

// SubawardSearch queries the sub-award view of the same endpoint; the only
// difference on the wire is the subawards flag and the field list.
func (c *USASpendingClient) SubawardSearch(ctx context.Context, filters AwardSearchFilters, page, limit int) (*SubawardSearchResponse, error) {
	req := awardSearchRequest{
		Filters:   filters,
		Fields:    subawardFields,
		Page:      page,
		Limit:     limit,
		Subawards: true,
	}

	var resp SubawardSearchResponse
	if err := c.post(ctx, "/api/v2/search/spending_by_award/", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

type awardCountRequest struct {
	Filters AwardSearchFilters `json:"filters"`
}

type AwardCountResponse struct {
	Results map[string]int `json:"results"`
}

// SpendingByAwardCount returns the total award counts per award category
// for the given filters.
func (c *USASpendingClient) SpendingByAwardCount(ctx context.Context, filters AwardSearchFilters) (map[string]int, error) {
	var resp AwardCountResponse
	if err := c.post(ctx, "/api/v2/search/spending_by_award_count/", awardCountRequest{Filters: filters}, &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

func (c *USASpendingClient) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("usaspending %s returned status %d: %s", path, resp.StatusCode, string(b))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
