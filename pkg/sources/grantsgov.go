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

const DefaultGrantsGovBaseURL = "https://api.grants.gov"

type GrantsGovClient struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

func NewGrantsGovClient(baseURL string, logger *zap.Logger) *GrantsGovClient {
	if baseURL == "" {
		baseURL = DefaultGrantsGovBaseURL
	}
	return &GrantsGovClient{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger.Named("grantsgov"),
	}
}

type Search2Request struct {
	Keyword        string `json:"keyword,omitempty"`
	ALN            string `json:"aln,omitempty"`
	OppNum         string `json:"oppNum,omitempty"`
	OppStatuses    string `json:"oppStatuses,omitempty"`
	Rows           int    `json:"rows"`
	StartRecordNum int    `json:"startRecordNum"`
}

type Opportunity struct {
	ID         json.Number `json:"id"`
	Number     string      `json:"number"`
	Title      string      `json:"title"`
	AgencyCode string      `json:"agencyCode"`
	AgencyName string      `json:"agencyName"`
	OpenDate   string      `json:"openDate"`
	CloseDate  string      `json:"closeDate"`
	OppStatus  string      `json:"oppStatus"`
	ALNs       []string    `json:"alnist"`
}

type Search2Response struct {
	ErrorCode int    `json:"errorcode"`
	Msg       string `json:"msg"`
	Data      struct {
		HitCount       int           `json:"hitCount"`
		StartRecordNum int           `json:"startRecord"`
		OppHits        []Opportunity `json:"oppHits"`
	} `json:"data"`
}

// Search2 queries the Grants.gov opportunity search.
func (c *GrantsGovClient) Search2(ctx context.Context, search Search2Request) (*Search2Response, error) {
	if search.Rows == 0 {
		search.Rows = 25
	}

	payload, err := json.Marshal(search)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/api/search2", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("grants.gov search2 returned status %d: %s", resp.StatusCode, string(b))
	}

	var out Search2Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if out.ErrorCode != 0 {
		return nil, fmt.Errorf("grants.gov search2 error %d: %s", out.ErrorCode, out.Msg)
	}

	return &out, nil
}

type OpportunityDetail struct {
	ID       json.Number `json:"id"`
	Synopsis struct {
		AgencyName       string      `json:"agencyName"`
		AwardCeiling     json.Number `json:"awardCeiling"`
		EstimatedFunding json.Number `json:"estimatedFunding"`
		PostingDate      string      `json:"postingDate"`
	} `json:"synopsis"`
}

type fetchOpportunityResponse struct {
	ErrorCode int                `json:"errorcode"`
	Msg       string             `json:"msg"`
	Data      *OpportunityDetail `json:"data"`
}

// FetchOpportunity loads the detail view of a single opportunity; search2
// hits carry no funding figures, those only appear on the synopsis.
func (c *GrantsGovClient) FetchOpportunity(ctx context.Context, opportunityID string) (*OpportunityDetail, error) {
	payload, err := json.Marshal(map[string]string{"opportunityId": opportunityID})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/api/fetchOpportunity", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("grants.gov fetchOpportunity returned status %d: %s", resp.StatusCode, string(b))
	}

	var out fetchOpportunityResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if out.ErrorCode != 0 || out.Data == nil {
		return nil, fmt.Errorf("grants.gov fetchOpportunity error %d: %s", out.ErrorCode, out.Msg)
	}

	return out.Data, nil
}
