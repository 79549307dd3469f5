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

const DefaultNIHReporterBaseURL = "https://api.reporter.nih.gov"

type NIHReporterClient struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

func NewNIHReporterClient(baseURL string, logger *zap.Logger) *NIHReporterClient {
	if baseURL == "" {
		baseURL = DefaultNIHReporterBaseURL
	}
	return &NIHReporterClient{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger.Named("nih-reporter"),
	}
}

type NIHProjectSearchRequest struct {
	SearchText string
	State      string
	FromDate   string
	ToDate     string
	Offset     int
	Limit      int
}

type NIHProject struct {
	ProjectNum   string `json:"project_num"`
	ProjectTitle string `json:"project_title"`
	Organization struct {
		OrgName  string `json:"org_name"`
		OrgState string `json:"org_state"`
	} `json:"organization"`
	AwardAmount float64 `json:"award_amount"`
	FiscalYear  int     `json:"fiscal_year"`
}

type NIHProjectSearchResponse struct {
	Meta struct {
		Total int `json:"total"`
	} `json:"meta"`
	Results []NIHProject `json:"results"`
}

type nihCriteria struct {
	AdvancedTextSearch *struct {
		SearchText string `json:"search_text"`
	} `json:"advanced_text_search,omitempty"`
	OrgStates        []string `json:"org_states,omitempty"`
	ProjectStartDate *struct {
		FromDate string `json:"from_date,omitempty"`
		ToDate   string `json:"to_date,omitempty"`
	} `json:"project_start_date,omitempty"`
}

type nihSearchBody struct {
	Criteria nihCriteria `json:"criteria"`
	Offset   int         `json:"offset"`
	Limit    int         `json:"limit"`
}

// SearchProjects queries the NIH RePORTER project search.
func (c *NIHReporterClient) SearchProjects(ctx context.Context, search NIHProjectSearchRequest) (*NIHProjectSearchResponse, error) {
	if search.Limit == 0 {
		search.Limit = 50
	}

	body := nihSearchBody{Offset: search.Offset, Limit: search.Limit}
	if search.SearchText != "" {
		body.Criteria.AdvancedTextSearch = &struct {
			SearchText string `json:"search_text"`
		}{SearchText: search.SearchText}
	}
	if search.State != "" {
		body.Criteria.OrgStates = []string{search.State}
	}
	if search.FromDate != "" || search.ToDate != "" {
		body.Criteria.ProjectStartDate = &struct {
			FromDate string `json:"from_date,omitempty"`
			ToDate   string `json:"to_date,omitempty"`
		}{FromDate: search.FromDate, ToDate: search.ToDate}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v2/projects/search", bytes.NewReader(payload))
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
		return nil, fmt.Errorf("nih reporter returned status %d: %s", resp.StatusCode, string(b))
	}

	var out NIHProjectSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &out, nil
}
