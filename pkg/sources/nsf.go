package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"
)

const DefaultNSFBaseURL = "https://api.nsf.gov"

type NSFClient struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

func NewNSFClient(baseURL string, logger *zap.Logger) *NSFClient {
	if baseURL == "" {
		baseURL = DefaultNSFBaseURL
	}
	return &NSFClient{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger.Named("nsf"),
	}
}

type NSFAward struct {
	ID                string `json:"id"`
	Title             string `json:"title"`
	AwardeeName       string `json:"awardeeName"`
	AwardeeStateCode  string `json:"awardeeStateCode"`
	FundsObligatedAmt string `json:"fundsObligatedAmt"`
	Date              string `json:"date"`
	CFDANumber        string `json:"cfdaNumber"`
}

type nsfResponse struct {
	Response struct {
		Award []NSFAward `json:"award"`
	} `json:"response"`
}

// SearchAwards queries the NSF awards API by keyword and optional ALN.
func (c *NSFClient) SearchAwards(ctx context.Context, keyword, cfdaNumber string, offset int) ([]NSFAward, error) {
	q := url.Values{}
	if keyword != "" {
		q.Set("keyword", keyword)
	}
	if cfdaNumber != "" {
		q.Set("cfdaNumber", cfdaNumber)
	}
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	}
	q.Set("printFields", "id,title,awardeeName,awardeeStateCode,fundsObligatedAmt,date,cfdaNumber")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/services/v1/awards.json?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("nsf awards returned status %d: %s", resp.StatusCode, string(b))
	}

	var out nsfResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return out.Response.Award, nil
}
