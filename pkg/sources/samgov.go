package sources

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

const DefaultSAMGovBaseURL = "https://api.sam.gov"

type SAMGovClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *zap.Logger
}

func NewSAMGovClient(baseURL, apiKey string, logger *zap.Logger) *SAMGovClient {
	if baseURL == "" {
		baseURL = DefaultSAMGovBaseURL
	}
	return &SAMGovClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger.Named("samgov"),
	}
}

type AssistanceListing struct {
	ID            string `json:"id"`
	ProgramNumber string `json:"programNumber"`
	Title         string `json:"title"`
	Agency        string `json:"agency"`
	PublishedDate string `json:"publishedDate"`
	Active        bool   `json:"active"`
}

// SearchAssistanceListings queries the SAM.gov assistance-listing index for
// the given publication date window. The second return value is the total
// element count the provider reports for the query.
//
// The response shape is only loosely documented and fields move between
// releases, so the payload is picked apart with gjson instead of a fixed
// struct.
func (c *SAMGovClient) SearchAssistanceListings(ctx context.Context, from, to string, page, size int) ([]AssistanceListing, int, error) {
	q := url.Values{}
	q.Set("api_key", c.apiKey)
	q.Set("index", "cfda")
	q.Set("sort", "-modifiedDate")
	q.Set("page", strconv.Itoa(page))
	q.Set("size", strconv.Itoa(size))
	if from != "" {
		q.Set("publishedFrom", from)
	}
	if to != "" {
		q.Set("publishedTo", to)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/prod/sgs/v1/search?"+q.Encode(), nil)
	if err != nil {
		return nil, 0, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, 0, fmt.Errorf("sam.gov search returned status %d: %s", resp.StatusCode, string(body[:min(len(body), 512)]))
	}

	var listings []AssistanceListing
	for _, r := range gjson.GetBytes(body, "_embedded.results").Array() {
		listing := AssistanceListing{
			ID:            r.Get("_id").String(),
			ProgramNumber: r.Get("programNumber").String(),
			Title:         r.Get("title").String(),
			Agency:        r.Get("organizationHierarchy.0.name").String(),
			PublishedDate: r.Get("publishedDate").String(),
			Active:        r.Get("isActive").Bool(),
		}
		if listing.ProgramNumber == "" {
			// some records carry the number under the fiscal year detail
			listing.ProgramNumber = r.Get("fh.programNumber").String()
		}
		if listing.ProgramNumber == "" {
			continue
		}
		listings = append(listings, listing)
	}

	total := int(gjson.GetBytes(body, "page.totalElements").Int())
	return listings, total, nil
}
