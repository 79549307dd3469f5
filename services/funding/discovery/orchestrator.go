package discovery

import (
	"context"
	"strings"
	"sync"

	"github.com/fundtrail/fundtrail/pkg/sources"
	"go.uber.org/zap"
)

// VerticalALNPrefixes maps a funding vertical to the assistance listing
// number prefixes of the federal agencies that fund it. The prefix is the
// two-digit agency code before the dot.
var VerticalALNPrefixes = map[string][]string{
	"Home Visiting":              {"93"},
	"Maternal & Child Health":    {"93"},
	"Aging Services":             {"93"},
	"Workforce Development":      {"17"},
	"Early Childhood Education":  {"93", "84"},
	"Behavioral Health":          {"93"},
	"Housing & Homelessness":     {"14"},
	"Nutrition & Food Security":  {"10"},
	"Public Health":              {"93"},
	"Education":                  {"84"},
	"Broadband & Digital Equity": {"11", "32"},
	"Transportation":             {"20"},
	"Energy & Environment":       {"81", "66"},
	"Justice & Public Safety":    {"16"},
	"Economic Development":       {"11"},
}

// PrefixesForVerticals resolves the given verticals to a de-duplicated
// prefix set; unknown verticals contribute nothing.
func PrefixesForVerticals(verticals []string) []string {
	seen := make(map[string]struct{})
	var prefixes []string
	for _, v := range verticals {
		for _, p := range VerticalALNPrefixes[v] {
			if _, ok := seen[p]; ok {
				continue
			}
			seen[p] = struct{}{}
			prefixes = append(prefixes, p)
		}
	}
	return prefixes
}

const maxListingPages = 10

type Orchestrator struct {
	logger      *zap.Logger
	samgov      *sources.SAMGovClient
	grantsgov   *sources.GrantsGovClient
	usaspending *sources.USASpendingClient
}

func NewOrchestrator(logger *zap.Logger, samgov *sources.SAMGovClient,
	grantsgov *sources.GrantsGovClient, usaspending *sources.USASpendingClient) *Orchestrator {
	return &Orchestrator{
		logger:      logger.Named("discovery"),
		samgov:      samgov,
		grantsgov:   grantsgov,
		usaspending: usaspending,
	}
}

type ListingSearchRequest struct {
	PublishedFrom string
	PublishedTo   string
	Verticals     []string
	Prefixes      []string
}

type ListingSearchResult struct {
	Listings          []sources.AssistanceListing
	FilteredCount     int
	TotalBeforeFilter int
}

// SearchListings runs the first discovery stage: pull assistance listings
// for the date window from SAM.gov and post-filter them by ALN prefix. The
// prefix filter is applied client-side; TotalBeforeFilter lets a caller
// tell "no data" apart from "filtered to zero".
func (o *Orchestrator) SearchListings(ctx context.Context, req ListingSearchRequest) (*ListingSearchResult, error) {
	prefixes := req.Prefixes
	if len(prefixes) == 0 {
		prefixes = PrefixesForVerticals(req.Verticals)
	}

	const pageSize = 100
	var total int
	listings := sources.Paginate(ctx, o.logger, maxListingPages, func(ctx context.Context, page int) ([]sources.AssistanceListing, bool, error) {
		results, pageTotal, err := o.samgov.SearchAssistanceListings(ctx, req.PublishedFrom, req.PublishedTo, page-1, pageSize)
		if err != nil {
			return nil, false, err
		}
		total = pageTotal
		return results, page*pageSize < pageTotal, nil
	})

	result := &ListingSearchResult{TotalBeforeFilter: total}
	if len(prefixes) == 0 {
		result.Listings = listings
		result.FilteredCount = len(listings)
		return result, nil
	}

	for _, listing := range listings {
		if matchesPrefix(listing.ProgramNumber, prefixes) {
			result.Listings = append(result.Listings, listing)
		}
	}
	result.FilteredCount = len(result.Listings)
	return result, nil
}

func matchesPrefix(programNumber string, prefixes []string) bool {
	agency, _, _ := strings.Cut(programNumber, ".")
	for _, p := range prefixes {
		if agency == p {
			return true
		}
	}
	return false
}

type TrailRequest struct {
	ALN       string
	StartDate string
	EndDate   string
}

type OpportunityStage struct {
	Opportunities []sources.Opportunity `json:"opportunities"`
	HitCount      int                   `json:"hitCount"`
	Error         string                `json:"error,omitempty"`
}

type PrimeAwardStage struct {
	Awards     []sources.Award `json:"awards"`
	TotalCount int             `json:"totalCount"`
	Error      string          `json:"error,omitempty"`
}

type SubAwardStage struct {
	SubAwards []sources.Subaward `json:"subAwards"`
	Error     string             `json:"error,omitempty"`
}

type Trail struct {
	ALN           string           `json:"aln"`
	Opportunities OpportunityStage `json:"opportunityStage"`
	PrimeAwards   PrimeAwardStage  `json:"primeAwardStage"`
	SubAwards     SubAwardStage    `json:"subAwardStage"`
}

// BuildTrail runs discovery stages 2 through 4 for one selected ALN. The
// three stages fan out concurrently and fail independently; a failed stage
// carries its error message while the others keep their results.
func (o *Orchestrator) BuildTrail(ctx context.Context, req TrailRequest) *Trail {
	trail := &Trail{ALN: req.ALN}

	filters := sources.AwardSearchFilters{
		TimePeriod:     []sources.TimePeriod{{StartDate: req.StartDate, EndDate: req.EndDate}},
		AwardTypeCodes: sources.GrantAwardTypeCodes,
		ProgramNumbers: []string{req.ALN},
	}

	var wg sync.WaitGroup
	wg.Add(3)

	go func() {
		defer wg.Done()
		resp, err := o.grantsgov.Search2(ctx, sources.Search2Request{
			ALN:         req.ALN,
			OppStatuses: "forecasted|posted",
			Rows:        100,
		})
		if err != nil {
			o.logger.Warn("opportunity stage failed", zap.String("aln", req.ALN), zap.Error(err))
			trail.Opportunities.Error = err.Error()
			return
		}
		trail.Opportunities.Opportunities = resp.Data.OppHits
		trail.Opportunities.HitCount = resp.Data.HitCount
	}()

	go func() {
		defer wg.Done()
		resp, err := o.usaspending.SpendingByAward(ctx, filters, 1, 100)
		if err != nil {
			o.logger.Warn("prime award stage failed", zap.String("aln", req.ALN), zap.Error(err))
			trail.PrimeAwards.Error = err.Error()
			return
		}
		trail.PrimeAwards.Awards = resp.Results

		counts, err := o.usaspending.SpendingByAwardCount(ctx, filters)
		if err != nil {
			o.logger.Warn("prime award count failed", zap.String("aln", req.ALN), zap.Error(err))
			trail.PrimeAwards.TotalCount = len(resp.Results)
			return
		}
		trail.PrimeAwards.TotalCount = counts["grants"]
	}()

	go func() {
		defer wg.Done()
		resp, err := o.usaspending.SubawardSearch(ctx, filters, 1, 100)
		if err != nil {
			o.logger.Warn("sub-award stage failed", zap.String("aln", req.ALN), zap.Error(err))
			trail.SubAwards.Error = err.Error()
			return
		}
		trail.SubAwards.SubAwards = resp.Results
	}()

	wg.Wait()
	return trail
}
