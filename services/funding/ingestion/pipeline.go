package ingestion

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fundtrail/fundtrail/pkg/classifier"
	"github.com/fundtrail/fundtrail/pkg/sources"
	"github.com/fundtrail/fundtrail/services/funding/db"
	"github.com/fundtrail/fundtrail/services/funding/db/models"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	defaultMaxPages = 20
	defaultPageSize = 100
)

// Pipeline runs one ingestion pass per invocation: fetch pages from an
// upstream provider, normalize, classify, dedup and insert. Failures on a
// page or a record are logged and skipped; nothing retries.
type Pipeline struct {
	logger      *zap.Logger
	db          db.Database
	classifier  *classifier.Classifier
	usaspending *sources.USASpendingClient
	grantsgov   *sources.GrantsGovClient

	maxPages int
	pageSize int
}

func NewPipeline(logger *zap.Logger, database db.Database, cls *classifier.Classifier,
	usaspending *sources.USASpendingClient, grantsgov *sources.GrantsGovClient) *Pipeline {
	return &Pipeline{
		logger:      logger.Named("pipeline"),
		db:          database,
		classifier:  cls,
		usaspending: usaspending,
		grantsgov:   grantsgov,
		maxPages:    defaultMaxPages,
		pageSize:    defaultPageSize,
	}
}

type normalizedAward struct {
	OrgName  string
	OrgState string

	Amount     decimal.Decimal
	FiscalYear int
	Status     string

	StartDate  *time.Time
	EndDate    *time.Time
	ActionDate *time.Time

	Source      string
	ExternalRef string
	Notes       string

	GrantTypeCode string
	GrantTypeName string

	ClassifyText []string
}

// insertAward runs the shared normalize-classify-dedup-insert step. Data
// errors (no recipient, zero amount) and dedup hits skip the record without
// failing the run; storage errors are fatal for the job.
func (p *Pipeline) insertAward(tracker *Tracker, dedup *Deduper, orgs *orgResolver, rec normalizedAward) (bool, error) {
	if strings.TrimSpace(rec.OrgName) == "" || rec.Amount.IsZero() {
		tracker.RecordSkipped()
		return false, nil
	}

	org, err := orgs.resolve(rec.OrgName, rec.OrgState)
	if err != nil {
		return false, fmt.Errorf("resolve organization %q: %w", rec.OrgName, err)
	}

	if rec.FiscalYear == 0 {
		rec.FiscalYear = deriveFiscalYear(rec.ActionDate, rec.EndDate, rec.StartDate)
	}

	if dedup.Seen(org.ID, rec.Amount, rec.FiscalYear, rec.Source) {
		tracker.RecordSkipped()
		return false, nil
	}

	verticalName := p.classifier.Classify(rec.ClassifyText...)
	vertical, err := p.db.GetOrCreateVertical(verticalName)
	if err != nil {
		return false, fmt.Errorf("get or create vertical %q: %w", verticalName, err)
	}

	record := models.FundingRecord{
		OrganizationID: org.ID,
		VerticalID:     vertical.ID,
		Amount:         rec.Amount,
		FiscalYear:     rec.FiscalYear,
		Status:         rec.Status,
		StartDate:      rec.StartDate,
		EndDate:        rec.EndDate,
		ActionDate:     rec.ActionDate,
		Source:         rec.Source,
		ExternalRef:    rec.ExternalRef,
		Notes:          rec.Notes,
	}

	if rec.GrantTypeCode != "" || rec.GrantTypeName != "" {
		grantType, err := p.db.GetGrantType(rec.GrantTypeCode, rec.GrantTypeName)
		if err != nil {
			return false, fmt.Errorf("get grant type: %w", err)
		}
		if grantType != nil {
			record.GrantTypeID = &grantType.ID
		}
	}

	if err := p.db.CreateFundingRecord(&record); err != nil {
		return false, fmt.Errorf("create funding record: %w", err)
	}

	dedup.Mark(org.ID, rec.Amount, rec.FiscalYear, rec.Source)
	tracker.RecordInserted()
	return true, nil
}

// IngestUSASpendingPrime pulls grant-type prime awards from the USAspending
// spending_by_award endpoint for one state (or all states).
func (p *Pipeline) IngestUSASpendingPrime(ctx context.Context, tracker *Tracker, state, startDate, endDate string) error {
	dedup, err := NewDeduper(p.db)
	if err != nil {
		return err
	}
	orgs := newOrgResolver(p.db)

	startDate, endDate = defaultDateRange(startDate, endDate)
	filters := sources.AwardSearchFilters{
		TimePeriod:     []sources.TimePeriod{{StartDate: startDate, EndDate: endDate}},
		AwardTypeCodes: sources.GrantAwardTypeCodes,
	}
	if state != "" && state != "ALL" {
		filters.PlaceOfPerformanceLocations = []sources.LocationFilter{{Country: "USA", State: state}}
	}

	awards := sources.Paginate(ctx, p.logger, p.maxPages, func(ctx context.Context, page int) ([]sources.Award, bool, error) {
		tracker.AdvancePage(ctx, page, fmt.Sprintf("fetching USAspending prime awards page %d", page))
		resp, err := p.usaspending.SpendingByAward(ctx, filters, page, p.pageSize)
		if err != nil {
			tracker.Error(ctx, err.Error())
			return nil, false, err
		}
		return resp.Results, resp.PageMetadata.HasNext, nil
	})

	for _, award := range awards {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		awardState := award.PlaceOfPerfState
		if awardState == "" {
			awardState = stateOrEmpty(state)
		}

		rec := normalizedAward{
			OrgName:       award.RecipientName,
			OrgState:      awardState,
			Amount:        decimal.NewFromFloat(award.Amount),
			Status:        "Awarded",
			StartDate:     parseDate(award.StartDate),
			EndDate:       parseDate(award.EndDate),
			Source:        SourceTagUSASpending,
			ExternalRef:   award.InternalID,
			Notes:         award.Description,
			GrantTypeName: award.AwardType,
			ClassifyText: []string{
				award.Description, award.AwardingAgency, award.AwardingSubAgency, award.RecipientName,
			},
		}
		if _, err := p.insertAward(tracker, dedup, orgs, rec); err != nil {
			return err
		}
	}

	return nil
}

// IngestUSASpendingSub fetches the sub-award view for every stored prime
// award that carries an upstream identifier, scoped to the requested state.
func (p *Pipeline) IngestUSASpendingSub(ctx context.Context, tracker *Tracker, state, startDate, endDate string) error {
	parents, err := p.db.ListFundingRecordsWithExternalRef(SourceTagUSASpending, state)
	if err != nil {
		return fmt.Errorf("list parent records: %w", err)
	}
	tracker.SetTotalPages(len(parents))

	orgs := newOrgResolver(p.db)
	startDate, endDate = defaultDateRange(startDate, endDate)

	for i, parent := range parents {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		tracker.AdvancePage(ctx, i+1, fmt.Sprintf("fetching sub-awards for %s", parent.ExternalRef))

		filters := sources.AwardSearchFilters{
			TimePeriod:     []sources.TimePeriod{{StartDate: startDate, EndDate: endDate}},
			AwardTypeCodes: sources.GrantAwardTypeCodes,
			AwardUniqueIDs: []string{parent.ExternalRef},
		}

		subs := sources.Paginate(ctx, p.logger, p.maxPages, func(ctx context.Context, page int) ([]sources.Subaward, bool, error) {
			resp, err := p.usaspending.SubawardSearch(ctx, filters, page, p.pageSize)
			if err != nil {
				tracker.Error(ctx, err.Error())
				return nil, false, err
			}
			return resp.Results, resp.PageMetadata.HasNext, nil
		})

		for _, sub := range subs {
			if strings.TrimSpace(sub.SubAwardee) == "" || sub.Amount == 0 {
				tracker.RecordSkipped()
				continue
			}

			existing, err := p.db.GetSubAwardBySubawardID(sub.SubawardID)
			if err != nil {
				return err
			}
			if existing != nil {
				tracker.RecordSkipped()
				continue
			}

			recipient, err := orgs.resolve(sub.SubAwardee, "")
			if err != nil {
				return err
			}

			subAward := models.SubAward{
				FundingRecordID: parent.ID,
				RecipientOrgID:  recipient.ID,
				SubawardID:      sub.SubawardID,
				Amount:          decimal.NewFromFloat(sub.Amount),
				ActionDate:      parseDate(sub.ActionDate),
				Description:     sub.Description,
			}
			if err := p.db.CreateSubAward(&subAward); err != nil {
				return fmt.Errorf("create sub-award: %w", err)
			}
			tracker.RecordInserted()
		}
	}

	return nil
}

// IngestGrantsGov tracks open and forecasted opportunities as funding
// records; funding figures come from the per-opportunity synopsis.
func (p *Pipeline) IngestGrantsGov(ctx context.Context, tracker *Tracker, state, startDate, endDate string) error {
	dedup, err := NewDeduper(p.db)
	if err != nil {
		return err
	}
	orgs := newOrgResolver(p.db)

	keyword := stateOrEmpty(state)

	opportunities := sources.Paginate(ctx, p.logger, p.maxPages, func(ctx context.Context, page int) ([]sources.Opportunity, bool, error) {
		tracker.AdvancePage(ctx, page, fmt.Sprintf("fetching Grants.gov opportunities page %d", page))
		resp, err := p.grantsgov.Search2(ctx, sources.Search2Request{
			Keyword:        keyword,
			OppStatuses:    "forecasted|posted",
			Rows:           p.pageSize,
			StartRecordNum: (page - 1) * p.pageSize,
		})
		if err != nil {
			tracker.Error(ctx, err.Error())
			return nil, false, err
		}
		hasMore := resp.Data.StartRecordNum+len(resp.Data.OppHits) < resp.Data.HitCount
		return resp.Data.OppHits, hasMore, nil
	})

	for _, opp := range opportunities {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		detail, err := p.grantsgov.FetchOpportunity(ctx, opp.ID.String())
		if err != nil {
			tracker.Error(ctx, fmt.Sprintf("opportunity %s: %s", opp.Number, err))
			continue
		}

		amount := numberToDecimal(detail.Synopsis.EstimatedFunding)
		if amount.IsZero() {
			amount = numberToDecimal(detail.Synopsis.AwardCeiling)
		}

		rec := normalizedAward{
			OrgName:     opp.AgencyName,
			Amount:      amount,
			Status:      opp.OppStatus,
			ActionDate:  parseDate(opp.OpenDate),
			Source:      SourceTagGrantsGov,
			ExternalRef: opp.Number,
			Notes:       opp.Title,
			ClassifyText: []string{
				opp.Title, opp.AgencyName, strings.Join(opp.ALNs, " "),
			},
		}
		if _, err := p.insertAward(tracker, dedup, orgs, rec); err != nil {
			return err
		}
	}

	return nil
}

func stateOrEmpty(state string) string {
	if state == "ALL" {
		return ""
	}
	return state
}

func defaultDateRange(startDate, endDate string) (string, string) {
	now := time.Now()
	if endDate == "" {
		endDate = now.Format("2006-01-02")
	}
	if startDate == "" {
		startDate = now.AddDate(-1, 0, 0).Format("2006-01-02")
	}
	return startDate, endDate
}

func parseDate(s string) *time.Time {
	if s == "" {
		return nil
	}
	for _, layout := range []string{"2006-01-02", "01/02/2006", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}

// deriveFiscalYear derives the federal fiscal year (October start) from the
// first available date, defaulting to the current fiscal year.
func deriveFiscalYear(dates ...*time.Time) int {
	for _, d := range dates {
		if d != nil {
			return fiscalYearOf(*d)
		}
	}
	return fiscalYearOf(time.Now())
}

func fiscalYearOf(t time.Time) int {
	if t.Month() >= time.October {
		return t.Year() + 1
	}
	return t.Year()
}
