package ingestion

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fundtrail/fundtrail/pkg/classifier"
	idocker "github.com/fundtrail/fundtrail/internal/dockertest"
	"github.com/fundtrail/fundtrail/pkg/sources"
	"github.com/fundtrail/fundtrail/services/funding/db"
	"github.com/fundtrail/fundtrail/services/funding/db/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
)

func TestPipeline(t *testing.T) {
	suite.Run(t, &PipelineTestSuite{})
}

type PipelineTestSuite struct {
	suite.Suite

	db db.Database
}

func (s *PipelineTestSuite) SetupSuite() {
	require := s.Require()

	orm := idocker.StartupPostgreSQL(s.T())
	s.db = db.Database{Orm: orm}
	require.NoError(s.db.Initialize())

	cls, err := classifier.New()
	require.NoError(err)
	require.NoError(s.db.SeedVerticals(cls.Verticals()))
	require.NoError(s.db.SeedGrantTypes(map[string]string{
		"02": "Block Grant",
		"03": "Formula Grant",
		"04": "Project Grant",
		"05": "Cooperative Agreement",
	}))
}

func (s *PipelineTestSuite) TearDownTest() {
	_, err := s.db.PurgeAll()
	s.Require().NoError(err)
}

func (s *PipelineTestSuite) pipelineWith(usaspendingURL, grantsgovURL string) *Pipeline {
	require := s.Require()

	cls, err := classifier.New()
	require.NoError(err)

	logger := zap.NewNop()
	return NewPipeline(logger, s.db, cls,
		sources.NewUSASpendingClient(usaspendingURL, logger),
		sources.NewGrantsGovClient(grantsgovURL, logger))
}

func (s *PipelineTestSuite) tracker(source string) *Tracker {
	tracker, err := StartTracker(context.Background(), zap.NewNop(), s.db, nil, "", source, "CA")
	s.Require().NoError(err)
	return tracker
}

func fakeUSASpending(awards []sources.Award) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(sources.AwardSearchResponse{
			Results:      awards,
			PageMetadata: sources.PageMetadata{Page: 1, HasNext: false},
		})
	}))
}

func (s *PipelineTestSuite) TestIngestPrimeAwardsAndRerunIsIdempotent() {
	require := s.Require()

	server := fakeUSASpending([]sources.Award{
		{
			InternalID:       "ASST_NON_1",
			RecipientName:    "County Health Alliance",
			Amount:           100000,
			Description:      "maternal health services",
			StartDate:        "2023-11-01",
			PlaceOfPerfState: "CA",
			AwardType:        "project grant",
		},
		{
			InternalID:       "ASST_NON_2",
			RecipientName:    "Valley Workforce Board",
			Amount:           250000,
			Description:      "WIOA adult job training",
			StartDate:        "2024-02-01",
			PlaceOfPerfState: "CA",
			AwardType:        "formula grant",
		},
		// zero amount, silently skipped
		{InternalID: "ASST_NON_3", RecipientName: "Empty Award Org", Amount: 0, PlaceOfPerfState: "CA"},
		// no recipient, silently skipped
		{InternalID: "ASST_NON_4", Amount: 5000, PlaceOfPerfState: "CA"},
	})
	defer server.Close()

	pipeline := s.pipelineWith(server.URL, "")

	tracker := s.tracker(SourceTagUSASpending)
	require.NoError(pipeline.IngestUSASpendingPrime(context.Background(), tracker, "CA", "2023-10-01", "2024-09-30"))
	tracker.Complete(context.Background(), "done")

	session, err := s.db.GetProgressSession(tracker.SessionID())
	require.NoError(err)
	require.NotNil(session)
	require.Equal(models.FetchStatusCompleted, session.Status)
	require.Equal(2, session.InsertedCount)
	require.Equal(2, session.SkippedCount)

	records, total, err := s.db.ListFundingRecords(db.FundingRecordFilters{})
	require.NoError(err)
	require.Equal(int64(2), total)

	byOrg := map[string]models.FundingRecord{}
	for _, record := range records {
		byOrg[record.Organization.Name] = record
	}
	require.Equal("Maternal & Child Health", byOrg["County Health Alliance"].Vertical.Name)
	require.Equal("Workforce Development", byOrg["Valley Workforce Board"].Vertical.Name)
	// November start date lands in the next federal fiscal year
	require.Equal(2024, byOrg["County Health Alliance"].FiscalYear)
	require.NotNil(byOrg["County Health Alliance"].GrantTypeID)

	// identical rerun dedups everything
	rerunTracker := s.tracker(SourceTagUSASpending)
	require.NoError(pipeline.IngestUSASpendingPrime(context.Background(), rerunTracker, "CA", "2023-10-01", "2024-09-30"))
	rerunTracker.Complete(context.Background(), "done")

	rerunSession, err := s.db.GetProgressSession(rerunTracker.SessionID())
	require.NoError(err)
	require.Equal(0, rerunSession.InsertedCount)

	_, total, err = s.db.ListFundingRecords(db.FundingRecordFilters{})
	require.NoError(err)
	require.Equal(int64(2), total)
}

func (s *PipelineTestSuite) TestOrganizationGetOrCreateIsIdempotent() {
	require := s.Require()

	first, err := s.db.GetOrCreateOrganization("City of Springfield", "IL")
	require.NoError(err)
	second, err := s.db.GetOrCreateOrganization("City of Springfield", "IL")
	require.NoError(err)
	require.Equal(first.ID, second.ID)

	otherState, err := s.db.GetOrCreateOrganization("City of Springfield", "MA")
	require.NoError(err)
	require.NotEqual(first.ID, otherState.ID)
}

func (s *PipelineTestSuite) TestProgressTransitionsAndMonotonePage() {
	require := s.Require()
	ctx := context.Background()

	tracker := s.tracker(SourceTagGrantsGov)

	tracker.AdvancePage(ctx, 3, "page 3")
	tracker.AdvancePage(ctx, 2, "late event for page 2")

	session, err := s.db.GetProgressSession(tracker.SessionID())
	require.NoError(err)
	require.Equal(models.FetchStatusRunning, session.Status)
	require.Equal(3, session.CurrentPage)

	tracker.Error(ctx, "err 1")
	tracker.Error(ctx, "err 2")
	tracker.Error(ctx, "err 3")
	tracker.Error(ctx, "err 4")
	tracker.Error(ctx, "err 5")
	tracker.Error(ctx, "err 6")

	tracker.Complete(ctx, "done")

	session, err = s.db.GetProgressSession(tracker.SessionID())
	require.NoError(err)
	require.Equal(models.FetchStatusCompleted, session.Status)

	var recentErrors []string
	require.NoError(session.RecentErrors.AssignTo(&recentErrors))
	require.Equal([]string{"err 2", "err 3", "err 4", "err 5", "err 6"}, recentErrors)
}

func (s *PipelineTestSuite) TestStartTrackerReplacesSession() {
	require := s.Require()
	ctx := context.Background()

	tracker, err := StartTracker(ctx, zap.NewNop(), s.db, nil, "fixed-session", SourceTagNASBO, "")
	require.NoError(err)
	tracker.Fail(ctx, context.DeadlineExceeded)

	replacement, err := StartTracker(ctx, zap.NewNop(), s.db, nil, "fixed-session", SourceTagNASBO, "")
	require.NoError(err)
	require.Equal("fixed-session", replacement.SessionID())

	session, err := s.db.GetProgressSession("fixed-session")
	require.NoError(err)
	require.Equal(models.FetchStatusRunning, session.Status)
	require.Equal(0, session.InsertedCount)
}

func (s *PipelineTestSuite) TestIngestNASBOUsesDatasetCategories() {
	require := s.Require()

	pipeline := s.pipelineWith("", "")
	tracker := s.tracker(SourceTagNASBO)

	require.NoError(pipeline.IngestNASBO(context.Background(), tracker, "OH"))

	records, total, err := s.db.ListFundingRecords(db.FundingRecordFilters{Sources: []string{SourceTagNASBO}})
	require.NoError(err)
	require.Equal(int64(1), total)
	require.Equal("Home Visiting", records[0].Vertical.Name)
	require.Equal("OH", records[0].Organization.State)

	// rerun dedups against the stored rows
	rerunTracker := s.tracker(SourceTagNASBO)
	require.NoError(pipeline.IngestNASBO(context.Background(), rerunTracker, "OH"))

	_, total, err = s.db.ListFundingRecords(db.FundingRecordFilters{Sources: []string{SourceTagNASBO}})
	require.NoError(err)
	require.Equal(int64(1), total)
}

func (s *PipelineTestSuite) TestIngestSubAwards() {
	require := s.Require()

	record := models.FundingRecord{
		OrganizationID: s.mustOrg("Prime Recipient", "CA").ID,
		VerticalID:     s.mustVertical("Public Health").ID,
		Amount:         decimal.NewFromInt(500000),
		FiscalYear:     2024,
		Source:         SourceTagUSASpending,
		ExternalRef:    "ASST_NON_PRIME",
	}
	require.NoError(s.db.CreateFundingRecord(&record))

	// a parent in another state stays out of a CA-scoped pass
	otherState := models.FundingRecord{
		OrganizationID: s.mustOrg("Out Of State Recipient", "NY").ID,
		VerticalID:     s.mustVertical("Public Health").ID,
		Amount:         decimal.NewFromInt(300000),
		FiscalYear:     2024,
		Source:         SourceTagUSASpending,
		ExternalRef:    "ASST_NON_OTHER",
	}
	require.NoError(s.db.CreateFundingRecord(&otherState))

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		_ = json.NewDecoder(r.Body).Decode(&req)

		filters := req["filters"].(map[string]any)
		if ids, ok := filters["award_unique_ids"].([]any); !ok || len(ids) != 1 || ids[0] != "ASST_NON_PRIME" {
			http.Error(w, "unexpected filters", http.StatusBadRequest)
			return
		}

		_ = json.NewEncoder(w).Encode(sources.SubawardSearchResponse{
			Results: []sources.Subaward{
				{SubawardID: "SUB-1", SubAwardee: "Local Nonprofit", Amount: 40000, ActionDate: "2024-03-01"},
				{SubawardID: "SUB-2", SubAwardee: "", Amount: 1000},
			},
		})
	}))
	defer server.Close()

	pipeline := s.pipelineWith(server.URL, "")
	tracker := s.tracker(SourceTagUSASpending)
	require.NoError(pipeline.IngestUSASpendingSub(context.Background(), tracker, "CA", "", ""))

	subAwards, err := s.db.ListSubAwardsByFundingRecord(record.ID)
	require.NoError(err)
	require.Len(subAwards, 1)
	require.Equal("SUB-1", subAwards[0].SubawardID)
	require.Equal("Local Nonprofit", subAwards[0].RecipientOrg.Name)

	otherSubAwards, err := s.db.ListSubAwardsByFundingRecord(otherState.ID)
	require.NoError(err)
	require.Empty(otherSubAwards)

	// a second pass sees the stored sub-award id and inserts nothing
	rerunTracker := s.tracker(SourceTagUSASpending)
	require.NoError(pipeline.IngestUSASpendingSub(context.Background(), rerunTracker, "CA", "", ""))

	subAwards, err = s.db.ListSubAwardsByFundingRecord(record.ID)
	require.NoError(err)
	require.Len(subAwards, 1)
}

func (s *PipelineTestSuite) TestPurgeAllCounts() {
	require := s.Require()

	org := s.mustOrg("Purge Target", "TX")
	record := models.FundingRecord{
		OrganizationID: org.ID,
		VerticalID:     s.mustVertical("Other").ID,
		Amount:         decimal.NewFromInt(1),
		FiscalYear:     2024,
		Source:         SourceTagNASBO,
	}
	require.NoError(s.db.CreateFundingRecord(&record))
	require.NoError(s.db.CreateSubAward(&models.SubAward{
		FundingRecordID: record.ID,
		RecipientOrgID:  org.ID,
		SubawardID:      "SUB-PURGE",
		Amount:          decimal.NewFromInt(1),
	}))

	counts, err := s.db.PurgeAll()
	require.NoError(err)
	require.Equal(int64(1), counts["sub_awards"])
	require.Equal(int64(1), counts["funding_records"])
	require.Equal(int64(1), counts["organizations"])

	_, total, err := s.db.ListFundingRecords(db.FundingRecordFilters{})
	require.NoError(err)
	require.Zero(total)
}

func (s *PipelineTestSuite) mustOrg(name, state string) *models.Organization {
	org, err := s.db.GetOrCreateOrganization(name, state)
	s.Require().NoError(err)
	return org
}

func (s *PipelineTestSuite) mustVertical(name string) *models.Vertical {
	vertical, err := s.db.GetOrCreateVertical(name)
	s.Require().NoError(err)
	return vertical
}
