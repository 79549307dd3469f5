package funding

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	authapi "github.com/fundtrail/fundtrail/pkg/auth/api"
	"github.com/fundtrail/fundtrail/pkg/httpserver"
	idocker "github.com/fundtrail/fundtrail/internal/dockertest"
	fundingapi "github.com/fundtrail/fundtrail/services/funding/api"
	"github.com/fundtrail/fundtrail/services/funding/db"
	"github.com/fundtrail/fundtrail/services/funding/db/models"
	"github.com/fundtrail/fundtrail/services/funding/ingestion"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
)

func TestHttpHandler(t *testing.T) {
	suite.Run(t, &HttpHandlerTestSuite{})
}

type HttpHandlerTestSuite struct {
	suite.Suite

	db     db.Database
	router *echo.Echo
}

func (s *HttpHandlerTestSuite) SetupSuite() {
	require := s.Require()

	orm := idocker.StartupPostgreSQL(s.T())
	s.db = db.Database{Orm: orm}
	require.NoError(s.db.Initialize())

	handler := NewHttpHandler(zap.NewNop(), s.db, nil, nil, nil, nil)
	s.router = httpserver.Register(zap.NewNop(), handler)
}

func (s *HttpHandlerTestSuite) TearDownTest() {
	_, err := s.db.PurgeAll()
	s.Require().NoError(err)
}

func (s *HttpHandlerTestSuite) seedRecord() models.FundingRecord {
	require := s.Require()

	org, err := s.db.GetOrCreateOrganization("Seeded Org", "CA")
	require.NoError(err)
	vertical, err := s.db.GetOrCreateVertical("Public Health")
	require.NoError(err)

	record := models.FundingRecord{
		OrganizationID: org.ID,
		VerticalID:     vertical.ID,
		Amount:         decimal.NewFromInt(75000),
		FiscalYear:     2024,
		Source:         "USAspending.gov",
	}
	require.NoError(s.db.CreateFundingRecord(&record))
	return record
}

func (s *HttpHandlerTestSuite) doRequest(method, target string, role authapi.Role) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	req.Header.Set(httpserver.XFundTrailUserRoleHeader, string(role))
	req.Header.Set(httpserver.XFundTrailUserIDHeader, "test-user")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

// routerWith builds a router around a fresh handler so trigger tests can
// swap in their own job producer.
func (s *HttpHandlerTestSuite) routerWith(q JobsProducer) *echo.Echo {
	return httpserver.Register(zap.NewNop(), NewHttpHandler(zap.NewNop(), s.db, q, nil, nil, nil))
}

func doJSONRequest(router *echo.Echo, method, target string, role authapi.Role, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	_ = json.NewEncoder(&buf).Encode(body)
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set(httpserver.XFundTrailUserRoleHeader, string(role))
	req.Header.Set(httpserver.XFundTrailUserIDHeader, "test-user")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func (s *HttpHandlerTestSuite) TestTriggerIngestionEnqueuesDistinctMessages() {
	require := s.Require()

	producer := &captureProducer{}
	router := s.routerWith(producer)

	body := fundingapi.TriggerIngestionRequest{State: "CA", SessionID: "sess-retrigger"}
	rec := doJSONRequest(router, http.MethodPost, "/api/v1/ingestion/nasbo", authapi.EditorRole, body)
	require.Equal(http.StatusOK, rec.Code)

	// re-triggering the same session must not be dropped by queue dedup
	rec = doJSONRequest(router, http.MethodPost, "/api/v1/ingestion/nasbo", authapi.EditorRole, body)
	require.Equal(http.StatusOK, rec.Code)

	require.Equal(2, producer.calls())
	require.Equal(ingestion.JobsQueueTopic, producer.topics[0])
	require.NotEqual(producer.ids[0], producer.ids[1])

	var job ingestion.Job
	require.NoError(json.Unmarshal(producer.payloads[0], &job))
	require.Equal(ingestion.SourceNASBO, job.Source)
	require.Equal("CA", job.State)
	require.Equal("sess-retrigger", job.SessionID)

	session, err := s.db.GetProgressSession("sess-retrigger")
	require.NoError(err)
	require.NotNil(session)
	require.Equal(models.FetchStatusRunning, session.Status)
	require.Equal("queued", session.Message)
}

func (s *HttpHandlerTestSuite) TestTriggerIngestionMarksSessionFailedOnEnqueueError() {
	require := s.Require()

	producer := &captureProducer{err: errors.New("nats: no response from stream")}
	router := s.routerWith(producer)

	body := fundingapi.TriggerIngestionRequest{State: "CA", SessionID: "sess-enqueue-fail"}
	rec := doJSONRequest(router, http.MethodPost, "/api/v1/ingestion/grantsgov", authapi.EditorRole, body)
	require.Equal(http.StatusInternalServerError, rec.Code)

	// the queued snapshot must not stay RUNNING when nothing was published
	session, err := s.db.GetProgressSession("sess-enqueue-fail")
	require.NoError(err)
	require.NotNil(session)
	require.Equal(models.FetchStatusFailed, session.Status)
	require.Equal("failed to enqueue job", session.Message)
}

func (s *HttpHandlerTestSuite) TestBulkDeleteRequiresAdminRole() {
	require := s.Require()

	s.seedRecord()

	rec := s.doRequest(http.MethodDelete, "/api/v1/admin/data", authapi.ViewerRole)
	require.Equal(http.StatusForbidden, rec.Code)

	rec = s.doRequest(http.MethodDelete, "/api/v1/admin/data", authapi.EditorRole)
	require.Equal(http.StatusForbidden, rec.Code)

	// denied calls leave the data untouched
	_, total, err := s.db.ListFundingRecords(db.FundingRecordFilters{})
	require.NoError(err)
	require.Equal(int64(1), total)
}

func (s *HttpHandlerTestSuite) TestBulkDeleteAsAdminReturnsCounts() {
	require := s.Require()

	s.seedRecord()

	rec := s.doRequest(http.MethodDelete, "/api/v1/admin/data", authapi.AdminRole)
	require.Equal(http.StatusOK, rec.Code)

	var resp fundingapi.BulkDeleteResponse
	require.NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(int64(1), resp.DeletedCounts["funding_records"])
	require.Equal(int64(1), resp.DeletedCounts["organizations"])

	_, total, err := s.db.ListFundingRecords(db.FundingRecordFilters{})
	require.NoError(err)
	require.Zero(total)
}

func (s *HttpHandlerTestSuite) TestListFundingRecordsFilters() {
	require := s.Require()

	s.seedRecord()

	rec := s.doRequest(http.MethodGet, "/api/v1/funding-records?states=CA&verticals=Public+Health", authapi.ViewerRole)
	require.Equal(http.StatusOK, rec.Code)

	var resp fundingapi.ListFundingRecordsResponse
	require.NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(int64(1), resp.TotalCount)
	require.Len(resp.Records, 1)
	require.Equal("Seeded Org", resp.Records[0].Organization.Name)

	rec = s.doRequest(http.MethodGet, "/api/v1/funding-records?states=NY", authapi.ViewerRole)
	require.Equal(http.StatusOK, rec.Code)

	resp = fundingapi.ListFundingRecordsResponse{}
	require.NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Zero(resp.TotalCount)
}

func (s *HttpHandlerTestSuite) TestMissingRoleHeaderDefaultsToViewer() {
	req := httptest.NewRequest(http.MethodDelete, "/api/v1/admin/data", nil)
	req.Header.Set(httpserver.XFundTrailUserIDHeader, "test-user")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	s.Require().Equal(http.StatusForbidden, rec.Code)
}
