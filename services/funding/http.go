package funding

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/fundtrail/fundtrail/pkg/auth/api"
	"github.com/fundtrail/fundtrail/pkg/httpserver"
	"github.com/fundtrail/fundtrail/pkg/sources"
	fundingapi "github.com/fundtrail/fundtrail/services/funding/api"
	"github.com/fundtrail/fundtrail/services/funding/db"
	"github.com/fundtrail/fundtrail/services/funding/db/models"
	"github.com/fundtrail/fundtrail/services/funding/discovery"
	"github.com/fundtrail/fundtrail/services/funding/ingestion"
	"github.com/google/uuid"
	"github.com/jackc/pgtype"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// JobsProducer publishes ingestion jobs; satisfied by *jq.JobQueue.
type JobsProducer interface {
	Produce(ctx context.Context, topic string, data []byte, id string) (*uint64, error)
}

type HttpHandler struct {
	logger       *zap.Logger
	db           db.Database
	jq           JobsProducer
	orchestrator *discovery.Orchestrator
	nih          *sources.NIHReporterClient
	nsf          *sources.NSFClient
}

func NewHttpHandler(logger *zap.Logger, database db.Database, q JobsProducer,
	orchestrator *discovery.Orchestrator, nih *sources.NIHReporterClient, nsf *sources.NSFClient) *HttpHandler {
	return &HttpHandler{
		logger:       logger,
		db:           database,
		jq:           q,
		orchestrator: orchestrator,
		nih:          nih,
		nsf:          nsf,
	}
}

func (h *HttpHandler) Register(e *echo.Echo) {
	v1 := e.Group("/api/v1")

	v1.POST("/ingestion/usaspending/prime", httpserver.AuthorizeHandler(h.TriggerUSASpendingPrime, api.EditorRole))
	v1.POST("/ingestion/usaspending/sub", httpserver.AuthorizeHandler(h.TriggerUSASpendingSub, api.EditorRole))
	v1.POST("/ingestion/grantsgov", httpserver.AuthorizeHandler(h.TriggerGrantsGov, api.EditorRole))
	v1.POST("/ingestion/nasbo", httpserver.AuthorizeHandler(h.TriggerNASBO, api.EditorRole))
	v1.GET("/ingestion/progress", httpserver.AuthorizeHandler(h.ListProgress, api.ViewerRole))
	v1.GET("/ingestion/progress/:session_id", httpserver.AuthorizeHandler(h.GetProgress, api.ViewerRole))
	v1.DELETE("/ingestion/progress", httpserver.AuthorizeHandler(h.ClearProgress, api.AdminRole))

	v1.GET("/organizations", httpserver.AuthorizeHandler(h.ListOrganizations, api.ViewerRole))
	v1.GET("/organizations/:id", httpserver.AuthorizeHandler(h.GetOrganization, api.ViewerRole))
	v1.PUT("/organizations/:id/assignment", httpserver.AuthorizeHandler(h.PutRepAssignment, api.EditorRole))
	v1.DELETE("/organizations/:id/assignment", httpserver.AuthorizeHandler(h.DeleteRepAssignment, api.EditorRole))

	v1.GET("/funding-records", httpserver.AuthorizeHandler(h.ListFundingRecords, api.ViewerRole))
	v1.GET("/funding-records/summary", httpserver.AuthorizeHandler(h.FundingSummary, api.ViewerRole))

	v1.POST("/discovery/listings", httpserver.AuthorizeHandler(h.DiscoveryListings, api.ViewerRole))
	v1.POST("/discovery/trail", httpserver.AuthorizeHandler(h.DiscoveryTrail, api.ViewerRole))

	v1.GET("/tracking/nih", httpserver.AuthorizeHandler(h.TrackNIH, api.ViewerRole))
	v1.GET("/tracking/nsf", httpserver.AuthorizeHandler(h.TrackNSF, api.ViewerRole))

	v1.GET("/saved-searches", httpserver.AuthorizeHandler(h.ListSavedSearches, api.ViewerRole))
	v1.POST("/saved-searches", httpserver.AuthorizeHandler(h.CreateSavedSearch, api.ViewerRole))
	v1.DELETE("/saved-searches/:id", httpserver.AuthorizeHandler(h.DeleteSavedSearch, api.ViewerRole))
	v1.GET("/saved-subaward-searches", httpserver.AuthorizeHandler(h.ListSavedSubawardSearches, api.ViewerRole))
	v1.POST("/saved-subaward-searches", httpserver.AuthorizeHandler(h.CreateSavedSubawardSearch, api.ViewerRole))
	v1.DELETE("/saved-subaward-searches/:id", httpserver.AuthorizeHandler(h.DeleteSavedSubawardSearch, api.ViewerRole))

	v1.DELETE("/admin/data", httpserver.AuthorizeHandler(h.BulkDelete, api.AdminRole))
}

func bindValidate(ctx echo.Context, i interface{}) error {
	if err := ctx.Bind(i); err != nil {
		return err
	}

	if err := ctx.Validate(i); err != nil {
		return err
	}

	return nil
}

// --- ingestion triggers

// TriggerUSASpendingPrime godoc
//
//	@Summary	Enqueue a USAspending prime award ingestion job
//	@Security	BearerToken
//	@Tags		ingestion
//	@Accept		json
//	@Produce	json
//	@Param		request	body		api.TriggerIngestionRequest	true	"Request"
//	@Success	200		{object}	api.TriggerIngestionResponse
//	@Router		/api/v1/ingestion/usaspending/prime [post]
func (h *HttpHandler) TriggerUSASpendingPrime(ctx echo.Context) error {
	return h.triggerIngestion(ctx, ingestion.SourceUSASpendingPrime)
}

func (h *HttpHandler) TriggerUSASpendingSub(ctx echo.Context) error {
	return h.triggerIngestion(ctx, ingestion.SourceUSASpendingSub)
}

func (h *HttpHandler) TriggerGrantsGov(ctx echo.Context) error {
	return h.triggerIngestion(ctx, ingestion.SourceGrantsGov)
}

func (h *HttpHandler) TriggerNASBO(ctx echo.Context) error {
	return h.triggerIngestion(ctx, ingestion.SourceNASBO)
}

// triggerIngestion stores a queued progress snapshot so the session is
// pollable immediately, publishes the job and returns. The worker replaces
// the snapshot when it picks the job up.
func (h *HttpHandler) triggerIngestion(ctx echo.Context, source ingestion.SourceKind) error {
	var req fundingapi.TriggerIngestionRequest
	if err := bindValidate(ctx, &req); err != nil {
		return err
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	session := &models.FetchProgressSession{
		SessionID:   sessionID,
		Source:      source.SourceTag(),
		StateFilter: req.State,
		Status:      models.FetchStatusRunning,
		Message:     "queued",
	}
	if err := session.RecentErrors.Set([]string{}); err != nil {
		return err
	}
	if err := h.db.ReplaceProgressSession(session); err != nil {
		h.logger.Error("failed to create progress session", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to create progress session")
	}

	job := ingestion.Job{
		SessionID:  sessionID,
		Source:     source,
		State:      req.State,
		StartDate:  req.StartDate,
		EndDate:    req.EndDate,
		ExecutedAt: time.Now(),
	}
	bytes, err := json.Marshal(job)
	if err != nil {
		return err
	}

	// The timestamp suffix keeps re-triggers of one session distinct within
	// the JetStream dedup window.
	msgID := fmt.Sprintf("job-%s-%d", sessionID, job.ExecutedAt.UnixNano())
	if _, err := h.jq.Produce(ctx.Request().Context(), ingestion.JobsQueueTopic, bytes, msgID); err != nil {
		h.logger.Error("failed to enqueue ingestion job", zap.String("session_id", sessionID), zap.Error(err))

		session.Status = models.FetchStatusFailed
		session.Message = "failed to enqueue job"
		if updateErr := h.db.UpdateProgressSession(session); updateErr != nil {
			h.logger.Error("failed to mark session as failed", zap.String("session_id", sessionID), zap.Error(updateErr))
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to enqueue ingestion job")
	}

	return ctx.JSON(http.StatusOK, fundingapi.TriggerIngestionResponse{SessionID: sessionID})
}

// --- progress

func (h *HttpHandler) GetProgress(ctx echo.Context) error {
	session, err := h.db.GetProgressSession(ctx.Param("session_id"))
	if err != nil {
		return err
	}
	if session == nil {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}

	return ctx.JSON(http.StatusOK, toProgressSessionAPI(session))
}

func (h *HttpHandler) ListProgress(ctx echo.Context) error {
	sessions, err := h.db.ListProgressSessions()
	if err != nil {
		return err
	}

	resp := fundingapi.ListProgressSessionsResponse{Sessions: make([]fundingapi.ProgressSession, 0, len(sessions))}
	for i := range sessions {
		resp.Sessions = append(resp.Sessions, toProgressSessionAPI(&sessions[i]))
	}
	return ctx.JSON(http.StatusOK, resp)
}

func (h *HttpHandler) ClearProgress(ctx echo.Context) error {
	count, err := h.db.ClearFinishedProgressSessions()
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, fundingapi.ClearProgressResponse{DeletedCount: count})
}

func toProgressSessionAPI(session *models.FetchProgressSession) fundingapi.ProgressSession {
	var recentErrors []string
	if session.RecentErrors.Status == pgtype.Present {
		_ = session.RecentErrors.AssignTo(&recentErrors)
	}

	return fundingapi.ProgressSession{
		SessionID:     session.SessionID,
		Source:        session.Source,
		StateFilter:   session.StateFilter,
		Status:        session.Status,
		CurrentPage:   session.CurrentPage,
		TotalPages:    session.TotalPages,
		InsertedCount: session.InsertedCount,
		SkippedCount:  session.SkippedCount,
		Message:       session.Message,
		RecentErrors:  recentErrors,
		UpdatedAt:     session.UpdatedAt,
	}
}

// --- organizations

func (h *HttpHandler) ListOrganizations(ctx echo.Context) error {
	limit, offset := paging(ctx, 100)
	orgs, err := h.db.ListOrganizations(
		ctx.QueryParam("state"),
		ctx.QueryParam("vertical"),
		ctx.QueryParam("search"),
		limit, offset,
	)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, fundingapi.ListOrganizationsResponse{Organizations: orgs})
}

func (h *HttpHandler) GetOrganization(ctx echo.Context) error {
	id, err := pathID(ctx)
	if err != nil {
		return err
	}

	org, err := h.db.GetOrganization(id)
	if err != nil {
		return err
	}
	if org == nil {
		return echo.NewHTTPError(http.StatusNotFound, "organization not found")
	}

	records, err := h.db.ListFundingRecordsByOrganization(org.ID)
	if err != nil {
		return err
	}

	resp := fundingapi.GetOrganizationResponse{
		Organization:   *org,
		FundingRecords: make([]fundingapi.OrganizationFundingRecord, 0, len(records)),
	}
	for _, record := range records {
		subAwards, err := h.db.ListSubAwardsByFundingRecord(record.ID)
		if err != nil {
			return err
		}
		resp.FundingRecords = append(resp.FundingRecords, fundingapi.OrganizationFundingRecord{
			FundingRecord: record,
			SubAwards:     subAwards,
		})
	}

	assignment, err := h.db.GetRepAssignment(org.ID)
	if err != nil {
		return err
	}
	resp.Assignment = assignment

	return ctx.JSON(http.StatusOK, resp)
}

// --- funding records

func (h *HttpHandler) ListFundingRecords(ctx echo.Context) error {
	limit, offset := paging(ctx, 50)
	filters := db.FundingRecordFilters{
		States:    httpserver.QueryArrayParam(ctx, "states"),
		Verticals: httpserver.QueryArrayParam(ctx, "verticals"),
		Sources:   httpserver.QueryArrayParam(ctx, "sources"),
		Limit:     limit,
		Offset:    offset,
	}

	for _, fy := range httpserver.QueryArrayParam(ctx, "fiscalYears") {
		year, err := strconv.Atoi(fy)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid fiscal year: "+fy)
		}
		filters.FiscalYears = append(filters.FiscalYears, year)
	}

	if v := ctx.QueryParam("minAmount"); v != "" {
		amount, err := decimal.NewFromString(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid minAmount")
		}
		filters.MinAmount = &amount
	}
	if v := ctx.QueryParam("maxAmount"); v != "" {
		amount, err := decimal.NewFromString(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid maxAmount")
		}
		filters.MaxAmount = &amount
	}

	records, total, err := h.db.ListFundingRecords(filters)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, fundingapi.ListFundingRecordsResponse{
		Records:    records,
		TotalCount: total,
	})
}

func (h *HttpHandler) FundingSummary(ctx echo.Context) error {
	byVertical, err := h.db.SummarizeByVertical()
	if err != nil {
		return err
	}
	bySource, err := h.db.SummarizeBySource()
	if err != nil {
		return err
	}
	byFiscalYear, err := h.db.SummarizeByFiscalYear()
	if err != nil {
		return err
	}

	return ctx.JSON(http.StatusOK, fundingapi.FundingSummaryResponse{
		ByVertical:   toSummaryEntries(byVertical),
		BySource:     toSummaryEntries(bySource),
		ByFiscalYear: toSummaryEntries(byFiscalYear),
	})
}

func toSummaryEntries(rows []db.SummaryRow) []fundingapi.SummaryEntry {
	entries := make([]fundingapi.SummaryEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, fundingapi.SummaryEntry{
			Name:  row.Name,
			Total: row.Total,
			Count: row.Count,
		})
	}
	return entries
}

// --- discovery

func (h *HttpHandler) DiscoveryListings(ctx echo.Context) error {
	var req fundingapi.ListingSearchRequest
	if err := bindValidate(ctx, &req); err != nil {
		return err
	}

	result, err := h.orchestrator.SearchListings(ctx.Request().Context(), discovery.ListingSearchRequest{
		PublishedFrom: req.PublishedFrom,
		PublishedTo:   req.PublishedTo,
		Verticals:     req.Verticals,
		Prefixes:      req.Prefixes,
	})
	if err != nil {
		h.logger.Error("listing search failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadGateway, "listing search failed")
	}
	return ctx.JSON(http.StatusOK, result)
}

func (h *HttpHandler) DiscoveryTrail(ctx echo.Context) error {
	var req fundingapi.TrailRequest
	if err := bindValidate(ctx, &req); err != nil {
		return err
	}

	trail := h.orchestrator.BuildTrail(ctx.Request().Context(), discovery.TrailRequest{
		ALN:       req.ALN,
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
	})
	return ctx.JSON(http.StatusOK, trail)
}

// --- supplementary trackers

func (h *HttpHandler) TrackNIH(ctx echo.Context) error {
	resp, err := h.nih.SearchProjects(ctx.Request().Context(), sources.NIHProjectSearchRequest{
		SearchText: ctx.QueryParam("keyword"),
		State:      ctx.QueryParam("state"),
	})
	if err != nil {
		h.logger.Error("nih reporter search failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadGateway, "nih reporter search failed")
	}
	return ctx.JSON(http.StatusOK, resp)
}

func (h *HttpHandler) TrackNSF(ctx echo.Context) error {
	awards, err := h.nsf.SearchAwards(ctx.Request().Context(), ctx.QueryParam("keyword"), ctx.QueryParam("aln"), 0)
	if err != nil {
		h.logger.Error("nsf awards search failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadGateway, "nsf awards search failed")
	}
	return ctx.JSON(http.StatusOK, awards)
}

// --- rep assignments

func (h *HttpHandler) PutRepAssignment(ctx echo.Context) error {
	id, err := pathID(ctx)
	if err != nil {
		return err
	}

	var req fundingapi.PutRepAssignmentRequest
	if err := bindValidate(ctx, &req); err != nil {
		return err
	}

	org, err := h.db.GetOrganization(id)
	if err != nil {
		return err
	}
	if org == nil {
		return echo.NewHTTPError(http.StatusNotFound, "organization not found")
	}

	assignment := models.RepAssignment{
		OrganizationID: org.ID,
		UserID:         req.UserID,
		AssignedBy:     httpserver.GetUserID(ctx),
		Notes:          req.Notes,
	}
	if err := h.db.UpsertRepAssignment(&assignment); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, assignment)
}

func (h *HttpHandler) DeleteRepAssignment(ctx echo.Context) error {
	id, err := pathID(ctx)
	if err != nil {
		return err
	}
	if err := h.db.DeleteRepAssignment(id); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

// --- saved searches

func (h *HttpHandler) ListSavedSearches(ctx echo.Context) error {
	searches, err := h.db.ListSavedSearches(httpserver.GetUserID(ctx))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, toSavedSearchesAPI(searches, func(s models.SavedSearch) (uint, string, []byte, time.Time) {
		return s.ID, s.Name, s.Filters.Bytes, s.CreatedAt
	}))
}

func (h *HttpHandler) CreateSavedSearch(ctx echo.Context) error {
	var req fundingapi.CreateSavedSearchRequest
	if err := bindValidate(ctx, &req); err != nil {
		return err
	}

	search := models.SavedSearch{
		UserID: httpserver.GetUserID(ctx),
		Name:   req.Name,
	}
	if err := search.Filters.Set([]byte(req.Filters)); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid filters")
	}
	if err := h.db.CreateSavedSearch(&search); err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, fundingapi.SavedSearch{
		ID:        search.ID,
		Name:      search.Name,
		Filters:   req.Filters,
		CreatedAt: search.CreatedAt,
	})
}

func (h *HttpHandler) DeleteSavedSearch(ctx echo.Context) error {
	id, err := pathID(ctx)
	if err != nil {
		return err
	}
	if err := h.db.DeleteSavedSearch(id, httpserver.GetUserID(ctx)); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (h *HttpHandler) ListSavedSubawardSearches(ctx echo.Context) error {
	searches, err := h.db.ListSavedSubawardSearches(httpserver.GetUserID(ctx))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, toSavedSearchesAPI(searches, func(s models.SavedSubawardSearch) (uint, string, []byte, time.Time) {
		return s.ID, s.Name, s.Filters.Bytes, s.CreatedAt
	}))
}

func (h *HttpHandler) CreateSavedSubawardSearch(ctx echo.Context) error {
	var req fundingapi.CreateSavedSearchRequest
	if err := bindValidate(ctx, &req); err != nil {
		return err
	}

	search := models.SavedSubawardSearch{
		UserID: httpserver.GetUserID(ctx),
		Name:   req.Name,
	}
	if err := search.Filters.Set([]byte(req.Filters)); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid filters")
	}
	if err := h.db.CreateSavedSubawardSearch(&search); err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, fundingapi.SavedSearch{
		ID:        search.ID,
		Name:      search.Name,
		Filters:   req.Filters,
		CreatedAt: search.CreatedAt,
	})
}

func (h *HttpHandler) DeleteSavedSubawardSearch(ctx echo.Context) error {
	id, err := pathID(ctx)
	if err != nil {
		return err
	}
	if err := h.db.DeleteSavedSubawardSearch(id, httpserver.GetUserID(ctx)); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

func toSavedSearchesAPI[T any](searches []T, fields func(T) (uint, string, []byte, time.Time)) fundingapi.ListSavedSearchesResponse {
	resp := fundingapi.ListSavedSearchesResponse{Searches: make([]fundingapi.SavedSearch, 0, len(searches))}
	for _, s := range searches {
		id, name, filters, createdAt := fields(s)
		resp.Searches = append(resp.Searches, fundingapi.SavedSearch{
			ID:        id,
			Name:      name,
			Filters:   filters,
			CreatedAt: createdAt,
		})
	}
	return resp
}

// --- admin

// BulkDelete wipes all aggregated data. The audit row is written first and
// best effort; the deletes run in dependency order without a transaction.
func (h *HttpHandler) BulkDelete(ctx echo.Context) error {
	userID := httpserver.GetUserID(ctx)

	auditLog := models.AdminAuditLog{
		UserID: userID,
		Action: "bulk_delete",
	}
	if err := auditLog.Details.Set(map[string]any{"requestedAt": time.Now()}); err == nil {
		if err := h.db.CreateAuditLog(&auditLog); err != nil {
			h.logger.Warn("failed to write audit log", zap.Error(err))
		}
	}

	counts, err := h.db.PurgeAll()
	if err != nil {
		h.logger.Error("bulk delete failed partway", zap.Any("deleted", counts), zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "bulk delete failed")
	}

	h.logger.Info("bulk delete completed", zap.String("user_id", userID), zap.Any("deleted", counts))
	return ctx.JSON(http.StatusOK, fundingapi.BulkDeleteResponse{DeletedCounts: counts})
}

// --- helpers

func pathID(ctx echo.Context) (uint, error) {
	id, err := strconv.ParseUint(ctx.Param("id"), 10, 64)
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return uint(id), nil
}

func paging(ctx echo.Context, defaultLimit int) (int, int) {
	limit := defaultLimit
	if v, err := strconv.Atoi(ctx.QueryParam("limit")); err == nil && v > 0 {
		limit = v
	}
	offset := 0
	if v, err := strconv.Atoi(ctx.QueryParam("offset")); err == nil && v > 0 {
		offset = v
	}
	return limit, offset
}
