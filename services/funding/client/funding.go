package client

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	fundingapi "github.com/fundtrail/fundtrail/services/funding/api"
	"github.com/labstack/echo/v4"
	"github.com/opengovern/og-util/pkg/httpclient"
)

type FundingServiceClient interface {
	TriggerIngestion(ctx *httpclient.Context, source string, req fundingapi.TriggerIngestionRequest) (*fundingapi.TriggerIngestionResponse, error)
	GetProgress(ctx *httpclient.Context, sessionID string) (*fundingapi.ProgressSession, error)
	ListFundingRecords(ctx *httpclient.Context, states, verticals []string) (*fundingapi.ListFundingRecordsResponse, error)
	GetFundingSummary(ctx *httpclient.Context) (*fundingapi.FundingSummaryResponse, error)
	BulkDelete(ctx *httpclient.Context) (*fundingapi.BulkDeleteResponse, error)
}

type fundingClient struct {
	baseURL string
}

func NewFundingServiceClient(baseURL string) FundingServiceClient {
	return &fundingClient{baseURL: baseURL}
}

func (s *fundingClient) TriggerIngestion(ctx *httpclient.Context, source string, req fundingapi.TriggerIngestionRequest) (*fundingapi.TriggerIngestionResponse, error) {
	u := fmt.Sprintf("%s/api/v1/ingestion/%s", s.baseURL, source)

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	var resp fundingapi.TriggerIngestionResponse
	if statusCode, err := httpclient.DoRequest(ctx.Ctx, http.MethodPost, u, ctx.ToHeaders(), payload, &resp); err != nil {
		if 400 <= statusCode && statusCode < 500 {
			return nil, echo.NewHTTPError(statusCode, err.Error())
		}
		return nil, err
	}
	return &resp, nil
}

func (s *fundingClient) GetProgress(ctx *httpclient.Context, sessionID string) (*fundingapi.ProgressSession, error) {
	u := fmt.Sprintf("%s/api/v1/ingestion/progress/%s", s.baseURL, sessionID)

	var resp fundingapi.ProgressSession
	if statusCode, err := httpclient.DoRequest(ctx.Ctx, http.MethodGet, u, ctx.ToHeaders(), nil, &resp); err != nil {
		if 400 <= statusCode && statusCode < 500 {
			return nil, echo.NewHTTPError(statusCode, err.Error())
		}
		return nil, err
	}
	return &resp, nil
}

func (s *fundingClient) ListFundingRecords(ctx *httpclient.Context, states, verticals []string) (*fundingapi.ListFundingRecordsResponse, error) {
	q := url.Values{}
	for _, state := range states {
		q.Add("states", state)
	}
	for _, vertical := range verticals {
		q.Add("verticals", vertical)
	}

	u := fmt.Sprintf("%s/api/v1/funding-records", s.baseURL)
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	var resp fundingapi.ListFundingRecordsResponse
	if statusCode, err := httpclient.DoRequest(ctx.Ctx, http.MethodGet, u, ctx.ToHeaders(), nil, &resp); err != nil {
		if 400 <= statusCode && statusCode < 500 {
			return nil, echo.NewHTTPError(statusCode, err.Error())
		}
		return nil, err
	}
	return &resp, nil
}

func (s *fundingClient) GetFundingSummary(ctx *httpclient.Context) (*fundingapi.FundingSummaryResponse, error) {
	u := fmt.Sprintf("%s/api/v1/funding-records/summary", s.baseURL)

	var resp fundingapi.FundingSummaryResponse
	if statusCode, err := httpclient.DoRequest(ctx.Ctx, http.MethodGet, u, ctx.ToHeaders(), nil, &resp); err != nil {
		if 400 <= statusCode && statusCode < 500 {
			return nil, echo.NewHTTPError(statusCode, err.Error())
		}
		return nil, err
	}
	return &resp, nil
}

func (s *fundingClient) BulkDelete(ctx *httpclient.Context) (*fundingapi.BulkDeleteResponse, error) {
	u := fmt.Sprintf("%s/api/v1/admin/data", s.baseURL)

	var resp fundingapi.BulkDeleteResponse
	if statusCode, err := httpclient.DoRequest(ctx.Ctx, http.MethodDelete, u, ctx.ToHeaders(), nil, &resp); err != nil {
		if 400 <= statusCode && statusCode < 500 {
			return nil, echo.NewHTTPError(statusCode, err.Error())
		}
		return nil, err
	}
	return &resp, nil
}
