// Package integrationsapi is the contract of the integrations service: the
// CRM job mirror, job-site weather and outbound email.
package integrationsapi

import (
	"context"
	"time"

	"google.golang.org/grpc"

	"roofpro-hub/internal/api"
	"roofpro-hub/internal/database/models"
	"roofpro-hub/internal/rpc"
	"roofpro-hub/internal/weather"
)

const ServiceName = "roofpro.integrations.v1.IntegrationsService"

const (
	MethodListCRMJobs   = "ListCRMJobs"
	MethodGetCRMJob     = "GetCRMJob"
	MethodSyncCRMNow    = "SyncCRMNow"
	MethodGetForecast   = "GetForecast"
	MethodSendEmail     = "SendEmail"
	MethodListEmailLogs = "ListEmailLogs"
)

// ListCRMJobsRequest lists mirrored CRM jobs. Reps without
// commissions.view_all only see jobs where they are the sales rep.
type ListCRMJobsRequest struct {
	Actor  api.Actor       `json:"actor"`
	Status string          `json:"status,omitempty"`
	Search string          `json:"search,omitempty"`
	Page   api.PageRequest `json:"page"`
}

type ListCRMJobsResponse struct {
	Jobs []models.CRMJob  `json:"jobs"`
	Page api.PageResponse `json:"page"`
}

type GetCRMJobRequest struct {
	Actor     api.Actor `json:"actor"`
	JobNumber string    `json:"job_number"`
}

type CRMJobResponse struct {
	Job models.CRMJob `json:"job"`
}

type SyncCRMRequest struct {
	Actor api.Actor `json:"actor"`
	// Full ignores the last-modified watermark and re-reads every job.
	Full bool `json:"full,omitempty"`
}

// SyncResult reports one CRM sync. Partial is set when the CRM failed
// before the last page; Error carries that failure.
type SyncResult struct {
	Since      *time.Time `json:"since,omitempty"`
	Full       bool       `json:"full"`
	Fetched    int        `json:"fetched"`
	Upserted   int        `json:"upserted"`
	Partial    bool       `json:"partial"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt time.Time  `json:"finished_at"`
}

type ForecastRequest struct {
	Actor     api.Actor `json:"actor"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
}

type ForecastResponse struct {
	Forecast weather.Forecast `json:"forecast"`
	Cached   bool             `json:"cached"`
}

type SendEmailRequest struct {
	Actor   api.Actor `json:"actor"`
	To      []string  `json:"to"`
	Subject string    `json:"subject"`
	Body    string    `json:"body"`
}

type SendEmailResponse struct {
	JobID  string `json:"job_id"`
	Queued bool   `json:"queued"`
}

type ListEmailLogsRequest struct {
	Actor    api.Actor       `json:"actor"`
	Status   string          `json:"status,omitempty"`
	Template string          `json:"template,omitempty"`
	Page     api.PageRequest `json:"page"`
}

type ListEmailLogsResponse struct {
	Logs []models.EmailLog `json:"logs"`
	Page api.PageResponse  `json:"page"`
}

type Client struct {
	conn grpc.ClientConnInterface
}

func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

func call[Req any, Resp any](ctx context.Context, c *Client, method string, req *Req) (*Resp, error) {
	return rpc.Call[Req, Resp](ctx, c.conn, ServiceName, method, req)
}

func (c *Client) ListCRMJobs(ctx context.Context, req *ListCRMJobsRequest) (*ListCRMJobsResponse, error) {
	return call[ListCRMJobsRequest, ListCRMJobsResponse](ctx, c, MethodListCRMJobs, req)
}

func (c *Client) GetCRMJob(ctx context.Context, req *GetCRMJobRequest) (*CRMJobResponse, error) {
	return call[GetCRMJobRequest, CRMJobResponse](ctx, c, MethodGetCRMJob, req)
}

func (c *Client) SyncCRMNow(ctx context.Context, req *SyncCRMRequest) (*SyncResult, error) {
	return call[SyncCRMRequest, SyncResult](ctx, c, MethodSyncCRMNow, req)
}

func (c *Client) GetForecast(ctx context.Context, req *ForecastRequest) (*ForecastResponse, error) {
	return call[ForecastRequest, ForecastResponse](ctx, c, MethodGetForecast, req)
}

func (c *Client) SendEmail(ctx context.Context, req *SendEmailRequest) (*SendEmailResponse, error) {
	return call[SendEmailRequest, SendEmailResponse](ctx, c, MethodSendEmail, req)
}

func (c *Client) ListEmailLogs(ctx context.Context, req *ListEmailLogsRequest) (*ListEmailLogsResponse, error) {
	return call[ListEmailLogsRequest, ListEmailLogsResponse](ctx, c, MethodListEmailLogs, req)
}
