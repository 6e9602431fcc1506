package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"roofpro-hub/internal/api/integrationsapi"
)

type IntegrationsHTTPHandler struct {
	integrationsClient *integrationsapi.Client
}

func NewIntegrationsHTTPHandler(integrationsClient *integrationsapi.Client) *IntegrationsHTTPHandler {
	return &IntegrationsHTTPHandler{
		integrationsClient: integrationsClient,
	}
}

type ListCRMJobsQuery struct {
	PageQuery
	Status string `form:"status"`
	Search string `form:"search"`
}

type ForecastQuery struct {
	Latitude  *float64 `form:"lat" binding:"required"`
	Longitude *float64 `form:"lon" binding:"required"`
}

type SyncBody struct {
	Full bool `json:"full"`
}

type SendEmailBody struct {
	To      []string `json:"to" binding:"required,min=1"`
	Subject string   `json:"subject" binding:"required"`
	Body    string   `json:"body" binding:"required"`
}

type ListEmailLogsQuery struct {
	PageQuery
	Status   string `form:"status"`
	Template string `form:"template"`
}

func (h *IntegrationsHTTPHandler) ListCRMJobs(c *gin.Context) {
	var query ListCRMJobsQuery
	if !bindQuery(c, &query) {
		return
	}

	ctx, cancel := requestContext(c, defaultTimeout)
	defer cancel()

	resp, err := h.integrationsClient.ListCRMJobs(ctx, &integrationsapi.ListCRMJobsRequest{
		Actor:  actor(c),
		Status: query.Status,
		Search: query.Search,
		Page:   query.request(),
	})
	if handleGRPCError(c, err) {
		return
	}
	c.JSON(http.StatusOK, successWithMetaResponse("CRM jobs retrieved successfully", resp.Jobs, resp.Page))
}

func (h *IntegrationsHTTPHandler) GetCRMJob(c *gin.Context) {
	ctx, cancel := requestContext(c, defaultTimeout)
	defer cancel()

	resp, err := h.integrationsClient.GetCRMJob(ctx, &integrationsapi.GetCRMJobRequest{Actor: actor(c), JobNumber: c.Param("job_number")})
	if handleGRPCError(c, err) {
		return
	}
	c.JSON(http.StatusOK, successResponse("CRM job retrieved successfully", resp.Job))
}

func (h *IntegrationsHTTPHandler) SyncCRMNow(c *gin.Context) {
	var body SyncBody
	if !bindJSON(c, &body) {
		return
	}

	ctx, cancel := requestContext(c, longTimeout)
	defer cancel()

	resp, err := h.integrationsClient.SyncCRMNow(ctx, &integrationsapi.SyncCRMRequest{Actor: actor(c), Full: body.Full})
	if handleGRPCError(c, err) {
		return
	}
	c.JSON(http.StatusOK, successResponse("CRM sync completed", resp))
}

func (h *IntegrationsHTTPHandler) GetForecast(c *gin.Context) {
	var query ForecastQuery
	if !bindQuery(c, &query) {
		return
	}

	ctx, cancel := requestContext(c, defaultTimeout)
	defer cancel()

	resp, err := h.integrationsClient.GetForecast(ctx, &integrationsapi.ForecastRequest{
		Actor:     actor(c),
		Latitude:  *query.Latitude,
		Longitude: *query.Longitude,
	})
	if handleGRPCError(c, err) {
		return
	}
	c.JSON(http.StatusOK, successWithMetaResponse("Forecast retrieved successfully", resp.Forecast, gin.H{"cached": resp.Cached}))
}

func (h *IntegrationsHTTPHandler) SendEmail(c *gin.Context) {
	var body SendEmailBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "Invalid request format: "+err.Error())
		return
	}

	ctx, cancel := requestContext(c, defaultTimeout)
	defer cancel()

	resp, err := h.integrationsClient.SendEmail(ctx, &integrationsapi.SendEmailRequest{
		Actor:   actor(c),
		To:      body.To,
		Subject: body.Subject,
		Body:    body.Body,
	})
	if handleGRPCError(c, err) {
		return
	}
	c.JSON(http.StatusAccepted, successResponse("Email queued", resp))
}

func (h *IntegrationsHTTPHandler) ListEmailLogs(c *gin.Context) {
	var query ListEmailLogsQuery
	if !bindQuery(c, &query) {
		return
	}

	ctx, cancel := requestContext(c, defaultTimeout)
	defer cancel()

	resp, err := h.integrationsClient.ListEmailLogs(ctx, &integrationsapi.ListEmailLogsRequest{
		Actor:    actor(c),
		Status:   query.Status,
		Template: query.Template,
		Page:     query.request(),
	})
	if handleGRPCError(c, err) {
		return
	}
	c.JSON(http.StatusOK, successWithMetaResponse("Email logs retrieved successfully", resp.Logs, resp.Page))
}
