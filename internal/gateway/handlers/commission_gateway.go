package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"roofpro-hub/internal/api/commissionsapi"
	"roofpro-hub/internal/commission"
)

const dateLayout = "2006-01-02"

type CommissionHTTPHandler struct {
	commissionClient *commissionsapi.Client
}

func NewCommissionHTTPHandler(commissionClient *commissionsapi.Client) *CommissionHTTPHandler {
	return &CommissionHTTPHandler{
		commissionClient: commissionClient,
	}
}

type DocumentBody struct {
	RepID *uuid.UUID `json:"rep_id,omitempty"`
	commissionsapi.DocumentInput
}

type ReviewDocumentBody struct {
	Approve bool   `json:"approve"`
	Notes   string `json:"notes"`
}

type TransitionBody struct {
	ToStatus string `json:"to_status" binding:"required"`
	Note     string `json:"note"`
}

type PayBody struct {
	PaymentReference string `json:"payment_reference"`
	Note             string `json:"note"`
}

type AssignTierBody struct {
	TierID *uuid.UUID `json:"tier_id"`
}

type CreateDrawBody struct {
	RepID    uuid.UUID       `json:"rep_id" binding:"required"`
	Amount   decimal.Decimal `json:"amount"`
	Reason   string          `json:"reason"`
	IssuedAt *time.Time      `json:"issued_at,omitempty"`
}

type ListDocumentsQuery struct {
	PageQuery
	RepID  string `form:"rep_id"`
	Status string `form:"status"`
}

type ListSubmissionsQuery struct {
	PageQuery
	RepID  string `form:"rep_id"`
	Status string `form:"status"`
	From   string `form:"from"`
	To     string `form:"to"`
}

type ExportQuery struct {
	From   string `form:"from" binding:"required"`
	To     string `form:"to" binding:"required"`
	Status string `form:"status"`
	Format string `form:"format,default=csv"`
}

// parseDate reads a YYYY-MM-DD query value. end moves the result to the last
// instant of that day.
func parseDate(c *gin.Context, raw, name string, end bool) (*time.Time, bool) {
	if raw == "" {
		return nil, true
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		badRequest(c, fmt.Sprintf("Invalid %s, expected %s", name, dateLayout))
		return nil, false
	}
	if end {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, true
}

// --- Documents ---

func (h *CommissionHTTPHandler) PreviewDocument(c *gin.Context) {
	var body DocumentBody
	if !bindJSON(c, &body) {
		return
	}

	ctx, cancel := requestContext(c, defaultTimeout)
	defer cancel()

	resp, err := h.commissionClient.PreviewDocument(ctx, &commissionsapi.PreviewDocumentRequest{
		Actor: actor(c),
		RepID: body.RepID,
		Input: body.DocumentInput,
	})
	if handleGRPCError(c, err) {
		return
	}
	c.JSON(http.StatusOK, successResponse("Commission calculated successfully", resp))
}

func (h *CommissionHTTPHandler) CreateDocument(c *gin.Context) {
	var body DocumentBody
	if !bindJSON(c, &body) {
		return
	}

	ctx, cancel := requestContext(c, defaultTimeout)
	defer cancel()

	resp, err := h.commissionClient.CreateDocument(ctx, &commissionsapi.CreateDocumentRequest{
		Actor: actor(c),
		RepID: body.RepID,
		Input: body.DocumentInput,
	})
	if handleGRPCError(c, err) {
		return
	}
	c.JSON(http.StatusCreated, successResponse("Commission document created successfully", resp))
}

func (h *CommissionHTTPHandler) UpdateDocument(c *gin.Context) {
	id, ok := paramUUID(c, "id")
	if !ok {
		return
	}
	var body DocumentBody
	if !bindJSON(c, &body) {
		return
	}

	ctx, cancel := requestContext(c, defaultTimeout)
	defer cancel()

	resp, err := h.commissionClient.UpdateDocument(ctx, &commissionsapi.UpdateDocumentRequest{
		Actor: actor(c),
		ID:    id,
		Input: body.DocumentInput,
	})
	if handleGRPCError(c, err) {
		return
	}
	c.JSON(http.StatusOK, successResponse("Commission document updated successfully", resp))
}

func (h *CommissionHTTPHandler) SubmitDocument(c *gin.Context) {
	id, ok := paramUUID(c, "id")
	if !ok {
		return
	}

	ctx, cancel := requestContext(c, defaultTimeout)
	defer cancel()

	resp, err := h.commissionClient.SubmitDocument(ctx, &commissionsapi.DocumentIDRequest{Actor: actor(c), ID: id})
	if handleGRPCError(c, err) {
		return
	}
	c.JSON(http.StatusOK, successResponse("Commission document submitted for review", resp))
}

func (h *CommissionHTTPHandler) ReviewDocument(c *gin.Context) {
	id, ok := paramUUID(c, "id")
	if !ok {
		return
	}
	var body ReviewDocumentBody
	if !bindJSON(c, &body) {
		return
	}

	ctx, cancel := requestContext(c, defaultTimeout)
	defer cancel()

	resp, err := h.commissionClient.ReviewDocument(ctx, &commissionsapi.ReviewDocumentRequest{
		Actor:   actor(c),
		ID:      id,
		Approve: body.Approve,
		Notes:   body.Notes,
	})
	if handleGRPCError(c, err) {
		return
	}
	c.JSON(http.StatusOK, successResponse("Commission document reviewed", resp))
}

func (h *CommissionHTTPHandler) GetDocument(c *gin.Context) {
	id, ok := paramUUID(c, "id")
	if !ok {
		return
	}

	ctx, cancel := requestContext(c, defaultTimeout)
	defer cancel()

	resp, err := h.commissionClient.GetDocument(ctx, &commissionsapi.DocumentIDRequest{Actor: actor(c), ID: id})
	if handleGRPCError(c, err) {
		return
	}
	c.JSON(http.StatusOK, successResponse("Commission document retrieved successfully", resp))
}

func (h *CommissionHTTPHandler) ListDocuments(c *gin.Context) {
	var query ListDocumentsQuery
	if !bindQuery(c, &query) {
		return
	}
	repID, ok := optionalUUID(c, query.RepID, "rep_id")
	if !ok {
		return
	}

	ctx, cancel := requestContext(c, defaultTimeout)
	defer cancel()

	resp, err := h.commissionClient.ListDocuments(ctx, &commissionsapi.ListDocumentsRequest{
		Actor:  actor(c),
		RepID:  repID,
		Status: query.Status,
		Page:   query.request(),
	})
	if handleGRPCError(c, err) {
		return
	}
	c.JSON(http.StatusOK, successWithMetaResponse("Commission documents retrieved successfully", resp.Documents, resp.Page))
}

// --- Submissions ---

func (h *CommissionHTTPHandler) CreateSubmission(c *gin.Context) {
	var req commissionsapi.CreateSubmissionRequest
	if !bindJSON(c, &req) {
		return
	}
	req.Actor = actor(c)

	ctx, cancel := requestContext(c, defaultTimeout)
	defer cancel()

	resp, err := h.commissionClient.CreateSubmission(ctx, &req)
	if handleGRPCError(c, err) {
		return
	}
	c.JSON(http.StatusCreated, successResponse("Commission submission created successfully", resp))
}

func (h *CommissionHTTPHandler) GetSubmission(c *gin.Context) {
	id, ok := paramUUID(c, "id")
	if !ok {
		return
	}

	ctx, cancel := requestContext(c, defaultTimeout)
	defer cancel()

	resp, err := h.commissionClient.GetSubmission(ctx, &commissionsapi.SubmissionIDRequest{Actor: actor(c), ID: id})
	if handleGRPCError(c, err) {
		return
	}
	c.JSON(http.StatusOK, successResponse("Commission submission retrieved successfully", resp))
}

func (h *CommissionHTTPHandler) ListSubmissions(c *gin.Context) {
	var query ListSubmissionsQuery
	if !bindQuery(c, &query) {
		return
	}
	repID, ok := optionalUUID(c, query.RepID, "rep_id")
	if !ok {
		return
	}
	from, ok := parseDate(c, query.From, "from", false)
	if !ok {
		return
	}
	to, ok := parseDate(c, query.To, "to", true)
	if !ok {
		return
	}

	ctx, cancel := requestContext(c, defaultTimeout)
	defer cancel()

	resp, err := h.commissionClient.ListSubmissions(ctx, &commissionsapi.ListSubmissionsRequest{
		Actor:  actor(c),
		RepID:  repID,
		Status: query.Status,
		From:   from,
		To:     to,
		Page:   query.request(),
	})
	if handleGRPCError(c, err) {
		return
	}
	c.JSON(http.StatusOK, successWithMetaResponse("Commission submissions retrieved successfully", resp.Submissions, resp.Page))
}

func (h *CommissionHTTPHandler) TransitionSubmission(c *gin.Context) {
	id, ok := paramUUID(c, "id")
	if !ok {
		return
	}
	var body TransitionBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "Invalid request format: "+err.Error())
		return
	}

	ctx, cancel := requestContext(c, defaultTimeout)
	defer cancel()

	resp, err := h.commissionClient.TransitionSubmission(ctx, &commissionsapi.TransitionSubmissionRequest{
		Actor:    actor(c),
		ID:       id,
		ToStatus: commission.SubmissionStatus(body.ToStatus),
		Note:     body.Note,
	})
	if handleGRPCError(c, err) {
		return
	}
	c.JSON(http.StatusOK, successResponse("Commission submission status updated", resp))
}

func (h *CommissionHTTPHandler) PaySubmission(c *gin.Context) {
	id, ok := paramUUID(c, "id")
	if !ok {
		return
	}
	var body PayBody
	if !bindJSON(c, &body) {
		return
	}

	ctx, cancel := requestContext(c, defaultTimeout)
	defer cancel()

	resp, err := h.commissionClient.PaySubmission(ctx, &commissionsapi.PaySubmissionRequest{
		Actor:            actor(c),
		ID:               id,
		PaymentReference: body.PaymentReference,
		Note:             body.Note,
	})
	if handleGRPCError(c, err) {
		return
	}
	c.JSON(http.StatusOK, successResponse("Commission submission marked paid", resp))
}

// ListStatusEvents serves the history of a document or a submission; both
// routes share the id parameter.
func (h *CommissionHTTPHandler) ListStatusEvents(c *gin.Context) {
	id, ok := paramUUID(c, "id")
	if !ok {
		return
	}

	ctx, cancel := requestContext(c, defaultTimeout)
	defer cancel()

	resp, err := h.commissionClient.ListStatusEvents(ctx, &commissionsapi.ListStatusEventsRequest{Actor: actor(c), EntityID: id})
	if handleGRPCError(c, err) {
		return
	}
	c.JSON(http.StatusOK, successResponse("Status history retrieved successfully", resp.Events))
}

// --- Tiers ---

func (h *CommissionHTTPHandler) CreateTier(c *gin.Context) {
	var input commissionsapi.TierInput
	if !bindJSON(c, &input) {
		return
	}

	ctx, cancel := requestContext(c, defaultTimeout)
	defer cancel()

	resp, err := h.commissionClient.CreateTier(ctx, &commissionsapi.CreateTierRequest{Actor: actor(c), Input: input})
	if handleGRPCError(c, err) {
		return
	}
	c.JSON(http.StatusCreated, successResponse("Commission tier created successfully", resp))
}

func (h *CommissionHTTPHandler) UpdateTier(c *gin.Context) {
	id, ok := paramUUID(c, "id")
	if !ok {
		return
	}
	var input commissionsapi.TierInput
	if !bindJSON(c, &input) {
		return
	}

	ctx, cancel := requestContext(c, defaultTimeout)
	defer cancel()

	resp, err := h.commissionClient.UpdateTier(ctx, &commissionsapi.UpdateTierRequest{Actor: actor(c), ID: id, Input: input})
	if handleGRPCError(c, err) {
		return
	}
	c.JSON(http.StatusOK, successResponse("Commission tier updated successfully", resp))
}

func (h *CommissionHTTPHandler) ListTiers(c *gin.Context) {
	includeInactive, _ := strconv.ParseBool(c.Query("include_inactive"))

	ctx, cancel := requestContext(c, defaultTimeout)
	defer cancel()

	resp, err := h.commissionClient.ListTiers(ctx, &commissionsapi.ListTiersRequest{Actor: actor(c), IncludeInactive: includeInactive})
	if handleGRPCError(c, err) {
		return
	}
	c.JSON(http.StatusOK, successResponse("Commission tiers retrieved successfully", resp.Tiers))
}

func (h *CommissionHTTPHandler) AssignTier(c *gin.Context) {
	userID, ok := paramUUID(c, "id")
	if !ok {
		return
	}
	var body AssignTierBody
	if !bindJSON(c, &body) {
		return
	}

	ctx, cancel := requestContext(c, defaultTimeout)
	defer cancel()

	resp, err := h.commissionClient.AssignTier(ctx, &commissionsapi.AssignTierRequest{Actor: actor(c), UserID: userID, TierID: body.TierID})
	if handleGRPCError(c, err) {
		return
	}
	c.JSON(http.StatusOK, successResponse("Commission tier assigned successfully", resp))
}

// --- Draws ---

func (h *CommissionHTTPHandler) CreateDraw(c *gin.Context) {
	var body CreateDrawBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "Invalid request format: "+err.Error())
		return
	}

	ctx, cancel := requestContext(c, defaultTimeout)
	defer cancel()

	resp, err := h.commissionClient.CreateDraw(ctx, &commissionsapi.CreateDrawRequest{
		Actor:    actor(c),
		RepID:    body.RepID,
		Amount:   body.Amount,
		Reason:   body.Reason,
		IssuedAt: body.IssuedAt,
	})
	if handleGRPCError(c, err) {
		return
	}
	c.JSON(http.StatusCreated, successResponse("Draw issued successfully", resp))
}

func (h *CommissionHTTPHandler) ListDraws(c *gin.Context) {
	repID, ok := optionalUUID(c, c.Query("rep_id"), "rep_id")
	if !ok {
		return
	}

	ctx, cancel := requestContext(c, defaultTimeout)
	defer cancel()

	resp, err := h.commissionClient.ListDraws(ctx, &commissionsapi.ListDrawsRequest{
		Actor:  actor(c),
		RepID:  repID,
		Status: c.Query("status"),
	})
	if handleGRPCError(c, err) {
		return
	}
	c.JSON(http.StatusOK, successWithMetaResponse("Draws retrieved successfully", resp.Draws, gin.H{
		"outstanding_balance": resp.OutstandingBalance,
	}))
}

func (h *CommissionHTTPHandler) GetDrawBalance(c *gin.Context) {
	repID, ok := paramUUID(c, "rep_id")
	if !ok {
		return
	}

	ctx, cancel := requestContext(c, defaultTimeout)
	defer cancel()

	resp, err := h.commissionClient.GetDrawBalance(ctx, &commissionsapi.DrawBalanceRequest{Actor: actor(c), RepID: repID})
	if handleGRPCError(c, err) {
		return
	}
	c.JSON(http.StatusOK, successResponse("Draw balance retrieved successfully", resp))
}

// --- Reports ---

// ExportSubmissions streams the generated CSV or XLSX file as an attachment.
func (h *CommissionHTTPHandler) ExportSubmissions(c *gin.Context) {
	var query ExportQuery
	if !bindQuery(c, &query) {
		return
	}
	from, ok := parseDate(c, query.From, "from", false)
	if !ok {
		return
	}
	to, ok := parseDate(c, query.To, "to", true)
	if !ok {
		return
	}

	ctx, cancel := requestContext(c, longTimeout)
	defer cancel()

	resp, err := h.commissionClient.ExportSubmissions(ctx, &commissionsapi.ExportSubmissionsRequest{
		Actor:  actor(c),
		From:   *from,
		To:     *to,
		Status: query.Status,
		Format: query.Format,
	})
	if handleGRPCError(c, err) {
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", resp.Filename))
	c.Header("X-Export-Rows", strconv.Itoa(resp.Rows))
	c.Data(http.StatusOK, resp.ContentType, resp.Content)
}

func (h *CommissionHTTPHandler) GetDashboard(c *gin.Context) {
	repID, ok := optionalUUID(c, c.Query("rep_id"), "rep_id")
	if !ok {
		return
	}

	ctx, cancel := requestContext(c, defaultTimeout)
	defer cancel()

	resp, err := h.commissionClient.GetDashboard(ctx, &commissionsapi.DashboardRequest{Actor: actor(c), RepID: repID})
	if handleGRPCError(c, err) {
		return
	}
	c.JSON(http.StatusOK, successResponse("Dashboard retrieved successfully", resp))
}
