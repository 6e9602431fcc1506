package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"roofpro-hub/internal/api/complianceapi"
)

type ComplianceHTTPHandler struct {
	complianceClient *complianceapi.Client
}

func NewComplianceHTTPHandler(complianceClient *complianceapi.Client) *ComplianceHTTPHandler {
	return &ComplianceHTTPHandler{
		complianceClient: complianceClient,
	}
}

type ResolveBody struct {
	Note        string `json:"note"`
	ReleaseHold bool   `json:"release_hold"`
}

type ListHoldsQuery struct {
	PageQuery
	UserID    string `form:"user_id"`
	JobNumber string `form:"job_number"`
	Status    string `form:"status"`
}

type ListViolationsQuery struct {
	PageQuery
	UserID   string `form:"user_id"`
	Status   string `form:"status"`
	Severity string `form:"severity"`
}

// --- SOPs ---

func (h *ComplianceHTTPHandler) ListSOPs(c *gin.Context) {
	includeInactive, _ := strconv.ParseBool(c.Query("include_inactive"))

	ctx, cancel := requestContext(c, defaultTimeout)
	defer cancel()

	resp, err := h.complianceClient.ListSOPs(ctx, &complianceapi.ListSOPsRequest{Actor: actor(c), IncludeInactive: includeInactive})
	if handleGRPCError(c, err) {
		return
	}
	c.JSON(http.StatusOK, successResponse("SOPs retrieved successfully", resp.SOPs))
}

func (h *ComplianceHTTPHandler) UpsertSOP(c *gin.Context) {
	var req complianceapi.UpsertSOPRequest
	if !bindJSON(c, &req) {
		return
	}
	req.Actor = actor(c)
	if number := c.Param("number"); number != "" {
		req.Number = number
	}

	ctx, cancel := requestContext(c, defaultTimeout)
	defer cancel()

	resp, err := h.complianceClient.UpsertSOP(ctx, &req)
	if handleGRPCError(c, err) {
		return
	}
	message := "SOP saved successfully"
	if resp.Published {
		message = "SOP published successfully"
	}
	c.JSON(http.StatusOK, successResponse(message, resp))
}

func (h *ComplianceHTTPHandler) AcknowledgeSOP(c *gin.Context) {
	ctx, cancel := requestContext(c, defaultTimeout)
	defer cancel()

	resp, err := h.complianceClient.AcknowledgeSOP(ctx, &complianceapi.AcknowledgeSOPRequest{Actor: actor(c), Number: c.Param("number")})
	if handleGRPCError(c, err) {
		return
	}
	c.JSON(http.StatusOK, successResponse("SOP acknowledged", resp))
}

func (h *ComplianceHTTPHandler) MyGate(c *gin.Context) {
	ctx, cancel := requestContext(c, defaultTimeout)
	defer cancel()

	resp, err := h.complianceClient.GetGateStatus(ctx, &complianceapi.GateStatusRequest{Actor: actor(c)})
	if handleGRPCError(c, err) {
		return
	}
	c.JSON(http.StatusOK, successResponse("SOP gate retrieved successfully", resp))
}

func (h *ComplianceHTTPHandler) UserGate(c *gin.Context) {
	userID, ok := paramUUID(c, "id")
	if !ok {
		return
	}

	ctx, cancel := requestContext(c, defaultTimeout)
	defer cancel()

	resp, err := h.complianceClient.GetGateStatus(ctx, &complianceapi.GateStatusRequest{Actor: actor(c), UserID: &userID})
	if handleGRPCError(c, err) {
		return
	}
	c.JSON(http.StatusOK, successResponse("SOP gate retrieved successfully", resp))
}

// --- Holds ---

func (h *ComplianceHTTPHandler) PlaceHold(c *gin.Context) {
	var req complianceapi.PlaceHoldRequest
	if !bindJSON(c, &req) {
		return
	}
	req.Actor = actor(c)

	ctx, cancel := requestContext(c, defaultTimeout)
	defer cancel()

	resp, err := h.complianceClient.PlaceHold(ctx, &req)
	if handleGRPCError(c, err) {
		return
	}
	c.JSON(http.StatusCreated, successResponse("Compliance hold placed", resp))
}

func (h *ComplianceHTTPHandler) ResolveHold(c *gin.Context) {
	id, ok := paramUUID(c, "id")
	if !ok {
		return
	}
	var body ResolveBody
	if !bindJSON(c, &body) {
		return
	}

	ctx, cancel := requestContext(c, defaultTimeout)
	defer cancel()

	resp, err := h.complianceClient.ResolveHold(ctx, &complianceapi.ResolveHoldRequest{Actor: actor(c), ID: id, Note: body.Note})
	if handleGRPCError(c, err) {
		return
	}
	c.JSON(http.StatusOK, successResponse("Compliance hold resolved", resp))
}

func (h *ComplianceHTTPHandler) ListHolds(c *gin.Context) {
	var query ListHoldsQuery
	if !bindQuery(c, &query) {
		return
	}
	userID, ok := optionalUUID(c, query.UserID, "user_id")
	if !ok {
		return
	}

	ctx, cancel := requestContext(c, defaultTimeout)
	defer cancel()

	resp, err := h.complianceClient.ListHolds(ctx, &complianceapi.ListHoldsRequest{
		Actor:     actor(c),
		UserID:    userID,
		JobNumber: query.JobNumber,
		Status:    query.Status,
		Page:      query.request(),
	})
	if handleGRPCError(c, err) {
		return
	}
	c.JSON(http.StatusOK, successWithMetaResponse("Compliance holds retrieved successfully", resp.Holds, resp.Page))
}

func (h *ComplianceHTTPHandler) CheckHolds(c *gin.Context) {
	userID, ok := optionalUUID(c, c.Query("user_id"), "user_id")
	if !ok {
		return
	}

	ctx, cancel := requestContext(c, defaultTimeout)
	defer cancel()

	resp, err := h.complianceClient.CheckHolds(ctx, &complianceapi.CheckHoldsRequest{
		Actor:     actor(c),
		UserID:    userID,
		JobNumber: c.Query("job_number"),
		Action:    c.Query("action"),
	})
	if handleGRPCError(c, err) {
		return
	}
	c.JSON(http.StatusOK, successResponse("Hold check completed", resp))
}

// --- Violations ---

func (h *ComplianceHTTPHandler) RecordViolation(c *gin.Context) {
	var req complianceapi.RecordViolationRequest
	if !bindJSON(c, &req) {
		return
	}
	req.Actor = actor(c)

	ctx, cancel := requestContext(c, defaultTimeout)
	defer cancel()

	resp, err := h.complianceClient.RecordViolation(ctx, &req)
	if handleGRPCError(c, err) {
		return
	}
	c.JSON(http.StatusCreated, successResponse("Violation recorded", resp))
}

func (h *ComplianceHTTPHandler) ResolveViolation(c *gin.Context) {
	id, ok := paramUUID(c, "id")
	if !ok {
		return
	}
	var body ResolveBody
	if !bindJSON(c, &body) {
		return
	}

	ctx, cancel := requestContext(c, defaultTimeout)
	defer cancel()

	resp, err := h.complianceClient.ResolveViolation(ctx, &complianceapi.ResolveViolationRequest{
		Actor:       actor(c),
		ID:          id,
		ReleaseHold: body.ReleaseHold,
		Note:        body.Note,
	})
	if handleGRPCError(c, err) {
		return
	}
	c.JSON(http.StatusOK, successResponse("Violation resolved", resp))
}

func (h *ComplianceHTTPHandler) ListViolations(c *gin.Context) {
	var query ListViolationsQuery
	if !bindQuery(c, &query) {
		return
	}
	userID, ok := optionalUUID(c, query.UserID, "user_id")
	if !ok {
		return
	}

	ctx, cancel := requestContext(c, defaultTimeout)
	defer cancel()

	resp, err := h.complianceClient.ListViolations(ctx, &complianceapi.ListViolationsRequest{
		Actor:    actor(c),
		UserID:   userID,
		Status:   query.Status,
		Severity: query.Severity,
		Page:     query.request(),
	})
	if handleGRPCError(c, err) {
		return
	}
	c.JSON(http.StatusOK, successWithMetaResponse("Violations retrieved successfully", resp.Violations, resp.Page))
}
