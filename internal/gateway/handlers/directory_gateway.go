package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"roofpro-hub/internal/api/directoryapi"
)

type DirectoryHTTPHandler struct {
	directoryClient *directoryapi.Client
}

func NewDirectoryHTTPHandler(directoryClient *directoryapi.Client) *DirectoryHTTPHandler {
	return &DirectoryHTTPHandler{
		directoryClient: directoryClient,
	}
}

type SetStatusBody struct {
	Status string `json:"status" binding:"required"`
	Note   string `json:"note"`
}

// DirectoryListQuery is shared by the subcontractor, vendor and prospect
// lists. Category maps to trade, vendor category or lead source.
type DirectoryListQuery struct {
	PageQuery
	Status        string `form:"status"`
	Category      string `form:"category"`
	Search        string `form:"search"`
	AssignedRepID string `form:"assigned_rep_id"`
}

func (h *DirectoryHTTPHandler) listRequest(c *gin.Context) (*directoryapi.ListRequest, bool) {
	var query DirectoryListQuery
	if !bindQuery(c, &query) {
		return nil, false
	}
	repID, ok := optionalUUID(c, query.AssignedRepID, "assigned_rep_id")
	if !ok {
		return nil, false
	}
	return &directoryapi.ListRequest{
		Actor:         actor(c),
		Status:        query.Status,
		Category:      query.Category,
		Search:        query.Search,
		AssignedRepID: repID,
		Page:          query.request(),
	}, true
}

func (h *DirectoryHTTPHandler) statusRequest(c *gin.Context) (*directoryapi.SetStatusRequest, bool) {
	id, ok := paramUUID(c, "id")
	if !ok {
		return nil, false
	}
	var body SetStatusBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "Invalid request format: "+err.Error())
		return nil, false
	}
	return &directoryapi.SetStatusRequest{Actor: actor(c), ID: id, Status: body.Status, Note: body.Note}, true
}

// --- Subcontractors ---

func (h *DirectoryHTTPHandler) CreateSubcontractor(c *gin.Context) {
	var input directoryapi.SubcontractorInput
	if !bindJSON(c, &input) {
		return
	}

	ctx, cancel := requestContext(c, defaultTimeout)
	defer cancel()

	resp, err := h.directoryClient.CreateSubcontractor(ctx, &directoryapi.CreateSubcontractorRequest{Actor: actor(c), Input: input})
	if handleGRPCError(c, err) {
		return
	}
	c.JSON(http.StatusCreated, successResponse("Subcontractor created successfully", resp))
}

func (h *DirectoryHTTPHandler) UpdateSubcontractor(c *gin.Context) {
	id, ok := paramUUID(c, "id")
	if !ok {
		return
	}
	var input directoryapi.SubcontractorInput
	if !bindJSON(c, &input) {
		return
	}

	ctx, cancel := requestContext(c, defaultTimeout)
	defer cancel()

	resp, err := h.directoryClient.UpdateSubcontractor(ctx, &directoryapi.UpdateSubcontractorRequest{Actor: actor(c), ID: id, Input: input})
	if handleGRPCError(c, err) {
		return
	}
	c.JSON(http.StatusOK, successResponse("Subcontractor updated successfully", resp))
}

func (h *DirectoryHTTPHandler) GetSubcontractor(c *gin.Context) {
	id, ok := paramUUID(c, "id")
	if !ok {
		return
	}

	ctx, cancel := requestContext(c, defaultTimeout)
	defer cancel()

	resp, err := h.directoryClient.GetSubcontractor(ctx, &directoryapi.IDRequest{Actor: actor(c), ID: id})
	if handleGRPCError(c, err) {
		return
	}
	c.JSON(http.StatusOK, successResponse("Subcontractor retrieved successfully", resp))
}

func (h *DirectoryHTTPHandler) ListSubcontractors(c *gin.Context) {
	req, ok := h.listRequest(c)
	if !ok {
		return
	}

	ctx, cancel := requestContext(c, defaultTimeout)
	defer cancel()

	resp, err := h.directoryClient.ListSubcontractors(ctx, req)
	if handleGRPCError(c, err) {
		return
	}
	c.JSON(http.StatusOK, successWithMetaResponse("Subcontractors retrieved successfully", resp.Subcontractors, resp.Page))
}

func (h *DirectoryHTTPHandler) SetSubcontractorStatus(c *gin.Context) {
	req, ok := h.statusRequest(c)
	if !ok {
		return
	}

	ctx, cancel := requestContext(c, defaultTimeout)
	defer cancel()

	resp, err := h.directoryClient.SetSubcontractorStatus(ctx, req)
	if handleGRPCError(c, err) {
		return
	}
	c.JSON(http.StatusOK, successResponse("Subcontractor status updated", resp))
}

func (h *DirectoryHTTPHandler) ListExpiringInsurance(c *gin.Context) {
	days := 30
	if raw := c.Query("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			badRequest(c, "Invalid days")
			return
		}
		days = n
	}

	ctx, cancel := requestContext(c, defaultTimeout)
	defer cancel()

	resp, err := h.directoryClient.ListExpiringInsurance(ctx, &directoryapi.ExpiringInsuranceRequest{Actor: actor(c), Days: days})
	if handleGRPCError(c, err) {
		return
	}
	c.JSON(http.StatusOK, successResponse("Expiring insurance retrieved successfully", resp))
}

// --- Vendors ---

func (h *DirectoryHTTPHandler) CreateVendor(c *gin.Context) {
	var input directoryapi.VendorInput
	if !bindJSON(c, &input) {
		return
	}

	ctx, cancel := requestContext(c, defaultTimeout)
	defer cancel()

	resp, err := h.directoryClient.CreateVendor(ctx, &directoryapi.CreateVendorRequest{Actor: actor(c), Input: input})
	if handleGRPCError(c, err) {
		return
	}
	c.JSON(http.StatusCreated, successResponse("Vendor created successfully", resp))
}

func (h *DirectoryHTTPHandler) UpdateVendor(c *gin.Context) {
	id, ok := paramUUID(c, "id")
	if !ok {
		return
	}
	var input directoryapi.VendorInput
	if !bindJSON(c, &input) {
		return
	}

	ctx, cancel := requestContext(c, defaultTimeout)
	defer cancel()

	resp, err := h.directoryClient.UpdateVendor(ctx, &directoryapi.UpdateVendorRequest{Actor: actor(c), ID: id, Input: input})
	if handleGRPCError(c, err) {
		return
	}
	c.JSON(http.StatusOK, successResponse("Vendor updated successfully", resp))
}

func (h *DirectoryHTTPHandler) GetVendor(c *gin.Context) {
	id, ok := paramUUID(c, "id")
	if !ok {
		return
	}

	ctx, cancel := requestContext(c, defaultTimeout)
	defer cancel()

	resp, err := h.directoryClient.GetVendor(ctx, &directoryapi.IDRequest{Actor: actor(c), ID: id})
	if handleGRPCError(c, err) {
		return
	}
	c.JSON(http.StatusOK, successResponse("Vendor retrieved successfully", resp))
}

func (h *DirectoryHTTPHandler) ListVendors(c *gin.Context) {
	req, ok := h.listRequest(c)
	if !ok {
		return
	}

	ctx, cancel := requestContext(c, defaultTimeout)
	defer cancel()

	resp, err := h.directoryClient.ListVendors(ctx, req)
	if handleGRPCError(c, err) {
		return
	}
	c.JSON(http.StatusOK, successWithMetaResponse("Vendors retrieved successfully", resp.Vendors, resp.Page))
}

func (h *DirectoryHTTPHandler) SetVendorStatus(c *gin.Context) {
	req, ok := h.statusRequest(c)
	if !ok {
		return
	}

	ctx, cancel := requestContext(c, defaultTimeout)
	defer cancel()

	resp, err := h.directoryClient.SetVendorStatus(ctx, req)
	if handleGRPCError(c, err) {
		return
	}
	c.JSON(http.StatusOK, successResponse("Vendor status updated", resp))
}

// --- Prospects ---

func (h *DirectoryHTTPHandler) CreateProspect(c *gin.Context) {
	var input directoryapi.ProspectInput
	if !bindJSON(c, &input) {
		return
	}

	ctx, cancel := requestContext(c, defaultTimeout)
	defer cancel()

	resp, err := h.directoryClient.CreateProspect(ctx, &directoryapi.CreateProspectRequest{Actor: actor(c), Input: input})
	if handleGRPCError(c, err) {
		return
	}
	c.JSON(http.StatusCreated, successResponse("Prospect created successfully", resp))
}

func (h *DirectoryHTTPHandler) UpdateProspect(c *gin.Context) {
	id, ok := paramUUID(c, "id")
	if !ok {
		return
	}
	var input directoryapi.ProspectInput
	if !bindJSON(c, &input) {
		return
	}

	ctx, cancel := requestContext(c, defaultTimeout)
	defer cancel()

	resp, err := h.directoryClient.UpdateProspect(ctx, &directoryapi.UpdateProspectRequest{Actor: actor(c), ID: id, Input: input})
	if handleGRPCError(c, err) {
		return
	}
	c.JSON(http.StatusOK, successResponse("Prospect updated successfully", resp))
}

func (h *DirectoryHTTPHandler) GetProspect(c *gin.Context) {
	id, ok := paramUUID(c, "id")
	if !ok {
		return
	}

	ctx, cancel := requestContext(c, defaultTimeout)
	defer cancel()

	resp, err := h.directoryClient.GetProspect(ctx, &directoryapi.IDRequest{Actor: actor(c), ID: id})
	if handleGRPCError(c, err) {
		return
	}
	c.JSON(http.StatusOK, successResponse("Prospect retrieved successfully", resp))
}

func (h *DirectoryHTTPHandler) ListProspects(c *gin.Context) {
	req, ok := h.listRequest(c)
	if !ok {
		return
	}

	ctx, cancel := requestContext(c, defaultTimeout)
	defer cancel()

	resp, err := h.directoryClient.ListProspects(ctx, req)
	if handleGRPCError(c, err) {
		return
	}
	c.JSON(http.StatusOK, successWithMetaResponse("Prospects retrieved successfully", resp.Prospects, resp.Page))
}

func (h *DirectoryHTTPHandler) SetProspectStatus(c *gin.Context) {
	req, ok := h.statusRequest(c)
	if !ok {
		return
	}

	ctx, cancel := requestContext(c, defaultTimeout)
	defer cancel()

	resp, err := h.directoryClient.SetProspectStatus(ctx, req)
	if handleGRPCError(c, err) {
		return
	}
	c.JSON(http.StatusOK, successResponse("Prospect status updated", resp))
}

// --- Training ---

func (h *DirectoryHTTPHandler) CreateTraining(c *gin.Context) {
	var input directoryapi.TrainingInput
	if !bindJSON(c, &input) {
		return
	}

	ctx, cancel := requestContext(c, defaultTimeout)
	defer cancel()

	resp, err := h.directoryClient.CreateTraining(ctx, &directoryapi.CreateTrainingRequest{Actor: actor(c), Input: input})
	if handleGRPCError(c, err) {
		return
	}
	c.JSON(http.StatusCreated, successResponse("Training material created successfully", resp))
}

func (h *DirectoryHTTPHandler) UpdateTraining(c *gin.Context) {
	id, ok := paramUUID(c, "id")
	if !ok {
		return
	}
	var input directoryapi.TrainingInput
	if !bindJSON(c, &input) {
		return
	}

	ctx, cancel := requestContext(c, defaultTimeout)
	defer cancel()

	resp, err := h.directoryClient.UpdateTraining(ctx, &directoryapi.UpdateTrainingRequest{Actor: actor(c), ID: id, Input: input})
	if handleGRPCError(c, err) {
		return
	}
	c.JSON(http.StatusOK, successResponse("Training material updated successfully", resp))
}

func (h *DirectoryHTTPHandler) GetTraining(c *gin.Context) {
	id, ok := paramUUID(c, "id")
	if !ok {
		return
	}

	ctx, cancel := requestContext(c, defaultTimeout)
	defer cancel()

	resp, err := h.directoryClient.GetTraining(ctx, &directoryapi.IDRequest{Actor: actor(c), ID: id})
	if handleGRPCError(c, err) {
		return
	}
	c.JSON(http.StatusOK, successResponse("Training material retrieved successfully", resp))
}

func (h *DirectoryHTTPHandler) ListTraining(c *gin.Context) {
	includeUnpublished, _ := strconv.ParseBool(c.Query("include_unpublished"))

	ctx, cancel := requestContext(c, defaultTimeout)
	defer cancel()

	resp, err := h.directoryClient.ListTraining(ctx, &directoryapi.ListTrainingRequest{
		Actor:              actor(c),
		Category:           c.Query("category"),
		Search:             c.Query("search"),
		IncludeUnpublished: includeUnpublished,
	})
	if handleGRPCError(c, err) {
		return
	}
	c.JSON(http.StatusOK, successResponse("Training materials retrieved successfully", resp.Materials))
}

func (h *DirectoryHTTPHandler) DeleteTraining(c *gin.Context) {
	id, ok := paramUUID(c, "id")
	if !ok {
		return
	}

	ctx, cancel := requestContext(c, defaultTimeout)
	defer cancel()

	resp, err := h.directoryClient.DeleteTraining(ctx, &directoryapi.IDRequest{Actor: actor(c), ID: id})
	if handleGRPCError(c, err) {
		return
	}
	c.JSON(http.StatusOK, successResponse("Training material deleted successfully", resp))
}
