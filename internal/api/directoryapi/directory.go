// Package directoryapi is the contract of the directory service:
// subcontractors, vendors, prospects and training materials.
package directoryapi

import (
	"context"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"

	"roofpro-hub/internal/api"
	"roofpro-hub/internal/database/models"
	"roofpro-hub/internal/rpc"
)

const ServiceName = "roofpro.directory.v1.DirectoryService"

const (
	MethodCreateSubcontractor    = "CreateSubcontractor"
	MethodUpdateSubcontractor    = "UpdateSubcontractor"
	MethodGetSubcontractor       = "GetSubcontractor"
	MethodListSubcontractors     = "ListSubcontractors"
	MethodSetSubcontractorStatus = "SetSubcontractorStatus"
	MethodListExpiringInsurance  = "ListExpiringInsurance"

	MethodCreateVendor    = "CreateVendor"
	MethodUpdateVendor    = "UpdateVendor"
	MethodGetVendor       = "GetVendor"
	MethodListVendors     = "ListVendors"
	MethodSetVendorStatus = "SetVendorStatus"

	MethodCreateProspect    = "CreateProspect"
	MethodUpdateProspect    = "UpdateProspect"
	MethodGetProspect       = "GetProspect"
	MethodListProspects     = "ListProspects"
	MethodSetProspectStatus = "SetProspectStatus"

	MethodCreateTraining = "CreateTraining"
	MethodUpdateTraining = "UpdateTraining"
	MethodGetTraining    = "GetTraining"
	MethodListTraining   = "ListTraining"
	MethodDeleteTraining = "DeleteTraining"
)

// --- Shared ---

type IDRequest struct {
	Actor api.Actor `json:"actor"`
	ID    uuid.UUID `json:"id"`
}

type SetStatusRequest struct {
	Actor  api.Actor `json:"actor"`
	ID     uuid.UUID `json:"id"`
	Status string    `json:"status"`
	Note   string    `json:"note,omitempty"`
}

// ListRequest filters a directory list. Category is the trade for
// subcontractors, the category for vendors and the lead source for prospects.
type ListRequest struct {
	Actor         api.Actor       `json:"actor"`
	Status        string          `json:"status,omitempty"`
	Category      string          `json:"category,omitempty"`
	Search        string          `json:"search,omitempty"`
	AssignedRepID *uuid.UUID      `json:"assigned_rep_id,omitempty"`
	Page          api.PageRequest `json:"page"`
}

// --- Subcontractors ---

type SubcontractorInput struct {
	CompanyName        string     `json:"company_name"`
	ContactName        string     `json:"contact_name"`
	Email              string     `json:"email"`
	Phone              string     `json:"phone"`
	Trade              string     `json:"trade"`
	InsuranceExpiresAt *time.Time `json:"insurance_expires_at,omitempty"`
	Notes              *string    `json:"notes,omitempty"`
}

type CreateSubcontractorRequest struct {
	Actor api.Actor          `json:"actor"`
	Input SubcontractorInput `json:"input"`
}

type UpdateSubcontractorRequest struct {
	Actor api.Actor          `json:"actor"`
	ID    uuid.UUID          `json:"id"`
	Input SubcontractorInput `json:"input"`
}

type SubcontractorResponse struct {
	Subcontractor models.Subcontractor `json:"subcontractor"`
}

type ListSubcontractorsResponse struct {
	Subcontractors []models.Subcontractor `json:"subcontractors"`
	Page           api.PageResponse       `json:"page"`
}

type ExpiringInsuranceRequest struct {
	Actor api.Actor `json:"actor"`
	Days  int       `json:"days"`
}

type ExpiringInsuranceResponse struct {
	Cutoff         time.Time              `json:"cutoff"`
	Subcontractors []models.Subcontractor `json:"subcontractors"`
}

// --- Vendors ---

type VendorInput struct {
	CompanyName   string  `json:"company_name"`
	ContactName   string  `json:"contact_name"`
	Email         string  `json:"email"`
	Phone         string  `json:"phone"`
	Category      string  `json:"category"`
	AccountNumber string  `json:"account_number"`
	Notes         *string `json:"notes,omitempty"`
}

type CreateVendorRequest struct {
	Actor api.Actor   `json:"actor"`
	Input VendorInput `json:"input"`
}

type UpdateVendorRequest struct {
	Actor api.Actor   `json:"actor"`
	ID    uuid.UUID   `json:"id"`
	Input VendorInput `json:"input"`
}

type VendorResponse struct {
	Vendor models.Vendor `json:"vendor"`
}

type ListVendorsResponse struct {
	Vendors []models.Vendor  `json:"vendors"`
	Page    api.PageResponse `json:"page"`
}

// --- Prospects ---

type ProspectInput struct {
	Name          string     `json:"name"`
	ContactName   string     `json:"contact_name"`
	Email         string     `json:"email"`
	Phone         string     `json:"phone"`
	Source        string     `json:"source"`
	AssignedRepID *uuid.UUID `json:"assigned_rep_id,omitempty"`
	Notes         *string    `json:"notes,omitempty"`
}

type CreateProspectRequest struct {
	Actor api.Actor     `json:"actor"`
	Input ProspectInput `json:"input"`
}

type UpdateProspectRequest struct {
	Actor api.Actor     `json:"actor"`
	ID    uuid.UUID     `json:"id"`
	Input ProspectInput `json:"input"`
}

type ProspectResponse struct {
	Prospect models.Prospect `json:"prospect"`
}

type ListProspectsResponse struct {
	Prospects []models.Prospect `json:"prospects"`
	Page      api.PageResponse  `json:"page"`
}

// --- Training ---

type TrainingInput struct {
	Title         string   `json:"title"`
	Category      string   `json:"category"`
	Description   string   `json:"description"`
	ResourceURL   string   `json:"resource_url"`
	Kind          string   `json:"kind"`
	RequiredRoles []string `json:"required_roles"`
	IsPublished   *bool    `json:"is_published,omitempty"`
}

type CreateTrainingRequest struct {
	Actor api.Actor     `json:"actor"`
	Input TrainingInput `json:"input"`
}

type UpdateTrainingRequest struct {
	Actor api.Actor     `json:"actor"`
	ID    uuid.UUID     `json:"id"`
	Input TrainingInput `json:"input"`
}

type TrainingResponse struct {
	Material models.TrainingMaterial `json:"material"`
}

type ListTrainingRequest struct {
	Actor              api.Actor `json:"actor"`
	Category           string    `json:"category,omitempty"`
	Search             string    `json:"search,omitempty"`
	IncludeUnpublished bool      `json:"include_unpublished,omitempty"`
}

type ListTrainingResponse struct {
	Materials []models.TrainingMaterial `json:"materials"`
}

type DeleteResponse struct {
	ID      uuid.UUID `json:"id"`
	Deleted bool      `json:"deleted"`
}

// --- Client ---

type Client struct {
	conn grpc.ClientConnInterface
}

func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

func call[Req any, Resp any](ctx context.Context, c *Client, method string, req *Req) (*Resp, error) {
	return rpc.Call[Req, Resp](ctx, c.conn, ServiceName, method, req)
}

func (c *Client) CreateSubcontractor(ctx context.Context, req *CreateSubcontractorRequest) (*SubcontractorResponse, error) {
	return call[CreateSubcontractorRequest, SubcontractorResponse](ctx, c, MethodCreateSubcontractor, req)
}

func (c *Client) UpdateSubcontractor(ctx context.Context, req *UpdateSubcontractorRequest) (*SubcontractorResponse, error) {
	return call[UpdateSubcontractorRequest, SubcontractorResponse](ctx, c, MethodUpdateSubcontractor, req)
}

func (c *Client) GetSubcontractor(ctx context.Context, req *IDRequest) (*SubcontractorResponse, error) {
	return call[IDRequest, SubcontractorResponse](ctx, c, MethodGetSubcontractor, req)
}

func (c *Client) ListSubcontractors(ctx context.Context, req *ListRequest) (*ListSubcontractorsResponse, error) {
	return call[ListRequest, ListSubcontractorsResponse](ctx, c, MethodListSubcontractors, req)
}

func (c *Client) SetSubcontractorStatus(ctx context.Context, req *SetStatusRequest) (*SubcontractorResponse, error) {
	return call[SetStatusRequest, SubcontractorResponse](ctx, c, MethodSetSubcontractorStatus, req)
}

func (c *Client) ListExpiringInsurance(ctx context.Context, req *ExpiringInsuranceRequest) (*ExpiringInsuranceResponse, error) {
	return call[ExpiringInsuranceRequest, ExpiringInsuranceResponse](ctx, c, MethodListExpiringInsurance, req)
}

func (c *Client) CreateVendor(ctx context.Context, req *CreateVendorRequest) (*VendorResponse, error) {
	return call[CreateVendorRequest, VendorResponse](ctx, c, MethodCreateVendor, req)
}

func (c *Client) UpdateVendor(ctx context.Context, req *UpdateVendorRequest) (*VendorResponse, error) {
	return call[UpdateVendorRequest, VendorResponse](ctx, c, MethodUpdateVendor, req)
}

func (c *Client) GetVendor(ctx context.Context, req *IDRequest) (*VendorResponse, error) {
	return call[IDRequest, VendorResponse](ctx, c, MethodGetVendor, req)
}

func (c *Client) ListVendors(ctx context.Context, req *ListRequest) (*ListVendorsResponse, error) {
	return call[ListRequest, ListVendorsResponse](ctx, c, MethodListVendors, req)
}

func (c *Client) SetVendorStatus(ctx context.Context, req *SetStatusRequest) (*VendorResponse, error) {
	return call[SetStatusRequest, VendorResponse](ctx, c, MethodSetVendorStatus, req)
}

func (c *Client) CreateProspect(ctx context.Context, req *CreateProspectRequest) (*ProspectResponse, error) {
	return call[CreateProspectRequest, ProspectResponse](ctx, c, MethodCreateProspect, req)
}

func (c *Client) UpdateProspect(ctx context.Context, req *UpdateProspectRequest) (*ProspectResponse, error) {
	return call[UpdateProspectRequest, ProspectResponse](ctx, c, MethodUpdateProspect, req)
}

func (c *Client) GetProspect(ctx context.Context, req *IDRequest) (*ProspectResponse, error) {
	return call[IDRequest, ProspectResponse](ctx, c, MethodGetProspect, req)
}

func (c *Client) ListProspects(ctx context.Context, req *ListRequest) (*ListProspectsResponse, error) {
	return call[ListRequest, ListProspectsResponse](ctx, c, MethodListProspects, req)
}

func (c *Client) SetProspectStatus(ctx context.Context, req *SetStatusRequest) (*ProspectResponse, error) {
	return call[SetStatusRequest, ProspectResponse](ctx, c, MethodSetProspectStatus, req)
}

func (c *Client) CreateTraining(ctx context.Context, req *CreateTrainingRequest) (*TrainingResponse, error) {
	return call[CreateTrainingRequest, TrainingResponse](ctx, c, MethodCreateTraining, req)
}

func (c *Client) UpdateTraining(ctx context.Context, req *UpdateTrainingRequest) (*TrainingResponse, error) {
	return call[UpdateTrainingRequest, TrainingResponse](ctx, c, MethodUpdateTraining, req)
}

func (c *Client) GetTraining(ctx context.Context, req *IDRequest) (*TrainingResponse, error) {
	return call[IDRequest, TrainingResponse](ctx, c, MethodGetTraining, req)
}

func (c *Client) ListTraining(ctx context.Context, req *ListTrainingRequest) (*ListTrainingResponse, error) {
	return call[ListTrainingRequest, ListTrainingResponse](ctx, c, MethodListTraining, req)
}

func (c *Client) DeleteTraining(ctx context.Context, req *IDRequest) (*DeleteResponse, error) {
	return call[IDRequest, DeleteResponse](ctx, c, MethodDeleteTraining, req)
}
