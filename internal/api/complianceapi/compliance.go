// Package complianceapi is the contract of the compliance service: the SOP
// catalog and acknowledgment gate, holds and violations.
package complianceapi

import (
	"context"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"

	"roofpro-hub/internal/api"
	"roofpro-hub/internal/database/models"
	"roofpro-hub/internal/rpc"
)

const ServiceName = "roofpro.compliance.v1.ComplianceService"

const (
	MethodListSOPs         = "ListSOPs"
	MethodUpsertSOP        = "UpsertSOP"
	MethodAcknowledgeSOP   = "AcknowledgeSOP"
	MethodGetGateStatus    = "GetGateStatus"
	MethodPlaceHold        = "PlaceHold"
	MethodResolveHold      = "ResolveHold"
	MethodListHolds        = "ListHolds"
	MethodCheckHolds       = "CheckHolds"
	MethodRecordViolation  = "RecordViolation"
	MethodResolveViolation = "ResolveViolation"
	MethodListViolations   = "ListViolations"
)

// --- SOPs ---

type ListSOPsRequest struct {
	Actor           api.Actor `json:"actor"`
	IncludeInactive bool      `json:"include_inactive,omitempty"`
}

type ListSOPsResponse struct {
	SOPs []models.SOPDocument `json:"sops"`
}

// UpsertSOPRequest creates the SOP or replaces it. BumpVersion publishes a
// new version, which every required role must acknowledge again.
type UpsertSOPRequest struct {
	Actor         api.Actor `json:"actor"`
	Number        string    `json:"number"`
	Title         string    `json:"title"`
	Summary       string    `json:"summary"`
	BodyURL       string    `json:"body_url"`
	RequiredRoles []string  `json:"required_roles"`
	IsActive      *bool     `json:"is_active,omitempty"`
	BumpVersion   bool      `json:"bump_version,omitempty"`
}

type SOPResponse struct {
	SOP       models.SOPDocument `json:"sop"`
	Published bool               `json:"published"`
}

type AcknowledgeSOPRequest struct {
	Actor  api.Actor `json:"actor"`
	Number string    `json:"number"`
}

type AcknowledgeSOPResponse struct {
	Acknowledgment models.SOPAcknowledgment `json:"acknowledgment"`
	Gate           GateStatus               `json:"gate"`
}

// GateStatusRequest asks for the actor's gate unless UserID names someone
// else.
type GateStatusRequest struct {
	Actor  api.Actor  `json:"actor"`
	UserID *uuid.UUID `json:"user_id,omitempty"`
}

type GateItem struct {
	Number              string     `json:"number"`
	Title               string     `json:"title"`
	Version             int        `json:"version"`
	Acknowledged        bool       `json:"acknowledged"`
	AcknowledgedVersion int        `json:"acknowledged_version,omitempty"`
	AcknowledgedAt      *time.Time `json:"acknowledged_at,omitempty"`
}

type GateStatus struct {
	UserID   uuid.UUID  `json:"user_id"`
	Role     string     `json:"role"`
	Required []GateItem `json:"required"`
	Missing  []string   `json:"missing"`
	Complete bool       `json:"complete"`
}

// --- Holds ---

type PlaceHoldRequest struct {
	Actor                   api.Actor  `json:"actor"`
	UserID                  *uuid.UUID `json:"user_id,omitempty"`
	JobNumber               *string    `json:"job_number,omitempty"`
	Reason                  string     `json:"reason"`
	BlocksCommissionPayment bool       `json:"blocks_commission_payment"`
	BlocksInvoicing         bool       `json:"blocks_invoicing"`
	BlocksScheduling        bool       `json:"blocks_scheduling"`
}

type ResolveHoldRequest struct {
	Actor api.Actor `json:"actor"`
	ID    uuid.UUID `json:"id"`
	Note  string    `json:"note"`
}

type HoldResponse struct {
	Hold models.ComplianceHold `json:"hold"`
}

type ListHoldsRequest struct {
	Actor     api.Actor       `json:"actor"`
	UserID    *uuid.UUID      `json:"user_id,omitempty"`
	JobNumber string          `json:"job_number,omitempty"`
	Status    string          `json:"status,omitempty"`
	Page      api.PageRequest `json:"page"`
}

type ListHoldsResponse struct {
	Holds []models.ComplianceHold `json:"holds"`
	Page  api.PageResponse        `json:"page"`
}

type CheckHoldsRequest struct {
	Actor     api.Actor  `json:"actor"`
	UserID    *uuid.UUID `json:"user_id,omitempty"`
	JobNumber string     `json:"job_number,omitempty"`
	Action    string     `json:"action"`
}

type CheckHoldsResponse struct {
	Action   string                  `json:"action"`
	Blocked  bool                    `json:"blocked"`
	Blocking []models.ComplianceHold `json:"blocking"`
}

// --- Violations ---

// RecordViolationRequest records a violation. PlaceHold also puts a
// commission payment hold on the user.
type RecordViolationRequest struct {
	Actor       api.Actor `json:"actor"`
	UserID      uuid.UUID `json:"user_id"`
	SOPNumber   *string   `json:"sop_number,omitempty"`
	JobNumber   *string   `json:"job_number,omitempty"`
	Description string    `json:"description"`
	Severity    string    `json:"severity"`
	PlaceHold   bool      `json:"place_hold,omitempty"`
}

type ResolveViolationRequest struct {
	Actor       api.Actor `json:"actor"`
	ID          uuid.UUID `json:"id"`
	ReleaseHold bool      `json:"release_hold,omitempty"`
	Note        string    `json:"note,omitempty"`
}

type ViolationResponse struct {
	Violation models.ComplianceViolation `json:"violation"`
	Hold      *models.ComplianceHold     `json:"hold,omitempty"`
}

type ListViolationsRequest struct {
	Actor    api.Actor       `json:"actor"`
	UserID   *uuid.UUID      `json:"user_id,omitempty"`
	Status   string          `json:"status,omitempty"`
	Severity string          `json:"severity,omitempty"`
	Page     api.PageRequest `json:"page"`
}

type ListViolationsResponse struct {
	Violations []models.ComplianceViolation `json:"violations"`
	Page       api.PageResponse             `json:"page"`
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

func (c *Client) ListSOPs(ctx context.Context, req *ListSOPsRequest) (*ListSOPsResponse, error) {
	return call[ListSOPsRequest, ListSOPsResponse](ctx, c, MethodListSOPs, req)
}

func (c *Client) UpsertSOP(ctx context.Context, req *UpsertSOPRequest) (*SOPResponse, error) {
	return call[UpsertSOPRequest, SOPResponse](ctx, c, MethodUpsertSOP, req)
}

func (c *Client) AcknowledgeSOP(ctx context.Context, req *AcknowledgeSOPRequest) (*AcknowledgeSOPResponse, error) {
	return call[AcknowledgeSOPRequest, AcknowledgeSOPResponse](ctx, c, MethodAcknowledgeSOP, req)
}

func (c *Client) GetGateStatus(ctx context.Context, req *GateStatusRequest) (*GateStatus, error) {
	return call[GateStatusRequest, GateStatus](ctx, c, MethodGetGateStatus, req)
}

func (c *Client) PlaceHold(ctx context.Context, req *PlaceHoldRequest) (*HoldResponse, error) {
	return call[PlaceHoldRequest, HoldResponse](ctx, c, MethodPlaceHold, req)
}

func (c *Client) ResolveHold(ctx context.Context, req *ResolveHoldRequest) (*HoldResponse, error) {
	return call[ResolveHoldRequest, HoldResponse](ctx, c, MethodResolveHold, req)
}

func (c *Client) ListHolds(ctx context.Context, req *ListHoldsRequest) (*ListHoldsResponse, error) {
	return call[ListHoldsRequest, ListHoldsResponse](ctx, c, MethodListHolds, req)
}

func (c *Client) CheckHolds(ctx context.Context, req *CheckHoldsRequest) (*CheckHoldsResponse, error) {
	return call[CheckHoldsRequest, CheckHoldsResponse](ctx, c, MethodCheckHolds, req)
}

func (c *Client) RecordViolation(ctx context.Context, req *RecordViolationRequest) (*ViolationResponse, error) {
	return call[RecordViolationRequest, ViolationResponse](ctx, c, MethodRecordViolation, req)
}

func (c *Client) ResolveViolation(ctx context.Context, req *ResolveViolationRequest) (*ViolationResponse, error) {
	return call[ResolveViolationRequest, ViolationResponse](ctx, c, MethodResolveViolation, req)
}

func (c *Client) ListViolations(ctx context.Context, req *ListViolationsRequest) (*ListViolationsResponse, error) {
	return call[ListViolationsRequest, ListViolationsResponse](ctx, c, MethodListViolations, req)
}
