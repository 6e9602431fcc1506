// Package commissionsapi is the contract of the commissions service:
// method names, request and response messages and a typed client.
package commissionsapi

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"google.golang.org/grpc"

	"roofpro-hub/internal/api"
	"roofpro-hub/internal/commission"
	"roofpro-hub/internal/database/models"
	"roofpro-hub/internal/rpc"
)

const ServiceName = "roofpro.commissions.v1.CommissionService"

const (
	MethodPreviewDocument   = "PreviewDocument"
	MethodCreateDocument    = "CreateDocument"
	MethodUpdateDocument    = "UpdateDocument"
	MethodSubmitDocument    = "SubmitDocument"
	MethodReviewDocument    = "ReviewDocument"
	MethodGetDocument       = "GetDocument"
	MethodListDocuments     = "ListDocuments"
	MethodCreateSubmission  = "CreateSubmission"
	MethodGetSubmission     = "GetSubmission"
	MethodListSubmissions   = "ListSubmissions"
	MethodTransition        = "TransitionSubmission"
	MethodPaySubmission     = "PaySubmission"
	MethodListStatusEvents  = "ListStatusEvents"
	MethodCreateTier        = "CreateTier"
	MethodUpdateTier        = "UpdateTier"
	MethodListTiers         = "ListTiers"
	MethodAssignTier        = "AssignTier"
	MethodCreateDraw        = "CreateDraw"
	MethodListDraws         = "ListDraws"
	MethodGetDrawBalance    = "GetDrawBalance"
	MethodExportSubmissions = "ExportSubmissions"
	MethodGetDashboard      = "GetDashboard"
)

// --- Documents ---

type DocumentInput struct {
	JobName            string               `json:"job_name"`
	JobNumber          string               `json:"job_number"`
	CustomerName       string               `json:"customer_name"`
	GrossContractTotal decimal.Decimal      `json:"gross_contract_total"`
	OPPercent          decimal.Decimal      `json:"op_percent"`
	Expenses           commission.LineItems `json:"expenses"`
	CommissionRate     decimal.Decimal      `json:"commission_rate"`
	AdvanceTotal       decimal.Decimal      `json:"advance_total"`
	Notes              *string              `json:"notes,omitempty"`
}

func (in DocumentInput) CalcInput() commission.Input {
	return commission.Input{
		GrossContractTotal: in.GrossContractTotal,
		OPPercent:          in.OPPercent,
		Expenses:           in.Expenses,
		CommissionRate:     in.CommissionRate,
		AdvanceTotal:       in.AdvanceTotal,
	}
}

type PreviewDocumentRequest struct {
	Actor api.Actor     `json:"actor"`
	RepID *uuid.UUID    `json:"rep_id,omitempty"`
	Input DocumentInput `json:"input"`
}

type PreviewDocumentResponse struct {
	Totals        commission.Totals `json:"totals"`
	TierDrops     int               `json:"tier_drops"`
	EffectiveTier *commission.Tier  `json:"effective_tier,omitempty"`
	Violations    []string          `json:"violations,omitempty"`
}

type CreateDocumentRequest struct {
	Actor api.Actor     `json:"actor"`
	RepID *uuid.UUID    `json:"rep_id,omitempty"`
	Input DocumentInput `json:"input"`
}

type UpdateDocumentRequest struct {
	Actor api.Actor     `json:"actor"`
	ID    uuid.UUID     `json:"id"`
	Input DocumentInput `json:"input"`
}

type DocumentIDRequest struct {
	Actor api.Actor `json:"actor"`
	ID    uuid.UUID `json:"id"`
}

type ReviewDocumentRequest struct {
	Actor   api.Actor `json:"actor"`
	ID      uuid.UUID `json:"id"`
	Approve bool      `json:"approve"`
	Notes   string    `json:"notes"`
}

type DocumentResponse struct {
	Document models.CommissionDocument `json:"document"`
}

type ListDocumentsRequest struct {
	Actor  api.Actor       `json:"actor"`
	RepID  *uuid.UUID      `json:"rep_id,omitempty"`
	Status string          `json:"status,omitempty"`
	Page   api.PageRequest `json:"page"`
}

type ListDocumentsResponse struct {
	Documents []models.CommissionDocument `json:"documents"`
	Page      api.PageResponse            `json:"page"`
}

// --- Submissions ---

type CreateSubmissionRequest struct {
	Actor            api.Actor       `json:"actor"`
	DocumentID       *uuid.UUID      `json:"document_id,omitempty"`
	JobName          string          `json:"job_name"`
	JobNumber        string          `json:"job_number"`
	CustomerName     string          `json:"customer_name"`
	ContractAmount   decimal.Decimal `json:"contract_amount"`
	CommissionAmount decimal.Decimal `json:"commission_amount"`
	Notes            *string         `json:"notes,omitempty"`
}

type SubmissionIDRequest struct {
	Actor api.Actor `json:"actor"`
	ID    uuid.UUID `json:"id"`
}

type TransitionSubmissionRequest struct {
	Actor    api.Actor                   `json:"actor"`
	ID       uuid.UUID                   `json:"id"`
	ToStatus commission.SubmissionStatus `json:"to_status"`
	Note     string                      `json:"note"`
}

type PaySubmissionRequest struct {
	Actor            api.Actor `json:"actor"`
	ID               uuid.UUID `json:"id"`
	PaymentReference string    `json:"payment_reference"`
	Note             string    `json:"note"`
}

type SubmissionResponse struct {
	Submission models.CommissionSubmission   `json:"submission"`
	Settlement *commission.Settlement        `json:"settlement,omitempty"`
	NextStatus []commission.SubmissionStatus `json:"next_status"`
}

type ListSubmissionsRequest struct {
	Actor  api.Actor       `json:"actor"`
	RepID  *uuid.UUID      `json:"rep_id,omitempty"`
	Status string          `json:"status,omitempty"`
	From   *time.Time      `json:"from,omitempty"`
	To     *time.Time      `json:"to,omitempty"`
	Page   api.PageRequest `json:"page"`
}

type ListSubmissionsResponse struct {
	Submissions []models.CommissionSubmission `json:"submissions"`
	Page        api.PageResponse              `json:"page"`
}

type ListStatusEventsRequest struct {
	Actor    api.Actor `json:"actor"`
	EntityID uuid.UUID `json:"entity_id"`
}

type ListStatusEventsResponse struct {
	Events []models.CommissionStatusEvent `json:"events"`
}

// --- Tiers ---

type TierInput struct {
	Name             string            `json:"name"`
	Level            int               `json:"level"`
	OPPercents       []decimal.Decimal `json:"op_percents"`
	ProfitSplits     []decimal.Decimal `json:"profit_splits"`
	MinMarginPercent decimal.Decimal   `json:"min_margin_percent"`
	IsActive         *bool             `json:"is_active,omitempty"`
}

type CreateTierRequest struct {
	Actor api.Actor `json:"actor"`
	Input TierInput `json:"input"`
}

type UpdateTierRequest struct {
	Actor api.Actor `json:"actor"`
	ID    uuid.UUID `json:"id"`
	Input TierInput `json:"input"`
}

type TierResponse struct {
	Tier models.CommissionTier `json:"tier"`
}

type ListTiersRequest struct {
	Actor           api.Actor `json:"actor"`
	IncludeInactive bool      `json:"include_inactive"`
}

type ListTiersResponse struct {
	Tiers []models.CommissionTier `json:"tiers"`
}

type AssignTierRequest struct {
	Actor  api.Actor  `json:"actor"`
	UserID uuid.UUID  `json:"user_id"`
	TierID *uuid.UUID `json:"tier_id,omitempty"`
}

type AssignTierResponse struct {
	UserID uuid.UUID  `json:"user_id"`
	TierID *uuid.UUID `json:"tier_id,omitempty"`
}

// --- Draws ---

type CreateDrawRequest struct {
	Actor    api.Actor       `json:"actor"`
	RepID    uuid.UUID       `json:"rep_id"`
	Amount   decimal.Decimal `json:"amount"`
	Reason   string          `json:"reason"`
	IssuedAt *time.Time      `json:"issued_at,omitempty"`
}

type DrawResponse struct {
	Draw models.Draw `json:"draw"`
}

type ListDrawsRequest struct {
	Actor  api.Actor  `json:"actor"`
	RepID  *uuid.UUID `json:"rep_id,omitempty"`
	Status string     `json:"status,omitempty"`
}

type ListDrawsResponse struct {
	Draws              []models.Draw   `json:"draws"`
	OutstandingBalance decimal.Decimal `json:"outstanding_balance"`
}

type DrawBalanceRequest struct {
	Actor api.Actor `json:"actor"`
	RepID uuid.UUID `json:"rep_id"`
}

type DrawBalanceResponse struct {
	RepID              uuid.UUID       `json:"rep_id"`
	OutstandingBalance decimal.Decimal `json:"outstanding_balance"`
	OutstandingCount   int             `json:"outstanding_count"`
}

// --- Reports ---

const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
)

type ExportSubmissionsRequest struct {
	Actor  api.Actor `json:"actor"`
	From   time.Time `json:"from"`
	To     time.Time `json:"to"`
	Status string    `json:"status,omitempty"`
	Format string    `json:"format"`
}

type ExportResponse struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Content     []byte `json:"content"`
	Rows        int    `json:"rows"`
}

type DashboardRequest struct {
	Actor api.Actor  `json:"actor"`
	RepID *uuid.UUID `json:"rep_id,omitempty"`
}

type StatusSummary struct {
	Count            int64           `json:"count"`
	CommissionAmount decimal.Decimal `json:"commission_amount"`
}

type DashboardResponse struct {
	RepID             *uuid.UUID               `json:"rep_id,omitempty"`
	Submissions       map[string]StatusSummary `json:"submissions"`
	DocumentsByStatus map[string]int64         `json:"documents_by_status"`
	OutstandingDraws  decimal.Decimal          `json:"outstanding_draws"`
	PaidYearToDate    decimal.Decimal          `json:"paid_year_to_date"`
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

func (c *Client) PreviewDocument(ctx context.Context, req *PreviewDocumentRequest) (*PreviewDocumentResponse, error) {
	return call[PreviewDocumentRequest, PreviewDocumentResponse](ctx, c, MethodPreviewDocument, req)
}

func (c *Client) CreateDocument(ctx context.Context, req *CreateDocumentRequest) (*DocumentResponse, error) {
	return call[CreateDocumentRequest, DocumentResponse](ctx, c, MethodCreateDocument, req)
}

func (c *Client) UpdateDocument(ctx context.Context, req *UpdateDocumentRequest) (*DocumentResponse, error) {
	return call[UpdateDocumentRequest, DocumentResponse](ctx, c, MethodUpdateDocument, req)
}

func (c *Client) SubmitDocument(ctx context.Context, req *DocumentIDRequest) (*DocumentResponse, error) {
	return call[DocumentIDRequest, DocumentResponse](ctx, c, MethodSubmitDocument, req)
}

func (c *Client) ReviewDocument(ctx context.Context, req *ReviewDocumentRequest) (*DocumentResponse, error) {
	return call[ReviewDocumentRequest, DocumentResponse](ctx, c, MethodReviewDocument, req)
}

func (c *Client) GetDocument(ctx context.Context, req *DocumentIDRequest) (*DocumentResponse, error) {
	return call[DocumentIDRequest, DocumentResponse](ctx, c, MethodGetDocument, req)
}

func (c *Client) ListDocuments(ctx context.Context, req *ListDocumentsRequest) (*ListDocumentsResponse, error) {
	return call[ListDocumentsRequest, ListDocumentsResponse](ctx, c, MethodListDocuments, req)
}

func (c *Client) CreateSubmission(ctx context.Context, req *CreateSubmissionRequest) (*SubmissionResponse, error) {
	return call[CreateSubmissionRequest, SubmissionResponse](ctx, c, MethodCreateSubmission, req)
}

func (c *Client) GetSubmission(ctx context.Context, req *SubmissionIDRequest) (*SubmissionResponse, error) {
	return call[SubmissionIDRequest, SubmissionResponse](ctx, c, MethodGetSubmission, req)
}

func (c *Client) ListSubmissions(ctx context.Context, req *ListSubmissionsRequest) (*ListSubmissionsResponse, error) {
	return call[ListSubmissionsRequest, ListSubmissionsResponse](ctx, c, MethodListSubmissions, req)
}

func (c *Client) TransitionSubmission(ctx context.Context, req *TransitionSubmissionRequest) (*SubmissionResponse, error) {
	return call[TransitionSubmissionRequest, SubmissionResponse](ctx, c, MethodTransition, req)
}

func (c *Client) PaySubmission(ctx context.Context, req *PaySubmissionRequest) (*SubmissionResponse, error) {
	return call[PaySubmissionRequest, SubmissionResponse](ctx, c, MethodPaySubmission, req)
}

func (c *Client) ListStatusEvents(ctx context.Context, req *ListStatusEventsRequest) (*ListStatusEventsResponse, error) {
	return call[ListStatusEventsRequest, ListStatusEventsResponse](ctx, c, MethodListStatusEvents, req)
}

func (c *Client) CreateTier(ctx context.Context, req *CreateTierRequest) (*TierResponse, error) {
	return call[CreateTierRequest, TierResponse](ctx, c, MethodCreateTier, req)
}

func (c *Client) UpdateTier(ctx context.Context, req *UpdateTierRequest) (*TierResponse, error) {
	return call[UpdateTierRequest, TierResponse](ctx, c, MethodUpdateTier, req)
}

func (c *Client) ListTiers(ctx context.Context, req *ListTiersRequest) (*ListTiersResponse, error) {
	return call[ListTiersRequest, ListTiersResponse](ctx, c, MethodListTiers, req)
}

func (c *Client) AssignTier(ctx context.Context, req *AssignTierRequest) (*AssignTierResponse, error) {
	return call[AssignTierRequest, AssignTierResponse](ctx, c, MethodAssignTier, req)
}

func (c *Client) CreateDraw(ctx context.Context, req *CreateDrawRequest) (*DrawResponse, error) {
	return call[CreateDrawRequest, DrawResponse](ctx, c, MethodCreateDraw, req)
}

func (c *Client) ListDraws(ctx context.Context, req *ListDrawsRequest) (*ListDrawsResponse, error) {
	return call[ListDrawsRequest, ListDrawsResponse](ctx, c, MethodListDraws, req)
}

func (c *Client) GetDrawBalance(ctx context.Context, req *DrawBalanceRequest) (*DrawBalanceResponse, error) {
	return call[DrawBalanceRequest, DrawBalanceResponse](ctx, c, MethodGetDrawBalance, req)
}

func (c *Client) ExportSubmissions(ctx context.Context, req *ExportSubmissionsRequest) (*ExportResponse, error) {
	return call[ExportSubmissionsRequest, ExportResponse](ctx, c, MethodExportSubmissions, req)
}

func (c *Client) GetDashboard(ctx context.Context, req *DashboardRequest) (*DashboardResponse, error) {
	return call[DashboardRequest, DashboardResponse](ctx, c, MethodGetDashboard, req)
}
