package handler

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gorm.io/gorm"

	"roofpro-hub/internal/api/commissionsapi"
	"roofpro-hub/internal/cache"
	"roofpro-hub/internal/commission"
	"roofpro-hub/internal/database/models"
	"roofpro-hub/internal/permissions"
)

const exportSheet = "Submissions"

var exportHeader = []string{
	"Submission ID", "Rep", "Rep Email", "Job Number", "Job Name", "Customer",
	"Contract Amount", "Commission Amount", "Draw Applied", "Net Payout",
	"Status", "Created At", "Paid At", "Payment Reference",
}

// ExportSubmissions renders the submissions created in [From, To) as CSV or
// XLSX.
func (c *CommissionHandler) ExportSubmissions(ctx context.Context, req *commissionsapi.ExportSubmissionsRequest) (*commissionsapi.ExportResponse, error) {
	if err := req.Actor.Authorize(permissions.CommissionsExport); err != nil {
		return nil, err
	}
	if req.From.IsZero() || req.To.IsZero() || !req.From.Before(req.To) {
		return nil, status.Errorf(codes.InvalidArgument, "A date range with from before to is required")
	}
	format := req.Format
	if format == "" {
		format = commissionsapi.FormatCSV
	}
	if format != commissionsapi.FormatCSV && format != commissionsapi.FormatXLSX {
		return nil, status.Errorf(codes.InvalidArgument, "Unsupported export format: %s", req.Format)
	}

	query := c.db.WithContext(ctx).
		Where("created_at >= ? AND created_at < ?", req.From, req.To)
	if req.Status != "" {
		if !commission.SubmissionStatus(req.Status).Valid() {
			return nil, status.Errorf(codes.InvalidArgument, "Unknown submission status: %s", req.Status)
		}
		query = query.Where("status = ?", req.Status)
	}

	var subs []models.CommissionSubmission
	if err := query.Order("created_at asc").Find(&subs).Error; err != nil {
		return nil, status.Errorf(codes.Internal, "Failed to retrieve submissions: %v", err)
	}

	reps, err := c.repDirectory(ctx, subs)
	if err != nil {
		return nil, err
	}
	rows := make([][]string, 0, len(subs))
	for _, s := range subs {
		rows = append(rows, exportRow(s, reps[s.RepID]))
	}

	base := fmt.Sprintf("commission-submissions-%s-%s", req.From.Format("20060102"), req.To.Format("20060102"))
	resp := &commissionsapi.ExportResponse{Rows: len(rows)}
	switch format {
	case commissionsapi.FormatXLSX:
		resp.Content, err = renderXLSX(rows)
		resp.Filename = base + ".xlsx"
		resp.ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		resp.Content, err = renderCSV(rows)
		resp.Filename = base + ".csv"
		resp.ContentType = "text/csv"
	}
	if err != nil {
		return nil, status.Errorf(codes.Internal, "Failed to render export: %v", err)
	}
	return resp, nil
}

func (c *CommissionHandler) repDirectory(ctx context.Context, subs []models.CommissionSubmission) (map[uuid.UUID]models.Profile, error) {
	out := make(map[uuid.UUID]models.Profile)
	if len(subs) == 0 {
		return out, nil
	}
	ids := make([]uuid.UUID, 0, len(subs))
	for _, s := range subs {
		if _, seen := out[s.RepID]; !seen {
			out[s.RepID] = models.Profile{}
			ids = append(ids, s.RepID)
		}
	}

	var reps []models.Profile
	if err := c.db.WithContext(ctx).Select("id", "email", "first_name", "last_name").Where("id IN ?", ids).Find(&reps).Error; err != nil {
		return nil, status.Errorf(codes.Internal, "Failed to load reps: %v", err)
	}
	for _, r := range reps {
		out[r.ID] = r
	}
	return out, nil
}

func exportRow(s models.CommissionSubmission, rep models.Profile) []string {
	net, paidAt, ref := "", "", ""
	if s.NetPayout != nil {
		net = s.NetPayout.StringFixed(2)
	}
	if s.PaidAt != nil {
		paidAt = s.PaidAt.UTC().Format(time.RFC3339)
	}
	if s.PaymentReference != nil {
		ref = *s.PaymentReference
	}
	return []string{
		s.ID.String(), rep.FullName(), rep.Email, s.JobNumber, s.JobName, s.CustomerName,
		s.ContractAmount.StringFixed(2), s.CommissionAmount.StringFixed(2), s.DrawApplied.StringFixed(2), net,
		s.Status, s.CreatedAt.UTC().Format(time.RFC3339), paidAt, ref,
	}
}

func renderCSV(rows [][]string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(exportHeader); err != nil {
		return nil, err
	}
	if err := w.WriteAll(rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// amountColumns are the zero-based export columns written as numbers.
var amountColumns = map[int]bool{6: true, 7: true, 8: true, 9: true}

func renderXLSX(rows [][]string) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		return nil, err
	}

	header := make([]interface{}, len(exportHeader))
	for i, h := range exportHeader {
		header[i] = h
	}
	if err := f.SetSheetRow(exportSheet, "A1", &header); err != nil {
		return nil, err
	}

	for r, row := range rows {
		cells := make([]interface{}, len(row))
		for i, v := range row {
			cells[i] = v
			if amountColumns[i] && v != "" {
				if d, err := decimal.NewFromString(v); err == nil {
					cells[i] = d.InexactFloat64()
				}
			}
		}
		cell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(exportSheet, cell, &cells); err != nil {
			return nil, err
		}
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}
	lastHeader, err := excelize.CoordinatesToCellName(len(exportHeader), 1)
	if err != nil {
		return nil, err
	}
	if err := f.SetCellStyle(exportSheet, "A1", lastHeader, bold); err != nil {
		return nil, err
	}
	if err := f.SetColWidth(exportSheet, "A", "N", 18); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type statusTotal struct {
	Status           string
	Count            int64
	CommissionAmount decimal.Decimal
}

type statusCount struct {
	Status string
	Count  int64
}

// GetDashboard summarizes submissions, documents and draws for one rep, or
// for the company when the actor can see every rep and names none.
func (c *CommissionHandler) GetDashboard(ctx context.Context, req *commissionsapi.DashboardRequest) (*commissionsapi.DashboardResponse, error) {
	if err := req.Actor.Authorize(permissions.DashboardView); err != nil {
		return nil, err
	}

	var repID *uuid.UUID
	switch {
	case req.RepID != nil && !canSee(req.Actor, *req.RepID):
		return nil, status.Errorf(codes.PermissionDenied, "Dashboard for another rep requires %s", permissions.CommissionsViewAll)
	case req.RepID != nil:
		repID = req.RepID
	case !req.Actor.Can(permissions.CommissionsViewAll):
		repID = uuidPtr(req.Actor.UserID)
	}

	cacheKey := DASHBOARD_CACHE_PREFIX + "all"
	if repID != nil {
		cacheKey = DASHBOARD_CACHE_PREFIX + repID.String()
	}
	var resp commissionsapi.DashboardResponse
	if c.cache.GetJSON(ctx, cacheKey, &resp) {
		return &resp, nil
	}

	scoped := func(model interface{}) *gorm.DB {
		q := c.db.WithContext(ctx).Model(model)
		if repID != nil {
			q = q.Where("rep_id = ?", *repID)
		}
		return q
	}

	var subTotals []statusTotal
	err := scoped(&models.CommissionSubmission{}).
		Select("status, count(*) AS count, coalesce(sum(commission_amount), 0) AS commission_amount").
		Group("status").
		Scan(&subTotals).Error
	if err != nil {
		return nil, status.Errorf(codes.Internal, "Failed to summarize submissions: %v", err)
	}

	var docCounts []statusCount
	err = scoped(&models.CommissionDocument{}).
		Select("status, count(*) AS count").
		Group("status").
		Scan(&docCounts).Error
	if err != nil {
		return nil, status.Errorf(codes.Internal, "Failed to summarize documents: %v", err)
	}

	var outstanding decimal.Decimal
	err = scoped(&models.Draw{}).
		Where("status = ?", models.DrawOutstanding).
		Select("coalesce(sum(remaining_balance), 0)").
		Row().Scan(&outstanding)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "Failed to summarize draws: %v", err)
	}

	yearStart := time.Date(time.Now().UTC().Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	var paid decimal.Decimal
	err = scoped(&models.CommissionSubmission{}).
		Where("status = ? AND paid_at >= ?", string(commission.SubmissionPaid), yearStart).
		Select("coalesce(sum(net_payout), 0)").
		Row().Scan(&paid)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "Failed to summarize payouts: %v", err)
	}

	resp = commissionsapi.DashboardResponse{
		RepID:             repID,
		Submissions:       make(map[string]commissionsapi.StatusSummary, len(subTotals)),
		DocumentsByStatus: make(map[string]int64, len(docCounts)),
		OutstandingDraws:  commission.Cents(outstanding),
		PaidYearToDate:    commission.Cents(paid),
	}
	for _, t := range subTotals {
		resp.Submissions[t.Status] = commissionsapi.StatusSummary{Count: t.Count, CommissionAmount: commission.Cents(t.CommissionAmount)}
	}
	for _, d := range docCounts {
		resp.DocumentsByStatus[d.Status] = d.Count
	}

	c.cache.SetJSON(ctx, cacheKey, resp, cache.TTLShort)
	return &resp, nil
}
