package handler

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"roofpro-hub/internal/api"
	"roofpro-hub/internal/api/complianceapi"
	"roofpro-hub/internal/database/models"
	"roofpro-hub/internal/notify"
	"roofpro-hub/internal/permissions"
)

func validAction(action string) bool {
	switch action {
	case models.ActionCommissionPayment, models.ActionInvoicing, models.ActionScheduling:
		return true
	}
	return false
}

func (h *ComplianceHandler) PlaceHold(ctx context.Context, req *complianceapi.PlaceHoldRequest) (*complianceapi.HoldResponse, error) {
	if err := req.Actor.Authorize(permissions.ComplianceManage); err != nil {
		return nil, err
	}
	var jobNumber *string
	if req.JobNumber != nil {
		jobNumber = strPtr(*req.JobNumber)
	}
	if req.UserID == nil && jobNumber == nil {
		return nil, status.Errorf(codes.InvalidArgument, "A hold needs a user or a job number")
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return nil, status.Errorf(codes.InvalidArgument, "A hold reason is required")
	}
	if !req.BlocksCommissionPayment && !req.BlocksInvoicing && !req.BlocksScheduling {
		return nil, status.Errorf(codes.InvalidArgument, "A hold must block at least one action")
	}

	hold := models.ComplianceHold{
		UserID:                  req.UserID,
		JobNumber:               jobNumber,
		Reason:                  reason,
		BlocksCommissionPayment: req.BlocksCommissionPayment,
		BlocksInvoicing:         req.BlocksInvoicing,
		BlocksScheduling:        req.BlocksScheduling,
		Status:                  models.HoldActive,
		PlacedBy:                req.Actor.UserID,
	}
	err := h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if hold.UserID != nil {
			var count int64
			if err := tx.Model(&models.Profile{}).Where("id = ?", *hold.UserID).Count(&count).Error; err != nil {
				return status.Errorf(codes.Internal, "Failed to check user: %v", err)
			}
			if count == 0 {
				return status.Errorf(codes.NotFound, "User with ID %s not found", *hold.UserID)
			}
		}
		if err := tx.Create(&hold).Error; err != nil {
			return status.Errorf(codes.Internal, "Failed to place hold: %v", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	h.afterHoldPlaced(ctx, hold)
	return &complianceapi.HoldResponse{Hold: hold}, nil
}

// afterHoldPlaced tells the held user and accounting.
func (h *ComplianceHandler) afterHoldPlaced(ctx context.Context, hold models.ComplianceHold) {
	var ids []uuid.UUID
	if hold.UserID != nil {
		ids = append(ids, *hold.UserID)
	}
	data := map[string]string{
		"hold_id": hold.ID.String(),
		"reason":  hold.Reason,
		"blocks":  strings.Join(blockedActions(hold), ", "),
	}
	if hold.JobNumber != nil {
		data["job"] = *hold.JobNumber
	}
	h.notify(ctx, notify.TemplateHoldPlaced, h.emailsFor(ctx, ids, []string{string(permissions.RoleAccounting)}), data)

	h.log.WithFields(logrus.Fields{
		"hold_id": hold.ID,
		"user_id": hold.UserID,
		"job":     hold.JobNumber,
		"by":      hold.PlacedBy,
	}).Info("compliance hold placed")
}

func blockedActions(hold models.ComplianceHold) []string {
	var out []string
	for _, a := range []string{models.ActionCommissionPayment, models.ActionInvoicing, models.ActionScheduling} {
		if hold.Blocks(a) {
			out = append(out, a)
		}
	}
	return out
}

func (h *ComplianceHandler) ResolveHold(ctx context.Context, req *complianceapi.ResolveHoldRequest) (*complianceapi.HoldResponse, error) {
	if err := req.Actor.Authorize(permissions.ComplianceManage); err != nil {
		return nil, err
	}
	note := strings.TrimSpace(req.Note)
	if note == "" {
		return nil, status.Errorf(codes.InvalidArgument, "A resolution note is required")
	}

	var hold models.ComplianceHold
	err := h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return resolveHold(tx, req.ID, req.Actor, note, &hold)
	})
	if err != nil {
		return nil, err
	}

	h.log.WithFields(logrus.Fields{"hold_id": hold.ID, "by": req.Actor.UserID}).Info("compliance hold resolved")
	return &complianceapi.HoldResponse{Hold: hold}, nil
}

func resolveHold(tx *gorm.DB, id uuid.UUID, actor api.Actor, note string, hold *models.ComplianceHold) error {
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(hold, "id = ?", id).Error; err != nil {
		return notFound("Hold", id, err)
	}
	if hold.Status != models.HoldActive {
		return status.Errorf(codes.FailedPrecondition, "Hold %s is already %s", id, hold.Status)
	}
	now := time.Now().UTC()
	hold.Status = models.HoldResolved
	hold.ResolvedBy = &actor.UserID
	hold.ResolvedAt = &now
	hold.ResolutionNote = &note
	if err := tx.Save(hold).Error; err != nil {
		return status.Errorf(codes.Internal, "Failed to resolve hold: %v", err)
	}
	return nil
}

func (h *ComplianceHandler) ListHolds(ctx context.Context, req *complianceapi.ListHoldsRequest) (*complianceapi.ListHoldsResponse, error) {
	if err := req.Actor.Authorize(permissions.ComplianceView, permissions.CommissionsPay); err != nil {
		return nil, err
	}

	query := h.db.WithContext(ctx).Model(&models.ComplianceHold{})
	if req.UserID != nil {
		query = query.Where("user_id = ?", *req.UserID)
	}
	if job := strings.TrimSpace(req.JobNumber); job != "" {
		query = query.Where("job_number = ?", job)
	}
	if req.Status != "" {
		if req.Status != models.HoldActive && req.Status != models.HoldResolved {
			return nil, status.Errorf(codes.InvalidArgument, "Unknown hold status: %s", req.Status)
		}
		query = query.Where("status = ?", req.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, status.Errorf(codes.Internal, "Failed to count holds: %v", err)
	}
	_, limit, offset := req.Page.Bounds()
	var holds []models.ComplianceHold
	if err := query.Order("created_at desc").Offset(offset).Limit(limit).Find(&holds).Error; err != nil {
		return nil, status.Errorf(codes.Internal, "Failed to retrieve holds: %v", err)
	}
	return &complianceapi.ListHoldsResponse{Holds: holds, Page: api.NewPageResponse(req.Page, total)}, nil
}

// CheckHolds answers whether action is blocked for a user, a job, or both.
func (h *ComplianceHandler) CheckHolds(ctx context.Context, req *complianceapi.CheckHoldsRequest) (*complianceapi.CheckHoldsResponse, error) {
	if err := req.Actor.Authorize(permissions.ComplianceView, permissions.CommissionsPay); err != nil {
		return nil, err
	}
	if !validAction(req.Action) {
		return nil, status.Errorf(codes.InvalidArgument, "Unknown action: %s", req.Action)
	}
	job := strings.TrimSpace(req.JobNumber)
	if req.UserID == nil && job == "" {
		return nil, status.Errorf(codes.InvalidArgument, "A user or a job number is required")
	}

	query := h.db.WithContext(ctx).Where("status = ?", models.HoldActive)
	switch {
	case req.UserID != nil && job != "":
		query = query.Where("user_id = ? OR job_number = ?", *req.UserID, job)
	case req.UserID != nil:
		query = query.Where("user_id = ?", *req.UserID)
	default:
		query = query.Where("job_number = ?", job)
	}
	var holds []models.ComplianceHold
	if err := query.Order("created_at asc").Find(&holds).Error; err != nil {
		return nil, status.Errorf(codes.Internal, "Failed to check holds: %v", err)
	}

	resp := &complianceapi.CheckHoldsResponse{Action: req.Action, Blocking: []models.ComplianceHold{}}
	for _, hold := range holds {
		if hold.Blocks(req.Action) {
			resp.Blocking = append(resp.Blocking, hold)
		}
	}
	resp.Blocked = len(resp.Blocking) > 0
	return resp, nil
}
