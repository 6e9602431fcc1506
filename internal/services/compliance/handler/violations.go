package handler

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"roofpro-hub/internal/api"
	"roofpro-hub/internal/api/complianceapi"
	"roofpro-hub/internal/database/models"
	"roofpro-hub/internal/permissions"
)

func (h *ComplianceHandler) RecordViolation(ctx context.Context, req *complianceapi.RecordViolationRequest) (*complianceapi.ViolationResponse, error) {
	if err := req.Actor.Authorize(permissions.ComplianceManage); err != nil {
		return nil, err
	}
	description := strings.TrimSpace(req.Description)
	if description == "" {
		return nil, status.Errorf(codes.InvalidArgument, "A violation description is required")
	}
	severity := strings.ToLower(strings.TrimSpace(req.Severity))
	if !models.ValidSeverity(severity) {
		return nil, status.Errorf(codes.InvalidArgument, "Severity must be low, medium or high")
	}

	violation := models.ComplianceViolation{
		UserID:      req.UserID,
		Description: description,
		Severity:    severity,
		Status:      models.ViolationOpen,
		ReportedBy:  req.Actor.UserID,
	}
	if req.SOPNumber != nil {
		violation.SOPNumber = strPtr(strings.ToUpper(*req.SOPNumber))
	}
	if req.JobNumber != nil {
		violation.JobNumber = strPtr(*req.JobNumber)
	}

	var hold *models.ComplianceHold
	err := h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Profile{}).Where("id = ?", req.UserID).Count(&count).Error; err != nil {
			return status.Errorf(codes.Internal, "Failed to check user: %v", err)
		}
		if count == 0 {
			return status.Errorf(codes.NotFound, "User with ID %s not found", req.UserID)
		}

		if req.PlaceHold {
			userID := req.UserID
			hold = &models.ComplianceHold{
				UserID:                  &userID,
				JobNumber:               violation.JobNumber,
				Reason:                  "Violation: " + description,
				BlocksCommissionPayment: true,
				Status:                  models.HoldActive,
				PlacedBy:                req.Actor.UserID,
			}
			if err := tx.Create(hold).Error; err != nil {
				return status.Errorf(codes.Internal, "Failed to place hold: %v", err)
			}
			violation.HoldID = &hold.ID
		}

		if err := tx.Create(&violation).Error; err != nil {
			return status.Errorf(codes.Internal, "Failed to record violation: %v", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if hold != nil {
		h.afterHoldPlaced(ctx, *hold)
	}
	h.log.WithFields(logrus.Fields{
		"violation_id": violation.ID,
		"user_id":      violation.UserID,
		"severity":     violation.Severity,
		"hold":         hold != nil,
	}).Info("compliance violation recorded")

	return &complianceapi.ViolationResponse{Violation: violation, Hold: hold}, nil
}

// ResolveViolation closes an open violation and, with ReleaseHold, the hold
// it placed.
func (h *ComplianceHandler) ResolveViolation(ctx context.Context, req *complianceapi.ResolveViolationRequest) (*complianceapi.ViolationResponse, error) {
	if err := req.Actor.Authorize(permissions.ComplianceManage); err != nil {
		return nil, err
	}

	var violation models.ComplianceViolation
	var hold *models.ComplianceHold
	err := h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&violation, "id = ?", req.ID).Error; err != nil {
			return notFound("Violation", req.ID, err)
		}
		if violation.Status != models.ViolationOpen {
			return status.Errorf(codes.FailedPrecondition, "Violation %s is already %s", req.ID, violation.Status)
		}

		now := time.Now().UTC()
		violation.Status = models.ViolationResolved
		violation.ResolvedBy = &req.Actor.UserID
		violation.ResolvedAt = &now
		if err := tx.Save(&violation).Error; err != nil {
			return status.Errorf(codes.Internal, "Failed to resolve violation: %v", err)
		}

		if req.ReleaseHold && violation.HoldID != nil {
			note := strings.TrimSpace(req.Note)
			if note == "" {
				note = "Violation resolved"
			}
			hold = &models.ComplianceHold{}
			if err := resolveHold(tx, *violation.HoldID, req.Actor, note, hold); err != nil {
				if status.Code(err) == codes.FailedPrecondition {
					hold = nil
					return nil
				}
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	h.log.WithFields(logrus.Fields{
		"violation_id":  violation.ID,
		"hold_released": hold != nil,
		"by":            req.Actor.UserID,
	}).Info("compliance violation resolved")
	return &complianceapi.ViolationResponse{Violation: violation, Hold: hold}, nil
}

// ListViolations shows everything to compliance viewers and only their own
// violations to everyone else.
func (h *ComplianceHandler) ListViolations(ctx context.Context, req *complianceapi.ListViolationsRequest) (*complianceapi.ListViolationsResponse, error) {
	if err := req.Actor.Authorize(); err != nil {
		return nil, err
	}

	query := h.db.WithContext(ctx).Model(&models.ComplianceViolation{})
	switch {
	case !req.Actor.Can(permissions.ComplianceView):
		if req.UserID != nil && !req.Actor.Owns(*req.UserID) {
			return nil, status.Errorf(codes.PermissionDenied, "You may only list your own violations")
		}
		query = query.Where("user_id = ?", req.Actor.UserID)
	case req.UserID != nil:
		query = query.Where("user_id = ?", *req.UserID)
	}
	if req.Status != "" {
		if req.Status != models.ViolationOpen && req.Status != models.ViolationResolved {
			return nil, status.Errorf(codes.InvalidArgument, "Unknown violation status: %s", req.Status)
		}
		query = query.Where("status = ?", req.Status)
	}
	if req.Severity != "" {
		if !models.ValidSeverity(req.Severity) {
			return nil, status.Errorf(codes.InvalidArgument, "Unknown severity: %s", req.Severity)
		}
		query = query.Where("severity = ?", req.Severity)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, status.Errorf(codes.Internal, "Failed to count violations: %v", err)
	}
	_, limit, offset := req.Page.Bounds()
	var violations []models.ComplianceViolation
	if err := query.Order("created_at desc").Offset(offset).Limit(limit).Find(&violations).Error; err != nil {
		return nil, status.Errorf(codes.Internal, "Failed to retrieve violations: %v", err)
	}
	return &complianceapi.ListViolationsResponse{Violations: violations, Page: api.NewPageResponse(req.Page, total)}, nil
}
