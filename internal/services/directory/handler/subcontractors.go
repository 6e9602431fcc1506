package handler

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"roofpro-hub/internal/api/directoryapi"
	"roofpro-hub/internal/database/models"
	"roofpro-hub/internal/permissions"
)

const maxExpiryWindowDays = 365

func applySubcontractor(s *models.Subcontractor, in directoryapi.SubcontractorInput) error {
	name, err := requireName("Company name", in.CompanyName)
	if err != nil {
		return err
	}
	email, err := cleanEmail(in.Email)
	if err != nil {
		return err
	}
	s.CompanyName = name
	s.ContactName = in.ContactName
	s.Email = email
	s.Phone = in.Phone
	s.Trade = in.Trade
	s.InsuranceExpiresAt = in.InsuranceExpiresAt
	s.Notes = in.Notes
	return nil
}

func (h *DirectoryHandler) CreateSubcontractor(ctx context.Context, req *directoryapi.CreateSubcontractorRequest) (*directoryapi.SubcontractorResponse, error) {
	if err := req.Actor.Authorize(permissions.DirectoryManage); err != nil {
		return nil, err
	}
	sub := models.Subcontractor{Status: models.SubcontractorPending}
	if err := applySubcontractor(&sub, req.Input); err != nil {
		return nil, err
	}
	if err := h.db.WithContext(ctx).Create(&sub).Error; err != nil {
		return nil, status.Errorf(codes.Internal, "Failed to create subcontractor: %v", err)
	}
	h.log.WithFields(logrus.Fields{"subcontractor_id": sub.ID, "by": req.Actor.UserID}).Info("subcontractor created")
	return &directoryapi.SubcontractorResponse{Subcontractor: sub}, nil
}

func (h *DirectoryHandler) UpdateSubcontractor(ctx context.Context, req *directoryapi.UpdateSubcontractorRequest) (*directoryapi.SubcontractorResponse, error) {
	if err := req.Actor.Authorize(permissions.DirectoryManage); err != nil {
		return nil, err
	}
	var sub models.Subcontractor
	err := h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&sub, "id = ?", req.ID).Error; err != nil {
			return notFound("Subcontractor", req.ID, err)
		}
		if err := applySubcontractor(&sub, req.Input); err != nil {
			return err
		}
		if err := tx.Save(&sub).Error; err != nil {
			return status.Errorf(codes.Internal, "Failed to update subcontractor: %v", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &directoryapi.SubcontractorResponse{Subcontractor: sub}, nil
}

func (h *DirectoryHandler) GetSubcontractor(ctx context.Context, req *directoryapi.IDRequest) (*directoryapi.SubcontractorResponse, error) {
	if err := req.Actor.Authorize(permissions.DirectoryView); err != nil {
		return nil, err
	}
	var sub models.Subcontractor
	if err := h.db.WithContext(ctx).First(&sub, "id = ?", req.ID).Error; err != nil {
		return nil, notFound("Subcontractor", req.ID, err)
	}
	return &directoryapi.SubcontractorResponse{Subcontractor: sub}, nil
}

func (h *DirectoryHandler) ListSubcontractors(ctx context.Context, req *directoryapi.ListRequest) (*directoryapi.ListSubcontractorsResponse, error) {
	if err := req.Actor.Authorize(permissions.DirectoryView); err != nil {
		return nil, err
	}
	query := h.db.WithContext(ctx).Model(&models.Subcontractor{})
	if req.Status != "" {
		if !subcontractorFlow.known(req.Status) {
			return nil, status.Errorf(codes.InvalidArgument, "Unknown subcontractor status: %s", req.Status)
		}
		query = query.Where("status = ?", req.Status)
	}
	if req.Category != "" {
		query = query.Where("trade = ?", req.Category)
	}
	query = searchClause(query, req.Search, "company_name", "contact_name", "email")

	subs, pageResp, err := page[models.Subcontractor](query, req.Page, "company_name asc", "subcontractors")
	if err != nil {
		return nil, err
	}
	return &directoryapi.ListSubcontractorsResponse{Subcontractors: subs, Page: pageResp}, nil
}

// SetSubcontractorStatus moves a subcontractor along its lifecycle. Approval
// needs insurance on file that has not expired.
func (h *DirectoryHandler) SetSubcontractorStatus(ctx context.Context, req *directoryapi.SetStatusRequest) (*directoryapi.SubcontractorResponse, error) {
	if err := req.Actor.Authorize(permissions.DirectoryManage); err != nil {
		return nil, err
	}
	var sub models.Subcontractor
	var from string
	err := h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&sub, "id = ?", req.ID).Error; err != nil {
			return notFound("Subcontractor", req.ID, err)
		}
		from = sub.Status
		if err := subcontractorFlow.check("subcontractor", from, req.Status); err != nil {
			return err
		}
		if req.Status == models.SubcontractorApproved {
			if sub.InsuranceExpiresAt == nil || !sub.InsuranceExpiresAt.After(time.Now()) {
				return status.Errorf(codes.FailedPrecondition, "Subcontractor %s has no current certificate of insurance", sub.CompanyName)
			}
		}
		sub.Status = req.Status
		if err := tx.Model(&sub).Update("status", req.Status).Error; err != nil {
			return status.Errorf(codes.Internal, "Failed to update subcontractor status: %v", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	h.log.WithFields(logrus.Fields{
		"subcontractor_id": sub.ID,
		"from":             from,
		"to":               sub.Status,
		"by":               req.Actor.UserID,
	}).Info("subcontractor status changed")
	return &directoryapi.SubcontractorResponse{Subcontractor: sub}, nil
}

// ListExpiringInsurance returns approved or pending subcontractors whose
// insurance lapses within the window, already-lapsed ones included.
func (h *DirectoryHandler) ListExpiringInsurance(ctx context.Context, req *directoryapi.ExpiringInsuranceRequest) (*directoryapi.ExpiringInsuranceResponse, error) {
	if err := req.Actor.Authorize(permissions.DirectoryView); err != nil {
		return nil, err
	}
	days := req.Days
	if days <= 0 {
		days = 30
	}
	if days > maxExpiryWindowDays {
		return nil, status.Errorf(codes.InvalidArgument, "Window cannot exceed %d days", maxExpiryWindowDays)
	}
	cutoff := time.Now().UTC().AddDate(0, 0, days)

	subs := []models.Subcontractor{}
	err := h.db.WithContext(ctx).
		Where("status IN ?", []string{models.SubcontractorApproved, models.SubcontractorPending}).
		Where("insurance_expires_at IS NOT NULL AND insurance_expires_at <= ?", cutoff).
		Order("insurance_expires_at asc").
		Find(&subs).Error
	if err != nil {
		return nil, status.Errorf(codes.Internal, "Failed to retrieve subcontractors: %v", err)
	}
	return &directoryapi.ExpiringInsuranceResponse{Cutoff: cutoff, Subcontractors: subs}, nil
}
