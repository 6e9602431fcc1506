package handler

import (
	"context"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"roofpro-hub/internal/api"
	"roofpro-hub/internal/api/directoryapi"
	"roofpro-hub/internal/database/models"
	"roofpro-hub/internal/permissions"
)

// canWorkProspect lets reps work their own prospects without
// directory.manage.
func canWorkProspect(actor api.Actor, p models.Prospect) bool {
	if actor.Can(permissions.DirectoryManage) {
		return true
	}
	return p.AssignedRepID != nil && actor.Owns(*p.AssignedRepID) && actor.Can(permissions.CommissionsCreate)
}

func applyProspect(p *models.Prospect, in directoryapi.ProspectInput) error {
	name, err := requireName("Name", in.Name)
	if err != nil {
		return err
	}
	email, err := cleanEmail(in.Email)
	if err != nil {
		return err
	}
	p.Name = name
	p.ContactName = in.ContactName
	p.Email = email
	p.Phone = in.Phone
	p.Source = in.Source
	p.Notes = in.Notes
	return nil
}

func (h *DirectoryHandler) ensureRep(tx *gorm.DB, id uuid.UUID) error {
	var count int64
	if err := tx.Model(&models.Profile{}).Where("id = ? AND employment_status = ?", id, models.EmploymentActive).Count(&count).Error; err != nil {
		return status.Errorf(codes.Internal, "Failed to check assigned rep: %v", err)
	}
	if count == 0 {
		return status.Errorf(codes.FailedPrecondition, "Assigned rep %s is not an active user", id)
	}
	return nil
}

func (h *DirectoryHandler) CreateProspect(ctx context.Context, req *directoryapi.CreateProspectRequest) (*directoryapi.ProspectResponse, error) {
	if err := req.Actor.Authorize(permissions.DirectoryManage, permissions.CommissionsCreate); err != nil {
		return nil, err
	}
	prospect := models.Prospect{Status: models.ProspectNew, AssignedRepID: req.Input.AssignedRepID}
	if err := applyProspect(&prospect, req.Input); err != nil {
		return nil, err
	}
	if !req.Actor.Can(permissions.DirectoryManage) {
		if prospect.AssignedRepID != nil && !req.Actor.Owns(*prospect.AssignedRepID) {
			return nil, status.Errorf(codes.PermissionDenied, "You may only create prospects assigned to yourself")
		}
		prospect.AssignedRepID = &req.Actor.UserID
	}

	err := h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if prospect.AssignedRepID != nil {
			if err := h.ensureRep(tx, *prospect.AssignedRepID); err != nil {
				return err
			}
		}
		if err := tx.Create(&prospect).Error; err != nil {
			return status.Errorf(codes.Internal, "Failed to create prospect: %v", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	h.log.WithFields(logrus.Fields{"prospect_id": prospect.ID, "by": req.Actor.UserID}).Info("prospect created")
	return &directoryapi.ProspectResponse{Prospect: prospect}, nil
}

func (h *DirectoryHandler) UpdateProspect(ctx context.Context, req *directoryapi.UpdateProspectRequest) (*directoryapi.ProspectResponse, error) {
	if err := req.Actor.Authorize(); err != nil {
		return nil, err
	}
	var prospect models.Prospect
	err := h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&prospect, "id = ?", req.ID).Error; err != nil {
			return notFound("Prospect", req.ID, err)
		}
		if !canWorkProspect(req.Actor, prospect) {
			return status.Errorf(codes.PermissionDenied, "You may not edit this prospect")
		}
		if err := applyProspect(&prospect, req.Input); err != nil {
			return err
		}
		if req.Actor.Can(permissions.DirectoryManage) {
			if req.Input.AssignedRepID != nil {
				if err := h.ensureRep(tx, *req.Input.AssignedRepID); err != nil {
					return err
				}
			}
			prospect.AssignedRepID = req.Input.AssignedRepID
		}
		if err := tx.Save(&prospect).Error; err != nil {
			return status.Errorf(codes.Internal, "Failed to update prospect: %v", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &directoryapi.ProspectResponse{Prospect: prospect}, nil
}

func (h *DirectoryHandler) GetProspect(ctx context.Context, req *directoryapi.IDRequest) (*directoryapi.ProspectResponse, error) {
	if err := req.Actor.Authorize(permissions.DirectoryView); err != nil {
		return nil, err
	}
	var prospect models.Prospect
	if err := h.db.WithContext(ctx).First(&prospect, "id = ?", req.ID).Error; err != nil {
		return nil, notFound("Prospect", req.ID, err)
	}
	return &directoryapi.ProspectResponse{Prospect: prospect}, nil
}

func (h *DirectoryHandler) ListProspects(ctx context.Context, req *directoryapi.ListRequest) (*directoryapi.ListProspectsResponse, error) {
	if err := req.Actor.Authorize(permissions.DirectoryView); err != nil {
		return nil, err
	}
	query := h.db.WithContext(ctx).Model(&models.Prospect{})
	if req.Status != "" {
		if !prospectFlow.known(req.Status) {
			return nil, status.Errorf(codes.InvalidArgument, "Unknown prospect status: %s", req.Status)
		}
		query = query.Where("status = ?", req.Status)
	}
	if req.Category != "" {
		query = query.Where("source = ?", req.Category)
	}
	if req.AssignedRepID != nil {
		query = query.Where("assigned_rep_id = ?", *req.AssignedRepID)
	}
	query = searchClause(query, req.Search, "name", "contact_name", "email")

	prospects, pageResp, err := page[models.Prospect](query, req.Page, "created_at desc", "prospects")
	if err != nil {
		return nil, err
	}
	return &directoryapi.ListProspectsResponse{Prospects: prospects, Page: pageResp}, nil
}

func (h *DirectoryHandler) SetProspectStatus(ctx context.Context, req *directoryapi.SetStatusRequest) (*directoryapi.ProspectResponse, error) {
	if err := req.Actor.Authorize(); err != nil {
		return nil, err
	}
	var prospect models.Prospect
	var from string
	err := h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&prospect, "id = ?", req.ID).Error; err != nil {
			return notFound("Prospect", req.ID, err)
		}
		if !canWorkProspect(req.Actor, prospect) {
			return status.Errorf(codes.PermissionDenied, "You may not update this prospect")
		}
		from = prospect.Status
		if err := prospectFlow.check("prospect", from, req.Status); err != nil {
			return err
		}
		prospect.Status = req.Status
		if err := tx.Model(&prospect).Update("status", req.Status).Error; err != nil {
			return status.Errorf(codes.Internal, "Failed to update prospect status: %v", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	h.log.WithFields(logrus.Fields{
		"prospect_id": prospect.ID,
		"from":        from,
		"to":          prospect.Status,
		"by":          req.Actor.UserID,
	}).Info("prospect status changed")
	return &directoryapi.ProspectResponse{Prospect: prospect}, nil
}
