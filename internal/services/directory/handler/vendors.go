package handler

import (
	"context"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"roofpro-hub/internal/api/directoryapi"
	"roofpro-hub/internal/database/models"
	"roofpro-hub/internal/permissions"
)

func applyVendor(v *models.Vendor, in directoryapi.VendorInput) error {
	name, err := requireName("Company name", in.CompanyName)
	if err != nil {
		return err
	}
	email, err := cleanEmail(in.Email)
	if err != nil {
		return err
	}
	v.CompanyName = name
	v.ContactName = in.ContactName
	v.Email = email
	v.Phone = in.Phone
	v.Category = in.Category
	v.AccountNumber = in.AccountNumber
	v.Notes = in.Notes
	return nil
}

func (h *DirectoryHandler) CreateVendor(ctx context.Context, req *directoryapi.CreateVendorRequest) (*directoryapi.VendorResponse, error) {
	if err := req.Actor.Authorize(permissions.DirectoryManage); err != nil {
		return nil, err
	}
	vendor := models.Vendor{Status: models.VendorActive}
	if err := applyVendor(&vendor, req.Input); err != nil {
		return nil, err
	}
	if err := h.db.WithContext(ctx).Create(&vendor).Error; err != nil {
		return nil, status.Errorf(codes.Internal, "Failed to create vendor: %v", err)
	}
	h.log.WithFields(logrus.Fields{"vendor_id": vendor.ID, "by": req.Actor.UserID}).Info("vendor created")
	return &directoryapi.VendorResponse{Vendor: vendor}, nil
}

func (h *DirectoryHandler) UpdateVendor(ctx context.Context, req *directoryapi.UpdateVendorRequest) (*directoryapi.VendorResponse, error) {
	if err := req.Actor.Authorize(permissions.DirectoryManage); err != nil {
		return nil, err
	}
	var vendor models.Vendor
	err := h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&vendor, "id = ?", req.ID).Error; err != nil {
			return notFound("Vendor", req.ID, err)
		}
		if err := applyVendor(&vendor, req.Input); err != nil {
			return err
		}
		if err := tx.Save(&vendor).Error; err != nil {
			return status.Errorf(codes.Internal, "Failed to update vendor: %v", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &directoryapi.VendorResponse{Vendor: vendor}, nil
}

func (h *DirectoryHandler) GetVendor(ctx context.Context, req *directoryapi.IDRequest) (*directoryapi.VendorResponse, error) {
	if err := req.Actor.Authorize(permissions.DirectoryView); err != nil {
		return nil, err
	}
	var vendor models.Vendor
	if err := h.db.WithContext(ctx).First(&vendor, "id = ?", req.ID).Error; err != nil {
		return nil, notFound("Vendor", req.ID, err)
	}
	return &directoryapi.VendorResponse{Vendor: vendor}, nil
}

func (h *DirectoryHandler) ListVendors(ctx context.Context, req *directoryapi.ListRequest) (*directoryapi.ListVendorsResponse, error) {
	if err := req.Actor.Authorize(permissions.DirectoryView); err != nil {
		return nil, err
	}
	query := h.db.WithContext(ctx).Model(&models.Vendor{})
	if req.Status != "" {
		if !vendorFlow.known(req.Status) {
			return nil, status.Errorf(codes.InvalidArgument, "Unknown vendor status: %s", req.Status)
		}
		query = query.Where("status = ?", req.Status)
	}
	if req.Category != "" {
		query = query.Where("category = ?", req.Category)
	}
	query = searchClause(query, req.Search, "company_name", "contact_name", "email", "account_number")

	vendors, pageResp, err := page[models.Vendor](query, req.Page, "company_name asc", "vendors")
	if err != nil {
		return nil, err
	}
	return &directoryapi.ListVendorsResponse{Vendors: vendors, Page: pageResp}, nil
}

func (h *DirectoryHandler) SetVendorStatus(ctx context.Context, req *directoryapi.SetStatusRequest) (*directoryapi.VendorResponse, error) {
	if err := req.Actor.Authorize(permissions.DirectoryManage); err != nil {
		return nil, err
	}
	var vendor models.Vendor
	err := h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&vendor, "id = ?", req.ID).Error; err != nil {
			return notFound("Vendor", req.ID, err)
		}
		if err := vendorFlow.check("vendor", vendor.Status, req.Status); err != nil {
			return err
		}
		vendor.Status = req.Status
		if err := tx.Model(&vendor).Update("status", req.Status).Error; err != nil {
			return status.Errorf(codes.Internal, "Failed to update vendor status: %v", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &directoryapi.VendorResponse{Vendor: vendor}, nil
}
