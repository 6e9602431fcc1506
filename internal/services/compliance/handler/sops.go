package handler

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"roofpro-hub/internal/api/complianceapi"
	"roofpro-hub/internal/cache"
	"roofpro-hub/internal/database/models"
	"roofpro-hub/internal/notify"
	"roofpro-hub/internal/permissions"
)

func (h *ComplianceHandler) activeSOPs(ctx context.Context) ([]models.SOPDocument, error) {
	var sops []models.SOPDocument
	if h.cache.GetJSON(ctx, SOP_LIST_CACHE_KEY, &sops) {
		return sops, nil
	}
	if err := h.db.WithContext(ctx).Where("is_active = ?", true).Order("number asc").Find(&sops).Error; err != nil {
		return nil, status.Errorf(codes.Internal, "Failed to retrieve SOPs: %v", err)
	}
	h.cache.SetJSON(ctx, SOP_LIST_CACHE_KEY, sops, cache.TTLLong)
	return sops, nil
}

func (h *ComplianceHandler) ListSOPs(ctx context.Context, req *complianceapi.ListSOPsRequest) (*complianceapi.ListSOPsResponse, error) {
	if err := req.Actor.Authorize(); err != nil {
		return nil, err
	}
	if !req.IncludeInactive {
		sops, err := h.activeSOPs(ctx)
		if err != nil {
			return nil, err
		}
		return &complianceapi.ListSOPsResponse{SOPs: sops}, nil
	}

	if err := req.Actor.Authorize(permissions.SOPsManage); err != nil {
		return nil, err
	}
	var sops []models.SOPDocument
	if err := h.db.WithContext(ctx).Order("number asc").Find(&sops).Error; err != nil {
		return nil, status.Errorf(codes.Internal, "Failed to retrieve SOPs: %v", err)
	}
	return &complianceapi.ListSOPsResponse{SOPs: sops}, nil
}

// UpsertSOP creates or edits a catalog entry. A new SOP, or an edit with
// BumpVersion, publishes: users in the required roles must acknowledge the
// new version before the gate opens again.
func (h *ComplianceHandler) UpsertSOP(ctx context.Context, req *complianceapi.UpsertSOPRequest) (*complianceapi.SOPResponse, error) {
	if err := req.Actor.Authorize(permissions.SOPsManage); err != nil {
		return nil, err
	}
	number := strings.ToUpper(strings.TrimSpace(req.Number))
	if !sopNumberPattern.MatchString(number) {
		return nil, status.Errorf(codes.InvalidArgument, "SOP number must look like SOP-001, got %q", req.Number)
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, status.Errorf(codes.InvalidArgument, "SOP title is required")
	}
	roles, err := normalizeRoles(req.RequiredRoles)
	if err != nil {
		return nil, err
	}

	var sop models.SOPDocument
	published := false
	err = h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("number = ?", number).First(&sop).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			sop = models.SOPDocument{
				Number:        number,
				Title:         title,
				Version:       1,
				Summary:       req.Summary,
				BodyURL:       req.BodyURL,
				RequiredRoles: models.StringArray(roles),
				IsActive:      true,
			}
			if err := tx.Create(&sop).Error; err != nil {
				return status.Errorf(codes.Internal, "Failed to create SOP: %v", err)
			}
			if req.IsActive != nil && !*req.IsActive {
				sop.IsActive = false
				if err := tx.Model(&sop).Update("is_active", false).Error; err != nil {
					return status.Errorf(codes.Internal, "Failed to update SOP: %v", err)
				}
			}
			published = sop.IsActive
			return nil
		case err != nil:
			return status.Errorf(codes.Internal, "Failed to get SOP: %v", err)
		}

		sop.Title = title
		sop.Summary = req.Summary
		sop.BodyURL = req.BodyURL
		sop.RequiredRoles = models.StringArray(roles)
		if req.IsActive != nil {
			sop.IsActive = *req.IsActive
		}
		if req.BumpVersion {
			sop.Version++
			published = sop.IsActive
		}
		if err := tx.Save(&sop).Error; err != nil {
			return status.Errorf(codes.Internal, "Failed to update SOP: %v", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	h.cache.Del(ctx, SOP_LIST_CACHE_KEY)
	h.InvalidateGates(ctx)

	if published {
		h.notify(ctx, notify.TemplateSOPPublished, h.emailsFor(ctx, nil, sop.RequiredRoles), map[string]string{
			"number":  sop.Number,
			"title":   sop.Title,
			"version": strconv.Itoa(sop.Version),
		})
	}
	h.log.WithFields(logrus.Fields{
		"sop":       sop.Number,
		"version":   sop.Version,
		"published": published,
		"by":        req.Actor.UserID,
	}).Info("sop saved")

	return &complianceapi.SOPResponse{SOP: sop, Published: published}, nil
}

// AcknowledgeSOP records that the actor read the current version. Repeating
// it returns the existing acknowledgment.
func (h *ComplianceHandler) AcknowledgeSOP(ctx context.Context, req *complianceapi.AcknowledgeSOPRequest) (*complianceapi.AcknowledgeSOPResponse, error) {
	if err := req.Actor.Authorize(); err != nil {
		return nil, err
	}
	number := strings.ToUpper(strings.TrimSpace(req.Number))

	var sop models.SOPDocument
	if err := h.db.WithContext(ctx).Where("number = ? AND is_active = ?", number, true).First(&sop).Error; err != nil {
		return nil, notFound("SOP", number, err)
	}

	ack := models.SOPAcknowledgment{}
	err := h.db.WithContext(ctx).
		Where(models.SOPAcknowledgment{UserID: req.Actor.UserID, SOPNumber: sop.Number, Version: sop.Version}).
		Attrs(models.SOPAcknowledgment{AcknowledgedAt: time.Now().UTC()}).
		FirstOrCreate(&ack).Error
	if err != nil {
		return nil, status.Errorf(codes.Internal, "Failed to record acknowledgment: %v", err)
	}

	h.InvalidateGates(ctx, req.Actor.UserID)
	gate, err := h.gateFor(ctx, req.Actor.UserID, req.Actor.Role)
	if err != nil {
		return nil, err
	}
	return &complianceapi.AcknowledgeSOPResponse{Acknowledgment: ack, Gate: *gate}, nil
}

func (h *ComplianceHandler) GetGateStatus(ctx context.Context, req *complianceapi.GateStatusRequest) (*complianceapi.GateStatus, error) {
	if err := req.Actor.Authorize(); err != nil {
		return nil, err
	}
	if req.UserID == nil || req.Actor.Owns(*req.UserID) {
		return h.gateFor(ctx, req.Actor.UserID, req.Actor.Role)
	}

	if err := req.Actor.Authorize(permissions.ComplianceView, permissions.UsersManage); err != nil {
		return nil, err
	}
	var user models.Profile
	if err := h.db.WithContext(ctx).Select("id", "role").First(&user, "id = ?", *req.UserID).Error; err != nil {
		return nil, notFound("User", *req.UserID, err)
	}
	return h.gateFor(ctx, user.ID, user.Role)
}

func (h *ComplianceHandler) gateFor(ctx context.Context, userID uuid.UUID, role string) (*complianceapi.GateStatus, error) {
	key := cache.GateKey(userID)
	var gate complianceapi.GateStatus
	if h.cache.GetJSON(ctx, key, &gate) && gate.Role == role {
		return &gate, nil
	}

	sops, err := h.activeSOPs(ctx)
	if err != nil {
		return nil, err
	}
	var acks []models.SOPAcknowledgment
	if err := h.db.WithContext(ctx).Where("user_id = ?", userID).Find(&acks).Error; err != nil {
		return nil, status.Errorf(codes.Internal, "Failed to retrieve acknowledgments: %v", err)
	}

	gate = buildGate(userID, role, sops, acks)
	h.cache.SetJSON(ctx, key, gate, cache.TTLShort)
	return &gate, nil
}

// buildGate lists the SOPs role must acknowledge and marks which are
// acknowledged at their current version. Older acknowledgments do not count.
func buildGate(userID uuid.UUID, role string, sops []models.SOPDocument, acks []models.SOPAcknowledgment) complianceapi.GateStatus {
	latest := make(map[string]models.SOPAcknowledgment, len(acks))
	current := make(map[string]models.SOPAcknowledgment, len(acks))
	for _, a := range acks {
		if prev, ok := latest[a.SOPNumber]; !ok || a.Version > prev.Version {
			latest[a.SOPNumber] = a
		}
	}
	for _, s := range sops {
		for _, a := range acks {
			if a.SOPNumber == s.Number && a.Version == s.Version {
				current[s.Number] = a
			}
		}
	}

	gate := complianceapi.GateStatus{
		UserID:   userID,
		Role:     role,
		Required: []complianceapi.GateItem{},
		Missing:  []string{},
	}
	for _, s := range sops {
		if !s.RequiredFor(role) {
			continue
		}
		item := complianceapi.GateItem{Number: s.Number, Title: s.Title, Version: s.Version}
		if a, ok := latest[s.Number]; ok {
			item.AcknowledgedVersion = a.Version
		}
		if a, ok := current[s.Number]; ok {
			at := a.AcknowledgedAt
			item.Acknowledged = true
			item.AcknowledgedVersion = a.Version
			item.AcknowledgedAt = &at
		} else {
			gate.Missing = append(gate.Missing, s.Number)
		}
		gate.Required = append(gate.Required, item)
	}
	sort.Strings(gate.Missing)
	gate.Complete = len(gate.Missing) == 0
	return gate
}
