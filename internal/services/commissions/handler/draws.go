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

	"roofpro-hub/internal/api"
	"roofpro-hub/internal/api/commissionsapi"
	"roofpro-hub/internal/commission"
	"roofpro-hub/internal/database/models"
	"roofpro-hub/internal/permissions"
)

func (c *CommissionHandler) CreateDraw(ctx context.Context, req *commissionsapi.CreateDrawRequest) (*commissionsapi.DrawResponse, error) {
	if err := req.Actor.Authorize(permissions.DrawsManage); err != nil {
		return nil, err
	}
	if req.RepID == uuid.Nil {
		return nil, status.Errorf(codes.InvalidArgument, "Rep ID is required")
	}
	amount := commission.Cents(req.Amount)
	if !amount.IsPositive() {
		return nil, status.Errorf(codes.InvalidArgument, "Draw amount must be greater than zero")
	}

	issuedAt := time.Now().UTC()
	if req.IssuedAt != nil && !req.IssuedAt.IsZero() {
		issuedAt = req.IssuedAt.UTC()
	}

	draw := models.Draw{
		RepID:            req.RepID,
		Amount:           amount,
		RemainingBalance: amount,
		Reason:           strings.TrimSpace(req.Reason),
		Status:           models.DrawOutstanding,
		IssuedBy:         req.Actor.UserID,
		IssuedAt:         issuedAt,
	}

	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rep models.Profile
		if err := tx.Select("id").First(&rep, "id = ?", req.RepID).Error; err != nil {
			return notFound("Rep", req.RepID, err)
		}
		if err := tx.Create(&draw).Error; err != nil {
			return status.Errorf(codes.Internal, "Failed to create draw: %v", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.InvalidateCommissionCaches(ctx, req.RepID)
	c.log.WithFields(logrus.Fields{"draw_id": draw.ID, "rep_id": draw.RepID, "amount": draw.Amount.String()}).Info("draw issued")

	return &commissionsapi.DrawResponse{Draw: draw}, nil
}

// drawScope resolves whose draws the actor may read. Reading another rep's
// draws, or everyone's, needs draws.manage.
func drawScope(actor api.Actor, repID *uuid.UUID) (*uuid.UUID, error) {
	if err := actor.Authorize(permissions.DrawsViewOwn, permissions.DrawsManage); err != nil {
		return nil, err
	}
	if repID != nil && actor.Owns(*repID) {
		return repID, nil
	}
	if actor.Can(permissions.DrawsManage) {
		return repID, nil
	}
	if repID != nil {
		return nil, status.Errorf(codes.PermissionDenied, "Draws for another rep require %s", permissions.DrawsManage)
	}
	own := actor.UserID
	return &own, nil
}

func (c *CommissionHandler) ListDraws(ctx context.Context, req *commissionsapi.ListDrawsRequest) (*commissionsapi.ListDrawsResponse, error) {
	repID, err := drawScope(req.Actor, req.RepID)
	if err != nil {
		return nil, err
	}

	query := c.db.WithContext(ctx).Model(&models.Draw{})
	if repID != nil {
		query = query.Where("rep_id = ?", *repID)
	}
	if req.Status != "" {
		if req.Status != models.DrawOutstanding && req.Status != models.DrawSettled {
			return nil, status.Errorf(codes.InvalidArgument, "Unknown draw status: %s", req.Status)
		}
		query = query.Where("status = ?", req.Status)
	}

	var draws []models.Draw
	if err := query.Preload("Applications").Order("issued_at asc").Find(&draws).Error; err != nil {
		return nil, status.Errorf(codes.Internal, "Failed to retrieve draws: %v", err)
	}

	return &commissionsapi.ListDrawsResponse{
		Draws:              draws,
		OutstandingBalance: commission.OutstandingBalance(toOutstanding(draws)),
	}, nil
}

func (c *CommissionHandler) GetDrawBalance(ctx context.Context, req *commissionsapi.DrawBalanceRequest) (*commissionsapi.DrawBalanceResponse, error) {
	if req.RepID == uuid.Nil {
		return nil, status.Errorf(codes.InvalidArgument, "Rep ID is required")
	}
	if _, err := drawScope(req.Actor, &req.RepID); err != nil {
		return nil, err
	}

	var draws []models.Draw
	err := c.db.WithContext(ctx).
		Where("rep_id = ? AND status = ?", req.RepID, models.DrawOutstanding).
		Find(&draws).Error
	if err != nil {
		return nil, status.Errorf(codes.Internal, "Failed to retrieve draws: %v", err)
	}

	return &commissionsapi.DrawBalanceResponse{
		RepID:              req.RepID,
		OutstandingBalance: commission.OutstandingBalance(toOutstanding(draws)),
		OutstandingCount:   len(draws),
	}, nil
}

func toOutstanding(draws []models.Draw) []commission.OutstandingDraw {
	out := make([]commission.OutstandingDraw, 0, len(draws))
	for _, d := range draws {
		if d.Status != models.DrawOutstanding {
			continue
		}
		out = append(out, commission.OutstandingDraw{
			ID:               d.ID.String(),
			RemainingBalance: d.RemainingBalance,
			IssuedAt:         d.IssuedAt,
		})
	}
	return out
}
