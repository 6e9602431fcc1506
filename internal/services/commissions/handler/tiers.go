package handler

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gorm.io/gorm"

	"roofpro-hub/internal/api/commissionsapi"
	"roofpro-hub/internal/cache"
	"roofpro-hub/internal/commission"
	"roofpro-hub/internal/database/models"
	"roofpro-hub/internal/permissions"
)

var maxMarginPercent = decimal.NewFromInt(100)

func toDomainTier(t models.CommissionTier) commission.Tier {
	return commission.Tier{
		ID:               t.ID.String(),
		Name:             t.Name,
		Level:            t.Level,
		OPPercents:       []decimal.Decimal(t.OPPercents),
		ProfitSplits:     []decimal.Decimal(t.ProfitSplits),
		MinMarginPercent: t.MinMarginPercent,
	}
}

// activeTiers returns the active tiers ordered by level, read through the
// cache.
func (c *CommissionHandler) activeTiers(ctx context.Context, db *gorm.DB) ([]models.CommissionTier, error) {
	var tiers []models.CommissionTier
	if c.cache.GetJSON(ctx, TIERS_CACHE_KEY, &tiers) {
		return tiers, nil
	}
	if err := db.WithContext(ctx).Where("is_active = ?", true).Order("level asc").Find(&tiers).Error; err != nil {
		return nil, status.Errorf(codes.Internal, "Failed to load commission tiers: %v", err)
	}
	c.cache.SetJSON(ctx, TIERS_CACHE_KEY, tiers, cache.TTLLong)
	return tiers, nil
}

func validateTierInput(in commissionsapi.TierInput) (opPercents, splits []decimal.Decimal, err error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, nil, status.Errorf(codes.InvalidArgument, "Tier name is required")
	}
	if in.Level < 1 {
		return nil, nil, status.Errorf(codes.InvalidArgument, "Tier level must be at least 1")
	}
	if in.MinMarginPercent.IsNegative() || in.MinMarginPercent.GreaterThan(maxMarginPercent) {
		return nil, nil, status.Errorf(codes.InvalidArgument, "Minimum margin must be between 0 and 100")
	}
	if opPercents, err = commission.NormalizePercents(in.OPPercents); err != nil {
		return nil, nil, invalidArg("O&P percentages: %v", err)
	}
	if splits, err = commission.NormalizePercents(in.ProfitSplits); err != nil {
		return nil, nil, invalidArg("Profit splits: %v", err)
	}
	return opPercents, splits, nil
}

// ensureUniqueTier rejects a name or level already used by another tier.
func ensureUniqueTier(tx *gorm.DB, name string, level int, except uuid.UUID) error {
	var count int64
	query := tx.Model(&models.CommissionTier{}).Where("(name = ? OR level = ?)", name, level)
	if except != uuid.Nil {
		query = query.Where("id <> ?", except)
	}
	if err := query.Count(&count).Error; err != nil {
		return status.Errorf(codes.Internal, "Failed to check existing tiers: %v", err)
	}
	if count > 0 {
		return status.Errorf(codes.AlreadyExists, "A tier named %q or at level %d already exists", name, level)
	}
	return nil
}

func (c *CommissionHandler) CreateTier(ctx context.Context, req *commissionsapi.CreateTierRequest) (*commissionsapi.TierResponse, error) {
	if err := req.Actor.Authorize(permissions.TiersManage); err != nil {
		return nil, err
	}
	opPercents, splits, err := validateTierInput(req.Input)
	if err != nil {
		return nil, err
	}

	tier := models.CommissionTier{
		Name:             strings.TrimSpace(req.Input.Name),
		Level:            req.Input.Level,
		OPPercents:       models.DecimalArray(opPercents),
		ProfitSplits:     models.DecimalArray(splits),
		MinMarginPercent: req.Input.MinMarginPercent,
		IsActive:         true,
	}
	if req.Input.IsActive != nil {
		tier.IsActive = *req.Input.IsActive
	}

	err = c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureUniqueTier(tx, tier.Name, tier.Level, uuid.Nil); err != nil {
			return err
		}
		if err := tx.Create(&tier).Error; err != nil {
			return status.Errorf(codes.Internal, "Failed to create tier: %v", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.cache.Del(ctx, TIERS_CACHE_KEY)
	return &commissionsapi.TierResponse{Tier: tier}, nil
}

func (c *CommissionHandler) UpdateTier(ctx context.Context, req *commissionsapi.UpdateTierRequest) (*commissionsapi.TierResponse, error) {
	if err := req.Actor.Authorize(permissions.TiersManage); err != nil {
		return nil, err
	}
	if req.ID == uuid.Nil {
		return nil, status.Errorf(codes.InvalidArgument, "Tier ID is required")
	}
	opPercents, splits, err := validateTierInput(req.Input)
	if err != nil {
		return nil, err
	}

	var tier models.CommissionTier
	err = c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&tier, "id = ?", req.ID).Error; err != nil {
			return notFound("Commission tier", req.ID, err)
		}
		if err := ensureUniqueTier(tx, strings.TrimSpace(req.Input.Name), req.Input.Level, tier.ID); err != nil {
			return err
		}
		tier.Name = strings.TrimSpace(req.Input.Name)
		tier.Level = req.Input.Level
		tier.OPPercents = models.DecimalArray(opPercents)
		tier.ProfitSplits = models.DecimalArray(splits)
		tier.MinMarginPercent = req.Input.MinMarginPercent
		if req.Input.IsActive != nil {
			tier.IsActive = *req.Input.IsActive
		}
		if err := tx.Save(&tier).Error; err != nil {
			return status.Errorf(codes.Internal, "Failed to update tier: %v", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.cache.Del(ctx, TIERS_CACHE_KEY)
	return &commissionsapi.TierResponse{Tier: tier}, nil
}

func (c *CommissionHandler) ListTiers(ctx context.Context, req *commissionsapi.ListTiersRequest) (*commissionsapi.ListTiersResponse, error) {
	if err := req.Actor.Authorize(); err != nil {
		return nil, err
	}
	if !req.IncludeInactive {
		tiers, err := c.activeTiers(ctx, c.db)
		if err != nil {
			return nil, err
		}
		return &commissionsapi.ListTiersResponse{Tiers: tiers}, nil
	}

	if err := req.Actor.Authorize(permissions.TiersManage); err != nil {
		return nil, err
	}
	var tiers []models.CommissionTier
	if err := c.db.WithContext(ctx).Order("level asc").Find(&tiers).Error; err != nil {
		return nil, status.Errorf(codes.Internal, "Failed to load commission tiers: %v", err)
	}
	return &commissionsapi.ListTiersResponse{Tiers: tiers}, nil
}

// AssignTier sets or clears a user's commission tier.
func (c *CommissionHandler) AssignTier(ctx context.Context, req *commissionsapi.AssignTierRequest) (*commissionsapi.AssignTierResponse, error) {
	if err := req.Actor.Authorize(permissions.TiersManage); err != nil {
		return nil, err
	}
	if req.UserID == uuid.Nil {
		return nil, status.Errorf(codes.InvalidArgument, "User ID is required")
	}

	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if req.TierID != nil {
			var tier models.CommissionTier
			if err := tx.First(&tier, "id = ?", *req.TierID).Error; err != nil {
				return notFound("Commission tier", *req.TierID, err)
			}
			if !tier.IsActive {
				return status.Errorf(codes.FailedPrecondition, "Tier %q is inactive", tier.Name)
			}
		}

		res := tx.Model(&models.Profile{}).Where("id = ?", req.UserID).Update("commission_tier_id", req.TierID)
		if res.Error != nil {
			return status.Errorf(codes.Internal, "Failed to assign tier: %v", res.Error)
		}
		if res.RowsAffected == 0 {
			return status.Errorf(codes.NotFound, "User with ID %s not found", req.UserID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.cache.Del(ctx, cache.ProfileKey(req.UserID))
	c.log.WithFields(logrus.Fields{"user_id": req.UserID, "tier_id": req.TierID}).Info("commission tier assigned")

	return &commissionsapi.AssignTierResponse{UserID: req.UserID, TierID: req.TierID}, nil
}
