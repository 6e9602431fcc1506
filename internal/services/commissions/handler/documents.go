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
	"roofpro-hub/internal/api/commissionsapi"
	"roofpro-hub/internal/cache"
	"roofpro-hub/internal/commission"
	"roofpro-hub/internal/database/models"
	"roofpro-hub/internal/notify"
	"roofpro-hub/internal/permissions"
)

// evaluation is a document's computed totals plus the tier outcome for its
// rep. Effective is nil when the rep has no tier assigned.
type evaluation struct {
	Totals     commission.Totals
	Drops      int
	Effective  *commission.Tier
	Violations []string
}

func (c *CommissionHandler) evaluate(ctx context.Context, db *gorm.DB, repID uuid.UUID, in commissionsapi.DocumentInput) (*evaluation, error) {
	totals, err := commission.Calculate(in.CalcInput())
	if err != nil {
		return nil, domainError(err)
	}
	ev := &evaluation{Totals: totals}

	var rep models.Profile
	if err := db.WithContext(ctx).Select("id", "commission_tier_id").First(&rep, "id = ?", repID).Error; err != nil {
		return nil, notFound("Rep", repID, err)
	}
	if rep.CommissionTierID == nil {
		return ev, nil
	}

	tiers, err := c.activeTiers(ctx, db)
	if err != nil {
		return nil, err
	}
	domain := make([]commission.Tier, 0, len(tiers))
	var assigned *commission.Tier
	for _, t := range tiers {
		dt := toDomainTier(t)
		domain = append(domain, dt)
		if t.ID == *rep.CommissionTierID {
			assigned = &dt
		}
	}
	if assigned == nil {
		return nil, status.Errorf(codes.FailedPrecondition, "Assigned commission tier %s is not active", *rep.CommissionTierID)
	}

	ev.Drops = commission.TierDrops(totals.MarginPercent, assigned.MinMarginPercent)
	effective, err := commission.ResolveTier(domain, assigned.Level, ev.Drops)
	if err != nil {
		return nil, domainError(err)
	}
	ev.Effective = &effective
	if err := commission.ValidateRates(effective, in.OPPercent, in.CommissionRate); err != nil {
		ev.Violations = append(ev.Violations, err.Error())
	}
	return ev, nil
}

func applyDocument(doc *models.CommissionDocument, in commissionsapi.DocumentInput, ev *evaluation) {
	doc.JobName = strings.TrimSpace(in.JobName)
	doc.JobNumber = strings.TrimSpace(in.JobNumber)
	doc.CustomerName = strings.TrimSpace(in.CustomerName)
	doc.Notes = in.Notes

	doc.GrossContractTotal = commission.Cents(in.GrossContractTotal)
	doc.OPPercent = in.OPPercent
	doc.Materials = commission.Cents(in.Expenses.Materials)
	doc.Labor = commission.Cents(in.Expenses.Labor)
	doc.Permits = commission.Cents(in.Expenses.Permits)
	doc.Dumpster = commission.Cents(in.Expenses.Dumpster)
	doc.Supplements = commission.Cents(in.Expenses.Supplements)
	doc.OtherExpenses = commission.Cents(in.Expenses.Other)
	doc.CommissionRate = in.CommissionRate
	doc.AdvanceTotal = commission.Cents(in.AdvanceTotal)

	t := ev.Totals
	doc.OPAmount = t.OPAmount
	doc.NetContractTotal = t.NetContractTotal
	doc.TotalExpenses = t.TotalExpenses
	doc.NetProfit = t.NetProfit
	doc.RepCommission = t.RepCommission
	doc.CompanyProfit = t.CompanyProfit
	doc.BalanceDueRep = t.BalanceDueRep
	doc.MarginPercent = t.MarginPercent
	doc.TierDrops = ev.Drops

	doc.EffectiveTierID = nil
	if ev.Effective != nil {
		if id, err := uuid.Parse(ev.Effective.ID); err == nil {
			doc.EffectiveTierID = &id
		}
	}
}

// targetRep returns the rep a document is created for. Acting for someone
// else requires commissions.view_all.
func targetRep(actor api.Actor, repID *uuid.UUID) (uuid.UUID, error) {
	if repID == nil || *repID == uuid.Nil || actor.Owns(*repID) {
		return actor.UserID, nil
	}
	if err := actor.Authorize(permissions.CommissionsViewAll); err != nil {
		return uuid.Nil, err
	}
	return *repID, nil
}

func (c *CommissionHandler) PreviewDocument(ctx context.Context, req *commissionsapi.PreviewDocumentRequest) (*commissionsapi.PreviewDocumentResponse, error) {
	if err := req.Actor.Authorize(permissions.CommissionsCreate); err != nil {
		return nil, err
	}
	repID, err := targetRep(req.Actor, req.RepID)
	if err != nil {
		return nil, err
	}

	ev, err := c.evaluate(ctx, c.db, repID, req.Input)
	if err != nil {
		return nil, err
	}
	return &commissionsapi.PreviewDocumentResponse{
		Totals:        ev.Totals,
		TierDrops:     ev.Drops,
		EffectiveTier: ev.Effective,
		Violations:    ev.Violations,
	}, nil
}

func (c *CommissionHandler) CreateDocument(ctx context.Context, req *commissionsapi.CreateDocumentRequest) (*commissionsapi.DocumentResponse, error) {
	if err := req.Actor.Authorize(permissions.CommissionsCreate); err != nil {
		return nil, err
	}
	repID, err := targetRep(req.Actor, req.RepID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Input.JobName) == "" {
		return nil, status.Errorf(codes.InvalidArgument, "Job name is required")
	}

	ev, err := c.evaluate(ctx, c.db, repID, req.Input)
	if err != nil {
		return nil, err
	}
	if len(ev.Violations) > 0 {
		return nil, status.Error(codes.InvalidArgument, strings.Join(ev.Violations, "; "))
	}

	doc := models.CommissionDocument{
		RepID:  repID,
		Status: string(commission.DocumentDraft),
	}
	applyDocument(&doc, req.Input, ev)

	err = c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&doc).Error; err != nil {
			return status.Errorf(codes.Internal, "Failed to create commission document: %v", err)
		}
		return recordEvent(tx, entityDocument, doc.ID, "", doc.Status, req.Actor.UserID, "")
	})
	if err != nil {
		return nil, err
	}

	c.InvalidateCommissionCaches(ctx, repID)
	c.log.WithFields(logrus.Fields{"document_id": doc.ID, "rep_id": repID}).Info("commission document created")

	return &commissionsapi.DocumentResponse{Document: doc}, nil
}

// UpdateDocument recomputes an editable document. Editing a rejected
// document returns it to draft.
func (c *CommissionHandler) UpdateDocument(ctx context.Context, req *commissionsapi.UpdateDocumentRequest) (*commissionsapi.DocumentResponse, error) {
	if err := req.Actor.Authorize(permissions.CommissionsCreate); err != nil {
		return nil, err
	}
	if req.ID == uuid.Nil {
		return nil, status.Errorf(codes.InvalidArgument, "Document ID is required")
	}
	if strings.TrimSpace(req.Input.JobName) == "" {
		return nil, status.Errorf(codes.InvalidArgument, "Job name is required")
	}

	var doc models.CommissionDocument
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&doc, "id = ?", req.ID).Error; err != nil {
			return notFound("Commission document", req.ID, err)
		}
		if !canSee(req.Actor, doc.RepID) {
			return status.Errorf(codes.PermissionDenied, "Document %s belongs to another rep", doc.ID)
		}
		from := commission.DocumentStatus(doc.Status)
		if !from.Editable() {
			return status.Errorf(codes.FailedPrecondition, "Document can only be edited in draft or rejected status. Current status: %s", doc.Status)
		}

		ev, err := c.evaluate(ctx, tx, doc.RepID, req.Input)
		if err != nil {
			return err
		}
		if len(ev.Violations) > 0 {
			return status.Error(codes.InvalidArgument, strings.Join(ev.Violations, "; "))
		}
		applyDocument(&doc, req.Input, ev)

		if from == commission.DocumentRejected {
			if _, err := commission.DocumentTransition(from, commission.DocumentDraft); err != nil {
				return domainError(err)
			}
			doc.Status = string(commission.DocumentDraft)
			if err := recordEvent(tx, entityDocument, doc.ID, string(from), doc.Status, req.Actor.UserID, "edited after rejection"); err != nil {
				return err
			}
		}

		if err := tx.Save(&doc).Error; err != nil {
			return status.Errorf(codes.Internal, "Failed to save commission document: %v", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.InvalidateCommissionCaches(ctx, doc.RepID, DOCUMENT_CACHE_PREFIX+doc.ID.String())
	return &commissionsapi.DocumentResponse{Document: doc}, nil
}

func (c *CommissionHandler) SubmitDocument(ctx context.Context, req *commissionsapi.DocumentIDRequest) (*commissionsapi.DocumentResponse, error) {
	if err := req.Actor.Authorize(permissions.CommissionsCreate); err != nil {
		return nil, err
	}
	doc, from, err := c.transitionDocument(ctx, req.Actor, req.ID, commission.DocumentSubmitted, "", func(d *models.CommissionDocument, now time.Time) {
		d.SubmittedAt = &now
	})
	if err != nil {
		return nil, err
	}

	to := c.recipients(ctx, nil, permissions.RoleSalesManager, permissions.RoleOwner)
	data := statusData(entityDocument, doc.ID.String(), doc.JobName, from, doc.Status, "")
	data["rep"] = c.repName(ctx, doc.RepID)
	c.notify(ctx, notify.TemplateDocumentStatus, to, data)

	return &commissionsapi.DocumentResponse{Document: *doc}, nil
}

func (c *CommissionHandler) ReviewDocument(ctx context.Context, req *commissionsapi.ReviewDocumentRequest) (*commissionsapi.DocumentResponse, error) {
	target := commission.DocumentApproved
	if !req.Approve {
		target = commission.DocumentRejected
		if err := requireNote(string(target), req.Notes); err != nil {
			return nil, err
		}
	}

	doc, from, err := c.transitionDocument(ctx, req.Actor, req.ID, target, req.Notes, func(d *models.CommissionDocument, now time.Time) {
		d.ReviewedBy = uuidPtr(req.Actor.UserID)
		d.ReviewedAt = &now
		d.ReviewNotes = strPtr(strings.TrimSpace(req.Notes))
	})
	if err != nil {
		return nil, err
	}

	to := c.recipients(ctx, []uuid.UUID{doc.RepID})
	c.notify(ctx, notify.TemplateDocumentStatus, to, statusData(entityDocument, doc.ID.String(), doc.JobName, from, doc.Status, req.Notes))

	return &commissionsapi.DocumentResponse{Document: *doc}, nil
}

// transitionDocument moves a locked document along the lattice and records
// the event. It returns the updated document and its previous status.
func (c *CommissionHandler) transitionDocument(ctx context.Context, actor api.Actor, id uuid.UUID, to commission.DocumentStatus, note string, mutate func(*models.CommissionDocument, time.Time)) (*models.CommissionDocument, string, error) {
	if err := actor.Authorize(); err != nil {
		return nil, "", err
	}
	if id == uuid.Nil {
		return nil, "", status.Errorf(codes.InvalidArgument, "Document ID is required")
	}

	var doc models.CommissionDocument
	var from string
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&doc, "id = ?", id).Error; err != nil {
			return notFound("Commission document", id, err)
		}
		from = doc.Status

		perm, err := commission.DocumentTransition(commission.DocumentStatus(from), to)
		if err != nil {
			return domainError(err)
		}
		if err := authorizeEdge(actor, perm, doc.RepID); err != nil {
			return err
		}

		doc.Status = string(to)
		if mutate != nil {
			mutate(&doc, time.Now().UTC())
		}
		if err := tx.Save(&doc).Error; err != nil {
			return status.Errorf(codes.Internal, "Failed to update commission document: %v", err)
		}
		return recordEvent(tx, entityDocument, doc.ID, from, doc.Status, actor.UserID, note)
	})
	if err != nil {
		return nil, "", err
	}

	c.InvalidateCommissionCaches(ctx, doc.RepID, DOCUMENT_CACHE_PREFIX+doc.ID.String())
	c.log.WithFields(logrus.Fields{
		"document_id": doc.ID,
		"from":        from,
		"to":          doc.Status,
		"actor_id":    actor.UserID,
	}).Info("commission document status changed")

	return &doc, from, nil
}

func (c *CommissionHandler) GetDocument(ctx context.Context, req *commissionsapi.DocumentIDRequest) (*commissionsapi.DocumentResponse, error) {
	if err := req.Actor.Authorize(permissions.CommissionsViewOwn, permissions.CommissionsViewAll); err != nil {
		return nil, err
	}
	if req.ID == uuid.Nil {
		return nil, status.Errorf(codes.InvalidArgument, "Document ID is required")
	}

	cacheKey := DOCUMENT_CACHE_PREFIX + req.ID.String()
	var doc models.CommissionDocument
	if !c.cache.GetJSON(ctx, cacheKey, &doc) {
		if err := c.db.WithContext(ctx).First(&doc, "id = ?", req.ID).Error; err != nil {
			return nil, notFound("Commission document", req.ID, err)
		}
		c.cache.SetJSON(ctx, cacheKey, doc, cache.TTLMedium)
	}

	if !canSee(req.Actor, doc.RepID) {
		return nil, status.Errorf(codes.PermissionDenied, "Document %s belongs to another rep", doc.ID)
	}
	return &commissionsapi.DocumentResponse{Document: doc}, nil
}

func (c *CommissionHandler) ListDocuments(ctx context.Context, req *commissionsapi.ListDocumentsRequest) (*commissionsapi.ListDocumentsResponse, error) {
	if err := req.Actor.Authorize(permissions.CommissionsViewOwn, permissions.CommissionsViewAll); err != nil {
		return nil, err
	}

	query := c.db.WithContext(ctx).Model(&models.CommissionDocument{})
	switch {
	case !req.Actor.Can(permissions.CommissionsViewAll):
		query = query.Where("rep_id = ?", req.Actor.UserID)
	case req.RepID != nil:
		query = query.Where("rep_id = ?", *req.RepID)
	}
	if req.Status != "" {
		if !commission.DocumentStatus(req.Status).Valid() {
			return nil, status.Errorf(codes.InvalidArgument, "Unknown document status: %s", req.Status)
		}
		query = query.Where("status = ?", req.Status)
	}

	var totalCount int64
	if err := query.Count(&totalCount).Error; err != nil {
		return nil, status.Errorf(codes.Internal, "Failed to count documents: %v", err)
	}

	_, limit, offset := req.Page.Bounds()
	var docs []models.CommissionDocument
	if err := query.Order("created_at desc").Offset(offset).Limit(limit).Find(&docs).Error; err != nil {
		return nil, status.Errorf(codes.Internal, "Failed to retrieve documents: %v", err)
	}

	return &commissionsapi.ListDocumentsResponse{
		Documents: docs,
		Page:      api.NewPageResponse(req.Page, totalCount),
	}, nil
}
