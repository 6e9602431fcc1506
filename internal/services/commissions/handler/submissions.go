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
	"roofpro-hub/internal/api/complianceapi"
	"roofpro-hub/internal/cache"
	"roofpro-hub/internal/commission"
	"roofpro-hub/internal/database/models"
	"roofpro-hub/internal/notify"
	"roofpro-hub/internal/permissions"
)

// CreateSubmission opens a submission in pending_review. When it references
// a document, the document must be approved and supplies the amounts.
func (c *CommissionHandler) CreateSubmission(ctx context.Context, req *commissionsapi.CreateSubmissionRequest) (*commissionsapi.SubmissionResponse, error) {
	if err := req.Actor.Authorize(permissions.CommissionsCreate); err != nil {
		return nil, err
	}

	sub := models.CommissionSubmission{
		RepID:            req.Actor.UserID,
		JobName:          strings.TrimSpace(req.JobName),
		JobNumber:        strings.TrimSpace(req.JobNumber),
		CustomerName:     strings.TrimSpace(req.CustomerName),
		ContractAmount:   commission.Cents(req.ContractAmount),
		CommissionAmount: commission.Cents(req.CommissionAmount),
		Status:           string(commission.SubmissionPendingReview),
		Notes:            req.Notes,
	}

	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if req.DocumentID != nil {
			var doc models.CommissionDocument
			if err := tx.First(&doc, "id = ?", *req.DocumentID).Error; err != nil {
				return notFound("Commission document", *req.DocumentID, err)
			}
			if !canSee(req.Actor, doc.RepID) {
				return status.Errorf(codes.PermissionDenied, "Document %s belongs to another rep", doc.ID)
			}
			if doc.Status != string(commission.DocumentApproved) {
				return status.Errorf(codes.FailedPrecondition, "Only approved documents can be submitted for payment. Current status: %s", doc.Status)
			}

			var open int64
			err := tx.Model(&models.CommissionSubmission{}).
				Where("document_id = ? AND status NOT IN ?", doc.ID, []string{string(commission.SubmissionRejected), string(commission.SubmissionDenied)}).
				Count(&open).Error
			if err != nil {
				return status.Errorf(codes.Internal, "Failed to check existing submissions: %v", err)
			}
			if open > 0 {
				return status.Errorf(codes.AlreadyExists, "Document %s already has an open submission", doc.ID)
			}

			sub.RepID = doc.RepID
			sub.DocumentID = uuidPtr(doc.ID)
			sub.JobName = doc.JobName
			sub.JobNumber = doc.JobNumber
			sub.CustomerName = doc.CustomerName
			sub.ContractAmount = doc.GrossContractTotal
			sub.CommissionAmount = doc.BalanceDueRep
		}

		if sub.JobName == "" {
			return status.Errorf(codes.InvalidArgument, "Job name is required")
		}
		if sub.ContractAmount.IsNegative() || sub.CommissionAmount.IsNegative() {
			return status.Errorf(codes.InvalidArgument, "Contract and commission amounts must not be negative")
		}

		if err := tx.Create(&sub).Error; err != nil {
			return status.Errorf(codes.Internal, "Failed to create submission: %v", err)
		}
		return recordEvent(tx, entitySubmission, sub.ID, "", sub.Status, req.Actor.UserID, "")
	})
	if err != nil {
		return nil, err
	}

	c.InvalidateCommissionCaches(ctx, sub.RepID)

	data := statusData(entitySubmission, sub.ID.String(), sub.JobName, "", sub.Status, "")
	data["rep"] = c.repName(ctx, sub.RepID)
	data["amount"] = sub.CommissionAmount.StringFixed(2)
	c.notify(ctx, notify.TemplateSubmissionStatus, c.recipients(ctx, nil, permissions.RoleSalesManager, permissions.RoleOwner), data)

	return submissionResponse(sub, nil), nil
}

func submissionResponse(sub models.CommissionSubmission, settlement *commission.Settlement) *commissionsapi.SubmissionResponse {
	next := commission.NextSubmissionStatuses(commission.SubmissionStatus(sub.Status))
	if next == nil {
		next = []commission.SubmissionStatus{}
	}
	return &commissionsapi.SubmissionResponse{
		Submission: sub,
		Settlement: settlement,
		NextStatus: next,
	}
}

func (c *CommissionHandler) GetSubmission(ctx context.Context, req *commissionsapi.SubmissionIDRequest) (*commissionsapi.SubmissionResponse, error) {
	if err := req.Actor.Authorize(permissions.CommissionsViewOwn, permissions.CommissionsViewAll); err != nil {
		return nil, err
	}
	if req.ID == uuid.Nil {
		return nil, status.Errorf(codes.InvalidArgument, "Submission ID is required")
	}

	cacheKey := SUBMISSION_CACHE_PREFIX + req.ID.String()
	var sub models.CommissionSubmission
	if !c.cache.GetJSON(ctx, cacheKey, &sub) {
		if err := c.db.WithContext(ctx).First(&sub, "id = ?", req.ID).Error; err != nil {
			return nil, notFound("Submission", req.ID, err)
		}
		c.cache.SetJSON(ctx, cacheKey, sub, cache.TTLMedium)
	}

	if !canSee(req.Actor, sub.RepID) {
		return nil, status.Errorf(codes.PermissionDenied, "Submission %s belongs to another rep", sub.ID)
	}
	return submissionResponse(sub, nil), nil
}

func (c *CommissionHandler) ListSubmissions(ctx context.Context, req *commissionsapi.ListSubmissionsRequest) (*commissionsapi.ListSubmissionsResponse, error) {
	if err := req.Actor.Authorize(permissions.CommissionsViewOwn, permissions.CommissionsViewAll); err != nil {
		return nil, err
	}

	query := c.db.WithContext(ctx).Model(&models.CommissionSubmission{})
	switch {
	case !req.Actor.Can(permissions.CommissionsViewAll):
		query = query.Where("rep_id = ?", req.Actor.UserID)
	case req.RepID != nil:
		query = query.Where("rep_id = ?", *req.RepID)
	}
	if req.Status != "" {
		if !commission.SubmissionStatus(req.Status).Valid() {
			return nil, status.Errorf(codes.InvalidArgument, "Unknown submission status: %s", req.Status)
		}
		query = query.Where("status = ?", req.Status)
	}
	if req.From != nil {
		query = query.Where("created_at >= ?", *req.From)
	}
	if req.To != nil {
		query = query.Where("created_at < ?", *req.To)
	}

	var totalCount int64
	if err := query.Count(&totalCount).Error; err != nil {
		return nil, status.Errorf(codes.Internal, "Failed to count submissions: %v", err)
	}

	_, limit, offset := req.Page.Bounds()
	var subs []models.CommissionSubmission
	if err := query.Order("created_at desc").Offset(offset).Limit(limit).Find(&subs).Error; err != nil {
		return nil, status.Errorf(codes.Internal, "Failed to retrieve submissions: %v", err)
	}

	return &commissionsapi.ListSubmissionsResponse{
		Submissions: subs,
		Page:        api.NewPageResponse(req.Page, totalCount),
	}, nil
}

// TransitionSubmission takes any lattice edge except payment, which goes
// through PaySubmission.
func (c *CommissionHandler) TransitionSubmission(ctx context.Context, req *commissionsapi.TransitionSubmissionRequest) (*commissionsapi.SubmissionResponse, error) {
	if err := req.Actor.Authorize(); err != nil {
		return nil, err
	}
	if req.ID == uuid.Nil {
		return nil, status.Errorf(codes.InvalidArgument, "Submission ID is required")
	}
	if !req.ToStatus.Valid() {
		return nil, status.Errorf(codes.InvalidArgument, "Unknown submission status: %s", req.ToStatus)
	}
	if req.ToStatus == commission.SubmissionPaid {
		return nil, status.Errorf(codes.InvalidArgument, "Use PaySubmission to mark a submission paid")
	}
	if req.ToStatus == commission.SubmissionRejected || req.ToStatus == commission.SubmissionDenied {
		if err := requireNote(string(req.ToStatus), req.Note); err != nil {
			return nil, err
		}
	}

	var sub models.CommissionSubmission
	var from string
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		from, err = lockAndAdvance(tx, req.Actor, req.ID, req.ToStatus, &sub)
		if err != nil {
			return err
		}

		switch req.ToStatus {
		case commission.SubmissionApproved:
			sub.ApprovedBy = uuidPtr(req.Actor.UserID)
		case commission.SubmissionAccountingApproved:
			sub.AccountingApprovedBy = uuidPtr(req.Actor.UserID)
		case commission.SubmissionPendingReview:
			sub.ApprovedBy = nil
			sub.AccountingApprovedBy = nil
		}

		if err := tx.Save(&sub).Error; err != nil {
			return status.Errorf(codes.Internal, "Failed to update submission: %v", err)
		}
		return recordEvent(tx, entitySubmission, sub.ID, from, sub.Status, req.Actor.UserID, req.Note)
	})
	if err != nil {
		return nil, err
	}

	c.afterSubmissionChange(ctx, sub, from, req.Actor, req.Note)
	return submissionResponse(sub, nil), nil
}

// lockAndAdvance loads the submission FOR UPDATE, checks the edge and its
// permission, and sets the new status on sub. It returns the old status.
func lockAndAdvance(tx *gorm.DB, actor api.Actor, id uuid.UUID, to commission.SubmissionStatus, sub *models.CommissionSubmission) (string, error) {
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(sub, "id = ?", id).Error; err != nil {
		return "", notFound("Submission", id, err)
	}
	from := sub.Status
	perm, err := commission.SubmissionTransition(commission.SubmissionStatus(from), to)
	if err != nil {
		return "", domainError(err)
	}
	if err := authorizeEdge(actor, perm, sub.RepID); err != nil {
		return "", err
	}
	sub.Status = string(to)
	return from, nil
}

// PaySubmission marks an accounting-approved submission paid. Active holds
// that block commission payment for the rep or the job stop it; outstanding
// draws are recovered from the commission oldest first.
func (c *CommissionHandler) PaySubmission(ctx context.Context, req *commissionsapi.PaySubmissionRequest) (*commissionsapi.SubmissionResponse, error) {
	if err := req.Actor.Authorize(permissions.CommissionsPay); err != nil {
		return nil, err
	}
	if req.ID == uuid.Nil {
		return nil, status.Errorf(codes.InvalidArgument, "Submission ID is required")
	}

	var sub models.CommissionSubmission
	var from string
	var settlement commission.Settlement
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		from, err = lockAndAdvance(tx, req.Actor, req.ID, commission.SubmissionPaid, &sub)
		if err != nil {
			return err
		}

		if err := c.checkPaymentHolds(ctx, req.Actor, sub); err != nil {
			return err
		}

		var draws []models.Draw
		err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("rep_id = ? AND status = ? AND remaining_balance > 0", sub.RepID, models.DrawOutstanding).
			Order("issued_at asc").
			Find(&draws).Error
		if err != nil {
			return status.Errorf(codes.Internal, "Failed to load outstanding draws: %v", err)
		}

		outstanding := make([]commission.OutstandingDraw, 0, len(draws))
		byID := make(map[string]*models.Draw, len(draws))
		for i := range draws {
			d := &draws[i]
			outstanding = append(outstanding, commission.OutstandingDraw{
				ID:               d.ID.String(),
				RemainingBalance: d.RemainingBalance,
				IssuedAt:         d.IssuedAt,
			})
			byID[d.ID.String()] = d
		}
		settlement = commission.ApplyToDraws(sub.CommissionAmount, outstanding)

		for _, app := range settlement.Applications {
			draw := byID[app.DrawID]
			draw.RemainingBalance = app.RemainingBalance
			if draw.RemainingBalance.IsZero() {
				draw.Status = models.DrawSettled
			}
			err := tx.Model(draw).Updates(map[string]interface{}{
				"remaining_balance": draw.RemainingBalance,
				"status":            draw.Status,
			}).Error
			if err != nil {
				return status.Errorf(codes.Internal, "Failed to update draw %s: %v", draw.ID, err)
			}
			record := models.DrawApplication{DrawID: draw.ID, SubmissionID: sub.ID, Amount: app.Amount}
			if err := tx.Create(&record).Error; err != nil {
				return status.Errorf(codes.Internal, "Failed to record draw application: %v", err)
			}
		}

		now := time.Now().UTC()
		net := settlement.NetPayout
		sub.DrawApplied = settlement.TotalApplied
		sub.NetPayout = &net
		sub.PaidAt = &now
		sub.PaidBy = uuidPtr(req.Actor.UserID)
		sub.PaymentReference = strPtr(strings.TrimSpace(req.PaymentReference))

		if err := tx.Save(&sub).Error; err != nil {
			return status.Errorf(codes.Internal, "Failed to update submission: %v", err)
		}
		return recordEvent(tx, entitySubmission, sub.ID, from, sub.Status, req.Actor.UserID, req.Note)
	})
	if err != nil {
		return nil, err
	}

	c.log.WithFields(logrus.Fields{
		"submission_id": sub.ID,
		"rep_id":        sub.RepID,
		"draw_applied":  sub.DrawApplied.String(),
		"net_payout":    settlement.NetPayout.String(),
	}).Info("commission paid")
	c.afterSubmissionChange(ctx, sub, from, req.Actor, req.Note)

	return submissionResponse(sub, &settlement), nil
}

// checkPaymentHolds asks compliance for active holds that block paying
// this rep or job. An unreachable compliance service blocks the payment.
func (c *CommissionHandler) checkPaymentHolds(ctx context.Context, actor api.Actor, sub models.CommissionSubmission) error {
	if c.holds == nil {
		return status.Errorf(codes.Unavailable, "Compliance service is not connected, payments are blocked")
	}
	repID := sub.RepID
	resp, err := c.holds.CheckHolds(ctx, &complianceapi.CheckHoldsRequest{
		Actor:     actor,
		UserID:    &repID,
		JobNumber: sub.JobNumber,
		Action:    models.ActionCommissionPayment,
	})
	if err != nil {
		return status.Errorf(codes.Unavailable, "Failed to check compliance holds: %s", status.Convert(err).Message())
	}
	if !resp.Blocked {
		return nil
	}
	reasons := make([]string, 0, len(resp.Blocking))
	for _, h := range resp.Blocking {
		reasons = append(reasons, h.Reason)
	}
	return status.Errorf(codes.FailedPrecondition, "Payment blocked by compliance hold: %s", strings.Join(reasons, "; "))
}

// afterSubmissionChange drops caches and tells the people who act next.
func (c *CommissionHandler) afterSubmissionChange(ctx context.Context, sub models.CommissionSubmission, from string, actor api.Actor, note string) {
	c.InvalidateCommissionCaches(ctx, sub.RepID, SUBMISSION_CACHE_PREFIX+sub.ID.String())
	c.log.WithFields(logrus.Fields{
		"submission_id": sub.ID,
		"from":          from,
		"to":            sub.Status,
		"actor_id":      actor.UserID,
	}).Info("submission status changed")

	ids := []uuid.UUID{sub.RepID}
	var roles []permissions.Role
	switch commission.SubmissionStatus(sub.Status) {
	case commission.SubmissionPendingReview:
		ids = nil
		roles = []permissions.Role{permissions.RoleSalesManager, permissions.RoleOwner}
	case commission.SubmissionApproved:
		roles = []permissions.Role{permissions.RoleAccounting}
	}

	data := statusData(entitySubmission, sub.ID.String(), sub.JobName, from, sub.Status, note)
	data["amount"] = sub.CommissionAmount.StringFixed(2)
	if sub.NetPayout != nil {
		data["net_payout"] = sub.NetPayout.StringFixed(2)
		data["draw_applied"] = sub.DrawApplied.StringFixed(2)
	}
	c.notify(ctx, notify.TemplateSubmissionStatus, c.recipients(ctx, ids, roles...), data)
}

func (c *CommissionHandler) ListStatusEvents(ctx context.Context, req *commissionsapi.ListStatusEventsRequest) (*commissionsapi.ListStatusEventsResponse, error) {
	if err := req.Actor.Authorize(permissions.CommissionsViewOwn, permissions.CommissionsViewAll); err != nil {
		return nil, err
	}
	if req.EntityID == uuid.Nil {
		return nil, status.Errorf(codes.InvalidArgument, "Entity ID is required")
	}

	if !req.Actor.Can(permissions.CommissionsViewAll) {
		owner, err := c.entityOwner(ctx, req.EntityID)
		if err != nil {
			return nil, err
		}
		if !req.Actor.Owns(owner) {
			return nil, status.Errorf(codes.PermissionDenied, "Record %s belongs to another rep", req.EntityID)
		}
	}

	var events []models.CommissionStatusEvent
	if err := c.db.WithContext(ctx).Where("entity_id = ?", req.EntityID).Order("created_at asc").Find(&events).Error; err != nil {
		return nil, status.Errorf(codes.Internal, "Failed to retrieve status events: %v", err)
	}
	return &commissionsapi.ListStatusEventsResponse{Events: events}, nil
}

// entityOwner finds the rep behind a document or submission id.
func (c *CommissionHandler) entityOwner(ctx context.Context, id uuid.UUID) (uuid.UUID, error) {
	var owners []uuid.UUID
	err := c.db.WithContext(ctx).Model(&models.CommissionSubmission{}).Where("id = ?", id).Pluck("rep_id", &owners).Error
	if err != nil {
		return uuid.Nil, status.Errorf(codes.Internal, "Failed to look up record: %v", err)
	}
	if len(owners) == 0 {
		err = c.db.WithContext(ctx).Model(&models.CommissionDocument{}).Where("id = ?", id).Pluck("rep_id", &owners).Error
		if err != nil {
			return uuid.Nil, status.Errorf(codes.Internal, "Failed to look up record: %v", err)
		}
	}
	if len(owners) == 0 {
		return uuid.Nil, status.Errorf(codes.NotFound, "Record with ID %s not found", id)
	}
	return owners[0], nil
}
