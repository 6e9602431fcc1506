package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gorm.io/gorm"

	"roofpro-hub/internal/api"
	"roofpro-hub/internal/api/commissionsapi"
	"roofpro-hub/internal/api/complianceapi"
	"roofpro-hub/internal/cache"
	"roofpro-hub/internal/commission"
	"roofpro-hub/internal/database/models"
	"roofpro-hub/internal/notify"
	"roofpro-hub/internal/permissions"
	"roofpro-hub/internal/rpc"
)

const (
	DOCUMENT_CACHE_PREFIX   = "commissions:document:"
	SUBMISSION_CACHE_PREFIX = "commissions:submission:"
	DASHBOARD_CACHE_PREFIX  = "commissions:dashboard:"
	TIERS_CACHE_KEY         = "commissions:tiers:active"
)

const (
	entityDocument   = "document"
	entitySubmission = "submission"
)

// HoldChecker asks the compliance service whether an action is blocked.
// *complianceapi.Client satisfies it.
type HoldChecker interface {
	CheckHolds(ctx context.Context, req *complianceapi.CheckHoldsRequest) (*complianceapi.CheckHoldsResponse, error)
}

type CommissionHandler struct {
	db       *gorm.DB
	cache    *cache.Cache
	notifier notify.Publisher
	holds    HoldChecker
	log      *logrus.Entry
}

// NewCommissionHandler wires the service. Without a hold checker every
// payment is refused.
func NewCommissionHandler(db *gorm.DB, c *cache.Cache, notifier notify.Publisher, holds HoldChecker, log *logrus.Entry) *CommissionHandler {
	if notifier == nil {
		notifier = notify.Discard{}
	}
	if log == nil {
		log = logrus.WithField("service", "commissions")
	}
	return &CommissionHandler{
		db:       db,
		cache:    c,
		notifier: notifier,
		holds:    holds,
		log:      log,
	}
}

// Service binds every commissions method to the handler.
func (c *CommissionHandler) Service() *rpc.Service {
	return rpc.NewService(commissionsapi.ServiceName).
		Handle(commissionsapi.MethodPreviewDocument, rpc.Unary(c.PreviewDocument)).
		Handle(commissionsapi.MethodCreateDocument, rpc.Unary(c.CreateDocument)).
		Handle(commissionsapi.MethodUpdateDocument, rpc.Unary(c.UpdateDocument)).
		Handle(commissionsapi.MethodSubmitDocument, rpc.Unary(c.SubmitDocument)).
		Handle(commissionsapi.MethodReviewDocument, rpc.Unary(c.ReviewDocument)).
		Handle(commissionsapi.MethodGetDocument, rpc.Unary(c.GetDocument)).
		Handle(commissionsapi.MethodListDocuments, rpc.Unary(c.ListDocuments)).
		Handle(commissionsapi.MethodCreateSubmission, rpc.Unary(c.CreateSubmission)).
		Handle(commissionsapi.MethodGetSubmission, rpc.Unary(c.GetSubmission)).
		Handle(commissionsapi.MethodListSubmissions, rpc.Unary(c.ListSubmissions)).
		Handle(commissionsapi.MethodTransition, rpc.Unary(c.TransitionSubmission)).
		Handle(commissionsapi.MethodPaySubmission, rpc.Unary(c.PaySubmission)).
		Handle(commissionsapi.MethodListStatusEvents, rpc.Unary(c.ListStatusEvents)).
		Handle(commissionsapi.MethodCreateTier, rpc.Unary(c.CreateTier)).
		Handle(commissionsapi.MethodUpdateTier, rpc.Unary(c.UpdateTier)).
		Handle(commissionsapi.MethodListTiers, rpc.Unary(c.ListTiers)).
		Handle(commissionsapi.MethodAssignTier, rpc.Unary(c.AssignTier)).
		Handle(commissionsapi.MethodCreateDraw, rpc.Unary(c.CreateDraw)).
		Handle(commissionsapi.MethodListDraws, rpc.Unary(c.ListDraws)).
		Handle(commissionsapi.MethodGetDrawBalance, rpc.Unary(c.GetDrawBalance)).
		Handle(commissionsapi.MethodExportSubmissions, rpc.Unary(c.ExportSubmissions)).
		Handle(commissionsapi.MethodGetDashboard, rpc.Unary(c.GetDashboard))
}

func (c *CommissionHandler) InvalidateCommissionCaches(ctx context.Context, repID uuid.UUID, keys ...string) {
	keys = append(keys, DASHBOARD_CACHE_PREFIX+repID.String(), DASHBOARD_CACHE_PREFIX+"all")
	c.cache.Del(ctx, keys...)
}

// --- Helpers ---

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func uuidPtr(id uuid.UUID) *uuid.UUID {
	return &id
}

// domainError maps errors from the commission package onto status codes.
// Errors that already carry a status pass through unchanged.
func domainError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	switch {
	case errors.Is(err, commission.ErrIllegalTransition),
		errors.Is(err, commission.ErrTierNotFound):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, commission.ErrNegativeAmount),
		errors.Is(err, commission.ErrPercentOutOfRange),
		errors.Is(err, commission.ErrRateNotAllowed),
		errors.Is(err, commission.ErrInvalidPercent),
		errors.Is(err, commission.ErrEmptyPercents):
		return status.Error(codes.InvalidArgument, err.Error())
	}
	return status.Errorf(codes.Internal, "%v", err)
}

func notFound(what string, id uuid.UUID, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return status.Errorf(codes.NotFound, "%s with ID %s not found", what, id)
	}
	return status.Errorf(codes.Internal, "Failed to get %s: %v", strings.ToLower(what), err)
}

// canSee reports whether actor may read records belonging to repID.
func canSee(actor api.Actor, repID uuid.UUID) bool {
	return actor.Owns(repID) || actor.Can(permissions.CommissionsViewAll)
}

// authorizeEdge checks the permission a lattice edge requires. Edges with no
// named permission belong to the record's rep.
func authorizeEdge(actor api.Actor, perm string, repID uuid.UUID) error {
	if perm != "" {
		return actor.Authorize(perm)
	}
	if actor.Owns(repID) || actor.Can(permissions.CommissionsViewAll) {
		return nil
	}
	return status.Error(codes.PermissionDenied, "Only the owning rep may take this step")
}

func recordEvent(tx *gorm.DB, entityType string, entityID uuid.UUID, from, to string, actorID uuid.UUID, note string) error {
	event := models.CommissionStatusEvent{
		EntityType: entityType,
		EntityID:   entityID,
		FromStatus: from,
		ToStatus:   to,
		ActorID:    actorID,
		Note:       strPtr(note),
	}
	if err := tx.Create(&event).Error; err != nil {
		return status.Errorf(codes.Internal, "Failed to record status event: %v", err)
	}
	return nil
}

// recipients resolves active users by id or role to email addresses.
func (c *CommissionHandler) recipients(ctx context.Context, ids []uuid.UUID, roles ...permissions.Role) []string {
	if len(ids) == 0 && len(roles) == 0 {
		return nil
	}
	roleNames := make([]string, 0, len(roles))
	for _, r := range roles {
		roleNames = append(roleNames, string(r))
	}

	query := c.db.WithContext(ctx).Model(&models.Profile{}).
		Where("employment_status = ?", models.EmploymentActive)
	switch {
	case len(ids) > 0 && len(roleNames) > 0:
		query = query.Where("id IN ? OR role IN ?", ids, roleNames)
	case len(ids) > 0:
		query = query.Where("id IN ?", ids)
	default:
		query = query.Where("role IN ?", roleNames)
	}

	var emails []string
	if err := query.Distinct().Pluck("email", &emails).Error; err != nil {
		c.log.WithError(err).Warn("failed to resolve notification recipients")
		return nil
	}
	return emails
}

func (c *CommissionHandler) notify(ctx context.Context, template string, to []string, data map[string]string) {
	if len(to) == 0 {
		return
	}
	if err := c.notifier.Enqueue(ctx, notify.Job{Template: template, To: to, Data: data}); err != nil {
		c.log.WithError(err).WithField("template", template).Warn("failed to enqueue notification")
	}
}

func (c *CommissionHandler) repName(ctx context.Context, repID uuid.UUID) string {
	var rep models.Profile
	if err := c.db.WithContext(ctx).Select("id", "first_name", "last_name").First(&rep, "id = ?", repID).Error; err != nil {
		return repID.String()
	}
	return rep.FullName()
}

func statusData(kind, id, job, from, to, note string) map[string]string {
	data := map[string]string{
		"kind":        kind,
		"id":          id,
		"job":         job,
		"from_status": from,
		"to_status":   to,
	}
	if note != "" {
		data["note"] = note
	}
	return data
}

func requireNote(to string, note string) error {
	if strings.TrimSpace(note) == "" {
		return status.Errorf(codes.InvalidArgument, "A note is required when moving to %s", to)
	}
	return nil
}

func invalidArg(format string, args ...interface{}) error {
	return status.Error(codes.InvalidArgument, fmt.Sprintf(format, args...))
}
