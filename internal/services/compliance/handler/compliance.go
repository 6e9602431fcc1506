package handler

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gorm.io/gorm"

	"roofpro-hub/internal/api/complianceapi"
	"roofpro-hub/internal/cache"
	"roofpro-hub/internal/database/models"
	"roofpro-hub/internal/notify"
	"roofpro-hub/internal/permissions"
	"roofpro-hub/internal/rpc"
)

const SOP_LIST_CACHE_KEY = "compliance:sops:active"

type ComplianceHandler struct {
	db       *gorm.DB
	cache    *cache.Cache
	notifier notify.Publisher
	log      *logrus.Entry
}

func NewComplianceHandler(db *gorm.DB, c *cache.Cache, notifier notify.Publisher, log *logrus.Entry) *ComplianceHandler {
	if notifier == nil {
		notifier = notify.Discard{}
	}
	if log == nil {
		log = logrus.WithField("service", "compliance")
	}
	return &ComplianceHandler{
		db:       db,
		cache:    c,
		notifier: notifier,
		log:      log,
	}
}

func (h *ComplianceHandler) Service() *rpc.Service {
	return rpc.NewService(complianceapi.ServiceName).
		Handle(complianceapi.MethodListSOPs, rpc.Unary(h.ListSOPs)).
		Handle(complianceapi.MethodUpsertSOP, rpc.Unary(h.UpsertSOP)).
		Handle(complianceapi.MethodAcknowledgeSOP, rpc.Unary(h.AcknowledgeSOP)).
		Handle(complianceapi.MethodGetGateStatus, rpc.Unary(h.GetGateStatus)).
		Handle(complianceapi.MethodPlaceHold, rpc.Unary(h.PlaceHold)).
		Handle(complianceapi.MethodResolveHold, rpc.Unary(h.ResolveHold)).
		Handle(complianceapi.MethodListHolds, rpc.Unary(h.ListHolds)).
		Handle(complianceapi.MethodCheckHolds, rpc.Unary(h.CheckHolds)).
		Handle(complianceapi.MethodRecordViolation, rpc.Unary(h.RecordViolation)).
		Handle(complianceapi.MethodResolveViolation, rpc.Unary(h.ResolveViolation)).
		Handle(complianceapi.MethodListViolations, rpc.Unary(h.ListViolations))
}

// InvalidateGates drops cached gate status for the given users, or for
// everyone when none are named.
func (h *ComplianceHandler) InvalidateGates(ctx context.Context, userIDs ...uuid.UUID) {
	if len(userIDs) == 0 {
		h.cache.DelPrefix(ctx, cache.GATE_CACHE_PREFIX)
		return
	}
	keys := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		keys = append(keys, cache.GateKey(id))
	}
	h.cache.Del(ctx, keys...)
}

func notFound(what string, id interface{}, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return status.Errorf(codes.NotFound, "%s with ID %v not found", what, id)
	}
	return status.Errorf(codes.Internal, "Failed to get %s: %v", strings.ToLower(what), err)
}

func strPtr(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// emailsFor resolves active users by id, or by role when roles is non-empty,
// to email addresses.
func (h *ComplianceHandler) emailsFor(ctx context.Context, ids []uuid.UUID, roles []string) []string {
	query := h.db.WithContext(ctx).Model(&models.Profile{}).
		Where("employment_status = ?", models.EmploymentActive)
	switch {
	case len(ids) > 0 && len(roles) > 0:
		query = query.Where("id IN ? OR role IN ?", ids, roles)
	case len(ids) > 0:
		query = query.Where("id IN ?", ids)
	case len(roles) > 0:
		query = query.Where("role IN ?", roles)
	}

	var emails []string
	if err := query.Distinct().Pluck("email", &emails).Error; err != nil {
		h.log.WithError(err).Warn("failed to resolve notification recipients")
		return nil
	}
	return emails
}

func (h *ComplianceHandler) notify(ctx context.Context, template string, to []string, data map[string]string) {
	if len(to) == 0 {
		return
	}
	if err := h.notifier.Enqueue(ctx, notify.Job{Template: template, To: to, Data: data}); err != nil {
		h.log.WithError(err).WithField("template", template).Warn("failed to enqueue notification")
	}
}

func normalizeRoles(raw []string) ([]string, error) {
	out := make([]string, 0, len(raw))
	seen := make(map[string]bool, len(raw))
	for _, r := range raw {
		role, ok := permissions.ParseRole(r)
		if !ok {
			return nil, status.Errorf(codes.InvalidArgument, "Unknown role: %s", r)
		}
		if seen[string(role)] {
			continue
		}
		seen[string(role)] = true
		out = append(out, string(role))
	}
	return out, nil
}
