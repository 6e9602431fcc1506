package handler

import (
	"errors"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gorm.io/gorm"

	"roofpro-hub/internal/api"
	"roofpro-hub/internal/api/directoryapi"
	"roofpro-hub/internal/cache"
	"roofpro-hub/internal/database/models"
	"roofpro-hub/internal/rpc"
)

const TRAINING_CACHE_KEY = "directory:training:published"

type DirectoryHandler struct {
	db    *gorm.DB
	cache *cache.Cache
	log   *logrus.Entry
}

func NewDirectoryHandler(db *gorm.DB, c *cache.Cache, log *logrus.Entry) *DirectoryHandler {
	if log == nil {
		log = logrus.WithField("service", "directory")
	}
	return &DirectoryHandler{db: db, cache: c, log: log}
}

func (h *DirectoryHandler) Service() *rpc.Service {
	return rpc.NewService(directoryapi.ServiceName).
		Handle(directoryapi.MethodCreateSubcontractor, rpc.Unary(h.CreateSubcontractor)).
		Handle(directoryapi.MethodUpdateSubcontractor, rpc.Unary(h.UpdateSubcontractor)).
		Handle(directoryapi.MethodGetSubcontractor, rpc.Unary(h.GetSubcontractor)).
		Handle(directoryapi.MethodListSubcontractors, rpc.Unary(h.ListSubcontractors)).
		Handle(directoryapi.MethodSetSubcontractorStatus, rpc.Unary(h.SetSubcontractorStatus)).
		Handle(directoryapi.MethodListExpiringInsurance, rpc.Unary(h.ListExpiringInsurance)).
		Handle(directoryapi.MethodCreateVendor, rpc.Unary(h.CreateVendor)).
		Handle(directoryapi.MethodUpdateVendor, rpc.Unary(h.UpdateVendor)).
		Handle(directoryapi.MethodGetVendor, rpc.Unary(h.GetVendor)).
		Handle(directoryapi.MethodListVendors, rpc.Unary(h.ListVendors)).
		Handle(directoryapi.MethodSetVendorStatus, rpc.Unary(h.SetVendorStatus)).
		Handle(directoryapi.MethodCreateProspect, rpc.Unary(h.CreateProspect)).
		Handle(directoryapi.MethodUpdateProspect, rpc.Unary(h.UpdateProspect)).
		Handle(directoryapi.MethodGetProspect, rpc.Unary(h.GetProspect)).
		Handle(directoryapi.MethodListProspects, rpc.Unary(h.ListProspects)).
		Handle(directoryapi.MethodSetProspectStatus, rpc.Unary(h.SetProspectStatus)).
		Handle(directoryapi.MethodCreateTraining, rpc.Unary(h.CreateTraining)).
		Handle(directoryapi.MethodUpdateTraining, rpc.Unary(h.UpdateTraining)).
		Handle(directoryapi.MethodGetTraining, rpc.Unary(h.GetTraining)).
		Handle(directoryapi.MethodListTraining, rpc.Unary(h.ListTraining)).
		Handle(directoryapi.MethodDeleteTraining, rpc.Unary(h.DeleteTraining))
}

// transitions lists, per entity, the statuses each status may move to.
type transitions map[string][]string

var (
	subcontractorFlow = transitions{
		models.SubcontractorPending:  {models.SubcontractorApproved, models.SubcontractorInactive, models.SubcontractorDoNotUse},
		models.SubcontractorApproved: {models.SubcontractorInactive, models.SubcontractorDoNotUse},
		models.SubcontractorInactive: {models.SubcontractorPending, models.SubcontractorApproved, models.SubcontractorDoNotUse},
		models.SubcontractorDoNotUse: {models.SubcontractorInactive},
	}
	vendorFlow = transitions{
		models.VendorActive:   {models.VendorInactive},
		models.VendorInactive: {models.VendorActive},
	}
	prospectFlow = transitions{
		models.ProspectNew:       {models.ProspectContacted, models.ProspectLost},
		models.ProspectContacted: {models.ProspectQualified, models.ProspectLost},
		models.ProspectQualified: {models.ProspectConverted, models.ProspectLost},
		models.ProspectLost:      {models.ProspectNew},
		models.ProspectConverted: {},
	}
)

func (t transitions) known(s string) bool {
	_, ok := t[s]
	return ok
}

func (t transitions) check(kind, from, to string) error {
	if !t.known(to) {
		return status.Errorf(codes.InvalidArgument, "Unknown %s status: %s", kind, to)
	}
	for _, next := range t[from] {
		if next == to {
			return nil
		}
	}
	return status.Errorf(codes.FailedPrecondition, "Cannot move %s from %s to %s", kind, from, to)
}

func notFound(what string, id uuid.UUID, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return status.Errorf(codes.NotFound, "%s with ID %s not found", what, id)
	}
	return status.Errorf(codes.Internal, "Failed to get %s: %v", strings.ToLower(what), err)
}

func requireName(field, v string) (string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return "", status.Errorf(codes.InvalidArgument, "%s is required", field)
	}
	return v, nil
}

// cleanEmail accepts an empty address or one net/mail can parse.
func cleanEmail(v string) (string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return "", nil
	}
	addr, err := mail.ParseAddress(v)
	if err != nil {
		return "", status.Errorf(codes.InvalidArgument, "Invalid email %q", v)
	}
	return strings.ToLower(addr.Address), nil
}

func searchClause(query *gorm.DB, term string, columns ...string) *gorm.DB {
	term = strings.TrimSpace(term)
	if term == "" || len(columns) == 0 {
		return query
	}
	like := "%" + strings.ToLower(term) + "%"
	parts := make([]string, len(columns))
	args := make([]interface{}, len(columns))
	for i, c := range columns {
		parts[i] = "LOWER(" + c + ") LIKE ?"
		args[i] = like
	}
	return query.Where(strings.Join(parts, " OR "), args...)
}

// page counts query and loads one page of it into dst.
func page[T any](query *gorm.DB, req api.PageRequest, order string, what string) ([]T, api.PageResponse, error) {
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, api.PageResponse{}, status.Errorf(codes.Internal, "Failed to count %s: %v", what, err)
	}
	_, limit, offset := req.Bounds()
	out := []T{}
	if err := query.Order(order).Offset(offset).Limit(limit).Find(&out).Error; err != nil {
		return nil, api.PageResponse{}, status.Errorf(codes.Internal, "Failed to retrieve %s: %v", what, err)
	}
	return out, api.NewPageResponse(req, total), nil
}
