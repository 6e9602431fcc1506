package handler

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gorm.io/gorm"

	"roofpro-hub/internal/api"
	"roofpro-hub/internal/api/integrationsapi"
	"roofpro-hub/internal/cache"
	"roofpro-hub/internal/crm"
	"roofpro-hub/internal/database/models"
	"roofpro-hub/internal/notify"
	"roofpro-hub/internal/permissions"
	"roofpro-hub/internal/rpc"
	"roofpro-hub/internal/weather"
)

const (
	WEATHER_CACHE_PREFIX = "weather:"
	weatherTTL           = 15 * time.Minute
	maxAdhocRecipients   = 50
)

// JobSource is the CRM client as seen by the poller.
type JobSource interface {
	AllJobs(ctx context.Context, since *time.Time) ([]crm.Job, error)
}

type ForecastSource interface {
	Forecast(ctx context.Context, lat, lon float64) (*weather.Forecast, error)
}

type IntegrationsHandler struct {
	db       *gorm.DB
	cache    *cache.Cache
	notifier notify.Publisher
	crm      JobSource
	weather  ForecastSource
	log      *logrus.Entry

	syncMu  sync.Mutex
	partial atomic.Bool
}

// NewIntegrationsHandler wires the service. A nil jobs source leaves CRM
// sync disabled.
func NewIntegrationsHandler(db *gorm.DB, c *cache.Cache, notifier notify.Publisher, jobs JobSource, forecasts ForecastSource, log *logrus.Entry) *IntegrationsHandler {
	if notifier == nil {
		notifier = notify.Discard{}
	}
	if log == nil {
		log = logrus.WithField("service", "integrations")
	}
	return &IntegrationsHandler{
		db:       db,
		cache:    c,
		notifier: notifier,
		crm:      jobs,
		weather:  forecasts,
		log:      log,
	}
}

func (h *IntegrationsHandler) Service() *rpc.Service {
	return rpc.NewService(integrationsapi.ServiceName).
		Handle(integrationsapi.MethodListCRMJobs, rpc.Unary(h.ListCRMJobs)).
		Handle(integrationsapi.MethodGetCRMJob, rpc.Unary(h.GetCRMJob)).
		Handle(integrationsapi.MethodSyncCRMNow, rpc.Unary(h.SyncCRMNow)).
		Handle(integrationsapi.MethodGetForecast, rpc.Unary(h.GetForecast)).
		Handle(integrationsapi.MethodSendEmail, rpc.Unary(h.SendEmail)).
		Handle(integrationsapi.MethodListEmailLogs, rpc.Unary(h.ListEmailLogs))
}

func (h *IntegrationsHandler) GetForecast(ctx context.Context, req *integrationsapi.ForecastRequest) (*integrationsapi.ForecastResponse, error) {
	if err := req.Actor.Authorize(); err != nil {
		return nil, err
	}
	if !weather.ValidCoordinates(req.Latitude, req.Longitude) {
		return nil, status.Errorf(codes.InvalidArgument, "Coordinates out of range: %v,%v", req.Latitude, req.Longitude)
	}
	if h.weather == nil {
		return nil, status.Errorf(codes.Unavailable, "Weather is not configured")
	}

	// Two decimals is roughly a kilometre, close enough for a job site.
	key := fmt.Sprintf("%s%.2f,%.2f", WEATHER_CACHE_PREFIX, req.Latitude, req.Longitude)
	var cached weather.Forecast
	if h.cache.GetJSON(ctx, key, &cached) {
		return &integrationsapi.ForecastResponse{Forecast: cached, Cached: true}, nil
	}

	forecast, err := h.weather.Forecast(ctx, req.Latitude, req.Longitude)
	if err != nil {
		h.log.WithError(err).Warn("weather lookup failed")
		return nil, status.Errorf(codes.Unavailable, "Failed to get forecast: %v", err)
	}
	h.cache.SetJSON(ctx, key, forecast, weatherTTL)
	return &integrationsapi.ForecastResponse{Forecast: *forecast}, nil
}

// SendEmail queues an ad-hoc message for the email worker.
func (h *IntegrationsHandler) SendEmail(ctx context.Context, req *integrationsapi.SendEmailRequest) (*integrationsapi.SendEmailResponse, error) {
	if err := req.Actor.Authorize(permissions.IntegrationsManage); err != nil {
		return nil, err
	}
	subject := strings.TrimSpace(req.Subject)
	body := strings.TrimSpace(req.Body)
	if subject == "" || body == "" {
		return nil, status.Errorf(codes.InvalidArgument, "Subject and body are required")
	}
	to, err := recipients(req.To)
	if err != nil {
		return nil, err
	}

	job := notify.Job{
		ID:       uuid.NewString(),
		Template: notify.TemplateAdhoc,
		To:       to,
		Data:     map[string]string{"subject": subject, "body": body, "sent_by": req.Actor.Email},
	}
	if err := h.notifier.Enqueue(ctx, job); err != nil {
		return nil, status.Errorf(codes.Internal, "Failed to queue email: %v", err)
	}
	h.log.WithFields(logrus.Fields{"job_id": job.ID, "recipients": len(to), "by": req.Actor.UserID}).Info("ad-hoc email queued")
	return &integrationsapi.SendEmailResponse{JobID: job.ID, Queued: true}, nil
}

func recipients(raw []string) ([]string, error) {
	if len(raw) == 0 {
		return nil, status.Errorf(codes.InvalidArgument, "At least one recipient is required")
	}
	if len(raw) > maxAdhocRecipients {
		return nil, status.Errorf(codes.InvalidArgument, "At most %d recipients are allowed", maxAdhocRecipients)
	}
	seen := make(map[string]bool, len(raw))
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		addr, err := mail.ParseAddress(strings.TrimSpace(r))
		if err != nil {
			return nil, status.Errorf(codes.InvalidArgument, "Invalid email %q", r)
		}
		email := strings.ToLower(addr.Address)
		if !seen[email] {
			seen[email] = true
			out = append(out, email)
		}
	}
	return out, nil
}

func (h *IntegrationsHandler) ListEmailLogs(ctx context.Context, req *integrationsapi.ListEmailLogsRequest) (*integrationsapi.ListEmailLogsResponse, error) {
	if err := req.Actor.Authorize(permissions.IntegrationsManage); err != nil {
		return nil, err
	}
	query := h.db.WithContext(ctx).Model(&models.EmailLog{})
	if req.Status != "" {
		switch req.Status {
		case models.EmailQueued, models.EmailSent, models.EmailFailed:
		default:
			return nil, status.Errorf(codes.InvalidArgument, "Unknown email status: %s", req.Status)
		}
		query = query.Where("status = ?", req.Status)
	}
	if req.Template != "" {
		query = query.Where("template = ?", req.Template)
	}

	logs, pageResp, err := page[models.EmailLog](query, req.Page, "created_at desc", "email logs")
	if err != nil {
		return nil, err
	}
	return &integrationsapi.ListEmailLogsResponse{Logs: logs, Page: pageResp}, nil
}

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
