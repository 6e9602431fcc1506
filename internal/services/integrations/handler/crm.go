package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"roofpro-hub/internal/api/integrationsapi"
	"roofpro-hub/internal/database/models"
	"roofpro-hub/internal/metrics"
	"roofpro-hub/internal/permissions"
)

const (
	upsertBatchSize = 100

	// Set after a sync that stopped early. The rows it saved may be newer
	// than the pages it never reached, so the watermark cannot be trusted
	// until a full sync completes.
	CRM_RESUME_FULL_KEY = "crm:sync:resume_full"
)

var (
	errSyncRunning = errors.New("crm sync already running")
	errSyncPartial = errors.New("crm sync stopped early")
)

// StartPoller runs Sync on schedule until the returned cron is stopped.
func (h *IntegrationsHandler) StartPoller(ctx context.Context, schedule string) (*cron.Cron, error) {
	if h.crm == nil {
		return nil, errors.New("crm client is not configured")
	}
	c := cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger)))
	_, err := c.AddFunc(schedule, func() {
		if _, err := h.Sync(ctx, false); err != nil && !errors.Is(err, errSyncRunning) {
			h.log.WithError(err).Error("scheduled crm sync failed")
		}
	})
	if err != nil {
		return nil, err
	}
	c.Start()
	h.log.WithField("schedule", schedule).Info("crm poller started")
	return c, nil
}

// Sync pulls jobs modified since the newest mirrored row, or every job when
// full is set, and upserts them by external id. Only one sync runs at a time.
// When the CRM fails midway the jobs already fetched are saved, the result is
// returned with an error wrapping errSyncPartial, and later syncs run in full
// until one completes.
func (h *IntegrationsHandler) Sync(ctx context.Context, full bool) (*integrationsapi.SyncResult, error) {
	if !h.syncMu.TryLock() {
		return nil, errSyncRunning
	}
	defer h.syncMu.Unlock()

	if !full && h.resumeFull(ctx) {
		h.log.Info("previous crm sync was partial, running a full sync")
		full = true
	}
	result := &integrationsapi.SyncResult{StartedAt: time.Now().UTC(), Full: full}
	if !full {
		since, err := h.watermark(ctx)
		if err != nil {
			metrics.RecordCRMSync("error", 0)
			return nil, err
		}
		result.Since = since
	}

	jobs, err := h.crm.AllJobs(ctx, result.Since)
	result.Fetched = len(jobs)
	if err != nil && len(jobs) == 0 {
		metrics.RecordCRMSync("error", 0)
		return nil, err
	}
	if err != nil {
		// Keep what arrived before the failing page.
		h.log.WithError(err).WithField("fetched", len(jobs)).Warn("crm sync stopped early")
		result.Partial = true
		result.Error = err.Error()
		h.setResumeFull(ctx, true)
	}

	now := time.Now().UTC()
	rows := make([]models.CRMJob, 0, len(jobs))
	for _, j := range jobs {
		payload := j.Raw
		if strings.TrimSpace(payload) == "" {
			payload = "{}"
		}
		rows = append(rows, models.CRMJob{
			ExternalID:     j.ExternalID,
			JobNumber:      j.JobNumber,
			JobName:        j.JobName,
			CustomerName:   j.CustomerName,
			Status:         j.Status,
			ContractAmount: j.ContractAmount,
			SalesRepEmail:  j.SalesRepEmail,
			ModifiedAt:     j.ModifiedAt,
			Payload:        payload,
			SyncedAt:       now,
		})
	}
	if len(rows) > 0 {
		upsert := h.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "external_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"job_number", "job_name", "customer_name", "status", "contract_amount",
				"sales_rep_email", "modified_at", "payload", "synced_at", "updated_at",
			}),
		}).CreateInBatches(&rows, upsertBatchSize)
		if upsert.Error != nil {
			metrics.RecordCRMSync("error", 0)
			return nil, status.Errorf(codes.Internal, "Failed to save crm jobs: %v", upsert.Error)
		}
		result.Upserted = len(rows)
	}

	outcome := "ok"
	if result.Partial {
		outcome = "partial"
	} else if full {
		h.setResumeFull(ctx, false)
	}
	metrics.RecordCRMSync(outcome, result.Upserted)
	result.FinishedAt = time.Now().UTC()
	h.log.WithFields(logrus.Fields{
		"fetched":  result.Fetched,
		"upserted": result.Upserted,
		"full":     full,
		"outcome":  outcome,
	}).Info("crm sync finished")
	if result.Partial {
		return result, fmt.Errorf("%w after %d jobs: %v", errSyncPartial, result.Fetched, err)
	}
	return result, nil
}

func (h *IntegrationsHandler) resumeFull(ctx context.Context) bool {
	if h.partial.Load() {
		return true
	}
	var pending bool
	return h.cache.GetJSON(ctx, CRM_RESUME_FULL_KEY, &pending) && pending
}

func (h *IntegrationsHandler) setResumeFull(ctx context.Context, pending bool) {
	h.partial.Store(pending)
	if pending {
		h.cache.SetJSON(ctx, CRM_RESUME_FULL_KEY, true, 0)
		return
	}
	h.cache.Del(ctx, CRM_RESUME_FULL_KEY)
}

func (h *IntegrationsHandler) watermark(ctx context.Context) (*time.Time, error) {
	var latest models.CRMJob
	err := h.db.WithContext(ctx).Where("modified_at IS NOT NULL").Order("modified_at desc").Take(&latest).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, status.Errorf(codes.Internal, "Failed to read crm watermark: %v", err)
	}
	return latest.ModifiedAt, nil
}

func (h *IntegrationsHandler) SyncCRMNow(ctx context.Context, req *integrationsapi.SyncCRMRequest) (*integrationsapi.SyncResult, error) {
	if err := req.Actor.Authorize(permissions.IntegrationsManage); err != nil {
		return nil, err
	}
	if h.crm == nil {
		return nil, status.Errorf(codes.FailedPrecondition, "CRM integration is not configured")
	}
	result, err := h.Sync(ctx, req.Full)
	if errors.Is(err, errSyncRunning) {
		return nil, status.Errorf(codes.FailedPrecondition, "A CRM sync is already running")
	}
	if errors.Is(err, errSyncPartial) {
		return nil, status.Errorf(codes.Unavailable, "CRM sync saved %d jobs before failing, the next sync will run in full: %s", result.Upserted, result.Error)
	}
	if err != nil {
		if _, ok := status.FromError(err); ok {
			return nil, err
		}
		return nil, status.Errorf(codes.Unavailable, "CRM sync failed: %v", err)
	}
	h.log.WithField("by", req.Actor.UserID).Info("manual crm sync")
	return result, nil
}

// ListCRMJobs scopes reps without commissions.view_all to their own jobs.
func (h *IntegrationsHandler) ListCRMJobs(ctx context.Context, req *integrationsapi.ListCRMJobsRequest) (*integrationsapi.ListCRMJobsResponse, error) {
	if err := req.Actor.Authorize(permissions.CRMView); err != nil {
		return nil, err
	}
	query := h.db.WithContext(ctx).Model(&models.CRMJob{})
	if !req.Actor.Can(permissions.CommissionsViewAll) {
		query = query.Where("sales_rep_email = ?", strings.ToLower(req.Actor.Email))
	}
	if req.Status != "" {
		query = query.Where("status = ?", req.Status)
	}
	if term := strings.TrimSpace(req.Search); term != "" {
		like := "%" + strings.ToLower(term) + "%"
		query = query.Where("LOWER(job_number) LIKE ? OR LOWER(job_name) LIKE ? OR LOWER(customer_name) LIKE ?", like, like, like)
	}

	jobs, pageResp, err := page[models.CRMJob](query, req.Page, "modified_at desc nulls last", "crm jobs")
	if err != nil {
		return nil, err
	}
	return &integrationsapi.ListCRMJobsResponse{Jobs: jobs, Page: pageResp}, nil
}

func (h *IntegrationsHandler) GetCRMJob(ctx context.Context, req *integrationsapi.GetCRMJobRequest) (*integrationsapi.CRMJobResponse, error) {
	if err := req.Actor.Authorize(permissions.CRMView); err != nil {
		return nil, err
	}
	number := strings.TrimSpace(req.JobNumber)
	if number == "" {
		return nil, status.Errorf(codes.InvalidArgument, "Job number is required")
	}
	var job models.CRMJob
	if err := h.db.WithContext(ctx).Where("job_number = ?", number).First(&job).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, status.Errorf(codes.NotFound, "CRM job %s not found", number)
		}
		return nil, status.Errorf(codes.Internal, "Failed to get crm job: %v", err)
	}
	if !req.Actor.Can(permissions.CommissionsViewAll) && !strings.EqualFold(job.SalesRepEmail, req.Actor.Email) {
		return nil, status.Errorf(codes.NotFound, "CRM job %s not found", number)
	}
	return &integrationsapi.CRMJobResponse{Job: job}, nil
}
