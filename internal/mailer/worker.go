package mailer

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"roofpro-hub/internal/database/models"
	"roofpro-hub/internal/metrics"
	"roofpro-hub/internal/notify"
)

const MaxAttempts = 3

// Queue is the part of notify.Queue the worker needs.
type Queue interface {
	Enqueue(ctx context.Context, job notify.Job) error
	Dequeue(ctx context.Context, timeout time.Duration) (*notify.Job, error)
}

type Worker struct {
	queue    Queue
	sender   Sender
	renderer *Renderer
	db       *gorm.DB
	log      *logrus.Entry
	wait     time.Duration
}

func NewWorker(queue Queue, sender Sender, renderer *Renderer, db *gorm.DB, log *logrus.Entry) *Worker {
	if log == nil {
		log = logrus.WithField("component", "mailer")
	}
	return &Worker{
		queue:    queue,
		sender:   sender,
		renderer: renderer,
		db:       db,
		log:      log,
		wait:     5 * time.Second,
	}
}

// Run drains the queue until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	w.log.Info("email worker started")
	for {
		if ctx.Err() != nil {
			w.log.Info("email worker stopped")
			return
		}
		job, err := w.queue.Dequeue(ctx, w.wait)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			w.log.WithError(err).Warn("failed to dequeue notification")
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
			continue
		}
		if job == nil {
			continue
		}
		w.Process(ctx, *job)
	}
}

// Process makes one delivery attempt. Transient send failures go back on
// the queue until MaxAttempts is reached.
func (w *Worker) Process(ctx context.Context, job notify.Job) models.EmailLog {
	job.Attempts++
	entry := models.EmailLog{
		Template:   job.Template,
		Recipients: strings.Join(job.To, ", "),
		Attempts:   job.Attempts,
	}
	if id, err := uuid.Parse(job.ID); err == nil {
		entry.ID = id
	}
	log := w.log.WithFields(logrus.Fields{
		"job_id":   job.ID,
		"template": job.Template,
		"attempt":  job.Attempts,
	})

	msg, err := w.renderer.Render(job)
	if err != nil {
		log.WithError(err).Error("failed to render notification")
		entry.Status = models.EmailFailed
		entry.Error = errText(err)
		metrics.RecordEmail(job.Template, models.EmailFailed)
		w.record(ctx, &entry)
		return entry
	}
	entry.Subject = msg.Subject

	providerID, err := w.sender.Send(ctx, msg)
	switch {
	case err == nil:
		entry.Status = models.EmailSent
		entry.ProviderID = &providerID
		log.WithField("provider_id", providerID).Info("notification sent")
		metrics.RecordEmail(job.Template, models.EmailSent)
	case job.Attempts < MaxAttempts:
		entry.Status = models.EmailQueued
		entry.Error = errText(err)
		log.WithError(err).Warn("notification send failed, requeueing")
		if qerr := w.queue.Enqueue(ctx, job); qerr != nil {
			log.WithError(qerr).Error("failed to requeue notification")
			entry.Status = models.EmailFailed
		}
		metrics.RecordEmail(job.Template, "retry")
	default:
		entry.Status = models.EmailFailed
		entry.Error = errText(err)
		log.WithError(err).Error("notification send failed, giving up")
		metrics.RecordEmail(job.Template, models.EmailFailed)
	}
	w.record(ctx, &entry)
	return entry
}

// record keeps one log row per job, updated on every attempt.
func (w *Worker) record(ctx context.Context, entry *models.EmailLog) {
	if w.db == nil {
		return
	}
	err := w.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"subject", "status", "attempts", "provider_id", "error", "updated_at"}),
	}).Create(entry).Error
	if err != nil {
		w.log.WithError(err).WithField("job_id", entry.ID).Warn("failed to write email log")
	}
}

func errText(err error) *string {
	s := err.Error()
	return &s
}
