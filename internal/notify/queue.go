// Package notify moves email notification jobs between the services that
// raise them and the integrations worker that sends them, over a Redis list.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const QueueKey = "notifications:email"

const (
	TemplateWelcome          = "welcome"
	TemplateSubmissionStatus = "submission_status"
	TemplateDocumentStatus   = "document_status"
	TemplateHoldPlaced       = "hold_placed"
	TemplateSOPPublished     = "sop_published"
	TemplateAdhoc            = "adhoc"
)

// Job is one email to send.
type Job struct {
	ID         string            `json:"id"`
	Template   string            `json:"template"`
	To         []string          `json:"to"`
	Data       map[string]string `json:"data,omitempty"`
	Attempts   int               `json:"attempts"`
	EnqueuedAt time.Time         `json:"enqueued_at"`
}

// Publisher accepts jobs for delivery.
type Publisher interface {
	Enqueue(ctx context.Context, job Job) error
}

type Queue struct {
	rdb redis.Cmdable
	key string
}

func NewQueue(rdb redis.Cmdable) *Queue {
	return &Queue{rdb: rdb, key: QueueKey}
}

// Enqueue pushes job onto the queue, filling in its ID and timestamp.
func (q *Queue) Enqueue(ctx context.Context, job Job) error {
	if len(job.To) == 0 {
		return errors.New("notify: job has no recipients")
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("notify: encode job: %w", err)
	}
	return q.rdb.LPush(ctx, q.key, payload).Err()
}

// Dequeue blocks up to timeout for the next job. It returns nil, nil when
// the wait times out.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (*Job, error) {
	res, err := q.rdb.BRPop(ctx, timeout, q.key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	// BRPOP replies with [key, value].
	if len(res) != 2 {
		return nil, fmt.Errorf("notify: unexpected BRPOP reply of length %d", len(res))
	}
	var job Job
	if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
		return nil, fmt.Errorf("notify: decode job: %w", err)
	}
	return &job, nil
}

// Len reports the number of queued jobs.
func (q *Queue) Len(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, q.key).Result()
}

// Discard is a Publisher that drops every job. Services use it when no
// queue is configured.
type Discard struct{}

func (Discard) Enqueue(context.Context, Job) error { return nil }
