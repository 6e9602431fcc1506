package mailer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"roofpro-hub/internal/database/models"
	"roofpro-hub/internal/notify"
)

func newRenderer(t *testing.T) *Renderer {
	t.Helper()
	r, err := NewRenderer("Hub <noreply@tsm.test>", "https://portal.tsm.test")
	require.NoError(t, err)
	return r
}

func TestRenderTemplates(t *testing.T) {
	r := newRenderer(t)

	msg, err := r.Render(notify.Job{
		Template: notify.TemplateSubmissionStatus,
		To:       []string{"rep@tsm.test"},
		Data: map[string]string{
			"kind":        "submission",
			"job":         "Smith Reroof",
			"from_status": "accounting_approved",
			"to_status":   "paid",
			"amount":      "1200.00",
			"net_payout":  "700.00",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "Commission submission for Smith Reroof is paid", msg.Subject)
	assert.Equal(t, "Hub <noreply@tsm.test>", msg.From)
	assert.Contains(t, msg.HTML, "Net payout: $700.00")
	assert.Contains(t, msg.HTML, "https://portal.tsm.test")
	assert.NotContains(t, msg.HTML, "Draw applied")

	msg, err = r.Render(notify.Job{
		Template: notify.TemplateHoldPlaced,
		To:       []string{"acct@tsm.test"},
		Data:     map[string]string{"reason": "Missing lien waiver"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Compliance hold placed", msg.Subject)
	assert.Contains(t, msg.HTML, "Missing lien waiver")
}

func TestRenderEscapesData(t *testing.T) {
	msg, err := newRenderer(t).Render(notify.Job{
		Template: notify.TemplateAdhoc,
		To:       []string{"a@tsm.test"},
		Data:     map[string]string{"subject": "Storm crew update", "body": "<script>x</script>"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Storm crew update", msg.Subject)
	assert.NotContains(t, msg.HTML, "<script>")
}

func TestRenderUnknownTemplate(t *testing.T) {
	_, err := newRenderer(t).Render(notify.Job{Template: "nope", To: []string{"a@tsm.test"}})
	assert.Error(t, err)
}

func TestResendSender(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer re_test", r.Header.Get("Authorization"))
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Hello", body["subject"])
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"email_123"}`))
	}))
	defer srv.Close()

	base, err := url.Parse(srv.URL + "/")
	require.NoError(t, err)
	sender, err := NewResendSender("re_test", base)
	require.NoError(t, err)

	id, err := sender.Send(context.Background(), Message{From: "a@tsm.test", To: []string{"b@tsm.test"}, Subject: "Hello", HTML: "<p>hi</p>"})
	require.NoError(t, err)
	assert.Equal(t, "email_123", id)

	_, err = NewResendSender("", nil)
	assert.ErrorIs(t, err, ErrNoAPIKey)
}

type fakeQueue struct {
	jobs []notify.Job
}

func (q *fakeQueue) Enqueue(_ context.Context, job notify.Job) error {
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *fakeQueue) Dequeue(context.Context, time.Duration) (*notify.Job, error) {
	if len(q.jobs) == 0 {
		return nil, nil
	}
	job := q.jobs[0]
	q.jobs = q.jobs[1:]
	return &job, nil
}

type fakeSender struct {
	err  error
	sent []Message
}

func (s *fakeSender) Send(_ context.Context, msg Message) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.sent = append(s.sent, msg)
	return "prov-1", nil
}

func newWorker(t *testing.T, q Queue, s Sender) (*Worker, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return NewWorker(q, s, newRenderer(t), db, nil), mock
}

func welcomeJob() notify.Job {
	return notify.Job{
		ID:       uuid.NewString(),
		Template: notify.TemplateWelcome,
		To:       []string{"new@tsm.test"},
		Data:     map[string]string{"name": "Jo Roofer", "role": "sales_rep"},
	}
}

var insertLog = regexp.QuoteMeta(`INSERT INTO "email_logs"`)

func TestProcessSends(t *testing.T) {
	sender := &fakeSender{}
	w, mock := newWorker(t, &fakeQueue{}, sender)
	mock.ExpectExec(insertLog).WillReturnResult(sqlmock.NewResult(1, 1))

	job := welcomeJob()
	entry := w.Process(context.Background(), job)

	assert.Equal(t, models.EmailSent, entry.Status)
	assert.Equal(t, 1, entry.Attempts)
	assert.Equal(t, job.ID, entry.ID.String())
	require.NotNil(t, entry.ProviderID)
	assert.Equal(t, "prov-1", *entry.ProviderID)
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "Welcome to TSM Roof Pro Hub", sender.sent[0].Subject)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessRequeuesThenGivesUp(t *testing.T) {
	queue := &fakeQueue{}
	w, mock := newWorker(t, queue, &fakeSender{err: errors.New("resend unavailable")})
	for i := 0; i < MaxAttempts; i++ {
		mock.ExpectExec(insertLog).WillReturnResult(sqlmock.NewResult(1, 1))
	}

	ctx := context.Background()
	entry := w.Process(ctx, welcomeJob())
	assert.Equal(t, models.EmailQueued, entry.Status)
	require.Len(t, queue.jobs, 1)
	assert.Equal(t, 1, queue.jobs[0].Attempts)

	for attempt := 2; attempt <= MaxAttempts; attempt++ {
		next, err := queue.Dequeue(ctx, 0)
		require.NoError(t, err)
		require.NotNil(t, next)
		entry = w.Process(ctx, *next)
	}
	assert.Equal(t, models.EmailFailed, entry.Status)
	assert.Equal(t, MaxAttempts, entry.Attempts)
	assert.Empty(t, queue.jobs)
	require.NotNil(t, entry.Error)
	assert.Contains(t, *entry.Error, "resend unavailable")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessUnknownTemplateIsPermanent(t *testing.T) {
	queue := &fakeQueue{}
	w, mock := newWorker(t, queue, &fakeSender{})
	mock.ExpectExec(insertLog).WillReturnResult(sqlmock.NewResult(1, 1))

	entry := w.Process(context.Background(), notify.Job{ID: uuid.NewString(), Template: "bogus", To: []string{"x@tsm.test"}})
	assert.Equal(t, models.EmailFailed, entry.Status)
	assert.Empty(t, queue.jobs)
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w := NewWorker(&fakeQueue{}, &fakeSender{}, newRenderer(t), nil, nil)

	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}
