package handler

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"roofpro-hub/internal/api"
	"roofpro-hub/internal/api/integrationsapi"
	"roofpro-hub/internal/cache"
	"roofpro-hub/internal/crm"
	"roofpro-hub/internal/notify"
	"roofpro-hub/internal/weather"
)

type fakeJobs struct {
	jobs  []crm.Job
	err   error
	since *time.Time
	calls int
}

func (f *fakeJobs) AllJobs(_ context.Context, since *time.Time) ([]crm.Job, error) {
	f.calls++
	f.since = since
	return f.jobs, f.err
}

type fakeForecasts struct {
	calls int
	err   error
}

func (f *fakeForecasts) Forecast(_ context.Context, lat, lon float64) (*weather.Forecast, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &weather.Forecast{Latitude: lat, Longitude: lon, Timezone: "America/Chicago"}, nil
}

type recorder struct {
	jobs []notify.Job
}

func (r *recorder) Enqueue(_ context.Context, job notify.Job) error {
	r.jobs = append(r.jobs, job)
	return nil
}

type fixture struct {
	h       *IntegrationsHandler
	mock    sqlmock.Sqlmock
	jobs    *fakeJobs
	weather *fakeForecasts
	pub     *recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	f := &fixture{mock: mock, jobs: &fakeJobs{}, weather: &fakeForecasts{}, pub: &recorder{}}
	f.h = NewIntegrationsHandler(db, cache.New(nil, nil), f.pub, f.jobs, f.weather, nil)
	return f
}

func q(sql string) string {
	return regexp.QuoteMeta(sql)
}

var (
	admin = api.Actor{UserID: uuid.New(), Email: "admin@tsm.test", Role: "admin"}
	rep   = api.Actor{UserID: uuid.New(), Email: "Rep@TSM.test", Role: "sales_rep"}
)

func codeOf(err error) codes.Code {
	return status.Code(err)
}

func TestGetForecast(t *testing.T) {
	f := newFixture(t)

	resp, err := f.h.GetForecast(context.Background(), &integrationsapi.ForecastRequest{Actor: rep, Latitude: 32.7767, Longitude: -96.797})
	require.NoError(t, err)
	assert.False(t, resp.Cached)
	assert.Equal(t, "America/Chicago", resp.Forecast.Timezone)
	assert.Equal(t, 1, f.weather.calls)

	_, err = f.h.GetForecast(context.Background(), &integrationsapi.ForecastRequest{Actor: rep, Latitude: 120})
	assert.Equal(t, codes.InvalidArgument, codeOf(err))

	_, err = f.h.GetForecast(context.Background(), &integrationsapi.ForecastRequest{Latitude: 1, Longitude: 1})
	assert.Equal(t, codes.Unauthenticated, codeOf(err))

	f.weather.err = errors.New("upstream down")
	_, err = f.h.GetForecast(context.Background(), &integrationsapi.ForecastRequest{Actor: rep, Latitude: 1, Longitude: 1})
	assert.Equal(t, codes.Unavailable, codeOf(err))
}

func TestSendEmail(t *testing.T) {
	f := newFixture(t)

	resp, err := f.h.SendEmail(context.Background(), &integrationsapi.SendEmailRequest{
		Actor:   admin,
		To:      []string{"Crew@TSM.test", "crew@tsm.test", "Office <office@tsm.test>"},
		Subject: "Storm response",
		Body:    "All crews report to the yard at 7.",
	})
	require.NoError(t, err)
	assert.True(t, resp.Queued)
	require.Len(t, f.pub.jobs, 1)

	job := f.pub.jobs[0]
	assert.Equal(t, resp.JobID, job.ID)
	assert.Equal(t, notify.TemplateAdhoc, job.Template)
	assert.Equal(t, []string{"crew@tsm.test", "office@tsm.test"}, job.To)
	assert.Equal(t, "Storm response", job.Data["subject"])
}

func TestSendEmailValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.h.SendEmail(ctx, &integrationsapi.SendEmailRequest{Actor: rep, To: []string{"a@tsm.test"}, Subject: "s", Body: "b"})
	assert.Equal(t, codes.PermissionDenied, codeOf(err))

	_, err = f.h.SendEmail(ctx, &integrationsapi.SendEmailRequest{Actor: admin, To: []string{"a@tsm.test"}, Subject: " ", Body: "b"})
	assert.Equal(t, codes.InvalidArgument, codeOf(err))

	_, err = f.h.SendEmail(ctx, &integrationsapi.SendEmailRequest{Actor: admin, To: []string{"not-an-email"}, Subject: "s", Body: "b"})
	assert.Equal(t, codes.InvalidArgument, codeOf(err))

	_, err = f.h.SendEmail(ctx, &integrationsapi.SendEmailRequest{Actor: admin, Subject: "s", Body: "b"})
	assert.Equal(t, codes.InvalidArgument, codeOf(err))
	assert.Empty(t, f.pub.jobs)
}

var watermarkSQL = q(`SELECT * FROM "crm_jobs" WHERE modified_at IS NOT NULL ORDER BY modified_at desc`)

func TestSyncUsesWatermark(t *testing.T) {
	f := newFixture(t)
	last := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	modified := last.Add(time.Hour)
	f.jobs.jobs = []crm.Job{
		{ExternalID: "a1", JobNumber: "J-100", ContractAmount: decimal.RequireFromString("18000"), SalesRepEmail: "rep@tsm.test", ModifiedAt: &modified, Raw: `{"id":"a1"}`},
		{ExternalID: "b2", JobNumber: "J-101"},
	}

	f.mock.ExpectQuery(watermarkSQL).
		WillReturnRows(sqlmock.NewRows([]string{"id", "external_id", "modified_at"}).AddRow(uuid.NewString(), "old", last))
	f.mock.ExpectExec(q(`INSERT INTO "crm_jobs"`)).WillReturnResult(sqlmock.NewResult(0, 2))

	result, err := f.h.Sync(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Fetched)
	assert.Equal(t, 2, result.Upserted)
	require.NotNil(t, f.jobs.since)
	assert.True(t, last.Equal(*f.jobs.since))
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestSyncFullSkipsWatermark(t *testing.T) {
	f := newFixture(t)

	result, err := f.h.Sync(context.Background(), true)
	require.NoError(t, err)
	assert.Nil(t, f.jobs.since)
	assert.Equal(t, 0, result.Upserted)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestSyncCRMNow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.h.SyncCRMNow(ctx, &integrationsapi.SyncCRMRequest{Actor: rep})
	assert.Equal(t, codes.PermissionDenied, codeOf(err))

	f.h.syncMu.Lock()
	_, err = f.h.SyncCRMNow(ctx, &integrationsapi.SyncCRMRequest{Actor: admin, Full: true})
	f.h.syncMu.Unlock()
	assert.Equal(t, codes.FailedPrecondition, codeOf(err))

	f.jobs.err = &crm.APIError{StatusCode: 401, Message: "invalid api key"}
	_, err = f.h.SyncCRMNow(ctx, &integrationsapi.SyncCRMRequest{Actor: admin, Full: true})
	assert.Equal(t, codes.Unavailable, codeOf(err))
}

func TestPartialSyncReportsErrorAndForcesFullSync(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	last := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	f.jobs.jobs = []crm.Job{{ExternalID: "a1", JobNumber: "J-100"}}
	f.jobs.err = &crm.APIError{StatusCode: 502, Message: "bad gateway"}

	f.mock.ExpectQuery(watermarkSQL).
		WillReturnRows(sqlmock.NewRows([]string{"id", "external_id", "modified_at"}).AddRow(uuid.NewString(), "old", last))
	f.mock.ExpectExec(q(`INSERT INTO "crm_jobs"`)).WillReturnResult(sqlmock.NewResult(0, 1))

	result, err := f.h.Sync(ctx, false)
	require.ErrorIs(t, err, errSyncPartial)
	require.NotNil(t, result)
	assert.True(t, result.Partial)
	assert.Equal(t, 1, result.Upserted)
	assert.Contains(t, result.Error, "bad gateway")

	// The watermark is skipped until a full sync completes.
	f.jobs.err = nil
	f.mock.ExpectExec(q(`INSERT INTO "crm_jobs"`)).WillReturnResult(sqlmock.NewResult(0, 1))
	result, err = f.h.Sync(ctx, false)
	require.NoError(t, err)
	assert.True(t, result.Full)
	assert.False(t, result.Partial)
	assert.Nil(t, f.jobs.since)

	f.mock.ExpectQuery(watermarkSQL).
		WillReturnRows(sqlmock.NewRows([]string{"id", "external_id", "modified_at"}).AddRow(uuid.NewString(), "a1", last))
	f.mock.ExpectExec(q(`INSERT INTO "crm_jobs"`)).WillReturnResult(sqlmock.NewResult(0, 1))
	result, err = f.h.Sync(ctx, false)
	require.NoError(t, err)
	assert.False(t, result.Full)
	require.NotNil(t, f.jobs.since)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestSyncCRMNowReportsPartialSync(t *testing.T) {
	f := newFixture(t)
	f.jobs.jobs = []crm.Job{{ExternalID: "a1", JobNumber: "J-100"}}
	f.jobs.err = &crm.APIError{StatusCode: 502, Message: "bad gateway"}
	f.mock.ExpectExec(q(`INSERT INTO "crm_jobs"`)).WillReturnResult(sqlmock.NewResult(0, 1))

	_, err := f.h.SyncCRMNow(context.Background(), &integrationsapi.SyncCRMRequest{Actor: admin, Full: true})
	assert.Equal(t, codes.Unavailable, codeOf(err))
	assert.Contains(t, err.Error(), "saved 1 jobs")
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestSyncCRMNowNotConfigured(t *testing.T) {
	h := NewIntegrationsHandler(nil, nil, nil, nil, nil, nil)
	_, err := h.SyncCRMNow(context.Background(), &integrationsapi.SyncCRMRequest{Actor: admin})
	assert.Equal(t, codes.FailedPrecondition, codeOf(err))

	_, err = h.StartPoller(context.Background(), "@every 1m")
	assert.Error(t, err)
}

func TestStartPollerRejectsBadSchedule(t *testing.T) {
	f := newFixture(t)
	_, err := f.h.StartPoller(context.Background(), "every now and then")
	assert.Error(t, err)

	c, err := f.h.StartPoller(context.Background(), "@every 1h")
	require.NoError(t, err)
	c.Stop()
}

func TestListCRMJobsScopesReps(t *testing.T) {
	f := newFixture(t)

	f.mock.ExpectQuery(q(`SELECT count(*) FROM "crm_jobs" WHERE sales_rep_email = $1`)).
		WithArgs("rep@tsm.test").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	f.mock.ExpectQuery(q(`SELECT * FROM "crm_jobs" WHERE sales_rep_email = $1 ORDER BY modified_at desc nulls last`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "external_id", "job_number", "sales_rep_email"}).
			AddRow(uuid.NewString(), "a1", "J-100", "rep@tsm.test"))

	resp, err := f.h.ListCRMJobs(context.Background(), &integrationsapi.ListCRMJobsRequest{Actor: rep})
	require.NoError(t, err)
	require.Len(t, resp.Jobs, 1)
	assert.Equal(t, "J-100", resp.Jobs[0].JobNumber)
	assert.Equal(t, int64(1), resp.Page.TotalCount)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestGetCRMJobHidesOtherRepsJobs(t *testing.T) {
	f := newFixture(t)
	f.mock.ExpectQuery(q(`SELECT * FROM "crm_jobs" WHERE job_number = $1`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "external_id", "job_number", "sales_rep_email"}).
			AddRow(uuid.NewString(), "a1", "J-100", "someone@tsm.test"))

	_, err := f.h.GetCRMJob(context.Background(), &integrationsapi.GetCRMJobRequest{Actor: rep, JobNumber: "J-100"})
	assert.Equal(t, codes.NotFound, codeOf(err))

	_, err = f.h.GetCRMJob(context.Background(), &integrationsapi.GetCRMJobRequest{Actor: rep})
	assert.Equal(t, codes.InvalidArgument, codeOf(err))
}

func TestListEmailLogsRejectsUnknownStatus(t *testing.T) {
	f := newFixture(t)
	_, err := f.h.ListEmailLogs(context.Background(), &integrationsapi.ListEmailLogsRequest{Actor: admin, Status: "bounced"})
	assert.Equal(t, codes.InvalidArgument, codeOf(err))

	_, err = f.h.ListEmailLogs(context.Background(), &integrationsapi.ListEmailLogsRequest{Actor: rep})
	assert.Equal(t, codes.PermissionDenied, codeOf(err))
}
