package handler

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"roofpro-hub/internal/api"
	"roofpro-hub/internal/api/usersapi"
	"roofpro-hub/internal/cache"
	"roofpro-hub/internal/notify"
	"roofpro-hub/internal/utils"
)

type recordingPublisher struct {
	jobs []notify.Job
}

func (p *recordingPublisher) Enqueue(_ context.Context, job notify.Job) error {
	p.jobs = append(p.jobs, job)
	return nil
}

func newTestHandler(t *testing.T) (*UserHandler, sqlmock.Sqlmock, *recordingPublisher) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	tokens, err := utils.NewTokens("test-secret", time.Hour)
	require.NoError(t, err)

	pub := &recordingPublisher{}
	return NewUserHandler(db, cache.New(nil, nil), tokens, pub, nil), mock, pub
}

var profileColumns = []string{"id", "email", "password_hash", "first_name", "last_name", "role", "department", "employment_status"}

func profileRow(id uuid.UUID, password, role, employment string) *sqlmock.Rows {
	hash, _ := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	return sqlmock.NewRows(profileColumns).
		AddRow(id.String(), "jane@tsmroofpro.com", string(hash), "Jane", "Doe", role, "sales", employment)
}

func q(sql string) string {
	return regexp.QuoteMeta(sql)
}

func TestLoginIssuesToken(t *testing.T) {
	h, mock, _ := newTestHandler(t)
	id := uuid.New()

	mock.ExpectQuery(q(`SELECT * FROM "profiles" WHERE email = $1`)).
		WillReturnRows(profileRow(id, "correct-horse", "sales_rep", "active"))
	mock.ExpectExec(q(`UPDATE "profiles" SET "last_login"=$1 WHERE "id" = $2`)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	resp, err := h.Login(context.Background(), &usersapi.LoginRequest{Email: "  Jane@TSMRoofPro.com ", Password: "correct-horse"})
	require.NoError(t, err)
	assert.Equal(t, id, resp.User.ID)
	assert.NotNil(t, resp.User.LastLogin)
	assert.Contains(t, resp.Permissions, "commissions.create")

	claims, err := h.tokens.ParseToken(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, id, claims.UserID)
	assert.Equal(t, "sales_rep", claims.Role)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	h, mock, _ := newTestHandler(t)

	mock.ExpectQuery(q(`SELECT * FROM "profiles" WHERE email = $1`)).
		WillReturnRows(profileRow(uuid.New(), "correct-horse", "sales_rep", "active"))
	_, err := h.Login(context.Background(), &usersapi.LoginRequest{Email: "jane@tsmroofpro.com", Password: "wrong"})
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	mock.ExpectQuery(q(`SELECT * FROM "profiles" WHERE email = $1`)).
		WillReturnRows(sqlmock.NewRows(profileColumns))
	_, err = h.Login(context.Background(), &usersapi.LoginRequest{Email: "nobody@tsmroofpro.com", Password: "whatever"})
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	_, err = h.Login(context.Background(), &usersapi.LoginRequest{Email: "", Password: "x"})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoginRejectsTerminatedUser(t *testing.T) {
	h, mock, _ := newTestHandler(t)

	mock.ExpectQuery(q(`SELECT * FROM "profiles" WHERE email = $1`)).
		WillReturnRows(profileRow(uuid.New(), "correct-horse", "sales_rep", "terminated"))

	_, err := h.Login(context.Background(), &usersapi.LoginRequest{Email: "jane@tsmroofpro.com", Password: "correct-horse"})
	assert.Equal(t, codes.PermissionDenied, status.Code(err))
}

func TestCreateUserValidation(t *testing.T) {
	h, _, _ := newTestHandler(t)
	admin := api.Actor{UserID: uuid.New(), Role: "admin"}
	valid := usersapi.CreateUserRequest{
		Actor: admin, Email: "new@tsmroofpro.com", Password: "long-enough", FirstName: "Sam", Role: "sales_rep",
	}

	rep := valid
	rep.Actor = api.Actor{UserID: uuid.New(), Role: "sales_rep"}
	_, err := h.CreateUser(context.Background(), &rep)
	assert.Equal(t, codes.PermissionDenied, status.Code(err))

	badRole := valid
	badRole.Role = "superuser"
	_, err = h.CreateUser(context.Background(), &badRole)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	short := valid
	short.Password = "short"
	_, err = h.CreateUser(context.Background(), &short)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	noEmail := valid
	noEmail.Email = "not-an-email"
	_, err = h.CreateUser(context.Background(), &noEmail)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestCreateUserRejectsDuplicateEmail(t *testing.T) {
	h, mock, pub := newTestHandler(t)

	mock.ExpectBegin()
	mock.ExpectQuery(q(`SELECT count(*) FROM "profiles" WHERE email = $1`)).
		WithArgs("taken@tsmroofpro.com").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectRollback()

	_, err := h.CreateUser(context.Background(), &usersapi.CreateUserRequest{
		Actor: api.Actor{UserID: uuid.New(), Role: "admin"},
		Email: "Taken@tsmroofpro.com", Password: "long-enough", FirstName: "Sam", Role: "office",
	})
	assert.Equal(t, codes.AlreadyExists, status.Code(err))
	assert.Empty(t, pub.jobs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateUserSendsWelcome(t *testing.T) {
	h, mock, pub := newTestHandler(t)

	mock.ExpectBegin()
	mock.ExpectQuery(q(`SELECT count(*) FROM "profiles" WHERE email = $1`)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec(q(`INSERT INTO "profiles"`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	resp, err := h.CreateUser(context.Background(), &usersapi.CreateUserRequest{
		Actor: api.Actor{UserID: uuid.New(), Role: "admin"},
		Email: "sam@tsmroofpro.com", Password: "long-enough", FirstName: "Sam", LastName: "Ng", Role: "Accounting",
	})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, resp.User.ID)
	assert.Equal(t, "accounting", resp.User.Role)
	assert.Equal(t, "active", resp.User.EmploymentStatus)
	assert.Contains(t, resp.Permissions, "commissions.pay")

	require.Len(t, pub.jobs, 1)
	assert.Equal(t, notify.TemplateWelcome, pub.jobs[0].Template)
	assert.Equal(t, []string{"sam@tsmroofpro.com"}, pub.jobs[0].To)
	assert.Equal(t, "Sam Ng", pub.jobs[0].Data["name"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetUserAccess(t *testing.T) {
	h, mock, _ := newTestHandler(t)
	self := uuid.New()
	rep := api.Actor{UserID: self, Role: "sales_rep"}

	_, err := h.GetUser(context.Background(), &usersapi.UserIDRequest{Actor: rep, ID: uuid.New()})
	assert.Equal(t, codes.PermissionDenied, status.Code(err))

	mock.ExpectQuery(q(`SELECT * FROM "profiles" WHERE id = $1`)).
		WillReturnRows(profileRow(self, "pw", "sales_rep", "active"))
	resp, err := h.GetUser(context.Background(), &usersapi.UserIDRequest{Actor: rep, ID: self})
	require.NoError(t, err)
	assert.Equal(t, self, resp.User.ID)

	missing := uuid.New()
	mock.ExpectQuery(q(`SELECT * FROM "profiles" WHERE id = $1`)).
		WillReturnRows(sqlmock.NewRows(profileColumns))
	_, err = h.GetUser(context.Background(), &usersapi.UserIDRequest{Actor: api.Actor{UserID: uuid.New(), Role: "admin"}, ID: missing})
	assert.Equal(t, codes.NotFound, status.Code(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateUserSelfCannotChangeRole(t *testing.T) {
	h, _, _ := newTestHandler(t)
	self := uuid.New()
	role := "admin"

	_, err := h.UpdateUser(context.Background(), &usersapi.UpdateUserRequest{
		Actor: api.Actor{UserID: self, Role: "sales_rep"},
		ID:    self,
		Role:  &role,
	})
	assert.Equal(t, codes.PermissionDenied, status.Code(err))
}

func TestUpdateUserRejectsUnknownStatus(t *testing.T) {
	h, mock, _ := newTestHandler(t)
	id := uuid.New()
	bogus := "retired"

	mock.ExpectBegin()
	mock.ExpectQuery(q(`SELECT * FROM "profiles" WHERE id = $1`)).
		WillReturnRows(profileRow(id, "pw", "office", "active"))
	mock.ExpectRollback()

	_, err := h.UpdateUser(context.Background(), &usersapi.UpdateUserRequest{
		Actor:            api.Actor{UserID: uuid.New(), Role: "admin"},
		ID:               id,
		EmploymentStatus: &bogus,
	})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeactivateUser(t *testing.T) {
	h, mock, _ := newTestHandler(t)
	admin := api.Actor{UserID: uuid.New(), Role: "admin"}

	_, err := h.DeactivateUser(context.Background(), &usersapi.UserIDRequest{Actor: admin, ID: admin.UserID})
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))

	id := uuid.New()
	mock.ExpectQuery(q(`SELECT * FROM "profiles" WHERE id = $1`)).
		WillReturnRows(profileRow(id, "pw", "office", "active"))
	mock.ExpectExec(q(`UPDATE "profiles" SET "employment_status"=$1`)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	resp, err := h.DeactivateUser(context.Background(), &usersapi.UserIDRequest{Actor: admin, ID: id})
	require.NoError(t, err)
	assert.Equal(t, "terminated", resp.User.EmploymentStatus)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetPermissionsForSelf(t *testing.T) {
	h, _, _ := newTestHandler(t)
	actor := api.Actor{UserID: uuid.New(), Role: "sales_manager"}

	resp, err := h.GetPermissions(context.Background(), &usersapi.GetPermissionsRequest{Actor: actor})
	require.NoError(t, err)
	assert.Equal(t, actor.UserID, resp.UserID)
	assert.Contains(t, resp.Permissions, "commissions.approve")
	assert.Contains(t, resp.Permissions, "commissions.create")

	other := uuid.New()
	_, err = h.GetPermissions(context.Background(), &usersapi.GetPermissionsRequest{Actor: actor, UserID: &other})
	assert.Equal(t, codes.PermissionDenied, status.Code(err))
}

func TestChangePasswordChecksCurrent(t *testing.T) {
	h, mock, _ := newTestHandler(t)
	actor := api.Actor{UserID: uuid.New(), Role: "office"}

	_, err := h.ChangePassword(context.Background(), &usersapi.ChangePasswordRequest{Actor: actor, CurrentPassword: "x", NewPassword: "short"})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	mock.ExpectQuery(q(`SELECT * FROM "profiles" WHERE id = $1`)).
		WillReturnRows(profileRow(actor.UserID, "old-password", "office", "active"))
	_, err = h.ChangePassword(context.Background(), &usersapi.ChangePasswordRequest{Actor: actor, CurrentPassword: "nope", NewPassword: "new-password"})
	assert.Equal(t, codes.PermissionDenied, status.Code(err))

	mock.ExpectQuery(q(`SELECT * FROM "profiles" WHERE id = $1`)).
		WillReturnRows(profileRow(actor.UserID, "old-password", "office", "active"))
	mock.ExpectExec(q(`UPDATE "profiles" SET "password_hash"=$1`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	resp, err := h.ChangePassword(context.Background(), &usersapi.ChangePasswordRequest{Actor: actor, CurrentPassword: "old-password", NewPassword: "new-password"})
	require.NoError(t, err)
	assert.True(t, resp.Changed)
	assert.NoError(t, mock.ExpectationsWereMet())
}
