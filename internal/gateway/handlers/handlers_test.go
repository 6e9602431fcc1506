package handlers

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"roofpro-hub/internal/api"
	"roofpro-hub/internal/api/commissionsapi"
	"roofpro-hub/internal/api/complianceapi"
	"roofpro-hub/internal/api/integrationsapi"
	"roofpro-hub/internal/api/usersapi"
	"roofpro-hub/internal/commission"
	"roofpro-hub/internal/database/models"
	"roofpro-hub/internal/gateway/middleware"
	"roofpro-hub/internal/rpc"
	"roofpro-hub/internal/utils"
)

var (
	repID  = uuid.MustParse("0b7d1b9e-8a52-4d0c-9a57-1f0c4f4d8a11")
	testTk *utils.Tokens
)

func init() {
	gin.SetMode(gin.TestMode)
	testTk, _ = utils.NewTokens("test-secret", time.Hour)
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Meta    json.RawMessage `json:"meta"`
	Error   string          `json:"error"`
}

func startService(t *testing.T, svc *rpc.Service) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	svc.Register(srv)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func newEngine() *gin.Engine {
	r := gin.New()
	r.Use(middleware.Recovery(logrus.NewEntry(logrus.New())))
	return r
}

// activeAccounts reports every caller as an active account holding the
// role in its token.
type activeAccounts struct{}

func (activeAccounts) GetUser(_ context.Context, req *usersapi.UserIDRequest) (*usersapi.UserResponse, error) {
	return &usersapi.UserResponse{User: models.Profile{
		Base:             models.Base{ID: req.ID},
		Email:            req.Actor.Email,
		Role:             req.Actor.Role,
		EmploymentStatus: models.EmploymentActive,
	}}, nil
}

func authed() gin.HandlerFunc {
	return middleware.JWTAuth(testTk, activeAccounts{})
}

func do(t *testing.T, r http.Handler, method, path, body, role string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if role != "" {
		token, _, err := testTk.GenerateToken(repID, "rep@tsmroofpro.com", role)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w, env
}

func TestLoginForwardsCredentials(t *testing.T) {
	svc := rpc.NewService(usersapi.ServiceName).
		Handle(usersapi.MethodLogin, rpc.Unary(func(_ context.Context, req *usersapi.LoginRequest) (*usersapi.LoginResponse, error) {
			if req.Email != "rep@tsmroofpro.com" || req.Password != "hunter22" {
				return nil, status.Error(codes.Unauthenticated, "Invalid email or password")
			}
			return &usersapi.LoginResponse{Token: "signed", User: models.Profile{Email: req.Email}}, nil
		}))
	h := NewUserHTTPHandler(usersapi.NewClient(startService(t, svc)))
	r := newEngine()
	r.POST("/auth/login", h.Login)

	w, env := do(t, r, http.MethodPost, "/auth/login", `{"email":"rep@tsmroofpro.com","password":"hunter22"}`, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, env.Success)
	var resp usersapi.LoginResponse
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	assert.Equal(t, "signed", resp.Token)

	w, env = do(t, r, http.MethodPost, "/auth/login", `{"email":"rep@tsmroofpro.com","password":"wrong"}`, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "UNAUTHORIZED", env.Error)
	assert.Equal(t, "Invalid email or password", env.Message)
}

func TestLoginRejectsMalformedBody(t *testing.T) {
	h := NewUserHTTPHandler(nil)
	r := newEngine()
	r.POST("/auth/login", h.Login)

	w, env := do(t, r, http.MethodPost, "/auth/login", `{"email":"not-an-email"}`, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, env.Success)
	assert.Equal(t, "BAD_REQUEST", env.Error)
}

func TestGRPCCodesMapToHTTPStatus(t *testing.T) {
	cases := []struct {
		code   codes.Code
		status int
		label  string
	}{
		{codes.NotFound, http.StatusNotFound, "NOT_FOUND"},
		{codes.PermissionDenied, http.StatusForbidden, "FORBIDDEN"},
		{codes.FailedPrecondition, http.StatusBadRequest, "BAD_REQUEST"},
		{codes.AlreadyExists, http.StatusConflict, "CONFLICT"},
		{codes.Unavailable, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE"},
		{codes.Internal, http.StatusInternalServerError, "INTERNAL"},
	}
	for _, tc := range cases {
		t.Run(tc.code.String(), func(t *testing.T) {
			svc := rpc.NewService(usersapi.ServiceName).
				Handle(usersapi.MethodGetUser, rpc.Unary(func(_ context.Context, _ *usersapi.UserIDRequest) (*usersapi.UserResponse, error) {
					return nil, status.Error(tc.code, "boom")
				}))
			h := NewUserHTTPHandler(usersapi.NewClient(startService(t, svc)))
			r := newEngine()
			r.GET("/users/:id", authed(), h.GetUser)

			w, env := do(t, r, http.MethodGet, "/users/"+uuid.NewString(), "", "admin")
			assert.Equal(t, tc.status, w.Code)
			assert.Equal(t, tc.label, env.Error)
			assert.False(t, env.Success)
		})
	}
}

func TestGetUserRejectsBadID(t *testing.T) {
	h := NewUserHTTPHandler(nil)
	r := newEngine()
	r.GET("/users/:id", authed(), h.GetUser)

	w, env := do(t, r, http.MethodGet, "/users/not-a-uuid", "", "admin")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid id", env.Message)
}

func TestListUsersPassesFiltersAndPage(t *testing.T) {
	var got usersapi.ListUsersRequest
	svc := rpc.NewService(usersapi.ServiceName).
		Handle(usersapi.MethodListUsers, rpc.Unary(func(_ context.Context, req *usersapi.ListUsersRequest) (*usersapi.ListUsersResponse, error) {
			got = *req
			return &usersapi.ListUsersResponse{
				Users: []models.Profile{{Email: "a@tsmroofpro.com"}},
				Page:  api.NewPageResponse(req.Page, 41),
			}, nil
		}))
	h := NewUserHTTPHandler(usersapi.NewClient(startService(t, svc)))
	r := newEngine()
	r.GET("/users", authed(), h.ListUsers)

	w, env := do(t, r, http.MethodGet, "/users?role=sales_rep&page=2&page_size=20&search=smith", "", "admin")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "sales_rep", got.Role)
	assert.Equal(t, "smith", got.Search)
	assert.Equal(t, api.PageRequest{Page: 2, PageSize: 20}, got.Page)
	assert.Equal(t, repID, got.Actor.UserID)
	assert.Equal(t, "admin", got.Actor.Role)

	var page api.PageResponse
	require.NoError(t, json.Unmarshal(env.Meta, &page))
	assert.Equal(t, int64(41), page.TotalCount)
	assert.True(t, page.HasMore)
}

func TestCreateSubmissionIgnoresActorInBody(t *testing.T) {
	var got commissionsapi.CreateSubmissionRequest
	svc := rpc.NewService(commissionsapi.ServiceName).
		Handle(commissionsapi.MethodCreateSubmission, rpc.Unary(func(_ context.Context, req *commissionsapi.CreateSubmissionRequest) (*commissionsapi.SubmissionResponse, error) {
			got = *req
			return &commissionsapi.SubmissionResponse{}, nil
		}))
	h := NewCommissionHTTPHandler(commissionsapi.NewClient(startService(t, svc)))
	r := newEngine()
	r.POST("/commissions", authed(), h.CreateSubmission)

	body := `{"actor":{"user_id":"` + uuid.NewString() + `","role":"admin"},"job_number":"J-2041","job_name":"Smith Reroof","contract_amount":"18500.00","commission_amount":"1850.00"}`
	w, _ := do(t, r, http.MethodPost, "/commissions", body, "sales_rep")
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, repID, got.Actor.UserID)
	assert.Equal(t, "sales_rep", got.Actor.Role)
	assert.Equal(t, "J-2041", got.JobNumber)
	assert.Equal(t, "1850", got.CommissionAmount.String())
}

func TestTransitionSubmissionSendsPathID(t *testing.T) {
	id := uuid.New()
	var got commissionsapi.TransitionSubmissionRequest
	svc := rpc.NewService(commissionsapi.ServiceName).
		Handle(commissionsapi.MethodTransition, rpc.Unary(func(_ context.Context, req *commissionsapi.TransitionSubmissionRequest) (*commissionsapi.SubmissionResponse, error) {
			got = *req
			return &commissionsapi.SubmissionResponse{}, nil
		}))
	h := NewCommissionHTTPHandler(commissionsapi.NewClient(startService(t, svc)))
	r := newEngine()
	r.POST("/commissions/:id/transition", authed(), h.TransitionSubmission)

	w, _ := do(t, r, http.MethodPost, "/commissions/"+id.String()+"/transition", `{"to_status":"approved","note":"ok"}`, "sales_manager")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, id, got.ID)
	assert.Equal(t, commission.SubmissionStatus("approved"), got.ToStatus)
	assert.Equal(t, "ok", got.Note)

	w, _ = do(t, r, http.MethodPost, "/commissions/"+id.String()+"/transition", `{"note":"missing status"}`, "sales_manager")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListSubmissionsDateRange(t *testing.T) {
	var got commissionsapi.ListSubmissionsRequest
	svc := rpc.NewService(commissionsapi.ServiceName).
		Handle(commissionsapi.MethodListSubmissions, rpc.Unary(func(_ context.Context, req *commissionsapi.ListSubmissionsRequest) (*commissionsapi.ListSubmissionsResponse, error) {
			got = *req
			return &commissionsapi.ListSubmissionsResponse{Page: api.NewPageResponse(req.Page, 0)}, nil
		}))
	h := NewCommissionHTTPHandler(commissionsapi.NewClient(startService(t, svc)))
	r := newEngine()
	r.GET("/commissions", authed(), h.ListSubmissions)

	w, _ := do(t, r, http.MethodGet, "/commissions?from=2026-01-01&to=2026-01-31&status=paid", "", "accounting")
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, got.From)
	require.NotNil(t, got.To)
	assert.Equal(t, "2026-01-01", got.From.Format(dateLayout))
	assert.Equal(t, 23, got.To.Hour())
	assert.Equal(t, "paid", got.Status)

	w, env := do(t, r, http.MethodGet, "/commissions?from=01/01/2026", "", "accounting")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, env.Message, "from")

	w, _ = do(t, r, http.MethodGet, "/commissions?rep_id=nope", "", "accounting")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestExportSubmissionsStreamsFile(t *testing.T) {
	svc := rpc.NewService(commissionsapi.ServiceName).
		Handle(commissionsapi.MethodExportSubmissions, rpc.Unary(func(_ context.Context, req *commissionsapi.ExportSubmissionsRequest) (*commissionsapi.ExportResponse, error) {
			return &commissionsapi.ExportResponse{
				Filename:    "commissions-2026-01.csv",
				ContentType: "text/csv",
				Content:     []byte("job_number,amount\nJ-1,100.00\n"),
				Rows:        1,
			}, nil
		}))
	h := NewCommissionHTTPHandler(commissionsapi.NewClient(startService(t, svc)))
	r := newEngine()
	r.GET("/commissions/export", authed(), h.ExportSubmissions)

	w, _ := do(t, r, http.MethodGet, "/commissions/export?from=2026-01-01&to=2026-01-31", "", "accounting")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="commissions-2026-01.csv"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "1", w.Header().Get("X-Export-Rows"))
	assert.Equal(t, "job_number,amount\nJ-1,100.00\n", w.Body.String())

	w, _ = do(t, r, http.MethodGet, "/commissions/export?from=2026-01-01", "", "accounting")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpsertSOPTakesNumberFromPath(t *testing.T) {
	var got complianceapi.UpsertSOPRequest
	svc := rpc.NewService(complianceapi.ServiceName).
		Handle(complianceapi.MethodUpsertSOP, rpc.Unary(func(_ context.Context, req *complianceapi.UpsertSOPRequest) (*complianceapi.SOPResponse, error) {
			got = *req
			return &complianceapi.SOPResponse{Published: req.BumpVersion}, nil
		}))
	h := NewComplianceHTTPHandler(complianceapi.NewClient(startService(t, svc)))
	r := newEngine()
	r.PUT("/sops/:number", authed(), h.UpsertSOP)

	w, env := do(t, r, http.MethodPut, "/sops/SOP-004", `{"number":"SOP-999","title":"Ladder Safety","bump_version":true}`, "admin")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "SOP-004", got.Number)
	assert.Equal(t, "Ladder Safety", got.Title)
	assert.Equal(t, "SOP published successfully", env.Message)
}

func TestForecastRequiresCoordinates(t *testing.T) {
	var got integrationsapi.ForecastRequest
	svc := rpc.NewService(integrationsapi.ServiceName).
		Handle(integrationsapi.MethodGetForecast, rpc.Unary(func(_ context.Context, req *integrationsapi.ForecastRequest) (*integrationsapi.ForecastResponse, error) {
			got = *req
			return &integrationsapi.ForecastResponse{Cached: true}, nil
		}))
	h := NewIntegrationsHTTPHandler(integrationsapi.NewClient(startService(t, svc)))
	r := newEngine()
	r.GET("/weather", authed(), h.GetForecast)

	w, _ := do(t, r, http.MethodGet, "/weather?lat=39.74", "", "production")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, env := do(t, r, http.MethodGet, "/weather?lat=39.74&lon=-104.99", "", "production")
	require.Equal(t, http.StatusOK, w.Code)
	assert.InDelta(t, 39.74, got.Latitude, 1e-9)
	assert.InDelta(t, -104.99, got.Longitude, 1e-9)
	assert.JSONEq(t, `{"cached":true}`, string(env.Meta))
}

func TestSendEmailAccepted(t *testing.T) {
	svc := rpc.NewService(integrationsapi.ServiceName).
		Handle(integrationsapi.MethodSendEmail, rpc.Unary(func(_ context.Context, req *integrationsapi.SendEmailRequest) (*integrationsapi.SendEmailResponse, error) {
			return &integrationsapi.SendEmailResponse{JobID: "job-1", Queued: len(req.To) == 2}, nil
		}))
	h := NewIntegrationsHTTPHandler(integrationsapi.NewClient(startService(t, svc)))
	r := newEngine()
	r.POST("/email", authed(), h.SendEmail)

	w, env := do(t, r, http.MethodPost, "/email", `{"to":["a@x.com","b@x.com"],"subject":"Crew update","body":"Start at 7."}`, "admin")
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.JSONEq(t, `{"job_id":"job-1","queued":true}`, string(env.Data))

	w, _ = do(t, r, http.MethodPost, "/email", `{"to":[],"subject":"x","body":"y"}`, "admin")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestServiceUnavailable(t *testing.T) {
	r := newEngine()
	r.GET("/x", ServiceUnavailable("Directory service"))

	w, env := do(t, r, http.MethodGet, "/x", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "Directory service is currently unavailable", env.Message)
	assert.Equal(t, "SERVICE_UNAVAILABLE", env.Error)
}
