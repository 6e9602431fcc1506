package main

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
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"roofpro-hub/config"
	"roofpro-hub/internal/api/commissionsapi"
	"roofpro-hub/internal/api/complianceapi"
	"roofpro-hub/internal/api/usersapi"
	"roofpro-hub/internal/database/models"
	"roofpro-hub/internal/gateway/clients"
	"roofpro-hub/internal/rpc"
	"roofpro-hub/internal/utils"
)

func offlineRouter(t *testing.T) (*gin.Engine, *utils.Tokens) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	tokens, err := utils.NewTokens("gateway-secret", time.Hour)
	require.NoError(t, err)
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	r, err := newRouter(config.GatewayConfig{RateLimit: "1000-M", AllowedOrigins: []string{"*"}}, &clients.GRPCClients{}, tokens, logrus.NewEntry(log))
	require.NoError(t, err)
	return r, tokens
}

// backendRouter serves the user and compliance services from bufconn. Every
// account is active with the role in its token and every gate is complete.
// The commissions client shares the connection but has no methods behind it.
func backendRouter(t *testing.T) (*gin.Engine, *utils.Tokens) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	tokens, err := utils.NewTokens("gateway-secret", time.Hour)
	require.NoError(t, err)

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	rpc.NewService(usersapi.ServiceName).
		Handle(usersapi.MethodGetUser, rpc.Unary(func(_ context.Context, req *usersapi.UserIDRequest) (*usersapi.UserResponse, error) {
			return &usersapi.UserResponse{User: models.Profile{
				Base:             models.Base{ID: req.ID},
				Email:            req.Actor.Email,
				Role:             req.Actor.Role,
				EmploymentStatus: models.EmploymentActive,
			}}, nil
		})).
		Register(srv)
	rpc.NewService(complianceapi.ServiceName).
		Handle(complianceapi.MethodGetGateStatus, rpc.Unary(func(_ context.Context, req *complianceapi.GateStatusRequest) (*complianceapi.GateStatus, error) {
			return &complianceapi.GateStatus{UserID: req.Actor.UserID, Role: req.Actor.Role, Complete: true}, nil
		})).
		Register(srv)
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

	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	r, err := newRouter(config.GatewayConfig{RateLimit: "1000-M", AllowedOrigins: []string{"*"}}, &clients.GRPCClients{
		User:        usersapi.NewClient(conn),
		Compliance:  complianceapi.NewClient(conn),
		Commissions: commissionsapi.NewClient(conn),
	}, tokens, logrus.NewEntry(log))
	require.NoError(t, err)
	return r, tokens
}

func get(r http.Handler, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestNewRouterRejectsBadRateLimit(t *testing.T) {
	tokens, err := utils.NewTokens("gateway-secret", time.Hour)
	require.NoError(t, err)
	_, err = newRouter(config.GatewayConfig{RateLimit: "fast"}, &clients.GRPCClients{}, tokens, logrus.NewEntry(logrus.New()))
	assert.Error(t, err)
}

func TestHealthReportsDegradedServices(t *testing.T) {
	r, _ := offlineRouter(t)

	w := get(r, "/health", "")
	assert.Equal(t, http.StatusPartialContent, w.Code)
	var body struct {
		Status      string   `json:"status"`
		Unavailable []string `json:"unavailable_services"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body.Status)
	assert.ElementsMatch(t, clients.Services(), body.Unavailable)
	assert.Equal(t, "unavailable", w.Header().Get("X-user-Service"))

	w = get(r, "/health/detailed", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"overall_status":"degraded"`)
}

func TestRoutesWithoutBackends(t *testing.T) {
	r, tokens := offlineRouter(t)
	token, _, err := tokens.GenerateToken(uuid.New(), "rep@tsmroofpro.com", "sales_rep")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "User service is currently unavailable")

	assert.Equal(t, http.StatusUnauthorized, get(r, "/api/v1/commissions", "").Code)

	// Tokens cannot be checked against the account without the user service.
	for _, path := range []string{"/api/v1/commissions", "/api/v1/me", "/api/v1/sops"} {
		w = get(r, path, token)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code, path)
		assert.Contains(t, w.Body.String(), "User service is currently unavailable", path)
	}

	assert.Equal(t, http.StatusNotFound, get(r, "/api/v2/nothing", "").Code)
}

func TestVerifiedCallerReachesServiceCheck(t *testing.T) {
	r, tokens := backendRouter(t)
	token, _, err := tokens.GenerateToken(uuid.New(), "rep@tsmroofpro.com", "sales_rep")
	require.NoError(t, err)

	w := get(r, "/api/v1/directory/vendors", token)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "Directory service is currently unavailable")
}

func TestReviewDocumentRequiresApprovePermission(t *testing.T) {
	r, tokens := backendRouter(t)
	path := "/api/v1/commission-documents/" + uuid.NewString() + "/review"

	post := func(role string) *httptest.ResponseRecorder {
		token, _, err := tokens.GenerateToken(uuid.New(), role+"@tsmroofpro.com", role)
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(`{"approve":true}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	// Accounting approves submissions, not documents.
	assert.Equal(t, http.StatusForbidden, post("accounting").Code)
	assert.Equal(t, http.StatusForbidden, post("sales_rep").Code)

	// A manager gets past the guard to the commissions service.
	assert.NotEqual(t, http.StatusForbidden, post("sales_manager").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	r, _ := offlineRouter(t)
	get(r, "/health", "")

	w := get(r, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "roofpro_http_requests_total")
}
