package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"roofpro-hub/internal/api"
	"roofpro-hub/internal/gateway/middleware"
)

const (
	defaultTimeout = 5 * time.Second
	longTimeout    = 30 * time.Second
)

type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	Meta    interface{} `json:"meta,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func successResponse(message string, data interface{}) APIResponse {
	return APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	}
}

func errorResponse(message string) APIResponse {
	return APIResponse{
		Success: false,
		Message: message,
	}
}

func successWithMetaResponse(message string, data interface{}, meta interface{}) APIResponse {
	return APIResponse{
		Success: true,
		Message: message,
		Data:    data,
		Meta:    meta,
	}
}

// httpStatus maps a gRPC code onto the HTTP status the portal expects.
func httpStatus(code codes.Code) (int, string) {
	switch code {
	case codes.InvalidArgument, codes.FailedPrecondition, codes.OutOfRange:
		return http.StatusBadRequest, "BAD_REQUEST"
	case codes.NotFound:
		return http.StatusNotFound, "NOT_FOUND"
	case codes.AlreadyExists, codes.Aborted:
		return http.StatusConflict, "CONFLICT"
	case codes.PermissionDenied:
		return http.StatusForbidden, "FORBIDDEN"
	case codes.Unauthenticated:
		return http.StatusUnauthorized, "UNAUTHORIZED"
	case codes.ResourceExhausted:
		return http.StatusTooManyRequests, "RATE_LIMITED"
	case codes.Unavailable:
		return http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE"
	case codes.DeadlineExceeded:
		return http.StatusGatewayTimeout, "TIMEOUT"
	default:
		return http.StatusInternalServerError, "INTERNAL"
	}
}

// handleGRPCError writes the error envelope and reports whether err was
// non-nil.
func handleGRPCError(c *gin.Context, err error) bool {
	if err == nil {
		return false
	}
	if s, ok := status.FromError(err); ok {
		code, label := httpStatus(s.Code())
		msg := s.Message()
		if code == http.StatusInternalServerError {
			msg = "Service error: " + msg
		}
		c.AbortWithStatusJSON(code, APIResponse{Success: false, Message: msg, Error: label})
	} else {
		c.AbortWithStatusJSON(http.StatusInternalServerError, APIResponse{Success: false, Message: "Unknown service error", Error: "INTERNAL"})
	}
	return true
}

func badRequest(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, APIResponse{Success: false, Message: message, Error: "BAD_REQUEST"})
}

// bindJSON decodes the body into dst, writing a 400 on failure. An empty
// body is accepted.
func bindJSON(c *gin.Context, dst interface{}) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(dst); err != nil {
		badRequest(c, "Invalid request format: "+err.Error())
		return false
	}
	return true
}

func bindQuery(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindQuery(dst); err != nil {
		badRequest(c, "Invalid query parameters: "+err.Error())
		return false
	}
	return true
}

func paramUUID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		badRequest(c, "Invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

func optionalUUID(c *gin.Context, raw string, name string) (*uuid.UUID, bool) {
	if raw == "" {
		return nil, true
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		badRequest(c, "Invalid "+name)
		return nil, false
	}
	return &id, true
}

func actor(c *gin.Context) api.Actor {
	a, _ := middleware.ActorFrom(c)
	return a
}

func requestContext(c *gin.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), timeout)
}

// PageQuery is the paging part of a list query string.
type PageQuery struct {
	Page     int `form:"page,default=1"`
	PageSize int `form:"page_size,default=20"`
}

func (p PageQuery) request() api.PageRequest {
	return api.PageRequest{Page: p.Page, PageSize: p.PageSize}
}

func ServiceUnavailable(serviceName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusServiceUnavailable, APIResponse{
			Success: false,
			Message: serviceName + " is currently unavailable",
			Error:   "SERVICE_UNAVAILABLE",
		})
	}
}
