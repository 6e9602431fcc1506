package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"roofpro-hub/internal/api"
	"roofpro-hub/internal/api/usersapi"
	"roofpro-hub/internal/database/models"
	"roofpro-hub/internal/permissions"
	"roofpro-hub/internal/utils"
)

// AccountLookup loads the profile behind a token. *usersapi.Client
// satisfies it; the user service answers from its profile cache.
type AccountLookup interface {
	GetUser(ctx context.Context, req *usersapi.UserIDRequest) (*usersapi.UserResponse, error)
}

const accountLookupTimeout = 3 * time.Second

const actorKey = "actor"

func abort(c *gin.Context, status int, message, code string) {
	c.AbortWithStatusJSON(status, gin.H{
		"success": false,
		"message": message,
		"error":   code,
	})
}

// JWTAuth verifies the bearer token, then reloads the account so that
// deactivation and role changes apply to tokens already issued. The caller
// is stored as an api.Actor carrying the profile's current role.
func JWTAuth(tokens *utils.Tokens, accounts AccountLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			abort(c, http.StatusUnauthorized, "Authorization header is missing or malformed", "UNAUTHORIZED")
			return
		}
		claims, err := tokens.ParseToken(strings.TrimSpace(raw))
		if err != nil {
			abort(c, http.StatusUnauthorized, "Invalid or expired token", "UNAUTHORIZED")
			return
		}
		if _, known := permissions.ParseRole(claims.Role); !known {
			abort(c, http.StatusForbidden, "Unknown role", "FORBIDDEN")
			return
		}
		if accounts == nil {
			abort(c, http.StatusServiceUnavailable, "User service is currently unavailable", "SERVICE_UNAVAILABLE")
			return
		}

		claimed := api.Actor{UserID: claims.UserID, Email: claims.Email, Role: claims.Role}
		ctx, cancel := context.WithTimeout(c.Request.Context(), accountLookupTimeout)
		resp, err := accounts.GetUser(ctx, &usersapi.UserIDRequest{Actor: claimed, ID: claims.UserID})
		cancel()
		if err != nil {
			switch status.Code(err) {
			case codes.NotFound, codes.PermissionDenied, codes.Unauthenticated:
				abort(c, http.StatusUnauthorized, "Account no longer exists", "UNAUTHORIZED")
			default:
				abort(c, http.StatusServiceUnavailable, "User service is currently unavailable", "SERVICE_UNAVAILABLE")
			}
			return
		}
		profile := resp.User
		if profile.EmploymentStatus != models.EmploymentActive {
			abort(c, http.StatusForbidden, "Account is not active", "ACCOUNT_INACTIVE")
			return
		}
		if _, known := permissions.ParseRole(profile.Role); !known {
			abort(c, http.StatusForbidden, "Unknown role", "FORBIDDEN")
			return
		}
		c.Set(actorKey, api.Actor{UserID: claims.UserID, Email: profile.Email, Role: profile.Role})
		c.Next()
	}
}

func ActorFrom(c *gin.Context) (api.Actor, bool) {
	v, ok := c.Get(actorKey)
	if !ok {
		return api.Actor{}, false
	}
	actor, ok := v.(api.Actor)
	return actor, ok
}

// RequirePermission lets the request through when the caller holds any of
// perms.
func RequirePermission(perms ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := ActorFrom(c)
		if !ok {
			abort(c, http.StatusUnauthorized, "Authentication required", "UNAUTHORIZED")
			return
		}
		for _, p := range perms {
			if actor.Can(p) {
				c.Next()
				return
			}
		}
		abort(c, http.StatusForbidden, "You do not have permission to perform this action", "FORBIDDEN")
	}
}
