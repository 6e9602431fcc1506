package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"roofpro-hub/internal/api/complianceapi"
)

// GateChecker is the compliance client call the gate needs.
type GateChecker interface {
	GetGateStatus(ctx context.Context, req *complianceapi.GateStatusRequest) (*complianceapi.GateStatus, error)
}

// SOPGate blocks every protected route with 428 until the caller has
// acknowledged the current version of each SOP their role requires. Paths
// under exempt stay reachable so the user can read and acknowledge SOPs.
func SOPGate(checker GateChecker, log *logrus.Entry, exempt ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		for _, prefix := range exempt {
			if path == prefix || strings.HasPrefix(path, prefix+"/") {
				c.Next()
				return
			}
		}
		actor, ok := ActorFrom(c)
		if !ok {
			abort(c, http.StatusUnauthorized, "Authentication required", "UNAUTHORIZED")
			return
		}
		if checker == nil {
			abort(c, http.StatusServiceUnavailable, "Compliance service is currently unavailable", "SERVICE_UNAVAILABLE")
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()
		gate, err := checker.GetGateStatus(ctx, &complianceapi.GateStatusRequest{Actor: actor})
		if err != nil {
			log.WithError(err).WithField("user_id", actor.UserID).Warn("sop gate check failed")
			abort(c, http.StatusServiceUnavailable, "Unable to verify SOP acknowledgments", "SERVICE_UNAVAILABLE")
			return
		}
		if !gate.Complete {
			c.AbortWithStatusJSON(http.StatusPreconditionRequired, gin.H{
				"success": false,
				"message": "Acknowledge the required SOPs to continue",
				"error":   "SOP_ACKNOWLEDGMENT_REQUIRED",
				"data":    gate,
			})
			return
		}
		c.Next()
	}
}
