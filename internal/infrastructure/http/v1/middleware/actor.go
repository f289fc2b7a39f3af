package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	appctx "jobcost/internal/core/context"
)

const (
	HeaderActorID   = "X-Actor-ID"
	HeaderActorName = "X-Actor-Name"
)

// Actor copies the upstream identity headers into the request context.
// Requests without them are attributed to "system".
func Actor() gin.HandlerFunc {
	return func(c *gin.Context) {
		actorID := strings.TrimSpace(c.GetHeader(HeaderActorID))
		if actorID != "" {
			ctx := appctx.WithActor(c.Request.Context(), &appctx.Actor{
				ID:   actorID,
				Name: strings.TrimSpace(c.GetHeader(HeaderActorName)),
			})
			c.Request = c.Request.WithContext(ctx)
		}
		c.Next()
	}
}
