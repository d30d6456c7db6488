// Package gin exposes the payment gate to Gin applications, so plain HTTP
// APIs can charge per route with the same challenge format the session router
// uses.
package gin

import (
	"path"

	"github.com/gin-gonic/gin"

	agentgate "github.com/agentgate/agentgate"
	"github.com/agentgate/agentgate/gate"
)

// PaymentMiddleware guards routes with g. The last path segment is the
// operation name matched against the gate's free-list; allowed requests
// proceed with their payment details attached to the request context.
func PaymentMiddleware(g *gate.Gate) gin.HandlerFunc {
	return func(c *gin.Context) {
		outcome := g.Evaluate(
			c.Request.URL.Path,
			path.Base(c.Request.URL.Path),
			c.GetHeader(agentgate.HeaderPayment),
		)
		if outcome.Decision != gate.Allow {
			c.Header(agentgate.HeaderPaymentRequired, outcome.Header)
			c.Data(outcome.Status, "application/json", outcome.Body)
			c.Abort()
			return
		}
		if outcome.Details != nil {
			ctx := gate.ContextWithDetails(c.Request.Context(), *outcome.Details)
			c.Request = c.Request.WithContext(ctx)
		}
		c.Next()
	}
}
