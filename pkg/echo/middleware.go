// Package echo exposes the payment gate to Echo applications.
package echo

import (
	"path"

	"github.com/labstack/echo/v4"

	agentgate "github.com/agentgate/agentgate"
	"github.com/agentgate/agentgate/gate"
)

// PaymentMiddleware guards routes with g. The last path segment is the
// operation name matched against the gate's free-list; allowed requests
// proceed with their payment details attached to the request context.
func PaymentMiddleware(g *gate.Gate) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			outcome := g.Evaluate(
				req.URL.Path,
				path.Base(req.URL.Path),
				req.Header.Get(agentgate.HeaderPayment),
			)
			if outcome.Decision != gate.Allow {
				c.Response().Header().Set(agentgate.HeaderPaymentRequired, outcome.Header)
				return c.Blob(outcome.Status, "application/json", outcome.Body)
			}
			if outcome.Details != nil {
				ctx := gate.ContextWithDetails(req.Context(), *outcome.Details)
				c.SetRequest(req.WithContext(ctx))
			}
			return next(c)
		}
	}
}
