package gate

import (
	"context"

	agentgate "github.com/agentgate/agentgate"
)

type detailsKey struct{}

// ContextWithDetails attaches the extracted payment details of an allowed
// request, so downstream handlers can post receipts or meter usage.
func ContextWithDetails(ctx context.Context, details agentgate.PaymentDetails) context.Context {
	return context.WithValue(ctx, detailsKey{}, details)
}

// DetailsFromContext returns the payment details attached to ctx, if any.
func DetailsFromContext(ctx context.Context) (agentgate.PaymentDetails, bool) {
	details, ok := ctx.Value(detailsKey{}).(agentgate.PaymentDetails)
	return details, ok
}
