// Package audit writes every order status change to the structured log.
package audit

import (
	"context"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/delivery-admin/internal/domain/order"
)

// Log is an order.StatusChange handler that logs c with the context logger.
func Log(ctx context.Context, c order.StatusChange) error {
	fields := []zap.Field{
		zap.String("event_id", c.EventID),
		zap.String("order_id", c.OrderID),
		zap.String("tenant_id", c.TenantID),
		zap.String("status", string(c.Status)),
		zap.Time("at", c.At),
	}
	if c.Reason != "" {
		fields = append(fields, zap.String("reason", c.Reason))
	}
	if c.DeliveryPersonID != "" {
		fields = append(fields, zap.String("delivery_person_id", c.DeliveryPersonID))
	}
	if c.ETAMinutes != nil {
		fields = append(fields, zap.Int("eta_minutes", *c.ETAMinutes))
	}
	zctx.From(ctx).Info("Order status changed", fields...)
	return nil
}
