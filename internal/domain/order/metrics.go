package order

import (
	"context"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type metrics struct {
	transitions metric.Int64Counter
	placed      metric.Int64Counter
	revenue     metric.Float64Counter
}

func newMetrics(m metric.Meter) (*metrics, error) {
	transitions, err := m.Int64Counter("grocer.order.transitions",
		metric.WithDescription("Order status transitions"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "transitions counter")
	}
	placed, err := m.Int64Counter("grocer.order.placed",
		metric.WithDescription("Orders placed"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "placed counter")
	}
	revenue, err := m.Float64Counter("grocer.order.revenue",
		metric.WithDescription("Order totals at placement"),
		metric.WithUnit("INR"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "revenue counter")
	}
	return &metrics{transitions: transitions, placed: placed, revenue: revenue}, nil
}

func (m *metrics) transition(ctx context.Context, from, to Status) {
	m.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", string(from)),
		attribute.String("to", string(to)),
	))
}

func (m *metrics) orderPlaced(ctx context.Context, o *Order) {
	attrs := metric.WithAttributes(attribute.String("payment_method", string(o.PaymentMethod)))
	m.placed.Add(ctx, 1, attrs)
	m.revenue.Add(ctx, o.TotalAmount.InexactFloat64(), attrs)
}
