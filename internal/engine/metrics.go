package engine

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"hr-lifecycle/backend/pkg/models"
)

const instrumentationName = "hr-lifecycle/backend/internal/engine"

type metrics struct {
	transitions metric.Int64Counter
	rejections  metric.Int64Counter
}

func newMetrics(mp metric.MeterProvider) *metrics {
	meter := mp.Meter(instrumentationName)
	m := &metrics{}
	var err error
	m.transitions, err = meter.Int64Counter("lifecycle.transitions",
		metric.WithDescription("Audit entries committed by the transition engine"),
		metric.WithUnit("{entry}"))
	if err != nil {
		m.transitions = noop.Int64Counter{}
	}
	m.rejections, err = meter.Int64Counter("lifecycle.transition_rejections",
		metric.WithDescription("Engine operations rejected before commit"),
		metric.WithUnit("{request}"))
	if err != nil {
		m.rejections = noop.Int64Counter{}
	}
	return m
}

func (m *metrics) committed(ctx context.Context, track models.Track, entries []models.AuditEntry) {
	for _, e := range entries {
		level := "task"
		if e.IsWorkflowLevel() {
			level = "workflow"
		}
		m.transitions.Add(ctx, 1, metric.WithAttributes(
			attribute.String("track", string(track)),
			attribute.String("level", level),
			attribute.String("to_status", e.ToStatus),
		))
	}
}

func (m *metrics) rejected(ctx context.Context, track models.Track, err error) {
	m.rejections.Add(ctx, 1, metric.WithAttributes(
		attribute.String("track", string(track)),
		attribute.String("reason", Reason(err)),
	))
}
