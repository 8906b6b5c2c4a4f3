package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics implements telemetry.Recorder with OTel counters. Instruments are registered by NewMetrics.
type Metrics struct {
	sessionsCreated metric.Int64Counter
	rotations       metric.Int64Counter
	revocations     metric.Int64Counter
	redemptions     metric.Int64Counter
}

func (m *Metrics) SessionCreated(ctx context.Context, environment string) {
	m.sessionsCreated.Add(ctx, 1, metric.WithAttributes(attribute.String("environment", environment)))
}

func (m *Metrics) Rotation(ctx context.Context, outcome string) {
	m.rotations.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (m *Metrics) SessionsRevoked(ctx context.Context, reason string, count int64) {
	if count <= 0 {
		return
	}
	m.revocations.Add(ctx, count, metric.WithAttributes(attribute.String("reason", reason)))
}

func (m *Metrics) Redemption(ctx context.Context, outcome string) {
	m.redemptions.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
