// Package telemetry exports security events and core counters. Everything here is best effort;
// a failing exporter never fails a login, rotation or redemption.
package telemetry

import (
	"context"

	"sso-hub/internal/telemetry/domain"
)

// EventEmitter emits security events (e.g. to OTel Logs). Best-effort; callers log and ignore errors.
type EventEmitter interface {
	Emit(ctx context.Context, event *domain.SecurityEvent) error
}

// NopEmitter drops every event.
type NopEmitter struct{}

func (NopEmitter) Emit(context.Context, *domain.SecurityEvent) error { return nil }
