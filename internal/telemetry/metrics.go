package telemetry

import "context"

// Outcomes recorded for rotations and redemptions.
const (
	OutcomeOK        = "ok"
	OutcomeNotFound  = "not_found"
	OutcomeExpired   = "expired"
	OutcomeReuse     = "reuse_detected"
	OutcomeExhausted = "exhausted"
	OutcomeConflict  = "conflict"
	OutcomeRejected  = "rejected"
)

// Recorder counts session and invitation outcomes.
type Recorder interface {
	SessionCreated(ctx context.Context, environment string)
	Rotation(ctx context.Context, outcome string)
	SessionsRevoked(ctx context.Context, reason string, count int64)
	Redemption(ctx context.Context, outcome string)
}

// NopRecorder records nothing.
type NopRecorder struct{}

func (NopRecorder) SessionCreated(context.Context, string)         {}
func (NopRecorder) Rotation(context.Context, string)               {}
func (NopRecorder) SessionsRevoked(context.Context, string, int64) {}
func (NopRecorder) Redemption(context.Context, string)             {}
