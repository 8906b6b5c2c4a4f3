// Package provisioning notifies downstream portals about users who joined an organization.
package provisioning

import "context"

// Provisioner receives a user after a successful redemption and may return a redirect target.
// Errors are reported to the caller of the redemption but never undo it.
type Provisioner interface {
	Provision(ctx context.Context, userID, email, orgID string) (redirect string, err error)
}

// Noop provisions nothing and returns no redirect.
type Noop struct{}

func (Noop) Provision(context.Context, string, string, string) (string, error) { return "", nil }

// Func adapts a function to Provisioner.
type Func func(ctx context.Context, userID, email, orgID string) (string, error)

func (f Func) Provision(ctx context.Context, userID, email, orgID string) (string, error) {
	return f(ctx, userID, email, orgID)
}
