// Package health reports readiness through the standard gRPC health service.
package health

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Pinger is used for the database readiness check (e.g. *sql.DB).
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PolicyChecker is used for the email-domain policy readiness check.
type PolicyChecker interface {
	HealthCheck(ctx context.Context) error
}

// CheckFunc is a single named dependency check.
type CheckFunc func(ctx context.Context) error

// Checker aggregates dependency checks. Nil dependencies are skipped.
type Checker struct {
	checks map[string]CheckFunc
	log    *logrus.Logger
}

// NewChecker returns a Checker over the database pinger and policy checker.
func NewChecker(db Pinger, policy PolicyChecker, log *logrus.Logger) *Checker {
	c := &Checker{checks: make(map[string]CheckFunc), log: log}
	if db != nil {
		c.Add("postgres", db.PingContext)
	}
	if policy != nil {
		c.Add("email_policy", policy.HealthCheck)
	}
	return c
}

// Add registers an extra check, e.g. the Redis limiter.
func (c *Checker) Add(name string, fn CheckFunc) {
	c.checks[name] = fn
}

// Check runs every check and joins the failures.
func (c *Checker) Check(ctx context.Context) error {
	names := make([]string, 0, len(c.checks))
	for n := range c.checks {
		names = append(names, n)
	}
	sort.Strings(names)
	var failed []error
	for _, n := range names {
		if err := c.checks[n](ctx); err != nil {
			failed = append(failed, fmt.Errorf("%s: %w", n, err))
		}
	}
	return errors.Join(failed...)
}

// Status maps Check onto a gRPC serving status.
func (c *Checker) Status(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	if err := c.Check(ctx); err != nil {
		if c.log != nil {
			c.log.WithError(err).Warn("readiness check failed")
		}
		return healthpb.HealthCheckResponse_NOT_SERVING
	}
	return healthpb.HealthCheckResponse_SERVING
}

// Watch updates srv for the overall service ("") every interval until ctx is done.
func (c *Checker) Watch(ctx context.Context, srv *health.Server, interval time.Duration) {
	update := func() {
		checkCtx, cancel := context.WithTimeout(ctx, interval)
		defer cancel()
		srv.SetServingStatus("", c.Status(checkCtx))
	}
	update()
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			srv.Shutdown()
			return
		case <-t.C:
			update()
		}
	}
}
