// Package handler reports readiness through the standard gRPC health service.
package handler

import (
	"context"
	"log"
	"sync"
	"time"

	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health service name reported alongside the overall ("") status.
const ServiceName = "orderdesk.session"

const checkTimeout = 2 * time.Second

// Pinger checks document store connectivity (docstore.Store).
type Pinger interface {
	Ping(ctx context.Context) error
}

// PolicyChecker checks that the authorization policy compiles (engine.OPAAuthorizer).
type PolicyChecker interface {
	HealthCheck(ctx context.Context) error
}

// Checker runs the readiness checks and publishes the result on a grpc health.Server.
// A nil Pinger or PolicyChecker skips that check.
type Checker struct {
	health *health.Server
	pinger Pinger
	policy PolicyChecker

	mu   sync.Mutex
	last healthpb.HealthCheckResponse_ServingStatus
}

// NewChecker returns a checker publishing to hs. Until the first Check both services report NOT_SERVING.
func NewChecker(hs *health.Server, pinger Pinger, policy PolicyChecker) *Checker {
	c := &Checker{health: hs, pinger: pinger, policy: policy, last: healthpb.HealthCheckResponse_NOT_SERVING}
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	return c
}

// Check runs every check once and publishes SERVING only if all pass. Failures are logged on transition.
func (c *Checker) Check(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	st := healthpb.HealthCheckResponse_SERVING
	if err := c.run(ctx); err != nil {
		st = healthpb.HealthCheckResponse_NOT_SERVING
		c.mu.Lock()
		if c.last != st {
			log.Printf("health: not serving: %v", err)
		}
		c.mu.Unlock()
	}
	c.mu.Lock()
	c.last = st
	c.mu.Unlock()
	c.health.SetServingStatus("", st)
	c.health.SetServingStatus(ServiceName, st)
	return st
}

func (c *Checker) run(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()
	if c.pinger != nil {
		if err := c.pinger.Ping(ctx); err != nil {
			return err
		}
	}
	if c.policy != nil {
		if err := c.policy.HealthCheck(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Run checks immediately and then every interval until ctx is done, then marks the server as shutting down.
func (c *Checker) Run(ctx context.Context, interval time.Duration) {
	c.Check(ctx)
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			c.health.Shutdown()
			return
		case <-t.C:
			c.Check(ctx)
		}
	}
}
