package telemetry

import (
	"context"
	"log"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MeterName is the instrumentation scope of the core's counters.
const MeterName = "orderdesk.session"

// Counters are the core's OTel counters. The zero value is not usable; call NewCounters.
type Counters struct {
	forcedSignOuts      metric.Int64Counter
	redemptions         metric.Int64Counter
	redemptionConflicts metric.Int64Counter
	profileRetries      metric.Int64Counter
}

// NewCounters creates the counters on meter. A nil meter uses the global MeterProvider, so counters created
// before SetGlobal still report once the SDK provider is installed.
func NewCounters(meter metric.Meter) *Counters {
	if meter == nil {
		meter = otel.Meter(MeterName)
	}
	c := &Counters{}
	var err error
	if c.forcedSignOuts, err = meter.Int64Counter("session.forced_signouts",
		metric.WithDescription("Sessions ended by the synchronizer")); err != nil {
		log.Printf("telemetry: counter session.forced_signouts: %v", err)
	}
	if c.redemptions, err = meter.Int64Counter("invite.redemptions",
		metric.WithDescription("Invite codes redeemed")); err != nil {
		log.Printf("telemetry: counter invite.redemptions: %v", err)
	}
	if c.redemptionConflicts, err = meter.Int64Counter("invite.redemption_conflicts",
		metric.WithDescription("Redemptions lost to a concurrent redeemer")); err != nil {
		log.Printf("telemetry: counter invite.redemption_conflicts: %v", err)
	}
	if c.profileRetries, err = meter.Int64Counter("session.profile_retries",
		metric.WithDescription("Missing-profile observations while awaiting a profile")); err != nil {
		log.Printf("telemetry: counter session.profile_retries: %v", err)
	}
	return c
}

// ForcedSignOut counts a forced sign-out with its reason.
func (c *Counters) ForcedSignOut(ctx context.Context, reason string) {
	if c == nil || c.forcedSignOuts == nil {
		return
	}
	c.forcedSignOuts.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// Redeemed counts a successful redemption.
func (c *Counters) Redeemed(ctx context.Context) {
	if c == nil || c.redemptions == nil {
		return
	}
	c.redemptions.Add(ctx, 1)
}

// RedemptionConflict counts a redemption that observed the code already used.
func (c *Counters) RedemptionConflict(ctx context.Context) {
	if c == nil || c.redemptionConflicts == nil {
		return
	}
	c.redemptionConflicts.Add(ctx, 1)
}

// ProfileRetry counts one missing-profile observation.
func (c *Counters) ProfileRetry(ctx context.Context) {
	if c == nil || c.profileRetries == nil {
		return
	}
	c.profileRetries.Add(ctx, 1)
}
