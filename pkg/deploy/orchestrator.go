package deploy

import (
	"context"
	"fmt"
	"time"

	"github.com/go-kit/kit/log"

	fhmetrics "github.com/fluxcd/fhdeploy/pkg/metrics"
	"github.com/fluxcd/fhdeploy/pkg/notify"
	"github.com/fluxcd/fhdeploy/pkg/state"
)

// Orchestrator decides, each time it's run, whether there's a new
// version of the Target to deploy, deploys it, and rolls back if that
// fails. It remembers the outcome so that a version is only ever
// attempted once.
//
// RunCycle is NOT safe for concurrent use: it assumes at most one
// caller at a time for a given Target and State. Use a Guard to turn
// overlapping triggers into no-ops.
type Orchestrator struct {
	Target     Target
	Resolver   Resolver
	Applier    Applier
	Rollbacker Rollbacker
	State      state.Store
	Notifier   notify.Notifier
	Logger     log.Logger
	// Now is for tests; defaults to time.Now
	Now func() time.Time
}

// RunCycle runs the deployment algorithm once.
func (o *Orchestrator) RunCycle(ctx context.Context) Result {
	started := time.Now()
	result := o.runCycle(ctx)
	cycleDuration.With(fhmetrics.LabelResult, string(result)).Observe(time.Since(started).Seconds())
	return result
}

func (o *Orchestrator) runCycle(ctx context.Context) Result {
	logger := log.With(o.logger(), "target", o.Target.String())
	host := o.Target.Hostname

	logger.Log("info", "resolving FlakeHub reference")
	resolved, err := o.resolve(ctx)
	if err != nil {
		logger.Log("err", resolutionError(o.Target.Reference, err))
		o.notify(detach(ctx), notify.Notification{
			Title:    "Deployment Failed",
			Message:  fmt.Sprintf("Failed to resolve FlakeHub reference on %s: %s", host, err),
			Severity: notify.Error,
		})
		return ResultResolveFailed
	}
	logger = log.With(logger, "version", resolved)
	logger.Log("info", "resolved")

	prior := o.State.Read(ctx)
	switch {
	case prior.Succeeded(resolved):
		logger.Log("info", "already at version, nothing to do")
		return ResultUpToDate
	case prior.Failed(resolved):
		logger.Log("info", "version previously failed, skipping")
		return ResultSkippedKnownFailure
	}

	logger.Log("info", "deploying", "operation", o.Target.Operation, "previous", prior.LastAttemptedVersion, "previous-outcome", prior.Outcome)
	o.notify(ctx, notify.Notification{
		Title:    "Deployment Starting",
		Message:  fmt.Sprintf("Deploying %s to %s via %s", resolved, host, o.Target.Operation),
		Severity: notify.Warning,
	})

	err = o.apply(ctx)
	// However apply ended, including by ctx being cancelled, the
	// outcome is recorded and a failure rolled back.
	ctx = detach(ctx)
	if err == nil {
		o.record(ctx, logger, prior.Success(resolved, o.now()), ResultDeployed)
		o.notify(ctx, notify.Notification{
			Title:    "Deployment Succeeded",
			Message:  fmt.Sprintf("Successfully deployed %s to %s", resolved, host),
			Severity: notify.Success,
		})
		logger.Log("info", "deployment successful")
		return ResultDeployed
	}

	logger.Log("err", applyError(resolved, err))
	o.notify(ctx, notify.Notification{
		Title:    "Deployment Failed",
		Message:  fmt.Sprintf("Failed to deploy %s to %s", resolved, host),
		Severity: notify.Error,
	})

	result := ResultDeployFailed
	if o.Target.RollbackEnabled {
		logger.Log("info", "attempting rollback")
		if err := o.rollback(ctx); err == nil {
			logger.Log("info", "rollback successful")
			o.notify(ctx, notify.Notification{
				Title:    "Rollback Succeeded",
				Message:  fmt.Sprintf("Rolled back %s after failed deployment of %s", host, resolved),
				Severity: notify.Warning,
			})
			result = ResultRolledBack
		} else {
			logger.Log("err", rollbackError(err), "action", "manual intervention required")
			msg := fmt.Sprintf("CRITICAL: Failed to rollback %s - manual intervention required", host)
			if prior.LastGoodVersion != "" {
				msg += fmt.Sprintf(" (last known good version: %s)", prior.LastGoodVersion)
			}
			o.notify(ctx, notify.Notification{
				Title:    "Rollback Failed",
				Message:  msg,
				Severity: notify.Critical,
			})
			result = ResultRollbackFailed
		}
	}

	// Mark this version as failed whatever happened with the
	// rollback, so the next trigger doesn't try it again.
	o.record(ctx, logger, prior.Failure(resolved, o.now()), result)
	return result
}

func (o *Orchestrator) resolve(ctx context.Context) (string, error) {
	started := time.Now()
	v, err := o.Resolver.Resolve(ctx, o.Target.Reference)
	stepDuration.With(fhmetrics.LabelStep, "resolve", fhmetrics.LabelSuccess, fmt.Sprint(err == nil)).Observe(time.Since(started).Seconds())
	return v, err
}

func (o *Orchestrator) apply(ctx context.Context) error {
	started := time.Now()
	err := o.Applier.Apply(ctx, o.Target.Reference, o.Target.Configuration, o.Target.Operation)
	stepDuration.With(fhmetrics.LabelStep, "apply", fhmetrics.LabelSuccess, fmt.Sprint(err == nil)).Observe(time.Since(started).Seconds())
	return err
}

func (o *Orchestrator) rollback(ctx context.Context) error {
	started := time.Now()
	err := o.Rollbacker.Rollback(ctx)
	stepDuration.With(fhmetrics.LabelStep, "rollback", fhmetrics.LabelSuccess, fmt.Sprint(err == nil)).Observe(time.Since(started).Seconds())
	return err
}

// record writes the outcome. Failing to do so doesn't change what
// happened to the system, but it does mean we may repeat ourselves
// next time, so it's logged as an anomaly rather than as part of the
// usual run of things.
func (o *Orchestrator) record(ctx context.Context, logger log.Logger, r state.Record, result Result) {
	if err := o.State.Write(ctx, r); err != nil {
		stateWriteFailures.With(fhmetrics.LabelResult, string(result)).Add(1)
		logger.Log("anomaly", "state-not-recorded",
			"outcome", r.Outcome,
			"state", o.State.String(),
			"consequence", "the next trigger may re-apply this version",
			"err", err)
		return
	}
	logger.Log("state", o.State.String(), "outcome", r.Outcome)
}

func (o *Orchestrator) notify(ctx context.Context, n notify.Notification) {
	if o.Notifier == nil {
		return
	}
	if err := o.Notifier.Notify(ctx, n); err != nil {
		o.logger().Log("warning", "failed to send notification", "title", n.Title, "err", err)
	}
}

func (o *Orchestrator) logger() log.Logger {
	if o.Logger == nil {
		return log.NewNopLogger()
	}
	return o.Logger
}

func (o *Orchestrator) now() time.Time {
	if o.Now == nil {
		return time.Now().UTC()
	}
	return o.Now()
}

// settling is a context with the values of its parent but not its
// deadline or cancellation.
type settling struct {
	parent context.Context
}

func detach(ctx context.Context) context.Context {
	return settling{parent: ctx}
}

func (settling) Deadline() (time.Time, bool)         { return time.Time{}, false }
func (settling) Done() <-chan struct{}               { return nil }
func (settling) Err() error                          { return nil }
func (s settling) Value(key interface{}) interface{} { return s.parent.Value(key) }
