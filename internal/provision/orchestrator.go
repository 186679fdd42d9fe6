// Package provision drives a single instance from launch request to a ready or
// failed result.
package provision

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/scttfrdmn/barkuni/pkg/types"
	"go.uber.org/zap"
)

// ProviderClient is the slice of a cloud compute API the orchestrator needs.
// Tag must be idempotent: applying the same mapping twice leaves the same tag set.
type ProviderClient interface {
	Launch(ctx context.Context, spec types.LaunchSpec) (string, error)
	Tag(ctx context.Context, instanceID string, tags map[string]string) error
	Describe(ctx context.Context, instanceID string) (*types.InstanceSnapshot, error)
}

// ProviderContext carries the already-authenticated provider client into the
// orchestrator. Name labels logs and metrics.
type ProviderContext struct {
	Name   string
	Client ProviderClient
}

// PollPolicy bounds the convergence loop; the budget is MaxAttempts × Interval
type PollPolicy struct {
	Interval    time.Duration
	MaxAttempts int
}

// DefaultPollPolicy polls every 5 seconds for up to 5 minutes
func DefaultPollPolicy() PollPolicy {
	return PollPolicy{Interval: 5 * time.Second, MaxAttempts: 60}
}

func (p PollPolicy) normalized() PollPolicy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.Interval < 0 {
		p.Interval = 0
	}
	return p
}

// Orchestrator provisions instances through a single provider
type Orchestrator struct {
	logger   *zap.Logger
	provider ProviderContext
	metrics  *Metrics
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithMetrics records provisioning outcomes on m
func WithMetrics(m *Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// NewOrchestrator creates an orchestrator bound to one provider
func NewOrchestrator(logger *zap.Logger, provider ProviderContext, opts ...Option) (*Orchestrator, error) {
	if provider.Client == nil {
		return nil, errors.New("provider client is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if provider.Name == "" {
		provider.Name = "unknown"
	}

	o := &Orchestrator{
		logger:   logger.With(zap.String("provider", provider.Name)),
		provider: provider,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Provision launches one instance, tags it, and polls until it is ready, terminated,
// or the poll budget runs out. Expected failures are reported in the result, never
// returned or panicked; the result always carries the instance id once one exists.
func (o *Orchestrator) Provision(ctx context.Context, spec types.LaunchSpec, policy PollPolicy) *types.ProvisionResult {
	attempt := &types.ProvisionAttempt{
		State:     types.StateRequested,
		StartedAt: time.Now(),
	}

	if err := spec.Validate(); err != nil {
		return o.fail(attempt, types.ErrLaunchFailure, fmt.Errorf("invalid launch spec: %w", err))
	}

	o.logger.Info("Launching instance",
		zap.String("subnet_id", spec.SubnetID),
		zap.String("image_id", spec.ImageID),
		zap.String("instance_type", spec.InstanceType),
		zap.Strings("security_group_ids", spec.SecurityGroupIDs),
		zap.Int("tag_count", len(spec.Tags)))

	instanceID, err := o.provider.Client.Launch(ctx, spec)
	if err != nil {
		return o.fail(attempt, types.ErrLaunchFailure, err)
	}
	if instanceID == "" {
		return o.fail(attempt, types.ErrLaunchFailure, errors.New("provider returned an empty instance id"))
	}
	attempt.InstanceID = instanceID
	attempt.State = types.StateLaunched

	o.logger.Info("Instance launched", zap.String("instance_id", instanceID))

	// Tags go on before the first poll so anything watching for "running" sees them.
	if spec.HasTags() {
		if err := o.provider.Client.Tag(ctx, instanceID, spec.Tags); err != nil {
			o.logger.Warn("Tagging failed, instance left running untagged",
				zap.String("instance_id", instanceID),
				zap.Error(err))
			return o.fail(attempt, types.ErrTaggingFailure, err)
		}
		o.logger.Debug("Instance tagged",
			zap.String("instance_id", instanceID),
			zap.Strings("tag_keys", spec.SortedTagKeys()))
	}
	attempt.State = types.StateTagged

	return o.converge(ctx, attempt, policy.normalized())
}

// converge polls Describe until the instance is ready or the budget is spent
func (o *Orchestrator) converge(ctx context.Context, attempt *types.ProvisionAttempt, policy PollPolicy) *types.ProvisionResult {
	attempt.State = types.StatePolling

	var lastErr error
	for i := 0; i < policy.MaxAttempts; i++ {
		if i > 0 {
			if err := wait(ctx, policy.Interval); err != nil {
				return o.cancelled(attempt, err)
			}
		} else if err := ctx.Err(); err != nil {
			return o.cancelled(attempt, err)
		}

		attempt.Attempts++
		snapshot, err := o.provider.Client.Describe(ctx, attempt.InstanceID)
		if err == nil && snapshot == nil {
			err = errors.New("provider returned no instance snapshot")
		}
		if err != nil {
			if ctx.Err() != nil {
				return o.cancelled(attempt, ctx.Err())
			}
			lastErr = types.NewProvisionError(types.ErrDescribeFailure, err)
			o.logger.Debug("Describe failed, will retry",
				zap.String("instance_id", attempt.InstanceID),
				zap.Int("attempt", attempt.Attempts),
				zap.Int("max_attempts", policy.MaxAttempts),
				zap.Error(err))
			continue
		}

		lastErr = nil
		attempt.LastSnapshot = snapshot

		o.logger.Debug("Polled instance state",
			zap.String("instance_id", attempt.InstanceID),
			zap.String("state", snapshot.StateName),
			zap.String("condition", string(snapshot.Condition)),
			zap.Int("attempt", attempt.Attempts))

		switch snapshot.Condition {
		case types.ConditionReady:
			attempt.State = types.StateReady
			result := o.result(attempt, nil)
			o.logger.Info("Instance ready",
				zap.String("instance_id", result.InstanceID),
				zap.String("state", result.StateName),
				zap.String("public_ip", result.PublicAddress),
				zap.String("private_ip", result.PrivateAddress),
				zap.Int("attempts", result.Attempts))
			o.metrics.observe(o.provider.Name, result)
			return result
		case types.ConditionTerminated:
			return o.fail(attempt, types.ErrInstanceTerminated,
				fmt.Errorf("instance %s entered state %q before becoming ready", attempt.InstanceID, snapshot.StateName))
		}
	}

	var err error
	switch {
	case lastErr != nil:
		err = fmt.Errorf("instance %s not ready after %d attempts: %w", attempt.InstanceID, attempt.Attempts, lastErr)
	case attempt.LastSnapshot != nil:
		err = fmt.Errorf("instance %s still %q after %d attempts", attempt.InstanceID, attempt.LastSnapshot.StateName, attempt.Attempts)
	default:
		err = fmt.Errorf("instance %s not ready after %d attempts", attempt.InstanceID, attempt.Attempts)
	}
	return o.fail(attempt, types.ErrConvergenceTimeout, err)
}

// cancelled reports a context that ended mid-poll. A passed deadline is the
// caller's time budget running out and counts as a convergence timeout.
func (o *Orchestrator) cancelled(attempt *types.ProvisionAttempt, err error) *types.ProvisionResult {
	if errors.Is(err, context.DeadlineExceeded) {
		state := "unknown"
		if attempt.LastSnapshot != nil {
			state = attempt.LastSnapshot.StateName
		}
		return o.fail(attempt, types.ErrConvergenceTimeout,
			fmt.Errorf("instance %s still %q when the deadline passed after %d attempts: %w",
				attempt.InstanceID, state, attempt.Attempts, err))
	}

	o.logger.Warn("Provisioning abandoned, instance may be left running",
		zap.String("instance_id", attempt.InstanceID),
		zap.Error(err))
	return o.fail(attempt, types.ErrCancelled, err)
}

func (o *Orchestrator) fail(attempt *types.ProvisionAttempt, kind types.ErrorKind, err error) *types.ProvisionResult {
	attempt.State = types.StateFailed
	result := o.result(attempt, types.NewProvisionError(kind, err))

	o.logger.Error("Provisioning failed",
		zap.String("instance_id", result.InstanceID),
		zap.String("kind", string(kind)),
		zap.Int("attempts", result.Attempts),
		zap.Error(err))
	o.metrics.observe(o.provider.Name, result)
	return result
}

// result converts the attempt into its immutable terminal form
func (o *Orchestrator) result(attempt *types.ProvisionAttempt, perr *types.ProvisionError) *types.ProvisionResult {
	result := &types.ProvisionResult{
		InstanceID: attempt.InstanceID,
		FinalState: attempt.State,
		Error:      perr,
		Attempts:   attempt.Attempts,
		Duration:   time.Since(attempt.StartedAt),
	}
	if snap := attempt.LastSnapshot; snap != nil {
		result.StateName = snap.StateName
		if attempt.State == types.StateReady {
			result.PublicAddress = snap.PublicAddress
			result.PrivateAddress = snap.PrivateAddress
		}
	}
	return result
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
