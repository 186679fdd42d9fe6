package aws

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/google/uuid"
	"github.com/scttfrdmn/barkuni/pkg/types"
	"go.uber.org/zap"
)

// Launch starts exactly one instance from spec and returns its id
func (c *Client) Launch(ctx context.Context, spec types.LaunchSpec) (string, error) {
	input := &ec2.RunInstancesInput{
		ImageId:      aws.String(spec.ImageID),
		InstanceType: ec2types.InstanceType(spec.InstanceType),
		SubnetId:     aws.String(spec.SubnetID),
		MinCount:     aws.Int32(1),
		MaxCount:     aws.Int32(1),
		ClientToken:  aws.String(uuid.NewString()),
	}
	if spec.KeyName != "" {
		input.KeyName = aws.String(spec.KeyName)
	}
	if len(spec.SecurityGroupIDs) > 0 {
		input.SecurityGroupIds = spec.SecurityGroupIDs
	}

	c.logger.Debug("Launching EC2 instance",
		zap.String("image_id", spec.ImageID),
		zap.String("instance_type", spec.InstanceType),
		zap.String("subnet_id", spec.SubnetID),
		zap.Strings("security_groups", spec.SecurityGroupIDs),
		zap.String("client_token", aws.ToString(input.ClientToken)))

	result, err := c.ec2.RunInstances(ctx, input)
	if err != nil {
		return "", apiError("RunInstances", err)
	}
	if len(result.Instances) == 0 {
		return "", fmt.Errorf("RunInstances returned no instances")
	}

	instanceID := aws.ToString(result.Instances[0].InstanceId)
	c.logger.Info("EC2 instance launched", zap.String("instance_id", instanceID))
	return instanceID, nil
}

// Tag applies tags to the instance. CreateTags overwrites existing values, so
// repeating the call leaves the same tag set.
func (c *Client) Tag(ctx context.Context, instanceID string, tags map[string]string) error {
	if len(tags) == 0 {
		return nil
	}

	input := &ec2.CreateTagsInput{
		Resources: []string{instanceID},
		Tags:      ec2Tags(tags),
	}
	for attempt := 1; ; attempt++ {
		_, err := c.ec2.CreateTags(ctx, input)
		if err == nil {
			break
		}
		if !IsNotFound(err) || attempt >= c.tagAttempts {
			return apiError("CreateTags", err)
		}

		// A just-launched instance may not be visible to CreateTags yet
		c.logger.Debug("Instance not visible yet, retrying CreateTags",
			zap.String("instance_id", instanceID),
			zap.Int("attempt", attempt))
		if err := sleep(ctx, c.tagRetryDelay); err != nil {
			return fmt.Errorf("tagging %s abandoned: %w", instanceID, err)
		}
	}

	c.logger.Debug("EC2 instance tagged",
		zap.String("instance_id", instanceID),
		zap.Int("tags", len(tags)))
	return nil
}

// Describe returns the current state and addresses of the instance
func (c *Client) Describe(ctx context.Context, instanceID string) (*types.InstanceSnapshot, error) {
	result, err := c.ec2.DescribeInstances(ctx, &ec2.DescribeInstancesInput{
		InstanceIds: []string{instanceID},
	})
	if err != nil {
		return nil, apiError("DescribeInstances", err)
	}

	for _, reservation := range result.Reservations {
		for _, instance := range reservation.Instances {
			if aws.ToString(instance.InstanceId) != instanceID {
				continue
			}
			return snapshot(instance), nil
		}
	}
	return nil, fmt.Errorf("instance %s not found in DescribeInstances response", instanceID)
}

// Terminate requests termination of the instance. An instance that no longer
// exists is not an error.
func (c *Client) Terminate(ctx context.Context, instanceID string) error {
	c.logger.Info("Terminating EC2 instance", zap.String("instance_id", instanceID))

	_, err := c.ec2.TerminateInstances(ctx, &ec2.TerminateInstancesInput{
		InstanceIds: []string{instanceID},
	})
	if err != nil {
		if IsNotFound(err) {
			c.logger.Warn("Instance already gone", zap.String("instance_id", instanceID))
			return nil
		}
		return apiError("TerminateInstances", err)
	}
	return nil
}

func snapshot(instance ec2types.Instance) *types.InstanceSnapshot {
	var stateName ec2types.InstanceStateName
	if instance.State != nil {
		stateName = instance.State.Name
	}
	return &types.InstanceSnapshot{
		InstanceID:     aws.ToString(instance.InstanceId),
		StateName:      string(stateName),
		Condition:      classifyState(stateName),
		PublicAddress:  aws.ToString(instance.PublicIpAddress),
		PrivateAddress: aws.ToString(instance.PrivateIpAddress),
	}
}

// classifyState maps EC2 state names onto provider-neutral conditions. Stopped
// instances never come back to running on their own.
func classifyState(state ec2types.InstanceStateName) types.InstanceCondition {
	switch state {
	case ec2types.InstanceStateNameRunning:
		return types.ConditionReady
	case ec2types.InstanceStateNameTerminated,
		ec2types.InstanceStateNameShuttingDown,
		ec2types.InstanceStateNameStopping,
		ec2types.InstanceStateNameStopped:
		return types.ConditionTerminated
	default:
		return types.ConditionPending
	}
}

func ec2Tags(tags map[string]string) []ec2types.Tag {
	result := make([]ec2types.Tag, 0, len(tags))
	for _, key := range slices.Sorted(maps.Keys(tags)) {
		result = append(result, ec2types.Tag{
			Key:   aws.String(key),
			Value: aws.String(tags[key]),
		})
	}
	return result
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
