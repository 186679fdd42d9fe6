package aws

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/scttfrdmn/barkuni/internal/config"
	"go.uber.org/zap"
)

// ProviderName labels the EC2 backend in logs and metrics
const ProviderName = "aws"

// EC2API is the subset of the EC2 client used for single-instance provisioning
type EC2API interface {
	RunInstances(ctx context.Context, params *ec2.RunInstancesInput, optFns ...func(*ec2.Options)) (*ec2.RunInstancesOutput, error)
	CreateTags(ctx context.Context, params *ec2.CreateTagsInput, optFns ...func(*ec2.Options)) (*ec2.CreateTagsOutput, error)
	DescribeInstances(ctx context.Context, params *ec2.DescribeInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error)
	TerminateInstances(ctx context.Context, params *ec2.TerminateInstancesInput, optFns ...func(*ec2.Options)) (*ec2.TerminateInstancesOutput, error)
}

// Client provides EC2 instance operations for the provisioning orchestrator
type Client struct {
	logger *zap.Logger
	ec2    EC2API
	region string

	// CreateTags can race RunInstances and see InvalidInstanceID.NotFound
	tagAttempts   int
	tagRetryDelay time.Duration
}

// NewClient resolves credentials once for the configured authentication method
// and creates an EC2 client. A non-empty region overrides aws.region.
func NewClient(ctx context.Context, logger *zap.Logger, awsConfig *config.AWSConfig, region string) (*Client, error) {
	if region == "" {
		region = awsConfig.Region
	}

	cfg, err := NewAuthenticationProvider(logger, awsConfig).GetAWSConfig(ctx, region)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS client: %w", err)
	}

	client := NewClientWithAPI(logger, ec2.NewFromConfig(cfg))
	client.region = cfg.Region
	return client, nil
}

// NewClientWithAPI wraps an existing EC2 API implementation
func NewClientWithAPI(logger *zap.Logger, api EC2API) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		logger:        logger,
		ec2:           api,
		tagAttempts:   5,
		tagRetryDelay: 2 * time.Second,
	}
}

// Region returns the resolved AWS region
func (c *Client) Region() string {
	return c.region
}
