package aws

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/scttfrdmn/barkuni/internal/config"
	"go.uber.org/zap"
)

// AuthenticationMethod represents different AWS authentication approaches
type AuthenticationMethod string

const (
	AuthMethodDefault         AuthenticationMethod = "default"          // Default credential chain
	AuthMethodInstanceProfile AuthenticationMethod = "instance_profile" // EC2 instance profile
	AuthMethodProfile         AuthenticationMethod = "profile"          // Named AWS profile
	AuthMethodAssumeRole      AuthenticationMethod = "assume_role"      // STS AssumeRole
	AuthMethodWebIdentity     AuthenticationMethod = "web_identity"     // Web Identity Federation
	AuthMethodAccessKeys      AuthenticationMethod = "access_keys"      // Static access keys (DISCOURAGED)
)

// AuthenticationProvider resolves an aws.Config for the configured method. It runs
// once per process; the resulting config is handed to the provider client.
type AuthenticationProvider struct {
	logger *zap.Logger
	config *config.AWSConfig
}

// NewAuthenticationProvider creates a new authentication provider
func NewAuthenticationProvider(logger *zap.Logger, awsConfig *config.AWSConfig) *AuthenticationProvider {
	return &AuthenticationProvider{
		logger: logger,
		config: awsConfig,
	}
}

// Method returns the configured authentication method
func (a *AuthenticationProvider) Method() AuthenticationMethod {
	if a.config.AuthenticationMethod == "" {
		return AuthMethodDefault
	}
	return AuthenticationMethod(a.config.AuthenticationMethod)
}

// GetAWSConfig returns an AWS config with the specified authentication method
func (a *AuthenticationProvider) GetAWSConfig(ctx context.Context, region string) (aws.Config, error) {
	a.logger.Debug("Configuring AWS authentication",
		zap.String("method", string(a.Method())),
		zap.String("region", region))

	switch a.Method() {
	case AuthMethodDefault:
		return a.load(ctx, region)
	case AuthMethodInstanceProfile:
		return a.getInstanceProfileConfig(ctx, region)
	case AuthMethodProfile:
		return a.getProfileConfig(ctx, region)
	case AuthMethodAssumeRole:
		return a.getAssumeRoleConfig(ctx, region)
	case AuthMethodWebIdentity:
		return a.getWebIdentityConfig(ctx, region)
	case AuthMethodAccessKeys:
		return a.getAccessKeysConfig(ctx, region)
	default:
		return aws.Config{}, fmt.Errorf("unsupported authentication method: %s", a.Method())
	}
}

// load applies the options shared by every method on top of the method-specific ones
func (a *AuthenticationProvider) load(ctx context.Context, region string, extra ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRetryMode(aws.RetryMode(a.config.RetryMode)),
	}
	if a.config.RetryMaxAttempts > 0 {
		opts = append(opts, awsconfig.WithRetryMaxAttempts(a.config.RetryMaxAttempts))
	}
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	opts = append(opts, extra...)

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	if cfg.Region == "" {
		return aws.Config{}, fmt.Errorf("no AWS region configured (set aws.region, --region or AWS_REGION)")
	}
	return cfg, nil
}

// getInstanceProfileConfig uses EC2 instance profile for authentication
func (a *AuthenticationProvider) getInstanceProfileConfig(ctx context.Context, region string) (aws.Config, error) {
	cfg, err := a.load(ctx, region, awsconfig.WithEC2IMDSRegion())
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load instance profile config: %w", err)
	}

	if _, err := a.CallerIdentity(ctx, cfg); err != nil {
		return aws.Config{}, fmt.Errorf("instance profile validation failed: %w", err)
	}
	return cfg, nil
}

// getProfileConfig uses named AWS profile
func (a *AuthenticationProvider) getProfileConfig(ctx context.Context, region string) (aws.Config, error) {
	profile := a.config.Profile
	if profile == "" {
		profile = "default"
	}

	a.logger.Debug("Using AWS profile authentication", zap.String("profile", profile))

	cfg, err := a.load(ctx, region, awsconfig.WithSharedConfigProfile(profile))
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load profile config: %w", err)
	}
	return cfg, nil
}

// getAssumeRoleConfig uses STS AssumeRole for authentication
func (a *AuthenticationProvider) getAssumeRoleConfig(ctx context.Context, region string) (aws.Config, error) {
	role := a.config.AssumeRole
	if role == nil || role.RoleARN == "" {
		return aws.Config{}, fmt.Errorf("assume_role configuration required")
	}

	a.logger.Debug("Using STS AssumeRole authentication",
		zap.String("role_arn", role.RoleARN),
		zap.String("session_name", role.SessionName))

	baseCfg, err := a.load(ctx, region)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load base config: %w", err)
	}

	provider := stscreds.NewAssumeRoleProvider(sts.NewFromConfig(baseCfg), role.RoleARN, func(options *stscreds.AssumeRoleOptions) {
		options.RoleSessionName = role.SessionName
		if role.DurationSeconds > 0 {
			options.Duration = time.Duration(role.DurationSeconds) * time.Second
		}
		if role.ExternalID != "" {
			options.ExternalID = aws.String(role.ExternalID)
		}
	})

	cfg, err := a.load(ctx, region, awsconfig.WithCredentialsProvider(aws.NewCredentialsCache(provider)))
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to configure assume role: %w", err)
	}
	return cfg, nil
}

// getWebIdentityConfig uses Web Identity Federation (for Kubernetes/containers)
func (a *AuthenticationProvider) getWebIdentityConfig(ctx context.Context, region string) (aws.Config, error) {
	identity := a.config.WebIdentity
	if identity == nil {
		return aws.Config{}, fmt.Errorf("web_identity configuration required")
	}

	a.logger.Debug("Using Web Identity Federation authentication",
		zap.String("role_arn", identity.RoleARN),
		zap.String("token_file", identity.TokenFile))

	cfg, err := a.load(ctx, region,
		awsconfig.WithWebIdentityRoleCredentialOptions(func(options *stscreds.WebIdentityRoleOptions) {
			options.RoleARN = identity.RoleARN
			options.TokenRetriever = stscreds.IdentityTokenFile(identity.TokenFile)
			options.RoleSessionName = identity.SessionName
		}),
	)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to configure web identity: %w", err)
	}
	return cfg, nil
}

// getAccessKeysConfig uses static access keys (DISCOURAGED)
func (a *AuthenticationProvider) getAccessKeysConfig(ctx context.Context, region string) (aws.Config, error) {
	keys := a.config.AccessKeys
	if keys == nil {
		return aws.Config{}, fmt.Errorf("access_keys configuration required")
	}

	a.logger.Warn("Using static access keys",
		zap.String("recommendation", "Use instance_profile, assume_role or web_identity instead"))

	cfg, err := a.load(ctx, region, awsconfig.WithCredentialsProvider(
		credentials.NewStaticCredentialsProvider(keys.AccessKeyID, keys.SecretAccessKey, keys.SessionToken),
	))
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to configure access keys: %w", err)
	}

	if _, err := a.CallerIdentity(ctx, cfg); err != nil {
		return aws.Config{}, fmt.Errorf("access key validation failed: %w", err)
	}
	return cfg, nil
}

// CredentialInfo contains information about current AWS credentials
type CredentialInfo struct {
	Account     string    `json:"account"`
	ARN         string    `json:"arn"`
	UserID      string    `json:"user_id"`
	Method      string    `json:"method"`
	ValidatedAt time.Time `json:"validated_at"`
}

// CallerIdentity validates that credentials work by calling STS GetCallerIdentity
func (a *AuthenticationProvider) CallerIdentity(ctx context.Context, cfg aws.Config) (*CredentialInfo, error) {
	result, err := sts.NewFromConfig(cfg).GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return nil, fmt.Errorf("credential validation failed: %w", apiError("GetCallerIdentity", err))
	}

	info := &CredentialInfo{
		Account:     aws.ToString(result.Account),
		ARN:         aws.ToString(result.Arn),
		UserID:      aws.ToString(result.UserId),
		Method:      string(a.Method()),
		ValidatedAt: time.Now(),
	}

	a.logger.Info("AWS credentials validated",
		zap.String("account", info.Account),
		zap.String("arn", info.ARN))

	return info, nil
}
