package aws

import (
	"context"
	"testing"

	"github.com/scttfrdmn/barkuni/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestAuthenticationProvider_Method(t *testing.T) {
	logger := zaptest.NewLogger(t)

	assert.Equal(t, AuthMethodDefault, NewAuthenticationProvider(logger, &config.AWSConfig{}).Method())
	assert.Equal(t, AuthMethodAssumeRole,
		NewAuthenticationProvider(logger, &config.AWSConfig{AuthenticationMethod: "assume_role"}).Method())
}

func TestAuthenticationProvider_MissingSections(t *testing.T) {
	tests := []struct {
		name    string
		config  config.AWSConfig
		message string
	}{
		{
			name:    "unsupported method",
			config:  config.AWSConfig{AuthenticationMethod: "sso"},
			message: "unsupported authentication method",
		},
		{
			name:    "assume role without role",
			config:  config.AWSConfig{AuthenticationMethod: "assume_role"},
			message: "assume_role configuration required",
		},
		{
			name:    "web identity without section",
			config:  config.AWSConfig{AuthenticationMethod: "web_identity"},
			message: "web_identity configuration required",
		},
		{
			name:    "access keys without section",
			config:  config.AWSConfig{AuthenticationMethod: "access_keys"},
			message: "access_keys configuration required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := NewAuthenticationProvider(zaptest.NewLogger(t), &tt.config)
			_, err := provider.GetAWSConfig(context.Background(), "us-east-1")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestAuthenticationProvider_DefaultChain(t *testing.T) {
	t.Setenv("AWS_ACCESS_KEY_ID", "AKIATEST")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "secret")
	t.Setenv("AWS_PROFILE", "")

	provider := NewAuthenticationProvider(zaptest.NewLogger(t), &config.AWSConfig{
		RetryMaxAttempts: 5,
		RetryMode:        "standard",
	})

	cfg, err := provider.GetAWSConfig(context.Background(), "eu-west-1")
	require.NoError(t, err)
	assert.Equal(t, "eu-west-1", cfg.Region)
	assert.Equal(t, 5, cfg.RetryMaxAttempts)
}
