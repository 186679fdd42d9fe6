package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0644))
	return configPath
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name          string
		configContent string
		expectError   bool
		expectedAWS   AWSConfig
	}{
		{
			name: "valid config",
			configContent: `
aws:
  region: us-west-2
  profile: test-profile
  authentication_method: profile
`,
			expectError: false,
			expectedAWS: AWSConfig{
				Region:  "us-west-2",
				Profile: "test-profile",
			},
		},
		{
			name: "unknown provider",
			configContent: `
provider:
  type: openstack
`,
			expectError: true,
		},
		{
			name: "assume role without arn",
			configContent: `
aws:
  region: us-east-1
  authentication_method: assume_role
`,
			expectError: true,
		},
		{
			name: "non-positive max attempts",
			configContent: `
provisioning:
  max_attempts: 0
`,
			expectError: true,
		},
		{
			name: "invalid log level",
			configContent: `
logging:
  level: verbose
`,
			expectError: true,
		},
		{
			name: "invalid retry mode",
			configContent: `
aws:
  retry_mode: aggressive
`,
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config, err := Load(writeConfig(t, tt.configContent))

			if tt.expectError {
				assert.Error(t, err, "Expected error for test: %s", tt.name)
				if err != nil {
					t.Logf("Got expected error: %v", err)
				}
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.expectedAWS.Region, config.AWS.Region)
			assert.Equal(t, tt.expectedAWS.Profile, config.AWS.Profile)
		})
	}
}

func TestLoad_Defaults(t *testing.T) {
	config, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ProviderAWS, config.Provider.Type)
	assert.Equal(t, "default", config.AWS.AuthenticationMethod)
	assert.Equal(t, 3, config.AWS.RetryMaxAttempts)
	assert.Equal(t, 5*time.Second, config.Provisioning.PollInterval)
	assert.Equal(t, 60, config.Provisioning.MaxAttempts)
	assert.Equal(t, 10*time.Minute, config.Provisioning.Timeout)
	assert.Equal(t, "kube-system", config.Cluster.Namespace)
	assert.Equal(t, "0.0.0.0:5000", config.Server.Addr)
	assert.Equal(t, "info", config.Logging.Level)
	assert.Equal(t, "json", config.Logging.Format)

	interval, attempts := config.PollBudget()
	assert.Equal(t, 5*time.Second, interval)
	assert.Equal(t, 60, attempts)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("BARKUNI_AWS_REGION", "eu-central-1")
	t.Setenv("BARKUNI_CLUSTER_NAMESPACE", "monitoring")
	t.Setenv("BARKUNI_PROVISIONING_POLL_INTERVAL", "2s")
	t.Setenv("BARKUNI_HETZNER_TOKEN", "secret-token")

	config, err := Load(writeConfig(t, `
aws:
  region: us-east-1
`))
	require.NoError(t, err)

	assert.Equal(t, "eu-central-1", config.AWS.Region)
	assert.Equal(t, "monitoring", config.Cluster.Namespace)
	assert.Equal(t, 2*time.Second, config.Provisioning.PollInterval)
	assert.Equal(t, "secret-token", config.Hetzner.Token)
}

func TestValidateCredentials(t *testing.T) {
	tests := []struct {
		name        string
		config      Config
		expectError bool
	}{
		{
			name:   "aws resolves credentials lazily",
			config: Config{Provider: ProviderConfig{Type: ProviderAWS}},
		},
		{
			name:        "hetzner without token",
			config:      Config{Provider: ProviderConfig{Type: ProviderHetzner}},
			expectError: true,
		},
		{
			name: "hetzner with token",
			config: Config{
				Provider: ProviderConfig{Type: ProviderHetzner},
				Hetzner:  HetznerConfig{Token: "token"},
			},
		},
		{
			name:        "digitalocean without token",
			config:      Config{Provider: ProviderConfig{Type: ProviderDigitalOcean}},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.ValidateCredentials()
			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateAWS(t *testing.T) {
	tests := []struct {
		name        string
		aws         AWSConfig
		expectError bool
	}{
		{
			name: "default chain",
			aws:  AWSConfig{RetryMode: "standard", AuthenticationMethod: "default"},
		},
		{
			name: "web identity complete",
			aws: AWSConfig{
				RetryMode:            "adaptive",
				AuthenticationMethod: "web_identity",
				WebIdentity:          &WebIdentityConfig{RoleARN: "arn:aws:iam::123456789012:role/ops", TokenFile: "/var/run/token"},
			},
		},
		{
			name: "access keys missing secret",
			aws: AWSConfig{
				RetryMode:            "standard",
				AuthenticationMethod: "access_keys",
				AccessKeys:           &AccessKeysConfig{AccessKeyID: "AKIA"},
			},
			expectError: true,
		},
		{
			name:        "unsupported method",
			aws:         AWSConfig{RetryMode: "standard", AuthenticationMethod: "sso"},
			expectError: true,
		},
		{
			name:        "negative retries",
			aws:         AWSConfig{RetryMode: "standard", AuthenticationMethod: "default", RetryMaxAttempts: -1},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateAWS(&tt.aws)
			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	config := Config{
		Provider: ProviderConfig{Type: " AWS "},
		Logging:  LoggingConfig{Level: "DEBUG", Format: "Text"},
		Metrics:  MetricsConfig{PushgatewayURL: "http://pushgateway:9091/"},
	}

	normalize(&config)

	assert.Equal(t, "aws", config.Provider.Type)
	assert.Equal(t, "debug", config.Logging.Level)
	assert.Equal(t, "text", config.Logging.Format)
	assert.Equal(t, "http://pushgateway:9091", config.Metrics.PushgatewayURL)
}

func TestSetupLogger(t *testing.T) {
	for _, format := range []string{"json", "text"} {
		t.Run(format, func(t *testing.T) {
			config := &Config{Logging: LoggingConfig{Level: "debug", Format: format}}
			logger, err := config.SetupLogger()
			require.NoError(t, err)
			assert.NotNil(t, logger)
		})
	}
}

// Integration test with actual config file
func TestLoadIntegration(t *testing.T) {
	configContent := `
provider:
  type: aws

aws:
  region: us-east-1
  retry_max_attempts: 5
  retry_mode: adaptive
  authentication_method: assume_role
  assume_role:
    role_arn: arn:aws:iam::123456789012:role/provisioner
    session_name: barkuni
    duration_seconds: 900

provisioning:
  poll_interval: 10s
  max_attempts: 30
  timeout: 6m

cluster:
  namespace: kube-system
  kubeconfig: /home/ops/.kube/config

server:
  addr: 127.0.0.1:8080

metrics:
  pushgateway_url: http://pushgateway:9091
  job: create-instance

logging:
  level: debug
  format: text
`

	config, err := Load(writeConfig(t, configContent))
	require.NoError(t, err)

	assert.Equal(t, "us-east-1", config.AWS.Region)
	assert.Equal(t, 5, config.AWS.RetryMaxAttempts)
	assert.Equal(t, "adaptive", config.AWS.RetryMode)
	require.NotNil(t, config.AWS.AssumeRole)
	assert.Equal(t, "arn:aws:iam::123456789012:role/provisioner", config.AWS.AssumeRole.RoleARN)
	assert.Equal(t, int32(900), config.AWS.AssumeRole.DurationSeconds)

	assert.Equal(t, 10*time.Second, config.Provisioning.PollInterval)
	assert.Equal(t, 30, config.Provisioning.MaxAttempts)
	assert.Equal(t, 6*time.Minute, config.Provisioning.Timeout)

	assert.Equal(t, "/home/ops/.kube/config", config.Cluster.Kubeconfig)
	assert.Equal(t, "127.0.0.1:8080", config.Server.Addr)
	assert.Equal(t, 10*time.Second, config.Server.ShutdownTimeout, "unset keys keep defaults")

	assert.Equal(t, "http://pushgateway:9091", config.Metrics.PushgatewayURL)
	assert.Equal(t, "create-instance", config.Metrics.Job)

	assert.Equal(t, "debug", config.Logging.Level)
	assert.Equal(t, "text", config.Logging.Format)
}
