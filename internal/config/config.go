package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Provider types understood by the cloud factory
const (
	ProviderAWS          = "aws"
	ProviderHetzner      = "hetzner"
	ProviderDigitalOcean = "digitalocean"
)

// EnvPrefix prefixes environment overrides, e.g. BARKUNI_AWS_REGION
const EnvPrefix = "BARKUNI"

// Config represents the complete application configuration
type Config struct {
	Provider     ProviderConfig     `mapstructure:"provider"`
	AWS          AWSConfig          `mapstructure:"aws"`
	Hetzner      HetznerConfig      `mapstructure:"hetzner"`
	DigitalOcean DigitalOceanConfig `mapstructure:"digitalocean"`
	Provisioning ProvisioningConfig `mapstructure:"provisioning"`
	Cluster      ClusterConfig      `mapstructure:"cluster"`
	Server       ServerConfig       `mapstructure:"server"`
	Metrics      MetricsConfig      `mapstructure:"metrics"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

// ProviderConfig selects the compute provider backing the provisioning CLI
type ProviderConfig struct {
	Type string `mapstructure:"type"` // "aws", "hetzner" or "digitalocean"
}

// AWSConfig contains AWS-specific configuration
type AWSConfig struct {
	Region           string `mapstructure:"region"`
	Profile          string `mapstructure:"profile"`
	RetryMaxAttempts int    `mapstructure:"retry_max_attempts"`
	RetryMode        string `mapstructure:"retry_mode"`

	AuthenticationMethod string             `mapstructure:"authentication_method"`
	AssumeRole           *AssumeRoleConfig  `mapstructure:"assume_role"`
	WebIdentity          *WebIdentityConfig `mapstructure:"web_identity"`
	AccessKeys           *AccessKeysConfig  `mapstructure:"access_keys"`
}

// AccessKeysConfig contains static access key configuration (DISCOURAGED)
type AccessKeysConfig struct {
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	SessionToken    string `mapstructure:"session_token"`
}

// AssumeRoleConfig contains STS AssumeRole configuration
type AssumeRoleConfig struct {
	RoleARN         string `mapstructure:"role_arn"`
	SessionName     string `mapstructure:"session_name"`
	DurationSeconds int32  `mapstructure:"duration_seconds"`
	ExternalID      string `mapstructure:"external_id"`
}

// WebIdentityConfig contains Web Identity Federation configuration
type WebIdentityConfig struct {
	RoleARN     string `mapstructure:"role_arn"`
	TokenFile   string `mapstructure:"token_file"`
	SessionName string `mapstructure:"session_name"`
}

// HetznerConfig contains Hetzner Cloud configuration
type HetznerConfig struct {
	Token    string `mapstructure:"token"`
	Location string `mapstructure:"location"`
}

// DigitalOceanConfig contains DigitalOcean configuration
type DigitalOceanConfig struct {
	Token  string `mapstructure:"token"`
	Region string `mapstructure:"region"`
}

// ProvisioningConfig bounds the wait for a launched instance to become ready
type ProvisioningConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	MaxAttempts  int           `mapstructure:"max_attempts"`
	Timeout      time.Duration `mapstructure:"timeout"` // Overall deadline for one CLI invocation
}

// ClusterConfig locates the cluster whose pods the HTTP service lists
type ClusterConfig struct {
	Namespace  string `mapstructure:"namespace"`
	Kubeconfig string `mapstructure:"kubeconfig"` // Ignored when running in-cluster
}

// ServerConfig contains HTTP listener settings
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
}

// MetricsConfig controls where one-shot commands push their metrics
type MetricsConfig struct {
	PushgatewayURL string `mapstructure:"pushgateway_url"`
	Job            string `mapstructure:"job"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "json" or "text"
}

// Load loads configuration from the specified file path. An empty path skips the
// file and uses defaults plus BARKUNI_* environment overrides.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	normalize(&config)

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values. Every key is registered here so
// AutomaticEnv can override it during Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("provider.type", ProviderAWS)

	// AWS defaults
	v.SetDefault("aws.region", "")
	v.SetDefault("aws.profile", "")
	v.SetDefault("aws.retry_max_attempts", 3)
	v.SetDefault("aws.retry_mode", "standard")
	v.SetDefault("aws.authentication_method", "default")

	v.SetDefault("hetzner.token", "")
	v.SetDefault("hetzner.location", "fsn1")

	v.SetDefault("digitalocean.token", "")
	v.SetDefault("digitalocean.region", "nyc3")

	// Provisioning defaults mirror the EC2 instance-running waiter: 5s × 60
	v.SetDefault("provisioning.poll_interval", 5*time.Second)
	v.SetDefault("provisioning.max_attempts", 60)
	v.SetDefault("provisioning.timeout", 10*time.Minute)

	v.SetDefault("cluster.namespace", "kube-system")
	v.SetDefault("cluster.kubeconfig", "")

	v.SetDefault("server.addr", "0.0.0.0:5000")
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.request_timeout", 20*time.Second)

	v.SetDefault("metrics.pushgateway_url", "")
	v.SetDefault("metrics.job", "barkuni")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// normalize lowercases enumerations and trims free-form values
func normalize(config *Config) {
	config.Provider.Type = strings.ToLower(strings.TrimSpace(config.Provider.Type))
	config.AWS.AuthenticationMethod = strings.ToLower(strings.TrimSpace(config.AWS.AuthenticationMethod))
	config.Logging.Level = strings.ToLower(strings.TrimSpace(config.Logging.Level))
	config.Logging.Format = strings.ToLower(strings.TrimSpace(config.Logging.Format))
	config.Cluster.Namespace = strings.TrimSpace(config.Cluster.Namespace)
	config.Metrics.PushgatewayURL = strings.TrimRight(strings.TrimSpace(config.Metrics.PushgatewayURL), "/")
}

// validate performs configuration validation that does not depend on the command
func validate(config *Config) error {
	if err := validateProvider(config); err != nil {
		return err
	}
	if err := validateProvisioning(&config.Provisioning); err != nil {
		return err
	}
	if err := validateCluster(&config.Cluster); err != nil {
		return err
	}
	if err := validateServer(&config.Server); err != nil {
		return err
	}
	return validateLogging(&config.Logging)
}

// validateProvider validates the selected provider and its section
func validateProvider(config *Config) error {
	switch config.Provider.Type {
	case ProviderAWS:
		return validateAWS(&config.AWS)
	case ProviderHetzner, ProviderDigitalOcean:
		return nil
	default:
		return fmt.Errorf("provider.type must be one of: %s", strings.Join([]string{ProviderAWS, ProviderHetzner, ProviderDigitalOcean}, ", "))
	}
}

// validateAWS validates AWS configuration. The region may be empty here and resolved
// later from the shared config or environment.
func validateAWS(aws *AWSConfig) error {
	if aws.RetryMaxAttempts < 0 {
		return fmt.Errorf("aws.retry_max_attempts must not be negative")
	}
	if aws.RetryMode != "standard" && aws.RetryMode != "adaptive" {
		return fmt.Errorf("aws.retry_mode must be 'standard' or 'adaptive'")
	}

	switch aws.AuthenticationMethod {
	case "default", "instance_profile", "profile":
		return nil
	case "assume_role":
		if aws.AssumeRole == nil || aws.AssumeRole.RoleARN == "" {
			return fmt.Errorf("aws.assume_role.role_arn is required for assume_role authentication")
		}
	case "web_identity":
		if aws.WebIdentity == nil || aws.WebIdentity.RoleARN == "" || aws.WebIdentity.TokenFile == "" {
			return fmt.Errorf("aws.web_identity.role_arn and token_file are required for web_identity authentication")
		}
	case "access_keys":
		if aws.AccessKeys == nil || aws.AccessKeys.AccessKeyID == "" || aws.AccessKeys.SecretAccessKey == "" {
			return fmt.Errorf("aws.access_keys.access_key_id and secret_access_key are required for access_keys authentication")
		}
	default:
		return fmt.Errorf("aws.authentication_method %q is not supported", aws.AuthenticationMethod)
	}
	return nil
}

// validateProvisioning validates the poll budget
func validateProvisioning(p *ProvisioningConfig) error {
	if p.PollInterval < 0 {
		return fmt.Errorf("provisioning.poll_interval must not be negative")
	}
	if p.MaxAttempts <= 0 {
		return fmt.Errorf("provisioning.max_attempts must be positive")
	}
	if p.Timeout <= 0 {
		return fmt.Errorf("provisioning.timeout must be positive")
	}
	return nil
}

// validateCluster validates the cluster introspection settings
func validateCluster(c *ClusterConfig) error {
	if c.Namespace == "" {
		return fmt.Errorf("cluster.namespace is required")
	}
	return nil
}

// validateServer validates HTTP listener settings
func validateServer(s *ServerConfig) error {
	if s.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if s.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdown_timeout must be positive")
	}
	return nil
}

// validateLogging validates logging configuration
func validateLogging(logging *LoggingConfig) error {
	validLogLevels := []string{"debug", "info", "warn", "error"}
	levelOK := false
	for _, level := range validLogLevels {
		if logging.Level == level {
			levelOK = true
			break
		}
	}
	if !levelOK {
		return fmt.Errorf("logging.level must be one of: %s", strings.Join(validLogLevels, ", "))
	}
	if logging.Format != "json" && logging.Format != "text" {
		return fmt.Errorf("logging.format must be 'json' or 'text'")
	}
	return nil
}

// ValidateCredentials checks that the selected provider has what it needs to
// authenticate. Only provider-facing commands call it.
func (c *Config) ValidateCredentials() error {
	switch c.Provider.Type {
	case ProviderHetzner:
		if c.Hetzner.Token == "" {
			return errors.New("hetzner.token is required (or set BARKUNI_HETZNER_TOKEN)")
		}
	case ProviderDigitalOcean:
		if c.DigitalOcean.Token == "" {
			return errors.New("digitalocean.token is required (or set BARKUNI_DIGITALOCEAN_TOKEN)")
		}
	}
	return nil
}

// PollBudget returns the configured poll interval and attempt count
func (c *Config) PollBudget() (time.Duration, int) {
	return c.Provisioning.PollInterval, c.Provisioning.MaxAttempts
}

// SetupLogger creates a zap logger with the configured settings
func (c *Config) SetupLogger() (*zap.Logger, error) {
	var zapConfig zap.Config

	switch c.Logging.Format {
	case "text":
		zapConfig = zap.NewDevelopmentConfig()
		zapConfig.Encoding = "console"
	default:
		if c.Logging.Level == "debug" {
			zapConfig = zap.NewDevelopmentConfig()
		} else {
			zapConfig = zap.NewProductionConfig()
		}
	}

	level, err := zap.ParseAtomicLevel(c.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("failed to parse log level: %w", err)
	}
	zapConfig.Level = level

	// stdout is reserved for command output
	zapConfig.OutputPaths = []string{"stderr"}
	zapConfig.ErrorOutputPaths = []string{"stderr"}

	logger, err := zapConfig.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return logger, nil
}
