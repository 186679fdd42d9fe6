package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/scttfrdmn/barkuni/internal/cloud"
	"github.com/scttfrdmn/barkuni/internal/config"
	"github.com/scttfrdmn/barkuni/internal/provision"
	"github.com/scttfrdmn/barkuni/pkg/types"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configFile     string
	subnetID       string
	amiID          string
	instanceType   string
	keyName        string
	securityGroups []string
	tagPairs       []string
	providerType   string
	region         string
	pollInterval   time.Duration
	maxAttempts    int
	outputFormat   string
	timeout        time.Duration
	dryRun         bool
	logger         *zap.Logger
)

// errProvisionFailed marks a failure already reported on stderr
var errProvisionFailed = errors.New("provisioning failed")

func main() {
	var err error
	logger, err = zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	rootCmd := newRootCmd()
	rootCmd.SetArgs(expandListFlags(os.Args[1:]))
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errProvisionFailed) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "create-instance",
		Short: "Create a single cloud instance and wait until it is running",
		Long: `Launch one instance in the given subnet from the given image, apply tags,
and wait until the provider reports it running. Prints the instance id, state
and addresses on success.

The provider defaults to AWS EC2; Hetzner Cloud and DigitalOcean are selected
with --provider or provider.type in the config file.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          createInstance,
	}

	flags := rootCmd.Flags()
	flags.StringVar(&subnetID, "subnet-id", "", "Subnet ID to launch the instance in (VPC UUID or network for other providers)")
	flags.StringVar(&amiID, "ami-id", "", "AMI ID to use (image name or slug for other providers)")
	flags.StringVar(&instanceType, "instance-type", types.DefaultInstanceType, "Instance type")
	flags.StringVar(&keyName, "key-name", "", "Key pair name")
	flags.StringSliceVar(&securityGroups, "security-groups", nil, "Security group IDs (repeatable, comma or space separated)")
	flags.StringArrayVar(&tagPairs, "tags", nil, "Tags in format key=value (repeatable, space separated)")
	flags.StringVarP(&configFile, "config", "c", "", "Configuration file path (optional)")
	flags.StringVar(&providerType, "provider", "", "Provider override: aws, hetzner or digitalocean")
	flags.StringVar(&region, "region", "", "Region or location override")
	flags.DurationVar(&pollInterval, "poll-interval", 0, "Interval between state checks (default from config, 5s)")
	flags.IntVar(&maxAttempts, "max-attempts", 0, "Maximum number of state checks (default from config, 60)")
	flags.StringVarP(&outputFormat, "output", "o", outputText, "Output format: text, json or yaml")
	flags.DurationVar(&timeout, "timeout", 0, "Overall deadline (default from config, 10m)")
	flags.BoolVar(&dryRun, "dry-run", false, "Validate and print the launch spec without calling the provider")

	_ = rootCmd.MarkFlagRequired("subnet-id")
	_ = rootCmd.MarkFlagRequired("ami-id")

	return rootCmd
}

func createInstance(cmd *cobra.Command, args []string) error {
	if err := validateOutputFormat(outputFormat); err != nil {
		return err
	}

	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyOverrides(cmd, cfg)

	if l, err := cfg.SetupLogger(); err == nil {
		logger = l
	} else {
		logger.Warn("Using default logger", zap.Error(err))
	}

	spec, err := buildLaunchSpec()
	if err != nil {
		return err
	}

	if dryRun {
		return writeDryRun(cmd.OutOrStdout(), outputFormat, cfg.Provider.Type, spec)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if cfg.Provisioning.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Provisioning.Timeout)
		defer cancel()
	}

	backend, err := cloud.New(ctx, logger, cfg, region)
	if err != nil {
		return fmt.Errorf("failed to initialize %s provider: %w", cfg.Provider.Type, err)
	}

	registry := prometheus.NewRegistry()
	metrics, err := provision.NewMetrics(registry)
	if err != nil {
		return err
	}

	orchestrator, err := provision.NewOrchestrator(logger, backend.ProviderContext(), provision.WithMetrics(metrics))
	if err != nil {
		return err
	}

	interval, attempts := cfg.PollBudget()
	logger.Info("Create instance request received",
		zap.String("provider", backend.Name),
		zap.String("subnet_id", spec.SubnetID),
		zap.String("image_id", spec.ImageID),
		zap.String("instance_type", spec.InstanceType),
		zap.Duration("poll_interval", interval),
		zap.Int("max_attempts", attempts))

	result := orchestrator.Provision(ctx, spec, provision.PollPolicy{Interval: interval, MaxAttempts: attempts})

	pushCtx, pushCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer pushCancel()
	if err := provision.PushMetrics(pushCtx, cfg.Metrics.PushgatewayURL, cfg.Metrics.Job, registry); err != nil {
		logger.Warn("Failed to push metrics", zap.Error(err))
	}

	if err := writeResult(cmd.OutOrStdout(), cmd.ErrOrStderr(), outputFormat, result); err != nil {
		return fmt.Errorf("failed to write result: %w", err)
	}
	if !result.Succeeded() {
		return errProvisionFailed
	}
	return nil
}

// applyOverrides copies explicitly set flags over config values
func applyOverrides(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("provider") {
		cfg.Provider.Type = strings.ToLower(strings.TrimSpace(providerType))
	}
	if flags.Changed("poll-interval") {
		cfg.Provisioning.PollInterval = pollInterval
	}
	if flags.Changed("max-attempts") {
		cfg.Provisioning.MaxAttempts = maxAttempts
	}
	if flags.Changed("timeout") {
		cfg.Provisioning.Timeout = timeout
	}
}

func buildLaunchSpec() (types.LaunchSpec, error) {
	tags, err := types.ParseTags(splitFields(tagPairs))
	if err != nil {
		return types.LaunchSpec{}, err
	}
	return types.NewLaunchSpec(subnetID, amiID, instanceType, keyName, types.SplitList(securityGroups), tags)
}

// splitFields flattens repeated flag values on whitespace only, so tag values
// may contain commas
func splitFields(values []string) []string {
	var out []string
	for _, value := range values {
		out = append(out, strings.Fields(value)...)
	}
	return out
}

// listFlags accept several space separated values after one flag
var listFlags = map[string]bool{
	"--security-groups": true,
	"--tags":            true,
}

// expandListFlags rewrites "--tags a=1 b=2" into "--tags a=1 --tags b=2" so
// every bare value that follows a list flag becomes its own occurrence
func expandListFlags(args []string) []string {
	out := make([]string, 0, len(args))
	var current string
	expectValue := false

	for i, arg := range args {
		if arg == "--" {
			out = append(out, args[i:]...)
			break
		}
		if expectValue {
			out = append(out, arg)
			expectValue = false
			continue
		}
		if strings.HasPrefix(arg, "-") {
			name, _, hasValue := strings.Cut(arg, "=")
			current = ""
			if listFlags[name] {
				current = name
				expectValue = !hasValue
			}
			out = append(out, arg)
			continue
		}
		if current != "" {
			out = append(out, current)
		}
		out = append(out, arg)
	}
	return out
}
