package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	awsclient "github.com/scttfrdmn/barkuni/internal/aws"
	"github.com/scttfrdmn/barkuni/internal/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var logger *zap.Logger

func main() {
	var err error
	logger, err = zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := newRootCmd().Execute(); err != nil {
		logger.Error("Validation failed", zap.Error(err))
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "barkuni-validate",
		Short: "Validate configuration files and provider credentials",
		Long: `Validate barkuni configuration files before deployment and check that
the configured AWS credentials resolve to a caller identity.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(credentialsCmd())
	return rootCmd
}

func configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config [config-file]",
		Short: "Validate a barkuni configuration file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			configFile := args[0]
			logger.Info("Validating configuration file", zap.String("file", configFile))

			cfg, err := validateConfig(configFile)
			if err != nil {
				return err
			}

			interval, attempts := cfg.PollBudget()
			logger.Info("Configuration file is valid",
				zap.String("file", configFile),
				zap.String("provider", cfg.Provider.Type),
				zap.Duration("poll_interval", interval),
				zap.Int("max_attempts", attempts),
				zap.String("namespace", cfg.Cluster.Namespace),
				zap.String("server_addr", cfg.Server.Addr))

			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (provider %s)\n", configFile, cfg.Provider.Type)
			return nil
		},
	}
}

func credentialsCmd() *cobra.Command {
	var (
		configFile string
		region     string
	)

	cmd := &cobra.Command{
		Use:   "credentials",
		Short: "Resolve AWS credentials and print the caller identity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			cfg, err := config.Load(configFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if cfg.Provider.Type != config.ProviderAWS {
				return fmt.Errorf("credential check is only available for aws, not %s", cfg.Provider.Type)
			}

			auth := awsclient.NewAuthenticationProvider(logger, &cfg.AWS)
			awsCfg, err := auth.GetAWSConfig(ctx, region)
			if err != nil {
				return err
			}
			info, err := auth.CallerIdentity(ctx, awsCfg)
			if err != nil {
				return err
			}
			return writeIdentity(cmd.OutOrStdout(), info)
		},
	}

	cmd.Flags().StringVarP(&configFile, "config", "c", "", "Configuration file path (optional)")
	cmd.Flags().StringVar(&region, "region", "", "Region override")
	return cmd
}

// validateConfig loads path and checks that the selected provider has credentials
func validateConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("cannot read configuration file: %w", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	if err := cfg.ValidateCredentials(); err != nil {
		return nil, fmt.Errorf("configuration incomplete: %w", err)
	}
	return cfg, nil
}

func writeIdentity(w io.Writer, info *awsclient.CredentialInfo) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(info)
}
